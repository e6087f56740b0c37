package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/cargo-dispatch/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failSAdd int // number of times to fail SAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	sCalls   int
	hCalls   int
	lastHash map[string]interface{}
}

func (f *fakeUpdater) SAdd(ctx context.Context, key string, member string) error {
	f.sCalls++
	if f.sCalls <= f.failSAdd {
		return errors.New("sadd fail")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.lastHash = values
	return nil
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failSAdd: 1, failH: 1}
	p := &models.Presence{DriverID: "d1", Corridor: "Nairobi-Mombasa", Online: true, SeenAt: time.Now()}
	ctx := context.Background()
	start := time.Now()
	if err := updateRedisWithRetry(ctx, f, "drivers_presence", p, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.sCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got sadd=%d hset=%d", f.sCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if f.lastHash["corridor"] != "Nairobi-Mombasa" || f.lastHash["online"] != "true" {
		t.Fatalf("unexpected hash written: %v", f.lastHash)
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failSAdd: 5, failH: 0}
	p := &models.Presence{DriverID: "d1", Online: true, SeenAt: time.Now()}
	ctx := context.Background()
	if err := updateRedisWithRetry(ctx, f, "drivers_presence", p, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
