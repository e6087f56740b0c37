package matchmaking

import (
	"context"
	"testing"
	"time"

	"github.com/example/cargo-dispatch/internal/models"
	"github.com/example/cargo-dispatch/internal/presence"
	"github.com/example/cargo-dispatch/internal/storage"
)

func seedWorld(t *testing.T) (*presence.Index, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	store.PutDriver(models.Driver{ID: "d1", FullName: "John", ReliabilityScore: 95}, "Nairobi-Mombasa")
	store.PutDriver(models.Driver{ID: "d2", FullName: "Peter", ReliabilityScore: 80})
	store.PutDriver(models.Driver{ID: "d3", FullName: "Grace", ReliabilityScore: 100}, "Nairobi-Kisumu")

	dir := presence.NewIndex()
	now := time.Now()
	dir.Upsert(models.Presence{DriverID: "d1", Online: true, SeenAt: now})
	dir.Upsert(models.Presence{DriverID: "d2", Corridor: "Nairobi-Mombasa", Online: true, SeenAt: now})
	dir.Upsert(models.Presence{DriverID: "d3", Online: true, SeenAt: now})
	return dir, store
}

func TestHintsCorridorMatchOutranksReliability(t *testing.T) {
	dir, store := seedWorld(t)
	svc := NewService(dir, store, time.Minute)
	svc.Cache = nil

	hints, err := svc.Hints(context.Background(), "Nairobi-Mombasa")
	if err != nil {
		t.Fatal(err)
	}
	if len(hints) != 3 {
		t.Fatalf("expected 3 hints, got %d", len(hints))
	}
	// d1 matches via the corridor link, d2 via its heartbeat corridor. Both
	// must rank above d3 despite d3's perfect reliability score.
	if !hints[0].CorridorMatch || !hints[1].CorridorMatch {
		t.Fatalf("corridor matches must lead: %+v", hints)
	}
	if hints[2].Driver.ID != "d3" {
		t.Fatalf("non-matching driver must rank last, got %s", hints[2].Driver.ID)
	}
	// among the matches, reliability decides
	if hints[0].Driver.ID != "d1" || hints[1].Driver.ID != "d2" {
		t.Fatalf("expected [d1 d2], got [%s %s]", hints[0].Driver.ID, hints[1].Driver.ID)
	}
}

func TestHintsEmptyCorridorRanksOnReliability(t *testing.T) {
	dir, store := seedWorld(t)
	svc := NewService(dir, store, time.Minute)
	svc.Cache = nil

	hints, err := svc.Hints(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if hints[0].Driver.ID != "d3" || hints[0].CorridorMatch {
		t.Fatalf("expected d3 first with no corridor match, got %+v", hints[0])
	}
}

func TestHintsSkipsUnknownDrivers(t *testing.T) {
	dir, store := seedWorld(t)
	dir.Upsert(models.Presence{DriverID: "ghost", Online: true, SeenAt: time.Now()})
	svc := NewService(dir, store, time.Minute)
	svc.Cache = nil

	hints, err := svc.Hints(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hints {
		if h.Driver.ID == "ghost" {
			t.Fatal("heartbeat from unknown driver must be skipped")
		}
	}
}

func TestHintsCacheHit(t *testing.T) {
	dir, store := seedWorld(t)
	svc := NewService(dir, store, time.Minute)

	first, err := svc.Hints(context.Background(), "Nairobi-Mombasa")
	if err != nil {
		t.Fatal(err)
	}
	// a driver going offline is invisible until the cache entry expires
	dir.Upsert(models.Presence{DriverID: "d1", Online: false, SeenAt: time.Now()})

	second, err := svc.Hints(context.Background(), "Nairobi-Mombasa")
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != len(first) {
		t.Fatalf("expected cached result, got %d vs %d hints", len(second), len(first))
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.Set("k", []Hint{{Score: 1}})
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected fresh entry")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to expire")
	}
}
