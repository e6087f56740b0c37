package presence

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/cargo-dispatch/internal/models"
)

// RedisPresence implements Directory over per-driver redis hashes plus an id
// set, so the consumer and the API share one availability view.
type RedisPresence struct {
	client *redis.Client
	setKey string
	ctx    context.Context
}

func NewRedisPresence(addr, password, setKey string) *RedisPresence {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisPresence{client: c, setKey: setKey, ctx: context.Background()}
}

func (r *RedisPresence) Upsert(p models.Presence) {
	if p.SeenAt.IsZero() {
		p.SeenAt = time.Now()
	}
	_ = r.client.SAdd(r.ctx, r.setKey, p.DriverID).Err()
	_ = r.client.HSet(r.ctx, metaKey(p.DriverID), map[string]interface{}{
		"corridor": p.Corridor,
		"online":   strconv.FormatBool(p.Online),
		"seen":     p.SeenAt.Format(time.RFC3339),
	}).Err()
}

func (r *RedisPresence) Available(cutoff time.Duration) []models.Presence {
	ids, err := r.client.SMembers(r.ctx, r.setKey).Result()
	if err != nil {
		return nil
	}
	deadline := time.Now().Add(-cutoff)
	out := make([]models.Presence, 0, len(ids))
	for _, id := range ids {
		m, err := r.client.HGetAll(r.ctx, metaKey(id)).Result()
		if err != nil || len(m) == 0 {
			continue
		}
		p := models.Presence{DriverID: id, Corridor: m["corridor"]}
		p.Online = m["online"] == "true"
		if ts, err := time.Parse(time.RFC3339, m["seen"]); err == nil {
			p.SeenAt = ts
		}
		if !p.Online || p.SeenAt.Before(deadline) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].SeenAt.After(out[b].SeenAt) })
	return out
}

func metaKey(id string) string { return "driver:presence:" + id }
