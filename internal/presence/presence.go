package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/example/cargo-dispatch/internal/models"
)

// Directory is the minimal interface required by matchmaking and handlers.
type Directory interface {
	Upsert(p models.Presence)
	// Available returns drivers seen within the cutoff window, most
	// recently seen first.
	Available(cutoff time.Duration) []models.Presence
}

type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.Presence
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.Presence)}
}

func (i *Index) Upsert(p models.Presence) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if p.SeenAt.IsZero() {
		p.SeenAt = time.Now()
	}
	i.drivers[p.DriverID] = p
}

func (i *Index) Available(cutoff time.Duration) []models.Presence {
	i.mu.RLock()
	defer i.mu.RUnlock()
	deadline := time.Now().Add(-cutoff)
	out := make([]models.Presence, 0, len(i.drivers))
	for _, p := range i.drivers {
		if !p.Online || p.SeenAt.Before(deadline) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].SeenAt.After(out[b].SeenAt) })
	return out
}
