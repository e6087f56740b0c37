// Package matchmaking ranks available drivers as a display hint for the
// dispatcher. Corridor affinity and reliability influence ordering only;
// neither is enforced at assignment time.
package matchmaking

import (
	"context"
	"sort"
	"time"

	"github.com/example/cargo-dispatch/internal/models"
	"github.com/example/cargo-dispatch/internal/observability"
	"github.com/example/cargo-dispatch/internal/presence"
	"github.com/example/cargo-dispatch/internal/storage"
)

// corridorBonus outweighs any realistic reliability spread so corridor
// matches always rank above non-matches.
const corridorBonus = 1000

type Hint struct {
	Driver        models.Driver `json:"driver"`
	CorridorMatch bool          `json:"corridor_match"`
	LastSeen      time.Time     `json:"last_seen"`
	Score         float64       `json:"score"`
}

type Service struct {
	Presence presence.Directory
	Store    storage.Store
	Cutoff   time.Duration
	Cache    *Cache // optional
}

func NewService(dir presence.Directory, store storage.Store, cutoff time.Duration) *Service {
	if cutoff <= 0 {
		cutoff = 2 * time.Minute
	}
	return &Service{Presence: dir, Store: store, Cutoff: cutoff, Cache: NewCache(10 * time.Second)}
}

// Hints lists currently-available drivers ranked for the given corridor
// (empty corridor ranks on reliability alone).
func (s *Service) Hints(ctx context.Context, corridor string) ([]Hint, error) {
	if s.Cache != nil {
		if v, ok := s.Cache.Get(corridor); ok {
			return v, nil
		}
	}

	avail := s.Presence.Available(s.Cutoff)
	observability.DriversAvailable.Set(float64(len(avail)))

	hints := make([]Hint, 0, len(avail))
	for _, p := range avail {
		d, err := s.Store.GetDriver(ctx, p.DriverID)
		if err != nil {
			// A heartbeat from an unknown driver is just skipped.
			continue
		}
		match := false
		if corridor != "" {
			if p.Corridor == corridor {
				match = true
			} else if names, err := s.Store.DriverCorridors(ctx, p.DriverID); err == nil {
				for _, n := range names {
					if n == corridor {
						match = true
						break
					}
				}
			}
		}
		score := float64(d.ReliabilityScore)
		if match {
			score += corridorBonus
		}
		hints = append(hints, Hint{Driver: *d, CorridorMatch: match, LastSeen: p.SeenAt, Score: score})
	}
	sort.SliceStable(hints, func(i, j int) bool { return hints[i].Score > hints[j].Score })

	if s.Cache != nil {
		s.Cache.Set(corridor, hints)
	}
	return hints, nil
}
