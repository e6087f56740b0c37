// Package reconcile builds per-driver commission statements over completed,
// unsettled trips and settles them.
package reconcile

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/example/cargo-dispatch/internal/commission"
	"github.com/example/cargo-dispatch/internal/lifecycle"
	"github.com/example/cargo-dispatch/internal/models"
	"github.com/example/cargo-dispatch/internal/observability"
	"github.com/example/cargo-dispatch/internal/storage"
)

// BuildStatements groups completed, unsettled trips by driver and totals
// fares and commissions. Trips without a driver are excluded (a completed
// trip is expected to always have one). Output is sorted by descending
// commission so the driver owing the most appears first.
func BuildStatements(trips []models.Trip) []models.DriverStatement {
	byDriver := make(map[string]*models.DriverStatement)
	order := make([]string, 0)
	for _, t := range trips {
		if t.DriverID == nil {
			continue
		}
		id := *t.DriverID
		st, ok := byDriver[id]
		if !ok {
			st = &models.DriverStatement{DriverID: id}
			byDriver[id] = st
			order = append(order, id)
		}
		st.TripIDs = append(st.TripIDs, t.ID)
		if t.AgreedFare != nil {
			st.TotalFare += *t.AgreedFare
		}
		switch {
		case t.PlatformCommission != nil:
			st.TotalCommission += *t.PlatformCommission
		case t.AgreedFare != nil:
			// Defensive recomputation for rows where the derived field is
			// stale or absent.
			st.TotalCommission += *commission.Derive(t.AgreedFare)
		}
	}

	out := make([]models.DriverStatement, 0, len(byDriver))
	for _, id := range order {
		out = append(out, *byDriver[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalCommission == out[j].TotalCommission {
			return out[i].DriverID < out[j].DriverID
		}
		return out[i].TotalCommission > out[j].TotalCommission
	})
	return out
}

// Collector places a hold for a settled statement's commission total.
type Collector interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
}

type Service struct {
	Store     storage.Store
	Collector Collector // optional
	Currency  string
	Logger    *slog.Logger
}

func NewService(store storage.Store, logger *slog.Logger) *Service {
	return &Service{Store: store, Currency: "kes", Logger: logger}
}

// Statements returns the current reconciliation working set.
func (s *Service) Statements(ctx context.Context) ([]models.DriverStatement, error) {
	trips, err := s.Store.ListUnsettledCompleted(ctx)
	if err != nil {
		return nil, err
	}
	return BuildStatements(trips), nil
}

type SettleCommand struct {
	DriverID string
	TripIDs  []string
	// Collect places a stripe hold for the settled commission when a
	// collector is configured.
	Collect bool
}

type SettleResult struct {
	SettledTrips    int     `json:"settled_trips"`
	TotalCommission float64 `json:"total_commission"`
	PaymentIntentID string  `json:"payment_intent_id,omitempty"`
}

// Settle marks exactly the snapshot of trips the dispatcher saw. Trips
// completed after the statement was built are untouched and surface in the
// next aggregation. Re-running with the same ids is a harmless no-op.
func (s *Service) Settle(ctx context.Context, cmd SettleCommand) (*SettleResult, error) {
	if cmd.DriverID == "" {
		return nil, &lifecycle.ValidationError{Field: "driver_id", Reason: "required"}
	}
	if len(cmd.TripIDs) == 0 {
		return nil, &lifecycle.ValidationError{Field: "trip_ids", Reason: "required"}
	}

	// Total what the snapshot is still worth before flagging it.
	eligible, err := s.Store.ListUnsettledCompleted(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(cmd.TripIDs))
	for _, id := range cmd.TripIDs {
		want[id] = true
	}
	var total float64
	var matched int
	for _, t := range eligible {
		if t.DriverID == nil || *t.DriverID != cmd.DriverID || !want[t.ID] {
			continue
		}
		matched++
		if t.PlatformCommission != nil {
			total += *t.PlatformCommission
		} else if t.AgreedFare != nil {
			total += *commission.Derive(t.AgreedFare)
		}
	}

	n, err := s.Store.MarkSettled(ctx, cmd.DriverID, cmd.TripIDs)
	if err != nil {
		return nil, err
	}

	res := &SettleResult{SettledTrips: n, TotalCommission: total}
	if n > 0 {
		observability.SettlementsTotal.Inc()
		observability.TripsSettled.Add(float64(n))
	}

	if cmd.Collect && s.Collector != nil && n > 0 && n == matched {
		cents := int64(math.Round(total * 100))
		pi, err := s.Collector.Hold(ctx, cents, s.Currency, "")
		if err != nil {
			// Trips stay settled; collection can be retried out of band.
			if s.Logger != nil {
				s.Logger.Error("commission hold failed", "driver_id", cmd.DriverID, "error", err)
			}
		} else {
			res.PaymentIntentID = pi
		}
	}
	return res, nil
}
