// Package verification compares the amounts reported independently by
// customer and driver after a trip. The check is advisory: it only appends
// to the audit trail, it never blocks the write or mutates the trip.
package verification

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/example/cargo-dispatch/internal/audit"
	"github.com/example/cargo-dispatch/internal/lifecycle"
	"github.com/example/cargo-dispatch/internal/models"
	"github.com/example/cargo-dispatch/internal/observability"
	"github.com/example/cargo-dispatch/internal/storage"
)

const (
	MatchMessage    = "Amounts verified successfully by both parties."
	MismatchMessage = "Discrepancy detected! Customer and driver reported different amounts."
)

// Alerter notifies a dispatcher-facing channel about mismatches.
type Alerter interface {
	MismatchAlert(ctx context.Context, tripID string, customerAmt, driverAmt float64)
}

type Service struct {
	Store  storage.Store
	Audit  audit.Recorder
	Alerts Alerter // optional
}

func NewService(store storage.Store, rec audit.Recorder) *Service {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Service{Store: store, Audit: rec}
}

type RecordCommand struct {
	TripID string
	Party  storage.VerifiedParty
	Amount float64
}

// Record stores one party's reported amount, then runs the mismatch check
// if both sides have now reported and this write changed one of them.
func (s *Service) Record(ctx context.Context, cmd RecordCommand) (*models.Trip, error) {
	if cmd.Party != storage.PartyCustomer && cmd.Party != storage.PartyDriver {
		return nil, &lifecycle.ValidationError{Field: "party", Reason: "must be customer or driver"}
	}
	if math.IsNaN(cmd.Amount) || math.IsInf(cmd.Amount, 0) {
		return nil, &lifecycle.ValidationError{Field: "amount", Reason: "not a valid number"}
	}
	if cmd.Amount < 0 {
		return nil, &lifecycle.ValidationError{Field: "amount", Reason: "must not be negative"}
	}

	before, err := s.Store.GetTrip(ctx, cmd.TripID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, lifecycle.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.Store.SetVerifiedAmount(ctx, cmd.TripID, cmd.Party, cmd.Amount); err != nil {
		return nil, err
	}

	custAmt, drvAmt := before.CustomerVerifiedAmount, before.DriverVerifiedAmount
	changed := false
	switch cmd.Party {
	case storage.PartyCustomer:
		changed = custAmt == nil || *custAmt != cmd.Amount
		custAmt = &cmd.Amount
	case storage.PartyDriver:
		changed = drvAmt == nil || *drvAmt != cmd.Amount
		drvAmt = &cmd.Amount
	}

	// Fire only when both sides have reported and this update actually
	// changed one of them; unrelated re-writes must not re-emit events.
	if custAmt != nil && drvAmt != nil && changed {
		s.check(ctx, cmd.TripID, *custAmt, *drvAmt)
	}

	after, err := s.Store.GetTrip(ctx, cmd.TripID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, lifecycle.ErrNotFound
	}
	return after, err
}

// check uses exact equality. Tolerance bands would change product intent.
func (s *Service) check(ctx context.Context, tripID string, customerAmt, driverAmt float64) {
	payload := map[string]any{
		"customer_amount": customerAmt,
		"driver_amount":   driverAmt,
	}
	e := models.AuditEvent{
		TableName: "trips",
		RecordID:  tripID,
		Action:    models.ActionVerificationMatch,
		NewData:   payload,
		Message:   MatchMessage,
		CreatedAt: time.Now(),
	}
	outcome := "match"
	if customerAmt != driverAmt {
		e.Action = models.ActionVerificationMismatch
		e.Message = MismatchMessage
		outcome = "mismatch"
		if s.Alerts != nil {
			s.Alerts.MismatchAlert(ctx, tripID, customerAmt, driverAmt)
		}
	}
	s.Audit.Record(ctx, e)
	observability.VerificationChecks.WithLabelValues(outcome).Inc()
}
