package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/example/cargo-dispatch/internal/audit"
	"github.com/example/cargo-dispatch/internal/commission"
	"github.com/example/cargo-dispatch/internal/models"
	"github.com/example/cargo-dispatch/internal/observability"
	"github.com/example/cargo-dispatch/internal/storage"
)

// Notifier pushes assignment notices to connected drivers. Best-effort.
type Notifier interface {
	NotifyAssignment(driverID string, n models.AssignmentNotice) error
}

type Service struct {
	Store    storage.Store
	Audit    audit.Recorder
	Notifier Notifier
	Logger   *slog.Logger
}

func NewService(store storage.Store, rec audit.Recorder, logger *slog.Logger) *Service {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Service{Store: store, Audit: rec, Logger: logger}
}

type CreateCommand struct {
	CustomerName    string
	CustomerPhone   string
	BusinessType    string
	LoadDescription string
	PickupLocation  string
	DropoffLocation string
	PickupTime      time.Time
}

type AssignCommand struct {
	TripID     string
	DriverID   string
	AgreedFare float64
}

type AdvanceCommand struct {
	TripID string
	Target models.TripStatus
}

// Create books a new trip in Pending with no driver and no fare. The
// customer is reused by phone lookup or created on first booking.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*models.Trip, error) {
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}

	cust, err := s.Store.FindCustomerByPhone(ctx, cmd.CustomerPhone)
	if errors.Is(err, storage.ErrNotFound) {
		cust = &models.Customer{
			ID:           newID(),
			FullName:     cmd.CustomerName,
			Phone:        cmd.CustomerPhone,
			BusinessType: cmd.BusinessType,
			CreatedAt:    time.Now(),
		}
		if err := s.Store.CreateCustomer(ctx, cust); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	now := time.Now()
	t := &models.Trip{
		ID:              newID(),
		CustomerID:      cust.ID,
		LoadDescription: cmd.LoadDescription,
		PickupLocation:  cmd.PickupLocation,
		DropoffLocation: cmd.DropoffLocation,
		PickupTime:      cmd.PickupTime,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Store.CreateTrip(ctx, t); err != nil {
		return nil, err
	}
	observability.TripsCreated.Inc()
	return t, nil
}

// Assign moves Pending -> Confirmed: sets the driver, the agreed fare and
// the derived commission in one conditional write.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*models.Trip, error) {
	if cmd.DriverID == "" {
		return nil, &ValidationError{Field: "driver_id", Reason: "no driver selected"}
	}
	if math.IsNaN(cmd.AgreedFare) || math.IsInf(cmd.AgreedFare, 0) {
		return nil, &ValidationError{Field: "agreed_fare", Reason: "not a valid number"}
	}
	if cmd.AgreedFare <= 0 {
		return nil, &ValidationError{Field: "agreed_fare", Reason: "must be positive"}
	}

	t, err := s.getTrip(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(t.Status, models.StatusConfirmed) {
		return nil, ErrInvalidTransition
	}
	if _, err := s.Store.GetDriver(ctx, cmd.DriverID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &ValidationError{Field: "driver_id", Reason: "unknown driver"}
		}
		return nil, err
	}

	comm := commission.Derive(&cmd.AgreedFare)
	ok, err := s.Store.AssignDriver(ctx, cmd.TripID, cmd.DriverID, cmd.AgreedFare, *comm)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	s.Audit.Record(ctx, audit.StatusUpdate(cmd.TripID, models.StatusPending, models.StatusConfirmed))
	observability.StatusTransitions.WithLabelValues(string(models.StatusPending), string(models.StatusConfirmed)).Inc()

	if s.Notifier != nil {
		notice := models.AssignmentNotice{
			TripID:     t.ID,
			DriverID:   cmd.DriverID,
			Pickup:     t.PickupLocation,
			Dropoff:    t.DropoffLocation,
			AgreedFare: cmd.AgreedFare,
		}
		if err := s.Notifier.NotifyAssignment(cmd.DriverID, notice); err != nil && s.Logger != nil {
			s.Logger.Warn("assignment notify failed", "trip_id", t.ID, "driver_id", cmd.DriverID, "error", err)
		}
	}

	return s.getTrip(ctx, cmd.TripID)
}

// Advance performs a pure status transition (Confirmed -> In Progress,
// In Progress -> Completed). The target must be the exact successor.
func (s *Service) Advance(ctx context.Context, cmd AdvanceCommand) (*models.Trip, error) {
	t, err := s.getTrip(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(t.Status, cmd.Target) {
		return nil, ErrInvalidTransition
	}
	// Assignment carries required data; it is not a bare status write.
	if t.Status == models.StatusPending {
		return nil, ErrInvalidTransition
	}

	ok, err := s.Store.UpdateStatus(ctx, cmd.TripID, t.Status, cmd.Target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.Audit.Record(ctx, audit.StatusUpdate(cmd.TripID, t.Status, cmd.Target))
	observability.StatusTransitions.WithLabelValues(string(t.Status), string(cmd.Target)).Inc()
	return s.getTrip(ctx, cmd.TripID)
}

func (s *Service) Get(ctx context.Context, id string) (*models.Trip, error) {
	return s.getTrip(ctx, id)
}

func (s *Service) getTrip(ctx context.Context, id string) (*models.Trip, error) {
	t, err := s.Store.GetTrip(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return t, err
}

func validateCreate(cmd CreateCommand) error {
	switch {
	case strings.TrimSpace(cmd.CustomerName) == "":
		return &ValidationError{Field: "customer_name", Reason: "required"}
	case strings.TrimSpace(cmd.CustomerPhone) == "":
		return &ValidationError{Field: "customer_phone", Reason: "required"}
	case strings.TrimSpace(cmd.LoadDescription) == "":
		return &ValidationError{Field: "load_description", Reason: "required"}
	case strings.TrimSpace(cmd.PickupLocation) == "":
		return &ValidationError{Field: "pickup_location", Reason: "required"}
	case strings.TrimSpace(cmd.DropoffLocation) == "":
		return &ValidationError{Field: "dropoff_location", Reason: "required"}
	case cmd.PickupTime.IsZero():
		return &ValidationError{Field: "pickup_time", Reason: "required"}
	}
	return nil
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
