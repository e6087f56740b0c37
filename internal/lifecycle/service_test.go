package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/example/cargo-dispatch/internal/audit"
	"github.com/example/cargo-dispatch/internal/commission"
	"github.com/example/cargo-dispatch/internal/models"
	"github.com/example/cargo-dispatch/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	store.PutDriver(models.Driver{ID: "d1", FullName: "John Mwangi", Phone: "0700000001", VehicleType: "lorry", RegistrationNo: "KBX 123A"})
	store.PutDriver(models.Driver{ID: "d2", FullName: "Peter Otieno", Phone: "0700000002", VehicleType: "pickup", RegistrationNo: "KCY 456B"})
	svc := NewService(store, &audit.StoreRecorder{Appender: store}, nil)
	return svc, store
}

func mustCreateTrip(t *testing.T, svc *Service, phone string) *models.Trip {
	t.Helper()
	trip, err := svc.Create(context.Background(), CreateCommand{
		CustomerName:    "Amina Hassan",
		CustomerPhone:   phone,
		LoadDescription: "20 bags of cement",
		PickupLocation:  "Industrial Area",
		DropoffLocation: "Nakuru",
		PickupTime:      time.Now().Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}
	return trip
}

func TestCreateTripStartsPending(t *testing.T) {
	svc, _ := newTestService(t)
	trip := mustCreateTrip(t, svc, "0711000001")
	if trip.Status != models.StatusPending {
		t.Fatalf("expected Pending, got %s", trip.Status)
	}
	if trip.DriverID != nil || trip.AgreedFare != nil || trip.PlatformCommission != nil {
		t.Fatal("new trip must have no driver, fare or commission")
	}
}

func TestCreateTripValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := []CreateCommand{
		{CustomerPhone: "0711", LoadDescription: "x", PickupLocation: "a", DropoffLocation: "b", PickupTime: time.Now()},           // no name
		{CustomerName: "A", LoadDescription: "x", PickupLocation: "a", DropoffLocation: "b", PickupTime: time.Now()},               // no phone
		{CustomerName: "A", CustomerPhone: "0711", PickupLocation: "a", DropoffLocation: "b", PickupTime: time.Now()},              // no load
		{CustomerName: "A", CustomerPhone: "0711", LoadDescription: "  ", PickupLocation: "a", DropoffLocation: "b", PickupTime: time.Now()}, // blank load
		{CustomerName: "A", CustomerPhone: "0711", LoadDescription: "x", DropoffLocation: "b", PickupTime: time.Now()},             // no pickup
		{CustomerName: "A", CustomerPhone: "0711", LoadDescription: "x", PickupLocation: "a", PickupTime: time.Now()},              // no dropoff
		{CustomerName: "A", CustomerPhone: "0711", LoadDescription: "x", PickupLocation: "a", DropoffLocation: "b"},                // no pickup time
	}
	for i, cmd := range cases {
		var ve *ValidationError
		if _, err := svc.Create(context.Background(), cmd); !errors.As(err, &ve) {
			t.Errorf("case %d: expected ValidationError, got %v", i, err)
		}
	}
}

func TestCreateTripReusesCustomerByPhone(t *testing.T) {
	svc, _ := newTestService(t)
	a := mustCreateTrip(t, svc, "0711000002")
	b := mustCreateTrip(t, svc, "0711000002")
	if a.CustomerID != b.CustomerID {
		t.Fatalf("expected same customer, got %s and %s", a.CustomerID, b.CustomerID)
	}
}

func TestAssignHappyPath(t *testing.T) {
	svc, store := newTestService(t)
	trip := mustCreateTrip(t, svc, "0711000003")

	got, err := svc.Assign(context.Background(), AssignCommand{TripID: trip.ID, DriverID: "d1", AgreedFare: 10000})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.Status != models.StatusConfirmed {
		t.Fatalf("expected Confirmed, got %s", got.Status)
	}
	if got.DriverID == nil || *got.DriverID != "d1" {
		t.Fatal("driver_id not set")
	}
	if got.AgreedFare == nil || *got.AgreedFare != 10000 {
		t.Fatal("agreed_fare not set")
	}
	if got.PlatformCommission == nil || *got.PlatformCommission != 1200 {
		t.Fatalf("commission not derived, got %v", got.PlatformCommission)
	}

	events := store.AuditEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	e := events[0]
	if e.Action != models.ActionStatusUpdate || e.RecordID != trip.ID {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.OldData["status"] != string(models.StatusPending) || e.NewData["status"] != string(models.StatusConfirmed) {
		t.Fatalf("event must capture old and new status: %+v", e)
	}
}

func TestAssignValidation(t *testing.T) {
	svc, _ := newTestService(t)
	trip := mustCreateTrip(t, svc, "0711000004")
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  AssignCommand
	}{
		{"no driver", AssignCommand{TripID: trip.ID, AgreedFare: 1000}},
		{"zero fare", AssignCommand{TripID: trip.ID, DriverID: "d1", AgreedFare: 0}},
		{"negative fare", AssignCommand{TripID: trip.ID, DriverID: "d1", AgreedFare: -50}},
		{"nan fare", AssignCommand{TripID: trip.ID, DriverID: "d1", AgreedFare: math.NaN()}},
		{"unknown driver", AssignCommand{TripID: trip.ID, DriverID: "ghost", AgreedFare: 1000}},
	}
	for _, tc := range cases {
		var ve *ValidationError
		if _, err := svc.Assign(ctx, tc.cmd); !errors.As(err, &ve) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}

	// nothing mutated
	got, err := svc.Get(ctx, trip.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusPending || got.DriverID != nil {
		t.Fatalf("rejected assigns must not mutate the trip: %+v", got)
	}
}

func TestAdvanceFullFlow(t *testing.T) {
	svc, store := newTestService(t)
	trip := mustCreateTrip(t, svc, "0711000005")
	ctx := context.Background()

	if _, err := svc.Assign(ctx, AssignCommand{TripID: trip.ID, DriverID: "d1", AgreedFare: 8000}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	got, err := svc.Advance(ctx, AdvanceCommand{TripID: trip.ID, Target: models.StatusInProgress})
	if err != nil {
		t.Fatalf("advance to In Progress: %v", err)
	}
	if got.Status != models.StatusInProgress {
		t.Fatalf("expected In Progress, got %s", got.Status)
	}
	got, err = svc.Advance(ctx, AdvanceCommand{TripID: trip.ID, Target: models.StatusCompleted})
	if err != nil {
		t.Fatalf("advance to Completed: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Fatalf("expected Completed, got %s", got.Status)
	}

	if n := len(store.AuditEvents()); n != 3 {
		t.Fatalf("expected 3 audit events (assign + 2 advances), got %d", n)
	}
}

func TestAdvanceRejectsInvalidTargets(t *testing.T) {
	svc, _ := newTestService(t)
	trip := mustCreateTrip(t, svc, "0711000006")
	ctx := context.Background()

	// Pending cannot advance at all: Confirmed requires the assign action,
	// and anything further is a skip.
	for _, target := range []models.TripStatus{models.StatusConfirmed, models.StatusInProgress, models.StatusCompleted} {
		if _, err := svc.Advance(ctx, AdvanceCommand{TripID: trip.ID, Target: target}); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Pending -> %s: expected ErrInvalidTransition, got %v", target, err)
		}
	}

	if _, err := svc.Assign(ctx, AssignCommand{TripID: trip.ID, DriverID: "d1", AgreedFare: 5000}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	// backward and skipping targets from Confirmed
	for _, target := range []models.TripStatus{models.StatusPending, models.StatusCompleted, models.StatusConfirmed} {
		if _, err := svc.Advance(ctx, AdvanceCommand{TripID: trip.ID, Target: target}); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Confirmed -> %s: expected ErrInvalidTransition, got %v", target, err)
		}
	}

	got, _ := svc.Get(ctx, trip.ID)
	if got.Status != models.StatusConfirmed {
		t.Fatalf("rejected transitions must not mutate status, got %s", got.Status)
	}
}

func TestAdvanceFromCompletedRejected(t *testing.T) {
	svc, _ := newTestService(t)
	trip := mustCreateTrip(t, svc, "0711000007")
	ctx := context.Background()

	if _, err := svc.Assign(ctx, AssignCommand{TripID: trip.ID, DriverID: "d1", AgreedFare: 5000}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Advance(ctx, AdvanceCommand{TripID: trip.ID, Target: models.StatusInProgress}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Advance(ctx, AdvanceCommand{TripID: trip.ID, Target: models.StatusCompleted}); err != nil {
		t.Fatal(err)
	}
	for _, target := range []models.TripStatus{models.StatusPending, models.StatusConfirmed, models.StatusInProgress, models.StatusCompleted} {
		if _, err := svc.Advance(ctx, AdvanceCommand{TripID: trip.ID, Target: target}); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Completed -> %s: expected ErrInvalidTransition, got %v", target, err)
		}
	}
}

func TestAssignUnknownTrip(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Assign(context.Background(), AssignCommand{TripID: "nope", DriverID: "d1", AgreedFare: 100}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentAssignSameTrip(t *testing.T) {
	svc, _ := newTestService(t)
	trip := mustCreateTrip(t, svc, "0711000008")
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		driverID := "d1"
		if i%2 == 1 {
			driverID = "d2"
		}
		fare := float64(1000 * (i + 1))
		wg.Add(1)
		go func(did string, f float64) {
			defer wg.Done()
			_, err := svc.Assign(ctx, AssignCommand{TripID: trip.ID, DriverID: did, AgreedFare: f})
			errs <- err
		}(driverID, fare)
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful assign, got %d", success)
	}

	got, err := svc.Get(ctx, trip.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusConfirmed || got.DriverID == nil {
		t.Fatalf("unexpected final state: %+v", got)
	}
	// the commission always matches the fare that won
	if *got.PlatformCommission != *commission.Derive(got.AgreedFare) {
		t.Fatalf("commission %v does not match fare %v", *got.PlatformCommission, *got.AgreedFare)
	}
}

func TestConcurrentAdvance(t *testing.T) {
	svc, _ := newTestService(t)
	trip := mustCreateTrip(t, svc, "0711000009")
	ctx := context.Background()
	if _, err := svc.Assign(ctx, AssignCommand{TripID: trip.ID, DriverID: "d1", AgreedFare: 5000}); err != nil {
		t.Fatal(err)
	}

	const attempts = 4
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Advance(ctx, AdvanceCommand{TripID: trip.ID, Target: models.StatusInProgress})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
		} else if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful advance, got %d", success)
	}
}

func TestAssignNotifiesDriver(t *testing.T) {
	svc, _ := newTestService(t)
	notifier := &captureNotifier{}
	svc.Notifier = notifier
	trip := mustCreateTrip(t, svc, "0711000010")

	if _, err := svc.Assign(context.Background(), AssignCommand{TripID: trip.ID, DriverID: "d2", AgreedFare: 7000}); err != nil {
		t.Fatal(err)
	}
	if notifier.driverID != "d2" {
		t.Fatalf("expected notice for d2, got %q", notifier.driverID)
	}
	if notifier.notice.TripID != trip.ID || notifier.notice.AgreedFare != 7000 {
		t.Fatalf("unexpected notice: %+v", notifier.notice)
	}
}

type captureNotifier struct {
	driverID string
	notice   models.AssignmentNotice
}

func (c *captureNotifier) NotifyAssignment(driverID string, n models.AssignmentNotice) error {
	c.driverID = driverID
	c.notice = n
	return nil
}

func TestUniqueTripIDs(t *testing.T) {
	svc, _ := newTestService(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		trip := mustCreateTrip(t, svc, fmt.Sprintf("07120%05d", i))
		if seen[trip.ID] {
			t.Fatalf("duplicate trip id %s", trip.ID)
		}
		seen[trip.ID] = true
	}
}
