package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/cargo-dispatch/internal/models"
)

var ErrNotFound = errors.New("record not found")

// VerifiedParty selects which side of the two-sided verification a reported
// amount belongs to.
type VerifiedParty string

const (
	PartyCustomer VerifiedParty = "customer"
	PartyDriver   VerifiedParty = "driver"
)

// Store defines the persistence operations the dispatch core requires. The
// backing relational database is treated as a black box behind it.
type Store interface {
	CreateTrip(ctx context.Context, t *models.Trip) error
	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	ListTripsByStatus(ctx context.Context, status models.TripStatus) ([]models.Trip, error)
	// ListUnsettledCompleted returns completed trips whose commission has not
	// been settled, the reconciliation working set.
	ListUnsettledCompleted(ctx context.Context) ([]models.Trip, error)

	// AssignDriver is a conditional write: it succeeds only while the trip is
	// still Pending with no driver, so two dispatchers cannot both win.
	AssignDriver(ctx context.Context, tripID, driverID string, fare, commission float64) (bool, error)
	// UpdateStatus moves a trip from exactly `from` to `to`; false means the
	// guard failed (someone else got there first).
	UpdateStatus(ctx context.Context, tripID string, from, to models.TripStatus) (bool, error)
	SetVerifiedAmount(ctx context.Context, tripID string, party VerifiedParty, amount float64) error
	// MarkSettled flags commission_settled on exactly the given trips for the
	// given driver, skipping rows that are not completed-and-unsettled.
	// Returns the number of rows flagged. Never partial on store error.
	MarkSettled(ctx context.Context, driverID string, tripIDs []string) (int, error)

	FindCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error)
	CreateCustomer(ctx context.Context, c *models.Customer) error

	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	ListDrivers(ctx context.Context) ([]models.Driver, error)
	// DriverCorridors returns the corridor names linked to a driver.
	DriverCorridors(ctx context.Context, driverID string) ([]string, error)

	AppendAudit(ctx context.Context, e models.AuditEvent) error
}

// MemoryStore backs tests and local runs with no database around.
type MemoryStore struct {
	mu        sync.RWMutex
	trips     map[string]*models.Trip
	customers map[string]*models.Customer
	drivers   map[string]*models.Driver
	corridors map[string][]string // driver id -> corridor names
	audit     []models.AuditEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trips:     make(map[string]*models.Trip),
		customers: make(map[string]*models.Customer),
		drivers:   make(map[string]*models.Driver),
		corridors: make(map[string][]string),
	}
}

func (m *MemoryStore) CreateTrip(ctx context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.trips[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListTripsByStatus(ctx context.Context, status models.TripStatus) ([]models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Trip
	for _, t := range m.trips {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	sortTrips(out)
	return out, nil
}

func (m *MemoryStore) ListUnsettledCompleted(ctx context.Context) ([]models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Trip
	for _, t := range m.trips {
		if t.Status == models.StatusCompleted && !t.CommissionSettled {
			out = append(out, *t)
		}
	}
	sortTrips(out)
	return out, nil
}

func (m *MemoryStore) AssignDriver(ctx context.Context, tripID, driverID string, fare, commission float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != models.StatusPending || t.DriverID != nil {
		return false, nil
	}
	t.DriverID = &driverID
	t.AgreedFare = &fare
	t.PlatformCommission = &commission
	t.Status = models.StatusConfirmed
	t.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, tripID string, from, to models.TripStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) SetVerifiedAmount(ctx context.Context, tripID string, party VerifiedParty, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return ErrNotFound
	}
	a := amount
	if party == PartyCustomer {
		t.CustomerVerifiedAmount = &a
	} else {
		t.DriverVerifiedAmount = &a
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) MarkSettled(ctx context.Context, driverID string, tripIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range tripIDs {
		t, ok := m.trips[id]
		if !ok {
			continue
		}
		if t.DriverID == nil || *t.DriverID != driverID {
			continue
		}
		if t.Status != models.StatusCompleted || t.CommissionSettled {
			continue
		}
		t.CommissionSettled = true
		t.UpdatedAt = time.Now()
		n++
	}
	return n, nil
}

func (m *MemoryStore) FindCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.customers {
		if c.Phone == phone {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DriverCorridors(ctx context.Context, driverID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.corridors[driverID]...), nil
}

// PutDriver seeds a driver; driver onboarding is out of this core's write path.
func (m *MemoryStore) PutDriver(d models.Driver, corridors ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := d
	if cp.ReliabilityScore == 0 {
		cp.ReliabilityScore = 100
	}
	m.drivers[d.ID] = &cp
	if len(corridors) > 0 {
		m.corridors[d.ID] = corridors
	}
}

func (m *MemoryStore) AppendAudit(ctx context.Context, e models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

// AuditEvents exposes the recorded trail for tests.
func (m *MemoryStore) AuditEvents() []models.AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AuditEvent(nil), m.audit...)
}

func sortTrips(trips []models.Trip) {
	sort.Slice(trips, func(i, j int) bool {
		if trips[i].CreatedAt.Equal(trips[j].CreatedAt) {
			return strings.Compare(trips[i].ID, trips[j].ID) < 0
		}
		return trips[i].CreatedAt.Before(trips[j].CreatedAt)
	})
}
