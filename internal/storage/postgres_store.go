package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/example/cargo-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) CreateTrip(ctx context.Context, t *models.Trip) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO trips(id, customer_id, driver_id, load_description, pickup_location, dropoff_location,
			pickup_time, agreed_fare, platform_commission, status,
			customer_verified_amount, driver_verified_amount, commission_paid, commission_settled,
			created_at, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		t.ID, t.CustomerID, t.DriverID, t.LoadDescription, t.PickupLocation, t.DropoffLocation,
		t.PickupTime, t.AgreedFare, t.PlatformCommission, string(t.Status),
		t.CustomerVerifiedAmount, t.DriverVerifiedAmount, t.CommissionPaid, t.CommissionSettled,
		t.CreatedAt, t.UpdatedAt)
	return err
}

const tripColumns = `id, customer_id, driver_id, load_description, pickup_location, dropoff_location,
	pickup_time, agreed_fare, platform_commission, status,
	customer_verified_amount, driver_verified_amount, commission_paid, commission_settled,
	created_at, updated_at`

func (p *PostgresStore) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=$1`, id)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (p *PostgresStore) ListTripsByStatus(ctx context.Context, status models.TripStatus) ([]models.Trip, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE status=$1 ORDER BY created_at, id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrips(rows)
}

func (p *PostgresStore) ListUnsettledCompleted(ctx context.Context) ([]models.Trip, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+tripColumns+` FROM trips
		 WHERE status=$1 AND commission_settled=false ORDER BY created_at, id`,
		string(models.StatusCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrips(rows)
}

// AssignDriver only wins while the trip is still Pending and unassigned,
// so concurrent dispatchers cannot both set a driver.
func (p *PostgresStore) AssignDriver(ctx context.Context, tripID, driverID string, fare, commission float64) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE trips SET driver_id=$1, agreed_fare=$2, platform_commission=$3, status=$4, updated_at=$5
		 WHERE id=$6 AND status=$7 AND driver_id IS NULL`,
		driverID, fare, commission, string(models.StatusConfirmed), time.Now(),
		tripID, string(models.StatusPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, tripID string, from, to models.TripStatus) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE trips SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4`,
		string(to), time.Now(), tripID, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (p *PostgresStore) SetVerifiedAmount(ctx context.Context, tripID string, party VerifiedParty, amount float64) error {
	col := "driver_verified_amount"
	if party == PartyCustomer {
		col = "customer_verified_amount"
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE trips SET `+col+`=$1, updated_at=$2 WHERE id=$3`, amount, time.Now(), tripID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSettled is a single UPDATE, so a store failure leaves every trip in
// the statement unsettled rather than half-flagged.
func (p *PostgresStore) MarkSettled(ctx context.Context, driverID string, tripIDs []string) (int, error) {
	if len(tripIDs) == 0 {
		return 0, nil
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE trips SET commission_settled=true, updated_at=$1
		 WHERE driver_id=$2 AND id=ANY($3) AND status=$4 AND commission_settled=false`,
		time.Now(), driverID, pq.Array(tripIDs), string(models.StatusCompleted))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *PostgresStore) FindCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, full_name, phone, COALESCE(business_type,''), created_at FROM customers WHERE phone=$1`, phone)
	var c models.Customer
	err := row.Scan(&c.ID, &c.FullName, &c.Phone, &c.BusinessType, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO customers(id, full_name, phone, business_type, created_at) VALUES($1,$2,$3,$4,$5)`,
		c.ID, c.FullName, c.Phone, nullString(c.BusinessType), c.CreatedAt)
	return err
}

func (p *PostgresStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, full_name, phone, vehicle_type, registration_no, COALESCE(sacco,''), reliability_score, created_at
		 FROM drivers WHERE id=$1`, id)
	var d models.Driver
	err := row.Scan(&d.ID, &d.FullName, &d.Phone, &d.VehicleType, &d.RegistrationNo, &d.Sacco, &d.ReliabilityScore, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *PostgresStore) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, full_name, phone, vehicle_type, registration_no, COALESCE(sacco,''), reliability_score, created_at
		 FROM drivers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Driver
	for rows.Next() {
		var d models.Driver
		if err := rows.Scan(&d.ID, &d.FullName, &d.Phone, &d.VehicleType, &d.RegistrationNo, &d.Sacco, &d.ReliabilityScore, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DriverCorridors(ctx context.Context, driverID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT c.name FROM corridors c JOIN driver_corridors dc ON dc.corridor_id = c.id WHERE dc.driver_id=$1`,
		driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (p *PostgresStore) AppendAudit(ctx context.Context, e models.AuditEvent) error {
	oldData, _ := json.Marshal(e.OldData)
	newData, _ := json.Marshal(e.NewData)
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO audit_log(table_name, record_id, action, old_data, new_data, message, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7)`,
		e.TableName, e.RecordID, e.Action, oldData, newData, e.Message, e.CreatedAt)
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTrip(row scannable) (*models.Trip, error) {
	var t models.Trip
	var driverID, status sql.NullString
	var fare, comm, custAmt, drvAmt sql.NullFloat64
	err := row.Scan(&t.ID, &t.CustomerID, &driverID, &t.LoadDescription, &t.PickupLocation, &t.DropoffLocation,
		&t.PickupTime, &fare, &comm, &status,
		&custAmt, &drvAmt, &t.CommissionPaid, &t.CommissionSettled,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if driverID.Valid {
		t.DriverID = &driverID.String
	}
	if fare.Valid {
		t.AgreedFare = &fare.Float64
	}
	if comm.Valid {
		t.PlatformCommission = &comm.Float64
	}
	if custAmt.Valid {
		t.CustomerVerifiedAmount = &custAmt.Float64
	}
	if drvAmt.Valid {
		t.DriverVerifiedAmount = &drvAmt.Float64
	}
	t.Status = models.TripStatus(status.String)
	return &t, nil
}

func collectTrips(rows *sql.Rows) ([]models.Trip, error) {
	var out []models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
