package models

import "time"

// TripStatus values are ordered; a trip only ever moves forward one step.
type TripStatus string

const (
	StatusPending    TripStatus = "Pending"
	StatusConfirmed  TripStatus = "Confirmed"
	StatusInProgress TripStatus = "In Progress"
	StatusCompleted  TripStatus = "Completed"
)

type Customer struct {
	ID           string    `json:"id"`
	FullName     string    `json:"full_name"`
	Phone        string    `json:"phone"` // unique
	BusinessType string    `json:"business_type,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Driver struct {
	ID               string    `json:"id"`
	FullName         string    `json:"full_name"`
	Phone            string    `json:"phone"` // unique
	VehicleType      string    `json:"vehicle_type"`
	RegistrationNo   string    `json:"registration_no"` // unique
	Sacco            string    `json:"sacco,omitempty"`
	ReliabilityScore int       `json:"reliability_score"` // ranking hint only, default 100
	CreatedAt        time.Time `json:"created_at"`
}

// Corridor is a named route/region used as a matchmaking display hint.
type Corridor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Trip struct {
	ID              string    `json:"id"`
	CustomerID      string    `json:"customer_id"`
	DriverID        *string   `json:"driver_id,omitempty"` // nil until assignment
	LoadDescription string    `json:"load_description"`
	PickupLocation  string    `json:"pickup_location"`
	DropoffLocation string    `json:"dropoff_location"`
	PickupTime      time.Time `json:"pickup_time"`
	AgreedFare      *float64  `json:"agreed_fare,omitempty"` // nil while Pending
	// PlatformCommission is derived from AgreedFare and never set on its own.
	PlatformCommission *float64   `json:"platform_commission,omitempty"`
	Status             TripStatus `json:"status"`

	CustomerVerifiedAmount *float64 `json:"customer_verified_amount,omitempty"`
	DriverVerifiedAmount   *float64 `json:"driver_verified_amount,omitempty"`

	CommissionPaid    bool `json:"commission_paid"`
	CommissionSettled bool `json:"commission_settled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditEvent is one append-only row in the audit trail. It is never read
// back by this service; it exists for external inspection.
type AuditEvent struct {
	TableName string         `json:"table_name"`
	RecordID  string         `json:"record_id"`
	Action    string         `json:"action"`
	OldData   map[string]any `json:"old_data,omitempty"`
	NewData   map[string]any `json:"new_data,omitempty"`
	Message   string         `json:"message,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	ActionStatusUpdate         = "STATUS_UPDATE"
	ActionVerificationMatch    = "VERIFICATION_MATCH"
	ActionVerificationMismatch = "VERIFICATION_MISMATCH"
)

// DriverStatement is the per-driver aggregation of completed, unsettled
// trips shown on the reconciliation screen.
type DriverStatement struct {
	DriverID        string   `json:"driver_id"`
	TripIDs         []string `json:"trip_ids"`
	TotalFare       float64  `json:"total_fare"`
	TotalCommission float64  `json:"total_commission"`
}

// Presence is a driver availability heartbeat, published by driver apps and
// mirrored into redis by the consumer.
type Presence struct {
	DriverID string    `json:"driver_id"`
	Corridor string    `json:"corridor,omitempty"`
	Online   bool      `json:"online"`
	SeenAt   time.Time `json:"seen_at"`
}

// AssignmentNotice is pushed over the websocket feed when a driver is
// assigned to a trip.
type AssignmentNotice struct {
	TripID     string  `json:"trip_id"`
	DriverID   string  `json:"driver_id"`
	Pickup     string  `json:"pickup"`
	Dropoff    string  `json:"dropoff"`
	AgreedFare float64 `json:"agreed_fare"`
}
