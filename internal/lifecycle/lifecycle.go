// Package lifecycle enforces the trip status flow and applies dispatcher
// actions through conditional writes.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/example/cargo-dispatch/internal/models"
)

var (
	ErrNotFound          = errors.New("trip not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict means the conditional write lost: the trip no longer
	// matched the expected pre-state when the update ran.
	ErrConflict = errors.New("trip state conflict")
)

// ValidationError reports invalid input to an action. No mutation happens
// when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// successor maps each status to the only status it may advance to.
// Forward-only, one step at a time; Completed is terminal.
var successor = map[models.TripStatus]models.TripStatus{
	models.StatusPending:    models.StatusConfirmed,
	models.StatusConfirmed:  models.StatusInProgress,
	models.StatusInProgress: models.StatusCompleted,
}

// NextStatus returns the successor of s, or false if s is terminal.
func NextStatus(s models.TripStatus) (models.TripStatus, bool) {
	n, ok := successor[s]
	return n, ok
}

// CanTransition reports whether from may move to to. Only the exact
// successor is accepted; skips and backward moves are rejected.
func CanTransition(from, to models.TripStatus) bool {
	n, ok := successor[from]
	return ok && n == to
}
