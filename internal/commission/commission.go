// Package commission derives the platform's cut of an agreed fare.
package commission

import "math"

// Rate is the platform-wide commission rate. Fixed across all corridors;
// there is no per-driver or per-corridor variation.
const Rate = 0.12

// Derive returns fare * Rate rounded to cents, or nil for a nil fare.
// The result is never set independently of the fare: callers recompute it
// on every fare change.
func Derive(agreedFare *float64) *float64 {
	if agreedFare == nil {
		return nil
	}
	c := round2(*agreedFare * Rate)
	return &c
}

// round2 rounds half away from zero to 2 decimal places. Rounding at
// derivation time keeps statement totals equal to the sum of the per-trip
// figures the dispatcher sees.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
