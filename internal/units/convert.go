// Package units holds pure conversions between absolute volumes (liters)
// and normalized fill percentages, plus status classification.
package units

import (
	"errors"
	"math"

	"cauldronwatch"
)

// ErrInvalidCapacity is returned when a capacity is zero or negative.
// Callers must skip the reading rather than treat it as 0% or 100%.
var ErrInvalidCapacity = errors.New("capacity must be positive")

// Default classification thresholds (percent). 20 and 95 themselves are normal.
const (
	OverfillPct  = 95
	UnderfillPct = 20
)

// DefaultCapacity is assumed when the backend omits a cauldron's max volume.
const DefaultCapacity = 1000.0

// ToPercentage converts a level in liters to an integer percentage of
// capacity, rounded and clamped to [0,100].
func ToPercentage(levelLiters, capacity float64) (int, error) {
	if capacity <= 0 {
		return 0, ErrInvalidCapacity
	}
	pct := int(math.Round(levelLiters / capacity * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct, nil
}

// Classify returns the status for a percentage. An explicit upstream status
// wins verbatim; filling/draining can only come from such a signal, never
// from the level alone.
func Classify(percentage int, explicit cauldronwatch.Status) cauldronwatch.Status {
	if explicit != "" {
		return explicit
	}
	switch {
	case percentage > OverfillPct:
		return cauldronwatch.StatusOverfill
	case percentage < UnderfillPct:
		return cauldronwatch.StatusUnderfill
	default:
		return cauldronwatch.StatusNormal
	}
}
