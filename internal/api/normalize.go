package api

import (
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/units"
)

// The backend emits several payload shapes for the same entities. All
// fallbacks are resolved here, once, at the system boundary; internal code
// never branches on payload shape.
//
// Field precedence:
//
//	id:       cauldron_id > id
//	capacity: max_volume > capacity > 1000 (default)
//	name:     name > id

// rawCauldron mirrors the backend cauldron payload variants.
type rawCauldron struct {
	ID         string  `json:"id"`
	CauldronID string  `json:"cauldron_id"`
	Name       string  `json:"name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	MaxVolume  float64 `json:"max_volume"`
	Capacity   float64 `json:"capacity"`
}

// rawReading mirrors one level sample; Level is in liters.
type rawReading struct {
	CauldronID string    `json:"cauldron_id"`
	ID         string    `json:"id"`
	Level      float64   `json:"level"`
	Timestamp  time.Time `json:"timestamp"`
}

// Reading is a normalized level sample in liters.
type Reading struct {
	CauldronID string
	Level      float64
	Timestamp  time.Time
}

// PickID resolves the id precedence. Empty result means the item must be
// skipped by the caller.
func PickID(cauldronID, id string) string {
	if cauldronID != "" {
		return cauldronID
	}
	return id
}

// PickCapacity resolves the capacity precedence, falling back to the
// default when the backend omits both fields.
func PickCapacity(maxVolume, capacity float64) float64 {
	if maxVolume > 0 {
		return maxVolume
	}
	if capacity > 0 {
		return capacity
	}
	return units.DefaultCapacity
}

func normalizeCauldron(raw rawCauldron) (cauldronwatch.Cauldron, bool) {
	id := PickID(raw.CauldronID, raw.ID)
	if id == "" {
		return cauldronwatch.Cauldron{}, false
	}
	name := raw.Name
	if name == "" {
		name = id
	}
	return cauldronwatch.Cauldron{
		ID:        id,
		Name:      name,
		Latitude:  raw.Latitude,
		Longitude: raw.Longitude,
		Capacity:  PickCapacity(raw.MaxVolume, raw.Capacity),
		Status:    cauldronwatch.StatusNormal,
	}, true
}

func normalizeReading(raw rawReading) (Reading, bool) {
	id := PickID(raw.CauldronID, raw.ID)
	if id == "" {
		return Reading{}, false
	}
	return Reading{CauldronID: id, Level: raw.Level, Timestamp: raw.Timestamp}, true
}
