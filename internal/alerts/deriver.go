// Package alerts derives user-facing alerts from cauldron readings and
// discrete backend events. The deriver is a pure rule evaluator: it returns
// the upserts/removals to apply and never touches the store itself.
package alerts

import (
	"fmt"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/units"
)

// Actions is the outcome of one rule evaluation: alerts to upsert and alert
// IDs to remove. Removing an unknown ID is a safe no-op at the store.
type Actions struct {
	Upserts  []cauldronwatch.Alert
	Removals []string
}

// Deriver evaluates alert rules. The clock is injectable for tests.
type Deriver struct {
	now func() time.Time
}

func NewDeriver() *Deriver {
	return &Deriver{now: time.Now}
}

// OverfillID and UnderfillID build the deterministic per-cauldron alert IDs.
// Deterministic IDs make repeated conditions collapse to one entry.
func OverfillID(cauldronID string) string  { return "overfill_" + cauldronID }
func UnderfillID(cauldronID string) string { return "underfill_" + cauldronID }

// EvaluateLevel applies the threshold rules to one cauldron reading.
// Overfill and underfill are mutually exclusive: entering one removes the
// other. Readings with an empty cauldron id produce no actions.
func (d *Deriver) EvaluateLevel(cauldronID string, percentage int) Actions {
	if cauldronID == "" {
		return Actions{}
	}
	switch {
	case percentage > units.OverfillPct:
		return Actions{
			Upserts: []cauldronwatch.Alert{{
				ID:        OverfillID(cauldronID),
				Title:     "Overfill risk",
				Message:   fmt.Sprintf("Cauldron %s is at %d%% capacity", cauldronID, percentage),
				Severity:  cauldronwatch.SeverityCritical,
				Timestamp: d.now().UTC(),
			}},
			Removals: []string{UnderfillID(cauldronID)},
		}
	case percentage < units.UnderfillPct:
		return Actions{
			Upserts: []cauldronwatch.Alert{{
				ID:        UnderfillID(cauldronID),
				Title:     "Low level",
				Message:   fmt.Sprintf("Cauldron %s is down to %d%% capacity", cauldronID, percentage),
				Severity:  cauldronwatch.SeverityWarning,
				Timestamp: d.now().UTC(),
			}},
			Removals: []string{OverfillID(cauldronID)},
		}
	default:
		// 20 and 95 themselves count as normal.
		return Actions{
			Removals: []string{OverfillID(cauldronID), UnderfillID(cauldronID)},
		}
	}
}

// FromDrain builds the alert for a completed drain. The start time is the
// discriminator, so duplicate frame delivery is idempotent. Returns false
// when the event is missing its cauldron id.
func (d *Deriver) FromDrain(ev cauldronwatch.DrainEvent) (cauldronwatch.Alert, bool) {
	if ev.CauldronID == "" {
		return cauldronwatch.Alert{}, false
	}
	return cauldronwatch.Alert{
		ID:        fmt.Sprintf("drain_%s_%d", ev.CauldronID, ev.StartTime.UnixMilli()),
		Title:     "Drain completed",
		Message:   fmt.Sprintf("Cauldron %s drained %.1f L", ev.CauldronID, ev.VolumeDrained),
		Severity:  cauldronwatch.SeverityInfo,
		Timestamp: d.now().UTC(),
	}, true
}

// FromDiscrepancy builds the alert for a ticket/drain mismatch, keyed by
// ticket id. The payload severity is kept; an unknown value falls back to
// warning.
func (d *Deriver) FromDiscrepancy(dc cauldronwatch.Discrepancy) (cauldronwatch.Alert, bool) {
	if dc.CauldronID == "" {
		return cauldronwatch.Alert{}, false
	}
	severity := dc.Severity
	switch severity {
	case cauldronwatch.SeverityCritical, cauldronwatch.SeverityWarning, cauldronwatch.SeverityInfo:
	default:
		severity = cauldronwatch.SeverityWarning
	}
	return cauldronwatch.Alert{
		ID:        fmt.Sprintf("discrepancy_%s_%s", dc.CauldronID, dc.TicketID),
		Title:     "Ticket discrepancy",
		Message:   fmt.Sprintf("Ticket %s differs from measured drain by %.1f%% on cauldron %s", dc.TicketID, dc.DiscrepancyPercent, dc.CauldronID),
		Severity:  severity,
		Timestamp: d.now().UTC(),
	}, true
}
