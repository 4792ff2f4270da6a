package cauldronwatch

import "time"

// Status classifies a cauldron's fill condition.
type Status string

const (
	StatusUnderfill Status = "underfill"
	StatusNormal    Status = "normal"
	StatusFilling   Status = "filling"
	StatusDraining  Status = "draining"
	StatusOverfill  Status = "overfill"
)

// Alert severity levels.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Cauldron is a monitored vessel. Level is a percentage of Capacity (liters).
type Cauldron struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Capacity  float64 `json:"capacity"`
	Level     int     `json:"level"`
	Status    Status  `json:"status"`
}

// Market is the single delivery endpoint of the pickup network.
type Market struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description,omitempty"`
}

// Alert is a user-facing notification. IDs are deterministic (kind plus
// cauldron/ticket/start-time discriminator) so repeated conditions collapse
// to a single entry.
type Alert struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"` // critical | warning | info
	Timestamp time.Time `json:"timestamp"`
}

// LevelUpdate is a single percentage delta for one cauldron.
type LevelUpdate struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

// SnapshotCauldron is one cauldron's reading inside a history snapshot.
type SnapshotCauldron struct {
	ID          string  `json:"id"`
	Level       int     `json:"level"`
	Status      Status  `json:"status"`
	DrainVolume float64 `json:"drain_volume,omitempty"`
	Discrepancy float64 `json:"discrepancy,omitempty"`
	AlertCount  int     `json:"alert_count,omitempty"`
}

// HistorySnapshot is one point-in-time reading across all cauldrons.
// Live marks the synthesized rightmost column built from current state.
type HistorySnapshot struct {
	Time      string             `json:"time"`
	Timestamp int64              `json:"timestamp"` // epoch millis
	AvgLevel  float64            `json:"avg_level"`
	Cauldrons []SnapshotCauldron `json:"cauldrons"`
	Live      bool               `json:"live,omitempty"`
}

// DrainEvent is a discrete record of liquid removed from a cauldron.
type DrainEvent struct {
	CauldronID    string    `json:"cauldron_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time,omitempty"`
	VolumeDrained float64   `json:"volume_drained"`
}

// Discrepancy is a mismatch between a shipping ticket's claimed volume and
// the measured drained volume.
type Discrepancy struct {
	TicketID           string  `json:"ticket_id"`
	CauldronID         string  `json:"cauldron_id"`
	Date               string  `json:"date,omitempty"`
	TicketVolume       float64 `json:"ticket_volume,omitempty"`
	ActualDrained      float64 `json:"actual_drained,omitempty"`
	DiscrepancyPercent float64 `json:"discrepancy_percent"`
	Severity           string  `json:"severity"`
}

// DiscrepancyReport carries the discrepancy list plus the backend's counts.
type DiscrepancyReport struct {
	Discrepancies      []Discrepancy `json:"discrepancies"`
	TotalDiscrepancies int           `json:"total_discrepancies"`
	CriticalCount      int           `json:"critical_count"`
	WarningCount       int           `json:"warning_count"`
	InfoCount          int           `json:"info_count"`
}

// SyncEvent is a single entry in the daemon's sync lifecycle log.
type SyncEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // BOOTSTRAP | CONNECTED | RECONNECT | DRAIN | DISCREPANCY | DEGRADED
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // don't expose hash
}
