// Package store holds the single source of truth for reconciled dashboard
// state. REST snapshots and socket deltas only ever enter through the
// mutation methods here, so every reader observes each batch atomically.
package store

import (
	"sort"
	"sync"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/logger"
	"cauldronwatch/internal/units"
)

const (
	maxAlerts           = 50
	maxHistorySnapshots = 500
)

// Store is the central mutable state container. Construct one at startup
// and pass it by reference; there is no package-level instance.
type Store struct {
	mu sync.RWMutex

	cauldrons []cauldronwatch.Cauldron
	index     map[string]int // cauldron id -> slice position
	market    *cauldronwatch.Market
	alerts    []cauldronwatch.Alert
	history   []cauldronwatch.HistorySnapshot
	pending   []cauldronwatch.LevelUpdate

	lastUpdate int64 // monotonic change token (unix nanos)
	degraded   bool
	subs       []chan struct{}

	log *logger.Logger
	now func() time.Time
}

func New(log *logger.Logger) *Store {
	return &Store{
		index: make(map[string]int),
		log:   log,
		now:   time.Now,
	}
}

// ReplaceCauldrons wholesale-replaces the cauldron collection, then drains
// the pending update queue exactly once: deltas that arrived before the
// reference data are applied now and the queue is cleared.
func (s *Store) ReplaceCauldrons(list []cauldronwatch.Cauldron) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cauldrons = make([]cauldronwatch.Cauldron, len(list))
	copy(s.cauldrons, list)
	s.index = make(map[string]int, len(list))
	for i := range s.cauldrons {
		if s.cauldrons[i].Name == "" {
			s.cauldrons[i].Name = s.cauldrons[i].ID
		}
		s.index[s.cauldrons[i].ID] = i
	}

	if n := len(s.pending); n > 0 {
		for _, u := range s.pending {
			s.setLevelLocked(u.ID, u.Level)
		}
		s.pending = nil
		s.log.Infow("pending_updates_drained", "count", n)
	}
	s.touchLocked()
}

// SetLevel updates a single cauldron's level. Unknown ids are a no-op.
func (s *Store) SetLevel(id string, percentage int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setLevelLocked(id, percentage) {
		s.touchLocked()
	}
}

// BatchUpdateLevels applies a batch of deltas in one atomic transition.
// While the cauldron collection is empty the batch is queued instead, so
// updates arriving before reference data are deferred, never lost.
func (s *Store) BatchUpdateLevels(updates []cauldronwatch.LevelUpdate) {
	if len(updates) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cauldrons) == 0 {
		s.pending = append(s.pending, updates...)
		return
	}
	changed := false
	for _, u := range updates {
		if s.setLevelLocked(u.ID, u.Level) {
			changed = true
		}
	}
	if changed {
		s.touchLocked()
	}
}

// AddAlert upserts by alert id: a second add with the same id updates the
// entry in place. The list is capped at the most recent entries.
func (s *Store) AddAlert(a cauldronwatch.Alert) {
	if a.ID == "" {
		s.log.Warnw("alert_missing_id_dropped", "title", a.Title)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID == a.ID {
			s.alerts[i] = a
			s.touchLocked()
			return
		}
	}
	s.alerts = append(s.alerts, a)
	if len(s.alerts) > maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-maxAlerts:]
	}
	s.touchLocked()
}

// RemoveAlert deletes by id. Unknown ids are a safe no-op.
func (s *Store) RemoveAlert(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts = append(s.alerts[:i], s.alerts[i+1:]...)
			s.touchLocked()
			return
		}
	}
}

// PushHistorySnapshot appends a snapshot, keeping ascending timestamp order
// and dropping the oldest entries beyond the cap.
func (s *Store) PushHistorySnapshot(snap cauldronwatch.HistorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, snap)
	// Out-of-order REST responses can interleave; keep the invariant here.
	if n := len(s.history); n > 1 && s.history[n-1].Timestamp < s.history[n-2].Timestamp {
		sort.SliceStable(s.history, func(i, j int) bool {
			return s.history[i].Timestamp < s.history[j].Timestamp
		})
	}
	if len(s.history) > maxHistorySnapshots {
		s.history = s.history[len(s.history)-maxHistorySnapshots:]
	}
	s.touchLocked()
}

// ApplyHistorySnapshot projects a historical snapshot's levels onto the live
// cauldron view, as a visualization aid. History itself is untouched.
// Out-of-range indexes are a no-op.
func (s *Store) ApplyHistorySnapshot(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.history) {
		return
	}
	changed := false
	for _, sc := range s.history[index].Cauldrons {
		if s.setLevelLocked(sc.ID, sc.Level) {
			changed = true
		}
	}
	if changed {
		s.touchLocked()
	}
}

// LiveSnapshot synthesizes the "live column": a snapshot built from current
// state, never served from cache.
func (s *Store) LiveSnapshot() cauldronwatch.HistorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	snap := cauldronwatch.HistorySnapshot{
		Time:      now.Format("15:04"),
		Timestamp: now.UnixMilli(),
		Live:      true,
		Cauldrons: make([]cauldronwatch.SnapshotCauldron, 0, len(s.cauldrons)),
	}
	sum := 0
	for _, c := range s.cauldrons {
		snap.Cauldrons = append(snap.Cauldrons, cauldronwatch.SnapshotCauldron{
			ID:     c.ID,
			Level:  c.Level,
			Status: c.Status,
		})
		sum += c.Level
	}
	if len(s.cauldrons) > 0 {
		snap.AvgLevel = float64(sum) / float64(len(s.cauldrons))
	}
	return snap
}

// SetMarket records the market node loaded at bootstrap.
func (s *Store) SetMarket(m cauldronwatch.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.market = &m
	s.touchLocked()
}

// SetDegraded flips the persistent "no backend" signal. The UI shows this
// state explicitly; no synthetic data is ever substituted.
func (s *Store) SetDegraded(degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded == degraded {
		return
	}
	s.degraded = degraded
	s.touchLocked()
}

// Subscribe returns a channel that receives a signal after mutations, plus
// a cancel func. Signals are coalesced: a slow consumer sees at least one.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.subs {
			if s.subs[i] == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

// ---- snapshot readers ----

func (s *Store) Cauldrons() []cauldronwatch.Cauldron {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cauldronwatch.Cauldron, len(s.cauldrons))
	copy(out, s.cauldrons)
	return out
}

func (s *Store) Cauldron(id string) (cauldronwatch.Cauldron, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return cauldronwatch.Cauldron{}, false
	}
	return s.cauldrons[i], true
}

func (s *Store) Alerts() []cauldronwatch.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cauldronwatch.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

func (s *Store) History() []cauldronwatch.HistorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cauldronwatch.HistorySnapshot, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Store) Market() (cauldronwatch.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.market == nil {
		return cauldronwatch.Market{}, false
	}
	return *s.market, true
}

func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// LastUpdate is the monotonic change token; consumers compare it to detect
// "something changed" without deep comparison.
func (s *Store) LastUpdate() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// ---- internals (callers hold s.mu) ----

func (s *Store) setLevelLocked(id string, percentage int) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.cauldrons[i].Level = percentage
	s.cauldrons[i].Status = units.Classify(percentage, "")
	return true
}

func (s *Store) touchLocked() {
	token := s.now().UnixNano()
	if token <= s.lastUpdate {
		token = s.lastUpdate + 1
	}
	s.lastUpdate = token
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
