package service

import (
	"context"
	"io"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/api"
	"cauldronwatch/internal/logger"
	"cauldronwatch/internal/repository"
	"cauldronwatch/internal/store"
	"cauldronwatch/internal/units"
)

// BootstrapService orchestrates startup in a fixed order. Every step is
// optional-failure: a failed step is logged and the sequence continues, so
// a flaky backend degrades the dashboard instead of killing it.
type BootstrapService struct {
	backend      Backend
	store        *store.Store
	history      History
	events       repository.EventRepo
	snapshots    repository.SnapshotRepo
	log          *logger.Logger
	initialHours int

	// connect opens the live socket; injected by NewService, stubbed in
	// tests.
	connect func(ctx context.Context) io.Closer
}

// archiveRetention bounds the local snapshot archive; anything older is
// dropped at startup.
const archiveRetention = 7 * 24 * time.Hour

func NewBootstrapService(backend Backend, st *store.Store, hist History, events repository.EventRepo, snapshots repository.SnapshotRepo, log *logger.Logger, initialHours int) *BootstrapService {
	if initialHours <= 0 {
		initialHours = 24
	}
	return &BootstrapService{
		backend:      backend,
		store:        st,
		history:      hist,
		events:       events,
		snapshots:    snapshots,
		log:          log,
		initialHours: initialHours,
	}
}

// Run executes archive trim -> health check -> reference data -> latest
// levels -> initial history -> socket connect, and returns the socket
// handle. Closing the handle is the only required teardown.
func (s *BootstrapService) Run(ctx context.Context) io.Closer {
	// 0. Trim the local archive before history queries may serve from it.
	if err := s.snapshots.Prune(ctx, time.Now().UTC().Add(-archiveRetention)); err != nil {
		s.log.Warnw("snapshot_prune_failed", "err", err)
	}

	// 1. Health check, advisory only.
	if err := s.backend.Health(ctx); err != nil {
		s.log.Warnw("bootstrap_health_failed", "err", err)
		s.store.SetDegraded(true)
	} else {
		s.store.SetDegraded(false)
	}

	// 2. Reference data. This is the point at which queued deltas drain.
	if cauldrons, err := s.backend.Cauldrons(ctx); err != nil {
		s.log.Warnw("bootstrap_cauldrons_failed", "err", err)
	} else {
		s.store.ReplaceCauldrons(cauldrons)
	}
	if market, err := s.backend.Market(ctx); err != nil {
		s.log.Warnw("bootstrap_market_failed", "err", err)
	} else {
		s.store.SetMarket(market)
	}

	// 3. Latest levels, liters converted per cauldron capacity.
	if readings, err := s.backend.LatestLevels(ctx); err != nil {
		s.log.Warnw("bootstrap_levels_failed", "err", err)
	} else {
		s.applyLatest(readings)
	}

	// 4. Initial history window.
	end := time.Now().UTC()
	start := end.Add(-time.Duration(s.initialHours) * time.Hour)
	if _, err := s.history.Window(ctx, start, end); err != nil {
		s.log.Warnw("bootstrap_history_failed", "err", err)
	}

	s.logEvent(ctx, "BOOTSTRAP", "startup sequence completed", map[string]any{
		"cauldrons": len(s.store.Cauldrons()),
		"degraded":  s.store.Degraded(),
	})

	// 5. Live socket.
	if s.connect == nil {
		return closerFunc(func() error { return nil })
	}
	return s.connect(ctx)
}

func (s *BootstrapService) applyLatest(readings []api.Reading) {
	for _, rd := range readings {
		capacity := units.DefaultCapacity
		if c, ok := s.store.Cauldron(rd.CauldronID); ok {
			capacity = c.Capacity
		}
		pct, err := units.ToPercentage(rd.Level, capacity)
		if err != nil {
			s.log.Warnw("bootstrap_invalid_capacity_skipped", "cauldron", rd.CauldronID, "capacity", capacity)
			continue
		}
		s.store.SetLevel(rd.CauldronID, pct)
	}
}

func (s *BootstrapService) logEvent(ctx context.Context, typ, message string, meta any) {
	if err := s.events.Append(ctx, cauldronwatch.SyncEvent{Type: typ, Description: message, Metadata: meta}); err != nil {
		s.log.Warnw("sync_event_append_failed", "type", typ, "err", err)
	}
}
