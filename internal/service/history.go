package service

import (
	"context"
	"sort"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/api"
	"cauldronwatch/internal/history"
	"cauldronwatch/internal/logger"
	"cauldronwatch/internal/repository"
	"cauldronwatch/internal/store"
	"cauldronwatch/internal/units"
)

// HistoryService answers windowed history queries: cache first (exact, then
// overlapping), then a deduplicated network fetch that also populates the
// store's history list and the local archive.
type HistoryService struct {
	backend   Backend
	cache     *history.Cache
	store     *store.Store
	snapshots repository.SnapshotRepo
	log       *logger.Logger
}

func NewHistoryService(backend Backend, cache *history.Cache, st *store.Store, snapshots repository.SnapshotRepo, log *logger.Logger) *HistoryService {
	return &HistoryService{backend: backend, cache: cache, store: st, snapshots: snapshots, log: log}
}

// Window returns the processed snapshots for [start, end].
func (s *HistoryService) Window(ctx context.Context, start, end time.Time) ([]cauldronwatch.HistorySnapshot, error) {
	r := history.Range{Start: start, End: end}

	if data, ok := s.cache.Get(r); ok {
		return data, nil
	}
	if data, ok := s.cache.GetOverlapping(r); ok {
		return data, nil
	}
	return s.cache.FetchDeduplicated(ctx, r, func(ctx context.Context) ([]cauldronwatch.HistorySnapshot, error) {
		return s.load(ctx, r)
	})
}

// Refresh drops all cached windows; used on manual refresh.
func (s *HistoryService) Refresh() {
	s.cache.Invalidate()
}

// load fetches raw readings, assembles snapshots, pushes them into the
// store and archives them best-effort. Runs at most once per window at a
// time (singleflight in the cache).
func (s *HistoryService) load(ctx context.Context, r history.Range) ([]cauldronwatch.HistorySnapshot, error) {
	readings, err := s.backend.Data(ctx, r.Start, r.End, "", 0)
	if err != nil {
		return s.loadArchived(ctx, r, err)
	}

	snaps := s.buildSnapshots(readings)
	for _, snap := range snaps {
		s.store.PushHistorySnapshot(snap)
	}
	if err := s.snapshots.SaveBatch(ctx, snaps); err != nil {
		s.log.Warnw("snapshot_archive_failed", "err", err)
	}
	return snaps, nil
}

// loadArchived serves the window from the local archive when the backend is
// unreachable. Only a non-empty archive masks the fetch error; an empty or
// failing archive propagates the original failure so callers see the outage.
func (s *HistoryService) loadArchived(ctx context.Context, r history.Range, fetchErr error) ([]cauldronwatch.HistorySnapshot, error) {
	archived, listErr := s.snapshots.List(ctx, r.Start, r.End)
	if listErr != nil {
		s.log.Warnw("snapshot_archive_read_failed", "err", listErr)
		return nil, fetchErr
	}
	if len(archived) == 0 {
		return nil, fetchErr
	}
	s.log.Warnw("history_served_from_archive", "err", fetchErr, "snapshots", len(archived))
	for _, snap := range archived {
		s.store.PushHistorySnapshot(snap)
	}
	return archived, nil
}

// buildSnapshots groups readings by timestamp and converts each to a
// percentage against the cauldron's known capacity. Readings with an
// invalid capacity are skipped per-item.
func (s *HistoryService) buildSnapshots(readings []api.Reading) []cauldronwatch.HistorySnapshot {
	groups := make(map[int64][]api.Reading)
	for _, rd := range readings {
		ms := rd.Timestamp.UnixMilli()
		groups[ms] = append(groups[ms], rd)
	}

	out := make([]cauldronwatch.HistorySnapshot, 0, len(groups))
	for ms, group := range groups {
		snap := cauldronwatch.HistorySnapshot{
			Time:      time.UnixMilli(ms).UTC().Format("15:04"),
			Timestamp: ms,
			Cauldrons: make([]cauldronwatch.SnapshotCauldron, 0, len(group)),
		}
		sum := 0
		for _, rd := range group {
			capacity := units.DefaultCapacity
			if c, ok := s.store.Cauldron(rd.CauldronID); ok {
				capacity = c.Capacity
			}
			pct, err := units.ToPercentage(rd.Level, capacity)
			if err != nil {
				s.log.Warnw("history_invalid_capacity_skipped", "cauldron", rd.CauldronID, "capacity", capacity)
				continue
			}
			snap.Cauldrons = append(snap.Cauldrons, cauldronwatch.SnapshotCauldron{
				ID:     rd.CauldronID,
				Level:  pct,
				Status: units.Classify(pct, ""),
			})
			sum += pct
		}
		if len(snap.Cauldrons) == 0 {
			continue
		}
		sort.Slice(snap.Cauldrons, func(i, j int) bool {
			return snap.Cauldrons[i].ID < snap.Cauldrons[j].ID
		})
		snap.AvgLevel = float64(sum) / float64(len(snap.Cauldrons))
		out = append(out, snap)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
