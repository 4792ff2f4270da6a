package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/api"
	"cauldronwatch/internal/history"
	"cauldronwatch/internal/logger"
	"cauldronwatch/internal/store"
)

func newHistoryFixture(backend Backend) (*HistoryService, *store.Store, *snapshotRepoStub) {
	st := store.New(logger.Nop())
	st.ReplaceCauldrons([]cauldronwatch.Cauldron{
		{ID: "c1", Name: "North", Capacity: 1000},
		{ID: "c2", Name: "South", Capacity: 500},
	})
	snaps := &snapshotRepoStub{}
	svc := NewHistoryService(backend, history.NewCache(history.DefaultTTL), st, snaps, logger.Nop())
	return svc, st, snaps
}

func TestHistoryService_BuildSnapshots_GroupsAndAverages(t *testing.T) {
	t.Parallel()

	ts1 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	ts2 := time.Date(2026, 8, 20, 10, 5, 0, 0, time.UTC)

	svc, _, _ := newHistoryFixture(&backendStub{})

	// Deliberately out of order; snapshots must come back ascending.
	snaps := svc.buildSnapshots([]api.Reading{
		{CauldronID: "c2", Level: 250, Timestamp: ts2},
		{CauldronID: "c1", Level: 500, Timestamp: ts1},
		{CauldronID: "c2", Level: 125, Timestamp: ts1},
		{CauldronID: "c1", Level: 900, Timestamp: ts2},
	})

	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	first, second := snaps[0], snaps[1]
	if first.Timestamp != ts1.UnixMilli() || second.Timestamp != ts2.UnixMilli() {
		t.Fatalf("snapshots not ascending: %d then %d", first.Timestamp, second.Timestamp)
	}

	// ts1: c1 500/1000=50, c2 125/500=25, avg 37.5. Cauldrons sorted by id.
	if len(first.Cauldrons) != 2 || first.Cauldrons[0].ID != "c1" || first.Cauldrons[1].ID != "c2" {
		t.Fatalf("unexpected cauldron order: %+v", first.Cauldrons)
	}
	if first.Cauldrons[0].Level != 50 || first.Cauldrons[1].Level != 25 {
		t.Fatalf("unexpected levels: %+v", first.Cauldrons)
	}
	if first.AvgLevel != 37.5 {
		t.Fatalf("avg: want 37.5, got %v", first.AvgLevel)
	}
	if first.Time != "10:00" {
		t.Fatalf("time label: want 10:00, got %q", first.Time)
	}

	// ts2: c1 900/1000=90, c2 250/500=50, avg 70.
	if second.AvgLevel != 70 {
		t.Fatalf("avg: want 70, got %v", second.AvgLevel)
	}
	if second.Live {
		t.Fatalf("fetched snapshots must not be marked live")
	}
}

func TestHistoryService_BuildSnapshots_UnknownCauldronUsesDefaultCapacity(t *testing.T) {
	t.Parallel()

	svc, _, _ := newHistoryFixture(&backendStub{})
	ts := time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC)

	snaps := svc.buildSnapshots([]api.Reading{
		{CauldronID: "ghost", Level: 250, Timestamp: ts},
	})

	if len(snaps) != 1 || len(snaps[0].Cauldrons) != 1 {
		t.Fatalf("expected one snapshot with one cauldron, got %+v", snaps)
	}
	// 250 L against the 1000 L default.
	if snaps[0].Cauldrons[0].Level != 25 {
		t.Fatalf("level: want 25, got %d", snaps[0].Cauldrons[0].Level)
	}
}

func TestHistoryService_Window_CachesAndRefreshInvalidates(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	calls := 0
	backend := &backendStub{
		DataFn: func(ctx context.Context, start, end time.Time, cauldronID string, limit int) ([]api.Reading, error) {
			calls++
			return []api.Reading{{CauldronID: "c1", Level: 500, Timestamp: ts}}, nil
		},
	}
	svc, st, snaps := newHistoryFixture(backend)

	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	out, err := svc.Window(context.Background(), start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].AvgLevel != 50 {
		t.Fatalf("unexpected window result: %+v", out)
	}
	if calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", calls)
	}

	// Second identical window is served from cache.
	if _, err := svc.Window(context.Background(), start, end); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("cached window must not refetch, calls=%d", calls)
	}

	// Fetched snapshots land in the store and the archive.
	if len(st.History()) != 1 {
		t.Fatalf("expected 1 snapshot pushed to store, got %d", len(st.History()))
	}
	if len(snaps.saved) != 1 {
		t.Fatalf("expected 1 archive batch, got %d", len(snaps.saved))
	}

	svc.Refresh()
	if _, err := svc.Window(context.Background(), start, end); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("refresh must drop the cache, calls=%d", calls)
	}
}

func TestHistoryService_Window_BackendErrorPropagates(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("backend down")
	backend := &backendStub{
		DataFn: func(ctx context.Context, start, end time.Time, cauldronID string, limit int) ([]api.Reading, error) {
			return nil, wantErr
		},
	}
	svc, st, _ := newHistoryFixture(backend)

	_, err := svc.Window(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected backend error to propagate, got %v", err)
	}
	if len(st.History()) != 0 {
		t.Fatalf("failed fetch must not touch the store, got %d snapshots", len(st.History()))
	}
}

func TestHistoryService_Window_BackendErrorFallsBackToArchive(t *testing.T) {
	t.Parallel()

	backend := &backendStub{
		DataFn: func(ctx context.Context, start, end time.Time, cauldronID string, limit int) ([]api.Reading, error) {
			return nil, errors.New("backend down")
		},
	}
	svc, st, snaps := newHistoryFixture(backend)
	snaps.listResp = []cauldronwatch.HistorySnapshot{
		{Timestamp: 100, Time: "10:00", AvgLevel: 40},
		{Timestamp: 200, Time: "10:05", AvgLevel: 45},
	}

	out, err := svc.Window(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("archive must mask the fetch error: %v", err)
	}
	if len(out) != 2 || out[0].Timestamp != 100 {
		t.Fatalf("unexpected archived window: %+v", out)
	}
	if len(st.History()) != 2 {
		t.Fatalf("archived snapshots must land in the store, got %d", len(st.History()))
	}
}

func TestHistoryService_Window_EmptyArchiveKeepsBackendError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("backend down")
	backend := &backendStub{
		DataFn: func(ctx context.Context, start, end time.Time, cauldronID string, limit int) ([]api.Reading, error) {
			return nil, wantErr
		},
	}

	t.Run("empty archive", func(t *testing.T) {
		svc, st, _ := newHistoryFixture(backend)
		_, err := svc.Window(context.Background(), time.Now().Add(-time.Hour), time.Now())
		if !errors.Is(err, wantErr) {
			t.Fatalf("empty archive must propagate the fetch error, got %v", err)
		}
		if len(st.History()) != 0 {
			t.Fatalf("failed fallback must not touch the store")
		}
	})

	t.Run("archive read failure", func(t *testing.T) {
		svc, _, snaps := newHistoryFixture(backend)
		snaps.listErr = errors.New("db locked")
		_, err := svc.Window(context.Background(), time.Now().Add(-time.Hour), time.Now())
		if !errors.Is(err, wantErr) {
			t.Fatalf("broken archive must propagate the fetch error, got %v", err)
		}
	})
}

func TestHistoryService_Window_ArchiveFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	backend := &backendStub{
		DataFn: func(ctx context.Context, start, end time.Time, cauldronID string, limit int) ([]api.Reading, error) {
			return []api.Reading{{CauldronID: "c1", Level: 500, Timestamp: ts}}, nil
		},
	}
	svc, _, snaps := newHistoryFixture(backend)
	snaps.saveErr = errors.New("disk full")

	out, err := svc.Window(context.Background(), ts.Add(-time.Hour), ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("archive failure must not fail the window: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(out))
	}
}
