package service

import (
	"context"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/api"
)

// backendStub satisfies Backend via per-method function fields. Methods with
// a nil field return zero values, so each test only wires what it exercises.
type backendStub struct {
	HealthFn        func(ctx context.Context) error
	CauldronsFn     func(ctx context.Context) ([]cauldronwatch.Cauldron, error)
	MarketFn        func(ctx context.Context) (cauldronwatch.Market, error)
	LatestLevelsFn  func(ctx context.Context) ([]api.Reading, error)
	DataFn          func(ctx context.Context, start, end time.Time, cauldronID string, limit int) ([]api.Reading, error)
	DiscrepanciesFn func(ctx context.Context, severity, cauldronID string) (cauldronwatch.DiscrepancyReport, error)
	DetectFn        func(ctx context.Context, startDate, endDate string) (cauldronwatch.DiscrepancyReport, error)
	DrainsFn        func(ctx context.Context, startDate, endDate string) ([]cauldronwatch.DrainEvent, error)
}

func (b *backendStub) Health(ctx context.Context) error {
	if b.HealthFn == nil {
		return nil
	}
	return b.HealthFn(ctx)
}

func (b *backendStub) Cauldrons(ctx context.Context) ([]cauldronwatch.Cauldron, error) {
	if b.CauldronsFn == nil {
		return nil, nil
	}
	return b.CauldronsFn(ctx)
}

func (b *backendStub) Market(ctx context.Context) (cauldronwatch.Market, error) {
	if b.MarketFn == nil {
		return cauldronwatch.Market{}, nil
	}
	return b.MarketFn(ctx)
}

func (b *backendStub) LatestLevels(ctx context.Context) ([]api.Reading, error) {
	if b.LatestLevelsFn == nil {
		return nil, nil
	}
	return b.LatestLevelsFn(ctx)
}

func (b *backendStub) Data(ctx context.Context, start, end time.Time, cauldronID string, limit int) ([]api.Reading, error) {
	if b.DataFn == nil {
		return nil, nil
	}
	return b.DataFn(ctx, start, end, cauldronID, limit)
}

func (b *backendStub) Discrepancies(ctx context.Context, severity, cauldronID string) (cauldronwatch.DiscrepancyReport, error) {
	if b.DiscrepanciesFn == nil {
		return cauldronwatch.DiscrepancyReport{}, nil
	}
	return b.DiscrepanciesFn(ctx, severity, cauldronID)
}

func (b *backendStub) DetectDiscrepancies(ctx context.Context, startDate, endDate string) (cauldronwatch.DiscrepancyReport, error) {
	if b.DetectFn == nil {
		return cauldronwatch.DiscrepancyReport{}, nil
	}
	return b.DetectFn(ctx, startDate, endDate)
}

func (b *backendStub) Drains(ctx context.Context, startDate, endDate string) ([]cauldronwatch.DrainEvent, error) {
	if b.DrainsFn == nil {
		return nil, nil
	}
	return b.DrainsFn(ctx, startDate, endDate)
}

// eventRepoStub records appended sync events and serves a canned list.
type eventRepoStub struct {
	appended []cauldronwatch.SyncEvent

	gotFrom time.Time
	gotTo   time.Time
	gotType string

	listResp  []cauldronwatch.SyncEvent
	listErr   error
	appendErr error

	listCalls int
}

func (f *eventRepoStub) Append(ctx context.Context, e cauldronwatch.SyncEvent) error {
	f.appended = append(f.appended, e)
	return f.appendErr
}

func (f *eventRepoStub) List(ctx context.Context, from, to time.Time, typ string) ([]cauldronwatch.SyncEvent, error) {
	f.listCalls++
	f.gotFrom = from
	f.gotTo = to
	f.gotType = typ
	return f.listResp, f.listErr
}

// snapshotRepoStub records archived snapshot batches.
type snapshotRepoStub struct {
	saved   [][]cauldronwatch.HistorySnapshot
	saveErr error

	listResp []cauldronwatch.HistorySnapshot
	listErr  error

	pruneCalls int
	prunedUpTo time.Time
	pruneErr   error
}

func (f *snapshotRepoStub) SaveBatch(ctx context.Context, snaps []cauldronwatch.HistorySnapshot) error {
	f.saved = append(f.saved, snaps)
	return f.saveErr
}

func (f *snapshotRepoStub) List(ctx context.Context, from, to time.Time) ([]cauldronwatch.HistorySnapshot, error) {
	return f.listResp, f.listErr
}

func (f *snapshotRepoStub) Prune(ctx context.Context, olderThan time.Time) error {
	f.pruneCalls++
	f.prunedUpTo = olderThan
	return f.pruneErr
}
