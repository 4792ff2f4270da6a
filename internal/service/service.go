package service

import (
	"context"
	"io"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/alerts"
	"cauldronwatch/internal/api"
	"cauldronwatch/internal/history"
	"cauldronwatch/internal/logger"
	"cauldronwatch/internal/repository"
	"cauldronwatch/internal/socket"
	"cauldronwatch/internal/store"
)

// Backend is the REST surface consumed from the upstream CauldronWatch
// service. api.Client is the production implementation.
type Backend interface {
	Health(ctx context.Context) error
	Cauldrons(ctx context.Context) ([]cauldronwatch.Cauldron, error)
	Market(ctx context.Context) (cauldronwatch.Market, error)
	LatestLevels(ctx context.Context) ([]api.Reading, error)
	Data(ctx context.Context, start, end time.Time, cauldronID string, limit int) ([]api.Reading, error)
	Discrepancies(ctx context.Context, severity, cauldronID string) (cauldronwatch.DiscrepancyReport, error)
	DetectDiscrepancies(ctx context.Context, startDate, endDate string) (cauldronwatch.DiscrepancyReport, error)
	Drains(ctx context.Context, startDate, endDate string) ([]cauldronwatch.DrainEvent, error)
}

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Ingest applies parsed socket events to the store.
type Ingest interface {
	Handle(ev socket.Event)
}

// History serves windowed history through the cache.
type History interface {
	Window(ctx context.Context, start, end time.Time) ([]cauldronwatch.HistorySnapshot, error)
	Refresh()
}

// Bootstrap runs the startup sequence and returns the socket handle for
// teardown.
type Bootstrap interface {
	Run(ctx context.Context) io.Closer
}

// EventLog exposes the append-only sync log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]cauldronwatch.SyncEvent, error)
}

// Discrepancies proxies the backend's detection results and derives alerts
// from them.
type Discrepancies interface {
	Report(ctx context.Context, severity, cauldronID string) (cauldronwatch.DiscrepancyReport, error)
	Detect(ctx context.Context, startDate, endDate string) (cauldronwatch.DiscrepancyReport, error)
	Drains(ctx context.Context, startDate, endDate string) ([]cauldronwatch.DrainEvent, error)
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Ingest
	History
	Bootstrap
	EventLog
	Discrepancies
	Authorization
}

// Deps carries everything NewService wires together.
type Deps struct {
	Backend      Backend
	Store        *store.Store
	Cache        *history.Cache
	Repos        *repository.Repository
	Log          *logger.Logger
	WSURL        string
	InitialHours int
	SigningKey   string
	TokenTTL     time.Duration
}

// NewService wires the sub-services. The socket client is created lazily by
// Bootstrap so its handler can be the ingest service.
func NewService(d Deps) *Service {
	deriver := alerts.NewDeriver()
	ingest := NewIngestService(d.Store, deriver, d.Repos.Events, d.Log)
	hist := NewHistoryService(d.Backend, d.Cache, d.Store, d.Repos.Snapshots, d.Log)
	boot := NewBootstrapService(d.Backend, d.Store, hist, d.Repos.Events, d.Repos.Snapshots, d.Log, d.InitialHours)
	boot.connect = func(ctx context.Context) io.Closer {
		client := socket.NewClient(d.WSURL, ingest.Handle, func() {
			d.Store.SetDegraded(true)
			boot.logEvent(ctx, "DEGRADED", "socket reconnect attempts exhausted", nil)
		}, d.Log)
		go client.Run(ctx)
		return closerFunc(func() error {
			client.Close()
			return nil
		})
	}

	return &Service{
		Ingest:        ingest,
		History:       hist,
		Bootstrap:     boot,
		EventLog:      NewEventLogService(d.Repos.Events),
		Discrepancies: NewDiscrepancyService(d.Backend, d.Store, deriver, d.Log),
		Authorization: NewAuthService(d.Repos.Auth, d.SigningKey, d.TokenTTL),
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
