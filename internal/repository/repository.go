package repository

import (
	"context"
	"database/sql"
	"time"

	"cauldronwatch"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*cauldronwatch.User, error)
}

// SnapshotRepo archives fetched history snapshots locally so a restart can
// serve recent windows without refetching everything.
type SnapshotRepo interface {
	SaveBatch(ctx context.Context, snaps []cauldronwatch.HistorySnapshot) error
	List(ctx context.Context, from, to time.Time) ([]cauldronwatch.HistorySnapshot, error)
	Prune(ctx context.Context, olderThan time.Time) error
}

// EventRepo is the append-only sync lifecycle log.
type EventRepo interface {
	Append(ctx context.Context, e cauldronwatch.SyncEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]cauldronwatch.SyncEvent, error)
}

type Repository struct {
	Snapshots SnapshotRepo
	Events    EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Snapshots: NewSnapshotSQLite(db),
		Events:    NewEventSQLite(db),
		Auth:      NewUserRepository(db),
	}
}
