package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cauldronwatch"
)

type SnapshotSQLite struct {
	db *sql.DB
}

func NewSnapshotSQLite(db *sql.DB) *SnapshotSQLite { return &SnapshotSQLite{db: db} }

var _ SnapshotRepo = (*SnapshotSQLite)(nil)

const (
	upsertSnapshotSQL = `
		INSERT INTO history_snapshots (ts, time_label, avg_level, cauldrons)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ts) DO UPDATE SET
			time_label=excluded.time_label,
			avg_level=excluded.avg_level,
			cauldrons=excluded.cauldrons
	`

	selectSnapshotsSQL = `
		SELECT ts, time_label, avg_level, cauldrons
		FROM history_snapshots
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`

	pruneSnapshotsSQL = `DELETE FROM history_snapshots WHERE ts < ?`
)

// SaveBatch upserts snapshots keyed by timestamp inside one transaction.
// Live (synthesized) snapshots are never archived.
func (r *SnapshotSQLite) SaveBatch(ctx context.Context, snaps []cauldronwatch.HistorySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range snaps {
		if s.Live {
			continue
		}
		cauldronsJSON, err := json.Marshal(s.Cauldrons)
		if err != nil {
			return fmt.Errorf("marshal snapshot cauldrons at %d: %w", s.Timestamp, err)
		}
		if _, err := tx.ExecContext(ctx, upsertSnapshotSQL, s.Timestamp, s.Time, s.AvgLevel, string(cauldronsJSON)); err != nil {
			return fmt.Errorf("upsert snapshot at %d: %w", s.Timestamp, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot batch: %w", err)
	}
	return nil
}

// List returns archived snapshots within [from, to], ordered ascending.
func (r *SnapshotSQLite) List(ctx context.Context, from, to time.Time) ([]cauldronwatch.HistorySnapshot, error) {
	rows, err := r.db.QueryContext(ctx, selectSnapshotsSQL, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]cauldronwatch.HistorySnapshot, 0, 64)
	for rows.Next() {
		var (
			s             cauldronwatch.HistorySnapshot
			cauldronsJSON string
		)
		if err := rows.Scan(&s.Timestamp, &s.Time, &s.AvgLevel, &cauldronsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cauldronsJSON), &s.Cauldrons); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot cauldrons at %d: %w", s.Timestamp, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Prune drops archived snapshots older than the cutoff.
func (r *SnapshotSQLite) Prune(ctx context.Context, olderThan time.Time) error {
	_, err := r.db.ExecContext(ctx, pruneSnapshotsSQL, olderThan.UnixMilli())
	return err
}
