// Package importlog records import runs in etl.import_log.
package importlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/data-for-change/anyway-sub000/internal/db"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Entry is one row of etl.import_log.
type Entry struct {
	ID           uuid.UUID      `json:"id"`
	Source       string         `json:"source"`
	Batch        string         `json:"batch"`
	Status       string         `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	RowsImported int64          `json:"rows_imported"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Log reads and writes import run records.
type Log struct {
	pool db.Pool
}

// New creates a Log backed by pool.
func New(pool db.Pool) *Log {
	return &Log{pool: pool}
}

// Start records a running import of batch from source and returns its run id.
func (l *Log) Start(ctx context.Context, source, batch string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := l.pool.Exec(ctx,
		`INSERT INTO etl.import_log (id, source, batch, status, started_at)
		 VALUES ($1, $2, $3, 'running', now())`,
		id, source, batch,
	)
	if err != nil {
		return uuid.Nil, eris.Wrapf(err, "importlog: start %s/%s", source, batch)
	}
	return id, nil
}

// Complete marks a run as complete.
func (l *Log) Complete(ctx context.Context, id uuid.UUID, rows int64, metadata map[string]any) error {
	var metaJSON []byte
	if metadata != nil {
		var err error
		if metaJSON, err = json.Marshal(metadata); err != nil {
			return eris.Wrap(err, "importlog: marshal metadata")
		}
	}

	_, err := l.pool.Exec(ctx,
		`UPDATE etl.import_log
		 SET status = 'complete', completed_at = now(), rows_imported = $1, metadata = $2
		 WHERE id = $3`,
		rows, metaJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "importlog: complete %s", id)
	}
	return nil
}

// Fail marks a run as failed with an error message.
func (l *Log) Fail(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE etl.import_log
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "importlog: fail %s", id)
	}
	return nil
}

// LastSuccess returns when batch last imported successfully, or nil if never.
func (l *Log) LastSuccess(ctx context.Context, source, batch string) (*time.Time, error) {
	var t time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT started_at FROM etl.import_log
		 WHERE source = $1 AND batch = $2 AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		source, batch,
	).Scan(&t)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "importlog: last success for %s/%s", source, batch)
	}
	return &t, nil
}

// List returns the most recent runs first. limit <= 0 means 100.
func (l *Log) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, source, batch, status, started_at, completed_at, rows_imported, error, metadata
		 FROM etl.import_log ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "importlog: list")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errStr *string
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Source, &e.Batch, &e.Status, &e.StartedAt, &e.CompletedAt, &e.RowsImported, &errStr, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "importlog: scan entry")
		}
		if errStr != nil {
			e.Error = *errStr
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
