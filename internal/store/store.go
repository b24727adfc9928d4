// Package store provides optional PostgreSQL persistence for load runs.
//
// When a database URL is configured, the finished report of every run is
// recorded: one row per run, one row per batch, and one row per record
// outcome. Queries back the status server's run history endpoints.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/bulkloader/internal/bulk"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store persists load run reports.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new report store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS load_runs (
	id           TEXT PRIMARY KEY,
	job_id       TEXT NOT NULL,
	object_name  TEXT NOT NULL,
	operation    TEXT NOT NULL,
	job_state    TEXT NOT NULL,
	created      BIGINT NOT NULL,
	updated      BIGINT NOT NULL,
	failed       BIGINT NOT NULL,
	duration_ms  BIGINT NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS load_batches (
	run_id    TEXT NOT NULL REFERENCES load_runs(id) ON DELETE CASCADE,
	batch_id  TEXT NOT NULL,
	seq       INT NOT NULL,
	state     TEXT NOT NULL,
	row_count BIGINT NOT NULL,
	bytes     BIGINT NOT NULL,
	failure   TEXT,
	PRIMARY KEY (run_id, batch_id)
);

CREATE TABLE IF NOT EXISTS record_outcomes (
	run_id    TEXT NOT NULL,
	batch_id  TEXT NOT NULL,
	position  INT NOT NULL,
	success   BOOLEAN NOT NULL,
	created   BOOLEAN NOT NULL,
	record_id TEXT,
	error     TEXT,
	PRIMARY KEY (run_id, batch_id, position),
	FOREIGN KEY (run_id, batch_id) REFERENCES load_batches(run_id, batch_id) ON DELETE CASCADE
);
`

// Migrate creates the persistence tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store migrate: %w", err)
	}
	return nil
}

// SaveReport writes a finished run report in a single transaction.
// The runID is caller-assigned and must be unique.
func (s *Store) SaveReport(ctx context.Context, runID, object, operation string, report *bulk.Report) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO load_runs (id, job_id, object_name, operation, job_state, created, updated, failed, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		runID, report.Job.ID, object, operation, string(report.Job.State),
		report.Created, report.Updated, report.Failed, report.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("store insert run: %w", err)
	}

	for _, batchID := range report.Order {
		br := report.Batches[batchID]
		if err := insertBatch(ctx, tx, runID, br); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store commit: %w", err)
	}
	return nil
}

func insertBatch(ctx context.Context, db DBTX, runID string, br *bulk.BatchReport) error {
	var failure *string
	if br.Failure != "" {
		failure = &br.Failure
	}

	_, err := db.Exec(ctx, `
		INSERT INTO load_batches (run_id, batch_id, seq, state, row_count, bytes, failure)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		runID, br.Batch.ID, br.Batch.Seq, string(br.Batch.State), br.Batch.Rows, br.Batch.Bytes, failure,
	)
	if err != nil {
		return fmt.Errorf("store insert batch %s: %w", br.Batch.ID, err)
	}

	for i, out := range br.Outcomes {
		var recordID, outErr *string
		if out.ID != "" {
			recordID = &out.ID
		}
		if out.Error != "" {
			outErr = &out.Error
		}
		_, err := db.Exec(ctx, `
			INSERT INTO record_outcomes (run_id, batch_id, position, success, created, record_id, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			runID, br.Batch.ID, i, out.Success, out.Created, recordID, outErr,
		)
		if err != nil {
			return fmt.Errorf("store insert outcome %s[%d]: %w", br.Batch.ID, i, err)
		}
	}
	return nil
}

// RunSummary is one row of run history.
type RunSummary struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Object     string    `json:"object"`
	Operation  string    `json:"operation"`
	JobState   string    `json:"job_state"`
	Created    int64     `json:"created"`
	Updated    int64     `json:"updated"`
	Failed     int64     `json:"failed"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, object_name, operation, job_state, created, updated, failed, duration_ms, finished_at
		FROM load_runs
		ORDER BY finished_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.JobID, &r.Object, &r.Operation, &r.JobState,
			&r.Created, &r.Updated, &r.Failed, &r.DurationMS, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("store scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// BatchSummary is one persisted batch row.
type BatchSummary struct {
	BatchID string `json:"batch_id"`
	Seq     int    `json:"seq"`
	State   string `json:"state"`
	Rows    int64  `json:"rows"`
	Bytes   int64  `json:"bytes"`
	Failure string `json:"failure,omitempty"`
}

// GetRunBatches returns the batches of a persisted run in submission order.
func (s *Store) GetRunBatches(ctx context.Context, runID string) ([]BatchSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT batch_id, seq, state, row_count, bytes, COALESCE(failure, '')
		FROM load_batches
		WHERE run_id = $1
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("store get run batches: %w", err)
	}
	defer rows.Close()

	var batches []BatchSummary
	for rows.Next() {
		var b BatchSummary
		if err := rows.Scan(&b.BatchID, &b.Seq, &b.State, &b.Rows, &b.Bytes, &b.Failure); err != nil {
			return nil, fmt.Errorf("store scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
