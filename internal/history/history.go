// Package history persists per-run download summaries in a local DuckDB
// database so past runs can be inspected without digging through logs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/quantfeed/go-binance-vision/internal/verrors"
)

// RunRecord is one completed (or aborted) download run.
type RunRecord struct {
	ID         string
	Market     string
	DataType   string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int64
	Downloaded int64
	Failed     int64
	Skipped    int64
	Bytes      int64
	Aborted    bool
}

// Store records download runs. DuckDB prefers a single writer, so the
// connection pool is pinned to one connection.
type Store struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
}

// Open opens (or creates) the history database at dbPath. Use ":memory:"
// for an ephemeral store.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, verrors.Newf(verrors.KindLocalIO, "history_open", "failed to open history database: %v", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &Store{db: db, dbPath: dbPath, logger: logger}, nil
}

// Initialize creates the schema if it does not already exist.
func (s *Store) Initialize(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS download_runs (
		id          VARCHAR PRIMARY KEY,
		market      VARCHAR NOT NULL,
		data_type   VARCHAR NOT NULL,
		started_at  TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		total       BIGINT NOT NULL,
		downloaded  BIGINT NOT NULL,
		failed      BIGINT NOT NULL,
		skipped     BIGINT NOT NULL,
		bytes       BIGINT NOT NULL,
		aborted     BOOLEAN NOT NULL
	)`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return verrors.Newf(verrors.KindLocalIO, "history_init", "failed to create schema: %v", err)
	}

	s.logger.Debug("history store initialized", "db_path", s.dbPath)
	return nil
}

// RecordRun inserts one run summary.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	const insert = `
	INSERT INTO download_runs
		(id, market, data_type, started_at, finished_at, total, downloaded, failed, skipped, bytes, aborted)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, insert,
		rec.ID, rec.Market, rec.DataType, rec.StartedAt, rec.FinishedAt,
		rec.Total, rec.Downloaded, rec.Failed, rec.Skipped, rec.Bytes, rec.Aborted)
	if err != nil {
		return verrors.Newf(verrors.KindLocalIO, "history_record", "failed to record run %s: %v", rec.ID, err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	const query = `
	SELECT id, market, data_type, started_at, finished_at, total, downloaded, failed, skipped, bytes, aborted
	FROM download_runs
	ORDER BY started_at DESC
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, verrors.Newf(verrors.KindLocalIO, "history_query", "failed to query runs: %v", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.Market, &rec.DataType, &rec.StartedAt, &rec.FinishedAt,
			&rec.Total, &rec.Downloaded, &rec.Failed, &rec.Skipped, &rec.Bytes, &rec.Aborted); err != nil {
			return nil, verrors.Newf(verrors.KindLocalIO, "history_query", "failed to scan run: %v", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, verrors.Newf(verrors.KindLocalIO, "history_query", "row iteration failed: %v", err)
	}
	return runs, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	return nil
}
