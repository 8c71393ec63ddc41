/**
 * PostgreSQL Client for the crowd data worker
 *
 * Mirrors occupancy records and batch run summaries into PostgreSQL so
 * they can be queried alongside other data.
 */

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/iori73/crowd-data-dashboard-v2/internal/processor"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// RunSummary is one stored batch run
type RunSummary struct {
	RunID        string    `json:"runId"`
	ProcessedAt  time.Time `json:"processedAt"`
	TotalCount   int       `json:"totalCount"`
	SkippedCount int       `json:"skippedCount"`
	SkippedFiles []string  `json:"skippedFiles"`
	CSVAdded     int       `json:"csvAdded"`
}

// sanitizeConfidence rounds confidence to 4 decimal places and clamps it to
// [0.0, 1.0] so it fits NUMERIC(5,4).
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS crowd;

	CREATE TABLE IF NOT EXISTS crowd.occupancy_records (
		id              BIGSERIAL PRIMARY KEY,
		recorded_at     TIMESTAMP NOT NULL,
		hour            SMALLINT NOT NULL,
		weekday         TEXT NOT NULL,
		count           SMALLINT NOT NULL,
		status_label    TEXT,
		status_code     SMALLINT,
		status_min      SMALLINT,
		status_max      SMALLINT,
		raw_text        TEXT,
		filename        TEXT,
		confidence      NUMERIC(5,4),
		source          TEXT,
		low_confidence  BOOLEAN NOT NULL DEFAULT FALSE,
		run_id          UUID,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (recorded_at, count)
	);

	CREATE TABLE IF NOT EXISTS crowd.batch_runs (
		id              UUID PRIMARY KEY,
		processed_at    TIMESTAMPTZ NOT NULL,
		total_count     INTEGER NOT NULL,
		skipped_count   INTEGER NOT NULL,
		skipped_files   TEXT[] NOT NULL DEFAULT '{}',
		csv_added       INTEGER NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A batch writes from one goroutine; keep the pool small
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the crowd schema and tables when missing
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpsertRecords inserts records, ignoring ones already stored for the same
// (recorded_at, count). Returns how many rows were new.
func (p *PostgresClient) UpsertRecords(ctx context.Context, runID string, records []processor.ExtractedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO crowd.occupancy_records (
			recorded_at, hour, weekday, count,
			status_label, status_code, status_min, status_max,
			raw_text, filename, confidence, source, low_confidence, run_id
		) VALUES (
			$1::timestamp, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11::NUMERIC(5,4), $12, $13,
			CASE WHEN $14 = '' THEN NULL ELSE $14::uuid END
		)
		ON CONFLICT (recorded_at, count) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range records {
		row, err := RowFromRecord(rec)
		if err != nil {
			return inserted, err
		}

		res, err := stmt.ExecContext(ctx,
			row.Datetime,                                // $1 - recorded_at
			row.Hour,                                    // $2 - hour
			row.Weekday,                                 // $3 - weekday
			row.Count,                                   // $4 - count
			row.StatusLabel,                             // $5 - status_label
			row.StatusCode,                              // $6 - status_code
			row.StatusMin,                               // $7 - status_min
			row.StatusMax,                               // $8 - status_max
			row.RawText,                                 // $9 - raw_text
			rec.Filename,                                // $10 - filename
			sanitizeConfidence(float64(rec.Confidence)), // $11 - confidence
			string(rec.Source),                          // $12 - source
			rec.LowConfidence,                           // $13 - low_confidence
			runID,                                       // $14 - run_id
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert record (file=%s, datetime=%s): %w", rec.Filename, row.Datetime, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit records: %w", err)
	}
	return inserted, nil
}

// RecordRun stores a batch run summary
func (p *PostgresClient) RecordRun(ctx context.Context, report *processor.ExtractionReport, csvAdded int) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("run ID is required")
	}

	skipped := make([]string, 0, len(report.Skipped))
	for _, s := range report.Skipped {
		skipped = append(skipped, s.Filename)
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO crowd.batch_runs (id, processed_at, total_count, skipped_count, skipped_files, csv_added)
		VALUES ($1::uuid, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			total_count = EXCLUDED.total_count,
			skipped_count = EXCLUDED.skipped_count,
			skipped_files = EXCLUDED.skipped_files,
			csv_added = EXCLUDED.csv_added
	`, report.RunID, report.ProcessedAt, report.TotalCount, len(report.Skipped), pq.Array(skipped), csvAdded)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", report.RunID, err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first
func (p *PostgresClient) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, processed_at, total_count, skipped_count, skipped_files, csv_added
		FROM crowd.batch_runs
		ORDER BY processed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.ProcessedAt, &r.TotalCount, &r.SkippedCount, pq.Array(&r.SkippedFiles), &r.CSVAdded); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
