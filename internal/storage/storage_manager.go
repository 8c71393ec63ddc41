/**
 * Storage Manager for the crowd data worker
 *
 * Coordinates the CSV time series (primary) and the optional PostgreSQL
 * mirror. The CSV must be updated for a run to count as stored; mirror
 * failures are logged and do not fail the run.
 */

package storage

import (
	"context"
	"fmt"

	apperrors "github.com/iori73/crowd-data-dashboard-v2/internal/errors"
	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
	"github.com/iori73/crowd-data-dashboard-v2/internal/processor"
)

// StorageManager coordinates CSV and PostgreSQL writes
type StorageManager struct {
	csv      *CSVStore
	postgres *PostgresClient
	logger   *logging.Logger
}

// StoreResult summarises where a report's records ended up
type StoreResult struct {
	CSV      *MergeResult `json:"csv"`
	Mirrored int          `json:"mirrored"`
}

// NewStorageManager creates a storage manager. An empty databaseURL disables
// the mirror; an unreachable database is logged and also disables it.
func NewStorageManager(ctx context.Context, csvPath string, databaseURL string, logger *logging.Logger) (*StorageManager, error) {
	if csvPath == "" {
		return nil, fmt.Errorf("CSV path is required")
	}
	if logger == nil {
		logger = logging.NewLogger("Storage")
	}

	sm := &StorageManager{
		csv:    NewCSVStore(csvPath, logger),
		logger: logger,
	}

	if databaseURL == "" {
		logger.Info("DATABASE_URL not set, PostgreSQL mirror disabled")
		return sm, nil
	}

	postgres, err := NewPostgresClient(databaseURL)
	if err != nil {
		logger.Warn("PostgreSQL unavailable, mirror disabled", "error", err)
		return sm, nil
	}
	if err := postgres.EnsureSchema(ctx); err != nil {
		postgres.Close()
		logger.Warn("PostgreSQL schema setup failed, mirror disabled", "error", err)
		return sm, nil
	}

	sm.postgres = postgres
	logger.Info("PostgreSQL mirror enabled")
	return sm, nil
}

// CSV returns the primary store
func (sm *StorageManager) CSV() *CSVStore { return sm.csv }

// Postgres returns the mirror, or nil when disabled
func (sm *StorageManager) Postgres() *PostgresClient { return sm.postgres }

// StoreReport merges the report's records into the CSV and mirrors them
func (sm *StorageManager) StoreReport(ctx context.Context, report *processor.ExtractionReport) (*StoreResult, error) {
	if report == nil {
		return nil, fmt.Errorf("report is required")
	}

	merge, err := sm.csv.Merge(report.Records)
	if err != nil {
		return nil, apperrors.NewStorageFailedError("csv", err)
	}
	result := &StoreResult{CSV: merge}

	if sm.postgres == nil {
		return result, nil
	}

	mirrored, err := sm.postgres.UpsertRecords(ctx, report.RunID, report.Records)
	if err != nil {
		sm.logger.Warn("PostgreSQL mirror failed", "run_id", report.RunID, "error", apperrors.NewStorageFailedError("postgres", err))
	}
	result.Mirrored = mirrored

	if err := sm.postgres.RecordRun(ctx, report, merge.Added); err != nil {
		sm.logger.Warn("Failed to record run", "run_id", report.RunID, "error", err)
	}

	return result, nil
}

// RecentRuns lists stored runs when the mirror is enabled
func (sm *StorageManager) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if sm.postgres == nil {
		return nil, fmt.Errorf("PostgreSQL mirror is disabled")
	}
	return sm.postgres.RecentRuns(ctx, limit)
}

// GetStats returns storage statistics
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"csv_path":        sm.csv.Path(),
		"postgres_mirror": sm.postgres != nil,
	}

	if sm.postgres != nil {
		pgStats := sm.postgres.GetStats()
		stats["postgres"] = map[string]interface{}{
			"open_connections": pgStats.OpenConnections,
			"in_use":           pgStats.InUse,
			"idle":             pgStats.Idle,
		}
		if err := sm.postgres.Ping(ctx); err != nil {
			return stats, fmt.Errorf("postgres ping failed: %w", err)
		}
	}

	return stats, nil
}

// Close closes all storage connections
func (sm *StorageManager) Close() error {
	if sm.postgres != nil {
		return sm.postgres.Close()
	}
	return nil
}
