/**
 * Pipeline for the crowd data worker
 *
 * One run processes the inbox, writes the extraction report, merges the
 * records into the CSV time series (plus the optional PostgreSQL mirror)
 * and announces the outcome on Redis when configured.
 */

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
	"github.com/iori73/crowd-data-dashboard-v2/internal/processor"
	"github.com/iori73/crowd-data-dashboard-v2/internal/queue"
	"github.com/iori73/crowd-data-dashboard-v2/internal/storage"
)

const storeTimeout = 30 * time.Second

// Batch produces an extraction report
type Batch interface {
	Run(ctx context.Context) (*processor.ExtractionReport, error)
}

// Store persists a report's records
type Store interface {
	StoreReport(ctx context.Context, report *processor.ExtractionReport) (*storage.StoreResult, error)
}

// Publisher announces finished runs
type Publisher interface {
	Publish(ctx context.Context, event queue.BatchEvent) error
}

// Summary describes one pipeline run
type Summary struct {
	RunID         string        `json:"runId"`
	Trigger       string        `json:"trigger"`
	Records       int           `json:"records"`
	Skipped       int           `json:"skipped"`
	LowConfidence int           `json:"lowConfidence"`
	CSVAdded      int           `json:"csvAdded"`
	CSVTotal      int           `json:"csvTotal"`
	Mirrored      int           `json:"mirrored"`
	Duration      time.Duration `json:"duration"`
}

// Config holds pipeline dependencies. Publisher is optional.
type Config struct {
	Batch     Batch
	Store     Store
	Publisher Publisher
	Logger    *logging.Logger
}

// Pipeline runs batches one at a time
type Pipeline struct {
	batch     Batch
	store     Store
	publisher Publisher
	logger    *logging.Logger
	mu        sync.Mutex
	now       func() time.Time
}

// New creates a pipeline
func New(cfg *Config) (*Pipeline, error) {
	if cfg == nil || cfg.Batch == nil {
		return nil, fmt.Errorf("batch processor is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Pipeline")
	}

	return &Pipeline{
		batch:     cfg.Batch,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// RunOnce processes the inbox and stores the results. Concurrent callers
// wait for the active run to finish. Records from an interrupted batch are
// still stored before the interruption is returned.
func (p *Pipeline) RunOnce(ctx context.Context, trigger string) (*Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	report, batchErr := p.batch.Run(ctx)
	if report == nil {
		if batchErr == nil {
			batchErr = errors.New("batch returned no report")
		}
		p.publish(ctx, queue.BatchEvent{
			Event:      queue.EventBatchFailed,
			Trigger:    trigger,
			DurationMs: p.now().Sub(start).Milliseconds(),
			Error:      batchErr.Error(),
		})
		return nil, batchErr
	}

	summary := summarize(report, trigger)
	log := p.logger.With("run_id", report.RunID)

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	result, err := p.store.StoreReport(storeCtx, report)
	if err != nil {
		summary.Duration = p.now().Sub(start)
		p.publish(ctx, eventFor(queue.EventBatchFailed, report, summary, err))
		return summary, err
	}
	if result != nil && result.CSV != nil {
		summary.CSVAdded = result.CSV.Added
		summary.CSVTotal = result.CSV.Total
	}
	if result != nil {
		summary.Mirrored = result.Mirrored
	}
	summary.Duration = p.now().Sub(start)

	name := queue.EventBatchCompleted
	if batchErr != nil {
		name = queue.EventBatchFailed
	}
	p.publish(ctx, eventFor(name, report, summary, batchErr))

	log.Info("Pipeline run finished",
		"trigger", trigger,
		"records", summary.Records,
		"skipped", summary.Skipped,
		"csv_added", summary.CSVAdded,
		"mirrored", summary.Mirrored,
		"duration", summary.Duration)

	return summary, batchErr
}

// MergeReport stores an existing report without processing the inbox
func (p *Pipeline) MergeReport(ctx context.Context, path string) (*Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	report, err := processor.ReadReport(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}

	result, err := p.store.StoreReport(ctx, report)
	if err != nil {
		return nil, err
	}

	summary := summarize(report, "merge")
	if result.CSV != nil {
		summary.CSVAdded = result.CSV.Added
		summary.CSVTotal = result.CSV.Total
	}
	summary.Mirrored = result.Mirrored
	summary.Duration = p.now().Sub(start)

	p.logger.Info("Report merged", "report", path, "csv_added", summary.CSVAdded, "csv_total", summary.CSVTotal)
	return summary, nil
}

func (p *Pipeline) publish(ctx context.Context, event queue.BatchEvent) {
	if p.publisher == nil {
		return
	}
	event.Timestamp = p.now()

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.publisher.Publish(pubCtx, event); err != nil {
		p.logger.Warn("Failed to publish batch event", "run_id", event.RunID, "error", err)
	}
}

func summarize(report *processor.ExtractionReport, trigger string) *Summary {
	s := &Summary{
		RunID:   report.RunID,
		Trigger: trigger,
		Records: len(report.Records),
		Skipped: len(report.Skipped),
	}
	for _, rec := range report.Records {
		if rec.LowConfidence {
			s.LowConfidence++
		}
	}
	return s
}

func eventFor(name string, report *processor.ExtractionReport, s *Summary, err error) queue.BatchEvent {
	skipped := make([]string, 0, len(report.Skipped))
	for _, f := range report.Skipped {
		skipped = append(skipped, f.Filename)
	}

	ev := queue.BatchEvent{
		Event:         name,
		RunID:         report.RunID,
		Trigger:       s.Trigger,
		TotalCount:    s.Records,
		SkippedCount:  s.Skipped,
		Skipped:       skipped,
		LowConfidence: s.LowConfidence,
		CSVAdded:      s.CSVAdded,
		Mirrored:      s.Mirrored,
		DurationMs:    s.Duration.Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
