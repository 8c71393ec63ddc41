/**
 * Crowd Data Worker - Main Entry Point
 *
 * Turns gym occupancy screenshots into rows of the dashboard CSV.
 *
 * Commands:
 * - run (default): process the inbox once and merge the results
 * - merge: merge an existing extraction report into the CSV
 * - watch: process the inbox whenever new screenshots arrive
 * - schedule: process the inbox on a cron schedule via asynq
 *
 * Text sources per screenshot:
 * 1. SVG text nodes (exact, no OCR)
 * 2. OCR backend (tesseract CLI or in-process gosseract), scored and retried
 * 3. Historical fallback estimate when OCR yields nothing usable
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iori73/crowd-data-dashboard-v2/internal/config"
	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
	"github.com/iori73/crowd-data-dashboard-v2/internal/pipeline"
	"github.com/iori73/crowd-data-dashboard-v2/internal/processor"
	"github.com/iori73/crowd-data-dashboard-v2/internal/queue"
	"github.com/iori73/crowd-data-dashboard-v2/internal/storage"
	"github.com/iori73/crowd-data-dashboard-v2/internal/tesseract"
	"github.com/iori73/crowd-data-dashboard-v2/internal/watcher"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	command := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger("Worker")

	// SIGINT/SIGTERM cancel the current command; a batch in progress writes
	// what it has before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "run":
		err = runOnce(ctx, cfg, logger, args)
	case "merge":
		err = mergeReport(ctx, cfg, logger, args)
	case "watch":
		err = watch(ctx, cfg, logger)
	case "schedule":
		err = schedule(ctx, cfg, logger)
	default:
		err = fmt.Errorf("unknown command %q (want run, merge, watch or schedule)", command)
	}

	if err != nil {
		logger.Error("Worker failed", "command", command, "error", err)
		os.Exit(1)
	}
}

// app bundles the components every command shares
type app struct {
	pipeline  *pipeline.Pipeline
	storage   *storage.StorageManager
	publisher *queue.EventPublisher
}

func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	a.storage.Close()
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	raster, err := newRasterBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	extractor := processor.NewFieldExtractor()
	invoker := processor.NewInvoker(raster, processor.NewHistoricalFallback(extractor), processor.InvokerConfig{
		MaxAttempts: cfg.OCRMaxAttempts,
		AcceptScore: processor.Score(cfg.OCRAcceptScore),
		Backoff:     cfg.OCRBackoff,
	}, logging.NewLogger("OCR"))

	batch, err := processor.NewBatchProcessor(&processor.ProcessorConfig{
		InboxDir:               cfg.InboxDir,
		ReportPath:             cfg.ReportPath,
		LowConfidenceThreshold: cfg.LowConfidenceThreshold,
		MaxAttempts:            cfg.OCRMaxAttempts,
		Invoker:                invoker,
		Extractor:              extractor,
		Logger:                 logging.NewLogger("Batch"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batch processor: %w", err)
	}

	sm, err := storage.NewStorageManager(ctx, cfg.CSVPath, cfg.DatabaseURL, logging.NewLogger("Storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &app{storage: sm}
	pcfg := &pipeline.Config{Batch: batch, Store: sm, Logger: logging.NewLogger("Pipeline")}

	if cfg.RedisURL != "" {
		pub, err := queue.NewEventPublisher(&queue.PublisherConfig{RedisURL: cfg.RedisURL}, logging.NewLogger("Events"))
		if err != nil {
			logger.Warn("Redis unavailable, batch events disabled", "error", err)
		} else {
			a.publisher = pub
			pcfg.Publisher = pub
		}
	}

	a.pipeline, err = pipeline.New(pcfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// logStats reports where output goes and what the optional backends look like
func (a *app) logStats(ctx context.Context, logger *logging.Logger) {
	stats, err := a.storage.GetStats(ctx)
	if err != nil {
		logger.Warn("Storage health check failed", "error", err)
	}
	logger.Info("Storage ready", "csv", a.storage.CSV().Path(), "stats", stats)

	if a.publisher != nil {
		events, err := a.publisher.GetStats(ctx)
		if err != nil {
			logger.Warn("Event stats unavailable", "error", err)
			return
		}
		logger.Info("Events ready", "stored", events["stored"], "subscribers", events["subscribers"])
	}
}

// newRasterBackend selects the OCR engine for PNG/JPEG screenshots
func newRasterBackend(cfg *config.Config, logger *logging.Logger) (processor.Backend, error) {
	switch cfg.OCREngine {
	case "tesseract":
		backend, err := tesseract.New(tesseract.Config{
			Languages:  cfg.TesseractLanguages,
			Preprocess: cfg.OCRPreprocess,
		})
		if errors.Is(err, tesseract.ErrUnavailable) {
			return nil, fmt.Errorf("OCR_ENGINE=tesseract needs a cgo build with libtesseract: %w", err)
		}
		if err != nil {
			return nil, err
		}
		logger.Info("Using in-process OCR", "engine", backend.Name())
		return backend, nil
	default:
		backend := processor.NewCommandBackend(cfg.OCRCommand, cfg.OCRArgs, cfg.OCRTimeout, cfg.OCRPreprocess, logging.NewLogger("OCR"))
		logger.Info("Using OCR command", "engine", backend.Name(), "timeout", cfg.OCRTimeout)
		return backend, nil
	}
}

func runOnce(ctx context.Context, cfg *config.Config, logger *logging.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	inbox := fs.String("inbox", cfg.InboxDir, "directory of screenshots to process")
	report := fs.String("report", cfg.ReportPath, "where to write the extraction report")
	csvPath := fs.String("csv", cfg.CSVPath, "CSV time series to merge into")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.InboxDir, cfg.ReportPath, cfg.CSVPath = *inbox, *report, *csvPath

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.pipeline.RunOnce(ctx, "manual")
	if summary != nil {
		logger.Info("Run summary",
			"run_id", summary.RunID,
			"records", summary.Records,
			"skipped", summary.Skipped,
			"low_confidence", summary.LowConfidence,
			"csv_added", summary.CSVAdded,
			"csv_total", summary.CSVTotal)
	}
	return err
}

func mergeReport(ctx context.Context, cfg *config.Config, logger *logging.Logger, args []string) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	report := fs.String("report", cfg.ReportPath, "extraction report to merge")
	csvPath := fs.String("csv", cfg.CSVPath, "CSV time series to merge into")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.ReportPath, cfg.CSVPath = *report, *csvPath

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.pipeline.MergeReport(ctx, cfg.ReportPath)
	if err != nil {
		return err
	}
	logger.Info("Merge summary", "records", summary.Records, "csv_added", summary.CSVAdded, "csv_total", summary.CSVTotal)
	return nil
}

func watch(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := watcher.NewInboxWatcher(cfg.InboxDir, cfg.WatchDebounce, func(ctx context.Context) error {
		_, err := a.pipeline.RunOnce(ctx, "watch")
		return err
	}, logging.NewLogger("Watcher"))
	if err != nil {
		return err
	}

	a.logStats(ctx, logger)
	logger.Info("Worker watching inbox", "inbox", cfg.InboxDir, "csv", cfg.CSVPath)
	return w.Run(ctx)
}

func schedule(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	if cfg.RedisURL == "" {
		return fmt.Errorf("schedule mode requires REDIS_URL")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := queue.NewServer(&queue.ServerConfig{
		RedisURL: cfg.RedisURL,
		Schedule: cfg.BatchSchedule,
		Run: func(ctx context.Context, trigger string) error {
			_, err := a.pipeline.RunOnce(ctx, trigger)
			return err
		},
		Logger: logging.NewLogger("Queue"),
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := srv.Start(); err != nil {
		return err
	}

	// catch up on anything that arrived while the worker was down
	if _, err := srv.Enqueue(ctx, "startup"); err != nil {
		logger.Warn("Startup run not enqueued", "error", err)
	}

	a.logStats(ctx, logger)
	logger.Info("Worker scheduled", "inbox", cfg.InboxDir, "settings", srv.GetStatistics())
	<-ctx.Done()
	logger.Info("Shutdown signal received")
	return srv.Stop()
}
