/**
 * Batch Processor for the crowd data worker
 *
 * Turns every screenshot in the inbox into an occupancy record:
 * - quality assessment before OCR
 * - scored OCR attempts with linear backoff
 * - historical fallback when OCR yields nothing usable
 * - one extraction report per run, written atomically
 */

package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/iori73/crowd-data-dashboard-v2/internal/errors"
	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
)

const defaultFileAttempts = 3

// ProcessorConfig holds batch processor configuration
type ProcessorConfig struct {
	InboxDir               string
	ReportPath             string
	LowConfidenceThreshold float64
	MaxAttempts            int // OCR passes per file before a low or unparseable result is final
	Invoker                *Invoker
	Extractor              *FieldExtractor
	Logger                 *logging.Logger
}

// BatchProcessor processes the inbox sequentially, one screenshot at a time
type BatchProcessor struct {
	config    *ProcessorConfig
	invoker   *Invoker
	extractor *FieldExtractor
	logger    *logging.Logger
	now       func() time.Time
	newRunID  func() string
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(cfg *ProcessorConfig) (*BatchProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.InboxDir == "" {
		return nil, fmt.Errorf("inbox directory is required")
	}
	if cfg.ReportPath == "" {
		return nil, fmt.Errorf("report path is required")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("OCR invoker is required")
	}

	extractor := cfg.Extractor
	if extractor == nil {
		extractor = NewFieldExtractor()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Batch")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultFileAttempts
	}

	return &BatchProcessor{
		config:    cfg,
		invoker:   cfg.Invoker,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}, nil
}

// ListInbox returns the supported screenshots in dir sorted by name
func ListInbox(dir string) ([]ImageFile, error) {
	files, _, err := ScanInbox(dir)
	return files, err
}

// ScanInbox returns the supported screenshots in dir and the names of
// image files in formats the pipeline cannot read, both sorted by name.
// Other files are ignored.
func ScanInbox(dir string) ([]ImageFile, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	var files []ImageFile
	var unsupported []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if IsUnsupportedImage(e.Name()) {
			unsupported = append(unsupported, e.Name())
			continue
		}
		if !IsSupportedExt(e.Name()) {
			continue
		}
		f := NewImageFile(filepath.Join(dir, e.Name()))
		if info, err := e.Info(); err == nil {
			f.Size = info.Size()
		}
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	sort.Strings(unsupported)
	return files, unsupported, nil
}

// Run processes every screenshot and writes the extraction report.
// Only an unreadable inbox or an unwritable report fails the run; a
// cancelled ctx stops early and still writes what was processed.
func (p *BatchProcessor) Run(ctx context.Context) (*ExtractionReport, error) {
	runID := p.newRunID()
	log := p.logger.With("run_id", runID)

	files, unsupported, err := ScanInbox(p.config.InboxDir)
	if err != nil {
		return nil, apperrors.NewFilesystemError(p.config.InboxDir, "read inbox", err)
	}

	report := &ExtractionReport{
		RunID:       runID,
		ProcessedAt: p.now().UTC(),
		Records:     []ExtractedRecord{},
		Skipped:     []SkippedFile{},
	}

	for _, name := range unsupported {
		err := apperrors.NewUnsupportedFormatError(name, strings.ToLower(filepath.Ext(name)))
		log.Warn("Skipping screenshot", "file", name, "error", err)
		report.Skipped = append(report.Skipped, SkippedFile{Filename: name, Reason: err.Error()})
	}

	if len(files) == 0 {
		log.Info("No screenshots to process", "inbox", p.config.InboxDir)
	} else {
		log.Info("Processing screenshots", "count", len(files), "inbox", p.config.InboxDir)
	}

	var runErr error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		rec, err := p.ProcessFile(ctx, file)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				runErr = ctxErr
				break
			}
			log.Warn("Skipping screenshot", "file", file.Name, "error", err)
			report.Skipped = append(report.Skipped, SkippedFile{Filename: file.Name, Reason: err.Error()})
			continue
		}

		log.Info("Extracted record",
			"file", file.Name,
			"count", rec.Count,
			"status", rec.StatusCode,
			"time", rec.Time,
			"confidence", rec.Confidence,
			"source", rec.Source)
		report.Records = append(report.Records, *rec)
	}

	report.TotalCount = len(report.Records)

	if err := WriteReport(p.config.ReportPath, report); err != nil {
		return report, apperrors.NewReportWriteError(p.config.ReportPath, err)
	}

	log.Info("Batch complete",
		"records", report.TotalCount,
		"skipped", len(report.Skipped),
		"report", p.config.ReportPath)

	if runErr != nil {
		return report, fmt.Errorf("batch interrupted: %w", runErr)
	}
	return report, nil
}

// ProcessFile turns one screenshot into a scored record. OCR text that
// cannot be parsed or scores below the low confidence threshold is read
// again while attempts remain; the last low-confidence record is kept and
// annotated. SVG and fallback text are deterministic and are not retried.
func (p *BatchProcessor) ProcessFile(ctx context.Context, file ImageFile) (*ExtractedRecord, error) {
	if _, err := os.Stat(file.Path); err != nil {
		return nil, apperrors.NewFilesystemError(file.Path, "read", err)
	}

	quality := AssessImageQuality(file.Path)
	p.logger.Debug("Image quality", "file", file.Name, "score", quality.Score, "assessment", quality.Assessment)

	maxAttempts := p.config.MaxAttempts
	for attempt := 1; ; attempt++ {
		result, err := p.invoker.Invoke(ctx, file, quality)
		if err != nil {
			return nil, err
		}
		final := attempt >= maxAttempts || result.Source != SourceOCR

		rec, err := p.extract(result, file.Name)
		if err != nil {
			if final {
				return nil, err
			}
			p.logger.Warn("Extraction failed, reading again", "file", file.Name, "attempt", attempt, "max", maxAttempts, "error", err)
			continue
		}

		low := float64(rec.Confidence) < p.config.LowConfidenceThreshold
		if low && !final {
			p.logger.Warn("Low confidence, reading again", "file", file.Name, "attempt", attempt, "max", maxAttempts, "confidence", rec.Confidence)
			continue
		}

		// synthesized text is an estimate whatever it scores
		rec.LowConfidence = low || rec.Source == SourceFallback
		return rec, nil
	}
}

// extract parses and scores the text of one invocation
func (p *BatchProcessor) extract(result *InvocationResult, filename string) (*ExtractedRecord, error) {
	rec, err := p.extractor.Extract(result.Text, filename)
	if err != nil {
		var incomplete *IncompleteTextError
		if errors.As(err, &incomplete) {
			return nil, apperrors.NewParseFailedError(filename, incomplete.Missing, err)
		}
		return nil, apperrors.NewParseFailedError(filename, nil, err)
	}

	consistency := Consistency(rec, filename)
	rec.Source = result.Source
	rec.Confidence = ScoreRecord(rec, NormalizeText(result.Text), consistency, result.Source)
	return rec, nil
}
