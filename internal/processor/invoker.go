package processor

import (
	"context"
	"time"

	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
)

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the default Sleeper
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// InvokerConfig controls the OCR retry loop
type InvokerConfig struct {
	MaxAttempts int
	AcceptScore Score
	Backoff     time.Duration // attempt n waits n*Backoff before attempt n+1
	Sleep       Sleeper
}

// DefaultInvokerConfig returns 3 attempts, accept at 70, 1s linear backoff
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{MaxAttempts: 3, AcceptScore: 70, Backoff: time.Second}
}

// InvocationResult is the text chosen for one screenshot and how it was obtained
type InvocationResult struct {
	Text     string
	Source   Source
	Attempts []OCRAttempt
}

// Invoker picks the text source for a screenshot: SVG text, scored OCR
// attempts, or the historical fallback.
type Invoker struct {
	raster   Backend
	vector   Backend
	fallback *HistoricalFallback
	cfg      InvokerConfig
	logger   *logging.Logger
}

// NewInvoker creates an invoker. raster may be nil, in which case every
// raster screenshot goes straight to the fallback.
func NewInvoker(raster Backend, fallback *HistoricalFallback, cfg InvokerConfig, logger *logging.Logger) *Invoker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Sleep == nil {
		cfg.Sleep = ContextSleep
	}
	if fallback == nil {
		fallback = NewHistoricalFallback(nil)
	}
	if logger == nil {
		logger = logging.NewLogger("OCR")
	}
	return &Invoker{
		raster:   raster,
		vector:   VectorBackend{},
		fallback: fallback,
		cfg:      cfg,
		logger:   logger,
	}
}

// Invoke returns text for file. It only fails when ctx is cancelled; every
// backend failure degrades to the historical fallback.
func (i *Invoker) Invoke(ctx context.Context, file ImageFile, quality QualityAssessment) (*InvocationResult, error) {
	log := i.logger.With("file", file.Name)

	if file.IsVector() {
		text, err := i.vector.Extract(ctx, file.Path)
		if err == nil {
			return &InvocationResult{Text: text, Source: SourceVector}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("SVG text extraction failed, using historical fallback", "error", err)
		return i.useFallback(file, nil), nil
	}

	if i.raster == nil {
		log.Warn("No OCR backend configured, using historical fallback")
		return i.useFallback(file, nil), nil
	}

	attempts := make([]OCRAttempt, 0, i.cfg.MaxAttempts)
	for n := 1; n <= i.cfg.MaxAttempts; n++ {
		start := time.Now()
		text, err := i.raster.Extract(ctx, file.Path)
		attempt := OCRAttempt{AttemptNumber: n, RawText: text, Duration: time.Since(start), Err: err}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("OCR attempt failed", "attempt", n, "max", i.cfg.MaxAttempts, "backend", i.raster.Name(), "error", err)
		} else {
			attempt.Confidence = ScoreAttempt(text, quality)
			log.Info("OCR attempt scored", "attempt", n, "score", attempt.Confidence.Score, "level", attempt.Confidence.Level)
			if attempt.Confidence.Score >= i.cfg.AcceptScore {
				attempts = append(attempts, attempt)
				return &InvocationResult{Text: text, Source: SourceOCR, Attempts: attempts}, nil
			}
		}
		attempts = append(attempts, attempt)

		if n < i.cfg.MaxAttempts {
			if err := i.cfg.Sleep(ctx, time.Duration(n)*i.cfg.Backoff); err != nil {
				return nil, err
			}
		}
	}

	log.Warn("OCR attempts exhausted, using historical fallback", "attempts", len(attempts))
	return i.useFallback(file, attempts), nil
}

func (i *Invoker) useFallback(file ImageFile, attempts []OCRAttempt) *InvocationResult {
	text := i.fallback.Synthesize(file.Name)
	i.logger.Info("Historical fallback text", "file", file.Name, "text", text)
	return &InvocationResult{Text: text, Source: SourceFallback, Attempts: attempts}
}
