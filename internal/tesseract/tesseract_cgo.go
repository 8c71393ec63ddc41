//go:build cgo

/**
 * Tesseract OCR - in-process engine
 *
 * Offline OCR through libtesseract, used when OCR_ENGINE=tesseract.
 */

package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/iori73/crowd-data-dashboard-v2/internal/processor"
)

// Config holds Tesseract configuration
type Config struct {
	Languages  []string
	Preprocess bool
}

// Backend extracts text with a fresh gosseract client per call
type Backend struct {
	languages  []string
	preprocess bool
}

// New creates a Tesseract backend
func New(cfg Config) (*Backend, error) {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"jpn", "eng"}
	}
	return &Backend{languages: cfg.Languages, preprocess: cfg.Preprocess}, nil
}

func (b *Backend) Name() string { return "tesseract:" + strings.Join(b.languages, "+") }

type result struct {
	text string
	err  error
}

// Extract performs OCR on the image at path. libtesseract cannot be
// interrupted, so on cancellation the call returns while the engine
// finishes in the background.
func (b *Backend) Extract(ctx context.Context, path string) (string, error) {
	imagePath := path
	cleanup := func() {}
	if b.preprocess {
		if tmp, done, err := processor.PreprocessImage(path); err == nil {
			imagePath, cleanup = tmp, done
		}
	}

	done := make(chan result, 1)
	go func() {
		defer cleanup()
		text, err := b.run(imagePath)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (b *Backend) run(imagePath string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(b.languages...); err != nil {
		return "", fmt.Errorf("failed to set languages: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}
