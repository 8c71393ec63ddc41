//go:build !cgo

package tesseract

import "context"

// Config holds Tesseract configuration
type Config struct {
	Languages  []string
	Preprocess bool
}

// Backend is a stub in builds without cgo
type Backend struct{}

// New always fails without cgo
func New(cfg Config) (*Backend, error) { return nil, ErrUnavailable }

func (b *Backend) Name() string { return "tesseract" }

func (b *Backend) Extract(ctx context.Context, path string) (string, error) {
	return "", ErrUnavailable
}
