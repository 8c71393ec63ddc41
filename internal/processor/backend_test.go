package processor

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	apperrors "github.com/iori73/crowd-data-dashboard-v2/internal/errors"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandBackendPlaceholder(t *testing.T) {
	requireShell(t)
	b := NewCommandBackend("sh", []string{"-c", `printf "read:%s" "$0"`, "{image}"}, 5*time.Second, false, quietLogger())

	got, err := b.Extract(context.Background(), "/tmp/FP24_20250915_1040.png")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "read:/tmp/FP24_20250915_1040.png" {
		t.Errorf("Extract = %q", got)
	}
}

func TestCommandBackendAppendsPathWithoutPlaceholder(t *testing.T) {
	requireShell(t)
	b := NewCommandBackend("sh", []string{"-c", `printf "  %s 22人  \n" "$1"`, "sh"}, 5*time.Second, false, quietLogger())

	got, err := b.Extract(context.Background(), "shot.png")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "shot.png 22人" {
		t.Errorf("output should be trimmed, got %q", got)
	}
}

func TestCommandBackendTimeout(t *testing.T) {
	requireShell(t)
	b := NewCommandBackend("sh", []string{"-c", "exec sleep 5"}, 100*time.Millisecond, false, quietLogger())

	start := time.Now()
	_, err := b.Extract(context.Background(), "shot.png")
	if !errors.Is(err, apperrors.ErrOCRTimeout) {
		t.Fatalf("expected OCR_TIMEOUT, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("process was not killed promptly: %v", elapsed)
	}
}

func TestCommandBackendNonZeroExit(t *testing.T) {
	requireShell(t)
	b := NewCommandBackend("sh", []string{"-c", "echo boom >&2; exit 3"}, 5*time.Second, false, quietLogger())

	_, err := b.Extract(context.Background(), "shot.png")
	if !errors.Is(err, apperrors.ErrOCRFailed) {
		t.Fatalf("expected OCR_FAILED, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("stderr should be part of the error: %v", err)
	}
	var pe *apperrors.ProcessingError
	if errors.As(err, &pe) && pe.Details["exit_code"] != 3 {
		t.Errorf("exit_code = %v, want 3", pe.Details["exit_code"])
	}
}

func TestCommandBackendSpawnFailure(t *testing.T) {
	b := NewCommandBackend("/nonexistent/ocr-tool", nil, time.Second, false, quietLogger())
	if _, err := b.Extract(context.Background(), "shot.png"); !errors.Is(err, apperrors.ErrOCRFailed) {
		t.Fatalf("expected OCR_FAILED, got %v", err)
	}
}

func TestCommandBackendCancelled(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewCommandBackend("sh", []string{"-c", "exec sleep 5"}, 5*time.Second, false, quietLogger())
	if _, err := b.Extract(ctx, "shot.png"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
