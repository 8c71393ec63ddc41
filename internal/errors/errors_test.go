package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"
)

func TestIsMatchesByCode(t *testing.T) {
	cause := fmt.Errorf("exit status 1")
	err := fmt.Errorf("attempt: %w", NewOCRFailedError("a.png", "tesseract", 2, cause))

	if !stderrors.Is(err, ErrOCRFailed) {
		t.Errorf("expected OCR_FAILED match")
	}
	if stderrors.Is(err, ErrOCRTimeout) {
		t.Errorf("OCR_FAILED must not match OCR_TIMEOUT")
	}
	if !stderrors.Is(err, cause) {
		t.Errorf("cause should be reachable through Unwrap")
	}
}

func TestAsExposesFilename(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewParseFailedError("b.png", []string{"count"}, nil))

	var pe *ProcessingError
	if !stderrors.As(err, &pe) {
		t.Fatalf("expected *ProcessingError")
	}
	if pe.Filename != "b.png" || pe.Code != ErrorParseFailed {
		t.Errorf("got filename=%q code=%q", pe.Filename, pe.Code)
	}
}

func TestToMap(t *testing.T) {
	err := NewOCRTimeoutError("c.png", 30*time.Second, fmt.Errorf("killed"))
	m := err.ToMap()

	if m["error_code"] != "OCR_TIMEOUT" {
		t.Errorf("error_code = %v", m["error_code"])
	}
	if m["filename"] != "c.png" {
		t.Errorf("filename = %v", m["filename"])
	}
	if m["timeout_duration"] != "30s" {
		t.Errorf("timeout_duration = %v", m["timeout_duration"])
	}
	if m["cause"] != "killed" {
		t.Errorf("cause = %v", m["cause"])
	}
}

func TestErrorString(t *testing.T) {
	err := NewReportWriteError("out.json", nil)
	if got := err.Error(); got != "REPORT_WRITE_FAILED: Failed to write extraction report: out.json" {
		t.Errorf("Error() = %q", got)
	}
}

func TestUnsupportedFormatError(t *testing.T) {
	err := NewUnsupportedFormatError("shot.heic", ".heic")

	if !stderrors.Is(err, ErrUnsupportedFormat) || stderrors.Is(err, ErrParseFailed) {
		t.Errorf("unexpected code match for %v", err)
	}
	if got := err.Error(); got != "UNSUPPORTED_FORMAT: Unsupported file format: .heic" {
		t.Errorf("Error() = %q", got)
	}
	if m := err.ToMap(); m["extension"] != ".heic" || m["filename"] != "shot.heic" {
		t.Errorf("ToMap() = %v", m)
	}
}
