package errors

import (
	"fmt"
	"time"
)

/**
 * Error types for the crowd data pipeline
 *
 * Every per-file failure carries the screenshot filename so a batch can
 * skip it and report why.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// OCR errors
	ErrorOCRFailed         ErrorCode = "OCR_FAILED"
	ErrorOCRTimeout        ErrorCode = "OCR_TIMEOUT"
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"

	// Extraction errors
	ErrorParseFailed ErrorCode = "PARSE_FAILED"

	// Filesystem and storage errors
	ErrorFilesystemFailed  ErrorCode = "FILESYSTEM_FAILED"
	ErrorStorageFailed     ErrorCode = "STORAGE_FAILED"
	ErrorReportWriteFailed ErrorCode = "REPORT_WRITE_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	Filename  string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Is matches any *ProcessingError with the same code
func (e *ProcessingError) Is(target error) bool {
	t, ok := target.(*ProcessingError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is matching by code
var (
	ErrOCRFailed         = &ProcessingError{Code: ErrorOCRFailed}
	ErrOCRTimeout        = &ProcessingError{Code: ErrorOCRTimeout}
	ErrUnsupportedFormat = &ProcessingError{Code: ErrorUnsupportedFormat}
	ErrParseFailed       = &ProcessingError{Code: ErrorParseFailed}
	ErrFilesystemFailed  = &ProcessingError{Code: ErrorFilesystemFailed}
	ErrStorageFailed     = &ProcessingError{Code: ErrorStorageFailed}
	ErrReportWriteFailed = &ProcessingError{Code: ErrorReportWriteFailed}
)

// Factory functions for common errors

func NewOCRFailedError(filename string, backend string, attempt int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR attempt %d failed on backend: %s", attempt, backend),
		Filename:  filename,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_backend": backend,
			"attempt":     attempt,
		},
		Cause: cause,
	}
}

func NewOCRTimeoutError(filename string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRTimeout,
		Message:   fmt.Sprintf("OCR timed out after %v", duration),
		Filename:  filename,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewUnsupportedFormatError(filename string, ext string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported file format: %s", ext),
		Filename:  filename,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"extension": ext,
		},
	}
}

func NewParseFailedError(filename string, missing []string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorParseFailed,
		Message:   fmt.Sprintf("Could not extract fields: %v", missing),
		Filename:  filename,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"missing_fields": missing,
		},
		Cause: cause,
	}
}

func NewFilesystemError(path string, op string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorFilesystemFailed,
		Message:   fmt.Sprintf("Filesystem %s failed: %s", op, path),
		Filename:  path,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": op,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(target string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   fmt.Sprintf("Failed to store records in %s", target),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"target": target,
		},
		Cause: cause,
	}
}

func NewReportWriteError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorReportWriteFailed,
		Message:   fmt.Sprintf("Failed to write extraction report: %s", path),
		Filename:  path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for the skipped list and the run log
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.Filename != "" {
		result["filename"] = e.Filename
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
