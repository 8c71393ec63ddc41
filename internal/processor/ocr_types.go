/**
 * OCR Types - Shared data structures for the screenshot pipeline
 *
 * Common types used by the quality assessor, the OCR invoker, the field
 * extractor and the batch processor
 */

package processor

import (
	"path/filepath"
	"strings"
	"time"
)

// SupportedExtensions lists the screenshot formats the inbox accepts
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".svg", ".webp", ".bmp"}

// IsSupportedExt reports whether name has a supported image extension (case-insensitive)
func IsSupportedExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// unsupportedImageExtensions are image formats the pipeline cannot read.
// They are reported as skipped instead of silently ignored.
var unsupportedImageExtensions = []string{".gif", ".tif", ".tiff", ".heic", ".heif", ".avif"}

// IsUnsupportedImage reports whether name looks like an image the pipeline cannot read
func IsUnsupportedImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range unsupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// ImageFile is one screenshot found in the inbox
type ImageFile struct {
	Path string
	Name string
	Ext  string // lower-case, with leading dot
	Size int64
}

// NewImageFile builds an ImageFile from a path without touching the filesystem
func NewImageFile(path string) ImageFile {
	return ImageFile{
		Path: path,
		Name: filepath.Base(path),
		Ext:  strings.ToLower(filepath.Ext(path)),
	}
}

// IsVector reports whether the file is an SVG whose text can be read directly
func (f ImageFile) IsVector() bool {
	return f.Ext == ".svg"
}

// QualityAssessment is the pre-OCR estimate of how readable a screenshot is
type QualityAssessment struct {
	Score      int     `json:"score"` // 0-100
	Assessment string  `json:"assessment"`
	SizeKB     float64 `json:"sizeKb"`
	Format     string  `json:"format"`
}

// Level buckets an attempt score
type Level string

const (
	LevelVeryHigh Level = "Very High"
	LevelHigh     Level = "High"
	LevelMedium   Level = "Medium"
	LevelLow      Level = "Low"
	LevelVeryLow  Level = "Very Low"
)

// Score is the integer 0-100 scale used only to gate OCR retries
type Score int

// Confidence is the 0-1 scale persisted with every record
type Confidence float64

// AttemptScore is the verdict on one OCR attempt
type AttemptScore struct {
	Score Score `json:"score"`
	Level Level `json:"level"`
}

// OCRAttempt records one backend call
type OCRAttempt struct {
	AttemptNumber int           `json:"attempt"`
	RawText       string        `json:"rawText,omitempty"`
	Confidence    AttemptScore  `json:"confidence"`
	Duration      time.Duration `json:"durationNs"`
	Err           error         `json:"-"`
}

// Source says where a record's text came from
type Source string

const (
	SourceOCR      Source = "ocr"
	SourceVector   Source = "vector"
	SourceFallback Source = "fallback"
)

// ExtractedRecord is one structured occupancy observation
type ExtractedRecord struct {
	Filename      string     `json:"filename"`
	Count         int        `json:"count"`
	StatusLabel   string     `json:"statusLabel"`
	StatusCode    int        `json:"statusCode"`
	StatusMin     int        `json:"statusMin"`
	StatusMax     int        `json:"statusMax"`
	Hour          int        `json:"hour"`
	Minute        string     `json:"minute"`
	Time          string     `json:"time"`
	Date          string     `json:"date"`
	RawText       string     `json:"rawText"`
	Confidence    Confidence `json:"confidence"`
	Source        Source     `json:"source"`
	LowConfidence bool       `json:"lowConfidence,omitempty"`
}

// SkippedFile is a screenshot that produced no record
type SkippedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// ExtractionReport is the single artifact written at the end of a batch
type ExtractionReport struct {
	RunID       string            `json:"runId"`
	ProcessedAt time.Time         `json:"processedAt"`
	TotalCount  int               `json:"totalCount"`
	Records     []ExtractedRecord `json:"records"`
	Skipped     []SkippedFile     `json:"skipped"`
}
