package processor

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/iori73/crowd-data-dashboard-v2/internal/fsutil"
)

// WriteReport writes report as indented JSON via a temp file and rename, so
// readers never observe a partial report.
func WriteReport(path string, report *ExtractionReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// ReadReport loads a report written by WriteReport
func ReadReport(path string) (*ExtractionReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report ExtractionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &report, nil
}
