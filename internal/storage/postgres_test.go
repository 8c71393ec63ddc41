package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/iori73/crowd-data-dashboard-v2/internal/processor"
)

func TestSanitizeConfidence(t *testing.T) {
	for in, want := range map[float64]float64{
		0.9632000000000001: 0.9632,
		0.12346:            0.1235,
		-0.5:               0,
		1.2:                1,
		0.8:                0.8,
	} {
		if got := sanitizeConfidence(in); got != want {
			t.Errorf("sanitizeConfidence(%v) = %v, want %v", in, got, want)
		}
	}
}

// postgresURL returns the integration database, skipping when unset
func postgresURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("CROWD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CROWD_TEST_DATABASE_URL not set")
	}
	return url
}

func TestPostgresClientIntegration(t *testing.T) {
	client, err := NewPostgresClient(postgresURL(t))
	if err != nil {
		t.Fatalf("NewPostgresClient: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	// a unique minute keeps reruns against the same database independent
	now := time.Now()
	date := now.Format("2006-01-02")
	tm := now.Format("15:04")
	rec := record("it.png", date, tm, now.Hour(), 1+now.Nanosecond()%60, 3)

	report := &processor.ExtractionReport{
		RunID:       uuid.NewString(),
		ProcessedAt: now,
		TotalCount:  1,
		Records:     []processor.ExtractedRecord{rec},
		Skipped:     []processor.SkippedFile{{Filename: "noise.png", Reason: "PARSE_FAILED"}},
	}

	inserted, err := client.UpsertRecords(ctx, report.RunID, report.Records)
	if err != nil || inserted != 1 {
		t.Fatalf("first UpsertRecords = %d, %v", inserted, err)
	}
	inserted, err = client.UpsertRecords(ctx, report.RunID, report.Records)
	if err != nil || inserted != 0 {
		t.Fatalf("second UpsertRecords = %d, %v (want 0 duplicates inserted)", inserted, err)
	}

	if err := client.RecordRun(ctx, report, 1); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	runs, err := client.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	found := false
	for _, r := range runs {
		if r.RunID == report.RunID {
			found = true
			if r.SkippedCount != 1 || len(r.SkippedFiles) != 1 || r.SkippedFiles[0] != "noise.png" {
				t.Errorf("unexpected run summary %+v", r)
			}
		}
	}
	if !found {
		t.Errorf("run %s not listed", report.RunID)
	}
}
