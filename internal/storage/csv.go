/**
 * CSV time series for the crowd dashboard
 *
 * The CSV is the primary store: the dashboard reads it and every batch
 * merges its records into it.
 */

package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iori73/crowd-data-dashboard-v2/internal/fsutil"
	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
	"github.com/iori73/crowd-data-dashboard-v2/internal/processor"
)

// CSVHeader is the column order written to the time series file
var CSVHeader = []string{
	"datetime", "date", "time", "hour", "weekday",
	"count", "status_label", "status_code", "status_min", "status_max", "raw_text",
}

const datetimeLayout = "2006-01-02 15:04:05"

// CrowdRow is one line of the time series
type CrowdRow struct {
	Datetime    string `json:"datetime"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Hour        int    `json:"hour"`
	Weekday     string `json:"weekday"`
	Count       int    `json:"count"`
	StatusLabel string `json:"statusLabel"`
	StatusCode  int    `json:"statusCode"`
	StatusMin   int    `json:"statusMin"`
	StatusMax   int    `json:"statusMax"`
	RawText     string `json:"rawText"`
}

// Key identifies duplicate observations
func (r CrowdRow) Key() string {
	return r.Datetime + "_" + strconv.Itoa(r.Count)
}

// Timestamp parses Datetime as a local wall-clock time
func (r CrowdRow) Timestamp() (time.Time, error) {
	return time.ParseInLocation(datetimeLayout, r.Datetime, time.Local)
}

// RowFromRecord converts an extracted record into a CSV row
func RowFromRecord(rec processor.ExtractedRecord) (CrowdRow, error) {
	datetime := rec.Date + " " + rec.Time + ":00"
	ts, err := time.Parse(datetimeLayout, datetime)
	if err != nil {
		return CrowdRow{}, fmt.Errorf("invalid date/time %q for %s: %w", datetime, rec.Filename, err)
	}

	return CrowdRow{
		Datetime:    datetime,
		Date:        rec.Date,
		Time:        rec.Time,
		Hour:        rec.Hour,
		Weekday:     ts.Weekday().String(),
		Count:       rec.Count,
		StatusLabel: rec.StatusLabel,
		StatusCode:  rec.StatusCode,
		StatusMin:   rec.StatusMin,
		StatusMax:   rec.StatusMax,
		RawText:     rec.RawText,
	}, nil
}

// ReadCSV loads rows from path. A missing file yields no rows. Rows that
// cannot be parsed are dropped and counted in malformed.
func ReadCSV(path string) (rows []CrowdRow, malformed int, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return ParseCSV(bytes.NewReader(data))
}

// ParseCSV reads rows from r, mapping columns by header name
func ParseCSV(r io.Reader) (rows []CrowdRow, malformed int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{"datetime", "count"} {
		if _, ok := cols[required]; !ok {
			return nil, 0, fmt.Errorf("CSV header missing %q column", required)
		}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				malformed++
				continue
			}
			return nil, malformed, err
		}

		row, ok := parseRow(record, cols)
		if !ok {
			malformed++
			continue
		}
		rows = append(rows, row)
	}

	return rows, malformed, nil
}

func parseRow(record []string, cols map[string]int) (CrowdRow, bool) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	optionalInt := func(name string) int {
		n, _ := strconv.Atoi(field(name))
		return n
	}

	row := CrowdRow{
		Datetime:    field("datetime"),
		Date:        field("date"),
		Time:        field("time"),
		Weekday:     field("weekday"),
		StatusLabel: field("status_label"),
		StatusCode:  optionalInt("status_code"),
		StatusMin:   optionalInt("status_min"),
		StatusMax:   optionalInt("status_max"),
		RawText:     field("raw_text"),
	}

	ts, err := time.Parse(datetimeLayout, row.Datetime)
	if err != nil {
		return CrowdRow{}, false
	}
	count, err := strconv.Atoi(field("count"))
	if err != nil || count < 0 {
		return CrowdRow{}, false
	}
	row.Count = count

	row.Hour = ts.Hour()
	if h := field("hour"); h != "" {
		if n, err := strconv.Atoi(h); err == nil && n >= 0 && n <= 23 {
			row.Hour = n
		}
	}
	if row.Date == "" {
		row.Date = ts.Format("2006-01-02")
	}
	if row.Time == "" {
		row.Time = ts.Format("15:04")
	}
	if row.Weekday == "" {
		row.Weekday = ts.Weekday().String()
	}

	return row, true
}

// MergeRows appends incoming to existing, drops duplicates by (datetime,
// count) keeping the first occurrence, and sorts by datetime.
func MergeRows(existing, incoming []CrowdRow) (merged []CrowdRow, added int) {
	seen := make(map[string]bool, len(existing)+len(incoming))
	merged = make([]CrowdRow, 0, len(existing)+len(incoming))

	for _, r := range existing {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		merged = append(merged, r)
	}
	base := len(merged)
	for _, r := range incoming {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		merged = append(merged, r)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Datetime < merged[j].Datetime })
	return merged, len(merged) - base
}

// WriteCSV atomically replaces path with rows
func WriteCSV(path string, rows []CrowdRow) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{
			r.Datetime,
			r.Date,
			r.Time,
			strconv.Itoa(r.Hour),
			r.Weekday,
			strconv.Itoa(r.Count),
			r.StatusLabel,
			strconv.Itoa(r.StatusCode),
			strconv.Itoa(r.StatusMin),
			strconv.Itoa(r.StatusMax),
			r.RawText,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// MergeResult summarises one CSV merge
type MergeResult struct {
	Added     int `json:"added"`
	Total     int `json:"total"`
	Malformed int `json:"malformed"`
	Rejected  int `json:"rejected"`
}

// CSVStore owns the time series file
type CSVStore struct {
	path   string
	logger *logging.Logger
}

// NewCSVStore creates a store for path
func NewCSVStore(path string, logger *logging.Logger) *CSVStore {
	if logger == nil {
		logger = logging.NewLogger("CSV")
	}
	return &CSVStore{path: path, logger: logger}
}

// Path returns the CSV file location
func (s *CSVStore) Path() string { return s.path }

// Load reads all valid rows
func (s *CSVStore) Load() ([]CrowdRow, error) {
	rows, malformed, err := ReadCSV(s.path)
	if err != nil {
		return nil, err
	}
	if malformed > 0 {
		s.logger.Warn("Skipped malformed CSV rows", "path", s.path, "malformed", malformed)
	}
	return rows, nil
}

// Merge adds records to the CSV, skipping ones already present
func (s *CSVStore) Merge(records []processor.ExtractedRecord) (*MergeResult, error) {
	existing, malformed, err := ReadCSV(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	result := &MergeResult{Malformed: malformed}
	incoming := make([]CrowdRow, 0, len(records))
	for _, rec := range records {
		row, err := RowFromRecord(rec)
		if err != nil {
			s.logger.Warn("Rejected record", "file", rec.Filename, "error", err)
			result.Rejected++
			continue
		}
		incoming = append(incoming, row)
	}

	merged, added := MergeRows(existing, incoming)
	result.Added = added
	result.Total = len(merged)

	if malformed > 0 {
		s.logger.Warn("Malformed CSV rows will be dropped on rewrite", "path", s.path, "malformed", malformed)
	}
	if added == 0 {
		s.logger.Info("CSV already up to date", "path", s.path, "total", result.Total)
		return result, nil
	}

	if err := WriteCSV(s.path, merged); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", s.path, err)
	}

	s.logger.Info("CSV updated", "path", s.path, "added", added, "total", result.Total)
	return result, nil
}
