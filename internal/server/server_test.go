package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iori73/crowd-data-dashboard-v2/internal/analytics"
	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
	"github.com/iori73/crowd-data-dashboard-v2/internal/queue"
	"github.com/iori73/crowd-data-dashboard-v2/internal/storage"
)

type fakeRuns struct {
	events []queue.BatchEvent
	err    error
	asked  int
}

func (f *fakeRuns) Recent(ctx context.Context, n int) ([]queue.BatchEvent, error) {
	f.asked = n
	return f.events, f.err
}

// performRequest runs one request against the handler
func performRequest(r http.Handler, method, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

func crowdRow(date, tm string, hour, count int, weekday string) storage.CrowdRow {
	return storage.CrowdRow{
		Datetime: date + " " + tm + ":00", Date: date, Time: tm, Hour: hour,
		Weekday: weekday, Count: count, StatusCode: 3,
	}
}

func setupTestServer(t *testing.T, runs RunLister) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "data.csv")
	rows := []storage.CrowdRow{
		crowdRow("2025-09-15", "10:40", 10, 22, "Monday"),
		crowdRow("2025-09-16", "07:00", 7, 5, "Tuesday"),
		crowdRow("2025-09-24", "19:00", 19, 35, "Wednesday"),
	}
	if err := storage.WriteCSV(path, rows); err != nil {
		t.Fatal(err)
	}

	logger := logging.NewLoggerTo("test", io.Discard)
	s := New(analytics.NewLoader(path, time.Minute, logger), runs, logger)
	s.now = func() time.Time { return time.Date(2025, 9, 17, 12, 0, 0, 0, time.Local) }
	return s.Handler(), path
}

func TestHealthz(t *testing.T) {
	r, _ := setupTestServer(t, nil)
	if rec := performRequest(r, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRecordsFiltering(t *testing.T) {
	r, _ := setupTestServer(t, nil)

	tests := []struct {
		path string
		want int
	}{
		{"/api/records", 3},
		{"/api/records?period=all", 3},
		{"/api/records?period=week", 2},
		{"/api/records?period=month", 3},
		{"/api/records?period=lastMonth", 0},
		{"/api/records?period=custom&start=2025-09-16&end=2025-09-30", 2},
	}
	for _, tt := range tests {
		rec := performRequest(r, http.MethodGet, tt.path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d body=%s", tt.path, rec.Code, rec.Body.String())
		}
		var body struct {
			Count   int                `json:"count"`
			Records []storage.CrowdRow `json:"records"`
		}
		decode(t, rec, &body)
		if body.Count != tt.want || len(body.Records) != tt.want {
			t.Errorf("%s: count = %d, want %d", tt.path, body.Count, tt.want)
		}
	}
}

func TestBadFilterIs400(t *testing.T) {
	r, _ := setupTestServer(t, nil)
	for _, path := range []string{
		"/api/records?period=year",
		"/api/stats/weekly?period=custom&start=yesterday&end=2025-09-30",
		"/api/insights?period=custom&start=2025-09-30&end=2025-09-01",
	} {
		if rec := performRequest(r, http.MethodGet, path); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestStatsEndpoints(t *testing.T) {
	r, _ := setupTestServer(t, nil)

	rec := performRequest(r, http.MethodGet, "/api/stats/weekly")
	var weekly []analytics.WeekdayStats
	decode(t, rec, &weekly)
	if len(weekly) != 7 || weekly[0].Hours[10].AvgCount != 22 {
		t.Errorf("weekly = %+v", weekly)
	}

	rec = performRequest(r, http.MethodGet, "/api/stats/overall")
	var overall analytics.OverallStats
	decode(t, rec, &overall)
	if overall.TotalRecords != 3 || overall.PeakCount != 35 || overall.QuietCount != 5 {
		t.Errorf("overall = %+v", overall)
	}

	rec = performRequest(r, http.MethodGet, "/api/stats/overall?period=lastMonth")
	if rec.Code != http.StatusOK || rec.Body.String() != "null" {
		t.Errorf("empty overall = %d %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(r, http.MethodGet, "/api/stats/hourly")
	var hourly struct {
		Hours [24]int `json:"hours"`
	}
	decode(t, rec, &hourly)
	if hourly.Hours[7] != 5 || hourly.Hours[19] != 35 {
		t.Errorf("hourly = %v", hourly.Hours)
	}

	rec = performRequest(r, http.MethodGet, "/api/insights")
	var insights analytics.InsightReport
	decode(t, rec, &insights)
	if len(insights.BestHours) != 1 || insights.BestHours[0].Hour != 7 || len(insights.BusyHours) != 1 {
		t.Errorf("insights = %+v", insights)
	}
}

func TestUnreadableCSVIs503(t *testing.T) {
	r, path := setupTestServer(t, nil)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}

	if rec := performRequest(r, http.MethodGet, "/api/records"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("records status = %d, want 503", rec.Code)
	}
	if rec := performRequest(r, http.MethodPost, "/api/cache/refresh"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("refresh status = %d, want 503", rec.Code)
	}
}

func TestCacheRefresh(t *testing.T) {
	r, path := setupTestServer(t, nil)

	// warm the cache, then grow the CSV behind it
	performRequest(r, http.MethodGet, "/api/records")
	rows, _, _ := storage.ReadCSV(path)
	rows = append(rows, crowdRow("2025-09-17", "08:00", 8, 9, "Wednesday"))
	if err := storage.WriteCSV(path, rows); err != nil {
		t.Fatal(err)
	}

	var body struct {
		Count int `json:"count"`
	}
	decode(t, performRequest(r, http.MethodGet, "/api/records"), &body)
	if body.Count != 3 {
		t.Errorf("cached count = %d, want 3", body.Count)
	}

	rec := performRequest(r, http.MethodPost, "/api/cache/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", rec.Code)
	}
	decode(t, performRequest(r, http.MethodGet, "/api/records"), &body)
	if body.Count != 4 {
		t.Errorf("refreshed count = %d, want 4", body.Count)
	}
}

func TestRuns(t *testing.T) {
	r, _ := setupTestServer(t, nil)
	if rec := performRequest(r, http.MethodGet, "/api/runs"); rec.Code != http.StatusNotFound {
		t.Errorf("runs without Redis = %d, want 404", rec.Code)
	}

	runs := &fakeRuns{events: []queue.BatchEvent{{Event: queue.EventBatchCompleted, RunID: "run-1"}}}
	r, _ = setupTestServer(t, runs)

	rec := performRequest(r, http.MethodGet, "/api/runs?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Runs []queue.BatchEvent `json:"runs"`
	}
	decode(t, rec, &body)
	if len(body.Runs) != 1 || body.Runs[0].RunID != "run-1" || runs.asked != 5 {
		t.Errorf("runs = %+v asked=%d", body.Runs, runs.asked)
	}

	if rec := performRequest(r, http.MethodGet, "/api/runs?limit=0"); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", rec.Code)
	}

	runs.err = errors.New("redis down")
	if rec := performRequest(r, http.MethodGet, "/api/runs"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("redis failure status = %d, want 503", rec.Code)
	}
}
