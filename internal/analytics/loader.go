/**
 * Cached CSV loader for the dashboard
 *
 * The dashboard reads the time series on every request; the loader keeps
 * the last good load for a TTL so requests do not reparse the file.
 */

package analytics

import (
	"fmt"
	"sync"
	"time"

	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
	"github.com/iori73/crowd-data-dashboard-v2/internal/storage"
)

// DefaultTTL is how long loaded rows are served from memory
const DefaultTTL = 5 * time.Minute

// Loader serves validated CSV rows from a TTL cache
type Loader struct {
	path     string
	ttl      time.Duration
	logger   *logging.Logger
	now      func() time.Time
	read     func(path string) ([]storage.CrowdRow, int, error)
	mu       sync.Mutex
	rows     []storage.CrowdRow
	lastLoad time.Time
}

// NewLoader creates a loader for the CSV at path
func NewLoader(path string, ttl time.Duration, logger *logging.Logger) *Loader {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.NewLogger("Loader")
	}
	return &Loader{
		path:   path,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		read:   storage.ReadCSV,
	}
}

// Load returns the cached rows while they are fresh, otherwise rereads the
// CSV. force skips the cache. An empty result is never cached.
func (l *Loader) Load(force bool) ([]storage.CrowdRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !force && len(l.rows) > 0 && now.Sub(l.lastLoad) < l.ttl {
		return l.rows, nil
	}

	rows, malformed, err := l.read(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", l.path, err)
	}
	if malformed > 0 {
		l.logger.Warn("Skipped malformed CSV rows", "path", l.path, "malformed", malformed)
	}

	valid := validRows(rows)
	l.rows = valid
	l.lastLoad = now

	l.logger.Info("Loaded CSV", "path", l.path, "records", len(valid))
	return valid, nil
}

// Clear drops the cached rows
func (l *Loader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = nil
	l.lastLoad = time.Time{}
	l.logger.Info("Cache cleared")
}

// Path returns the CSV location
func (l *Loader) Path() string { return l.path }

// validRows keeps rows that carry every field the statistics rely on
func validRows(rows []storage.CrowdRow) []storage.CrowdRow {
	out := make([]storage.CrowdRow, 0, len(rows))
	for _, r := range rows {
		if r.Datetime == "" || r.Date == "" || r.Time == "" || r.Weekday == "" {
			continue
		}
		if r.Hour < 0 || r.Hour > 23 || r.Count < 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}
