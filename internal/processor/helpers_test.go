package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
)

// scriptedResponse is one canned reply from fakeBackend
type scriptedResponse struct {
	text string
	err  error
}

// fakeBackend replays responses in order and repeats the last one.
// byName pins the reply for a file base name regardless of call order.
type fakeBackend struct {
	mu        sync.Mutex
	responses []scriptedResponse
	byName    map[string]scriptedResponse
	calls     []string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Extract(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	if r, ok := f.byName[filepath.Base(path)]; ok {
		return r.text, r.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	return r.text, r.err
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recordingSleeper captures requested backoff durations without waiting
type recordingSleeper struct {
	slept []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return ctx.Err()
}

func quietLogger() *logging.Logger {
	return logging.NewLoggerTo("test", io.Discard)
}

func fixedClock(t *testing.T, value string) func() time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad clock value %q: %v", value, err)
	}
	return func() time.Time { return ts }
}

// writeSizedFile creates name in dir filled with size bytes
func writeSizedFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func writeTextFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func svgWithTexts(texts ...string) string {
	s := `<svg xmlns="http://www.w3.org/2000/svg" width="390" height="844">`
	for i, t := range texts {
		s += fmt.Sprintf(`<text x="10" y="%d">%s</text>`, 40*(i+1), t)
	}
	return s + `</svg>`
}
