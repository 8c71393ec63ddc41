package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewLoggerTo("test", io.Discard)
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, dir string, trigger TriggerFunc) (cancel func(), done <-chan error) {
	t.Helper()
	w, err := NewInboxWatcher(dir, 150*time.Millisecond, trigger, quietLogger())
	if err != nil {
		t.Fatalf("NewInboxWatcher: %v", err)
	}
	ctx, cancelFn := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- w.Run(ctx) }()
	return cancelFn, ch
}

func stop(t *testing.T, cancel func(), done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not stop")
	}
}

func TestWatcherInitialTrigger(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "FP24_20250915_1040.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	var runs int32
	cancel, done := startWatcher(t, dir, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	defer stop(t, cancel, done)

	if !waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&runs) >= 1 }) {
		t.Fatalf("initial trigger did not run")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()

	var runs int32
	cancel, done := startWatcher(t, dir, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	defer stop(t, cancel, done)

	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&runs) != 0 {
		t.Fatalf("empty inbox should not trigger")
	}

	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "shot_"+string(rune('a'+i))+".png")
		if err := os.WriteFile(name, []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 3*time.Second, func() bool { return atomic.LoadInt32(&runs) >= 1 }) {
		t.Fatalf("burst did not trigger a run")
	}
	time.Sleep(500 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("runs = %d, want 1 for a single burst", got)
	}
}

func TestWatcherIgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()

	var runs int32
	cancel, done := startWatcher(t, dir, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	defer stop(t, cancel, done)

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(600 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 0 {
		t.Errorf("runs = %d, want 0", got)
	}
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		ev   fsnotify.Event
		want bool
	}{
		{fsnotify.Event{Name: "/in/a.png", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "/in/a.SVG", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "/in/a.png", Op: fsnotify.Remove}, false},
		{fsnotify.Event{Name: "/in/a.png", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "/in/a.txt", Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		if got := relevant(tt.ev); got != tt.want {
			t.Errorf("relevant(%v) = %v, want %v", tt.ev, got, tt.want)
		}
	}
}

func TestNewInboxWatcherValidation(t *testing.T) {
	if _, err := NewInboxWatcher("", time.Second, func(context.Context) error { return nil }, nil); err == nil {
		t.Errorf("expected error for empty dir")
	}
	if _, err := NewInboxWatcher("/tmp", time.Second, nil, nil); err == nil {
		t.Errorf("expected error for nil trigger")
	}
	w, err := NewInboxWatcher("/tmp", time.Millisecond, func(context.Context) error { return nil }, quietLogger())
	if err != nil || w.debounce != minDebounce {
		t.Errorf("debounce not clamped: %v %v", w, err)
	}
}
