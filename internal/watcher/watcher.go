// Package watcher triggers pipeline runs when screenshots land in the inbox.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
	"github.com/iori73/crowd-data-dashboard-v2/internal/processor"
)

const minDebounce = 100 * time.Millisecond

// TriggerFunc runs one batch
type TriggerFunc func(ctx context.Context) error

// InboxWatcher debounces inbox events into sequential trigger calls
type InboxWatcher struct {
	dir      string
	debounce time.Duration
	trigger  TriggerFunc
	logger   *logging.Logger
}

// NewInboxWatcher creates a watcher for dir
func NewInboxWatcher(dir string, debounce time.Duration, trigger TriggerFunc, logger *logging.Logger) (*InboxWatcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("inbox directory is required")
	}
	if trigger == nil {
		return nil, fmt.Errorf("trigger is required")
	}
	if debounce < minDebounce {
		debounce = minDebounce
	}
	if logger == nil {
		logger = logging.NewLogger("Watcher")
	}
	return &InboxWatcher{dir: dir, debounce: debounce, trigger: trigger, logger: logger}, nil
}

// Run watches until ctx is done. Screenshots already in the inbox trigger a
// run straight away. Trigger errors are logged and watching continues.
func (w *InboxWatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox %s: %w", w.dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("Watching inbox", "dir", w.dir, "debounce", w.debounce)

	if files, err := processor.ListInbox(w.dir); err == nil && len(files) > 0 {
		w.logger.Info("Inbox already holds screenshots", "count", len(files))
		w.fire(ctx)
	}

	// pending maps a file to the time of its last event
	pending := map[string]time.Time{}
	ticker := time.NewTicker(w.debounce / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if !relevant(ev) {
				continue
			}
			pending[filepath.Base(ev.Name)] = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.Warn("Watch error", "error", err)

		case now := <-ticker.C:
			if len(pending) == 0 || !settled(pending, now, w.debounce) {
				continue
			}
			w.logger.Info("Inbox changed", "files", len(pending))
			pending = map[string]time.Time{}
			w.fire(ctx)
		}
	}
}

func (w *InboxWatcher) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := w.trigger(ctx); err != nil {
		w.logger.Error("Triggered run failed", "error", err)
	}
}

func relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return false
	}
	return processor.IsSupportedExt(ev.Name)
}

// settled reports whether every pending file has been quiet for debounce
func settled(pending map[string]time.Time, now time.Time, debounce time.Duration) bool {
	for _, last := range pending {
		if now.Sub(last) < debounce {
			return false
		}
	}
	return true
}
