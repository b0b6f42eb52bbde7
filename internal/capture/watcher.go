// Package capture feeds the pipeline from a watched directory: every image
// file that appears is read and delivered as a capture. It stands in for the
// OS screen-capture surface, which drops screenshots into a folder.
package capture

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// writeSettle is how long a file must stay quiet before it is read, so a
// half-written screenshot is not picked up.
const writeSettle = 200 * time.Millisecond

// Deliver hands one raw capture to the core, which assigns identity and
// enqueues it.
type Deliver func(raw []byte, capturedAt time.Time)

type Watcher struct {
	dir     string
	deliver Deliver
	logger  *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewWatcher(dir string, deliver Deliver, logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:     dir,
		deliver: deliver,
		logger:  logger,
		timers:  make(map[string]*time.Timer),
	}
}

// Run watches until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching for captures", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 && isImagePath(ev.Name) {
				w.schedule(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

// schedule (re)arms the settle timer for a path; repeated writes keep
// pushing the read back until the file goes quiet.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(writeSettle, func() { w.ingest(path) })
}

func (w *Watcher) ingest(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	w.mu.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("read capture failed", "path", path, "err", err)
		return
	}
	capturedAt := time.Now()
	if fi, err := os.Stat(path); err == nil {
		capturedAt = fi.ModTime()
	}
	w.logger.Debug("capture picked up", "path", path, "bytes", len(raw))
	w.deliver(raw, capturedAt)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
}

func isImagePath(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return true
	}
	return false
}
