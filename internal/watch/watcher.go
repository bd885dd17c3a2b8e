// =============================================================================
// talktime - Input Watcher
// =============================================================================
//
// This module re-runs the pipeline when one of its raw inputs changes.
// Parent directories are watched so editors that replace files by rename are
// still seen. Bursts of events collapse into one run after the debounce.
//
// =============================================================================

package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a fixed set of files. Their parent directories are watched
// rather than the files themselves so exports replaced by rename are seen.
type Watcher struct {
	files    map[string]bool
	dirs     []string
	debounce time.Duration
	run      func(ctx context.Context) error
	logger   *slog.Logger
	ready    chan struct{}

	// RunOnStart triggers one run before waiting for changes.
	RunOnStart bool
}

// New returns a watcher calling run once per burst of changes to files.
func New(files []string, debounce time.Duration, run func(ctx context.Context) error, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		files:    make(map[string]bool, len(files)),
		debounce: debounce,
		run:      run,
		logger:   logger,
		ready:    make(chan struct{}),
	}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			abs = filepath.Clean(f)
		}
		w.files[abs] = true
		if dir := filepath.Dir(abs); !slices.Contains(w.dirs, dir) {
			w.dirs = append(w.dirs, dir)
		}
	}
	return w
}

// Ready is closed once every directory is registered.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run blocks until ctx is cancelled. Runs never overlap: events arriving
// during a run re-arm the debounce timer and trigger one more run after it.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	for _, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	close(w.ready)
	w.logger.Info("watching inputs", "files", len(w.files), "debounce", w.debounce)

	if w.RunOnStart {
		w.trigger(ctx, "start")
	}

	var timer *time.Timer
	var fire <-chan time.Time
	var last string
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(evt) {
				continue
			}
			w.logger.Debug("input changed", "file", evt.Name, "op", evt.Op.String())
			last = evt.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case <-fire:
			fire = nil
			w.trigger(ctx, last)
		}
	}
}

func (w *Watcher) relevant(evt fsnotify.Event) bool {
	if !evt.Op.Has(fsnotify.Write) && !evt.Op.Has(fsnotify.Create) && !evt.Op.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(evt.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}

func (w *Watcher) trigger(ctx context.Context, cause string) {
	w.logger.Info("running pipeline", "cause", cause)
	if err := w.run(ctx); err != nil {
		w.logger.Error("pipeline run failed", "error", err)
	}
}
