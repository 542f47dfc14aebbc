// Package watcher observes the library roots for filesystem activity and
// triggers a full rescan once the tree settles, coalescing any events
// that arrive while a rescan is already running into the one that runs
// next — it never reports what changed, only that a rescan is due.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Watcher monitors file system changes across the configured roots and
// drives a single coalesced rescan callback.
type Watcher struct {
	backend       Backend
	logger        *slog.Logger
	coalesceDelay time.Duration
	onRescan      func(ctx context.Context)

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	pending bool
}

// New creates a Watcher. It automatically selects the best backend for
// the current platform:
//   - Linux: native inotify with IN_CLOSE_WRITE, for instant, shell-free
//     detection — the expected production platform.
//   - Others: fsnotify, for a portable development-time fallback.
//
// onRescan is invoked at most once per coalescing window; the Watcher
// guarantees it is never invoked concurrently with itself.
func New(logger *slog.Logger, opts Options, onRescan func(ctx context.Context)) (*Watcher, error) {
	opts.setDefaults()

	var backend Backend
	var err error

	if runtime.GOOS == "linux" {
		backend, err = newLinuxBackend(logger, opts)
		if err == nil {
			logger.Info("using Linux inotify backend with IN_CLOSE_WRITE")
		}
	} else {
		backend, err = newFallbackBackend(logger, opts)
		if err == nil {
			logger.Info("using fsnotify fallback backend", "platform", runtime.GOOS)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create watcher backend: %w", err)
	}

	return &Watcher{
		backend:       backend,
		logger:        logger,
		coalesceDelay: opts.CoalesceDelay,
		onRescan:      onRescan,
	}, nil
}

// Watch adds a root to be monitored.
func (w *Watcher) Watch(path string) error {
	return w.backend.Watch(path)
}

// Start begins watching for events. Blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	go w.drainErrors(ctx)
	go w.drainChanges(ctx)
	return w.backend.Start(ctx)
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.backend.Stop()
}

func (w *Watcher) drainChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.backend.Changed():
			if !ok {
				return
			}
			w.requestRescan(ctx)
		}
	}
}

func (w *Watcher) drainErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.backend.Errors():
			if !ok {
				return
			}
			w.logger.Error("watcher backend error", "error", err)
		}
	}
}

// requestRescan (re)arms the coalescing timer, or — if a rescan is
// currently running — marks one more run as pending so that events
// observed mid-scan are never silently dropped.
func (w *Watcher) requestRescan(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.pending = true
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.coalesceDelay, func() { w.runRescan(ctx) })
}

func (w *Watcher) runRescan(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.pending = true
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.onRescan(ctx)

	w.mu.Lock()
	w.running = false
	again := w.pending
	w.pending = false
	w.mu.Unlock()

	if again {
		w.requestRescan(ctx)
	}
}
