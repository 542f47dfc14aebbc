//go:build !linux

package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fallbackBackend implements Backend using fsnotify. Like the Linux
// backend it does no per-file settling of its own — the Watcher's
// coalescing timer already absorbs bursts, so every qualifying event is
// forwarded as soon as it's seen.
type fallbackBackend struct {
	logger  *slog.Logger
	opts    Options
	watcher *fsnotify.Watcher

	changed chan struct{}
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
}

func newFallbackBackend(logger *slog.Logger, opts Options) (*fallbackBackend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &fallbackBackend{
		logger:  logger,
		opts:    opts,
		watcher: w,
		changed: make(chan struct{}, 1),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

func (b *fallbackBackend) Watch(path string) error {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if info.IsDir() {
		return b.watchDir(path)
	}
	return b.watcher.Add(filepath.Dir(path))
}

func (b *fallbackBackend) watchDir(path string) error {
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			b.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}
		if b.opts.shouldIgnore(p) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if err := b.watcher.Add(p); err != nil {
			b.logger.Error("failed to add watch", "path", p, "error", err)
			return nil
		}
		return nil
	})
}

func (b *fallbackBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.processEvents(ctx)

	<-ctx.Done()
	return nil
}

func (b *fallbackBackend) processEvents(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handleFsnotifyEvent(event)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			select {
			case b.errors <- err:
			case <-b.done:
			}
		}
	}
}

func (b *fallbackBackend) handleFsnotifyEvent(event fsnotify.Event) {
	path := event.Name
	if b.opts.shouldIgnore(path) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			_ = b.watchDir(path)
		}
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
		b.notify()
	}
}

func (b *fallbackBackend) notify() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

func (b *fallbackBackend) Changed() <-chan struct{} {
	return b.changed
}

func (b *fallbackBackend) Errors() <-chan error {
	return b.errors
}

func (b *fallbackBackend) Stop() error {
	close(b.done)
	_ = b.watcher.Close()
	b.wg.Wait()

	close(b.changed)
	close(b.errors)

	return nil
}

// newLinuxBackend is a stub that satisfies the compiler on non-Linux
// platforms, where watcher.go never actually calls it.
func newLinuxBackend(_ *slog.Logger, _ Options) (Backend, error) {
	return nil, fmt.Errorf("Linux backend not available on this platform")
}
