package watcher

import "context"

// Backend is the platform-specific filesystem-watching implementation.
// It reports only that something changed under a watched path, never
// what or where — the Watcher owns turning that signal into a single
// coalesced rescan.
type Backend interface {
	// Watch adds a path to be monitored. Directories are watched
	// recursively; new subdirectories created later are picked up
	// automatically.
	Watch(path string) error

	// Start begins watching for events. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop releases the backend's resources.
	Stop() error

	// Changed fires once per qualifying filesystem event.
	Changed() <-chan struct{}

	// Errors surfaces backend-level failures.
	Errors() <-chan error
}
