// Package lock guards a data directory against concurrent ownership by
// more than one process, per the constraint that one process owns one
// data directory.
package lock

import (
	"fmt"

	"github.com/gofrs/flock"
)

// DataDir holds an exclusive advisory lock on a data directory's lock
// file for the lifetime of the process.
type DataDir struct {
	fl *flock.Flock
}

// Acquire takes an exclusive, non-blocking lock on "<dir>/.podible.lock".
// It returns an error if another process already holds the lock.
func Acquire(dir string) (*DataDir, error) {
	fl := flock.New(dir + "/.podible.lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock data directory: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("data directory %s is already owned by another process", dir)
	}
	return &DataDir{fl: fl}, nil
}

// Release gives up the lock.
func (d *DataDir) Release() error {
	return d.fl.Unlock()
}
