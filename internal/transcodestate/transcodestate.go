// Package transcodestate is the persisted store of TranscodeStatus
// records, keyed by source path. The Transcode Worker writes progress and
// outcomes; the Scanner reads records and stages pending ones, plus
// failed ones for sources it cannot probe or read.
package transcodestate

import (
	"sync"

	"github.com/podible/podible/internal/model"
	"github.com/podible/podible/internal/persist"
)

// Store holds one TranscodeStatus per source path.
type Store struct {
	path string

	mu       sync.RWMutex
	statuses map[string]*model.TranscodeStatus
}

// New constructs an empty store persisted at path.
func New(path string) *Store {
	return &Store{path: path, statuses: make(map[string]*model.TranscodeStatus)}
}

// Load restores the store from disk. A missing or unreadable file
// leaves the store empty.
func (s *Store) Load() error {
	var list []*model.TranscodeStatus
	if _, err := persist.LoadJSON(s.path, &list); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range list {
		s.statuses[st.Source] = st
	}
	return nil
}

// save persists the full store contents.
func (s *Store) save() error {
	s.mu.RLock()
	list := make([]*model.TranscodeStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		list = append(list, st)
	}
	s.mu.RUnlock()
	return persist.SaveJSON(s.path, list)
}

// Get returns the status for source, if any.
func (s *Store) Get(source string) (*model.TranscodeStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[source]
	return st, ok
}

// Put upserts a status and persists the store.
func (s *Store) Put(st *model.TranscodeStatus) error {
	s.mu.Lock()
	s.statuses[st.Source] = st
	s.mu.Unlock()
	return s.save()
}

// Stage upserts a status in memory only, without persisting. The
// Scanner uses this while walking a library so an N-book scan produces
// one end-of-scan write via Save instead of N full-store rewrites.
func (s *Store) Stage(st *model.TranscodeStatus) {
	s.mu.Lock()
	s.statuses[st.Source] = st
	s.mu.Unlock()
}

// Save persists the store's current in-memory contents. Paired with
// Stage for callers that batch several upserts into one write.
func (s *Store) Save() error {
	return s.save()
}

// Delete removes a source's status (a rescan that observes a newer
// source mtime invalidates the old record) and persists the store.
func (s *Store) Delete(source string) error {
	s.mu.Lock()
	_, existed := s.statuses[source]
	if existed {
		delete(s.statuses, source)
	}
	s.mu.Unlock()
	if !existed {
		return nil
	}
	return s.save()
}

// FindByTarget returns the status whose normalized output is target, if
// any — the reverse of the Source-keyed lookup, used to recover a ready
// single's original source path (and its probe identity) from the
// normalized file the Library Index actually references.
func (s *Store) FindByTarget(target string) (*model.TranscodeStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.statuses {
		if st.Target == target {
			return st, true
		}
	}
	return nil, false
}

// All returns every status currently held, for operator display.
func (s *Store) All() []*model.TranscodeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.TranscodeStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, st)
	}
	return out
}
