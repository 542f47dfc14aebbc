// Package libraryindex is the persisted store of ready Books, keyed by
// id. It is the exclusive owner of Book records in memory: the Scanner
// replaces entries wholesale on each run, and the Transcode Worker
// promotes a single completed book into it.
package libraryindex

import (
	"sort"
	"sync"

	"github.com/podible/podible/internal/model"
	"github.com/podible/podible/internal/persist"
)

// Index holds the current set of ready Books.
type Index struct {
	path string

	mu    sync.RWMutex
	books map[string]*model.Book
}

// New constructs an empty index persisted at path.
func New(path string) *Index {
	return &Index{path: path, books: make(map[string]*model.Book)}
}

// Load restores the index from disk. A missing or unreadable file
// leaves the index empty.
func (idx *Index) Load() error {
	var list []*model.Book
	if _, err := persist.LoadJSON(idx.path, &list); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, b := range list {
		idx.books[b.ID] = b
	}
	return nil
}

func (idx *Index) save() error {
	idx.mu.RLock()
	list := make([]*model.Book, 0, len(idx.books))
	for _, b := range idx.books {
		list = append(list, b)
	}
	idx.mu.RUnlock()
	return persist.SaveJSON(idx.path, list)
}

// Get returns the book with the given id, if present.
func (idx *Index) Get(id string) (*model.Book, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	b, ok := idx.books[id]
	return b, ok
}

// Put upserts a single book and persists the index. Used by the
// Transcode Worker to promote one completed book without requiring a
// full scan's replacement set.
func (idx *Index) Put(b *model.Book) error {
	idx.mu.Lock()
	idx.books[b.ID] = b
	idx.mu.Unlock()
	return idx.save()
}

// Replace atomically replaces the entire book set with the result of a
// scan: ids present before but absent from books are evicted, per the
// Scanner's "rescan omits it" lifecycle rule. An id collision within
// books keeps whichever entry appears later in the slice, matching the
// "later-scanned one overwrites" id-injectivity note.
func (idx *Index) Replace(books []*model.Book) error {
	fresh := make(map[string]*model.Book, len(books))
	for _, b := range books {
		fresh[b.ID] = b
	}
	idx.mu.Lock()
	idx.books = fresh
	idx.mu.Unlock()
	return idx.save()
}

// All returns every book currently in the index, ordered by SortKey
// (added_at, falling back to published_at) descending, per the
// presentation ordering rule.
func (idx *Index) All() []*model.Book {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*model.Book, 0, len(idx.books))
	for _, b := range idx.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SortKey().After(out[j].SortKey())
	})
	return out
}
