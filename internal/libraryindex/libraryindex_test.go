package libraryindex

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podible/podible/internal/model"
)

func bookAt(id string, added time.Time) *model.Book {
	b := model.NewSingleBook(id, "Title "+id, "Author", model.MimeMP4, "/data/"+id+".mp3", 100)
	b.AddedAt = &added
	return b
}

func TestPutAndGet(t *testing.T) {
	idx := New(filepath.Join(t.TempDir(), "library-index.json"))
	b := bookAt("book-1", time.Now())

	require.NoError(t, idx.Put(b))

	got, ok := idx.Get("book-1")
	require.True(t, ok)
	assert.Equal(t, "Title book-1", got.Title)
}

func TestGetMissing(t *testing.T) {
	idx := New(filepath.Join(t.TempDir(), "library-index.json"))
	_, ok := idx.Get("nope")
	assert.False(t, ok)
}

func TestReplaceSwapsWholesale(t *testing.T) {
	idx := New(filepath.Join(t.TempDir(), "library-index.json"))
	require.NoError(t, idx.Put(bookAt("stale", time.Now())))

	require.NoError(t, idx.Replace([]*model.Book{bookAt("fresh", time.Now())}))

	_, ok := idx.Get("stale")
	assert.False(t, ok)
	_, ok = idx.Get("fresh")
	assert.True(t, ok)
}

func TestAllSortedByAddedAtDescending(t *testing.T) {
	idx := New(filepath.Join(t.TempDir(), "library-index.json"))
	now := time.Now()
	require.NoError(t, idx.Put(bookAt("older", now.Add(-time.Hour))))
	require.NoError(t, idx.Put(bookAt("newer", now)))

	all := idx.All()
	require.Len(t, all, 2)
	assert.Equal(t, "newer", all[0].ID)
	assert.Equal(t, "older", all[1].ID)
}

func TestLoadRestoresPersistedBooks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library-index.json")
	first := New(path)
	require.NoError(t, first.Put(bookAt("book-1", time.Now())))

	second := New(path)
	require.NoError(t, second.Load())

	got, ok := second.Get("book-1")
	require.True(t, ok)
	assert.Equal(t, "Title book-1", got.Title)
}

func TestLoadMissingFileLeavesIndexEmpty(t *testing.T) {
	idx := New(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, idx.Load())
	assert.Empty(t, idx.All())
}
