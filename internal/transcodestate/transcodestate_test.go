package transcodestate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podible/podible/internal/model"
)

func TestPutAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcode-status.json")
	s := New(path)

	st := &model.TranscodeStatus{Source: "/lib/a/book.m4b", Target: "/data/a-book.mp3", MtimeMS: 100, State: model.TranscodeStatePending}
	require.NoError(t, s.Put(st))

	got, ok := s.Get("/lib/a/book.m4b")
	require.True(t, ok)
	assert.Equal(t, model.TranscodeStatePending, got.State)
}

func TestGetMissing(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "transcode-status.json"))
	_, ok := s.Get("/nope")
	assert.False(t, ok)
}

func TestFindByTarget(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "transcode-status.json"))
	require.NoError(t, s.Put(&model.TranscodeStatus{Source: "/lib/a/book.m4b", Target: "/data/a-book.mp3", MtimeMS: 100, State: model.TranscodeStateDone}))
	require.NoError(t, s.Put(&model.TranscodeStatus{Source: "/lib/b/book.m4b", Target: "/data/b-book.mp3", MtimeMS: 200, State: model.TranscodeStateDone}))

	found, ok := s.FindByTarget("/data/b-book.mp3")
	require.True(t, ok)
	assert.Equal(t, "/lib/b/book.m4b", found.Source)

	_, ok = s.FindByTarget("/data/missing.mp3")
	assert.False(t, ok)
}

func TestDeleteRemovesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcode-status.json")
	s := New(path)
	require.NoError(t, s.Put(&model.TranscodeStatus{Source: "/lib/a/book.m4b", MtimeMS: 1, State: model.TranscodeStateDone}))

	require.NoError(t, s.Delete("/lib/a/book.m4b"))
	_, ok := s.Get("/lib/a/book.m4b")
	assert.False(t, ok)

	// Deleting an absent source is a no-op, not an error.
	require.NoError(t, s.Delete("/lib/a/book.m4b"))
}

func TestLoadRestoresPersistedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcode-status.json")
	first := New(path)
	require.NoError(t, first.Put(&model.TranscodeStatus{Source: "/lib/a/book.m4b", MtimeMS: 1, State: model.TranscodeStateFailed, Error: "boom"}))

	second := New(path)
	require.NoError(t, second.Load())

	got, ok := second.Get("/lib/a/book.m4b")
	require.True(t, ok)
	assert.Equal(t, "boom", got.Error)
}

func TestLoadMissingFileLeavesStoreEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, s.Load())
	assert.Empty(t, s.All())
}

func TestAllReturnsEverything(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "transcode-status.json"))
	require.NoError(t, s.Put(&model.TranscodeStatus{Source: "/a", MtimeMS: 1, State: model.TranscodeStatePending}))
	require.NoError(t, s.Put(&model.TranscodeStatus{Source: "/b", MtimeMS: 1, State: model.TranscodeStateWorking}))

	assert.Len(t, s.All(), 2)
}
