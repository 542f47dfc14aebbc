package transcodeworker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podible/podible/internal/convert"
	"github.com/podible/podible/internal/jobqueue"
	"github.com/podible/podible/internal/libraryindex"
	"github.com/podible/podible/internal/model"
	"github.com/podible/podible/internal/transcodestate"
)

type fakeEngine struct {
	fail       error
	writeBytes int64
}

func (f *fakeEngine) Convert(ctx context.Context, req convert.Request, onProgress convert.ProgressFunc) error {
	if onProgress != nil {
		onProgress(convert.Progress{OutTimeMS: 1000, HasOutTime: true, Speed: 1.2, HasSpeed: true})
	}
	if f.fail != nil {
		return f.fail
	}
	return os.WriteFile(req.Target, make([]byte, f.writeBytes), 0o644)
}

func newTestWorker(t *testing.T, engine convert.Engine) (*Worker, string, string) {
	t.Helper()
	dir := t.TempDir()
	state := transcodestate.New(filepath.Join(dir, "transcode-status.json"))
	index := libraryindex.New(filepath.Join(dir, "library-index.json"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	source := filepath.Join(dir, "source.m4b")
	require.NoError(t, os.WriteFile(source, make([]byte, 100), 0o644))
	target := filepath.Join(dir, "source.normalized.mp3")

	w := New(jobqueue.New(), jobqueue.NewInFlight(), state, index, engine, logger)
	return w, source, target
}

func TestProcessSucceedsAndPromotesToIndex(t *testing.T) {
	w, source, target := newTestWorker(t, &fakeEngine{writeBytes: 500})

	info, err := os.Stat(source)
	require.NoError(t, err)
	mtime := info.ModTime().UnixMilli()

	require.NoError(t, w.State.Put(&model.TranscodeStatus{
		Source: source, Target: target, MtimeMS: mtime, State: model.TranscodeStatePending,
	}))
	w.InFlight.Add(source)

	job := model.Job{
		Source: source, Target: target, ExpectedMtimeMS: mtime,
		Meta: model.BookMeta{ID: "author-book", Title: "Book", Author: "Author", Mime: model.MimeMPEG},
	}

	w.process(context.Background(), job)

	status, ok := w.State.Get(source)
	require.True(t, ok)
	assert.Equal(t, model.TranscodeStateDone, status.State)
	assert.Equal(t, int64(1000), status.OutTimeMS)
	assert.False(t, w.InFlight.Contains(source))

	books := w.Index.All()
	require.Len(t, books, 1)
	assert.Equal(t, "author-book", books[0].ID)
	assert.Equal(t, target, books[0].Single.PrimaryFile)
	assert.Equal(t, int64(500), books[0].TotalSize)

	targetInfo, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime().Unix(), targetInfo.ModTime().Unix(), "output mtime must be stamped to match the source")
}

func TestProcessMarksFailedOnEngineError(t *testing.T) {
	w, source, target := newTestWorker(t, &fakeEngine{fail: errors.New("boom")})

	info, _ := os.Stat(source)
	mtime := info.ModTime().UnixMilli()
	require.NoError(t, w.State.Put(&model.TranscodeStatus{
		Source: source, Target: target, MtimeMS: mtime, State: model.TranscodeStatePending,
	}))

	job := model.Job{Source: source, Target: target, ExpectedMtimeMS: mtime, Meta: model.BookMeta{ID: "a-b"}}
	w.process(context.Background(), job)

	status, ok := w.State.Get(source)
	require.True(t, ok)
	assert.Equal(t, model.TranscodeStateFailed, status.State)
	assert.Contains(t, status.Error, "boom")
	assert.Empty(t, w.Index.All())
}

func TestProcessDropsStaleJobSilently(t *testing.T) {
	w, source, target := newTestWorker(t, &fakeEngine{writeBytes: 10})

	require.NoError(t, w.State.Put(&model.TranscodeStatus{
		Source: source, Target: target, MtimeMS: 123, State: model.TranscodeStatePending,
	}))

	job := model.Job{Source: source, Target: target, ExpectedMtimeMS: 999, Meta: model.BookMeta{ID: "a-b"}}
	w.process(context.Background(), job)

	status, ok := w.State.Get(source)
	require.True(t, ok)
	assert.Equal(t, model.TranscodeStatePending, status.State, "a stale job must not mutate status")
	assert.Empty(t, w.Index.All())
}

func TestRunDrainsQueueUntilContextCancelled(t *testing.T) {
	w, source, target := newTestWorker(t, &fakeEngine{writeBytes: 10})
	info, _ := os.Stat(source)
	mtime := info.ModTime().UnixMilli()

	require.NoError(t, w.State.Put(&model.TranscodeStatus{
		Source: source, Target: target, MtimeMS: mtime, State: model.TranscodeStatePending,
	}))
	w.Jobs.Push(model.Job{Source: source, Target: target, ExpectedMtimeMS: mtime, Meta: model.BookMeta{ID: "a-b"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		status, ok := w.State.Get(source)
		return ok && status.State == model.TranscodeStateDone
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
