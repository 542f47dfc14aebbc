package scanner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podible/podible/internal/jobqueue"
	"github.com/podible/podible/internal/libraryindex"
	"github.com/podible/podible/internal/model"
	"github.com/podible/podible/internal/probe"
	"github.com/podible/podible/internal/probecache"
	"github.com/podible/podible/internal/transcodestate"
)

type fakeEngine struct {
	durationByPath map[string]float64
}

func (f *fakeEngine) Probe(ctx context.Context, path string) (probe.Result, error) {
	d, ok := f.durationByPath[path]
	if !ok {
		d = 60
	}
	return probe.Result{Duration: d, Tags: map[string]string{"artist": "Andy Weir"}}, nil
}

func newTestScanner(t *testing.T, roots []string, engine *fakeEngine) *Scanner {
	t.Helper()
	dataDir := t.TempDir()

	probes := probecache.New(engine, filepath.Join(dataDir, "probe-cache.json"))
	ts := transcodestate.New(filepath.Join(dataDir, "transcode-status.json"))
	idx := libraryindex.New(filepath.Join(dataDir, "library-index.json"))

	return New(
		roots,
		filepath.Join(dataDir, "covers"),
		filepath.Join(dataDir, "output"),
		probes, ts, idx,
		jobqueue.New(), jobqueue.NewInFlight(),
		slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	)
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestScanMultiPartBookBecomesReady(t *testing.T) {
	root := t.TempDir()
	bookDir := filepath.Join(root, "Andy Weir", "Project Hail Mary")
	writeFile(t, filepath.Join(bookDir, "01.mp3"), 1000)
	writeFile(t, filepath.Join(bookDir, "02.mp3"), 2000)

	s := newTestScanner(t, []string{root}, &fakeEngine{})
	require.NoError(t, s.Scan(context.Background()))

	books := s.Index.All()
	require.Len(t, books, 1)
	b := books[0]
	assert.Equal(t, model.KindMulti, b.Kind)
	assert.Equal(t, "andy-weir-project-hail-mary", b.ID)
	require.Len(t, b.Multi.Files, 2)
	assert.Equal(t, int64(0), b.Multi.Files[0].Start)
	assert.Equal(t, int64(999), b.Multi.Files[0].End)
	assert.Equal(t, int64(1000), b.Multi.Files[1].Start)
	assert.Equal(t, int64(2999), b.Multi.Files[1].End)
	assert.Equal(t, int64(3000), b.TotalSize)
	require.Len(t, b.Multi.Chapters, 2)
	assert.Equal(t, int64(0), b.Multi.Chapters[0].StartMS)
	assert.Equal(t, int64(60000), b.Multi.Chapters[0].EndMS)
	assert.Equal(t, int64(60000), b.Multi.Chapters[1].StartMS)
}

func TestScanSingleBookQueuesTranscodeAndIsNotYetReady(t *testing.T) {
	root := t.TempDir()
	bookDir := filepath.Join(root, "Becky Chambers", "A Psalm for the Wild-Built")
	writeFile(t, filepath.Join(bookDir, "book.m4b"), 5000)

	s := newTestScanner(t, []string{root}, &fakeEngine{})
	require.NoError(t, s.Scan(context.Background()))

	assert.Empty(t, s.Index.All(), "an un-normalized single is not ready yet")
	assert.Equal(t, 1, s.Jobs.Len(), "scanning a new single must enqueue exactly one transcode job")
}

func TestScanSingleBookReusesExistingDoneTranscode(t *testing.T) {
	root := t.TempDir()
	bookDir := filepath.Join(root, "Becky Chambers", "A Psalm for the Wild-Built")
	sourcePath := filepath.Join(bookDir, "book.m4b")
	writeFile(t, sourcePath, 5000)

	s := newTestScanner(t, []string{root}, &fakeEngine{})

	info, err := os.Stat(sourcePath)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "normalized.mp3")
	writeFile(t, target, 4800)

	require.NoError(t, s.TranscodeState.Put(&model.TranscodeStatus{
		Source:  sourcePath,
		Target:  target,
		MtimeMS: info.ModTime().UnixMilli(),
		State:   model.TranscodeStateDone,
	}))

	require.NoError(t, s.Scan(context.Background()))

	books := s.Index.All()
	require.Len(t, books, 1)
	assert.Equal(t, model.KindSingle, books[0].Kind)
	assert.Equal(t, target, books[0].Single.PrimaryFile)
	assert.Equal(t, 0, s.Jobs.Len(), "a book with a matching done transcode must not be re-enqueued")
}

func TestScanTwiceOverUnchangedFilesystemIsIdempotent(t *testing.T) {
	root := t.TempDir()
	bookDir := filepath.Join(root, "Andy Weir", "Project Hail Mary")
	writeFile(t, filepath.Join(bookDir, "01.mp3"), 1000)

	s := newTestScanner(t, []string{root}, &fakeEngine{})
	require.NoError(t, s.Scan(context.Background()))
	first := s.Index.All()

	require.NoError(t, s.Scan(context.Background()))
	second := s.Index.All()

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestScanSkipsDirectoryWithNoRecognizedAudio(t *testing.T) {
	root := t.TempDir()
	bookDir := filepath.Join(root, "Nobody", "Empty Folder")
	writeFile(t, filepath.Join(bookDir, "notes.txt"), 10)

	s := newTestScanner(t, []string{root}, &fakeEngine{})
	require.NoError(t, s.Scan(context.Background()))
	assert.Empty(t, s.Index.All())
}
