package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podible/podible/internal/libraryindex"
	"github.com/podible/podible/internal/model"
	"github.com/podible/podible/internal/probe"
	"github.com/podible/podible/internal/probecache"
	"github.com/podible/podible/internal/transcodestate"
)

// fakeEngine returns a fixed set of chapters for any probe, so Chapters
// tests don't need a real ffprobe binary.
type fakeEngine struct {
	result probe.Result
	err    error
}

func (f *fakeEngine) Probe(ctx context.Context, path string) (probe.Result, error) {
	return f.result, f.err
}

func newTestCore(t *testing.T) *Core {
	t.Helper()
	dir := t.TempDir()

	idx := libraryindex.New(filepath.Join(dir, "library-index.json"))
	ts := transcodestate.New(filepath.Join(dir, "transcode-status.json"))
	probes := probecache.New(&fakeEngine{}, filepath.Join(dir, "probe-cache.json"))

	return &Core{
		Index:          idx,
		TranscodeState: ts,
		Probes:         probes,
	}
}

func TestBooksSortedReflectsIndex(t *testing.T) {
	c := newTestCore(t)
	b := model.NewSingleBook("book-1", "Title", "Author", model.MimeMP4, "/data/book-1.mp3", 100)
	require.NoError(t, c.Index.Put(b))

	got := c.BooksSorted()
	require.Len(t, got, 1)
	assert.Equal(t, "book-1", got[0].ID)
}

func TestFindMissing(t *testing.T) {
	c := newTestCore(t)
	_, ok := c.Find("nope")
	assert.False(t, ok)
}

func TestFeedBooksSortedIncludesPendingSingles(t *testing.T) {
	c := newTestCore(t)
	ready := model.NewSingleBook("ready", "Ready Book", "Author", model.MimeMP4, "/data/ready.mp3", 100)
	require.NoError(t, c.Index.Put(ready))

	require.NoError(t, c.TranscodeState.Put(&model.TranscodeStatus{
		Source:  "/lib/pending/book.m4b",
		MtimeMS: 1,
		State:   model.TranscodeStatePending,
		Meta:    &model.BookMeta{ID: "pending", Title: "Pending Book", Author: "Author", Mime: model.MimeMP4},
	}))

	feed := c.FeedBooksSorted()
	require.Len(t, feed, 2)

	ids := map[string]bool{}
	for _, b := range feed {
		ids[b.ID] = true
	}
	assert.True(t, ids["ready"])
	assert.True(t, ids["pending"])
}

func TestFeedBooksSortedExcludesDoneAndFailedStatuses(t *testing.T) {
	c := newTestCore(t)
	require.NoError(t, c.TranscodeState.Put(&model.TranscodeStatus{
		Source: "/lib/a", MtimeMS: 1, State: model.TranscodeStateDone,
		Meta: &model.BookMeta{ID: "a", Title: "A"},
	}))
	require.NoError(t, c.TranscodeState.Put(&model.TranscodeStatus{
		Source: "/lib/b", MtimeMS: 1, State: model.TranscodeStateFailed,
		Meta: &model.BookMeta{ID: "b", Title: "B"},
	}))

	assert.Empty(t, c.FeedBooksSorted())
}

func TestTagNilForSingle(t *testing.T) {
	c := newTestCore(t)
	b := model.NewSingleBook("book-1", "Title", "Author", model.MimeMP4, "/data/book-1.mp3", 100)
	assert.Nil(t, c.Tag(b))
}

func TestTagEncodesForMulti(t *testing.T) {
	c := newTestCore(t)
	chapters := []model.ChapterTiming{{Title: "Chapter 1", StartMS: 0, EndMS: 1000}}
	b := model.NewMultiBook("book-1", "Title", "Author", model.MimeMPEG, nil, chapters)

	tag := c.Tag(b)
	assert.NotEmpty(t, tag)
}

func TestChaptersForMultiUsesOwnTable(t *testing.T) {
	c := newTestCore(t)
	chapters := []model.ChapterTiming{
		{Title: "Chapter 1", StartMS: 0, EndMS: 1000},
		{Title: "Chapter 2", StartMS: 1000, EndMS: 2000},
	}
	b := model.NewMultiBook("book-1", "Title", "Author", model.MimeMPEG, nil, chapters)

	resp, err := c.Chapters(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, resp.Chapters, 2)
	assert.Equal(t, "Chapter 1", resp.Chapters[0].Title)
	assert.Equal(t, 1.0, resp.Chapters[1].StartTimeSeconds)
	assert.Equal(t, "1.2.0", resp.Version)
}

func TestChaptersForSingleWithNoTranscodeRecordIsEmpty(t *testing.T) {
	c := newTestCore(t)
	b := model.NewSingleBook("book-1", "Title", "Author", model.MimeMP4, "/data/book-1.mp3", 100)

	resp, err := c.Chapters(context.Background(), b)
	require.NoError(t, err)
	assert.Empty(t, resp.Chapters)
}

func TestChaptersForSingleReprobesOriginalSource(t *testing.T) {
	dir := t.TempDir()
	idx := libraryindex.New(filepath.Join(dir, "library-index.json"))
	ts := transcodestate.New(filepath.Join(dir, "transcode-status.json"))
	probes := probecache.New(&fakeEngine{result: probe.Result{
		Duration: 120,
		Chapters: []model.ProbedChapter{{StartTime: 0, EndTime: 60}, {StartTime: 60, EndTime: 120}},
	}}, filepath.Join(dir, "probe-cache.json"))

	c := &Core{Index: idx, TranscodeState: ts, Probes: probes}

	require.NoError(t, ts.Put(&model.TranscodeStatus{
		Source: "/lib/book.m4b", Target: "/data/book-1.mp3", MtimeMS: 42, State: model.TranscodeStateDone,
	}))
	b := model.NewSingleBook("book-1", "Title", "Author", model.MimeMP4, "/data/book-1.mp3", 100)

	resp, err := c.Chapters(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, resp.Chapters, 2)
	assert.Equal(t, "Chapter 1", resp.Chapters[0].Title)
}

func TestStatusSnapshotCountsByState(t *testing.T) {
	c := newTestCore(t)
	require.NoError(t, c.TranscodeState.Put(&model.TranscodeStatus{Source: "/a", MtimeMS: 1, State: model.TranscodeStatePending}))
	require.NoError(t, c.TranscodeState.Put(&model.TranscodeStatus{Source: "/b", MtimeMS: 1, State: model.TranscodeStateWorking}))
	require.NoError(t, c.TranscodeState.Put(&model.TranscodeStatus{Source: "/c", MtimeMS: 1, State: model.TranscodeStateDone}))
	require.NoError(t, c.TranscodeState.Put(&model.TranscodeStatus{Source: "/d", MtimeMS: 1, State: model.TranscodeStateFailed}))

	snap := c.StatusSnapshot()
	assert.Equal(t, 1, snap.Counts.Pending)
	assert.Equal(t, 1, snap.Counts.Working)
	assert.Equal(t, 1, snap.Counts.Done)
	assert.Equal(t, 1, snap.Counts.Failed)
	require.NotNil(t, snap.ActiveJob)
	assert.Equal(t, "/b", snap.ActiveJob.Source)
}
