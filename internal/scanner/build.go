package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/podible/podible/internal/model"
)

// buildMulti constructs a multi-part Book from sorted .mp3 parts,
// probing each part's duration and deriving cumulative byte/millisecond
// offsets per the §3 invariants. A part with zero size or unknown
// duration is fatal for the whole book: its TranscodeStatus is marked
// failed with an explanatory error and the book is skipped (ok=false).
func (s *Scanner) buildMulti(ctx context.Context, id, title, author string, parts []string, coverPath, epubPath string) (book *model.Book, ok bool) {
	segments := make([]model.AudioSegment, 0, len(parts))
	chapters := make([]model.ChapterTiming, 0, len(parts))

	var byteOffset, msOffset int64

	for i, part := range parts {
		info, err := os.Stat(part)
		if err != nil || info.Size() == 0 {
			s.failPart(part, fmt.Sprintf("part is empty or unreadable: %v", err))
			return nil, false
		}

		mtime := info.ModTime().UnixMilli()
		duration, haveDuration, err := s.Probes.Duration(ctx, part, mtime)
		if err != nil || !haveDuration {
			s.failPart(part, fmt.Sprintf("could not determine duration: %v", err))
			return nil, false
		}

		durationMS := int64(duration * 1000)
		start := byteOffset
		end := start + info.Size() - 1

		segments = append(segments, model.AudioSegment{
			Path:       part,
			Name:       filepath.Base(part),
			Size:       info.Size(),
			Start:      start,
			End:        end,
			DurationMS: durationMS,
			Title:      fmt.Sprintf("Chapter %d", i+1),
		})
		chapters = append(chapters, model.ChapterTiming{
			ID:      fmt.Sprintf("ch%d", i+1),
			Title:   fmt.Sprintf("Chapter %d", i+1),
			StartMS: msOffset,
			EndMS:   msOffset + durationMS,
		})

		byteOffset = end + 1
		msOffset += durationMS
	}

	b := model.NewMultiBook(id, title, author, model.MimeMPEG, segments, chapters)
	b.CoverPath = coverPath
	b.EpubPath = epubPath
	b.DurationSeconds = float64(msOffset) / 1000
	return b, true
}

// failPart records a fatal per-file error against the TranscodeStatus
// keyed by path, for operator display. This is a status record only:
// multi-part books are never enqueued for transcoding.
func (s *Scanner) failPart(path, errMsg string) {
	info, statErr := os.Stat(path)
	var mtime int64
	if statErr == nil {
		mtime = info.ModTime().UnixMilli()
	}
	s.TranscodeState.Stage(&model.TranscodeStatus{
		Source:  path,
		MtimeMS: mtime,
		State:   model.TranscodeStateFailed,
		Error:   errMsg,
	})
}

// planSingle decides what to do with a single .m4b source: reuse an
// already-normalized output if one exists and matches, otherwise
// construct or refresh a pending TranscodeStatus and enqueue a job if
// the source isn't already in flight. It returns a ready Book only when
// an existing normalized output can be reused immediately.
func (s *Scanner) planSingle(source string, meta model.BookMeta) (book *model.Book, ready bool) {
	info, err := os.Stat(source)
	if err != nil {
		s.failPart(source, fmt.Sprintf("source unreadable: %v", err))
		return nil, false
	}
	mtime := info.ModTime().UnixMilli()

	duration, haveDuration, err := s.Probes.Duration(context.Background(), source, mtime)
	if err != nil || !haveDuration {
		s.failPart(source, fmt.Sprintf("could not determine duration: %v", err))
		return nil, false
	}

	existing, hasExisting := s.TranscodeState.Get(source)

	if hasExisting && !existing.Stale(mtime) && existing.State == model.TranscodeStateDone {
		if outInfo, err := os.Stat(existing.Target); err == nil && outInfo.Size() > 0 {
			b := model.NewSingleBook(meta.ID, meta.Title, meta.Author, model.MimeForPath(existing.Target), existing.Target, outInfo.Size())
			b.CoverPath = meta.CoverPath
			b.EpubPath = meta.EpubPath
			b.DurationSeconds = duration
			applyMeta(b, meta)
			return b, true
		}
	}

	status := &model.TranscodeStatus{
		Source:     source,
		Target:     s.targetFor(source),
		MtimeMS:    mtime,
		State:      model.TranscodeStatePending,
		DurationMS: int64(duration * 1000),
		Meta:       &meta,
	}
	if hasExisting && !existing.Stale(mtime) {
		status.Error = existing.Error
	}
	s.TranscodeState.Stage(status)

	if s.InFlight.Add(source) {
		s.Jobs.Push(model.Job{
			ID:              uuid.NewString(),
			Source:          source,
			Target:          status.Target,
			ExpectedMtimeMS: mtime,
			Meta:            meta,
		})
	}

	return nil, false
}

// targetFor derives a normalized output path for source inside the
// worker's output directory, keyed by the source's basename (extension
// dropped, not slugified).
func (s *Scanner) targetFor(source string) string {
	base := filepath.Base(source)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(s.OutputDir, name+".normalized.mp3")
}

func applyMeta(b *model.Book, meta model.BookMeta) {
	b.Description = meta.Description
	b.DescriptionHTML = meta.DescriptionHTML
	b.Language = meta.Language
	b.ISBN = meta.ISBN
	b.Identifiers = meta.Identifiers
	b.Narrator = meta.Narrator
	b.Series = meta.Series
	b.SeriesPart = meta.SeriesPart
	b.ASIN = meta.ASIN
	if meta.PublishedAt != nil {
		t := msToTime(*meta.PublishedAt)
		b.PublishedAt = &t
	}
}
