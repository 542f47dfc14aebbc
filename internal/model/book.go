// Package model holds the data types shared by the scanner, transcode
// worker, library index, and stream assembler.
package model

import (
	"path/filepath"
	"strings"
	"time"
)

// Kind discriminates the two on-disk shapes a Book can take.
type Kind string

const (
	KindSingle Kind = "single"
	KindMulti  Kind = "multi"
)

// Mime is the container MIME type derived from a source file's extension.
type Mime string

const (
	MimeMPEG Mime = "audio/mpeg"
	MimeMP4  Mime = "audio/mp4"
)

// MimeForExt maps a lowercased file extension (with leading dot) to a
// Mime. Callers must lowercase the extension themselves.
func MimeForExt(ext string) (Mime, bool) {
	switch ext {
	case ".mp3":
		return MimeMPEG, true
	case ".m4a", ".m4b", ".mp4":
		return MimeMP4, true
	default:
		return "", false
	}
}

// MimeForPath derives a Mime from path's extension, falling back to
// MimeMPEG for an unrecognized or missing extension — the worker's
// normalized output is always MPEG audio, so that is the only sane
// default for a post-transcode target path.
func MimeForPath(path string) Mime {
	if mime, ok := MimeForExt(strings.ToLower(filepath.Ext(path))); ok {
		return mime
	}
	return MimeMPEG
}

// AudioSegment is one file's byte and time extent within a multi-part
// virtual concatenation. Start/End are inclusive byte offsets.
type AudioSegment struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	DurationMS int64  `json:"duration_ms"`
	Title      string `json:"title,omitempty"`
}

// ChapterTiming is one entry in a Book's chapter table.
type ChapterTiming struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

// SingleAudio is the book shape backed by one already-normalized container.
type SingleAudio struct {
	PrimaryFile string `json:"primary_file"`
}

// MultiAudio is the book shape backed by an ordered set of part files
// stitched together virtually, with a synthesized chapter table.
type MultiAudio struct {
	Files    []AudioSegment  `json:"files"`
	Chapters []ChapterTiming `json:"chapters"`
}

// Book is a streamable audiobook. It is a tagged variant: exactly one of
// Single or Multi is set, matching Kind. The only way to construct a
// valid Book is through NewSingleBook/NewMultiBook, which enforce that
// invariant; callers must not set Single/Multi directly.
type Book struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Author string `json:"author"`
	Kind  Kind   `json:"kind"`
	Mime  Mime   `json:"mime"`

	// TotalSize is the audio size only; it excludes any synthesized
	// chapter-tag prefix.
	TotalSize int64 `json:"total_size"`

	Single *SingleAudio `json:"single,omitempty"`
	Multi  *MultiAudio  `json:"multi,omitempty"`

	CoverPath  string `json:"cover_path,omitempty"`
	EpubPath   string `json:"epub_path,omitempty"`

	DurationSeconds float64 `json:"duration_seconds,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
	AddedAt     *time.Time `json:"added_at,omitempty"`

	Description     string `json:"description,omitempty"`
	DescriptionHTML string `json:"description_html,omitempty"`
	Language        string `json:"language,omitempty"`
	ISBN            string `json:"isbn,omitempty"`
	Identifiers     map[string]string `json:"identifiers,omitempty"`

	Narrator   string `json:"narrator,omitempty"`
	Series     string `json:"series,omitempty"`
	SeriesPart string `json:"series_part,omitempty"`
	ASIN       string `json:"asin,omitempty"`
}

// NewSingleBook constructs a single-container Book, enforcing that Multi
// stays nil.
func NewSingleBook(id, title, author string, mime Mime, primaryFile string, totalSize int64) *Book {
	return &Book{
		ID:        id,
		Title:     title,
		Author:    author,
		Kind:      KindSingle,
		Mime:      mime,
		TotalSize: totalSize,
		Single:    &SingleAudio{PrimaryFile: primaryFile},
	}
}

// NewMultiBook constructs a multi-part Book from segments and their
// chapter table, enforcing that Single stays nil and that total_size is
// derived from the segments rather than passed independently.
func NewMultiBook(id, title, author string, mime Mime, files []AudioSegment, chapters []ChapterTiming) *Book {
	var total int64
	if n := len(files); n > 0 {
		total = files[n-1].End + 1
	}
	return &Book{
		ID:        id,
		Title:     title,
		Author:    author,
		Kind:      KindMulti,
		Mime:      mime,
		TotalSize: total,
		Multi:     &MultiAudio{Files: files, Chapters: chapters},
	}
}

// Streamable reports whether the Book can currently be served: a single
// whose primary file exists on disk, or a multi with at least one part.
// Existence of the primary file is checked by the caller (the scanner),
// since that requires a stat; Streamable only checks the shape invariant.
func (b *Book) Streamable() bool {
	switch b.Kind {
	case KindSingle:
		return b.Single != nil && b.Single.PrimaryFile != ""
	case KindMulti:
		return b.Multi != nil && len(b.Multi.Files) > 0
	default:
		return false
	}
}

// SortKey returns the time used to order books for presentation:
// added_at, falling back to published_at.
func (b *Book) SortKey() time.Time {
	if b.AddedAt != nil {
		return *b.AddedAt
	}
	if b.PublishedAt != nil {
		return *b.PublishedAt
	}
	return time.Time{}
}
