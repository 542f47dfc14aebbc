// Package scanner walks the configured library roots, classifies each
// title directory into a single or multi-part book, resolves display
// metadata and cover art, and produces the set of currently-ready Books
// plus the transcode jobs needed for books that aren't ready yet.
package scanner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/podible/podible/internal/apperr"
	"github.com/podible/podible/internal/fsutil"
	"github.com/podible/podible/internal/jobqueue"
	"github.com/podible/podible/internal/libraryindex"
	"github.com/podible/podible/internal/model"
	"github.com/podible/podible/internal/opf"
	"github.com/podible/podible/internal/probecache"
	"github.com/podible/podible/internal/slug"
	"github.com/podible/podible/internal/transcodestate"
)

// Scanner walks a fixed <root>/<author>/<title> directory layout and
// maintains the Library Index and Transcode State against it.
type Scanner struct {
	Roots          []string
	CoverDir       string
	OutputDir      string
	Probes         *probecache.Cache
	TranscodeState *transcodestate.Store
	Index          *libraryindex.Index
	Jobs           *jobqueue.Queue
	InFlight       *jobqueue.InFlight
	Logger         *slog.Logger
}

// New constructs a Scanner. All fields on the returned value are
// exported and may be overridden before the first call to Scan.
func New(roots []string, coverDir, outputDir string, probes *probecache.Cache, ts *transcodestate.Store, idx *libraryindex.Index, jobs *jobqueue.Queue, inFlight *jobqueue.InFlight, logger *slog.Logger) *Scanner {
	return &Scanner{
		Roots:          roots,
		CoverDir:       coverDir,
		OutputDir:      outputDir,
		Probes:         probes,
		TranscodeState: ts,
		Index:          idx,
		Jobs:           jobs,
		InFlight:       inFlight,
		Logger:         logger,
	}
}

// Scan walks every configured root and replaces the Library Index with
// the set of currently-ready books. Unreadable directories are logged
// and skipped; they never abort the scan. Idempotent: scanning twice
// over an unchanged filesystem produces the same book set (the index
// only persists when the set actually differs).
func (s *Scanner) Scan(ctx context.Context) error {
	if len(s.Roots) == 0 {
		return apperr.New(apperr.CodeNoRootsConfigured, "no library roots configured")
	}

	var ready []*model.Book

	for _, root := range s.Roots {
		authorDirs, err := os.ReadDir(root)
		if err != nil {
			s.Logger.Error("read root directory", "root", root, "error", err)
			continue
		}

		for _, authorDir := range authorDirs {
			if !authorDir.IsDir() {
				continue
			}
			authorPath := filepath.Join(root, authorDir.Name())

			titleDirs, err := os.ReadDir(authorPath)
			if err != nil {
				s.Logger.Error("read author directory", "path", authorPath, "error", err)
				continue
			}

			for _, titleDir := range titleDirs {
				if !titleDir.IsDir() {
					continue
				}
				titlePath := filepath.Join(authorPath, titleDir.Name())

				book, err := s.scanTitleDir(ctx, titlePath, authorDir.Name(), titleDir.Name())
				if err != nil {
					s.Logger.Error("scan title directory", "path", titlePath, "error", err)
					continue
				}
				if book != nil && book.Streamable() {
					ready = append(ready, book)
				}
			}
		}
	}

	// One write for the whole scan, not one per book staged above —
	// spec's "end-of-scan, not per-book" persistence rule.
	if err := s.TranscodeState.Save(); err != nil {
		s.Logger.Error("persist transcode state", "error", err)
	}

	if s.unchanged(ready) {
		return nil
	}

	return s.Index.Replace(ready)
}

// unchanged reports whether fresh is identical, by id set and a handful
// of representative fields, to what the index currently holds — grounds
// the "running it twice over an unchanged filesystem leaves state
// unchanged" contract without forcing a full persistence write on every
// scan.
func (s *Scanner) unchanged(fresh []*model.Book) bool {
	current := s.Index.All()
	if len(current) != len(fresh) {
		return false
	}
	byID := make(map[string]*model.Book, len(current))
	for _, b := range current {
		byID[b.ID] = b
	}
	for _, b := range fresh {
		existing, ok := byID[b.ID]
		if !ok || !sameBook(existing, b) {
			return false
		}
	}
	return true
}

func sameBook(a, b *model.Book) bool {
	return a.Title == b.Title &&
		a.Author == b.Author &&
		a.Kind == b.Kind &&
		a.TotalSize == b.TotalSize &&
		a.CoverPath == b.CoverPath
}

// scanTitleDir classifies one title directory and returns a ready Book,
// or nil if the directory is skipped (no recognized audio) or not yet
// ready (a single awaiting transcode).
func (s *Scanner) scanTitleDir(ctx context.Context, dir, authorName, folderTitle string) (*model.Book, error) {
	files, err := classifyTitleDir(dir)
	if err != nil {
		return nil, err
	}

	var sidecar *opf.Metadata
	if files.OPF != "" {
		sidecar, _ = opf.Parse(files.OPF)
	}

	id := slug.BookID(authorName, folderTitle)

	switch {
	case len(files.Containers) > 0:
		return s.scanSingle(ctx, dir, id, folderTitle, files, sidecar)
	case len(files.Parts) > 0:
		return s.scanMulti(ctx, id, folderTitle, files, sidecar)
	default:
		return nil, nil
	}
}

func (s *Scanner) scanSingle(ctx context.Context, dir, id, folderTitle string, files titleDirFiles, sidecar *opf.Metadata) (*model.Book, error) {
	source := files.Containers[0]
	info, err := os.Stat(source)
	if err != nil {
		s.failPart(source, err.Error())
		return nil, nil
	}
	mtime := info.ModTime().UnixMilli()

	rec, err := s.Probes.Probe(ctx, source, mtime)
	if err != nil {
		return nil, nil
	}
	resolved := resolveMetadata(folderTitle, rec.Tags, sidecar)

	coverPath, err := s.resolveCover(dir, files, s.probeEmbeddedCover(source), source)
	if err != nil {
		s.Logger.Error("resolve cover", "dir", dir, "error", err)
	}

	var epubPath string
	if len(files.Epubs) > 0 {
		epubPath = files.Epubs[0]
	}

	meta := model.BookMeta{
		ID:        id,
		Title:     resolved.Title,
		Author:    resolved.Author,
		Mime:      model.MimeForPath(source),
		CoverPath: coverPath,
		EpubPath:  epubPath,

		Description:     resolved.Description,
		DescriptionHTML: resolved.DescriptionHTML,
		Language:        resolved.Language,
		Identifiers:     resolved.Identifiers,
	}
	if resolved.PublishedAt != nil {
		ms := resolved.PublishedAt.UnixMilli()
		meta.PublishedAt = &ms
	} else {
		ms := mtime
		meta.PublishedAt = &ms
	}

	book, ready := s.planSingle(source, meta)
	if !ready {
		return nil, nil
	}

	book.AddedAt = s.addedAt(dir, info)
	return book, nil
}

func (s *Scanner) scanMulti(ctx context.Context, id, folderTitle string, files titleDirFiles, sidecar *opf.Metadata) (*model.Book, error) {
	firstPart := files.Parts[0]
	firstInfo, err := os.Stat(firstPart)

	var tags map[string]string
	if err == nil {
		rec, probeErr := s.Probes.Probe(ctx, firstPart, firstInfo.ModTime().UnixMilli())
		if probeErr == nil {
			tags = rec.Tags
		}
	}
	resolved := resolveMetadata(folderTitle, tags, sidecar)

	dir := filepath.Dir(firstPart)
	coverPath, err := s.resolveCover(dir, files, nil, firstPart)
	if err != nil {
		s.Logger.Error("resolve cover", "dir", dir, "error", err)
	}

	var epubPath string
	if len(files.Epubs) > 0 {
		epubPath = files.Epubs[0]
	}

	book, ok := s.buildMulti(ctx, id, resolved.Title, resolved.Author, files.Parts, coverPath, epubPath)
	if !ok {
		return nil, nil
	}

	book.Description = resolved.Description
	book.DescriptionHTML = resolved.DescriptionHTML
	book.Language = resolved.Language
	book.Identifiers = resolved.Identifiers
	book.PublishedAt = resolved.PublishedAt
	book.AddedAt = s.addedAt(dir, firstInfo)

	return book, nil
}

// addedAt prefers the title directory's birth time, then its mtime,
// then the current time.
func (s *Scanner) addedAt(dir string, fallbackInfo os.FileInfo) *time.Time {
	if t, ok := fsutil.BirthTime(dir); ok {
		return &t
	}
	if info, err := os.Stat(dir); err == nil {
		t := info.ModTime()
		return &t
	}
	if fallbackInfo != nil {
		t := fallbackInfo.ModTime()
		return &t
	}
	now := time.Now()
	return &now
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
