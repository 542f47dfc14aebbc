package scanner

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/podible/podible/internal/ebook"
	"github.com/podible/podible/internal/probe"
)

// resolveCover applies the cover resolution order: embedded cover from
// the chosen audio source, else embedded cover from the first .mp3,
// else a cover extracted from an .epub (preferring filenames containing
// "cover"), else the first raw .png, else the first raw .jpg/.jpeg.
// Embedded/extracted covers are written into the cache directory and the
// cached path is returned; raw files on disk are returned as-is.
func (s *Scanner) resolveCover(dir string, files titleDirFiles, embeddedFromSource []byte, sourceForCache string) (string, error) {
	if len(embeddedFromSource) > 0 {
		return s.cacheCover(sourceForCache, embeddedFromSource)
	}

	if len(files.Parts) > 0 {
		if data := s.probeEmbeddedCover(files.Parts[0]); len(data) > 0 {
			return s.cacheCover(files.Parts[0], data)
		}
	}

	for _, epub := range files.Epubs {
		data, err := ebook.ExtractCover(epub)
		if err == nil && len(data) > 0 {
			return s.cacheCover(epub, data)
		}
	}

	if len(files.PNGs) > 0 {
		return files.PNGs[0], nil
	}
	if len(files.JPEGs) > 0 {
		return files.JPEGs[0], nil
	}

	return "", nil
}

// probeEmbeddedCover reads path's embedded front-cover picture, if any.
// This is a direct, uncached read via probe.EmbeddedCover rather than a
// Probe Engine/Probe Cache round-trip: spec §3's ProbeRecord shape has
// no cover field, so image bytes never enter that persisted cache.
func (s *Scanner) probeEmbeddedCover(path string) []byte {
	_, data, err := probe.EmbeddedCover(path)
	if err != nil {
		s.Logger.Debug("embedded cover probe", "path", path, "error", err)
		return nil
	}
	return data
}

// cacheCover writes imgData into the cache directory under a name
// derived from source's basename and mtime, so repeat runs over an
// unchanged source reuse the same cached file instead of rewriting it.
func (s *Scanner) cacheCover(source string, imgData []byte) (string, error) {
	info, err := os.Stat(source)
	var mtime int64
	if err == nil {
		mtime = info.ModTime().UnixMilli()
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", filepath.Base(source), mtime)))
	name := fmt.Sprintf("%x.jpg", sum[:8])
	dest := filepath.Join(s.CoverDir, name)

	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	if err := os.MkdirAll(s.CoverDir, 0o755); err != nil {
		return "", fmt.Errorf("create cover cache dir: %w", err)
	}
	if err := os.WriteFile(dest, imgData, 0o644); err != nil { //nolint:gosec // cache file, not user-facing
		return "", fmt.Errorf("write cached cover: %w", err)
	}
	return dest, nil
}
