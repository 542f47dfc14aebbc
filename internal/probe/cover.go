package probe

import (
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

// EmbeddedCover reads path's embedded front-cover picture, if any, via
// dhowden/tag — it understands both the ID3v2 APIC frame (mp3) and the
// MP4 `covr` atom (m4a/m4b) through one call, so the scanner's two
// embedded-cover tiers (§4.1: "embedded cover extracted from the first
// .m4b; else embedded cover from the first .mp3") share this one
// implementation. Returns ("", nil, nil) when the file has no picture.
func EmbeddedCover(path string) (mime string, data []byte, err error) {
	f, err := os.Open(path) //nolint:gosec // path is server-controlled, not user input
	if err != nil {
		return "", nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", nil, fmt.Errorf("read tags: %w", err)
	}

	pic := meta.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return "", nil, nil
	}
	return pic.MIMEType, pic.Data, nil
}
