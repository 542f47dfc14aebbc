package scanner

import (
	"strings"
	"time"

	"github.com/podible/podible/internal/normalize"
	"github.com/podible/podible/internal/opf"
)

// sentinel reports whether a tag value should be treated as absent: it
// trims to empty, or case-insensitively equals one of the known
// placeholder strings embedders use for "no value".
func sentinel(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	lower := strings.ToLower(v)
	return lower == "unknown" || lower == "no description"
}

// clean returns v with sentinel values collapsed to empty.
func clean(v string) string {
	if sentinel(v) {
		return ""
	}
	return strings.TrimSpace(v)
}

// resolvedMetadata is the display metadata for one book, after applying
// the audio-tag / opf / folder-name precedence rules.
type resolvedMetadata struct {
	Title           string
	Author          string
	Description     string
	DescriptionHTML string
	Language        string
	PublishedAt     *time.Time
	Identifiers     map[string]string
}

// resolveMetadata applies §4.1's precedence rules: display title is
// opf-title else folder name; display author is audio artist else audio
// album-artist else opf-creator else folder name; description is the
// longer of opf-description and audio-description; language and date
// come from audio where present, else opf.
func resolveMetadata(folderTitle string, tags map[string]string, meta *opf.Metadata) resolvedMetadata {
	var out resolvedMetadata
	out.Identifiers = make(map[string]string)

	artist := clean(tags["artist"])
	albumArtist := clean(tags["album_artist"])
	audioDesc := clean(tags["description"])
	audioDescHTML := strings.TrimSpace(tags["description"])
	audioLang := clean(tags["language"])
	audioDate := clean(tags["date"])
	if audioDate == "" {
		audioDate = clean(tags["year"])
	}

	opfTitle, opfCreator, opfDesc, opfDescHTML, opfLang, opfDate := "", "", "", "", "", ""
	if meta != nil {
		opfTitle = clean(meta.Title)
		opfCreator = clean(meta.Creator)
		opfDesc = clean(meta.Description)
		opfDescHTML = strings.TrimSpace(meta.DescriptionHTML)
		opfLang = clean(meta.Language)
		opfDate = clean(meta.Date)
		for scheme, val := range meta.Identifiers {
			out.Identifiers[scheme] = val
		}
	}

	out.Title = opfTitle
	if out.Title == "" {
		out.Title = folderTitle
	}

	out.Author = artist
	if out.Author == "" {
		out.Author = albumArtist
	}
	if out.Author == "" {
		out.Author = opfCreator
	}
	if out.Author == "" {
		out.Author = folderTitle
	}

	if len(opfDesc) > len(audioDesc) {
		out.Description = opfDesc
		out.DescriptionHTML = opfDescHTML
	} else {
		out.Description = audioDesc
		out.DescriptionHTML = audioDescHTML
	}

	out.Language = audioLang
	if out.Language == "" {
		out.Language = opfLang
	}
	if code := normalize.LanguageCode(out.Language); code != "" {
		out.Language = code
	}

	dateStr := audioDate
	if dateStr == "" {
		dateStr = opfDate
	}
	if dateStr != "" {
		if t, ok := parseLooseDate(dateStr); ok {
			out.PublishedAt = &t
		}
	}

	return out
}

// parseLooseDate accepts the handful of date shapes audio tags and OPF
// documents commonly carry: full RFC 3339, a bare date, or a bare year.
func parseLooseDate(s string) (time.Time, bool) {
	layouts := []string{time.RFC3339, "2006-01-02", "2006-01", "2006"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
