// Package opf parses the side-car OPF (Open Packaging Format) metadata
// document a book directory may carry alongside its audio: the same
// package-document schema an EPUB's content.opf uses, read directly from
// disk rather than out of a zip archive.
package opf

import (
	"encoding/xml"
	"os"
	"strings"
)

// Metadata is the subset of an OPF package document's <metadata> block
// the scanner needs.
type Metadata struct {
	Title           string
	Creator         string
	Description     string
	DescriptionHTML string
	Language        string
	Date            string
	Identifiers     map[string]string // scheme (lowercased) -> value
}

type packageDoc struct {
	Metadata struct {
		Title []struct {
			Text string `xml:",chardata"`
		} `xml:"title"`
		Creator []struct {
			Text string `xml:",chardata"`
			Role string `xml:"role,attr"`
		} `xml:"creator"`
		Description string `xml:"description"`
		Language    string `xml:"language"`
		Date        string `xml:"date"`
		Identifier  []struct {
			Text   string `xml:",chardata"`
			Scheme string `xml:"scheme,attr"`
		} `xml:"identifier"`
	} `xml:"metadata"`
}

// Parse reads and parses the OPF document at path.
func Parse(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path is server-controlled, not user input
	if err != nil {
		return nil, err
	}

	var doc packageDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	md := &Metadata{
		Language:    strings.TrimSpace(doc.Metadata.Language),
		Date:        strings.TrimSpace(doc.Metadata.Date),
		Identifiers: make(map[string]string),
	}

	if len(doc.Metadata.Title) > 0 {
		md.Title = strings.TrimSpace(doc.Metadata.Title[0].Text)
	}

	for _, c := range doc.Metadata.Creator {
		if c.Role == "" || c.Role == "aut" || len(doc.Metadata.Creator) == 1 {
			md.Creator = strings.TrimSpace(c.Text)
			break
		}
	}

	desc := strings.TrimSpace(doc.Metadata.Description)
	md.DescriptionHTML = desc
	md.Description = stripTags(desc)

	for _, id := range doc.Metadata.Identifier {
		scheme := strings.ToLower(strings.TrimSpace(id.Scheme))
		if scheme == "" {
			continue
		}
		md.Identifiers[scheme] = strings.TrimSpace(id.Text)
	}

	return md, nil
}

// stripTags projects an HTML description fragment to plain text by
// removing tags; it does not attempt full HTML normalization, only a
// best-effort plain-text view for feed summaries.
func stripTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
