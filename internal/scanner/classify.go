package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// titleDirFiles is one title directory's files, grouped by role and
// sorted lexicographically within each group.
type titleDirFiles struct {
	Containers []string // .m4b
	Parts      []string // .mp3
	PNGs       []string // .png
	JPEGs      []string // .jpg, .jpeg
	Epubs      []string // .epub
	OPF        string   // first .opf, if any
}

// classifyTitleDir reads dir's entries and groups them by role, per the
// decisive extension-based classification rule: .m4b makes the book a
// single candidate, else .mp3 makes it multi, else the directory is
// skipped by the caller.
func classifyTitleDir(dir string) (titleDirFiles, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return titleDirFiles{}, err
	}

	var out titleDirFiles

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		full := filepath.Join(dir, e.Name())
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".m4b":
			out.Containers = append(out.Containers, full)
		case ".mp3":
			out.Parts = append(out.Parts, full)
		case ".png":
			out.PNGs = append(out.PNGs, full)
		case ".jpg", ".jpeg":
			out.JPEGs = append(out.JPEGs, full)
		case ".epub":
			out.Epubs = append(out.Epubs, full)
		case ".opf":
			if out.OPF == "" || full < out.OPF {
				out.OPF = full
			}
		}
	}

	sort.Strings(out.Containers)
	sort.Strings(out.Parts)
	sort.Strings(out.Epubs)
	sort.Strings(out.PNGs)
	sort.Strings(out.JPEGs)

	return out, nil
}
