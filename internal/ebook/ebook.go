// Package ebook extracts a cover image from an EPUB companion file. An
// EPUB is a zip archive carrying the same OPF package document the
// side-car internal/opf package parses; this package opens the archive,
// locates the package document, and pulls out the image it references
// as the cover, falling back to a filename heuristic when the manifest
// doesn't say which item is the cover.
package ebook

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"path"
	"strings"
)

type manifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type packageDoc struct {
	Metadata struct {
		Meta []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Item []manifestItem `xml:"item"`
	} `xml:"manifest"`
}

// ExtractCover returns the raw bytes of the cover image embedded in the
// EPUB at path, or (nil, nil) if none can be identified.
func ExtractCover(epubPath string) ([]byte, error) {
	zr, err := zip.OpenReader(epubPath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	opfName, opfFile := findOPF(zr.File)
	if opfFile == nil {
		return extractByFilenameHeuristic(zr.File)
	}

	rc, err := opfFile.Open()
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}

	var doc packageDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return extractByFilenameHeuristic(zr.File)
	}

	basePath := path.Dir(opfName)
	if basePath == "." {
		basePath = ""
	} else {
		basePath += "/"
	}

	coverID := ""
	for _, m := range doc.Metadata.Meta {
		if m.Name == "cover" {
			coverID = m.Content
		}
	}

	for _, item := range doc.Manifest.Item {
		isCover := item.ID == coverID ||
			strings.Contains(item.Properties, "cover-image") ||
			strings.Contains(strings.ToLower(item.ID), "cover")
		if !isCover || !strings.HasPrefix(item.MediaType, "image/") {
			continue
		}
		if data := readZipEntry(zr.File, basePath+item.Href); data != nil {
			return data, nil
		}
	}

	return extractByFilenameHeuristic(zr.File)
}

func findOPF(files []*zip.File) (string, *zip.File) {
	for _, f := range files {
		if strings.EqualFold(path.Ext(f.Name), ".opf") {
			return f.Name, f
		}
	}
	return "", nil
}

// extractByFilenameHeuristic picks the image entry whose name contains
// "cover", preferring it over any other raster image in the archive, per
// the cover resolution order's "prefer filenames containing cover".
func extractByFilenameHeuristic(files []*zip.File) ([]byte, error) {
	var fallback *zip.File
	for _, f := range files {
		if !isImageExt(f.Name) {
			continue
		}
		if strings.Contains(strings.ToLower(f.Name), "cover") {
			return readZipFile(f)
		}
		if fallback == nil {
			fallback = f
		}
	}
	if fallback != nil {
		return readZipFile(fallback)
	}
	return nil, nil
}

func isImageExt(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func readZipEntry(files []*zip.File, name string) []byte {
	for _, f := range files {
		if f.Name == name {
			data, err := readZipFile(f)
			if err != nil {
				return nil
			}
			return data
		}
	}
	return nil
}
