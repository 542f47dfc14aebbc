// Package persist implements crash-safe whole-document JSON persistence
// for the data directory's three flat artifacts (library index,
// transcode state, probe cache): every write goes to a temporary file in
// the same directory and is renamed into place, so a crash never leaves
// a half-written document visible.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveJSON marshals v and writes it to path via a temp-file-then-rename,
// so readers never observe a partial write.
func SaveJSON(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encode json: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// LoadJSON unmarshals path into v. A missing or unreadable file is
// treated as empty: it returns (false, nil) rather than an error, per
// the startup-load contract ("unreadable or missing files are treated
// as empty").
func LoadJSON(path string, v any) (loaded bool, err error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is server-controlled, not user input
	if err != nil {
		return false, nil
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, nil
	}
	return true, nil
}
