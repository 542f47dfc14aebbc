package probe

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedCover_MissingFile(t *testing.T) {
	_, _, err := EmbeddedCover(filepath.Join(t.TempDir(), "missing.mp3"))
	if err == nil {
		t.Fatal("expected an error for a nonexistent file")
	}
}

func TestEmbeddedCover_NotAnAudioFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-audio.mp3")
	if err := os.WriteFile(path, []byte("plain text, not a tagged audio file"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, data, err := EmbeddedCover(path)
	if err == nil && len(data) != 0 {
		t.Fatalf("expected no picture from an untagged file, got %d bytes", len(data))
	}
}
