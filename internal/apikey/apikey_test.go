package apikey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureFileGeneratesOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api-key.txt")

	key, err := EnsureFile(path)
	require.NoError(t, err)
	assert.Len(t, key, keyBytes*2)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnsureFileReusesExistingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api-key.txt")

	first, err := EnsureFile(path)
	require.NoError(t, err)

	second, err := EnsureFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEnsureFileRegeneratesWhenFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api-key.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))

	key, err := EnsureFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, key)
}
