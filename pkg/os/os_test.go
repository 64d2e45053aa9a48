package os

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	assert := assert.New(t)

	testDir := filepath.Join(t.TempDir(), "test_dir")
	assert.NoError(EnsureDir(testDir, 0o755))
	assert.True(FileExists(testDir))

	// existing directory
	assert.NoError(EnsureDir(testDir, 0o755))

	assert.Error(EnsureDir(filepath.Join(testDir, string([]byte{0})), 0o755))
}

func TestWriteFile(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "config", "key.json")
	assert.False(FileExists(path))

	require.NoError(WriteFile(path, []byte("first"), 0o600, false))
	assert.True(FileExists(path))

	assert.Error(WriteFile(path, []byte("second"), 0o600, false))
	require.NoError(WriteFile(path, []byte("third"), 0o600, true))

	content, err := os.ReadFile(path)
	require.NoError(err)
	assert.Equal("third", string(content))
}
