package trash

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTrashHome(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataDir)
	return dataDir
}

func TestSession_RecycleAndCleanup(t *testing.T) {
	dataDir := setupTrashHome(t)
	baseDir := t.TempDir()
	ctx := context.Background()

	file := filepath.Join(baseDir, "doc.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	s, err := NewSession(baseDir)
	require.NoError(t, err)

	recycled, err := s.Recycle(ctx, file, "doc.txt")
	require.NoError(t, err)
	assert.True(t, recycled)
	assert.NoFileExists(t, file, "item leaves its original location immediately")

	// staged, not yet in the user trash
	trashFiles := filepath.Join(dataDir, "Trash", "files")
	entries, _ := os.ReadDir(trashFiles)
	assert.Empty(t, entries)

	var statuses []string
	require.NoError(t, s.Cleanup(ctx, func(displayPath string) error {
		statuses = append(statuses, displayPath)
		return nil
	}))

	entries, err = os.ReadDir(trashFiles)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "doc.txt", entries[0].Name())
	assert.FileExists(t, filepath.Join(dataDir, "Trash", "info", "doc.txt.trashinfo"))

	require.NotEmpty(t, statuses)
	assert.Equal(t, file, statuses[0])
	assert.Equal(t, "", statuses[len(statuses)-1], "final refresh tick")

	// staging folder is gone
	baseEntries, err := os.ReadDir(baseDir)
	require.NoError(t, err)
	assert.Empty(t, baseEntries)
}

func TestSession_RecycleMissingItem(t *testing.T) {
	setupTrashHome(t)
	baseDir := t.TempDir()

	s, err := NewSession(baseDir)
	require.NoError(t, err)

	recycled, err := s.Recycle(context.Background(), filepath.Join(baseDir, "missing"), "missing")
	require.NoError(t, err)
	assert.False(t, recycled)

	require.NoError(t, s.Cleanup(context.Background(), nil))
}

func TestSession_NameCollisionInTrash(t *testing.T) {
	dataDir := setupTrashHome(t)
	baseDir := t.TempDir()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		file := filepath.Join(baseDir, "doc.txt")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		s, err := NewSession(baseDir)
		require.NoError(t, err)
		_, err = s.Recycle(ctx, file, "doc.txt")
		require.NoError(t, err)
		require.NoError(t, s.Cleanup(ctx, nil))
	}

	entries, err := os.ReadDir(filepath.Join(dataDir, "Trash", "files"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "second doc.txt gets a uniquified name")
}

func TestNewSession_MissingBaseDir(t *testing.T) {
	_, err := NewSession(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	setupTrashHome(t)
	ok, err := Supported()
	require.NoError(t, err)
	assert.True(t, ok)
}
