package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsync/foldsync/internal/versioning"
	"github.com/foldsync/foldsync/internal/vfs"
	"github.com/foldsync/foldsync/internal/vfs/localfs"
)

func lockedForTest(t *testing.T) *coreLock {
	t.Helper()
	lock := &coreLock{}
	lock.lock()
	t.Cleanup(lock.unlock)
	return lock
}

func TestDeletionHandler_StatusTemplatesPerPolicy(t *testing.T) {
	base := localfs.NewPath("/base")
	ver := localfs.NewPath("/versions")

	perm := NewDeletionHandler(base, DeletePermanent, vfs.Path{}, versioning.StyleReplace, testTime())
	assert.Equal(t, "Deleting file %s", perm.TxtRemovingFile())
	assert.Equal(t, "Deleting folder %s", perm.TxtRemovingFolder())

	trash := NewDeletionHandler(base, DeleteToTrash, vfs.Path{}, versioning.StyleReplace, testTime())
	assert.Equal(t, "Moving file %s to the trash", trash.TxtRemovingFile())

	versioned := NewDeletionHandler(base, DeleteVersioning, ver, versioning.StyleReplace, testTime())
	assert.Contains(t, versioned.TxtRemovingSymlink(), "/versions")
}

func TestDeletionHandler_TempSuffixAlwaysDeletedPermanently(t *testing.T) {
	baseDir := t.TempDir()
	verDir := t.TempDir()
	ctx := context.Background()

	relPath := "leftover.1f2e" + vfs.TempFileSuffix
	file := filepath.Join(baseDir, relPath)
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	d := NewDeletionHandler(localfs.NewPath(baseDir), DeleteVersioning,
		localfs.NewPath(verDir), versioning.StyleReplace, testTime())

	coord := newCoordinator(1)
	sr := newStatReporter(1, 0, 0, coord)
	err := d.RemoveFile(ctx, FileDescriptor{Path: localfs.NewPath(file)}, relPath, sr, lockedForTest(t))
	require.NoError(t, err)

	assert.NoFileExists(t, file)
	entries, err := os.ReadDir(verDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files never reach the versioning folder")
	assert.Equal(t, int64(1), coord.itemsProcessed.Load())
}

func TestDeletionHandler_RemoveFileReportsEvenWhenAlreadyGone(t *testing.T) {
	baseDir := t.TempDir()
	d := NewDeletionHandler(localfs.NewPath(baseDir), DeletePermanent, vfs.Path{}, versioning.StyleReplace, testTime())

	coord := newCoordinator(1)
	sr := newStatReporter(1, 0, 0, coord)
	err := d.RemoveFile(context.Background(),
		FileDescriptor{Path: localfs.NewPath(filepath.Join(baseDir, "missing.txt"))},
		"missing.txt", sr, lockedForTest(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), coord.itemsProcessed.Load(), "I/O work was spent verifying")
}

func TestDeletionHandler_TrashFolderIsOneLogicalDelta(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	baseDir := t.TempDir()
	ctx := context.Background()

	sub := filepath.Join(baseDir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.txt"), []byte("b"), 0o644))

	d := NewDeletionHandler(localfs.NewPath(baseDir), DeleteToTrash, vfs.Path{}, versioning.StyleReplace, testTime())
	coord := newCoordinator(1)
	sr := newStatReporter(1, 0, 0, coord)

	require.NoError(t, d.RemoveFolder(ctx, localfs.NewPath(sub), "sub", sr, lockedForTest(t)))
	assert.NoDirExists(t, sub)
	assert.Equal(t, int64(1), coord.itemsProcessed.Load(),
		"moving a folder to the trash is one operation, irrespective of children")

	require.NoError(t, d.TryCleanup(ctx, &testReporter{}, true))
	entries, err := os.ReadDir(baseDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "cleanup removes the staging folder")
}

func TestDeletionHandler_PermanentFolderReportsPerChild(t *testing.T) {
	baseDir := t.TempDir()
	sub := filepath.Join(baseDir, "sub")
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "inner"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "inner", "b.txt"), []byte("b"), 0o644))

	d := NewDeletionHandler(localfs.NewPath(baseDir), DeletePermanent, vfs.Path{}, versioning.StyleReplace, testTime())
	coord := newCoordinator(1)
	sr := newStatReporter(4, 0, 0, coord)

	require.NoError(t, d.RemoveFolder(context.Background(), localfs.NewPath(sub), "sub", sr, lockedForTest(t)))
	assert.NoDirExists(t, sub)
	assert.Equal(t, int64(4), coord.itemsProcessed.Load(), "two files and two folders")
}

func TestDeletionHandler_LazyVersionerFailureIsPerItemError(t *testing.T) {
	baseDir := t.TempDir()
	file := filepath.Join(baseDir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	// construction must not fail; the missing versioning folder surfaces on
	// first removal
	d := NewDeletionHandler(localfs.NewPath(baseDir), DeleteVersioning, vfs.Path{}, versioning.StyleReplace, testTime())

	coord := newCoordinator(1)
	sr := newStatReporter(1, 0, 0, coord)
	err := d.RemoveFile(context.Background(), FileDescriptor{Path: localfs.NewPath(file)}, "f.txt", sr, lockedForTest(t))
	require.Error(t, err)
	assert.FileExists(t, file)
}

func TestDeletionHandler_VersioningFolderEmitsPerMoveCallbacks(t *testing.T) {
	baseDir := t.TempDir()
	verDir := t.TempDir()
	sub := filepath.Join(baseDir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a.txt"), []byte("a"), 0o644))

	d := NewDeletionHandler(localfs.NewPath(baseDir), DeleteVersioning,
		localfs.NewPath(verDir), versioning.StyleReplace, testTime())
	coord := newCoordinator(1)
	sr := newStatReporter(2, 0, 0, coord)

	require.NoError(t, d.RemoveFolder(context.Background(), localfs.NewPath(sub), "sub", sr, lockedForTest(t)))
	assert.FileExists(t, filepath.Join(verDir, "sub", "a.txt"))
	assert.Equal(t, int64(2), coord.itemsProcessed.Load(), "one delta per moved item")
}

func TestDeletionPolicyAndVariantNames(t *testing.T) {
	assert.Equal(t, "Permanent", DeletePermanent.String())
	assert.Equal(t, "Trash", DeleteToTrash.String())
	assert.Equal(t, "Versioning", DeleteVersioning.String())
	assert.Equal(t, "<Two way>", VariantTwoWay.String())
	assert.Equal(t, "Mirror", VariantMirror.String())
}
