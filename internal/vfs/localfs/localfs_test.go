package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsync/foldsync/internal/vfs"
)

func TestItemType(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l := Default()

	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	link := filepath.Join(dir, "l")
	require.NoError(t, os.Symlink(file, link))

	typ, err := l.ItemType(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, vfs.ItemFile, typ)

	typ, err = l.ItemType(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, vfs.ItemFolder, typ)

	typ, err = l.ItemType(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, vfs.ItemSymlink, typ)

	_, exists, err := l.ItemTypeIfExists(ctx, filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l := Default()

	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	removed, err := l.RemoveFileIfExists(ctx, file)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = l.RemoveFileIfExists(ctx, file)
	require.NoError(t, err)
	assert.False(t, removed, "second removal finds nothing")

	err = l.RemoveFilePlain(ctx, file)
	assert.Error(t, err, "plain removal of a missing file fails")
}

func TestRemoveFolderRecursive_Callbacks(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l := Default()

	root := filepath.Join(dir, "root")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("b"), 0o644))

	var files, folders []string
	err := l.RemoveFolderRecursive(ctx, root,
		func(p string) error { files = append(files, filepath.Base(p)); return nil },
		func(p string) error { folders = append(folders, filepath.Base(p)); return nil })
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, files)
	assert.ElementsMatch(t, []string{"root", "sub"}, folders)
	assert.NoDirExists(t, root)

	// removing a missing folder is not an error
	require.NoError(t, l.RemoveFolderRecursive(ctx, root, nil, nil))
}

func TestRenameItem(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l := Default()

	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.NoError(t, l.RenameItem(ctx, src, dst))
	assert.NoFileExists(t, src)
	assert.FileExists(t, dst)

	assert.Error(t, l.RenameItem(ctx, src, dst), "renaming a missing item fails")
}

func TestCopyFileTransactional_FailSafe(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l := Default()

	src := filepath.Join(dir, "src.txt")
	content := []byte("some file content for the copy")
	require.NoError(t, os.WriteFile(src, content, 0o644))
	dst := NewPath(filepath.Join(dir, "dst.txt"))

	var progress int64
	deleteCalled := false
	result, err := l.CopyFileTransactional(ctx, src, vfs.StreamAttrs{}, dst, false, true,
		func() error {
			deleteCalled = true
			// at the commit point the new content must not be in place yet
			assert.NoFileExists(t, dst.Item)
			return nil
		},
		func(delta int64) error { progress += delta; return nil })
	require.NoError(t, err)

	assert.True(t, deleteCalled)
	assert.Equal(t, int64(len(content)), result.Size)
	assert.Equal(t, int64(len(content)), progress)
	data, err := os.ReadFile(dst.Item)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// source modification time was carried over
	srcInfo, _ := os.Stat(src)
	dstInfo, _ := os.Stat(dst.Item)
	assert.WithinDuration(t, srcInfo.ModTime(), dstInfo.ModTime(), time.Second)

	// no temp file remnants
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), vfs.TempFileSuffix)
	}
}

func TestCopyFileTransactional_ProgressErrorAborts(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l := Default()

	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0o644))
	dst := NewPath(filepath.Join(dir, "dst.txt"))

	wantErr := assert.AnError
	_, err := l.CopyFileTransactional(ctx, src, vfs.StreamAttrs{}, dst, false, true, nil,
		func(int64) error { return wantErr })
	require.ErrorIs(t, err, wantErr)
	assert.NoFileExists(t, dst.Item, "failed copy leaves no target")
}

func TestCopySymlink(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l := Default()

	target := filepath.Join(dir, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	src := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, src))

	dst := NewPath(filepath.Join(dir, "link2"))
	require.NoError(t, l.CopySymlink(ctx, src, dst, false))

	got, err := os.Readlink(dst.Item)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestCopyNewFolder(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l := Default()

	src := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(src, 0o755))

	dst := NewPath(filepath.Join(dir, "dst"))
	require.NoError(t, l.CopyNewFolder(ctx, src, dst, false))
	assert.DirExists(t, dst.Item)

	assert.Error(t, l.CopyNewFolder(ctx, src, dst, false), "existing target fails")
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l := Default()

	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(dir, "f.txt"), filepath.Join(dir, "l")))

	entries, err := l.ReadDir(ctx, dir)
	require.NoError(t, err)
	byName := map[string]vfs.ItemType{}
	for _, e := range entries {
		byName[e.Name] = e.Type
	}
	assert.Equal(t, vfs.ItemFolder, byName["sub"])
	assert.Equal(t, vfs.ItemFile, byName["f.txt"])
	assert.Equal(t, vfs.ItemSymlink, byName["l"])
}

func TestSymlinkResolvedPath(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	l := Default()

	target := filepath.Join(dir, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	resolved, err := l.SymlinkResolvedPath(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, target, resolved)
}

func TestFreeDiskSpaceAndDeviceKey(t *testing.T) {
	dir := t.TempDir()
	l := Default()

	free, err := l.FreeDiskSpace(context.Background(), dir)
	require.NoError(t, err)
	assert.Greater(t, free, int64(0))

	key := l.DeviceKey(dir)
	assert.NotEmpty(t, key)
}

func TestSupportPermissionCopy(t *testing.T) {
	l := Default()
	assert.True(t, l.SupportPermissionCopy(Default()))
}
