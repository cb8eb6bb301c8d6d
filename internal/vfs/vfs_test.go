package vfs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsync/foldsync/internal/vfs"
	"github.com/foldsync/foldsync/internal/vfs/localfs"
)

func TestPath_JoinAndNull(t *testing.T) {
	var null vfs.Path
	assert.True(t, null.IsNull())
	assert.Empty(t, null.Display())

	p := localfs.NewPath("/base")
	assert.False(t, p.IsNull())
	assert.Equal(t, "/base/sub/a.txt", p.Join("sub/a.txt").Item)
	assert.Equal(t, "/base", p.Join("").Item)
}

func TestPath_Equal(t *testing.T) {
	a := localfs.NewPath("/x")
	b := localfs.NewPath("/x")
	c := localfs.NewPath("/y")
	assert.True(t, vfs.Equal(a, b))
	assert.False(t, vfs.Equal(a, c))
	assert.False(t, vfs.Equal(a, vfs.Path{}))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "a.txt", vfs.BaseName("/x/y/a.txt"))
	assert.Equal(t, "a.txt", vfs.BaseName("a.txt"))
}

func TestHaveSameContent(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) vfs.Path {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return localfs.NewPath(p)
	}
	ctx := context.Background()

	a := write("a", "identical content")
	b := write("b", "identical content")
	c := write("c", "different content!")
	d := write("d", "identical content but longer")

	same, err := vfs.HaveSameContent(ctx, a, b, nil)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = vfs.HaveSameContent(ctx, a, c, nil)
	require.NoError(t, err)
	assert.False(t, same)

	same, err = vfs.HaveSameContent(ctx, a, d, nil)
	require.NoError(t, err)
	assert.False(t, same)
}

func TestVerifyFiles_MismatchReportsVerificationError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("good"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("bad!"), 0o644))

	progressCalls := 0
	err := vfs.VerifyFiles(context.Background(), localfs.NewPath(src), localfs.NewPath(dst),
		func(int64) error { progressCalls++; return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data verification error")

	var fileErr *vfs.FileError
	assert.ErrorAs(t, err, &fileErr)
}

func TestFileError_WrapsSentinels(t *testing.T) {
	err := vfs.FileErrorf(vfs.ErrDifferentVolume, "cannot move %s", "/a")
	assert.ErrorIs(t, err, vfs.ErrDifferentVolume)
	assert.Contains(t, err.Error(), "cannot move /a")
}
