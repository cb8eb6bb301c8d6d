// Package localfs implements the vfs contract on the local disk.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/foldsync/foldsync/internal/trash"
	"github.com/foldsync/foldsync/internal/vfs"
)

// FS is the local-disk backend. It is stateless apart from a cached mount
// table used for device keys; a single shared instance serves all paths.
type FS struct {
	mountsOnce sync.Once
	mounts     []string // mount points, longest first
}

var defaultFS = &FS{}

var _ vfs.FS = (*FS)(nil)

// Default returns the shared local backend.
func Default() *FS { return defaultFS }

// NewPath wraps an absolute local path for the shared backend.
func NewPath(itemPath string) vfs.Path {
	return vfs.Path{FS: defaultFS, Item: filepath.Clean(itemPath)}
}

func (l *FS) DisplayPath(itemPath string) string { return filepath.Clean(itemPath) }

func (l *FS) DeviceKey(itemPath string) string {
	l.mountsOnce.Do(func() {
		parts, err := disk.Partitions(false)
		if err != nil {
			return
		}
		for _, p := range parts {
			l.mounts = append(l.mounts, p.Mountpoint)
		}
		sort.Slice(l.mounts, func(i, j int) bool { return len(l.mounts[i]) > len(l.mounts[j]) })
	})
	clean := filepath.Clean(itemPath)
	for _, m := range l.mounts {
		if clean == m || strings.HasPrefix(clean, strings.TrimSuffix(m, "/")+"/") {
			return m
		}
	}
	return "/"
}

func itemTypeOf(fi fs.FileInfo) vfs.ItemType {
	switch {
	case fi.Mode()&fs.ModeSymlink != 0:
		return vfs.ItemSymlink
	case fi.IsDir():
		return vfs.ItemFolder
	default:
		return vfs.ItemFile
	}
}

func (l *FS) ItemType(ctx context.Context, itemPath string) (vfs.ItemType, error) {
	fi, err := os.Lstat(itemPath)
	if err != nil {
		return 0, vfs.FileErrorf(err, "cannot find %s", itemPath)
	}
	return itemTypeOf(fi), nil
}

func (l *FS) ItemTypeIfExists(ctx context.Context, itemPath string) (vfs.ItemType, bool, error) {
	fi, err := os.Lstat(itemPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, vfs.FileErrorf(err, "cannot find %s", itemPath)
	}
	return itemTypeOf(fi), true, nil
}

func removeIfExists(itemPath string) (bool, error) {
	if err := os.Remove(itemPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, vfs.FileErrorf(err, "cannot delete %s", itemPath)
	}
	return true, nil
}

func (l *FS) RemoveFileIfExists(ctx context.Context, itemPath string) (bool, error) {
	return removeIfExists(itemPath)
}

func (l *FS) RemoveSymlinkIfExists(ctx context.Context, itemPath string) (bool, error) {
	return removeIfExists(itemPath)
}

func (l *FS) RemoveFilePlain(ctx context.Context, itemPath string) error {
	if err := os.Remove(itemPath); err != nil {
		return vfs.FileErrorf(err, "cannot delete %s", itemPath)
	}
	return nil
}

func (l *FS) RemoveFolderRecursive(ctx context.Context, itemPath string, onFile, onFolder vfs.NotifyFunc) error {
	fi, err := os.Lstat(itemPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return vfs.FileErrorf(err, "cannot find %s", itemPath)
	}
	if fi.Mode()&fs.ModeSymlink != 0 {
		// a followed symlink to a folder is removed as a link, not recursed
		if onFile != nil {
			if err := onFile(l.DisplayPath(itemPath)); err != nil {
				return err
			}
		}
		return l.RemoveFilePlain(ctx, itemPath)
	}
	return l.removeFolderRec(ctx, itemPath, onFile, onFolder)
}

func (l *FS) removeFolderRec(ctx context.Context, dir string, onFile, onFolder vfs.NotifyFunc) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return vfs.FileErrorf(err, "cannot read folder %s", dir)
	}
	for _, e := range entries {
		sub := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := l.removeFolderRec(ctx, sub, onFile, onFolder); err != nil {
				return err
			}
			continue
		}
		if onFile != nil {
			if err := onFile(l.DisplayPath(sub)); err != nil {
				return err
			}
		}
		if err := os.Remove(sub); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return vfs.FileErrorf(err, "cannot delete %s", sub)
		}
	}
	if onFolder != nil {
		if err := onFolder(l.DisplayPath(dir)); err != nil {
			return err
		}
	}
	if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return vfs.FileErrorf(err, "cannot delete folder %s", dir)
	}
	return nil
}

func (l *FS) RenameItem(ctx context.Context, oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
			return vfs.FileErrorf(vfs.ErrDifferentVolume, "cannot move %s to %s", oldPath, newPath)
		}
		return vfs.FileErrorf(err, "cannot move %s to %s", oldPath, newPath)
	}
	return nil
}

func (l *FS) CopySymlink(ctx context.Context, srcPath string, dst vfs.Path, copyPermissions bool) error {
	if _, ok := dst.FS.(*FS); !ok {
		return vfs.NewFileError("cannot copy symlink across backends", nil)
	}
	target, err := os.Readlink(srcPath)
	if err != nil {
		return vfs.FileErrorf(err, "cannot read symbolic link %s", srcPath)
	}
	if err := os.Symlink(target, dst.Item); err != nil {
		return vfs.FileErrorf(err, "cannot create symbolic link %s", dst.Item)
	}
	return nil
}

func (l *FS) CopyNewFolder(ctx context.Context, srcPath string, dst vfs.Path, copyPermissions bool) error {
	if _, ok := dst.FS.(*FS); !ok {
		return vfs.NewFileError("cannot create folder across backends", nil)
	}
	mode := fs.FileMode(0o755)
	srcInfo, statErr := os.Stat(srcPath)
	if copyPermissions && statErr == nil {
		mode = srcInfo.Mode().Perm()
	}
	if err := os.Mkdir(dst.Item, mode); err != nil {
		return vfs.FileErrorf(err, "cannot create folder %s", dst.Item)
	}
	return nil
}

func (l *FS) SymlinkResolvedPath(ctx context.Context, itemPath string) (string, error) {
	resolved, err := filepath.EvalSymlinks(itemPath)
	if err != nil {
		return "", vfs.FileErrorf(err, "cannot resolve symbolic link %s", itemPath)
	}
	return resolved, nil
}

func (l *FS) FreeDiskSpace(ctx context.Context, itemPath string) (int64, error) {
	usage, err := disk.UsageWithContext(ctx, itemPath)
	if err != nil {
		return 0, vfs.FileErrorf(err, "cannot determine free disk space for %s", itemPath)
	}
	return int64(usage.Free), nil
}

func (l *FS) SupportsTrash(ctx context.Context, itemPath string) (bool, error) {
	return trash.Supported()
}

func (l *FS) NewTrashSession(baseFolderPath string) (vfs.TrashSession, error) {
	session, err := trash.NewSession(baseFolderPath)
	if err != nil {
		return nil, err
	}
	return &trashSession{session: session}, nil
}

type trashSession struct {
	session *trash.Session
}

func (t *trashSession) RecycleItem(ctx context.Context, itemPath, relPath string) (bool, error) {
	return t.session.Recycle(ctx, itemPath, relPath)
}

func (t *trashSession) TryCleanup(ctx context.Context, onStatus vfs.NotifyFunc) error {
	if onStatus == nil {
		return t.session.Cleanup(ctx, nil)
	}
	return t.session.Cleanup(ctx, func(displayPath string) error { return onStatus(displayPath) })
}

func (l *FS) SupportPermissionCopy(other vfs.FS) bool {
	_, ok := other.(*FS)
	return ok
}

func (l *FS) CreateFolderIfMissingRecursion(ctx context.Context, itemPath string) error {
	if err := os.MkdirAll(itemPath, 0o755); err != nil {
		return vfs.FileErrorf(err, "cannot create folder %s", itemPath)
	}
	return nil
}

func (l *FS) ReadDir(ctx context.Context, itemPath string) ([]vfs.DirEntry, error) {
	entries, err := os.ReadDir(itemPath)
	if err != nil {
		return nil, vfs.FileErrorf(err, "cannot read folder %s", itemPath)
	}
	out := make([]vfs.DirEntry, 0, len(entries))
	for _, e := range entries {
		t := vfs.ItemFile
		switch {
		case e.Type()&fs.ModeSymlink != 0:
			t = vfs.ItemSymlink
		case e.IsDir():
			t = vfs.ItemFolder
		}
		out = append(out, vfs.DirEntry{Name: e.Name(), Type: t})
	}
	return out, nil
}

func (l *FS) OpenRead(ctx context.Context, itemPath string) (io.ReadCloser, error) {
	f, err := os.Open(itemPath)
	if err != nil {
		return nil, vfs.FileErrorf(err, "cannot open file %s", itemPath)
	}
	return f, nil
}

func (l *FS) FlushBuffers(ctx context.Context, itemPath string) error {
	f, err := os.OpenFile(itemPath, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return vfs.FileErrorf(err, "cannot open file %s", itemPath)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return vfs.FileErrorf(err, "cannot flush file %s", itemPath)
	}
	return nil
}

func fileID(fi fs.FileInfo) string {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return fmt.Sprintf("%x:%x", st.Dev, st.Ino)
	}
	return ""
}
