// Package vfs defines the abstract filesystem contract consumed by the sync
// engine. Backends (local disk, network, cloud) implement FS; the engine only
// ever talks to this interface.
package vfs

import (
	"context"
	"io"
	"time"
)

// TempFileSuffix marks transient files created by fail-safe copies and
// two-step moves. Items whose relative path ends with it are always deleted
// permanently, regardless of the configured deletion policy.
const TempFileSuffix = ".fsx_tmp"

type ItemType uint8

const (
	ItemFile ItemType = iota
	ItemFolder
	ItemSymlink
)

var itemTypeNames = []string{"File", "Folder", "Symlink"}

func (t ItemType) String() string { return itemTypeNames[t] }

// StreamAttrs are the source attributes handed to a transactional copy.
type StreamAttrs struct {
	ModTime time.Time
	Size    int64
	FileID  string
}

// CopyResult reports the outcome of a successful transactional copy.
// ErrModTime is non-fatal: the content was copied, but the target
// modification time could not be set.
type CopyResult struct {
	Size       int64
	SrcModTime time.Time
	DstModTime time.Time
	SrcFileID  string
	DstFileID  string
	ErrModTime error
}

// ProgressFunc receives unbuffered byte deltas during bulk I/O. It runs
// outside any engine-held lock and may return an error to cancel the
// operation.
type ProgressFunc func(bytesDelta int64) error

// NotifyFunc announces an item (by display path) before it is processed.
type NotifyFunc func(displayPath string) error

// DirEntry is one child of a folder listing.
type DirEntry struct {
	Name string
	Type ItemType
}

// TrashSession buffers logical deletions for one base folder and flushes them
// to the platform trash on cleanup. Sessions are created lazily because
// construction may fail and such failure must surface as a per-item error.
type TrashSession interface {
	// RecycleItem moves the item into the trash staging area. Returns false
	// if the item did not exist.
	RecycleItem(ctx context.Context, itemPath string, relPath string) (bool, error)

	// TryCleanup flushes buffered moves. onStatus is invoked with a display
	// path per flushed item, or an empty string for a plain refresh tick.
	TryCleanup(ctx context.Context, onStatus NotifyFunc) error
}

// FS is the file-operation surface of one filesystem backend. Item paths are
// backend-native strings; Path bundles them with their FS.
//
// All calls may block on I/O; the engine releases its core mutex around each
// of them. Callbacks (progress, notify) also run outside that lock.
type FS interface {
	// DisplayPath renders an item path for status text and logs.
	DisplayPath(itemPath string) string

	// DeviceKey identifies the volume an item lives on, for per-device
	// parallelism lookup.
	DeviceKey(itemPath string) string

	ItemType(ctx context.Context, itemPath string) (ItemType, error)
	// ItemTypeIfExists reports false without error if the item is missing.
	ItemTypeIfExists(ctx context.Context, itemPath string) (ItemType, bool, error)

	// RemoveFileIfExists reports false if there was nothing to delete.
	RemoveFileIfExists(ctx context.Context, itemPath string) (bool, error)
	RemoveSymlinkIfExists(ctx context.Context, itemPath string) (bool, error)
	// RemoveFilePlain fails if the item is missing.
	RemoveFilePlain(ctx context.Context, itemPath string) error

	// RemoveFolderRecursive deletes a folder tree, announcing every file and
	// folder through the callbacks before it is removed.
	RemoveFolderRecursive(ctx context.Context, itemPath string, onFile, onFolder NotifyFunc) error

	// RenameItem moves an item within this backend. Crossing a volume
	// boundary fails with ErrDifferentVolume.
	RenameItem(ctx context.Context, oldPath, newPath string) error

	CopySymlink(ctx context.Context, srcPath string, dst Path, copyPermissions bool) error

	// CopyNewFolder shallow-creates dst as a copy of the folder at srcPath.
	// Behavior when dst already exists is undefined.
	CopyNewFolder(ctx context.Context, srcPath string, dst Path, copyPermissions bool) error

	// CopyFileTransactional copies a file. With failSafe, dst is fully written
	// on success and unchanged on failure; without it, the content is written
	// to dst directly and a failed copy removes the partial dst. onDeleteTarget, if non-nil, is
	// invoked at the safe commit point just before the new content lands.
	// onProgress reports byte deltas outside any caller-held lock.
	CopyFileTransactional(ctx context.Context, srcPath string, srcAttrs StreamAttrs, dst Path,
		copyPermissions, failSafe bool, onDeleteTarget func() error, onProgress ProgressFunc) (CopyResult, error)

	// SymlinkResolvedPath follows a symlink chain to its final target.
	SymlinkResolvedPath(ctx context.Context, itemPath string) (string, error)

	// FreeDiskSpace returns 0 when the backend cannot answer.
	FreeDiskSpace(ctx context.Context, itemPath string) (int64, error)

	SupportsTrash(ctx context.Context, itemPath string) (bool, error)
	NewTrashSession(baseFolderPath string) (TrashSession, error)

	// SupportPermissionCopy reports whether permissions survive a copy
	// between this backend and other.
	SupportPermissionCopy(other FS) bool

	CreateFolderIfMissingRecursion(ctx context.Context, itemPath string) error

	// ReadDir lists a folder's direct children.
	ReadDir(ctx context.Context, itemPath string) ([]DirEntry, error)

	// OpenRead is used by copy verification to re-read content.
	OpenRead(ctx context.Context, itemPath string) (io.ReadCloser, error)

	// FlushBuffers syncs pending writes of one file to stable storage.
	FlushBuffers(ctx context.Context, itemPath string) error
}
