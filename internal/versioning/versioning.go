// Package versioning moves deleted and overwritten items into a timestamped
// archive tree instead of discarding them.
package versioning

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/foldsync/foldsync/internal/vfs"
)

// Style selects how revisions are laid out inside the versioning folder.
type Style uint8

const (
	// StyleReplace keeps one revision per item at its plain relative path.
	StyleReplace Style = iota
	// StyleTimestampFolder groups one sync run's revisions under a
	// "<timestamp>" folder.
	StyleTimestampFolder
	// StyleTimestampFile appends the timestamp to each file name, before the
	// extension.
	StyleTimestampFile
)

var styleNames = []string{"Replace", "TimestampFolder", "TimestampFile"}

func (s Style) String() string { return styleNames[s] }

const timestampFormat = "2006-01-02 150405"

// Versioner archives items of one base pair below a versioning folder.
// Construction creates the folder if it is missing, so that failure surfaces where the
// caller expects a per-item error.
type Versioner struct {
	folder    vfs.Path
	style     Style
	timestamp string
}

func New(ctx context.Context, folder vfs.Path, style Style, syncStartTime time.Time) (*Versioner, error) {
	if folder.IsNull() {
		return nil, vfs.NewFileError("no versioning folder configured", nil)
	}
	if err := folder.FS.CreateFolderIfMissingRecursion(ctx, folder.Item); err != nil {
		return nil, err
	}
	return &Versioner{
		folder:    folder,
		style:     style,
		timestamp: syncStartTime.Format(timestampFormat),
	}, nil
}

// revisionPath maps a pair-relative path to its archive location.
func (v *Versioner) revisionPath(relPath string) vfs.Path {
	switch v.style {
	case StyleTimestampFolder:
		return v.folder.Join(v.timestamp).Join(relPath)
	case StyleTimestampFile:
		dir, name := splitRelPath(relPath)
		stem, ext := splitExt(name)
		stamped := stem + " " + v.timestamp + ext
		if dir == "" {
			return v.folder.Join(stamped)
		}
		return v.folder.Join(dir).Join(stamped)
	default:
		return v.folder.Join(relPath)
	}
}

func splitRelPath(relPath string) (dir, name string) {
	if i := strings.LastIndex(relPath, vfs.Separator); i >= 0 {
		return relPath[:i], relPath[i+1:]
	}
	return "", relPath
}

func splitExt(name string) (stem, ext string) {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i], name[i:]
	}
	return name, ""
}

// RevisionFile archives one file. Returns false without error when the
// source does not exist.
func (v *Versioner) RevisionFile(ctx context.Context, file vfs.Path, attrs vfs.StreamAttrs,
	relPath string, onProgress vfs.ProgressFunc) (bool, error) {
	_, exists, err := file.FS.ItemTypeIfExists(ctx, file.Item)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	target := v.revisionPath(relPath)
	if err := v.moveFile(ctx, file, attrs, target, onProgress); err != nil {
		return false, err
	}
	return true, nil
}

// RevisionSymlink archives one symlink.
func (v *Versioner) RevisionSymlink(ctx context.Context, link vfs.Path, relPath string) (bool, error) {
	_, exists, err := link.FS.ItemTypeIfExists(ctx, link.Item)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := v.moveSymlink(ctx, link, v.revisionPath(relPath)); err != nil {
		return false, err
	}
	return true, nil
}

// RevisionFolder archives a folder tree item by item, announcing each move.
func (v *Versioner) RevisionFolder(ctx context.Context, folder vfs.Path, relPath string,
	onFileMove, onFolderMove func(fromDisplay, toDisplay string) error, onProgress vfs.ProgressFunc) error {

	itemType, exists, err := folder.FS.ItemTypeIfExists(ctx, folder.Item)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if itemType == vfs.ItemSymlink {
		target := v.revisionPath(relPath)
		if onFileMove != nil {
			if err := onFileMove(folder.Display(), target.Display()); err != nil {
				return err
			}
		}
		return v.moveSymlink(ctx, folder, target)
	}
	return v.revisionFolderRec(ctx, folder, relPath, onFileMove, onFolderMove, onProgress)
}

func (v *Versioner) revisionFolderRec(ctx context.Context, folder vfs.Path, relPath string,
	onFileMove, onFolderMove func(fromDisplay, toDisplay string) error, onProgress vfs.ProgressFunc) error {

	entries, err := folder.FS.ReadDir(ctx, folder.Item)
	if err != nil {
		return err
	}
	for _, e := range entries {
		sub := folder.Join(e.Name)
		subRel := e.Name
		if relPath != "" {
			subRel = relPath + vfs.Separator + e.Name
		}
		switch e.Type {
		case vfs.ItemFolder:
			if err := v.revisionFolderRec(ctx, sub, subRel, onFileMove, onFolderMove, onProgress); err != nil {
				return err
			}
		case vfs.ItemSymlink:
			target := v.revisionPath(subRel)
			if onFileMove != nil {
				if err := onFileMove(sub.Display(), target.Display()); err != nil {
					return err
				}
			}
			if err := v.moveSymlink(ctx, sub, target); err != nil {
				return err
			}
		default:
			target := v.revisionPath(subRel)
			if onFileMove != nil {
				if err := onFileMove(sub.Display(), target.Display()); err != nil {
					return err
				}
			}
			if err := v.moveFile(ctx, sub, vfs.StreamAttrs{}, target, onProgress); err != nil {
				return err
			}
		}
	}

	target := v.revisionPath(relPath)
	if onFolderMove != nil {
		if err := onFolderMove(folder.Display(), target.Display()); err != nil {
			return err
		}
	}
	if err := target.FS.CreateFolderIfMissingRecursion(ctx, target.Item); err != nil {
		return err
	}
	return folder.FS.RemoveFolderRecursive(ctx, folder.Item, nil, nil)
}

func (v *Versioner) ensureParent(ctx context.Context, target vfs.Path) error {
	dir, _ := splitRelPath(target.Item)
	if dir == "" {
		return nil
	}
	return target.FS.CreateFolderIfMissingRecursion(ctx, dir)
}

func (v *Versioner) moveFile(ctx context.Context, src vfs.Path, attrs vfs.StreamAttrs,
	target vfs.Path, onProgress vfs.ProgressFunc) error {
	if err := v.ensureParent(ctx, target); err != nil {
		return err
	}
	if v.style == StyleReplace {
		if _, err := target.FS.RemoveFileIfExists(ctx, target.Item); err != nil {
			return err
		}
	}
	if src.FS == target.FS {
		err := src.FS.RenameItem(ctx, src.Item, target.Item)
		if err == nil {
			return nil
		}
		if !errors.Is(err, vfs.ErrDifferentVolume) {
			return err
		}
	}
	// cross-volume fallback: copy, then delete the source
	if _, err := src.FS.CopyFileTransactional(ctx, src.Item, attrs, target,
		false /*copyPermissions*/, true /*failSafe*/, nil, onProgress); err != nil {
		return err
	}
	return src.FS.RemoveFilePlain(ctx, src.Item)
}

func (v *Versioner) moveSymlink(ctx context.Context, src vfs.Path, target vfs.Path) error {
	if err := v.ensureParent(ctx, target); err != nil {
		return err
	}
	if v.style == StyleReplace {
		if _, err := target.FS.RemoveSymlinkIfExists(ctx, target.Item); err != nil {
			return err
		}
	}
	if src.FS == target.FS {
		err := src.FS.RenameItem(ctx, src.Item, target.Item)
		if err == nil {
			return nil
		}
		if !errors.Is(err, vfs.ErrDifferentVolume) {
			return err
		}
	}
	if err := src.FS.CopySymlink(ctx, src.Item, target, false); err != nil {
		return err
	}
	_, err := src.FS.RemoveSymlinkIfExists(ctx, src.Item)
	return err
}
