package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foldsync/foldsync/internal/versioning"
	"github.com/foldsync/foldsync/internal/vfs"
)

// DeletionPolicy selects what physical removal means.
type DeletionPolicy uint8

const (
	DeletePermanent DeletionPolicy = iota
	DeleteToTrash
	DeleteVersioning
)

var deletionPolicyNames = []string{"Permanent", "Trash", "Versioning"}

func (p DeletionPolicy) String() string { return deletionPolicyNames[p] }

// FileDescriptor is a file path plus the attributes observed at comparison
// time, handed to removal and copy operations.
type FileDescriptor struct {
	Path  vfs.Path
	Attrs vfs.StreamAttrs
}

// Versioner archives removed items instead of discarding them. Implemented
// by the versioning package; the engine only consumes this surface.
type Versioner interface {
	RevisionFile(ctx context.Context, file vfs.Path, attrs vfs.StreamAttrs, relPath string, onProgress vfs.ProgressFunc) (bool, error)
	RevisionSymlink(ctx context.Context, link vfs.Path, relPath string) (bool, error)
	RevisionFolder(ctx context.Context, folder vfs.Path, relPath string,
		onFileMove, onFolderMove func(fromDisplay, toDisplay string) error, onProgress vfs.ProgressFunc) error
}

// DeletionHandler removes files, folders and symlinks according to one
// side's deletion policy. One instance exists per side per base pair.
//
// The trash session and the versioner are constructed lazily on first
// removal: their construction may fail, and such failure must surface as a
// normal per-item error rather than a construction error.
type DeletionHandler struct {
	policy           DeletionPolicy
	baseFolderPath   vfs.Path
	versioningFolder vfs.Path
	versioningStyle  versioning.Style
	syncStartTime    time.Time

	trashSession vfs.TrashSession
	versioner    Versioner

	// newVersioner is a seam for tests; defaults to versioning.New.
	newVersioner func(ctx context.Context, folder vfs.Path, style versioning.Style, t time.Time) (Versioner, error)

	// status templates pre-parameterized by policy, so workers do not branch
	// on policy when reporting
	txtRemovingFile    string
	txtRemovingSymlink string
	txtRemovingFolder  string
}

const (
	txtMovingFileToVersioning   = "Moving file %s to %s"
	txtMovingFolderToVersioning = "Moving folder %s to %s"
)

func NewDeletionHandler(baseFolderPath vfs.Path, policy DeletionPolicy,
	versioningFolder vfs.Path, style versioning.Style, syncStartTime time.Time) *DeletionHandler {

	d := &DeletionHandler{
		policy:           policy,
		baseFolderPath:   baseFolderPath,
		versioningFolder: versioningFolder,
		versioningStyle:  style,
		syncStartTime:    syncStartTime,
		newVersioner: func(ctx context.Context, folder vfs.Path, style versioning.Style, t time.Time) (Versioner, error) {
			return versioning.New(ctx, folder, style, t)
		},
	}

	switch policy {
	case DeletePermanent:
		d.txtRemovingFile = "Deleting file %s"
		d.txtRemovingSymlink = "Deleting symbolic link %s"
		d.txtRemovingFolder = "Deleting folder %s"
	case DeleteToTrash:
		d.txtRemovingFile = "Moving file %s to the trash"
		d.txtRemovingSymlink = "Moving symbolic link %s to the trash"
		d.txtRemovingFolder = "Moving folder %s to the trash"
	case DeleteVersioning:
		display := versioningFolder.Display()
		d.txtRemovingFile = fmt.Sprintf("Moving file %%s to %s", display)
		d.txtRemovingSymlink = fmt.Sprintf("Moving symbolic link %%s to %s", display)
		d.txtRemovingFolder = fmt.Sprintf("Moving folder %%s to %s", display)
	}
	return d
}

func (d *DeletionHandler) TxtRemovingFile() string    { return d.txtRemovingFile }
func (d *DeletionHandler) TxtRemovingSymlink() string { return d.txtRemovingSymlink }
func (d *DeletionHandler) TxtRemovingFolder() string  { return d.txtRemovingFolder }

func (d *DeletionHandler) getTrashSession() (vfs.TrashSession, error) {
	if d.trashSession == nil {
		session, err := d.baseFolderPath.FS.NewTrashSession(d.baseFolderPath.Item)
		if err != nil {
			return nil, err
		}
		d.trashSession = session
	}
	return d.trashSession, nil
}

func (d *DeletionHandler) getVersioner(ctx context.Context) (Versioner, error) {
	if d.versioner == nil {
		v, err := d.newVersioner(ctx, d.versioningFolder, d.versioningStyle, d.syncStartTime)
		if err != nil {
			return nil, err
		}
		d.versioner = v
	}
	return d.versioner, nil
}

// RemoveFile deletes one file per policy. Files carrying the reserved
// temporary suffix are always deleted permanently.
func (d *DeletionHandler) RemoveFile(ctx context.Context, desc FileDescriptor, relPath string,
	sr *statReporter, lock *coreLock) error {

	if strings.HasSuffix(relPath, vfs.TempFileSuffix) {
		if err := lock.parallel(func() error {
			_, err := desc.Path.FS.RemoveFileIfExists(ctx, desc.Path.Item)
			return err
		}); err != nil {
			return err
		}
	} else {
		switch d.policy {
		case DeletePermanent:
			if err := lock.parallel(func() error {
				_, err := desc.Path.FS.RemoveFileIfExists(ctx, desc.Path.Item)
				return err
			}); err != nil {
				return err
			}

		case DeleteToTrash:
			session, err := d.getTrashSession()
			if err != nil {
				return err
			}
			if err := lock.parallel(func() error {
				_, err := session.RecycleItem(ctx, desc.Path.Item, relPath)
				return err
			}); err != nil {
				return err
			}

		case DeleteVersioning:
			v, err := d.getVersioner(ctx)
			if err != nil {
				return err
			}
			if err := lock.parallel(func() error {
				_, err := v.RevisionFile(ctx, desc.Path, desc.Attrs, relPath,
					func(bytesDelta int64) error { return sr.reportDelta(0, bytesDelta) })
				return err
			}); err != nil {
				return err
			}
		}
	}

	// report even if the source item was already gone: observable I/O work
	// was spent verifying
	return sr.reportDelta(1, 0)
}

// RemoveFolder deletes one folder per policy. Permanent removal recurses and
// reports one delta per child; trash is a single logical move; versioning
// delegates to the versioner, which emits per-move callbacks.
func (d *DeletionHandler) RemoveFolder(ctx context.Context, folderPath vfs.Path, relPath string,
	sr *statReporter, lock *coreLock) error {

	switch d.policy {
	case DeletePermanent:
		// callbacks run outside the core lock
		notifyDeletion := func(template, displayPath string) error {
			if err := sr.reportStatus(fmt.Sprintf(template, displayPath)); err != nil {
				return err
			}
			return sr.reportDelta(1, 0)
		}
		return lock.parallel(func() error {
			return folderPath.FS.RemoveFolderRecursive(ctx, folderPath.Item,
				func(displayPath string) error { return notifyDeletion(d.txtRemovingFile, displayPath) },
				func(displayPath string) error { return notifyDeletion(d.txtRemovingFolder, displayPath) })
		})

	case DeleteToTrash:
		session, err := d.getTrashSession()
		if err != nil {
			return err
		}
		if err := lock.parallel(func() error {
			_, err := session.RecycleItem(ctx, folderPath.Item, relPath)
			return err
		}); err != nil {
			return err
		}
		// moving to the trash is ONE logical operation, irrespective of the
		// number of child elements
		return sr.reportDelta(1, 0)

	case DeleteVersioning:
		v, err := d.getVersioner(ctx)
		if err != nil {
			return err
		}
		notifyMove := func(template, fromDisplay, toDisplay string) error {
			if err := sr.reportStatus(fmt.Sprintf(template, fromDisplay, toDisplay)); err != nil {
				return err
			}
			return sr.reportDelta(1, 0)
		}
		return lock.parallel(func() error {
			return v.RevisionFolder(ctx, folderPath, relPath,
				func(from, to string) error { return notifyMove(txtMovingFileToVersioning, from, to) },
				func(from, to string) error { return notifyMove(txtMovingFolderToVersioning, from, to) },
				func(bytesDelta int64) error { return sr.reportDelta(0, bytesDelta) })
		})
	}
	return nil
}

// RemoveSymlink deletes one symlink per policy; never recurses.
func (d *DeletionHandler) RemoveSymlink(ctx context.Context, linkPath vfs.Path, relPath string,
	sr *statReporter, lock *coreLock) error {

	switch d.policy {
	case DeletePermanent:
		if err := lock.parallel(func() error {
			_, err := linkPath.FS.RemoveSymlinkIfExists(ctx, linkPath.Item)
			return err
		}); err != nil {
			return err
		}

	case DeleteToTrash:
		session, err := d.getTrashSession()
		if err != nil {
			return err
		}
		if err := lock.parallel(func() error {
			_, err := session.RecycleItem(ctx, linkPath.Item, relPath)
			return err
		}); err != nil {
			return err
		}

	case DeleteVersioning:
		v, err := d.getVersioner(ctx)
		if err != nil {
			return err
		}
		if err := lock.parallel(func() error {
			_, err := v.RevisionSymlink(ctx, linkPath, relPath)
			return err
		}); err != nil {
			return err
		}
	}

	// report unconditionally, see RemoveFile
	return sr.reportDelta(1, 0)
}

// TryCleanup flushes buffered trash moves. Called post-sync from the main
// goroutine. With allowCallbackError false (abort and teardown paths),
// reporter errors are swallowed so cleanup runs to completion.
func (d *DeletionHandler) TryCleanup(ctx context.Context, cb ProgressReporter, allowCallbackError bool) error {
	switch d.policy {
	case DeletePermanent:
	case DeleteToTrash:
		if d.trashSession != nil {
			onStatus := func(displayPath string) error {
				var err error
				if displayPath != "" {
					err = cb.ReportStatus(fmt.Sprintf(d.txtRemovingFile, displayPath))
				} else {
					err = cb.RequestUIRefresh()
				}
				if err != nil && !allowCallbackError {
					return nil
				}
				return err
			}
			return d.trashSession.TryCleanup(ctx, onStatus)
		}
	case DeleteVersioning:
		// hook for a future limit-versions pass
	}
	return nil
}
