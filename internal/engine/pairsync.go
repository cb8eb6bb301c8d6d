package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foldsync/foldsync/internal/tree"
	"github.com/foldsync/foldsync/internal/vfs"
)

// uiPollInterval paces status and statistics refreshes of the main loop.
const uiPollInterval = 50 * time.Millisecond

// syncPairContext carries the per-pair execution parameters shared by all
// workers of one base pair.
type syncPairContext struct {
	verifyCopiedFiles   bool
	copyFilePermissions bool
	failSafeFileCopy    bool

	// errorsModTime batches non-fatal modification-time failures for a
	// single warning after sync; appended under the core mutex.
	errorsModTime *[]error

	delHandler  [2]*DeletionHandler
	threadCount int
}

// runPairSync executes the three passes over one base pair:
//
//	pass 0: prepare file moves (resolve conflicts, set up two-step moves)
//	pass 1: delete files, and overwrite big files with smaller ones
//	pass 2: copy the rest
func runPairSync(ctx context.Context, sctx *syncPairContext, base *tree.BaseFolderPair, cb ProgressReporter) error {
	for _, pass := range []passNo{passZero, passOne, passTwo} {
		if err := runPass(ctx, pass, sctx, base, cb); err != nil {
			return err
		}
	}
	return nil
}

// runPass spawns the workers of one pass and serves their requests until all
// buckets drained. Workers always exit through interruption: once the
// coordinator signals all-done (or the reporter aborts), the pass tears them
// down and joins.
func runPass(ctx context.Context, pass passNo, sctx *syncPairContext, base *tree.BaseFolderPair, cb ProgressReporter) error {
	threadCount := max(sctx.threadCount, 1)

	lock := &coreLock{}
	coord := newCoordinator(threadCount)
	wl := newWorkload(pass, base, threadCount, coord)

	var workers errgroup.Group
	for threadIdx := 0; threadIdx < threadCount; threadIdx++ {
		fps := &folderPairSyncer{
			ctx:       ctx,
			sctx:      sctx,
			workload:  wl,
			lock:      lock,
			threadIdx: threadIdx,
			coord:     coord,
		}
		workers.Go(fps.run)
	}

	mainErr := coord.waitUntilDone(ctx, uiPollInterval, cb)

	coord.interrupt()
	wl.interrupt()
	workerErr := workers.Wait()

	if mainErr != nil {
		return mainErr
	}
	if workerErr != nil && !isInterruption(workerErr) {
		return workerErr
	}
	return nil
}

// folderPairSyncer executes work items of one worker goroutine.
type folderPairSyncer struct {
	ctx       context.Context
	sctx      *syncPairContext
	workload  *workload
	lock      *coreLock
	threadIdx int
	coord     *coordinator
}

// status templates
const (
	txtCreatingFile       = "Creating file %s"
	txtCreatingLink       = "Creating symbolic link %s"
	txtCreatingFolder     = "Creating folder %s"
	txtUpdatingFile       = "Updating file %s"
	txtUpdatingLink       = "Updating symbolic link %s"
	txtVerifyingFile      = "Verifying file %s"
	txtUpdatingAttributes = "Updating attributes of %s"
	txtMovingFileXtoY     = "Moving file %s to %s"
	txtSourceItemNotFound = "Source item %s not found"
)

func (fps *folderPairSyncer) run() error {
	fps.coord.notifyWorkBegin(fps.threadIdx)
	defer fps.coord.notifyWorkEnd(fps.threadIdx)

	for {
		item, err := fps.workload.getNext(fps.threadIdx)
		if err != nil {
			return err
		}
		// the core mutex protects the tree and all syncer state during the
		// whole work item; it is released only around filesystem calls
		fps.lock.lock()
		err = item(fps)
		fps.lock.unlock()
		if err != nil {
			return err
		}
	}
}

func (fps *folderPairSyncer) reportInfo(template, displayPath string) error {
	return fps.coord.reportInfo(fmt.Sprintf(template, displayPath), fps.threadIdx)
}

func (fps *folderPairSyncer) reportInfo2(template, displayPath1, displayPath2 string) error {
	return fps.coord.reportInfo(fmt.Sprintf(template, displayPath1, displayPath2), fps.threadIdx)
}

func (fps *folderPairSyncer) delHandlerFor(side tree.Side) *DeletionHandler {
	return fps.sctx.delHandler[side]
}

//---------------------------------------------------------------------------
// pass assignment
//
// pass 1/2 requirements: avoid disk space shortage (delete first, then
// overwrite big with small), and support type changes (delete symlink in
// pass 1, create equally named file in pass 2).

func getFilePass(f *tree.FilePair) passNo {
	switch f.SyncOp() {
	case tree.OpDeleteLeft, tree.OpDeleteRight:
		return passOne
	case tree.OpOverwriteLeft:
		if f.SizeOn(tree.Left) > f.SizeOn(tree.Right) {
			return passOne
		}
		return passTwo
	case tree.OpOverwriteRight:
		if f.SizeOn(tree.Right) > f.SizeOn(tree.Left) {
			return passOne
		}
		return passTwo
	case tree.OpMoveLeftFrom, tree.OpMoveRightFrom:
		return passNever // the move target side executes the move
	case tree.OpMoveLeftTo, tree.OpMoveRightTo:
		// after the target's parent folder was created
		return passTwo
	case tree.OpCreateLeft, tree.OpCreateRight, tree.OpCopyMetadataLeft, tree.OpCopyMetadataRight:
		return passTwo
	case tree.OpDoNothing, tree.OpEqual, tree.OpUnresolvedConflict:
		return passNever
	}
	return passNever
}

func getLinkPass(l *tree.SymlinkPair) passNo {
	switch l.SyncOp() {
	case tree.OpDeleteLeft, tree.OpDeleteRight:
		return passOne
	case tree.OpOverwriteLeft, tree.OpOverwriteRight,
		tree.OpCreateLeft, tree.OpCreateRight,
		tree.OpCopyMetadataLeft, tree.OpCopyMetadataRight:
		return passTwo
	case tree.OpMoveLeftFrom, tree.OpMoveRightFrom, tree.OpMoveLeftTo, tree.OpMoveRightTo,
		tree.OpDoNothing, tree.OpEqual, tree.OpUnresolvedConflict:
		return passNever
	}
	return passNever
}

func getFolderPass(d *tree.FolderPair) passNo {
	switch d.SyncOp() {
	case tree.OpDeleteLeft, tree.OpDeleteRight:
		return passOne
	case tree.OpCreateLeft, tree.OpCreateRight,
		tree.OpOverwriteLeft, tree.OpOverwriteRight,
		tree.OpCopyMetadataLeft, tree.OpCopyMetadataRight:
		return passTwo
	case tree.OpMoveLeftFrom, tree.OpMoveRightFrom, tree.OpMoveLeftTo, tree.OpMoveRightTo,
		tree.OpDoNothing, tree.OpEqual, tree.OpUnresolvedConflict:
		return passNever
	}
	return passNever
}

//---------------------------------------------------------------------------
// file synchronization

func (fps *folderPairSyncer) synchronizeFile(file *tree.FilePair) error {
	op := file.SyncOp()
	if trg, ok := op.TargetSide(); ok {
		return fps.synchronizeFileTo(file, op, trg)
	}
	return nil
}

func (fps *folderPairSyncer) synchronizeFileTo(file *tree.FilePair, op tree.SyncOp, trg tree.Side) error {
	src := trg.Other()
	delHandlerTrg := fps.delHandlerFor(trg)

	switch op {
	case tree.OpCreateLeft, tree.OpCreateRight:
		if parent := file.ParentFolder(); parent != nil && parent.IsEmptyOn(trg) {
			// parent folder creation failed; no reason to pile up errors
			return nil
		}
		targetPath := file.PathOn(trg)
		if err := fps.reportInfo(txtCreatingFile, targetPath.Display()); err != nil {
			return err
		}
		return fps.withStats(1, file.SizeOn(src), func(sr *statReporter) error {
			result, copyErr := fps.copyFileWithCallback(
				FileDescriptor{Path: file.PathOn(src), Attrs: file.StreamAttrsOn(src)},
				targetPath, nil, sr)
			if copyErr != nil {
				if isInterruption(copyErr) {
					return copyErr
				}
				sourceWasDeleted := false
				// the copy error stays the relevant one if probing fails too
				_ = fps.lock.parallel(func() error {
					_, exists, err := file.PathOn(src).FS.ItemTypeIfExists(fps.ctx, file.PathOn(src).Item)
					sourceWasDeleted = err == nil && !exists
					return err
				})
				if !sourceWasDeleted {
					return copyErr
				}
				// source vanished since comparison: significant I/O work was
				// still done, and logically there was nothing to copy
				if err := sr.reportDelta(1, 0); err != nil {
					return err
				}
				if err := fps.reportInfo(txtSourceItemNotFound, file.PathOn(src).Display()); err != nil {
					return err
				}
				file.RemoveOn(src)
				return nil
			}
			if result.ErrModTime != nil {
				*fps.sctx.errorsModTime = append(*fps.sctx.errorsModTime, result.ErrModTime)
			}
			if err := sr.reportDelta(1, 0); err != nil {
				return err
			}
			file.SetSyncedTo(trg, file.NameOn(src), result.Size,
				result.DstModTime, result.SrcModTime,
				result.DstFileID, result.SrcFileID,
				false, file.FollowedSymlinkOn(src))
			return nil
		})

	case tree.OpDeleteLeft, tree.OpDeleteRight:
		if err := fps.reportInfo(delHandlerTrg.TxtRemovingFile(), file.PathOn(trg).Display()); err != nil {
			return err
		}
		return fps.withStats(1, 0, func(sr *statReporter) error {
			desc := FileDescriptor{Path: file.PathOn(trg), Attrs: file.StreamAttrsOn(trg)}
			if err := delHandlerTrg.RemoveFile(fps.ctx, desc, file.RelPath(), sr, fps.lock); err != nil {
				return err
			}
			file.RemoveOn(trg)
			return nil
		})

	case tree.OpMoveLeftTo, tree.OpMoveRightTo:
		moveFrom, ok := file.Base().Arena().Retrieve(file.MoveRef()).(*tree.FilePair)
		if !ok {
			return nil
		}
		moveTo := file
		pathFrom := moveFrom.PathOn(trg)
		pathTo := moveTo.PathOn(trg)
		if err := fps.reportInfo2(txtMovingFileXtoY, pathFrom.Display(), pathTo.Display()); err != nil {
			return err
		}
		return fps.withStats(1, 0, func(sr *statReporter) error {
			if err := fps.lock.parallel(func() error {
				return pathFrom.FS.RenameItem(fps.ctx, pathFrom.Item, pathTo.Item)
			}); err != nil {
				return err
			}
			if err := sr.reportDelta(1, 0); err != nil {
				return err
			}
			moveTo.SetSyncedTo(trg, moveTo.NameOn(src), moveTo.SizeOn(src),
				moveFrom.AttrsOn(trg).ModTime, moveTo.AttrsOn(src).ModTime,
				moveFrom.AttrsOn(trg).FileID, moveTo.AttrsOn(src).FileID,
				moveFrom.FollowedSymlinkOn(trg), moveTo.FollowedSymlinkOn(src))
			moveFrom.RemoveOn(trg) // only after evaluating moveFrom's attributes
			return nil
		})

	case tree.OpOverwriteLeft, tree.OpOverwriteRight:
		// respect a difference in case of the source item
		targetPathLogical := file.Parent().PathOn(trg).Join(file.NameOn(src))
		targetPathResolvedOld := file.PathOn(trg)
		targetPathResolvedNew := targetPathLogical
		if file.FollowedSymlinkOn(trg) {
			// follow the link and update the resolved target rather than
			// replacing the link with a regular file
			var resolved string
			if err := fps.lock.parallel(func() error {
				var err error
				resolved, err = file.PathOn(trg).FS.SymlinkResolvedPath(fps.ctx, file.PathOn(trg).Item)
				return err
			}); err != nil {
				return err
			}
			targetPathResolvedOld = vfs.Path{FS: file.PathOn(trg).FS, Item: resolved}
			targetPathResolvedNew = targetPathResolvedOld
		}
		if err := fps.reportInfo(txtUpdatingFile, targetPathResolvedOld.Display()); err != nil {
			return err
		}
		return fps.withStats(1, file.SizeOn(src), func(sr *statReporter) error {
			if file.FollowedSymlinkOn(trg) && file.NameOn(trg) != file.NameOn(src) {
				// we operate on the resolved path, so sync the link's own
				// case difference manually
				if err := fps.lock.parallel(func() error {
					return file.PathOn(trg).FS.RenameItem(fps.ctx, file.PathOn(trg).Item, targetPathLogical.Item)
				}); err != nil {
					return err
				}
			}
			onDeleteTargetFile := func() error {
				attrs := file.StreamAttrsOn(trg)
				if err := delHandlerTrg.RemoveFile(fps.ctx,
					FileDescriptor{Path: targetPathResolvedOld, Attrs: attrs}, file.RelPath(), sr, fps.lock); err != nil {
					return err
				}
				// undo the item delta reported by RemoveFile: delete + copy
				// is ONE logical operation; only byte totals may change
				return sr.reportDelta(-1, 0)
			}
			result, err := fps.copyFileWithCallback(
				FileDescriptor{Path: file.PathOn(src), Attrs: file.StreamAttrsOn(src)},
				targetPathResolvedNew, onDeleteTargetFile, sr)
			if err != nil {
				return err
			}
			if result.ErrModTime != nil {
				*fps.sctx.errorsModTime = append(*fps.sctx.errorsModTime, result.ErrModTime)
			}
			if err := sr.reportDelta(1, 0); err != nil {
				return err
			}
			file.SetSyncedTo(trg, file.NameOn(src), result.Size,
				result.DstModTime, result.SrcModTime,
				result.DstFileID, result.SrcFileID,
				file.FollowedSymlinkOn(trg), file.FollowedSymlinkOn(src))
			return nil
		})

	case tree.OpCopyMetadataLeft, tree.OpCopyMetadataRight:
		if err := fps.reportInfo(txtUpdatingAttributes, file.PathOn(trg).Display()); err != nil {
			return err
		}
		return fps.withStats(1, 0, func(sr *statReporter) error {
			if file.NameOn(trg) != file.NameOn(src) { // difference in case?
				newPath := file.Parent().PathOn(trg).Join(file.NameOn(src))
				if err := fps.lock.parallel(func() error {
					return file.PathOn(trg).FS.RenameItem(fps.ctx, file.PathOn(trg).Item, newPath.Item)
				}); err != nil {
					return err
				}
			}
			if err := sr.reportDelta(1, 0); err != nil {
				return err
			}
			file.SetSyncedTo(trg, file.NameOn(src), file.SizeOn(src),
				file.AttrsOn(trg).ModTime, file.AttrsOn(src).ModTime,
				file.AttrsOn(trg).FileID, file.AttrsOn(src).FileID,
				file.FollowedSymlinkOn(trg), file.FollowedSymlinkOn(src))
			return nil
		})

	case tree.OpMoveLeftFrom, tree.OpMoveRightFrom,
		tree.OpDoNothing, tree.OpEqual, tree.OpUnresolvedConflict:
		// filtered out by pass assignment
		return nil
	}
	return nil
}

// withStats wraps one item's work in a scoped stat reporter; the deferred
// finish distinguishes success from failure exit.
func (fps *folderPairSyncer) withStats(itemsExpected int, bytesExpected int64, fn func(sr *statReporter) error) error {
	err := func() (err error) {
		sr := newStatReporter(itemsExpected, bytesExpected, fps.threadIdx, fps.coord)
		defer sr.finish(&err)
		return fn(sr)
	}()
	if err != nil {
		return err
	}
	return fps.coord.interruptionPoint()
}

//---------------------------------------------------------------------------
// symlink synchronization

func (fps *folderPairSyncer) synchronizeLink(link *tree.SymlinkPair) error {
	op := link.SyncOp()
	if trg, ok := op.TargetSide(); ok {
		return fps.synchronizeLinkTo(link, op, trg)
	}
	return nil
}

func (fps *folderPairSyncer) synchronizeLinkTo(link *tree.SymlinkPair, op tree.SyncOp, trg tree.Side) error {
	src := trg.Other()
	delHandlerTrg := fps.delHandlerFor(trg)

	switch op {
	case tree.OpCreateLeft, tree.OpCreateRight:
		if parent := link.ParentFolder(); parent != nil && parent.IsEmptyOn(trg) {
			return nil
		}
		targetPath := link.PathOn(trg)
		if err := fps.reportInfo(txtCreatingLink, targetPath.Display()); err != nil {
			return err
		}
		return fps.withStats(1, 0, func(sr *statReporter) error {
			srcPath := link.PathOn(src)
			copyErr := fps.lock.parallel(func() error {
				return srcPath.FS.CopySymlink(fps.ctx, srcPath.Item, targetPath, fps.sctx.copyFilePermissions)
			})
			if copyErr != nil {
				if isInterruption(copyErr) {
					return copyErr
				}
				sourceWasDeleted := false
				_ = fps.lock.parallel(func() error {
					_, exists, err := srcPath.FS.ItemTypeIfExists(fps.ctx, srcPath.Item)
					sourceWasDeleted = err == nil && !exists
					return err
				})
				if !sourceWasDeleted {
					return copyErr
				}
				if err := sr.reportDelta(1, 0); err != nil {
					return err
				}
				if err := fps.reportInfo(txtSourceItemNotFound, srcPath.Display()); err != nil {
					return err
				}
				link.RemoveOn(src)
				return nil
			}
			if err := sr.reportDelta(1, 0); err != nil {
				return err
			}
			link.SetSyncedTo(trg, link.NameOn(src), link.AttrsOn(src).ModTime, link.AttrsOn(src).ModTime)
			return nil
		})

	case tree.OpDeleteLeft, tree.OpDeleteRight:
		if err := fps.reportInfo(delHandlerTrg.TxtRemovingSymlink(), link.PathOn(trg).Display()); err != nil {
			return err
		}
		return fps.withStats(1, 0, func(sr *statReporter) error {
			if err := delHandlerTrg.RemoveSymlink(fps.ctx, link.PathOn(trg), link.RelPath(), sr, fps.lock); err != nil {
				return err
			}
			link.RemoveOn(trg)
			return nil
		})

	case tree.OpOverwriteLeft, tree.OpOverwriteRight:
		if err := fps.reportInfo(txtUpdatingLink, link.PathOn(trg).Display()); err != nil {
			return err
		}
		return fps.withStats(1, 0, func(sr *statReporter) error {
			if err := delHandlerTrg.RemoveSymlink(fps.ctx, link.PathOn(trg), link.RelPath(), sr, fps.lock); err != nil {
				return err
			}
			// delete + copy is ONE logical operation
			if err := sr.reportDelta(-1, 0); err != nil {
				return err
			}
			srcPath := link.PathOn(src)
			targetPath := link.Parent().PathOn(trg).Join(link.NameOn(src))
			if err := fps.lock.parallel(func() error {
				return srcPath.FS.CopySymlink(fps.ctx, srcPath.Item, targetPath, fps.sctx.copyFilePermissions)
			}); err != nil {
				return err
			}
			if err := sr.reportDelta(1, 0); err != nil {
				return err
			}
			link.SetSyncedTo(trg, link.NameOn(src), link.AttrsOn(src).ModTime, link.AttrsOn(src).ModTime)
			return nil
		})

	case tree.OpCopyMetadataLeft, tree.OpCopyMetadataRight:
		if err := fps.reportInfo(txtUpdatingAttributes, link.PathOn(trg).Display()); err != nil {
			return err
		}
		return fps.withStats(1, 0, func(sr *statReporter) error {
			if link.NameOn(trg) != link.NameOn(src) { // difference in case?
				newPath := link.Parent().PathOn(trg).Join(link.NameOn(src))
				if err := fps.lock.parallel(func() error {
					return link.PathOn(trg).FS.RenameItem(fps.ctx, link.PathOn(trg).Item, newPath.Item)
				}); err != nil {
					return err
				}
			}
			if err := sr.reportDelta(1, 0); err != nil {
				return err
			}
			link.SetSyncedTo(trg, link.NameOn(src), link.AttrsOn(trg).ModTime, link.AttrsOn(src).ModTime)
			return nil
		})

	case tree.OpMoveLeftFrom, tree.OpMoveRightFrom, tree.OpMoveLeftTo, tree.OpMoveRightTo,
		tree.OpDoNothing, tree.OpEqual, tree.OpUnresolvedConflict:
		return nil
	}
	return nil
}

//---------------------------------------------------------------------------
// folder synchronization

func (fps *folderPairSyncer) synchronizeFolder(folder *tree.FolderPair) error {
	op := folder.SyncOp()
	if trg, ok := op.TargetSide(); ok {
		return fps.synchronizeFolderTo(folder, op, trg)
	}
	return nil
}

func (fps *folderPairSyncer) synchronizeFolderTo(folder *tree.FolderPair, op tree.SyncOp, trg tree.Side) error {
	src := trg.Other()
	delHandlerTrg := fps.delHandlerFor(trg)

	switch op {
	case tree.OpCreateLeft, tree.OpCreateRight:
		if parent := folder.ParentFolder(); parent != nil && parent.IsEmptyOn(trg) {
			return nil
		}
		targetPath := folder.PathOn(trg)
		if err := fps.reportInfo(txtCreatingFolder, targetPath.Display()); err != nil {
			return err
		}

		// shallow-creating a folder may not fail for a missing source, so
		// probe existence first
		srcPath := folder.PathOn(src)
		sourceExists := false
		if err := fps.lock.parallel(func() error {
			_, exists, err := srcPath.FS.ItemTypeIfExists(fps.ctx, srcPath.Item)
			sourceExists = exists
			return err
		}); err != nil {
			return err
		}

		if sourceExists {
			return fps.withStats(1, 0, func(sr *statReporter) error {
				copyErr := fps.lock.parallel(func() error {
					return srcPath.FS.CopyNewFolder(fps.ctx, srcPath.Item, targetPath, fps.sctx.copyFilePermissions)
				})
				if copyErr != nil {
					if isInterruption(copyErr) {
						return copyErr
					}
					folderAlreadyExists := false
					_ = fps.lock.parallel(func() error {
						t, err := targetPath.FS.ItemType(fps.ctx, targetPath.Item)
						folderAlreadyExists = err == nil && t == vfs.ItemFolder
						return err
					})
					if !folderAlreadyExists {
						return copyErr
					}
				}
				if err := sr.reportDelta(1, 0); err != nil {
					return err
				}
				folder.SetSyncedTo(trg, folder.NameOn(src), false, folder.FollowedSymlinkOn(src))
				return nil
			})
		}

		// source deleted meanwhile: account the whole subtree as done
		subStats := ContainerStatistics(folder)
		return fps.withStats(1+subStats.CUD(), subStats.BytesToProcess(), func(sr *statReporter) error {
			if err := sr.reportDelta(1, 0); err != nil {
				return err
			}
			if err := fps.reportInfo(txtSourceItemNotFound, srcPath.Display()); err != nil {
				return err
			}
			folder.ClearChildren()
			folder.RemoveOn(src)
			return nil
		})

	case tree.OpDeleteLeft, tree.OpDeleteRight:
		if err := fps.reportInfo(delHandlerTrg.TxtRemovingFolder(), folder.PathOn(trg).Display()); err != nil {
			return err
		}
		subStats := ContainerStatistics(folder) // sub-objects only
		return fps.withStats(1+subStats.CUD(), subStats.BytesToProcess(), func(sr *statReporter) error {
			if err := delHandlerTrg.RemoveFolder(fps.ctx, folder.PathOn(trg), folder.RelPath(), sr, fps.lock); err != nil {
				return err
			}
			folder.ClearChildren()
			folder.RemoveOn(trg)
			return nil
		})

	case tree.OpOverwriteLeft, tree.OpOverwriteRight, // e.g. a manually resolved dir-traversal conflict
		tree.OpCopyMetadataLeft, tree.OpCopyMetadataRight:
		if err := fps.reportInfo(txtUpdatingAttributes, folder.PathOn(trg).Display()); err != nil {
			return err
		}
		return fps.withStats(1, 0, func(sr *statReporter) error {
			if folder.NameOn(trg) != folder.NameOn(src) { // difference in case?
				newPath := folder.Parent().PathOn(trg).Join(folder.NameOn(src))
				if err := fps.lock.parallel(func() error {
					return folder.PathOn(trg).FS.RenameItem(fps.ctx, folder.PathOn(trg).Item, newPath.Item)
				}); err != nil {
					return err
				}
			}
			if err := sr.reportDelta(1, 0); err != nil {
				return err
			}
			folder.SetSyncedTo(trg, folder.NameOn(src), folder.FollowedSymlinkOn(trg), folder.FollowedSymlinkOn(src))
			return nil
		})

	case tree.OpMoveLeftFrom, tree.OpMoveRightFrom, tree.OpMoveLeftTo, tree.OpMoveRightTo,
		tree.OpDoNothing, tree.OpEqual, tree.OpUnresolvedConflict:
		return nil
	}
	return nil
}

//---------------------------------------------------------------------------
// copy with verification

// copyFileWithCallback wraps the transactional copy: onDeleteTargetFile runs
// at the commit point with the core mutex re-acquired, byte progress flows
// into the stat reporter, and - when enabled - the target is re-read and
// compared with the source afterwards. On verification failure the target is
// deleted (best effort) before the error surfaces.
func (fps *folderPairSyncer) copyFileWithCallback(source FileDescriptor, targetPath vfs.Path,
	onDeleteTargetFile func() error, sr *statReporter) (vfs.CopyResult, error) {

	var onDeleteTarget func() error
	if onDeleteTargetFile != nil {
		onDeleteTarget = func() error {
			// the copy engine invokes this outside the core mutex, but the
			// deletion callback expects it held
			fps.lock.lock()
			defer fps.lock.unlock()
			return onDeleteTargetFile()
		}
	}

	var result vfs.CopyResult
	if err := fps.lock.parallel(func() error {
		var err error
		result, err = source.Path.FS.CopyFileTransactional(fps.ctx, source.Path.Item, source.Attrs,
			targetPath, fps.sctx.copyFilePermissions, fps.sctx.failSafeFileCopy, onDeleteTarget,
			func(bytesDelta int64) error { return sr.reportDelta(0, bytesDelta) })
		return err
	}); err != nil {
		return result, err
	}

	if fps.sctx.verifyCopiedFiles {
		if err := fps.reportInfo(txtVerifyingFile, targetPath.Display()); err != nil {
			return result, err
		}
		// verification reads are not copies: the progress callback is an
		// interruption point only
		if err := fps.lock.parallel(func() error {
			return vfs.VerifyFiles(fps.ctx, source.Path, targetPath,
				func(int64) error { return fps.coord.interruptionPoint() })
		}); err != nil {
			_ = fps.lock.parallel(func() error {
				return targetPath.FS.RemoveFilePlain(fps.ctx, targetPath.Item)
			})
			return result, err
		}
	}
	return result, nil
}
