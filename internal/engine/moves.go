package engine

import (
	"strings"

	"github.com/google/uuid"

	"github.com/foldsync/foldsync/internal/tree"
	"github.com/foldsync/foldsync/internal/vfs"
)

/*
Move preparation, pass 0:

 1. find each "move source"
 2. if its parent folder is going to be deleted, or its location name-clashes
    with a sibling folder or symlink, the move cannot wait: create the move
    target's parent directory chain and execute the move now (appearing as the
    MoveTo side) - falling back to a two-step move over an interim name when
    the target location clashes as well
 3. otherwise delay the move to pass 2
 4. when nothing succeeded (even after retries), break the move pairing,
    fix up the statistics and let the later passes handle the pair as
    ordinary delete + create

Killer scenarios this covers:

	I)   a -> a/a     syncing the parent directory first is a cycle
	II)  a/a -> a     fixing the name clash would remove the source
	III) c -> d       move chains must execute in the right order
	     b -> c/b
	     a -> b/a
*/

func equalItemName(a, b string) bool { return strings.EqualFold(a, b) }

func clashesWithFolderOrLink(name string, parent tree.Container) bool {
	for _, l := range parent.SubLinks() {
		if equalItemName(l.PairName(), name) {
			return true
		}
	}
	for _, d := range parent.SubFolders() {
		if equalItemName(d.PairName(), name) {
			return true
		}
	}
	return false
}

func clashesWithFileOrLink(name string, parent tree.Container) bool {
	for _, l := range parent.SubLinks() {
		if equalItemName(l.PairName(), name) {
			return true
		}
	}
	for _, f := range parent.SubFiles() {
		if equalItemName(f.PairName(), name) {
			return true
		}
	}
	return false
}

func moveFromOp(side tree.Side) tree.SyncOp {
	if side == tree.Left {
		return tree.OpMoveLeftFrom
	}
	return tree.OpMoveRightFrom
}

// prepareFileMove is the pass-0 work item for every file row; only move
// sources carry work.
func (fps *folderPairSyncer) prepareFileMove(file *tree.FilePair) error {
	switch file.SyncOp() {
	case tree.OpMoveLeftFrom, tree.OpMoveRightFrom:
		targetObj, ok := file.Base().Arena().Retrieve(file.MoveRef()).(*tree.FilePair)
		if !ok {
			return nil
		}
		sourceObj := file
		side := tree.Left
		if file.SyncOp() == tree.OpMoveRightFrom {
			side = tree.Right
		}

		ignoredMsg, err := fps.coord.tryReporting(fps.threadIdx, func() error {
			return fps.resolveMoveConflicts(sourceObj, targetObj, side)
		})
		if err != nil {
			return err
		}
		if ignoredMsg != "" {
			// the move failed for good; we cannot let pass 1 delete the move
			// source's parent with the pairing still in place, so revert to
			// ordinary copy + delete and re-price the statistics
			beforeItems, beforeBytes := movePairCost(sourceObj, targetObj)
			sourceObj.ClearMoveRef()
			targetObj.ClearMoveRef()
			afterItems, afterBytes := movePairCost(sourceObj, targetObj)
			fps.coord.updateTotal(afterItems-beforeItems, afterBytes-beforeBytes)
		}
		return nil

	case tree.OpMoveLeftTo, tree.OpMoveRightTo, // trying each move pair once is enough
		tree.OpCreateLeft, tree.OpCreateRight,
		tree.OpDeleteLeft, tree.OpDeleteRight,
		tree.OpOverwriteLeft, tree.OpOverwriteRight,
		tree.OpCopyMetadataLeft, tree.OpCopyMetadataRight,
		tree.OpDoNothing, tree.OpEqual, tree.OpUnresolvedConflict:
		return nil
	}
	return nil
}

func movePairCost(source, target *tree.FilePair) (items int, bytes int64) {
	statSrc := FileStatistics(source)
	statTrg := FileStatistics(target)
	return statSrc.CUD() + statTrg.CUD(), statSrc.BytesToProcess() + statTrg.BytesToProcess()
}

// resolveMoveConflicts decides whether a move pair can wait for pass 2 or
// must execute (or degrade) right now.
func (fps *folderPairSyncer) resolveMoveConflicts(sourceFile, targetFile *tree.FilePair, side tree.Side) error {
	sourceWillBeDeleted := false
	if parent := sourceFile.ParentFolder(); parent != nil {
		switch parent.SyncOp() {
		case tree.OpDeleteLeft, tree.OpDeleteRight:
			sourceWillBeDeleted = true
		case tree.OpMoveLeftFrom, tree.OpMoveRightFrom, tree.OpMoveLeftTo, tree.OpMoveRightTo,
			tree.OpOverwriteLeft, tree.OpOverwriteRight,
			tree.OpCreateLeft, tree.OpCreateRight,
			tree.OpDoNothing, tree.OpEqual, tree.OpUnresolvedConflict,
			tree.OpCopyMetadataLeft, tree.OpCopyMetadataRight:
		}
	}

	haveNameClash := func(f *tree.FilePair) bool {
		parent := f.Parent()
		return parent != nil && clashesWithFolderOrLink(f.PairName(), parent)
	}

	if sourceWillBeDeleted || haveNameClash(sourceFile) {
		// prepare the move now; revert to a two-step move on name clashes
		parentOK, err := fps.ensureParentFolder(targetFile.ParentFolder())
		if err != nil {
			return err
		}
		if haveNameClash(targetFile) || !parentOK {
			return fps.setup2StepMove(sourceFile, targetFile, side)
		}

		// this should work now; the move executes from the target side, as
		// synchronizeFile does not process MoveFrom tags
		return fps.synchronizeFile(targetFile)
	}
	// the source is neither deleted nor in the way: delay to pass 2
	// (this may include new move sources created by the two-step subroutine)
	return nil
}

// ensureParentFolder recursively creates the chain of not-yet-created
// ancestor folders. It reports false when a folder name clashes with a
// sibling file or symlink at any level.
func (fps *folderPairSyncer) ensureParentFolder(folder *tree.FolderPair) (bool, error) {
	if folder == nil {
		return true, nil
	}
	if ok, err := fps.ensureParentFolder(folder.ParentFolder()); !ok || err != nil {
		return ok, err
	}
	if parent := folder.Parent(); parent != nil && clashesWithFileOrLink(folder.PairName(), parent) {
		return false, nil
	}
	// the folder cannot be scheduled for deletion here: it contains a move
	// target
	if err := fps.synchronizeFolder(folder); err != nil {
		return false, err
	}
	return true, nil
}

// setup2StepMove renames the source to a collision-resistant interim name in
// the base folder and re-links the move pair through a fresh interim entry;
// pass 2 then moves interim -> final.
func (fps *folderPairSyncer) setup2StepMove(sourceObj, targetObj *tree.FilePair, side tree.Side) error {
	// hopefully unique, to avoid clashing with some remnant temp file
	shortGUID := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	fileName := sourceObj.NameOn(side)
	stem := fileName
	if i := strings.LastIndex(fileName, "."); i >= 0 { // gracefully handle a missing "."
		stem = fileName[:i]
	}
	sourceRelPathTmp := stem + "." + shortGUID + vfs.TempFileSuffix

	// this can still clash if some file with the very same temp name is
	// copied from the other side before the second step executes; even then
	// only that copy is prevented, never this move

	base := sourceObj.Base()
	sourcePathTmp := base.PathOn(side).Join(sourceRelPathTmp)

	if err := fps.reportInfo2(txtMovingFileXtoY,
		sourceObj.PathOn(side).Display(), sourcePathTmp.Display()); err != nil {
		return err
	}

	if err := fps.lock.parallel(func() error {
		return sourcePathTmp.FS.RenameItem(fps.ctx, sourceObj.PathOn(side).Item, sourcePathTmp.Item)
	}); err != nil {
		return err
	}

	// update the hierarchy: the interim entry lives at the base folder root
	// and inherits the move pairing; it is not revisited within pass 0
	tempFile := tree.AddFileOn(base, side, sourceRelPathTmp, sourceObj.AttrsOn(side), moveFromOp(side))
	sourceObj.RemoveOn(side) // only after evaluating "sourceObj, side"

	targetObj.SetMoveRef(tempFile.ID())
	tempFile.SetMoveRef(targetObj.ID())

	// no statistics update
	return fps.coord.interruptionPoint()
}
