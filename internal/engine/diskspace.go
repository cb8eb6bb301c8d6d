package engine

import "github.com/foldsync/foldsync/internal/tree"

// EstimateSpaceDelta projects the net byte delta one base pair needs per
// side. Additions come from creates and the new (source-side) size of
// overwrites; reductions from deletes and the replaced target size of
// overwrites. Folders and symlinks
// contribute nothing. The result is advisory: deletion may not free space
// immediately (trash, versioning on the same volume), and followed symlinks
// may live on other volumes.
func EstimateSpaceDelta(base *tree.BaseFolderPair) (left, right int64) {
	var e spaceEstimator
	e.recurse(base)
	return e.needed[tree.Left], e.needed[tree.Right]
}

type spaceEstimator struct {
	needed [2]int64
}

func (e *spaceEstimator) recurse(c tree.Container) {
	for _, f := range c.SubFiles() {
		switch f.SyncOp() {
		case tree.OpCreateLeft:
			e.needed[tree.Left] += f.SizeOn(tree.Right)
		case tree.OpCreateRight:
			e.needed[tree.Right] += f.SizeOn(tree.Left)
		case tree.OpDeleteLeft:
			e.needed[tree.Left] -= f.SizeOn(tree.Left)
		case tree.OpDeleteRight:
			e.needed[tree.Right] -= f.SizeOn(tree.Right)
		case tree.OpOverwriteLeft:
			e.needed[tree.Left] += f.SizeOn(tree.Right) - f.SizeOn(tree.Left)
		case tree.OpOverwriteRight:
			e.needed[tree.Right] += f.SizeOn(tree.Left) - f.SizeOn(tree.Right)
		case tree.OpDoNothing, tree.OpEqual, tree.OpUnresolvedConflict,
			tree.OpCopyMetadataLeft, tree.OpCopyMetadataRight,
			tree.OpMoveLeftFrom, tree.OpMoveRightFrom, tree.OpMoveLeftTo, tree.OpMoveRightTo:
		}
	}

	// symlinks contribute nothing

	for _, d := range c.SubFolders() {
		e.recurse(d)
	}
}
