package engine

import "github.com/foldsync/foldsync/internal/tree"

// ConflictInfo is one unresolved conflict surfaced by the statistics pass.
type ConflictInfo struct {
	RelPath string
	Message string
}

// SyncStatistics tallies the logical work a (sub-)tree represents: per-side
// create/update/delete counts, pending byte volume and conflicts. Stats are
// logical: folder rows recurse unconditionally even when the deletion policy
// collapses a subtree into a single physical move.
type SyncStatistics struct {
	create    [2]int
	update    [2]int
	delete    [2]int
	rowsTotal int
	bytes     int64

	physicalDelete [2]bool
	conflicts      []ConflictInfo
}

// Statistics walks one or more base pairs.
func Statistics(pairs ...*tree.BaseFolderPair) *SyncStatistics {
	s := &SyncStatistics{}
	for _, base := range pairs {
		s.recurse(base)
	}
	return s
}

// ContainerStatistics walks one container's sub-entries.
func ContainerStatistics(c tree.Container) *SyncStatistics {
	s := &SyncStatistics{}
	s.recurse(c)
	return s
}

// FileStatistics prices a single file row.
func FileStatistics(f *tree.FilePair) *SyncStatistics {
	s := &SyncStatistics{}
	s.processFile(f)
	s.rowsTotal++
	return s
}

func (s *SyncStatistics) recurse(c tree.Container) {
	for _, f := range c.SubFiles() {
		s.processFile(f)
	}
	for _, l := range c.SubLinks() {
		s.processLink(l)
	}
	for _, d := range c.SubFolders() {
		s.processFolder(d)
	}
	s.rowsTotal += len(c.SubFolders()) + len(c.SubFiles()) + len(c.SubLinks())
}

func (s *SyncStatistics) processFile(f *tree.FilePair) {
	switch f.SyncOp() {
	case tree.OpCreateLeft:
		s.create[tree.Left]++
		s.bytes += f.SizeOn(tree.Right) // source side predicts the traffic
	case tree.OpCreateRight:
		s.create[tree.Right]++
		s.bytes += f.SizeOn(tree.Left)
	case tree.OpDeleteLeft:
		s.delete[tree.Left]++
		s.physicalDelete[tree.Left] = true
	case tree.OpDeleteRight:
		s.delete[tree.Right]++
		s.physicalDelete[tree.Right] = true
	case tree.OpMoveLeftTo:
		s.update[tree.Left]++
	case tree.OpMoveRightTo:
		s.update[tree.Right]++
	case tree.OpMoveLeftFrom, tree.OpMoveRightFrom:
		// already counted on the move target
	case tree.OpOverwriteLeft:
		s.update[tree.Left]++
		s.bytes += f.SizeOn(tree.Right)
		s.physicalDelete[tree.Left] = true
	case tree.OpOverwriteRight:
		s.update[tree.Right]++
		s.bytes += f.SizeOn(tree.Left)
		s.physicalDelete[tree.Right] = true
	case tree.OpCopyMetadataLeft:
		s.update[tree.Left]++
	case tree.OpCopyMetadataRight:
		s.update[tree.Right]++
	case tree.OpUnresolvedConflict:
		s.conflicts = append(s.conflicts, ConflictInfo{RelPath: f.RelPath(), Message: f.ConflictMessage()})
	case tree.OpDoNothing, tree.OpEqual:
	}
}

func (s *SyncStatistics) processLink(l *tree.SymlinkPair) {
	switch l.SyncOp() {
	case tree.OpCreateLeft:
		s.create[tree.Left]++
	case tree.OpCreateRight:
		s.create[tree.Right]++
	case tree.OpDeleteLeft:
		s.delete[tree.Left]++
		s.physicalDelete[tree.Left] = true
	case tree.OpDeleteRight:
		s.delete[tree.Right]++
		s.physicalDelete[tree.Right] = true
	case tree.OpOverwriteLeft, tree.OpCopyMetadataLeft:
		s.update[tree.Left]++
		s.physicalDelete[tree.Left] = true
	case tree.OpOverwriteRight, tree.OpCopyMetadataRight:
		s.update[tree.Right]++
		s.physicalDelete[tree.Right] = true
	case tree.OpUnresolvedConflict:
		s.conflicts = append(s.conflicts, ConflictInfo{RelPath: l.RelPath(), Message: l.ConflictMessage()})
	case tree.OpMoveLeftFrom, tree.OpMoveRightFrom, tree.OpMoveLeftTo, tree.OpMoveRightTo:
		// move operations do not exist on symlinks
	case tree.OpDoNothing, tree.OpEqual:
	}
}

func (s *SyncStatistics) processFolder(d *tree.FolderPair) {
	switch d.SyncOp() {
	case tree.OpCreateLeft:
		s.create[tree.Left]++
	case tree.OpCreateRight:
		s.create[tree.Right]++
	case tree.OpDeleteLeft:
		s.delete[tree.Left]++
		s.physicalDelete[tree.Left] = true
	case tree.OpDeleteRight:
		s.delete[tree.Right]++
		s.physicalDelete[tree.Right] = true
	case tree.OpUnresolvedConflict:
		s.conflicts = append(s.conflicts, ConflictInfo{RelPath: d.RelPath(), Message: d.ConflictMessage()})
	case tree.OpOverwriteLeft, tree.OpCopyMetadataLeft:
		s.update[tree.Left]++
	case tree.OpOverwriteRight, tree.OpCopyMetadataRight:
		s.update[tree.Right]++
	case tree.OpMoveLeftFrom, tree.OpMoveRightFrom, tree.OpMoveLeftTo, tree.OpMoveRightTo:
		// move operations do not exist on folders
	case tree.OpDoNothing, tree.OpEqual:
	}

	s.recurse(d)
}

func (s *SyncStatistics) CreateCount(side tree.Side) int { return s.create[side] }
func (s *SyncStatistics) UpdateCount(side tree.Side) int { return s.update[side] }
func (s *SyncStatistics) DeleteCount(side tree.Side) int { return s.delete[side] }

func (s *SyncStatistics) CreateTotal() int { return s.create[tree.Left] + s.create[tree.Right] }
func (s *SyncStatistics) UpdateTotal() int { return s.update[tree.Left] + s.update[tree.Right] }
func (s *SyncStatistics) DeleteTotal() int { return s.delete[tree.Left] + s.delete[tree.Right] }

// CUD is the number of rows the sync will actually touch.
func (s *SyncStatistics) CUD() int {
	return s.CreateTotal() + s.UpdateTotal() + s.DeleteTotal()
}

func (s *SyncStatistics) RowCount() int           { return s.rowsTotal }
func (s *SyncStatistics) BytesToProcess() int64   { return s.bytes }
func (s *SyncStatistics) ConflictCount() int      { return len(s.conflicts) }
func (s *SyncStatistics) Conflicts() []ConflictInfo { return s.conflicts }

// ExpectPhysicalDeletion reports whether any row physically removes data on
// the side, which is what makes trash availability relevant.
func (s *SyncStatistics) ExpectPhysicalDeletion(side tree.Side) bool {
	return s.physicalDelete[side]
}

// significantDifferenceDetected guards against accidentally syncing the wrong
// folders: at least 10 rows and more than half of all rows mismatched.
// Initial copies (one side empty of creates, nothing else pending) are exempt.
func significantDifferenceDetected(s *SyncStatistics) bool {
	if (s.create[tree.Left] == 0 || s.create[tree.Right] == 0) &&
		s.UpdateTotal() == 0 && s.DeleteTotal() == 0 && s.ConflictCount() == 0 {
		return false
	}
	nonMatchingRows := s.CreateTotal() + s.DeleteTotal()
	return nonMatchingRows >= 10 && float64(nonMatchingRows) > 0.5*float64(s.RowCount())
}
