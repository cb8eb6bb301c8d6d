package tree

// SyncOp is the per-item operation tag assigned by the comparison engine.
// The fifteen tags form a closed set; every switch over SyncOp in the engine
// enumerates all of them.
type SyncOp uint8

const (
	OpCreateLeft SyncOp = iota
	OpCreateRight
	OpDeleteLeft
	OpDeleteRight
	OpOverwriteLeft
	OpOverwriteRight
	OpCopyMetadataLeft
	OpCopyMetadataRight
	OpMoveLeftFrom
	OpMoveLeftTo
	OpMoveRightFrom
	OpMoveRightTo
	OpDoNothing
	OpEqual
	OpUnresolvedConflict
)

var syncOpNames = []string{
	"CreateLeft",
	"CreateRight",
	"DeleteLeft",
	"DeleteRight",
	"OverwriteLeft",
	"OverwriteRight",
	"CopyMetadataLeft",
	"CopyMetadataRight",
	"MoveLeftFrom",
	"MoveLeftTo",
	"MoveRightFrom",
	"MoveRightTo",
	"DoNothing",
	"Equal",
	"UnresolvedConflict",
}

func (op SyncOp) String() string { return syncOpNames[op] }

// TargetSide reports which side the operation modifies. ok is false for
// OpDoNothing, OpEqual and OpUnresolvedConflict.
func (op SyncOp) TargetSide() (side Side, ok bool) {
	switch op {
	case OpCreateLeft, OpDeleteLeft, OpOverwriteLeft, OpCopyMetadataLeft, OpMoveLeftFrom, OpMoveLeftTo:
		return Left, true
	case OpCreateRight, OpDeleteRight, OpOverwriteRight, OpCopyMetadataRight, OpMoveRightFrom, OpMoveRightTo:
		return Right, true
	case OpDoNothing, OpEqual, OpUnresolvedConflict:
		return 0, false
	}
	return 0, false
}
