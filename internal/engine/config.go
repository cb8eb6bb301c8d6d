package engine

import (
	"context"
	"errors"

	"github.com/foldsync/foldsync/internal/tree"
	"github.com/foldsync/foldsync/internal/versioning"
	"github.com/foldsync/foldsync/internal/vfs"
)

// SyncVariant names the direction ruleset that produced the operations; the
// engine only logs it.
type SyncVariant uint8

const (
	VariantTwoWay SyncVariant = iota
	VariantMirror
	VariantUpdate
	VariantCustom
)

var syncVariantNames = []string{"<Two way>", "Mirror", "Update", "Custom"}

func (v SyncVariant) String() string { return syncVariantNames[v] }

// PairConfig is the per-base-pair synchronization configuration.
type PairConfig struct {
	DetectMovedFiles bool
	HandleDeletion   DeletionPolicy
	VersioningStyle  versioning.Style
	// VersioningFolder is the resolved versioning folder expression; it is
	// used only when HandleDeletion is DeleteVersioning, and must be non-null
	// then.
	VersioningFolder vfs.Path
	SyncVariant      SyncVariant
	SaveSyncDB       bool
}

func (c *PairConfig) Validate() error {
	if c.HandleDeletion == DeleteVersioning && c.VersioningFolder.IsNull() {
		return errors.New("versioning folder must be configured for the versioning deletion policy")
	}
	return nil
}

// Options are the run-wide synchronization settings.
type Options struct {
	VerifyCopiedFiles   bool
	CopyFilePermissions bool
	FailSafeFileCopy    bool

	// DeviceParallelOps maps a device key (vfs.FS.DeviceKey) to the number
	// of parallel operations allowed on it; absent devices get 1.
	DeviceParallelOps map[string]int

	// DB persists the last-known-good state for pairs with SaveSyncDB set;
	// nil disables saving.
	DB SyncDB
}

func (o *Options) parallelOpsFor(p vfs.Path) int {
	if p.IsNull() {
		return 1
	}
	if n, ok := o.DeviceParallelOps[p.FS.DeviceKey(p.Item)]; ok && n > 1 {
		return n
	}
	return 1
}

// SyncDB records the last synchronous state of a base pair so the next
// comparison can derive sync directions.
type SyncDB interface {
	SaveLastSyncState(ctx context.Context, base *tree.BaseFolderPair, onStatus func(msg string) error) error
}

// Warnings holds the "don't show this again" flags for the dismissible
// warning dialogs; the front-end persists them between runs.
type Warnings struct {
	UnresolvedConflicts   bool
	SignificantDifference bool
	NotEnoughDiskSpace    bool
	TrashMissing          bool
	DependentFolders      bool
	VersioningInsideBase  bool
	ModTimeErrors         bool
}
