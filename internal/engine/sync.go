package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/foldsync/foldsync/internal/tree"
	"github.com/foldsync/foldsync/internal/vfs"
)

type pairJobType uint8

const (
	jobProcess pairJobType = iota
	jobAlreadyInSync
	jobSkip
)

// tryReportingMain is the main-goroutine flavor of the retry prompt loop,
// used by pre-flight checks and cleanup.
func tryReportingMain(cb ProgressReporter, fn func() error) (ignoredMsg string, err error) {
	for retryNumber := 0; ; retryNumber++ {
		err := fn()
		if err == nil {
			return "", nil
		}
		if isInterruption(err) {
			return "", err
		}
		resp, promptErr := cb.ReportError(err.Error(), retryNumber)
		if promptErr != nil {
			return "", promptErr
		}
		if resp == ResponseIgnore {
			return err.Error(), nil
		}
	}
}

// baseFolderDropped re-checks one side's base folder; a long time may have
// passed since comparison. Returns true when the pair must be skipped.
func baseFolderDropped(ctx context.Context, base *tree.BaseFolderPair, side tree.Side, cb ProgressReporter) (bool, error) {
	folderPath := base.PathOn(side)
	if folderPath.IsNull() || !base.AvailableOn(side) {
		return false, nil
	}
	ignoredMsg, err := tryReportingMain(cb, func() error {
		t, exists, err := folderPath.FS.ItemTypeIfExists(ctx, folderPath.Item)
		if err != nil {
			return err
		}
		if !exists || t != vfs.ItemFolder {
			return vfs.FileErrorf(nil, "cannot find folder %s", folderPath.Display())
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return ignoredMsg != "", nil
}

// createBaseFolder creates a missing base folder; the user presumably
// ignored the "folder not existing" error during comparison to have it
// created automatically. A folder that reappeared on its own means the
// comparison ran against a temporary network drop and its directions are
// based on false assumptions: fatal, skip the pair.
func createBaseFolder(ctx context.Context, base *tree.BaseFolderPair, side tree.Side, cb ProgressReporter) (bool, error) {
	folderPath := base.PathOn(side)
	if folderPath.IsNull() || base.AvailableOn(side) {
		return true, nil
	}
	temporaryNetworkDrop := false
	ignoredMsg, err := tryReportingMain(cb, func() error {
		_, exists, err := folderPath.FS.ItemTypeIfExists(ctx, folderPath.Item)
		if err != nil {
			return err
		}
		if !exists {
			if err := folderPath.FS.CreateFolderIfMissingRecursion(ctx, folderPath.Item); err != nil {
				return err
			}
			base.SetAvailableOn(side, true)
			return nil
		}
		cb.ReportFatalError(fmt.Sprintf("Target folder %s already existing.", folderPath.Display()))
		temporaryNetworkDrop = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return ignoredMsg == "" && !temporaryNetworkDrop, nil
}

// Synchronize executes the comparison result: pre-flight checks and batched
// warnings first, then the three-pass sync per base pair.
func Synchronize(ctx context.Context, syncStartTime time.Time, opts Options,
	syncConfig []PairConfig, folderCmp []*tree.BaseFolderPair,
	warnings *Warnings, cb ProgressReporter) error {

	if len(syncConfig) != len(folderCmp) {
		return fmt.Errorf("contract violation: %d configs for %d folder pairs", len(syncConfig), len(folderCmp))
	}

	// aggregate basic information and announce the total workload up front
	folderPairStats := make([]*SyncStatistics, 0, len(folderCmp))
	{
		itemsTotal := 0
		var bytesTotal int64
		for _, base := range folderCmp {
			stats := Statistics(base)
			itemsTotal += stats.CUD()
			bytesTotal += stats.BytesToProcess()
			folderPairStats = append(folderPairStats, stats)
		}
		cb.InitNewPhase(itemsTotal, bytesTotal)
	}

	//---------------- basic checks, all at once before the sync starts ----------------

	jobType := make([]pairJobType, len(folderCmp))

	var unresolvedConflicts []ConflictInfo
	var significantDiffPairs [][2]vfs.Path
	type spaceShortage struct {
		folderPath vfs.Path
		required   int64
		available  int64
	}
	var diskSpaceMissing []spaceShortage

	type rwCheckFolder struct {
		path   vfs.Path
		filter *tree.PathFilter
		write  bool
	}
	var readWriteCheckFolders []rwCheckFolder

	// expensive to determine, so buffer per base folder; probed only when
	// physical deletions are expected
	trashSupported := map[string]bool{}

	var verCheckVersioningPaths []vfs.Path
	type verCheckBase struct {
		path   vfs.Path
		filter *tree.PathFilter
	}
	var verCheckBaseFolders []verCheckBase

	for folderIndex, base := range folderCmp {
		cfg := &syncConfig[folderIndex]
		stats := folderPairStats[folderIndex]

		unresolvedConflicts = append(unresolvedConflicts, stats.Conflicts()...)

		// exclude pathological cases (empty sides compare equal, too)
		if vfs.Equal(base.PathOn(tree.Left), base.PathOn(tree.Right)) {
			jobType[folderIndex] = jobSkip
			continue
		}

		// nothing to do? skip the pair (and in particular don't create
		// not-yet-existing base folders) unless the DB needs updating
		if stats.CUD() == 0 && !cfg.SaveSyncDB {
			jobType[folderIndex] = jobAlreadyInSync
			continue
		}

		writeLeft := stats.CreateCount(tree.Left)+stats.UpdateCount(tree.Left)+stats.DeleteCount(tree.Left) > 0
		writeRight := stats.CreateCount(tree.Right)+stats.UpdateCount(tree.Right)+stats.DeleteCount(tree.Right) > 0

		// an empty folder path only makes sense as a source
		if (base.PathOn(tree.Left).IsNull() && (writeLeft || cfg.SaveSyncDB)) ||
			(base.PathOn(tree.Right).IsNull() && (writeRight || cfg.SaveSyncDB)) {
			cb.ReportFatalError("Target folder input field must not be empty.")
			jobType[folderIndex] = jobSkip
			continue
		}

		// check for network drops after comparison: early failure beats tons
		// of copy errors later
		droppedL, err := baseFolderDropped(ctx, base, tree.Left, cb)
		if err != nil {
			return err
		}
		droppedR, err := baseFolderDropped(ctx, base, tree.Right, cb)
		if err != nil {
			return err
		}
		if droppedL || droppedR {
			jobType[folderIndex] = jobSkip
			continue
		}

		// allow deletions to propagate only from a null or existing source
		// folder: a permanent network drop would otherwise wipe the target
		sourceFolderMissing := func(side tree.Side) bool {
			p := base.PathOn(side)
			if p.IsNull() || stats.DeleteTotal() == 0 {
				return false
			}
			if base.AvailableOn(side) { // evaluate status from comparison time
				return false
			}
			cb.ReportFatalError(fmt.Sprintf("Source folder %s not found.", p.Display()))
			return true
		}
		if sourceFolderMissing(tree.Left) || sourceFolderMissing(tree.Right) {
			jobType[folderIndex] = jobSkip
			continue
		}

		if cfg.HandleDeletion == DeleteVersioning {
			if cfg.VersioningFolder.IsNull() {
				cb.ReportFatalError("Please enter a target folder for versioning.")
				jobType[folderIndex] = jobSkip
				continue
			}
			// end of checks that may skip the pair; warnings from here on
			verCheckVersioningPaths = append(verCheckVersioningPaths, cfg.VersioningFolder)
			verCheckBaseFolders = append(verCheckBaseFolders,
				verCheckBase{base.PathOn(tree.Left), base.Filter()},
				verCheckBase{base.PathOn(tree.Right), base.Filter()})
		}

		readWriteCheckFolders = append(readWriteCheckFolders,
			rwCheckFolder{base.PathOn(tree.Left), base.Filter(), writeLeft},
			rwCheckFolder{base.PathOn(tree.Right), base.Filter(), writeRight})

		if !base.PathOn(tree.Left).IsNull() && !base.PathOn(tree.Right).IsNull() &&
			significantDifferenceDetected(stats) {
			significantDiffPairs = append(significantDiffPairs,
				[2]vfs.Path{base.PathOn(tree.Left), base.PathOn(tree.Right)})
		}

		// free disk space; advisory only, failures are not worth a prompt
		checkSpace := func(side tree.Side, minSpaceNeeded int64) {
			p := base.PathOn(side)
			if p.IsNull() || minSpaceNeeded <= 0 {
				return
			}
			freeSpace, err := p.FS.FreeDiskSpace(ctx, p.Item)
			if err != nil || freeSpace <= 0 { // zero means "not supported"
				return
			}
			if freeSpace < minSpaceNeeded {
				diskSpaceMissing = append(diskSpaceMissing, spaceShortage{p, minSpaceNeeded, freeSpace})
			}
		}
		spaceLeft, spaceRight := EstimateSpaceDelta(base)
		checkSpace(tree.Left, spaceLeft)
		checkSpace(tree.Right, spaceRight)

		// silently degraded trash deletion would be wrong; probe support once
		// per base folder
		if cfg.HandleDeletion == DeleteToTrash {
			checkTrash := func(side tree.Side) error {
				p := base.PathOn(side)
				if p.IsNull() || !stats.ExpectPhysicalDeletion(side) {
					return nil
				}
				key := p.Display()
				if _, done := trashSupported[key]; done {
					return nil
				}
				if err := cb.ReportStatus(fmt.Sprintf("Checking trash availability for folder %s...", key)); err != nil {
					return err
				}
				supported := false
				if _, err := tryReportingMain(cb, func() error {
					var err error
					supported, err = p.FS.SupportsTrash(ctx, p.Item)
					return err
				}); err != nil {
					return err
				}
				trashSupported[key] = supported
				return nil
			}
			if err := checkTrash(tree.Left); err != nil {
				return err
			}
			if err := checkTrash(tree.Right); err != nil {
				return err
			}
		}
	}

	//---------------- batched warnings ----------------

	if len(unresolvedConflicts) > 0 {
		var sb strings.Builder
		sb.WriteString("The following items have unresolved conflicts and will not be synchronized:")
		for _, c := range unresolvedConflicts {
			fmt.Fprintf(&sb, "\n\n%s: %s", c.RelPath, c.Message)
		}
		if err := cb.ReportWarning(sb.String(), &warnings.UnresolvedConflicts); err != nil {
			return err
		}
	}

	if len(significantDiffPairs) > 0 {
		var sb strings.Builder
		sb.WriteString("The following folders are significantly different. Please check that the correct folders are selected for synchronization.")
		for _, pair := range significantDiffPairs {
			fmt.Fprintf(&sb, "\n\n%s <-> \n%s", pair[0].Display(), pair[1].Display())
		}
		if err := cb.ReportWarning(sb.String(), &warnings.SignificantDifference); err != nil {
			return err
		}
	}

	if len(diskSpaceMissing) > 0 {
		var sb strings.Builder
		sb.WriteString("Not enough free disk space available in:")
		for _, item := range diskSpaceMissing {
			fmt.Fprintf(&sb, "\n\n%s\nRequired:  %s\nAvailable: %s", item.folderPath.Display(),
				humanize.IBytes(uint64(item.required)), humanize.IBytes(uint64(item.available)))
		}
		if err := cb.ReportWarning(sb.String(), &warnings.NotEnoughDiskSpace); err != nil {
			return err
		}
	}

	{
		var sb strings.Builder
		for key, supported := range trashSupported {
			if !supported {
				sb.WriteString("\n" + key)
			}
		}
		if sb.Len() > 0 {
			if err := cb.ReportWarning("The trash is not available for the following folders. Deleted or overwritten files will not be able to be restored:"+sb.String(),
				&warnings.TrashMissing); err != nil {
				return err
			}
		}
	}

	// base folders used by multiple pairs, at least one with write access
	{
		dependentSeen := map[string]bool{}
		var dependent []string
		for i := range readWriteCheckFolders {
			if !readWriteCheckFolders[i].write {
				continue
			}
			for j := range readWriteCheckFolders {
				if i == j || (readWriteCheckFolders[j].write && j < i) { // avoid duplicate comparisons
					continue
				}
				parent, child, ok := pathDependency(
					readWriteCheckFolders[i].path, readWriteCheckFolders[i].filter,
					readWriteCheckFolders[j].path, readWriteCheckFolders[j].filter)
				if !ok {
					continue
				}
				for _, p := range []vfs.Path{parent, child} {
					if d := p.Display(); !dependentSeen[d] {
						dependentSeen[d] = true
						dependent = append(dependent, d)
					}
				}
			}
		}
		if len(dependent) > 0 {
			var sb strings.Builder
			sb.WriteString("Some files will be synchronized as part of multiple base folders.\n")
			sb.WriteString("To avoid conflicts, set up exclude filters so that each updated file is considered by only one base folder.\n")
			for _, d := range dependent {
				sb.WriteString("\n" + d)
			}
			if err := cb.ReportWarning(sb.String(), &warnings.DependentFolders); err != nil {
				return err
			}
		}
	}

	// versioning folder inside a synced base folder, not excluded via filter
	{
		var sb strings.Builder
		for _, versioningPath := range verCheckVersioningPaths {
			for _, item := range verCheckBaseFolders {
				_, _, ok := pathDependency(versioningPath, tree.NewPathFilter(nil, nil), item.path, item.filter)
				if !ok {
					continue
				}
				fmt.Fprintf(&sb, "\n\nVersioning folder: %s\nBase folder: %s",
					versioningPath.Display(), item.path.Display())
			}
		}
		if sb.Len() > 0 {
			if err := cb.ReportWarning("The versioning folder is contained in a base folder.\n"+
				"The folder should be excluded from synchronization via filter."+sb.String(),
				&warnings.VersioningInsideBase); err != nil {
				return err
			}
		}
	}

	//---------------- synchronize each pair ----------------

	var errorsModTime []error // batched as a single warning after sync

	for folderIndex, base := range folderCmp {
		cfg := &syncConfig[folderIndex]
		stats := folderPairStats[folderIndex]

		if jobType[folderIndex] == jobSkip {
			continue
		}

		if err := cb.ReportInfo(fmt.Sprintf("Synchronizing folder pair: %s\n    %s\n    %s",
			cfg.SyncVariant,
			base.PathOn(tree.Left).Display(),
			base.PathOn(tree.Right).Display())); err != nil {
			return err
		}

		// checking a second time: a long time may have passed since the
		// pre-flight checks
		droppedL, err := baseFolderDropped(ctx, base, tree.Left, cb)
		if err != nil {
			return err
		}
		droppedR, err := baseFolderDropped(ctx, base, tree.Right, cb)
		if err != nil {
			return err
		}
		if droppedL || droppedR {
			continue
		}

		// create base folders if not yet existing
		if stats.CreateTotal() > 0 || cfg.SaveSyncDB {
			okL, err := createBaseFolder(ctx, base, tree.Left, cb)
			if err != nil {
				return err
			}
			okR, err := createBaseFolder(ctx, base, tree.Right, cb)
			if err != nil {
				return err
			}
			if !okL || !okR {
				continue
			}
		}

		dbSaved := false
		saveDB := func(allowCallbackError bool) error {
			if !cfg.SaveSyncDB || opts.DB == nil || dbSaved {
				return nil
			}
			return opts.DB.SaveLastSyncState(ctx, base, func(msg string) error {
				if err := cb.ReportStatus(msg); err != nil && allowCallbackError {
					return err
				}
				return nil
			})
		}

		if jobType[folderIndex] == jobProcess {
			pairErr := synchronizePair(ctx, syncStartTime, &opts, cfg, base, trashSupported, &errorsModTime, cb)
			tree.RemoveEmpty(base) // drop invalid entries, empty on both sides
			if pairErr != nil {
				// still update the sync database: the next comparison must
				// not re-derive directions from a half-finished state
				_ = saveDB(false)
				return pairErr
			}
		}

		// (try to gracefully) write the database file
		if cfg.SaveSyncDB && opts.DB != nil {
			if err := cb.ReportStatus("Generating database..."); err != nil {
				return err
			}
			if err := cb.ForceUIRefresh(); err != nil {
				return err
			}
			if _, err := tryReportingMain(cb, func() error {
				return saveDB(true)
			}); err != nil {
				return err
			}
			dbSaved = true
		}
	}

	//---------------- warnings after the end of synchronization ----------------

	// failures to set a modification time are a warning, not an error
	if len(errorsModTime) > 0 {
		msgs := make([]string, 0, len(errorsModTime))
		for _, e := range errorsModTime {
			msgs = append(msgs, e.Error())
		}
		if err := cb.ReportWarning(strings.Join(msgs, "\n\n"), &warnings.ModTimeErrors); err != nil {
			return err
		}
	}
	return nil
}

// synchronizePair sets up deletion handlers and parallelism for one base
// pair and runs the three passes.
func synchronizePair(ctx context.Context, syncStartTime time.Time, opts *Options, cfg *PairConfig,
	base *tree.BaseFolderPair, trashSupported map[string]bool, errorsModTime *[]error, cb ProgressReporter) error {

	// copy permissions only when asked for and supported by both sides
	copyPermissions := false
	if opts.CopyFilePermissions &&
		!base.PathOn(tree.Left).IsNull() && !base.PathOn(tree.Right).IsNull() {
		copyPermissions = base.PathOn(tree.Left).FS.SupportPermissionCopy(base.PathOn(tree.Right).FS)
	}

	// trash falls back to permanent deletion on folders without support; the
	// map was filled during pre-flight, but only when deletions are expected
	effectivePolicy := func(p vfs.Path) DeletionPolicy {
		if cfg.HandleDeletion == DeleteToTrash {
			if supported, probed := trashSupported[p.Display()]; probed && !supported {
				return DeletePermanent
			}
		}
		return cfg.HandleDeletion
	}

	delHandlerL := NewDeletionHandler(base.PathOn(tree.Left), effectivePolicy(base.PathOn(tree.Left)),
		cfg.VersioningFolder, cfg.VersioningStyle, syncStartTime)
	delHandlerR := NewDeletionHandler(base.PathOn(tree.Right), effectivePolicy(base.PathOn(tree.Right)),
		cfg.VersioningFolder, cfg.VersioningStyle, syncStartTime)

	// always try to clean up, even when the sync aborted; no reporter
	// callbacks may escape from this path, or cleanup stays incomplete
	cleanedUp := false
	defer func() {
		if !cleanedUp {
			_ = delHandlerL.TryCleanup(ctx, cb, false)
			_ = delHandlerR.TryCleanup(ctx, cb, false)
		}
	}()

	parallelOps := max(opts.parallelOpsFor(base.PathOn(tree.Left)),
		opts.parallelOpsFor(base.PathOn(tree.Right)), 1)

	sctx := &syncPairContext{
		verifyCopiedFiles:   opts.VerifyCopiedFiles,
		copyFilePermissions: copyPermissions,
		failSafeFileCopy:    opts.FailSafeFileCopy,
		errorsModTime:       errorsModTime,
		delHandler:          [2]*DeletionHandler{delHandlerL, delHandlerR},
		threadCount:         parallelOps,
	}
	if err := runPairSync(ctx, sctx, base, cb); err != nil {
		return err
	}

	// graceful cleanup of the buffered trash moves
	cleanedUp = true
	if _, err := tryReportingMain(cb, func() error {
		return delHandlerL.TryCleanup(ctx, cb, true)
	}); err != nil {
		return err
	}
	if _, err := tryReportingMain(cb, func() error {
		return delHandlerR.TryCleanup(ctx, cb, true)
	}); err != nil {
		return err
	}
	return nil
}

// pathDependency detects overlapping folder locations: identical paths, or
// one containing the other with the sub path not excluded by the outer
// filter.
func pathDependency(a vfs.Path, aFilter *tree.PathFilter, b vfs.Path, bFilter *tree.PathFilter) (parent, child vfs.Path, ok bool) {
	if a.IsNull() || b.IsNull() || a.FS != b.FS {
		return vfs.Path{}, vfs.Path{}, false
	}
	if a.Item == b.Item {
		return a, b, true
	}
	contains := func(outer, inner string) (string, bool) {
		prefix := strings.TrimSuffix(outer, vfs.Separator) + vfs.Separator
		if strings.HasPrefix(inner, prefix) {
			return strings.TrimPrefix(inner, prefix), true
		}
		return "", false
	}
	if rel, yes := contains(a.Item, b.Item); yes {
		if aFilter.Matches(rel) {
			return a, b, true
		}
		return vfs.Path{}, vfs.Path{}, false
	}
	if rel, yes := contains(b.Item, a.Item); yes {
		if bFilter.Matches(rel) {
			return b, a, true
		}
	}
	return vfs.Path{}, vfs.Path{}, false
}
