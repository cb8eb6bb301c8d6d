package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/foldsync/foldsync/internal/engine"
	"github.com/foldsync/foldsync/internal/plan"
	"github.com/foldsync/foldsync/internal/syncdb"
	"github.com/foldsync/foldsync/internal/tree"
	"github.com/foldsync/foldsync/internal/vfs/localfs"
)

var syncFlags struct {
	verify          bool
	copyPermissions bool
	failSafe        bool
	parallel        int
	maxRetries      int
	yes             bool
	verbose         bool
	dbPath          string
}

var syncCmd = &cobra.Command{
	Use:   "sync <plan.json>",
	Short: "Execute a synchronization plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(syncFlags.verbose)

		planFile, err := plan.Load(args[0])
		if err != nil {
			return err
		}

		var (
			pairs   []*tree.BaseFolderPair
			configs []engine.PairConfig
			saveDB  bool
		)
		for i := range planFile.Pairs {
			base, cfg, err := planFile.Pairs[i].Build()
			if err != nil {
				return fmt.Errorf("pair %d: %w", i+1, err)
			}
			pairs = append(pairs, base)
			configs = append(configs, cfg)
			saveDB = saveDB || cfg.SaveSyncDB
		}

		opts := engine.Options{
			VerifyCopiedFiles:   syncFlags.verify,
			CopyFilePermissions: syncFlags.copyPermissions,
			FailSafeFileCopy:    syncFlags.failSafe,
		}
		if syncFlags.parallel > 1 {
			opts.DeviceParallelOps = map[string]int{}
			for _, base := range pairs {
				for _, side := range []tree.Side{tree.Left, tree.Right} {
					if p := base.PathOn(side); !p.IsNull() {
						opts.DeviceParallelOps[p.FS.DeviceKey(p.Item)] = syncFlags.parallel
					}
				}
			}
		}
		if saveDB {
			store, err := syncdb.Open(syncFlags.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			opts.DB = store
		}

		reporter := newConsoleReporter(syncFlags.maxRetries, syncFlags.yes)
		warnings := &engine.Warnings{}

		slog.Info("sync start", "pairs", len(pairs))
		if err := engine.Synchronize(cmd.Context(), time.Now(), opts, configs, pairs, warnings, reporter); err != nil {
			return err
		}
		reporter.printSummary()
		return nil
	},
}

func init() {
	home, _ := os.UserHomeDir()
	f := syncCmd.Flags()
	f.SortFlags = false
	f.BoolVar(&syncFlags.verify, "verify", false, "Re-read and compare files after copying")
	f.BoolVar(&syncFlags.copyPermissions, "copy-permissions", false, "Copy file permissions when supported by both sides")
	f.BoolVar(&syncFlags.failSafe, "fail-safe", true, "Copy to a temporary file first, then rename into place")
	f.IntVarP(&syncFlags.parallel, "parallel", "p", 1, "Parallel file operations per device")
	f.IntVar(&syncFlags.maxRetries, "retries", 0, "Automatic retries before an error is skipped")
	f.BoolVarP(&syncFlags.yes, "yes", "y", false, "Do not prompt; skip failed items and dismiss warnings")
	f.BoolVarP(&syncFlags.verbose, "verbose", "v", false, "Verbose logging")
	f.StringVar(&syncFlags.dbPath, "db", localfs.Default().DisplayPath(home+"/.foldsync/sync.db"), "Sync state database location")
}
