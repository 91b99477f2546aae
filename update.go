package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driveindex/driveindex/internal/index"
)

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Add new files and folders below cached folders",
		Long: `Rescan every cached folder concurrently and insert children that are not
cached yet. Existing rows are never modified.

By default only folders cached before the run are scanned, so a new folder's
contents appear on the next run. --recursive also scans folders discovered
during the run. The root folder is scanned too unless --no-root is given.`,
		Args: cobra.NoArgs,
		RunE: runUpdate,
	}

	cmd.Flags().Int("workers", index.DefaultWorkers, "number of concurrent workers")
	cmd.Flags().Bool("recursive", false, "also scan folders discovered during this run")
	cmd.Flags().Bool("no-root", false, "skip scanning the root folder")

	return cmd
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	recursive := cc.Cfg.Index.Recursive
	if cmd.Flags().Changed("recursive") {
		recursive, _ = cmd.Flags().GetBool("recursive")
	}

	scanRoot := cc.Cfg.Index.ScanRoot
	if noRoot, _ := cmd.Flags().GetBool("no-root"); noRoot {
		scanRoot = false
	}

	sess, err := openSession(ctx, cc, lockModeUpdate)
	if err != nil {
		return err
	}
	defer sess.Close()

	return runUpdateWith(ctx, cc, sess, updaterConfig(cc, sess, recursive, scanRoot))
}

// updaterConfig builds the updater settings from the resolved config.
func updaterConfig(cc *CLIContext, sess *session, recursive, scanRoot bool) index.UpdaterConfig {
	cfg := index.UpdaterConfig{
		Workers:   cc.Cfg.Index.Workers,
		Recursive: recursive,
	}

	if scanRoot {
		root := sess.root
		cfg.Root = &root
	}

	return cfg
}

// runUpdateWith runs one incremental update and prints its statistics.
func runUpdateWith(ctx context.Context, cc *CLIContext, sess *session, cfg index.UpdaterConfig) error {
	up := index.NewUpdater(sess.client, sess.store, cc.Logger)

	stats, err := up.Run(ctx, cfg)

	if cc.Flags.JSON {
		if jerr := printJSON(cc.stdout, stats); jerr != nil {
			return jerr
		}
	} else {
		printUpdateStats(cc, stats)
	}

	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	return nil
}

func printUpdateStats(cc *CLIContext, stats index.UpdateStats) {
	state := "completed"
	if stats.Canceled {
		state = "canceled"
	}

	fmt.Fprintf(cc.stdout, "Update %s in %s: %d folders scanned, %d new folders, %d new files",
		state, stats.Duration.Round(time.Millisecond), stats.Scanned, stats.NewFolders, stats.NewFiles)

	if stats.Skipped > 0 {
		fmt.Fprintf(cc.stdout, ", %d skipped", stats.Skipped)
	}

	if stats.FailedWorkers > 0 {
		fmt.Fprintf(cc.stdout, ", %d of %d workers failed", stats.FailedWorkers, stats.Workers)
	}

	fmt.Fprintln(cc.stdout)
}
