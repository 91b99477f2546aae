package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/driveindex/driveindex/internal/cache"
	"github.com/driveindex/driveindex/internal/index"
)

// progressEvery throttles non-terminal progress logging.
const progressEvery = 1000

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the cache",
		Long: `Walk the whole remote tree and store every folder and file in the cache.

The first run (or --full) performs a full traversal and records completion in
a marker file next to the database. Later runs perform an incremental update
instead. A failed full index leaves the marker unwritten, so the next run
starts over.`,
		Args: cobra.NoArgs,
		RunE: runIndex,
	}

	cmd.Flags().Bool("full", false, "force a full traversal even if the cache is populated")
	cmd.Flags().Int("workers", index.DefaultWorkers, "concurrent workers for incremental updates")

	return cmd
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	full, err := cmd.Flags().GetBool("full")
	if err != nil {
		return err
	}

	markerPath := cache.MarkerPath(cc.Cfg.Index.DBPath)

	marker, err := cache.ReadMarker(markerPath)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx, cc, lockModeIndex)
	if err != nil {
		return err
	}
	defer sess.Close()

	if marker.InitialIndex && !full {
		cc.Logger.Info("cache already indexed, running incremental update",
			slog.String("run_id", marker.RunID))

		return runUpdateWith(ctx, cc, sess, updaterConfig(cc, sess, cc.Cfg.Index.Recursive, cc.Cfg.Index.ScanRoot))
	}

	return runFullIndex(ctx, cc, sess, markerPath)
}

// runFullIndex traverses the whole tree and writes the marker on success.
func runFullIndex(ctx context.Context, cc *CLIContext, sess *session, markerPath string) error {
	cc.Statusf("Indexing %s...\n", sess.root)

	ix := index.NewIndexer(sess.client, sess.store, cc.Logger)

	progress := newProgress(cc)

	stats, err := ix.Run(ctx, sess.root, progress.report)
	progress.done()

	if err != nil {
		return fmt.Errorf("full index failed after %d files: %w", stats.Files, err)
	}

	marker := cache.Marker{
		InitialIndex: true,
		RunID:        stats.RunID,
		CompletedAt:  time.Now().UTC(),
		Folders:      stats.Folders,
		Files:        stats.Files,
	}

	if err := cache.WriteMarker(markerPath, marker); err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.stdout, stats)
	}

	fmt.Fprintf(cc.stdout, "Indexed %d folders and %d files in %s (%d skipped)\n",
		stats.Folders, stats.Files, stats.Duration.Round(time.Millisecond), stats.Skipped)

	return nil
}

// progress renders the file count: a rewritten line on a terminal, a
// periodic log line otherwise.
type progress struct {
	cc   *CLIContext
	tty  bool
	last int
}

func newProgress(cc *CLIContext) *progress {
	return &progress{
		cc:  cc,
		tty: !cc.Flags.Quiet && !cc.Flags.JSON && isTerminal(cc.stderr),
	}
}

func (p *progress) report(files int) {
	p.last = files

	if p.tty {
		fmt.Fprintf(p.cc.stderr, "\r%d files indexed", files)
		return
	}

	if files%progressEvery == 0 {
		p.cc.Logger.Info("index progress", slog.Int("files", files))
	}
}

func (p *progress) done() {
	if p.tty && p.last > 0 {
		io.WriteString(p.cc.stderr, "\n")
	}
}
