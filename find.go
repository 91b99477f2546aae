package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/driveindex/driveindex/internal/cache"
	"github.com/driveindex/driveindex/internal/tree"
)

const defaultFindLimit = 100

// nodeView is the JSON and table form of a cached row.
type nodeView struct {
	Kind       string    `json:"kind"`
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	NodeID     string    `json:"node_id,omitempty"`
	Size       int64     `json:"size,omitempty"`
	MediaType  string    `json:"media_type,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitzero"`
}

func toNodeView(row cache.Row) nodeView {
	v := nodeView{Kind: row.Kind.String(), Path: row.FullPath, Name: row.Name}

	// Rows written by an incompatible build still list by path.
	rec, err := tree.DecodeRecord(row.Node)
	if err != nil {
		return v
	}

	v.NodeID = rec.Identity.NodeID
	v.Size = rec.Size
	v.MediaType = rec.MediaType
	v.ModifiedAt = rec.ModifiedAt

	return v
}

func newFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <text>",
		Short: "Search cached paths",
		Long: `Print cached files and folders whose path contains the given text.
Matching ignores ASCII case and Unicode normalization form.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runFind,
	}

	cmd.Flags().String("kind", "", "only show this kind (file or folder)")
	cmd.Flags().Int("limit", defaultFindLimit, "maximum number of results")

	return cmd
}

func runFind(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	kindFlag, _ := cmd.Flags().GetString("kind")

	kind, err := parseKindFlag(kindFlag)
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 1 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}

	store, err := openStore(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.Search(ctx, strings.Join(args, " "), limit)
	if err != nil {
		return err
	}

	views := make([]nodeView, 0, len(rows))
	for _, row := range rows {
		if kind != tree.KindOther && row.Kind != kind {
			continue
		}

		views = append(views, toNodeView(row))
	}

	return printNodes(cc, views, func(v nodeView) string { return v.Path })
}

// parseKindFlag maps "file", "folder" or "" to a tree.Kind; "" means all.
func parseKindFlag(s string) (tree.Kind, error) {
	switch strings.ToLower(s) {
	case "":
		return tree.KindOther, nil
	case "file":
		return tree.KindFile, nil
	case "folder":
		return tree.KindFolder, nil
	default:
		return tree.KindOther, fmt.Errorf("--kind must be file or folder, got %q", s)
	}
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a cached folder",
		Long:  "List the cached children of a folder, folders first. Without a path, lists the top level.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func runLs(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	parent := ""
	if len(args) == 1 {
		parent = strings.Trim(args[0], "/")
	}

	store, err := openStore(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	if parent != "" {
		row, ok, err := store.Lookup(ctx, parent)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("%s: not in the cache", parent)
		}

		if row.Kind == tree.KindFile {
			return printNodes(cc, []nodeView{toNodeView(row)}, func(v nodeView) string { return v.Path })
		}
	}

	rows, err := store.Children(ctx, parent)
	if err != nil {
		return err
	}

	views := make([]nodeView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toNodeView(row))
	}

	return printNodes(cc, views, func(v nodeView) string {
		if v.Kind == tree.KindFolder.String() {
			return v.Name + "/"
		}

		return v.Name
	})
}

// printNodes writes views as JSON or as a table whose name column is
// produced by label.
func printNodes(cc *CLIContext, views []nodeView, label func(nodeView) string) error {
	if cc.Flags.JSON {
		return printJSON(cc.stdout, views)
	}

	if len(views) == 0 {
		cc.Statusf("No matches.\n")
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(views))

	for _, v := range views {
		size := "-"
		if v.Kind == tree.KindFile.String() {
			size = formatSize(v.Size)
		}

		rows = append(rows, []string{v.Kind, size, formatTime(v.ModifiedAt, now), label(v)})
	}

	printTable(cc.stdout, []string{"KIND", "SIZE", "MODIFIED", "NAME"}, rows)

	if len(views) > 1 {
		cc.Statusf("%d entries\n", len(views))
	}

	return nil
}
