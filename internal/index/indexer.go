package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driveindex/driveindex/internal/metrics"
	"github.com/driveindex/driveindex/internal/nodeid"
	"github.com/driveindex/driveindex/internal/tree"
)

// ProgressFunc receives the running count of files persisted so far. It is
// called once per file, after that file's row is written.
type ProgressFunc func(files int)

// IndexStats summarizes a full index run.
type IndexStats struct {
	RunID    string        `json:"run_id"`
	Folders  int           `json:"folders"`
	Files    int           `json:"files"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Indexer walks the remote tree depth-first from a root and upserts every
// folder and file into the cache.
type Indexer struct {
	lister TreeLister
	store  NodeWriter
	logger *slog.Logger

	// nowFunc is injectable for deterministic durations in tests.
	nowFunc func() time.Time
}

// NewIndexer creates an Indexer.
func NewIndexer(lister TreeLister, store NodeWriter, logger *slog.Logger) *Indexer {
	return &Indexer{
		lister:  lister,
		store:   store,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// frame is one folder on the traversal stack: its children are listed once,
// then consumed in order via next.
type frame struct {
	path     string
	identity nodeid.Identity
	children []tree.Entry
	listed   bool
	next     int
}

// Run indexes the subtree below root. The root itself is not stored; its
// children get paths relative to it. Nodes are persisted in pre-order: a
// folder's row is written before anything inside it, and a folder's subtree
// is finished before its next sibling.
//
// Any failure aborts the run and is returned as a *NodeError. Rows written
// before the failure stay in the cache; re-running converges because every
// write is an upsert. The stack is explicit, so tree depth is bounded only
// by memory.
func (ix *Indexer) Run(ctx context.Context, root nodeid.Identity, progress ProgressFunc) (IndexStats, error) {
	stats := IndexStats{RunID: uuid.NewString()}
	start := ix.nowFunc()

	ix.logger.Info("full index starting",
		slog.String("run_id", stats.RunID),
		slog.String("root", root.String()),
	)

	err := ix.walk(ctx, root, progress, &stats)
	stats.Duration = ix.nowFunc().Sub(start)
	metrics.RecordRun(metrics.ModeFull, err == nil, stats.Duration)

	if err != nil {
		ix.logger.Error("full index failed",
			slog.String("run_id", stats.RunID),
			slog.Int("folders", stats.Folders),
			slog.Int("files", stats.Files),
			slog.String("error", err.Error()),
		)

		return stats, err
	}

	ix.logger.Info("full index complete",
		slog.String("run_id", stats.RunID),
		slog.Int("folders", stats.Folders),
		slog.Int("files", stats.Files),
		slog.Int("skipped", stats.Skipped),
		slog.Duration("duration", stats.Duration),
	)

	return stats, nil
}

func (ix *Indexer) walk(ctx context.Context, root nodeid.Identity, progress ProgressFunc, stats *IndexStats) error {
	stack := []*frame{{identity: root}}

	// Identities of the folders currently on the stack. A folder child that
	// resolves to one of them (typically one with no node ID of its own,
	// which inherits its parent's) would list the same folder forever.
	open := map[string]struct{}{root.Key(): {}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if err := ctx.Err(); err != nil {
			return nodeErr(ErrCanceled, top.path, err)
		}

		if !top.listed {
			children, err := ix.lister.ListChildren(ctx, top.identity)
			if err != nil {
				if ctx.Err() != nil {
					return nodeErr(ErrCanceled, top.path, ctx.Err())
				}

				metrics.RecordError(metrics.ErrorRemoteFetch)

				return nodeErr(ErrRemoteFetch, top.path, err)
			}

			top.children = children
			top.listed = true
		}

		if top.next >= len(top.children) {
			// Release the listing so a long sibling chain does not pin it.
			top.children = nil
			stack = stack[:len(stack)-1]
			delete(open, top.identity.Key())

			continue
		}

		entry := top.children[top.next]
		top.next++

		child, ok := tree.Resolve(entry, top.path, top.identity)
		if !ok {
			stats.Skipped++
			ix.logger.Debug("skipping entry that is neither folder nor file",
				slog.String("parent", top.path),
				slog.String("type", entry.OtherType),
			)

			continue
		}

		if child.Kind == tree.KindFolder {
			if _, cycle := open[child.Identity.Key()]; cycle {
				stats.Skipped++
				ix.logger.Warn("skipping folder that resolves to one of its ancestors",
					slog.String("path", child.Path),
					slog.String("node", child.Identity.String()),
				)

				continue
			}
		}

		if err := ix.persist(ctx, child); err != nil {
			return err
		}

		metrics.RecordIndexed(child.Kind.String())

		switch child.Kind {
		case tree.KindFolder:
			stats.Folders++
			stack = append(stack, &frame{path: child.Path, identity: child.Identity})
			open[child.Identity.Key()] = struct{}{}
		case tree.KindFile:
			stats.Files++
			if progress != nil {
				progress(stats.Files)
			}
		}
	}

	return nil
}

func (ix *Indexer) persist(ctx context.Context, child tree.Child) error {
	node, err := child.Encode()
	if err != nil {
		metrics.RecordError(metrics.ErrorDecode)

		return nodeErr(ErrDecode, child.Path, err)
	}

	ix.logger.Debug("indexing node",
		slog.String("kind", child.Kind.String()),
		slog.String("path", child.Path),
	)

	switch child.Kind {
	case tree.KindFolder:
		err = ix.store.UpsertFolder(ctx, child.Path, child.Name, node)
	case tree.KindFile:
		err = ix.store.UpsertFile(ctx, child.Path, child.Name, node)
	default:
		err = fmt.Errorf("unexpected kind %s", child.Kind)
	}

	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return nodeErr(ErrCanceled, child.Path, ctx.Err())
	}

	metrics.RecordError(metrics.ErrorStorage)

	return nodeErr(ErrStorage, child.Path, err)
}
