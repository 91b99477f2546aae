// Package index builds and refreshes the local cache of the remote tree: a
// one-shot full indexer, an incremental updater backed by a worker pool, and
// a scheduler that re-runs the updater.
package index

import (
	"context"

	"github.com/driveindex/driveindex/internal/cache"
	"github.com/driveindex/driveindex/internal/nodeid"
	"github.com/driveindex/driveindex/internal/tree"
)

// TreeLister lists the immediate children of a remote folder. Defined at the
// consumer per Go convention "accept interfaces, return structs";
// *remote.Client satisfies it.
type TreeLister interface {
	ListChildren(ctx context.Context, id nodeid.Identity) ([]tree.Entry, error)
}

// NodeWriter persists nodes found by the full indexer. *cache.Store
// satisfies it.
type NodeWriter interface {
	UpsertFolder(ctx context.Context, fullPath, name string, node []byte) error
	UpsertFile(ctx context.Context, fullPath, name string, node []byte) error
}

// UpdateStore is the cache surface used by the incremental updater.
// *cache.Store satisfies it.
type UpdateStore interface {
	KnownFolders(ctx context.Context) ([]cache.KnownFolder, error)
	InsertFolderIfAbsent(ctx context.Context, fullPath, name string, node []byte) (bool, error)
	InsertFileIfAbsent(ctx context.Context, fullPath, name string, node []byte) (bool, error)
}

// Compile-time interface assertions.
var (
	_ NodeWriter  = (*cache.Store)(nil)
	_ UpdateStore = (*cache.Store)(nil)
)
