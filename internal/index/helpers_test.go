package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveindex/driveindex/internal/cache"
	"github.com/driveindex/driveindex/internal/nodeid"
	"github.com/driveindex/driveindex/internal/tree"
)

var errFakeRemote = errors.New("fake remote: listing failed")

// testRoot is the traversal root used throughout. Children inherit its share
// and volume, since fake entries only carry a node ID.
var testRoot = nodeid.New("root", "share-1", "vol-1")

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "index.db")

	s, err := cache.Open(context.Background(), dbPath, cache.Options{MaxConnections: 4}, testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})

	return s
}

// fakeTree is an in-memory remote tree keyed by node ID.
type fakeTree struct {
	mu       sync.Mutex
	children map[string][]tree.Entry
	fail     map[string]error
	calls    map[string]int
	seen     []nodeid.Identity

	// hook, if set, runs at the start of every ListChildren call without
	// the lock held.
	hook func(ctx context.Context, id nodeid.Identity)
}

func newFakeTree() *fakeTree {
	return &fakeTree{
		children: make(map[string][]tree.Entry),
		fail:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeTree) addFolder(parentID, id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.children[parentID] = append(f.children[parentID], tree.Entry{
		Folder: &tree.FolderNode{Identity: nodeid.New(id, "", ""), ParentID: parentID, Name: name},
	})
}

func (f *fakeTree) addFile(parentID, id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.children[parentID] = append(f.children[parentID], tree.Entry{
		File: &tree.FileNode{
			Identity:  nodeid.New(id, "", ""),
			ParentID:  parentID,
			Name:      name,
			MediaType: "text/plain",
			Size:      int64(len(name)),
		},
	})
}

func (f *fakeTree) addOther(parentID, typ string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.children[parentID] = append(f.children[parentID], tree.Entry{OtherType: typ})
}

func (f *fakeTree) failOn(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fail[id] = err
}

func (f *fakeTree) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[id]
}

func (f *fakeTree) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		n += c
	}

	return n
}

func (f *fakeTree) ListChildren(ctx context.Context, id nodeid.Identity) ([]tree.Entry, error) {
	if f.hook != nil {
		f.hook(ctx, id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[id.NodeID]++
	f.seen = append(f.seen, id)

	if err := f.fail[id.NodeID]; err != nil {
		return nil, err
	}

	out := make([]tree.Entry, len(f.children[id.NodeID]))
	copy(out, f.children[id.NodeID])

	return out, nil
}

// folderPaths returns the sorted folder paths in the cache.
func folderPaths(t *testing.T, s *cache.Store) []string {
	t.Helper()

	return cachedPaths(t, s, tree.KindFolder)
}

// filePaths returns the sorted file paths in the cache.
func filePaths(t *testing.T, s *cache.Store) []string {
	t.Helper()

	return cachedPaths(t, s, tree.KindFile)
}

// cachedPaths lists every row of one kind; an empty search matches all paths.
func cachedPaths(t *testing.T, s *cache.Store, kind tree.Kind) []string {
	t.Helper()

	rows, err := s.Search(context.Background(), "", 1<<20)
	require.NoError(t, err)

	var out []cache.Row

	for _, r := range rows {
		if r.Kind == kind {
			out = append(out, r)
		}
	}

	return sortedPaths(out)
}

func sortedPaths(rows []cache.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.FullPath)
	}

	sort.Strings(out)

	return out
}

// seedFolder writes a folder row as a prior full index would have.
func seedFolder(t *testing.T, s *cache.Store, path, name, nodeID string) {
	t.Helper()

	id := nodeid.New(nodeID, testRoot.ShareID, testRoot.VolumeID)
	node, err := tree.EncodeFolder(&tree.FolderNode{Identity: id, Name: name}, id)
	require.NoError(t, err)
	require.NoError(t, s.UpsertFolder(context.Background(), path, name, node))
}

// seedFile writes a file row as a prior full index would have.
func seedFile(t *testing.T, s *cache.Store, path, name, nodeID string) {
	t.Helper()

	id := nodeid.New(nodeID, testRoot.ShareID, testRoot.VolumeID)
	node, err := tree.EncodeFile(&tree.FileNode{Identity: id, Name: name}, id)
	require.NoError(t, err)
	require.NoError(t, s.UpsertFile(context.Background(), path, name, node))
}

// buildWideTree creates folders f0..f(n-1) under the root, each holding
// filesPer files. Returns the expected folder and file paths.
func buildWideTree(ft *fakeTree, folders, filesPer int) (wantFolders, wantFiles []string) {
	for i := range folders {
		fid := fmt.Sprintf("f%d", i)
		ft.addFolder("root", fid, fid)
		wantFolders = append(wantFolders, fid)

		for j := range filesPer {
			name := fmt.Sprintf("file%d.txt", j)
			ft.addFile(fid, fmt.Sprintf("%s-%d", fid, j), name)
			wantFiles = append(wantFiles, fid+"/"+name)
		}
	}

	sort.Strings(wantFolders)
	sort.Strings(wantFiles)

	return wantFolders, wantFiles
}
