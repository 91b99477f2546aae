package index

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveindex/driveindex/internal/cache"
	"github.com/driveindex/driveindex/internal/nodeid"
)

// failingStore wraps a real store and fails inserts below one path.
type failingStore struct {
	*cache.Store
	failPath string
}

func (f *failingStore) InsertFileIfAbsent(ctx context.Context, fullPath, name string, node []byte) (bool, error) {
	if fullPath == f.failPath {
		return false, errFakeStorage
	}

	return f.Store.InsertFileIfAbsent(ctx, fullPath, name, node)
}

// countingStore records how many insert attempts each path receives.
type countingStore struct {
	*cache.Store
	mu       sync.Mutex
	attempts map[string]int
}

func (c *countingStore) count(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts[path]++
}

func (c *countingStore) InsertFolderIfAbsent(ctx context.Context, fullPath, name string, node []byte) (bool, error) {
	c.count(fullPath)
	return c.Store.InsertFolderIfAbsent(ctx, fullPath, name, node)
}

func (c *countingStore) InsertFileIfAbsent(ctx context.Context, fullPath, name string, node []byte) (bool, error) {
	c.count(fullPath)
	return c.Store.InsertFileIfAbsent(ctx, fullPath, name, node)
}

// discoveryTree is the remote side of the A, A/B scenario:
//
//	A/        (cached)
//	  B/      (cached)
//	    D/    (new)
//	      E.txt
//	  C.txt   (new)
func discoveryTree(t *testing.T) (*fakeTree, *cache.Store) {
	t.Helper()

	ft := newFakeTree()
	ft.addFolder("root", "a", "A")
	ft.addFolder("a", "b", "B")
	ft.addFile("a", "c", "C.txt")
	ft.addFolder("b", "d", "D")
	ft.addFile("d", "e", "E.txt")

	s := newTestStore(t)
	seedFolder(t, s, "A", "A", "a")
	seedFolder(t, s, "A/B", "B", "b")

	return ft, s
}

func TestUpdater_InsertsNewChildrenOfKnownFolders(t *testing.T) {
	t.Parallel()

	ft, s := discoveryTree(t)
	u := NewUpdater(ft, s, testLogger(t))

	stats, err := u.Run(t.Context(), UpdaterConfig{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "A/B", "A/B/D"}, folderPaths(t, s))
	assert.Equal(t, []string{"A/C.txt"}, filePaths(t, s))

	// D is new, so nothing below it is scanned in the same run.
	assert.Zero(t, ft.callCount("d"))
	assert.Zero(t, ft.callCount("root"))

	assert.Equal(t, 2, stats.Queued)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 1, stats.NewFolders)
	assert.Equal(t, 1, stats.NewFiles)
	assert.False(t, stats.Canceled)
}

func TestUpdater_SecondRunReachesNewSubtree(t *testing.T) {
	t.Parallel()

	ft, s := discoveryTree(t)
	u := NewUpdater(ft, s, testLogger(t))

	_, err := u.Run(t.Context(), UpdaterConfig{Workers: 2})
	require.NoError(t, err)

	stats, err := u.Run(t.Context(), UpdaterConfig{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"A/B/D/E.txt", "A/C.txt"}, filePaths(t, s))
	assert.Equal(t, 0, stats.NewFolders)
	assert.Equal(t, 1, stats.NewFiles)
}

func TestUpdater_RecursiveReachesNewSubtree(t *testing.T) {
	t.Parallel()

	ft, s := discoveryTree(t)
	u := NewUpdater(ft, s, testLogger(t))

	stats, err := u.Run(t.Context(), UpdaterConfig{Workers: 2, Recursive: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"A/B/D/E.txt", "A/C.txt"}, filePaths(t, s))
	assert.Equal(t, 1, ft.callCount("d"))
	assert.Equal(t, 3, stats.Scanned)
}

func TestUpdater_RootScanFindsTopLevelEntries(t *testing.T) {
	t.Parallel()

	ft, s := discoveryTree(t)
	ft.addFolder("root", "z", "Z")
	ft.addFile("root", "top", "top.txt")

	root := testRoot
	u := NewUpdater(ft, s, testLogger(t))

	stats, err := u.Run(t.Context(), UpdaterConfig{Workers: 2, Root: &root})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "A/B", "A/B/D", "Z"}, folderPaths(t, s))
	assert.Contains(t, filePaths(t, s), "top.txt")
	assert.Equal(t, 3, stats.Queued)
}

func TestUpdater_FolderWithoutNodeIDIsNotInserted(t *testing.T) {
	t.Parallel()

	ft := newFakeTree()
	ft.addFolder("a", "", "Orphan")
	ft.addFile("a", "f", "f.txt")

	s := newTestStore(t)
	seedFolder(t, s, "A", "A", "a")

	stats, err := NewUpdater(ft, s, testLogger(t)).Run(t.Context(), UpdaterConfig{Workers: 1, Recursive: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, folderPaths(t, s))
	assert.Equal(t, []string{"A/f.txt"}, filePaths(t, s))
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, ft.callCount("a"))
}

func TestUpdater_RecursiveStopsAtFolderPointingBackUp(t *testing.T) {
	t.Parallel()

	ft := newFakeTree()
	ft.addFolder("a", "b", "B")
	ft.addFolder("b", "a", "BackToA")

	s := newTestStore(t)
	seedFolder(t, s, "A", "A", "a")

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	stats, err := NewUpdater(ft, s, testLogger(t)).Run(ctx, UpdaterConfig{Workers: 2, Recursive: true})
	require.NoError(t, err)

	assert.False(t, stats.Canceled)
	assert.Equal(t, []string{"A", "A/B"}, folderPaths(t, s))
	assert.Equal(t, 1, stats.NewFolders)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, ft.callCount("a"))
	assert.Equal(t, 1, ft.callCount("b"))
}

func TestUpdater_NeverModifiesExistingRows(t *testing.T) {
	t.Parallel()

	ft, s := discoveryTree(t)
	seedFile(t, s, "A/C.txt", "C.txt", "stale-id")

	before, ok, err := s.Lookup(t.Context(), "A/C.txt")
	require.NoError(t, err)
	require.True(t, ok)

	u := NewUpdater(ft, s, testLogger(t))
	stats, err := u.Run(t.Context(), UpdaterConfig{Workers: 2})
	require.NoError(t, err)

	after, ok, err := s.Lookup(t.Context(), "A/C.txt")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, before.Node, after.Node)
	assert.Zero(t, stats.NewFiles)
}

func TestUpdater_EmptyCacheIsNoOp(t *testing.T) {
	t.Parallel()

	ft := sampleTree()
	s := newTestStore(t)

	stats, err := NewUpdater(ft, s, testLogger(t)).Run(t.Context(), UpdaterConfig{Workers: 4})
	require.NoError(t, err)

	assert.Zero(t, stats.Queued)
	assert.Zero(t, ft.totalCalls())
	assert.Empty(t, folderPaths(t, s))
}

func TestUpdater_UndecodableFolderIsSkipped(t *testing.T) {
	t.Parallel()

	ft, s := discoveryTree(t)
	require.NoError(t, s.UpsertFolder(t.Context(), "Broken", "Broken", []byte{0xff, 0xff, 0xff}))

	u := NewUpdater(ft, s, testLogger(t))
	stats, err := u.Run(t.Context(), UpdaterConfig{Workers: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, []string{"A/C.txt"}, filePaths(t, s))
}

func TestUpdater_ListingFailureIsSkipped(t *testing.T) {
	t.Parallel()

	ft, s := discoveryTree(t)
	ft.failOn("a", errFakeRemote)

	u := NewUpdater(ft, s, testLogger(t))
	stats, err := u.Run(t.Context(), UpdaterConfig{Workers: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, filePaths(t, s))
	assert.Equal(t, []string{"A", "A/B", "A/B/D"}, folderPaths(t, s))
}

func TestUpdater_StorageFailureStopsOnlyThatWorker(t *testing.T) {
	t.Parallel()

	ft, s := discoveryTree(t)
	_, _ = buildWideTree(ft, 6, 1)

	for i := range 6 {
		id := fmt.Sprintf("f%d", i)
		seedFolder(t, s, id, id, id)
	}

	fs := &failingStore{Store: s, failPath: "A/C.txt"}
	u := NewUpdater(ft, fs, testLogger(t))

	stats, err := u.Run(t.Context(), UpdaterConfig{Workers: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, errFakeStorage)
	assert.Equal(t, 1, stats.FailedWorkers)

	// The surviving worker drained every other folder.
	files := filePaths(t, s)
	for i := range 6 {
		assert.Contains(t, files, fmt.Sprintf("f%d/file0.txt", i))
	}

	assert.Contains(t, folderPaths(t, s), "A/B/D")
}

func TestUpdater_AllWorkersFailing(t *testing.T) {
	t.Parallel()

	ft := newFakeTree()
	s := newTestStore(t)

	for i := range 3 {
		id := fmt.Sprintf("f%d", i)
		seedFolder(t, s, id, id, id)
		ft.addFile(id, id+"-x", "x.txt")
	}

	u := NewUpdater(ft, &allFailStore{Store: s}, testLogger(t))

	stats, err := u.Run(t.Context(), UpdaterConfig{Workers: 3})
	require.Error(t, err)
	assert.Equal(t, 3, stats.FailedWorkers)
}

// allFailStore fails every file insert.
type allFailStore struct {
	*cache.Store
}

func (a *allFailStore) InsertFileIfAbsent(context.Context, string, string, []byte) (bool, error) {
	return false, errFakeStorage
}

func TestUpdater_EachFolderScannedOnceAcrossWorkers(t *testing.T) {
	t.Parallel()

	ft := newFakeTree()
	s := newTestStore(t)
	_, wantFiles := buildWideTree(ft, 40, 3)

	for i := range 40 {
		id := fmt.Sprintf("f%d", i)
		seedFolder(t, s, id, id, id)
	}

	cs := &countingStore{Store: s, attempts: make(map[string]int)}
	u := NewUpdater(ft, cs, testLogger(t))

	stats, err := u.Run(t.Context(), UpdaterConfig{Workers: 8})
	require.NoError(t, err)

	for i := range 40 {
		assert.Equal(t, 1, ft.callCount(fmt.Sprintf("f%d", i)))
	}

	for path, n := range cs.attempts {
		assert.Equal(t, 1, n, "path %s written by more than one worker", path)
	}

	assert.Equal(t, wantFiles, filePaths(t, s))
	assert.Equal(t, len(wantFiles), stats.NewFiles)
}

func TestUpdater_WorkersRunConcurrently(t *testing.T) {
	t.Parallel()

	const workers = 3

	ft := newFakeTree()
	s := newTestStore(t)

	for i := range workers {
		id := fmt.Sprintf("f%d", i)
		seedFolder(t, s, id, id, id)
	}

	var (
		inFlight atomic.Int32
		peak     atomic.Int32
		release  = make(chan struct{})
		once     sync.Once
	)

	ft.hook = func(context.Context, nodeid.Identity) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		if n == workers {
			once.Do(func() { close(release) })
		}

		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}

	u := NewUpdater(ft, s, testLogger(t))
	_, err := u.Run(t.Context(), UpdaterConfig{Workers: workers})
	require.NoError(t, err)

	assert.Equal(t, int32(workers), peak.Load())
}

func TestUpdater_CanceledBeforeStart(t *testing.T) {
	t.Parallel()

	ft, s := discoveryTree(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	stats, err := NewUpdater(ft, s, testLogger(t)).Run(ctx, UpdaterConfig{Workers: 2})
	require.NoError(t, err)

	assert.True(t, stats.Canceled)
	assert.Zero(t, ft.totalCalls())
	assert.Empty(t, filePaths(t, s))
}

func TestUpdater_CanceledMidRunStopsWorkers(t *testing.T) {
	t.Parallel()

	ft := newFakeTree()
	s := newTestStore(t)
	buildWideTree(ft, 20, 1)

	for i := range 20 {
		id := fmt.Sprintf("f%d", i)
		seedFolder(t, s, id, id, id)
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	ft.hook = func(context.Context, nodeid.Identity) { cancel() }

	stats, err := NewUpdater(ft, s, testLogger(t)).Run(ctx, UpdaterConfig{Workers: 1})
	require.NoError(t, err)

	assert.True(t, stats.Canceled)
	assert.Equal(t, 1, ft.totalCalls())
	assert.Less(t, len(filePaths(t, s)), 20)
}

func TestUpdater_DefaultWorkers(t *testing.T) {
	t.Parallel()

	stats, err := NewUpdater(newFakeTree(), newTestStore(t), testLogger(t)).Run(t.Context(), UpdaterConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkers, stats.Workers)
}

func TestFolderQueue_LIFOAndDedup(t *testing.T) {
	t.Parallel()

	q := newFolderQueue(4)
	assert.True(t, q.push(queueItem{path: "a"}))
	assert.True(t, q.push(queueItem{path: "b"}))
	assert.False(t, q.push(queueItem{path: "a"}))
	assert.Equal(t, 2, q.len())

	item, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "b", item.path)

	item, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, "a", item.path)

	_, ok = q.pop()
	assert.False(t, ok)

	// A popped path stays claimed for the rest of the run.
	assert.False(t, q.push(queueItem{path: "a"}))
}
