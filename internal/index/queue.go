package index

import (
	"slices"
	"sync"

	"github.com/driveindex/driveindex/internal/nodeid"
)

// queueItem is one folder to rescan. Items seeded from the cache carry the
// stored node blob and are decoded by the worker; items for the root or for
// folders discovered during a recursive run carry a resolved identity.
type queueItem struct {
	path     string
	node     []byte
	identity nodeid.Identity
	resolved bool

	// ancestors holds the identity keys above a folder discovered in this
	// run, so recursive scanning never re-enters a folder it came from.
	ancestors []string
}

// descends reports whether key names item's own folder or one it was
// reached through.
func (item queueItem) descends(key string) bool {
	return key == item.identity.Key() || slices.Contains(item.ancestors, key)
}

// childAncestors returns the ancestor chain for a folder found below item.
func (item queueItem) childAncestors() []string {
	return append(slices.Clip(item.ancestors), item.identity.Key())
}

// folderQueue is a mutex-guarded LIFO stack shared by the updater workers.
// Each pop hands the item to exactly one worker.
type folderQueue struct {
	mu    sync.Mutex
	items []queueItem
	seen  map[string]struct{}
}

func newFolderQueue(capacity int) *folderQueue {
	return &folderQueue{
		items: make([]queueItem, 0, capacity),
		seen:  make(map[string]struct{}, capacity),
	}
}

// push adds item unless an item with the same path was queued before in this
// run. Reports whether the item was added.
func (q *folderQueue) push(item queueItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.seen[item.path]; dup {
		return false
	}

	q.seen[item.path] = struct{}{}
	q.items = append(q.items, item)

	return true
}

func (q *folderQueue) pop() (queueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if n == 0 {
		return queueItem{}, false
	}

	item := q.items[n-1]
	q.items[n-1] = queueItem{}
	q.items = q.items[:n-1]

	return item, true
}

func (q *folderQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
