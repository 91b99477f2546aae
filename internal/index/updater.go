package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/driveindex/driveindex/internal/metrics"
	"github.com/driveindex/driveindex/internal/nodeid"
	"github.com/driveindex/driveindex/internal/tree"
)

// DefaultWorkers is the updater pool size when none is configured.
const DefaultWorkers = 8

// maxRecordedErrors bounds the worker error slice kept for the run result.
const maxRecordedErrors = 100

// UpdaterConfig controls a single incremental update run.
type UpdaterConfig struct {
	// Workers is the number of concurrent workers. Values below 1 use
	// DefaultWorkers.
	Workers int

	// Root, when set, is also rescanned so new top-level entries are found.
	// The root has no row of its own.
	Root *nodeid.Identity

	// Recursive queues newly discovered folders in the same run, so whole
	// new subtrees are picked up. Off by default: a new folder's contents
	// wait for the next run.
	Recursive bool
}

// UpdateStats summarizes an incremental update run.
type UpdateStats struct {
	RunID         string        `json:"run_id"`
	Workers       int           `json:"workers"`
	Queued        int           `json:"queued"`
	Scanned       int           `json:"scanned"`
	Skipped       int           `json:"skipped"`
	NewFolders    int           `json:"new_folders"`
	NewFiles      int           `json:"new_files"`
	FailedWorkers int           `json:"failed_workers"`
	Canceled      bool          `json:"canceled"`
	Duration      time.Duration `json:"duration"`
}

// Updater rescans every folder already in the cache and inserts children it
// has not seen before. Existing rows are never modified or removed.
type Updater struct {
	lister TreeLister
	store  UpdateStore
	logger *slog.Logger

	nowFunc func() time.Time
}

// NewUpdater creates an Updater.
func NewUpdater(lister TreeLister, store UpdateStore, logger *slog.Logger) *Updater {
	return &Updater{
		lister:  lister,
		store:   store,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// updateRun holds the state shared by the workers of one Run call.
type updateRun struct {
	*Updater
	cfg   UpdaterConfig
	runID string
	queue *folderQueue

	scanned    atomic.Int64
	skipped    atomic.Int64
	newFolders atomic.Int64
	newFiles   atomic.Int64
	failed     atomic.Int64

	errs   []error
	errsMu sync.Mutex
	wg     sync.WaitGroup
}

// Run performs one incremental update. The folder list is snapshotted from
// the cache up front; workers pop folders until the queue is empty.
//
// A folder whose stored node cannot be decoded, or whose listing fails, is
// logged and skipped. A cache write failure stops the worker that hit it;
// the remaining workers keep draining the queue, and Run returns the joined
// worker errors once all have exited. Canceling ctx makes each worker stop
// after its current folder; that is reported as Canceled with a nil error.
func (u *Updater) Run(ctx context.Context, cfg UpdaterConfig) (UpdateStats, error) {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}

	start := u.nowFunc()
	stats := UpdateStats{RunID: uuid.NewString(), Workers: cfg.Workers}

	known, err := u.store.KnownFolders(ctx)
	if err != nil {
		if ctx.Err() != nil {
			stats.Canceled = true
			return stats, nil
		}

		metrics.RecordError(metrics.ErrorStorage)

		return stats, nodeErr(ErrStorage, "", fmt.Errorf("loading known folders: %w", err))
	}

	run := &updateRun{
		Updater: u,
		cfg:     cfg,
		runID:   stats.RunID,
		queue:   newFolderQueue(len(known) + 1),
	}

	if cfg.Root != nil {
		run.queue.push(queueItem{identity: *cfg.Root, resolved: true})
	}

	for _, kf := range known {
		if !run.queue.push(queueItem{path: kf.FullPath, node: kf.Node}) {
			u.logger.Warn("duplicate folder path in cache, scanning once",
				slog.String("path", kf.FullPath),
			)
		}
	}

	stats.Queued = run.queue.len()

	u.logger.Info("incremental update starting",
		slog.String("run_id", stats.RunID),
		slog.Int("folders", stats.Queued),
		slog.Int("workers", cfg.Workers),
		slog.Bool("recursive", cfg.Recursive),
	)

	for i := range cfg.Workers {
		run.wg.Add(1)

		go run.worker(ctx, i)
	}

	run.wg.Wait()

	stats.Scanned = int(run.scanned.Load())
	stats.Skipped = int(run.skipped.Load())
	stats.NewFolders = int(run.newFolders.Load())
	stats.NewFiles = int(run.newFiles.Load())
	stats.FailedWorkers = int(run.failed.Load())
	stats.Canceled = ctx.Err() != nil
	stats.Duration = u.nowFunc().Sub(start)

	run.errsMu.Lock()
	runErr := errors.Join(run.errs...)
	run.errsMu.Unlock()

	metrics.RecordRun(metrics.ModeIncremental, runErr == nil, stats.Duration)

	u.logger.Info("incremental update complete",
		slog.String("run_id", stats.RunID),
		slog.Int("scanned", stats.Scanned),
		slog.Int("skipped", stats.Skipped),
		slog.Int("new_folders", stats.NewFolders),
		slog.Int("new_files", stats.NewFiles),
		slog.Int("failed_workers", stats.FailedWorkers),
		slog.Bool("canceled", stats.Canceled),
		slog.Duration("duration", stats.Duration),
	)

	return stats, runErr
}

func (r *updateRun) worker(ctx context.Context, id int) {
	defer r.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		item, ok := r.queue.pop()
		if !ok {
			return
		}

		if err := r.safeScan(ctx, item); err != nil {
			r.recordFailure(err)
			r.logger.Error("update worker stopping",
				slog.Int("worker", id),
				slog.String("path", item.path),
				slog.String("error", err.Error()),
			)

			return
		}
	}
}

// safeScan wraps scanFolder with panic recovery so one bad folder cannot
// crash the process. A panic ends the worker like a storage failure.
func (r *updateRun) safeScan(ctx context.Context, item queueItem) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = nodeErr(ErrStorage, item.path, fmt.Errorf("panic: %v", p))
		}
	}()

	return r.scanFolder(ctx, item)
}

func (r *updateRun) recordFailure(err error) {
	r.failed.Add(1)

	r.errsMu.Lock()
	defer r.errsMu.Unlock()

	if len(r.errs) < maxRecordedErrors {
		r.errs = append(r.errs, err)
	}
}

// scanFolder lists one folder and inserts its unseen children. Only storage
// failures are returned; everything else is logged and skipped.
func (r *updateRun) scanFolder(ctx context.Context, item queueItem) error {
	identity := item.identity

	if !item.resolved {
		id, err := tree.DecodeIdentity(item.node)
		if err != nil {
			r.skipped.Add(1)
			metrics.RecordError(metrics.ErrorDecode)
			r.logger.Error("failed to decode stored folder",
				slog.String("run_id", r.runID),
				slog.String("path", item.path),
				slog.String("error", err.Error()),
			)

			return nil
		}

		identity = id
		item.identity = id
	}

	children, err := r.lister.ListChildren(ctx, identity)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}

		r.skipped.Add(1)
		metrics.RecordError(metrics.ErrorRemoteFetch)
		r.logger.Error("failed to list folder",
			slog.String("run_id", r.runID),
			slog.String("path", item.path),
			slog.String("error", err.Error()),
		)

		return nil
	}

	r.scanned.Add(1)
	metrics.RecordFolderScanned()

	for _, entry := range children {
		if ctx.Err() != nil {
			return nil
		}

		child, ok := tree.Resolve(entry, item.path, identity)
		if !ok {
			continue
		}

		if child.Kind == tree.KindFolder && item.descends(child.Identity.Key()) {
			r.skipped.Add(1)
			r.logger.Warn("skipping folder that resolves to one of its ancestors",
				slog.String("run_id", r.runID),
				slog.String("path", child.Path),
				slog.String("node", child.Identity.String()),
			)

			continue
		}

		if err := r.insertChild(ctx, item, child); err != nil {
			return err
		}
	}

	return nil
}

func (r *updateRun) insertChild(ctx context.Context, parent queueItem, child tree.Child) error {
	node, err := child.Encode()
	if err != nil {
		metrics.RecordError(metrics.ErrorDecode)
		r.logger.Warn("skipping child that cannot be encoded",
			slog.String("path", child.Path),
			slog.String("error", err.Error()),
		)

		return nil
	}

	var inserted bool

	switch child.Kind {
	case tree.KindFolder:
		inserted, err = r.store.InsertFolderIfAbsent(ctx, child.Path, child.Name, node)
	case tree.KindFile:
		inserted, err = r.store.InsertFileIfAbsent(ctx, child.Path, child.Name, node)
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil
		}

		metrics.RecordError(metrics.ErrorStorage)

		return nodeErr(ErrStorage, child.Path, err)
	}

	if !inserted {
		return nil
	}

	metrics.RecordDiscovered(child.Kind.String())

	if child.Kind == tree.KindFolder {
		r.newFolders.Add(1)
		r.logger.Info("new folder detected",
			slog.String("run_id", r.runID),
			slog.String("path", child.Path),
		)

		if r.cfg.Recursive {
			r.queue.push(queueItem{
				path:      child.Path,
				identity:  child.Identity,
				resolved:  true,
				ancestors: parent.childAncestors(),
			})
		}

		return nil
	}

	r.newFiles.Add(1)
	r.logger.Info("new file detected",
		slog.String("run_id", r.runID),
		slog.String("path", child.Path),
	)

	return nil
}
