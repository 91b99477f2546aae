package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/driveindex/driveindex/internal/cache"
	"github.com/driveindex/driveindex/internal/config"
	"github.com/driveindex/driveindex/internal/index"
	"github.com/driveindex/driveindex/internal/statusapi"
)

// eventsReconnectDelay is the pause before resubscribing after the event
// stream drops.
const eventsReconnectDelay = 30 * time.Second

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the cache current until interrupted",
		Long: `Run incremental updates on a timer until interrupted.

An update also starts early when the remote reports a change over its event
stream or when "driveindex wake" is run. If the cache has never been fully
indexed, a full index runs first. When status.listen_addr is set, an HTTP
server exposes health, metrics and read-only queries.

The config file is watched and changes to the poll interval, worker count and
update mode apply from the next run.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	cmd.Flags().Duration("interval", 0, "time between updates (overrides index.poll_interval)")
	cmd.Flags().Int("workers", index.DefaultWorkers, "number of concurrent workers")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	interval, err := cmd.Flags().GetDuration("interval")
	if err != nil {
		return err
	}

	// SIGHUP from "driveindex wake" must never hit the default action, which
	// terminates the process. Catch it before the lock names this process
	// as the watcher, including during an initial full index.
	waker := index.NewWaker()
	stopHUP := wakeOnSIGHUP(ctx, waker, cc.Logger)
	defer stopHUP()

	sess, err := openSession(ctx, cc, lockModeWatch)
	if err != nil {
		return err
	}
	defer sess.Close()

	markerPath := cache.MarkerPath(cc.Cfg.Index.DBPath)

	marker, err := cache.ReadMarker(markerPath)
	if err != nil {
		return err
	}

	if !marker.InitialIndex {
		if err := runFullIndex(ctx, cc, sess, markerPath); err != nil {
			return err
		}

		if marker, err = cache.ReadMarker(markerPath); err != nil {
			return err
		}
	}

	holder := config.NewHolder(cc.Cfg, cc.CfgPath)
	state := statusapi.NewState(time.Now().UTC(), marker)

	sched := index.NewScheduler(index.NewUpdater(sess.client, sess.store, cc.Logger),
		func() index.SchedulerConfig {
			return schedulerConfig(holder.Config(), sess, interval)
		}, waker.C(), cc.Logger)
	sched.OnRun = state.RecordRun

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(gctx) })

	g.Go(func() error {
		return config.Watch(gctx, holder, reloadConfig(cc), cc.Logger, nil)
	})

	if cc.Cfg.Remote.Websocket {
		g.Go(func() error {
			wakeOnEvents(gctx, sess, waker, cc.Logger)
			return nil
		})
	}

	if addr := cc.Cfg.Status.ListenAddr; addr != "" {
		router := statusapi.NewRouter(sess.store, state, cc.Cfg.Status.Token, cc.Logger)
		g.Go(func() error { return statusapi.Serve(gctx, addr, router, cc.Logger) })
	}

	cc.Statusf("Watching %s (Ctrl-C to stop)\n", sess.root)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// schedulerConfig derives the per-run settings from the current config. A
// non-zero interval flag wins over the file.
func schedulerConfig(cfg *config.Config, sess *session, interval time.Duration) index.SchedulerConfig {
	if interval <= 0 {
		interval = cfg.Index.PollIntervalDuration()
	}

	up := index.UpdaterConfig{
		Workers:   cfg.Index.Workers,
		Recursive: cfg.Index.Recursive,
	}

	if cfg.Index.ScanRoot {
		root := sess.root
		up.Root = &root
	}

	return index.SchedulerConfig{Interval: interval, Update: up}
}

// reloadConfig re-reads the file and re-applies env and CLI overrides.
func reloadConfig(cc *CLIContext) config.ReloadFunc {
	return func(path string) (*config.Config, error) {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}

		config.Apply(cfg, cc.Env, cc.Overrides)

		if err := config.Validate(cfg); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}

		return cfg, nil
	}
}

// wakeOnSIGHUP triggers an update for every SIGHUP until ctx is canceled or
// stop is called. The handler is installed before it returns.
func wakeOnSIGHUP(ctx context.Context, waker *index.Waker, logger *slog.Logger) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-sigCh:
				logger.Info("received SIGHUP, starting update")
				waker.Wake()
			}
		}
	}()

	return func() {
		close(done)
		<-exited
		signal.Stop(sigCh)
	}
}

// wakeOnEvents subscribes to the root volume's change events and wakes the
// scheduler for each. A dropped stream is resubscribed after a delay.
func wakeOnEvents(ctx context.Context, sess *session, waker *index.Waker, logger *slog.Logger) {
	for {
		events, err := sess.client.Events(ctx, sess.root.VolumeID)
		if err != nil {
			logger.Warn("event subscription failed, relying on polling",
				slog.String("error", err.Error()))
		} else {
			for ev := range events {
				logger.Debug("remote change event",
					slog.String("type", ev.Type),
					slog.String("node_id", ev.NodeID),
				)
				waker.Wake()
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(eventsReconnectDelay):
		}
	}
}
