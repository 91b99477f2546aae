package index

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is the time between scheduled updates when none is set.
const DefaultInterval = 5 * time.Minute

// SchedulerConfig is read before every run, so a reloaded config file takes
// effect on the next cycle.
type SchedulerConfig struct {
	Interval time.Duration
	Update   UpdaterConfig
}

// Waker coalesces wake-up requests: any number of Wake calls between two
// runs trigger a single early run.
type Waker struct {
	ch chan struct{}
}

// NewWaker creates a Waker.
func NewWaker() *Waker {
	return &Waker{ch: make(chan struct{}, 1)}
}

// Wake requests an early run. Never blocks.
func (w *Waker) Wake() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// C returns the channel the scheduler waits on.
func (w *Waker) C() <-chan struct{} {
	return w.ch
}

// Scheduler runs the updater repeatedly until its context is canceled.
type Scheduler struct {
	updater *Updater
	config  func() SchedulerConfig
	wake    <-chan struct{}
	logger  *slog.Logger

	// OnRun, if set, is called after every run.
	OnRun func(UpdateStats, error)
}

// NewScheduler creates a Scheduler. wake may be nil, in which case runs are
// driven by the interval alone.
func NewScheduler(updater *Updater, config func() SchedulerConfig, wake <-chan struct{}, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		updater: updater,
		config:  config,
		wake:    wake,
		logger:  logger,
	}
}

// Run blocks, running one update immediately and then one per interval or
// wake-up. A failed run is logged and the loop continues. Returns nil when
// ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		cfg := s.config()

		interval := cfg.Interval
		if interval <= 0 {
			interval = DefaultInterval
		}

		stats, err := s.updater.Run(ctx, cfg.Update)
		if err != nil {
			s.logger.Error("scheduled update failed",
				slog.String("run_id", stats.RunID),
				slog.String("error", err.Error()),
			)
		}

		if s.OnRun != nil {
			s.OnRun(stats, err)
		}

		if ctx.Err() != nil {
			return nil
		}

		s.logger.Debug("next update scheduled", slog.Duration("interval", interval))

		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
			s.logger.Debug("update woken early")
		}
	}
}
