package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 200 * time.Millisecond

// ReloadFunc loads a fresh config from path.
type ReloadFunc func(path string) (*Config, error)

// Watch reloads the config file held by h whenever it changes, until ctx is
// canceled. The parent directory is watched so editors that replace the file
// by rename are seen. A file that fails to load keeps the previous config in
// place. onChange (if non-nil) runs after each successful swap.
func Watch(ctx context.Context, h *Holder, reload ReloadFunc, logger *slog.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer w.Close()

	path := filepath.Clean(h.Path())
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watching %s: %w", filepath.Dir(path), err)
	}

	logger.Debug("config watcher started", slog.String("path", path))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerCh = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case <-timerCh:
			cfg, err := reload(path)
			if err != nil {
				logger.Warn("config reload failed, keeping previous config",
					slog.String("path", path), slog.String("error", err.Error()))

				continue
			}

			diff := Diff(h.Swap(cfg), cfg)
			logger.Info("config reloaded",
				slog.String("path", path),
				slog.Any("applied", diff.Live),
			)

			if len(diff.Restart) > 0 {
				logger.Warn("config changes need a restart to apply",
					slog.Any("sections", diff.Restart))
			}

			if onChange != nil {
				onChange(cfg)
			}

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", werr.Error()))
		}
	}
}
