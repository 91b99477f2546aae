package config

import (
	"fmt"
	"sync/atomic"
)

// Holder publishes the active *Config to the watch scheduler. Each run reads
// the current snapshot, so a reload applies from the next run on.
type Holder struct {
	cfg  atomic.Pointer[Config]
	path string
}

// NewHolder creates a Holder with the initial config and its file path.
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cfg.Store(cfg)

	return h
}

// Config returns the current snapshot. Callers must not mutate it.
func (h *Holder) Config() *Config {
	return h.cfg.Load()
}

// Path returns the config file path.
func (h *Holder) Path() string {
	return h.path
}

// Swap installs cfg and returns the config it replaced.
func (h *Holder) Swap(cfg *Config) *Config {
	return h.cfg.Swap(cfg)
}

// ReloadDiff describes what a reload changed. Live keys take effect on the
// next update run; Restart keys are read once at startup.
type ReloadDiff struct {
	Live    []string
	Restart []string
}

// Diff compares two configs by the keys a running watch process can and
// cannot pick up.
func Diff(prev, next *Config) ReloadDiff {
	var d ReloadDiff

	live := func(key string, a, b any) {
		if a != b {
			d.Live = append(d.Live, fmt.Sprintf("%s: %v -> %v", key, a, b))
		}
	}

	live("index.workers", prev.Index.Workers, next.Index.Workers)
	live("index.poll_interval", prev.Index.PollInterval, next.Index.PollInterval)
	live("index.recursive", prev.Index.Recursive, next.Index.Recursive)
	live("index.scan_root", prev.Index.ScanRoot, next.Index.ScanRoot)

	if prev.Index.DBPath != next.Index.DBPath {
		d.Restart = append(d.Restart, "index.db_path")
	}

	if prev.Index.MaxConnections != next.Index.MaxConnections {
		d.Restart = append(d.Restart, "index.max_connections")
	}

	if prev.Remote != next.Remote {
		d.Restart = append(d.Restart, "remote")
	}

	if prev.Logging != next.Logging {
		d.Restart = append(d.Restart, "logging")
	}

	if prev.Status != next.Status {
		d.Restart = append(d.Restart, "status")
	}

	return d
}
