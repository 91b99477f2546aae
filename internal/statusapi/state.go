// Package statusapi serves health, metrics and read-only cache queries over
// HTTP for a running watch process.
package statusapi

import (
	"sync"
	"time"

	"github.com/driveindex/driveindex/internal/cache"
	"github.com/driveindex/driveindex/internal/index"
)

// State is the process state exposed by /api/status. Safe for concurrent use.
type State struct {
	mu        sync.RWMutex
	startedAt time.Time
	marker    cache.Marker
	lastRun   *index.UpdateStats
	lastErr   string
	runs      int
}

// NewState creates a State with the given start time and marker.
func NewState(startedAt time.Time, marker cache.Marker) *State {
	return &State{startedAt: startedAt, marker: marker}
}

// RecordRun stores the outcome of an update run. Its signature matches
// index.Scheduler.OnRun.
func (s *State) RecordRun(stats index.UpdateStats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs++
	s.lastRun = &stats
	s.lastErr = ""

	if err != nil {
		s.lastErr = err.Error()
	}
}

// SetMarker replaces the stored marker.
func (s *State) SetMarker(m cache.Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.marker = m
}

// Snapshot is the JSON body of /api/status.
type Snapshot struct {
	Counts    cache.Counts       `json:"counts"`
	Marker    cache.Marker       `json:"marker"`
	StartedAt time.Time          `json:"started_at"`
	Runs      int                `json:"runs"`
	LastRun   *index.UpdateStats `json:"last_run,omitempty"`
	LastError string             `json:"last_error,omitempty"`
}

func (s *State) snapshot(counts cache.Counts) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Counts:    counts,
		Marker:    s.marker,
		StartedAt: s.startedAt,
		Runs:      s.runs,
		LastError: s.lastErr,
	}

	if s.lastRun != nil {
		run := *s.lastRun
		snap.LastRun = &run
	}

	return snap
}
