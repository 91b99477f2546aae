package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveindex/driveindex/internal/index"
)

// Not parallel: the signal is delivered to the whole test process.
func TestShutdownContext_FirstSignalCancels(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx := shutdownContext(parent, slog.New(slog.DiscardHandler))

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of SIGINT")
	}
}

func TestShutdownContext_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx := shutdownContext(parent, slog.New(slog.DiscardHandler))

	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of parent cancel")
	}
}

// Not parallel: SIGHUP goes to the whole test process.
func TestWakeOnSIGHUP_WakeReachesWatchProcess(t *testing.T) {
	waker := index.NewWaker()
	stop := wakeOnSIGHUP(t.Context(), waker, slog.New(slog.DiscardHandler))
	defer stop()

	path := filepath.Join(t.TempDir(), "index.db.lock")

	cleanup, err := writePIDFile(path, lockModeWatch)
	require.NoError(t, err)

	defer cleanup()

	pid, err := sendSIGHUP(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	select {
	case <-waker.C():
	case <-time.After(2 * time.Second):
		t.Fatal("SIGHUP did not wake the scheduler within 2 seconds")
	}
}
