package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// lockFilePerms allows other users to read the PID for "driveindex wake".
const lockFilePerms = 0o644

// Lock holder modes recorded on the second line of the lock file. Only a
// watch process handles SIGHUP.
const (
	lockModeIndex  = "index"
	lockModeUpdate = "update"
	lockModeWatch  = "watch"
)

// writePIDFile writes the current process ID and mode to path and holds an
// exclusive flock on it. The returned cleanup removes the file and releases
// the lock. Failing to lock means another driveindex process owns the cache.
func writePIDFile(path, mode string) (cleanup func(), err error) {
	if path == "" {
		return nil, errors.New("lock file path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dataDirPerms); err != nil {
		return nil, fmt.Errorf("creating lock file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePerms)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another driveindex process is already running on this cache (could not lock %s)", path)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()

		return nil, fmt.Errorf("truncating lock file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), mode); err != nil {
		f.Close()

		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()

		return nil, fmt.Errorf("syncing lock file: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// readPIDFile reads the PID and mode stored in a lock file. A file without a
// mode line reads as mode "".
func readPIDFile(path string) (pid int, mode string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", fmt.Errorf("reading lock file: %w", err)
	}

	first, rest, _ := strings.Cut(string(data), "\n")

	pid, err = strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, "", fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, strings.TrimSpace(rest), nil
}

// sendSIGHUP signals the watch process holding the lock file. A lock file
// left by a dead process is removed. A live holder that is not a watch
// process is never signaled: SIGHUP would terminate it.
func sendSIGHUP(path string) (int, error) {
	pid, mode, err := readPIDFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("no running watch process found (no lock file at %s)", path)
		}

		return 0, err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(path)

		return 0, fmt.Errorf("watch process (PID %d) is not running (stale lock file removed)", pid)
	}

	if mode != lockModeWatch {
		return 0, fmt.Errorf("PID %d holds the cache for %q, not watch; nothing to wake", pid, modeOrUnknown(mode))
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return 0, fmt.Errorf("sending SIGHUP to PID %d: %w", pid, err)
	}

	return pid, nil
}

func modeOrUnknown(mode string) string {
	if mode == "" {
		return "unknown"
	}

	return mode
}

func newWakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wake",
		Short: "Start an update in the running watch process now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			pid, err := sendSIGHUP(lockPath(cc.Cfg.Index.DBPath))
			if err != nil {
				return err
			}

			cc.Statusf("Woke watch process %d\n", pid)

			return nil
		},
	}
}
