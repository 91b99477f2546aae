package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driveindex/driveindex/internal/cache"
	"github.com/driveindex/driveindex/internal/tokenfile"
)

// Token state constants for status reporting.
const (
	tokenStateMissing = "missing"
	tokenStateExpired = "expired"
	tokenStateValid   = "valid"
	tokenStateEnv     = "environment"
)

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	ConfigPath string        `json:"config_path"`
	DBPath     string        `json:"db_path"`
	BaseURL    string        `json:"base_url,omitempty"`
	Account    string        `json:"account,omitempty"`
	TokenState string        `json:"token_state"`
	Expiry     string        `json:"token_expiry,omitempty"`
	Indexed    bool          `json:"indexed"`
	Marker     *cache.Marker `json:"marker,omitempty"`
	Counts     *cache.Counts `json:"counts,omitempty"`
	WatchPID   int           `json:"watch_pid,omitempty"`
	LockPID    int           `json:"lock_pid,omitempty"`
	LockMode   string        `json:"lock_mode,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache, credential and watch process state",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	out, err := buildStatus(cmd.Context(), cc)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.stdout, out)
	}

	printStatusText(cc, out)

	return nil
}

func buildStatus(ctx context.Context, cc *CLIContext) (statusOutput, error) {
	out := statusOutput{
		ConfigPath: cc.CfgPath,
		DBPath:     cc.Cfg.Index.DBPath,
		BaseURL:    cc.Cfg.Remote.BaseURL,
	}

	out.TokenState, out.Account, out.Expiry = tokenState(cc, time.Now())

	marker, err := cache.ReadMarker(cache.MarkerPath(out.DBPath))
	if err != nil {
		return out, err
	}

	if marker.InitialIndex {
		out.Indexed = true
		out.Marker = &marker
	}

	// Opening the store would create an empty database; only count rows of
	// one that exists.
	if _, err := os.Stat(out.DBPath); err == nil {
		store, err := openStore(ctx, cc)
		if err != nil {
			return out, err
		}
		defer store.Close()

		counts, err := store.Counts(ctx)
		if err != nil {
			return out, err
		}

		out.Counts = &counts
	} else if !errors.Is(err, fs.ErrNotExist) {
		return out, fmt.Errorf("checking database: %w", err)
	}

	out.LockPID, out.LockMode = runningPID(lockPath(out.DBPath))
	if out.LockMode == lockModeWatch {
		out.WatchPID = out.LockPID
	}

	return out, nil
}

// tokenState reports how requests would authenticate and the saved account.
func tokenState(cc *CLIContext, now time.Time) (state, account, expiry string) {
	if cc.Env.Token != "" {
		return tokenStateEnv, "", ""
	}

	tok, meta, err := tokenfile.Load(cc.Cfg.Remote.TokenFile)
	if err != nil || tok == nil {
		return tokenStateMissing, "", ""
	}

	account = meta[tokenfile.MetaAccount]
	expiry = expirySummary(tok, now)

	// A refresh token can renew an expired access token.
	if !tok.Expiry.IsZero() && tok.Expiry.Before(now) && tok.RefreshToken == "" {
		return tokenStateExpired, account, expiry
	}

	return tokenStateValid, account, expiry
}

// runningPID returns the PID and mode in the lock file if that process is
// alive.
func runningPID(path string) (int, string) {
	pid, mode, err := readPIDFile(path)
	if err != nil {
		return 0, ""
	}

	proc, err := os.FindProcess(pid)
	if err != nil || proc.Signal(syscall.Signal(0)) != nil {
		return 0, ""
	}

	return pid, mode
}

func printStatusText(cc *CLIContext, s statusOutput) {
	w := cc.stdout

	fmt.Fprintf(w, "Config:   %s\n", s.ConfigPath)
	fmt.Fprintf(w, "Database: %s\n", s.DBPath)

	if s.BaseURL != "" {
		fmt.Fprintf(w, "Remote:   %s\n", s.BaseURL)
	}

	token := s.TokenState
	if s.Account != "" {
		token += " (" + s.Account + ")"
	}

	if s.Expiry != "" {
		token += ", " + s.Expiry
	}

	fmt.Fprintf(w, "Token:    %s\n", token)

	switch {
	case s.Marker != nil:
		fmt.Fprintf(w, "Indexed:  %s (%d folders, %d files)\n",
			s.Marker.CompletedAt.Local().Format(time.RFC3339), s.Marker.Folders, s.Marker.Files)
	default:
		fmt.Fprintf(w, "Indexed:  no, run 'driveindex index'\n")
	}

	if s.Counts != nil {
		fmt.Fprintf(w, "Cached:   %d folders, %d files\n", s.Counts.Folders, s.Counts.Files)
	}

	switch {
	case s.WatchPID != 0:
		fmt.Fprintf(w, "Watch:    running (PID %d)\n", s.WatchPID)
	case s.LockPID != 0:
		fmt.Fprintf(w, "Watch:    not running (%s in progress, PID %d)\n", modeOrUnknown(s.LockMode), s.LockPID)
	default:
		fmt.Fprintf(w, "Watch:    not running\n")
	}
}
