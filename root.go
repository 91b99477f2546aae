package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/driveindex/driveindex/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// logFilePerms matches the token and config files: owner read/write.
const logFilePerms = 0o600

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	DBPath     string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext is built once by the root pre-run and shared by every
// subcommand through the command context.
type CLIContext struct {
	Flags     CLIFlags
	Env       config.EnvOverrides
	Overrides config.CLIOverrides
	Cfg       *config.Config
	CfgPath   string
	Logger    *slog.Logger

	stdout   io.Writer
	stderr   io.Writer
	closeLog func() error
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run. A missing
// context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("cli context not initialized")
	}

	return cc
}

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "driveindex",
		Short: "Local SQLite index of a remote drive",
		Long: `driveindex mirrors the folder tree of a remote drive into a local SQLite cache.

Run "driveindex index" once for a full traversal, then "driveindex update" or
"driveindex watch" to pick up new files and folders.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd, flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			cc, ok := cmd.Context().Value(cliContextKey{}).(*CLIContext)
			if !ok || cc.closeLog == nil {
				return nil
			}

			return cc.closeLog()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.DBPath, "db", "", "cache database path")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "log informational messages")
	pf.BoolVar(&flags.Debug, "debug", false, "log debug messages")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "only log errors and suppress progress output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(
		newIndexCmd(),
		newUpdateCmd(),
		newWatchCmd(),
		newWakeCmd(),
		newFindCmd(),
		newLsCmd(),
		newStatusCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newConfigCmd(),
	)

	return cmd
}

// newCLIContext loads .env, resolves the configuration and builds the logger.
func newCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	// A .env file in the working directory is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	env := config.ReadEnvOverrides()
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Flags().Changed("db") {
		cli.DBPath = &flags.DBPath
	}

	if cmd.Flags().Changed("workers") {
		workers, err := cmd.Flags().GetInt("workers")
		if err != nil {
			return nil, err
		}

		cli.Workers = &workers
	}

	cfg, cfgPath, err := config.Resolve(env, cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cc := &CLIContext{
		Flags:     flags,
		Env:       env,
		Overrides: cli,
		Cfg:       cfg,
		CfgPath:   cfgPath,
		stdout:    cmd.OutOrStdout(),
		stderr:    cmd.ErrOrStderr(),
	}

	logOut := cc.stderr

	if cfg.Logging.LogFile != "" {
		f, err := os.OpenFile(cfg.Logging.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerms)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}

		logOut = f
		cc.closeLog = f.Close
	}

	cc.Logger = buildLogger(logOut, cfg.Logging, flags)

	return cc, nil
}

// buildLogger creates the process logger. The config file sets the baseline
// level; --verbose, --debug and --quiet override it.
func buildLogger(w io.Writer, lc config.LoggingConfig, flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn

	switch lc.LogLevel {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelInfo:
		level = slog.LevelInfo
	case config.LogLevelError:
		level = slog.LevelError
	}

	switch {
	case flags.Debug:
		level = slog.LevelDebug
	case flags.Verbose:
		level = slog.LevelInfo
	case flags.Quiet:
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if useJSONLogs(w, lc.LogFormat) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// useJSONLogs resolves the "auto" format: text on a terminal, JSON otherwise.
func useJSONLogs(w io.Writer, format string) bool {
	switch format {
	case config.LogFormatJSON:
		return true
	case config.LogFormatText:
		return false
	default:
		return !isTerminal(w)
	}
}

// isTerminal reports whether w is a file attached to a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
