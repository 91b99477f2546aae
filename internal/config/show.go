package config

import (
	"fmt"
	"io"
)

// redacted replaces secrets in rendered output.
const redacted = "********"

// RenderEffective writes the resolved configuration as annotated TOML to w.
// This powers "config show". Secrets are masked.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)

	renderRemoteSection(ew, &cfg.Remote)
	renderIndexSection(ew, &cfg.Index)
	renderLoggingSection(ew, &cfg.Logging)
	renderStatusSection(ew, &cfg.Status)

	return ew.err
}

// errWriter wraps an io.Writer and keeps the first write error; later
// writes are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderRemoteSection(ew *errWriter, r *RemoteConfig) {
	ew.printf("[remote]\n")
	ew.printf("base_url            = %q\n", r.BaseURL)

	if r.VolumeID != "" {
		ew.printf("volume_id           = %q\n", r.VolumeID)
	}

	if r.ShareID != "" {
		ew.printf("share_id            = %q\n", r.ShareID)
	}

	ew.printf("token_file          = %q\n", r.TokenFile)

	if r.ClientID != "" {
		ew.printf("client_id           = %q\n", r.ClientID)
		ew.printf("token_url           = %q\n", r.TokenURL)
	}

	ew.printf("requests_per_second = %g\n", r.RequestsPerSecond)
	ew.printf("burst               = %d\n", r.Burst)
	ew.printf("timeout             = %q\n", r.Timeout)
	ew.printf("websocket           = %t\n\n", r.Websocket)
}

func renderIndexSection(ew *errWriter, i *IndexConfig) {
	ew.printf("[index]\n")
	ew.printf("db_path         = %q\n", i.DBPath)
	ew.printf("workers         = %d\n", i.Workers)
	ew.printf("poll_interval   = %q\n", i.PollInterval)
	ew.printf("recursive       = %t\n", i.Recursive)
	ew.printf("scan_root       = %t\n", i.ScanRoot)
	ew.printf("max_connections = %d\n\n", i.MaxConnections)
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("log_level  = %q\n", l.LogLevel)
	ew.printf("log_format = %q\n", l.LogFormat)

	if l.LogFile != "" {
		ew.printf("log_file   = %q\n", l.LogFile)
	}

	ew.printf("\n")
}

func renderStatusSection(ew *errWriter, s *StatusConfig) {
	ew.printf("[status]\n")
	ew.printf("listen_addr = %q\n", s.ListenAddr)

	if s.Token != "" {
		ew.printf("token       = %q\n", redacted)
	}
}
