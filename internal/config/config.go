// Package config implements TOML configuration loading, validation and
// platform-specific path resolution for driveindex. Values resolve through
// four layers: defaults, config file, environment, CLI flags.
package config

import "time"

// Config is the top-level configuration parsed from the TOML file.
type Config struct {
	Remote  RemoteConfig  `toml:"remote"`
	Index   IndexConfig   `toml:"index"`
	Logging LoggingConfig `toml:"logging"`
	Status  StatusConfig  `toml:"status"`
}

// RemoteConfig locates the remote drive API and the credentials for it.
type RemoteConfig struct {
	BaseURL           string  `toml:"base_url"`
	VolumeID          string  `toml:"volume_id"` // empty = first volume
	ShareID           string  `toml:"share_id"`  // empty = volume's main share
	TokenFile         string  `toml:"token_file"`
	ClientID          string  `toml:"client_id"`
	TokenURL          string  `toml:"token_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	Timeout           string  `toml:"timeout"`
	Websocket         bool    `toml:"websocket"`
}

// IndexConfig controls the cache database and the update worker pool.
type IndexConfig struct {
	DBPath         string `toml:"db_path"`
	Workers        int    `toml:"workers"`
	PollInterval   string `toml:"poll_interval"`
	Recursive      bool   `toml:"recursive"`
	ScanRoot       bool   `toml:"scan_root"`
	MaxConnections int    `toml:"max_connections"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`
}

// StatusConfig controls the HTTP status server started by watch. An empty
// listen address disables it.
type StatusConfig struct {
	ListenAddr string `toml:"listen_addr"`
	Token      string `toml:"token"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from an explicit zero value.
type CLIOverrides struct {
	ConfigPath string  // --config
	DBPath     *string // --db
	Workers    *int    // --workers
}

// PollIntervalDuration parses PollInterval. Validate guarantees it parses;
// the zero duration is returned otherwise.
func (c IndexConfig) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

// TimeoutDuration parses Timeout, returning zero for "0" or invalid input.
func (c RemoteConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}
