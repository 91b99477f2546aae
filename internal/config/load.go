package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads path if it exists and returns defaults otherwise, so
// driveindex runs without a config file when the environment supplies the
// base URL.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// ResolvePath picks the config file path: CLI > env > default.
func ResolvePath(env EnvOverrides, cli CLIOverrides) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns the resolved config and the path it was read from.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	cfgPath := ResolvePath(env, cli)

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	Apply(cfg, env, cli)

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("config validation: %w", err)
	}

	return cfg, cfgPath, nil
}

// Apply layers env and CLI overrides onto cfg and expands "~" in paths. It is
// also used when the watch command reloads the file.
func Apply(cfg *Config, env EnvOverrides, cli CLIOverrides) {
	if env.DBPath != "" {
		cfg.Index.DBPath = env.DBPath
	}

	if env.BaseURL != "" {
		cfg.Remote.BaseURL = env.BaseURL
	}

	if cli.DBPath != nil {
		cfg.Index.DBPath = *cli.DBPath
	}

	if cli.Workers != nil {
		cfg.Index.Workers = *cli.Workers
	}

	cfg.Index.DBPath = ExpandHome(cfg.Index.DBPath)
	cfg.Remote.TokenFile = ExpandHome(cfg.Remote.TokenFile)
	cfg.Logging.LogFile = ExpandHome(cfg.Logging.LogFile)
}
