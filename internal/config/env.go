package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "DRIVEINDEX_CONFIG"
	EnvDB      = "DRIVEINDEX_DB"
	EnvToken   = "DRIVEINDEX_TOKEN"
	EnvBaseURL = "DRIVEINDEX_BASE_URL"
)

// EnvOverrides holds values read from the environment.
type EnvOverrides struct {
	ConfigPath string // DRIVEINDEX_CONFIG: config file path
	DBPath     string // DRIVEINDEX_DB: cache database path
	Token      string // DRIVEINDEX_TOKEN: static bearer token, bypasses the token file
	BaseURL    string // DRIVEINDEX_BASE_URL: API root
}

// ReadEnvOverrides reads the override variables. It does not touch Config.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DBPath:     os.Getenv(EnvDB),
		Token:      os.Getenv(EnvToken),
		BaseURL:    os.Getenv(EnvBaseURL),
	}
}
