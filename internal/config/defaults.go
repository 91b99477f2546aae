package config

// Layer 0 of the override chain.
const (
	defaultWorkers           = 8
	defaultPollInterval      = "5m"
	defaultMaxConnections    = 8
	defaultRequestsPerSecond = 10
	defaultBurst             = 10
	defaultTimeout           = "60s"
	defaultLogLevel          = "warn"
	defaultLogFormat         = "auto"
	defaultDBFileName        = "index.db"
	defaultTokenFileName     = "token.json"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			TokenFile:         DefaultTokenPath(),
			RequestsPerSecond: defaultRequestsPerSecond,
			Burst:             defaultBurst,
			Timeout:           defaultTimeout,
			Websocket:         true,
		},
		Index: IndexConfig{
			DBPath:         DefaultDBPath(),
			Workers:        defaultWorkers,
			PollInterval:   defaultPollInterval,
			ScanRoot:       true,
			MaxConnections: defaultMaxConnections,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
