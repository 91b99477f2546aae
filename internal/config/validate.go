package config

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Validation bounds.
const (
	minWorkers        = 1
	maxWorkers        = 256
	minConnections    = 1
	maxConnections    = 64
	minPollInterval   = 10 * time.Second
	maxRequestsPerSec = 1000
)

// Log levels and formats accepted by the logging section.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Field errors name the TOML key the user wrote.
func init() {
	validation.ErrorTag = "toml"
}

// Validate checks every section and returns all errors found, so users can
// fix a config file in one pass.
func Validate(cfg *Config) error {
	var errs []error

	if err := cfg.Remote.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("remote: %w", err))
	}

	if err := cfg.Index.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("index: %w", err))
	}

	if err := cfg.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := cfg.Status.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("status: %w", err))
	}

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only hold once the override chain
// has been applied. A config file may leave base_url to the environment, but
// a command that talks to the remote cannot.
func ValidateResolved(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	return validation.ValidateStruct(&cfg.Remote,
		validation.Field(&cfg.Remote.BaseURL, validation.Required.Error("base_url is required")),
	)
}

// Validate validates the remote section.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.TokenURL, is.URL),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0), validation.Max(float64(maxRequestsPerSec))),
		validation.Field(&c.Burst, validation.Min(0)),
		validation.Field(&c.Timeout, validation.By(durationRule(0))),
	)
}

// Validate validates the index section.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DBPath, validation.Required),
		validation.Field(&c.Workers, validation.Min(minWorkers), validation.Max(maxWorkers)),
		validation.Field(&c.PollInterval, validation.Required, validation.By(durationRule(minPollInterval))),
		validation.Field(&c.MaxConnections, validation.Min(minConnections), validation.Max(maxConnections)),
	)
}

// Validate validates the logging section.
func (c *LoggingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError)),
		validation.Field(&c.LogFormat, validation.In(LogFormatAuto, LogFormatText, LogFormatJSON)),
	)
}

// Validate validates the status section. A token without a listen address
// is almost certainly a mistake.
func (c *StatusConfig) Validate() error {
	if c.ListenAddr == "" && c.Token != "" {
		return errors.New("token is set but listen_addr is empty")
	}

	return nil
}

// durationRule accepts an empty string or a Go duration of at least lowest.
func durationRule(lowest time.Duration) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}

		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q", s)
		}

		if d < lowest {
			return fmt.Errorf("must be at least %s", lowest)
		}

		return nil
	}
}
