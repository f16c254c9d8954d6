package engine

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
)

// LookupTableName is the table file the simulator expects next to its binary.
const LookupTableName = "lookup_tablev3.bin"

const (
	DefaultStartupTimeout   = 5 * time.Second
	DefaultReadTimeout      = 5 * time.Second
	DefaultReadAttempts     = 3
	DefaultRetryBackoff     = 10 * time.Millisecond
	DefaultExitGrace        = 2 * time.Second
	DefaultLegacyTimeout    = 60 * time.Second
	DefaultMaxOwedResponses = 2
)

// Config controls how the simulator process is found, started and read.
type Config struct {
	Executable  string
	LookupTable string
	// Env is appended to the current environment of every simulator process.
	Env []string

	StartupTimeout time.Duration
	// ReadTimeout bounds one response read across all attempts.
	ReadTimeout  time.Duration
	ReadAttempts int
	RetryBackoff time.Duration
	ExitGrace    time.Duration

	LegacyTimeout time.Duration

	// MaxOwedResponses is how many timed-out requests may still have a
	// response in flight before the daemon is abandoned.
	MaxOwedResponses int
}

func DefaultConfig() Config {
	return Config{
		StartupTimeout:   DefaultStartupTimeout,
		ReadTimeout:      DefaultReadTimeout,
		ReadAttempts:     DefaultReadAttempts,
		RetryBackoff:     DefaultRetryBackoff,
		ExitGrace:        DefaultExitGrace,
		LegacyTimeout:    DefaultLegacyTimeout,
		MaxOwedResponses: DefaultMaxOwedResponses,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StartupTimeout == 0 {
		c.StartupTimeout = d.StartupTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.ReadAttempts == 0 {
		c.ReadAttempts = d.ReadAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.ExitGrace == 0 {
		c.ExitGrace = d.ExitGrace
	}
	if c.LegacyTimeout == 0 {
		c.LegacyTimeout = d.LegacyTimeout
	}
	if c.MaxOwedResponses == 0 {
		c.MaxOwedResponses = d.MaxOwedResponses
	}
	if c.LookupTable == "" && c.Executable != "" {
		c.LookupTable = filepath.Join(filepath.Dir(c.Executable), LookupTableName)
	}
	return c
}

func (c Config) Validate() error {
	var errs error
	if c.StartupTimeout < 0 {
		errs = multierr.Append(errs, fmt.Errorf("startup timeout must be positive, got %s", c.StartupTimeout))
	}
	if c.ReadTimeout < 0 {
		errs = multierr.Append(errs, fmt.Errorf("read timeout must be positive, got %s", c.ReadTimeout))
	}
	if c.ReadAttempts < 0 {
		errs = multierr.Append(errs, fmt.Errorf("read attempts must be positive, got %d", c.ReadAttempts))
	}
	if c.RetryBackoff < 0 {
		errs = multierr.Append(errs, fmt.Errorf("retry backoff must not be negative, got %s", c.RetryBackoff))
	}
	if c.ExitGrace < 0 {
		errs = multierr.Append(errs, fmt.Errorf("exit grace must not be negative, got %s", c.ExitGrace))
	}
	if c.LegacyTimeout < 0 {
		errs = multierr.Append(errs, fmt.Errorf("legacy timeout must be positive, got %s", c.LegacyTimeout))
	}
	if c.MaxOwedResponses < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max owed responses must not be negative, got %d", c.MaxOwedResponses))
	}
	return errs
}
