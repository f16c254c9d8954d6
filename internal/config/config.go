// Package config loads advisor settings from defaults, an optional TOML
// file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/AkatukiSora/vrpoker-advisor/internal/analysis"
	"github.com/AkatukiSora/vrpoker-advisor/internal/engine"
	"github.com/AkatukiSora/vrpoker-advisor/internal/handeval"
)

// Environment overrides.
const (
	EnvSimExe     = "VRPOKER_SIM_EXE"
	EnvSimTable   = "VRPOKER_SIM_TABLE"
	EnvDB         = "VRPOKER_DB"
	EnvFeed       = "VRPOKER_FEED"
	EnvIterations = "VRPOKER_ITERATIONS"
	EnvDebug      = "VRPOKER_DEBUG"
)

const (
	DefaultResultCacheSize = 256
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultEnvFile         = ".env"
)

type Config struct {
	Debug     bool            `toml:"debug"`
	Simulator SimulatorConfig `toml:"simulator"`
	Analysis  AnalysisConfig  `toml:"analysis"`
	Storage   StorageConfig   `toml:"storage"`
	Feed      FeedConfig      `toml:"feed"`
}

type SimulatorConfig struct {
	Executable       string        `toml:"executable"`
	LookupTable      string        `toml:"lookup_table"`
	Env              []string      `toml:"env"`
	StartupTimeout   time.Duration `toml:"startup_timeout"`
	ReadTimeout      time.Duration `toml:"read_timeout"`
	ReadAttempts     int           `toml:"read_attempts"`
	RetryBackoff     time.Duration `toml:"retry_backoff"`
	ExitGrace        time.Duration `toml:"exit_grace"`
	LegacyTimeout    time.Duration `toml:"legacy_timeout"`
	MaxOwedResponses int           `toml:"max_owed_responses"`
}

type AnalysisConfig struct {
	Iterations      int `toml:"iterations"`
	ResultCacheSize int `toml:"result_cache_size"`
	EvalCacheSize   int `toml:"eval_cache_size"`
}

type StorageConfig struct {
	// Path of the SQLite database. Empty keeps session stats in memory.
	Path string `toml:"path"`
}

type FeedConfig struct {
	Path         string        `toml:"path"`
	PollInterval time.Duration `toml:"poll_interval"`
	// Resume continues from the stored cursor instead of the end of file.
	Resume bool `toml:"resume"`
}

func Default() Config {
	ec := engine.DefaultConfig()
	return Config{
		Simulator: SimulatorConfig{
			StartupTimeout:   ec.StartupTimeout,
			ReadTimeout:      ec.ReadTimeout,
			ReadAttempts:     ec.ReadAttempts,
			RetryBackoff:     ec.RetryBackoff,
			ExitGrace:        ec.ExitGrace,
			LegacyTimeout:    ec.LegacyTimeout,
			MaxOwedResponses: ec.MaxOwedResponses,
		},
		Analysis: AnalysisConfig{
			Iterations:      analysis.DefaultIterations,
			ResultCacheSize: DefaultResultCacheSize,
			EvalCacheSize:   handeval.DefaultCacheSize,
		},
		Feed: FeedConfig{PollInterval: DefaultPollInterval},
	}
}

// Load reads path (optional when empty) and the .env file in the working
// directory, then applies environment overrides.
func Load(path string) (Config, error) {
	return load(path, DefaultEnvFile, os.LookupEnv)
}

func load(path, envFile string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		for _, key := range md.Undecoded() {
			slog.Warn("Unknown config key ignored", "file", path, "key", key.String())
		}
	}

	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read %s: %w", envFile, err)
	}
	env := func(k string) (string, bool) {
		if v, ok := lookup(k); ok {
			return v, true
		}
		v, ok := dotenv[k]
		return v, ok
	}
	if err := cfg.applyEnv(env); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(env func(string) (string, bool)) error {
	if v, ok := env(EnvSimExe); ok {
		c.Simulator.Executable = strings.TrimSpace(v)
	}
	if v, ok := env(EnvSimTable); ok {
		c.Simulator.LookupTable = strings.TrimSpace(v)
	}
	if v, ok := env(EnvDB); ok {
		c.Storage.Path = strings.TrimSpace(v)
	}
	if v, ok := env(EnvFeed); ok {
		c.Feed.Path = strings.TrimSpace(v)
	}
	if v, ok := env(EnvIterations); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvIterations, err)
		}
		c.Analysis.Iterations = n
	}
	if v, ok := env(EnvDebug); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebug, err)
		}
		c.Debug = b
	}
	return nil
}

// Validate rejects non-positive timeouts and attempt counts.
func (c Config) Validate() error {
	var errs error
	s := c.Simulator
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"simulator.startup_timeout", s.StartupTimeout},
		{"simulator.read_timeout", s.ReadTimeout},
		{"simulator.exit_grace", s.ExitGrace},
		{"simulator.legacy_timeout", s.LegacyTimeout},
		{"feed.poll_interval", c.Feed.PollInterval},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s must be positive, got %s", p.name, p.d))
		}
	}
	if s.RetryBackoff < 0 {
		errs = multierr.Append(errs, fmt.Errorf("simulator.retry_backoff must not be negative, got %s", s.RetryBackoff))
	}
	if s.ReadAttempts <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("simulator.read_attempts must be positive, got %d", s.ReadAttempts))
	}
	if s.MaxOwedResponses <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("simulator.max_owed_responses must be positive, got %d", s.MaxOwedResponses))
	}
	if c.Analysis.Iterations <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("analysis.iterations must be positive, got %d", c.Analysis.Iterations))
	}
	if c.Analysis.ResultCacheSize <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("analysis.result_cache_size must be positive, got %d", c.Analysis.ResultCacheSize))
	}
	return errs
}

// Engine converts the simulator section for engine.New.
func (c Config) Engine() engine.Config {
	s := c.Simulator
	return engine.Config{
		Executable:       s.Executable,
		LookupTable:      s.LookupTable,
		Env:              append([]string(nil), s.Env...),
		StartupTimeout:   s.StartupTimeout,
		ReadTimeout:      s.ReadTimeout,
		ReadAttempts:     s.ReadAttempts,
		RetryBackoff:     s.RetryBackoff,
		ExitGrace:        s.ExitGrace,
		LegacyTimeout:    s.LegacyTimeout,
		MaxOwedResponses: s.MaxOwedResponses,
	}
}
