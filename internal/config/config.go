// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Sandbox   SandboxConfig
	Python    PythonConfig
	Worker    WorkerConfig
	RateLimit RateLimitConfig `split_words:"true"`
	Logging   LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string `split_words:"true" default:":8080"`
}

// RedisConfig names the broker and its keys.
type RedisConfig struct {
	Addr        string `split_words:"true" default:"localhost:6379"`
	Stream      string `split_words:"true" default:"testbox:jobs"`
	Group       string `split_words:"true" default:"testbox:workers"`
	Results     string `split_words:"true" default:"testbox:results"`
	DeadLetter  string `split_words:"true" default:"testbox:jobs:dead"`
	MaxAttempts int    `split_words:"true" default:"3"`
}

// SandboxConfig tunes the runners.
type SandboxConfig struct {
	TestTimeout  time.Duration `split_words:"true" default:"5s"`
	InitTimeout  time.Duration `split_words:"true" default:"30s"`
	AssetPath    string        `split_words:"true" default:"/dist/"`
	AssetBaseURL string        `split_words:"true"`
}

// PythonConfig selects the secondary runtime.
type PythonConfig struct {
	// Backend is "starlark" (in process) or "docker" (CPython container).
	Backend string `split_words:"true" default:"starlark"`
	Image   string `split_words:"true" default:"python:3.12-alpine"`
}

// WorkerConfig sizes the grading pool.
type WorkerConfig struct {
	Concurrency      int           `split_words:"true" default:"4"`
	RecoveryInterval time.Duration `split_words:"true" default:"30s"`
	StaleAfter       time.Duration `split_words:"true" default:"2m"`
	MetricsAddr      string        `split_words:"true" default:":9091"`
}

// RateLimitConfig holds per-IP submission limits.
type RateLimitConfig struct {
	PerSecond float64 `split_words:"true" default:"0.5"`
	Burst     int     `split_words:"true" default:"5"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `split_words:"true" default:"info"`
	Format string `split_words:"true" default:"text"`
}

// Load loads configuration from the environment. Variables are named
// TESTBOX_<SECTION>_<FIELD>, e.g. TESTBOX_SANDBOX_TEST_TIMEOUT.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("testbox", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Python.Backend {
	case "starlark", "docker":
	default:
		return fmt.Errorf("unknown python backend %q", c.Python.Backend)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Sandbox.TestTimeout <= 0 || c.Sandbox.InitTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// Logger builds the process logger described by c.
func (c LogConfig) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
