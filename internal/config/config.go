// Package config loads the cursor-cache YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cursor-cache configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Cache     Cache     `yaml:"cache"`
	Backend   Backend   `yaml:"backend"`
	Playback  Playback  `yaml:"playback"`
	Preload   Preload   `yaml:"preload"`
	Telemetry Telemetry `yaml:"telemetry"`
	Log       Log       `yaml:"log"`
}

// Server holds HTTP listener settings.
type Server struct {
	Address        string   `yaml:"address"`
	MaxConnections int      `yaml:"max_connections"` // 0 = unlimited
	LibraryRoots   []string `yaml:"library_roots"`   // empty = any path
}

// Cache holds registry bounds. Zero limits keep a registry unbounded.
type Cache struct {
	Static     Limits        `yaml:"static"`
	Animated   Limits        `yaml:"animated"`
	FailureTTL time.Duration `yaml:"failure_ttl"` // 0 = failures are never remembered
}

// Limits bounds a single registry through the S3-FIFO policy.
type Limits struct {
	MaxBytes   int64 `yaml:"max_bytes"`
	MaxEntries int   `yaml:"max_entries"`
}

// Bounded reports whether any limit is set.
func (l Limits) Bounded() bool {
	return l.MaxBytes > 0 || l.MaxEntries > 0
}

// Backend holds decoder settings.
type Backend struct {
	PreviewSize      int      `yaml:"preview_size"`
	MaxFileSize      int64    `yaml:"max_file_size"`
	SystemCursorDirs []string `yaml:"system_cursor_dirs"`
}

// Playback holds animation scheduler settings.
type Playback struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	CarryRemainder  bool          `yaml:"carry_remainder"`
}

// Preload holds bulk warm-up settings.
type Preload struct {
	Limit int `yaml:"limit"` // 0 = unlimited concurrency
}

// Telemetry holds metrics exporter settings.
type Telemetry struct {
	OTLPEndpoint     string        `yaml:"otlp_endpoint"`
	EnablePrometheus bool          `yaml:"enable_prometheus"`
	FlushInterval    time.Duration `yaml:"flush_interval"`
}

// Log holds logger settings.
type Log struct {
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `yaml:"format"` // "auto" | "text" | "json"
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: Server{
			Address: "127.0.0.1:8080",
		},
		Backend: Backend{
			PreviewSize: 64,
			MaxFileSize: 4 << 20,
		},
		Playback: Playback{
			RefreshInterval: time.Second / 60,
		},
		Preload: Preload{
			Limit: 8,
		},
		Telemetry: Telemetry{
			FlushInterval: 10 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads the YAML config file at path on top of the defaults.
// A missing or empty file yields the defaults. Unknown fields are an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return &cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// Comment-only files decode to EOF.
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("config: server.address cannot be empty")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("config: server.max_connections must be non-negative, got %d", c.Server.MaxConnections)
	}
	for name, l := range map[string]Limits{"static": c.Cache.Static, "animated": c.Cache.Animated} {
		if l.MaxBytes < 0 || l.MaxEntries < 0 {
			return fmt.Errorf("config: cache.%s limits must be non-negative", name)
		}
	}
	if c.Cache.FailureTTL < 0 {
		return fmt.Errorf("config: cache.failure_ttl must be non-negative, got %v", c.Cache.FailureTTL)
	}
	if c.Backend.PreviewSize <= 0 {
		return fmt.Errorf("config: backend.preview_size must be positive, got %d", c.Backend.PreviewSize)
	}
	if c.Backend.MaxFileSize <= 0 {
		return fmt.Errorf("config: backend.max_file_size must be positive, got %d", c.Backend.MaxFileSize)
	}
	if c.Playback.RefreshInterval <= 0 {
		return fmt.Errorf("config: playback.refresh_interval must be positive, got %v", c.Playback.RefreshInterval)
	}
	if c.Preload.Limit < 0 {
		return fmt.Errorf("config: preload.limit must be non-negative, got %d", c.Preload.Limit)
	}
	if c.Telemetry.FlushInterval < 0 {
		return fmt.Errorf("config: telemetry.flush_interval must be non-negative, got %v", c.Telemetry.FlushInterval)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("config: log.format must be \"auto\", \"text\" or \"json\", got %q", c.Log.Format)
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: CURSOR_CACHE_ADDRESS, CURSOR_CACHE_PREVIEW_SIZE,
// CURSOR_CACHE_FAILURE_TTL, CURSOR_CACHE_LOG_LEVEL, CURSOR_CACHE_OTLP_ENDPOINT.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("CURSOR_CACHE_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("CURSOR_CACHE_PREVIEW_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid CURSOR_CACHE_PREVIEW_SIZE %q: %w", v, err)
		}
		c.Backend.PreviewSize = n
	}
	if v := os.Getenv("CURSOR_CACHE_FAILURE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid CURSOR_CACHE_FAILURE_TTL %q: %w", v, err)
		}
		c.Cache.FailureTTL = d
	}
	if v := os.Getenv("CURSOR_CACHE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CURSOR_CACHE_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	return nil
}
