// Package config loads tracker settings from a YAML file and EVTRACK_
// environment variables.
//
// Precedence, lowest first: built-in defaults, the YAML file, the
// environment. The result is validated before it is returned.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/evtrack/internal/policy"
	"github.com/roach88/evtrack/internal/store"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EVTRACK_"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// StoreConfig selects and sizes the event store.
type StoreConfig struct {
	// Backend is memory, file or sqlite.
	Backend string `yaml:"backend" env:"BACKEND"`

	// Path is the batch directory (file) or database file (sqlite).
	Path string `yaml:"path" env:"PATH"`

	// Name prefixes every batch blob.
	Name string `yaml:"name" env:"NAME"`

	BatchSize   int    `yaml:"batch_size" env:"BATCH_SIZE"`
	Compression string `yaml:"compression" env:"COMPRESSION"`
}

// Config is the complete tracker configuration.
type Config struct {
	Store StoreConfig `yaml:"store" envPrefix:"STORE_"`

	// Policy is "manual", "limit:N" or "interval:D".
	Policy string `yaml:"policy" env:"POLICY"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend:     BackendFile,
			Path:        ".evtrack",
			Name:        "events",
			BatchSize:   50,
			Compression: store.CompressionZstd.String(),
		},
		Policy:   "manual",
		LogLevel: "info",
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML rejects unknown keys so typos surface as errors.
// An empty document leaves cfg unchanged.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every field.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile, BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the %s backend", c.Store.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: must be one of memory, file, sqlite", c.Store.Backend))
	}

	if c.Store.Name == "" {
		errs = append(errs, errors.New("store.name is required"))
	}
	if c.Store.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("store.batch_size must be positive, got %d", c.Store.BatchSize))
	}
	if _, err := store.ParseCompression(c.Store.Compression); err != nil {
		errs = append(errs, fmt.Errorf("store.compression: %w", err))
	}
	if _, err := policy.Parse(c.Policy); err != nil {
		errs = append(errs, fmt.Errorf("policy: %w", err))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// FlushPolicy returns the parsed policy. Call after Validate.
func (c Config) FlushPolicy() policy.Policy {
	p, _ := policy.Parse(c.Policy)
	return p
}

// Compression returns the parsed batch compression. Call after Validate.
func (c Config) Compression() store.Compression {
	comp, _ := store.ParseCompression(c.Store.Compression)
	return comp
}

// Level returns the parsed log level. Call after Validate.
func (c Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log_level %q: must be one of debug, info, warn, error", s)
	}
	return l, nil
}
