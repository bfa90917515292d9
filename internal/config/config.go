// Package config handles benchmark configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "featbench"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"

	DefaultWorkers  = 8
	DefaultMaxVocab = 5000
	DefaultInput    = "data/raw/train_for_cpp.csv"
	DefaultOutput   = "data/embeddings"
	DefaultDBFile   = "featbench.db"
)

// Environment variables that override file values.
const (
	EnvWorkers    = "FEATBENCH_WORKERS"
	EnvMaxVocab   = "FEATBENCH_MAX_VOCAB"
	EnvInput      = "FEATBENCH_INPUT"
	EnvOutputDir  = "FEATBENCH_OUTPUT_DIR"
	EnvBatchSizes = "FEATBENCH_BATCH_SIZES"
	EnvLogLevel   = "FEATBENCH_LOG_LEVEL"
)

// DefaultBatchSizes are the corpus prefixes benchmarked when none are configured.
var DefaultBatchSizes = []int{100, 1000, 10000}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the benchmark configuration.
type Config struct {
	Input          string    `yaml:"input" json:"input"`
	OutputDir      string    `yaml:"output_dir" json:"output_dir"`
	DBPath         string    `yaml:"db_path,omitempty" json:"db_path"`
	Workers        int       `yaml:"workers" json:"workers"`
	MaxVocab       int       `yaml:"max_vocab" json:"max_vocab"`
	BatchSizes     []int     `yaml:"batch_sizes" json:"batch_sizes"`
	ChunkSize      int       `yaml:"chunk_size,omitempty" json:"chunk_size"`
	CleanCacheSize int       `yaml:"clean_cache_size,omitempty" json:"clean_cache_size"`
	SkipPersist    bool      `yaml:"skip_persist,omitempty" json:"skip_persist"`
	SkipVerify     bool      `yaml:"skip_verify,omitempty" json:"skip_verify"`
	Log            LogConfig `yaml:"log" json:"log"`
}

// LogConfig selects logger verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Input:      DefaultInput,
		OutputDir:  DefaultOutput,
		Workers:    DefaultWorkers,
		MaxVocab:   DefaultMaxVocab,
		BatchSizes: append([]int(nil), DefaultBatchSizes...),
		Log:        LogConfig{Level: "info", Format: "console"},
	}
}

// Path returns the default config file location.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/featbench/config.yml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// Load builds the effective configuration: defaults, then the YAML file, then
// a .env file in the working directory, then process environment variables.
// An empty path means Path(); a missing default file is not an error, but a
// missing explicit path is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = Path()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvInput); ok && v != "" {
		c.Input = v
	}
	if v, ok := lookup(EnvOutputDir); ok && v != "" {
		c.OutputDir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, EnvWorkers, v, err)
		}
		c.Workers = n
	}
	if v, ok := lookup(EnvMaxVocab); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, EnvMaxVocab, v, err)
		}
		c.MaxVocab = n
	}
	if v, ok := lookup(EnvBatchSizes); ok && v != "" {
		sizes, err := ParseBatchSizes(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvBatchSizes, err)
		}
		c.BatchSizes = sizes
	}
	return nil
}

// Normalize applies coercions that never fail: non-positive worker counts
// become 1, an empty log config falls back to defaults and an unset database
// path is placed in the output directory.
func (c *Config) Normalize() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.DBPath == "" && c.OutputDir != "" {
		c.DBPath = filepath.Join(c.OutputDir, DefaultDBFile)
	}
}

// Validate checks values that cannot be coerced.
func (c *Config) Validate() error {
	if c.MaxVocab <= 0 {
		return fmt.Errorf("%w: max_vocab must be positive, got %d", ErrInvalid, c.MaxVocab)
	}
	if len(c.BatchSizes) == 0 {
		return fmt.Errorf("%w: batch_sizes must not be empty", ErrInvalid)
	}
	for _, n := range c.BatchSizes {
		if n <= 0 {
			return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalid, n)
		}
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("%w: chunk_size must not be negative, got %d", ErrInvalid, c.ChunkSize)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format must be console or json, got %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// ParseBatchSizes parses a comma-separated list such as "100,1000,10000".
func ParseBatchSizes(s string) ([]int, error) {
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parsing batch size %q: %w", part, err)
		}
		sizes = append(sizes, n)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no batch sizes in %q", s)
	}
	return sizes, nil
}

// Save writes the configuration as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
