// Package config loads batchtune settings from YAML.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/johndauphine/batchtune/internal/logging"
	"github.com/johndauphine/batchtune/internal/tuning"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when --config is not given.
const DefaultPath = "batchtune.yaml"

// Config is the top-level configuration.
type Config struct {
	Tuning   TuningConfig   `yaml:"tuning"`
	Transfer TransferConfig `yaml:"transfer"`
	Logging  LoggingConfig  `yaml:"logging"`
	History  HistoryConfig  `yaml:"history"`
}

// TuningConfig controls the batch size tuner.
type TuningConfig struct {
	// Mode is "off", "stats" or "full".
	Mode string `yaml:"mode"`

	// MaxBatchSize is the largest batch size considered, in bytes.
	MaxBatchSize int64 `yaml:"max_batch_size"`

	// BucketCount divides MaxBatchSize into measurement buckets.
	BucketCount int64 `yaml:"bucket_count"`

	// InitialBatchSize is used until the first tuning pass.
	InitialBatchSize int64 `yaml:"initial_batch_size"`

	// RetuneEvery is the number of chunks between tuning passes.
	RetuneEvery int `yaml:"retune_every"`

	// ForceLinear scans every bucket instead of searching.
	ForceLinear bool `yaml:"force_linear"`

	// Weights multiplies the measured throughput of individual kinds (default 1).
	Weights map[string]float64 `yaml:"weights"`
}

// TransferConfig controls the chunked transfer.
type TransferConfig struct {
	// SourceEncoding decodes the input into UTF-8 (empty = raw bytes).
	SourceEncoding string `yaml:"source_encoding"`

	// TargetEncoding encodes UTF-8 text for output (empty = unchanged).
	TargetEncoding string `yaml:"target_encoding"`

	// Hexlify writes a hex view of the input.
	Hexlify bool `yaml:"hexlify"`

	// Dehexlify converts a hex view back into raw bytes.
	Dehexlify bool `yaml:"dehexlify"`

	// HTTPTimeout bounds remote source requests.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HistoryConfig selects where run history is kept.
type HistoryConfig struct {
	// Backend is "sqlite", "postgres" or "none".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// Postgres connection settings, used when Backend is "postgres".
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

// Load reads the config file at path. A missing file at DefaultPath yields
// the defaults; a missing file anywhere else is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			logging.Debug("No config file at %s, using defaults", path)
			return Default()
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// envRef matches a ${NAME} reference.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} references with the environment value. Bare $
// and references to unset variables are left as written.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(ref[2 : len(ref)-1])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return ref
	})
}

// Parse parses YAML config data, expanding ${VAR} references first.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a validated config with every default applied.
func Default() (*Config, error) {
	var cfg Config
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Tuning.Mode == "" {
		c.Tuning.Mode = "full"
	}
	if c.Tuning.MaxBatchSize <= 0 {
		c.Tuning.MaxBatchSize = 4 << 20
	}
	if c.Tuning.BucketCount <= 0 {
		c.Tuning.BucketCount = tuning.DefaultBucketCount
	}
	if c.Tuning.InitialBatchSize <= 0 {
		c.Tuning.InitialBatchSize = 64 << 10
	}
	c.SetMaxBatchSize(c.Tuning.MaxBatchSize)
	if c.Tuning.RetuneEvery <= 0 {
		c.Tuning.RetuneEvery = 8
	}

	if c.Transfer.HTTPTimeout <= 0 {
		c.Transfer.HTTPTimeout = 30 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.History.Backend == "" {
		c.History.Backend = "sqlite"
	}
	if c.History.Backend == "sqlite" && c.History.Path == "" {
		c.History.Path = defaultHistoryPath()
	}
	if c.History.Backend == "postgres" {
		if c.History.Port == 0 {
			c.History.Port = 5432
		}
		if c.History.SSLMode == "" {
			c.History.SSLMode = "prefer"
		}
	}
}

// SetMaxBatchSize sets the largest batch size, capped at 1/8 of available
// memory. The initial batch size is lowered to fit.
func (c *Config) SetMaxBatchSize(n int64) {
	if limit := maxBatchSizeForMemory(); n > limit {
		logging.Warn("max_batch_size %d exceeds 1/8 of available memory, capping at %d", n, limit)
		n = limit
	}
	c.Tuning.MaxBatchSize = n
	if c.Tuning.InitialBatchSize > n {
		c.Tuning.InitialBatchSize = n
	}
}

func (c *Config) validate() error {
	mode, err := tuning.ParseMode(c.Tuning.Mode)
	if err != nil {
		return err
	}
	tc := tuning.Config{
		Mode:             mode,
		MaxBatchSize:     c.Tuning.MaxBatchSize,
		BucketCount:      c.Tuning.BucketCount,
		InitialBatchSize: c.Tuning.InitialBatchSize,
	}
	if err := tc.Validate(); err != nil {
		return err
	}
	seen := make(map[tuning.OperationKind]string, len(c.Tuning.Weights))
	for name, w := range c.Tuning.Weights {
		kind, err := tuning.ParseKind(name)
		if err != nil {
			return fmt.Errorf("tuning.weights: %w", err)
		}
		if prev, ok := seen[kind]; ok {
			return fmt.Errorf("tuning.weights: %q and %q both name %s", prev, name, kind)
		}
		seen[kind] = name
		if w <= 0 {
			return fmt.Errorf("tuning.weights.%s must be positive, got %g", name, w)
		}
	}

	if c.Transfer.Hexlify && c.Transfer.Dehexlify {
		return fmt.Errorf("transfer.hexlify and transfer.dehexlify cannot both be set")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format %q (must be text or json)", c.Logging.Format)
	}

	switch c.History.Backend {
	case "none", "sqlite":
	case "postgres":
		if c.History.Host == "" || c.History.Database == "" {
			return fmt.Errorf("history.host and history.database are required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid history backend %q (must be sqlite, postgres or none)", c.History.Backend)
	}
	return nil
}

// TuningSettings converts the tuning section into a tuning.Config. The
// resource size is filled in once the source has been opened.
func (c *Config) TuningSettings() tuning.Config {
	mode, _ := tuning.ParseMode(c.Tuning.Mode)
	return tuning.Config{
		Mode:             mode,
		MaxBatchSize:     c.Tuning.MaxBatchSize,
		BucketCount:      c.Tuning.BucketCount,
		InitialBatchSize: c.Tuning.InitialBatchSize,
	}
}

// Weight returns the configured weight of kind, or 1.
func (c *Config) Weight(kind tuning.OperationKind) float64 {
	for name, w := range c.Tuning.Weights {
		if k, err := tuning.ParseKind(name); err == nil && k == kind {
			return w
		}
	}
	return 1
}

// PostgresDSN returns the connection string of the postgres history backend.
func (c *Config) PostgresDSN() string {
	h := c.History
	return c.buildPostgresDSN(h.Host, h.Port, h.Database, h.User, h.Password, h.SSLMode)
}

// buildPostgresDSN builds a postgres:// URL with escaped credentials.
func (c *Config) buildPostgresDSN(host string, port int, database, user, password, sslMode string) string {
	userinfo := url.QueryEscape(user)
	if password != "" {
		userinfo += ":" + url.QueryEscape(password)
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		userinfo, host, port, url.PathEscape(database), url.QueryEscape(sslMode))
}

// Redacted returns a copy of the config safe to store or print.
func (c *Config) Redacted() Config {
	out := *c
	if out.History.Password != "" {
		out.History.Password = "***"
	}
	return out
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return filepath.Join(".batchtune", "history.db")
	}
	return filepath.Join(home, ".batchtune", "history.db")
}
