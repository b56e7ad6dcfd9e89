// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for chronicle configuration.
	DefaultConfigDir = ".chronicle"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultDatabaseFile is the SQLite file created by init.
	DefaultDatabaseFile = "chronicle.db"
	// DefaultCollection is the similarity index collection name.
	DefaultCollection = "chronicle_catalog"
	// MinRetentionFloorDays is the lowest retention floor a config may set.
	// Reviewed requests younger than this are never purged.
	MinRetentionFloorDays = 30
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// reNonAlphanumeric matches characters that aren't alphanumeric or underscore.
	reNonAlphanumeric = regexp.MustCompile(`[^a-z0-9_]`)
	// reMultipleUnderscores matches consecutive underscores.
	reMultipleUnderscores = regexp.MustCompile(`_+`)
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	Database   DatabaseConfig   `yaml:"database,omitempty"`
	Retry      RetryConfig      `yaml:"retry,omitempty"`
	Moderation ModerationConfig `yaml:"moderation,omitempty"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	Metrics    MetricsConfig    `yaml:"metrics,omitempty"`
	Embedder   EmbedderConfig   `yaml:"embedder,omitempty"`
	Qdrant     QdrantConfig     `yaml:"qdrant,omitempty"`
}

// DatabaseConfig holds the relational store and session pool settings.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver,omitempty"`
	// DSN is the full connection string. For sqlite it may be left empty
	// and Path used instead.
	DSN string `yaml:"dsn,omitempty"`
	// Path is the SQLite database file, relative to the project directory.
	Path string `yaml:"path,omitempty"`

	MinSessions int `yaml:"min_sessions,omitempty"`
	MaxSessions int `yaml:"max_sessions,omitempty"`

	// CheckoutTimeout bounds the wait for a free session.
	CheckoutTimeout time.Duration `yaml:"checkout_timeout,omitempty"`
	// StatementTimeout bounds a single statement.
	StatementTimeout time.Duration `yaml:"statement_timeout,omitempty"`
	// IdleInTransactionTimeout ends sessions idling inside a transaction.
	IdleInTransactionTimeout time.Duration `yaml:"idle_in_transaction_timeout,omitempty"`
	// LockTimeout bounds waits on row or table locks.
	LockTimeout time.Duration `yaml:"lock_timeout,omitempty"`

	// InitAttempts and InitBackoff control pool construction retries.
	InitAttempts int           `yaml:"init_attempts,omitempty"`
	InitBackoff  time.Duration `yaml:"init_backoff,omitempty"`
}

// RetryConfig controls the retry of transient database failures.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts,omitempty"`
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty"`
	MaxBackoff     time.Duration `yaml:"max_backoff,omitempty"`
	Multiplier     float64       `yaml:"multiplier,omitempty"`
	// Jitter is the maximum random deviation as a fraction of the backoff.
	Jitter float64 `yaml:"jitter,omitempty"`
}

// ModerationConfig holds the review workflow rules.
type ModerationConfig struct {
	MinRejectComment   int `yaml:"min_reject_comment,omitempty"`
	RetentionFloorDays int `yaml:"retention_floor_days,omitempty"`
	// AtomicApproval applies approved changes in the same transaction as
	// the status change. Pointer so an explicit false survives defaults.
	AtomicApproval *bool `yaml:"atomic_approval,omitempty"`
}

// Atomic reports whether approvals run as a single transaction.
func (m ModerationConfig) Atomic() bool {
	return m.AtomicApproval == nil || *m.AtomicApproval
}

// LoggingConfig holds the log level.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// MetricsConfig holds the listen address of the monitor endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// EmbedderConfig holds configuration for the embedding provider.
type EmbedderConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// QdrantConfig holds configuration for the Qdrant similarity index.
type QdrantConfig struct {
	Enabled    bool   `yaml:"enabled,omitempty"`
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
}

// CollectionName returns the sanitized collection name.
func (q QdrantConfig) CollectionName() string {
	if q.Collection == "" {
		return DefaultCollection
	}
	return SanitizeName(q.Collection)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:                   DriverSQLite,
			Path:                     filepath.Join(DefaultConfigDir, DefaultDatabaseFile),
			MinSessions:              1,
			MaxSessions:              8,
			CheckoutTimeout:          5 * time.Second,
			StatementTimeout:         30 * time.Second,
			IdleInTransactionTimeout: 60 * time.Second,
			LockTimeout:              5 * time.Second,
			InitAttempts:             5,
			InitBackoff:              500 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2.0,
			Jitter:         0.2,
		},
		Moderation: ModerationConfig{
			MinRejectComment:   10,
			RetentionFloorDays: MinRetentionFloorDays,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
		},
		Embedder: EmbedderConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: DefaultCollection,
		},
	}
}

// Load loads configuration from the .chronicle directory in the given path.
func Load(basePath string) (*Config, error) {
	configFile := ConfigFilePath(basePath)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'chronicle init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML on top of the defaults, applies environment overrides
// and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if driver := os.Getenv("CHRONICLE_DATABASE_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("CHRONICLE_DATABASE_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if level := os.Getenv("CHRONICLE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Embedder.APIKey == "" {
			c.Embedder.APIKey = key
		}
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		if c.Qdrant.APIKey == "" {
			c.Qdrant.APIKey = key
		}
	}
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	db := c.Database
	switch db.Driver {
	case DriverSQLite:
		if db.DSN == "" && db.Path == "" {
			return errors.New("database.path or database.dsn is required for sqlite")
		}
	case DriverPostgres:
		if db.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q (valid: sqlite, postgres)", db.Driver)
	}
	if db.MaxSessions < 1 {
		return errors.New("database.max_sessions must be at least 1")
	}
	if db.MinSessions < 0 || db.MinSessions > db.MaxSessions {
		return fmt.Errorf("database.min_sessions must be between 0 and %d", db.MaxSessions)
	}
	if db.CheckoutTimeout <= 0 {
		return errors.New("database.checkout_timeout must be positive")
	}
	if db.InitAttempts < 1 {
		return errors.New("database.init_attempts must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Retry.Multiplier < 1 {
		return errors.New("retry.multiplier must be at least 1")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return errors.New("retry.jitter must be between 0 and 1")
	}
	if c.Moderation.MinRejectComment < 0 {
		return errors.New("moderation.min_reject_comment must not be negative")
	}
	if c.Moderation.RetentionFloorDays < MinRetentionFloorDays {
		return fmt.Errorf("moderation.retention_floor_days must be at least %d", MinRetentionFloorDays)
	}
	return nil
}

// ResolvePath returns the SQLite path made absolute against basePath.
func (d DatabaseConfig) ResolvePath(basePath string) string {
	if d.Path == "" || filepath.IsAbs(d.Path) || d.Path == ":memory:" {
		return d.Path
	}
	return filepath.Join(basePath, d.Path)
}

// ConfigDir returns the path to the .chronicle config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// SanitizeName converts a free-form name to a valid collection name.
func SanitizeName(name string) string {
	// Convert to lowercase
	name = strings.ToLower(name)

	// Replace spaces and hyphens with underscores
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")

	// Remove any characters that aren't alphanumeric or underscore
	name = reNonAlphanumeric.ReplaceAllString(name, "")

	// Remove consecutive underscores
	name = reMultipleUnderscores.ReplaceAllString(name, "_")

	name = strings.Trim(name, "_")

	if name == "" {
		return DefaultCollection
	}

	return name
}
