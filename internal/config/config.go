package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// Database drivers accepted by DatabaseConfig.Driver
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Port        string `yaml:"port" default:"8080" validate:"required,numeric"`
	StorageRoot string `yaml:"storage_root" default:"./data" validate:"required"`

	Database DatabaseConfig `yaml:"database"`
	Upload   UploadConfig   `yaml:"upload"`
	Identity IdentityConfig `yaml:"identity"`
	Log      LogConfig      `yaml:"log"`

	MetricsEnabled  bool          `yaml:"metrics_enabled" default:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s" validate:"gt=0"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"2m" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"0s" validate:"gte=0"` // 0 disables, large downloads

	// TrustedProxies lists peers whose X-Forwarded-For / X-Real-IP headers are honoured.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// DatabaseConfig selects and configures the metadata store
type DatabaseConfig struct {
	Driver     string           `yaml:"driver" default:"sqlite" validate:"oneof=sqlite postgres"`
	Path       string           `yaml:"path" default:"./storage.db"`
	PostgreSQL PostgreSQLConfig `yaml:"postgres"`
}

// PostgreSQLConfig holds PostgreSQL connection settings
type PostgreSQLConfig struct {
	Host           string `yaml:"host" default:"localhost"`
	Port           int    `yaml:"port" default:"5432" validate:"min=1,max=65535"`
	User           string `yaml:"user" default:"storage"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database" default:"storage"`
	SSLMode        string `yaml:"sslmode" default:"prefer" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxConnections int    `yaml:"max_connections" default:"10" validate:"min=1"`
}

// UploadConfig holds chunked upload parameters
type UploadConfig struct {
	MaxChunkSize   int64         `yaml:"max_chunk_size" default:"10485760" validate:"min=1"`
	MaxTotalChunks int           `yaml:"max_total_chunks" default:"100000" validate:"min=1"`
	SweepInterval  time.Duration `yaml:"sweep_interval" default:"5m"`
	StagingTimeout time.Duration `yaml:"staging_timeout" default:"5m"`
}

// IdentityConfig controls how the calling owner is identified
type IdentityConfig struct {
	OwnerHeader string `yaml:"owner_header" default:"X-Owner-ID" validate:"required"`
}

// LogConfig controls the slog handler
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json text"`
}

// Load builds the configuration from struct defaults, an optional YAML file named by
// CONFIG_PATH, and environment variables, in that order of increasing precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.StorageRoot = getEnv("STORAGE_ROOT", c.StorageRoot)

	c.Database.Driver = strings.ToLower(getEnv("DB_DRIVER", c.Database.Driver))
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)

	pg := &c.Database.PostgreSQL
	pg.Host = getEnv("POSTGRES_HOST", pg.Host)
	pg.Port = getEnvInt("POSTGRES_PORT", pg.Port)
	pg.User = getEnv("POSTGRES_USER", pg.User)
	pg.Password = getEnv("POSTGRES_PASSWORD", pg.Password)
	pg.Database = getEnv("POSTGRES_DB", pg.Database)
	pg.SSLMode = getEnv("POSTGRES_SSLMODE", pg.SSLMode)
	pg.MaxConnections = getEnvInt("POSTGRES_MAX_CONNS", pg.MaxConnections)

	c.Upload.MaxChunkSize = getEnvInt64("MAX_CHUNK_SIZE", c.Upload.MaxChunkSize)
	c.Upload.MaxTotalChunks = getEnvInt("MAX_TOTAL_CHUNKS", c.Upload.MaxTotalChunks)
	c.Upload.SweepInterval = getEnvDuration("SWEEP_INTERVAL", c.Upload.SweepInterval)
	c.Upload.StagingTimeout = getEnvDuration("STAGING_TIMEOUT", c.Upload.StagingTimeout)

	c.Identity.OwnerHeader = getEnv("OWNER_HEADER", c.Identity.OwnerHeader)

	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Log.Format))

	c.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.MetricsEnabled)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.ReadTimeout = getEnvDuration("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.TrustedProxies = getEnvList("TRUSTED_PROXIES", c.TrustedProxies)
}

// validate ensures configuration values are sensible
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	if c.Upload.SweepInterval < time.Second {
		return fmt.Errorf("sweep interval must be at least 1s, got %s", c.Upload.SweepInterval)
	}
	if c.Upload.StagingTimeout <= 0 {
		return fmt.Errorf("staging timeout must be positive, got %s", c.Upload.StagingTimeout)
	}
	// Chunk offsets are index * max chunk size and must fit in an int64.
	if c.Upload.MaxChunkSize > math.MaxInt64/int64(c.Upload.MaxTotalChunks) {
		return fmt.Errorf("max chunk size %d times max total chunks %d overflows file offsets",
			c.Upload.MaxChunkSize, c.Upload.MaxTotalChunks)
	}

	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		return fmt.Errorf("DB_PATH cannot be empty for the sqlite driver")
	}
	if c.Database.Driver == DriverPostgres {
		if c.Database.PostgreSQL.Host == "" {
			return fmt.Errorf("POSTGRES_HOST cannot be empty for the postgres driver")
		}
		if c.Database.PostgreSQL.Database == "" {
			return fmt.Errorf("POSTGRES_DB cannot be empty for the postgres driver")
		}
	}

	if strings.ContainsAny(c.Identity.OwnerHeader, " :\r\n") {
		return fmt.Errorf("invalid owner header name %q", c.Identity.OwnerHeader)
	}

	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvInt64 retrieves an int64 environment variable or returns a default value
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "5m") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated list from an environment variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
