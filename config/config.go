// Package config loads the service configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/membership-engine/generic"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Dues      DuesConfig      `yaml:"dues"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the driver and connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite3" or "postgres"
	DSN    string `yaml:"dsn"`
}

// DuesConfig holds the single currently-effective monthly due.
type DuesConfig struct {
	MonthlyAmount string `yaml:"monthly_amount"` // decimal string, e.g. "10000.00"
	Currency      string `yaml:"currency"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SchedulerConfig contains cron schedule settings (with seconds field)
type SchedulerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DuesDigest string `yaml:"dues_digest"`
}

// Default returns a runnable local configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a YAML file. An empty path skips the file
// and uses defaults plus environment overrides.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.overrideWithEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Server.Port = port
		}
	}
	if val := os.Getenv("CORS_ALLOWED_ORIGINS"); val != "" {
		c.Server.AllowedOrigins = strings.Split(val, ",")
	}

	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_DSN"); val != "" {
		c.Database.DSN = val
	}

	// Dues
	if val := os.Getenv("DUES_MONTHLY_AMOUNT"); val != "" {
		c.Dues.MonthlyAmount = val
	}
	if val := os.Getenv("DUES_CURRENCY"); val != "" {
		c.Dues.Currency = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Scheduler
	if val := os.Getenv("SCHEDULER_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Scheduler.Enabled = enabled
		}
	}
	if val := os.Getenv("SCHEDULER_DUES_DIGEST"); val != "" {
		c.Scheduler.DuesDigest = val
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite3" {
		c.Database.DSN = "membership.db?_foreign_keys=on&_journal_mode=WAL"
	}
	if c.Dues.MonthlyAmount == "" {
		c.Dues.MonthlyAmount = "10000.00"
	}
	if c.Dues.Currency == "" {
		c.Dues.Currency = "IDR"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Scheduler.DuesDigest == "" {
		c.Scheduler.DuesDigest = "0 0 6 1 * *" // 1st of month at 6 AM UTC
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	due, err := c.MonthlyDue()
	if err != nil {
		return err
	}
	if err := due.Validate(); err != nil {
		return fmt.Errorf("invalid dues monthly_amount: %w", err)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Scheduler.DuesDigest); err != nil {
		return fmt.Errorf("invalid scheduler dues_digest %q: %w", c.Scheduler.DuesDigest, err)
	}
	return nil
}

// MonthlyDue returns the configured due as an Amount.
func (c *Config) MonthlyDue() (generic.Amount, error) {
	d, err := decimal.NewFromString(c.Dues.MonthlyAmount)
	if err != nil {
		return generic.Amount{}, fmt.Errorf("invalid dues monthly_amount %q: %w", c.Dues.MonthlyAmount, err)
	}
	return generic.NewAmount(d, generic.Currency(c.Dues.Currency)), nil
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
