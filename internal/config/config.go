// Package config loads and validates the application configuration from a
// YAML file, with environment variable overrides for database credentials.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/candlekeep/go-ohlcv-sync/internal/errors"
	"github.com/candlekeep/go-ohlcv-sync/internal/models"
)

// Config is the full application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Data     DataConfig     `yaml:"data"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Cron     CronConfig     `yaml:"cron"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig selects and parameterizes the storage backend.
type DatabaseConfig struct {
	Type       string           `yaml:"type"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
}

// PostgreSQLConfig holds connection parameters for the postgresql backend.
// Each field can be overridden by the matching POSTGRES_* environment
// variable.
type PostgreSQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DBName   string `yaml:"dbname"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// DSN renders the pgx connection string.
func (p PostgreSQLConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", p.User, p.Password, p.Host, p.Port, p.DBName)
}

// DataConfig controls what gets synced and where files live.
type DataConfig struct {
	DefaultSymbol        string   `yaml:"default_symbol"`
	Timeframes           []string `yaml:"timeframes"`
	DefaultDays          int      `yaml:"default_days"`
	EnableDynamicSorting bool     `yaml:"enable_dynamic_sorting"`
	EnableDataFilling    bool     `yaml:"enable_data_filling"`
	DataDir              string   `yaml:"data_dir"`
	CacheDir             string   `yaml:"cache_dir"`
}

// Duration wraps time.Duration so YAML values like "2s" or "500ms" decode.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// FetchConfig tunes the exchange fetch loop.
type FetchConfig struct {
	PageLimit    int      `yaml:"page_limit"`
	AttemptDelay Duration `yaml:"attempt_delay"`
}

// CronConfig lists scheduled sync tasks.
type CronConfig struct {
	Tasks []CronTask `yaml:"tasks"`
}

// CronTask is one scheduled sync: which pair, timeframe, and lookback to run
// on the given cron expression (six fields, with seconds).
type CronTask struct {
	Symbol    string `yaml:"symbol"`
	Timeframe string `yaml:"timeframe"`
	Days      int    `yaml:"days"`
	Cron      string `yaml:"cron"`
}

// LoggingConfig configures the slog handler and optional file rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type: "csv",
			PostgreSQL: PostgreSQLConfig{
				Host:   "localhost",
				Port:   5432,
				DBName: "ohlcv",
				User:   "postgres",
			},
		},
		Data: DataConfig{
			DefaultSymbol:        "BTC/USDT",
			Timeframes:           []string{"1m", "5m", "15m", "30m", "1h", "4h", "8h", "12h", "1d"},
			DefaultDays:          30,
			EnableDynamicSorting: true,
			EnableDataFilling:    true,
			DataDir:              "data",
			CacheDir:             "cache",
		},
		Fetch: FetchConfig{
			PageLimit:    1000,
			AttemptDelay: Duration(time.Second),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the YAML file at path (skipped when empty), applies environment
// overrides, and validates. Any failure is a ConfigError, fatal at startup.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &apperrors.ConfigError{Err: fmt.Errorf("read %s: %w", path, err)}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &apperrors.ConfigError{Err: fmt.Errorf("parse %s: %w", path, err)}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Database.PostgreSQL.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.PostgreSQL.Port = port
		}
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.Database.PostgreSQL.DBName = v
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.Database.PostgreSQL.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Database.PostgreSQL.Password = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Type {
	case "csv", "postgresql":
	default:
		problems = append(problems, fmt.Sprintf("database.type must be csv or postgresql, got %q", c.Database.Type))
	}

	if c.Database.Type == "postgresql" {
		pg := c.Database.PostgreSQL
		if pg.Host == "" {
			problems = append(problems, "database.postgresql.host must not be empty")
		}
		if pg.Port <= 0 || pg.Port > 65535 {
			problems = append(problems, fmt.Sprintf("database.postgresql.port %d out of range", pg.Port))
		}
		if pg.DBName == "" {
			problems = append(problems, "database.postgresql.dbname must not be empty")
		}
		if pg.User == "" {
			problems = append(problems, "database.postgresql.user must not be empty")
		}
	}

	if c.Data.DefaultSymbol == "" {
		problems = append(problems, "data.default_symbol must not be empty")
	}
	if len(c.Data.Timeframes) == 0 {
		problems = append(problems, "data.timeframes must list at least one timeframe")
	}
	for _, tf := range c.Data.Timeframes {
		if _, err := models.ParseTimeframe(tf); err != nil {
			problems = append(problems, fmt.Sprintf("data.timeframes: %v", err))
		}
	}
	if c.Data.DefaultDays <= 0 {
		problems = append(problems, "data.default_days must be positive")
	}
	if c.Data.DataDir == "" {
		problems = append(problems, "data.data_dir must not be empty")
	}
	if c.Data.CacheDir == "" {
		problems = append(problems, "data.cache_dir must not be empty")
	}

	if c.Fetch.PageLimit <= 0 {
		problems = append(problems, "fetch.page_limit must be positive")
	}
	if c.Fetch.AttemptDelay < 0 {
		problems = append(problems, "fetch.attempt_delay must not be negative")
	}

	for i, task := range c.Cron.Tasks {
		if task.Symbol == "" {
			problems = append(problems, fmt.Sprintf("cron.tasks[%d].symbol must not be empty", i))
		}
		if task.Timeframe != "" {
			if _, err := models.ParseTimeframe(task.Timeframe); err != nil {
				problems = append(problems, fmt.Sprintf("cron.tasks[%d]: %v", i, err))
			}
		}
		if task.Days <= 0 {
			problems = append(problems, fmt.Sprintf("cron.tasks[%d].days must be positive", i))
		}
		if task.Cron == "" {
			problems = append(problems, fmt.Sprintf("cron.tasks[%d].cron must not be empty", i))
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q not one of text, json", c.Logging.Format))
	}
	switch c.Logging.Output {
	case "stdout", "stderr", "file":
	default:
		problems = append(problems, fmt.Sprintf("logging.output %q not one of stdout, stderr, file", c.Logging.Output))
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		problems = append(problems, "logging.file_path required when logging.output is file")
	}

	if len(problems) > 0 {
		return &apperrors.ConfigError{Err: errors.New(strings.Join(problems, "; "))}
	}
	return nil
}

// ParsedTimeframes returns data.timeframes as typed values. Call after
// Validate.
func (c *Config) ParsedTimeframes() []models.Timeframe {
	out := make([]models.Timeframe, 0, len(c.Data.Timeframes))
	for _, s := range c.Data.Timeframes {
		if tf, err := models.ParseTimeframe(s); err == nil {
			out = append(out, tf)
		}
	}
	return out
}
