package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig selects and locates the report store
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"required,oneof=postgres sqlite"`
	// URL is a Postgres connection string, or a file path (or ":memory:") for sqlite
	URL string `yaml:"url" validate:"required"`
}

// RedisConfig locates the session store. Sessions are kept in process when Addr is empty.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty" validate:"min=0"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr       string `yaml:"addr" validate:"required"`
	SessionTTL string `yaml:"sessionTTL" validate:"required"`
}

// BackupConfig configures scheduled snapshots
type BackupConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RRule     string `yaml:"rrule" validate:"required_if=Enabled true"`
	Dir       string `yaml:"dir" validate:"required_if=Enabled true"`
	Retention int    `yaml:"retention" validate:"min=0"`
	Timeout   string `yaml:"timeout,omitempty"`
}

// Config represents the application configuration
type Config struct {
	// Timezone is the civil timezone shift windows are evaluated in
	Timezone    string         `yaml:"timezone" validate:"required"`
	GracePeriod string         `yaml:"gracePeriod,omitempty"`
	Holidays    []string       `yaml:"holidays,omitempty" validate:"dive,required"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis,omitempty"`
	Server      ServerConfig   `yaml:"server"`
	Backup      BackupConfig   `yaml:"backup,omitempty"`
}

const (
	defaultGracePeriod   = 10 * time.Minute
	defaultBackupTimeout = 2 * time.Minute
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from incident_desk.yaml
func Load() (*Config, error) {
	return loadNamed("incident_desk.yaml")
}

// LoadWithEnv loads and validates the configuration from incident_desk_<env>.yaml
func LoadWithEnv(env string) (*Config, error) {
	return loadNamed(fmt.Sprintf("incident_desk_%s.yaml", env))
}

func loadNamed(name string) (*Config, error) {
	configPath, err := findConfigFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path.
// DATABASE_URL, REDIS_ADDR and HTTP_ADDR override the file when set.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Database.URL = getenv("DATABASE_URL", cfg.Database.URL)
	cfg.Redis.Addr = getenv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Server.Addr = getenv("HTTP_ADDR", cfg.Server.Addr)
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// Validate validates the configuration struct, the timezone, the durations and the rrules
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	durations := map[string]string{
		"gracePeriod":       cfg.GracePeriod,
		"server.sessionTTL": cfg.Server.SessionTTL,
		"backup.timeout":    cfg.Backup.Timeout,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration in %s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid duration in %s: must not be negative", name)
		}
	}

	if cfg.Backup.RRule != "" {
		if _, err := rrule.StrToRRule(cfg.Backup.RRule); err != nil {
			return fmt.Errorf("invalid rrule in backup: %w", err)
		}
	}

	for i, holiday := range cfg.Holidays {
		if _, err := rrule.StrToRRule(holiday); err != nil {
			return fmt.Errorf("invalid rrule in holidays[%d]: %w", i, err)
		}
	}

	return nil
}

// Location returns the configured civil timezone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Grace returns the login grace period, defaulting to ten minutes
func (c *Config) Grace() time.Duration {
	return parseDurationOr(c.GracePeriod, defaultGracePeriod)
}

// SessionTTL returns how long a login session lasts
func (c *Config) SessionTTL() time.Duration {
	return parseDurationOr(c.Server.SessionTTL, 8*time.Hour)
}

// BackupTimeout bounds a single scheduled backup run
func (c *Config) BackupTimeout() time.Duration {
	return parseDurationOr(c.Backup.Timeout, defaultBackupTimeout)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// IsHoliday reports whether the civil date of t in loc matches one of the holiday rules.
// Holidays are informational; eligibility does not depend on them.
func (c *Config) IsHoliday(t time.Time, loc *time.Location) (bool, error) {
	local := t.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Nanosecond)

	for i, holiday := range c.Holidays {
		rule, err := rrule.StrToRRule(holiday)
		if err != nil {
			return false, fmt.Errorf("failed to parse rrule for holidays[%d]: %w", i, err)
		}
		rule.DTStart(dayStart.AddDate(-1, 0, 0))
		if len(rule.Between(dayStart, dayEnd, true)) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// findConfigFile searches for name in the current directory and the home directory
func findConfigFile(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, name)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file %s not found in current directory or home directory", name)
}
