package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Timezone:    "America/Mexico_City",
		GracePeriod: "10m",
		Holidays:    []string{"FREQ=YEARLY;BYMONTH=9;BYMONTHDAY=16"},
		Database:    DatabaseConfig{Driver: "postgres", URL: "postgres://localhost/incidents"},
		Server:      ServerConfig{Addr: ":8080", SessionTTL: "8h"},
		Backup: BackupConfig{
			Enabled:   true,
			RRule:     "FREQ=DAILY;BYHOUR=3;BYMINUTE=0;BYSECOND=0",
			Dir:       "backups",
			Retention: 7,
		},
	}
}

func clearEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("HTTP_ADDR", "")
}

func TestValidate_ValidConfig(t *testing.T) {
	err := Validate(validConfig())
	assert.NoError(t, err)
}

func TestValidate_MinimalConfig(t *testing.T) {
	cfg := &Config{
		Timezone: "America/Mexico_City",
		Database: DatabaseConfig{Driver: "sqlite", URL: "incidents.db"},
		Server:   ServerConfig{Addr: ":8080", SessionTTL: "8h"},
	}

	err := Validate(cfg)
	assert.NoError(t, err)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(cfg *Config)
		contains string
	}{
		{"missing timezone", func(cfg *Config) { cfg.Timezone = "" }, "validation failed"},
		{"unknown timezone", func(cfg *Config) { cfg.Timezone = "America/Atlantida" }, "invalid timezone"},
		{"unknown driver", func(cfg *Config) { cfg.Database.Driver = "mongodb" }, "validation failed"},
		{"missing database url", func(cfg *Config) { cfg.Database.URL = "" }, "validation failed"},
		{"bad grace period", func(cfg *Config) { cfg.GracePeriod = "diez minutos" }, "invalid duration in gracePeriod"},
		{"negative session ttl", func(cfg *Config) { cfg.Server.SessionTTL = "-1h" }, "invalid duration in server.sessionTTL"},
		{"backup without rrule", func(cfg *Config) { cfg.Backup.RRule = "" }, "validation failed"},
		{"backup without dir", func(cfg *Config) { cfg.Backup.Dir = "" }, "validation failed"},
		{"invalid backup rrule", func(cfg *Config) { cfg.Backup.RRule = "INVALID_RRULE_SYNTAX" }, "invalid rrule in backup"},
		{"invalid holiday rrule", func(cfg *Config) { cfg.Holidays = append(cfg.Holidays, "INVALID") }, "invalid rrule in holidays[1]"},
		{"empty holiday", func(cfg *Config) { cfg.Holidays = []string{""} }, "validation failed"},
		{"negative retention", func(cfg *Config) { cfg.Backup.Retention = -1 }, "validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestValidate_DisabledBackupNeedsNoRRule(t *testing.T) {
	cfg := validConfig()
	cfg.Backup = BackupConfig{}

	assert.NoError(t, Validate(cfg))
}

func TestDurations(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 10*time.Minute, cfg.Grace())
	assert.Equal(t, 8*time.Hour, cfg.SessionTTL())
	assert.Equal(t, 2*time.Minute, cfg.BackupTimeout())

	cfg.GracePeriod = ""
	cfg.Backup.Timeout = "30s"
	assert.Equal(t, 10*time.Minute, cfg.Grace())
	assert.Equal(t, 30*time.Second, cfg.BackupTimeout())

	cfg.GracePeriod = "0s"
	assert.Zero(t, cfg.Grace())
}

func TestIsHoliday(t *testing.T) {
	cfg := validConfig()
	loc, err := cfg.Location()
	require.NoError(t, err)

	holiday, err := cfg.IsHoliday(time.Date(2025, time.September, 16, 13, 0, 0, 0, loc), loc)
	require.NoError(t, err)
	assert.True(t, holiday)

	holiday, err = cfg.IsHoliday(time.Date(2025, time.September, 17, 0, 30, 0, 0, loc), loc)
	require.NoError(t, err)
	assert.False(t, holiday)

	// 05:00 UTC on the 17th is still the 16th in Mexico City
	holiday, err = cfg.IsHoliday(time.Date(2025, time.September, 17, 5, 0, 0, 0, time.UTC), loc)
	require.NoError(t, err)
	assert.True(t, holiday)
}

func TestLoadFromPath_ValidConfig(t *testing.T) {
	clearEnvOverrides(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.yaml")

	validYAML := `
timezone: "America/Mexico_City"
gracePeriod: "10m"
holidays:
  - "FREQ=YEARLY;BYMONTH=9;BYMONTHDAY=16"
  - "FREQ=YEARLY;BYMONTH=11;BYDAY=3MO"
database:
  driver: "sqlite"
  url: "incidents.db"
redis:
  addr: "localhost:6379"
server:
  addr: ":8080"
  sessionTTL: "8h"
backup:
  enabled: true
  rrule: "FREQ=DAILY;BYHOUR=3;BYMINUTE=0;BYSECOND=0"
  dir: "backups"
  retention: 14
`

	err := os.WriteFile(configPath, []byte(validYAML), 0644)
	require.NoError(t, err)

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	assert.Equal(t, "America/Mexico_City", cfg.Timezone)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "incidents.db", cfg.Database.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Len(t, cfg.Holidays, 2)
	assert.True(t, cfg.Backup.Enabled)
	assert.Equal(t, 14, cfg.Backup.Retention)
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("DATABASE_URL", "postgres://db.internal/incidents")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlConfig := `
timezone: "America/Mexico_City"
database:
  driver: "postgres"
  url: "postgres://localhost/incidents"
server:
  addr: ":8080"
  sessionTTL: "8h"
`

	err := os.WriteFile(configPath, []byte(yamlConfig), 0644)
	require.NoError(t, err)

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, "postgres://db.internal/incidents", cfg.Database.URL)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFromPath_InvalidRRule(t *testing.T) {
	clearEnvOverrides(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_rrule.yaml")

	invalidConfig := `
timezone: "America/Mexico_City"
database:
  driver: "sqlite"
  url: "incidents.db"
server:
  addr: ":8080"
  sessionTTL: "8h"
holidays:
  - "INVALID_RRULE_SYNTAX"
`

	err := os.WriteFile(configPath, []byte(invalidConfig), 0644)
	require.NoError(t, err)

	_, err = LoadFromPath(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rrule")
}

func TestLoadFromPath_MissingRequiredField(t *testing.T) {
	clearEnvOverrides(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.yaml")

	invalidConfig := `
timezone: "America/Mexico_City"
# Missing database
server:
  addr: ":8080"
  sessionTTL: "8h"
`

	err := os.WriteFile(configPath, []byte(invalidConfig), 0644)
	require.NoError(t, err)

	_, err = LoadFromPath(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadFromPath_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_yaml.yaml")

	invalidYAML := `
timezone: "America/Mexico_City"
  invalid indentation
server: ":8080"
`

	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	_, err = LoadFromPath(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadFromPath_FileNotFound(t *testing.T) {
	_, err := LoadFromPath("/nonexistent/path/config.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadWithEnv_FindsFileInWorkingDirectory(t *testing.T) {
	clearEnvOverrides(t)
	tmpDir := t.TempDir()
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })

	yamlConfig := `
timezone: "America/Mexico_City"
database:
  driver: "sqlite"
  url: ":memory:"
server:
  addr: ":9090"
  sessionTTL: "1h"
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "incident_desk_test.yaml"), []byte(yamlConfig), 0644))

	cfg, err := LoadWithEnv("test")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	_, err = LoadWithEnv("prod")
	assert.Error(t, err)
}
