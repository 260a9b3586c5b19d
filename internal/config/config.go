package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no config path is given.
const DefaultPath = "configs/config.yaml"

var ErrInvalidConfig = errors.New("invalid config")

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	BackupPath    string `yaml:"backup_path"`
}

type RedisConfig struct {
	Address  string  `yaml:"address"`
	Password string  `yaml:"password"`
	DB       int     `yaml:"db"`
	Channel  string  `yaml:"channel"`
	Rate     float64 `yaml:"rate"`
	Burst    int     `yaml:"burst"`
}

type MonitoringConfig struct {
	HealthCheckPort   int  `yaml:"health_check_port"`
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Journal    JournalConfig    `yaml:"journal"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// LoadEnv reads KEY=VALUE pairs from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML config at path. ${ENV_VAR} placeholders are expanded
// before parsing.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes a YAML document and applies defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/evbus_journal.db"
	}
	if c.Journal.BackupPath == "" {
		c.Journal.BackupPath = filepath.Join(filepath.Dir(c.Journal.Path), "backups")
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "evbus"
	}
	if c.Redis.Rate <= 0 {
		c.Redis.Rate = 100
	}
	if c.Redis.Burst <= 0 {
		c.Redis.Burst = 200
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	if c.Journal.RetentionDays < 0 {
		return fmt.Errorf("%w: journal.retention_days must not be negative", ErrInvalidConfig)
	}
	if c.Monitoring.HealthCheckPort < 0 || c.Monitoring.PrometheusPort < 0 {
		return fmt.Errorf("%w: negative port", ErrInvalidConfig)
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// JournalRetention returns how long journal entries are kept. Zero disables
// cleanup.
func (c *Config) JournalRetention() time.Duration {
	return time.Duration(c.Journal.RetentionDays) * 24 * time.Hour
}

// RelayEnabled reports whether a Redis address was configured.
func (c *Config) RelayEnabled() bool {
	return c.Redis.Address != ""
}
