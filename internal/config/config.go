package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"repofetch/internal/errors"
)

// Config represents the complete repofetch configuration
type Config struct {
	CacheRoot   string `json:"cacheRoot" mapstructure:"cacheRoot"`
	PresetsFile string `json:"presetsFile" mapstructure:"presetsFile"`
	AliasesFile string `json:"aliasesFile" mapstructure:"aliasesFile"`

	Remote   RemoteConfig    `json:"remote" mapstructure:"remote"`
	Quota    QuotaConfig     `json:"quota" mapstructure:"quota"`
	Fetch    FetchConfig     `json:"fetch" mapstructure:"fetch"`
	Logging  LoggingConfig   `json:"logging" mapstructure:"logging"`
	Webhooks []WebhookConfig `json:"webhooks,omitempty" mapstructure:"webhooks"`
}

// RemoteConfig contains the hosting-provider connection settings
type RemoteConfig struct {
	// BaseURL points at a GitHub Enterprise instance; empty means github.com.
	BaseURL    string `json:"baseUrl,omitempty" mapstructure:"baseUrl"`
	Token      string `json:"token,omitempty" mapstructure:"token"`
	DefaultOrg string `json:"defaultOrg,omitempty" mapstructure:"defaultOrg"`
}

// QuotaConfig contains the clone cache and file size limits
type QuotaConfig struct {
	MaxTotalMB  int `json:"maxTotalMb" mapstructure:"maxTotalMb"`
	MaxRepoMB   int `json:"maxRepoMb" mapstructure:"maxRepoMb"`
	MaxAgeHours int `json:"maxAgeHours" mapstructure:"maxAgeHours"`
	MaxFileMB   int `json:"maxFileMb" mapstructure:"maxFileMb"`
}

// MaxTotalBytes returns the aggregate cache budget in bytes.
func (q QuotaConfig) MaxTotalBytes() int64 { return int64(q.MaxTotalMB) * 1024 * 1024 }

// MaxRepoBytes returns the per-clone size ceiling in bytes.
func (q QuotaConfig) MaxRepoBytes() int64 { return int64(q.MaxRepoMB) * 1024 * 1024 }

// MaxFileBytes returns the single-file size ceiling in bytes.
func (q QuotaConfig) MaxFileBytes() int64 { return int64(q.MaxFileMB) * 1024 * 1024 }

// MaxAge returns how long an unused clone may stay cached.
func (q QuotaConfig) MaxAge() time.Duration { return time.Duration(q.MaxAgeHours) * time.Hour }

// FetchConfig contains retrieval concurrency and timeout settings
type FetchConfig struct {
	Concurrency              int `json:"concurrency" mapstructure:"concurrency"`
	FileTimeoutSec           int `json:"fileTimeoutSec" mapstructure:"fileTimeoutSec"`
	CloneTimeoutSec          int `json:"cloneTimeoutSec" mapstructure:"cloneTimeoutSec"`
	SubmoduleCloneTimeoutSec int `json:"submoduleCloneTimeoutSec" mapstructure:"submoduleCloneTimeoutSec"`
}

// FileTimeout returns the per-file remote read timeout.
func (f FetchConfig) FileTimeout() time.Duration {
	return time.Duration(f.FileTimeoutSec) * time.Second
}

// CloneTimeout returns the timeout for a plain shallow clone.
func (f FetchConfig) CloneTimeout() time.Duration {
	return time.Duration(f.CloneTimeoutSec) * time.Second
}

// SubmoduleCloneTimeout returns the timeout for a clone with submodules.
func (f FetchConfig) SubmoduleCloneTimeout() time.Duration {
	return time.Duration(f.SubmoduleCloneTimeoutSec) * time.Second
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// WebhookConfig defines a notification endpoint in configuration
type WebhookConfig struct {
	Name   string   `json:"name" mapstructure:"name"`
	URL    string   `json:"url" mapstructure:"url"`
	Secret string   `json:"secret,omitempty" mapstructure:"secret"`
	Events []string `json:"events,omitempty" mapstructure:"events"`
}

// DefaultDir returns the directory holding config, presets, aliases and
// the clone cache.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".repofetch"
	}
	return filepath.Join(home, ".repofetch")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	dir := DefaultDir()
	return &Config{
		CacheRoot:   filepath.Join(dir, "clones"),
		PresetsFile: filepath.Join(dir, "presets.yaml"),
		AliasesFile: filepath.Join(dir, "aliases.toml"),
		Remote:      RemoteConfig{},
		Quota: QuotaConfig{
			MaxTotalMB:  2048,
			MaxRepoMB:   500,
			MaxAgeHours: 24,
			MaxFileMB:   10,
		},
		Fetch: FetchConfig{
			Concurrency:              8,
			FileTimeoutSec:           30,
			CloneTimeoutSec:          300,
			SubmoduleCloneTimeoutSec: 600,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from path, or from config.json in the
// default directory and the working directory when path is empty. A
// missing config file yields the defaults. The remote token falls back
// to REPOFETCH_TOKEN, then GITHUB_TOKEN, when the file does not set one.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(DefaultDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(errors.ConfigInvalid, "reading config file", err)
		}
		// No config file anywhere on the search path: run on defaults.
	} else {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, errors.Wrap(errors.ConfigInvalid, "parsing config file", err)
		}
	}

	if cfg.Remote.Token == "" {
		cfg.Remote.Token = os.Getenv("REPOFETCH_TOKEN")
	}
	if cfg.Remote.Token == "" {
		cfg.Remote.Token = os.Getenv("GITHUB_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as indented JSON.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.CacheRoot == "" {
		return errors.New(errors.ConfigInvalid, "cacheRoot must not be empty")
	}
	if c.Quota.MaxTotalMB <= 0 {
		return errors.Newf(errors.ConfigInvalid, "quota.maxTotalMb must be positive, got %d", c.Quota.MaxTotalMB)
	}
	if c.Quota.MaxRepoMB <= 0 {
		return errors.Newf(errors.ConfigInvalid, "quota.maxRepoMb must be positive, got %d", c.Quota.MaxRepoMB)
	}
	if c.Quota.MaxRepoMB > c.Quota.MaxTotalMB {
		return errors.Newf(errors.ConfigInvalid, "quota.maxRepoMb (%d) exceeds quota.maxTotalMb (%d)",
			c.Quota.MaxRepoMB, c.Quota.MaxTotalMB)
	}
	if c.Quota.MaxAgeHours <= 0 {
		return errors.Newf(errors.ConfigInvalid, "quota.maxAgeHours must be positive, got %d", c.Quota.MaxAgeHours)
	}
	if c.Quota.MaxFileMB <= 0 {
		return errors.Newf(errors.ConfigInvalid, "quota.maxFileMb must be positive, got %d", c.Quota.MaxFileMB)
	}
	if c.Fetch.Concurrency < 1 {
		return errors.Newf(errors.ConfigInvalid, "fetch.concurrency must be at least 1, got %d", c.Fetch.Concurrency)
	}
	if c.Fetch.FileTimeoutSec <= 0 || c.Fetch.CloneTimeoutSec <= 0 || c.Fetch.SubmoduleCloneTimeoutSec <= 0 {
		return errors.New(errors.ConfigInvalid, "fetch timeouts must be positive")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.ConfigInvalid, "logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "human", "json":
	default:
		return errors.Newf(errors.ConfigInvalid, "logging.format %q is not one of human, json", c.Logging.Format)
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return errors.Newf(errors.ConfigInvalid, "webhooks[%d] has no url", i)
		}
	}
	return nil
}
