package config

import (
	"os"
	"path/filepath"
	"testing"

	"repofetch/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.CacheRoot == "" {
		t.Error("CacheRoot should have a default")
	}
	if cfg.Quota.MaxTotalMB != 2048 {
		t.Errorf("MaxTotalMB = %d, want 2048", cfg.Quota.MaxTotalMB)
	}
	if cfg.Quota.MaxRepoMB != 500 {
		t.Errorf("MaxRepoMB = %d, want 500", cfg.Quota.MaxRepoMB)
	}
	if cfg.Quota.MaxAgeHours != 24 {
		t.Errorf("MaxAgeHours = %d, want 24", cfg.Quota.MaxAgeHours)
	}
	if cfg.Quota.MaxFileMB != 10 {
		t.Errorf("MaxFileMB = %d, want 10", cfg.Quota.MaxFileMB)
	}
	if cfg.Fetch.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Fetch.Concurrency)
	}
	if cfg.Fetch.CloneTimeoutSec != 300 {
		t.Errorf("CloneTimeoutSec = %d, want 300", cfg.Fetch.CloneTimeoutSec)
	}
	if cfg.Fetch.SubmoduleCloneTimeoutSec != 600 {
		t.Errorf("SubmoduleCloneTimeoutSec = %d, want 600", cfg.Fetch.SubmoduleCloneTimeoutSec)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestQuotaByteConversions(t *testing.T) {
	q := QuotaConfig{MaxTotalMB: 2, MaxRepoMB: 1, MaxAgeHours: 3, MaxFileMB: 1}
	if got := q.MaxTotalBytes(); got != 2*1024*1024 {
		t.Errorf("MaxTotalBytes() = %d", got)
	}
	if got := q.MaxRepoBytes(); got != 1024*1024 {
		t.Errorf("MaxRepoBytes() = %d", got)
	}
	if got := q.MaxAge().Hours(); got != 3 {
		t.Errorf("MaxAge() = %v hours", got)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	// Point at an empty directory so no config file is found.
	t.Setenv("HOME", t.TempDir())
	t.Setenv("REPOFETCH_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Quota.MaxTotalMB != 2048 {
		t.Errorf("MaxTotalMB = %d, want default 2048", cfg.Quota.MaxTotalMB)
	}
}

func TestLoadConfigExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "cacheRoot": "/tmp/repofetch-test-clones",
  "quota": {"maxTotalMb": 100, "maxRepoMb": 50},
  "fetch": {"concurrency": 2},
  "remote": {"defaultOrg": "acme"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.CacheRoot != "/tmp/repofetch-test-clones" {
		t.Errorf("CacheRoot = %q", cfg.CacheRoot)
	}
	if cfg.Quota.MaxTotalMB != 100 || cfg.Quota.MaxRepoMB != 50 {
		t.Errorf("quota = %+v", cfg.Quota)
	}
	if cfg.Fetch.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Fetch.Concurrency)
	}
	if cfg.Remote.DefaultOrg != "acme" {
		t.Errorf("DefaultOrg = %q, want acme", cfg.Remote.DefaultOrg)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Quota.MaxAgeHours != 24 {
		t.Errorf("MaxAgeHours = %d, want default 24", cfg.Quota.MaxAgeHours)
	}
	if cfg.Fetch.CloneTimeoutSec != 300 {
		t.Errorf("CloneTimeoutSec = %d, want default 300", cfg.Fetch.CloneTimeoutSec)
	}
}

func TestLoadConfigTokenFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REPOFETCH_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "ghp_from_env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Remote.Token != "ghp_from_env" {
		t.Errorf("Token = %q, want ghp_from_env", cfg.Remote.Token)
	}
}

func TestLoadConfigInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"quota": {"maxRepoMb": 5000, "maxTotalMb": 100}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfig(path)
	if errors.KindOf(err) != errors.ConfigInvalid {
		t.Errorf("KindOf(err) = %v, want ConfigInvalid", errors.KindOf(err))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty cache root", func(c *Config) { c.CacheRoot = "" }},
		{"zero total quota", func(c *Config) { c.Quota.MaxTotalMB = 0 }},
		{"repo quota over total", func(c *Config) { c.Quota.MaxRepoMB = c.Quota.MaxTotalMB + 1 }},
		{"zero max age", func(c *Config) { c.Quota.MaxAgeHours = 0 }},
		{"zero file quota", func(c *Config) { c.Quota.MaxFileMB = 0 }},
		{"zero concurrency", func(c *Config) { c.Fetch.Concurrency = 0 }},
		{"zero clone timeout", func(c *Config) { c.Fetch.CloneTimeoutSec = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"webhook without url", func(c *Config) { c.Webhooks = []WebhookConfig{{Name: "x"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if errors.KindOf(err) != errors.ConfigInvalid {
				t.Errorf("Validate() error = %v, want ConfigInvalid", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Remote.DefaultOrg = "acme"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Remote.DefaultOrg != "acme" {
		t.Errorf("DefaultOrg = %q after round trip", loaded.Remote.DefaultOrg)
	}
}
