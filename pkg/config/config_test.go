package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LANDSCAPE_API_URI", "https://landscape.example.com/api/")
	t.Setenv("LANDSCAPE_API_KEY", "access")
	t.Setenv("LANDSCAPE_API_SECRET", "secret")
}

func TestLoad_EnvDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.API.Timeout)
	}
	if cfg.HTTP.Host != "0.0.0.0" || cfg.HTTP.Port != 8000 {
		t.Errorf("http = %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	}
	if cfg.Defaults.ComputerLimit != 25 || cfg.Defaults.PackageLimit != 50 || cfg.Defaults.ActivityLimit != 3 {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
	if cfg.Defaults.OfflineMinutes != 60 || cfg.Defaults.FetchCap != 1000 {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
	if cfg.Audit.Backend != "none" {
		t.Errorf("audit backend = %q, want none", cfg.Audit.Backend)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
http:
  port: 9090
defaults:
  computer_limit: 10
audit:
  backend: file
  path: /tmp/audit.jsonl
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d, want 9090 (file overrides env default)", cfg.HTTP.Port)
	}
	if cfg.Defaults.ComputerLimit != 10 {
		t.Errorf("computer_limit = %d, want 10", cfg.Defaults.ComputerLimit)
	}
	if cfg.Audit.Backend != "file" || cfg.Audit.Path != "/tmp/audit.jsonl" {
		t.Errorf("audit = %+v", cfg.Audit)
	}
	// Env-derived values survive an overlay that doesn't mention them.
	if cfg.API.URI != "https://landscape.example.com/api/" {
		t.Errorf("uri = %q", cfg.API.URI)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	setRequiredEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		return &Config{
			API:      API{URI: "https://l.example.com/api/", AccessKey: "a", SecretKey: "s"},
			HTTP:     HTTP{Host: "0.0.0.0", Port: 8000},
			Defaults: Defaults{FetchCap: 1000},
			Audit:    Audit{Backend: "none"},
		}
	}

	cases := map[string]func(*Config){
		"missing uri":          func(c *Config) { c.API.URI = "" },
		"missing access key":   func(c *Config) { c.API.AccessKey = "" },
		"missing secret key":   func(c *Config) { c.API.SecretKey = "" },
		"port out of range":    func(c *Config) { c.HTTP.Port = 70000 },
		"zero fetch cap":       func(c *Config) { c.Defaults.FetchCap = 0 },
		"file without path":    func(c *Config) { c.Audit.Backend = "file" },
		"postgres without dsn": func(c *Config) { c.Audit.Backend = "postgres" },
		"unknown audit":        func(c *Config) { c.Audit.Backend = "etcd" },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
