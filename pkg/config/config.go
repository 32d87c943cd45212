// Package config holds the explicit runtime configuration for landscape-mcp.
//
// Configuration is resolved once at startup — environment variables first,
// then an optional YAML file overlay — and the resulting Config struct is
// passed into every constructor that needs it. There are no package-level
// mutable settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// API holds Landscape API connection settings.
type API struct {
	URI       string `env:"LANDSCAPE_API_URI" yaml:"uri"`
	AccessKey string `env:"LANDSCAPE_API_KEY" yaml:"access_key"`
	SecretKey string `env:"LANDSCAPE_API_SECRET" yaml:"secret_key"`
	SSLCAFile string `env:"LANDSCAPE_SSL_CA_FILE" yaml:"ssl_ca_file"`

	// Timeout bounds every upstream round trip. The dispatcher itself
	// enforces no deadline; this is the transport-level bound.
	Timeout time.Duration `env:"LANDSCAPE_API_TIMEOUT" envDefault:"30s" yaml:"timeout"`
}

// HTTP holds the HTTP/SSE gateway listen settings.
type HTTP struct {
	Host string `env:"MCP_HTTP_HOST" envDefault:"0.0.0.0" yaml:"host"`
	Port int    `env:"MCP_HTTP_PORT" envDefault:"8000" yaml:"port"`
}

// Defaults holds per-operation default argument values.
type Defaults struct {
	ComputerLimit  int `env:"LANDSCAPE_DEFAULT_COMPUTER_LIMIT" envDefault:"25" yaml:"computer_limit"`
	PackageLimit   int `env:"LANDSCAPE_DEFAULT_PACKAGE_LIMIT" envDefault:"50" yaml:"package_limit"`
	ActivityLimit  int `env:"LANDSCAPE_DEFAULT_ACTIVITY_LIMIT" envDefault:"3" yaml:"activity_limit"`
	OfflineMinutes int `env:"LANDSCAPE_DEFAULT_OFFLINE_MINUTES" envDefault:"60" yaml:"offline_minutes"`

	// FetchCap bounds the server-side fetch before local filtering is
	// applied (filter first, then truncate to the caller's limit).
	FetchCap int `env:"LANDSCAPE_FETCH_CAP" envDefault:"1000" yaml:"fetch_cap"`
}

// Audit holds invocation audit trail settings.
type Audit struct {
	// Backend is "none", "file" (JSONL), "sqlite", or "postgres".
	Backend string `env:"LANDSCAPE_AUDIT_BACKEND" envDefault:"none" yaml:"backend"`
	Path    string `env:"LANDSCAPE_AUDIT_PATH" yaml:"path"`

	// DSN is the PostgreSQL connection string, used only by the
	// "postgres" backend.
	DSN string `env:"LANDSCAPE_AUDIT_DSN" yaml:"dsn"`
}

// Config is the full landscape-mcp configuration.
type Config struct {
	API      API      `yaml:"api"`
	HTTP     HTTP     `yaml:"http"`
	Defaults Defaults `yaml:"defaults"`
	Audit    Audit    `yaml:"audit"`
}

// Load resolves configuration from the environment, then overlays the YAML
// file at path if path is non-empty. Environment values win for fields the
// file leaves unset; file values win where both are present.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is usable for serving.
func (c *Config) Validate() error {
	if c.API.URI == "" {
		return fmt.Errorf("LANDSCAPE_API_URI is required")
	}
	if c.API.AccessKey == "" {
		return fmt.Errorf("LANDSCAPE_API_KEY is required")
	}
	if c.API.SecretKey == "" {
		return fmt.Errorf("LANDSCAPE_API_SECRET is required")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("MCP_HTTP_PORT out of range: %d", c.HTTP.Port)
	}
	if c.Defaults.FetchCap <= 0 {
		return fmt.Errorf("fetch cap must be positive, got %d", c.Defaults.FetchCap)
	}
	switch c.Audit.Backend {
	case "none", "":
	case "file", "sqlite":
		if c.Audit.Path == "" {
			return fmt.Errorf("audit backend %q requires LANDSCAPE_AUDIT_PATH", c.Audit.Backend)
		}
	case "postgres":
		if c.Audit.DSN == "" {
			return fmt.Errorf("audit backend %q requires LANDSCAPE_AUDIT_DSN", c.Audit.Backend)
		}
	default:
		return fmt.Errorf("unknown audit backend %q (want none, file, sqlite, or postgres)", c.Audit.Backend)
	}
	return nil
}
