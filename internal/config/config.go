// Package config loads typescope's configuration from a YAML file, an
// optional .env file and TYPESCOPE_* environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Session SessionConfig `yaml:"session"`
	Serve   ServeConfig   `yaml:"serve"`
	Audit   AuditConfig   `yaml:"audit"`
	Log     LogConfig     `yaml:"log"`
}

// BrowserConfig controls the Chrome instance hosting the inspected page.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"` // ws:// URL of an existing browser
	Bin              string        `yaml:"bin"`
	Headless         bool          `yaml:"headless"`
	Stealth          bool          `yaml:"stealth"`
	ResourceBlocking []string      `yaml:"resource_blocking"` // image | media | font
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
	ViewportWidth    int           `yaml:"viewport_width"`
	ViewportHeight   int           `yaml:"viewport_height"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	MemoryLimit      int64         `yaml:"memory_limit"`
}

// SessionConfig controls the controller.
type SessionConfig struct {
	CleanupTimeout time.Duration `yaml:"cleanup_timeout"`
	Clipboard      bool          `yaml:"clipboard"` // write inspector copies to the system clipboard
	SortMode       string        `yaml:"sort_mode"` // size | count
}

// ServeConfig controls the consumer surfaces.
type ServeConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	MCPStdio bool   `yaml:"mcp_stdio"`
	// MCPQUICAddr, when set, also serves MCP over QUIC for remote agents.
	MCPQUICAddr string `yaml:"mcp_quic_addr"`
	// TLSCert and TLSKey secure the QUIC listener; empty uses a
	// self-signed certificate.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// AuditConfig controls the command audit trail.
type AuditConfig struct {
	DBPath        string `yaml:"db_path"` // empty disables auditing
	BufferSize    int    `yaml:"buffer_size"`
	RetentionDays int    `yaml:"retention_days"`
}

// LogConfig controls slog.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{Browser: BrowserConfig{Headless: true, Stealth: true}, Session: SessionConfig{Clipboard: true}}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML file. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Load reads the YAML file, then the .env file (missing is fine), then
// applies TYPESCOPE_* overrides.
func Load(path, envFile string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: env file %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 1280
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 800
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Session.CleanupTimeout <= 0 {
		c.Session.CleanupTimeout = 5 * time.Second
	}
	if c.Session.SortMode == "" {
		c.Session.SortMode = "size"
	}
	if c.Serve.HTTPAddr == "" {
		c.Serve.HTTPAddr = "127.0.0.1:8477"
	}
	if c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = 256
	}
	if c.Audit.RetentionDays <= 0 {
		c.Audit.RetentionDays = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = b
		return nil
	}
	str("TYPESCOPE_BROWSER_REMOTE", &c.Browser.Remote)
	str("TYPESCOPE_BROWSER_BIN", &c.Browser.Bin)
	str("TYPESCOPE_HTTP_ADDR", &c.Serve.HTTPAddr)
	str("TYPESCOPE_MCP_QUIC_ADDR", &c.Serve.MCPQUICAddr)
	str("TYPESCOPE_AUDIT_DB", &c.Audit.DBPath)
	str("TYPESCOPE_LOG_LEVEL", &c.Log.Level)
	if err := boolean("TYPESCOPE_HEADLESS", &c.Browser.Headless); err != nil {
		return err
	}
	if err := boolean("TYPESCOPE_STEALTH", &c.Browser.Stealth); err != nil {
		return err
	}
	if err := boolean("TYPESCOPE_CLIPBOARD", &c.Session.Clipboard); err != nil {
		return err
	}
	if v, ok := lookup("TYPESCOPE_NAVIGATE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: TYPESCOPE_NAVIGATE_TIMEOUT: %w", err)
		}
		c.Browser.NavigateTimeout = d
	}
	return nil
}
