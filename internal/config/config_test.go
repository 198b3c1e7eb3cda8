package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Browser.Headless || !cfg.Browser.Stealth {
		t.Error("browser defaults not applied")
	}
	if cfg.Browser.NavigateTimeout != 30*time.Second {
		t.Errorf("navigate_timeout: got %v", cfg.Browser.NavigateTimeout)
	}
	if cfg.Session.CleanupTimeout != 5*time.Second || cfg.Session.SortMode != "size" {
		t.Errorf("session defaults: %+v", cfg.Session)
	}
	if cfg.Serve.HTTPAddr != "127.0.0.1:8477" {
		t.Errorf("http_addr: got %q", cfg.Serve.HTTPAddr)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typescope.yaml")
	os.WriteFile(path, []byte(`
browser:
  remote: ws://127.0.0.1:9222
  headless: false
  resource_blocking: [image, media]
  navigate_timeout: 10s
session:
  sort_mode: count
audit:
  db_path: /tmp/ts.db
`), 0o644)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Remote != "ws://127.0.0.1:9222" || cfg.Browser.Headless {
		t.Errorf("browser: %+v", cfg.Browser)
	}
	if len(cfg.Browser.ResourceBlocking) != 2 || cfg.Browser.NavigateTimeout != 10*time.Second {
		t.Errorf("browser: %+v", cfg.Browser)
	}
	if cfg.Session.SortMode != "count" || cfg.Audit.DBPath != "/tmp/ts.db" {
		t.Errorf("session/audit: %+v %+v", cfg.Session, cfg.Audit)
	}
	if cfg.Audit.BufferSize != 256 {
		t.Errorf("audit buffer default: got %d", cfg.Audit.BufferSize)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("browser: [oops"), 0o644)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TYPESCOPE_BROWSER_REMOTE":   "ws://remote",
		"TYPESCOPE_HEADLESS":         "false",
		"TYPESCOPE_NAVIGATE_TIMEOUT": "3s",
		"TYPESCOPE_LOG_LEVEL":        "debug",
		"TYPESCOPE_MCP_QUIC_ADDR":    ":9444",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Remote != "ws://remote" || cfg.Browser.Headless || cfg.Browser.NavigateTimeout != 3*time.Second {
		t.Errorf("browser: %+v", cfg.Browser)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level: got %q", cfg.Log.Level)
	}
	if cfg.Serve.MCPQUICAddr != ":9444" {
		t.Errorf("mcp quic addr: got %q", cfg.Serve.MCPQUICAddr)
	}

	env["TYPESCOPE_STEALTH"] = "maybe"
	if err := cfg.applyEnv(lookup); err == nil {
		t.Error("expected error for bad bool")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	os.WriteFile(envFile, []byte("TYPESCOPE_HTTP_ADDR=127.0.0.1:9999\n"), 0o644)
	t.Setenv("TYPESCOPE_HTTP_ADDR", "")
	os.Unsetenv("TYPESCOPE_HTTP_ADDR")

	cfg, err := Load("", envFile)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Serve.HTTPAddr != "127.0.0.1:9999" {
		t.Errorf("http_addr from .env: got %q", cfg.Serve.HTTPAddr)
	}
	os.Unsetenv("TYPESCOPE_HTTP_ADDR")
}
