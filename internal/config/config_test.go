package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Name != "focusbridge-mcp" {
		t.Errorf("expected default server name, got %q", cfg.Server.Name)
	}
	if cfg.Host.AppName != "OmniFocus" {
		t.Errorf("expected default app name OmniFocus, got %q", cfg.Host.AppName)
	}
	if cfg.Host.Bin != "osascript" {
		t.Errorf("expected default host bin osascript, got %q", cfg.Host.Bin)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("expected error for empty config path")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	raw := `
host:
  app_name: "OmniFocus 4"
  invocation_timeout: "25s"
  enable_bridge: false

cache:
  task_ttl: "10s"

recorder:
  enabled: true
  dir: "/tmp/traces"
`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Changed fields
	if cfg.Host.AppName != "OmniFocus 4" {
		t.Errorf("expected app name override, got %q", cfg.Host.AppName)
	}
	if cfg.Host.Timeout() != 25*time.Second {
		t.Errorf("expected 25s timeout, got %v", cfg.Host.Timeout())
	}
	if cfg.Host.IsBridgeEnabled() {
		t.Error("expected bridge to be disabled")
	}
	if cfg.Cache.GetTaskTTL() != 10*time.Second {
		t.Errorf("expected 10s task TTL, got %v", cfg.Cache.GetTaskTTL())
	}
	if !cfg.Recorder.Enabled || cfg.Recorder.Dir != "/tmp/traces" {
		t.Errorf("expected recorder override, got %+v", cfg.Recorder)
	}

	// Unchanged defaults
	if cfg.Server.Name != "focusbridge-mcp" {
		t.Errorf("expected default server name, got %q", cfg.Server.Name)
	}
	if cfg.Host.Bin != "osascript" {
		t.Errorf("expected default host bin, got %q", cfg.Host.Bin)
	}
	if cfg.Cache.GetStructuralTTL() != 5*time.Minute {
		t.Errorf("expected default structural TTL, got %v", cfg.Cache.GetStructuralTTL())
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("host: [not a map"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing server name", func(c *Config) { c.Server.Name = "" }, true},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }, true},
		{"missing app name", func(c *Config) { c.Host.AppName = "" }, true},
		{"recorder without dir", func(c *Config) { c.Recorder.Enabled = true; c.Recorder.Dir = "" }, true},
		{"sse port out of range", func(c *Config) { c.MCP.SSEPort = 70000 }, true},
		{"sse port valid", func(c *Config) { c.MCP.SSEPort = 8931 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHostAccessorDefaults(t *testing.T) {
	var h HostConfig

	if h.Timeout() != 60*time.Second {
		t.Errorf("expected 60s default timeout, got %v", h.Timeout())
	}
	if h.MaxOutputBytes() != 4<<20 {
		t.Errorf("expected 4MiB default output cap, got %d", h.MaxOutputBytes())
	}
	if h.MaxScriptBytes() != 500_000 {
		t.Errorf("expected 500000 byte default script ceiling, got %d", h.MaxScriptBytes())
	}
	if !h.IsBridgeEnabled() {
		t.Error("expected bridge enabled by default")
	}

	h = HostConfig{InvocationTimeout: "not-a-duration", MaxOutputKB: 8, MaxScriptKB: 100}
	if h.Timeout() != 60*time.Second {
		t.Errorf("unparseable timeout should fall back, got %v", h.Timeout())
	}
	if h.MaxOutputBytes() != 8*1024 {
		t.Errorf("expected 8KiB, got %d", h.MaxOutputBytes())
	}
	if h.MaxScriptBytes() != 100*1024 {
		t.Errorf("expected 100KiB, got %d", h.MaxScriptBytes())
	}
}

func TestCacheAccessorDefaults(t *testing.T) {
	var cc CacheConfig

	if !cc.IsEnabled() {
		t.Error("expected cache enabled by default")
	}
	if cc.GetTaskTTL() != 30*time.Second {
		t.Errorf("expected 30s task TTL, got %v", cc.GetTaskTTL())
	}
	if cc.GetStructuralTTL() != 5*time.Minute {
		t.Errorf("expected 5m structural TTL, got %v", cc.GetStructuralTTL())
	}
	if cc.GetAnalyticsTTL() != time.Hour {
		t.Errorf("expected 1h analytics TTL, got %v", cc.GetAnalyticsTTL())
	}
	if cc.GetCleanupEvery() != time.Minute {
		t.Errorf("expected 1m cleanup interval, got %v", cc.GetCleanupEvery())
	}

	off := false
	cc = CacheConfig{Enabled: &off, TaskTTL: "45s"}
	if cc.IsEnabled() {
		t.Error("expected cache disabled when set to false")
	}
	if cc.GetTaskTTL() != 45*time.Second {
		t.Errorf("expected 45s task TTL, got %v", cc.GetTaskTTL())
	}
}

func TestRecorderAndMCPAccessors(t *testing.T) {
	var r RecorderConfig
	if r.GetMaxTraces() != 500 {
		t.Errorf("expected 500 default max traces, got %d", r.GetMaxTraces())
	}
	r.MaxTraces = 50
	if r.GetMaxTraces() != 50 {
		t.Errorf("expected 50 max traces, got %d", r.GetMaxTraces())
	}

	m := MCPConfig{SSEPort: 8931}
	if m.BaseURL() != "http://localhost:8931" {
		t.Errorf("expected derived base URL, got %q", m.BaseURL())
	}
	m.SSEBaseURL = "https://focus.example.com"
	if m.BaseURL() != "https://focus.example.com" {
		t.Errorf("expected explicit base URL, got %q", m.BaseURL())
	}
}
