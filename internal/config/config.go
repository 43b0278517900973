package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level FocusBridge config.
	WorkspaceDirName = ".focusbridge"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for the FocusBridge MCP server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Host     HostConfig     `yaml:"host"`
	Cache    CacheConfig    `yaml:"cache"`
	Recorder RecorderConfig `yaml:"recorder"`
	MCP      MCPConfig      `yaml:"mcp"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	// LogFile receives structured logs. In stdio mode stdout belongs to the
	// protocol, so logging never goes there.
	LogFile string `yaml:"log_file"`
	// LogLevel: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// HostConfig configures how scripts reach the scripting host.
type HostConfig struct {
	// Application the scripts target (default: OmniFocus).
	AppName string `yaml:"app_name"`
	// Host binary (default: osascript). Tests point this at stubs.
	Bin string `yaml:"bin"`
	// Hard per-invocation timeout (e.g., "60s").
	InvocationTimeout string `yaml:"invocation_timeout"`
	// Cap on captured output per stream, in KiB (default: 4096).
	MaxOutputKB int `yaml:"max_output_kb"`
	// Cap on assembled script size, in KiB. Unset keeps the built-in ceiling.
	MaxScriptKB int `yaml:"max_script_kb"`
	// EnableBridge controls secondary-context escalation (default: true).
	// With it off, operations that require the secondary context fail
	// validation instead of reaching the host.
	EnableBridge *bool `yaml:"enable_bridge"`
}

// CacheConfig controls the read-side cache.
type CacheConfig struct {
	// Enabled turns result caching on (default: true).
	Enabled *bool `yaml:"enabled"`
	// Lifetimes per category (e.g., "30s", "5m", "1h").
	TaskTTL       string `yaml:"task_ttl"`
	StructuralTTL string `yaml:"structural_ttl"`
	AnalyticsTTL  string `yaml:"analytics_ttl"`
	// CleanupEvery is the janitor interval (e.g., "1m").
	CleanupEvery string `yaml:"cleanup_every"`
}

// RecorderConfig controls invocation trace recording.
type RecorderConfig struct {
	// Enabled turns trace recording on (default: false).
	Enabled bool `yaml:"enabled"`
	// Dir receives trace files when flushing to disk.
	Dir string `yaml:"dir"`
	// MaxTraces bounds how many trace entries are kept in memory.
	MaxTraces int `yaml:"max_traces"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
	// External base URL handed to SSE clients (default: http://localhost:<port>).
	SSEBaseURL string `yaml:"sse_base_url"`
}

// DefaultConfig provides reasonable defaults for local use.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:     "focusbridge-mcp",
			Version:  "0.2.0",
			LogFile:  "focusbridge-mcp.log",
			LogLevel: "info",
		},
		Host: HostConfig{
			AppName:           "OmniFocus",
			Bin:               "osascript",
			InvocationTimeout: "60s",
		},
		Cache: CacheConfig{
			TaskTTL:       "30s",
			StructuralTTL: "5m",
			AnalyticsTTL:  "1h",
			CleanupEvery:  "1m",
		},
		Recorder: RecorderConfig{
			Enabled:   false,
			Dir:       filepath.Join(WorkspaceDirName, "traces"),
			MaxTraces: 500,
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .focusbridge/config.yaml file.
// Returns the workspace root directory (parent of .focusbridge/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .focusbridge/config.yaml <- explicit --config <- CLI flags
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	// Layer 1: Workspace config (if not disabled)
	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			// Verify the explicit workspace dir has a config
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	// Layer 2: Explicit config file (--config flag)
	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .focusbridge/ directory with template files at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	// Check if already exists
	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	// Create directory structure
	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "traces"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	// Write template config
	templateConfig := `# FocusBridge project-level configuration
# Values here override defaults but are overridden by --config and CLI flags.

# host:
#   app_name: OmniFocus
#   invocation_timeout: "60s"
#   enable_bridge: true

# cache:
#   task_ttl: "30s"
#   structural_ttl: "5m"
#   analytics_ttl: "1h"

# recorder:
#   enabled: true
#   dir: ".focusbridge/traces"
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	// Write .gitignore for trace output
	gitignoreContent := "# Runtime data (logs, traces) - do not version control\ntraces/\n"
	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Recorder.Dir = resolve(cfg.Recorder.Dir)
	return cfg
}

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	switch c.Server.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q is not one of debug, info, warn, error", c.Server.LogLevel)
	}
	if c.Host.AppName == "" {
		return errors.New("host.app_name is required")
	}
	if c.Recorder.Enabled && c.Recorder.Dir == "" {
		return errors.New("recorder.dir is required when the recorder is enabled")
	}
	if c.MCP.SSEPort < 0 || c.MCP.SSEPort > 65535 {
		return fmt.Errorf("mcp.sse_port %d is out of range", c.MCP.SSEPort)
	}
	return nil
}

// Timeout returns the parsed per-invocation timeout with a sane default.
func (h HostConfig) Timeout() time.Duration {
	if h.InvocationTimeout == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(h.InvocationTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// MaxOutputBytes returns the per-stream capture cap with a sane default.
func (h HostConfig) MaxOutputBytes() int {
	if h.MaxOutputKB <= 0 {
		return 4 << 20
	}
	return h.MaxOutputKB * 1024
}

// MaxScriptBytes returns the script build ceiling. Unset keeps the host
// argument-size headroom the executor was designed around.
func (h HostConfig) MaxScriptBytes() int {
	if h.MaxScriptKB <= 0 {
		return 500_000
	}
	return h.MaxScriptKB * 1024
}

// IsBridgeEnabled returns whether secondary-context escalation is allowed (default: true).
func (h HostConfig) IsBridgeEnabled() bool {
	if h.EnableBridge == nil {
		return true
	}
	return *h.EnableBridge
}

// IsEnabled returns whether caching is on (default: true).
func (cc CacheConfig) IsEnabled() bool {
	if cc.Enabled == nil {
		return true
	}
	return *cc.Enabled
}

// GetTaskTTL returns the parsed task-category lifetime with a sane default.
func (cc CacheConfig) GetTaskTTL() time.Duration {
	return parseDurationOr(cc.TaskTTL, 30*time.Second)
}

// GetStructuralTTL returns the parsed structural-category lifetime with a sane default.
func (cc CacheConfig) GetStructuralTTL() time.Duration {
	return parseDurationOr(cc.StructuralTTL, 5*time.Minute)
}

// GetAnalyticsTTL returns the parsed analytics lifetime with a sane default.
func (cc CacheConfig) GetAnalyticsTTL() time.Duration {
	return parseDurationOr(cc.AnalyticsTTL, time.Hour)
}

// GetCleanupEvery returns the parsed janitor interval with a sane default.
func (cc CacheConfig) GetCleanupEvery() time.Duration {
	return parseDurationOr(cc.CleanupEvery, time.Minute)
}

// GetMaxTraces returns the in-memory trace bound with a sane default.
func (r RecorderConfig) GetMaxTraces() int {
	if r.MaxTraces <= 0 {
		return 500
	}
	return r.MaxTraces
}

// BaseURL returns the SSE base URL with a sane default for the configured port.
func (m MCPConfig) BaseURL() string {
	if m.SSEBaseURL != "" {
		return m.SSEBaseURL
	}
	return fmt.Sprintf("http://localhost:%d", m.SSEPort)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
