// Package setup writes a starter configuration and registers the dashboard
// MCP server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/trial-progress-dashboard/internal/config"
)

// ServerName is the key the dashboard MCP server is registered under.
const ServerName = "trial-progress-dashboard"

// BinaryName is the MCP server executable.
const BinaryName = "dashboard-mcp"

// ClientConfig represents an MCP client configuration file.
type ClientConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for registering the MCP server.
type Options struct {
	ClientConfigPath string // empty for the desktop client's default
	BinaryPath       string // empty to search common locations
	ConfigFile       string // dashboard configuration passed to the server
	DataDir          string
}

// DesktopConfigPath returns the path to the desktop MCP client's config file.
func DesktopConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClientConfig loads an MCP client configuration. A missing file yields
// an empty configuration.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ClientConfig{MCPServers: make(map[string]MCPServerConfig)}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ClientConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]MCPServerConfig)
	}
	return &cfg, nil
}

// SaveClientConfig writes an MCP client configuration.
func SaveClientConfig(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or updates the dashboard MCP server in the client
// configuration and returns the file written. Other servers are preserved.
func Register(opts Options) (string, error) {
	path := opts.ClientConfigPath
	if path == "" {
		var err error
		if path, err = DesktopConfigPath(); err != nil {
			return "", err
		}
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return "", err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		if binaryPath, err = FindBinary(BinaryName); err != nil {
			return "", fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry := MCPServerConfig{Command: binaryPath, Env: make(map[string]string)}
	if opts.ConfigFile != "" {
		abs, err := filepath.Abs(opts.ConfigFile)
		if err != nil {
			return "", fmt.Errorf("failed to resolve config path: %w", err)
		}
		entry.Args = []string{"--config", abs}
	}
	if opts.DataDir != "" {
		entry.Env[config.DataDirEnv] = opts.DataDir
	}
	cfg.MCPServers[ServerName] = entry

	if err := SaveClientConfig(path, cfg); err != nil {
		return "", err
	}
	return path, nil
}

// FindBinary looks for the named executable on PATH and in common build
// locations.
func FindBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	locations := []string{
		"./" + name,
		"./build/" + name,
		filepath.Join(os.Getenv("HOME"), ".local", "bin", name),
		"/usr/local/bin/" + name,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}

	return "", fmt.Errorf("binary '%s' not found in common locations", name)
}

// StarterConfig is the configuration written by WriteStarterConfig.
const StarterConfig = `# Trial progress dashboard configuration.
# Every key can be overridden with a TRIALDASH_ environment variable,
# e.g. TRIALDASH_SOURCE_KIND=redcap.
environment: development

server:
  host: 0.0.0.0
  port: 8080

source:
  kind: csv # csv or redcap
  csv:
    dir: ./data
    exclusion_file: exclusion.csv
    in_hospital_file: in_hospital.csv
    follow_up_file: follow_up.csv
  redcap:
    base_url: ""
    exclusion_token: ""
    in_hospital_token: ""
    follow_up_token: ""

study:
  enrollment_goal: 400
  as_of: "" # YYYY-MM-DD, empty for today
  timezone: UTC

cache:
  kind: memory # memory, redis or none
  default_ttl: 24h

ledger:
  driver: sqlite # sqlite, postgres or none

refresh:
  interval: 1h
  on_startup: true

logging:
  level: info
  format: json
`

// WriteStarterConfig writes StarterConfig to path. An existing file is only
// replaced when force is set.
func WriteStarterConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(StarterConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
