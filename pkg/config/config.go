package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

const appName = "jellyterm"

// TOMLConfig represents the structure of the client config file
type TOMLConfig struct {
	Client    ClientSection    `toml:"client"`
	Storage   StorageSection   `toml:"storage"`
	Discovery DiscoverySection `toml:"discovery"`
	Metrics   MetricsSection   `toml:"metrics"`
	Log       LogSection       `toml:"log"`
}

type ClientSection struct {
	DeviceName string `toml:"device_name"`
}

type StorageSection struct {
	DatabasePath string `toml:"database_path"`
}

type DiscoverySection struct {
	TimeoutMS     int    `toml:"timeout_ms"`
	MaxServers    int    `toml:"max_servers"`
	BroadcastPort int    `toml:"broadcast_port"`
	MDNSEnabled   bool   `toml:"mdns_enabled"`
	MDNSService   string `toml:"mdns_service"`
	Notify        bool   `toml:"notify"`
}

type MetricsSection struct {
	ListenAddr string `toml:"listen_addr"`
}

type LogSection struct {
	Path string `toml:"path"`
}

// Timeout returns the discovery timeout as a duration
func (d DiscoverySection) Timeout() time.Duration {
	return time.Duration(d.TimeoutMS) * time.Millisecond
}

// DefaultConfigPath returns the config file location under the XDG config home
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = appName
	}

	return TOMLConfig{
		Client: ClientSection{
			DeviceName: hostname,
		},
		Storage: StorageSection{
			DatabasePath: filepath.Join(xdg.DataHome, appName, "state.db"),
		},
		Discovery: DiscoverySection{
			TimeoutMS:     500,
			MaxServers:    10,
			BroadcastPort: 7359,
			MDNSEnabled:   false,
			MDNSService:   "_jellyfin._tcp",
			Notify:        false,
		},
		Metrics: MetricsSection{
			ListenAddr: "", // Disabled
		},
		Log: LogSection{
			Path: filepath.Join(xdg.StateHome, appName, "jellyterm.log"),
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found,
// and applies environment variable overrides
func LoadConfig(path string) (TOMLConfig, error) {
	path = expandHome(path)

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		// If we can't write, just return defaults without error
		_ = writeDefaultConfig(path)
		return applyEnvOverrides(config), nil
	}

	// Start from defaults so keys missing in the file keep their default
	config := DefaultTOMLConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.Storage.DatabasePath = expandHome(config.Storage.DatabasePath)
	config.Log.Path = expandHome(config.Log.Path)

	return applyEnvOverrides(config), nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// applyEnvOverrides applies environment variable overrides to the config
// Environment variables follow the pattern: JELLYTERM_SECTION_KEY
// Example: JELLYTERM_DISCOVERY_TIMEOUT_MS=2000
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	// Client section
	if val := os.Getenv("JELLYTERM_CLIENT_DEVICE_NAME"); val != "" {
		config.Client.DeviceName = val
	}

	// Storage section
	if val := os.Getenv("JELLYTERM_STORAGE_DATABASE_PATH"); val != "" {
		config.Storage.DatabasePath = expandHome(val)
	}

	// Discovery section
	if val := os.Getenv("JELLYTERM_DISCOVERY_TIMEOUT_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			config.Discovery.TimeoutMS = ms
		}
	}
	if val := os.Getenv("JELLYTERM_DISCOVERY_MAX_SERVERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Discovery.MaxServers = n
		}
	}
	if val := os.Getenv("JELLYTERM_DISCOVERY_BROADCAST_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Discovery.BroadcastPort = port
		}
	}
	if val := os.Getenv("JELLYTERM_DISCOVERY_MDNS_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Discovery.MDNSEnabled = enabled
		}
	}
	if val := os.Getenv("JELLYTERM_DISCOVERY_MDNS_SERVICE"); val != "" {
		config.Discovery.MDNSService = val
	}
	if val := os.Getenv("JELLYTERM_DISCOVERY_NOTIFY"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Discovery.Notify = enabled
		}
	}

	// Metrics section
	if val, ok := os.LookupEnv("JELLYTERM_METRICS_LISTEN_ADDR"); ok {
		config.Metrics.ListenAddr = val
	}

	// Log section
	if val := os.Getenv("JELLYTERM_LOG_PATH"); val != "" {
		config.Log.Path = expandHome(val)
	}

	return config
}

// writeDefaultConfig writes the default config to a file with all options documented
func writeDefaultConfig(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := `# jellyterm configuration
# This file was auto-generated. Commented settings show available options
# with their defaults; uncomment to change them.
#
# Environment variables can override these settings:
# JELLYTERM_SECTION_KEY (e.g., JELLYTERM_DISCOVERY_TIMEOUT_MS=2000)

[client]
# Name this device reports to servers (defaults to the hostname)
# device_name = "my-laptop"

[storage]
# Path to the SQLite database holding saved servers
# database_path = "~/.local/share/jellyterm/state.db"

[discovery]
# How long a local network scan runs
timeout_ms = 500

# Stop scanning after this many servers answered
max_servers = 10

# UDP port servers answer discovery broadcasts on
broadcast_port = 7359

# Also browse for servers announced over mDNS / DNS-SD
mdns_enabled = false
mdns_service = "_jellyfin._tcp"

# Show a desktop notification for every discovered server
notify = false

[metrics]
# Address for a Prometheus /metrics endpoint, e.g. "127.0.0.1:9090"
# Empty disables it
listen_addr = ""

[log]
# Debug log file (the terminal UI owns stdout)
# path = "~/.local/state/jellyterm/jellyterm.log"
`

	return os.WriteFile(path, []byte(content), 0644)
}
