package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds the agent's local settings. Loaded once at startup from
// <user-config-dir>/agent.json; any field left zero-valued falls back to
// its default in Defaults().
type Config struct {
	// ListenPort is the loopback TCP port the HTTP surface binds (spec.md §4.6/§6).
	ListenPort int `json:"listen_port,omitempty"`

	// DataDir is the root for bundles/cache/temp/registry.json (spec.md §4.8).
	DataDir string `json:"data_dir,omitempty"`

	// MaxBundleSize is the bundle archive size limit setting, in bytes
	// (spec.md §9, default 50MB). Nothing reads it: the bundle loader
	// downloads and stores an archive of any size.
	MaxBundleSize int64 `json:"max_bundle_size,omitempty"`

	// CacheMaxMemory caps the tiered cache's hot-tier total bytes (spec.md §4.9).
	CacheMaxMemory int64 `json:"cache_max_memory,omitempty"`

	// CacheMaxHotEntries is the hot-tier entry count setting (spec.md §4.9,
	// default 1000). The cache does not read it; its entry cap is the fixed
	// maxHotEntries constant (1000) in internal/bundle/cache.
	CacheMaxHotEntries int `json:"cache_max_hot_entries,omitempty"`

	// ContentSecurityPolicy overrides the CSP header the URI resolver sets
	// (spec.md §4.11); empty means "null" as the spec default states.
	ContentSecurityPolicy string `json:"content_security_policy,omitempty"`

	// LogLevel and LogFile configure internal/logger.Init.
	LogLevel string `json:"log_level,omitempty"`
	LogFile  string `json:"log_file,omitempty"`
}

// Defaults returns the spec-mandated defaults (spec.md §4.6, §4.9, §9).
func Defaults() Config {
	return Config{
		ListenPort:         9119,
		MaxBundleSize:      50 * 1024 * 1024,
		CacheMaxMemory:     64 * 1024 * 1024,
		CacheMaxHotEntries: 1000,
		LogLevel:           "info",
	}
}

// Load reads <userConfigDir>/agent.json and overlays it onto Defaults().
// A missing file is not an error — the defaults stand.
func Load(userConfigDir string) (Config, error) {
	cfg := Defaults()
	path := filepath.Join(userConfigDir, "agent.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to <userConfigDir>/agent.json, creating the directory if needed.
func Save(userConfigDir string, cfg Config) error {
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(userConfigDir, "agent.json"), data, 0600)
}
