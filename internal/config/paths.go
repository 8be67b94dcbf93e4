package config

import (
	"os"
	"path/filepath"
)

// GetUserConfigDir returns the agent's config directory, ~/.hoppscotch-agent.
func GetUserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".hoppscotch-agent"), nil
}

// GetDataDir returns the root under which bundles/cache/temp/registry.json
// live (spec.md §4.8 layout). Defaults alongside the config dir.
func GetDataDir() (string, error) {
	cfgDir, err := GetUserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, "data"), nil
}

// EnsureConfigDirs creates the config and data directories (and the data
// subdirectories bundle storage owns) if they don't already exist.
func EnsureConfigDirs(userConfigDir, dataDir string) error {
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return err
	}
	for _, sub := range []string{"bundles", "cache", "temp", "key"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0700); err != nil {
			return err
		}
	}
	return nil
}
