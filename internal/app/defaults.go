package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment overrides for the default paths.
const (
	EnvConfigPath = "TIDY_CONFIG_PATH" // config file (default ~/.config/tidy.toml)
	EnvHome       = "TIDY_HOME"        // data directory (default ~/.local/share/tidy)
)

// GetDefaults returns the default config_path, base_dir, home_dir and log_dir.
// home_dir is the boundary root destinations must stay inside.
func GetDefaults() (map[string]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	baseDir := envOr(EnvHome, filepath.Join(homeDir, ".local", "share", "tidy"))
	return map[string]string{
		"config_path": envOr(EnvConfigPath, filepath.Join(homeDir, ".config", "tidy.toml")),
		"base_dir":    baseDir,
		"home_dir":    homeDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
