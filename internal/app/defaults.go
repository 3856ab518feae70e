package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that move abus files away from their defaults.
const (
	ConfigPathEnv = "ABUS_CONFIG_PATH"
	HomeEnv       = "ABUS_HOME"
)

// Defaults are the locations abus uses before a config file says otherwise.
type Defaults struct {
	ConfigPath string
	BaseDir    string // catalog, keys and logs live below it
}

// GetDefaults resolves the default locations. ABUS_CONFIG_PATH and ABUS_HOME
// win; otherwise XDG_CONFIG_HOME and XDG_DATA_HOME are honoured, falling back
// to ~/.config/abus.toml and ~/.local/share/abus.
func GetDefaults() (Defaults, error) {
	configPath, err := resolvePath(ConfigPathEnv, "XDG_CONFIG_HOME", []string{".config"}, "abus.toml")
	if err != nil {
		return Defaults{}, err
	}
	baseDir, err := resolvePath(HomeEnv, "XDG_DATA_HOME", []string{".local", "share"}, "abus")
	if err != nil {
		return Defaults{}, err
	}
	return Defaults{ConfigPath: configPath, BaseDir: baseDir}, nil
}

func resolvePath(env, xdgEnv string, homeRel []string, name string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	if dir := os.Getenv(xdgEnv); filepath.IsAbs(dir) {
		return filepath.Join(dir, name), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append(append([]string{homeDir}, homeRel...), name)...), nil
}
