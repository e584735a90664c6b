// Package config resolves the process-level bootstrap configuration
// (SPEC_FULL.md §0.1): root directory, log level/path, and any other
// overrides fed into bootstrap.Setup. This is the "generic configuration
// file loading" collaborator spec.md places outside the storage/data
// engine core — the core itself never reads this file; only the entry
// point does, handing the resolved values in as a plain map.
//
// Grounded on the teacher's internal/config/config.go: same
// walk-up-from-cwd / XDG-config / home-directory discovery chain, same
// viper env-prefix binding idiom (BD_ -> AVDB_).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the resolved process-level configuration.
type Config struct {
	Root     string // brain storage root directory
	LogLevel string
	LogPath  string

	v *viper.Viper
}

// Load resolves configuration following the teacher's precedence chain:
// 1. project .aaviondb/config.yaml found by walking up from cwd
// 2. $XDG_CONFIG_HOME/aaviondb/config.yaml (or ~/.config/aaviondb on
//    platforms without XDG_CONFIG_HOME set, via os.UserConfigDir)
// 3. ~/.aaviondb/config.yaml
// Environment variables prefixed AVDB_ always take precedence over the
// config file; explicit overrides (e.g. CLI flags from cmd/aaviondb)
// take precedence over everything via the overrides parameter.
func Load(overrides map[string]any) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	configFileSet := false
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			candidate := filepath.Join(dir, ".aaviondb", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
				break
			}
		}
	}
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			candidate := filepath.Join(configDir, "aaviondb", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
			}
		}
	}
	if !configFileSet {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".aaviondb", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("AVDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	home, _ := os.UserHomeDir()
	v.SetDefault("root", filepath.Join(home, ".aaviondb"))
	v.SetDefault("log-level", "info")
	v.SetDefault("log-path", "")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("aaviondb: read config file: %w", err)
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	cfg := &Config{
		Root:     v.GetString("root"),
		LogLevel: v.GetString("log-level"),
		LogPath:  v.GetString("log-path"),
		v:        v,
	}
	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(cfg.Root, "system", "storage", "logs", "aaviondb.log")
	}
	return cfg, nil
}

// Get retrieves an arbitrary resolved configuration value (used by
// bootstrap to pass through any extra ensureSystemBrain overrides the
// entry point configured).
func (c *Config) Get(key string) any {
	if c.v == nil {
		return nil
	}
	return c.v.Get(key)
}
