// Package config wraps the viper configuration singleton. Precedence, from
// highest to lowest: environment variables (RIVET_*), the discovered
// config.yaml, built-in defaults. Cobra flag overrides are applied by the
// command layer on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rivet-tracker/rivet/internal/debug"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Should be called
// once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Precedence: project .rivet/config.yaml > ~/.config/rivet/config.yaml
	configFileSet := false

	// Walk up from CWD so commands work from subdirectories
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".rivet", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "rivet", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// RIVET_DB, RIVET_ACTOR, RIVET_JSON, ...
	v.SetEnvPrefix("RIVET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("db", "")
	v.SetDefault("actor", "")
	v.SetDefault("timezone", "")
	v.SetDefault("journal.enabled", true)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("loaded config from %s\n", v.ConfigFileUsed())
	} else {
		debug.Logf("no config.yaml found; using defaults and environment variables\n")
	}
	return nil
}

// ResetForTesting clears the config state, allowing Initialize() to be
// called again. Not thread-safe; only call from single-threaded tests.
func ResetForTesting() {
	v = nil
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// Set overrides a configuration value, used when a cobra flag was set
// explicitly.
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}
