// Package configfile reads and writes the .rivet/metadata.json file that
// pins a working directory to its database and journal.
package configfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const ConfigFileName = "metadata.json"

// DirName is the per-directory data directory created by rivet init
const DirName = ".rivet"

type Config struct {
	Database string `json:"database"`
	Journal  string `json:"journal,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: "rivet.db",
		Journal:  "journal.jsonl",
	}
}

func ConfigPath(rivetDir string) string {
	return filepath.Join(rivetDir, ConfigFileName)
}

// Load reads the config from a .rivet directory. A missing file returns
// (nil, nil) so callers can distinguish uninitialized from broken.
func Load(rivetDir string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(rivetDir)) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Save(rivetDir string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(ConfigPath(rivetDir), data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) DatabasePath(rivetDir string) string {
	return filepath.Join(rivetDir, c.Database)
}

func (c *Config) JournalPath(rivetDir string) string {
	if c.Journal == "" {
		return filepath.Join(rivetDir, "journal.jsonl")
	}
	return filepath.Join(rivetDir, c.Journal)
}

// Discover walks up from dir looking for a .rivet directory. Returns the
// empty string when none is found.
func Discover(dir string) string {
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
