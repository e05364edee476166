package configfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Database != "rivet.db" {
		t.Errorf("Database = %q, want rivet.db", cfg.Database)
	}

	if cfg.Journal != "journal.jsonl" {
		t.Errorf("Journal = %q, want journal.jsonl", cfg.Journal)
	}
}

func TestLoadSaveRoundtrip(t *testing.T) {
	tmpDir := t.TempDir()
	rivetDir := filepath.Join(tmpDir, DirName)
	if err := os.MkdirAll(rivetDir, 0750); err != nil {
		t.Fatalf("failed to create %s directory: %v", DirName, err)
	}

	cfg := DefaultConfig()

	if err := cfg.Save(rivetDir); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := Load(rivetDir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if loaded == nil {
		t.Fatal("Load() returned nil config")
	}

	if loaded.Database != cfg.Database {
		t.Errorf("Database = %q, want %q", loaded.Database, cfg.Database)
	}

	if loaded.Journal != cfg.Journal {
		t.Errorf("Journal = %q, want %q", loaded.Journal, cfg.Journal)
	}
}

func TestLoadNonexistent(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() returned error for nonexistent config: %v", err)
	}

	if cfg != nil {
		t.Errorf("Load() = %v, want nil for nonexistent config", cfg)
	}
}

func TestDatabasePath(t *testing.T) {
	rivetDir := "/home/user/project/.rivet"
	cfg := &Config{Database: "rivet.db"}

	got := cfg.DatabasePath(rivetDir)
	want := filepath.Join(rivetDir, "rivet.db")

	if got != want {
		t.Errorf("DatabasePath() = %q, want %q", got, want)
	}
}

func TestJournalPath(t *testing.T) {
	rivetDir := "/home/user/project/.rivet"

	tests := []struct {
		name string
		cfg  *Config
		want string
	}{
		{
			name: "default",
			cfg:  &Config{Journal: "journal.jsonl"},
			want: filepath.Join(rivetDir, "journal.jsonl"),
		},
		{
			name: "custom",
			cfg:  &Config{Journal: "custom.jsonl"},
			want: filepath.Join(rivetDir, "custom.jsonl"),
		},
		{
			name: "empty falls back to default",
			cfg:  &Config{Journal: ""},
			want: filepath.Join(rivetDir, "journal.jsonl"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.JournalPath(rivetDir)
			if got != tt.want {
				t.Errorf("JournalPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	tmpDir := t.TempDir()
	rivetDir := filepath.Join(tmpDir, DirName)
	nested := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(rivetDir, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(nested, 0750); err != nil {
		t.Fatal(err)
	}

	if got := Discover(nested); got != rivetDir {
		t.Errorf("Discover(%q) = %q, want %q", nested, got, rivetDir)
	}
}

func TestConfigPath(t *testing.T) {
	rivetDir := "/home/user/project/.rivet"
	got := ConfigPath(rivetDir)
	want := filepath.Join(rivetDir, "metadata.json")

	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}
