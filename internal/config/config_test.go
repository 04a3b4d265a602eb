package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != Version {
		t.Errorf("Version = %d, want %d", cfg.Version, Version)
	}
	if cfg.Watch.DebounceMs != 500 {
		t.Errorf("DebounceMs = %d, want 500", cfg.Watch.DebounceMs)
	}
	if cfg.Store.TargetsPath == "" {
		t.Error("TargetsPath is empty")
	}
	if !cfg.Journal.Enabled {
		t.Error("journal disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Watch.DebounceMs != 500 {
		t.Errorf("DebounceMs = %d, want default 500", cfg.Watch.DebounceMs)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = 1

[watch]
debounce_ms = 250
max_file_size = 1048576

[store]
targets_path = "/var/lib/revisiond/targets.csv"

[journal]
enabled = false

[logging]
level = "debug"
format = "json"

[ipc]
enabled = true
socket_path = "/run/revisiond.sock"
timeout_sec = 10
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Watch.DebounceMs != 250 {
		t.Errorf("DebounceMs = %d, want 250", cfg.Watch.DebounceMs)
	}
	if cfg.Watch.MaxFileSize != 1048576 {
		t.Errorf("MaxFileSize = %d, want 1048576", cfg.Watch.MaxFileSize)
	}
	if cfg.Store.TargetsPath != "/var/lib/revisiond/targets.csv" {
		t.Errorf("TargetsPath = %q", cfg.Store.TargetsPath)
	}
	if cfg.Journal.Enabled {
		t.Error("journal should be disabled")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.IPC.SocketPath != "/run/revisiond.sock" {
		t.Errorf("SocketPath = %q", cfg.IPC.SocketPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REVISIOND_TARGETS_PATH", "/tmp/override/targets.csv")
	t.Setenv("REVISIOND_LOG_LEVEL", "debug")
	t.Setenv("REVISIOND_SOCKET_PATH", "/tmp/override.sock")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Store.TargetsPath != "/tmp/override/targets.csv" {
		t.Errorf("TargetsPath = %q", cfg.Store.TargetsPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
	if cfg.IPC.SocketPath != "/tmp/override.sock" {
		t.Errorf("SocketPath = %q", cfg.IPC.SocketPath)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]func(*Config){
		"zero debounce":       func(c *Config) { c.Watch.DebounceMs = 0 },
		"negative debounce":   func(c *Config) { c.Watch.DebounceMs = -10 },
		"negative size limit": func(c *Config) { c.Watch.MaxFileSize = -1 },
		"empty targets path":  func(c *Config) { c.Store.TargetsPath = "" },
		"journal no path":     func(c *Config) { c.Journal.Path = "" },
		"ipc no socket":       func(c *Config) { c.IPC.SocketPath = "" },
		"ipc zero timeout":    func(c *Config) { c.IPC.TimeoutSec = 0 },
		"bad log level":       func(c *Config) { c.Logging.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}

func TestQuietPeriod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Watch.DebounceMs = 750
	if got := cfg.QuietPeriod(); got != 750*time.Millisecond {
		t.Errorf("QuietPeriod = %s, want 750ms", got)
	}
}

func TestDataDirEnvOverride(t *testing.T) {
	t.Setenv("REVISIOND_DATA_DIR", "/custom/data")
	if got := DataDir(); got != "/custom/data" {
		t.Errorf("DataDir = %q, want /custom/data", got)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := DefaultConfig()
	cfg.Store.TargetsPath = filepath.Join(base, "data", "targets.csv")
	cfg.Journal.Path = filepath.Join(base, "data", "journal.db")
	cfg.Logging.FilePath = filepath.Join(base, "logs", "revisiond.log")
	cfg.IPC.SocketPath = filepath.Join(base, "run", "revisiond.sock")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	for _, dir := range []string{
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "run"),
	} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("directory %s not created", dir)
		}
	}
}
