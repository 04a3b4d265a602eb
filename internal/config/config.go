// Package config handles configuration loading, validation, and management
// for revisiond.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version"`

	// Watch configuration for change detection.
	Watch WatchConfig `toml:"watch"`

	// Store configuration for the persisted target set.
	Store StoreConfig `toml:"store"`

	// Journal configuration for the revision index.
	Journal JournalConfig `toml:"journal"`

	// Notify configuration for revision notifications.
	Notify NotifyConfig `toml:"notify"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc"`
}

// WatchConfig holds change-detection configuration.
type WatchConfig struct {
	// DebounceMs is the quiet period in milliseconds. A path must see no
	// raw events for this long before its pending change settles.
	DebounceMs int `toml:"debounce_ms"`

	// MaxFileSize is the maximum file size to revision in bytes.
	// Files larger than this are skipped with a warning. 0 disables the limit.
	MaxFileSize int64 `toml:"max_file_size"`
}

// StoreConfig holds target-set persistence configuration.
type StoreConfig struct {
	// TargetsPath is the path to the persisted target table (CSV).
	TargetsPath string `toml:"targets_path"`
}

// JournalConfig holds revision-index configuration.
type JournalConfig struct {
	// Enabled determines whether the revision journal is kept.
	// The journal is advisory: revision files on disk remain the
	// authoritative history even when it is disabled or failing.
	Enabled bool `toml:"enabled"`

	// Path is the path to the journal database file.
	Path string `toml:"path"`
}

// NotifyConfig holds revision-notification configuration.
type NotifyConfig struct {
	// Desktop enables desktop notifications for created revisions
	// (Linux only; other platforms log instead).
	Desktop bool `toml:"desktop"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or "both".
	Output string `toml:"output"`

	// FilePath is the path to the log file (when Output includes "file").
	FilePath string `toml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int64 `toml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep.
	MaxBackups int `toml:"max_backups"`
}

// IPCConfig holds control-socket configuration.
type IPCConfig struct {
	// Enabled determines whether the IPC server is started.
	Enabled bool `toml:"enabled"`

	// SocketPath is the path to the Unix socket.
	SocketPath string `toml:"socket_path"`

	// TimeoutSec is the per-request timeout.
	TimeoutSec int `toml:"timeout_sec"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Watch: WatchConfig{
			DebounceMs:  500,
			MaxFileSize: 500 * 1024 * 1024,
		},
		Store: StoreConfig{
			TargetsPath: filepath.Join(dir, "targets.csv"),
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "journal.db"),
		},
		Notify: NotifyConfig{
			Desktop: false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(dir, "revisiond.log"),
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: defaultSocketPath(),
			TimeoutSec: 30,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// Load reads configuration from the specified path. If the file doesn't
// exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Variables are prefixed with REVISIOND_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("REVISIOND_TARGETS_PATH"); v != "" {
		c.Store.TargetsPath = v
	}
	if v := os.Getenv("REVISIOND_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("REVISIOND_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("REVISIOND_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("REVISIOND_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Watch.DebounceMs <= 0 {
		return fmt.Errorf("watch.debounce_ms must be positive, got %d", c.Watch.DebounceMs)
	}
	if c.Watch.MaxFileSize < 0 {
		return fmt.Errorf("watch.max_file_size must not be negative, got %d", c.Watch.MaxFileSize)
	}
	if c.Store.TargetsPath == "" {
		return fmt.Errorf("store.targets_path must not be empty")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path must not be empty when the journal is enabled")
	}
	if c.IPC.Enabled && c.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socket_path must not be empty when IPC is enabled")
	}
	if c.IPC.TimeoutSec <= 0 {
		return fmt.Errorf("ipc.timeout_sec must be positive, got %d", c.IPC.TimeoutSec)
	}
	if _, err := parseLevelName(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

func parseLevelName(s string) (string, error) {
	switch s {
	case "debug", "info", "warn", "warning", "error", "":
		return s, nil
	default:
		return "", fmt.Errorf("logging.level %q is not one of debug, info, warn, error", s)
	}
}

// EnsureDirectories creates all directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Store.TargetsPath),
		filepath.Dir(c.Logging.FilePath),
	}
	if c.Journal.Enabled {
		dirs = append(dirs, filepath.Dir(c.Journal.Path))
	}
	if c.IPC.Enabled {
		dirs = append(dirs, filepath.Dir(c.IPC.SocketPath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// QuietPeriod returns the debounce window as a duration.
func (c *Config) QuietPeriod() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// DataDir returns the base revisiond directory. Uses platform-specific
// paths or the REVISIOND_DATA_DIR environment override.
func DataDir() string {
	if envDir := os.Getenv("REVISIOND_DATA_DIR"); envDir != "" {
		return envDir
	}

	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "revisiond")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "revisiond")
	default:
		if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
			return filepath.Join(dataHome, "revisiond")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".revisiond")
	}
}

func defaultSocketPath() string {
	switch runtime.GOOS {
	case "linux":
		if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
			return filepath.Join(xdgRuntime, "revisiond.sock")
		}
		return filepath.Join(DataDir(), "revisiond.sock")
	case "windows":
		return `\\.\pipe\revisiond`
	default:
		return filepath.Join(DataDir(), "revisiond.sock")
	}
}
