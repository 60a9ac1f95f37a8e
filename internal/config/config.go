// Package config loads pud's TOML configuration for the server and
// worker binaries, following the distilled schema in SPEC_FULL.md §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ActixConfig names the listener settings, kept as "actix" to match the
// TOML schema's field name (a holdover from the original implementation's
// web framework, not a Go dependency).
type ActixConfig struct {
	Workers uint8  `toml:"workers"`
	IP      string `toml:"ip"`
	Port    uint16 `toml:"port"`
}

// TLSConfig names the certificate/key file paths used to serve the
// WebSocket endpoints over TLS.
type TLSConfig struct {
	CertFilePath string `toml:"cert_file_path"`
	KeyFilePath  string `toml:"key_file_path"`
}

// ArchiveConfig names the job-document archive's connection settings.
// Field names mirror the distilled schema's "arangodb" table; this
// implementation's archive is SQLite (see internal/archive), so only
// Name (used as the database file's base name) is consulted — the
// remaining fields are accepted for config-file compatibility and
// otherwise ignored.
type ArchiveConfig struct {
	URL      string `toml:"url"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
}

// CommandConfig is one [default.<name>] or [overrides.<worker>.<name>] entry.
type CommandConfig struct {
	Cmd string `toml:"cmd"`
}

// DurationConfig mirrors the schema's { secs, nanos } duration encoding.
type DurationConfig struct {
	Secs  int64 `toml:"secs"`
	Nanos int64 `toml:"nanos"`
}

// MonotonicConfig is a [[schedules.<worker>.schedules]] entry's Monotonic variant.
type MonotonicConfig struct {
	OnBootSec       DurationConfig `toml:"on_boot_sec"`
	OnUnitActiveSec DurationConfig `toml:"on_unit_active_sec"`
	Cmds            []string       `toml:"cmds"`
}

// RealtimeConfig is a [[schedules.<worker>.schedules]] entry's Realtime variant.
type RealtimeConfig struct {
	OnCalendar string   `toml:"on_calendar"`
	Persistent bool     `toml:"persistent"`
	Cmds       []string `toml:"cmds"`
}

// ScheduleConfig is the tagged-union TOML shape for one schedule entry:
// exactly one of Realtime/Monotonic is set.
type ScheduleConfig struct {
	Realtime  *RealtimeConfig  `toml:"Realtime,omitempty"`
	Monotonic *MonotonicConfig `toml:"Monotonic,omitempty"`
}

// WorkerSchedulesConfig is one [schedules.<workerName>] table.
type WorkerSchedulesConfig struct {
	Schedules []ScheduleConfig `toml:"schedules"`
}

// ServerConfig is the full puds.toml schema.
type ServerConfig struct {
	Actix     ActixConfig                          `toml:"actix"`
	TLS       TLSConfig                            `toml:"tls"`
	Archive   ArchiveConfig                         `toml:"arangodb"`
	Default   map[string]CommandConfig              `toml:"default"`
	Overrides map[string]map[string]CommandConfig   `toml:"overrides"`
	Schedules map[string]WorkerSchedulesConfig       `toml:"schedules"`
}

// DefaultServerConfig returns sane zero-value defaults; a missing config
// file is not an error (spec §7: config errors abort startup, a missing
// file is not a config error).
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Actix: ActixConfig{
			Workers: 4,
			IP:      "0.0.0.0",
			Port:    8443,
		},
		Archive: ArchiveConfig{
			Name: "pud",
		},
		Default:   map[string]CommandConfig{},
		Overrides: map[string]map[string]CommandConfig{},
		Schedules: map[string]WorkerSchedulesConfig{},
	}
}

// LoadServerConfig reads path as TOML, overlaying it onto
// DefaultServerConfig. A missing file yields the defaults, not an error.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// WorkerConfig is the full pudw.toml schema: the server address the
// worker dials, its name, and TLS file paths; the worker receives its
// command table and schedules over
// the wire on Initialize, it does not read them locally.
type WorkerConfig struct {
	ServerAddr string `toml:"server_addr"`
	Name       string `toml:"name"`
	TLS        TLSConfig `toml:"tls"`
}

// DefaultWorkerConfig returns sane zero-value defaults.
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		ServerAddr: "wss://127.0.0.1:8443",
	}
}

// LoadWorkerConfig reads path as TOML, overlaying it onto
// DefaultWorkerConfig. A missing file yields the defaults.
func LoadWorkerConfig(path string) (*WorkerConfig, error) {
	cfg := DefaultWorkerConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ExpandPath expands a leading ~/ to the user's home directory; any other
// path is returned unchanged.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigDir returns the OS-appropriate configuration directory,
// following the original implementation's use of a platform config-dir
// helper (dirs2::config_dir in the source), realized here via the
// standard library's os.UserConfigDir.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "pud")
	}
	return filepath.Join(dir, "pud")
}
