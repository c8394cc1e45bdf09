package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	SpoolDir string `toml:"spool_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Device identifies this unit to the backend.
type Device struct {
	ID      string `toml:"id"`
	Version string `toml:"version"`
}

// Backend contains the upload, heartbeat, and alert endpoint settings.
type Backend struct {
	BaseURL          string `toml:"base_url"`
	APIKey           string `toml:"api_key"`
	RequestTimeout   int    `toml:"request_timeout"`
	HeartbeatTimeout int    `toml:"heartbeat_timeout"`
}

// Network contains reachability probing and reconnect settings.
type Network struct {
	Interface         string   `toml:"interface"`
	ProbeTimeout      int      `toml:"probe_timeout"`
	ProbeCache        int      `toml:"probe_cache"`
	ReconnectInterval int      `toml:"reconnect_interval"`
	ReconnectCommand  []string `toml:"reconnect_command"`
}

// Capture configures the still-image capture collaborator.
type Capture struct {
	Command  []string `toml:"command"`
	Timeout  int      `toml:"timeout"`
	MaxBytes int      `toml:"max_bytes"`
}

// Triggers configures the camera trigger arbiter and its local sources.
type Triggers struct {
	DebounceMS       int    `toml:"debounce_ms"`
	Cooldown         int    `toml:"cooldown"`
	NetlinkSubsystem string `toml:"netlink_subsystem"`
	NetlinkAction    string `toml:"netlink_action"`
	NetlinkDevpath   string `toml:"netlink_devpath"`
}

// Intrusion configures PIR corroboration and alert posting.
type Intrusion struct {
	Enabled           bool `toml:"enabled"`
	WindowMS          int  `toml:"window_ms"`
	MinChannels       int  `toml:"min_channels"`
	DebounceMS        int  `toml:"debounce_ms"`
	Cooldown          int  `toml:"cooldown"`
	FallbackRateLimit int  `toml:"fallback_rate_limit"`
	TriggerCamera     bool `toml:"trigger_camera"`
}

// Queue bounds the durable spool.
type Queue struct {
	MaxRecords int   `toml:"max_records"`
	MaxBytes   int64 `toml:"max_bytes"`
}

// Workflow contains control loop timing.
type Workflow struct {
	LoopIntervalMS     int `toml:"loop_interval_ms"`
	SweepInterval      int `toml:"sweep_interval"`
	SweepRecordDelayMS int `toml:"sweep_record_delay_ms"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
}

// Notifications contains configuration for the ntfy fallback alert channel.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Watchpost.
//
// Configuration sections by subsystem:
//   - Paths: spool, state, and log directories plus the local API bind
//   - Device: identity reported in heartbeats
//   - Backend: upload/heartbeat/alert endpoints and the pre-shared key
//   - Network: reachability probe and reconnect hook
//   - Capture: still capture command
//   - Triggers: camera debounce/cooldown and the netlink trigger source
//   - Intrusion: PIR corroboration window and alert fallback
//   - Queue: spool capacity
//   - Workflow: loop, sweep, and heartbeat intervals
//   - Notifications: ntfy fallback channel
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Device        Device        `toml:"device"`
	Backend       Backend       `toml:"backend"`
	Network       Network       `toml:"network"`
	Capture       Capture       `toml:"capture"`
	Triggers      Triggers      `toml:"triggers"`
	Intrusion     Intrusion     `toml:"intrusion"`
	Queue         Queue         `toml:"queue"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("watchpost.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The spool directory is created on a best-effort basis so the daemon can
// keep monitoring triggers when the flash filesystem is not mounted; the
// spool store reports it as unavailable instead.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.SpoolDir) != "" {
		_ = os.MkdirAll(c.Paths.SpoolDir, 0o755)
	}
	return nil
}

// ImageURL is the multipart upload endpoint.
func (c *Config) ImageURL() string {
	return c.Backend.BaseURL + "/image/image"
}

// HeartbeatURL is the liveness endpoint.
func (c *Config) HeartbeatURL() string {
	return c.Backend.BaseURL + "/heartbeat/heartbeat"
}

// AlertURL is the intrusion alert metadata endpoint.
func (c *Config) AlertURL() string {
	return c.Backend.BaseURL + "/alert/alert"
}

// DeliveryTimeout bounds one upload attempt.
func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeout) * time.Second
}

// DebounceWindow returns the camera trigger debounce window.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Triggers.DebounceMS) * time.Millisecond
}

// CooldownPeriod returns the camera trigger cooldown.
func (c *Config) CooldownPeriod() time.Duration {
	return time.Duration(c.Triggers.Cooldown) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
