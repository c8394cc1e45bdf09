package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateTriggers(); err != nil {
		return err
	}
	if err := c.validateIntrusion(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("backend.api_key is required. Set WATCHPOST_API_KEY env var or edit %s (create with 'watchpost config init')", defaultPath)
	}
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("backend.base_url must include a host")
	}
	return nil
}

func (c *Config) validateTimings() error {
	return ensurePositiveMap(map[string]int{
		"backend.request_timeout":       c.Backend.RequestTimeout,
		"backend.heartbeat_timeout":     c.Backend.HeartbeatTimeout,
		"network.probe_timeout":         c.Network.ProbeTimeout,
		"network.reconnect_interval":    c.Network.ReconnectInterval,
		"capture.timeout":               c.Capture.Timeout,
		"workflow.loop_interval_ms":     c.Workflow.LoopIntervalMS,
		"workflow.sweep_interval":       c.Workflow.SweepInterval,
		"workflow.heartbeat_interval":   c.Workflow.HeartbeatInterval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"logging.retention_days":        c.Logging.RetentionDays,
		"capture.max_bytes":             c.Capture.MaxBytes,
		"intrusion.fallback_rate_limit": c.Intrusion.FallbackRateLimit,
		"intrusion.window_ms":           c.Intrusion.WindowMS,
	})
}

func (c *Config) validateTriggers() error {
	if c.Triggers.DebounceMS < 0 {
		return errors.New("triggers.debounce_ms must not be negative")
	}
	if c.Triggers.Cooldown < 0 {
		return errors.New("triggers.cooldown must not be negative")
	}
	if c.Network.ProbeCache < 0 {
		return errors.New("network.probe_cache must not be negative")
	}
	if c.Workflow.SweepRecordDelayMS < 0 {
		return errors.New("workflow.sweep_record_delay_ms must not be negative")
	}
	return nil
}

func (c *Config) validateIntrusion() error {
	if !c.Intrusion.Enabled {
		return nil
	}
	if c.Intrusion.MinChannels < 1 || c.Intrusion.MinChannels > 3 {
		return errors.New("intrusion.min_channels must be between 1 and 3")
	}
	if c.Intrusion.Cooldown < 0 {
		return errors.New("intrusion.cooldown must not be negative")
	}
	if c.Intrusion.DebounceMS < 0 {
		return errors.New("intrusion.debounce_ms must not be negative")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.MaxRecords <= 0 && c.Queue.MaxBytes <= 0 {
		return errors.New("queue.max_records or queue.max_bytes must be positive")
	}
	if c.Queue.MaxRecords < 0 {
		return errors.New("queue.max_records must not be negative")
	}
	if c.Queue.MaxBytes < 0 {
		return errors.New("queue.max_bytes must not be negative")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if len(c.Capture.Command) == 0 {
		return errors.New("capture.command must name an executable")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if strings.TrimSpace(c.Paths.APIBind) != "" && !strings.Contains(c.Paths.APIBind, ":") {
		return fmt.Errorf("paths.api_bind must be host:port, got %q", c.Paths.APIBind)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
