package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDevice()
	c.normalizeBackend()
	c.normalizeNetwork()
	c.normalizeCapture()
	c.normalizeTriggers()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.SpoolDir) == "" {
		c.Paths.SpoolDir = defaultSpoolDir
	}
	if c.Paths.SpoolDir, err = expandPath(c.Paths.SpoolDir); err != nil {
		return fmt.Errorf("paths.spool_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if value, ok := os.LookupEnv("WATCHPOST_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIToken = strings.TrimSpace(value)
	}
	return nil
}

func (c *Config) normalizeDevice() {
	c.Device.ID = strings.TrimSpace(c.Device.ID)
	if c.Device.ID == "" {
		c.Device.ID = defaultDeviceID
	}
	c.Device.Version = strings.TrimSpace(c.Device.Version)
	if c.Device.Version == "" {
		c.Device.Version = defaultDeviceVersion
	}
}

func (c *Config) normalizeBackend() {
	if value, ok := os.LookupEnv("WATCHPOST_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.Backend.APIKey = value
	}
	c.Backend.APIKey = strings.TrimSpace(c.Backend.APIKey)
	if value, ok := os.LookupEnv("WATCHPOST_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Backend.BaseURL = value
	}
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
}

func (c *Config) normalizeNetwork() {
	c.Network.Interface = strings.TrimSpace(c.Network.Interface)
	c.Network.ReconnectCommand = trimArgs(c.Network.ReconnectCommand)
}

func (c *Config) normalizeCapture() {
	c.Capture.Command = trimArgs(c.Capture.Command)
}

func (c *Config) normalizeTriggers() {
	c.Triggers.NetlinkSubsystem = strings.TrimSpace(c.Triggers.NetlinkSubsystem)
	c.Triggers.NetlinkDevpath = strings.TrimSpace(c.Triggers.NetlinkDevpath)
	c.Triggers.NetlinkAction = strings.ToLower(strings.TrimSpace(c.Triggers.NetlinkAction))
	if c.Triggers.NetlinkAction == "" {
		c.Triggers.NetlinkAction = defaultNetlinkAction
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
