package config

const (
	defaultConfigPath             = "~/.config/watchpost/config.toml"
	defaultSpoolDir               = "~/.local/share/watchpost/spool"
	defaultStateDir               = "~/.local/share/watchpost/state"
	defaultLogDir                 = "~/.local/share/watchpost/logs"
	defaultAPIBind                = "127.0.0.1:7490"
	defaultDeviceID               = "WATCHPOST_CAM"
	defaultDeviceVersion          = "v2.0"
	defaultRequestTimeout         = 10
	defaultHeartbeatTimeout       = 5
	defaultProbeTimeout           = 3
	defaultProbeCache             = 5
	defaultReconnectInterval      = 60
	defaultCaptureTimeout         = 10
	defaultCaptureMaxBytes        = 8 << 20
	defaultTriggerDebounceMS      = 100
	defaultTriggerCooldown        = 5
	defaultNetlinkAction          = "change"
	defaultIntrusionWindowMS      = 2000
	defaultIntrusionMinChannels   = 2
	defaultIntrusionDebounceMS    = 50
	defaultIntrusionCooldown      = 10
	defaultIntrusionFallbackLimit = 300
	defaultQueueMaxRecords        = 20
	defaultLoopIntervalMS         = 50
	defaultSweepInterval          = 30
	defaultSweepRecordDelayMS     = 1000
	defaultHeartbeatInterval      = 60
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 14
	defaultCaptureCommandBinary   = "rpicam-still"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SpoolDir: defaultSpoolDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Device: Device{
			ID:      defaultDeviceID,
			Version: defaultDeviceVersion,
		},
		Backend: Backend{
			RequestTimeout:   defaultRequestTimeout,
			HeartbeatTimeout: defaultHeartbeatTimeout,
		},
		Network: Network{
			ProbeTimeout:      defaultProbeTimeout,
			ProbeCache:        defaultProbeCache,
			ReconnectInterval: defaultReconnectInterval,
		},
		Capture: Capture{
			Command:  []string{defaultCaptureCommandBinary, "-n", "-t", "1", "-e", "jpg", "-o", "-"},
			Timeout:  defaultCaptureTimeout,
			MaxBytes: defaultCaptureMaxBytes,
		},
		Triggers: Triggers{
			DebounceMS:    defaultTriggerDebounceMS,
			Cooldown:      defaultTriggerCooldown,
			NetlinkAction: defaultNetlinkAction,
		},
		Intrusion: Intrusion{
			Enabled:           true,
			WindowMS:          defaultIntrusionWindowMS,
			MinChannels:       defaultIntrusionMinChannels,
			DebounceMS:        defaultIntrusionDebounceMS,
			Cooldown:          defaultIntrusionCooldown,
			FallbackRateLimit: defaultIntrusionFallbackLimit,
			TriggerCamera:     true,
		},
		Queue: Queue{
			MaxRecords: defaultQueueMaxRecords,
		},
		Workflow: Workflow{
			LoopIntervalMS:     defaultLoopIntervalMS,
			SweepInterval:      defaultSweepInterval,
			SweepRecordDelayMS: defaultSweepRecordDelayMS,
			HeartbeatInterval:  defaultHeartbeatInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
