package intrusion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"watchpost/internal/capture"
	"watchpost/internal/config"
	"watchpost/internal/delivery"
	"watchpost/internal/logging"
	"watchpost/internal/notifications"
	"watchpost/internal/trigger"
)

// CameraChannel is the camera trigger channel raised by an admitted intrusion.
const CameraChannel = "intrusion"

// Backend is the part of the delivery client the monitor needs.
type Backend interface {
	Reachable(ctx context.Context) bool
	PostAlert(ctx context.Context, alert delivery.Alert) error
}

// Stats counts intrusion handling results.
type Stats struct {
	Detections          uint64 `json:"detections"`
	AlertsPosted        uint64 `json:"alerts_posted"`
	Fallbacks           uint64 `json:"fallbacks"`
	FallbacksSuppressed uint64 `json:"fallbacks_suppressed"`
	FallbackFailures    uint64 `json:"fallback_failures"`
}

// Monitor feeds corroborated detections through its own arbiter and handles
// the admitted ones.
type Monitor struct {
	corroborator  *Corroborator
	arbiter       *trigger.Arbiter
	camera        *trigger.Arbiter
	backend       Backend
	notifier      notifications.Service
	timestamps    capture.TimeSource
	deviceID      string
	alertTimeout  time.Duration
	fallbackLimit time.Duration
	triggerCamera bool
	logger        *slog.Logger

	mu           sync.Mutex
	pending      Detection
	lastFallback time.Time
	stats        Stats
}

// NewMonitor wires a monitor from configuration. camera receives the raw
// trigger for each admitted intrusion.
func NewMonitor(cfg *config.Config, camera *trigger.Arbiter, backend Backend, notifier notifications.Service, timestamps capture.TimeSource, logger *slog.Logger) *Monitor {
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	logger = logging.NewComponentLogger(logger, "intrusion")
	return &Monitor{
		corroborator: NewCorroborator(time.Duration(cfg.Intrusion.WindowMS)*time.Millisecond, cfg.Intrusion.MinChannels),
		arbiter: trigger.NewArbiter(trigger.Options{
			Name:     "intrusion",
			Debounce: time.Duration(cfg.Intrusion.DebounceMS) * time.Millisecond,
			Cooldown: time.Duration(cfg.Intrusion.Cooldown) * time.Second,
			Logger:   logger,
		}),
		camera:        camera,
		backend:       backend,
		notifier:      notifier,
		timestamps:    timestamps,
		deviceID:      cfg.Device.ID,
		alertTimeout:  cfg.DeliveryTimeout(),
		fallbackLimit: time.Duration(cfg.Intrusion.FallbackRateLimit) * time.Second,
		triggerCamera: cfg.Intrusion.TriggerCamera,
		logger:        logger,
	}
}

// Arbiter exposes the intrusion arbiter for status reporting.
func (m *Monitor) Arbiter() *trigger.Arbiter { return m.arbiter }

// OnSensor records a PIR pulse. Callable from any goroutine.
func (m *Monitor) OnSensor(channel string, now time.Time) error {
	normalized, err := ParseChannel(channel)
	if err != nil {
		return err
	}
	m.corroborator.Mark(normalized, now)
	return nil
}

// Pending returns the PIR channels seen in the open corroboration window.
func (m *Monitor) Pending(now time.Time) []string {
	return m.corroborator.Pending(now)
}

// Tick evaluates the corroboration window and handles an admitted intrusion.
// It runs on the control loop goroutine.
func (m *Monitor) Tick(ctx context.Context, now time.Time) bool {
	if detection, ok := m.corroborator.Detect(now); ok {
		if m.arbiter.OnRawTrigger(trigger.SourcePIR, CameraChannel, now) {
			m.mu.Lock()
			m.pending = detection
			m.stats.Detections++
			m.mu.Unlock()
		}
	}

	if _, ok := m.arbiter.PollAdmittedEvent(now); !ok {
		return false
	}
	m.mu.Lock()
	detection := m.pending
	m.mu.Unlock()
	m.handle(ctx, detection, now)
	return true
}

// Stats returns a snapshot of the counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Monitor) handle(ctx context.Context, detection Detection, now time.Time) {
	m.logger.Warn("intrusion detected",
		logging.Alert("intrusion"),
		logging.String(logging.FieldEventType, "intrusion_detected"),
		logging.Float64("confidence", detection.Confidence),
		logging.Any("channels", detection.Fired()),
	)

	if m.triggerCamera && m.camera != nil {
		m.camera.OnRawTrigger(trigger.SourcePIR, CameraChannel, now)
	}

	timestamp := int64(0)
	if m.timestamps != nil {
		timestamp = m.timestamps.Timestamp()
	}

	if m.backend != nil && m.backend.Reachable(ctx) {
		err := m.postAlert(ctx, delivery.Alert{
			Timestamp:     timestamp,
			Confidence:    detection.Confidence,
			PIRLeft:       detection.Left,
			PIRMiddle:     detection.Middle,
			PIRRight:      detection.Right,
			NetworkStatus: "online",
		})
		if err == nil {
			m.mu.Lock()
			m.stats.AlertsPosted++
			m.mu.Unlock()
			m.logger.Info("intrusion alert posted",
				logging.String(logging.FieldEventType, "alert_posted"),
			)
			return
		}
		logging.WarnWithContext(m.logger, "alert post failed; using fallback channel", "alert_post_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check backend.base_url and backend.api_key"),
			logging.String(logging.FieldImpact, "alert sent through ntfy if not rate limited"),
		)
	}

	m.fallback(ctx, detection, timestamp, now)
}

func (m *Monitor) postAlert(ctx context.Context, alert delivery.Alert) error {
	if m.alertTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.alertTimeout)
		defer cancel()
	}
	if err := m.backend.PostAlert(ctx, alert); err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	return nil
}

func (m *Monitor) fallback(ctx context.Context, detection Detection, timestamp int64, now time.Time) {
	m.mu.Lock()
	if !m.lastFallback.IsZero() && now.Sub(m.lastFallback) < m.fallbackLimit {
		m.stats.FallbacksSuppressed++
		remaining := m.fallbackLimit - now.Sub(m.lastFallback)
		m.mu.Unlock()
		logging.WarnWithContext(m.logger, "intrusion fallback rate limited", "alert_fallback_suppressed",
			logging.Duration("retry_after", remaining),
			logging.String(logging.FieldErrorHint, "restore backend connectivity"),
			logging.String(logging.FieldImpact, "no operator alert sent for this intrusion"),
		)
		return
	}
	m.lastFallback = now
	m.mu.Unlock()

	err := m.notifier.NotifyIntrusion(ctx, notifications.Intrusion{
		DeviceID:   m.deviceID,
		Confidence: detection.Confidence,
		Channels:   detection.Fired(),
		DetectedAt: timestamp,
	})

	m.mu.Lock()
	if err != nil {
		m.stats.FallbackFailures++
	} else {
		m.stats.Fallbacks++
	}
	m.mu.Unlock()

	if err != nil {
		logging.ErrorWithContext(m.logger, "intrusion fallback failed", "alert_fallback_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
		return
	}
	m.logger.Info("intrusion fallback sent",
		logging.String(logging.FieldEventType, "alert_fallback_sent"),
	)
}
