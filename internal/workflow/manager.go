package workflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"watchpost/internal/capture"
	"watchpost/internal/clock"
	"watchpost/internal/config"
	"watchpost/internal/delivery"
	"watchpost/internal/intrusion"
	"watchpost/internal/logging"
	"watchpost/internal/notifications"
	"watchpost/internal/timesource"
	"watchpost/internal/trigger"
)

// Manager owns the control loop and every piece of loop-owned state.
type Manager struct {
	cfg      *config.Config
	clock    clock.Clock
	logger   *slog.Logger
	notifier notifications.Service

	camera       *trigger.Arbiter
	intrusion    *intrusion.Monitor
	times        *timesource.Source
	client       delivery.Client
	spool        Spool
	orchestrator *Orchestrator
	sweeper      *Sweeper
	heartbeat    *HeartbeatEmitter
	reconnector  Reconnector

	loopInterval      time.Duration
	sweepInterval     time.Duration
	heartbeatInterval time.Duration
	reconnectInterval time.Duration

	sweepRequested atomic.Bool

	mu      sync.RWMutex
	state   DeviceState
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Dependencies are the collaborators a Manager drives.
type Dependencies struct {
	Source      capture.Source
	Client      delivery.Client
	Spool       Spool
	Times       *timesource.Source
	Notifier    notifications.Service
	Reconnector Reconnector
	Clock       clock.Clock
	Logger      *slog.Logger
}

// NewManager wires the control loop from configuration.
func NewManager(cfg *config.Config, deps Dependencies) *Manager {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	times := deps.Times
	if times == nil {
		times = timesource.New(clk, nil)
	}
	reconnector := deps.Reconnector
	if reconnector == nil {
		reconnector = NewCommandReconnector(cfg.Network.ReconnectCommand, 0)
	}

	camera := trigger.NewArbiter(trigger.Options{
		Name:     "camera",
		Debounce: cfg.DebounceWindow(),
		Cooldown: cfg.CooldownPeriod(),
		Logger:   logger,
	})

	m := &Manager{
		cfg:               cfg,
		clock:             clk,
		logger:            logging.NewComponentLogger(logger, "workflow"),
		notifier:          notifier,
		camera:            camera,
		times:             times,
		client:            deps.Client,
		spool:             deps.Spool,
		orchestrator:      NewOrchestrator(deps.Source, deps.Client, deps.Spool, cfg.DeliveryTimeout(), logger),
		sweeper:           NewSweeper(deps.Client, deps.Spool, clk, time.Duration(cfg.Workflow.SweepRecordDelayMS)*time.Millisecond, cfg.DeliveryTimeout(), logger),
		heartbeat:         NewHeartbeatEmitter(deps.Client, logger),
		reconnector:       reconnector,
		loopInterval:      time.Duration(cfg.Workflow.LoopIntervalMS) * time.Millisecond,
		sweepInterval:     time.Duration(cfg.Workflow.SweepInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
		reconnectInterval: time.Duration(cfg.Network.ReconnectInterval) * time.Second,
	}
	if cfg.Intrusion.Enabled {
		m.intrusion = intrusion.NewMonitor(cfg, camera, deps.Client, notifier, times, logger)
	}
	now := clk.Now()
	m.state = DeviceState{
		Tier:          TierOffline,
		StartedAt:     now,
		LastReconnect: now,
		StorageOK:     true,
	}
	return m
}

// Trigger offers a raw camera trigger. Callable from any goroutine.
func (m *Manager) Trigger(source, channel string) bool {
	return m.camera.OnRawTrigger(source, channel, m.clock.Now())
}

// Sensor records a PIR pulse. Callable from any goroutine.
func (m *Manager) Sensor(channel string) error {
	if m.intrusion == nil {
		return ErrIntrusionDisabled
	}
	return m.intrusion.OnSensor(channel, m.clock.Now())
}

// RequestSweep asks the loop to sweep on its next iteration.
func (m *Manager) RequestSweep() {
	m.sweepRequested.Store(true)
}

// PendingSensors lists the PIR channels inside the open corroboration window.
func (m *Manager) PendingSensors() []string {
	if m.intrusion == nil {
		return nil
	}
	return m.intrusion.Pending(m.clock.Now())
}

// CameraState reports the camera arbiter state.
func (m *Manager) CameraState() trigger.State {
	return m.camera.State(m.clock.Now())
}
