package workflow

import (
	"context"
	"errors"
	"time"

	"watchpost/internal/delivery"
	"watchpost/internal/logging"
	"watchpost/internal/spool"
)

// Start runs the control loop on its own goroutine.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.loopInterval <= 0 {
		m.mu.Unlock()
		return errors.New("workflow loop interval must be positive")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.Run(runCtx)
	}()
	return nil
}

// Stop cancels the loop and waits for the current iteration to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	<-done
}

// Running reports whether the loop goroutine is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Run executes Tick every loop interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.loopInterval)
	defer ticker.Stop()

	m.logger.Info("control loop started",
		logging.String(logging.FieldEventType, "loop_started"),
		logging.Duration("interval", m.loopInterval),
	)
	m.Tick(ctx, m.clock.Now())
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("control loop stopped",
				logging.String(logging.FieldEventType, "loop_stopped"),
			)
			return
		case <-ticker.C:
			m.Tick(ctx, m.clock.Now())
		}
	}
}

// Tick services, in order: camera trigger, intrusion, time service, sweep,
// heartbeat, reconnect. It must only be called from the loop goroutine.
func (m *Manager) Tick(ctx context.Context, now time.Time) {
	if event, ok := m.camera.PollAdmittedEvent(now); ok {
		result := m.orchestrator.HandleAdmittedEvent(ctx, event)
		m.recordOutcome(now, result)
	}

	if m.intrusion != nil {
		m.intrusion.Tick(ctx, now)
	}

	if m.times.Update() {
		synced := m.times.Synced()
		m.logger.Info("clock sync state changed",
			logging.String(logging.FieldEventType, "time_sync_changed"),
			logging.Bool("synced", synced),
		)
	}

	reachable := m.client.Reachable(ctx)
	reconnected := m.observeReachability(reachable)

	m.checkSweep(ctx, now, reachable, reconnected)
	m.checkHeartbeat(ctx, now, reachable)
	if !reachable {
		m.checkReconnect(ctx, now)
	}
	m.updateTier(ctx)
}

// observeReachability records the probe answer and reports an
// unreachable->reachable edge.
func (m *Manager) observeReachability(reachable bool) bool {
	m.mu.Lock()
	previous := m.state.Reachable
	initial := !m.state.probed
	m.state.Reachable = reachable
	m.state.probed = true
	m.mu.Unlock()

	if initial || previous == reachable {
		return false
	}
	if reachable {
		m.logger.Info("backend reachable",
			logging.String(logging.FieldEventType, "backend_reachable"),
		)
		return true
	}
	logging.WarnWithContext(m.logger, "backend unreachable", "backend_unreachable",
		logging.String(logging.FieldErrorHint, "check network.interface and backend.base_url"),
		logging.String(logging.FieldImpact, "captures are queued until the backend returns"),
	)
	return false
}

func (m *Manager) checkSweep(ctx context.Context, now time.Time, reachable, reconnected bool) {
	m.mu.RLock()
	lastSweep := m.state.LastSweepCheck
	m.mu.RUnlock()

	requested := m.sweepRequested.Swap(false)
	due := lastSweep.IsZero() || now.Sub(lastSweep) >= m.sweepInterval
	if !requested && !reconnected && !due {
		return
	}

	m.mu.Lock()
	m.state.LastSweepCheck = now
	m.mu.Unlock()

	if !reachable {
		m.refreshQueueDepth(ctx)
		return
	}
	result := m.sweeper.Sweep(ctx)
	m.mu.Lock()
	m.state.LastSweep = now
	m.state.LastSweepResult = result
	m.state.Delivered += uint64(result.Delivered)
	m.mu.Unlock()
	m.refreshQueueDepth(ctx)
}

func (m *Manager) checkHeartbeat(ctx context.Context, now time.Time, reachable bool) {
	if !reachable || m.heartbeatInterval <= 0 {
		return
	}
	m.mu.RLock()
	last := m.state.LastHeartbeat
	depth := m.state.QueueDepth
	tier := m.state.Tier
	m.mu.RUnlock()
	if !last.IsZero() && now.Sub(last) < m.heartbeatInterval {
		return
	}

	m.mu.Lock()
	m.state.LastHeartbeat = now
	m.mu.Unlock()

	state := string(tier)
	if tier == TierOffline {
		state = string(TierOnline)
	}
	err := m.heartbeat.Emit(ctx, delivery.Heartbeat{
		DeviceID:   m.cfg.Device.ID,
		State:      state,
		Address:    m.address(),
		Version:    m.cfg.Device.Version,
		QueueDepth: depth,
	})
	m.mu.Lock()
	if err != nil {
		m.state.HeartbeatFailures++
	} else {
		m.state.HeartbeatsSent++
	}
	m.mu.Unlock()
}

func (m *Manager) checkReconnect(ctx context.Context, now time.Time) {
	if m.reconnectInterval <= 0 {
		return
	}
	m.mu.RLock()
	last := m.state.LastReconnect
	m.mu.RUnlock()
	if now.Sub(last) < m.reconnectInterval {
		return
	}

	m.mu.Lock()
	m.state.LastReconnect = now
	m.state.ReconnectAttempts++
	m.mu.Unlock()

	m.logger.Info("attempting reconnect",
		logging.String(logging.FieldEventType, "reconnect_attempt"),
	)
	if err := m.reconnector.Reconnect(ctx); err != nil {
		logging.WarnWithContext(m.logger, "reconnect command failed", "reconnect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check network.reconnect_command"),
			logging.String(logging.FieldImpact, "device stays offline until the next attempt"),
		)
	}
	if inv, ok := m.client.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
	reachable := m.client.Reachable(ctx)
	if m.observeReachability(reachable) {
		m.checkSweep(ctx, now, true, true)
	}
}

func (m *Manager) refreshQueueDepth(ctx context.Context) {
	usage, err := m.spool.Usage(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.StorageOK = err == nil
	m.state.StorageErr = err
	if err == nil {
		m.state.QueueDepth = usage.Records
		m.state.QueueBytes = usage.Bytes
	}
}

func (m *Manager) recordOutcome(now time.Time, result Result) {
	m.mu.Lock()
	m.state.LastEvent = now
	m.state.LastOutcome = result.Outcome
	switch result.Outcome {
	case OutcomeDelivered:
		m.state.Delivered++
	case OutcomeQueued:
		m.state.Queued++
		m.state.StorageOK = true
		m.state.StorageErr = nil
	case OutcomeDropped:
		m.state.Dropped++
		if !errors.Is(result.Err, spool.ErrEvictedOnArrival) {
			m.state.StorageOK = false
			m.state.StorageErr = result.Err
		}
	case OutcomeCaptureFailed:
		m.state.CaptureFailures++
	}
	m.mu.Unlock()

	if result.Outcome == OutcomeQueued || errors.Is(result.Err, spool.ErrEvictedOnArrival) {
		m.refreshQueueDepth(context.Background())
	}
}

func (m *Manager) address() string {
	if addr, ok := m.client.(interface{ Address() string }); ok {
		return addr.Address()
	}
	return ""
}
