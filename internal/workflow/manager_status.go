package workflow

import (
	"context"
	"time"

	"watchpost/internal/intrusion"
	"watchpost/internal/logging"
	"watchpost/internal/spool"
	"watchpost/internal/trigger"
)

// Tier is the coarse device condition shown on the indicator.
type Tier string

const (
	TierOnline  Tier = "online"
	TierOffline Tier = "offline"
	TierError   Tier = "error"
)

// DeviceState is the loop-owned mutable state. It is written only by the
// loop goroutine and read under the manager lock.
type DeviceState struct {
	Tier       Tier
	Reachable  bool
	StorageOK  bool
	StorageErr error
	QueueDepth int
	QueueBytes int64

	StartedAt      time.Time
	LastEvent      time.Time
	LastOutcome    Outcome
	LastSweep      time.Time
	LastSweepCheck time.Time
	LastHeartbeat  time.Time
	LastReconnect  time.Time

	LastSweepResult SweepResult

	Delivered         uint64
	Queued            uint64
	Dropped           uint64
	CaptureFailures   uint64
	HeartbeatsSent    uint64
	HeartbeatFailures uint64
	ReconnectAttempts uint64

	probed bool
}

// StatusSummary is a point-in-time view for the status API.
type StatusSummary struct {
	Running          bool
	State            DeviceState
	TimeSynced       bool
	Queue            spool.Usage
	QueueErr         error
	CameraState      trigger.State
	CameraStats      trigger.Stats
	Intrusion        bool
	IntrusionState   trigger.State
	IntrusionArbiter trigger.Stats
	IntrusionStats   intrusion.Stats
	PendingPIR       []string
}

// Status returns the latest loop state plus live queue usage.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	now := m.clock.Now()
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, State: m.state}
	m.mu.RUnlock()

	summary.TimeSynced = m.times.Synced()
	summary.CameraState = m.camera.State(now)
	summary.CameraStats = m.camera.Stats()
	if m.intrusion != nil {
		summary.Intrusion = true
		summary.IntrusionState = m.intrusion.Arbiter().State(now)
		summary.IntrusionArbiter = m.intrusion.Arbiter().Stats()
		summary.IntrusionStats = m.intrusion.Stats()
		summary.PendingPIR = m.intrusion.Pending(now)
	}

	usage, err := m.spool.Usage(ctx)
	if err != nil {
		m.logger.Warn("failed to read spool usage", logging.Error(err))
		summary.QueueErr = err
	}
	summary.Queue = usage
	return summary
}

// State returns a copy of the loop-owned state.
func (m *Manager) State() DeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func computeTier(state DeviceState) Tier {
	switch {
	case !state.StorageOK:
		return TierError
	case !state.Reachable:
		return TierOffline
	default:
		return TierOnline
	}
}
