package workflow

import (
	"context"

	"watchpost/internal/logging"
	"watchpost/internal/spool"
)

// updateTier recomputes the indicator tier and reports transitions.
func (m *Manager) updateTier(ctx context.Context) {
	m.mu.Lock()
	previous := m.state.Tier
	next := computeTier(m.state)
	m.state.Tier = next
	storageErr := m.state.StorageErr
	m.mu.Unlock()

	if previous == next {
		return
	}
	m.logger.Info("indicator tier changed",
		logging.String(logging.FieldEventType, "tier_changed"),
		logging.String("from", string(previous)),
		logging.String("to", string(next)),
	)
	if next != TierError {
		return
	}

	err := storageErr
	if err == nil {
		err = spool.ErrStorageUnavailable
	}
	if notifyErr := m.notifier.NotifyError(ctx, err, "capture spool"); notifyErr != nil {
		m.logger.Warn("tier notification failed",
			logging.Error(notifyErr),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}
