package workflow

import (
	"context"
	"log/slog"

	"watchpost/internal/delivery"
	"watchpost/internal/logging"
)

// HeartbeatEmitter reports device liveness to the backend.
type HeartbeatEmitter struct {
	client delivery.Client
	logger *slog.Logger
}

// NewHeartbeatEmitter creates a new emitter.
func NewHeartbeatEmitter(client delivery.Client, logger *slog.Logger) *HeartbeatEmitter {
	return &HeartbeatEmitter{
		client: client,
		logger: logging.NewComponentLogger(logger, "heartbeat"),
	}
}

// Emit sends one heartbeat. Failures are logged and returned; they never
// affect the loop.
func (h *HeartbeatEmitter) Emit(ctx context.Context, heartbeat delivery.Heartbeat) error {
	if err := h.client.SendHeartbeat(ctx, heartbeat); err != nil {
		logging.WarnWithContext(h.logger, "heartbeat failed", "heartbeat_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "backend may show the device as offline"),
		)
		return err
	}
	h.logger.Debug("heartbeat sent",
		logging.String("status", heartbeat.State),
		logging.Int("queue_depth", heartbeat.QueueDepth),
	)
	return nil
}
