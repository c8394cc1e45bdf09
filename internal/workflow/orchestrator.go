package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"watchpost/internal/capture"
	"watchpost/internal/delivery"
	"watchpost/internal/logging"
	"watchpost/internal/spool"
	"watchpost/internal/trigger"
)

// Outcome is what happened to one admitted event.
type Outcome string

const (
	OutcomeCaptureFailed Outcome = "capture_failed"
	OutcomeDelivered     Outcome = "delivered"
	OutcomeQueued        Outcome = "queued"
	OutcomeDropped       Outcome = "dropped"
)

// Result carries the outcome and its details.
type Result struct {
	Outcome  Outcome
	Record   spool.Record
	Delivery delivery.Outcome
	Err      error
}

// Orchestrator turns an admitted event into a delivered or queued capture.
type Orchestrator struct {
	source  capture.Source
	client  delivery.Client
	spool   Spool
	timeout time.Duration
	logger  *slog.Logger
}

// NewOrchestrator builds an orchestrator. timeout bounds the single
// immediate delivery attempt.
func NewOrchestrator(source capture.Source, client delivery.Client, queue Spool, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		source:  source,
		client:  client,
		spool:   queue,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "orchestrator"),
	}
}

// HandleAdmittedEvent captures once, tries one immediate delivery when the
// backend is reachable, and enqueues the artifact otherwise. It never retries.
func (o *Orchestrator) HandleAdmittedEvent(ctx context.Context, event trigger.Event) Result {
	logger := o.logger.With(
		logging.String(logging.FieldSource, event.Source),
		logging.String(logging.FieldChannel, event.Channel),
	)

	artifact, err := o.source.Capture(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "capture failed; event discarded", "capture_failed",
			logging.Error(err),
			logging.String(logging.FieldOutcome, string(OutcomeCaptureFailed)),
			logging.String(logging.FieldErrorHint, "check capture.command and the camera connection"),
			logging.String(logging.FieldImpact, "no image recorded for this trigger"),
		)
		return Result{Outcome: OutcomeCaptureFailed, Err: err}
	}
	logger = logger.With(logging.Int64(logging.FieldCapturedAt, artifact.CapturedAt))

	var attempt delivery.Outcome
	if o.client.Reachable(ctx) {
		attempt = o.deliver(ctx, artifact)
		if attempt.OK() {
			logger.Info("capture delivered",
				logging.String(logging.FieldEventType, "capture_delivered"),
				logging.String(logging.FieldOutcome, string(OutcomeDelivered)),
				logging.Int64("bytes", artifact.SizeBytes()),
			)
			return Result{Outcome: OutcomeDelivered, Delivery: attempt}
		}
		logger.Info("immediate delivery failed; queuing capture",
			logging.String("delivery", attempt.Kind.String()),
			logging.Int("status", attempt.StatusCode),
			logging.Error(attempt.Err),
		)
	} else {
		logger.Info("backend unreachable; queuing capture",
			logging.Error(delivery.ErrUnreachable),
		)
	}

	// The artifact exists now; shutdown must not stop it reaching disk.
	record, err := o.spool.Enqueue(context.WithoutCancel(ctx), artifact)
	if errors.Is(err, spool.ErrEvictedOnArrival) {
		logging.WarnWithContext(logger, "capture evicted on arrival; lost", "capture_evicted",
			logging.String(logging.FieldRecordKey, record.Key),
			logging.Int64(logging.FieldCapturedAt, record.CapturedAt),
			logging.String(logging.FieldOutcome, string(OutcomeDropped)),
			logging.String(logging.FieldErrorHint, "capture is older than every queued record; check the capture clock"),
			logging.String(logging.FieldImpact, "this capture is lost"),
		)
		return Result{Outcome: OutcomeDropped, Record: record, Delivery: attempt, Err: err}
	}
	if err != nil {
		logging.WarnWithContext(logger, "capture could not be queued; dropped", "capture_dropped",
			logging.Error(err),
			logging.String(logging.FieldOutcome, string(OutcomeDropped)),
			logging.String(logging.FieldErrorHint, "check that spool_dir is mounted and writable"),
			logging.String(logging.FieldImpact, "this capture is lost"),
		)
		return Result{Outcome: OutcomeDropped, Delivery: attempt, Err: err}
	}
	logger.Info("capture queued",
		logging.String(logging.FieldEventType, "capture_queued"),
		logging.String(logging.FieldOutcome, string(OutcomeQueued)),
		logging.String(logging.FieldRecordKey, record.Key),
	)
	return Result{Outcome: OutcomeQueued, Record: record, Delivery: attempt}
}

func (o *Orchestrator) deliver(ctx context.Context, artifact *capture.Artifact) delivery.Outcome {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return o.client.Deliver(ctx, delivery.Upload{CapturedAt: artifact.CapturedAt, Data: artifact.Data})
}
