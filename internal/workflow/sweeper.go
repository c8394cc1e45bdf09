package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"watchpost/internal/clock"
	"watchpost/internal/delivery"
	"watchpost/internal/logging"
	"watchpost/internal/spool"
)

// SweepResult summarises one pass over the spool.
type SweepResult struct {
	Skipped   bool  `json:"skipped"`
	Aborted   bool  `json:"aborted"`
	Attempted int   `json:"attempted"`
	Delivered int   `json:"delivered"`
	Failed    int   `json:"failed"`
	Missing   int   `json:"missing"`
	Remaining int   `json:"remaining"`
	Err       error `json:"-"`
}

// Sweeper drains the spool through the delivery client, oldest first.
type Sweeper struct {
	client  delivery.Client
	spool   Spool
	clock   clock.Clock
	delay   time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// NewSweeper builds a sweeper. delay separates consecutive records; timeout
// bounds each delivery attempt.
func NewSweeper(client delivery.Client, queue Spool, clk clock.Clock, delay, timeout time.Duration, logger *slog.Logger) *Sweeper {
	if clk == nil {
		clk = clock.Real()
	}
	return &Sweeper{
		client:  client,
		spool:   queue,
		clock:   clk,
		delay:   delay,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "sweeper"),
	}
}

// Sweep attempts every queued record once. It does nothing while the backend
// is unreachable, deletes each record only after a confirmed delivery, and
// stops early on cancellation or when the backend drops mid-sweep.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	var result SweepResult
	if !s.client.Reachable(ctx) {
		result.Skipped = true
		return result
	}

	records, err := s.spool.List(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "sweep could not list spool", "sweep_list_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that spool_dir is mounted"),
			logging.String(logging.FieldImpact, "queued captures wait for the next sweep"),
		)
		result.Err = err
		return result
	}
	if len(records) == 0 {
		return result
	}
	spool.SortOldestFirst(records)

	s.logger.Info("sweep started",
		logging.String(logging.FieldEventType, "sweep_started"),
		logging.Int("records", len(records)),
	)
	for i, record := range records {
		if i > 0 {
			if err := clock.Sleep(ctx, s.clock, s.delay); err != nil {
				result.Aborted = true
				result.Err = err
				break
			}
			if !s.client.Reachable(ctx) {
				result.Aborted = true
				result.Err = delivery.ErrUnreachable
				break
			}
		}
		if err := ctx.Err(); err != nil {
			result.Aborted = true
			result.Err = err
			break
		}
		s.sweepRecord(ctx, record, &result)
	}
	result.Remaining = len(records) - result.Delivered - result.Missing

	s.logger.Info("sweep finished",
		logging.String(logging.FieldEventType, "sweep_finished"),
		logging.Int("delivered", result.Delivered),
		logging.Int("failed", result.Failed),
		logging.Int("remaining", result.Remaining),
		logging.Bool("aborted", result.Aborted),
	)
	return result
}

func (s *Sweeper) sweepRecord(ctx context.Context, record spool.Record, result *SweepResult) {
	logger := s.logger.With(
		logging.String(logging.FieldRecordKey, record.Key),
		logging.Int64(logging.FieldCapturedAt, record.CapturedAt),
	)

	data, err := s.spool.Read(ctx, record.Key)
	if errors.Is(err, spool.ErrNotFound) {
		result.Missing++
		logger.Info("queued record vanished; skipping", logging.Error(err))
		return
	}
	if err != nil {
		result.Failed++
		logging.WarnWithContext(logger, "queued record unreadable; skipping", "sweep_read_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "record retried on the next sweep"),
		)
		return
	}

	result.Attempted++
	attemptCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	outcome := s.client.Deliver(attemptCtx, delivery.Upload{Key: record.Key, CapturedAt: record.CapturedAt, Data: data})
	if !outcome.OK() {
		result.Failed++
		logger.Info("queued record not delivered; kept for retry",
			logging.String("delivery", outcome.Kind.String()),
			logging.Int("status", outcome.StatusCode),
			logging.Error(outcome.Err),
		)
		return
	}

	if _, err := s.spool.Delete(context.WithoutCancel(ctx), record.Key); err != nil {
		logging.WarnWithContext(logger, "delivered record not removed", "sweep_delete_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "record will be delivered again"),
		)
	}
	result.Delivered++
	logger.Info("queued record delivered",
		logging.String(logging.FieldEventType, "record_delivered"),
		logging.String(logging.FieldOutcome, string(OutcomeDelivered)),
	)
}
