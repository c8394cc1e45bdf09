package api

import (
	"time"

	"watchpost/internal/intrusion"
	"watchpost/internal/spool"
	"watchpost/internal/trigger"
	"watchpost/internal/workflow"
)

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	state := summary.State
	wf := WorkflowStatus{
		Running:       summary.Running,
		Tier:          string(state.Tier),
		Reachable:     state.Reachable,
		StorageOK:     state.StorageOK,
		TimeSynced:    summary.TimeSynced,
		StartedAt:     FormatTime(state.StartedAt),
		LastEvent:     FormatTime(state.LastEvent),
		LastOutcome:   string(state.LastOutcome),
		LastHeartbeat: FormatTime(state.LastHeartbeat),
		LastReconnect: FormatTime(state.LastReconnect),
		Queue: QueueStatus{
			Records:    summary.Queue.Records,
			Bytes:      summary.Queue.Bytes,
			MaxRecords: summary.Queue.Capacity.MaxRecords,
			MaxBytes:   summary.Queue.Capacity.MaxBytes,
			Evicted:    summary.Queue.Evicted,
		},
		LastSweep: fromSweepResult(state.LastSweep, state.LastSweepResult),
		Counters: Counters{
			Delivered:         state.Delivered,
			Queued:            state.Queued,
			Dropped:           state.Dropped,
			CaptureFailures:   state.CaptureFailures,
			HeartbeatsSent:    state.HeartbeatsSent,
			HeartbeatFailures: state.HeartbeatFailures,
			ReconnectAttempts: state.ReconnectAttempts,
		},
		Camera: FromArbiter(summary.CameraState, summary.CameraStats),
	}
	if state.StorageErr != nil {
		wf.StorageError = state.StorageErr.Error()
	}
	if summary.QueueErr != nil {
		wf.Queue.Error = summary.QueueErr.Error()
	}
	if summary.Intrusion {
		wf.Intrusion = fromIntrusion(summary.IntrusionState, summary.IntrusionArbiter, summary.IntrusionStats, summary.PendingPIR)
	}
	return wf
}

// FromArbiter converts arbiter state and counters.
func FromArbiter(state trigger.State, stats trigger.Stats) ArbiterStatus {
	return ArbiterStatus{
		State:           state.String(),
		Raw:             stats.Raw,
		Debounced:       stats.Debounced,
		DroppedCooldown: stats.DroppedCooldown,
		DroppedArmed:    stats.DroppedArmed,
		Admitted:        stats.Admitted,
	}
}

func fromIntrusion(state trigger.State, arbiter trigger.Stats, stats intrusion.Stats, pending []string) IntrusionStatus {
	return IntrusionStatus{
		Enabled:             true,
		Arbiter:             FromArbiter(state, arbiter),
		PendingChannels:     pending,
		Detections:          stats.Detections,
		AlertsPosted:        stats.AlertsPosted,
		Fallbacks:           stats.Fallbacks,
		FallbacksSuppressed: stats.FallbacksSuppressed,
		FallbackFailures:    stats.FallbackFailures,
	}
}

func fromSweepResult(at time.Time, result workflow.SweepResult) SweepStatus {
	out := SweepStatus{
		At:        FormatTime(at),
		Skipped:   result.Skipped,
		Aborted:   result.Aborted,
		Attempted: result.Attempted,
		Delivered: result.Delivered,
		Failed:    result.Failed,
		Missing:   result.Missing,
		Remaining: result.Remaining,
	}
	if result.Err != nil {
		out.Error = result.Err.Error()
	}
	return out
}

// FromRecord converts a spool record to its API representation.
func FromRecord(record spool.Record) QueueRecord {
	return QueueRecord{
		Key:        record.Key,
		CapturedAt: record.CapturedAt,
		SizeBytes:  record.SizeBytes,
		Seq:        record.Seq,
		StoredAt:   FormatTime(record.StoredAt),
	}
}

// FromRecords converts spool records, preserving order.
func FromRecords(records []spool.Record) QueueListResponse {
	out := QueueListResponse{Records: make([]QueueRecord, 0, len(records))}
	for _, record := range records {
		out.Records = append(out.Records, FromRecord(record))
		out.Bytes += record.SizeBytes
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
