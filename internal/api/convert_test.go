package api_test

import (
	"errors"
	"testing"
	"time"

	"watchpost/internal/api"
	"watchpost/internal/intrusion"
	"watchpost/internal/spool"
	"watchpost/internal/trigger"
	"watchpost/internal/workflow"
)

func TestFromStatusSummary(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	summary := workflow.StatusSummary{
		Running: true,
		State: workflow.DeviceState{
			Tier:            workflow.TierError,
			StorageOK:       false,
			StorageErr:      spool.ErrStorageUnavailable,
			StartedAt:       started,
			LastOutcome:     workflow.OutcomeDropped,
			LastSweep:       started.Add(time.Minute),
			LastSweepResult: workflow.SweepResult{Attempted: 3, Delivered: 2, Failed: 1, Remaining: 1, Err: errors.New("rejected")},
			Delivered:       7,
			Dropped:         1,
		},
		TimeSynced:  true,
		Queue:       spool.Usage{Records: 1, Bytes: 2048, Capacity: spool.Capacity{MaxRecords: 500}},
		QueueErr:    spool.ErrStorageUnavailable,
		CameraState: trigger.StateCooldown,
		CameraStats: trigger.Stats{Raw: 4, Admitted: 1, DroppedCooldown: 3},
	}

	got := api.FromStatusSummary(summary)
	if got.Tier != "error" || got.StorageOK {
		t.Fatalf("unexpected tier/storage: %+v", got)
	}
	if got.StorageError == "" || got.Queue.Error == "" {
		t.Fatalf("expected storage errors surfaced, got %+v", got)
	}
	if got.StartedAt != "2024-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected started at %q", got.StartedAt)
	}
	if got.LastEvent != "" {
		t.Fatalf("expected zero time omitted, got %q", got.LastEvent)
	}
	if got.LastOutcome != "dropped" {
		t.Fatalf("unexpected last outcome %q", got.LastOutcome)
	}
	if got.LastSweep.Delivered != 2 || got.LastSweep.Error != "rejected" || got.LastSweep.At == "" {
		t.Fatalf("unexpected sweep status %+v", got.LastSweep)
	}
	if got.Counters.Delivered != 7 || got.Counters.Dropped != 1 {
		t.Fatalf("unexpected counters %+v", got.Counters)
	}
	if got.Camera.State != "cooldown" || got.Camera.DroppedCooldown != 3 {
		t.Fatalf("unexpected camera status %+v", got.Camera)
	}
	if got.Queue.MaxRecords != 500 || got.Queue.Bytes != 2048 {
		t.Fatalf("unexpected queue status %+v", got.Queue)
	}
	if got.Intrusion.Enabled {
		t.Fatal("expected intrusion disabled")
	}
}

func TestFromStatusSummaryIntrusion(t *testing.T) {
	summary := workflow.StatusSummary{
		Intrusion:        true,
		IntrusionState:   trigger.StateArmed,
		IntrusionArbiter: trigger.Stats{Raw: 2, Admitted: 1},
		IntrusionStats:   intrusion.Stats{Detections: 1, Fallbacks: 1},
		PendingPIR:       []string{"left"},
	}
	got := api.FromStatusSummary(summary).Intrusion
	if !got.Enabled || got.Arbiter.State != "armed" || got.Arbiter.Raw != 2 {
		t.Fatalf("unexpected intrusion status %+v", got)
	}
	if got.Detections != 1 || got.Fallbacks != 1 || len(got.PendingChannels) != 1 {
		t.Fatalf("unexpected intrusion counters %+v", got)
	}
}

func TestFromRecords(t *testing.T) {
	stored := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []spool.Record{
		{Key: "capture_100.jpg", CapturedAt: 100, SizeBytes: 10, Seq: 1, StoredAt: stored},
		{Key: "capture_0.jpg", CapturedAt: 0, SizeBytes: 5, Seq: 2},
	}
	got := api.FromRecords(records)
	if len(got.Records) != 2 || got.Bytes != 15 {
		t.Fatalf("unexpected list %+v", got)
	}
	if got.Records[0].Key != "capture_100.jpg" || got.Records[0].StoredAt == "" {
		t.Fatalf("unexpected first record %+v", got.Records[0])
	}
	if got.Records[1].StoredAt != "" {
		t.Fatalf("expected empty stored at, got %q", got.Records[1].StoredAt)
	}

	empty := api.FromRecords(nil)
	if empty.Records == nil {
		t.Fatal("expected non-nil records slice for JSON []")
	}
}
