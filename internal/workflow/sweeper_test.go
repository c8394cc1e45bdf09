package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"watchpost/internal/clock"
	"watchpost/internal/logging"
	"watchpost/internal/spool"
	"watchpost/internal/testsupport"
	"watchpost/internal/workflow"
)

func seedStore(t *testing.T, store *spool.Store, times ...int64) {
	t.Helper()
	for _, ts := range times {
		if _, err := store.Enqueue(context.Background(), testsupport.Artifact(ts, 32)); err != nil {
			t.Fatalf("enqueue %d: %v", ts, err)
		}
	}
}

func TestSweepSkipsWhenUnreachable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seedStore(t, store, 1)
	client := &fakeClient{}
	sweeper := workflow.NewSweeper(client, store, clock.Real(), 0, time.Second, logging.NewNop())

	result := sweeper.Sweep(context.Background())
	if !result.Skipped || len(client.uploads) != 0 {
		t.Fatalf("expected skipped sweep, got %+v uploads=%d", result, len(client.uploads))
	}
}

func TestSweepDeliversOldestFirstAndDeletes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seedStore(t, store, 30, 10, 20)
	client := &fakeClient{reachable: true}
	sweeper := workflow.NewSweeper(client, store, clock.Real(), 0, time.Second, logging.NewNop())

	result := sweeper.Sweep(context.Background())
	if result.Delivered != 3 || result.Remaining != 0 || result.Aborted {
		t.Fatalf("unexpected result %+v", result)
	}
	got := client.uploadTimes()
	if len(got) != 3 || got[0] != 10 || got[1] != 20 || got[2] != 30 {
		t.Fatalf("expected oldest-first delivery, got %v", got)
	}
	if count, _ := store.Count(context.Background()); count != 0 {
		t.Fatalf("expected empty spool, got %d", count)
	}
}

func TestSweepKeepsFailedRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seedStore(t, store, 1, 2)
	client := &fakeClient{reachable: true, fail: true, status: 503}
	sweeper := workflow.NewSweeper(client, store, clock.Real(), 0, time.Second, logging.NewNop())

	result := sweeper.Sweep(context.Background())
	if result.Failed != 2 || result.Delivered != 0 || result.Remaining != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if count, _ := store.Count(context.Background()); count != 2 {
		t.Fatalf("expected records kept for retry, got %d", count)
	}
}

func TestSweepAbortsWhenBackendDrops(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seedStore(t, store, 1, 2, 3)
	client := &fakeClient{reachable: true}
	client.afterUpload = func(count int) {
		if count == 1 {
			client.setReachable(false)
		}
	}
	sweeper := workflow.NewSweeper(client, store, clock.Real(), 0, time.Second, logging.NewNop())

	result := sweeper.Sweep(context.Background())
	if !result.Aborted || result.Delivered != 1 || result.Remaining != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	records, _ := store.List(context.Background())
	if len(records) != 2 || records[0].CapturedAt != 2 {
		t.Fatalf("expected remaining records untouched, got %+v", records)
	}
}

func TestSweepSkipsVanishedRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seedStore(t, store, 1, 2)
	if err := os.Remove(filepath.Join(cfg.Paths.SpoolDir, spool.KeyFor(1, 0))); err != nil {
		t.Fatalf("remove record file: %v", err)
	}
	client := &fakeClient{reachable: true}
	sweeper := workflow.NewSweeper(client, store, clock.Real(), 0, time.Second, logging.NewNop())

	result := sweeper.Sweep(context.Background())
	if result.Missing != 1 || result.Delivered != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSweepWaitsBetweenRecordsAndHonorsCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seedStore(t, store, 1, 2, 3)
	clk := clock.Fake(time.Unix(1700000000, 0))
	client := &fakeClient{reachable: true}
	sweeper := workflow.NewSweeper(client, store, clk, time.Second, time.Second, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan workflow.SweepResult, 1)
	go func() { done <- sweeper.Sweep(ctx) }()

	clk.WaitForTimers(1)
	if got := len(client.uploadTimes()); got != 1 {
		t.Fatalf("expected one delivery before the delay elapses, got %d", got)
	}
	clk.Advance(time.Second)
	clk.WaitForTimers(1)
	if got := len(client.uploadTimes()); got != 2 {
		t.Fatalf("expected second delivery after one delay, got %d", got)
	}
	cancel()

	select {
	case result := <-done:
		if !result.Aborted || result.Delivered != 2 || result.Remaining != 1 {
			t.Fatalf("unexpected result %+v", result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not stop after cancel")
	}
}
