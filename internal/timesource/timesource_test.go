package timesource_test

import (
	"errors"
	"testing"
	"time"

	"watchpost/internal/clock"
	"watchpost/internal/timesource"
)

type flipChecker struct {
	synced bool
	err    error
}

func (f *flipChecker) Synced() (bool, error) { return f.synced, f.err }

func TestTimestampZeroUntilSynced(t *testing.T) {
	now := time.Unix(1700000000, 0)
	checker := &flipChecker{}
	src := timesource.New(clock.Fake(now), checker)

	if got := src.Timestamp(); got != 0 {
		t.Fatalf("expected 0 before first update, got %d", got)
	}
	if !src.Update() {
		t.Fatal("first update should report a change")
	}
	if got := src.Timestamp(); got != 0 {
		t.Fatalf("expected 0 while unsynced, got %d", got)
	}

	checker.synced = true
	if !src.Update() {
		t.Fatal("expected change on sync")
	}
	if got := src.Timestamp(); got != now.Unix() {
		t.Fatalf("expected %d, got %d", now.Unix(), got)
	}
	if src.Update() {
		t.Fatal("expected no change on repeated sync")
	}

	checker.err = errors.New("adjtimex failed")
	src.Update()
	if src.Synced() {
		t.Fatal("checker error should read as unsynced")
	}
}

func TestNilCheckerIsAlwaysSynced(t *testing.T) {
	now := time.Unix(1234, 0)
	src := timesource.New(clock.Fake(now), nil)
	if src.Timestamp() != 1234 {
		t.Fatalf("unexpected timestamp %d", src.Timestamp())
	}
	if src.Update() {
		t.Fatal("nil checker never changes")
	}
}
