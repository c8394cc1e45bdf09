package daemonrun_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"watchpost/internal/daemon"
	"watchpost/internal/daemonrun"
	"watchpost/internal/logging"
	"watchpost/internal/spool"
	"watchpost/internal/testsupport"
)

func TestRunRefusesBeforeTouchingSpool(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCapacity(1, 0))

	lock, err := daemon.AcquireLock(cfg)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	t.Cleanup(func() { _ = lock.Unlock() })

	// Two orphans over a capacity of one: any reconcile would evict.
	for _, name := range []string{"capture_100.jpg", "capture_200.jpg"} {
		testsupport.WriteFile(t, filepath.Join(cfg.Paths.SpoolDir, name), testsupport.JPEG(64))
	}

	err = daemonrun.Run(context.Background(), cfg, daemonrun.Options{})
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.Paths.StateDir, spool.IndexFileName)); !os.IsNotExist(err) {
		t.Fatalf("expected no index created, stat err %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.StateDir, daemonrun.PIDFileName)); !os.IsNotExist(err) {
		t.Fatalf("expected no pid file, stat err %v", err)
	}
	if _, err := os.Lstat(filepath.Join(cfg.Paths.LogDir, logging.LogFileName)); !os.IsNotExist(err) {
		t.Fatalf("expected log pointer untouched, stat err %v", err)
	}
	for _, name := range []string{"capture_100.jpg", "capture_200.jpg"} {
		if _, err := os.Stat(filepath.Join(cfg.Paths.SpoolDir, name)); err != nil {
			t.Fatalf("expected %s kept: %v", name, err)
		}
	}
}
