package testsupport

import (
	"context"
	"testing"

	"watchpost/internal/config"
	"watchpost/internal/logging"
	"watchpost/internal/spool"
)

// MustOpenStore opens a spool.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *spool.Store {
	t.Helper()

	store, err := spool.OpenFromConfig(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("spool.OpenFromConfig failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
