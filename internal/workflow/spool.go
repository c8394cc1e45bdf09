package workflow

import (
	"context"

	"watchpost/internal/capture"
	"watchpost/internal/spool"
)

// Spool is the durable queue surface used by the loop. *spool.Store
// satisfies it.
type Spool interface {
	Enqueue(ctx context.Context, artifact *capture.Artifact) (spool.Record, error)
	List(ctx context.Context) ([]spool.Record, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	Usage(ctx context.Context) (spool.Usage, error)
}
