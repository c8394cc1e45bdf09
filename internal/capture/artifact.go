// Package capture produces still-image artifacts from the camera collaborator.
package capture

import (
	"context"
	"errors"
)

// ErrCaptureFailed reports that no artifact could be produced.
var ErrCaptureFailed = errors.New("capture failed")

// Artifact is one captured image. It is never mutated after capture.
type Artifact struct {
	// CapturedAt is seconds since the epoch, or 0 when the clock is unsynced.
	CapturedAt int64
	Data       []byte
}

// SizeBytes returns the payload length.
func (a *Artifact) SizeBytes() int64 {
	if a == nil {
		return 0
	}
	return int64(len(a.Data))
}

// Source produces one artifact per call.
type Source interface {
	Capture(ctx context.Context) (*Artifact, error)
}

// TimeSource reports the best available wall-clock time in epoch seconds,
// 0 if unknown.
type TimeSource interface {
	Timestamp() int64
}
