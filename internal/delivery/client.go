package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnreachable reports that no attempt was made because the backend is not
// reachable.
var ErrUnreachable = errors.New("backend unreachable")

// OutcomeKind classifies one delivery attempt.
type OutcomeKind int

const (
	// OutcomeSuccess means the backend accepted the upload with 200 or 201.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRejected means the backend answered with any other status.
	OutcomeRejected
	// OutcomeTransportError means no HTTP response was received.
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of one Deliver call.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Err        error
}

// OK reports whether the attempt succeeded.
func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess }

// Upload is one capture to deliver.
type Upload struct {
	Key        string
	CapturedAt int64
	Data       []byte
}

// Heartbeat is the periodic liveness payload.
type Heartbeat struct {
	DeviceID   string `json:"deviceId"`
	State      string `json:"status"`
	Address    string `json:"ip"`
	Version    string `json:"version"`
	QueueDepth int    `json:"queueDepth"`
}

// Alert is the intrusion metadata posted alongside the triggered capture.
type Alert struct {
	Timestamp     int64   `json:"timestamp"`
	Confidence    float64 `json:"detection_confidence"`
	PIRLeft       bool    `json:"pir_left"`
	PIRMiddle     bool    `json:"pir_middle"`
	PIRRight      bool    `json:"pir_right"`
	NetworkStatus string  `json:"network_status"`
}

// Client is the backend surface used by the control loop.
type Client interface {
	Reachable(ctx context.Context) bool
	Deliver(ctx context.Context, upload Upload) Outcome
	SendHeartbeat(ctx context.Context, heartbeat Heartbeat) error
	PostAlert(ctx context.Context, alert Alert) error
}

// StatusError carries a non-success HTTP status from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

func accepted(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated
}
