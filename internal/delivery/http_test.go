package delivery_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"watchpost/internal/clock"
	"watchpost/internal/delivery"
	"watchpost/internal/testsupport"
)

type stubReach struct {
	reachable   bool
	invalidated atomic.Int32
}

func (s *stubReach) Reachable(context.Context) bool { return s.reachable }
func (s *stubReach) Invalidate()                    { s.invalidated.Add(1) }
func (s *stubReach) Address() string                { return "192.0.2.10" }

func newClient(t *testing.T, handler http.HandlerFunc) (*delivery.HTTPClient, *stubReach) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(srv.URL+"/api/v1/burglary"))
	reach := &stubReach{reachable: true}
	return delivery.NewHTTPClient(cfg, clock.Real(), delivery.WithReachability(reach)), reach
}

func TestDeliverSendsMultipartUpload(t *testing.T) {
	payload := testsupport.JPEG(2048)
	var hits atomic.Int32
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/burglary/image/image" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("unexpected api key %q", got)
		}
		if r.ContentLength <= int64(len(payload)) {
			t.Errorf("expected explicit content length above payload size, got %d", r.ContentLength)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "capture.jpg" {
			t.Errorf("unexpected filename %q", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("unexpected part content type %q", ct)
		}
		data, _ := io.ReadAll(file)
		if !bytes.Equal(data, payload) {
			t.Errorf("payload mismatch: got %d bytes", len(data))
		}
		w.WriteHeader(http.StatusCreated)
	})

	outcome := client.Deliver(context.Background(), delivery.Upload{Key: "capture_1.jpg", CapturedAt: 1, Data: payload})
	if !outcome.OK() || outcome.StatusCode != http.StatusCreated {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one attempt, got %d", hits.Load())
	}
}

func TestDeliverOnlyAcceptsOKAndCreated(t *testing.T) {
	tests := []struct {
		status int
		want   delivery.OutcomeKind
	}{
		{http.StatusOK, delivery.OutcomeSuccess},
		{http.StatusCreated, delivery.OutcomeSuccess},
		{http.StatusAccepted, delivery.OutcomeRejected},
		{http.StatusNoContent, delivery.OutcomeRejected},
		{http.StatusUnauthorized, delivery.OutcomeRejected},
		{http.StatusInternalServerError, delivery.OutcomeRejected},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			outcome := client.Deliver(context.Background(), delivery.Upload{Data: testsupport.JPEG(16)})
			if outcome.Kind != tt.want {
				t.Fatalf("status %d: expected %s, got %s", tt.status, tt.want, outcome.Kind)
			}
			if tt.want == delivery.OutcomeRejected {
				var statusErr *delivery.StatusError
				if !errors.As(outcome.Err, &statusErr) || statusErr.StatusCode != tt.status {
					t.Fatalf("expected StatusError for %d, got %v", tt.status, outcome.Err)
				}
			}
		})
	}
}

func TestDeliverTransportErrorInvalidatesProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(srv.URL))
	srv.Close()
	reach := &stubReach{reachable: true}
	client := delivery.NewHTTPClient(cfg, clock.Real(), delivery.WithReachability(reach))

	outcome := client.Deliver(context.Background(), delivery.Upload{Data: testsupport.JPEG(16)})
	if outcome.Kind != delivery.OutcomeTransportError || outcome.Err == nil {
		t.Fatalf("expected transport error, got %+v", outcome)
	}
	if reach.invalidated.Load() != 1 {
		t.Fatalf("expected probe invalidation, got %d", reach.invalidated.Load())
	}
}

func TestSendHeartbeatPostsJSON(t *testing.T) {
	var body map[string]any
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/burglary/heartbeat/heartbeat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" || r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	})

	err := client.SendHeartbeat(context.Background(), delivery.Heartbeat{
		DeviceID:   "WATCHPOST_CAM",
		State:      "online",
		Address:    "192.0.2.10",
		Version:    "v2.0",
		QueueDepth: 3,
	})
	if err != nil {
		t.Fatalf("SendHeartbeat returned error: %v", err)
	}
	want := map[string]any{"deviceId": "WATCHPOST_CAM", "status": "online", "ip": "192.0.2.10", "version": "v2.0", "queueDepth": float64(3)}
	for key, value := range want {
		if body[key] != value {
			t.Fatalf("expected %s=%v, got %v", key, value, body[key])
		}
	}
}

func TestPostAlertReportsRejection(t *testing.T) {
	var body map[string]any
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/burglary/alert/alert" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		http.Error(w, "bad key", http.StatusForbidden)
	})

	err := client.PostAlert(context.Background(), delivery.Alert{
		Timestamp:     1700000000,
		Confidence:    0.8,
		PIRLeft:       true,
		PIRRight:      true,
		NetworkStatus: "connected",
	})
	var statusErr *delivery.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden || statusErr.Body != "bad key" {
		t.Fatalf("expected 403 StatusError, got %v", err)
	}
	if body["detection_confidence"] != 0.8 || body["pir_left"] != true || body["pir_middle"] != false || body["network_status"] != "connected" {
		t.Fatalf("unexpected alert body %v", body)
	}
}
