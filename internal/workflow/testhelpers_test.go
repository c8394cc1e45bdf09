package workflow_test

import (
	"context"
	"errors"
	"sync"

	"watchpost/internal/capture"
	"watchpost/internal/delivery"
	"watchpost/internal/notifications"
	"watchpost/internal/testsupport"
)

type fakeSource struct {
	mu    sync.Mutex
	next  int64
	err   error
	calls int
}

func (f *fakeSource) Capture(context.Context) (*capture.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.next++
	return testsupport.Artifact(f.next, 64), nil
}

type fakeClient struct {
	mu          sync.Mutex
	reachable   bool
	fail        bool
	status      int
	afterUpload func(count int)
	uploads     []delivery.Upload
	heartbeats  []delivery.Heartbeat
	alerts      []delivery.Alert
	invalidated int
}

func (f *fakeClient) setReachable(v bool) {
	f.mu.Lock()
	f.reachable = v
	f.mu.Unlock()
}

func (f *fakeClient) Reachable(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reachable
}

func (f *fakeClient) Deliver(_ context.Context, upload delivery.Upload) delivery.Outcome {
	f.mu.Lock()
	f.uploads = append(f.uploads, upload)
	count := len(f.uploads)
	fail, status, hook := f.fail, f.status, f.afterUpload
	f.mu.Unlock()
	if hook != nil {
		hook(count)
	}
	if fail {
		if status == 0 {
			return delivery.Outcome{Kind: delivery.OutcomeTransportError, Err: errors.New("connection reset")}
		}
		return delivery.Outcome{Kind: delivery.OutcomeRejected, StatusCode: status, Err: &delivery.StatusError{StatusCode: status}}
	}
	return delivery.Outcome{Kind: delivery.OutcomeSuccess, StatusCode: 200}
}

func (f *fakeClient) SendHeartbeat(_ context.Context, hb delivery.Heartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, hb)
	return nil
}

func (f *fakeClient) PostAlert(_ context.Context, alert delivery.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeClient) Invalidate() {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
}

func (f *fakeClient) Address() string { return "192.0.2.50" }

func (f *fakeClient) uploadTimes() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	times := make([]int64, 0, len(f.uploads))
	for _, upload := range f.uploads {
		times = append(times, upload.CapturedAt)
	}
	return times
}

func (f *fakeClient) heartbeatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.heartbeats)
}

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (r *recordingNotifier) NotifyIntrusion(context.Context, notifications.Intrusion) error {
	return nil
}

func (r *recordingNotifier) NotifyError(_ context.Context, err error, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, label+": "+err.Error())
	return nil
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

func (r *recordingNotifier) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

type countingReconnector struct {
	mu    sync.Mutex
	calls int
	onRun func()
}

func (c *countingReconnector) Reconnect(context.Context) error {
	c.mu.Lock()
	c.calls++
	hook := c.onRun
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (c *countingReconnector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
