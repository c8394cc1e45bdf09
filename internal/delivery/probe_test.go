package delivery_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"watchpost/internal/clock"
	"watchpost/internal/delivery"
)

type countingDialer struct {
	calls int
	err   error
	addr  string
}

func (d *countingDialer) dial(_ context.Context, network, address string) (net.Conn, error) {
	d.calls++
	d.addr = address
	if d.err != nil {
		return nil, d.err
	}
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

func TestProbeCachesResult(t *testing.T) {
	clk := clock.Fake(time.Unix(1700000000, 0))
	dialer := &countingDialer{}
	probe := delivery.NewProbe(delivery.ProbeOptions{
		Target:   "backend.example.com:443",
		CacheFor: 5 * time.Second,
		Clock:    clk,
		Dial:     dialer.dial,
	})

	ctx := context.Background()
	if !probe.Reachable(ctx) || !probe.Reachable(ctx) {
		t.Fatal("expected reachable")
	}
	if dialer.calls != 1 {
		t.Fatalf("expected cached second answer, got %d dials", dialer.calls)
	}
	if dialer.addr != "backend.example.com:443" {
		t.Fatalf("unexpected dial target %q", dialer.addr)
	}

	clk.Advance(5 * time.Second)
	probe.Reachable(ctx)
	if dialer.calls != 2 {
		t.Fatalf("expected re-probe after cache expiry, got %d dials", dialer.calls)
	}

	probe.Invalidate()
	probe.Reachable(ctx)
	if dialer.calls != 3 {
		t.Fatalf("expected re-probe after invalidate, got %d dials", dialer.calls)
	}
}

func TestProbeDialFailure(t *testing.T) {
	dialer := &countingDialer{err: errors.New("connection refused")}
	probe := delivery.NewProbe(delivery.ProbeOptions{
		Target: "backend.example.com:443",
		Clock:  clock.Fake(time.Unix(0, 0)),
		Dial:   dialer.dial,
	})
	if probe.Reachable(context.Background()) {
		t.Fatal("expected unreachable")
	}
	if probe.LastError() == nil {
		t.Fatal("expected last error to be recorded")
	}
}

func TestProbeRequiresInterfaceUp(t *testing.T) {
	dialer := &countingDialer{}
	linkUp := false
	probe := delivery.NewProbe(delivery.ProbeOptions{
		Interface: "wlan0",
		Target:    "backend.example.com:443",
		Clock:     clock.Fake(time.Unix(0, 0)),
		Dial:      dialer.dial,
		Check: func(name string) (string, error) {
			if !linkUp {
				return "", errors.New(name + " is down")
			}
			return "192.0.2.20", nil
		},
	})

	if probe.Reachable(context.Background()) {
		t.Fatal("expected unreachable while interface is down")
	}
	if dialer.calls != 0 {
		t.Fatalf("expected no dial while interface is down, got %d", dialer.calls)
	}

	linkUp = true
	if !probe.Reachable(context.Background()) {
		t.Fatal("expected reachable once interface is up")
	}
	if got := probe.Address(); got != "192.0.2.20" {
		t.Fatalf("expected interface address, got %q", got)
	}
}

func TestProbeInterfaceOnly(t *testing.T) {
	dialer := &countingDialer{}
	probe := delivery.NewProbe(delivery.ProbeOptions{
		Interface: "wlan0",
		Clock:     clock.Fake(time.Unix(0, 0)),
		Dial:      dialer.dial,
		Check:     func(string) (string, error) { return "192.0.2.30", nil },
	})
	if !probe.Reachable(context.Background()) {
		t.Fatal("expected interface-only probe to succeed")
	}
	if dialer.calls != 0 {
		t.Fatalf("expected no dial without target, got %d", dialer.calls)
	}
}
