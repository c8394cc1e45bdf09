package daemon

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"watchpost/internal/config"
)

func netlinkConfig(subsystem, action, devpath string) *config.Config {
	cfg := config.Default()
	cfg.Triggers.NetlinkSubsystem = subsystem
	cfg.Triggers.NetlinkAction = action
	cfg.Triggers.NetlinkDevpath = devpath
	return &cfg
}

func TestNewNetlinkMonitor(t *testing.T) {
	t.Run("nil config returns nil", func(t *testing.T) {
		if m := newNetlinkMonitor(nil, nil, nil); m != nil {
			t.Error("expected nil monitor for nil config")
		}
	})

	t.Run("empty subsystem returns nil", func(t *testing.T) {
		if m := newNetlinkMonitor(netlinkConfig("", "change", ""), nil, nil); m != nil {
			t.Error("expected nil monitor without a subsystem filter")
		}
	})

	t.Run("empty action defaults to change", func(t *testing.T) {
		m := newNetlinkMonitor(netlinkConfig("gpio", "", ""), nil, nil)
		if m == nil {
			t.Fatal("expected non-nil monitor")
		}
		if m.action != "change" {
			t.Errorf("expected default action change, got %q", m.action)
		}
	})
}

func TestNetlinkMonitorStopStartIdempotency(t *testing.T) {
	t.Run("nil monitor is safe", func(t *testing.T) {
		var m *netlinkMonitor
		if m.Running() {
			t.Error("expected Running() false for nil monitor")
		}
		m.Stop()
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start on nil monitor should return nil, got: %v", err)
		}
	})

	t.Run("double stop on unstarted monitor is safe", func(t *testing.T) {
		m := newNetlinkMonitor(netlinkConfig("gpio", "change", ""), nil, nil)
		m.Stop()
		m.Stop()
		if m.Running() {
			t.Error("expected Running() false after Stop")
		}
	})
}

func TestBuildMatcher(t *testing.T) {
	m := newNetlinkMonitor(netlinkConfig("gpio", "change|add", ""), nil, nil)
	matcher := m.buildMatcher()
	if matcher == nil {
		t.Fatal("expected non-nil matcher")
	}

	cases := []struct {
		name   string
		action netlink.KObjAction
		env    map[string]string
		want   bool
	}{
		{name: "change", action: netlink.CHANGE, env: map[string]string{"SUBSYSTEM": "gpio"}, want: true},
		{name: "add", action: netlink.ADD, env: map[string]string{"SUBSYSTEM": "gpio"}, want: true},
		{name: "remove", action: netlink.REMOVE, env: map[string]string{"SUBSYSTEM": "gpio"}, want: false},
		{name: "other subsystem", action: netlink.CHANGE, env: map[string]string{"SUBSYSTEM": "block"}, want: false},
		{name: "no subsystem", action: netlink.CHANGE, env: map[string]string{}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := matcher.Evaluate(netlink.UEvent{Action: tc.action, Env: tc.env})
			if got != tc.want {
				t.Fatalf("Evaluate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHandleEvent(t *testing.T) {
	t.Run("offers trigger named after DEVNAME", func(t *testing.T) {
		var channels []string
		handler := func(channel string) bool {
			channels = append(channels, channel)
			return true
		}
		m := newNetlinkMonitor(netlinkConfig("gpio", "change", ""), nil, handler)
		m.handleEvent(netlink.UEvent{
			Action: netlink.CHANGE,
			Env:    map[string]string{"DEVNAME": "/dev/gpiochip0", "DEVPATH": "/devices/platform/soc/gpiochip0"},
		})
		if len(channels) != 1 || channels[0] != "gpiochip0" {
			t.Fatalf("unexpected channels %v", channels)
		}
	})

	t.Run("falls back to DEVPATH", func(t *testing.T) {
		var got string
		m := newNetlinkMonitor(netlinkConfig("input", "change", ""), nil, func(channel string) bool {
			got = channel
			return true
		})
		m.handleEvent(netlink.UEvent{
			Action: netlink.CHANGE,
			Env:    map[string]string{"DEVPATH": "/devices/platform/gpio-keys/input/input3"},
		})
		if got != "input3" {
			t.Fatalf("expected input3 from DEVPATH, got %q", got)
		}
	})

	t.Run("uses fixed channel without device details", func(t *testing.T) {
		var got string
		m := newNetlinkMonitor(netlinkConfig("gpio", "change", ""), nil, func(channel string) bool {
			got = channel
			return false
		})
		m.handleEvent(netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{}})
		if got != netlinkChannel {
			t.Fatalf("expected %q, got %q", netlinkChannel, got)
		}
	})

	t.Run("ignores other devpaths", func(t *testing.T) {
		called := false
		m := newNetlinkMonitor(netlinkConfig("gpio", "change", "gpiochip4"), nil, func(string) bool {
			called = true
			return true
		})
		m.handleEvent(netlink.UEvent{
			Action: netlink.CHANGE,
			Env:    map[string]string{"DEVPATH": "/devices/platform/soc/gpiochip0"},
		})
		if called {
			t.Fatal("handler should not be called for a different devpath")
		}

		m.handleEvent(netlink.UEvent{
			Action: netlink.CHANGE,
			Env:    map[string]string{"DEVPATH": "/devices/platform/soc/gpiochip4"},
		})
		if !called {
			t.Fatal("handler should be called for the configured devpath")
		}
	})
}
