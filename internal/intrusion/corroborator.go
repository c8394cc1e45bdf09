// Package intrusion turns motion-sensor pulses into corroborated intrusion
// detections, posts alert metadata, and raises a camera trigger.
package intrusion

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// PIR channels.
const (
	ChannelLeft   = "left"
	ChannelMiddle = "middle"
	ChannelRight  = "right"
)

// Channels lists the PIR channels in reporting order.
var Channels = []string{ChannelLeft, ChannelMiddle, ChannelRight}

// ErrUnknownChannel is returned for sensor input on an unnamed channel.
var ErrUnknownChannel = errors.New("unknown pir channel")

// Detection is a corroborated intrusion.
type Detection struct {
	Left       bool
	Middle     bool
	Right      bool
	Confidence float64
	At         time.Time
}

// Fired returns the channels that contributed to the detection.
func (d Detection) Fired() []string {
	fired := make([]string, 0, 3)
	if d.Left {
		fired = append(fired, ChannelLeft)
	}
	if d.Middle {
		fired = append(fired, ChannelMiddle)
	}
	if d.Right {
		fired = append(fired, ChannelRight)
	}
	return fired
}

// Count is the number of distinct channels that fired.
func (d Detection) Count() int { return len(d.Fired()) }

// Confidence maps a channel count to a detection confidence.
func Confidence(count int) float64 {
	switch {
	case count >= 3:
		return 0.95
	case count == 2:
		return 0.80
	case count == 1:
		return 0.60
	default:
		return 0
	}
}

// ParseChannel normalizes a channel name.
func ParseChannel(value string) (string, error) {
	channel := strings.ToLower(strings.TrimSpace(value))
	for _, known := range Channels {
		if channel == known {
			return channel, nil
		}
	}
	return "", fmt.Errorf("%w %q (want left, middle or right)", ErrUnknownChannel, value)
}

// Corroborator groups PIR pulses into fixed windows opened by the first pulse.
// A window that collects at least minChannels distinct channels is a detection.
type Corroborator struct {
	window      time.Duration
	minChannels int

	mu          sync.Mutex
	windowStart time.Time
	fired       map[string]bool
}

// NewCorroborator returns an empty corroborator.
func NewCorroborator(window time.Duration, minChannels int) *Corroborator {
	if minChannels < 1 {
		minChannels = 1
	}
	return &Corroborator{
		window:      window,
		minChannels: minChannels,
		fired:       make(map[string]bool, len(Channels)),
	}
}

// Mark records a pulse on channel at now. Safe for concurrent use.
func (c *Corroborator) Mark(channel string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(now)
	if c.windowStart.IsZero() {
		c.windowStart = now
	}
	c.fired[channel] = true
}

// Detect reports a detection when the open window is corroborated, then
// starts over.
func (c *Corroborator) Detect(now time.Time) (Detection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(now)
	if len(c.fired) < c.minChannels {
		return Detection{}, false
	}
	detection := Detection{
		Left:   c.fired[ChannelLeft],
		Middle: c.fired[ChannelMiddle],
		Right:  c.fired[ChannelRight],
		At:     now,
	}
	detection.Confidence = Confidence(detection.Count())
	c.resetLocked()
	return detection, true
}

// Pending returns the channels seen in the open window.
func (c *Corroborator) Pending(now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(now)
	pending := make([]string, 0, len(c.fired))
	for _, channel := range Channels {
		if c.fired[channel] {
			pending = append(pending, channel)
		}
	}
	return pending
}

func (c *Corroborator) expireLocked(now time.Time) {
	if !c.windowStart.IsZero() && now.Sub(c.windowStart) > c.window {
		c.resetLocked()
	}
}

func (c *Corroborator) resetLocked() {
	c.windowStart = time.Time{}
	clear(c.fired)
}
