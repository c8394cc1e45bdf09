// Package trigger folds raw trigger signals from many producers into at most
// one admitted capture decision per cooldown period.
package trigger

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"watchpost/internal/logging"
)

// Trigger sources.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
	SourcePIR    = "pir"
)

// Event is an admitted trigger. It is consumed once and not retained.
type Event struct {
	Source  string
	Channel string
	At      time.Time
}

// State is the arbiter's position in Idle -> Armed -> Cooldown -> Idle.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateCooldown:
		return "cooldown"
	default:
		return "idle"
	}
}

// Stats counts what happened to raw triggers.
type Stats struct {
	Raw             uint64 `json:"raw"`
	Debounced       uint64 `json:"debounced"`
	DroppedCooldown uint64 `json:"dropped_cooldown"`
	DroppedArmed    uint64 `json:"dropped_armed"`
	Admitted        uint64 `json:"admitted"`
}

// Options configures an Arbiter.
type Options struct {
	Name     string
	Debounce time.Duration
	Cooldown time.Duration
	Logger   *slog.Logger
}

// Arbiter admits the first trigger to arrive outside cooldown and drops the
// rest. OnRawTrigger may be called from any goroutine; PollAdmittedEvent is
// called by the control loop only.
type Arbiter struct {
	name     string
	debounce time.Duration
	cooldown time.Duration
	logger   *slog.Logger

	mu            sync.Mutex
	lastByChannel map[string]time.Time
	pending       *Event
	cooldownUntil time.Time
	stats         Stats
}

// NewArbiter returns an idle arbiter.
func NewArbiter(opts Options) *Arbiter {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "trigger"
	}
	return &Arbiter{
		name:          name,
		debounce:      opts.Debounce,
		cooldown:      opts.Cooldown,
		logger:        logging.NewComponentLogger(opts.Logger, name),
		lastByChannel: make(map[string]time.Time),
	}
}

// Name identifies the arbiter in logs and status output.
func (a *Arbiter) Name() string { return a.name }

// OnRawTrigger offers a raw trigger. It returns true when the trigger became
// the pending event.
func (a *Arbiter) OnRawTrigger(source, channel string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.Raw++
	if last, ok := a.lastByChannel[channel]; ok && a.debounce > 0 && now.Sub(last) < a.debounce {
		a.stats.Debounced++
		return false
	}
	a.lastByChannel[channel] = now

	if a.pending != nil {
		a.stats.DroppedArmed++
		a.logger.Debug("trigger dropped; event already pending",
			logging.String(logging.FieldSource, source),
			logging.String(logging.FieldChannel, channel),
		)
		return false
	}
	if now.Before(a.cooldownUntil) {
		a.stats.DroppedCooldown++
		a.logger.Debug("trigger dropped during cooldown",
			logging.String(logging.FieldSource, source),
			logging.String(logging.FieldChannel, channel),
			logging.Duration("remaining", a.cooldownUntil.Sub(now)),
		)
		return false
	}

	a.pending = &Event{Source: source, Channel: channel, At: now}
	return true
}

// PollAdmittedEvent hands the pending event to the caller and starts cooldown.
func (a *Arbiter) PollAdmittedEvent(now time.Time) (Event, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending == nil {
		return Event{}, false
	}
	event := *a.pending
	a.pending = nil
	a.cooldownUntil = now.Add(a.cooldown)
	a.stats.Admitted++
	a.logger.Info("trigger admitted",
		logging.String(logging.FieldEventType, "trigger_admitted"),
		logging.String(logging.FieldSource, event.Source),
		logging.String(logging.FieldChannel, event.Channel),
	)
	return event, true
}

// State reports the arbiter state at now.
func (a *Arbiter) State(now time.Time) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.pending != nil:
		return StateArmed
	case now.Before(a.cooldownUntil):
		return StateCooldown
	default:
		return StateIdle
	}
}

// Stats returns a snapshot of the counters.
func (a *Arbiter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
