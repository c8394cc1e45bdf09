package trigger_test

import (
	"sync"
	"testing"
	"time"

	"watchpost/internal/trigger"
)

var epoch = time.Unix(1700000000, 0)

func newArbiter() *trigger.Arbiter {
	return trigger.NewArbiter(trigger.Options{
		Name:     "camera",
		Debounce: 100 * time.Millisecond,
		Cooldown: 5 * time.Second,
	})
}

func TestArbiterAdmitsFirstTriggerAndEntersCooldown(t *testing.T) {
	a := newArbiter()
	if a.State(epoch) != trigger.StateIdle {
		t.Fatalf("expected idle, got %s", a.State(epoch))
	}
	if !a.OnRawTrigger(trigger.SourceLocal, "gpio", epoch) {
		t.Fatal("expected first trigger to arm")
	}
	if a.State(epoch) != trigger.StateArmed {
		t.Fatalf("expected armed, got %s", a.State(epoch))
	}

	event, ok := a.PollAdmittedEvent(epoch)
	if !ok || event.Source != trigger.SourceLocal || event.Channel != "gpio" || !event.At.Equal(epoch) {
		t.Fatalf("unexpected admitted event %+v ok=%v", event, ok)
	}
	if _, ok := a.PollAdmittedEvent(epoch); ok {
		t.Fatal("expected event to be consumed once")
	}
	if a.State(epoch.Add(4*time.Second)) != trigger.StateCooldown {
		t.Fatal("expected cooldown before expiry")
	}
	if a.State(epoch.Add(5*time.Second)) != trigger.StateIdle {
		t.Fatal("expected idle once cooldown expires")
	}
}

func TestArbiterDropsTriggersDuringCooldown(t *testing.T) {
	a := newArbiter()
	a.OnRawTrigger(trigger.SourceLocal, "gpio", epoch)
	a.PollAdmittedEvent(epoch)

	if a.OnRawTrigger(trigger.SourceRemote, "api", epoch.Add(2*time.Second)) {
		t.Fatal("expected remote trigger dropped in cooldown")
	}
	if _, ok := a.PollAdmittedEvent(epoch.Add(6 * time.Second)); ok {
		t.Fatal("expected dropped trigger not to be queued")
	}
	if !a.OnRawTrigger(trigger.SourceRemote, "api", epoch.Add(6*time.Second)) {
		t.Fatal("expected trigger after cooldown to arm")
	}
	stats := a.Stats()
	if stats.DroppedCooldown != 1 || stats.Admitted != 1 || stats.Raw != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestArbiterFirstSourceWinsWhileArmed(t *testing.T) {
	a := newArbiter()
	a.OnRawTrigger(trigger.SourceRemote, "api", epoch)
	if a.OnRawTrigger(trigger.SourceLocal, "gpio", epoch.Add(10*time.Millisecond)) {
		t.Fatal("expected second source dropped while armed")
	}
	event, ok := a.PollAdmittedEvent(epoch.Add(20 * time.Millisecond))
	if !ok || event.Source != trigger.SourceRemote {
		t.Fatalf("expected remote to win, got %+v", event)
	}
	if got := a.Stats().DroppedArmed; got != 1 {
		t.Fatalf("expected one armed drop, got %d", got)
	}
}

func TestArbiterDebouncesPerChannel(t *testing.T) {
	a := trigger.NewArbiter(trigger.Options{Debounce: 100 * time.Millisecond})
	a.OnRawTrigger(trigger.SourceLocal, "gpio", epoch)
	a.PollAdmittedEvent(epoch)

	if a.OnRawTrigger(trigger.SourceLocal, "gpio", epoch.Add(50*time.Millisecond)) {
		t.Fatal("expected bounce within window to be ignored")
	}
	if !a.OnRawTrigger(trigger.SourceRemote, "api", epoch.Add(60*time.Millisecond)) {
		t.Fatal("expected other channel to be unaffected by debounce")
	}
	a.PollAdmittedEvent(epoch.Add(60 * time.Millisecond))
	if !a.OnRawTrigger(trigger.SourceLocal, "gpio", epoch.Add(150*time.Millisecond)) {
		t.Fatal("expected trigger after debounce window to arm with zero cooldown")
	}
	if got := a.Stats().Debounced; got != 1 {
		t.Fatalf("expected one debounced trigger, got %d", got)
	}
}

func TestArbiterConcurrentProducersAdmitOne(t *testing.T) {
	a := newArbiter()
	var wg sync.WaitGroup
	armed := make(chan bool, 32)
	for i := range 32 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			channel := "api"
			if i%2 == 0 {
				channel = "gpio"
			}
			armed <- a.OnRawTrigger(trigger.SourceRemote, channel, epoch)
		}(i)
	}
	wg.Wait()
	close(armed)

	wins := 0
	for ok := range armed {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one producer to arm, got %d", wins)
	}
	if _, ok := a.PollAdmittedEvent(epoch); !ok {
		t.Fatal("expected one admitted event")
	}
}
