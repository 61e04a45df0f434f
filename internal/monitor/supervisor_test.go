package monitor

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventLog() *eventLog {
	return &eventLog{ch: make(chan Event, 64)}
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	select {
	case l.ch <- ev:
	default:
	}
}

func (l *eventLog) waitFor(t *testing.T, typ EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-l.ch:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func idleBinding(id string) Binding {
	b := testBinding()
	b.ID = id
	b.TriggerValue = 999
	return b
}

func TestStartAllRequiresAttach(t *testing.T) {
	s := NewSupervisor(constReader(0), newRecordingOverrider(), nil)
	if err := s.Add(idleBinding("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.StartAll(); !errors.Is(err, ErrNotAttached) {
		t.Errorf("StartAll error = %v, want ErrNotAttached", err)
	}
}

func TestStartAllReportsEveryFailure(t *testing.T) {
	s := NewSupervisor(constReader(0), newRecordingOverrider(), nil)

	for _, id := range []string{"a", "b-invalid", "c-invalid"} {
		b := idleBinding(id)
		b.Invalid = strings.HasSuffix(id, "-invalid")
		b.ParseError = "bad offset in " + id
		if err := s.Add(b); err != nil {
			t.Fatal(err)
		}
	}

	s.Attach(newFakeProcess())
	defer s.Detach()

	err := s.StartAll()
	if !errors.Is(err, ErrInvalidBinding) {
		t.Fatalf("StartAll error = %v, want ErrInvalidBinding", err)
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "2 binding(s) not started") {
		t.Errorf("error = %q", msg)
	}
	for _, id := range []string{"b-invalid", "c-invalid"} {
		if !strings.Contains(msg, id) {
			t.Errorf("error %q does not mention %s", msg, id)
		}
	}
}

func TestStartAllSkipsDisabledAndInvalid(t *testing.T) {
	events := newEventLog()
	s := NewSupervisor(constReader(0), newRecordingOverrider(), events.observe)

	disabled := idleBinding("b-disabled")
	disabled.Enabled = false
	invalid := idleBinding("c-invalid")
	invalid.Invalid = true
	invalid.ParseError = "bad offset"

	for _, b := range []Binding{idleBinding("a"), disabled, invalid} {
		if err := s.Add(b); err != nil {
			t.Fatal(err)
		}
	}

	s.Attach(newFakeProcess())
	defer s.Detach()

	err := s.StartAll()
	if !errors.Is(err, ErrInvalidBinding) {
		t.Errorf("StartAll error = %v, want ErrInvalidBinding", err)
	}

	states := s.States()
	if len(states) != 3 {
		t.Fatalf("states = %+v", states)
	}
	if !states[0].Running || states[1].Running || states[2].Running {
		t.Errorf("running = %v %v %v, want true false false",
			states[0].Running, states[1].Running, states[2].Running)
	}
}

func TestEditWhileRunningFails(t *testing.T) {
	s := NewSupervisor(constReader(0), newRecordingOverrider(), nil)
	if err := s.Add(idleBinding("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(idleBinding("a")); !errors.Is(err, ErrDuplicateBinding) {
		t.Errorf("duplicate Add error = %v", err)
	}

	s.Attach(newFakeProcess())
	if err := s.StartAll(); err != nil {
		t.Fatal(err)
	}

	if err := s.Remove("a"); !errors.Is(err, ErrMonitorRunning) {
		t.Errorf("Remove error = %v, want ErrMonitorRunning", err)
	}
	changed := idleBinding("a")
	changed.TriggerValue = 1
	if err := s.Update(changed); !errors.Is(err, ErrMonitorRunning) {
		t.Errorf("Update error = %v, want ErrMonitorRunning", err)
	}

	if err := s.StopBinding("a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(changed); err != nil {
		t.Errorf("Update after stop: %v", err)
	}
	if got := s.Bindings()[0].TriggerValue; got != 1 {
		t.Errorf("trigger value = %d, want 1", got)
	}
	if err := s.Remove("a"); err != nil {
		t.Errorf("Remove after stop: %v", err)
	}
	if err := s.Remove("a"); !errors.Is(err, ErrUnknownBinding) {
		t.Errorf("Remove unknown error = %v", err)
	}
	s.Detach()
}

func TestDetachStopsEverything(t *testing.T) {
	out := newRecordingOverrider()
	events := newEventLog()
	s := NewSupervisor(constReader(0), out, events.observe)
	s.Add(idleBinding("a"))
	s.Add(idleBinding("b"))

	p := newFakeProcess()
	s.Attach(p)
	if err := s.StartAll(); err != nil {
		t.Fatal(err)
	}
	if !s.AnyRunning() {
		t.Fatal("nothing running after StartAll")
	}

	s.Detach()

	if s.Attached() != nil {
		t.Error("process still attached")
	}
	for _, st := range s.States() {
		if st.Running {
			t.Errorf("%s still running", st.ID)
		}
	}
	if !p.closed {
		t.Error("process handle not closed")
	}
	calls, _ := out.snapshot()
	if len(calls) == 0 || calls[len(calls)-1] != "active false" {
		t.Errorf("channel not deactivated: %v", calls)
	}
	ev := events.waitFor(t, EventDetached)
	if ev.PID != p.pid {
		t.Errorf("detached pid = %d", ev.PID)
	}
}

func TestStopAllClearsProcess(t *testing.T) {
	s := NewSupervisor(constReader(0), newRecordingOverrider(), nil)
	s.Add(idleBinding("a"))
	s.Attach(newFakeProcess())
	s.StartAll()

	s.StopAll()

	if s.Attached() != nil {
		t.Error("StopAll left the process attached")
	}
	if s.AnyRunning() {
		t.Error("monitor running after StopAll")
	}
}

func TestProcessExitDetaches(t *testing.T) {
	events := newEventLog()
	s := NewSupervisor(constReader(0), newRecordingOverrider(), events.observe)
	s.WatchInterval = 10 * time.Millisecond
	s.Add(idleBinding("a"))

	p := newFakeProcess()
	s.Attach(p)
	if err := s.StartAll(); err != nil {
		t.Fatal(err)
	}

	p.kill()

	ev := events.waitFor(t, EventDetached)
	if ev.Reason != "process exited" {
		t.Errorf("reason = %q", ev.Reason)
	}
	if s.Attached() != nil || s.AnyRunning() {
		t.Error("supervisor did not release the exited process")
	}
}

func TestReactionEventsReachObserver(t *testing.T) {
	events := newEventLog()
	b := testBinding()
	b.BlockDuration = 5 * time.Millisecond
	s := NewSupervisor(constReader(42), newRecordingOverrider(), events.observe)
	s.Add(b)

	s.Attach(newFakeProcess())
	defer s.Detach()
	if err := s.StartAll(); err != nil {
		t.Fatal(err)
	}

	ev := events.waitFor(t, EventReaction)
	if ev.BindingID != "b1" || ev.Reaction == nil || ev.Reaction.Value != 42 {
		t.Errorf("reaction event = %+v", ev)
	}
}

func TestReplaceRestartsRunningBindings(t *testing.T) {
	s := NewSupervisor(constReader(0), newRecordingOverrider(), nil)
	s.Add(idleBinding("a"))
	s.Add(idleBinding("b"))
	s.Attach(newFakeProcess())
	defer s.Detach()
	if err := s.StartBinding("a"); err != nil {
		t.Fatal(err)
	}

	changed := idleBinding("a")
	changed.TriggerValue = 5
	if err := s.Replace([]Binding{changed, idleBinding("c")}); err != nil {
		t.Fatal(err)
	}

	states := s.States()
	if len(states) != 2 || states[0].ID != "a" || states[1].ID != "c" {
		t.Fatalf("states = %+v", states)
	}
	if !states[0].Running || states[1].Running {
		t.Errorf("running = %v %v, want true false", states[0].Running, states[1].Running)
	}
	if s.Bindings()[0].TriggerValue != 5 {
		t.Error("binding not replaced")
	}
}
