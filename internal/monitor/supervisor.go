package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"memtrigger/internal/memory"
)

// DefaultWatchInterval is how often the attached process is checked for exit.
const DefaultWatchInterval = 500 * time.Millisecond

// EventType classifies supervisor events.
type EventType string

const (
	EventAttached EventType = "attached"
	EventDetached EventType = "detached"
	EventStarted  EventType = "started"
	EventStopped  EventType = "stopped"
	EventReaction EventType = "reaction"
)

// Event is delivered to the Observer.
type Event struct {
	Type      EventType `json:"type"`
	Time      time.Time `json:"time"`
	PID       int       `json:"pid,omitempty"`
	BindingID string    `json:"bindingId,omitempty"`
	Reaction  *Reaction `json:"reaction,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Observer receives supervisor events. It is called from monitor goroutines
// and must not block.
type Observer func(ev Event)

// Supervisor owns every monitor and the attached process they share.
type Supervisor struct {
	reader   Reader
	resolver *memory.Resolver
	out      Overrider
	observer Observer

	// WatchInterval overrides DefaultWatchInterval when set before Attach.
	WatchInterval time.Duration

	mu       sync.Mutex
	monitors map[string]*Monitor
	proc     memory.Process

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// NewSupervisor creates a supervisor with no bindings. resolver may be nil
// when reader is not a *memory.Resolver.
func NewSupervisor(reader Reader, out Overrider, observer Observer) *Supervisor {
	s := &Supervisor{
		reader:   reader,
		out:      out,
		observer: observer,
		monitors: make(map[string]*Monitor),
	}
	if r, ok := reader.(*memory.Resolver); ok {
		s.resolver = r
	}
	return s
}

// Attach stores p as the target of every monitor, replacing and detaching
// any previously attached process. Monitors are not started.
func (s *Supervisor) Attach(p memory.Process) {
	if s.Attached() != nil {
		s.Detach()
	}

	interval := s.WatchInterval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.proc = p
	s.watchCancel = cancel
	s.watchDone = done
	s.mu.Unlock()

	go s.watch(ctx, p, interval, done)

	log.Printf("Supervisor: Attached to pid %d", p.PID())
	s.emit(Event{Type: EventAttached, PID: p.PID()})
}

// Attached returns the attached process or nil.
func (s *Supervisor) Attached() memory.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// Detach stops every monitor and releases the process.
func (s *Supervisor) Detach() {
	s.release("detached")
}

// StopAll stops every monitor and clears the process reference. It is
// equivalent to Detach.
func (s *Supervisor) StopAll() {
	s.release("stopped")
}

// StartAll starts every enabled, valid monitor against the attached process.
// Invalid bindings are skipped; the returned error joins every failure.
func (s *Supervisor) StartAll() error {
	s.mu.Lock()
	p := s.proc
	monitors := s.sortedLocked()
	s.mu.Unlock()

	if p == nil {
		return ErrNotAttached
	}

	var (
		g      errgroup.Group
		errMu  sync.Mutex
		failed []error
	)
	for _, m := range monitors {
		g.Go(func() error {
			if err := m.Start(p); err != nil {
				errMu.Lock()
				failed = append(failed, err)
				errMu.Unlock()
				return nil
			}
			if m.Running() {
				s.emit(Event{Type: EventStarted, PID: p.PID(), BindingID: m.binding.ID})
			}
			return nil
		})
	}
	g.Wait()

	if len(failed) > 0 {
		return fmt.Errorf("%d binding(s) not started: %w", len(failed), errors.Join(failed...))
	}
	return nil
}

// StartBinding starts one monitor.
func (s *Supervisor) StartBinding(id string) error {
	s.mu.Lock()
	p := s.proc
	m, ok := s.monitors[id]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBinding, id)
	}
	if p == nil {
		return ErrNotAttached
	}
	if err := m.Start(p); err != nil {
		return err
	}
	if m.Running() {
		s.emit(Event{Type: EventStarted, PID: p.PID(), BindingID: id})
	}
	return nil
}

// StopBinding stops one monitor. The process stays attached.
func (s *Supervisor) StopBinding(id string) error {
	s.mu.Lock()
	m, ok := s.monitors[id]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBinding, id)
	}
	if m.Running() {
		m.Stop()
		s.emit(Event{Type: EventStopped, BindingID: id})
	}
	return nil
}

// Add creates a stopped monitor for b.
func (s *Supervisor) Add(b Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[b.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBinding, b.ID)
	}
	s.monitors[b.ID] = s.newMonitor(b)
	return nil
}

// Remove deletes a stopped monitor.
func (s *Supervisor) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBinding, id)
	}
	if m.Running() {
		return fmt.Errorf("%w: %s", ErrMonitorRunning, id)
	}
	delete(s.monitors, id)
	return nil
}

// Update replaces the binding of a stopped monitor.
func (s *Supervisor) Update(b Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[b.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBinding, b.ID)
	}
	if m.Running() {
		return fmt.Errorf("%w: %s", ErrMonitorRunning, b.ID)
	}
	s.monitors[b.ID] = s.newMonitor(b)
	return nil
}

// Replace swaps the whole binding set. Running monitors are stopped first
// and bindings that were running and are still enabled are restarted.
func (s *Supervisor) Replace(bindings []Binding) error {
	s.mu.Lock()
	old := s.sortedLocked()
	s.mu.Unlock()

	wasRunning := make(map[string]bool)
	var g errgroup.Group
	for _, m := range old {
		if m.Running() {
			wasRunning[m.binding.ID] = true
			g.Go(func() error {
				m.Stop()
				return nil
			})
		}
	}
	g.Wait()

	s.mu.Lock()
	s.monitors = make(map[string]*Monitor, len(bindings))
	for _, b := range bindings {
		s.monitors[b.ID] = s.newMonitor(b)
	}
	p := s.proc
	s.mu.Unlock()

	if p == nil || len(wasRunning) == 0 {
		return nil
	}
	for id := range wasRunning {
		if err := s.StartBinding(id); err != nil && !errors.Is(err, ErrUnknownBinding) {
			log.Printf("Supervisor: Failed to restart %s: %v", id, err)
		}
	}
	return nil
}

// Bindings returns every binding ordered by ID.
func (s *Supervisor) Bindings() []Binding {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Binding, 0, len(s.monitors))
	for _, m := range s.sortedLocked() {
		out = append(out, m.Binding())
	}
	return out
}

// States returns every monitor's runtime state ordered by ID.
func (s *Supervisor) States() []State {
	s.mu.Lock()
	monitors := s.sortedLocked()
	s.mu.Unlock()

	out := make([]State, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, m.State())
	}
	return out
}

// AnyRunning reports whether at least one monitor is polling.
func (s *Supervisor) AnyRunning() bool {
	for _, st := range s.States() {
		if st.Running {
			return true
		}
	}
	return false
}

func (s *Supervisor) newMonitor(b Binding) *Monitor {
	return New(b, s.reader, s.out, Hooks{
		OnReaction: func(r Reaction) {
			s.emit(Event{Type: EventReaction, BindingID: r.BindingID, Reaction: &r})
		},
		OnProcessGone: func(p memory.Process, err error) {
			go s.releaseIf(p, "process exited")
		},
	})
}

func (s *Supervisor) sortedLocked() []*Monitor {
	ids := make([]string, 0, len(s.monitors))
	for id := range s.monitors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Monitor, len(ids))
	for i, id := range ids {
		out[i] = s.monitors[id]
	}
	return out
}

// watch detaches when the process exits.
func (s *Supervisor) watch(ctx context.Context, p memory.Process, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.Alive() {
				log.Printf("Supervisor: pid %d exited", p.PID())
				go s.releaseIf(p, "process exited")
				return
			}
		}
	}
}

// releaseIf detaches only if p is still the attached process.
func (s *Supervisor) releaseIf(p memory.Process, reason string) {
	s.mu.Lock()
	current := s.proc
	s.mu.Unlock()
	if current == p {
		s.release(reason)
	}
}

func (s *Supervisor) release(reason string) {
	s.mu.Lock()
	p := s.proc
	monitors := s.sortedLocked()
	cancel, done := s.watchCancel, s.watchDone
	s.proc = nil
	s.watchCancel, s.watchDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	var g errgroup.Group
	for _, m := range monitors {
		g.Go(func() error {
			m.Stop()
			return nil
		})
	}
	g.Wait()

	// Nothing may stay pressed once overriding stops.
	s.out.SetActive(false)

	if p == nil {
		return
	}
	if s.resolver != nil {
		s.resolver.Forget(p.PID())
	}
	if err := p.Close(); err != nil {
		log.Printf("Supervisor: Failed to close pid %d: %v", p.PID(), err)
	}
	log.Printf("Supervisor: Released pid %d (%s)", p.PID(), reason)
	s.emit(Event{Type: EventDetached, PID: p.PID(), Reason: reason})
}

func (s *Supervisor) emit(ev Event) {
	if s.observer == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.observer(ev)
}
