package monitor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"memtrigger/internal/macro"
	"memtrigger/internal/memory"
)

// StopTimeout bounds how long Stop waits for the poll loop to exit.
const StopTimeout = 100 * time.Millisecond

// Verbose enables a log line per poll cycle. Set it before starting monitors.
var Verbose bool

// Overrider is the part of the input channel a reaction drives.
type Overrider interface {
	macro.Sink
	SetActive(active bool)
}

// Reader resolves a chain and reads its value. *memory.Resolver implements it.
type Reader interface {
	ReadValue(p memory.Process, chain memory.ChainSpec) (int32, memory.Address, error)
}

// Reaction describes one completed reaction.
type Reaction struct {
	BindingID string         `json:"bindingId"`
	Value     int32          `json:"value"`
	Address   memory.Address `json:"address"`
	StartedAt time.Time      `json:"startedAt"`
	Duration  time.Duration  `json:"duration"`
	Aborted   bool           `json:"aborted"`
}

// Hooks are optional callbacks invoked from the poll goroutine. They must
// not block.
type Hooks struct {
	OnReaction    func(r Reaction)
	OnProcessGone func(p memory.Process, err error)
}

// State is the runtime view of a monitor.
type State struct {
	ID             string         `json:"id"`
	Running        bool           `json:"running"`
	HasValue       bool           `json:"hasValue"`
	LastAddress    memory.Address `json:"lastAddress"`
	LastValue      int32          `json:"lastValue"`
	LastError      string         `json:"lastError,omitempty"`
	LastReadAt     time.Time      `json:"lastReadAt"`
	Reactions      int            `json:"reactions"`
	LastReactionAt time.Time      `json:"lastReactionAt"`
}

// Monitor polls one binding against one process.
type Monitor struct {
	binding Binding
	reader  Reader
	out     Overrider
	hooks   Hooks

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped monitor for b.
func New(b Binding, reader Reader, out Overrider, hooks Hooks) *Monitor {
	b = b.clone()
	return &Monitor{
		binding: b,
		reader:  reader,
		out:     out,
		hooks:   hooks,
		state:   State{ID: b.ID},
	}
}

// Binding returns a copy of the monitor's binding.
func (m *Monitor) Binding() Binding {
	return m.binding.clone()
}

// State returns a snapshot of the runtime state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Running reports whether the poll loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Running
}

// Start begins polling p. It is a no-op when already running or when the
// binding is disabled. An invalid binding returns an error.
func (m *Monitor) Start(p memory.Process) error {
	if err := m.binding.Validate(); err != nil {
		return err
	}
	if !m.binding.Enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Running {
		return nil
	}
	if m.cancel != nil {
		// Left over from a loop that exited on its own.
		m.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.state = State{ID: m.binding.ID, Running: true, Reactions: m.state.Reactions, LastReactionAt: m.state.LastReactionAt}

	go m.run(ctx, p, done)
	log.Printf("Monitor[%s]: Started (pid %d, %s)", m.binding.label(), p.PID(), m.binding.Chain)
	return nil
}

// Stop signals the loop to exit and waits up to StopTimeout for it. The
// monitor is stopped when Stop returns even if the loop is still finishing
// a reaction; no new poll cycle begins after that point.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(StopTimeout):
		log.Printf("Monitor[%s]: Loop did not exit within %v", m.binding.label(), StopTimeout)
	}

	m.mu.Lock()
	m.state.Running = false
	m.state.HasValue = false
	m.mu.Unlock()
	log.Printf("Monitor[%s]: Stopped", m.binding.label())
}

func (m *Monitor) run(ctx context.Context, p memory.Process, done chan struct{}) {
	defer close(done)

	b := &m.binding
	var lastErr string

	for {
		if ctx.Err() != nil {
			return
		}

		value, addr, err := m.reader.ReadValue(p, b.Chain)
		now := time.Now()

		if err != nil {
			if msg := err.Error(); msg != lastErr {
				log.Printf("Monitor[%s]: Value unavailable: %v", b.label(), err)
				lastErr = msg
			}
			m.mu.Lock()
			m.state.HasValue = false
			m.state.LastError = err.Error()
			m.mu.Unlock()

			if errors.Is(err, memory.ErrProcessGone) {
				log.Printf("Monitor[%s]: Target process exited, stopping", b.label())
				m.mu.Lock()
				m.state.Running = false
				m.mu.Unlock()
				if m.hooks.OnProcessGone != nil {
					m.hooks.OnProcessGone(p, err)
				}
				return
			}
		} else {
			if lastErr != "" {
				log.Printf("Monitor[%s]: Value available again at %s", b.label(), addr)
				lastErr = ""
			}
			m.mu.Lock()
			m.state.HasValue = true
			m.state.LastAddress = addr
			m.state.LastValue = value
			m.state.LastReadAt = now
			m.state.LastError = ""
			m.mu.Unlock()

			if Verbose {
				log.Printf("Monitor[%s]: %s = %d", b.label(), addr, value)
			}
			if value == b.TriggerValue {
				m.react(ctx, value, addr)
			}
		}

		if !sleep(ctx, b.PollInterval) {
			return
		}
	}
}

// react runs the reaction to completion unless ctx is cancelled, in which
// case the current wait is cut short. The channel is always deactivated
// after it was activated.
func (m *Monitor) react(ctx context.Context, value int32, addr memory.Address) {
	b := &m.binding
	r := Reaction{BindingID: b.ID, Value: value, Address: addr, StartedAt: time.Now()}

	log.Printf("Monitor[%s]: Trigger value %d at %s", b.label(), value, addr)

	if !sleep(ctx, b.ReactionDelay) {
		return
	}

	if b.blocks() {
		m.out.SetActive(true)
		for _, k := range b.KeysToBlock {
			m.out.SetKey(k, false)
		}
		for _, btn := range b.ButtonsToBlock {
			m.out.SetGamepadButton(btn, false)
		}
		if !sleep(ctx, b.BlockDuration) {
			r.Aborted = true
		}
		m.out.SetActive(false)
	}

	if b.playsMacro() && !r.Aborted {
		m.out.SetActive(true)
		if err := macro.Play(ctx, b.Macro, m.out); err != nil {
			r.Aborted = true
		}
		m.out.SetActive(false)
	}

	r.Duration = time.Since(r.StartedAt)

	m.mu.Lock()
	m.state.Reactions++
	m.state.LastReactionAt = r.StartedAt
	m.mu.Unlock()

	if m.hooks.OnReaction != nil {
		m.hooks.OnReaction(r)
	}
}

// sleep waits d and reports false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
