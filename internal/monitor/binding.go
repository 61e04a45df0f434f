// Package monitor polls pointer chains in an attached process and reacts to
// trigger values through the input override channel.
package monitor

import (
	"errors"
	"fmt"
	"time"

	"memtrigger/internal/macro"
	"memtrigger/internal/memory"
)

// Defaults for new bindings.
const (
	DefaultPollInterval  = 10 * time.Millisecond
	DefaultBlockDuration = 260 * time.Millisecond
	DefaultReactionDelay = 280 * time.Millisecond
)

var (
	// ErrMonitorRunning is returned when a binding is edited while its monitor runs
	ErrMonitorRunning = errors.New("monitor is running")

	// ErrNotAttached is returned when monitors are started without a process
	ErrNotAttached = errors.New("no process attached")

	// ErrUnknownBinding is returned for an ID that has no monitor
	ErrUnknownBinding = errors.New("unknown binding")

	// ErrDuplicateBinding is returned when adding an ID that already exists
	ErrDuplicateBinding = errors.New("binding already exists")

	// ErrInvalidBinding is returned when starting a binding that failed to parse
	ErrInvalidBinding = errors.New("binding is invalid")
)

// Binding is one trigger configuration. It is immutable while its monitor
// runs; edits go through Supervisor.Update on a stopped monitor.
type Binding struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	Chain        memory.ChainSpec `json:"chain"`
	TriggerValue int32            `json:"triggerValue"`

	PollInterval  time.Duration `json:"pollInterval"`
	ReactionDelay time.Duration `json:"reactionDelay"`
	BlockDuration time.Duration `json:"blockDuration"`

	// KeysToBlock are scan codes held released during a reaction.
	KeysToBlock []int `json:"keysToBlock,omitempty"`
	// ButtonsToBlock are gamepad buttons held released during a reaction.
	ButtonsToBlock []int `json:"buttonsToBlock,omitempty"`

	MacroEnabled bool           `json:"macroEnabled"`
	Macro        macro.Sequence `json:"macro,omitempty"`

	Enabled bool `json:"enabled"`

	// Invalid is set when the configuration could not be parsed. An invalid
	// binding never starts.
	Invalid    bool   `json:"invalid,omitempty"`
	ParseError string `json:"parseError,omitempty"`
}

// Validate checks the fields a monitor depends on.
func (b *Binding) Validate() error {
	if b.Invalid {
		return fmt.Errorf("%w: %s", ErrInvalidBinding, b.ParseError)
	}
	if b.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidBinding)
	}
	if b.Chain.ModuleName == "" {
		return fmt.Errorf("%w: %s: empty module name", ErrInvalidBinding, b.ID)
	}
	if b.PollInterval <= 0 {
		return fmt.Errorf("%w: %s: poll interval must be positive", ErrInvalidBinding, b.ID)
	}
	if b.ReactionDelay < 0 || b.BlockDuration < 0 {
		return fmt.Errorf("%w: %s: negative duration", ErrInvalidBinding, b.ID)
	}
	return nil
}

// blocks reports whether the reaction holds any input released.
func (b *Binding) blocks() bool {
	return len(b.KeysToBlock) > 0 || len(b.ButtonsToBlock) > 0
}

func (b *Binding) playsMacro() bool {
	return b.MacroEnabled && len(b.Macro) > 0
}

func (b Binding) clone() Binding {
	b.Chain.Offsets = append([]int64(nil), b.Chain.Offsets...)
	b.KeysToBlock = append([]int(nil), b.KeysToBlock...)
	b.ButtonsToBlock = append([]int(nil), b.ButtonsToBlock...)
	b.Macro = append(macro.Sequence(nil), b.Macro...)
	return b
}

func (b *Binding) label() string {
	if b.Name != "" {
		return b.Name
	}
	return b.ID
}
