// Package input samples the physical keyboard, mouse and gamepad state for
// macro recording.
package input

import "errors"

// ErrNoSampler is returned when input sampling is not available on this platform
var ErrNoSampler = errors.New("input sampling not supported on this platform")

// Device identifies which input array an Event belongs to.
type Device int

const (
	Keyboard Device = iota
	Mouse
	Gamepad
)

func (d Device) String() string {
	switch d {
	case Keyboard:
		return "key"
	case Mouse:
		return "mouse"
	case Gamepad:
		return "gamepad"
	}
	return "unknown"
}

// State is a point-in-time view of every digital input. Keyboard entries
// are indexed by DirectInput scan code.
type State struct {
	Keys           [256]bool
	MouseButtons   [8]bool
	GamepadButtons [128]bool
}

// Event is a single edge between two States.
type Event struct {
	Device  Device
	Code    int
	Pressed bool
}

// Diff returns the edges that turn prev into cur, keyboard first, then
// mouse, then gamepad, each in ascending code order.
func Diff(prev, cur *State) []Event {
	var events []Event
	for i := range cur.Keys {
		if cur.Keys[i] != prev.Keys[i] {
			events = append(events, Event{Device: Keyboard, Code: i, Pressed: cur.Keys[i]})
		}
	}
	for i := range cur.MouseButtons {
		if cur.MouseButtons[i] != prev.MouseButtons[i] {
			events = append(events, Event{Device: Mouse, Code: i, Pressed: cur.MouseButtons[i]})
		}
	}
	for i := range cur.GamepadButtons {
		if cur.GamepadButtons[i] != prev.GamepadButtons[i] {
			events = append(events, Event{Device: Gamepad, Code: i, Pressed: cur.GamepadButtons[i]})
		}
	}
	return events
}

// Sampler reads the current input state into s.
type Sampler interface {
	Sample(s *State) error
}

// Gamepad button indices, in XInput report order.
const (
	PadA = iota
	PadB
	PadX
	PadY
	PadLB
	PadRB
	PadLT
	PadRT
	PadUp
	PadDown
	PadLeft
	PadRight
	PadStart
	PadBack
	PadLS
	PadRS
)
