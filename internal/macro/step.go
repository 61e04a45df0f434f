// Package macro records, persists and replays timed input sequences.
package macro

import (
	"fmt"
	"time"
)

// Kind is the action a Step performs. The ordinals are the persisted
// representation and must not be renumbered.
type Kind int

const (
	KeyDown Kind = iota
	KeyUp
	ButtonDown
	ButtonUp
	AxisSet
	Delay
	MouseDown
	MouseUp
)

var kindNames = [...]string{
	KeyDown:    "KeyDown",
	KeyUp:      "KeyUp",
	ButtonDown: "ButtonDown",
	ButtonUp:   "ButtonUp",
	AxisSet:    "AxisSet",
	Delay:      "Delay",
	MouseDown:  "MouseDown",
	MouseUp:    "MouseUp",
}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= KeyDown && k <= MouseUp
}

// Step is one macro action. Code is a scan code for key steps, a button
// index for gamepad and mouse steps, and an axis index for AxisSet. DelayMs
// is waited after the step's effect is applied.
type Step struct {
	Kind    Kind  `json:"kind" yaml:"kind"`
	Code    int   `json:"code" yaml:"code"`
	Value   int32 `json:"value" yaml:"value"`
	DelayMs int   `json:"delayMs" yaml:"delayMs"`
}

// Delay returns the post-step wait.
func (s Step) Delay() time.Duration {
	if s.DelayMs <= 0 {
		return 0
	}
	return time.Duration(s.DelayMs) * time.Millisecond
}

func (s Step) String() string {
	switch s.Kind {
	case Delay:
		return fmt.Sprintf("Delay %dms", s.DelayMs)
	case AxisSet:
		return fmt.Sprintf("AxisSet %d=%d (+%dms)", s.Code, s.Value, s.DelayMs)
	}
	return fmt.Sprintf("%s %d (+%dms)", s.Kind, s.Code, s.DelayMs)
}

// Sequence is an ordered list of steps. Playing a sequence never mutates it.
type Sequence []Step

// Duration is the sum of all step delays.
func (q Sequence) Duration() time.Duration {
	var d time.Duration
	for _, s := range q {
		d += s.Delay()
	}
	return d
}
