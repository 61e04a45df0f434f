package macro

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"memtrigger/internal/input"
)

// DefaultSampleInterval is the recorder's polling period.
const DefaultSampleInterval = 10 * time.Millisecond

// RecordOptions tunes Record.
type RecordOptions struct {
	// Interval between samples. Defaults to DefaultSampleInterval.
	Interval time.Duration
	// BlockedKeys are scan codes never recorded.
	BlockedKeys []int
	// BlockedButtons are gamepad button indices never recorded.
	BlockedButtons []int
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Record samples input until ctx is cancelled or the sampler returns
// io.EOF, emitting a Down step when an input becomes set and an Up step
// when it clears. Each step's DelayMs is the time until the next step, so
// that Play reproduces the recorded cadence. The last step has no delay.
func Record(ctx context.Context, sampler input.Sampler, opts RecordOptions) (Sequence, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultSampleInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	blockedKeys := make(map[int]bool, len(opts.BlockedKeys))
	for _, k := range opts.BlockedKeys {
		blockedKeys[k] = true
	}
	blockedButtons := make(map[int]bool, len(opts.BlockedButtons))
	for _, b := range opts.BlockedButtons {
		blockedButtons[b] = true
	}

	var (
		seq    Sequence
		prev   input.State
		cur    input.State
		lastAt time.Time
	)

	// Inputs held when recording starts are not recorded as presses.
	if err := sampler.Sample(&prev); err != nil {
		if errors.Is(err, io.EOF) {
			return seq, nil
		}
		return nil, err
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Macro: Recorded %d steps", len(seq))
			return seq, nil
		case <-ticker.C:
		}

		if err := sampler.Sample(&cur); err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("Macro: Recorded %d steps", len(seq))
				return seq, nil
			}
			return seq, err
		}

		now := opts.Now()
		for _, ev := range input.Diff(&prev, &cur) {
			step, ok := stepFor(ev, blockedKeys, blockedButtons)
			if !ok {
				continue
			}
			if len(seq) > 0 {
				seq[len(seq)-1].DelayMs = int(now.Sub(lastAt) / time.Millisecond)
			}
			seq = append(seq, step)
			lastAt = now
		}
		prev = cur
	}
}

func stepFor(ev input.Event, blockedKeys, blockedButtons map[int]bool) (Step, bool) {
	switch ev.Device {
	case input.Keyboard:
		if blockedKeys[ev.Code] {
			return Step{}, false
		}
		if ev.Pressed {
			return Step{Kind: KeyDown, Code: ev.Code}, true
		}
		return Step{Kind: KeyUp, Code: ev.Code}, true
	case input.Mouse:
		if ev.Pressed {
			return Step{Kind: MouseDown, Code: ev.Code}, true
		}
		return Step{Kind: MouseUp, Code: ev.Code}, true
	case input.Gamepad:
		if blockedButtons[ev.Code] {
			return Step{}, false
		}
		if ev.Pressed {
			return Step{Kind: ButtonDown, Code: ev.Code}, true
		}
		return Step{Kind: ButtonUp, Code: ev.Code}, true
	}
	return Step{}, false
}

// TrimTrailingPresses drops the Down steps at the end of q, which have no
// matching Up, and clears the delay of the new last step. The key that ends
// a console recording is usually captured this way.
func TrimTrailingPresses(q Sequence) Sequence {
	n := len(q)
	for n > 0 {
		switch q[n-1].Kind {
		case KeyDown, ButtonDown, MouseDown:
			n--
			continue
		}
		break
	}
	if n == len(q) {
		return q
	}
	out := append(Sequence(nil), q[:n]...)
	if n > 0 {
		out[n-1].DelayMs = 0
	}
	return out
}
