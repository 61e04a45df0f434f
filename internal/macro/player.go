package macro

import (
	"context"
	"time"
)

// Sink receives replayed input. *channel.Channel implements it.
type Sink interface {
	SetKey(code int, pressed bool)
	SetGamepadButton(index int, pressed bool)
	SetMouseButton(index int, pressed bool)
	SetAxis(index int, value int32)
}

// Play applies each step to sink in order and waits the step's delay after
// it. Cancelling ctx ends playback between steps or during a wait and
// returns ctx.Err(). Play neither activates nor deactivates the sink.
func Play(ctx context.Context, seq Sequence, sink Sink) error {
	for _, step := range seq {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch step.Kind {
		case KeyDown:
			sink.SetKey(step.Code, true)
		case KeyUp:
			sink.SetKey(step.Code, false)
		case ButtonDown:
			sink.SetGamepadButton(step.Code, true)
		case ButtonUp:
			sink.SetGamepadButton(step.Code, false)
		case MouseDown:
			sink.SetMouseButton(step.Code, true)
		case MouseUp:
			sink.SetMouseButton(step.Code, false)
		case AxisSet:
			sink.SetAxis(step.Code, step.Value)
		case Delay:
			// The wait below is the whole effect.
		}

		if err := wait(ctx, step.Delay()); err != nil {
			return err
		}
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
