package input

import "testing"

func TestDiffOrdersEdges(t *testing.T) {
	var prev, cur State
	prev.Keys[0x1E] = true
	cur.Keys[0x11] = true
	cur.MouseButtons[0] = true
	cur.GamepadButtons[PadA] = true

	events := Diff(&prev, &cur)
	want := []Event{
		{Device: Keyboard, Code: 0x11, Pressed: true},
		{Device: Keyboard, Code: 0x1E, Pressed: false},
		{Device: Mouse, Code: 0, Pressed: true},
		{Device: Gamepad, Code: PadA, Pressed: true},
	}

	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d: %v", len(want), len(events), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestDiffNoChange(t *testing.T) {
	var s State
	s.Keys[5] = true
	if events := Diff(&s, &s); len(events) != 0 {
		t.Errorf("Expected no events, got %v", events)
	}
}

func TestDeviceString(t *testing.T) {
	if Keyboard.String() != "key" || Mouse.String() != "mouse" || Gamepad.String() != "gamepad" {
		t.Error("unexpected device names")
	}
}
