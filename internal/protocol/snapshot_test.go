package protocol

import (
	"encoding/binary"
	"testing"
)

func TestSnapshotSize(t *testing.T) {
	if SnapshotSize != 492 {
		t.Fatalf("SnapshotSize = %d, want 492", SnapshotSize)
	}
}

// TestEncodeSnapshotLayout pins the byte offsets the hook component reads.
func TestEncodeSnapshotLayout(t *testing.T) {
	s := NewSnapshot()
	s.Active = true
	s.Keyboard[65] = Pressed
	s.Mouse[2] = 120
	s.MouseButtons[1] = Pressed
	s.SetAxis(4, -5)
	s.Sliders[1] = 7
	s.POV[2] = 9000
	s.JoyButtons[127] = Pressed

	buf := make([]byte, SnapshotSize)
	if err := EncodeSnapshot(&s, buf); err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}

	le := binary.LittleEndian
	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"active", int64(le.Uint32(buf[0:])), 1},
		{"keyboard[65]", int64(buf[4+65]), 0x80},
		{"mouse wheel", int64(int32(le.Uint32(buf[268:]))), 120},
		{"mouse button 1", int64(buf[273]), 0x80},
		{"rotation y", int64(int32(le.Uint32(buf[284:]))), -5},
		{"slider 1", int64(int32(le.Uint32(buf[344:]))), 7},
		{"pov 0", int64(int32(le.Uint32(buf[348:]))), -1},
		{"pov 2", int64(int32(le.Uint32(buf[356:]))), 9000},
		{"joy button 127", int64(buf[491]), 0x80},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}

	decoded, err := DecodeSnapshot(buf)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if decoded != s {
		t.Error("decoded snapshot differs from encoded one")
	}
}

func TestSnapshotReset(t *testing.T) {
	s := NewSnapshot()
	s.Active = true
	s.Keyboard[10] = Pressed
	s.JoyButtons[3] = Pressed
	s.SetAxis(0, 100)
	s.POV[1] = 18000

	s.Reset()

	if s.Active {
		t.Error("Reset left snapshot active")
	}
	for i, b := range s.Keyboard {
		if b != Released {
			t.Fatalf("keyboard[%d] = 0x%X after reset", i, b)
		}
	}
	for i, p := range s.POV {
		if p != POVCentered {
			t.Errorf("pov[%d] = %d, want centered", i, p)
		}
	}
	if s.Axis(0) != 0 || s.JoyButtons[3] != Released {
		t.Error("Reset did not clear axes and buttons")
	}
}

func TestSetAxisBounds(t *testing.T) {
	s := NewSnapshot()
	if s.SetAxis(6, 1) || s.SetAxis(-1, 1) {
		t.Error("SetAxis accepted an out-of-range index")
	}
	if !s.SetAxis(5, 42) || s.Rotation[2] != 42 {
		t.Error("SetAxis(5) did not set rz")
	}
}

func TestEncodeSnapshotShortBuffer(t *testing.T) {
	s := NewSnapshot()
	if err := EncodeSnapshot(&s, make([]byte, 10)); err == nil {
		t.Error("expected error for short buffer")
	}
	if _, err := DecodeSnapshot(make([]byte, 10)); err == nil {
		t.Error("expected error for short buffer")
	}
}
