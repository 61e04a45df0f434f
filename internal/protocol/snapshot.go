package protocol

import (
	"encoding/binary"
	"errors"
)

// Array sizes of the shared input snapshot.
const (
	KeyboardSize     = 256
	MouseButtonCount = 8
	JoyButtonCount   = 128
	AxisCount        = 6
	SliderCount      = 2
	POVCount         = 4
	ExtendedCount    = 12
)

// Input byte states.
const (
	Released byte = 0x00
	Pressed  byte = 0x80
)

// POVCentered is the value of a hat switch at rest.
const POVCentered int32 = -1

// SnapshotSize is the packed size of a Snapshot on the wire.
//
// Layout (little-endian, no padding):
//
//	active          int32 (BOOL)           0
//	keyboard        [256]byte              4
//	mouse x,y,wheel 3 x int32            260
//	mouse buttons   [8]byte              272
//	rotation rx..rz 3 x int32            280
//	extended axes   12 x int32           292  (velocity/acceleration, never driven)
//	sliders         2 x int32            340
//	pov hats        4 x int32            348
//	joy buttons     [128]byte            364
//	                                     492
const SnapshotSize = 4 + KeyboardSize + 3*4 + MouseButtonCount + 3*4 + ExtendedCount*4 +
	SliderCount*4 + POVCount*4 + JoyButtonCount

const (
	offActive       = 0
	offKeyboard     = offActive + 4
	offMouse        = offKeyboard + KeyboardSize
	offMouseButtons = offMouse + 3*4
	offRotation     = offMouseButtons + MouseButtonCount
	offExtended     = offRotation + 3*4
	offSliders      = offExtended + ExtendedCount*4
	offPOV          = offSliders + SliderCount*4
	offJoyButtons   = offPOV + POVCount*4
)

// Snapshot is the virtual input device state shared with the hook
// component. Axes 0-2 (x, y, z) share storage with the mouse delta fields,
// axes 3-5 are the rotation fields.
type Snapshot struct {
	Active       bool
	Keyboard     [KeyboardSize]byte
	Mouse        [3]int32
	MouseButtons [MouseButtonCount]byte
	Rotation     [3]int32
	Extended     [ExtendedCount]int32
	Sliders      [SliderCount]int32
	POV          [POVCount]int32
	JoyButtons   [JoyButtonCount]byte
}

// NewSnapshot returns an inactive snapshot with every hat centered.
func NewSnapshot() Snapshot {
	var s Snapshot
	s.Reset()
	return s
}

// Reset releases every input, zeroes every axis, centers the hats and
// clears the active flag.
func (s *Snapshot) Reset() {
	*s = Snapshot{}
	for i := range s.POV {
		s.POV[i] = POVCentered
	}
}

// Axis returns the value of axis 0-5.
func (s *Snapshot) Axis(index int) int32 {
	switch {
	case index >= 0 && index < 3:
		return s.Mouse[index]
	case index >= 3 && index < AxisCount:
		return s.Rotation[index-3]
	}
	return 0
}

// SetAxis sets axis 0-5 and reports whether the index was valid.
func (s *Snapshot) SetAxis(index int, value int32) bool {
	switch {
	case index >= 0 && index < 3:
		s.Mouse[index] = value
	case index >= 3 && index < AxisCount:
		s.Rotation[index-3] = value
	default:
		return false
	}
	return true
}

// EncodeSnapshot serializes a Snapshot into buf, which must hold at least
// SnapshotSize bytes.
func EncodeSnapshot(s *Snapshot, buf []byte) error {
	if len(buf) < SnapshotSize {
		return errors.New("snapshot: buffer too short")
	}
	le := binary.LittleEndian

	var active uint32
	if s.Active {
		active = 1
	}
	le.PutUint32(buf[offActive:], active)
	copy(buf[offKeyboard:offKeyboard+KeyboardSize], s.Keyboard[:])
	putInt32s(buf[offMouse:], s.Mouse[:])
	copy(buf[offMouseButtons:offMouseButtons+MouseButtonCount], s.MouseButtons[:])
	putInt32s(buf[offRotation:], s.Rotation[:])
	putInt32s(buf[offExtended:], s.Extended[:])
	putInt32s(buf[offSliders:], s.Sliders[:])
	putInt32s(buf[offPOV:], s.POV[:])
	copy(buf[offJoyButtons:offJoyButtons+JoyButtonCount], s.JoyButtons[:])
	return nil
}

// DecodeSnapshot deserializes wire bytes into a Snapshot.
func DecodeSnapshot(buf []byte) (Snapshot, error) {
	var s Snapshot
	if len(buf) < SnapshotSize {
		return s, errors.New("snapshot: buffer too short")
	}

	s.Active = binary.LittleEndian.Uint32(buf[offActive:]) != 0
	copy(s.Keyboard[:], buf[offKeyboard:])
	getInt32s(buf[offMouse:], s.Mouse[:])
	copy(s.MouseButtons[:], buf[offMouseButtons:])
	getInt32s(buf[offRotation:], s.Rotation[:])
	getInt32s(buf[offExtended:], s.Extended[:])
	getInt32s(buf[offSliders:], s.Sliders[:])
	getInt32s(buf[offPOV:], s.POV[:])
	copy(s.JoyButtons[:], buf[offJoyButtons:offJoyButtons+JoyButtonCount])
	return s, nil
}

func putInt32s(buf []byte, vals []int32) {
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
}

func getInt32s(buf []byte, vals []int32) {
	for i := range vals {
		vals[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
}
