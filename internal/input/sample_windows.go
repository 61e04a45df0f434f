//go:build windows

package input

import (
	"syscall"
	"unsafe"

	"memtrigger/internal/keys"
)

// Windows implementation of input sampling using GetAsyncKeyState and XInput.

var (
	user32           = syscall.NewLazyDLL("user32.dll")
	xinput           = syscall.NewLazyDLL("xinput1_4.dll")
	getAsyncKeyState = user32.NewProc("GetAsyncKeyState")
	xInputGetState   = xinput.NewProc("XInputGetState")
)

const triggerThreshold = 30

// mouseVKs maps VK_LBUTTON..VK_XBUTTON2 to mouse button indices.
var mouseVKs = [...]struct{ vk, button int }{
	{0x01, 0}, // VK_LBUTTON
	{0x02, 1}, // VK_RBUTTON
	{0x04, 2}, // VK_MBUTTON
	{0x05, 3}, // VK_XBUTTON1
	{0x06, 4}, // VK_XBUTTON2
}

// XInput wButtons bits, indexed like the Pad constants.
var padBits = map[int]uint16{
	PadUp:    0x0001,
	PadDown:  0x0002,
	PadLeft:  0x0004,
	PadRight: 0x0008,
	PadStart: 0x0010,
	PadBack:  0x0020,
	PadLS:    0x0040,
	PadRS:    0x0080,
	PadLB:    0x0100,
	PadRB:    0x0200,
	PadA:     0x1000,
	PadB:     0x2000,
	PadX:     0x4000,
	PadY:     0x8000,
}

type xinputGamepad struct {
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	ThumbLX      int16
	ThumbLY      int16
	ThumbRX      int16
	ThumbRY      int16
}

type xinputState struct {
	PacketNumber uint32
	Gamepad      xinputGamepad
}

// SystemSampler reads the desktop input state.
type SystemSampler struct {
	// Pad is the XInput user index (0-3).
	Pad int
}

// NewSystemSampler returns a sampler for the first gamepad.
func NewSystemSampler() (*SystemSampler, error) {
	if err := getAsyncKeyState.Find(); err != nil {
		return nil, ErrNoSampler
	}
	return &SystemSampler{}, nil
}

func (s *SystemSampler) Sample(st *State) error {
	*st = State{}

	for vk := 0x08; vk <= 0xFE; vk++ {
		if !keyDown(vk) {
			continue
		}
		if code, ok := keys.ScanCodeForVK(vk); ok {
			st.Keys[code] = true
		}
	}

	for _, m := range mouseVKs {
		st.MouseButtons[m.button] = keyDown(m.vk)
	}

	// A missing controller or DLL leaves the gamepad released.
	if xInputGetState.Find() == nil {
		var xs xinputState
		ret, _, _ := xInputGetState.Call(uintptr(s.Pad), uintptr(unsafe.Pointer(&xs)))
		if ret == 0 {
			for idx, bit := range padBits {
				st.GamepadButtons[idx] = xs.Gamepad.Buttons&bit != 0
			}
			st.GamepadButtons[PadLT] = xs.Gamepad.LeftTrigger > triggerThreshold
			st.GamepadButtons[PadRT] = xs.Gamepad.RightTrigger > triggerThreshold
		}
	}

	return nil
}

func keyDown(vk int) bool {
	ret, _, _ := getAsyncKeyState.Call(uintptr(vk))
	return int16(ret) < 0
}
