// Package hotkey provides global system-wide hotkeys built on the OS hotkey
// registration API. No keyboard hooks are installed.
package hotkey

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Modifier flags, matching the Windows MOD_* values.
const (
	ModAlt      uint32 = 0x0001
	ModCtrl     uint32 = 0x0002
	ModShift    uint32 = 0x0004
	ModWin      uint32 = 0x0008
	ModNoRepeat uint32 = 0x4000
)

var (
	// ErrInvalidHotkey is returned for hotkey strings that cannot be parsed
	ErrInvalidHotkey = errors.New("invalid hotkey")

	// ErrAlreadyStarted is returned by Register after Start
	ErrAlreadyStarted = errors.New("hotkey manager already started")
)

// Combo is a parsed hotkey: a set of modifiers plus one virtual key.
type Combo struct {
	Mods uint32
	VK   uint32
}

func (c Combo) String() string {
	var parts []string
	if c.Mods&ModCtrl != 0 {
		parts = append(parts, "Ctrl")
	}
	if c.Mods&ModAlt != 0 {
		parts = append(parts, "Alt")
	}
	if c.Mods&ModShift != 0 {
		parts = append(parts, "Shift")
	}
	if c.Mods&ModWin != 0 {
		parts = append(parts, "Win")
	}
	return strings.Join(append(parts, vkName(c.VK)), "+")
}

// Parse parses strings such as "Ctrl+Alt+T" or "ctrl + shift + f9".
// Exactly one non-modifier key is required.
func Parse(s string) (Combo, error) {
	var c Combo
	haveKey := false

	for _, part := range strings.Split(s, "+") {
		name := strings.ToUpper(strings.TrimSpace(part))
		switch name {
		case "CTRL", "CONTROL":
			c.Mods |= ModCtrl
			continue
		case "ALT":
			c.Mods |= ModAlt
			continue
		case "SHIFT":
			c.Mods |= ModShift
			continue
		case "WIN", "CMD", "SUPER":
			c.Mods |= ModWin
			continue
		}

		vk, ok := nameToVK(name)
		if !ok {
			return Combo{}, fmt.Errorf("%w %q: unknown key %q", ErrInvalidHotkey, s, strings.TrimSpace(part))
		}
		if haveKey {
			return Combo{}, fmt.Errorf("%w %q: more than one key", ErrInvalidHotkey, s)
		}
		c.VK = vk
		haveKey = true
	}

	if !haveKey {
		return Combo{}, fmt.Errorf("%w %q: no key", ErrInvalidHotkey, s)
	}
	return c, nil
}

// Manager handles global hotkey registration and dispatch
type Manager struct {
	mu      sync.Mutex
	hotkeys []*registeredHotkey
	started bool
	stop    func()
}

type registeredHotkey struct {
	combo    Combo
	original string
	callback func()
}

// NewManager creates a new hotkey manager
func NewManager() *Manager {
	return &Manager{}
}

// Register registers a hotkey string (e.g. "Ctrl+Alt+T") and a callback.
// An empty string is ignored. Hotkeys must be registered before Start.
func (m *Manager) Register(hotkeyStr string, callback func()) error {
	if hotkeyStr == "" {
		return nil
	}

	combo, err := Parse(hotkeyStr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}

	m.hotkeys = append(m.hotkeys, &registeredHotkey{
		combo:    combo,
		original: hotkeyStr,
		callback: callback,
	})
	return nil
}

// Start registers every hotkey with the OS and begins dispatching.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	hotkeys := append([]*registeredHotkey(nil), m.hotkeys...)
	m.mu.Unlock()

	stop, err := startPlatform(hotkeys)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.stop = stop
	m.mu.Unlock()
	return nil
}

// Stop unregisters every hotkey.
func (m *Manager) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (hk *registeredHotkey) fire() {
	log.Printf("Hotkey triggered: %s", hk.original)
	go hk.callback()
}

var namedKeys = map[string]uint32{
	"SPACE":       0x20,
	"ENTER":       0x0D,
	"ESC":         0x1B,
	"ESCAPE":      0x1B,
	"BACKSPACE":   0x08,
	"TAB":         0x09,
	"CAPSLOCK":    0x14,
	"PAGEUP":      0x21,
	"PAGEDOWN":    0x22,
	"END":         0x23,
	"HOME":        0x24,
	"LEFT":        0x25,
	"UP":          0x26,
	"RIGHT":       0x27,
	"DOWN":        0x28,
	"PRINTSCREEN": 0x2C,
	"INSERT":      0x2D,
	"DELETE":      0x2E,
	"PAUSE":       0x13,
	"SCROLLLOCK":  0x91,
}

func nameToVK(name string) (uint32, bool) {
	if vk, ok := namedKeys[name]; ok {
		return vk, true
	}

	// Letters and digits map to their ASCII code
	if len(name) == 1 {
		ch := name[0]
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			return uint32(ch), true
		}
	}

	// F1-F24
	var n int
	if _, err := fmt.Sscanf(name, "F%d", &n); err == nil && n >= 1 && n <= 24 && name == fmt.Sprintf("F%d", n) {
		return uint32(0x6F + n), true
	}

	return 0, false
}

func vkName(vk uint32) string {
	switch {
	case vk >= 'A' && vk <= 'Z', vk >= '0' && vk <= '9':
		return string(rune(vk))
	case vk >= 0x70 && vk <= 0x87:
		return fmt.Sprintf("F%d", vk-0x6F)
	}
	best := ""
	for name, code := range namedKeys {
		// ESC has two spellings; prefer the short one
		if code == vk && (best == "" || len(name) < len(best)) {
			best = name
		}
	}
	if best != "" {
		return strings.ToUpper(best[:1]) + strings.ToLower(best[1:])
	}
	return fmt.Sprintf("0x%02X", vk)
}
