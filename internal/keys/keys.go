// Package keys maps input names to the DirectInput scan codes used by the
// shared input snapshot.
package keys

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownKey is returned when a key name or code cannot be mapped.
var ErrUnknownKey = errors.New("unknown key")

// MaxCode is the highest valid keyboard scan code.
const MaxCode = 255

// scanCodes is the canonical DirectInput scan-code table.
var scanCodes = map[string]int{
	"ESCAPE": 0x01,
	"1":      0x02, "2": 0x03, "3": 0x04, "4": 0x05, "5": 0x06,
	"6": 0x07, "7": 0x08, "8": 0x09, "9": 0x0A, "0": 0x0B,
	"MINUS":      0x0C,
	"EQUALS":     0x0D,
	"BACK":       0x0E,
	"TAB":        0x0F,
	"Q":          0x10, "W": 0x11, "E": 0x12, "R": 0x13, "T": 0x14,
	"Y": 0x15, "U": 0x16, "I": 0x17, "O": 0x18, "P": 0x19,
	"LBRACKET":   0x1A,
	"RBRACKET":   0x1B,
	"RETURN":     0x1C,
	"LCONTROL":   0x1D,
	"A":          0x1E, "S": 0x1F, "D": 0x20, "F": 0x21, "G": 0x22,
	"H": 0x23, "J": 0x24, "K": 0x25, "L": 0x26,
	"SEMICOLON":  0x27,
	"APOSTROPHE": 0x28,
	"GRAVE":      0x29,
	"LSHIFT":     0x2A,
	"BACKSLASH":  0x2B,
	"Z":          0x2C, "X": 0x2D, "C": 0x2E, "V": 0x2F, "B": 0x30,
	"N": 0x31, "M": 0x32,
	"COMMA":       0x33,
	"PERIOD":      0x34,
	"SLASH":       0x35,
	"RSHIFT":      0x36,
	"MULTIPLY":    0x37,
	"LMENU":       0x38,
	"SPACE":       0x39,
	"CAPITAL":     0x3A,
	"F1":          0x3B, "F2": 0x3C, "F3": 0x3D, "F4": 0x3E, "F5": 0x3F,
	"F6": 0x40, "F7": 0x41, "F8": 0x42, "F9": 0x43, "F10": 0x44,
	"NUMLOCK":     0x45,
	"SCROLL":      0x46,
	"NUMPAD7":     0x47, "NUMPAD8": 0x48, "NUMPAD9": 0x49,
	"SUBTRACT":    0x4A,
	"NUMPAD4":     0x4B, "NUMPAD5": 0x4C, "NUMPAD6": 0x4D,
	"ADD":         0x4E,
	"NUMPAD1":     0x4F, "NUMPAD2": 0x50, "NUMPAD3": 0x51, "NUMPAD0": 0x52,
	"DECIMAL":     0x53,
	"F11":         0x57,
	"F12":         0x58,
	"NUMPADENTER": 0x9C,
	"RCONTROL":    0x9D,
	"DIVIDE":      0xB5,
	"SYSRQ":       0xB7,
	"RMENU":       0xB8,
	"PAUSE":       0xC5,
	"HOME":        0xC7,
	"UP":          0xC8,
	"PRIOR":       0xC9,
	"LEFT":        0xCB,
	"RIGHT":       0xCD,
	"END":         0xCF,
	"DOWN":        0xD0,
	"NEXT":        0xD1,
	"INSERT":      0xD2,
	"DELETE":      0xD3,
	"LWIN":        0xDB,
	"RWIN":        0xDC,
	"APPS":        0xDD,
}

// aliases are friendlier spellings accepted in configuration.
var aliases = map[string]string{
	"ESC":       "ESCAPE",
	"BACKSPACE": "BACK",
	"ENTER":     "RETURN",
	"CTRL":      "LCONTROL",
	"LCTRL":     "LCONTROL",
	"RCTRL":     "RCONTROL",
	"SHIFT":     "LSHIFT",
	"ALT":       "LMENU",
	"LALT":      "LMENU",
	"RALT":      "RMENU",
	"CAPSLOCK":  "CAPITAL",
	"PAGEUP":    "PRIOR",
	"PAGEDOWN":  "NEXT",
	"DEL":       "DELETE",
	"INS":       "INSERT",
}

var codeNames map[int]string

func init() {
	codeNames = make(map[int]string, len(scanCodes))
	for name, code := range scanCodes {
		codeNames[code] = name
	}
}

// Lookup resolves a configuration key string to a scan code. Accepted
// forms are a decimal code ("65"), a hex code ("0x41"), or a table name
// with or without the DIK_ prefix ("W", "DIK_W", "Esc").
func Lookup(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty key", ErrUnknownKey)
	}

	if isNumeric(s) {
		code, err := parseNumber(s)
		if err != nil || code < 0 || code > MaxCode {
			return 0, fmt.Errorf("%w: code %q out of range", ErrUnknownKey, s)
		}
		return int(code), nil
	}

	name := strings.TrimPrefix(strings.ToUpper(s), "DIK_")
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	code, ok := scanCodes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKey, s)
	}
	return code, nil
}

// Name returns the table name of a scan code, or the decimal code when the
// table has no entry for it.
func Name(code int) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return strconv.Itoa(code)
}

// Names returns every known key name in sorted order.
func Names() []string {
	names := make([]string, 0, len(scanCodes))
	for name := range scanCodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parseNumber reads a 0x-prefixed hex code or a plain decimal one. Leading
// zeros stay decimal.
func parseNumber(s string) (int64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseInt(s[2:], 16, 32)
	}
	return strconv.ParseInt(s, 10, 32)
}

func isNumeric(s string) bool {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return len(s) > 2
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
