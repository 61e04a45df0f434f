package keys

// vkNames maps Windows virtual-key codes to scan-code table names. Mouse
// buttons (VK 0x01-0x06) are handled separately by the recorder.
var vkNames = map[int]string{
	0x08: "BACK",
	0x09: "TAB",
	0x0D: "RETURN",
	0x13: "PAUSE",
	0x14: "CAPITAL",
	0x1B: "ESCAPE",
	0x20: "SPACE",
	0x21: "PRIOR",
	0x22: "NEXT",
	0x23: "END",
	0x24: "HOME",
	0x25: "LEFT",
	0x26: "UP",
	0x27: "RIGHT",
	0x28: "DOWN",
	0x2C: "SYSRQ",
	0x2D: "INSERT",
	0x2E: "DELETE",
	0x5B: "LWIN",
	0x5C: "RWIN",
	0x5D: "APPS",
	0x60: "NUMPAD0",
	0x61: "NUMPAD1",
	0x62: "NUMPAD2",
	0x63: "NUMPAD3",
	0x64: "NUMPAD4",
	0x65: "NUMPAD5",
	0x66: "NUMPAD6",
	0x67: "NUMPAD7",
	0x68: "NUMPAD8",
	0x69: "NUMPAD9",
	0x6A: "MULTIPLY",
	0x6B: "ADD",
	0x6D: "SUBTRACT",
	0x6E: "DECIMAL",
	0x6F: "DIVIDE",
	0x90: "NUMLOCK",
	0x91: "SCROLL",
	0xA0: "LSHIFT",
	0xA1: "RSHIFT",
	0xA2: "LCONTROL",
	0xA3: "RCONTROL",
	0xA4: "LMENU",
	0xA5: "RMENU",
	0xBA: "SEMICOLON",
	0xBB: "EQUALS",
	0xBC: "COMMA",
	0xBD: "MINUS",
	0xBE: "PERIOD",
	0xBF: "SLASH",
	0xC0: "GRAVE",
	0xDB: "LBRACKET",
	0xDC: "BACKSLASH",
	0xDD: "RBRACKET",
	0xDE: "APOSTROPHE",
}

// ScanCodeForVK translates a Windows virtual-key code into its scan code.
// The generic VK_SHIFT/VK_CONTROL/VK_MENU codes are skipped since their
// left/right variants are reported separately.
func ScanCodeForVK(vk int) (int, bool) {
	switch {
	case vk >= 'A' && vk <= 'Z', vk >= '0' && vk <= '9':
		code, ok := scanCodes[string(rune(vk))]
		return code, ok
	case vk >= 0x70 && vk <= 0x7B:
		code, ok := scanCodes["F"+itoa(vk-0x6F)]
		return code, ok
	}
	name, ok := vkNames[vk]
	if !ok {
		return 0, false
	}
	return scanCodes[name], true
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}
