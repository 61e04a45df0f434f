package keys

import (
	"fmt"
	"strings"
)

// MaxButton is the highest gamepad button index.
const MaxButton = 127

// buttonIndices names the first sixteen gamepad buttons in XInput report
// order. Higher buttons are addressed by index.
var buttonIndices = map[string]int{
	"A":     0,
	"B":     1,
	"X":     2,
	"Y":     3,
	"LB":    4,
	"RB":    5,
	"LT":    6,
	"RT":    7,
	"UP":    8,
	"DOWN":  9,
	"LEFT":  10,
	"RIGHT": 11,
	"START": 12,
	"BACK":  13,
	"LS":    14,
	"RS":    15,
}

// LookupButton resolves a gamepad button name ("A", "LB", "Start") or a
// numeric index 0-127 in decimal or 0x hex.
func LookupButton(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty button", ErrUnknownKey)
	}
	if isNumeric(s) {
		idx, err := parseNumber(s)
		if err != nil || idx < 0 || idx > MaxButton {
			return 0, fmt.Errorf("%w: button %q out of range", ErrUnknownKey, s)
		}
		return int(idx), nil
	}
	idx, ok := buttonIndices[strings.ToUpper(s)]
	if !ok {
		return 0, fmt.Errorf("%w: button %q", ErrUnknownKey, s)
	}
	return idx, nil
}
