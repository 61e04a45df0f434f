package macro

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"memtrigger/internal/keys"
)

// ErrMalformedLine is returned for a macro line that cannot be parsed
var ErrMalformedLine = errors.New("malformed macro line")

// LegacyExt is the extension of the old six-field key-log format.
const LegacyExt = ".mkm"

// Parse reads the kind,code,value,delayMs format. Blank lines and lines
// starting with # are skipped, trailing extra fields are ignored.
func Parse(r io.Reader) (Sequence, error) {
	return parse(r, parseLine)
}

// ParseLegacy reads the old type,key,pad,x,y,delay format where key is a
// Windows virtual-key code.
func ParseLegacy(r io.Reader) (Sequence, error) {
	return parse(r, parseLegacyLine)
}

func parse(r io.Reader, lineFn func(fields []string) (Step, bool, error)) (Sequence, error) {
	var seq Sequence
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		step, ok, err := lineFn(strings.Split(line, ","))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if ok {
			seq = append(seq, step)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return seq, nil
}

func parseLine(fields []string) (Step, bool, error) {
	if len(fields) < 4 {
		return Step{}, false, fmt.Errorf("%w: want 4 fields, got %d", ErrMalformedLine, len(fields))
	}

	var n [4]int64
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseInt(strings.TrimSpace(fields[i]), 10, 32)
		if err != nil {
			return Step{}, false, fmt.Errorf("%w: field %d: %v", ErrMalformedLine, i+1, err)
		}
		n[i] = v
	}

	step := Step{Kind: Kind(n[0]), Code: int(n[1]), Value: int32(n[2]), DelayMs: int(n[3])}
	if !step.Kind.Valid() {
		return Step{}, false, fmt.Errorf("%w: unknown kind %d", ErrMalformedLine, n[0])
	}
	if step.DelayMs < 0 {
		return Step{}, false, fmt.Errorf("%w: negative delay %d", ErrMalformedLine, step.DelayMs)
	}
	return step, true, nil
}

// Legacy type ordinals.
const (
	legacyKeyDown = iota
	legacyKeyUp
	legacyMouseClick
	legacyMouseMove
	legacyDelay
	legacyPadDown
	legacyPadUp
)

func parseLegacyLine(fields []string) (Step, bool, error) {
	if len(fields) < 6 {
		return Step{}, false, fmt.Errorf("%w: want 6 fields, got %d", ErrMalformedLine, len(fields))
	}

	var n [6]int
	for i := range n {
		v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return Step{}, false, fmt.Errorf("%w: field %d: %v", ErrMalformedLine, i+1, err)
		}
		n[i] = v
	}
	typ, vk, pad, delay := n[0], n[1], n[2], n[5]
	if delay < 0 {
		delay = 0
	}

	switch typ {
	case legacyKeyDown, legacyKeyUp:
		code, ok := keys.ScanCodeForVK(vk)
		if !ok {
			return Step{}, false, fmt.Errorf("%w: no scan code for virtual key 0x%X", ErrMalformedLine, vk)
		}
		kind := KeyDown
		if typ == legacyKeyUp {
			kind = KeyUp
		}
		return Step{Kind: kind, Code: code, DelayMs: delay}, true, nil
	case legacyMouseClick:
		return Step{Kind: MouseDown, Code: 0, DelayMs: delay}, true, nil
	case legacyMouseMove, legacyDelay:
		// Mouse moves were never replayed, keep their timing only.
		return Step{Kind: Delay, DelayMs: delay}, true, nil
	case legacyPadDown:
		return Step{Kind: ButtonDown, Code: pad, DelayMs: delay}, true, nil
	case legacyPadUp:
		return Step{Kind: ButtonUp, Code: pad, DelayMs: delay}, true, nil
	}
	return Step{}, false, fmt.Errorf("%w: unknown legacy type %d", ErrMalformedLine, typ)
}

// Format writes seq in the kind,code,value,delayMs format.
func Format(w io.Writer, seq Sequence) error {
	bw := bufio.NewWriter(w)
	for _, s := range seq {
		if _, err := fmt.Fprintf(bw, "%d,%d,%d,%d\n", int(s.Kind), s.Code, s.Value, s.DelayMs); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Load reads a macro file. Files with the .mkm extension are read in the
// legacy format.
func Load(path string) (Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open macro: %w", err)
	}
	defer f.Close()

	var seq Sequence
	if strings.EqualFold(filepath.Ext(path), LegacyExt) {
		seq, err = ParseLegacy(f)
	} else {
		seq, err = Parse(f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse macro %s: %w", path, err)
	}
	return seq, nil
}

// Save writes seq to path, always in the current format.
func Save(path string, seq Sequence) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create macro directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create macro: %w", err)
	}
	if err := Format(f, seq); err != nil {
		f.Close()
		return fmt.Errorf("failed to write macro: %w", err)
	}
	return f.Close()
}
