package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"memtrigger/internal/keys"
	"memtrigger/internal/macro"
	"memtrigger/internal/memory"
	"memtrigger/internal/monitor"
)

// ConfigParseError reports a binding field that could not be parsed.
type ConfigParseError struct {
	Binding string
	Field   string
	Value   string
	Err     error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("binding %q: %s: invalid value %q: %v", e.Binding, e.Field, e.Value, e.Err)
}

func (e *ConfigParseError) Unwrap() error { return e.Err }

var errEmptyNumber = errors.New("empty number")

// ParseOffset parses one offset. Values are hexadecimal with or without a
// 0x prefix; a leading # selects decimal ("#304"). A sign may precede
// either form.
func ParseOffset(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	s = strings.TrimSpace(s)

	base := 16
	if strings.HasPrefix(s, "#") {
		base = 10
		s = s[1:]
	} else if len(s) > 1 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if s == "" {
		return 0, errEmptyNumber
	}

	v, err := strconv.ParseUint(s, base, 63)
	if err != nil {
		return 0, err
	}
	if neg {
		return -int64(v), nil
	}
	return int64(v), nil
}

// ParseBaseOffset parses a non-negative base offset. Empty means zero.
func ParseBaseOffset(s string) (uint64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	v, err := ParseOffset(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.New("base offset must not be negative")
	}
	return uint64(v), nil
}

// ParseOffsets parses a comma-separated offset list. An empty string is an
// empty chain.
func ParseOffsets(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for i, p := range parts {
		v, err := ParseOffset(p)
		if err != nil {
			return nil, fmt.Errorf("offset %d (%q): %w", i+1, strings.TrimSpace(p), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseBinding converts a persisted binding into a monitor binding. On
// failure the returned binding is still usable for display: it carries
// Invalid=true and the error text, and will never start. dir resolves
// relative macro file paths.
func ParseBinding(bc BindingConfig, dir string) (monitor.Binding, error) {
	b := monitor.Binding{
		ID:            bc.ID,
		Name:          bc.Name,
		Chain:         memory.ChainSpec{ModuleName: strings.TrimSpace(bc.ModuleName)},
		TriggerValue:  bc.TriggerValue,
		PollInterval:  monitor.DefaultPollInterval,
		ReactionDelay: time.Duration(bc.ReactionDelayMs) * time.Millisecond,
		BlockDuration: time.Duration(bc.BlockDurationMs) * time.Millisecond,
		MacroEnabled:  bc.MacroEnabled,
		Enabled:       bc.Enabled,
	}

	fail := func(field, value string, err error) (monitor.Binding, error) {
		perr := &ConfigParseError{Binding: bc.ID, Field: field, Value: value, Err: err}
		b.Invalid = true
		b.ParseError = perr.Error()
		return b, perr
	}

	if b.Chain.ModuleName == "" {
		return fail("moduleName", bc.ModuleName, errors.New("module name is required"))
	}

	base, err := ParseBaseOffset(bc.BaseOffset)
	if err != nil {
		return fail("baseOffset", bc.BaseOffset, err)
	}
	b.Chain.BaseOffset = base

	offsets, err := ParseOffsets(bc.Offsets)
	if err != nil {
		return fail("offsets", bc.Offsets, err)
	}
	b.Chain.Offsets = offsets

	if bc.PollIntervalMs != nil {
		if *bc.PollIntervalMs <= 0 {
			return fail("pollIntervalMs", strconv.Itoa(*bc.PollIntervalMs), errors.New("must be positive"))
		}
		b.PollInterval = time.Duration(*bc.PollIntervalMs) * time.Millisecond
	}
	if bc.BlockDurationMs < 0 {
		return fail("blockDurationMs", strconv.Itoa(bc.BlockDurationMs), errors.New("must not be negative"))
	}
	if bc.ReactionDelayMs < 0 {
		return fail("reactionDelayMs", strconv.Itoa(bc.ReactionDelayMs), errors.New("must not be negative"))
	}

	for _, k := range bc.KeysToBlock {
		code, err := keys.Lookup(k)
		if err != nil {
			return fail("keysToBlock", k, err)
		}
		b.KeysToBlock = append(b.KeysToBlock, code)
	}
	for _, name := range bc.ButtonsToBlock {
		idx, err := keys.LookupButton(name)
		if err != nil {
			return fail("buttonsToBlock", name, err)
		}
		b.ButtonsToBlock = append(b.ButtonsToBlock, idx)
	}

	switch {
	case len(bc.MacroSequence) > 0:
		for i, step := range bc.MacroSequence {
			if !step.Kind.Valid() || step.DelayMs < 0 {
				return fail("macroSequence", step.String(), fmt.Errorf("step %d: %w", i+1, macro.ErrMalformedLine))
			}
		}
		b.Macro = append(macro.Sequence(nil), bc.MacroSequence...)
	case bc.MacroFile != "":
		path := bc.MacroFile
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}
		seq, err := macro.Load(path)
		if err != nil {
			return fail("macroFile", bc.MacroFile, err)
		}
		b.Macro = seq
	}

	return b, nil
}

// ParseBindings parses every binding in cfg. Invalid bindings are kept in
// the result, marked invalid; the returned error joins every parse error.
// Bindings without an ID get a positional one.
func ParseBindings(cfg *Config, dir string) ([]monitor.Binding, error) {
	out := make([]monitor.Binding, 0, len(cfg.Bindings))
	seen := make(map[string]bool, len(cfg.Bindings))
	var errs []error

	for i, bc := range cfg.Bindings {
		if bc.ID == "" {
			bc.ID = fmt.Sprintf("binding-%d", i+1)
		}
		if seen[bc.ID] {
			errs = append(errs, fmt.Errorf("duplicate binding id %q ignored", bc.ID))
			continue
		}
		seen[bc.ID] = true

		b, err := ParseBinding(bc, dir)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, b)
	}
	return out, errors.Join(errs...)
}

// FormatOffset renders an offset in the notation ParseOffset reads.
func FormatOffset(v int64) string {
	if v < 0 {
		return fmt.Sprintf("-0x%X", -v)
	}
	return fmt.Sprintf("0x%X", v)
}

// FormatOffsets renders a chain's offsets as a comma-separated list.
func FormatOffsets(offsets []int64) string {
	parts := make([]string, len(offsets))
	for i, v := range offsets {
		parts[i] = FormatOffset(v)
	}
	return strings.Join(parts, ",")
}
