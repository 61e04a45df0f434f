package macro

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"memtrigger/internal/input"
)

// recordingSink logs every call it receives.
type recordingSink struct {
	mu    sync.Mutex
	calls []string
	at    []time.Time
}

func (s *recordingSink) log(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
	s.at = append(s.at, time.Now())
}

func (s *recordingSink) SetKey(code int, pressed bool)        { s.log("key %d %v", code, pressed) }
func (s *recordingSink) SetGamepadButton(i int, pressed bool) { s.log("pad %d %v", i, pressed) }
func (s *recordingSink) SetMouseButton(i int, pressed bool)   { s.log("mouse %d %v", i, pressed) }
func (s *recordingSink) SetAxis(i int, v int32)               { s.log("axis %d %d", i, v) }

// scriptedSampler replays a fixed list of frames, one per Sample call, and
// advances a fake clock by 10ms per frame.
type scriptedSampler struct {
	frames []input.State
	next   int
	base   time.Time
}

func (s *scriptedSampler) Sample(st *input.State) error {
	if s.next >= len(s.frames) {
		return io.EOF
	}
	*st = s.frames[s.next]
	s.next++
	return nil
}

func (s *scriptedSampler) now() time.Time {
	return s.base.Add(time.Duration(s.next-1) * 10 * time.Millisecond)
}

func frames(n int, set func(i int, st *input.State)) []input.State {
	out := make([]input.State, n)
	for i := range out {
		set(i, &out[i])
	}
	return out
}

func TestParse(t *testing.T) {
	src := "# comment\n0,30,0,25\n\n4,1,-500,0,extra,fields\n5,0,0,100\n"
	seq, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := Sequence{
		{Kind: KeyDown, Code: 30, DelayMs: 25},
		{Kind: AxisSet, Code: 1, Value: -500},
		{Kind: Delay, DelayMs: 100},
	}
	if len(seq) != len(want) {
		t.Fatalf("got %d steps, want %d", len(seq), len(want))
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("step %d = %+v, want %+v", i, seq[i], want[i])
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, src := range []string{"0,30,0", "x,1,2,3", "9,0,0,0", "0,1,0,-5"} {
		if _, err := Parse(strings.NewReader(src)); !errors.Is(err, ErrMalformedLine) {
			t.Errorf("Parse(%q) error = %v, want ErrMalformedLine", src, err)
		}
	}
}

func TestParseLegacy(t *testing.T) {
	src := "0,65,0,0,0,50\n1,65,0,0,0,0\n2,0,0,0,0,10\n4,0,0,0,0,200\n5,0,3,0,0,5\n6,0,3,0,0,0\n"
	seq, err := ParseLegacy(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseLegacy: %v", err)
	}

	want := Sequence{
		{Kind: KeyDown, Code: 0x1E, DelayMs: 50},
		{Kind: KeyUp, Code: 0x1E},
		{Kind: MouseDown, Code: 0, DelayMs: 10},
		{Kind: Delay, DelayMs: 200},
		{Kind: ButtonDown, Code: 3, DelayMs: 5},
		{Kind: ButtonUp, Code: 3},
	}
	if len(seq) != len(want) {
		t.Fatalf("got %d steps, want %d", len(seq), len(want))
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("step %d = %+v, want %+v", i, seq[i], want[i])
		}
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	seq := Sequence{
		{Kind: KeyDown, Code: 0x11, DelayMs: 40},
		{Kind: MouseUp, Code: 1},
		{Kind: AxisSet, Code: 3, Value: -32768, DelayMs: 5},
	}

	path := filepath.Join(dir, "nested", "combo.macro")
	if err := Save(path, seq); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(seq) {
		t.Fatalf("loaded %d steps, want %d", len(got), len(seq))
	}
	for i := range seq {
		if got[i] != seq[i] {
			t.Errorf("step %d = %+v, want %+v", i, got[i], seq[i])
		}
	}
}

func TestLoadPicksLegacyByExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.MKM")
	if err := os.WriteFile(path, []byte("0,87,0,0,0,15\n"), 0644); err != nil {
		t.Fatal(err)
	}
	seq, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(seq) != 1 || seq[0].Kind != KeyDown || seq[0].Code != 0x11 || seq[0].DelayMs != 15 {
		t.Errorf("legacy load = %+v", seq)
	}
}

func TestFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Format(&buf, Sequence{{Kind: ButtonDown, Code: 2, DelayMs: 7}}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "2,2,0,7\n" {
		t.Errorf("Format = %q", buf.String())
	}
}

func TestPlayAppliesStepsWithDelayAfter(t *testing.T) {
	sink := &recordingSink{}
	seq := Sequence{
		{Kind: KeyDown, Code: 30, DelayMs: 40},
		{Kind: KeyUp, Code: 30},
		{Kind: Delay, DelayMs: 20},
		{Kind: ButtonDown, Code: 1},
		{Kind: MouseDown, Code: 0},
		{Kind: AxisSet, Code: 2, Value: 9},
	}

	start := time.Now()
	if err := Play(context.Background(), seq, sink); err != nil {
		t.Fatalf("Play: %v", err)
	}

	want := []string{"key 30 true", "key 30 false", "pad 1 true", "mouse 0 true", "axis 2 9"}
	if strings.Join(sink.calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %v, want %v", sink.calls, want)
	}
	if gap := sink.at[1].Sub(sink.at[0]); gap < 35*time.Millisecond {
		t.Errorf("key held %v, want >= 40ms", gap)
	}
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("Play took %v, want >= 60ms", elapsed)
	}
}

func TestPlayCancelled(t *testing.T) {
	sink := &recordingSink{}
	seq := Sequence{
		{Kind: KeyDown, Code: 1, DelayMs: 1000},
		{Kind: KeyUp, Code: 1},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Play(ctx, seq, sink)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Play did not stop on cancellation")
	}
	if len(sink.calls) != 1 {
		t.Errorf("calls = %v, want only the first step", sink.calls)
	}
}

func TestPlayDoesNotMutateSequence(t *testing.T) {
	seq := Sequence{{Kind: KeyDown, Code: 5}, {Kind: KeyUp, Code: 5}}
	orig := append(Sequence(nil), seq...)
	for i := 0; i < 2; i++ {
		if err := Play(context.Background(), seq, &recordingSink{}); err != nil {
			t.Fatal(err)
		}
	}
	for i := range seq {
		if seq[i] != orig[i] {
			t.Fatal("Play mutated the sequence")
		}
	}
}

func recordScript(t *testing.T, s *scriptedSampler, opts RecordOptions) Sequence {
	t.Helper()
	s.base = time.Unix(1000, 0)
	opts.Interval = time.Millisecond
	opts.Now = s.now

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seq, err := Record(ctx, s, opts)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return seq
}

func TestRecordBackfillsDelays(t *testing.T) {
	s := &scriptedSampler{frames: frames(7, func(i int, st *input.State) {
		st.Keys[0x1E] = i >= 1 && i <= 3
		st.GamepadButtons[input.PadB] = i >= 4 && i <= 5
	})}

	seq := recordScript(t, s, RecordOptions{})

	want := Sequence{
		{Kind: KeyDown, Code: 0x1E, DelayMs: 30},
		{Kind: KeyUp, Code: 0x1E, DelayMs: 0},
		{Kind: ButtonDown, Code: input.PadB, DelayMs: 20},
		{Kind: ButtonUp, Code: input.PadB, DelayMs: 0},
	}
	if len(seq) != len(want) {
		t.Fatalf("recorded %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("step %d = %+v, want %+v", i, seq[i], want[i])
		}
	}
}

func TestRecordSkipsBlockedAndHeldInputs(t *testing.T) {
	s := &scriptedSampler{frames: frames(4, func(i int, st *input.State) {
		st.Keys[0x10] = true // held before recording started
		st.Keys[0x1E] = i == 1
		st.Keys[0x20] = i == 2
		st.GamepadButtons[input.PadA] = i == 2
	})}

	seq := recordScript(t, s, RecordOptions{BlockedKeys: []int{0x1E}, BlockedButtons: []int{input.PadA}})

	if len(seq) != 2 || seq[0].Code != 0x20 || seq[1].Code != 0x20 {
		t.Errorf("recorded %v, want only key 0x20 down/up", seq)
	}
}

func TestTrimTrailingPresses(t *testing.T) {
	seq := Sequence{
		{Kind: KeyDown, Code: 0x11, DelayMs: 40},
		{Kind: KeyUp, Code: 0x11, DelayMs: 250},
		{Kind: KeyDown, Code: 0x1C, DelayMs: 10},
		{Kind: MouseDown, Code: 1},
	}

	got := TrimTrailingPresses(seq)
	want := Sequence{
		{Kind: KeyDown, Code: 0x11, DelayMs: 40},
		{Kind: KeyUp, Code: 0x11},
	}
	if len(got) != len(want) {
		t.Fatalf("trimmed = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if seq[1].DelayMs != 250 {
		t.Error("input sequence was modified")
	}

	if got := TrimTrailingPresses(Sequence{{Kind: KeyDown, Code: 1}}); len(got) != 0 {
		t.Errorf("lone press not trimmed: %v", got)
	}
	complete := Sequence{{Kind: ButtonDown, Code: 2}, {Kind: ButtonUp, Code: 2}}
	if got := TrimTrailingPresses(complete); len(got) != 2 {
		t.Errorf("complete sequence trimmed: %v", got)
	}
}

func TestRecordThenPlayRoundTrip(t *testing.T) {
	s := &scriptedSampler{frames: frames(8, func(i int, st *input.State) {
		st.Keys[0x11] = i >= 1 && i <= 4
		st.MouseButtons[0] = i >= 3 && i <= 6
	})}
	seq := recordScript(t, s, RecordOptions{})

	sink := &recordingSink{}
	if err := Play(context.Background(), seq, sink); err != nil {
		t.Fatalf("Play: %v", err)
	}

	want := []string{"key 17 true", "mouse 0 true", "key 17 false", "mouse 0 false"}
	if strings.Join(sink.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v, want %v", sink.calls, want)
	}

	// Recorded gaps are 20ms, 20ms, 20ms.
	for i := 1; i < len(sink.at); i++ {
		if gap := sink.at[i].Sub(sink.at[i-1]); gap < 15*time.Millisecond {
			t.Errorf("gap %d = %v, want about 20ms", i, gap)
		}
	}
}
