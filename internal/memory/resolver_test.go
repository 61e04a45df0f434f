package memory

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

// fakeProcess serves reads from a sparse map of little-endian words.
type fakeProcess struct {
	pid     int
	width   int
	modules map[string]Address
	mem     map[Address][]byte
	dead    bool

	reads       []Address
	readSizes   []int
	moduleCalls int
}

func newFakeProcess(width int) *fakeProcess {
	return &fakeProcess{
		pid:     1234,
		width:   width,
		modules: map[string]Address{},
		mem:     map[Address][]byte{},
	}
}

func (f *fakeProcess) putPointer(at, value Address) {
	buf := make([]byte, f.width)
	if f.width == 4 {
		binary.LittleEndian.PutUint32(buf, uint32(value))
	} else {
		binary.LittleEndian.PutUint64(buf, uint64(value))
	}
	f.mem[at] = buf
}

func (f *fakeProcess) putInt32(at Address, value int32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(value))
	f.mem[at] = buf
}

func (f *fakeProcess) PID() int         { return f.pid }
func (f *fakeProcess) PointerSize() int { return f.width }
func (f *fakeProcess) Alive() bool      { return !f.dead }
func (f *fakeProcess) Close() error     { return nil }

func (f *fakeProcess) ModuleBase(name string) (Address, error) {
	f.moduleCalls++
	for k, v := range f.modules {
		if strings.EqualFold(k, name) {
			return v, nil
		}
	}
	return 0, ErrModuleNotFound
}

func (f *fakeProcess) ReadMemory(addr Address, buf []byte) (int, error) {
	f.reads = append(f.reads, addr)
	f.readSizes = append(f.readSizes, len(buf))
	data, ok := f.mem[addr]
	if !ok {
		return 0, errors.New("access violation")
	}
	return copy(buf, data), nil
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(8)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestReadValueFollowsChain(t *testing.T) {
	p := newFakeProcess(8)
	p.modules["game.exe"] = 0x400000
	p.putPointer(0x400008, 0x10000000)
	p.putPointer(0x10000130, 0x20000000)
	p.putInt32(0x20000108, 42)

	r := newTestResolver(t)
	chain := ChainSpec{ModuleName: "GAME.EXE", BaseOffset: 0x8, Offsets: []int64{0x130, 0x108}}

	value, addr, err := r.ReadValue(p, chain)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if value != 42 {
		t.Errorf("value = %d, want 42", value)
	}
	if addr != 0x20000108 {
		t.Errorf("addr = %s, want 0x20000108", addr)
	}

	wantSizes := []int{8, 8, 4}
	if len(p.readSizes) != len(wantSizes) {
		t.Fatalf("reads = %v, want %d reads", p.reads, len(wantSizes))
	}
	for i, s := range wantSizes {
		if p.readSizes[i] != s {
			t.Errorf("read %d size = %d, want %d", i, p.readSizes[i], s)
		}
	}
}

func TestReadValueOneOffsetChain(t *testing.T) {
	p := newFakeProcess(8)
	p.modules["game.exe"] = 0x400000
	p.putPointer(0x400020, 0x30000000)
	p.putInt32(0x30000044, -3)

	r := newTestResolver(t)
	value, addr, err := r.ReadValue(p, ChainSpec{ModuleName: "game.exe", BaseOffset: 0x20, Offsets: []int64{0x44}})
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if value != -3 || addr != 0x30000044 {
		t.Errorf("got %d at %s, want -3 at 0x30000044", value, addr)
	}

	wantReads := []Address{0x400020, 0x30000044}
	wantSizes := []int{8, 4}
	if len(p.reads) != len(wantReads) {
		t.Fatalf("reads = %v, want %v", p.reads, wantReads)
	}
	for i := range wantReads {
		if p.reads[i] != wantReads[i] || p.readSizes[i] != wantSizes[i] {
			t.Errorf("read %d = %d bytes at %s, want %d at %s", i, p.readSizes[i], p.reads[i], wantSizes[i], wantReads[i])
		}
	}
}

func TestResolveWithoutOffsetsDoesNotRead(t *testing.T) {
	p := newFakeProcess(8)
	p.modules["game.exe"] = 0x7FF600000000

	r := newTestResolver(t)
	addr, err := r.Resolve(p, ChainSpec{ModuleName: "game.exe", BaseOffset: 0x1234})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if addr != 0x7FF600001234 {
		t.Errorf("addr = %s, want 0x7FF600001234", addr)
	}
	if len(p.reads) != 0 {
		t.Errorf("Resolve performed %d reads, want 0", len(p.reads))
	}
}

func TestResolveNegativeOffset(t *testing.T) {
	p := newFakeProcess(8)
	p.modules["game.exe"] = 0x1000
	p.putPointer(0x1000, 0x5000)

	r := newTestResolver(t)
	addr, err := r.Resolve(p, ChainSpec{ModuleName: "game.exe", Offsets: []int64{-0x10}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if addr != 0x4FF0 {
		t.Errorf("addr = %s, want 0x4FF0", addr)
	}
}

func TestResolve32BitTarget(t *testing.T) {
	p := newFakeProcess(4)
	p.modules["game.exe"] = 0x00400000
	p.putPointer(0x00400010, 0xFFFFFFF0)
	p.putInt32(0x00000004, 7)

	r := newTestResolver(t)
	value, addr, err := r.ReadValue(p, ChainSpec{ModuleName: "game.exe", BaseOffset: 0x10, Offsets: []int64{0x14}})
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if addr != 0x4 || value != 7 {
		t.Errorf("got %d at %s, want 7 at 0x4", value, addr)
	}
	if p.readSizes[0] != 4 {
		t.Errorf("pointer read size = %d, want 4", p.readSizes[0])
	}
}

func TestResolveModuleNotFound(t *testing.T) {
	p := newFakeProcess(8)
	r := newTestResolver(t)

	_, err := r.Resolve(p, ChainSpec{ModuleName: "missing.dll"})
	if !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("err = %v, want ErrModuleNotFound", err)
	}
}

func TestResolveReadFailure(t *testing.T) {
	p := newFakeProcess(8)
	p.modules["game.exe"] = 0x1000
	p.putPointer(0x1000, 0x9000)

	r := newTestResolver(t)
	_, _, err := r.ReadValue(p, ChainSpec{ModuleName: "game.exe", Offsets: []int64{0x8, 0x10}})
	if !errors.Is(err, ErrMemoryReadFailed) {
		t.Errorf("err = %v, want ErrMemoryReadFailed", err)
	}
	if errors.Is(err, ErrProcessGone) {
		t.Error("live process reported as gone")
	}
}

func TestShortReadFails(t *testing.T) {
	p := newFakeProcess(8)
	p.modules["game.exe"] = 0x1000
	p.mem[0x1000] = []byte{1, 2, 3}

	r := newTestResolver(t)
	_, err := r.Resolve(p, ChainSpec{ModuleName: "game.exe", Offsets: []int64{0}})
	if !errors.Is(err, ErrMemoryReadFailed) {
		t.Errorf("err = %v, want ErrMemoryReadFailed", err)
	}
}

func TestReadFailureOnDeadProcess(t *testing.T) {
	p := newFakeProcess(8)
	p.modules["game.exe"] = 0x1000
	p.dead = true

	r := newTestResolver(t)
	_, _, err := r.ReadValue(p, ChainSpec{ModuleName: "game.exe", Offsets: []int64{0}})
	if !errors.Is(err, ErrProcessGone) {
		t.Errorf("err = %v, want ErrProcessGone", err)
	}
}

func TestModuleBaseIsCached(t *testing.T) {
	p := newFakeProcess(8)
	p.modules["game.exe"] = 0x1000
	p.putInt32(0x1000, 5)

	r := newTestResolver(t)
	chain := ChainSpec{ModuleName: "game.exe"}
	for i := 0; i < 3; i++ {
		if _, _, err := r.ReadValue(p, chain); err != nil {
			t.Fatalf("ReadValue: %v", err)
		}
	}
	if p.moduleCalls != 1 {
		t.Errorf("module lookups = %d, want 1", p.moduleCalls)
	}

	r.Forget(p.pid)
	if _, _, err := r.ReadValue(p, chain); err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if p.moduleCalls != 2 {
		t.Errorf("module lookups after Forget = %d, want 2", p.moduleCalls)
	}
}

func TestChainSpecString(t *testing.T) {
	c := ChainSpec{ModuleName: "game.exe", BaseOffset: 0x8, Offsets: []int64{0x130, -0x8}}
	want := "game.exe+0x8 -> +0x130 -> -0x8"
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
