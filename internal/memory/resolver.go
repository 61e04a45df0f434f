package memory

import (
	"encoding/binary"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

// ChainSpec locates a value through a module-relative base and a list of
// pointer offsets. Offsets may be negative.
type ChainSpec struct {
	ModuleName string  `json:"module_name"`
	BaseOffset uint64  `json:"base_offset"`
	Offsets    []int64 `json:"offsets"`
}

func (c ChainSpec) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s+0x%X", c.ModuleName, c.BaseOffset)
	for _, off := range c.Offsets {
		if off < 0 {
			fmt.Fprintf(&b, " -> -0x%X", -off)
		} else {
			fmt.Fprintf(&b, " -> +0x%X", off)
		}
	}
	return b.String()
}

// ValueSize is the size of the terminal scalar read.
const ValueSize = 4

// DefaultModuleCacheSize bounds the number of cached module base addresses.
const DefaultModuleCacheSize = 64

type moduleKey struct {
	pid  int
	name string
}

// Resolver walks pointer chains in a target process. Module base lookups
// are cached per (pid, module) because enumerating modules on every poll is
// far more expensive than the reads themselves.
type Resolver struct {
	modules *lru.Cache
}

// NewResolver creates a resolver with a module cache of the given size.
func NewResolver(cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultModuleCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{modules: cache}, nil
}

// Resolve computes the final address of chain in p.
//
// The walk starts at moduleBase+BaseOffset. Each offset dereferences the
// current address (one pointer-width read) and adds the offset to the
// pointer found there. An empty offset list performs no reads.
func (r *Resolver) Resolve(p Process, chain ChainSpec) (Address, error) {
	base, err := r.moduleBase(p, chain.ModuleName)
	if err != nil {
		return 0, err
	}

	width := p.PointerSize()
	addr := mask(base+Address(chain.BaseOffset), width)

	for i, off := range chain.Offsets {
		ptr, err := readPointer(p, addr, width)
		if err != nil {
			if i == 0 {
				// A dead root usually means the module moved.
				r.modules.Remove(moduleKey{p.PID(), strings.ToLower(chain.ModuleName)})
			}
			return 0, r.classify(p, fmt.Errorf("%w: level %d at %s: %v", ErrMemoryReadFailed, i, addr, err))
		}
		addr = mask(Address(int64(ptr)+off), width)
	}

	return addr, nil
}

// ReadValue resolves chain and reads the 32-bit signed value at the
// resolved address.
func (r *Resolver) ReadValue(p Process, chain ChainSpec) (int32, Address, error) {
	addr, err := r.Resolve(p, chain)
	if err != nil {
		return 0, 0, err
	}

	var buf [ValueSize]byte
	n, err := p.ReadMemory(addr, buf[:])
	if err == nil && n < ValueSize {
		err = fmt.Errorf("short read: %d of %d bytes", n, ValueSize)
	}
	if err != nil {
		return 0, addr, r.classify(p, fmt.Errorf("%w: value at %s: %v", ErrMemoryReadFailed, addr, err))
	}

	return int32(binary.LittleEndian.Uint32(buf[:])), addr, nil
}

// Forget drops every cached module address for pid.
func (r *Resolver) Forget(pid int) {
	for _, k := range r.modules.Keys() {
		if mk, ok := k.(moduleKey); ok && mk.pid == pid {
			r.modules.Remove(k)
		}
	}
}

func (r *Resolver) moduleBase(p Process, name string) (Address, error) {
	key := moduleKey{pid: p.PID(), name: strings.ToLower(name)}
	if v, ok := r.modules.Get(key); ok {
		return v.(Address), nil
	}

	base, err := p.ModuleBase(name)
	if err != nil {
		return 0, r.classify(p, err)
	}
	r.modules.Add(key, base)
	return base, nil
}

// classify upgrades a failure to ErrProcessGone when the target has exited.
func (r *Resolver) classify(p Process, err error) error {
	if !p.Alive() {
		r.Forget(p.PID())
		return fmt.Errorf("%w (pid %d): %v", ErrProcessGone, p.PID(), err)
	}
	return err
}

func readPointer(p Process, addr Address, width int) (Address, error) {
	buf := make([]byte, width)
	n, err := p.ReadMemory(addr, buf)
	if err != nil {
		return 0, err
	}
	if n < width {
		return 0, fmt.Errorf("short read: %d of %d bytes", n, width)
	}
	if width == 4 {
		return Address(binary.LittleEndian.Uint32(buf)), nil
	}
	return Address(binary.LittleEndian.Uint64(buf)), nil
}

func mask(a Address, width int) Address {
	if width == 4 {
		return a & 0xFFFFFFFF
	}
	return a
}
