//go:build windows

package memory

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const stillActive = 259

// winProcess shares its handle between monitors. Reads and liveness checks
// take the read lock so they run in parallel; Close takes the write lock.
type winProcess struct {
	pid         int
	handle      windows.Handle
	pointerSize int

	mu     sync.RWMutex
	closed bool
}

// OpenProcess opens pid for reading only.
func OpenProcess(pid int) (Process, error) {
	h, err := windows.OpenProcess(
		windows.PROCESS_VM_READ|windows.PROCESS_QUERY_LIMITED_INFORMATION,
		false, uint32(pid),
	)
	if err != nil {
		return nil, fmt.Errorf("OpenProcess(%d): %w", pid, err)
	}

	p := &winProcess{pid: pid, handle: h, pointerSize: 8}

	var wow64 bool
	if err := windows.IsWow64Process(h, &wow64); err == nil && wow64 {
		p.pointerSize = 4
	} else if unsafe.Sizeof(uintptr(0)) == 4 {
		p.pointerSize = 4
	}

	return p, nil
}

func (p *winProcess) PID() int         { return p.pid }
func (p *winProcess) PointerSize() int { return p.pointerSize }

func (p *winProcess) ModuleBase(name string) (Address, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(p.pid))
	if err != nil {
		return 0, fmt.Errorf("module snapshot for pid %d: %w", p.pid, err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	for err = windows.Module32First(snap, &entry); err == nil; err = windows.Module32Next(snap, &entry) {
		if strings.EqualFold(windows.UTF16ToString(entry.Module[:]), name) {
			return Address(entry.ModBaseAddr), nil
		}
	}

	return 0, fmt.Errorf("%w: %s in pid %d", ErrModuleNotFound, name, p.pid)
}

func (p *winProcess) ReadMemory(addr Address, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return 0, ErrProcessGone
	}

	var n uintptr
	err := windows.ReadProcessMemory(p.handle, uintptr(addr), &buf[0], uintptr(len(buf)), &n)
	if err != nil {
		return int(n), err
	}
	return int(n), nil
}

func (p *winProcess) Alive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	var code uint32
	if err := windows.GetExitCodeProcess(p.handle, &code); err != nil {
		return false
	}
	return code == stillActive
}

func (p *winProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return windows.CloseHandle(p.handle)
}

// FindProcesses lists running processes whose executable name matches name.
func FindProcesses(name string) ([]ProcessInfo, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("process snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var out []ProcessInfo
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		exe := windows.UTF16ToString(entry.ExeFile[:])
		if name == "" || strings.EqualFold(exe, name) {
			out = append(out, ProcessInfo{PID: int(entry.ProcessID), Name: exe})
		}
	}
	return out, nil
}
