//go:build linux

package memory

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

type linuxProcess struct {
	pid         int
	pointerSize int
}

// OpenProcess prepares read access to pid. The kernel checks ptrace access
// on each read, so a missing permission surfaces on the first ReadMemory.
func OpenProcess(pid int) (Process, error) {
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return nil, fmt.Errorf("%w: pid %d: %v", ErrProcessNotFound, pid, err)
	}

	p := &linuxProcess{pid: pid, pointerSize: int(unsafe.Sizeof(uintptr(0)))}
	if f, err := elf.Open(fmt.Sprintf("/proc/%d/exe", pid)); err == nil {
		if f.Class == elf.ELFCLASS32 {
			p.pointerSize = 4
		}
		f.Close()
	}
	return p, nil
}

func (p *linuxProcess) PID() int         { return p.pid }
func (p *linuxProcess) PointerSize() int { return p.pointerSize }

func (p *linuxProcess) ModuleBase(name string) (Address, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", p.pid))
	if err != nil {
		return 0, fmt.Errorf("read maps for pid %d: %w", p.pid, err)
	}
	defer f.Close()

	maps, err := parseMaps(f)
	if err != nil {
		return 0, fmt.Errorf("parse maps for pid %d: %w", p.pid, err)
	}
	base, ok := moduleBaseFromMaps(maps, name)
	if !ok {
		return 0, fmt.Errorf("%w: %s in pid %d", ErrModuleNotFound, name, p.pid)
	}
	return base, nil
}

func (p *linuxProcess) ReadMemory(addr Address, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}

	n, err := unix.ProcessVMReadv(p.pid, local, remote, 0)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (p *linuxProcess) Alive() bool {
	err := unix.Kill(p.pid, 0)
	if err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	// Zombies still answer signal 0.
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", p.pid))
	if err != nil {
		return false
	}
	if i := strings.LastIndexByte(string(stat), ')'); i >= 0 && i+2 < len(stat) {
		return stat[i+2] != 'Z' && stat[i+2] != 'X'
	}
	return true
}

func (p *linuxProcess) Close() error { return nil }

// FindProcesses lists running processes whose executable name matches name.
func FindProcesses(name string) ([]ProcessInfo, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("list /proc: %w", err)
	}

	var out []ProcessInfo
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || !e.IsDir() {
			continue
		}
		exe := processName(pid)
		if exe == "" {
			continue
		}
		if name == "" || strings.EqualFold(exe, name) {
			out = append(out, ProcessInfo{PID: pid, Name: exe})
		}
	}
	return out, nil
}

func processName(pid int) string {
	if target, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid)); err == nil {
		return filepath.Base(strings.TrimSuffix(target, " (deleted)"))
	}
	comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(comm))
}
