// Package memory provides read-only access to another process's memory and
// resolution of multi-level pointer chains inside it.
package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleNotFound is returned when the named module is not loaded in the target process
	ErrModuleNotFound = errors.New("module not found")

	// ErrMemoryReadFailed is returned when a remote read fails or comes back short
	ErrMemoryReadFailed = errors.New("memory read failed")

	// ErrProcessGone is returned when the target process has exited
	ErrProcessGone = errors.New("process has exited")

	// ErrProcessNotFound is returned when no process matches a lookup
	ErrProcessNotFound = errors.New("process not found")

	// ErrUnsupportedPlatform is returned when remote memory access is not implemented for this OS
	ErrUnsupportedPlatform = errors.New("process memory access not supported on this platform")
)

// Address is an address in the target process. It is always 64 bits wide
// so that 64-bit targets are never truncated.
type Address uint64

func (a Address) String() string {
	return fmt.Sprintf("0x%X", uint64(a))
}

// Process is a read-only handle to a target process.
type Process interface {
	// PID returns the process ID
	PID() int

	// PointerSize returns the pointer width of the target in bytes (4 or 8)
	PointerSize() int

	// ModuleBase returns the load address of the named module.
	// Matching is a case-insensitive comparison of the module file name.
	ModuleBase(name string) (Address, error)

	// ReadMemory reads len(buf) bytes at addr and returns how many bytes were read
	ReadMemory(addr Address, buf []byte) (int, error)

	// Alive reports whether the process is still running
	Alive() bool

	// Close releases the handle
	Close() error
}

// ProcessInfo describes a running process found by FindProcesses.
type ProcessInfo struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// FindProcess returns the first running process whose executable name
// matches name (case-insensitive).
func FindProcess(name string) (ProcessInfo, error) {
	procs, err := FindProcesses(name)
	if err != nil {
		return ProcessInfo{}, err
	}
	if len(procs) == 0 {
		return ProcessInfo{}, fmt.Errorf("%w: %s", ErrProcessNotFound, name)
	}
	return procs[0], nil
}
