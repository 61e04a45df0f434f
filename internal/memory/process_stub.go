//go:build !windows && !linux

package memory

// OpenProcess is not supported on this platform
func OpenProcess(pid int) (Process, error) {
	return nil, ErrUnsupportedPlatform
}

// FindProcesses is not supported on this platform
func FindProcesses(name string) ([]ProcessInfo, error) {
	return nil, ErrUnsupportedPlatform
}
