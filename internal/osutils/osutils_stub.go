//go:build !windows

package osutils

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// IsAdmin reports whether the process runs as root
func IsAdmin() bool {
	return os.Geteuid() == 0
}

// EnableDebugPrivilege checks whether this process may read the memory of
// processes it does not own. On Linux that is governed by Yama's
// ptrace_scope; root can always read.
func EnableDebugPrivilege() error {
	if runtime.GOOS != "linux" || IsAdmin() {
		return nil
	}

	data, err := os.ReadFile("/proc/sys/kernel/yama/ptrace_scope")
	if err != nil {
		// No Yama, classic ptrace rules apply
		return nil
	}
	if scope := strings.TrimSpace(string(data)); scope != "0" {
		return fmt.Errorf("ptrace_scope is %s, reading another process requires root or CAP_SYS_PTRACE", scope)
	}
	return nil
}
