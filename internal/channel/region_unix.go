//go:build !windows

package channel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const defaultDir = "/dev/shm"

type mappedRegion struct {
	file *os.File
	data []byte
}

// openRegion maps a file named after cfg.Name under cfg.Dir. The first
// opener sizes it, later openers attach to the existing file.
func openRegion(cfg Config, size int) (region, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = defaultDir
	}
	path := filepath.Join(dir, fileName(cfg.Name))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: mmap: %v", ErrChannelUnavailable, err)
	}

	return &mappedRegion{file: f, data: data}, nil
}

// fileName turns a kernel object name such as Local\Foo into Foo.
func fileName(name string) string {
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = "memtrigger_input"
	}
	return name
}

func (r *mappedRegion) Bytes() []byte { return r.data }

func (r *mappedRegion) Close() error {
	err := unix.Munmap(r.data)
	r.data = nil
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}
