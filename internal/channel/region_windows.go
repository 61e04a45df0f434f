//go:build windows

package channel

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

type mappedRegion struct {
	handle windows.Handle
	addr   uintptr
	data   []byte
}

// openRegion creates the named file mapping, or attaches to it when another
// process created it first.
func openRegion(cfg Config, size int) (region, error) {
	name, err := windows.UTF16PtrFromString(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	// CreateFileMapping returns the existing object (with ERROR_ALREADY_EXISTS)
	// when the name is taken, which is the attach path.
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(size), name)
	if h == 0 {
		return nil, fmt.Errorf("%w: CreateFileMapping: %v", ErrChannelUnavailable, err)
	}

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE|windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("%w: MapViewOfFile: %v", ErrChannelUnavailable, err)
	}

	return &mappedRegion{
		handle: h,
		addr:   addr,
		data:   unsafe.Slice((*byte)(unsafe.Pointer(addr)), size),
	}, nil
}

func (r *mappedRegion) Bytes() []byte { return r.data }

func (r *mappedRegion) Close() error {
	r.data = nil
	err := windows.UnmapViewOfFile(r.addr)
	if cerr := windows.CloseHandle(r.handle); err == nil {
		err = cerr
	}
	return err
}
