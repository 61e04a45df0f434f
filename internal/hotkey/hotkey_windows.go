//go:build windows

package hotkey

import (
	"fmt"
	"log"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                = windows.NewLazySystemDLL("user32.dll")
	procRegisterHotKey    = user32.NewProc("RegisterHotKey")
	procUnregisterHotKey  = user32.NewProc("UnregisterHotKey")
	procGetMessage        = user32.NewProc("GetMessageW")
	procPostThreadMessage = user32.NewProc("PostThreadMessageW")
)

const (
	WM_QUIT   = 0x0012
	WM_HOTKEY = 0x0312
)

type msg struct {
	Hwnd    syscall.Handle
	Message uint32
	Wparam  uintptr
	Lparam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// startPlatform registers the hotkeys on a dedicated locked thread. WM_HOTKEY
// is posted to the thread that registered the hotkey, so registration and
// the message loop share it.
func startPlatform(hotkeys []*registeredHotkey) (func(), error) {
	ready := make(chan error, 1)
	var threadID uint32

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		threadID = windows.GetCurrentThreadId()

		registered := make(map[uintptr]*registeredHotkey)
		for i, hk := range hotkeys {
			id := uintptr(i + 1)
			ret, _, err := procRegisterHotKey.Call(0, id, uintptr(hk.combo.Mods|ModNoRepeat), uintptr(hk.combo.VK))
			if ret == 0 {
				// Another application owns the combination; keep the others
				log.Printf("Hotkey Engine: Failed to register %s: %v", hk.original, err)
				continue
			}
			registered[id] = hk
		}
		defer func() {
			for id := range registered {
				procUnregisterHotKey.Call(0, id)
			}
		}()

		if len(hotkeys) > 0 && len(registered) == 0 {
			ready <- fmt.Errorf("no hotkey could be registered")
			return
		}
		ready <- nil
		log.Printf("Hotkey Engine: %d hotkey(s) registered.", len(registered))

		var m msg
		for {
			ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
			if int32(ret) <= 0 {
				return
			}
			if m.Message == WM_HOTKEY {
				if hk, ok := registered[m.Wparam]; ok {
					hk.fire()
				}
			}
		}
	}()

	if err := <-ready; err != nil {
		return nil, err
	}
	return func() {
		procPostThreadMessage.Call(uintptr(threadID), WM_QUIT, 0, 0)
	}, nil
}
