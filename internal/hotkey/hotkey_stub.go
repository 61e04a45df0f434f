//go:build !windows

package hotkey

import "log"

func startPlatform(hotkeys []*registeredHotkey) (func(), error) {
	log.Println("Hotkey Engine: Global hotkeys not supported on this platform.")
	return func() {}, nil
}
