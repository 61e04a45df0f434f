// Package channel owns the shared input override region read by the hook
// component. Every mutation rewrites the full snapshot.
package channel

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"memtrigger/internal/protocol"
)

// DefaultName is the well-known name of the shared region.
const DefaultName = `Local\WinData_Input_Feedback`

// ErrChannelUnavailable is returned when the shared region cannot be created or opened
var ErrChannelUnavailable = errors.New("shared input channel unavailable")

// Config selects the shared region.
type Config struct {
	// Name is the mapping name. On Windows it is a kernel object name, elsewhere
	// it becomes a file name under Dir.
	Name string
	// Dir is the backing directory on non-Windows systems. Defaults to /dev/shm.
	Dir string
}

// region is a mapped shared memory view of exactly SnapshotSize bytes.
type region interface {
	Bytes() []byte
	Close() error
}

// Channel is the input override channel. The zero value is not usable; call New.
type Channel struct {
	cfg Config

	mu       sync.Mutex
	region   region
	snapshot protocol.Snapshot
}

// New creates a channel. No shared memory is touched until Initialize.
func New(cfg Config) *Channel {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	return &Channel{cfg: cfg, snapshot: protocol.NewSnapshot()}
}

// Initialize opens or creates the shared region and publishes the current
// snapshot. It returns false if the region is unavailable; the channel then
// stays inert until a later call succeeds.
func (c *Channel) Initialize() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.region != nil {
		return true
	}

	r, err := openRegion(c.cfg, protocol.SnapshotSize)
	if err != nil {
		log.Printf("Channel: Failed to open %q: %v", c.cfg.Name, err)
		return false
	}
	c.region = r
	c.flushLocked()
	log.Printf("Channel: Mapped %q (%d bytes)", c.cfg.Name, protocol.SnapshotSize)
	return true
}

// Ready reports whether the shared region is mapped.
func (c *Channel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region != nil
}

// SetActive toggles the active flag. Deactivating also releases every
// input and centers the hats.
func (c *Channel) SetActive(active bool) {
	c.update(func(s *protocol.Snapshot) {
		if !active {
			s.Reset()
			return
		}
		s.Active = true
	})
}

// SetKey sets a keyboard scan code (0-255) pressed or released.
func (c *Channel) SetKey(code int, pressed bool) {
	if code < 0 || code >= protocol.KeyboardSize {
		return
	}
	c.update(func(s *protocol.Snapshot) {
		s.Keyboard[code] = state(pressed)
	})
}

// SetGamepadButton sets gamepad button 0-127.
func (c *Channel) SetGamepadButton(index int, pressed bool) {
	if index < 0 || index >= protocol.JoyButtonCount {
		return
	}
	c.update(func(s *protocol.Snapshot) {
		s.JoyButtons[index] = state(pressed)
	})
}

// SetMouseButton sets mouse button 0-7.
func (c *Channel) SetMouseButton(index int, pressed bool) {
	if index < 0 || index >= protocol.MouseButtonCount {
		return
	}
	c.update(func(s *protocol.Snapshot) {
		s.MouseButtons[index] = state(pressed)
	})
}

// SetAxis sets gamepad axis 0-5 (x, y, z, rx, ry, rz).
func (c *Channel) SetAxis(index int, value int32) {
	if index < 0 || index >= protocol.AxisCount {
		return
	}
	c.update(func(s *protocol.Snapshot) {
		s.SetAxis(index, value)
	})
}

// PressKey presses code, holds it for d and releases it. The release is
// sent even when ctx is cancelled during the hold.
func (c *Channel) PressKey(ctx context.Context, code int, d time.Duration) {
	c.SetKey(code, true)
	sleep(ctx, d)
	c.SetKey(code, false)
}

// PressGamepadButton presses a gamepad button for d.
func (c *Channel) PressGamepadButton(ctx context.Context, index int, d time.Duration) {
	c.SetGamepadButton(index, true)
	sleep(ctx, d)
	c.SetGamepadButton(index, false)
}

// Snapshot returns a copy of the last written snapshot.
func (c *Channel) Snapshot() protocol.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Close releases all inputs and unmaps the region. The mapping itself stays
// alive while the hook component holds it open.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.region == nil {
		return nil
	}
	c.snapshot.Reset()
	c.flushLocked()

	err := c.region.Close()
	c.region = nil
	return err
}

func (c *Channel) update(fn func(s *protocol.Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.region == nil {
		return
	}
	fn(&c.snapshot)
	c.flushLocked()
}

func (c *Channel) flushLocked() {
	// Buffer is always SnapshotSize, so encoding cannot fail.
	_ = protocol.EncodeSnapshot(&c.snapshot, c.region.Bytes())
}

func state(pressed bool) byte {
	if pressed {
		return protocol.Pressed
	}
	return protocol.Released
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
