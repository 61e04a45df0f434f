// Package tray provides system tray functionality using getlantern/systray.
package tray

import (
	"encoding/binary"
	"sync"

	"github.com/getlantern/systray"
)

// MenuItem represents a menu item
type MenuItem struct {
	ID       int
	Title    string
	Callback func()
	item     *systray.MenuItem
}

// Tray manages the system tray icon and menu
type Tray struct {
	mu      sync.Mutex
	items   []*MenuItem
	tooltip string
	active  bool
	ready   bool
	onExit  func()
	quitCh  chan struct{}
}

// New creates a new system tray
func New(tooltip string) *Tray {
	t := &Tray{
		items:   make([]*MenuItem, 0),
		tooltip: tooltip,
		quitCh:  make(chan struct{}),
	}
	t.onExit = func() {
		close(t.quitCh)
	}
	return t
}

// AddMenuItem adds a menu item to the tray. Items must be added before Run.
func (t *Tray) AddMenuItem(title string, callback func()) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := len(t.items)
	t.items = append(t.items, &MenuItem{
		ID:       id,
		Title:    title,
		Callback: callback,
	})
	return id
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, nil) // nil indicates separator
}

// SetItemTitle changes the label of a menu item
func (t *Tray) SetItemTitle(id int, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.items) || t.items[id] == nil {
		return
	}
	t.items[id].Title = title
	if t.items[id].item != nil {
		t.items[id].item.SetTitle(title)
	}
}

// SetItemEnabled enables or greys out a menu item
func (t *Tray) SetItemEnabled(id int, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.items) || t.items[id] == nil || t.items[id].item == nil {
		return
	}
	if enabled {
		t.items[id].item.Enable()
	} else {
		t.items[id].item.Disable()
	}
}

// SetStatus updates the tooltip and switches the icon between the idle and
// monitoring colors. It may be called before Run.
func (t *Tray) SetStatus(tooltip string, active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tooltip = tooltip
	t.active = active
	if t.ready {
		systray.SetTooltip(tooltip)
		systray.SetIcon(getIcon(active))
	}
}

// Run starts the tray event loop (blocks)
func (t *Tray) Run() {
	systray.Run(t.setupMenu, t.onExit)
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	t.mu.Lock()
	defer t.mu.Unlock()

	systray.SetTitle("MemTrigger")
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(getIcon(t.active))
	t.ready = true

	for _, menuItem := range t.items {
		if menuItem == nil {
			// Separator
			systray.AddSeparator()
			continue
		}

		menuItem.item = systray.AddMenuItem(menuItem.Title, "")

		// Handle clicks in goroutine
		if menuItem.Callback != nil {
			go func(mi *MenuItem) {
				for {
					select {
					case <-mi.item.ClickedCh:
						mi.Callback()
					case <-t.quitCh:
						return
					}
				}
			}(menuItem)
		}
	}
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

const iconSize = 16

// getIcon returns a 16x16 32-bit ICO with a filled circle, green while
// monitoring and grey otherwise
func getIcon(active bool) []byte {
	const (
		pixelBytes = iconSize * iconSize * 4
		maskBytes  = iconSize * 4 // 1bpp rows padded to 32 bits
		dibSize    = 40
		imageSize  = dibSize + pixelBytes + maskBytes
		offset     = 6 + 16
	)

	icon := make([]byte, offset+imageSize)

	// ICO header: reserved, type 1 (icon), one image
	binary.LittleEndian.PutUint16(icon[2:], 1)
	binary.LittleEndian.PutUint16(icon[4:], 1)

	// Icon directory entry
	icon[6] = iconSize
	icon[7] = iconSize
	binary.LittleEndian.PutUint16(icon[10:], 1)  // planes
	binary.LittleEndian.PutUint16(icon[12:], 32) // bpp
	binary.LittleEndian.PutUint32(icon[14:], imageSize)
	binary.LittleEndian.PutUint32(icon[18:], offset)

	// DIB header; height is doubled to account for the AND mask
	dib := icon[offset:]
	binary.LittleEndian.PutUint32(dib[0:], dibSize)
	binary.LittleEndian.PutUint32(dib[4:], iconSize)
	binary.LittleEndian.PutUint32(dib[8:], iconSize*2)
	binary.LittleEndian.PutUint16(dib[12:], 1)
	binary.LittleEndian.PutUint16(dib[14:], 32)
	binary.LittleEndian.PutUint32(dib[20:], pixelBytes+maskBytes)

	// BGRA pixels, bottom-up
	b, g, r := byte(0x80), byte(0x80), byte(0x80)
	if active {
		b, g, r = 0x40, 0xC0, 0x30
	}
	pixels := dib[dibSize : dibSize+pixelBytes]
	const c = iconSize/2 - 0.5
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := float64(x)-c, float64(y)-c
			if dx*dx+dy*dy > 6.5*6.5 {
				continue
			}
			i := (y*iconSize + x) * 4
			pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = b, g, r, 0xFF
		}
	}
	// The AND mask stays zero; alpha carries transparency
	return icon
}
