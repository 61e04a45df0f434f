package tray

import (
	"encoding/binary"
	"testing"
)

func TestIconLayout(t *testing.T) {
	icon := getIcon(false)

	if got := binary.LittleEndian.Uint16(icon[4:]); got != 1 {
		t.Fatalf("image count = %d", got)
	}
	size := binary.LittleEndian.Uint32(icon[14:])
	offset := binary.LittleEndian.Uint32(icon[18:])
	if int(offset+size) != len(icon) {
		t.Errorf("offset %d + size %d != len %d", offset, size, len(icon))
	}
	if h := binary.LittleEndian.Uint32(icon[offset+8:]); h != 2*iconSize {
		t.Errorf("DIB height = %d, want %d", h, 2*iconSize)
	}
}

func TestIconColors(t *testing.T) {
	center := func(icon []byte) []byte {
		i := 22 + 40 + (8*iconSize+8)*4
		return icon[i : i+4]
	}

	idle := center(getIcon(false))
	active := center(getIcon(true))
	if idle[3] != 0xFF || active[3] != 0xFF {
		t.Fatal("center pixel is transparent")
	}
	if active[1] <= active[2] {
		t.Errorf("active icon is not green: %v", active)
	}
	if idle[0] != idle[1] || idle[1] != idle[2] {
		t.Errorf("idle icon is not grey: %v", idle)
	}

	corner := getIcon(true)[22+40 : 22+40+4]
	if corner[3] != 0 {
		t.Error("corner pixel is opaque")
	}
}

func TestMenuItemsBeforeRun(t *testing.T) {
	tr := New("idle")
	a := tr.AddMenuItem("Start", nil)
	tr.AddSeparator()
	b := tr.AddMenuItem("Quit", nil)
	if a != 0 || b != 2 {
		t.Errorf("ids = %d, %d", a, b)
	}

	tr.SetItemTitle(a, "Stop")
	tr.SetItemTitle(1, "ignored")
	tr.SetItemEnabled(b, false)
	tr.SetStatus("monitoring", true)
	if tr.items[a].Title != "Stop" || tr.tooltip != "monitoring" || !tr.active {
		t.Errorf("state = %+v %q %v", tr.items[a], tr.tooltip, tr.active)
	}
}
