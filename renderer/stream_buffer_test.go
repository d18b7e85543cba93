package renderer

import "testing"

func TestRingSlotAligns(t *testing.T) {
	offset, wrapped := ringSlot(10, 64, 16, 1024)
	if offset != 16 {
		t.Errorf("offset = %d, want aligned 16", offset)
	}
	if wrapped {
		t.Error("allocation within the ring must not report a wrap")
	}
}

func TestRingSlotAlreadyAligned(t *testing.T) {
	offset, wrapped := ringSlot(32, 64, 16, 1024)
	if offset != 32 || wrapped {
		t.Errorf("ringSlot(32, ...) = (%d, %v), want (32, false)", offset, wrapped)
	}
}

func TestRingSlotWrapsToStart(t *testing.T) {
	offset, wrapped := ringSlot(1000, 64, 16, 1024)
	if offset != 0 {
		t.Errorf("offset = %d, want 0 after wrap", offset)
	}
	if !wrapped {
		t.Error("wrap must invalidate previously handed out offsets")
	}
}

func TestRingSlotExactFit(t *testing.T) {
	offset, wrapped := ringSlot(960, 64, 16, 1024)
	if offset != 960 || wrapped {
		t.Errorf("ringSlot(960, 64, 16, 1024) = (%d, %v), want the exact fit (960, false)", offset, wrapped)
	}
}

func TestRingSlotZeroAlignment(t *testing.T) {
	offset, wrapped := ringSlot(7, 8, 0, 1024)
	if offset != 7 || wrapped {
		t.Errorf("ringSlot with no alignment = (%d, %v), want (7, false)", offset, wrapped)
	}
}
