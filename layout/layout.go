// Package layout describes where the emulated screens land inside a host
// framebuffer. Layouts are computed per frame from the window size and the
// active layout option; the renderer consumes them as plain data.
package layout

// Native dimensions of the emulated panels, in guest pixels. The top screen
// is wider than the bottom one and both are rotated 90 degrees in hardware,
// so "rotated" layouts are the upright ones on a landscape host display.
const (
	TopScreenWidth     = 400
	TopScreenHeight    = 240
	BottomScreenWidth  = 320
	BottomScreenHeight = 240
)

// DisplayOrientation selects vertex winding and texture coordinate
// assignment for one screen draw.
type DisplayOrientation int

const (
	Landscape DisplayOrientation = iota
	Portrait
	LandscapeFlipped
	PortraitFlipped
)

func (o DisplayOrientation) String() string {
	switch o {
	case Landscape:
		return "Landscape"
	case Portrait:
		return "Portrait"
	case LandscapeFlipped:
		return "LandscapeFlipped"
	case PortraitFlipped:
		return "PortraitFlipped"
	}
	return "Unknown"
}

// Rect is a screen region in host framebuffer pixels.
type Rect struct {
	Left, Top, Right, Bottom uint32
}

func (r Rect) Width() uint32  { return r.Right - r.Left }
func (r Rect) Height() uint32 { return r.Bottom - r.Top }

// Translate returns the rect shifted by (dx, dy).
func (r Rect) Translate(dx, dy uint32) Rect {
	return Rect{r.Left + dx, r.Top + dy, r.Right + dx, r.Bottom + dy}
}

// Cardboard holds the horizontal eye offsets for the CardboardVR mode,
// precomputed by the layout builder.
type Cardboard struct {
	TopScreenRightEye    uint32
	BottomScreenRightEye uint32
	UserXShift           uint32
}

// FramebufferLayout positions the emulated screens inside one host surface.
type FramebufferLayout struct {
	Width  uint32
	Height uint32

	TopScreen    Rect
	BottomScreen Rect

	// AdditionalScreen is an optional third panel (e.g. a detached second
	// copy of one screen in hybrid layouts).
	AdditionalScreen        Rect
	TopScreenEnabled        bool
	BottomScreenEnabled     bool
	AdditionalScreenEnabled bool

	// IsRotated is true for the usual upright presentation on a landscape
	// host window; false keeps the native portrait orientation.
	IsRotated bool

	Cardboard Cardboard
}

// fitAspect scales (w, h) to fit inside (maxW, maxH) preserving aspect,
// centered horizontally, returning the rect at vertical offset top.
func fitAspect(w, h, maxW, maxH, top uint32) Rect {
	scaledW := maxW
	scaledH := scaledW * h / w
	if scaledH > maxH {
		scaledH = maxH
		scaledW = scaledH * w / h
	}
	left := (maxW - scaledW) / 2
	return Rect{left, top, left + scaledW, top + scaledH}
}

// DefaultLayout stacks the top screen above the bottom screen, each scaled
// to fit half the window height. When swapped is true the bottom screen is
// placed on top.
func DefaultLayout(width, height uint32, swapped bool) FramebufferLayout {
	l := FramebufferLayout{
		Width:               width,
		Height:              height,
		TopScreenEnabled:    true,
		BottomScreenEnabled: true,
		IsRotated:           true,
	}

	half := height / 2
	upper := fitAspect(TopScreenWidth, TopScreenHeight, width, half, 0)
	lower := fitAspect(BottomScreenWidth, BottomScreenHeight, width, half, half)
	if swapped {
		upper = fitAspect(BottomScreenWidth, BottomScreenHeight, width, half, 0)
		lower = fitAspect(TopScreenWidth, TopScreenHeight, width, half, half)
		l.BottomScreen = upper
		l.TopScreen = lower
		return l
	}
	l.TopScreen = upper
	l.BottomScreen = lower
	return l
}

// SingleScreenLayout fills the window with one screen only.
func SingleScreenLayout(width, height uint32, bottom bool) FramebufferLayout {
	l := FramebufferLayout{
		Width:     width,
		Height:    height,
		IsRotated: true,
	}
	if bottom {
		l.BottomScreenEnabled = true
		l.BottomScreen = fitAspect(BottomScreenWidth, BottomScreenHeight, width, height, 0)
	} else {
		l.TopScreenEnabled = true
		l.TopScreen = fitAspect(TopScreenWidth, TopScreenHeight, width, height, 0)
	}
	return l
}

// CardboardLayout shrinks the default layout into the left half of the
// window and records the right-eye offsets; the renderer draws each screen
// once per eye at the recorded slots.
func CardboardLayout(width, height uint32, swapped bool) FramebufferLayout {
	l := DefaultLayout(width/2, height, swapped)
	l.Width = width
	l.Cardboard = Cardboard{
		TopScreenRightEye:    l.TopScreen.Left,
		BottomScreenRightEye: l.BottomScreen.Left,
	}
	return l
}
