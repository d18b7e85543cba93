package layout

import "testing"

func TestRectDimensions(t *testing.T) {
	r := Rect{Left: 10, Top: 20, Right: 110, Bottom: 80}
	if r.Width() != 100 {
		t.Errorf("Width() = %d, want 100", r.Width())
	}
	if r.Height() != 60 {
		t.Errorf("Height() = %d, want 60", r.Height())
	}

	moved := r.Translate(5, 10)
	want := Rect{Left: 15, Top: 30, Right: 115, Bottom: 90}
	if moved != want {
		t.Errorf("Translate(5, 10) = %+v, want %+v", moved, want)
	}
}

func TestDefaultLayoutStacksScreens(t *testing.T) {
	l := DefaultLayout(800, 960, false)

	if !l.TopScreenEnabled || !l.BottomScreenEnabled {
		t.Fatal("default layout must enable both screens")
	}
	if !l.IsRotated {
		t.Error("default layout must be rotated")
	}

	// 800x480 fits the 400x240 top screen exactly in the upper half.
	if l.TopScreen != (Rect{0, 0, 800, 480}) {
		t.Errorf("top screen = %+v, want full-width upper half", l.TopScreen)
	}

	// The 320x240 bottom screen keeps its aspect in the lower half.
	if l.BottomScreen.Top != 480 {
		t.Errorf("bottom screen top = %d, want 480", l.BottomScreen.Top)
	}
	bw, bh := l.BottomScreen.Width(), l.BottomScreen.Height()
	if bw*BottomScreenHeight != bh*BottomScreenWidth {
		t.Errorf("bottom screen %dx%d does not keep the 320:240 aspect", bw, bh)
	}
	if l.BottomScreen.Left == 0 {
		t.Error("bottom screen should be centered, not flush left")
	}
}

func TestDefaultLayoutSwapped(t *testing.T) {
	l := DefaultLayout(800, 960, true)

	if l.BottomScreen.Top != 0 {
		t.Errorf("swapped layout bottom screen top = %d, want 0", l.BottomScreen.Top)
	}
	if l.TopScreen.Top != 480 {
		t.Errorf("swapped layout top screen top = %d, want 480", l.TopScreen.Top)
	}
}

func TestSingleScreenLayout(t *testing.T) {
	top := SingleScreenLayout(800, 480, false)
	if !top.TopScreenEnabled || top.BottomScreenEnabled {
		t.Error("single top layout must enable only the top screen")
	}
	if top.TopScreen != (Rect{0, 0, 800, 480}) {
		t.Errorf("top screen = %+v, want the full window", top.TopScreen)
	}

	bottom := SingleScreenLayout(800, 480, true)
	if bottom.TopScreenEnabled || !bottom.BottomScreenEnabled {
		t.Error("single bottom layout must enable only the bottom screen")
	}
	bw, bh := bottom.BottomScreen.Width(), bottom.BottomScreen.Height()
	if bw*BottomScreenHeight != bh*BottomScreenWidth {
		t.Errorf("bottom screen %dx%d does not keep its aspect", bw, bh)
	}
}

func TestCardboardLayoutRecordsEyeOffsets(t *testing.T) {
	l := CardboardLayout(800, 480, false)

	if l.Width != 800 {
		t.Errorf("cardboard layout width = %d, want the full window width 800", l.Width)
	}
	if l.TopScreen.Right > 400 {
		t.Errorf("left eye content extends to %d, must stay in the left half", l.TopScreen.Right)
	}
	if l.Cardboard.TopScreenRightEye != l.TopScreen.Left {
		t.Errorf("top right-eye offset = %d, want %d", l.Cardboard.TopScreenRightEye, l.TopScreen.Left)
	}
	if l.Cardboard.BottomScreenRightEye != l.BottomScreen.Left {
		t.Errorf("bottom right-eye offset = %d, want %d", l.Cardboard.BottomScreenRightEye, l.BottomScreen.Left)
	}
}

func TestFitAspectClampsToHeight(t *testing.T) {
	// A very wide box: height limits, width is centered.
	r := fitAspect(400, 240, 2000, 240, 0)
	if r.Height() != 240 {
		t.Errorf("height = %d, want 240", r.Height())
	}
	if r.Width() != 400 {
		t.Errorf("width = %d, want 400", r.Width())
	}
	if r.Left != 800 {
		t.Errorf("left = %d, want centered at 800", r.Left)
	}
}
