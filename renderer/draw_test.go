package renderer

import (
	"testing"

	"github.com/emucore/vkpresent/layout"
	"github.com/emucore/vkpresent/settings"
)

var testTexCoords = texCoords{Left: 0.1, Top: 0.2, Right: 0.9, Bottom: 0.8}

func TestDrawOrientation(t *testing.T) {
	cases := []struct {
		rotated, flipped bool
		want             layout.DisplayOrientation
	}{
		{false, false, layout.Portrait},
		{false, true, layout.PortraitFlipped},
		{true, false, layout.Landscape},
		{true, true, layout.LandscapeFlipped},
	}
	for _, tc := range cases {
		got := drawOrientation(tc.rotated, tc.flipped)
		if got != tc.want {
			t.Errorf("drawOrientation(%v, %v) = %v, want %v",
				tc.rotated, tc.flipped, got, tc.want)
		}
	}
}

func TestScreenRectVerticesLandscape(t *testing.T) {
	verts, outW, outH, ok := screenRectVertices(10, 20, 100, 50, testTexCoords, layout.Landscape)
	if !ok {
		t.Fatal("landscape orientation rejected")
	}
	if outW != 100 || outH != 50 {
		t.Errorf("output size = %vx%v, want 100x50", outW, outH)
	}

	want := [4]ScreenRectVertex{
		{10, 20, 0.8, 0.1},
		{110, 20, 0.8, 0.9},
		{10, 70, 0.2, 0.1},
		{110, 70, 0.2, 0.9},
	}
	if verts != want {
		t.Errorf("vertices = %v, want %v", verts, want)
	}
}

func TestScreenRectVerticesPortraitSwapsOutput(t *testing.T) {
	verts, outW, outH, ok := screenRectVertices(0, 0, 100, 50, testTexCoords, layout.Portrait)
	if !ok {
		t.Fatal("portrait orientation rejected")
	}
	if outW != 50 || outH != 100 {
		t.Errorf("output size = %vx%v, want the swapped 50x100", outW, outH)
	}

	want := [4]ScreenRectVertex{
		{0, 0, 0.8, 0.9},
		{100, 0, 0.2, 0.9},
		{0, 50, 0.8, 0.1},
		{100, 50, 0.2, 0.1},
	}
	if verts != want {
		t.Errorf("vertices = %v, want %v", verts, want)
	}
}

func TestScreenRectVerticesFlippedMirrorsTexCoords(t *testing.T) {
	landscape, _, _, _ := screenRectVertices(0, 0, 10, 10, testTexCoords, layout.Landscape)
	flipped, _, _, ok := screenRectVertices(0, 0, 10, 10, testTexCoords, layout.LandscapeFlipped)
	if !ok {
		t.Fatal("flipped landscape orientation rejected")
	}

	// Flipping swaps the quad corner-for-corner: vertex 0 of one matches
	// vertex 3 of the other in texture space.
	for i := range flipped {
		mirror := landscape[3-i]
		if flipped[i].TexU != mirror.TexU || flipped[i].TexV != mirror.TexV {
			t.Errorf("vertex %d tex = (%v, %v), want mirrored (%v, %v)",
				i, flipped[i].TexU, flipped[i].TexV, mirror.TexU, mirror.TexV)
		}
	}
}

func TestScreenRectVerticesUnknownOrientation(t *testing.T) {
	_, _, _, ok := screenRectVertices(0, 0, 10, 10, testTexCoords, layout.DisplayOrientation(99))
	if ok {
		t.Error("unknown orientation must be rejected")
	}
}

func TestMakeOrthographicMatrix(t *testing.T) {
	m := makeOrthographicMatrix(800, 480)

	// Stored row-major for a vector-times-matrix multiply: (0,0) maps to
	// (-1,-1) and (800,480) maps to (1,1).
	if m[0] != 2.0/800 || m[5] != 2.0/480 {
		t.Errorf("scale terms = (%v, %v), want (%v, %v)", m[0], m[5], 2.0/800, 2.0/480)
	}
	if m[3] != -1 || m[7] != -1 {
		t.Errorf("translation terms = (%v, %v), want (-1, -1)", m[3], m[7])
	}
	if m[10] != 1 || m[15] != 1 {
		t.Errorf("z and w terms = (%v, %v), want (1, 1)", m[10], m[15])
	}
}

func TestPipelineForMode(t *testing.T) {
	cases := []struct {
		mode    settings.StereoRender
		index   int
		reverse bool
	}{
		{settings.StereoOff, fragShaderNormal, false},
		{settings.StereoSideBySide, fragShaderNormal, false},
		{settings.StereoCardboardVR, fragShaderNormal, false},
		{settings.StereoAnaglyph, fragShaderAnaglyph, false},
		{settings.StereoInterlaced, fragShaderInterlaced, false},
		{settings.StereoReverseInterlaced, fragShaderInterlaced, true},
	}
	for _, tc := range cases {
		index, reverse := pipelineForMode(tc.mode)
		if index != tc.index || reverse != tc.reverse {
			t.Errorf("%v: pipelineForMode = (%d, %v), want (%d, %v)",
				tc.mode, index, reverse, tc.index, tc.reverse)
		}
	}
}

func TestDrawInfoBytesSize(t *testing.T) {
	info := DrawInfo{}
	data, err := info.bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	if len(data) != drawInfoSize {
		t.Errorf("serialized size = %d, want %d", len(data), drawInfoSize)
	}
}

func testRegion() (layout.FramebufferLayout, layout.Rect) {
	fb := layout.FramebufferLayout{Width: 800, Height: 480}
	return fb, layout.Rect{Left: 100, Top: 40, Right: 700, Bottom: 440}
}

func TestTopScreenDrawsMono(t *testing.T) {
	fb, region := testRegion()

	draws := topScreenDraws(settings.StereoOff, settings.MonoLeftEye, fb, region)
	if len(draws) != 1 {
		t.Fatalf("mono draw count = %d, want 1", len(draws))
	}
	d := draws[0]
	if d.ScreenL != screenTopLeft || d.Stereo {
		t.Errorf("mono draw = %+v, want left eye, no stereo", d)
	}
	if d.X != 100 || d.Y != 40 || d.W != 600 || d.H != 400 {
		t.Errorf("mono draw rect = (%v, %v, %v, %v), want (100, 40, 600, 400)", d.X, d.Y, d.W, d.H)
	}

	draws = topScreenDraws(settings.StereoOff, settings.MonoRightEye, fb, region)
	if draws[0].ScreenL != screenTopRight {
		t.Errorf("right-eye mono draw samples slot %d, want %d", draws[0].ScreenL, screenTopRight)
	}
}

func TestTopScreenDrawsSideBySide(t *testing.T) {
	fb, region := testRegion()

	draws := topScreenDraws(settings.StereoSideBySide, settings.MonoLeftEye, fb, region)
	if len(draws) != 2 {
		t.Fatalf("side-by-side draw count = %d, want 2", len(draws))
	}

	left, right := draws[0], draws[1]
	if left.ScreenL != screenTopLeft || right.ScreenL != screenTopRight {
		t.Errorf("eye slots = (%d, %d), want (%d, %d)",
			left.ScreenL, right.ScreenL, screenTopLeft, screenTopRight)
	}
	if left.W != 300 || right.W != 300 {
		t.Errorf("eye widths = (%v, %v), want half-width 300", left.W, right.W)
	}
	if left.X != 50 || right.X != 450 {
		t.Errorf("eye x = (%v, %v), want (50, 450)", left.X, right.X)
	}
	if right.Layer != 1 {
		t.Errorf("right eye layer = %d, want 1", right.Layer)
	}
}

func TestTopScreenDrawsStereoShader(t *testing.T) {
	fb, region := testRegion()

	for _, mode := range []settings.StereoRender{settings.StereoAnaglyph, settings.StereoInterlaced, settings.StereoReverseInterlaced} {
		draws := topScreenDraws(mode, settings.MonoLeftEye, fb, region)
		if len(draws) != 1 {
			t.Fatalf("%v: draw count = %d, want 1", mode, len(draws))
		}
		d := draws[0]
		if !d.Stereo || d.ScreenL != screenTopLeft || d.ScreenR != screenTopRight {
			t.Errorf("%v: draw = %+v, want both eyes combined in the shader", mode, d)
		}
	}
}

func TestBottomScreenDrawsReuseSingleSlot(t *testing.T) {
	fb, region := testRegion()

	// The bottom screen has no right-eye image; every stereo mode samples
	// slot 2 for both eyes.
	draws := bottomScreenDraws(settings.StereoSideBySide, fb, region)
	if len(draws) != 2 {
		t.Fatalf("side-by-side draw count = %d, want 2", len(draws))
	}
	for i, d := range draws {
		if d.ScreenL != screenBottom {
			t.Errorf("draw %d samples slot %d, want %d", i, d.ScreenL, screenBottom)
		}
	}

	stereo := bottomScreenDraws(settings.StereoAnaglyph, fb, region)
	if len(stereo) != 1 || stereo[0].ScreenL != screenBottom || stereo[0].ScreenR != screenBottom {
		t.Errorf("anaglyph bottom draw = %+v, want slot %d for both eyes", stereo[0], screenBottom)
	}
}

func TestCardboardDrawsUseRecordedOffsets(t *testing.T) {
	fb := layout.FramebufferLayout{
		Width:  800,
		Height: 480,
		Cardboard: layout.Cardboard{
			TopScreenRightEye:    30,
			BottomScreenRightEye: 70,
		},
	}
	region := layout.Rect{Left: 30, Top: 0, Right: 370, Bottom: 204}

	top := topScreenDraws(settings.StereoCardboardVR, settings.MonoLeftEye, fb, region)
	if len(top) != 2 {
		t.Fatalf("cardboard top draw count = %d, want 2", len(top))
	}
	if top[1].X != 430 {
		t.Errorf("right eye x = %v, want offset 30 plus half frame 400", top[1].X)
	}

	bottom := bottomScreenDraws(settings.StereoCardboardVR, fb, region)
	if bottom[1].X != 470 {
		t.Errorf("bottom right eye x = %v, want offset 70 plus half frame 400", bottom[1].X)
	}
}
