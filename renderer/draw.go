package renderer

import (
	"bytes"
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"

	"github.com/emucore/vkpresent/layout"
	"github.com/emucore/vkpresent/settings"
)

// Screen texture slots. Slot 0 and 1 are the top screen's left and right
// eyes; slot 2 is the bottom screen, which has no stereo pair.
const (
	screenTopLeft  = 0
	screenTopRight = 1
	screenBottom   = 2
)

// ScreenRectVertex is one corner of a screen quad, drawn as a four-vertex
// triangle strip.
type ScreenRectVertex struct {
	PosX float32
	PosY float32
	TexU float32
	TexV float32
}

const screenRectVertexSize = 16

// vertexBufferSize holds well more than a frame's worth of screen quads.
const vertexBufferSize = screenRectVertexSize * 8192

// texCoords is the active subrectangle of a screen texture. Guest textures
// are stored rotated, so u runs along the guest's vertical axis.
type texCoords struct {
	Left   float32
	Top    float32
	Right  float32
	Bottom float32
}

// DrawInfo is the push constant block shared by the vertex and fragment
// stages. Field order and alignment match the shader declaration.
type DrawInfo struct {
	Modelview         mgl32.Mat4
	IResolution       mgl32.Vec4
	OResolution       mgl32.Vec4
	ScreenIDL         int32
	ScreenIDR         int32
	Layer             int32
	ReverseInterlaced int32
}

const drawInfoSize = 64 + 16 + 16 + 4*4

// bytes serializes the block for CmdPushConstants.
func (i *DrawInfo) bytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, i); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// makeOrthographicMatrix maps framebuffer pixel coordinates to clip space
// with y increasing downward. The layout matches a vector-times-matrix
// multiply in the vertex shader.
func makeOrthographicMatrix(width, height float32) mgl32.Mat4 {
	return mgl32.Mat4{
		2 / width, 0, 0, -1,
		0, 2 / height, 0, -1,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// screenRectVertices builds the quad for one screen at the given output
// rectangle. For portrait orientations the guest image is rotated a quarter
// turn, so the returned output width and height are swapped relative to the
// inputs; they feed o_resolution, not the vertex positions. ok is false for
// an orientation the compositor does not know.
func screenRectVertices(x, y, w, h float32, tex texCoords,
	orientation layout.DisplayOrientation) (verts [4]ScreenRectVertex, outW, outH float32, ok bool) {

	switch orientation {
	case layout.Landscape:
		verts = [4]ScreenRectVertex{
			{x, y, tex.Bottom, tex.Left},
			{x + w, y, tex.Bottom, tex.Right},
			{x, y + h, tex.Top, tex.Left},
			{x + w, y + h, tex.Top, tex.Right},
		}
		return verts, w, h, true
	case layout.Portrait:
		verts = [4]ScreenRectVertex{
			{x, y, tex.Bottom, tex.Right},
			{x + w, y, tex.Top, tex.Right},
			{x, y + h, tex.Bottom, tex.Left},
			{x + w, y + h, tex.Top, tex.Left},
		}
		return verts, h, w, true
	case layout.LandscapeFlipped:
		verts = [4]ScreenRectVertex{
			{x, y, tex.Top, tex.Right},
			{x + w, y, tex.Top, tex.Left},
			{x, y + h, tex.Bottom, tex.Right},
			{x + w, y + h, tex.Bottom, tex.Left},
		}
		return verts, w, h, true
	case layout.PortraitFlipped:
		verts = [4]ScreenRectVertex{
			{x, y, tex.Top, tex.Left},
			{x + w, y, tex.Bottom, tex.Left},
			{x, y + h, tex.Top, tex.Right},
			{x + w, y + h, tex.Bottom, tex.Right},
		}
		return verts, h, w, true
	}
	return verts, w, h, false
}

// drawOrientation selects the vertex orientation for a layout. Rotated
// layouts present upright on a landscape host; flipped output mirrors the
// quad vertically.
func drawOrientation(rotated, flipped bool) layout.DisplayOrientation {
	switch {
	case rotated && flipped:
		return layout.LandscapeFlipped
	case rotated:
		return layout.Landscape
	case flipped:
		return layout.PortraitFlipped
	default:
		return layout.Portrait
	}
}

// pipelineForMode maps a stereo mode to the fragment shader variant that
// composites it, plus the interlace parity flag.
func pipelineForMode(mode settings.StereoRender) (index int, reverseInterlaced bool) {
	switch mode {
	case settings.StereoAnaglyph:
		return fragShaderAnaglyph, false
	case settings.StereoInterlaced:
		return fragShaderInterlaced, false
	case settings.StereoReverseInterlaced:
		return fragShaderInterlaced, true
	default:
		return fragShaderNormal, false
	}
}

// screenDraw is one planned quad: which texture slots it samples, where it
// lands in the output, and whether both eyes combine in the shader.
type screenDraw struct {
	ScreenL int
	ScreenR int
	X, Y    float32
	W, H    float32
	Layer   int32
	Stereo  bool
}

// topScreenDraws plans the top screen quads for the given region and stereo
// mode. The region is layout.TopScreen or, for the one-screen-per-window
// mode, layout.AdditionalScreen.
func topScreenDraws(mode settings.StereoRender, mono settings.MonoRender,
	fb layout.FramebufferLayout, region layout.Rect) []screenDraw {

	x := float32(region.Left)
	y := float32(region.Top)
	w := float32(region.Width())
	h := float32(region.Height())
	halfFrame := float32(fb.Width) / 2

	switch mode {
	case settings.StereoOff:
		eye := screenTopLeft
		if mono == settings.MonoRightEye {
			eye = screenTopRight
		}
		return []screenDraw{{ScreenL: eye, X: x, Y: y, W: w, H: h}}
	case settings.StereoSideBySide:
		return []screenDraw{
			{ScreenL: screenTopLeft, X: x / 2, Y: y, W: w / 2, H: h},
			{ScreenL: screenTopRight, X: x/2 + halfFrame, Y: y, W: w / 2, H: h, Layer: 1},
		}
	case settings.StereoCardboardVR:
		rightX := float32(fb.Cardboard.TopScreenRightEye) + halfFrame
		return []screenDraw{
			{ScreenL: screenTopLeft, X: x, Y: y, W: w, H: h},
			{ScreenL: screenTopRight, X: rightX, Y: y, W: w, H: h, Layer: 1},
		}
	default:
		return []screenDraw{{
			ScreenL: screenTopLeft, ScreenR: screenTopRight,
			X: x, Y: y, W: w, H: h, Stereo: true,
		}}
	}
}

// bottomScreenDraws plans the bottom screen quads. The bottom screen has a
// single source image, so every stereo mode reuses slot 2 for both eyes.
func bottomScreenDraws(mode settings.StereoRender,
	fb layout.FramebufferLayout, region layout.Rect) []screenDraw {

	x := float32(region.Left)
	y := float32(region.Top)
	w := float32(region.Width())
	h := float32(region.Height())
	halfFrame := float32(fb.Width) / 2

	switch mode {
	case settings.StereoOff:
		return []screenDraw{{ScreenL: screenBottom, X: x, Y: y, W: w, H: h}}
	case settings.StereoSideBySide:
		return []screenDraw{
			{ScreenL: screenBottom, X: x / 2, Y: y, W: w / 2, H: h},
			{ScreenL: screenBottom, X: x/2 + halfFrame, Y: y, W: w / 2, H: h, Layer: 1},
		}
	case settings.StereoCardboardVR:
		rightX := float32(fb.Cardboard.BottomScreenRightEye) + halfFrame
		return []screenDraw{
			{ScreenL: screenBottom, X: x, Y: y, W: w, H: h},
			{ScreenL: screenBottom, X: rightX, Y: y, W: w, H: h, Layer: 1},
		}
	default:
		return []screenDraw{{
			ScreenL: screenBottom, ScreenR: screenBottom,
			X: x, Y: y, W: w, H: h, Stereo: true,
		}}
	}
}
