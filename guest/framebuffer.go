// Package guest describes the emulated display hardware as seen by the
// renderer: per-screen framebuffer descriptors, the LCD color-fill
// registers, and read access to framebuffer memory. The emulation core
// implements FramebufferSource; the renderer only ever reads.
package guest

import "github.com/cockroachdb/errors"

// PixelFormat mirrors the guest framebuffer color formats.
type PixelFormat uint32

const (
	FormatRGBA8 PixelFormat = iota
	FormatRGB8
	FormatRGB565
	FormatRGB5A1
	FormatRGBA4
)

// BytesPerPixel reports the guest storage size of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGBA8:
		return 4
	case FormatRGB8:
		return 3
	default:
		return 2
	}
}

func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatRGB8:
		return "RGB8"
	case FormatRGB565:
		return "RGB565"
	case FormatRGB5A1:
		return "RGB5A1"
	case FormatRGBA4:
		return "RGBA4"
	}
	return "Unknown"
}

// FramebufferConfig is one screen's display descriptor, read once per
// PrepareRendertarget call. Left/right eye addresses come in double-buffered
// pairs selected by ActiveFB.
type FramebufferConfig struct {
	AddressLeft1  uint32
	AddressLeft2  uint32
	AddressRight1 uint32
	AddressRight2 uint32

	Width  uint32
	Height uint32
	Stride uint32
	Format PixelFormat

	// ActiveFB selects which of the double-buffered addresses is scanned
	// out this frame (0 or 1).
	ActiveFB uint32
}

// EyeAddress resolves the active framebuffer address for the requested eye.
// A zero right-eye address falls back to the left eye.
func (c FramebufferConfig) EyeAddress(rightEye bool) uint32 {
	if c.AddressRight1 == 0 || c.AddressRight2 == 0 {
		rightEye = false
	}
	if c.ActiveFB == 0 {
		if rightEye {
			return c.AddressRight1
		}
		return c.AddressLeft1
	}
	if rightEye {
		return c.AddressRight2
	}
	return c.AddressLeft2
}

// ColorFill mirrors the LCD fill registers: when enabled, the screen shows a
// flat color and the framebuffer is not scanned out.
type ColorFill struct {
	Enabled bool
	R, G, B uint8
}

// FramebufferSource exposes the emulated display state to the renderer.
// Framebuffer and Fill take the hardware framebuffer index (0 = main LCD,
// 1 = sub LCD). ReadBlock returns a view of guest memory for the CPU upload
// path; the returned slice is only valid until the next emulated frame.
type FramebufferSource interface {
	Framebuffer(fbID int) FramebufferConfig
	Fill(fbID int) ColorFill
	ReadBlock(addr uint32, size int) []byte
}

// DecodeRGBA converts one guest framebuffer row-major block into tightly
// packed RGBA8. pixelStride is in pixels, not bytes. Used when the
// rasterizer cannot serve the display image directly.
func DecodeRGBA(format PixelFormat, src []byte, width, height, pixelStride int) ([]byte, error) {
	bpp := format.BytesPerPixel()
	need := pixelStride * height * bpp
	if len(src) < need {
		return nil, errors.Newf("framebuffer block too small: have %d bytes, need %d", len(src), need)
	}

	out := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		row := src[y*pixelStride*bpp:]
		for x := 0; x < width; x++ {
			px := row[x*bpp:]
			o := (y*width + x) * 4
			switch format {
			case FormatRGBA8:
				out[o+0] = px[3]
				out[o+1] = px[2]
				out[o+2] = px[1]
				out[o+3] = px[0]
			case FormatRGB8:
				out[o+0] = px[2]
				out[o+1] = px[1]
				out[o+2] = px[0]
				out[o+3] = 0xff
			case FormatRGB565:
				v := uint16(px[0]) | uint16(px[1])<<8
				out[o+0] = expand5(uint8(v >> 11))
				out[o+1] = expand6(uint8(v >> 5 & 0x3f))
				out[o+2] = expand5(uint8(v & 0x1f))
				out[o+3] = 0xff
			case FormatRGB5A1:
				v := uint16(px[0]) | uint16(px[1])<<8
				out[o+0] = expand5(uint8(v >> 11))
				out[o+1] = expand5(uint8(v >> 6 & 0x1f))
				out[o+2] = expand5(uint8(v >> 1 & 0x1f))
				if v&1 != 0 {
					out[o+3] = 0xff
				}
			case FormatRGBA4:
				v := uint16(px[0]) | uint16(px[1])<<8
				out[o+0] = expand4(uint8(v >> 12))
				out[o+1] = expand4(uint8(v >> 8 & 0xf))
				out[o+2] = expand4(uint8(v >> 4 & 0xf))
				out[o+3] = expand4(uint8(v & 0xf))
			}
		}
	}
	return out, nil
}

func expand4(v uint8) uint8 { return v<<4 | v }
func expand5(v uint8) uint8 { return v<<3 | v>>2 }
func expand6(v uint8) uint8 { return v<<2 | v>>4 }
