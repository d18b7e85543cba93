package main

import (
	"math"

	"github.com/emucore/vkpresent/guest"
)

// Simulated VRAM addresses for the double-buffered screens. The values only
// need to be distinct and non-zero; the source resolves them back to its own
// backing slices.
const (
	topLeftAddr1    = 0x18000000
	topLeftAddr2    = 0x18080000
	topRightAddr1   = 0x18100000
	topRightAddr2   = 0x18180000
	bottomAddr1     = 0x18200000
	bottomAddr2     = 0x18280000
	addrRegionSize  = 0x00080000
	simulatedFormat = guest.FormatRGB565
)

// Native panel sizes as the guest sees them: the panels are mounted rotated,
// so width is the short edge.
const (
	topWidth     = 240
	topHeight    = 400
	bottomWidth  = 240
	bottomHeight = 320
)

// testPatternSource is a stand-in emulation core that scans out animated
// test patterns. Each Advance regenerates the active framebuffers and flips
// the double buffer, exercising the same paths a real core would.
type testPatternSource struct {
	regions map[uint32][]byte
	active  uint32
	phase   float64
}

func newTestPatternSource() *testPatternSource {
	bpp := simulatedFormat.BytesPerPixel()
	s := &testPatternSource{
		regions: map[uint32][]byte{
			topLeftAddr1:  make([]byte, topWidth*topHeight*bpp),
			topLeftAddr2:  make([]byte, topWidth*topHeight*bpp),
			topRightAddr1: make([]byte, topWidth*topHeight*bpp),
			topRightAddr2: make([]byte, topWidth*topHeight*bpp),
			bottomAddr1:   make([]byte, bottomWidth*bottomHeight*bpp),
			bottomAddr2:   make([]byte, bottomWidth*bottomHeight*bpp),
		},
	}
	s.Advance()
	return s
}

// Advance renders the next animation step into the back buffers and flips.
func (s *testPatternSource) Advance() {
	s.phase += 1.0 / 60.0
	back := 1 - s.active

	s.fillPattern(s.eyeAddr(topLeftAddr1, topLeftAddr2, back), topWidth, topHeight, 0)
	s.fillPattern(s.eyeAddr(topRightAddr1, topRightAddr2, back), topWidth, topHeight, 0.04)
	s.fillPattern(s.eyeAddr(bottomAddr1, bottomAddr2, back), bottomWidth, bottomHeight, 0.5)

	s.active = back
}

func (s *testPatternSource) eyeAddr(addr1, addr2, fb uint32) uint32 {
	if fb == 0 {
		return addr1
	}
	return addr2
}

// fillPattern writes a moving color gradient in RGB565. The eye offset
// shifts the pattern slightly so stereo modes have visible parallax.
func (s *testPatternSource) fillPattern(addr uint32, width, height int, eyeOffset float64) {
	buf := s.regions[addr]
	t := s.phase + eyeOffset

	for y := 0; y < height; y++ {
		fy := float64(y) / float64(height)
		for x := 0; x < width; x++ {
			fx := float64(x) / float64(width)

			r := uint16((0.5 + 0.5*math.Sin(2*math.Pi*(fx+t))) * 31)
			g := uint16((0.5 + 0.5*math.Sin(2*math.Pi*(fy+t*0.7))) * 63)
			b := uint16((0.5 + 0.5*math.Sin(2*math.Pi*(fx+fy-t))) * 31)
			v := r<<11 | g<<5 | b

			o := (y*width + x) * 2
			buf[o] = byte(v)
			buf[o+1] = byte(v >> 8)
		}
	}
}

func (s *testPatternSource) Framebuffer(fbID int) guest.FramebufferConfig {
	bpp := uint32(simulatedFormat.BytesPerPixel())
	if fbID == 1 {
		return guest.FramebufferConfig{
			AddressLeft1: bottomAddr1,
			AddressLeft2: bottomAddr2,
			Width:        bottomWidth,
			Height:       bottomHeight,
			Stride:       bottomWidth * bpp,
			Format:       simulatedFormat,
			ActiveFB:     s.active,
		}
	}
	return guest.FramebufferConfig{
		AddressLeft1:  topLeftAddr1,
		AddressLeft2:  topLeftAddr2,
		AddressRight1: topRightAddr1,
		AddressRight2: topRightAddr2,
		Width:         topWidth,
		Height:        topHeight,
		Stride:        topWidth * bpp,
		Format:        simulatedFormat,
		ActiveFB:      s.active,
	}
}

func (s *testPatternSource) Fill(fbID int) guest.ColorFill {
	return guest.ColorFill{}
}

func (s *testPatternSource) ReadBlock(addr uint32, size int) []byte {
	base := addr &^ (addrRegionSize - 1)
	region, ok := s.regions[base]
	if !ok {
		return nil
	}
	offset := int(addr - base)
	if offset+size > len(region) {
		size = len(region) - offset
	}
	return region[offset : offset+size]
}
