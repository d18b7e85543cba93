package guest

import (
	"bytes"
	"testing"
)

func TestBytesPerPixel(t *testing.T) {
	cases := []struct {
		format PixelFormat
		want   int
	}{
		{FormatRGBA8, 4},
		{FormatRGB8, 3},
		{FormatRGB565, 2},
		{FormatRGB5A1, 2},
		{FormatRGBA4, 2},
	}
	for _, tc := range cases {
		if got := tc.format.BytesPerPixel(); got != tc.want {
			t.Errorf("%s: BytesPerPixel() = %d, want %d", tc.format, got, tc.want)
		}
	}
}

func TestEyeAddressDoubleBuffering(t *testing.T) {
	c := FramebufferConfig{
		AddressLeft1:  0x100,
		AddressLeft2:  0x200,
		AddressRight1: 0x300,
		AddressRight2: 0x400,
	}

	if got := c.EyeAddress(false); got != 0x100 {
		t.Errorf("left eye, fb 0 = %#x, want 0x100", got)
	}
	if got := c.EyeAddress(true); got != 0x300 {
		t.Errorf("right eye, fb 0 = %#x, want 0x300", got)
	}

	c.ActiveFB = 1
	if got := c.EyeAddress(false); got != 0x200 {
		t.Errorf("left eye, fb 1 = %#x, want 0x200", got)
	}
	if got := c.EyeAddress(true); got != 0x400 {
		t.Errorf("right eye, fb 1 = %#x, want 0x400", got)
	}
}

func TestEyeAddressRightFallsBackToLeft(t *testing.T) {
	c := FramebufferConfig{
		AddressLeft1: 0x100,
		AddressLeft2: 0x200,
	}
	if got := c.EyeAddress(true); got != 0x100 {
		t.Errorf("right eye without right buffers = %#x, want left address 0x100", got)
	}
}

func TestDecodeRGBAFormats(t *testing.T) {
	cases := []struct {
		name   string
		format PixelFormat
		src    []byte
		want   []byte
	}{
		{
			// Stored byte-reversed: A, B, G, R.
			name:   "RGBA8",
			format: FormatRGBA8,
			src:    []byte{0x44, 0x33, 0x22, 0x11},
			want:   []byte{0x11, 0x22, 0x33, 0x44},
		},
		{
			name:   "RGB8",
			format: FormatRGB8,
			src:    []byte{0x33, 0x22, 0x11},
			want:   []byte{0x11, 0x22, 0x33, 0xff},
		},
		{
			// Pure red: 11111 000000 00000.
			name:   "RGB565 red",
			format: FormatRGB565,
			src:    []byte{0x00, 0xf8},
			want:   []byte{0xff, 0x00, 0x00, 0xff},
		},
		{
			// Pure green with full 6-bit expansion.
			name:   "RGB565 green",
			format: FormatRGB565,
			src:    []byte{0xe0, 0x07},
			want:   []byte{0x00, 0xff, 0x00, 0xff},
		},
		{
			// Alpha bit clear.
			name:   "RGB5A1 transparent",
			format: FormatRGB5A1,
			src:    []byte{0x00, 0xf8},
			want:   []byte{0xff, 0x00, 0x00, 0x00},
		},
		{
			name:   "RGBA4",
			format: FormatRGBA4,
			src:    []byte{0x2f, 0xf0},
			want:   []byte{0xff, 0x00, 0x22, 0xff},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeRGBA(tc.format, tc.src, 1, 1, 1)
			if err != nil {
				t.Fatalf("DecodeRGBA: %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("decoded = %x, want %x", got, tc.want)
			}
		})
	}
}

func TestDecodeRGBAStrideSkipsPadding(t *testing.T) {
	// 2x2 RGB8 image with a pixel stride of 3: one pixel of padding per row.
	src := []byte{
		1, 1, 1, 2, 2, 2, 9, 9, 9,
		3, 3, 3, 4, 4, 4, 9, 9, 9,
	}
	got, err := DecodeRGBA(FormatRGB8, src, 2, 2, 3)
	if err != nil {
		t.Fatalf("DecodeRGBA: %v", err)
	}
	want := []byte{
		1, 1, 1, 0xff, 2, 2, 2, 0xff,
		3, 3, 3, 0xff, 4, 4, 4, 0xff,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("decoded = %v, want %v", got, want)
	}
}

func TestDecodeRGBAShortBuffer(t *testing.T) {
	_, err := DecodeRGBA(FormatRGBA8, make([]byte, 8), 2, 2, 2)
	if err == nil {
		t.Fatal("expected an error for a short source buffer")
	}
}
