package main

import "testing"

func TestTestPatternSourceDoubleBuffers(t *testing.T) {
	s := newTestPatternSource()

	before := s.Framebuffer(0)
	s.Advance()
	after := s.Framebuffer(0)

	if before.ActiveFB == after.ActiveFB {
		t.Error("Advance must flip the active framebuffer")
	}
}

func TestTestPatternSourceReadBlock(t *testing.T) {
	s := newTestPatternSource()
	fb := s.Framebuffer(0)

	size := int(fb.Stride * fb.Height)
	block := s.ReadBlock(fb.EyeAddress(false), size)
	if len(block) != size {
		t.Fatalf("block length = %d, want %d", len(block), size)
	}

	if s.ReadBlock(0xdeadbeef, 16) != nil {
		t.Error("unknown address must return nil")
	}
}

func TestTestPatternSourceEyesDiffer(t *testing.T) {
	s := newTestPatternSource()
	fb := s.Framebuffer(0)

	left := s.ReadBlock(fb.EyeAddress(false), 64)
	right := s.ReadBlock(fb.EyeAddress(true), 64)

	same := true
	for i := range left {
		if left[i] != right[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("the eyes should carry different patterns for stereo parallax")
	}
}
