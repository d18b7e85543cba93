package settings

import (
	"testing"

	"github.com/google/uuid"

	"github.com/emucore/vkpresent/layout"
)

func TestZeroValueDefaults(t *testing.T) {
	var s Settings

	if s.Render3D() != StereoOff {
		t.Errorf("default stereo mode = %v, want StereoOff", s.Render3D())
	}
	if s.MonoOption() != MonoLeftEye {
		t.Errorf("default mono option = %v, want MonoLeftEye", s.MonoOption())
	}
	if s.ResolutionScale() != 1 {
		t.Errorf("default resolution scale = %d, want 1", s.ResolutionScale())
	}
	r, g, b := s.BackgroundColor()
	if r != 0 || g != 0 || b != 0 {
		t.Errorf("default background = (%v, %v, %v), want black", r, g, b)
	}
}

func TestResolutionScaleNeverZero(t *testing.T) {
	var s Settings
	s.SetResolutionScale(0)
	if s.ResolutionScale() != 1 {
		t.Errorf("scale after SetResolutionScale(0) = %d, want 1", s.ResolutionScale())
	}
	s.SetResolutionScale(4)
	if s.ResolutionScale() != 4 {
		t.Errorf("scale = %d, want 4", s.ResolutionScale())
	}
}

func TestBackgroundColorUpdateConsumedOnce(t *testing.T) {
	var s Settings

	if s.ConsumeBackgroundColorUpdate() {
		t.Error("background update pending before any change")
	}

	s.SetBackgroundColor(0.25, 0.5, 0.75)
	if !s.ConsumeBackgroundColorUpdate() {
		t.Fatal("background update not pending after SetBackgroundColor")
	}
	if s.ConsumeBackgroundColorUpdate() {
		t.Error("background update delivered twice")
	}

	r, g, b := s.BackgroundColor()
	if r != 0.25 || g != 0.5 || b != 0.75 {
		t.Errorf("background = (%v, %v, %v), want (0.25, 0.5, 0.75)", r, g, b)
	}
}

func TestSetRender3DRaisesShaderUpdate(t *testing.T) {
	var s Settings

	if s.ConsumeShaderUpdate() {
		t.Error("shader update pending before any change")
	}

	s.SetRender3D(StereoAnaglyph)
	if s.Render3D() != StereoAnaglyph {
		t.Errorf("stereo mode = %v, want StereoAnaglyph", s.Render3D())
	}
	if !s.ConsumeShaderUpdate() {
		t.Fatal("shader update not pending after SetRender3D")
	}
	if s.ConsumeShaderUpdate() {
		t.Error("shader update delivered twice")
	}
}

func TestScreenshotMailbox(t *testing.T) {
	var s Settings

	if _, ok := s.ConsumeScreenshot(); ok {
		t.Error("screenshot pending before any request")
	}

	first := ScreenshotRequest{
		Layout: layout.FramebufferLayout{Width: 100, Height: 50},
		Output: make([]byte, 100*50*4),
	}
	second := ScreenshotRequest{
		Layout: layout.FramebufferLayout{Width: 200, Height: 100},
		Output: make([]byte, 200*100*4),
	}

	s.RequestScreenshot(first)
	s.RequestScreenshot(second)

	req, ok := s.ConsumeScreenshot()
	if !ok {
		t.Fatal("screenshot not pending after request")
	}
	if req.Layout.Width != 200 {
		t.Errorf("delivered layout width = %d, want the replacing request's 200", req.Layout.Width)
	}
	if req.ID == uuid.Nil {
		t.Error("request was not assigned an ID")
	}

	if _, ok := s.ConsumeScreenshot(); ok {
		t.Error("screenshot delivered twice")
	}
}
