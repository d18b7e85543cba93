// Package settings carries the read-only configuration signals consumed by
// the renderer. Values may be written from any thread (typically a frontend
// UI thread); the render thread reads them once per frame. One-shot change
// flags follow exchange semantics so every transition is observed exactly
// once.
package settings

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/emucore/vkpresent/layout"
)

// StereoRender selects how native stereoscopic output is presented on the
// host display.
type StereoRender int32

const (
	StereoOff StereoRender = iota
	StereoSideBySide
	StereoAnaglyph
	StereoInterlaced
	StereoReverseInterlaced
	StereoCardboardVR
)

func (s StereoRender) String() string {
	switch s {
	case StereoOff:
		return "Off"
	case StereoSideBySide:
		return "SideBySide"
	case StereoAnaglyph:
		return "Anaglyph"
	case StereoInterlaced:
		return "Interlaced"
	case StereoReverseInterlaced:
		return "ReverseInterlaced"
	case StereoCardboardVR:
		return "CardboardVR"
	}
	return "Unknown"
}

// MonoRender selects which eye fills the screen when stereo is off.
type MonoRender int32

const (
	MonoLeftEye MonoRender = iota
	MonoRightEye
)

// ScreenshotRequest is the single-slot mailbox payload for a capture. The
// output buffer must hold Layout.Width*Layout.Height*4 bytes. Done is invoked
// on the render thread after the buffer is filled.
type ScreenshotRequest struct {
	ID     uuid.UUID
	Layout layout.FramebufferLayout
	Output []byte
	Done   func()
}

// Settings is the shared configuration block. The zero value is usable:
// stereo off, left eye, linear filtering, black background, scale factor 1.
type Settings struct {
	render3D    atomic.Int32
	monoOption  atomic.Int32
	filterMode  atomic.Bool // true = linear, false = nearest
	swapScreen  atomic.Bool
	separateWin atomic.Bool

	bgRed   atomic.Uint32
	bgGreen atomic.Uint32
	bgBlue  atomic.Uint32

	scaleFactor atomic.Uint32

	bgColorUpdateRequested atomic.Bool
	shaderUpdateRequested  atomic.Bool

	screenshotRequested atomic.Bool
	screenshotMu        sync.Mutex
	screenshot          ScreenshotRequest
}

func (s *Settings) Render3D() StereoRender { return StereoRender(s.render3D.Load()) }

// SetRender3D changes the stereo mode and raises the shader-update flag so
// the renderer re-derives its active pipeline on the next frame.
func (s *Settings) SetRender3D(mode StereoRender) {
	s.render3D.Store(int32(mode))
	s.shaderUpdateRequested.Store(true)
}

func (s *Settings) MonoOption() MonoRender        { return MonoRender(s.monoOption.Load()) }
func (s *Settings) SetMonoOption(eye MonoRender)  { s.monoOption.Store(int32(eye)) }
func (s *Settings) FilterLinear() bool            { return s.filterMode.Load() }
func (s *Settings) SetFilterLinear(linear bool)   { s.filterMode.Store(linear) }
func (s *Settings) SwapScreen() bool              { return s.swapScreen.Load() }
func (s *Settings) SetSwapScreen(swap bool)       { s.swapScreen.Store(swap) }
func (s *Settings) SeparateWindows() bool         { return s.separateWin.Load() }
func (s *Settings) SetSeparateWindows(sep bool)   { s.separateWin.Store(sep) }

// ResolutionScale reports the internal resolution multiplier, never zero.
func (s *Settings) ResolutionScale() uint32 {
	if v := s.scaleFactor.Load(); v != 0 {
		return v
	}
	return 1
}

func (s *Settings) SetResolutionScale(factor uint32) { s.scaleFactor.Store(factor) }

// SetBackgroundColor stores the clear color and raises the one-shot update
// flag.
func (s *Settings) SetBackgroundColor(r, g, b float32) {
	s.bgRed.Store(math.Float32bits(r))
	s.bgGreen.Store(math.Float32bits(g))
	s.bgBlue.Store(math.Float32bits(b))
	s.bgColorUpdateRequested.Store(true)
}

func (s *Settings) BackgroundColor() (r, g, b float32) {
	return math.Float32frombits(s.bgRed.Load()),
		math.Float32frombits(s.bgGreen.Load()),
		math.Float32frombits(s.bgBlue.Load())
}

// ConsumeBackgroundColorUpdate reports whether a background-color change is
// pending and clears the flag.
func (s *Settings) ConsumeBackgroundColorUpdate() bool {
	return s.bgColorUpdateRequested.Swap(false)
}

// RequestShaderUpdate raises the pipeline-reload flag.
func (s *Settings) RequestShaderUpdate() { s.shaderUpdateRequested.Store(true) }

// ConsumeShaderUpdate reports whether a pipeline reload is pending and clears
// the flag.
func (s *Settings) ConsumeShaderUpdate() bool {
	return s.shaderUpdateRequested.Swap(false)
}

// RequestScreenshot arms the screenshot mailbox. A request already pending is
// replaced; it is never delivered twice.
func (s *Settings) RequestScreenshot(req ScreenshotRequest) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	s.screenshotMu.Lock()
	s.screenshot = req
	s.screenshotMu.Unlock()
	s.screenshotRequested.Store(true)
}

// ConsumeScreenshot takes the pending request, if any. The second return is
// false when no capture was requested since the last call.
func (s *Settings) ConsumeScreenshot() (ScreenshotRequest, bool) {
	if !s.screenshotRequested.Swap(false) {
		return ScreenshotRequest{}, false
	}
	s.screenshotMu.Lock()
	req := s.screenshot
	s.screenshot = ScreenshotRequest{}
	s.screenshotMu.Unlock()
	return req, true
}
