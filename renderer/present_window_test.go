package renderer

import (
	"testing"

	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestImageCountBeforeAndAfterSwapchain(t *testing.T) {
	w := &PresentWindow{}

	if got := w.ImageCount(); got != frameRingSize {
		t.Errorf("image count without swapchain = %d, want ring depth %d", got, frameRingSize)
	}

	w.swapchainImages = make([]core1_0.Image, 3)
	if got := w.ImageCount(); got != 3 {
		t.Errorf("image count with swapchain = %d, want 3", got)
	}
}

func TestPollEventsWithoutWindowIsNoop(t *testing.T) {
	w := &PresentWindow{}
	// A windowless instance must not reach into SDL.
	w.PollEvents()
}
