package renderer

import "testing"

func TestEndRenderingIdempotent(t *testing.T) {
	scheduler := NewScheduler(nil)
	passes := NewRenderPassCache(nil, scheduler)

	if passes.Rendering() {
		t.Fatal("fresh cache must not report an open pass")
	}

	// Ending a pass that was never opened records nothing.
	passes.EndRendering()
	if scheduler.recordedLen() != 0 {
		t.Errorf("recorded %d commands without an open pass, want 0", scheduler.recordedLen())
	}

	passes.MarkRendering()
	if !passes.Rendering() {
		t.Fatal("MarkRendering must report an open pass")
	}

	passes.EndRendering()
	passes.EndRendering()
	if scheduler.recordedLen() != 1 {
		t.Errorf("recorded %d end-pass commands, want exactly 1", scheduler.recordedLen())
	}
	if passes.Rendering() {
		t.Error("pass still reported open after EndRendering")
	}
}
