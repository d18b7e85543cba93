package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/emucore/vkpresent/device"
)

// RenderPassCache caches render passes by color format and tracks whether a
// draw pass is currently open, so the end-pass command is recorded exactly
// once no matter how many components ask for it.
type RenderPassCache struct {
	dev       *device.GraphicsDevice
	scheduler *Scheduler

	passes map[core1_0.Format]core1_0.RenderPass
	active bool
}

func NewRenderPassCache(dev *device.GraphicsDevice, scheduler *Scheduler) *RenderPassCache {
	return &RenderPassCache{
		dev:       dev,
		scheduler: scheduler,
		passes:    make(map[core1_0.Format]core1_0.RenderPass),
	}
}

// RenderPass returns the single-subpass present pass for the format,
// creating it on first use. The pass clears on load and leaves the target
// in transfer-source layout so the present blit and the screenshot copy can
// read it without another transition.
func (c *RenderPassCache) RenderPass(format core1_0.Format) (core1_0.RenderPass, error) {
	if pass, ok := c.passes[format]; ok {
		return pass, nil
	}

	pass, _, err := c.dev.Driver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutTransferSrcOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	})
	if err != nil {
		return core1_0.RenderPass{}, errors.Wrapf(err, "creating render pass for format %s", format)
	}

	c.passes[format] = pass
	return pass, nil
}

// MarkRendering notes that a draw pass has been opened by recorded work.
func (c *RenderPassCache) MarkRendering() { c.active = true }

// Rendering reports whether a draw pass is currently open.
func (c *RenderPassCache) Rendering() bool { return c.active }

// EndRendering records the end of the open draw pass, if any. Idempotent.
func (c *RenderPassCache) EndRendering() {
	if !c.active {
		return
	}
	c.active = false
	c.scheduler.Record(func(driver core1_0.CoreDeviceDriver, cmd core1_0.CommandBuffer) {
		driver.CmdEndRenderPass(cmd)
	})
}

// Destroy releases all cached passes.
func (c *RenderPassCache) Destroy() {
	for format, pass := range c.passes {
		c.dev.Driver.DestroyRenderPass(pass, nil)
		delete(c.passes, format)
	}
}
