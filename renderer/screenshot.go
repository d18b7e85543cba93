package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// RenderScreenshot serves a pending capture request, if any. The layout is
// composited into an offscreen frame, copied to a host-visible staging
// buffer, and written into the request's output buffer. The request's Done
// callback runs on the render thread.
func (c *Compositor) RenderScreenshot() error {
	req, ok := c.settings.ConsumeScreenshot()
	if !ok {
		return nil
	}

	width := int(req.Layout.Width)
	height := int(req.Layout.Height)
	size := width * height * 4
	if len(req.Output) < size {
		return errors.Newf("screenshot buffer too small: have %d bytes, need %d", len(req.Output), size)
	}

	staging, stagingMemory, err := c.dev.CreateBuffer(size,
		core1_0.BufferUsageTransferDst,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		fatalf("allocating screenshot staging buffer", "error", err)
	}
	defer func() {
		c.dev.Driver.DestroyBuffer(staging, nil)
		c.dev.Driver.FreeMemory(stagingMemory, nil)
	}()

	frame := &Frame{}
	if err := createFrameImage(c.dev, c.passes, frame, width, height); err != nil {
		return err
	}
	defer destroyFrameImage(c.dev, frame)

	if err := c.DrawScreens(frame, req.Layout, false); err != nil {
		return err
	}

	image := frame.Image
	c.scheduler.Record(func(driver core1_0.CoreDeviceDriver, cmd core1_0.CommandBuffer) {
		fullRange := core1_0.ImageSubresourceRange{
			AspectMask: core1_0.ImageAspectColor,
			LevelCount: 1,
			LayerCount: 1,
		}

		driver.CmdPipelineBarrier(cmd,
			core1_0.PipelineStageAllCommands, core1_0.PipelineStageTransfer,
			core1_0.DependencyByRegion, nil, nil,
			[]core1_0.ImageMemoryBarrier{
				{
					SrcAccessMask:       core1_0.AccessMemoryWrite,
					DstAccessMask:       core1_0.AccessTransferRead,
					OldLayout:           core1_0.ImageLayoutTransferSrcOptimal,
					NewLayout:           core1_0.ImageLayoutTransferSrcOptimal,
					SrcQueueFamilyIndex: -1,
					DstQueueFamilyIndex: -1,
					Image:               image,
					SubresourceRange:    fullRange,
				},
			})

		driver.CmdCopyImageToBuffer(cmd, image, core1_0.ImageLayoutTransferSrcOptimal, staging,
			core1_0.BufferImageCopy{
				ImageSubresource: core1_0.ImageSubresourceLayers{
					AspectMask: core1_0.ImageAspectColor,
					LayerCount: 1,
				},
				ImageExtent: core1_0.Extent3D{Width: width, Height: height, Depth: 1},
			})

		driver.CmdPipelineBarrier(cmd,
			core1_0.PipelineStageTransfer, core1_0.PipelineStageAllCommands,
			core1_0.DependencyByRegion,
			[]core1_0.MemoryBarrier{
				{
					SrcAccessMask: core1_0.AccessMemoryWrite,
					DstAccessMask: core1_0.AccessMemoryRead | core1_0.AccessMemoryWrite,
				},
			}, nil,
			[]core1_0.ImageMemoryBarrier{
				{
					SrcAccessMask:       core1_0.AccessTransferRead,
					DstAccessMask:       core1_0.AccessMemoryWrite,
					OldLayout:           core1_0.ImageLayoutTransferSrcOptimal,
					NewLayout:           core1_0.ImageLayoutTransferSrcOptimal,
					SrcQueueFamilyIndex: -1,
					DstQueueFamilyIndex: -1,
					Image:               image,
					SubresourceRange:    fullRange,
				},
			})
	})

	// The copy must fully retire before the host reads the staging memory.
	if err := c.scheduler.Finish(); err != nil {
		return err
	}

	if err := c.dev.ReadBytes(stagingMemory, 0, req.Output[:size]); err != nil {
		return err
	}

	logger().Info("screenshot captured", "id", req.ID, "width", width, "height", height)
	if req.Done != nil {
		req.Done()
	}
	return nil
}
