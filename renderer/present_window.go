package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/emucore/vkpresent/device"
)

// frameRingSize is the number of composited frames that can exist between
// the render thread and presentation.
const frameRingSize = 2

// frameFormat is the color format of every composited frame. Guest content
// is decoded to RGBA8 before it ever reaches a frame.
const frameFormat = core1_0.FormatR8G8B8A8UnsignedNormalized

// Frame is one composited output image. The compositor draws into it
// through its framebuffer, then presentation blits it to a swapchain image
// once RenderReady is signaled.
type Frame struct {
	Width  int
	Height int

	Image       core1_0.Image
	Memory      core1_0.DeviceMemory
	View        core1_0.ImageView
	Framebuffer core1_0.Framebuffer

	// RenderReady is signaled by the compositor's flush and waited on by
	// the present blit.
	RenderReady core1_0.Semaphore

	// PresentDone is signaled when the blit consuming this frame retires,
	// making the frame safe to re-record.
	PresentDone core1_0.Fence

	pending bool
}

// PresentWindow owns one OS window, its surface and swapchain, and the ring
// of composited frames presented into it. All methods run on the render
// thread.
type PresentWindow struct {
	dev    *device.GraphicsDevice
	passes *RenderPassCache

	window  *sdl.Window
	surface khr_surface.Surface

	swapchainExt    khr_swapchain.ExtensionDriver
	swapchain       khr_swapchain.Swapchain
	swapchainImages []core1_0.Image
	surfaceFormat   khr_surface.SurfaceFormat
	extent          core1_0.Extent2D

	pool        core1_0.CommandPool
	blitBuffers []core1_0.CommandBuffer
	blitDone    []core1_0.Semaphore

	imageAvailable [frameRingSize]core1_0.Semaphore
	frames         [frameRingSize]Frame
	cursor         int
}

// NewPresentWindow wraps an SDL window whose Vulkan surface was already
// created by the frontend. The swapchain is built on first present.
func NewPresentWindow(dev *device.GraphicsDevice, passes *RenderPassCache,
	window *sdl.Window, surface khr_surface.Surface) *PresentWindow {

	return &PresentWindow{
		dev:     dev,
		passes:  passes,
		window:  window,
		surface: surface,
	}
}

// PixelSize reports the window's drawable size in pixels.
func (w *PresentWindow) PixelSize() (int, int) {
	if w.window == nil {
		return 0, 0
	}
	width, height := w.window.VulkanGetDrawableSize()
	return int(width), int(height)
}

/// ImageCount reports the number of presentable images: the swapchain's
// image count once it exists, the frame ring depth before that.
func (w *PresentWindow) ImageCount() int {
	if len(w.swapchainImages) > 0 {
		return len(w.swapchainImages)
	}
	return frameRingSize
}

// PollEvents pumps the window's pending OS events so a secondary display
// window stays responsive between frontend polls.
func (w *PresentWindow) PollEvents() {
	if w.window == nil {
		return
	}
	sdl.PumpEvents()
}

// GetRenderFrame returns the next frame in the ring, blocking until any
// previous presentation of that frame has retired on the device.
func (w *PresentWindow) GetRenderFrame() (*Frame, error) {
	frame := &w.frames[w.cursor]
	w.cursor = (w.cursor + 1) % frameRingSize

	if err := w.waitFrame(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (w *PresentWindow) waitFrame(frame *Frame) error {
	if !frame.pending {
		return nil
	}
	_, err := w.dev.Driver.WaitForFences(true, common.NoTimeout, frame.PresentDone)
	if err != nil {
		return err
	}
	_, err = w.dev.Driver.ResetFences(frame.PresentDone)
	if err != nil {
		return err
	}
	frame.pending = false
	return nil
}

// WaitPresent blocks until every in-flight presentation retires. Callers
// use it before destroying or resizing frame images.
func (w *PresentWindow) WaitPresent() error {
	for i := range w.frames {
		if err := w.waitFrame(&w.frames[i]); err != nil {
			return err
		}
	}
	return nil
}

// RecreateFrame rebuilds a frame's image and framebuffer at the given size.
// The previous presentation of this frame must have retired.
func (w *PresentWindow) RecreateFrame(frame *Frame, width, height int) error {
	destroyFrameImage(w.dev, frame)

	if !frame.RenderReady.Initialized() {
		semaphore, _, err := w.dev.Driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "creating frame render semaphore")
		}
		frame.RenderReady = semaphore

		fence, _, err := w.dev.Driver.CreateFence(nil, core1_0.FenceCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "creating frame present fence")
		}
		frame.PresentDone = fence
	}

	return createFrameImage(w.dev, w.passes, frame, width, height)
}

// createFrameImage allocates a frame's color image, view, and framebuffer.
// Also used for offscreen frames that are never presented.
func createFrameImage(dev *device.GraphicsDevice, passes *RenderPassCache,
	frame *Frame, width, height int) error {

	image, memory, err := dev.CreateImage(width, height, frameFormat,
		core1_0.ImageUsageColorAttachment|core1_0.ImageUsageTransferSrc,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return errors.Wrapf(err, "allocating %dx%d frame image", width, height)
	}

	view, err := dev.CreateImageView(image, frameFormat)
	if err != nil {
		return errors.Wrap(err, "creating frame image view")
	}

	pass, err := passes.RenderPass(frameFormat)
	if err != nil {
		return err
	}

	framebuffer, _, err := dev.Driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  pass,
		Layers:      1,
		Attachments: []core1_0.ImageView{view},
		Width:       width,
		Height:      height,
	})
	if err != nil {
		return errors.Wrap(err, "creating frame framebuffer")
	}

	frame.Width = width
	frame.Height = height
	frame.Image = image
	frame.Memory = memory
	frame.View = view
	frame.Framebuffer = framebuffer
	return nil
}

func destroyFrameImage(dev *device.GraphicsDevice, frame *Frame) {
	if frame.Framebuffer.Initialized() {
		dev.Driver.DestroyFramebuffer(frame.Framebuffer, nil)
		frame.Framebuffer = core1_0.Framebuffer{}
	}
	if frame.View.Initialized() {
		dev.Driver.DestroyImageView(frame.View, nil)
		frame.View = core1_0.ImageView{}
	}
	if frame.Image.Initialized() {
		dev.Driver.DestroyImage(frame.Image, nil)
		dev.Driver.FreeMemory(frame.Memory, nil)
		frame.Image = core1_0.Image{}
		frame.Memory = core1_0.DeviceMemory{}
	}
	frame.Width = 0
	frame.Height = 0
}

func (w *PresentWindow) ensureSwapchain() error {
	if w.swapchain.Initialized() {
		return nil
	}
	return w.createSwapchain()
}

func (w *PresentWindow) createSwapchain() error {
	if w.swapchainExt == nil {
		w.swapchainExt = khr_swapchain.CreateExtensionDriverFromCoreDriver(w.dev.Driver)
	}

	capabilities, _, err := w.dev.SurfaceExtension.GetPhysicalDeviceSurfaceCapabilities(w.surface, w.dev.Physical)
	if err != nil {
		return errors.Wrap(err, "querying surface capabilities")
	}
	formats, _, err := w.dev.SurfaceExtension.GetPhysicalDeviceSurfaceFormats(w.surface, w.dev.Physical)
	if err != nil {
		return errors.Wrap(err, "querying surface formats")
	}
	presentModes, _, err := w.dev.SurfaceExtension.GetPhysicalDeviceSurfacePresentModes(w.surface, w.dev.Physical)
	if err != nil {
		return errors.Wrap(err, "querying surface present modes")
	}

	w.surfaceFormat = chooseSurfaceFormat(formats)
	presentMode := choosePresentMode(presentModes)
	w.extent = w.chooseExtent(capabilities)

	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if w.dev.GraphicsFamily != w.dev.PresentFamily {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = []int{w.dev.GraphicsFamily, w.dev.PresentFamily}
	}

	swapchain, _, err := w.swapchainExt.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: w.surface,

		MinImageCount:    imageCount,
		ImageFormat:      w.surfaceFormat.Format,
		ImageColorSpace:  w.surfaceFormat.ColorSpace,
		ImageExtent:      w.extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageTransferDst,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return errors.Wrap(err, "creating swapchain")
	}
	w.swapchain = swapchain

	images, _, err := w.swapchainExt.GetSwapchainImages(w.swapchain)
	if err != nil {
		return errors.Wrap(err, "querying swapchain images")
	}
	w.swapchainImages = images

	return w.createBlitResources(len(images))
}

func (w *PresentWindow) createBlitResources(imageCount int) error {
	w.destroyBlitResources()

	pool, _, err := w.dev.Driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: w.dev.GraphicsFamily,
		Flags:            core1_0.CommandPoolCreateResetBuffer,
	})
	if err != nil {
		return errors.Wrap(err, "creating present command pool")
	}
	w.pool = pool

	buffers, _, err := w.dev.Driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        w.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: imageCount,
	})
	if err != nil {
		return errors.Wrap(err, "allocating present command buffers")
	}
	w.blitBuffers = buffers

	for i := 0; i < imageCount; i++ {
		semaphore, _, err := w.dev.Driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "creating present semaphore")
		}
		w.blitDone = append(w.blitDone, semaphore)
	}

	for i := range w.imageAvailable {
		if w.imageAvailable[i].Initialized() {
			continue
		}
		semaphore, _, err := w.dev.Driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "creating acquire semaphore")
		}
		w.imageAvailable[i] = semaphore
	}
	return nil
}

func (w *PresentWindow) destroyBlitResources() {
	for _, semaphore := range w.blitDone {
		w.dev.Driver.DestroySemaphore(semaphore, nil)
	}
	w.blitDone = nil
	w.blitBuffers = nil
	if w.pool.Initialized() {
		w.dev.Driver.DestroyCommandPool(w.pool, nil)
		w.pool = core1_0.CommandPool{}
	}
}

func (w *PresentWindow) recreateSwapchain() error {
	if err := w.dev.WaitIdle(); err != nil {
		return err
	}
	w.destroySwapchain()
	return w.createSwapchain()
}

func (w *PresentWindow) destroySwapchain() {
	w.destroyBlitResources()
	if w.swapchain.Initialized() {
		w.swapchainExt.DestroySwapchain(w.swapchain, nil)
		w.swapchain = khr_swapchain.Swapchain{}
	}
	w.swapchainImages = nil
}

// Present blits the frame into the next swapchain image and queues it for
// display. The blit waits on both the acquire semaphore and the frame's
// RenderReady semaphore and signals the frame's PresentDone fence. An
// out-of-date swapchain is rebuilt and the frame dropped for this vblank.
func (w *PresentWindow) Present(frame *Frame) error {
	if err := w.ensureSwapchain(); err != nil {
		return err
	}

	acquire := w.imageAvailable[w.cursor]
	imageIndex, res, err := w.swapchainExt.AcquireNextImage(w.swapchain, common.NoTimeout, &acquire, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		logger().Debug("swapchain out of date on acquire, recreating")
		if err := w.recreateSwapchain(); err != nil {
			return err
		}
		// The frame's flush already signaled RenderReady, but no blit will
		// consume it this vblank. A binary semaphore cannot be reset from
		// the host, so rebuild it before the next signal.
		return w.resetRenderReady(frame)
	} else if err != nil {
		return errors.Wrap(err, "acquiring swapchain image")
	}

	cmdbuf := w.blitBuffers[imageIndex]
	if err := w.recordBlit(cmdbuf, frame, w.swapchainImages[imageIndex]); err != nil {
		return err
	}

	_, err = w.dev.Driver.QueueSubmit(w.dev.GraphicsQueue, &frame.PresentDone, core1_0.SubmitInfo{
		WaitSemaphores: []core1_0.Semaphore{acquire, frame.RenderReady},
		WaitDstStageMask: []core1_0.PipelineStageFlags{
			core1_0.PipelineStageTransfer,
			core1_0.PipelineStageTransfer,
		},
		CommandBuffers:   []core1_0.CommandBuffer{cmdbuf},
		SignalSemaphores: []core1_0.Semaphore{w.blitDone[imageIndex]},
	})
	if err != nil {
		return errors.Wrap(err, "submitting present blit")
	}
	frame.pending = true

	res, err = w.swapchainExt.QueuePresent(w.dev.PresentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{w.blitDone[imageIndex]},
		Swapchains:     []khr_swapchain.Swapchain{w.swapchain},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		logger().Debug("swapchain stale on present, recreating")
		if err := w.waitFrame(frame); err != nil {
			return err
		}
		return w.recreateSwapchain()
	}
	if err != nil {
		return errors.Wrap(err, "presenting swapchain image")
	}
	return nil
}

// resetRenderReady replaces a frame's render semaphore. The device must be
// idle so the signaling submission has retired.
func (w *PresentWindow) resetRenderReady(frame *Frame) error {
	if frame.RenderReady.Initialized() {
		w.dev.Driver.DestroySemaphore(frame.RenderReady, nil)
		frame.RenderReady = core1_0.Semaphore{}
	}
	semaphore, _, err := w.dev.Driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return errors.Wrap(err, "recreating frame render semaphore")
	}
	frame.RenderReady = semaphore
	return nil
}

func (w *PresentWindow) recordBlit(cmdbuf core1_0.CommandBuffer, frame *Frame, target core1_0.Image) error {
	_, err := w.dev.Driver.BeginCommandBuffer(cmdbuf, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "beginning present command buffer")
	}

	fullRange := core1_0.ImageSubresourceRange{
		AspectMask:     core1_0.ImageAspectColor,
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}

	err = w.dev.Driver.CmdPipelineBarrier(cmdbuf,
		core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageTransfer, 0, nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				OldLayout:           core1_0.ImageLayoutUndefined,
				NewLayout:           core1_0.ImageLayoutTransferDstOptimal,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				Image:               target,
				DstAccessMask:       core1_0.AccessTransferWrite,
				SubresourceRange:    fullRange,
			},
		})
	if err != nil {
		return err
	}

	err = w.dev.Driver.CmdBlitImage(cmdbuf,
		frame.Image, core1_0.ImageLayoutTransferSrcOptimal,
		target, core1_0.ImageLayoutTransferDstOptimal,
		[]core1_0.ImageBlit{
			{
				SrcSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       0,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				SrcOffsets: [2]core1_0.Offset3D{
					{X: 0, Y: 0, Z: 0},
					{X: frame.Width, Y: frame.Height, Z: 1},
				},
				DstSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       0,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				DstOffsets: [2]core1_0.Offset3D{
					{X: 0, Y: 0, Z: 0},
					{X: w.extent.Width, Y: w.extent.Height, Z: 1},
				},
			},
		}, core1_0.FilterLinear)
	if err != nil {
		return err
	}

	err = w.dev.Driver.CmdPipelineBarrier(cmdbuf,
		core1_0.PipelineStageTransfer, core1_0.PipelineStageBottomOfPipe, 0, nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				OldLayout:           core1_0.ImageLayoutTransferDstOptimal,
				NewLayout:           khr_swapchain.ImageLayoutPresentSrc,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				Image:               target,
				SrcAccessMask:       core1_0.AccessTransferWrite,
				SubresourceRange:    fullRange,
			},
		})
	if err != nil {
		return err
	}

	_, err = w.dev.Driver.EndCommandBuffer(cmdbuf)
	return err
}

// Destroy tears down the swapchain, frames, and sync objects. The device
// must be idle.
func (w *PresentWindow) Destroy() {
	w.destroySwapchain()
	for i := range w.imageAvailable {
		if w.imageAvailable[i].Initialized() {
			w.dev.Driver.DestroySemaphore(w.imageAvailable[i], nil)
			w.imageAvailable[i] = core1_0.Semaphore{}
		}
	}
	for i := range w.frames {
		frame := &w.frames[i]
		destroyFrameImage(w.dev, frame)
		if frame.RenderReady.Initialized() {
			w.dev.Driver.DestroySemaphore(frame.RenderReady, nil)
			frame.RenderReady = core1_0.Semaphore{}
		}
		if frame.PresentDone.Initialized() {
			w.dev.Driver.DestroyFence(frame.PresentDone, nil)
			frame.PresentDone = core1_0.Fence{}
		}
	}
	if w.surface.Initialized() {
		w.dev.SurfaceExtension.DestroySurface(w.surface, nil)
		w.surface = khr_surface.Surface{}
	}
}

func chooseSurfaceFormat(available []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range available {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}
	return available[0]
}

func choosePresentMode(available []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, mode := range available {
		if mode == khr_surface.PresentModeMailbox {
			return mode
		}
	}
	return khr_surface.PresentModeFIFO
}

func (w *PresentWindow) chooseExtent(capabilities *khr_surface.SurfaceCapabilities) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	width, height := w.PixelSize()
	extent := core1_0.Extent2D{Width: width, Height: height}

	if extent.Width < capabilities.MinImageExtent.Width {
		extent.Width = capabilities.MinImageExtent.Width
	}
	if extent.Width > capabilities.MaxImageExtent.Width {
		extent.Width = capabilities.MaxImageExtent.Width
	}
	if extent.Height < capabilities.MinImageExtent.Height {
		extent.Height = capabilities.MinImageExtent.Height
	}
	if extent.Height > capabilities.MaxImageExtent.Height {
		extent.Height = capabilities.MaxImageExtent.Height
	}
	return extent
}
