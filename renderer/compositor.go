// Package renderer composites the emulated screens into presentable frames.
// Guest framebuffers are sampled into screen textures, laid out according to
// the active layout and stereo mode, and drawn into a frame that is blitted
// to the window swapchain.
package renderer

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/emucore/vkpresent/device"
	"github.com/emucore/vkpresent/guest"
	"github.com/emucore/vkpresent/layout"
	"github.com/emucore/vkpresent/settings"
)

// ScreenTexture is one screen's permanent GPU texture, reallocated only
// when the guest framebuffer dimensions or format change.
type ScreenTexture struct {
	Image  core1_0.Image
	Memory core1_0.DeviceMemory
	View   core1_0.ImageView

	Width  uint32
	Height uint32
	Format guest.PixelFormat
}

// NeedsReallocate reports whether the texture must be rebuilt to hold the
// given guest framebuffer.
func (t *ScreenTexture) NeedsReallocate(fb guest.FramebufferConfig) bool {
	return !t.Image.Initialized() || t.mismatch(fb)
}

// mismatch reports whether the texture no longer matches the framebuffer's
// dimensions or format.
func (t *ScreenTexture) mismatch(fb guest.FramebufferConfig) bool {
	return t.Width != fb.Width || t.Height != fb.Height || t.Format != fb.Format
}

// ScreenInfo is the display state of one screen slot. View is what the
// compositor samples; it points either at the permanent texture or at an
// image the rasterizer serves directly.
type ScreenInfo struct {
	Texture   ScreenTexture
	View      core1_0.ImageView
	TexCoords texCoords
}

// DisplayAccelerator is implemented by the hardware rasterizer. It may
// serve a display image without a guest memory round trip, and it is ticked
// once per emulated frame.
type DisplayAccelerator interface {
	// AccelerateDisplay points screen.View and screen.TexCoords at a
	// rasterizer-owned image for the framebuffer at addr. Returns false
	// when the framebuffer is not resident and the caller must upload it.
	AccelerateDisplay(fb guest.FramebufferConfig, addr uint32, pixelStride uint32, screen *ScreenInfo) bool
	SyncEntireState()
	TickFrame()
}

// Compositor renders the emulated screens into frames. All methods run on
// the render thread.
type Compositor struct {
	dev         *device.GraphicsDevice
	scheduler   *Scheduler
	passes      *RenderPassCache
	descriptors *DescriptorSetProvider
	vertices    *StreamBuffer
	settings    *settings.Settings
	source      guest.FramebufferSource
	accel       DisplayAccelerator

	shaders        *shaderSet
	samplers       [2]core1_0.Sampler // 0 = linear, 1 = nearest
	pipelineLayout core1_0.PipelineLayout
	pipelines      [fragShaderCount]core1_0.Pipeline

	screens    [screenTextureCount]ScreenInfo
	uploadPool core1_0.CommandPool

	// buildSecond opens the secondary output window the first time split
	// presentation runs without a caller-supplied window.
	buildSecond func() (*PresentWindow, error)
	second      *PresentWindow

	clearColor      [4]float32
	drawInfo        DrawInfo
	currentPipeline int

	frameCount uint64
	frameStart float64
}

// NewCompositor wires the compositor against a prepared device. GPU
// resources are not touched until Initialize. The accelerator is optional;
// without one every framebuffer takes the guest memory upload path.
func NewCompositor(dev *device.GraphicsDevice, scheduler *Scheduler, passes *RenderPassCache,
	cfg *settings.Settings, source guest.FramebufferSource, accel DisplayAccelerator) *Compositor {

	return &Compositor{
		dev:         dev,
		scheduler:   scheduler,
		passes:      passes,
		descriptors: NewDescriptorSetProvider(dev),
		vertices:    NewStreamBuffer(dev, vertexBufferSize, core1_0.BufferUsageVertexBuffer),
		settings:    cfg,
		source:      source,
		accel:       accel,
		clearColor:  [4]float32{0, 0, 0, 1},
	}
}

// Initialize compiles the presentation shaders and builds the samplers,
// layouts, and pipelines.
func (c *Compositor) Initialize() error {
	if err := c.compileShaders(); err != nil {
		return err
	}
	if err := c.buildLayouts(); err != nil {
		return err
	}
	if err := c.buildPipelines(); err != nil {
		return err
	}

	pool, _, err := c.dev.Driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: c.dev.GraphicsFamily,
	})
	if err != nil {
		return errors.Wrap(err, "creating upload command pool")
	}
	c.uploadPool = pool

	c.frameStart = hrtime.Now().Seconds()
	logger().Info("compositor ready", "device", c.dev.ID)
	return nil
}

// SetSecondWindowBuilder installs the factory used to open the secondary
// output window on demand.
func (c *Compositor) SetSecondWindowBuilder(build func() (*PresentWindow, error)) {
	c.buildSecond = build
}

/// secondWindow resolves the secondary output window: the caller's if one
// was supplied, otherwise a lazily built and cached one.
func (c *Compositor) secondWindow(second *PresentWindow) (*PresentWindow, error) {
	if second != nil {
		return second, nil
	}
	if c.second == nil && c.buildSecond != nil {
		window, err := c.buildSecond()
		if err != nil {
			return nil, err
		}
		c.second = window
	}
	return c.second, nil
}

// Sync asks the rasterizer to resynchronize its entire state with the
// guest. Called after load-state and similar discontinuities.
func (c *Compositor) Sync() {
	if c.accel != nil {
		c.accel.SyncEntireState()
	}
}

func (c *Compositor) compileShaders() error {
	shaders, err := buildShaderSet(c.dev)
	if err != nil {
		return err
	}
	c.shaders = shaders

	for i := range c.samplers {
		filter := core1_0.FilterLinear
		if i == 1 {
			filter = core1_0.FilterNearest
		}
		sampler, _, err := c.dev.Driver.CreateSampler(nil, core1_0.SamplerCreateInfo{
			MagFilter:    filter,
			MinFilter:    filter,
			MipmapMode:   core1_0.SamplerMipmapModeLinear,
			AddressModeU: core1_0.SamplerAddressModeClampToEdge,
			AddressModeV: core1_0.SamplerAddressModeClampToEdge,
			AddressModeW: core1_0.SamplerAddressModeClampToEdge,

			AnisotropyEnable: true,
			MaxAnisotropy:    c.dev.MaxAnisotropy(),

			CompareOp:   core1_0.CompareOpAlways,
			BorderColor: core1_0.BorderColorIntOpaqueBlack,
		})
		if err != nil {
			return errors.Wrap(err, "creating presentation sampler")
		}
		c.samplers[i] = sampler
	}
	return nil
}

func (c *Compositor) buildLayouts() error {
	descriptorLayout, err := c.descriptors.Layout()
	if err != nil {
		return err
	}

	pipelineLayout, _, err := c.dev.Driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{descriptorLayout},
		PushConstantRanges: []core1_0.PushConstantRange{
			{
				StageFlags: core1_0.StageVertex | core1_0.StageFragment,
				Offset:     0,
				Size:       drawInfoSize,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "creating presentation pipeline layout")
	}
	c.pipelineLayout = pipelineLayout
	return nil
}

func (c *Compositor) buildPipelines() error {
	pass, err := c.passes.RenderPass(frameFormat)
	if err != nil {
		return err
	}

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
			{
				Binding:   0,
				Stride:    screenRectVertexSize,
				InputRate: core1_0.VertexInputRateVertex,
			},
		},
		VertexAttributeDescriptions: []core1_0.VertexInputAttributeDescription{
			{
				Location: 0,
				Binding:  0,
				Format:   core1_0.FormatR32G32SignedFloat,
				Offset:   0,
			},
			{
				Location: 1,
				Binding:  0,
				Format:   core1_0.FormatR32G32SignedFloat,
				Offset:   8,
			},
		},
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleStrip,
		PrimitiveRestartEnable: false,
	}

	// Viewport and scissor are dynamic; these are placeholders.
	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{X: 0, Y: 0, Width: 1, Height: 1, MinDepth: 0, MaxDepth: 1},
		},
		Scissors: []core1_0.Rect2D{
			{Offset: core1_0.Offset2D{X: 0, Y: 0}, Extent: core1_0.Extent2D{Width: 1, Height: 1}},
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeFlags(0),
		FrontFace:   core1_0.FrontFaceClockwise,
		LineWidth:   1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthCompareOp: core1_0.CompareOpAlways,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		BlendConstants: [4]float32{1, 1, 1, 1},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   false,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	dynamicState := &core1_0.PipelineDynamicStateCreateInfo{
		DynamicStates: []core1_0.DynamicState{
			core1_0.DynamicStateViewport,
			core1_0.DynamicStateScissor,
		},
	}

	for i := 0; i < fragShaderCount; i++ {
		pipelines, _, err := c.dev.Driver.CreateGraphicsPipelines(nil, nil,
			core1_0.GraphicsPipelineCreateInfo{
				Stages: []core1_0.PipelineShaderStageCreateInfo{
					{
						Stage:  core1_0.StageVertex,
						Module: c.shaders.vert,
						Name:   "vs_main",
					},
					{
						Stage:  core1_0.StageFragment,
						Module: c.shaders.frag[i],
						Name:   "fs_main",
					},
				},
				VertexInputState:   vertexInput,
				InputAssemblyState: inputAssembly,
				ViewportState:      viewport,
				RasterizationState: rasterization,
				MultisampleState:   multisample,
				DepthStencilState:  depthStencil,
				ColorBlendState:    colorBlend,
				DynamicState:       dynamicState,
				Layout:             c.pipelineLayout,
				RenderPass:         pass,
				Subpass:            0,
				BasePipelineIndex:  -1,
			})
		if err != nil {
			return errors.Wrapf(err, "creating presentation pipeline %d", i)
		}
		c.pipelines[i] = pipelines[0]
	}
	return nil
}

// reloadPipeline re-derives the active pipeline index from the stereo mode.
func (c *Compositor) reloadPipeline() {
	index, reverse := pipelineForMode(c.settings.Render3D())
	c.currentPipeline = index
	c.drawInfo.ReverseInterlaced = 0
	if reverse {
		c.drawInfo.ReverseInterlaced = 1
	}
}

// PrepareRendertarget refreshes the three screen textures from the guest
// display registers. Slot 2 reads the sub LCD; slots 0 and 1 read the main
// LCD's left and right eyes.
func (c *Compositor) PrepareRendertarget() error {
	for i := 0; i < screenTextureCount; i++ {
		fbID := 0
		if i == screenBottom {
			fbID = 1
		}

		fill := c.source.Fill(fbID)
		if fill.Enabled {
			if err := c.ensureTextureForFill(&c.screens[i]); err != nil {
				return err
			}
			c.loadColorFill(&c.screens[i], fill)
			continue
		}

		fb := c.source.Framebuffer(fbID)
		screen := &c.screens[i]
		if screen.Texture.NeedsReallocate(fb) {
			// In-flight submissions may still sample the old view through
			// cached descriptor sets.
			if err := c.scheduler.Finish(); err != nil {
				return err
			}
			if err := c.configureTexture(&screen.Texture, fb); err != nil {
				fatalf("reallocating screen texture", "screen", i, "error", err)
			}
			c.descriptors.Invalidate()
		}
		if err := c.loadFramebuffer(fb, screen, i == screenTopRight); err != nil {
			return err
		}
	}
	return nil
}

// ensureTextureForFill guarantees a fill target exists even before the
// guest ever configured a framebuffer for this screen.
func (c *Compositor) ensureTextureForFill(screen *ScreenInfo) error {
	if screen.Texture.Image.Initialized() {
		return nil
	}
	// The pool reset in Invalidate frees sets prior submissions may still
	// be reading.
	if err := c.scheduler.Finish(); err != nil {
		return err
	}
	fb := guest.FramebufferConfig{Width: 1, Height: 1, Format: guest.FormatRGBA8}
	if err := c.configureTexture(&screen.Texture, fb); err != nil {
		return err
	}
	c.descriptors.Invalidate()
	return nil
}

// configureTexture rebuilds a screen texture for the framebuffer's
// dimensions. The texture is transitioned to the general layout the
// compositor keeps screen textures in.
func (c *Compositor) configureTexture(texture *ScreenTexture, fb guest.FramebufferConfig) error {
	if texture.View.Initialized() {
		c.dev.Driver.DestroyImageView(texture.View, nil)
	}
	if texture.Image.Initialized() {
		c.dev.Driver.DestroyImage(texture.Image, nil)
		c.dev.Driver.FreeMemory(texture.Memory, nil)
	}

	image, memory, err := c.dev.CreateImage(int(fb.Width), int(fb.Height), frameFormat,
		core1_0.ImageUsageSampled|core1_0.ImageUsageTransferDst,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return errors.Wrapf(err, "allocating %dx%d screen texture", fb.Width, fb.Height)
	}

	view, err := c.dev.CreateImageView(image, frameFormat)
	if err != nil {
		return errors.Wrap(err, "creating screen texture view")
	}

	texture.Image = image
	texture.Memory = memory
	texture.View = view
	texture.Width = fb.Width
	texture.Height = fb.Height
	texture.Format = fb.Format

	return c.transitionToGeneral(image)
}

// transitionToGeneral moves a fresh image into the general layout
// synchronously.
func (c *Compositor) transitionToGeneral(image core1_0.Image) error {
	cmdbuf, err := c.beginUploadCommands()
	if err != nil {
		return err
	}

	err = c.dev.Driver.CmdPipelineBarrier(cmdbuf,
		core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageFragmentShader, 0, nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				OldLayout:           core1_0.ImageLayoutUndefined,
				NewLayout:           core1_0.ImageLayoutGeneral,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				Image:               image,
				DstAccessMask:       core1_0.AccessShaderRead,
				SubresourceRange: core1_0.ImageSubresourceRange{
					AspectMask: core1_0.ImageAspectColor,
					LevelCount: 1,
					LayerCount: 1,
				},
			},
		})
	if err != nil {
		return err
	}
	return c.endUploadCommands(cmdbuf)
}

// loadColorFill replaces the screen contents with the LCD fill color using
// a transfer clear, bracketed by layout transitions out of and back into
// the general layout.
func (c *Compositor) loadColorFill(screen *ScreenInfo, fill guest.ColorFill) {
	screen.View = screen.Texture.View
	screen.TexCoords = texCoords{Left: 0, Top: 0, Right: 1, Bottom: 1}

	color := core1_0.ClearValueFloat{
		float32(fill.R) / 255.0,
		float32(fill.G) / 255.0,
		float32(fill.B) / 255.0,
		1.0,
	}

	c.passes.EndRendering()
	c.scheduler.Record(func(driver core1_0.CoreDeviceDriver, cmd core1_0.CommandBuffer) {
		fullRange := core1_0.ImageSubresourceRange{
			AspectMask: core1_0.ImageAspectColor,
			LevelCount: 1,
			LayerCount: 1,
		}

		driver.CmdPipelineBarrier(cmd,
			core1_0.PipelineStageFragmentShader, core1_0.PipelineStageTransfer,
			core1_0.DependencyByRegion, nil, nil,
			[]core1_0.ImageMemoryBarrier{
				{
					SrcAccessMask:       core1_0.AccessShaderRead | core1_0.AccessTransferRead,
					DstAccessMask:       core1_0.AccessTransferWrite,
					OldLayout:           core1_0.ImageLayoutGeneral,
					NewLayout:           core1_0.ImageLayoutTransferDstOptimal,
					SrcQueueFamilyIndex: -1,
					DstQueueFamilyIndex: -1,
					Image:               screen.Texture.Image,
					SubresourceRange:    fullRange,
				},
			})

		driver.CmdClearColorImage(cmd, screen.Texture.Image,
			core1_0.ImageLayoutTransferDstOptimal, color,
			fullRange)

		driver.CmdPipelineBarrier(cmd,
			core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader,
			core1_0.DependencyByRegion, nil, nil,
			[]core1_0.ImageMemoryBarrier{
				{
					SrcAccessMask:       core1_0.AccessTransferWrite,
					DstAccessMask:       core1_0.AccessShaderRead | core1_0.AccessTransferRead,
					OldLayout:           core1_0.ImageLayoutTransferDstOptimal,
					NewLayout:           core1_0.ImageLayoutGeneral,
					SrcQueueFamilyIndex: -1,
					DstQueueFamilyIndex: -1,
					Image:               screen.Texture.Image,
					SubresourceRange:    fullRange,
				},
			})
	})
}

// loadFramebuffer points the screen at the framebuffer contents for this
// frame, either through the rasterizer or by decoding guest memory into the
// permanent texture.
func (c *Compositor) loadFramebuffer(fb guest.FramebufferConfig, screen *ScreenInfo, rightEye bool) error {
	addr := fb.EyeAddress(rightEye)

	bpp := fb.Format.BytesPerPixel()
	pixelStride := fb.Stride / uint32(bpp)

	if c.accel != nil && c.accel.AccelerateDisplay(fb, addr, pixelStride, screen) {
		return nil
	}

	screen.View = screen.Texture.View
	screen.TexCoords = texCoords{Left: 0, Top: 0, Right: 1, Bottom: 1}

	block := c.source.ReadBlock(addr, int(fb.Stride*fb.Height))
	decoded, err := guest.DecodeRGBA(fb.Format, block, int(fb.Width), int(fb.Height), int(pixelStride))
	if err != nil {
		return errors.Wrapf(err, "decoding framebuffer at %#x", addr)
	}
	return c.uploadTexture(&screen.Texture, decoded)
}

func (c *Compositor) beginUploadCommands() (core1_0.CommandBuffer, error) {
	buffers, _, err := c.dev.Driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        c.uploadPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return core1_0.CommandBuffer{}, err
	}

	cmdbuf := buffers[0]
	_, err = c.dev.Driver.BeginCommandBuffer(cmdbuf, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	return cmdbuf, err
}

func (c *Compositor) endUploadCommands(cmdbuf core1_0.CommandBuffer) error {
	_, err := c.dev.Driver.EndCommandBuffer(cmdbuf)
	if err != nil {
		return err
	}

	_, err = c.dev.Driver.QueueSubmit(c.dev.GraphicsQueue, nil, core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{cmdbuf},
	})
	if err != nil {
		return err
	}

	_, err = c.dev.Driver.QueueWaitIdle(c.dev.GraphicsQueue)
	if err != nil {
		return err
	}

	c.dev.Driver.FreeCommandBuffers(cmdbuf)
	return nil
}

// uploadTexture copies decoded RGBA pixels into the screen texture through
// a transient staging buffer. The copy is synchronous; this path only runs
// when the rasterizer cannot serve the display image.
func (c *Compositor) uploadTexture(texture *ScreenTexture, pixels []byte) error {
	staging, stagingMemory, err := c.dev.CreateBuffer(len(pixels),
		core1_0.BufferUsageTransferSrc,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return errors.Wrap(err, "allocating upload staging buffer")
	}
	defer func() {
		c.dev.Driver.DestroyBuffer(staging, nil)
		c.dev.Driver.FreeMemory(stagingMemory, nil)
	}()

	if err := c.dev.WriteBytes(stagingMemory, 0, pixels); err != nil {
		return err
	}

	cmdbuf, err := c.beginUploadCommands()
	if err != nil {
		return err
	}

	fullRange := core1_0.ImageSubresourceRange{
		AspectMask: core1_0.ImageAspectColor,
		LevelCount: 1,
		LayerCount: 1,
	}

	err = c.dev.Driver.CmdPipelineBarrier(cmdbuf,
		core1_0.PipelineStageFragmentShader, core1_0.PipelineStageTransfer, 0, nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				SrcAccessMask:       core1_0.AccessShaderRead,
				DstAccessMask:       core1_0.AccessTransferWrite,
				OldLayout:           core1_0.ImageLayoutGeneral,
				NewLayout:           core1_0.ImageLayoutTransferDstOptimal,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				Image:               texture.Image,
				SubresourceRange:    fullRange,
			},
		})
	if err != nil {
		return err
	}

	err = c.dev.Driver.CmdCopyBufferToImage(cmdbuf, staging, texture.Image,
		core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask: core1_0.ImageAspectColor,
				LayerCount: 1,
			},
			ImageExtent: core1_0.Extent3D{
				Width:  int(texture.Width),
				Height: int(texture.Height),
				Depth:  1,
			},
		})
	if err != nil {
		return err
	}

	err = c.dev.Driver.CmdPipelineBarrier(cmdbuf,
		core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader, 0, nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				SrcAccessMask:       core1_0.AccessTransferWrite,
				DstAccessMask:       core1_0.AccessShaderRead,
				OldLayout:           core1_0.ImageLayoutTransferDstOptimal,
				NewLayout:           core1_0.ImageLayoutGeneral,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				Image:               texture.Image,
				SubresourceRange:    fullRange,
			},
		})
	if err != nil {
		return err
	}
	return c.endUploadCommands(cmdbuf)
}

// PrepareDraw binds the frame as the render target and opens the draw pass
// with the background clear.
func (c *Compositor) PrepareDraw(frame *Frame, fb layout.FramebufferLayout) error {
	samplerIndex := 0
	if !c.settings.FilterLinear() {
		samplerIndex = 1
	}
	sampler := c.samplers[samplerIndex]

	var views [screenTextureCount]core1_0.ImageView
	for i := range c.screens {
		views[i] = c.screens[i].View
	}

	descriptorSet, err := c.descriptors.Acquire(views, sampler)
	if err != nil {
		return err
	}

	pass, err := c.passes.RenderPass(frameFormat)
	if err != nil {
		return err
	}

	c.passes.EndRendering()

	clear := core1_0.ClearValueFloat(c.clearColor)
	pipeline := c.pipelines[c.currentPipeline]
	pipelineLayout := c.pipelineLayout
	width := int(fb.Width)
	height := int(fb.Height)
	framebuffer := frame.Framebuffer
	frameWidth := frame.Width
	frameHeight := frame.Height

	c.scheduler.Record(func(driver core1_0.CoreDeviceDriver, cmd core1_0.CommandBuffer) {
		driver.CmdSetViewport(cmd, core1_0.Viewport{
			X:        0,
			Y:        0,
			Width:    float32(width),
			Height:   float32(height),
			MinDepth: 0,
			MaxDepth: 1,
		})
		driver.CmdSetScissor(cmd, core1_0.Rect2D{
			Offset: core1_0.Offset2D{X: 0, Y: 0},
			Extent: core1_0.Extent2D{Width: width, Height: height},
		})

		driver.CmdBeginRenderPass(cmd, core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
			RenderPass:  pass,
			Framebuffer: framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: core1_0.Extent2D{Width: frameWidth, Height: frameHeight},
			},
			ClearValues: []core1_0.ClearValue{clear},
		})
		driver.CmdBindPipeline(cmd, core1_0.PipelineBindPointGraphics, pipeline)
		driver.CmdBindDescriptorSets(cmd, core1_0.PipelineBindPointGraphics, pipelineLayout,
			0, []core1_0.DescriptorSet{descriptorSet}, nil)
	})
	c.passes.MarkRendering()
	return nil
}

// drawSingleScreen records one screen quad. The stereo flag on the draw
// selects whether the right-eye slot participates in the shader.
func (c *Compositor) drawSingleScreen(draw screenDraw, orientation layout.DisplayOrientation) error {
	screen := &c.screens[draw.ScreenL]

	verts, outW, outH, ok := screenRectVertices(draw.X, draw.Y, draw.W, draw.H, screen.TexCoords, orientation)
	if !ok {
		logger().Error("unknown display orientation, skipping draw", "orientation", orientation)
		return nil
	}

	data, offset, invalidated, err := c.vertices.Map(screenRectVertexSize*len(verts), 16)
	if err != nil {
		return err
	}
	if invalidated {
		// The ring holds thousands of quads; wrapping mid-frame means
		// regions still referenced by in-flight chunks get overwritten.
		logger().Warn("vertex ring wrapped inside a frame", "offset", offset, "tick", c.scheduler.Tick())
	}
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, verts); err != nil {
		return err
	}
	copy(data, buf.Bytes())
	c.vertices.Commit(buf.Len())

	scale := float32(c.settings.ResolutionScale())
	texW := float32(screen.Texture.Width) * scale
	texH := float32(screen.Texture.Height) * scale
	c.drawInfo.IResolution = [4]float32{texW, texH, 1 / texW, 1 / texH}
	c.drawInfo.OResolution = [4]float32{outH, outW, 1 / outH, 1 / outW}
	c.drawInfo.ScreenIDL = int32(draw.ScreenL)
	c.drawInfo.Layer = draw.Layer
	if draw.Stereo {
		c.drawInfo.ScreenIDR = int32(draw.ScreenR)
	}

	push, err := c.drawInfo.bytes()
	if err != nil {
		return err
	}

	vertexBuffer := c.vertices.Handle()
	pipelineLayout := c.pipelineLayout
	firstVertex := offset / screenRectVertexSize

	c.scheduler.Record(func(driver core1_0.CoreDeviceDriver, cmd core1_0.CommandBuffer) {
		driver.CmdPushConstants(cmd, pipelineLayout,
			core1_0.StageVertex|core1_0.StageFragment, 0, push)
		driver.CmdBindVertexBuffers(cmd, 0, []core1_0.Buffer{vertexBuffer}, []int{0})
		driver.CmdDraw(cmd, len(verts), 1, uint32(firstVertex), 0)
	})
	return nil
}

// drawScreenRegion plans and records the draws for one screen region.
func (c *Compositor) drawScreenRegion(top bool, fb layout.FramebufferLayout, region layout.Rect, flipped bool) error {
	orientation := drawOrientation(fb.IsRotated, flipped)

	mode := c.settings.Render3D()
	var draws []screenDraw
	if top {
		draws = topScreenDraws(mode, c.settings.MonoOption(), fb, region)
	} else {
		draws = bottomScreenDraws(mode, fb, region)
	}

	for _, draw := range draws {
		if err := c.drawSingleScreen(draw, orientation); err != nil {
			return err
		}
	}
	return nil
}

// DrawScreens composites every enabled screen into the frame and leaves the
// frame image in transfer-source layout for presentation or readback. The
// flipped flag mirrors the output vertically.
func (c *Compositor) DrawScreens(frame *Frame, fb layout.FramebufferLayout, flipped bool) error {
	if c.settings.ConsumeBackgroundColorUpdate() {
		r, g, b := c.settings.BackgroundColor()
		c.clearColor = [4]float32{r, g, b, 1}
	}
	if c.settings.ConsumeShaderUpdate() {
		c.reloadPipeline()
	}

	if err := c.PrepareDraw(frame, fb); err != nil {
		return err
	}

	c.drawInfo.Modelview = makeOrthographicMatrix(float32(fb.Width), float32(fb.Height))

	c.drawInfo.Layer = 0
	topFirst := !c.settings.SwapScreen()
	if fb.TopScreenEnabled && topFirst {
		if err := c.drawScreenRegion(true, fb, fb.TopScreen, flipped); err != nil {
			return err
		}
	}
	if fb.BottomScreenEnabled {
		c.drawInfo.Layer = 0
		if err := c.drawScreenRegion(false, fb, fb.BottomScreen, flipped); err != nil {
			return err
		}
	}
	if fb.TopScreenEnabled && !topFirst {
		c.drawInfo.Layer = 0
		if err := c.drawScreenRegion(true, fb, fb.TopScreen, flipped); err != nil {
			return err
		}
	}

	if fb.AdditionalScreenEnabled {
		top := !c.settings.SwapScreen()
		if err := c.drawScreenRegion(top, fb, fb.AdditionalScreen, flipped); err != nil {
			return err
		}
	}

	c.passes.EndRendering()
	image := frame.Image
	c.scheduler.Record(func(driver core1_0.CoreDeviceDriver, cmd core1_0.CommandBuffer) {
		driver.CmdPipelineBarrier(cmd,
			core1_0.PipelineStageColorAttachmentOutput, core1_0.PipelineStageTransfer,
			core1_0.DependencyByRegion, nil, nil,
			[]core1_0.ImageMemoryBarrier{
				{
					SrcAccessMask:       core1_0.AccessColorAttachmentWrite,
					DstAccessMask:       core1_0.AccessTransferRead,
					OldLayout:           core1_0.ImageLayoutTransferSrcOptimal,
					NewLayout:           core1_0.ImageLayoutTransferSrcOptimal,
					SrcQueueFamilyIndex: -1,
					DstQueueFamilyIndex: -1,
					Image:               image,
					SubresourceRange: core1_0.ImageSubresourceRange{
						AspectMask: core1_0.ImageAspectColor,
						LevelCount: 1,
						LayerCount: 1,
					},
				},
			})
	})
	return nil
}

// RenderToWindow draws the layout into one of the window's frames and
// queues it for presentation, rebuilding the frame on a size mismatch.
func (c *Compositor) RenderToWindow(window *PresentWindow, fb layout.FramebufferLayout) error {
	frame, err := window.GetRenderFrame()
	if err != nil {
		return err
	}

	if int(fb.Width) != frame.Width || int(fb.Height) != frame.Height {
		if err := window.WaitPresent(); err != nil {
			return err
		}
		if err := c.scheduler.Finish(); err != nil {
			return err
		}
		if err := window.RecreateFrame(frame, int(fb.Width), int(fb.Height)); err != nil {
			fatalf("recreating frame", "width", fb.Width, "height", fb.Height, "error", err)
		}
	}

	if err := c.DrawScreens(frame, fb, false); err != nil {
		return err
	}
	if err := c.scheduler.Flush(&frame.RenderReady); err != nil {
		return err
	}
	return window.Present(frame)
}

// layoutFor derives the frame layout for the main window from the active
// settings.
func (c *Compositor) layoutFor(width, height int) layout.FramebufferLayout {
	w, h := uint32(width), uint32(height)
	switch {
	case c.settings.Render3D() == settings.StereoCardboardVR:
		return layout.CardboardLayout(w, h, c.settings.SwapScreen())
	case c.settings.SeparateWindows():
		return layout.SingleScreenLayout(w, h, c.settings.SwapScreen())
	default:
		return layout.DefaultLayout(w, h, c.settings.SwapScreen())
	}
}

// SwapBuffers runs one full presentation cycle: refresh the screen
// textures, serve any pending screenshot, render the main window, render
// the secondary window when split presentation is on, and tick the frame.
func (c *Compositor) SwapBuffers(main, second *PresentWindow) error {
	if err := c.PrepareRendertarget(); err != nil {
		return err
	}
	if err := c.RenderScreenshot(); err != nil {
		return err
	}

	width, height := main.PixelSize()
	if err := c.RenderToWindow(main, c.layoutFor(width, height)); err != nil {
		return err
	}

	if c.settings.SeparateWindows() {
		second, err := c.secondWindow(second)
		if err != nil {
			return err
		}
		if second != nil {
			width, height := second.PixelSize()
			fb := layout.SingleScreenLayout(uint32(width), uint32(height), !c.settings.SwapScreen())
			if err := c.RenderToWindow(second, fb); err != nil {
				return err
			}
			second.PollEvents()
		}
	}

	c.EndFrame()
	return nil
}

// EndFrame ticks the rasterizer and the frame clock.
func (c *Compositor) EndFrame() {
	if c.accel != nil {
		c.accel.TickFrame()
	}

	c.frameCount++
	if c.frameCount%60 == 0 {
		now := hrtime.Now().Seconds()
		elapsed := now - c.frameStart
		if elapsed > 0 {
			logger().Debug("frame timing", "frames", c.frameCount, "fps", 60.0/elapsed)
		}
		c.frameStart = now
	}
}

// Destroy releases every GPU object the compositor owns. The scheduler
// must be finished and the device idle.
func (c *Compositor) Destroy() {
	if c.shaders != nil {
		c.shaders.destroy(c.dev)
		c.shaders = nil
	}
	for i := range c.pipelines {
		if c.pipelines[i].Initialized() {
			c.dev.Driver.DestroyPipeline(c.pipelines[i], nil)
			c.pipelines[i] = core1_0.Pipeline{}
		}
	}
	if c.pipelineLayout.Initialized() {
		c.dev.Driver.DestroyPipelineLayout(c.pipelineLayout, nil)
		c.pipelineLayout = core1_0.PipelineLayout{}
	}
	for i := range c.samplers {
		if c.samplers[i].Initialized() {
			c.dev.Driver.DestroySampler(c.samplers[i], nil)
			c.samplers[i] = core1_0.Sampler{}
		}
	}
	for i := range c.screens {
		texture := &c.screens[i].Texture
		if texture.View.Initialized() {
			c.dev.Driver.DestroyImageView(texture.View, nil)
			texture.View = core1_0.ImageView{}
		}
		if texture.Image.Initialized() {
			c.dev.Driver.DestroyImage(texture.Image, nil)
			c.dev.Driver.FreeMemory(texture.Memory, nil)
			texture.Image = core1_0.Image{}
			texture.Memory = core1_0.DeviceMemory{}
		}
	}
	if c.uploadPool.Initialized() {
		c.dev.Driver.DestroyCommandPool(c.uploadPool, nil)
		c.uploadPool = core1_0.CommandPool{}
	}
	if c.second != nil {
		c.second.Destroy()
		c.second = nil
	}
	c.vertices.Destroy()
	c.descriptors.Destroy()
}
