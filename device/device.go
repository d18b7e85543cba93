// Package device wraps the pre-initialized Vulkan handles the renderer runs
// against. Instance and device creation happen in the frontend; this package
// only carries the drivers plus the small allocation helpers every renderer
// component shares.
package device

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// GraphicsDevice bundles the driver handles for one logical device. It is
// immutable after construction; all mutation happens on GPU objects created
// through it.
type GraphicsDevice struct {
	// ID tags log lines from this device instance.
	ID uuid.UUID

	Instance core1_0.CoreInstanceDriver
	Driver   core1_0.CoreDeviceDriver
	Physical core1_0.PhysicalDevice

	GraphicsQueue  core1_0.Queue
	PresentQueue   core1_0.Queue
	GraphicsFamily int
	PresentFamily  int

	SurfaceExtension khr_surface.ExtensionDriver

	properties *core1_0.PhysicalDeviceProperties
}

// New builds a GraphicsDevice around drivers created by the frontend.
func New(instance core1_0.CoreInstanceDriver, driver core1_0.CoreDeviceDriver,
	physical core1_0.PhysicalDevice, surfaceExt khr_surface.ExtensionDriver,
	graphicsFamily, presentFamily int) (*GraphicsDevice, error) {

	properties, err := instance.GetPhysicalDeviceProperties(physical)
	if err != nil {
		return nil, errors.Wrap(err, "querying physical device properties")
	}

	return &GraphicsDevice{
		ID:               uuid.New(),
		Instance:         instance,
		Driver:           driver,
		Physical:         physical,
		GraphicsQueue:    driver.GetQueue(graphicsFamily, 0),
		PresentQueue:     driver.GetQueue(presentFamily, 0),
		GraphicsFamily:   graphicsFamily,
		PresentFamily:    presentFamily,
		SurfaceExtension: surfaceExt,
		properties:       properties,
	}, nil
}

// MaxAnisotropy reports the device sampler anisotropy limit.
func (d *GraphicsDevice) MaxAnisotropy() float32 {
	return d.properties.Limits.MaxSamplerAnisotropy
}

// MaxPushConstantsSize reports the device push constant limit in bytes.
func (d *GraphicsDevice) MaxPushConstantsSize() int {
	return d.properties.Limits.MaxPushConstantsSize
}

// FindMemoryType locates a memory type index satisfying the filter and the
// requested property flags.
func (d *GraphicsDevice) FindMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := d.Instance.GetPhysicalDeviceMemoryProperties(d.Physical)
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)
		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}
	return 0, errors.Newf("no memory type matches filter %x with flags %s", typeFilter, properties)
}

// CreateImage allocates a 2D single-mip image with bound memory.
func (d *GraphicsDevice) CreateImage(width, height int, format core1_0.Format,
	usage core1_0.ImageUsageFlags, properties core1_0.MemoryPropertyFlags) (core1_0.Image, core1_0.DeviceMemory, error) {

	image, _, err := d.Driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return core1_0.Image{}, core1_0.DeviceMemory{}, err
	}

	memReqs := d.Driver.GetImageMemoryRequirements(image)
	memoryIndex, err := d.FindMemoryType(memReqs.MemoryTypeBits, properties)
	if err != nil {
		return core1_0.Image{}, core1_0.DeviceMemory{}, err
	}

	imageMemory, _, err := d.Driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		return core1_0.Image{}, core1_0.DeviceMemory{}, err
	}

	_, err = d.Driver.BindImageMemory(image, imageMemory, 0)
	if err != nil {
		return core1_0.Image{}, core1_0.DeviceMemory{}, err
	}
	return image, imageMemory, nil
}

// CreateImageView builds a 2D color view over the full image.
func (d *GraphicsDevice) CreateImageView(image core1_0.Image, format core1_0.Format) (core1_0.ImageView, error) {
	imageView, _, err := d.Driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	return imageView, err
}

// CreateBuffer allocates a buffer with bound memory.
func (d *GraphicsDevice) CreateBuffer(size int, usage core1_0.BufferUsageFlags,
	properties core1_0.MemoryPropertyFlags) (core1_0.Buffer, core1_0.DeviceMemory, error) {

	buffer, _, err := d.Driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, err
	}

	memRequirements := d.Driver.GetBufferMemoryRequirements(buffer)
	memoryTypeIndex, err := d.FindMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		return buffer, core1_0.DeviceMemory{}, err
	}

	memory, _, err := d.Driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return buffer, core1_0.DeviceMemory{}, err
	}

	_, err = d.Driver.BindBufferMemory(buffer, memory, 0)
	return buffer, memory, err
}

// WriteData maps the memory and serializes data into it at offset.
func (d *GraphicsDevice) WriteData(memory core1_0.DeviceMemory, offset int, data any) error {
	bufferSize := binary.Size(data)

	memoryPtr, _, err := d.Driver.MapMemory(memory, offset, bufferSize, 0)
	if err != nil {
		return err
	}
	defer d.Driver.UnmapMemory(memory)

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), bufferSize)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return err
	}

	copy(dataBuffer, buf.Bytes())
	return nil
}

// WriteBytes maps the memory and copies raw bytes into it at offset.
func (d *GraphicsDevice) WriteBytes(memory core1_0.DeviceMemory, offset int, data []byte) error {
	memoryPtr, _, err := d.Driver.MapMemory(memory, offset, len(data), 0)
	if err != nil {
		return err
	}
	defer d.Driver.UnmapMemory(memory)

	copy(unsafe.Slice((*byte)(memoryPtr), len(data)), data)
	return nil
}

// ReadBytes maps the memory and copies its contents into out.
func (d *GraphicsDevice) ReadBytes(memory core1_0.DeviceMemory, offset int, out []byte) error {
	memoryPtr, _, err := d.Driver.MapMemory(memory, offset, len(out), 0)
	if err != nil {
		return err
	}
	defer d.Driver.UnmapMemory(memory)

	copy(out, unsafe.Slice((*byte)(memoryPtr), len(out)))
	return nil
}

// WaitIdle drains all device work. Used only at teardown.
func (d *GraphicsDevice) WaitIdle() error {
	_, err := d.Driver.DeviceWaitIdle()
	return err
}
