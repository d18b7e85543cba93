package renderer

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/emucore/vkpresent/device"
)

// StreamBuffer is a persistently mapped host-visible ring buffer for
// transient vertex data. Allocations are valid for the lifetime of the
// frame that maps them; the ring is large enough that a region is never
// rewritten while the device may still read it.
type StreamBuffer struct {
	dev   *device.GraphicsDevice
	usage core1_0.BufferUsageFlags
	size  int

	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
	mapped []byte

	offset int
}

// NewStreamBuffer creates a ring of the given byte size. The underlying
// buffer is allocated lazily on first Map.
func NewStreamBuffer(dev *device.GraphicsDevice, size int, usage core1_0.BufferUsageFlags) *StreamBuffer {
	return &StreamBuffer{
		dev:   dev,
		usage: usage,
		size:  size,
	}
}

// Handle returns the underlying buffer for binding. Valid only after the
// first successful Map.
func (b *StreamBuffer) Handle() core1_0.Buffer { return b.buffer }

func (b *StreamBuffer) ensureBuffer() error {
	if b.buffer.Initialized() {
		return nil
	}

	buffer, memory, err := b.dev.CreateBuffer(b.size, b.usage,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return errors.Wrapf(err, "allocating %d byte stream buffer", b.size)
	}

	ptr, _, err := b.dev.Driver.MapMemory(memory, 0, b.size, 0)
	if err != nil {
		b.dev.Driver.DestroyBuffer(buffer, nil)
		b.dev.Driver.FreeMemory(memory, nil)
		return errors.Wrap(err, "mapping stream buffer")
	}

	b.buffer = buffer
	b.memory = memory
	b.mapped = unsafe.Slice((*byte)(ptr), b.size)
	return nil
}

// Map reserves size bytes at the given alignment and returns the writable
// slice plus its byte offset within the buffer. The invalidate flag is set
// when the ring wrapped, meaning offsets handed out before this call no
// longer precede the returned one.
func (b *StreamBuffer) Map(size, alignment int) ([]byte, int, bool, error) {
	if size > b.size {
		return nil, 0, false, errors.Newf("stream allocation of %d bytes exceeds buffer size %d", size, b.size)
	}
	if err := b.ensureBuffer(); err != nil {
		return nil, 0, false, err
	}

	offset, invalidate := ringSlot(b.offset, size, alignment, b.size)
	b.offset = offset
	return b.mapped[offset : offset+size], offset, invalidate, nil
}

// Commit finalizes the most recent Map with the number of bytes actually
// written.
func (b *StreamBuffer) Commit(size int) {
	b.offset += size
}

// Destroy unmaps and releases the buffer.
func (b *StreamBuffer) Destroy() {
	if !b.buffer.Initialized() {
		return
	}
	b.dev.Driver.UnmapMemory(b.memory)
	b.dev.Driver.DestroyBuffer(b.buffer, nil)
	b.dev.Driver.FreeMemory(b.memory, nil)
	b.buffer = core1_0.Buffer{}
	b.memory = core1_0.DeviceMemory{}
	b.mapped = nil
	b.offset = 0
}

// ringSlot computes the aligned start offset for an allocation of size
// bytes in a ring of total bytes, given the current write position. The
// second result reports whether the allocation wrapped to the start.
func ringSlot(current, size, alignment, total int) (int, bool) {
	offset := current
	if alignment > 0 {
		offset = (offset + alignment - 1) / alignment * alignment
	}
	if offset+size > total {
		return 0, true
	}
	return offset, false
}
