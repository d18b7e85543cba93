package renderer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/sync/semaphore"

	"github.com/emucore/vkpresent/device"
)

// schedulerChunks is the number of submissions that may be in flight on the
// device at once. Recording blocks at Flush when all chunks are pending.
const schedulerChunks = 4

// Command is one deferred slice of GPU work. It runs on the render thread
// when the enclosing chunk is replayed into a command buffer at Flush.
type Command func(driver core1_0.CoreDeviceDriver, cmd core1_0.CommandBuffer)

// chunk is one submission's worth of recorded work plus the objects that
// track its completion on the device.
type chunk struct {
	cmdbuf  core1_0.CommandBuffer
	fence   core1_0.Fence
	pending bool
}

// Scheduler serializes GPU work into a single, strictly ordered stream of
// deferred recordings. All methods must be called from the render thread.
type Scheduler struct {
	dev   *device.GraphicsDevice
	pool  core1_0.CommandPool
	queue core1_0.Queue

	recorded []Command

	chunks  [schedulerChunks]chunk
	current int

	// inFlight bounds device-side concurrency; Flush blocks here when the
	// chunk pool is exhausted.
	inFlight *semaphore.Weighted

	masterTick uint64
}

// NewScheduler creates a scheduler submitting to the device's graphics
// queue. Command buffers are allocated lazily on first flush.
func NewScheduler(dev *device.GraphicsDevice) *Scheduler {
	s := &Scheduler{
		dev:      dev,
		inFlight: semaphore.NewWeighted(schedulerChunks),
	}
	if dev != nil {
		s.queue = dev.GraphicsQueue
	}
	return s
}

// Record enqueues work against the current chunk. FIFO order within one
// submission cycle is guaranteed. No device interaction happens here.
func (s *Scheduler) Record(fn Command) {
	s.recorded = append(s.recorded, fn)
}

// Tick reports the number of completed flush cycles, used by callers that
// key caches on submission boundaries.
func (s *Scheduler) Tick() uint64 { return s.masterTick }

func (s *Scheduler) ensureChunks() error {
	if s.pool.Initialized() {
		return nil
	}

	pool, _, err := s.dev.Driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: s.dev.GraphicsFamily,
		Flags:            core1_0.CommandPoolCreateResetBuffer,
	})
	if err != nil {
		return errors.Wrap(err, "creating scheduler command pool")
	}
	s.pool = pool

	buffers, _, err := s.dev.Driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        s.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: schedulerChunks,
	})
	if err != nil {
		return errors.Wrap(err, "allocating scheduler command buffers")
	}

	for i := range s.chunks {
		fence, _, err := s.dev.Driver.CreateFence(nil, core1_0.FenceCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "creating scheduler fence")
		}
		s.chunks[i] = chunk{cmdbuf: buffers[i], fence: fence}
	}
	return nil
}

// waitChunk blocks until the chunk's previous submission completes, then
// readies it for re-recording.
func (s *Scheduler) waitChunk(c *chunk) error {
	if !c.pending {
		return nil
	}
	_, err := s.dev.Driver.WaitForFences(true, common.NoTimeout, c.fence)
	if err != nil {
		return err
	}
	_, err = s.dev.Driver.ResetFences(c.fence)
	if err != nil {
		return err
	}
	c.pending = false
	s.inFlight.Release(1)
	return nil
}

// Flush closes the current recording, submits it, and optionally signals
// the given semaphore on completion. Blocks only when every chunk in the
// pool is still pending on the device.
func (s *Scheduler) Flush(signal *core1_0.Semaphore) error {
	if len(s.recorded) == 0 && signal == nil {
		return nil
	}
	if err := s.ensureChunks(); err != nil {
		return err
	}

	c := &s.chunks[s.current]
	if err := s.waitChunk(c); err != nil {
		return err
	}
	if err := s.inFlight.Acquire(context.Background(), 1); err != nil {
		return err
	}

	_, err := s.dev.Driver.BeginCommandBuffer(c.cmdbuf, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "beginning scheduler command buffer")
	}

	for _, fn := range s.recorded {
		fn(s.dev.Driver, c.cmdbuf)
	}
	s.recorded = s.recorded[:0]

	_, err = s.dev.Driver.EndCommandBuffer(c.cmdbuf)
	if err != nil {
		return errors.Wrap(err, "ending scheduler command buffer")
	}

	submit := core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{c.cmdbuf},
	}
	if signal != nil {
		submit.SignalSemaphores = []core1_0.Semaphore{*signal}
	}

	_, err = s.dev.Driver.QueueSubmit(s.queue, &c.fence, submit)
	if err != nil {
		return errors.Wrap(err, "submitting scheduler chunk")
	}
	c.pending = true

	s.current = (s.current + 1) % schedulerChunks
	s.masterTick++
	return nil
}

// Finish submits all recorded work and blocks until every pending
// submission completes on the device. Used to gate CPU reads and
// destructive reallocation.
func (s *Scheduler) Finish() error {
	if err := s.Flush(nil); err != nil {
		return err
	}
	for _, i := range s.pendingChunks() {
		if err := s.waitChunk(&s.chunks[i]); err != nil {
			return err
		}
	}
	return nil
}

// pendingChunks lists the chunks still awaiting device completion, oldest
// submission first.
func (s *Scheduler) pendingChunks() []int {
	var pending []int
	for off := 0; off < schedulerChunks; off++ {
		i := (s.current + off) % schedulerChunks
		if s.chunks[i].pending {
			pending = append(pending, i)
		}
	}
	return pending
}

// Destroy waits for outstanding work and releases the scheduler's pool.
func (s *Scheduler) Destroy() {
	if !s.pool.Initialized() {
		return
	}
	for i := range s.chunks {
		_ = s.waitChunk(&s.chunks[i])
		s.dev.Driver.DestroyFence(s.chunks[i].fence, nil)
	}
	s.dev.Driver.DestroyCommandPool(s.pool, nil)
	s.pool = core1_0.CommandPool{}
}

// replayRecorded runs and clears pending work against the supplied driver
// and command buffer without submitting. Only tests use this.
func (s *Scheduler) replayRecorded(driver core1_0.CoreDeviceDriver, cmd core1_0.CommandBuffer) int {
	n := len(s.recorded)
	for _, fn := range s.recorded {
		fn(driver, cmd)
	}
	s.recorded = s.recorded[:0]
	return n
}

// recordedLen reports the number of pending commands.
func (s *Scheduler) recordedLen() int { return len(s.recorded) }
