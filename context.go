package vkm

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Destroyer is a deferred cleanup queued against the frame currently being
// recorded; it runs the next time that frame slot comes back around after
// its timeline value has been waited on, once GPU work referencing the
// frame's resources is known to be complete.
type Destroyer func()

// AcquirableSwapchain is the surface-presentation side of the Frame
// Context/Swapchain boundary: whatever a context acquires an image from.
type AcquirableSwapchain interface {
	Acquire(semaphore vk.Semaphore) (imageIndex uint32, err error)
}

// PresentableSwapchain is the surface-presentation side consumed by
// EndCommandBuffer: the per-image semaphore to signal and the present call
// to make once the submission is queued.
type PresentableSwapchain interface {
	Semaphore() vk.Semaphore
	Present(queue vk.Queue) error
}

// SwapchainAcquireRequest names one swapchain to acquire from and the
// pipeline stage its acquire semaphore gates.
type SwapchainAcquireRequest struct {
	Swapchain AcquirableSwapchain
	Stage     vk.PipelineStageFlags2
}

// PresentRequest names one swapchain to signal and present once the
// frame's command buffer submission completes.
type PresentRequest struct {
	Swapchain PresentableSwapchain
	Stage     vk.PipelineStageFlags2
}

type scratchBuffer struct {
	buffer vk.Buffer
	memory vk.DeviceMemory
}

// frameSlot is one round-robin slot of the Frame Context: its own
// transient command pool, the timeline value that gates its reuse, and
// every pending resource queued against it during the frame it recorded.
type frameSlot struct {
	commandPool      vk.CommandPool
	commandBuffers   []vk.CommandBuffer
	acquired         int
	submitted        int
	pendingSemaphoreValue uint64

	pendingDestroyers       []Destroyer
	pendingBinarySemaphores []vk.Semaphore
	pendingScratchBuffers   []scratchBuffer
	pendingWaitSemaphores   []vk.SemaphoreSubmitInfo
	pendingSignalSemaphores []vk.SemaphoreSubmitInfo
}

// FrameContext is the Frame Context: one timeline semaphore shared across
// a fixed ring of frame slots bound to a single queue, used to record and
// submit work without the caller hand-managing fences.
type FrameContext struct {
	device      *LogicalDevice
	queue       vk.Queue
	queueFamily uint32

	semaphore    vk.Semaphore
	pendingValue uint64

	frames  []*frameSlot
	frameID int

	logger *Logger
}

// NewFrameContext creates a context bound to one queue, with maxPendingFrames
// round-robin frame slots (at least 1) each owning a transient command
// pool created with extraPoolFlags ORed into VK_COMMAND_POOL_CREATE_TRANSIENT_BIT.
func NewFrameContext(device *LogicalDevice, queueFamily, queueIndex uint32, maxPendingFrames uint32, extraPoolFlags vk.CommandPoolCreateFlags, logger *Logger) (*FrameContext, error) {
	if logger == nil {
		logger = defaultLogger
	}
	if maxPendingFrames == 0 {
		maxPendingFrames = 1
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device.Device, queueFamily, queueIndex, &queue)

	semaphore, err := newTimelineSemaphore(device.Device, 0)
	if err != nil {
		return nil, err
	}

	fc := &FrameContext{
		device:      device,
		queue:       queue,
		queueFamily: queueFamily,
		semaphore:   semaphore,
		logger:      logger,
	}

	for i := uint32(0); i < maxPendingFrames; i++ {
		poolInfo := vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit) | extraPoolFlags,
			QueueFamilyIndex: queueFamily,
		}
		var pool vk.CommandPool
		if ret := vk.CreateCommandPool(device.Device, &poolInfo, nil, &pool); ret != vk.Success {
			fc.Destroy()
			return nil, fmt.Errorf("vkm: failed to create command pool: %s", resultString(ret))
		}
		fc.frames = append(fc.frames, &frameSlot{commandPool: pool})
	}
	return fc, nil
}

func (fc *FrameContext) current() *frameSlot { return fc.frames[fc.frameID] }

// Queue returns the native queue this context submits to.
func (fc *FrameContext) Queue() vk.Queue { return fc.queue }

// Begin waits for the current frame slot's prior submission to retire,
// drains its deferred work (destroyers, released binary semaphores,
// unmapped/destroyed scratch buffers), and resets its command pool. It
// panics if the prior frame acquired more command buffers than it
// submitted, the same invariant the original enforces.
func (fc *FrameContext) Begin() error {
	frame := fc.current()

	if err := waitTimelineSemaphore(fc.device.Device, fc.semaphore, frame.pendingSemaphoreValue); err != nil {
		fatalf(fc.logger, "vkm: failed to wait on frame timeline semaphore: %v", err)
	}

	for _, d := range frame.pendingDestroyers {
		d()
	}
	frame.pendingDestroyers = frame.pendingDestroyers[:0]

	for _, s := range frame.pendingBinarySemaphores {
		fc.device.Sync.ReleaseBinarySemaphore(s)
	}
	frame.pendingBinarySemaphores = frame.pendingBinarySemaphores[:0]

	for _, b := range frame.pendingScratchBuffers {
		vk.UnmapMemory(fc.device.Device, b.memory)
		vk.DestroyBuffer(fc.device.Device, b.buffer, nil)
		vk.FreeMemory(fc.device.Device, b.memory, nil)
	}
	frame.pendingScratchBuffers = frame.pendingScratchBuffers[:0]

	if ret := vk.ResetCommandPool(fc.device.Device, frame.commandPool, 0); ret != vk.Success {
		return fmt.Errorf("vkm: failed to reset command pool: %s", resultString(ret))
	}
	if frame.acquired != frame.submitted {
		panic(fmt.Sprintf("vkm: acquired %d command buffers but submitted %d", frame.acquired, frame.submitted))
	}
	frame.acquired, frame.submitted = 0, 0
	return nil
}

// QueueDestroyer defers fn until the current frame slot comes back around
// in Begin, after its GPU work is known complete.
func (fc *FrameContext) QueueDestroyer(fn Destroyer) {
	frame := fc.current()
	frame.pendingDestroyers = append(frame.pendingDestroyers, fn)
}

// CreateScratchHostBuffer allocates a host-visible, host-coherent buffer
// from the device's noBAR memory pool, maps it for the lifetime of the
// current frame slot, and queues it for unmap+destroy the next time that
// slot is reused.
func (fc *FrameContext) CreateScratchHostBuffer(info vk.BufferCreateInfo) (vk.Buffer, unsafe.Pointer, error) {
	frame := fc.current()
	info.SType = vk.StructureTypeBufferCreateInfo

	var buffer vk.Buffer
	if ret := vk.CreateBuffer(fc.device.Device, &info, nil, &buffer); ret != vk.Success {
		return nil, nil, fmt.Errorf("vkm: failed to create scratch buffer: %s", resultString(ret))
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(fc.device.Device, buffer, &reqs)
	reqs.Deref()

	memoryTypeIndex, ok := firstSetBit(reqs.MemoryTypeBits & fc.device.NoBARMemoryTypeBits)
	if !ok {
		vk.DestroyBuffer(fc.device.Device, buffer, nil)
		return nil, nil, fmt.Errorf("vkm: no noBAR memory type for scratch buffer")
	}

	var memory vk.DeviceMemory
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: memoryTypeIndex,
	}
	if ret := vk.AllocateMemory(fc.device.Device, &allocInfo, nil, &memory); ret != vk.Success {
		vk.DestroyBuffer(fc.device.Device, buffer, nil)
		return nil, nil, fmt.Errorf("vkm: failed to allocate scratch buffer memory: %s", resultString(ret))
	}
	if ret := vk.BindBufferMemory(fc.device.Device, buffer, memory, 0); ret != vk.Success {
		vk.DestroyBuffer(fc.device.Device, buffer, nil)
		vk.FreeMemory(fc.device.Device, memory, nil)
		return nil, nil, fmt.Errorf("vkm: failed to bind scratch buffer memory: %s", resultString(ret))
	}

	var ptr unsafe.Pointer
	if ret := vk.MapMemory(fc.device.Device, memory, 0, vk.WholeSize, 0, &ptr); ret != vk.Success {
		vk.DestroyBuffer(fc.device.Device, buffer, nil)
		vk.FreeMemory(fc.device.Device, memory, nil)
		return nil, nil, fmt.Errorf("vkm: failed to map scratch buffer: %s", resultString(ret))
	}

	frame.pendingScratchBuffers = append(frame.pendingScratchBuffers, scratchBuffer{buffer: buffer, memory: memory})
	return buffer, ptr, nil
}

func firstSetBit(mask uint32) (uint32, bool) {
	for i := uint32(0); i < 32; i++ {
		if mask&(1<<i) != 0 {
			return i, true
		}
	}
	return 0, false
}

// SwapchainAcquireResult is the outcome of one entry in an AcquireSwapchain
// batch: the acquired image index, or the driver error that entry's
// acquire returned.
type SwapchainAcquireResult struct {
	Index uint32
	Err   error
}

// AcquireSwapchain acquires an image from every requested swapchain,
// queuing a fresh binary semaphore per acquisition as a wait semaphore
// for the frame's eventual EndCommandBuffer submit. Every request is
// attempted independently: one entry's acquire failure does not prevent
// the rest from being attempted, and each entry's own driver result is
// reported back rather than aborting the batch on the first failure.
func (fc *FrameContext) AcquireSwapchain(requests []SwapchainAcquireRequest) []SwapchainAcquireResult {
	frame := fc.current()
	results := make([]SwapchainAcquireResult, len(requests))

	for i, req := range requests {
		stage := req.Stage
		if stage == 0 {
			stage = vk.PipelineStageFlags2(vk.PipelineStageAllCommandsBit)
		}
		semaphore := fc.device.Sync.AcquireBinarySemaphore()
		frame.pendingBinarySemaphores = append(frame.pendingBinarySemaphores, semaphore)
		frame.pendingWaitSemaphores = append(frame.pendingWaitSemaphores, vk.SemaphoreSubmitInfo{
			SType:     vk.StructureTypeSemaphoreSubmitInfo,
			Semaphore: semaphore,
			StageMask: stage,
		})

		index, err := req.Swapchain.Acquire(semaphore)
		results[i] = SwapchainAcquireResult{Index: index, Err: err}
	}
	return results
}

// BeginCommandBuffer returns a fresh or recycled primary command buffer
// from the current frame slot's pool and begins recording into it.
func (fc *FrameContext) BeginCommandBuffer(flags vk.CommandBufferUsageFlags) (vk.CommandBuffer, error) {
	frame := fc.current()
	if frame.acquired != frame.submitted {
		return nil, fmt.Errorf("vkm: cannot begin another command buffer until the current one ends")
	}

	var cb vk.CommandBuffer
	if len(frame.commandBuffers) > frame.acquired {
		cb = frame.commandBuffers[frame.acquired]
	} else {
		allocInfo := vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        frame.commandPool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}
		buffers := make([]vk.CommandBuffer, 1)
		if ret := vk.AllocateCommandBuffers(fc.device.Device, &allocInfo, buffers); ret != vk.Success {
			return nil, fmt.Errorf("vkm: failed to allocate command buffer: %s", resultString(ret))
		}
		cb = buffers[0]
		frame.commandBuffers = append(frame.commandBuffers, cb)
	}

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit) | flags,
	}
	if ret := vk.BeginCommandBuffer(cb, &beginInfo); ret != vk.Success {
		return nil, fmt.Errorf("vkm: failed to begin command buffer: %s", resultString(ret))
	}
	frame.acquired++
	return cb, nil
}

// EndCommandBuffer ends the most recently begun command buffer and submits
// it via vkQueueSubmit2, folding in the frame's pending swapchain-acquire
// wait semaphores, any caller-supplied extra wait/signal semaphores, the
// timeline semaphore's next signal value, and the caller's present
// requests (each of which signals the swapchain's own semaphore before
// presenting).
func (fc *FrameContext) EndCommandBuffer(extraWaits, extraSignals []vk.SemaphoreSubmitInfo, presents []PresentRequest) error {
	frame := fc.current()
	if frame.acquired == frame.submitted {
		return fmt.Errorf("vkm: no active command buffer to end")
	}
	cb := frame.commandBuffers[frame.submitted]

	if ret := vk.EndCommandBuffer(cb); ret != vk.Success {
		return fmt.Errorf("vkm: failed to end command buffer: %s", resultString(ret))
	}

	waits := append(append([]vk.SemaphoreSubmitInfo{}, frame.pendingWaitSemaphores...), extraWaits...)

	signals := make([]vk.SemaphoreSubmitInfo, 0, len(presents)+len(extraSignals)+1)
	for _, p := range presents {
		stage := p.Stage
		if stage == 0 {
			stage = vk.PipelineStageFlags2(vk.PipelineStageAllCommandsBit)
		}
		signals = append(signals, vk.SemaphoreSubmitInfo{
			SType:     vk.StructureTypeSemaphoreSubmitInfo,
			Semaphore: p.Swapchain.Semaphore(),
			StageMask: stage,
		})
	}
	fc.pendingValue++
	signals = append(signals, vk.SemaphoreSubmitInfo{
		SType:     vk.StructureTypeSemaphoreSubmitInfo,
		Semaphore: fc.semaphore,
		Value:     fc.pendingValue,
		StageMask: vk.PipelineStageFlags2(vk.PipelineStageAllCommandsBit),
	})
	signals = append(signals, extraSignals...)

	submitInfo := vk.SubmitInfo2{
		SType: vk.StructureTypeSubmitInfo2,
		CommandBufferInfoCount: 1,
		PCommandBufferInfos: []vk.CommandBufferSubmitInfo{{
			SType:         vk.StructureTypeCommandBufferSubmitInfo,
			CommandBuffer: cb,
		}},
		WaitSemaphoreInfoCount:   uint32(len(waits)),
		PWaitSemaphoreInfos:      waits,
		SignalSemaphoreInfoCount: uint32(len(signals)),
		PSignalSemaphoreInfos:    signals,
	}
	if ret := vk.QueueSubmit2(fc.queue, 1, []vk.SubmitInfo2{submitInfo}, vk.NullFence); ret != vk.Success {
		fatalf(fc.logger, "vkm: failed to submit command buffer: %s", resultString(ret))
	}

	frame.pendingWaitSemaphores = frame.pendingWaitSemaphores[:0]
	frame.pendingSignalSemaphores = frame.pendingSignalSemaphores[:0]
	frame.submitted++

	for _, p := range presents {
		if err := p.Swapchain.Present(fc.queue); err != nil {
			return err
		}
	}
	return nil
}

// End closes out the frame slot and advances the round-robin index.
func (fc *FrameContext) End() error {
	frame := fc.current()
	if frame.acquired != frame.submitted {
		return fmt.Errorf("vkm: cannot end context before ending the active command buffer")
	}
	frame.pendingSemaphoreValue = fc.pendingValue
	fc.frameID = (fc.frameID + 1) % len(fc.frames)
	return nil
}

// Wait blocks until every submission made through this context has
// completed on the GPU.
func (fc *FrameContext) Wait() error {
	return waitTimelineSemaphore(fc.device.Device, fc.semaphore, fc.pendingValue)
}

// Destroy waits for all pending work, drains every frame slot's deferred
// resources, and tears down the command pools and timeline semaphore.
func (fc *FrameContext) Destroy() {
	_ = fc.Wait()
	vk.DestroySemaphore(fc.device.Device, fc.semaphore, nil)
	for _, frame := range fc.frames {
		for _, d := range frame.pendingDestroyers {
			d()
		}
		for _, s := range frame.pendingBinarySemaphores {
			fc.device.Sync.ReleaseBinarySemaphore(s)
		}
		for _, b := range frame.pendingScratchBuffers {
			vk.UnmapMemory(fc.device.Device, b.memory)
			vk.DestroyBuffer(fc.device.Device, b.buffer, nil)
			vk.FreeMemory(fc.device.Device, b.memory, nil)
		}
		if len(frame.commandBuffers) > 0 {
			vk.FreeCommandBuffers(fc.device.Device, frame.commandPool, uint32(len(frame.commandBuffers)), frame.commandBuffers)
		}
		vk.DestroyCommandPool(fc.device.Device, frame.commandPool, nil)
	}
	fc.frames = nil
}
