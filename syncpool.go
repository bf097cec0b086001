package vkm

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// waitTimeoutNanos is the one-second universal wait timeout the original
// source applies uniformly; exceeding it anywhere is fatal. Exposed as a
// variable, not a constant, per the open question in the design notes:
// callers with deliberately long GPU workloads may need to override it.
var waitTimeoutNanos uint64 = 1_000_000_000

// SyncPool owns two free-lists of reusable binary semaphores and fences for
// one logical device. Lifetime is tied to the device; nothing is returned
// to the driver between Acquire and Release.
type SyncPool struct {
	device vk.Device
	logger *Logger

	freeSemaphores []vk.Semaphore
	freeFences     []vk.Fence
}

func newSyncPool(device vk.Device, logger *Logger) *SyncPool {
	return &SyncPool{device: device, logger: logger}
}

// AcquireBinarySemaphore pops a free semaphore or creates a fresh one.
func (p *SyncPool) AcquireBinarySemaphore() vk.Semaphore {
	if n := len(p.freeSemaphores); n > 0 {
		s := p.freeSemaphores[n-1]
		p.freeSemaphores = p.freeSemaphores[:n-1]
		return s
	}
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var s vk.Semaphore
	if ret := vk.CreateSemaphore(p.device, &info, nil, &s); ret != vk.Success {
		fatalf(p.logger, "Failed to create semaphore: %s", resultString(ret))
	}
	debugLabel(p.logger, "semaphore", "acquired")
	return s
}

// ReleaseBinarySemaphore pushes s back onto the free-list. It is never
// destroyed here; destruction happens only in Clear.
func (p *SyncPool) ReleaseBinarySemaphore(s vk.Semaphore) {
	p.freeSemaphores = append(p.freeSemaphores, s)
	debugLabel(p.logger, "semaphore", "released")
}

// AcquireFence pops a free fence, resetting it unless the caller asked for
// a pre-signalled one, or creates a fresh fence in the requested state.
func (p *SyncPool) AcquireFence(signalled bool) vk.Fence {
	if n := len(p.freeFences); n > 0 {
		f := p.freeFences[n-1]
		p.freeFences = p.freeFences[:n-1]
		if !signalled {
			if ret := vk.ResetFences(p.device, 1, []vk.Fence{f}); ret != vk.Success {
				fatalf(p.logger, "Failed to reset fence: %s", resultString(ret))
			}
		}
		return f
	}

	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signalled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if ret := vk.CreateFence(p.device, &info, nil, &f); ret != vk.Success {
		fatalf(p.logger, "Failed to create fence: %s", resultString(ret))
	}
	debugLabel(p.logger, "fence", "acquired")
	return f
}

// ReleaseFence waits the fence with a zero timeout to assert it is
// signalled (fatal otherwise), then pushes it back onto the free-list.
func (p *SyncPool) ReleaseFence(f vk.Fence) {
	if ret := vk.WaitForFences(p.device, 1, []vk.Fence{f}, vk.True, 0); ret != vk.Success {
		fatalf(p.logger, "Cannot release fence: %s", resultString(ret))
	}
	p.freeFences = append(p.freeFences, f)
	debugLabel(p.logger, "fence", "released")
}

// Clear destroys every free-listed semaphore and fence and empties both
// lists.
func (p *SyncPool) Clear() {
	for _, s := range p.freeSemaphores {
		vk.DestroySemaphore(p.device, s, nil)
	}
	for _, f := range p.freeFences {
		vk.DestroyFence(p.device, f, nil)
	}
	p.freeSemaphores = nil
	p.freeFences = nil
}

func resultString(ret vk.Result) string {
	return fmt.Sprintf("%v (%d)", ret, int32(ret))
}

func fatalf(logger *Logger, format string, args ...any) {
	if logger == nil {
		logger = defaultLogger
	}
	logger.log(LogFatal, nil, fmt.Sprintf(format, args...))
	panic(fmt.Sprintf(format, args...))
}
