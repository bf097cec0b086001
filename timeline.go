package vkm

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// newTimelineSemaphore creates a timeline semaphore seeded at initialValue.
func newTimelineSemaphore(device vk.Device, initialValue uint64) (vk.Semaphore, error) {
	typeInfo := vk.SemaphoreTypeCreateInfo{
		SType:         vk.StructureTypeSemaphoreTypeCreateInfo,
		SemaphoreType: vk.SemaphoreTypeTimeline,
		InitialValue:  initialValue,
	}
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
		PNext: unsafe.Pointer(&typeInfo),
	}
	var s vk.Semaphore
	if ret := vk.CreateSemaphore(device, &info, nil, &s); ret != vk.Success {
		return nil, fmt.Errorf("vkm: failed to create timeline semaphore: %s", resultString(ret))
	}
	return s, nil
}

// signalTimelineSemaphore signals semaphore to value from the host side.
func signalTimelineSemaphore(device vk.Device, semaphore vk.Semaphore, value uint64) error {
	info := vk.SemaphoreSignalInfo{
		SType:     vk.StructureTypeSemaphoreSignalInfo,
		Semaphore: semaphore,
		Value:     value,
	}
	if ret := vk.SignalSemaphore(device, &info); ret != vk.Success {
		return fmt.Errorf("vkm: failed to signal timeline semaphore: %s", resultString(ret))
	}
	return nil
}

// waitTimelineSemaphore blocks until semaphore reaches value or
// waitTimeoutNanos elapses.
func waitTimelineSemaphore(device vk.Device, semaphore vk.Semaphore, value uint64) error {
	semaphores := []vk.Semaphore{semaphore}
	values := []uint64{value}
	info := vk.SemaphoreWaitInfo{
		SType:          vk.StructureTypeSemaphoreWaitInfo,
		SemaphoreCount: 1,
		PSemaphores:    semaphores,
		PValues:        values,
	}
	if ret := vk.WaitSemaphores(device, &info, waitTimeoutNanos); ret != vk.Success {
		return fmt.Errorf("vkm: failed waiting on timeline semaphore: %s", resultString(ret))
	}
	return nil
}

// timelineSemaphoreValue returns semaphore's current counter value.
func timelineSemaphoreValue(device vk.Device, semaphore vk.Semaphore) (uint64, error) {
	var value uint64
	if ret := vk.GetSemaphoreCounterValue(device, semaphore, &value); ret != vk.Success {
		return 0, fmt.Errorf("vkm: failed getting timeline semaphore value: %s", resultString(ret))
	}
	return value, nil
}
