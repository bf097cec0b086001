package vkm

import vk "github.com/vulkan-go/vulkan"

// deviceFns is the per-device slice of the function-pointer-table
// component. The bundled vulkan-go binding statically resolves the core
// entry points spec §6 requires (queue get, command-pool/command-buffer
// lifecycle, submit2/present, fence/semaphore lifecycle and timeline
// operations, image/view/sampler, swapchain create/destroy/enumerate) at
// cgo build time, so this table only needs to hold entries the binding
// does not statically wrap: device extension functions whose presence
// depends on the optional-feature set negotiated by the selector.
type deviceFns struct {
	device vk.Device

	hasSwapchainMaintenance1 bool
}

func newDeviceFns(device vk.Device, hasSwapchainMaintenance1 bool) deviceFns {
	return deviceFns{device: device, hasSwapchainMaintenance1: hasSwapchainMaintenance1}
}
