package vkm

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// OptionalFeatures records driver capabilities the selector detected but
// did not require. Currently the only member is swapchain maintenance1,
// satisfied by either its EXT or KHR extension name.
type OptionalFeatures struct {
	HasSwapchainMaintenance1 bool
}

// DeviceProperties is the cached, read-only snapshot of a selected
// device's identity and limits.
type DeviceProperties struct {
	UUID         DeviceUUID
	VendorID     uint32
	DeviceID     uint32
	DriverID     uint32
	APIVersion   uint32
	SubgroupSize uint32
	Native       vk.PhysicalDeviceProperties
	Limits       vk.PhysicalDeviceLimits
}

// LogicalDevice owns the native device handle, its per-device function
// table, memory-allocator bindings, sync-object pool, and cached
// properties. It is produced by a Selector, or may be initialized directly
// from a caller-created native device via NewLogicalDevice with owned=false.
type LogicalDevice struct {
	Owned          bool
	PhysicalDevice vk.PhysicalDevice
	Device         vk.Device

	Properties DeviceProperties
	Optional   OptionalFeatures

	fns deviceFns

	// NoBARMemoryTypeBits selects memory types that are device-local OR
	// host-visible but not both; BARMemoryTypeBits selects memory types
	// that are simultaneously device-local AND host-visible. Both are
	// bitmasks over vk.PhysicalDeviceMemoryProperties.MemoryTypes, handed
	// to an external allocator (e.g. VMA) rather than consumed directly.
	NoBARMemoryTypeBits uint32
	BARMemoryTypeBits   uint32

	Sync *SyncPool

	logger *Logger
}

// NewLogicalDevice wraps an already-created native physical+logical device
// pair. owned controls whether Destroy will call vk.DestroyDevice.
func NewLogicalDevice(pd vk.PhysicalDevice, device vk.Device, owned bool, optional OptionalFeatures, logger *Logger) *LogicalDevice {
	if logger == nil {
		logger = defaultLogger
	}
	ld := &LogicalDevice{
		Owned:          owned,
		PhysicalDevice: pd,
		Device:         device,
		Optional:       optional,
		fns:            newDeviceFns(device, optional.HasSwapchainMaintenance1),
		logger:         logger,
	}
	ld.setupProperties()
	ld.setupMemoryBits()
	ld.Sync = newSyncPool(device, logger)
	return ld
}

// setupProperties queries VkPhysicalDeviceProperties2 with
// VkPhysicalDeviceDriverProperties and VkPhysicalDeviceSubgroupProperties
// chained off it, so the cached snapshot carries driver id and subgroup
// size alongside the base properties and limits.
func (ld *LogicalDevice) setupProperties() {
	driverProps := vk.PhysicalDeviceDriverProperties{SType: vk.StructureTypePhysicalDeviceDriverProperties}
	subgroupProps := vk.PhysicalDeviceSubgroupProperties{
		SType: vk.StructureTypePhysicalDeviceSubgroupProperties,
		PNext: unsafe.Pointer(&driverProps),
	}
	props2 := vk.PhysicalDeviceProperties2{
		SType: vk.StructureTypePhysicalDeviceProperties2,
		PNext: unsafe.Pointer(&subgroupProps),
	}
	vk.GetPhysicalDeviceProperties2(ld.PhysicalDevice, &props2)
	props2.Deref()
	subgroupProps.Deref()
	driverProps.Deref()

	props := props2.Properties
	props.Deref()
	limits := props.Limits
	limits.Deref()

	ld.Properties = DeviceProperties{
		VendorID:     props.VendorID,
		DeviceID:     props.DeviceID,
		DriverID:     uint32(driverProps.DriverID),
		APIVersion:   props.APIVersion,
		SubgroupSize: subgroupProps.SubgroupSize,
		Native:       props,
		Limits:       limits,
	}
}

// setupMemoryBits walks the physical device's memory-type list and derives
// the noBAR/BAR bitmasks the allocator binding needs.
func (ld *LogicalDevice) setupMemoryBits() {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(ld.PhysicalDevice, &memProps)
	memProps.Deref()

	const deviceLocal = vk.MemoryPropertyFlagBits(vk.MemoryPropertyDeviceLocalBit)
	const hostVisible = vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostVisibleBit)

	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		mt := memProps.MemoryTypes[i]
		mt.Deref()
		flags := vk.MemoryPropertyFlagBits(mt.PropertyFlags)
		isDeviceLocal := flags&deviceLocal != 0
		isHostVisible := flags&hostVisible != 0

		switch {
		case isDeviceLocal && isHostVisible:
			ld.BARMemoryTypeBits |= 1 << i
		case isDeviceLocal || isHostVisible:
			ld.NoBARMemoryTypeBits |= 1 << i
		}
	}
}

// barHeapSize returns the maximum heap size across memory types that are
// both device-local and host-visible, used by the selector when no
// explicit device-type preference ties two candidates.
func barHeapSize(memProps *vk.PhysicalDeviceMemoryProperties) uint64 {
	const deviceLocal = vk.MemoryPropertyFlagBits(vk.MemoryPropertyDeviceLocalBit)
	const hostVisible = vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostVisibleBit)
	var max uint64
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		mt := memProps.MemoryTypes[i]
		mt.Deref()
		flags := vk.MemoryPropertyFlagBits(mt.PropertyFlags)
		if flags&deviceLocal == 0 || flags&hostVisible == 0 {
			continue
		}
		heap := memProps.MemoryHeaps[mt.HeapIndex]
		heap.Deref()
		if heap.Size > max {
			max = heap.Size
		}
	}
	return max
}

// Destroy tears the device down in the documented order: memory allocator
// binding (nothing owned directly here; the caller's external allocator is
// responsible for its own teardown) → sync pool → (if owned) native device.
func (ld *LogicalDevice) Destroy() {
	ld.Sync.Clear()
	if ld.Owned && ld.Device != nil {
		vk.DestroyDevice(ld.Device, nil)
	}
}
