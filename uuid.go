package vkm

import vk "github.com/vulkan-go/vulkan"

// deviceUUIDSize mirrors VK_UUID_SIZE without depending on the binding
// exposing it under a particular constant name.
const deviceUUIDSize = 16

// DeviceUUID is a 16-byte identifier synthesized by this package — not
// Vulkan's own reported device UUID. It embeds the physical device's
// enumeration index so GetPhysicalDeviceFromUUID can short-circuit to
// devices[index] rather than performing a linear rescan.
type DeviceUUID [deviceUUIDSize]byte

// NewDeviceUUID synthesizes a UUID for a physical device found at the given
// enumeration index. Layout: bytes 0-3 little-endian vendorID; bytes 4-5
// little-endian index; byte 6 = 0x80; byte 8 = 0xF0; bytes 10-13
// little-endian deviceID; remaining bytes zero.
func NewDeviceUUID(vendorID, deviceID uint32, index uint16) DeviceUUID {
	var u DeviceUUID
	u[0] = byte(vendorID)
	u[1] = byte(vendorID >> 8)
	u[2] = byte(vendorID >> 16)
	u[3] = byte(vendorID >> 24)
	u[4] = byte(index)
	u[5] = byte(index >> 8)
	u[6] = 0x80
	u[8] = 0xF0
	u[10] = byte(deviceID)
	u[11] = byte(deviceID >> 8)
	u[12] = byte(deviceID >> 16)
	u[13] = byte(deviceID >> 24)
	return u
}

// Index extracts the enumeration index embedded at bytes 4-5.
func (u DeviceUUID) Index() uint16 {
	return uint16(u[4]) | uint16(u[5])<<8
}

// VendorID extracts the little-endian vendor id embedded at bytes 0-3.
func (u DeviceUUID) VendorID() uint32 {
	return uint32(u[0]) | uint32(u[1])<<8 | uint32(u[2])<<16 | uint32(u[3])<<24
}

// DeviceID extracts the little-endian device id embedded at bytes 10-13.
func (u DeviceUUID) DeviceID() uint32 {
	return uint32(u[10]) | uint32(u[11])<<8 | uint32(u[12])<<16 | uint32(u[13])<<24
}

// GetPhysicalDeviceFromUUID short-circuits to devices[uuid.Index()] when
// that slot's synthesized UUID still matches, avoiding a linear rescan.
func GetPhysicalDeviceFromUUID(devices []vk.PhysicalDevice, uuids []DeviceUUID, uuid DeviceUUID) (vk.PhysicalDevice, bool) {
	i := uuid.Index()
	if int(i) < len(devices) && int(i) < len(uuids) && uuids[i] == uuid {
		return devices[i], true
	}
	for i, candidate := range uuids {
		if candidate == uuid {
			return devices[i], true
		}
	}
	return nil, false
}
