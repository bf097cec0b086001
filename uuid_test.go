package vkm

import (
	"testing"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// fakePhysicalDevices returns n distinct, non-nil PhysicalDevice handles
// for exercising UUID lookup without a real driver.
func fakePhysicalDevices(n int) []vk.PhysicalDevice {
	backing := make([]int, n)
	devices := make([]vk.PhysicalDevice, n)
	for i := range backing {
		devices[i] = vk.PhysicalDevice(unsafe.Pointer(&backing[i]))
	}
	return devices
}

func TestDeviceUUIDRoundTrip(t *testing.T) {
	u := NewDeviceUUID(0x10DE, 0x2684, 3)

	if got := u.VendorID(); got != 0x10DE {
		t.Errorf("VendorID() = %#x, want %#x", got, 0x10DE)
	}
	if got := u.DeviceID(); got != 0x2684 {
		t.Errorf("DeviceID() = %#x, want %#x", got, 0x2684)
	}
	if got := u.Index(); got != 3 {
		t.Errorf("Index() = %d, want 3", got)
	}
	if u[6] != 0x80 || u[8] != 0xF0 {
		t.Errorf("version/variant bytes not set: %x", u)
	}
}

func TestGetPhysicalDeviceFromUUIDFastPath(t *testing.T) {
	devices := fakePhysicalDevices(2)
	uuids := []DeviceUUID{
		NewDeviceUUID(1, 1, 0),
		NewDeviceUUID(2, 2, 1),
	}

	got, ok := GetPhysicalDeviceFromUUID(devices, uuids, uuids[1])
	if !ok || got != devices[1] {
		t.Fatalf("fast path lookup failed: got %v, ok %v", got, ok)
	}
}

func TestGetPhysicalDeviceFromUUIDFallback(t *testing.T) {
	devices := fakePhysicalDevices(1)
	uuids := []DeviceUUID{NewDeviceUUID(1, 1, 5)} // index 5 is out of range

	got, ok := GetPhysicalDeviceFromUUID(devices, uuids, uuids[0])
	if !ok || got != devices[0] {
		t.Fatalf("linear-scan fallback failed: got %v, ok %v", got, ok)
	}
}

func TestGetPhysicalDeviceFromUUIDMiss(t *testing.T) {
	devices := fakePhysicalDevices(1)
	uuids := []DeviceUUID{NewDeviceUUID(1, 1, 0)}

	_, ok := GetPhysicalDeviceFromUUID(devices, uuids, NewDeviceUUID(9, 9, 9))
	if ok {
		t.Fatalf("expected no match for unknown uuid")
	}
}
