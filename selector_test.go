package vkm

import (
	"testing"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

func fakePhysicalDevice(tag int) vk.PhysicalDevice {
	backing := new(int)
	*backing = tag
	return vk.PhysicalDevice(unsafe.Pointer(backing))
}

func TestSelectorVetoRejectsWithoutFurtherChecks(t *testing.T) {
	pd := fakePhysicalDevice(1)
	uuid := NewDeviceUUID(1, 1, 0)

	s := &Selector{
		veto:   func(vk.PhysicalDevice) bool { return true },
		logger: defaultLogger,
	}

	if _, ok := s.checkDevice(pd, uuid); ok {
		t.Fatalf("checkDevice() ok = true, want false for a vetoed device")
	}
	reasons := s.RejectReasons()
	if len(reasons) != 1 {
		t.Fatalf("RejectReasons() = %v, want exactly one entry", reasons)
	}
	if reasons[0].Device != pd || reasons[0].UUID != uuid || reasons[0].Reason != "Vetoed by caller" {
		t.Fatalf("unexpected rejection recorded: %+v", reasons[0])
	}
}

func TestSelectorRejectAccumulatesInOrder(t *testing.T) {
	s := &Selector{logger: defaultLogger}
	pdA, pdB := fakePhysicalDevice(1), fakePhysicalDevice(2)
	uuidA, uuidB := NewDeviceUUID(1, 1, 0), NewDeviceUUID(2, 2, 1)

	s.reject(pdA, uuidA, "first reason")
	s.reject(pdB, uuidB, "second reason")

	reasons := s.RejectReasons()
	if len(reasons) != 2 {
		t.Fatalf("RejectReasons() length = %d, want 2", len(reasons))
	}
	if reasons[0].Reason != "first reason" || reasons[1].Reason != "second reason" {
		t.Fatalf("rejections out of order: %+v", reasons)
	}
}

func TestDependencyVersionParsesCoreVersionTokens(t *testing.T) {
	version, ok := dependencyVersion("VERSION_1_2")
	if !ok {
		t.Fatalf("dependencyVersion(VERSION_1_2) reported not-a-version")
	}
	if want := uint32(vk.MakeVersion(1, 2, 0)); version != want {
		t.Fatalf("dependencyVersion(VERSION_1_2) = %#x, want %#x", version, want)
	}
}

func TestDependencyVersionRejectsExtensionTokens(t *testing.T) {
	if _, ok := dependencyVersion("VK_KHR_maintenance4"); ok {
		t.Fatalf("dependencyVersion reported an extension token as a core version")
	}
}

func TestAppendUniqueDeduplicates(t *testing.T) {
	list := appendUnique(nil, "VK_KHR_swapchain")
	list = appendUnique(list, "VK_KHR_swapchain")
	list = appendUnique(list, "VK_EXT_swapchain_maintenance1")

	if len(list) != 2 {
		t.Fatalf("appendUnique produced duplicates: %v", list)
	}
}
