package vkm

import (
	"fmt"
	"sort"

	vk "github.com/vulkan-go/vulkan"
)

// instanceExtensionNames lists every instance extension the loader reports
// available on this platform.
func instanceExtensionNames() ([]string, error) {
	var count uint32
	if ret := vk.EnumerateInstanceExtensionProperties("", &count, nil); ret != vk.Success {
		return nil, fmt.Errorf("vkm: failed to count instance extensions: %s", resultString(ret))
	}
	list := make([]vk.ExtensionProperties, count)
	if ret := vk.EnumerateInstanceExtensionProperties("", &count, list); ret != vk.Success {
		return nil, fmt.Errorf("vkm: failed to enumerate instance extensions: %s", resultString(ret))
	}
	names := make([]string, 0, len(list))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// deviceExtensionNames lists every extension pd's driver reports available.
func deviceExtensionNames(pd vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if ret := vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil); ret != vk.Success {
		return nil, fmt.Errorf("vkm: failed to count device extensions: %s", resultString(ret))
	}
	list := make([]vk.ExtensionProperties, count)
	if ret := vk.EnumerateDeviceExtensionProperties(pd, "", &count, list); ret != vk.Success {
		return nil, fmt.Errorf("vkm: failed to enumerate device extensions: %s", resultString(ret))
	}
	names := make([]string, 0, len(list))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// extensionSet is the selector's reconciliation state for one scope
// (instance or device): a required list that must all be present and an
// optional list whose members are enabled opportunistically.
type extensionSet struct {
	required []string
	optional []string
	enabled  []string
	missing  []string
}

// reconcile checks required/optional against available, populating enabled
// (required first, then the optional members that were found, then
// sorted-and-deduplicated to match the original's sortComptact step) and
// missing (required names not present). Returns false if any required
// extension is missing.
func (s *extensionSet) reconcile(available []string) bool {
	s.enabled = nil
	s.missing = nil
	ok := true

	for _, req := range s.required {
		if contains(available, req) {
			s.enabled = append(s.enabled, req)
		} else {
			s.missing = append(s.missing, req)
			ok = false
		}
	}
	for _, opt := range s.optional {
		if contains(s.enabled, opt) {
			continue
		}
		if contains(available, opt) {
			s.enabled = append(s.enabled, opt)
		}
	}
	sort.Strings(s.enabled)
	return ok
}

// Has reports whether name ended up in the enabled set, for optional
// extensions whose presence gates a feature (e.g. swapchain maintenance1).
func (s *extensionSet) Has(name string) bool {
	return contains(s.enabled, name)
}

const (
	extSwapchainMaintenance1EXT = "VK_EXT_swapchain_maintenance1"
	extSwapchainMaintenance1KHR = "VK_KHR_swapchain_maintenance1"
)

// hasSwapchainMaintenance1 implements the optional-feature detection rule:
// either the EXT or the KHR extension name independently satisfies it.
func (s *extensionSet) hasSwapchainMaintenance1() bool {
	return s.Has(extSwapchainMaintenance1EXT) || s.Has(extSwapchainMaintenance1KHR)
}

// extensionKind is which scope a catalog extension belongs to.
type extensionKind int

const (
	extensionKindInstance extensionKind = iota
	extensionKindDevice
)

func (k extensionKind) String() string {
	if k == extensionKindInstance {
		return "instance"
	}
	return "device"
}

// extensionDescriptor is a read-only catalog entry for one known extension
// name: its scope and the names of the extensions it depends on. Mirrors
// reflect.go's StructDescriptor for the struct catalog.
type extensionDescriptor struct {
	Name                 string
	Kind                 extensionKind
	InstanceDependencies []string
	DeviceDependencies   []string
}

var extensionCatalog = map[string]*extensionDescriptor{}

func registerExtension(name string, kind extensionKind, instanceDeps, deviceDeps []string) {
	extensionCatalog[name] = &extensionDescriptor{
		Name:                 name,
		Kind:                 kind,
		InstanceDependencies: instanceDeps,
		DeviceDependencies:   deviceDeps,
	}
}

func init() {
	registerExtension("VK_KHR_surface", extensionKindInstance, nil, nil)
	registerExtension("VK_KHR_win32_surface", extensionKindInstance, nil, nil)
	registerExtension("VK_KHR_xlib_surface", extensionKindInstance, nil, nil)
	registerExtension("VK_KHR_xcb_surface", extensionKindInstance, nil, nil)
	registerExtension("VK_KHR_wayland_surface", extensionKindInstance, nil, nil)
	registerExtension("VK_MVK_macos_surface", extensionKindInstance, nil, nil)
	registerExtension("VK_EXT_metal_surface", extensionKindInstance, nil, nil)
	registerExtension("VK_KHR_android_surface", extensionKindInstance, nil, nil)
	registerExtension("VK_KHR_get_surface_capabilities2", extensionKindInstance, []string{"VK_KHR_surface"}, nil)
	registerExtension("VK_EXT_surface_maintenance1", extensionKindInstance,
		[]string{"VK_KHR_surface", "VK_KHR_get_surface_capabilities2"}, nil)
	registerExtension("VK_KHR_surface_maintenance1", extensionKindInstance,
		[]string{"VK_KHR_surface", "VK_KHR_get_surface_capabilities2"}, nil)

	registerExtension("VK_KHR_swapchain", extensionKindDevice, []string{"VK_KHR_surface"}, nil)
	registerExtension(extSwapchainMaintenance1EXT, extensionKindDevice,
		[]string{"VK_EXT_surface_maintenance1"}, []string{"VK_KHR_swapchain"})
	registerExtension(extSwapchainMaintenance1KHR, extensionKindDevice,
		[]string{"VK_KHR_surface_maintenance1"}, []string{"VK_KHR_swapchain"})

	registerExtension("VK_KHR_synchronization2", extensionKindDevice, nil, nil)
	registerExtension("VK_KHR_timeline_semaphore", extensionKindDevice, nil, nil)
	registerExtension("VK_KHR_maintenance4", extensionKindDevice, nil, nil)
	registerExtension("VK_KHR_buffer_device_address", extensionKindDevice, nil, nil)
}

// addExtension is the single entry point backing RequireExtension,
// WantExtension, RequireInstanceExtension, and WantInstanceExtension: it
// looks name up in the extension catalog (panicking if unknown or if its
// kind doesn't match the scope the caller asked for), records it in the
// matching extensionSet, and transitively requires or wants its own
// dependency extensions at the same required-ness. Grounded on
// vkm_initializer_findExtension's reflect::extension() lookup and its
// instanceDependency/deviceDependency walk.
func (s *Selector) addExtension(name string, required, device bool) {
	d, ok := extensionCatalog[name]
	if !ok {
		panic(fmt.Sprintf("vkm: cannot add unknown extension: %s", name))
	}
	wantKind := extensionKindInstance
	if device {
		wantKind = extensionKindDevice
	}
	if d.Kind != wantKind {
		panic(fmt.Sprintf("vkm: %s is a %s extension, not a %s extension", name, d.Kind, wantKind))
	}

	set := &s.instanceExt
	if device {
		set = &s.deviceExt
	}
	if required {
		set.required = appendUnique(set.required, name)
	} else {
		set.optional = appendUnique(set.optional, name)
	}

	for _, dep := range d.InstanceDependencies {
		if required {
			s.RequireInstanceExtension(dep)
		} else {
			s.WantInstanceExtension(dep)
		}
	}
	for _, dep := range d.DeviceDependencies {
		if required {
			s.RequireExtension(dep)
		} else {
			s.WantExtension(dep)
		}
	}
}
