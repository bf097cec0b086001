package vkm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// PreferType is the selector's device-type sort preference.
type PreferType int

const (
	PreferSystem PreferType = iota
	PreferIntegrated
	PreferDiscrete
)

func (p PreferType) vkType() vk.PhysicalDeviceType {
	switch p {
	case PreferIntegrated:
		return vk.PhysicalDeviceTypeIntegratedGpu
	case PreferDiscrete:
		return vk.PhysicalDeviceTypeDiscreteGpu
	default:
		return vk.PhysicalDeviceTypeOther
	}
}

// VetoFunc lets a caller reject an otherwise-eligible device for reasons
// the selector cannot express declaratively (driver version blocklists,
// benchmarked performance, etc). Returning true vetoes the device.
type VetoFunc func(vk.PhysicalDevice) bool

// RejectReason records why one candidate device did not survive checking.
type RejectReason struct {
	Device vk.PhysicalDevice
	UUID   DeviceUUID
	Reason string
}

type formatRequirement struct {
	Format   vk.Format
	Features vk.FormatFeatureFlags2
}

// Selector is the Device Selector builder: accumulate requirements with
// its mutators, then call CreateInstance and CreateDevice.
type Selector struct {
	api        uint32
	preferType PreferType
	veto       VetoFunc
	logger     *Logger

	instanceExt extensionSet
	deviceExt   extensionSet

	required *FeatureChain
	optional *FeatureChain
	enabled  *FeatureChain

	formats  []formatRequirement
	surfaces []vk.Surface
	queues   map[QueueClass]*QueueRequirement

	rejected []RejectReason
}

// NewSelector returns a selector requiring at least api, with the baseline
// feature set every device in this module needs: synchronization2 and
// maintenance4 from Vulkan 1.3, timelineSemaphore and bufferDeviceAddress
// from Vulkan 1.2.
func NewSelector(api uint32, preferType PreferType, veto VetoFunc, logger *Logger) *Selector {
	if logger == nil {
		logger = defaultLogger
	}
	s := &Selector{
		api:        api,
		preferType: preferType,
		veto:       veto,
		logger:     logger,
		required:   NewFeatureChain(),
		optional:   NewFeatureChain(),
		queues:     map[QueueClass]*QueueRequirement{},
	}
	s.RequireFeature(vk.StructureTypePhysicalDeviceVulkan13Features, map[string]bool{
		"Synchronization2": true,
		"Maintenance4":     true,
	})
	s.RequireFeature(vk.StructureTypePhysicalDeviceVulkan12Features, map[string]bool{
		"TimelineSemaphore":    true,
		"BufferDeviceAddress":  true,
	})
	for _, name := range InstanceExtensionsGLFW() {
		s.RequireInstanceExtension(name)
	}
	return s
}

func appendUnique(list []string, name string) []string {
	if contains(list, name) {
		return list
	}
	return append(list, name)
}

// RequireInstanceExtension adds name to the instance extension list that
// must be present or CreateInstance fails.
func (s *Selector) RequireInstanceExtension(name string) {
	s.addExtension(name, true, false)
}

// WantInstanceExtension adds name to the instance extension list enabled
// opportunistically when present.
func (s *Selector) WantInstanceExtension(name string) {
	s.addExtension(name, false, false)
}

// RequireExtension adds name to the device extension list that must be
// present on the selected device or it is rejected.
func (s *Selector) RequireExtension(name string) {
	s.addExtension(name, true, true)
}

// WantExtension adds name to the device extension list enabled
// opportunistically when present.
func (s *Selector) WantExtension(name string) {
	s.addExtension(name, false, true)
}

// dependencyVersion parses a "VERSION_1_N" dependency token into the
// Vulkan API version it names, or false if the token names an extension
// instead.
func dependencyVersion(token string) (uint32, bool) {
	if !strings.HasPrefix(token, "VERSION_1_") {
		return 0, false
	}
	minor, err := strconv.Atoi(strings.TrimPrefix(token, "VERSION_1_"))
	if err != nil {
		return 0, false
	}
	return uint32(vk.MakeVersion(1, uint32(minor), 0)), true
}

// requireDependency resolves one catalog dependency token: a core-version
// token is checked against the selector's required API immediately; an
// extension token is folded into the required or optional device
// extension list alongside the feature itself.
func (s *Selector) requireDependency(token string, required bool) {
	if version, ok := dependencyVersion(token); ok {
		if version > s.api {
			panic(fmt.Sprintf("vkm: feature requires Vulkan 1.%d but selector was created for 1.%d",
				vk.ApiVersionMinor(version), vk.ApiVersionMinor(s.api)))
		}
		return
	}
	if required {
		s.RequireExtension(token)
	} else {
		s.WantExtension(token)
	}
}

// RequireFeature OR-merges the named bool fields into sType's node in the
// required chain, auto-requiring any extension the catalog lists as a
// dependency of sType, and keeps the optional chain's node present so the
// two chains stay aligned.
func (s *Selector) RequireFeature(sType vk.StructureType, fields map[string]bool) {
	if d, ok := catalog[sType]; ok {
		for _, dep := range d.Dependencies {
			s.requireDependency(dep, true)
		}
	}
	for name, value := range fields {
		s.required.OrMergeBool(sType, name, value)
	}
	s.optional.EnsureNode(sType)
}

// WantFeature OR-merges the named bool fields into sType's node in the
// optional chain; the device need not support them, but they are enabled
// when it does.
func (s *Selector) WantFeature(sType vk.StructureType, fields map[string]bool) {
	if d, ok := catalog[sType]; ok {
		for _, dep := range d.Dependencies {
			s.requireDependency(dep, false)
		}
	}
	s.required.EnsureNode(sType)
	for name, value := range fields {
		s.optional.OrMergeBool(sType, name, value)
	}
}

// RequireImageFormatFeature requires format to report features among its
// optimal-tiling format features.
func (s *Selector) RequireImageFormatFeature(format vk.Format, features vk.FormatFeatureFlags2) {
	s.formats = append(s.formats, formatRequirement{Format: format, Features: features})
}

// RequirePresentationSupport requires at least one selected queue family
// to support presentation on surface.
func (s *Selector) RequirePresentationSupport(surface vk.Surface) {
	s.surfaces = append(s.surfaces, surface)
}

// RequireGraphicsQueue, RequireComputeQueue, RequireTransferQueue register
// a per-class queue requirement consumed by findQueues.
func (s *Selector) RequireGraphicsQueue(req QueueRequirement) error { return s.addQueue(QueueGraphics, req) }
func (s *Selector) RequireComputeQueue(req QueueRequirement) error  { return s.addQueue(QueueCompute, req) }
func (s *Selector) RequireTransferQueue(req QueueRequirement) error { return s.addQueue(QueueTransfer, req) }

func (s *Selector) addQueue(class QueueClass, req QueueRequirement) error {
	if err := req.normalize(); err != nil {
		return err
	}
	s.queues[class] = &req
	return nil
}

// GetInstanceExtensionList reconciles the selector's required/optional
// instance extensions against the platform's available list.
func (s *Selector) GetInstanceExtensionList() ([]string, error) {
	available, err := instanceExtensionNames()
	if err != nil {
		return nil, err
	}
	if !s.instanceExt.reconcile(available) {
		return nil, fmt.Errorf("vkm: missing required instance extensions: %v", s.instanceExt.missing)
	}
	return s.instanceExt.enabled, nil
}

// CreateInstance builds the platform instance with the reconciled instance
// extension list.
func (s *Selector) CreateInstance(appName string, appVersion uint32) (vk.Instance, error) {
	enabled, err := s.GetInstanceExtensionList()
	if err != nil {
		return nil, err
	}
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   appName,
		ApplicationVersion: appVersion,
		PEngineName:        "vkm",
		EngineVersion:      uint32(vk.MakeVersion(1, 0, 0)),
		ApiVersion:         s.api,
	}
	info := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(enabled)),
		PpEnabledExtensionNames: enabled,
	}
	var instance vk.Instance
	if ret := vk.CreateInstance(&info, nil, &instance); ret != vk.Success {
		return nil, fmt.Errorf("vkm: failed to create instance: %s", resultString(ret))
	}
	return instance, nil
}

// getDevices enumerates physical devices, synthesizes their UUIDs, and
// stable-sorts them by preferred device type, then API version, then
// BAR-capable heap size, matching the selector's documented tie-break
// order.
func (s *Selector) getDevices(instance vk.Instance) ([]vk.PhysicalDevice, []DeviceUUID, error) {
	var count uint32
	if ret := vk.EnumeratePhysicalDevices(instance, &count, nil); ret != vk.Success {
		return nil, nil, fmt.Errorf("vkm: failed to count physical devices: %s", resultString(ret))
	}
	if count == 0 {
		return nil, nil, fmt.Errorf("vkm: no physical devices available")
	}
	devices := make([]vk.PhysicalDevice, count)
	if ret := vk.EnumeratePhysicalDevices(instance, &count, devices); ret != vk.Success {
		return nil, nil, fmt.Errorf("vkm: failed to enumerate physical devices: %s", resultString(ret))
	}

	uuids := make([]DeviceUUID, count)
	props := make([]vk.PhysicalDeviceProperties, count)
	mem := make([]vk.PhysicalDeviceMemoryProperties, count)
	for i, pd := range devices {
		vk.GetPhysicalDeviceProperties(pd, &props[i])
		props[i].Deref()
		uuids[i] = NewDeviceUUID(props[i].VendorID, props[i].DeviceID, uint16(i))
		vk.GetPhysicalDeviceMemoryProperties(pd, &mem[i])
		mem[i].Deref()
	}

	indices := make([]int, count)
	for i := range indices {
		indices[i] = i
	}
	want := s.preferType.vkType()
	sort.SliceStable(indices, func(a, b int) bool {
		i, j := indices[a], indices[b]
		if s.preferType != PreferSystem {
			if props[i].DeviceType == want && props[j].DeviceType != want {
				return true
			}
			if props[j].DeviceType == want && props[i].DeviceType != want {
				return false
			}
		}
		if props[i].ApiVersion != props[j].ApiVersion {
			return props[i].ApiVersion > props[j].ApiVersion
		}
		return barHeapSize(&mem[i]) > barHeapSize(&mem[j])
	})

	sortedDevices := make([]vk.PhysicalDevice, count)
	sortedUUIDs := make([]DeviceUUID, count)
	for pos, idx := range indices {
		sortedDevices[pos] = devices[idx]
		sortedUUIDs[pos] = uuids[idx]
	}
	return sortedDevices, sortedUUIDs, nil
}

func (s *Selector) reject(pd vk.PhysicalDevice, uuid DeviceUUID, reason string) {
	s.rejected = append(s.rejected, RejectReason{Device: pd, UUID: uuid, Reason: reason})
}

// findProperties rejects a device whose reported API version is below the
// selector's required minimum.
func (s *Selector) findProperties(pd vk.PhysicalDevice) (vk.PhysicalDeviceProperties, bool) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	if props.ApiVersion < s.api {
		return props, false
	}
	return props, true
}

// findFeatures queries the device's actual feature chain in the shape of
// the required chain, rejects if any required bool is unsupported, and
// builds the enabled chain as required-true plus optional-true-where-
// supported.
func (s *Selector) findFeatures(pd vk.PhysicalDevice) (string, bool) {
	have := s.required.Clone()
	native := have.NativeChain()
	vk.GetPhysicalDeviceFeatures2(pd, native)
	have.DerefAll()

	s.enabled = NewFeatureChain()
	ok := true
	var missing []string

	for _, sType := range s.required.Order() {
		reqNode := s.required.Node(sType)
		haveNode := have.Node(sType)
		optNode := s.optional.Node(sType)

		for _, field := range reqNode.FieldNames() {
			wants, _ := reqNode.BoolField(field)
			if !wants {
				continue
			}
			supported, _ := haveNode.BoolField(field)
			if !supported {
				ok = false
				missing = append(missing, fmt.Sprintf("Missing required feature %v.%s", sType, field))
				continue
			}
			s.enabled.OrMergeBool(sType, field, true)
		}
		if optNode != nil {
			for _, field := range optNode.FieldNames() {
				wants, _ := optNode.BoolField(field)
				if !wants {
					continue
				}
				if supported, _ := haveNode.BoolField(field); supported {
					s.enabled.OrMergeBool(sType, field, true)
				}
			}
		}
	}

	if !ok {
		return strings.Join(missing, "\n"), false
	}
	return "", true
}

// findExtensions reconciles the device extension list against the
// device's actually-available extensions.
func (s *Selector) findExtensions(pd vk.PhysicalDevice) (string, bool) {
	available, err := deviceExtensionNames(pd)
	if err != nil {
		return err.Error(), false
	}
	if !s.deviceExt.reconcile(available) {
		return fmt.Sprintf("Missing required extensions: %v", s.deviceExt.missing), false
	}
	return "", true
}

// findFormats checks every required (format, feature) pair against the
// device's optimal-tiling format features.
func (s *Selector) findFormats(pd vk.PhysicalDevice) (string, bool) {
	for _, req := range s.formats {
		props3 := vk.FormatProperties3{SType: vk.StructureTypeFormatProperties3}
		props2 := vk.FormatProperties2{SType: vk.StructureTypeFormatProperties2, PNext: unsafe.Pointer(&props3)}
		vk.GetPhysicalDeviceFormatProperties2(pd, req.Format, &props2)
		props3.Deref()
		if props3.OptimalTilingFeatures&req.Features != req.Features {
			return fmt.Sprintf("Missing required features for format %v: want 0x%X", req.Format, req.Features), false
		}
	}
	return "", true
}

// checkDevice runs every per-device check unconditionally and joins every
// failing check's reason with "\n" into a single rejection reason,
// matching initializer::checkDevice's appendRejectReason accumulation
// rather than stopping at the first failure. Only the veto short-circuits,
// since it is a caller-supplied blanket exclusion rather than a
// diagnosable requirement failure.
func (s *Selector) checkDevice(pd vk.PhysicalDevice, uuid DeviceUUID) ([]vk.DeviceQueueCreateInfo, bool) {
	if s.veto != nil && s.veto(pd) {
		s.reject(pd, uuid, "Vetoed by caller")
		return nil, false
	}

	var reasons []string
	ok := true

	if _, pok := s.findProperties(pd); !pok {
		reasons = append(reasons, "API version below required minimum")
		ok = false
	}
	if reason, fok := s.findFeatures(pd); !fok {
		reasons = append(reasons, reason)
		ok = false
	}
	if reason, eok := s.findExtensions(pd); !eok {
		reasons = append(reasons, reason)
		ok = false
	}
	if reason, fmtOk := s.findFormats(pd); !fmtOk {
		reasons = append(reasons, reason)
		ok = false
	}
	infos, err := findQueues(pd, s.queues)
	if err != nil {
		reasons = append(reasons, err.Error())
		ok = false
	}
	if err := verifyPresentationSupport(pd, s.queues, s.surfaces); err != nil {
		reasons = append(reasons, err.Error())
		ok = false
	}

	if !ok {
		s.reject(pd, uuid, strings.Join(reasons, "\n"))
		return nil, false
	}
	return infos, true
}

// RejectReasons returns every rejection recorded across all CreateDevice
// attempts so far.
func (s *Selector) RejectReasons() []RejectReason { return s.rejected }

// CreateDevice runs the full selection algorithm and, on the first
// candidate to pass every check, creates the native logical device and
// wraps it.
func (s *Selector) CreateDevice(instance vk.Instance) (*LogicalDevice, DeviceUUID, error) {
	s.rejected = nil
	devices, uuids, err := s.getDevices(instance)
	if err != nil {
		return nil, DeviceUUID{}, err
	}

	for i, pd := range devices {
		uuid := uuids[i]
		infos, ok := s.checkDevice(pd, uuid)
		if !ok {
			continue
		}

		device, err := s.createDevice(pd, infos)
		if err != nil {
			s.reject(pd, uuid, err.Error())
			continue
		}
		optional := OptionalFeatures{HasSwapchainMaintenance1: s.deviceExt.hasSwapchainMaintenance1()}
		ld := NewLogicalDevice(pd, device, true, optional, s.logger)
		ld.Properties.UUID = uuid
		return ld, uuid, nil
	}
	return nil, DeviceUUID{}, fmt.Errorf("vkm: no suitable device found (%d rejected)", len(s.rejected))
}

func (s *Selector) createDevice(pd vk.PhysicalDevice, queueInfos []vk.DeviceQueueCreateInfo) (vk.Device, error) {
	native := s.enabled.NativeChain()
	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   unsafe.Pointer(native),
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(s.deviceExt.enabled)),
		PpEnabledExtensionNames: s.deviceExt.enabled,
	}
	var device vk.Device
	if ret := vk.CreateDevice(pd, &info, nil, &device); ret != vk.Success {
		return nil, fmt.Errorf("vkm: failed to create device: %s", resultString(ret))
	}

	for class, req := range s.queues {
		for i := uint32(0); i < req.Count; i++ {
			debugLabel(s.logger, "queue", fmt.Sprintf("%s_queue_%d", class, i))
		}
	}
	return device, nil
}
