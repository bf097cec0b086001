package vkm

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// QueueClass is one of the three queue-family classes the selector
// requires against.
type QueueClass int

const (
	QueueGraphics QueueClass = iota
	QueueCompute
	QueueTransfer
)

func (c QueueClass) String() string {
	switch c {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// QueueRequirement is one per-class entry accumulated by the selector's
// RequireGraphicsQueue/RequireComputeQueue/RequireTransferQueue mutators.
// After a successful device check, FamilyIndex and Count record the
// selection made by findQueues.
type QueueRequirement struct {
	Min, Max   uint32
	Flags      vk.DeviceQueueCreateFlags
	PNext      *StructNode
	Priorities []float32

	FamilyIndex uint32
	Count       uint32
	bound       bool
}

// normalize applies the mutator rules: max==0 sets max=min; both zero or
// max<min is a user-config error; nil priorities default to max copies of
// 1.0.
func (r *QueueRequirement) normalize() error {
	if r.Max == 0 {
		r.Max = r.Min
	}
	if r.Max < r.Min || (r.Min == 0 && r.Max == 0) {
		return fmt.Errorf("vkm: invalid queue requirement min=%d max=%d", r.Min, r.Max)
	}
	if len(r.Priorities) == 0 {
		r.Priorities = make([]float32, r.Max)
		for i := range r.Priorities {
			r.Priorities[i] = 1.0
		}
	}
	return nil
}

// wantDontWant returns the strictly-typed match mask for a class, per the
// selector's queue-selection algorithm: graphics wants GRAPHICS|COMPUTE
// with no exclusion; compute wants COMPUTE without GRAPHICS; transfer
// wants TRANSFER without GRAPHICS or COMPUTE.
func (c QueueClass) wantDontWant() (want, dontWant vk.QueueFlags) {
	switch c {
	case QueueGraphics:
		return vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit), 0
	case QueueCompute:
		return vk.QueueFlags(vk.QueueComputeBit), vk.QueueFlags(vk.QueueGraphicsBit)
	case QueueTransfer:
		return vk.QueueFlags(vk.QueueTransferBit), vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)
	default:
		return 0, 0
	}
}

// queueFamilyProperties fetches the physical device's queue family list.
func queueFamilyProperties(pd vk.PhysicalDevice) []vk.QueueFamilyProperties {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, props)
	for i := range props {
		props[i].Deref()
	}
	return props
}

// findQueue applies strict-typed matching for one class: the first family
// whose flags contain want, none of dontWant, and whose queueCount is at
// least requirement.Min.
func findQueue(families []vk.QueueFamilyProperties, want, dontWant vk.QueueFlags, min uint32) (index uint32, count uint32, ok bool) {
	for i, f := range families {
		if f.QueueFlags&want != want {
			continue
		}
		if dontWant != 0 && f.QueueFlags&dontWant != 0 {
			continue
		}
		if f.QueueCount < min {
			continue
		}
		return uint32(i), f.QueueCount, true
	}
	return 0, 0, false
}

// clampUint32 clamps v to [lo, hi].
func clampUint32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// findQueues runs the selector's strictly-typed queue match for every
// declared class with Max>0, returning one DeviceQueueCreateInfo per
// class. Rejects with an error (the selector records it as a reject
// reason) if no class with Max>0 was declared, or if any declared class
// fails to find a matching family.
func findQueues(pd vk.PhysicalDevice, reqs map[QueueClass]*QueueRequirement) ([]vk.DeviceQueueCreateInfo, error) {
	declared := false
	for _, r := range reqs {
		if r.Max > 0 {
			declared = true
			break
		}
	}
	if !declared {
		return nil, fmt.Errorf("vkm: no queue class with max>0 declared")
	}

	families := queueFamilyProperties(pd)
	var infos []vk.DeviceQueueCreateInfo

	for _, class := range []QueueClass{QueueGraphics, QueueCompute, QueueTransfer} {
		req, declared := reqs[class]
		if !declared || req.Max == 0 {
			continue
		}
		want, dontWant := class.wantDontWant()
		index, familyCount, ok := findQueue(families, want, dontWant, req.Min)
		if !ok {
			return nil, fmt.Errorf("vkm: failed to find %s queue family satisfying min=%d", class, req.Min)
		}
		req.FamilyIndex = index
		req.Count = clampUint32(familyCount, req.Min, req.Max)
		req.bound = true

		infos = append(infos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			Flags:            req.Flags,
			QueueFamilyIndex: req.FamilyIndex,
			QueueCount:       req.Count,
			PQueuePriorities: req.Priorities[:req.Count],
		})
	}
	return infos, nil
}

// verifyPresentationSupport checks that at least one chosen queue family
// reports presentation support for each target surface.
func verifyPresentationSupport(pd vk.PhysicalDevice, reqs map[QueueClass]*QueueRequirement, surfaces []vk.Surface) error {
	for _, surface := range surfaces {
		ok := false
		for _, req := range reqs {
			if !req.bound {
				continue
			}
			var supported vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(pd, req.FamilyIndex, surface, &supported)
			if supported == vk.True {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("vkm: no selected queue family supports presentation on target surface")
		}
	}
	return nil
}
