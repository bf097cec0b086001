package vkm

import (
	"fmt"
	"reflect"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// StructDescriptor is a read-only catalog entry for one supported pNext
// tag: its sType, the Go type backing its storage, and the extension/
// core-version dependency list the selector consults when a caller
// requires a feature chain that includes this node.
type StructDescriptor struct {
	SType        vk.StructureType
	goType       reflect.Type
	Dependencies []string
}

var catalog = map[vk.StructureType]*StructDescriptor{}

// RegisterStruct adds a descriptor to the open-world catalog. zero must be
// a value (not pointer) of the Go struct type backing this sType; callers
// outside this package may register additional descriptors the same way,
// matching a registry rather than a closed type hierarchy.
func RegisterStruct(sType vk.StructureType, zero any, dependencies ...string) {
	catalog[sType] = &StructDescriptor{
		SType:        sType,
		goType:       reflect.TypeOf(zero),
		Dependencies: dependencies,
	}
}

// TypeOf returns the descriptor for a tag, or false if the tag is unknown
// to the catalog.
func TypeOf(sType vk.StructureType) (*StructDescriptor, bool) {
	d, ok := catalog[sType]
	return d, ok
}

// SizeOf returns the byte size of the struct backing sType, zero if
// unknown.
func SizeOf(sType vk.StructureType) uintptr {
	d, ok := catalog[sType]
	if !ok {
		return 0
	}
	return d.goType.Size()
}

func init() {
	RegisterStruct(vk.StructureTypePhysicalDeviceFeatures2, vk.PhysicalDeviceFeatures2{})
	RegisterStruct(vk.StructureTypePhysicalDeviceVulkan11Features, vk.PhysicalDeviceVulkan11Features{}, "VERSION_1_1")
	RegisterStruct(vk.StructureTypePhysicalDeviceVulkan12Features, vk.PhysicalDeviceVulkan12Features{}, "VERSION_1_2")
	RegisterStruct(vk.StructureTypePhysicalDeviceVulkan13Features, vk.PhysicalDeviceVulkan13Features{}, "VERSION_1_3")
	RegisterStruct(vk.StructureTypePhysicalDeviceSynchronization2Features, vk.PhysicalDeviceSynchronization2Features{}, "VK_KHR_synchronization2")
	RegisterStruct(vk.StructureTypePhysicalDeviceTimelineSemaphoreFeatures, vk.PhysicalDeviceTimelineSemaphoreFeatures{}, "VK_KHR_timeline_semaphore")
	RegisterStruct(vk.StructureTypePhysicalDeviceMaintenance4Features, vk.PhysicalDeviceMaintenance4Features{}, "VK_KHR_maintenance4")
	RegisterStruct(vk.StructureTypePhysicalDeviceBufferDeviceAddressFeatures, vk.PhysicalDeviceBufferDeviceAddressFeatures{}, "VK_KHR_buffer_device_address")

	RegisterStruct(vk.StructureTypeSurfacePresentModeExt, vk.SurfacePresentModeEXT{})
	RegisterStruct(vk.StructureTypeSurfacePresentModeCompatibilityExt, vk.SurfacePresentModeCompatibilityEXT{})
	RegisterStruct(vk.StructureTypeSwapchainPresentModeInfoExt, vk.SwapchainPresentModeInfoEXT{})
	RegisterStruct(vk.StructureTypeSwapchainPresentModesCreateInfoExt, vk.SwapchainPresentModesCreateInfoEXT{})
	RegisterStruct(vk.StructureTypeSwapchainPresentFenceInfoExt, vk.SwapchainPresentFenceInfoEXT{})
}

// StructNode is one link of a pNext chain: an sType tag plus the storage
// backing its bool fields and a pointer to the next node. The engine walks
// fields by name through reflection rather than per-type virtual methods,
// matching "static tables ... not virtual dispatch".
type StructNode struct {
	sType vk.StructureType
	next  *StructNode
	value reflect.Value // addressable struct value, e.g. a *vk.PhysicalDeviceVulkan12Features Elem()
}

// Allocate returns a zero-filled, tagged node for sType. Panics if the tag
// is unknown to the catalog, matching typeOf's documented assert-on-unknown
// behavior for feature-struct lookups.
func Allocate(sType vk.StructureType) *StructNode {
	d, ok := catalog[sType]
	if !ok {
		panic(fmt.Sprintf("vkm: unknown struct type %v", sType))
	}
	v := reflect.New(d.goType).Elem()
	if f := v.FieldByName("SType"); f.IsValid() && f.CanSet() {
		f.Set(reflect.ValueOf(sType).Convert(f.Type()))
	}
	return &StructNode{sType: sType, value: v}
}

func (n *StructNode) SType() vk.StructureType { return n.sType }
func (n *StructNode) Next() *StructNode       { return n.next }
func (n *StructNode) SetNext(next *StructNode) { n.next = next }

// boolHolder returns the reflect.Value that actually carries bool-typed
// fields. VkPhysicalDeviceFeatures2 nests them one level down in its
// embedded "Features" struct; every other registered feature-extension
// struct carries them directly.
func boolHolder(v reflect.Value) reflect.Value {
	if f := v.FieldByName("Features"); f.IsValid() && f.Kind() == reflect.Struct {
		return f
	}
	return v
}

// BoolField reads a named bool-typed (Vulkan Bool32) field. ok is false if
// the field does not exist on this node's struct.
func (n *StructNode) BoolField(name string) (value bool, ok bool) {
	f := boolHolder(n.value).FieldByName(name)
	if !f.IsValid() {
		return false, false
	}
	return f.Uint() == uint64(vk.True), true
}

// SetBoolField writes a named bool-typed field, returning false if the
// field does not exist.
func (n *StructNode) SetBoolField(name string, value bool) bool {
	f := boolHolder(n.value).FieldByName(name)
	if !f.IsValid() || !f.CanSet() {
		return false
	}
	v := vk.False
	if value {
		v = vk.True
	}
	f.SetUint(uint64(v))
	return true
}

// OrSetBoolField implements the selector's OR-merge rule: once a field has
// been set true by any call, later calls targeting the same field never
// clear it.
func (n *StructNode) OrSetBoolField(name string, value bool) bool {
	cur, ok := n.BoolField(name)
	if !ok {
		return false
	}
	return n.SetBoolField(name, cur || value)
}

// FieldNames enumerates the bool-typed field names this node's struct
// declares, in declaration order.
func (n *StructNode) FieldNames() []string {
	holder := boolHolder(n.value)
	t := holder.Type()
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type.Kind() == reflect.Uint32 && field.Name != "SType" {
			names = append(names, field.Name)
		}
	}
	return names
}

// Clone performs a bitwise copy of this node's storage with pNext unset
// (sType is retained since it addresses the same descriptor).
func (n *StructNode) Clone() *StructNode {
	v := reflect.New(n.value.Type()).Elem()
	v.Set(n.value)
	return &StructNode{sType: n.sType, value: v}
}

// Addr returns the addressable pointer to the backing native struct, for
// callers that must hand a real *vk.XxxFeatures to the driver.
func (n *StructNode) Addr() any {
	return n.value.Addr().Interface()
}

// Deref calls the backing struct's generated Deref method, if it has one,
// syncing Go-visible fields after a driver call wrote into the struct's
// C-shadow representation.
func (n *StructNode) Deref() {
	m := n.value.Addr().MethodByName("Deref")
	if m.IsValid() {
		m.Call(nil)
	}
}

// cloneChain deep-copies every node of a chain starting at head.
func cloneChain(head *StructNode) *StructNode {
	if head == nil {
		return nil
	}
	clone := head.Clone()
	clone.next = cloneChain(head.next)
	return clone
}

// wrapNode builds a StructNode sharing an already-allocated native
// struct's backing memory, rather than copying it. ptr must be a pointer
// to the registered Go type backing sType. Used by appendChain's
// non-owning mode to fold caller-held structs into a borrowed chain
// without cloning them.
func wrapNode(sType vk.StructureType, ptr any) *StructNode {
	return &StructNode{sType: sType, value: reflect.ValueOf(ptr).Elem()}
}

// Chain is an ordered list of StructNodes with an explicit ownership
// mode. An owning chain (alloc true) holds its own cloned copies, safe to
// mutate or discard independent of whatever chain it was built from. A
// borrowed chain (alloc false) holds the same nodes the caller passed in;
// destroying it is a no-op since it never allocated anything of its own.
type Chain struct {
	nodes []*StructNode
	alloc bool
}

// appendChain appends the chain starting at head onto list, per spec:
// when alloc is true the nodes are cloned first (an owning append);
// when alloc is false the list shares head's nodes directly (a borrowed
// append, the shape used for chains assembled fresh at submit time from
// structs whose lifetime belongs elsewhere, e.g. a present-fence or
// present-mode-change struct built for one QueuePresent call). list may
// be nil, in which case a new Chain matching alloc is created.
func appendChain(list *Chain, alloc bool, head *StructNode) *Chain {
	if list == nil {
		list = &Chain{alloc: alloc}
	}
	if head == nil {
		return list
	}
	if alloc {
		head = cloneChain(head)
	}
	for n := head; n != nil; n = n.Next() {
		list.nodes = append(list.nodes, n)
	}
	return list
}

// Destroy releases every node an owning chain holds. Borrowed chains do
// nothing, matching the non-owning list's no-op destructor.
func (c *Chain) Destroy() {
	if c == nil || !c.alloc {
		return
	}
	c.nodes = nil
}

// NativePNext links every node in the chain via PNext in declaration
// order and returns an unsafe.Pointer to the first node's backing
// struct, ready to assign into another struct's PNext field. Returns nil
// for an empty or nil chain.
func (c *Chain) NativePNext() unsafe.Pointer {
	if c == nil || len(c.nodes) == 0 {
		return nil
	}
	for i := 1; i < len(c.nodes); i++ {
		linkPNext(c.nodes[i-1].Addr(), c.nodes[i].Addr())
	}
	return unsafe.Pointer(reflect.ValueOf(c.nodes[0].Addr()).Pointer())
}
