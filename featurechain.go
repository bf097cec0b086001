package vkm

import vk "github.com/vulkan-go/vulkan"

// FeatureChain is one of the selector's three chains (required, optional,
// enabled). required and optional always hold the same sequence of sTypes
// in the same order so per-node fields line up; enabled is rebuilt during
// device checking.
type FeatureChain struct {
	head  *StructNode
	order []vk.StructureType
}

// NewFeatureChain returns a chain whose head is a zeroed
// PhysicalDeviceFeatures2 node, per the engine's fixed chain shape.
func NewFeatureChain() *FeatureChain {
	head := Allocate(vk.StructureTypePhysicalDeviceFeatures2)
	return &FeatureChain{head: head, order: []vk.StructureType{head.SType()}}
}

// Head returns the chain's root node.
func (c *FeatureChain) Head() *StructNode { return c.head }

// Order returns the sType sequence, head first.
func (c *FeatureChain) Order() []vk.StructureType { return c.order }

// Node returns the existing node tagged sType, or nil.
func (c *FeatureChain) Node(sType vk.StructureType) *StructNode {
	for n := c.head; n != nil; n = n.Next() {
		if n.SType() == sType {
			return n
		}
	}
	return nil
}

// EnsureNode returns the node tagged sType, allocating and appending an
// empty node of that shape at the tail if it is not already present.
func (c *FeatureChain) EnsureNode(sType vk.StructureType) *StructNode {
	if n := c.Node(sType); n != nil {
		return n
	}
	n := Allocate(sType)
	tail := c.head
	for tail.Next() != nil {
		tail = tail.Next()
	}
	tail.SetNext(n)
	c.order = append(c.order, sType)
	return n
}

// OrMergeBool sets a bool field on the node tagged sType, OR-merging with
// any prior value so repeated calls accumulate rather than clobber.
func (c *FeatureChain) OrMergeBool(sType vk.StructureType, field string, value bool) bool {
	n := c.EnsureNode(sType)
	return n.OrSetBoolField(field, value)
}

// Clone deep-copies the chain.
func (c *FeatureChain) Clone() *FeatureChain {
	return &FeatureChain{head: cloneChain(c.head), order: append([]vk.StructureType(nil), c.order...)}
}

// DerefAll calls Deref on every node, syncing Go-visible fields after the
// chain's native pointer was handed to a driver call.
func (c *FeatureChain) DerefAll() {
	for n := c.head; n != nil; n = n.Next() {
		n.Deref()
	}
}

// NativeChain links the backing native structs together via PNext and
// returns the head's native pointer, ready to assign to a
// PhysicalDeviceFeatures2/DeviceCreateInfo pNext field.
func (c *FeatureChain) NativeChain() *vk.PhysicalDeviceFeatures2 {
	var prev any
	var headPtr *vk.PhysicalDeviceFeatures2
	for n := c.head; n != nil; n = n.Next() {
		addr := n.Addr()
		if headPtr == nil {
			headPtr = addr.(*vk.PhysicalDeviceFeatures2)
		}
		linkPNext(prev, addr)
		prev = addr
	}
	return headPtr
}
