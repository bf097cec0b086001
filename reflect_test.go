package vkm

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestStructNodeSetAndReadBoolField(t *testing.T) {
	n := Allocate(vk.StructureTypePhysicalDeviceSynchronization2Features)

	if ok := n.SetBoolField("Synchronization2", true); !ok {
		t.Fatalf("SetBoolField returned false for a known field")
	}
	got, ok := n.BoolField("Synchronization2")
	if !ok || !got {
		t.Fatalf("BoolField() = %v, %v; want true, true", got, ok)
	}

	if _, ok := n.BoolField("DoesNotExist"); ok {
		t.Fatalf("BoolField reported success for an unknown field name")
	}
}

func TestOrSetBoolFieldNeverClears(t *testing.T) {
	n := Allocate(vk.StructureTypePhysicalDeviceTimelineSemaphoreFeatures)

	n.OrSetBoolField("TimelineSemaphore", true)
	n.OrSetBoolField("TimelineSemaphore", false)

	got, ok := n.BoolField("TimelineSemaphore")
	if !ok || !got {
		t.Fatalf("OrSetBoolField cleared a previously-true field: %v, %v", got, ok)
	}
}

func TestStructNodeCloneIsIndependent(t *testing.T) {
	n := Allocate(vk.StructureTypePhysicalDeviceMaintenance4Features)
	n.SetBoolField("Maintenance4", true)

	clone := n.Clone()
	clone.SetBoolField("Maintenance4", false)

	original, _ := n.BoolField("Maintenance4")
	copied, _ := clone.BoolField("Maintenance4")
	if !original {
		t.Fatalf("mutating clone affected original")
	}
	if copied {
		t.Fatalf("clone did not take its own copy")
	}
}

func TestFeatureChainEnsureNodeAppendsOnce(t *testing.T) {
	c := NewFeatureChain()

	first := c.EnsureNode(vk.StructureTypePhysicalDeviceVulkan13Features)
	second := c.EnsureNode(vk.StructureTypePhysicalDeviceVulkan13Features)
	if first != second {
		t.Fatalf("EnsureNode allocated twice for the same sType")
	}
	if len(c.Order()) != 2 { // head (Features2) + the Vulkan13Features node
		t.Fatalf("Order() length = %d, want 2", len(c.Order()))
	}
}

func TestFeatureChainOrMergeBoolAccumulates(t *testing.T) {
	c := NewFeatureChain()

	c.OrMergeBool(vk.StructureTypePhysicalDeviceVulkan12Features, "TimelineSemaphore", true)
	c.OrMergeBool(vk.StructureTypePhysicalDeviceVulkan12Features, "BufferDeviceAddress", false)
	c.OrMergeBool(vk.StructureTypePhysicalDeviceVulkan12Features, "BufferDeviceAddress", true)

	n := c.Node(vk.StructureTypePhysicalDeviceVulkan12Features)
	if n == nil {
		t.Fatalf("expected node to exist after OrMergeBool")
	}
	ts, _ := n.BoolField("TimelineSemaphore")
	bda, _ := n.BoolField("BufferDeviceAddress")
	if !ts || !bda {
		t.Fatalf("OrMergeBool did not accumulate: TimelineSemaphore=%v BufferDeviceAddress=%v", ts, bda)
	}
}

func TestFeatureChainCloneRoundTrip(t *testing.T) {
	c := NewFeatureChain()
	c.OrMergeBool(vk.StructureTypePhysicalDeviceVulkan13Features, "Synchronization2", true)

	clone := c.Clone()
	clone.OrMergeBool(vk.StructureTypePhysicalDeviceVulkan13Features, "Maintenance4", true)

	origNode := c.Node(vk.StructureTypePhysicalDeviceVulkan13Features)
	origMaintenance4, _ := origNode.BoolField("Maintenance4")
	if origMaintenance4 {
		t.Fatalf("clone mutation leaked back into original chain")
	}

	cloneNode := clone.Node(vk.StructureTypePhysicalDeviceVulkan13Features)
	sync2, _ := cloneNode.BoolField("Synchronization2")
	if !sync2 {
		t.Fatalf("clone lost a field set before cloning")
	}
}
