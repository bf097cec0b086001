package vkm

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func families(flags ...vk.QueueFlagBits) []vk.QueueFamilyProperties {
	out := make([]vk.QueueFamilyProperties, len(flags))
	for i, f := range flags {
		out[i] = vk.QueueFamilyProperties{QueueFlags: vk.QueueFlags(f), QueueCount: 1}
	}
	return out
}

func TestQueueRequirementNormalizeDefaults(t *testing.T) {
	r := &QueueRequirement{Min: 2}
	if err := r.normalize(); err != nil {
		t.Fatalf("normalize() error = %v", err)
	}
	if r.Max != 2 {
		t.Fatalf("Max = %d, want 2", r.Max)
	}
	if len(r.Priorities) != 2 || r.Priorities[0] != 1.0 || r.Priorities[1] != 1.0 {
		t.Fatalf("Priorities = %v, want [1 1]", r.Priorities)
	}
}

func TestQueueRequirementNormalizeRejectsZero(t *testing.T) {
	r := &QueueRequirement{}
	if err := r.normalize(); err == nil {
		t.Fatalf("expected error for min=0 max=0")
	}
}

func TestQueueRequirementNormalizeRejectsMaxLessThanMin(t *testing.T) {
	r := &QueueRequirement{Min: 3, Max: 1}
	if err := r.normalize(); err == nil {
		t.Fatalf("expected error for max<min")
	}
}

func TestStrictlyTypedQueueMatching(t *testing.T) {
	// A device with a combined graphics+compute family, a compute-only
	// family, and a transfer-only family: every class must bind its own
	// dedicated family, not double up on the combined one where a more
	// specific family exists.
	fams := families(
		vk.QueueGraphicsBit|vk.QueueComputeBit|vk.QueueTransferBit, // 0: combined
		vk.QueueComputeBit|vk.QueueTransferBit,                     // 1: compute-only (no graphics)
		vk.QueueTransferBit,                                        // 2: transfer-only
	)

	graphicsWant, graphicsDont := QueueGraphics.wantDontWant()
	if i, _, ok := findQueue(fams, graphicsWant, graphicsDont, 1); !ok || i != 0 {
		t.Fatalf("graphics match = (%d, %v), want (0, true)", i, ok)
	}

	computeWant, computeDont := QueueCompute.wantDontWant()
	if i, _, ok := findQueue(fams, computeWant, computeDont, 1); !ok || i != 1 {
		t.Fatalf("compute match = (%d, %v), want (1, true)", i, ok)
	}

	transferWant, transferDont := QueueTransfer.wantDontWant()
	if i, _, ok := findQueue(fams, transferWant, transferDont, 1); !ok || i != 2 {
		t.Fatalf("transfer match = (%d, %v), want (2, true)", i, ok)
	}
}

func TestFindQueueRejectsInsufficientCount(t *testing.T) {
	fams := families(vk.QueueGraphicsBit | vk.QueueComputeBit)
	want, dontWant := QueueGraphics.wantDontWant()
	if _, _, ok := findQueue(fams, want, dontWant, 5); ok {
		t.Fatalf("expected no match when family queueCount is below min")
	}
}

func TestClampUint32(t *testing.T) {
	cases := []struct{ v, lo, hi, want uint32 }{
		{5, 1, 10, 5},
		{0, 1, 10, 1},
		{20, 1, 10, 10},
	}
	for _, c := range cases {
		if got := clampUint32(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("clampUint32(%d, %d, %d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}
