package vkm

import (
	"testing"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

func fakeSemaphore(tag int) vk.Semaphore {
	backing := new(int)
	*backing = tag
	return vk.Semaphore(unsafe.Pointer(backing))
}

func TestSyncPoolSemaphoreLIFO(t *testing.T) {
	p := &SyncPool{logger: defaultLogger}
	a, b := fakeSemaphore(1), fakeSemaphore(2)

	p.ReleaseBinarySemaphore(a)
	p.ReleaseBinarySemaphore(b)

	// LIFO: the most recently released semaphore comes back first.
	if got := p.AcquireBinarySemaphore(); got != b {
		t.Fatalf("AcquireBinarySemaphore() = %v, want the last-released semaphore", got)
	}
	if got := p.AcquireBinarySemaphore(); got != a {
		t.Fatalf("AcquireBinarySemaphore() = %v, want the first-released semaphore", got)
	}
}

func TestSyncPoolReleaseIsIdempotentAcrossCycles(t *testing.T) {
	p := &SyncPool{logger: defaultLogger}
	s := fakeSemaphore(1)

	for i := 0; i < 3; i++ {
		p.ReleaseBinarySemaphore(s)
		got := p.AcquireBinarySemaphore()
		if got != s {
			t.Fatalf("cycle %d: AcquireBinarySemaphore() = %v, want %v", i, got, s)
		}
	}
	if len(p.freeSemaphores) != 0 {
		t.Fatalf("free list leaked entries: %v", p.freeSemaphores)
	}
}
