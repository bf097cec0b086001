package vkm

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestSurfaceCapsSupportUsage(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		SupportedUsageFlags: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
	}

	if !surfaceCapsSupportUsage(caps, vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)) {
		t.Fatalf("expected a supported subset of usage flags to pass")
	}
	if surfaceCapsSupportUsage(caps, vk.ImageUsageFlags(vk.ImageUsageStorageBit)) {
		t.Fatalf("expected an unsupported usage flag to fail")
	}
	want := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit)
	if !surfaceCapsSupportUsage(caps, want) {
		t.Fatalf("expected the exact supported set to pass")
	}
}

func TestSwapchainAcquirePanicsWhileImageAlreadyAcquired(t *testing.T) {
	sc := &Swapchain{imageIndex: 3}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Acquire to panic when an image is already outstanding")
		}
	}()
	_, _ = sc.Acquire(nil)
}

func TestSwapchainSemaphorePanicsBeforeAcquire(t *testing.T) {
	sc := &Swapchain{imageIndex: swapchainNoImageAcquired}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Semaphore to panic when no image is acquired")
		}
	}()
	sc.Semaphore()
}

func TestSwapchainSemaphoreReturnsAcquiredImagesSemaphore(t *testing.T) {
	want := fakeSemaphore(7)
	sc := &Swapchain{
		imageIndex: 1,
		images: []swapchainImage{
			{releaseSemaphore: fakeSemaphore(1)},
			{releaseSemaphore: want},
		},
	}
	if got := sc.Semaphore(); got != want {
		t.Fatalf("Semaphore() = %v, want %v", got, want)
	}
}
