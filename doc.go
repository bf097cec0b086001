// Package vkm is a thin management layer atop Vulkan 1.3+. It selects a
// physical device against a declarative feature/extension/queue/format
// requirement set, bookkeeps the pNext structure chains Vulkan uses for
// extensible feature negotiation, coordinates per-frame GPU work with
// timeline semaphores and command-pool recycling, and drives the full
// lifecycle of a swapchain including present-mode switching and resize.
//
// Buffer/image/sampler wrappers, pipeline and descriptor-set layout
// construction, and the GPU memory allocator itself are out of scope; VMA
// (or an equivalent) is expected to be driven by the caller using the
// memory-type bitmasks exposed on LogicalDevice.
package vkm
