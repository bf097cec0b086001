package vkm

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

var defaultPreferredSurfaceFormats = []vk.SurfaceFormat{
	{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	{Format: vk.FormatR8g8b8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
}

var defaultPreferredPresentModes = []vk.PresentMode{vk.PresentModeFifoRelaxed}

type swapchainImage struct {
	image            vk.Image
	imageView        vk.ImageView
	releaseSemaphore vk.Semaphore
	fence            vk.Fence
}

// SwapchainCreateInfo configures a new Swapchain. PreferredSurfaceFormats
// and PreferredPresentModes fall back to a built-in preference list when
// left empty; RequiredUsage always gets VK_IMAGE_USAGE_COLOR_ATTACHMENT_BIT
// ORed in regardless of what the caller passes.
type SwapchainCreateInfo struct {
	Name                    string
	Surface                 vk.Surface
	RequiredUsage           vk.ImageUsageFlags
	PreferredImageCount     uint32
	PreferredSurfaceFormats []vk.SurfaceFormat
	PreferredPresentModes   []vk.PresentMode
}

// Swapchain is the Swapchain subsystem: a present surface plus its ring of
// images, each carrying its own per-image release semaphore (and, when
// swapchain_maintenance1 is available, a present fence). Exactly one image
// may be acquired and not yet presented at a time.
type Swapchain struct {
	device *LogicalDevice
	name   string
	logger *Logger

	surface vk.Surface

	requiredUsage           vk.ImageUsageFlags
	preferredImageCount     uint32
	preferredSurfaceFormats []vk.SurfaceFormat

	surfaceFormat          vk.SurfaceFormat
	presentMode            vk.PresentMode
	compatiblePresentModes []vk.PresentMode
	surfaceCapabilities    vk.SurfaceCapabilities

	extent     vk.Extent2D
	swapchain  vk.Swapchain
	images     []swapchainImage
	imageIndex uint32 // swapchainNoImageAcquired when nothing is currently acquired

	pendingPresentModeChange *vk.SwapchainPresentModeInfoEXT
}

const swapchainNoImageAcquired = ^uint32(0)

// NewSwapchain creates a swapchain against info.Surface sized to extent,
// selecting a present mode and surface format from the caller's
// preferences (or the built-in defaults).
func NewSwapchain(device *LogicalDevice, info SwapchainCreateInfo, extent vk.Extent2D, logger *Logger) (*Swapchain, error) {
	if logger == nil {
		logger = defaultLogger
	}
	name := info.Name
	if name == "" {
		name = fmt.Sprintf("swapchain_%p", info.Surface)
	}

	preferredFormats := info.PreferredSurfaceFormats
	if len(preferredFormats) == 0 {
		preferredFormats = defaultPreferredSurfaceFormats
	}
	preferredModes := info.PreferredPresentModes
	if len(preferredModes) == 0 {
		preferredModes = defaultPreferredPresentModes
	}

	sc := &Swapchain{
		device:                  device,
		name:                    name,
		logger:                  logger,
		surface:                 info.Surface,
		requiredUsage:           info.RequiredUsage | vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		preferredImageCount:     info.PreferredImageCount,
		preferredSurfaceFormats: preferredFormats,
		presentMode:             vk.PresentModeMaxEnum,
		imageIndex:              swapchainNoImageAcquired,
	}

	if err := sc.ChangePresentMode(preferredModes, extent); err != nil {
		return nil, err
	}
	return sc, nil
}

// findCapabilities queries surface capabilities, using the
// swapchain_maintenance1 extended query (and recording compatible present
// modes) when the device supports it.
func (sc *Swapchain) findCapabilities() error {
	if !sc.device.Optional.HasSwapchainMaintenance1 {
		ret := vk.GetPhysicalDeviceSurfaceCapabilities(sc.device.PhysicalDevice, sc.surface, &sc.surfaceCapabilities)
		if ret != vk.Success && ret != vk.ErrorSurfaceLost {
			return fmt.Errorf("vkm: failed to get surface capabilities: %s", resultString(ret))
		}
		sc.surfaceCapabilities.Deref()
		return nil
	}

	presentModeInfo := vk.SurfacePresentModeEXT{
		SType:       vk.StructureTypeSurfacePresentModeExt,
		PresentMode: sc.presentMode,
	}
	inChain := appendChain(nil, false, wrapNode(vk.StructureTypeSurfacePresentModeExt, &presentModeInfo))
	surfaceInfo2 := vk.PhysicalDeviceSurfaceInfo2KHR{
		SType:   vk.StructureTypePhysicalDeviceSurfaceInfo2KHR,
		PNext:   inChain.NativePNext(),
		Surface: sc.surface,
	}
	compatibility := vk.SurfacePresentModeCompatibilityEXT{
		SType: vk.StructureTypeSurfacePresentModeCompatibilityExt,
	}
	outChain := appendChain(nil, false, wrapNode(vk.StructureTypeSurfacePresentModeCompatibilityExt, &compatibility))
	capabilities2 := vk.SurfaceCapabilities2KHR{
		SType: vk.StructureTypeSurfaceCapabilities2KHR,
		PNext: outChain.NativePNext(),
	}

	ret := vk.GetPhysicalDeviceSurfaceCapabilities2KHR(sc.device.PhysicalDevice, &surfaceInfo2, &capabilities2)
	if ret != vk.Success && ret != vk.ErrorSurfaceLost {
		return fmt.Errorf("vkm: failed to get surface capabilities: %s", resultString(ret))
	}
	compatibility.Deref()

	sc.compatiblePresentModes = make([]vk.PresentMode, compatibility.PresentModeCount)
	compatibility.PPresentModes = sc.compatiblePresentModes
	ret = vk.GetPhysicalDeviceSurfaceCapabilities2KHR(sc.device.PhysicalDevice, &surfaceInfo2, &capabilities2)
	if ret != vk.Success && ret != vk.ErrorSurfaceLost {
		return fmt.Errorf("vkm: failed to get surface capabilities: %s", resultString(ret))
	}

	capabilities2.Deref()
	capabilities2.SurfaceCapabilities.Deref()
	sc.surfaceCapabilities = capabilities2.SurfaceCapabilities
	return nil
}

func (sc *Swapchain) findSurfaceFormat() error {
	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(sc.device.PhysicalDevice, sc.surface, &count, nil)
	available := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(sc.device.PhysicalDevice, sc.surface, &count, available)
	for i := range available {
		available[i].Deref()
	}

	requiredFeatures := formatFeaturesForUsage(sc.requiredUsage)
	for _, want := range sc.preferredSurfaceFormats {
		for _, have := range available {
			if have.Format != want.Format || have.ColorSpace != want.ColorSpace {
				continue
			}
			if !surfaceCapsSupportUsage(sc.surfaceCapabilities, sc.requiredUsage) {
				continue
			}
			if !formatSupportsOptimalTilingFeatures(sc.device.PhysicalDevice, have.Format, requiredFeatures) {
				continue
			}
			sc.surfaceFormat = have
			return nil
		}
	}
	return fmt.Errorf("vkm: no known surface format with required usage 0x%x found", sc.requiredUsage)
}

func surfaceCapsSupportUsage(caps vk.SurfaceCapabilities, usage vk.ImageUsageFlags) bool {
	return vk.ImageUsageFlags(caps.SupportedUsageFlags)&usage == usage
}

// formatFeaturesForUsage maps the image usage bits a swapchain image needs
// onto the optimal-tiling format features that back them, matching the
// original's mapVkImageUsageFlagsToVkFormatFeatureFlags2.
func formatFeaturesForUsage(usage vk.ImageUsageFlags) vk.FormatFeatureFlags2 {
	var features vk.FormatFeatureFlags2
	if usage&vk.ImageUsageFlags(vk.ImageUsageSampledBit) != 0 {
		features |= vk.FormatFeatureFlags2(vk.FormatFeatureSampledImageBit)
	}
	if usage&vk.ImageUsageFlags(vk.ImageUsageStorageBit) != 0 {
		features |= vk.FormatFeatureFlags2(vk.FormatFeatureStorageImageBit)
	}
	if usage&vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) != 0 {
		features |= vk.FormatFeatureFlags2(vk.FormatFeatureColorAttachmentBit)
	}
	if usage&vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit) != 0 {
		features |= vk.FormatFeatureFlags2(vk.FormatFeatureDepthStencilAttachmentBit)
	}
	if usage&vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit) != 0 {
		features |= vk.FormatFeatureFlags2(vk.FormatFeatureTransferSrcBit)
	}
	if usage&vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) != 0 {
		features |= vk.FormatFeatureFlags2(vk.FormatFeatureTransferDstBit)
	}
	return features
}

// formatSupportsOptimalTilingFeatures queries FormatProperties3 the same
// way Selector.findFormats does and reports whether format's optimal-
// tiling features cover every bit in want.
func formatSupportsOptimalTilingFeatures(pd vk.PhysicalDevice, format vk.Format, want vk.FormatFeatureFlags2) bool {
	if want == 0 {
		return true
	}
	props3 := vk.FormatProperties3{SType: vk.StructureTypeFormatProperties3}
	props2 := vk.FormatProperties2{SType: vk.StructureTypeFormatProperties2, PNext: unsafe.Pointer(&props3)}
	vk.GetPhysicalDeviceFormatProperties2(pd, format, &props2)
	props3.Deref()
	return props3.OptimalTilingFeatures&want == want
}

func (sc *Swapchain) findPresentMode(preferred []vk.PresentMode) {
	var count uint32
	vk.GetPhysicalDeviceSurfacePresentModes(sc.device.PhysicalDevice, sc.surface, &count, nil)
	available := make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(sc.device.PhysicalDevice, sc.surface, &count, available)

	for _, want := range preferred {
		for _, have := range available {
			if have == want {
				sc.presentMode = have
				return
			}
		}
	}
	sc.presentMode = vk.PresentModeFifo
}

// ChangePresentMode selects a present mode from preferredModes (falling
// back to FIFO if none match), resizing if extent changed or recreating
// the swapchain if swapchain_maintenance1's fast in-place present-mode
// swap is unavailable or the new mode isn't in the compatible set.
func (sc *Swapchain) ChangePresentMode(preferredModes []vk.PresentMode, extent vk.Extent2D) error {
	old := sc.presentMode
	if len(preferredModes) == 0 {
		preferredModes = defaultPreferredPresentModes
	}
	sc.findPresentMode(preferredModes)

	if sc.extent.Width != extent.Width || sc.extent.Height != extent.Height {
		return sc.Resize(extent)
	}
	if old == sc.presentMode {
		return nil
	}
	if sc.device.Optional.HasSwapchainMaintenance1 {
		for _, have := range sc.compatiblePresentModes {
			if have != sc.presentMode {
				continue
			}
			sc.pendingPresentModeChange = &vk.SwapchainPresentModeInfoEXT{
				SType:          vk.StructureTypeSwapchainPresentModeInfoExt,
				SwapchainCount: 1,
				PPresentModes:  []vk.PresentMode{sc.presentMode},
			}
			return nil
		}
	}
	return sc.Resize(extent)
}

// Resize tears down and recreates the swapchain's images at extent,
// blocking on device idle first unless swapchain_maintenance1 lets images
// retire asynchronously via their present fences.
func (sc *Swapchain) Resize(extent vk.Extent2D) error {
	if !sc.device.Optional.HasSwapchainMaintenance1 {
		vk.DeviceWaitIdle(sc.device.Device)
	}
	sc.releaseImages()

	if err := sc.findCapabilities(); err != nil {
		return err
	}
	if err := sc.findSurfaceFormat(); err != nil {
		return err
	}
	if vk.CompositeAlphaFlagBits(sc.surfaceCapabilities.SupportedCompositeAlpha)&vk.CompositeAlphaOpaqueBit == 0 {
		return fmt.Errorf("vkm: surface does not support VK_COMPOSITE_ALPHA_OPAQUE_BIT_KHR")
	}
	sc.extent = extent

	minImageCount := sc.surfaceCapabilities.MinImageCount + 1
	if sc.preferredImageCount > minImageCount {
		minImageCount = sc.preferredImageCount
	}
	if sc.surfaceCapabilities.MaxImageCount > 0 && minImageCount > sc.surfaceCapabilities.MaxImageCount {
		minImageCount = sc.surfaceCapabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          sc.surface,
		MinImageCount:    minImageCount,
		ImageFormat:      sc.surfaceFormat.Format,
		ImageColorSpace:  sc.surfaceFormat.ColorSpace,
		ImageExtent:      sc.extent,
		ImageArrayLayers: 1,
		ImageUsage:       sc.requiredUsage,
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     sc.surfaceCapabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      sc.presentMode,
		OldSwapchain:     sc.swapchain,
	}
	if sc.device.Optional.HasSwapchainMaintenance1 {
		presentModesInfo := vk.SwapchainPresentModesCreateInfoEXT{
			SType:            vk.StructureTypeSwapchainPresentModesCreateInfoExt,
			PresentModeCount: uint32(len(sc.compatiblePresentModes)),
			PPresentModes:    sc.compatiblePresentModes,
		}
		chain := appendChain(nil, false, wrapNode(vk.StructureTypeSwapchainPresentModesCreateInfoExt, &presentModesInfo))
		createInfo.PNext = chain.NativePNext()
	}

	var swapchain vk.Swapchain
	ret := vk.CreateSwapchain(sc.device.Device, &createInfo, nil, &swapchain)
	if ret != vk.Success && ret != vk.ErrorSurfaceLost {
		return fmt.Errorf("vkm: failed to create swapchain: %s", resultString(ret))
	}
	if sc.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(sc.device.Device, sc.swapchain, nil)
	}
	sc.swapchain = swapchain
	debugLabel(sc.logger, "swapchain", sc.name)

	return sc.createImages()
}

func (sc *Swapchain) createImages() error {
	var count uint32
	ret := vk.GetSwapchainImages(sc.device.Device, sc.swapchain, &count, nil)
	if ret != vk.Success {
		return fmt.Errorf("vkm: failed to get swapchain images: %s", resultString(ret))
	}
	rawImages := make([]vk.Image, count)
	ret = vk.GetSwapchainImages(sc.device.Device, sc.swapchain, &count, rawImages)
	if ret != vk.Success {
		return fmt.Errorf("vkm: failed to get swapchain images: %s", resultString(ret))
	}

	sc.images = make([]swapchainImage, count)
	for i := uint32(0); i < count; i++ {
		sc.images[i].image = rawImages[i]

		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    rawImages[i],
			ViewType: vk.ImageViewType2d,
			Format:   sc.surfaceFormat.Format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if ret := vk.CreateImageView(sc.device.Device, &viewInfo, nil, &sc.images[i].imageView); ret != vk.Success {
			return fmt.Errorf("vkm: failed to create swapchain image view: %s", resultString(ret))
		}
		debugLabel(sc.logger, "image_view", fmt.Sprintf("%s_image_%d", sc.name, i))

		sc.images[i].releaseSemaphore = sc.device.Sync.AcquireBinarySemaphore()
		if sc.device.Optional.HasSwapchainMaintenance1 {
			sc.images[i].fence = sc.device.Sync.AcquireFence(true)
		}
	}
	return nil
}

func (sc *Swapchain) releaseImages() {
	for i := range sc.images {
		img := &sc.images[i]
		if img.fence != nil {
			if err := waitFenceOnce(sc.device, img.fence); err != nil {
				fatalf(sc.logger, "vkm: failed to wait on retiring swapchain image: %v", err)
			}
			sc.device.Sync.ReleaseFence(img.fence)
			sc.device.Sync.ReleaseBinarySemaphore(img.releaseSemaphore)
		} else {
			vk.DestroySemaphore(sc.device.Device, img.releaseSemaphore, nil)
		}
		vk.DestroyImageView(sc.device.Device, img.imageView, nil)
	}
	sc.images = nil
}

func waitFenceOnce(device *LogicalDevice, fence vk.Fence) error {
	if ret := vk.WaitForFences(device.Device, 1, []vk.Fence{fence}, vk.True, waitTimeoutNanos); ret != vk.Success {
		return fmt.Errorf("vkm: failed to wait on fence: %s", resultString(ret))
	}
	return nil
}

// Acquire blocks for up to one second for the next presentable image,
// signalling semaphore on success. It panics if an image is already
// acquired and not yet presented, matching the original's invariant.
func (sc *Swapchain) Acquire(semaphore vk.Semaphore) (uint32, error) {
	if sc.imageIndex != swapchainNoImageAcquired {
		panic("vkm: cannot acquire swapchain image before presenting the previous one")
	}
	ret := vk.AcquireNextImage(sc.device.Device, sc.swapchain, waitTimeoutNanos, semaphore, vk.NullFence, &sc.imageIndex)
	switch ret {
	case vk.Success, vk.Suboptimal:
		return sc.imageIndex, nil
	case vk.ErrorOutOfDate, vk.ErrorSurfaceLost:
		sc.imageIndex = swapchainNoImageAcquired
		return 0, fmt.Errorf("vkm: failed to acquire image: %s", resultString(ret))
	default:
		fatalf(sc.logger, "vkm: failed to acquire image: %s", resultString(ret))
		return 0, nil
	}
}

// Semaphore returns the currently acquired image's release semaphore, to
// be signalled by the submission that renders into it before Present.
func (sc *Swapchain) Semaphore() vk.Semaphore {
	if sc.imageIndex == swapchainNoImageAcquired {
		panic("vkm: cannot present swapchain before acquiring")
	}
	return sc.images[sc.imageIndex].releaseSemaphore
}

// Present queues the currently acquired image for presentation on queue,
// folding in any pending present-mode change and present fence from
// swapchain_maintenance1. It always clears the acquired state, even on
// failure, since the driver still considers the image's slot consumed.
func (sc *Swapchain) Present(queue vk.Queue) error {
	if sc.imageIndex == swapchainNoImageAcquired {
		panic("vkm: cannot present swapchain before acquiring")
	}
	img := &sc.images[sc.imageIndex]

	// Borrowed chain: both nodes below are built (or reused) for this one
	// call, so the chain just links them, it never clones or owns either.
	var chain *Chain
	var fenceInfo *vk.SwapchainPresentFenceInfoEXT
	if img.fence != nil {
		if err := waitFenceOnce(sc.device, img.fence); err != nil {
			fatalf(sc.logger, "vkm: failed to wait on present fence: %v", err)
		}
		if ret := vk.ResetFences(sc.device.Device, 1, []vk.Fence{img.fence}); ret != vk.Success {
			return fmt.Errorf("vkm: failed to reset present fence: %s", resultString(ret))
		}
		fenceInfo = &vk.SwapchainPresentFenceInfoEXT{
			SType:          vk.StructureTypeSwapchainPresentFenceInfoExt,
			SwapchainCount: 1,
			PFences:        []vk.Fence{img.fence},
		}
		chain = appendChain(chain, false, wrapNode(vk.StructureTypeSwapchainPresentFenceInfoExt, fenceInfo))
	}
	if sc.pendingPresentModeChange != nil {
		chain = appendChain(chain, false, wrapNode(vk.StructureTypeSwapchainPresentModeInfoExt, sc.pendingPresentModeChange))
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		PNext:              chain.NativePNext(),
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{img.releaseSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.swapchain},
		PImageIndices:      []uint32{sc.imageIndex},
	}
	ret := vk.QueuePresent(queue, &presentInfo)
	sc.pendingPresentModeChange = nil
	sc.imageIndex = swapchainNoImageAcquired

	switch ret {
	case vk.Success, vk.Suboptimal, vk.ErrorOutOfDate, vk.ErrorSurfaceLost:
		return nil
	default:
		return fmt.Errorf("vkm: failed to present frame: %s", resultString(ret))
	}
}

// Extent returns the swapchain's current image extent.
func (sc *Swapchain) Extent() vk.Extent2D { return sc.extent }

// SurfaceFormat returns the swapchain's selected color format.
func (sc *Swapchain) SurfaceFormat() vk.SurfaceFormat { return sc.surfaceFormat }

// Destroy waits out any in-flight presentation, releases every image's
// sync objects, and destroys the native swapchain.
func (sc *Swapchain) Destroy() {
	if !sc.device.Optional.HasSwapchainMaintenance1 {
		vk.DeviceWaitIdle(sc.device.Device)
	}
	sc.releaseImages()
	vk.DestroySwapchain(sc.device.Device, sc.swapchain, nil)
}
