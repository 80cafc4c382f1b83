package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/astra/engine/core"
	astramath "github.com/spaghettifunk/astra/engine/math"
	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

type swapchainState struct {
	mu sync.Mutex

	handle     vk.Swapchain
	format     vk.SurfaceFormat
	extent     vk.Extent2D
	imageCount uint32
	images     []vk.Image
	views      []vk.ImageView
}

func (d *Driver) createSwapchain(width, height uint32) error {
	sc := &d.swapchain
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return d.createSwapchainLocked(width, height)
}

func (d *Driver) createSwapchainLocked(width, height uint32) error {
	var capabilities vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(d.physicalDevice, d.surface, &capabilities); res != vk.Success {
		return fmt.Errorf("failed to query surface capabilities: %s", resultString(res))
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(d.physicalDevice, d.surface, &formatCount, nil)
	if formatCount == 0 {
		return fmt.Errorf("surface reports no formats")
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(d.physicalDevice, d.surface, &formatCount, formats)

	chosen := formats[0]
	chosen.Deref()
	for i := range formats {
		formats[i].Deref()
		if formats[i].Format == vk.FormatB8g8r8a8Unorm && formats[i].ColorSpace == vk.ColorSpaceSrgbNonlinear {
			chosen = formats[i]
			break
		}
	}

	var presentModeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(d.physicalDevice, d.surface, &presentModeCount, nil)
	presentModes := make([]vk.PresentMode, presentModeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(d.physicalDevice, d.surface, &presentModeCount, presentModes)

	presentMode := vk.PresentModeFifo
	for _, mode := range presentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if capabilities.CurrentExtent.Width != 0xffffffff {
		extent = capabilities.CurrentExtent
	}
	extent.Width = astramath.Clamp(extent.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	extent.Height = astramath.Clamp(extent.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)

	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      chosen.Format,
		ImageColorSpace:  chosen.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     d.swapchain.handle,
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(d.device, &createInfo, nil, &handle); res != vk.Success {
		return fmt.Errorf("failed to create swapchain: %s", resultString(res))
	}
	if old := d.swapchain.handle; old != vk.NullSwapchain {
		d.destroySwapchainLocked()
		vk.DestroySwapchain(d.device, old, nil)
	}
	d.swapchain.handle = handle
	d.swapchain.format = chosen
	d.swapchain.extent = extent

	var count uint32
	vk.GetSwapchainImages(d.device, handle, &count, nil)
	d.swapchain.images = make([]vk.Image, count)
	vk.GetSwapchainImages(d.device, handle, &count, d.swapchain.images)
	d.swapchain.imageCount = count

	d.swapchain.views = make([]vk.ImageView, count)
	for i, image := range d.swapchain.images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   chosen.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if res := vk.CreateImageView(d.device, &viewInfo, nil, &d.swapchain.views[i]); res != vk.Success {
			return fmt.Errorf("failed to create swapchain image view: %s", resultString(res))
		}
	}

	core.LogDebug("swapchain ready: %dx%d, %d images", extent.Width, extent.Height, count)
	return nil
}

// RecreateSwapchain rebuilds the swapchain after a resize or an out-of-date
// report. The device must be idle.
func (d *Driver) RecreateSwapchain(width, height uint32) error {
	if err := d.WaitIdle(); err != nil {
		return err
	}
	d.swapchain.mu.Lock()
	defer d.swapchain.mu.Unlock()
	return d.createSwapchainLocked(width, height)
}

func (d *Driver) destroySwapchain() {
	d.swapchain.mu.Lock()
	defer d.swapchain.mu.Unlock()
	d.destroySwapchainLocked()
	if d.swapchain.handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.device, d.swapchain.handle, nil)
		d.swapchain.handle = vk.NullSwapchain
	}
}

// destroySwapchainLocked destroys the image views of the current swapchain;
// the swapchain handle itself is destroyed by the caller, which knows whether
// it was replaced through OldSwapchain or torn down for good.
func (d *Driver) destroySwapchainLocked() {
	for _, view := range d.swapchain.views {
		vk.DestroyImageView(d.device, view, nil)
	}
	d.swapchain.views = nil
	d.swapchain.images = nil
}

func (d *Driver) AcquireNextImage(signal gpu.Semaphore) (uint32, error) {
	var imageIndex uint32
	res := vk.AcquireNextImage(d.device, d.swapchain.handle, ^uint64(0),
		d.semaphores.get(uint64(signal)), vk.NullFence, &imageIndex)
	if res == vk.Success {
		return imageIndex, nil
	}
	if res == vk.Suboptimal {
		return imageIndex, gpu.ErrSuboptimal
	}
	return 0, resultErr("vkAcquireNextImageKHR", res)
}

func (d *Driver) Present(queue gpu.QueueHandle, wait gpu.Semaphore, imageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{d.semaphores.get(uint64(wait))},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchain.handle},
		PImageIndices:      []uint32{imageIndex},
	}
	return resultErr("vkQueuePresentKHR", vk.QueuePresent(d.presentQueue, &presentInfo))
}

func (d *Driver) SwapchainImageCount() uint32 {
	d.swapchain.mu.Lock()
	defer d.swapchain.mu.Unlock()
	return d.swapchain.imageCount
}

// SwapchainFormat reports the color format pipelines rendering to the
// swapchain should declare.
func (d *Driver) SwapchainFormat() gpu.Format {
	d.swapchain.mu.Lock()
	defer d.swapchain.mu.Unlock()
	switch d.swapchain.format.Format {
	case vk.FormatR8g8b8a8Unorm:
		return gpu.FormatR8G8B8A8Unorm
	default:
		return gpu.FormatB8G8R8A8Unorm
	}
}
