package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

// createDevice picks a physical device that can present to the surface,
// records its queue family capabilities and creates the logical device with
// every family enabled.
func (d *Driver) createDevice() error {
	var deviceCount uint32
	if res := vk.EnumeratePhysicalDevices(d.instance, &deviceCount, nil); res != vk.Success || deviceCount == 0 {
		return fmt.Errorf("no Vulkan capable devices found")
	}
	physicalDevices := make([]vk.PhysicalDevice, deviceCount)
	if res := vk.EnumeratePhysicalDevices(d.instance, &deviceCount, physicalDevices); res != vk.Success {
		return fmt.Errorf("failed to enumerate physical devices: %s", resultString(res))
	}

	for _, candidate := range physicalDevices {
		families := d.queryQueueFamilies(candidate)
		if !hasPresentableGraphics(families) {
			continue
		}
		d.physicalDevice = candidate
		d.families = families
		break
	}
	if d.physicalDevice == nil {
		return fmt.Errorf("no device can render and present to the surface")
	}

	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.physicalDevice, &properties)
	properties.Deref()
	end := 0
	for end < len(properties.DeviceName) && properties.DeviceName[end] != 0 {
		end++
	}
	core.LogInfo("selected GPU: %s", string(properties.DeviceName[:end]))

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(d.families))
	priorities := []float32{1.0, 1.0}
	for i, family := range d.families {
		count := family.Count
		if count > 2 {
			count = 2
		}
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family.Index,
			QueueCount:       count,
			PQueuePriorities: priorities[:count],
		}
	}

	features := vk.PhysicalDeviceFeatures{}
	features.SamplerAnisotropy = vk.True

	extensions := []string{vk.KhrSwapchainExtensionName}
	if d.deviceHasExtension("VK_KHR_portability_subset") {
		extensions = append(extensions, "VK_KHR_portability_subset")
	}
	indexing := d.deviceHasExtension(vk.ExtDescriptorIndexingExtensionName)
	if indexing {
		extensions = append(extensions, vk.ExtDescriptorIndexingExtensionName)
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	if indexing {
		// Variable-count image array layouts need these enabled at device
		// creation.
		indexingFeatures := vk.PhysicalDeviceDescriptorIndexingFeatures{
			SType: vk.StructureTypePhysicalDeviceDescriptorIndexingFeatures,
			ShaderSampledImageArrayNonUniformIndexing: vk.True,
			DescriptorBindingPartiallyBound:           vk.True,
			DescriptorBindingVariableDescriptorCount:  vk.True,
			RuntimeDescriptorArray:                    vk.True,
		}
		ref, _ := indexingFeatures.PassRef()
		defer indexingFeatures.Free()
		createInfo.PNext = unsafe.Pointer(ref)
	}

	var device vk.Device
	if res := vk.CreateDevice(d.physicalDevice, &createInfo, nil, &device); res != vk.Success {
		return fmt.Errorf("failed to create logical device: %s", resultString(res))
	}
	d.device = device

	// The present queue comes from the first presentable family.
	for _, family := range d.families {
		if family.CanPresent {
			var q vk.Queue
			vk.GetDeviceQueue(d.device, family.Index, 0, &q)
			d.presentQueue = q
			break
		}
	}
	return nil
}

func (d *Driver) queryQueueFamilies(device vk.PhysicalDevice) []gpu.QueueFamily {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	properties := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, properties)

	families := make([]gpu.QueueFamily, 0, count)
	for i := range properties {
		properties[i].Deref()

		var flags gpu.QueueFlags
		if properties[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			flags |= gpu.QueueGraphics
		}
		if properties[i].QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			flags |= gpu.QueueCompute
		}
		if properties[i].QueueFlags&vk.QueueFlags(vk.QueueTransferBit) != 0 {
			flags |= gpu.QueueTransfer
		}
		if flags == 0 {
			continue
		}

		var presentable vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), d.surface, &presentable)

		families = append(families, gpu.QueueFamily{
			Index:      uint32(i),
			Flags:      flags,
			Count:      properties[i].QueueCount,
			CanPresent: presentable == vk.True,
		})
	}
	return families
}

func hasPresentableGraphics(families []gpu.QueueFamily) bool {
	for _, f := range families {
		if f.Flags&gpu.QueueGraphics != 0 && f.CanPresent {
			return true
		}
	}
	return false
}

func (d *Driver) deviceHasExtension(name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(d.physicalDevice, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(d.physicalDevice, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		end := 0
		for end < len(available[i].ExtensionName) && available[i].ExtensionName[end] != 0 {
			end++
		}
		if name == string(available[i].ExtensionName[:end]) {
			return true
		}
	}
	return false
}

func (d *Driver) QueueFamilies() []gpu.QueueFamily {
	out := make([]gpu.QueueFamily, len(d.families))
	copy(out, d.families)
	return out
}

func (d *Driver) GetQueue(family, index uint32) (gpu.QueueHandle, error) {
	for _, f := range d.families {
		if f.Index != family {
			continue
		}
		if index >= f.Count {
			return 0, fmt.Errorf("family %d has %d queues, index %d out of range", family, f.Count, index)
		}
		// The logical device enables at most two queues per family.
		if index >= 2 {
			return 0, fmt.Errorf("queue index %d not enabled on family %d", index, family)
		}
		var q vk.Queue
		vk.GetDeviceQueue(d.device, family, index, &q)
		return gpu.QueueHandle(d.queues.put(q)), nil
	}
	return 0, fmt.Errorf("unknown queue family %d", family)
}

func (d *Driver) QueueWaitIdle(queue gpu.QueueHandle) error {
	return resultErr("vkQueueWaitIdle", vk.QueueWaitIdle(d.queues.get(uint64(queue))))
}
