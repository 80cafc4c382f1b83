// Package vulkan implements the gpu.Device contract on top of the Vulkan
// API. It owns the instance, surface, logical device and swapchain, and maps
// the opaque handles used above it onto live Vulkan objects.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/platform"
	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

type Driver struct {
	platform *platform.Platform
	debug    bool

	instance      vk.Instance
	debugCallback vk.DebugReportCallback
	surface       vk.Surface

	physicalDevice vk.PhysicalDevice
	device         vk.Device
	families       []gpu.QueueFamily
	presentQueue   vk.Queue

	swapchain swapchainState

	queues          handleTable[vk.Queue]
	commandPools    handleTable[vk.CommandPool]
	commandBuffers  handleTable[vk.CommandBuffer]
	fences          handleTable[vk.Fence]
	semaphores      handleTable[vk.Semaphore]
	descriptorPools handleTable[vk.DescriptorPool]
	descriptorSets  handleTable[vk.DescriptorSet]
	setLayouts      handleTable[vk.DescriptorSetLayout]
	pipelineLayouts handleTable[vk.PipelineLayout]
	shaderModules   handleTable[vk.ShaderModule]
	pipelines       handleTable[compiledPipeline]
	imageViews      handleTable[vk.ImageView]
	samplers        handleTable[vk.Sampler]
	buffers         handleTable[vk.Buffer]
}

// New initializes the Vulkan loader, instance, surface, device and swapchain
// for the platform window. debug enables the validation layer and report
// callback.
func New(p *platform.Platform, appName string, width, height uint32, debug bool) (*Driver, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("vulkan loader not available")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vulkan: %w", err)
	}

	d := &Driver{platform: p, debug: debug}

	if err := d.createInstance(appName); err != nil {
		return nil, err
	}
	if debug {
		if err := d.createDebugCallback(); err != nil {
			core.LogWarn("validation output disabled: %v", err)
		}
	}

	surface, err := p.Window.CreateWindowSurface(d.instance, nil)
	if err != nil {
		d.Shutdown()
		return nil, fmt.Errorf("failed to create window surface: %w", err)
	}
	d.surface = vk.SurfaceFromPointer(surface)

	if err := d.createDevice(); err != nil {
		d.Shutdown()
		return nil, err
	}
	if err := d.createSwapchain(width, height); err != nil {
		d.Shutdown()
		return nil, err
	}

	core.LogInfo("vulkan driver ready: %d queue families, %d swapchain images",
		len(d.families), d.swapchain.imageCount)
	return d, nil
}

func (d *Driver) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(appName),
		PEngineName:        safeString("Astra Engine"),
	}

	extensions := []string{"VK_KHR_surface"}
	extensions = append(extensions, d.platform.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
	}
	if d.debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	if runtime.GOOS == "darwin" {
		createInfo.Flags |= 1 // portability enumeration
	}

	var layers []string
	if d.debug {
		layers = d.availableValidationLayers()
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = safeStrings(layers)

	if res := vk.CreateInstance(&createInfo, nil, &d.instance); res != vk.Success {
		return fmt.Errorf("failed to create instance: %s", resultString(res))
	}
	if err := vk.InitInstance(d.instance); err != nil {
		return fmt.Errorf("failed to load instance procs: %w", err)
	}
	return nil
}

// availableValidationLayers filters the wanted validation layers down to the
// ones the loader actually has, so a machine without the SDK still runs.
func (d *Driver) availableValidationLayers() []string {
	wanted := []string{"VK_LAYER_KHRONOS_validation"}

	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success || count == 0 {
		return nil
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return nil
	}

	var out []string
	for _, want := range wanted {
		for i := range available {
			available[i].Deref()
			end := 0
			for end < len(available[i].LayerName) && available[i].LayerName[end] != 0 {
				end++
			}
			if want == string(available[i].LayerName[:end]) {
				out = append(out, want)
				break
			}
		}
	}
	if len(out) != len(wanted) {
		core.LogWarn("some validation layers are missing, wanted %v got %v", wanted, out)
	}
	return out
}

func (d *Driver) createDebugCallback() error {
	createInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugReportFunc,
	}
	var callback vk.DebugReportCallback
	if res := vk.CreateDebugReportCallback(d.instance, &createInfo, nil, &callback); res != vk.Success {
		return fmt.Errorf("failed to create debug callback: %s", resultString(res))
	}
	d.debugCallback = callback
	return nil
}

func debugReportFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64,
	location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] %s", pLayerPrefix, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] %s", pLayerPrefix, pMessage)
	default:
		core.LogDebug("[%s] %s", pLayerPrefix, pMessage)
	}
	return vk.False
}

// Shutdown destroys the device and instance. Every object created through
// the driver must already be destroyed by its owner.
func (d *Driver) Shutdown() {
	if d.device != nil {
		vk.DeviceWaitIdle(d.device)
		d.destroySwapchain()
		vk.DestroyDevice(d.device, nil)
		d.device = nil
	}
	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	if d.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.debugCallback, nil)
		d.debugCallback = vk.NullDebugReportCallback
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

func (d *Driver) WaitIdle() error {
	return resultErr("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.device))
}
