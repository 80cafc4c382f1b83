package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

// resultErr maps a vk.Result onto the driver error taxonomy. Recoverable
// conditions keep their sentinel identity so the layers above can react to
// them; everything else becomes a generic wrapped error.
func resultErr(op string, result vk.Result) error {
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorOutOfPoolMemory:
		return gpu.ErrOutOfPoolMemory
	case vk.ErrorFragmentedPool:
		return gpu.ErrFragmentedPool
	case vk.ErrorOutOfDate:
		return gpu.ErrOutOfDate
	case vk.Suboptimal:
		return gpu.ErrSuboptimal
	case vk.ErrorDeviceLost:
		return gpu.ErrDeviceLost
	case vk.Timeout:
		return gpu.ErrTimeout
	}
	return fmt.Errorf("%s failed with %s", op, resultString(result))
}

func resultString(result vk.Result) string {
	switch result {
	case vk.ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY"
	case vk.ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY"
	case vk.ErrorInitializationFailed:
		return "VK_ERROR_INITIALIZATION_FAILED"
	case vk.ErrorLayerNotPresent:
		return "VK_ERROR_LAYER_NOT_PRESENT"
	case vk.ErrorExtensionNotPresent:
		return "VK_ERROR_EXTENSION_NOT_PRESENT"
	case vk.ErrorFeatureNotPresent:
		return "VK_ERROR_FEATURE_NOT_PRESENT"
	case vk.ErrorIncompatibleDriver:
		return "VK_ERROR_INCOMPATIBLE_DRIVER"
	case vk.ErrorFormatNotSupported:
		return "VK_ERROR_FORMAT_NOT_SUPPORTED"
	case vk.ErrorSurfaceLost:
		return "VK_ERROR_SURFACE_LOST_KHR"
	case vk.ErrorNativeWindowInUse:
		return "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR"
	case vk.ErrorTooManyObjects:
		return "VK_ERROR_TOO_MANY_OBJECTS"
	}
	return fmt.Sprintf("VkResult(%d)", int32(result))
}

// safeString returns s with the NUL terminator the C side expects.
func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

// repackUint32 reinterprets SPIR-V bytes as the word slice the API expects.
func repackUint32(code []byte) []uint32 {
	out := make([]uint32, len(code)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return out
}

func descriptorType(t gpu.DescriptorType) vk.DescriptorType {
	switch t {
	case gpu.DescriptorTypeSampler:
		return vk.DescriptorTypeSampler
	case gpu.DescriptorTypeCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case gpu.DescriptorTypeSampledImage:
		return vk.DescriptorTypeSampledImage
	case gpu.DescriptorTypeStorageImage:
		return vk.DescriptorTypeStorageImage
	case gpu.DescriptorTypeUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case gpu.DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case gpu.DescriptorTypeUniformBufferDynamic:
		return vk.DescriptorTypeUniformBufferDynamic
	case gpu.DescriptorTypeStorageBufferDynamic:
		return vk.DescriptorTypeStorageBufferDynamic
	}
	panic(fmt.Sprintf("vulkan: unknown descriptor type %d", t))
}

func shaderStageFlags(stages gpu.ShaderStageFlags) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	if stages&gpu.ShaderStageVertex != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if stages&gpu.ShaderStageFragment != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	if stages&gpu.ShaderStageCompute != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	}
	return out
}

func bindingFlags(flags gpu.BindingFlags) vk.DescriptorBindingFlags {
	var out vk.DescriptorBindingFlags
	if flags&gpu.BindingPartiallyBound != 0 {
		out |= vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit)
	}
	if flags&gpu.BindingVariableCount != 0 {
		out |= vk.DescriptorBindingFlags(vk.DescriptorBindingVariableDescriptorCountBit)
	}
	return out
}

func imageLayout(l gpu.ImageLayout) vk.ImageLayout {
	switch l {
	case gpu.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	case gpu.ImageLayoutShaderReadOnlyOptimal:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.ImageLayoutColorAttachmentOptimal:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.ImageLayoutDepthStencilAttachmentOptimal:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	return vk.ImageLayoutUndefined
}

func pipelineStageFlags(s gpu.PipelineStage) vk.PipelineStageFlags {
	switch s {
	case gpu.PipelineStageColorAttachmentOutput:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case gpu.PipelineStageBottom:
		return vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
}

func format(f gpu.Format) vk.Format {
	switch f {
	case gpu.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gpu.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gpu.FormatR16G16B16A16Sfloat:
		return vk.FormatR16g16b16a16Sfloat
	case gpu.FormatD32Sfloat:
		return vk.FormatD32Sfloat
	case gpu.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint
	}
	return vk.FormatUndefined
}

func primitiveTopology(t gpu.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case gpu.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gpu.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	case gpu.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

func polygonMode(m gpu.PolygonMode) vk.PolygonMode {
	switch m {
	case gpu.PolygonModeLine:
		return vk.PolygonModeLine
	case gpu.PolygonModePoint:
		return vk.PolygonModePoint
	}
	return vk.PolygonModeFill
}

func cullMode(m gpu.CullMode) vk.CullModeFlags {
	switch m {
	case gpu.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gpu.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func frontFace(f gpu.FrontFace) vk.FrontFace {
	if f == gpu.FrontFaceClockwise {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func compareOp(op gpu.CompareOp) vk.CompareOp {
	switch op {
	case gpu.CompareOpLess:
		return vk.CompareOpLess
	case gpu.CompareOpLessOrEqual:
		return vk.CompareOpLessOrEqual
	case gpu.CompareOpGreater:
		return vk.CompareOpGreater
	case gpu.CompareOpGreaterOrEqual:
		return vk.CompareOpGreaterOrEqual
	case gpu.CompareOpEqual:
		return vk.CompareOpEqual
	case gpu.CompareOpAlways:
		return vk.CompareOpAlways
	}
	return vk.CompareOpNever
}
