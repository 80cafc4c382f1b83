package gpu

// Opaque driver handles. A handle of zero is the null handle. The concrete
// driver (engine/renderer/vulkan) keeps the mapping from these ids to its own
// objects; nothing above the Device interface ever sees a raw driver pointer.
type (
	DescriptorPool      uint64
	DescriptorSet       uint64
	DescriptorSetLayout uint64
	PipelineLayout      uint64
	Pipeline            uint64
	ShaderModule        uint64
	CommandPool         uint64
	CommandBuffer       uint64
	Fence               uint64
	Semaphore           uint64
	QueueHandle         uint64
	ImageView           uint64
	Sampler             uint64
	Buffer              uint64
)

type DescriptorType uint32

const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
	DescriptorTypeUniformBufferDynamic
	DescriptorTypeStorageBufferDynamic
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeSampler:
		return "sampler"
	case DescriptorTypeCombinedImageSampler:
		return "combined_image_sampler"
	case DescriptorTypeSampledImage:
		return "sampled_image"
	case DescriptorTypeStorageImage:
		return "storage_image"
	case DescriptorTypeUniformBuffer:
		return "uniform_buffer"
	case DescriptorTypeStorageBuffer:
		return "storage_buffer"
	case DescriptorTypeUniformBufferDynamic:
		return "uniform_buffer_dynamic"
	case DescriptorTypeStorageBufferDynamic:
		return "storage_buffer_dynamic"
	}
	return "unknown"
}

type ShaderStageFlags uint32

const (
	ShaderStageVertex   ShaderStageFlags = 1 << 0
	ShaderStageFragment ShaderStageFlags = 1 << 1
	ShaderStageCompute  ShaderStageFlags = 1 << 2
)

type QueueFlags uint32

const (
	QueueGraphics QueueFlags = 1 << 0
	QueueCompute  QueueFlags = 1 << 1
	QueueTransfer QueueFlags = 1 << 2
)

// QueueFamily describes one hardware queue family as discovered by the driver.
type QueueFamily struct {
	Index    uint32
	Flags    QueueFlags
	Count    uint32
	CanPresent bool
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type PushConstantRange struct {
	Stages ShaderStageFlags
	Offset uint32
	Size   uint32
}

type BindingFlags uint32

const (
	BindingPartiallyBound BindingFlags = 1 << 0
	BindingVariableCount  BindingFlags = 1 << 1
)

// BindingSlot is one entry of a descriptor set layout.
type BindingSlot struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Flags   BindingFlags
}

type ImageLayout uint32

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutShaderReadOnlyOptimal
	ImageLayoutColorAttachmentOptimal
	ImageLayoutDepthStencilAttachmentOptimal
)

type ImageBinding struct {
	View    ImageView
	Sampler Sampler
	Layout  ImageLayout
}

type BufferBinding struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
}

// DescriptorWrite updates one binding of a descriptor set. Exactly one of
// Images or Buffers is populated, matching the binding's descriptor type.
type DescriptorWrite struct {
	Set          DescriptorSet
	Binding      uint32
	ArrayElement uint32
	Type         DescriptorType
	Images       []ImageBinding
	Buffers      []BufferBinding
}

type PipelineStage uint32

const (
	PipelineStageTop PipelineStage = iota
	PipelineStageColorAttachmentOutput
	PipelineStageBottom
)

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type PrimitiveTopology uint32

const (
	TopologyTriangleList PrimitiveTopology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyPointList
)

type PolygonMode uint32

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
	PolygonModePoint
)

type CullMode uint32

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type CompareOp uint32

const (
	CompareOpNever CompareOp = iota
	CompareOpLess
	CompareOpLessOrEqual
	CompareOpGreater
	CompareOpGreaterOrEqual
	CompareOpEqual
	CompareOpAlways
)

type BlendMode uint32

const (
	BlendModeNone BlendMode = iota
	BlendModeAlpha
	BlendModeAdditive
)

type Format uint32

const (
	FormatUndefined Format = iota
	FormatB8G8R8A8Unorm
	FormatR8G8B8A8Unorm
	FormatR16G16B16A16Sfloat
	FormatD32Sfloat
	FormatD24UnormS8Uint
)

// PipelineState is the declarative description a pipeline builder accumulates
// and the driver compiles into a pipeline object.
type PipelineState struct {
	VertexShader   ShaderModule
	FragmentShader ShaderModule
	ComputeShader  ShaderModule

	Layout PipelineLayout

	Topology    PrimitiveTopology
	PolygonMode PolygonMode
	CullMode    CullMode
	FrontFace   FrontFace

	DepthTest    bool
	DepthWrite   bool
	DepthCompare CompareOp

	Blend BlendMode

	ColorFormats []Format
	DepthFormat  Format
}
