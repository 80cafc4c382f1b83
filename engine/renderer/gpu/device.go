package gpu

import (
	"errors"
	"time"
)

// Driver error taxonomy. Pool exhaustion errors are absorbed by the
// descriptor allocator; presentation errors are forwarded as a retryable
// signal; everything else propagates to the caller.
var (
	ErrOutOfPoolMemory = errors.New("gpu: out of pool memory")
	ErrFragmentedPool  = errors.New("gpu: fragmented pool")
	ErrOutOfDate       = errors.New("gpu: swapchain out of date")
	ErrSuboptimal      = errors.New("gpu: swapchain suboptimal")
	ErrDeviceLost      = errors.New("gpu: device lost")
	ErrTimeout         = errors.New("gpu: timeout")
)

// Device is the handle-based contract the command-submission core records
// against. Every call either fully succeeds or fails; there is no partial
// failure. Implementations must be safe for concurrent use.
type Device interface {
	// Queue discovery and command recording resources.
	QueueFamilies() []QueueFamily
	GetQueue(family, index uint32) (QueueHandle, error)
	CreateCommandPool(family uint32) (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffer(pool CommandPool) (CommandBuffer, error)
	BeginCommandBuffer(cb CommandBuffer, oneTimeSubmit bool) error
	EndCommandBuffer(cb CommandBuffer) error

	// Synchronization primitives.
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(fence Fence)
	WaitForFence(fence Fence, timeout time.Duration) error
	ResetFence(fence Fence) error
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(sem Semaphore)

	// Descriptor pools and sets. AllocateDescriptorSet reports
	// ErrOutOfPoolMemory / ErrFragmentedPool when the pool is exhausted;
	// variableCount is non-zero only for variable-length array layouts.
	CreateDescriptorPool(maxSets uint32, sizes []DescriptorPoolSize) (DescriptorPool, error)
	ResetDescriptorPool(pool DescriptorPool) error
	DestroyDescriptorPool(pool DescriptorPool)
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout, variableCount uint32) (DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorWrite)

	// Layouts, shader modules and pipelines.
	CreateDescriptorSetLayout(bindings []BindingSlot, stages ShaderStageFlags, push bool) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreatePipelineLayout(layouts []DescriptorSetLayout, ranges []PushConstantRange) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(module ShaderModule)
	CreateGraphicsPipeline(state *PipelineState) (Pipeline, error)
	CreateComputePipeline(state *PipelineState) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)

	// Submission and presentation. AcquireNextImage may return a valid image
	// index together with ErrSuboptimal; ErrOutOfDate means no image was
	// acquired and the frame must be skipped.
	Submit(queue QueueHandle, info SubmitInfo, fence Fence) error
	QueueWaitIdle(queue QueueHandle) error
	AcquireNextImage(signal Semaphore) (uint32, error)
	Present(queue QueueHandle, wait Semaphore, imageIndex uint32) error
	SwapchainImageCount() uint32

	WaitIdle() error
}
