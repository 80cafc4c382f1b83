package backend

import (
	"sync"
	"time"

	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

// fakeDevice implements gpu.Device in memory: handles are counters, fences
// signal on submit, descriptor pools track remaining capacity so exhaustion
// paths can be exercised deterministically.
type fakeDevice struct {
	mu         sync.Mutex
	nextHandle uint64

	families []gpu.QueueFamily

	poolRemaining map[gpu.DescriptorPool]uint32
	poolCapacity  map[gpu.DescriptorPool]uint32
	poolsCreated  int
	poolsReset    int

	// failAllocations forces the next N set allocations to report pool
	// exhaustion regardless of remaining capacity.
	failAllocations int

	layoutsCreated         int
	pipelineLayoutsCreated int
	shadersCreated         int
	pipelinesCreated       int
	setsAllocated          int

	lastLayoutBindings []gpu.BindingSlot
	lastVariableCount  uint32

	destroyedLayouts         int
	destroyedPipelineLayouts int
	destroyedShaders         int
	destroyedPools           int
	destroyedSemaphores      int

	signaled map[gpu.Fence]bool

	submits  int
	presents int

	swapchainImages uint32
	acquireErr      error
	presentErr      error

	updates []gpu.DescriptorWrite
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		families: []gpu.QueueFamily{
			{Index: 0, Flags: gpu.QueueGraphics | gpu.QueueCompute | gpu.QueueTransfer, Count: 2, CanPresent: true},
			{Index: 1, Flags: gpu.QueueTransfer, Count: 1},
		},
		poolRemaining:   map[gpu.DescriptorPool]uint32{},
		poolCapacity:    map[gpu.DescriptorPool]uint32{},
		signaled:        map[gpu.Fence]bool{},
		swapchainImages: 3,
	}
}

func (d *fakeDevice) handle() uint64 {
	d.nextHandle++
	return d.nextHandle
}

func (d *fakeDevice) QueueFamilies() []gpu.QueueFamily { return d.families }

func (d *fakeDevice) GetQueue(family, index uint32) (gpu.QueueHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.QueueHandle(d.handle()), nil
}

func (d *fakeDevice) CreateCommandPool(family uint32) (gpu.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.CommandPool(d.handle()), nil
}

func (d *fakeDevice) DestroyCommandPool(pool gpu.CommandPool) {}

func (d *fakeDevice) AllocateCommandBuffer(pool gpu.CommandPool) (gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.CommandBuffer(d.handle()), nil
}

func (d *fakeDevice) BeginCommandBuffer(cb gpu.CommandBuffer, oneTimeSubmit bool) error { return nil }
func (d *fakeDevice) EndCommandBuffer(cb gpu.CommandBuffer) error                       { return nil }

func (d *fakeDevice) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fence := gpu.Fence(d.handle())
	d.signaled[fence] = signaled
	return fence, nil
}

func (d *fakeDevice) DestroyFence(fence gpu.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.signaled, fence)
}

func (d *fakeDevice) WaitForFence(fence gpu.Fence, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.signaled[fence] {
		return gpu.ErrTimeout
	}
	return nil
}

func (d *fakeDevice) ResetFence(fence gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signaled[fence] = false
	return nil
}

func (d *fakeDevice) CreateSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Semaphore(d.handle()), nil
}

func (d *fakeDevice) DestroySemaphore(sem gpu.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyedSemaphores++
}

func (d *fakeDevice) CreateDescriptorPool(maxSets uint32, sizes []gpu.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool := gpu.DescriptorPool(d.handle())
	d.poolRemaining[pool] = maxSets
	d.poolCapacity[pool] = maxSets
	d.poolsCreated++
	return pool, nil
}

func (d *fakeDevice) ResetDescriptorPool(pool gpu.DescriptorPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.poolRemaining[pool] = d.poolCapacity[pool]
	d.poolsReset++
	return nil
}

func (d *fakeDevice) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.poolRemaining, pool)
	delete(d.poolCapacity, pool)
	d.destroyedPools++
}

func (d *fakeDevice) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout, variableCount uint32) (gpu.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastVariableCount = variableCount
	if d.failAllocations > 0 {
		d.failAllocations--
		return 0, gpu.ErrOutOfPoolMemory
	}
	if d.poolRemaining[pool] == 0 {
		return 0, gpu.ErrOutOfPoolMemory
	}
	d.poolRemaining[pool]--
	d.setsAllocated++
	return gpu.DescriptorSet(d.handle()), nil
}

func (d *fakeDevice) UpdateDescriptorSets(writes []gpu.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, writes...)
}

func (d *fakeDevice) CreateDescriptorSetLayout(bindings []gpu.BindingSlot, stages gpu.ShaderStageFlags, push bool) (gpu.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastLayoutBindings = append([]gpu.BindingSlot(nil), bindings...)
	d.layoutsCreated++
	return gpu.DescriptorSetLayout(d.handle()), nil
}

func (d *fakeDevice) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyedLayouts++
}

func (d *fakeDevice) CreatePipelineLayout(layouts []gpu.DescriptorSetLayout, ranges []gpu.PushConstantRange) (gpu.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipelineLayoutsCreated++
	return gpu.PipelineLayout(d.handle()), nil
}

func (d *fakeDevice) DestroyPipelineLayout(layout gpu.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyedPipelineLayouts++
}

func (d *fakeDevice) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shadersCreated++
	return gpu.ShaderModule(d.handle()), nil
}

func (d *fakeDevice) DestroyShaderModule(module gpu.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyedShaders++
}

func (d *fakeDevice) CreateGraphicsPipeline(state *gpu.PipelineState) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipelinesCreated++
	return gpu.Pipeline(d.handle()), nil
}

func (d *fakeDevice) CreateComputePipeline(state *gpu.PipelineState) (gpu.Pipeline, error) {
	return d.CreateGraphicsPipeline(state)
}

func (d *fakeDevice) DestroyPipeline(pipeline gpu.Pipeline) {}

func (d *fakeDevice) Submit(queue gpu.QueueHandle, info gpu.SubmitInfo, fence gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submits++
	if fence != 0 {
		d.signaled[fence] = true
	}
	return nil
}

func (d *fakeDevice) QueueWaitIdle(queue gpu.QueueHandle) error { return nil }

func (d *fakeDevice) AcquireNextImage(signal gpu.Semaphore) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.acquireErr != nil {
		err := d.acquireErr
		d.acquireErr = nil
		return 0, err
	}
	return uint32(d.presents) % d.swapchainImages, nil
}

func (d *fakeDevice) Present(queue gpu.QueueHandle, wait gpu.Semaphore, imageIndex uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.presentErr != nil {
		err := d.presentErr
		d.presentErr = nil
		return err
	}
	d.presents++
	return nil
}

func (d *fakeDevice) SwapchainImageCount() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.swapchainImages
}

func (d *fakeDevice) setSwapchainImageCount(n uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.swapchainImages = n
}

func (d *fakeDevice) WaitIdle() error { return nil }
