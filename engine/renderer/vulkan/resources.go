package vulkan

import (
	"fmt"
	"time"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

func (d *Driver) CreateCommandPool(family uint32) (gpu.CommandPool, error) {
	createInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.device, &createInfo, nil, &pool); res != vk.Success {
		return 0, resultErr("vkCreateCommandPool", res)
	}
	return gpu.CommandPool(d.commandPools.put(pool)), nil
}

func (d *Driver) DestroyCommandPool(pool gpu.CommandPool) {
	vk.DestroyCommandPool(d.device, d.commandPools.take(uint64(pool)), nil)
}

func (d *Driver) AllocateCommandBuffer(pool gpu.CommandPool) (gpu.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPools.get(uint64(pool)),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.device, &allocInfo, buffers); res != vk.Success {
		return 0, resultErr("vkAllocateCommandBuffers", res)
	}
	return gpu.CommandBuffer(d.commandBuffers.put(buffers[0])), nil
}

func (d *Driver) BeginCommandBuffer(cb gpu.CommandBuffer, oneTimeSubmit bool) error {
	buffer := d.commandBuffers.get(uint64(cb))
	if res := vk.ResetCommandBuffer(buffer, 0); res != vk.Success {
		return resultErr("vkResetCommandBuffer", res)
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTimeSubmit {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return resultErr("vkBeginCommandBuffer", vk.BeginCommandBuffer(buffer, &beginInfo))
}

func (d *Driver) EndCommandBuffer(cb gpu.CommandBuffer) error {
	return resultErr("vkEndCommandBuffer", vk.EndCommandBuffer(d.commandBuffers.get(uint64(cb))))
}

func (d *Driver) CreateFence(signaled bool) (gpu.Fence, error) {
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if res := vk.CreateFence(d.device, &createInfo, nil, &fence); res != vk.Success {
		return 0, resultErr("vkCreateFence", res)
	}
	return gpu.Fence(d.fences.put(fence)), nil
}

func (d *Driver) DestroyFence(fence gpu.Fence) {
	vk.DestroyFence(d.device, d.fences.take(uint64(fence)), nil)
}

func (d *Driver) WaitForFence(fence gpu.Fence, timeout time.Duration) error {
	timeoutNs := ^uint64(0)
	if timeout >= 0 {
		timeoutNs = uint64(timeout.Nanoseconds())
	}
	res := vk.WaitForFences(d.device, 1, []vk.Fence{d.fences.get(uint64(fence))}, vk.True, timeoutNs)
	return resultErr("vkWaitForFences", res)
}

func (d *Driver) ResetFence(fence gpu.Fence) error {
	return resultErr("vkResetFences", vk.ResetFences(d.device, 1, []vk.Fence{d.fences.get(uint64(fence))}))
}

func (d *Driver) CreateSemaphore() (gpu.Semaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sem vk.Semaphore
	if res := vk.CreateSemaphore(d.device, &createInfo, nil, &sem); res != vk.Success {
		return 0, resultErr("vkCreateSemaphore", res)
	}
	return gpu.Semaphore(d.semaphores.put(sem)), nil
}

func (d *Driver) DestroySemaphore(sem gpu.Semaphore) {
	vk.DestroySemaphore(d.device, d.semaphores.take(uint64(sem)), nil)
}

func (d *Driver) CreateDescriptorPool(maxSets uint32, sizes []gpu.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		poolSizes[i] = vk.DescriptorPoolSize{
			Type:            descriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.device, &createInfo, nil, &pool); res != vk.Success {
		return 0, resultErr("vkCreateDescriptorPool", res)
	}
	return gpu.DescriptorPool(d.descriptorPools.put(pool)), nil
}

func (d *Driver) ResetDescriptorPool(pool gpu.DescriptorPool) error {
	res := vk.ResetDescriptorPool(d.device, d.descriptorPools.get(uint64(pool)), 0)
	return resultErr("vkResetDescriptorPool", res)
}

func (d *Driver) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	vk.DestroyDescriptorPool(d.device, d.descriptorPools.take(uint64(pool)), nil)
}

func (d *Driver) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout, variableCount uint32) (gpu.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descriptorPools.get(uint64(pool)),
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.setLayouts.get(uint64(layout))},
	}
	if variableCount > 0 {
		counts := []uint32{variableCount}
		countInfo := vk.DescriptorSetVariableDescriptorCountAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetVariableDescriptorCountAllocateInfo,
			DescriptorSetCount: 1,
			PDescriptorCounts:  counts,
		}
		ref, _ := countInfo.PassRef()
		defer countInfo.Free()
		allocInfo.PNext = unsafe.Pointer(ref)
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(d.device, &allocInfo, &set); res != vk.Success {
		return 0, resultErr("vkAllocateDescriptorSets", res)
	}
	return gpu.DescriptorSet(d.descriptorSets.put(set)), nil
}

func (d *Driver) UpdateDescriptorSets(writes []gpu.DescriptorWrite) {
	if len(writes) == 0 {
		return
	}
	out := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		out[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          d.descriptorSets.get(uint64(w.Set)),
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorType:  descriptorType(w.Type),
		}
		if len(w.Images) > 0 {
			images := make([]vk.DescriptorImageInfo, len(w.Images))
			for j, img := range w.Images {
				if img.Sampler != 0 {
					images[j].Sampler = d.samplers.get(uint64(img.Sampler))
				}
				if img.View != 0 {
					images[j].ImageView = d.imageViews.get(uint64(img.View))
				}
				images[j].ImageLayout = imageLayout(img.Layout)
			}
			out[i].DescriptorCount = uint32(len(images))
			out[i].PImageInfo = images
		}
		if len(w.Buffers) > 0 {
			buffers := make([]vk.DescriptorBufferInfo, len(w.Buffers))
			for j, buf := range w.Buffers {
				buffers[j] = vk.DescriptorBufferInfo{
					Buffer: d.buffers.get(uint64(buf.Buffer)),
					Offset: vk.DeviceSize(buf.Offset),
					Range:  vk.DeviceSize(buf.Size),
				}
			}
			out[i].DescriptorCount = uint32(len(buffers))
			out[i].PBufferInfo = buffers
		}
	}
	vk.UpdateDescriptorSets(d.device, uint32(len(out)), out, 0, nil)
}

func (d *Driver) CreateDescriptorSetLayout(bindings []gpu.BindingSlot, stages gpu.ShaderStageFlags, push bool) (gpu.DescriptorSetLayout, error) {
	out := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	flags := make([]vk.DescriptorBindingFlags, len(bindings))
	hasFlags := false
	for i, b := range bindings {
		out[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  descriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      shaderStageFlags(stages),
		}
		flags[i] = bindingFlags(b.Flags)
		if b.Flags != 0 {
			hasFlags = true
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(out)),
		PBindings:    out,
	}
	if hasFlags {
		flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(flags)),
			PBindingFlags: flags,
		}
		ref, _ := flagsInfo.PassRef()
		defer flagsInfo.Free()
		createInfo.PNext = unsafe.Pointer(ref)
	}
	if push {
		createInfo.Flags = vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreatePushDescriptorBit)
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(d.device, &createInfo, nil, &layout); res != vk.Success {
		return 0, resultErr("vkCreateDescriptorSetLayout", res)
	}
	return gpu.DescriptorSetLayout(d.setLayouts.put(layout)), nil
}

func (d *Driver) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(d.device, d.setLayouts.take(uint64(layout)), nil)
}

func (d *Driver) CreatePipelineLayout(layouts []gpu.DescriptorSetLayout, ranges []gpu.PushConstantRange) (gpu.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		setLayouts[i] = d.setLayouts.get(uint64(l))
	}
	pushRanges := make([]vk.PushConstantRange, len(ranges))
	for i, r := range ranges {
		pushRanges[i] = vk.PushConstantRange{
			StageFlags: shaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(pushRanges)),
		PPushConstantRanges:    pushRanges,
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(d.device, &createInfo, nil, &layout); res != vk.Success {
		return 0, resultErr("vkCreatePipelineLayout", res)
	}
	return gpu.PipelineLayout(d.pipelineLayouts.put(layout)), nil
}

func (d *Driver) DestroyPipelineLayout(layout gpu.PipelineLayout) {
	vk.DestroyPipelineLayout(d.device, d.pipelineLayouts.take(uint64(layout)), nil)
}

func (d *Driver) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	if len(code)%4 != 0 {
		return 0, fmt.Errorf("shader bytecode length %d is not a multiple of 4", len(code))
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    repackUint32(code),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.device, &createInfo, nil, &module); res != vk.Success {
		return 0, resultErr("vkCreateShaderModule", res)
	}
	return gpu.ShaderModule(d.shaderModules.put(module)), nil
}

func (d *Driver) DestroyShaderModule(module gpu.ShaderModule) {
	vk.DestroyShaderModule(d.device, d.shaderModules.take(uint64(module)), nil)
}

func (d *Driver) Submit(queue gpu.QueueHandle, info gpu.SubmitInfo, fence gpu.Fence) error {
	waitSemaphores := make([]vk.Semaphore, len(info.WaitSemaphores))
	for i, s := range info.WaitSemaphores {
		waitSemaphores[i] = d.semaphores.get(uint64(s))
	}
	waitStages := make([]vk.PipelineStageFlags, len(info.WaitStages))
	for i, s := range info.WaitStages {
		waitStages[i] = pipelineStageFlags(s)
	}
	commandBuffers := make([]vk.CommandBuffer, len(info.CommandBuffers))
	for i, cb := range info.CommandBuffers {
		commandBuffers[i] = d.commandBuffers.get(uint64(cb))
	}
	signalSemaphores := make([]vk.Semaphore, len(info.SignalSemaphores))
	for i, s := range info.SignalSemaphores {
		signalSemaphores[i] = d.semaphores.get(uint64(s))
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waitSemaphores)),
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   uint32(len(commandBuffers)),
		PCommandBuffers:      commandBuffers,
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}

	signalFence := vk.NullFence
	if fence != 0 {
		signalFence = d.fences.get(uint64(fence))
	}
	res := vk.QueueSubmit(d.queues.get(uint64(queue)), 1, []vk.SubmitInfo{submitInfo}, signalFence)
	return resultErr("vkQueueSubmit", res)
}
