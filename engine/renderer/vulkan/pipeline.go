package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

// compiledPipeline keeps the render pass the pipeline was compiled against so
// both go away together.
type compiledPipeline struct {
	pipeline   vk.Pipeline
	renderPass vk.RenderPass
}

func (d *Driver) CreateGraphicsPipeline(state *gpu.PipelineState) (gpu.Pipeline, error) {
	renderPass, err := d.createRenderPass(state.ColorFormats, state.DepthFormat)
	if err != nil {
		return 0, err
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: d.shaderModules.get(uint64(state.VertexShader)),
			PName:  safeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: d.shaderModules.get(uint64(state.FragmentShader)),
			PName:  safeString("main"),
		},
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: primitiveTopology(state.Topology),
	}

	// Viewport and scissor are dynamic; the counts still have to be declared.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: polygonMode(state.PolygonMode),
		LineWidth:   1.0,
		CullMode:    cullMode(state.CullMode),
		FrontFace:   frontFace(state.FrontFace),
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: compareOp(state.DepthCompare),
		MaxDepthBounds: 1.0,
	}
	if state.DepthTest {
		depthStencil.DepthTestEnable = vk.True
	}
	if state.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(state.ColorFormats))
	for i := range blendAttachments {
		blendAttachments[i] = blendAttachment(state.Blend)
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              d.pipelineLayouts.get(uint64(state.Layout)),
		RenderPass:          renderPass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(d.device, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{createInfo}, nil, pipelines)
	if res != vk.Success {
		vk.DestroyRenderPass(d.device, renderPass, nil)
		return 0, fmt.Errorf("vkCreateGraphicsPipelines failed with %s", resultString(res))
	}

	return gpu.Pipeline(d.pipelines.put(compiledPipeline{
		pipeline:   pipelines[0],
		renderPass: renderPass,
	})), nil
}

func (d *Driver) CreateComputePipeline(state *gpu.PipelineState) (gpu.Pipeline, error) {
	createInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: d.shaderModules.get(uint64(state.ComputeShader)),
			PName:  safeString("main"),
		},
		Layout:             d.pipelineLayouts.get(uint64(state.Layout)),
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateComputePipelines(d.device, vk.NullPipelineCache, 1,
		[]vk.ComputePipelineCreateInfo{createInfo}, nil, pipelines)
	if res != vk.Success {
		return 0, fmt.Errorf("vkCreateComputePipelines failed with %s", resultString(res))
	}

	return gpu.Pipeline(d.pipelines.put(compiledPipeline{pipeline: pipelines[0]})), nil
}

func (d *Driver) DestroyPipeline(pipeline gpu.Pipeline) {
	compiled := d.pipelines.take(uint64(pipeline))
	vk.DestroyPipeline(d.device, compiled.pipeline, nil)
	if compiled.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(d.device, compiled.renderPass, nil)
	}
}

// createRenderPass builds a single-subpass render pass matching the declared
// attachment formats, used only for pipeline compatibility.
func (d *Driver) createRenderPass(colorFormats []gpu.Format, depthFormat gpu.Format) (vk.RenderPass, error) {
	var attachments []vk.AttachmentDescription
	colorRefs := make([]vk.AttachmentReference, len(colorFormats))

	for i, f := range colorFormats {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         format(f),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		})
		colorRefs[i] = vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}

	var depthRef vk.AttachmentReference
	if depthFormat != gpu.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         format(depthFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		depthRef = vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		subpass.PDepthStencilAttachment = &depthRef
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var renderPass vk.RenderPass
	if res := vk.CreateRenderPass(d.device, &createInfo, nil, &renderPass); res != vk.Success {
		return vk.NullRenderPass, fmt.Errorf("vkCreateRenderPass failed with %s", resultString(res))
	}
	return renderPass, nil
}

func blendAttachment(mode gpu.BlendMode) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	switch mode {
	case gpu.BlendModeAlpha:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorZero
		state.AlphaBlendOp = vk.BlendOpAdd
	case gpu.BlendModeAdditive:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorOne
		state.DstColorBlendFactor = vk.BlendFactorOne
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOne
		state.AlphaBlendOp = vk.BlendOpAdd
	}
	return state
}
