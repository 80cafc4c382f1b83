package backend

import (
	"fmt"

	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer/gpu"
	"github.com/spaghettifunk/astra/engine/renderer/spirv"
)

// BindPoint distinguishes graphics from compute pipelines at bind time.
type BindPoint uint8

const (
	BindPointGraphics BindPoint = iota
	BindPointCompute
)

// Pipeline is a compiled pipeline and the layout it binds with.
type Pipeline struct {
	Name      string
	Handle    gpu.Pipeline
	Layout    gpu.PipelineLayout
	BindPoint BindPoint
}

// PipelineBuilder compiles a pipeline from shader files. Descriptor set
// layouts and the pipeline layout are derived from SPIR-V reflection, so the
// caller only supplies fixed-function state.
type PipelineBuilder struct {
	cache *Cache

	vertexPath   string
	fragmentPath string
	computePath  string

	state gpu.PipelineState
}

// NewPipelineBuilder starts a builder with opaque fill-mode defaults.
func (c *Cache) NewPipelineBuilder() *PipelineBuilder {
	return &PipelineBuilder{
		cache: c,
		state: gpu.PipelineState{
			Topology:     gpu.TopologyTriangleList,
			PolygonMode:  gpu.PolygonModeFill,
			CullMode:     gpu.CullModeBack,
			FrontFace:    gpu.FrontFaceCounterClockwise,
			DepthCompare: gpu.CompareOpLess,
		},
	}
}

func (b *PipelineBuilder) Shaders(vertexPath, fragmentPath string) *PipelineBuilder {
	b.vertexPath = vertexPath
	b.fragmentPath = fragmentPath
	return b
}

func (b *PipelineBuilder) Compute(path string) *PipelineBuilder {
	b.computePath = path
	return b
}

func (b *PipelineBuilder) Topology(t gpu.PrimitiveTopology) *PipelineBuilder {
	b.state.Topology = t
	return b
}

func (b *PipelineBuilder) PolygonMode(m gpu.PolygonMode) *PipelineBuilder {
	b.state.PolygonMode = m
	return b
}

func (b *PipelineBuilder) CullMode(m gpu.CullMode, front gpu.FrontFace) *PipelineBuilder {
	b.state.CullMode = m
	b.state.FrontFace = front
	return b
}

func (b *PipelineBuilder) DepthTest(write bool, compare gpu.CompareOp) *PipelineBuilder {
	b.state.DepthTest = true
	b.state.DepthWrite = write
	b.state.DepthCompare = compare
	return b
}

func (b *PipelineBuilder) Blend(mode gpu.BlendMode) *PipelineBuilder {
	b.state.Blend = mode
	return b
}

func (b *PipelineBuilder) ColorFormats(formats ...gpu.Format) *PipelineBuilder {
	b.state.ColorFormats = formats
	return b
}

func (b *PipelineBuilder) DepthFormat(format gpu.Format) *PipelineBuilder {
	b.state.DepthFormat = format
	return b
}

// Build compiles the pipeline and caches it under name. A second Build with
// the same name returns the cached pipeline without touching the shaders.
func (b *PipelineBuilder) Build(name string) (*Pipeline, error) {
	return b.cache.pipelines.getOrCreate(name,
		func() (*Pipeline, error) {
			p, err := b.compile(name)
			if err != nil {
				return nil, fmt.Errorf("failed to build pipeline %q: %w", name, err)
			}
			return p, nil
		},
		func(surplus *Pipeline) {
			b.cache.device.DestroyPipeline(surplus.Handle)
		})
}

func (b *PipelineBuilder) compile(name string) (*Pipeline, error) {
	var shaders []*Shader
	bindPoint := BindPointGraphics

	if b.computePath != "" {
		shader, err := b.cache.ShaderModule(b.computePath)
		if err != nil {
			return nil, err
		}
		shaders = append(shaders, shader)
		b.state.ComputeShader = shader.Module
		bindPoint = BindPointCompute
	} else {
		vertex, err := b.cache.ShaderModule(b.vertexPath)
		if err != nil {
			return nil, err
		}
		fragment, err := b.cache.ShaderModule(b.fragmentPath)
		if err != nil {
			return nil, err
		}
		shaders = append(shaders, vertex, fragment)
		b.state.VertexShader = vertex.Module
		b.state.FragmentShader = fragment.Module
	}

	layout, err := b.deriveLayout(shaders)
	if err != nil {
		return nil, err
	}
	b.state.Layout = layout

	var handle gpu.Pipeline
	if bindPoint == BindPointCompute {
		handle, err = b.cache.device.CreateComputePipeline(&b.state)
	} else {
		handle, err = b.cache.device.CreateGraphicsPipeline(&b.state)
	}
	if err != nil {
		return nil, err
	}

	core.LogDebug("compiled pipeline %q", name)
	return &Pipeline{Name: name, Handle: handle, Layout: layout, BindPoint: bindPoint}, nil
}

// deriveLayout merges the reflection of every stage into per-set descriptions
// and resolves them through the caches into one pipeline layout.
func (b *PipelineBuilder) deriveLayout(shaders []*Shader) (gpu.PipelineLayout, error) {
	type slot struct {
		binding spirv.Binding
		stages  gpu.ShaderStageFlags
	}
	merged := map[uint32]map[uint32]*slot{}
	maxSet := int32(-1)

	var pushSize uint32
	var pushStages gpu.ShaderStageFlags

	for _, shader := range shaders {
		r := shader.Reflection
		if r.PushConstantSize > 0 {
			if pushSize != 0 && pushSize != r.PushConstantSize {
				panic(fmt.Sprintf("pipeline: push constant size mismatch between stages (%d vs %d bytes)",
					pushSize, r.PushConstantSize))
			}
			pushSize = r.PushConstantSize
			pushStages |= r.Stage
		}

		for _, binding := range r.Bindings {
			set := merged[binding.Set]
			if set == nil {
				set = map[uint32]*slot{}
				merged[binding.Set] = set
			}
			if existing, ok := set[binding.Binding]; ok {
				if existing.binding.Type != binding.Type || existing.binding.Count != binding.Count {
					return 0, fmt.Errorf("set %d binding %d declared as %s by one stage and %s by another",
						binding.Set, binding.Binding, existing.binding.Type, binding.Type)
				}
				existing.stages |= r.Stage
			} else {
				set[binding.Binding] = &slot{binding: binding, stages: r.Stage}
			}
			if int32(binding.Set) > maxSet {
				maxSet = int32(binding.Set)
			}
		}
	}

	var layoutDesc PipelineLayoutDescription
	for setIndex := uint32(0); int32(setIndex) <= maxSet; setIndex++ {
		slots := merged[setIndex]
		var bindings []gpu.BindingSlot
		var stages gpu.ShaderStageFlags
		for bindingIndex := uint32(0); bindingIndex < uint32(len(slots)); bindingIndex++ {
			s, ok := slots[bindingIndex]
			if !ok {
				return 0, fmt.Errorf("set %d has a gap at binding %d", setIndex, bindingIndex)
			}
			bindings = append(bindings, gpu.BindingSlot{
				Binding: bindingIndex,
				Type:    s.binding.Type,
				Count:   s.binding.Count,
			})
			stages |= s.stages
		}

		desc := descriptionFromReflection(bindings, stages)
		setLayout, err := b.cache.DescriptorSetLayout(desc, false)
		if err != nil {
			return 0, err
		}
		layoutDesc.AddSetLayout(setLayout)
	}

	if pushSize > 0 {
		layoutDesc.AddPushConstantRange(gpu.PushConstantRange{
			Stages: pushStages,
			Size:   pushSize,
		})
	}

	return b.cache.PipelineLayout(layoutDesc)
}
