package backend

import (
	"fmt"

	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

const (
	// MaxBoundSets is the number of descriptor set layouts a pipeline layout
	// can reference.
	MaxBoundSets = 8

	// MaxPushConstantRanges bounds the push constant ranges of one layout.
	MaxPushConstantRanges = 4
)

// PipelineLayoutDescription identifies a pipeline layout by value. The
// descriptor set layout handles participate in identity: two descriptions
// referencing the same cached set layouts compare equal and share one
// pipeline layout.
type PipelineLayoutDescription struct {
	SetLayouts [MaxBoundSets]gpu.DescriptorSetLayout
	SetCount   uint32

	PushRanges [MaxPushConstantRanges]gpu.PushConstantRange
	RangeCount uint32
}

// AddSetLayout appends one descriptor set layout. Order matters: set index N
// in the shader binds through slot N of the description.
func (d *PipelineLayoutDescription) AddSetLayout(layout gpu.DescriptorSetLayout) *PipelineLayoutDescription {
	if d.SetCount >= MaxBoundSets {
		panic(fmt.Sprintf("pipeline layout: more than %d descriptor set layouts", MaxBoundSets))
	}
	d.SetLayouts[d.SetCount] = layout
	d.SetCount++
	return d
}

// AddPushConstantRange appends one push constant range.
func (d *PipelineLayoutDescription) AddPushConstantRange(r gpu.PushConstantRange) *PipelineLayoutDescription {
	if d.RangeCount >= MaxPushConstantRanges {
		panic(fmt.Sprintf("pipeline layout: more than %d push constant ranges", MaxPushConstantRanges))
	}
	d.PushRanges[d.RangeCount] = r
	d.RangeCount++
	return d
}

// PipelineLayout returns the pipeline layout for the description, creating
// and caching it on first use.
func (c *Cache) PipelineLayout(desc PipelineLayoutDescription) (gpu.PipelineLayout, error) {
	return c.pipelineLayouts.getOrCreate(desc,
		func() (gpu.PipelineLayout, error) {
			layout, err := c.device.CreatePipelineLayout(
				desc.SetLayouts[:desc.SetCount],
				desc.PushRanges[:desc.RangeCount],
			)
			if err != nil {
				return 0, fmt.Errorf("failed to create pipeline layout: %w", err)
			}
			return layout, nil
		},
		func(surplus gpu.PipelineLayout) {
			c.device.DestroyPipelineLayout(surplus)
		})
}
