package backend

import (
	"fmt"

	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

const (
	// MaxBindings bounds the bindings of one descriptor set description.
	MaxBindings = 32

	// variableImageCount is the upper bound declared for unbounded image
	// arrays; the actual count is supplied at set allocation time.
	variableImageCount = 65535
)

// BindingKind is the coarse resource class of one layout binding. It maps to
// a descriptor type but stays independent of it so descriptions read in
// renderer terms rather than driver terms.
type BindingKind uint8

const (
	BindingNone BindingKind = iota
	BindingImageSampler
	BindingImage
	BindingSampler
	BindingBuffer
	BindingStorageBuffer
	BindingImageArray
)

func (k BindingKind) descriptorType() gpu.DescriptorType {
	switch k {
	case BindingImageSampler:
		return gpu.DescriptorTypeCombinedImageSampler
	case BindingImage:
		return gpu.DescriptorTypeSampledImage
	case BindingSampler:
		return gpu.DescriptorTypeSampler
	case BindingBuffer:
		return gpu.DescriptorTypeUniformBuffer
	case BindingStorageBuffer:
		return gpu.DescriptorTypeStorageBuffer
	}
	panic(fmt.Sprintf("layout: binding kind %d has no descriptor type", k))
}

// BindingDescription is one slot of a set description. Count is the array
// length for fixed arrays and ignored for BindingImageArray, which is always
// variable-length.
type BindingDescription struct {
	Kind  BindingKind
	Count uint32
}

// SetDescription identifies a descriptor set layout by value: two
// descriptions compare equal exactly when they produce interchangeable
// layouts, which makes the description itself the cache key.
type SetDescription struct {
	Bindings [MaxBindings]BindingDescription
	Count    uint32
	Stages   gpu.ShaderStageFlags
}

// Add appends one binding to the description.
func (d *SetDescription) Add(kind BindingKind, count uint32) *SetDescription {
	if d.Count >= MaxBindings {
		panic(fmt.Sprintf("layout: more than %d bindings in one set", MaxBindings))
	}
	d.Bindings[d.Count] = BindingDescription{Kind: kind, Count: count}
	d.Count++
	return d
}

func descriptionFromReflection(bindings []gpu.BindingSlot, stages gpu.ShaderStageFlags) SetDescription {
	desc := SetDescription{Stages: stages}
	for _, b := range bindings {
		var kind BindingKind
		switch b.Type {
		case gpu.DescriptorTypeCombinedImageSampler:
			kind = BindingImageSampler
		case gpu.DescriptorTypeSampledImage:
			kind = BindingImage
		case gpu.DescriptorTypeSampler:
			kind = BindingSampler
		case gpu.DescriptorTypeUniformBuffer:
			kind = BindingBuffer
		case gpu.DescriptorTypeStorageBuffer:
			kind = BindingStorageBuffer
		default:
			continue
		}
		// A zero count marks a runtime-sized array; only image bindings
		// become variable-length, anything else keeps its kind and gets a
		// single slot.
		if b.Count == 0 && (kind == BindingImageSampler || kind == BindingImage) {
			kind = BindingImageArray
		}
		desc.Add(kind, b.Count)
	}
	return desc
}

// bindingSlots expands the description into driver binding slots. An image
// array binding is declared partially bound with a variable count so one
// layout serves any array size up to variableImageCount.
func (d *SetDescription) bindingSlots() []gpu.BindingSlot {
	slots := make([]gpu.BindingSlot, 0, d.Count)
	for i := uint32(0); i < d.Count; i++ {
		b := d.Bindings[i]
		slot := gpu.BindingSlot{Binding: i, Count: b.Count}
		if slot.Count == 0 {
			slot.Count = 1
		}
		if b.Kind == BindingImageArray {
			slot.Type = gpu.DescriptorTypeCombinedImageSampler
			slot.Count = variableImageCount
			slot.Flags = gpu.BindingPartiallyBound | gpu.BindingVariableCount
		} else {
			slot.Type = b.Kind.descriptorType()
		}
		slots = append(slots, slot)
	}
	return slots
}

// DescriptorSetLayout returns the layout for the description, creating and
// caching it on first use. push requests a push-descriptor layout; it only
// takes effect when the description misses the cache, so a description must
// not be used both ways.
func (c *Cache) DescriptorSetLayout(desc SetDescription, push bool) (gpu.DescriptorSetLayout, error) {
	return c.layouts.getOrCreate(desc,
		func() (gpu.DescriptorSetLayout, error) {
			layout, err := c.device.CreateDescriptorSetLayout(desc.bindingSlots(), desc.Stages, push)
			if err != nil {
				return 0, fmt.Errorf("failed to create descriptor set layout: %w", err)
			}
			return layout, nil
		},
		func(surplus gpu.DescriptorSetLayout) {
			c.device.DestroyDescriptorSetLayout(surplus)
		})
}
