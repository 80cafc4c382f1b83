package backend

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

// DescriptorSetBuilder accumulates resource bindings in shader declaration
// order and materializes them as a descriptor set. Binding N of the resulting
// set is the N-th call on the builder.
type DescriptorSetBuilder struct {
	ctx       *Context
	name      string
	generated bool
	stages    gpu.ShaderStageFlags
	bindings  []builderBinding
}

type builderBinding struct {
	kind    BindingKind
	images  []gpu.ImageBinding
	buffers []gpu.BufferBinding
}

// DescriptorSet starts a builder for a set visible to the given stages. The
// name identifies the set for reuse across frames; an empty name gets a
// generated one, making the set effectively unshared.
func (ctx *Context) DescriptorSet(name string, stages gpu.ShaderStageFlags) *DescriptorSetBuilder {
	generated := name == ""
	if generated {
		name = uuid.NewString()
	}
	return &DescriptorSetBuilder{ctx: ctx, name: name, generated: generated, stages: stages}
}

// CombinedImage binds one sampled image with its sampler.
func (b *DescriptorSetBuilder) CombinedImage(view gpu.ImageView, sampler gpu.Sampler, layout gpu.ImageLayout) *DescriptorSetBuilder {
	b.bindings = append(b.bindings, builderBinding{
		kind:   BindingImageSampler,
		images: []gpu.ImageBinding{{View: view, Sampler: sampler, Layout: layout}},
	})
	return b
}

// Image binds one sampled image without a sampler.
func (b *DescriptorSetBuilder) Image(view gpu.ImageView, layout gpu.ImageLayout) *DescriptorSetBuilder {
	b.bindings = append(b.bindings, builderBinding{
		kind:   BindingImage,
		images: []gpu.ImageBinding{{View: view, Layout: layout}},
	})
	return b
}

// Images binds a variable-length array of combined image samplers.
func (b *DescriptorSetBuilder) Images(images []gpu.ImageBinding) *DescriptorSetBuilder {
	b.bindings = append(b.bindings, builderBinding{
		kind:   BindingImageArray,
		images: append([]gpu.ImageBinding(nil), images...),
	})
	return b
}

// Sampler binds a standalone sampler.
func (b *DescriptorSetBuilder) Sampler(sampler gpu.Sampler) *DescriptorSetBuilder {
	b.bindings = append(b.bindings, builderBinding{
		kind:   BindingSampler,
		images: []gpu.ImageBinding{{Sampler: sampler}},
	})
	return b
}

// Buffer binds a uniform buffer range.
func (b *DescriptorSetBuilder) Buffer(buffer gpu.Buffer, offset, size uint64) *DescriptorSetBuilder {
	b.bindings = append(b.bindings, builderBinding{
		kind:    BindingBuffer,
		buffers: []gpu.BufferBinding{{Buffer: buffer, Offset: offset, Size: size}},
	})
	return b
}

// StorageBuffer binds a storage buffer range.
func (b *DescriptorSetBuilder) StorageBuffer(buffer gpu.Buffer, offset, size uint64) *DescriptorSetBuilder {
	b.bindings = append(b.bindings, builderBinding{
		kind:    BindingStorageBuffer,
		buffers: []gpu.BufferBinding{{Buffer: buffer, Offset: offset, Size: size}},
	})
	return b
}

func (b *DescriptorSetBuilder) description() SetDescription {
	desc := SetDescription{Stages: b.stages}
	for _, binding := range b.bindings {
		count := uint32(len(binding.images))
		if binding.kind == BindingBuffer || binding.kind == BindingStorageBuffer {
			count = uint32(len(binding.buffers))
		}
		if binding.kind == BindingImageArray {
			count = 0
		}
		desc.Add(binding.kind, count)
	}
	return desc
}

func (b *DescriptorSetBuilder) writes(set gpu.DescriptorSet) []gpu.DescriptorWrite {
	writes := make([]gpu.DescriptorWrite, 0, len(b.bindings))
	for i, binding := range b.bindings {
		kind := binding.kind
		if kind == BindingImageArray {
			kind = BindingImageSampler
		}
		writes = append(writes, gpu.DescriptorWrite{
			Set:     set,
			Binding: uint32(i),
			Type:    kind.descriptorType(),
			Images:  binding.images,
			Buffers: binding.buffers,
		})
	}
	return writes
}

func (b *DescriptorSetBuilder) variableCount() uint32 {
	if n := len(b.bindings); n > 0 && b.bindings[n-1].kind == BindingImageArray {
		return uint32(len(b.bindings[n-1].images))
	}
	return 0
}

// Build materializes the set from the long-lived allocator and caches it
// under the builder's name. Rebuilding an existing name reuses the set and
// rewrites only the bindings whose contents changed; if the layout changed,
// a fresh set is allocated instead.
func (b *DescriptorSetBuilder) Build() (gpu.DescriptorSet, error) {
	desc := b.description()
	layout, err := b.ctx.Cache.DescriptorSetLayout(desc, false)
	if err != nil {
		return 0, err
	}

	ctx := b.ctx
	ctx.namedSetsMu.Lock()
	defer ctx.namedSetsMu.Unlock()

	if cached, ok := ctx.namedSets[b.name]; ok && cached.layout == layout {
		if writes := b.diff(cached); len(writes) > 0 {
			ctx.device.UpdateDescriptorSets(writes)
			cached.bindings = b.snapshot()
		}
		return cached.set, nil
	}

	set, err := ctx.Descriptors.Allocate(layout, b.variableCount())
	if err != nil {
		return 0, fmt.Errorf("failed to build descriptor set %q: %w", b.name, err)
	}
	ctx.device.UpdateDescriptorSets(b.writes(set))
	ctx.namedSets[b.name] = &namedSet{set: set, layout: layout, bindings: b.snapshot()}
	return set, nil
}

// BuildPerFrame materializes one set per frame slot under the builder's name.
// Each slot gets its set allocated once; rebuilding on a later cycle of the
// same slot reuses it and rewrites only the bindings whose contents changed,
// which is safe because the slot's previous GPU work has already been fenced.
// An unnamed builder instead allocates a transient set from the current
// frame's allocator, valid only until that frame's pools are cleared.
func (b *DescriptorSetBuilder) BuildPerFrame() (gpu.DescriptorSet, error) {
	desc := b.description()
	layout, err := b.ctx.Cache.DescriptorSetLayout(desc, false)
	if err != nil {
		return 0, err
	}

	ctx := b.ctx
	if b.generated {
		set, err := ctx.CurrentFrame().Descriptors.Allocate(layout, b.variableCount())
		if err != nil {
			return 0, fmt.Errorf("failed to build per-frame descriptor set %q: %w", b.name, err)
		}
		ctx.device.UpdateDescriptorSets(b.writes(set))
		return set, nil
	}

	slot := ctx.frameSlot()

	ctx.namedSetsMu.Lock()
	defer ctx.namedSetsMu.Unlock()

	slots, ok := ctx.perFrameSets[b.name]
	if !ok {
		slots = make([]*namedSet, len(ctx.frames))
		ctx.perFrameSets[b.name] = slots
	}
	if cached := slots[slot]; cached != nil && cached.layout == layout {
		if writes := b.diff(cached); len(writes) > 0 {
			ctx.device.UpdateDescriptorSets(writes)
			cached.bindings = b.snapshot()
		}
		return cached.set, nil
	}

	set, err := ctx.Descriptors.Allocate(layout, b.variableCount())
	if err != nil {
		return 0, fmt.Errorf("failed to build per-frame descriptor set %q: %w", b.name, err)
	}
	ctx.device.UpdateDescriptorSets(b.writes(set))
	slots[slot] = &namedSet{set: set, layout: layout, bindings: b.snapshot()}
	return set, nil
}

type namedSet struct {
	set      gpu.DescriptorSet
	layout   gpu.DescriptorSetLayout
	bindings []builderBinding
}

func (b *DescriptorSetBuilder) snapshot() []builderBinding {
	out := make([]builderBinding, len(b.bindings))
	for i, binding := range b.bindings {
		out[i] = builderBinding{
			kind:    binding.kind,
			images:  append([]gpu.ImageBinding(nil), binding.images...),
			buffers: append([]gpu.BufferBinding(nil), binding.buffers...),
		}
	}
	return out
}

// diff returns the writes for bindings whose contents differ from the cached
// snapshot.
func (b *DescriptorSetBuilder) diff(cached *namedSet) []gpu.DescriptorWrite {
	all := b.writes(cached.set)
	writes := all[:0]
	for i, binding := range b.bindings {
		if i < len(cached.bindings) && bindingEqual(binding, cached.bindings[i]) {
			continue
		}
		writes = append(writes, all[i])
	}
	return writes
}

func bindingEqual(a, b builderBinding) bool {
	if a.kind != b.kind || len(a.images) != len(b.images) || len(a.buffers) != len(b.buffers) {
		return false
	}
	for i := range a.images {
		if a.images[i] != b.images[i] {
			return false
		}
	}
	for i := range a.buffers {
		if a.buffers[i] != b.buffers[i] {
			return false
		}
	}
	return true
}
