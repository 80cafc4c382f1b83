package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/astra/engine/config"
	"github.com/spaghettifunk/astra/engine/core"
	astramath "github.com/spaghettifunk/astra/engine/math"
	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

// MaxSetsPerPool caps the geometric growth of descriptor pool capacity.
const MaxSetsPerPool = 4096

// PoolSizeRatio sizes one descriptor type proportionally to a pool's set
// capacity: a ratio of 2 with 100 sets reserves 200 descriptors of that type.
type PoolSizeRatio struct {
	Type  gpu.DescriptorType
	Ratio float32
}

// DescriptorAllocator hands out descriptor sets from a growable collection of
// pools. Pools that reject an allocation move to the full list; ClearPools
// resets everything back to ready. Safe for concurrent use.
type DescriptorAllocator struct {
	device gpu.Device

	mu          sync.Mutex
	ratios      []PoolSizeRatio
	fullPools   []gpu.DescriptorPool
	readyPools  []gpu.DescriptorPool
	setsPerPool uint32
}

// NewDescriptorAllocator creates the allocator with one initial pool sized for
// initialSets and grows from there.
func NewDescriptorAllocator(device gpu.Device, initialSets uint32, ratios []PoolSizeRatio) (*DescriptorAllocator, error) {
	a := &DescriptorAllocator{
		device: device,
		ratios: append([]PoolSizeRatio(nil), ratios...),
	}

	pool, err := a.createPool(initialSets)
	if err != nil {
		return nil, err
	}
	a.readyPools = append(a.readyPools, pool)

	a.setsPerPool = astramath.Min(uint32(float32(initialSets)*1.5), MaxSetsPerPool)
	return a, nil
}

// RatiosFromConfig translates configuration pool ratios into allocator ratios.
// Unknown descriptor type names are rejected so a typo in the configuration
// fails loudly at startup instead of starving a descriptor type at runtime.
func RatiosFromConfig(ratios []config.PoolRatio) ([]PoolSizeRatio, error) {
	names := map[string]gpu.DescriptorType{
		"sampler":                gpu.DescriptorTypeSampler,
		"combined_image_sampler": gpu.DescriptorTypeCombinedImageSampler,
		"sampled_image":          gpu.DescriptorTypeSampledImage,
		"storage_image":          gpu.DescriptorTypeStorageImage,
		"uniform_buffer":         gpu.DescriptorTypeUniformBuffer,
		"storage_buffer":         gpu.DescriptorTypeStorageBuffer,
	}
	out := make([]PoolSizeRatio, 0, len(ratios))
	for _, r := range ratios {
		t, ok := names[r.Type]
		if !ok {
			return nil, fmt.Errorf("unknown descriptor type %q in pool ratios", r.Type)
		}
		out = append(out, PoolSizeRatio{Type: t, Ratio: r.Ratio})
	}
	return out, nil
}

func (a *DescriptorAllocator) createPool(setCount uint32) (gpu.DescriptorPool, error) {
	sizes := make([]gpu.DescriptorPoolSize, 0, len(a.ratios))
	for _, r := range a.ratios {
		sizes = append(sizes, gpu.DescriptorPoolSize{
			Type:  r.Type,
			Count: uint32(r.Ratio * float32(setCount)),
		})
	}
	pool, err := a.device.CreateDescriptorPool(setCount, sizes)
	if err != nil {
		return 0, fmt.Errorf("failed to create descriptor pool for %d sets: %w", setCount, err)
	}
	return pool, nil
}

// getPool pops a ready pool or creates a new, larger one. Caller holds a.mu.
func (a *DescriptorAllocator) getPool() (gpu.DescriptorPool, error) {
	if n := len(a.readyPools); n > 0 {
		pool := a.readyPools[n-1]
		a.readyPools = a.readyPools[:n-1]
		return pool, nil
	}

	pool, err := a.createPool(a.setsPerPool)
	if err != nil {
		return 0, err
	}
	a.setsPerPool = astramath.Min(uint32(float32(a.setsPerPool)*1.5), MaxSetsPerPool)
	return pool, nil
}

// Allocate returns a descriptor set of the given layout. Pool exhaustion is
// absorbed: each exhausted pool is retired to the full list and the allocation
// retries on a fresh pool until it succeeds or fails for a reason other than
// exhaustion. variableCount is non-zero only for layouts whose last binding is
// a variable-length array.
func (a *DescriptorAllocator) Allocate(layout gpu.DescriptorSetLayout, variableCount uint32) (gpu.DescriptorSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pool, err := a.getPool()
	if err != nil {
		return 0, err
	}

	set, err := a.device.AllocateDescriptorSet(pool, layout, variableCount)
	for errors.Is(err, gpu.ErrOutOfPoolMemory) || errors.Is(err, gpu.ErrFragmentedPool) {
		a.fullPools = append(a.fullPools, pool)

		pool, err = a.getPool()
		if err != nil {
			return 0, err
		}
		set, err = a.device.AllocateDescriptorSet(pool, layout, variableCount)
	}
	if err != nil {
		a.readyPools = append(a.readyPools, pool)
		return 0, fmt.Errorf("failed to allocate descriptor set: %w", err)
	}

	a.readyPools = append(a.readyPools, pool)
	return set, nil
}

// ClearPools resets every pool and returns them all to the ready list. Every
// set previously allocated from this allocator becomes invalid.
func (a *DescriptorAllocator) ClearPools() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, pool := range a.readyPools {
		if err := a.device.ResetDescriptorPool(pool); err != nil {
			core.LogError("failed to reset descriptor pool: %v", err)
		}
	}
	for _, pool := range a.fullPools {
		if err := a.device.ResetDescriptorPool(pool); err != nil {
			core.LogError("failed to reset descriptor pool: %v", err)
		}
		a.readyPools = append(a.readyPools, pool)
	}
	a.fullPools = a.fullPools[:0]
}

// DestroyPools releases every pool. The allocator must not be used afterwards.
func (a *DescriptorAllocator) DestroyPools() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, pool := range a.readyPools {
		a.device.DestroyDescriptorPool(pool)
	}
	for _, pool := range a.fullPools {
		a.device.DestroyDescriptorPool(pool)
	}
	a.readyPools = nil
	a.fullPools = nil
}
