package backend

import (
	"sync"
	"testing"

	"github.com/spaghettifunk/astra/engine/config"
	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

var testRatios = []PoolSizeRatio{
	{Type: gpu.DescriptorTypeUniformBuffer, Ratio: 2},
	{Type: gpu.DescriptorTypeCombinedImageSampler, Ratio: 4},
}

func TestAllocatorGrowsOnExhaustion(t *testing.T) {
	device := newFakeDevice()
	a, err := NewDescriptorAllocator(device, 4, testRatios)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		if _, err := a.Allocate(1, 0); err != nil {
			t.Fatalf("allocation %d failed: %v", i, err)
		}
	}
	if device.poolsCreated != 1 {
		t.Fatalf("expected 1 pool after filling the first, got %d", device.poolsCreated)
	}

	// The fifth allocation exhausts the initial pool; the retry must land on
	// a fresh, larger pool without surfacing an error.
	if _, err := a.Allocate(1, 0); err != nil {
		t.Fatalf("allocation after exhaustion failed: %v", err)
	}
	if device.poolsCreated != 2 {
		t.Fatalf("expected a second pool, got %d", device.poolsCreated)
	}
	if len(a.fullPools) != 1 {
		t.Fatalf("expected 1 full pool, got %d", len(a.fullPools))
	}
	if got := a.setsPerPool; got != 9 {
		t.Fatalf("expected next pool size 9 (6 * 1.5), got %d", got)
	}
}

func TestAllocatorAbsorbsRepeatedExhaustion(t *testing.T) {
	device := newFakeDevice()
	a, err := NewDescriptorAllocator(device, 4, testRatios)
	if err != nil {
		t.Fatal(err)
	}

	// Two consecutive pools reject the allocation, as a variable-count
	// request larger than a fresh pool's ratio capacity would. The allocator
	// keeps retiring pools and retrying; exhaustion never reaches the caller.
	device.failAllocations = 2
	if _, err := a.Allocate(1, 0); err != nil {
		t.Fatalf("pool exhaustion leaked to the caller: %v", err)
	}
	if len(a.fullPools) != 2 {
		t.Fatalf("expected 2 retired pools, got %d", len(a.fullPools))
	}
	if device.poolsCreated != 3 {
		t.Fatalf("expected 3 pools created, got %d", device.poolsCreated)
	}
}

func TestAllocatorGrowthCapped(t *testing.T) {
	device := newFakeDevice()
	a, err := NewDescriptorAllocator(device, 4000, testRatios)
	if err != nil {
		t.Fatal(err)
	}
	if a.setsPerPool != MaxSetsPerPool {
		t.Fatalf("expected growth capped at %d, got %d", MaxSetsPerPool, a.setsPerPool)
	}

	a.mu.Lock()
	a.readyPools = nil
	a.mu.Unlock()
	if _, err := a.Allocate(1, 0); err != nil {
		t.Fatal(err)
	}
	if a.setsPerPool != MaxSetsPerPool {
		t.Fatalf("pool size grew past the cap: %d", a.setsPerPool)
	}
}

func TestAllocatorClearPools(t *testing.T) {
	device := newFakeDevice()
	a, err := NewDescriptorAllocator(device, 2, testRatios)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if _, err := a.Allocate(1, 0); err != nil {
			t.Fatal(err)
		}
	}
	created := device.poolsCreated
	if len(a.fullPools) == 0 {
		t.Fatal("expected at least one full pool before clearing")
	}

	a.ClearPools()
	if len(a.fullPools) != 0 {
		t.Fatalf("full pools not recycled: %d remain", len(a.fullPools))
	}

	// Cleared pools are reused; allocating again must not create new ones.
	if _, err := a.Allocate(1, 0); err != nil {
		t.Fatal(err)
	}
	if device.poolsCreated != created {
		t.Fatalf("expected no new pools after clear, got %d new", device.poolsCreated-created)
	}
}

func TestAllocatorDestroyPools(t *testing.T) {
	device := newFakeDevice()
	a, err := NewDescriptorAllocator(device, 2, testRatios)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := a.Allocate(1, 0); err != nil {
			t.Fatal(err)
		}
	}

	a.DestroyPools()
	if device.destroyedPools != device.poolsCreated {
		t.Fatalf("created %d pools but destroyed %d", device.poolsCreated, device.destroyedPools)
	}
}

func TestAllocatorConcurrentAllocate(t *testing.T) {
	device := newFakeDevice()
	a, err := NewDescriptorAllocator(device, 8, testRatios)
	if err != nil {
		t.Fatal(err)
	}

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	seen := make([]map[gpu.DescriptorSet]bool, workers)
	for w := 0; w < workers; w++ {
		seen[w] = map[gpu.DescriptorSet]bool{}
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				set, err := a.Allocate(1, 0)
				if err != nil {
					t.Errorf("worker %d: %v", w, err)
					return
				}
				seen[w][set] = true
			}
		}(w)
	}
	wg.Wait()

	all := map[gpu.DescriptorSet]bool{}
	for _, m := range seen {
		for set := range m {
			if all[set] {
				t.Fatalf("descriptor set %d handed out twice", set)
			}
			all[set] = true
		}
	}
	if len(all) != workers*perWorker {
		t.Fatalf("expected %d distinct sets, got %d", workers*perWorker, len(all))
	}
}

func TestRatiosFromConfig(t *testing.T) {
	ratios, err := RatiosFromConfig(config.Default().Renderer.PoolRatios)
	if err != nil {
		t.Fatal(err)
	}
	if len(ratios) != 6 {
		t.Fatalf("expected 6 ratios, got %d", len(ratios))
	}

	if _, err := RatiosFromConfig([]config.PoolRatio{{Type: "bogus_type", Ratio: 1}}); err == nil {
		t.Fatal("expected an error for an unknown descriptor type name")
	}
}
