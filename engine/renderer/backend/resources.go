package backend

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

// Cache deduplicates every shareable GPU object: descriptor set layouts,
// pipeline layouts, shader modules and pipelines. Identical descriptions
// yield identical handles for the lifetime of the cache, so callers compare
// and rebind by handle equality alone.
type Cache struct {
	device gpu.Device

	layouts         *cache[SetDescription, gpu.DescriptorSetLayout]
	pipelineLayouts *cache[PipelineLayoutDescription, gpu.PipelineLayout]
	shaders         *cache[string, *Shader]
	pipelines       *cache[string, *Pipeline]

	watcher *fsnotify.Watcher
	done    chan struct{}

	// Shader modules displaced by hot reload. They may still be referenced by
	// in-flight pipelines, so they are destroyed at shutdown rather than at
	// invalidation time.
	retiredMu sync.Mutex
	retired   []gpu.ShaderModule
}

// NewCache creates an empty cache backed by device.
func NewCache(device gpu.Device) *Cache {
	return &Cache{
		device:          device,
		layouts:         newCache[SetDescription, gpu.DescriptorSetLayout](),
		pipelineLayouts: newCache[PipelineLayoutDescription, gpu.PipelineLayout](),
		shaders:         newCache[string, *Shader](),
		pipelines:       newCache[string, *Pipeline](),
	}
}

// Shutdown destroys every cached object. The device must be idle.
func (c *Cache) Shutdown() {
	if c.watcher != nil {
		close(c.done)
		if err := c.watcher.Close(); err != nil {
			core.LogError("failed to close shader watcher: %v", err)
		}
		c.watcher = nil
	}

	for _, p := range c.pipelines.drain() {
		c.device.DestroyPipeline(p.Handle)
	}
	for _, s := range c.shaders.drain() {
		c.device.DestroyShaderModule(s.Module)
	}

	c.retiredMu.Lock()
	for _, m := range c.retired {
		c.device.DestroyShaderModule(m)
	}
	c.retired = nil
	c.retiredMu.Unlock()

	for _, l := range c.pipelineLayouts.drain() {
		c.device.DestroyPipelineLayout(l)
	}
	for _, l := range c.layouts.drain() {
		c.device.DestroyDescriptorSetLayout(l)
	}
}
