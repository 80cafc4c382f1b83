package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer/gpu"
	"github.com/spaghettifunk/astra/engine/renderer/spirv"
)

// Shader couples a compiled shader module with the reflection metadata
// recovered from its bytecode.
type Shader struct {
	Path       string
	Module     gpu.ShaderModule
	Reflection *spirv.Module
}

// ShaderModule loads, reflects and caches the SPIR-V binary at path. Repeated
// calls with the same path return the same shader until the entry is
// invalidated by the watcher.
func (c *Cache) ShaderModule(path string) (*Shader, error) {
	return c.shaders.getOrCreate(path,
		func() (*Shader, error) {
			code, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read shader %s: %w", path, err)
			}
			reflection, err := spirv.Reflect(code)
			if err != nil {
				return nil, fmt.Errorf("failed to reflect shader %s: %w", path, err)
			}
			module, err := c.device.CreateShaderModule(code)
			if err != nil {
				return nil, fmt.Errorf("failed to create shader module %s: %w", path, err)
			}
			core.LogDebug("loaded shader %s (%d bindings, %d push constant bytes)",
				path, len(reflection.Bindings), reflection.PushConstantSize)
			return &Shader{Path: path, Module: module, Reflection: reflection}, nil
		},
		func(surplus *Shader) {
			c.device.DestroyShaderModule(surplus.Module)
		})
}

// WatchShaders invalidates cached shaders when their files change on disk.
// The next ShaderModule call for an invalidated path reloads from disk; the
// displaced module is retired, not destroyed, because in-flight work may
// still reference it.
func (c *Cache) WatchShaders(dir string) error {
	if c.watcher != nil {
		return fmt.Errorf("shader watcher already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create shader watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch shader directory %s: %w", dir, err)
	}

	c.watcher = watcher
	c.done = make(chan struct{})

	go func() {
		for {
			select {
			case <-c.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if !strings.HasSuffix(event.Name, ".spv") {
					continue
				}
				c.invalidateShader(filepath.Clean(event.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				core.LogError("shader watcher error: %v", err)
			}
		}
	}()

	core.LogInfo("watching %s for shader changes", dir)
	return nil
}

func (c *Cache) invalidateShader(path string) {
	shader, ok := c.shaders.remove(path)
	if !ok {
		return
	}
	c.retiredMu.Lock()
	c.retired = append(c.retired, shader.Module)
	c.retiredMu.Unlock()
	core.LogInfo("shader %s changed, cache entry invalidated", path)
}
