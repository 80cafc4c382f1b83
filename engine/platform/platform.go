package platform

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/astra/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window

	// Written by the framebuffer callback, read by the render loop.
	resized       atomic.Bool
	framebufferW  atomic.Uint32
	framebufferH  atomic.Uint32
}

func New() (*Platform, error) {
	return &Platform{}, nil
}

func (p *Platform) Startup(applicationName string, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %w", err)
	}
	if !glfw.VulkanSupported() {
		return fmt.Errorf("vulkan is not supported on this platform")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}
	p.Window = window
	p.framebufferW.Store(width)
	p.framebufferH.Store(height)

	p.Window.SetFramebufferSizeCallback(func(w *glfw.Window, newWidth, newHeight int) {
		p.framebufferW.Store(uint32(newWidth))
		p.framebufferH.Store(uint32(newHeight))
		p.resized.Store(true)
		core.LogDebug("framebuffer resized to %dx%d", newWidth, newHeight)
	})
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

func (p *Platform) ShouldClose() bool {
	return p.Window.ShouldClose()
}

// ConsumeResize reports whether the framebuffer changed since the last call
// and returns the current size.
func (p *Platform) ConsumeResize() (resized bool, width, height uint32) {
	return p.resized.Swap(false), p.framebufferW.Load(), p.framebufferH.Load()
}

func (p *Platform) FramebufferSize() (width, height uint32) {
	return p.framebufferW.Load(), p.framebufferH.Load()
}

// GetRequiredExtensionNames lists the instance extensions the windowing
// system needs for surface creation.
func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}
