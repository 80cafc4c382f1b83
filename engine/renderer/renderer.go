// Package renderer ties the platform window, the Vulkan driver and the
// command submission core together behind one small front end.
package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/astra/engine/config"
	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/platform"
	"github.com/spaghettifunk/astra/engine/renderer/backend"
	"github.com/spaghettifunk/astra/engine/renderer/gpu"
	"github.com/spaghettifunk/astra/engine/renderer/vulkan"
)

type Renderer struct {
	platform *platform.Platform
	driver   *vulkan.Driver

	// Context exposes queues, caches, descriptor allocation and the frame
	// pacer to the application.
	Context *backend.Context
}

func New(p *platform.Platform, cfg *config.Config, debug bool) (*Renderer, error) {
	driver, err := vulkan.New(p, cfg.AppName, cfg.Width, cfg.Height, debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize the vulkan driver: %w", err)
	}

	ctx, err := backend.New(driver, cfg)
	if err != nil {
		driver.Shutdown()
		return nil, err
	}

	return &Renderer{platform: p, driver: driver, Context: ctx}, nil
}

// SwapchainFormat reports the color format for pipelines that render to the
// window.
func (r *Renderer) SwapchainFormat() gpu.Format {
	return r.driver.SwapchainFormat()
}

// DrawFrame runs one acquire/record/submit/present cycle. record receives the
// frame whose command buffer is open for recording. A resized or out-of-date
// swapchain is rebuilt here and the frame is skipped without error.
func (r *Renderer) DrawFrame(record func(frame *backend.FrameData) error) error {
	if resized, width, height := r.platform.ConsumeResize(); resized {
		if width == 0 || height == 0 {
			// Minimized; nothing to draw until the window comes back.
			return nil
		}
		if err := r.driver.RecreateSwapchain(width, height); err != nil {
			return err
		}
		if err := r.Context.RefreshSwapchain(); err != nil {
			return err
		}
	}

	err := r.Context.StartFrame()
	if errors.Is(err, core.ErrSwapchainBooting) {
		core.LogDebug("swapchain booting on acquire, skipping frame")
		return nil
	}
	if err != nil {
		return err
	}

	if err := record(r.Context.CurrentFrame()); err != nil {
		return err
	}

	err = r.Context.EndFrame()
	if errors.Is(err, core.ErrSwapchainBooting) {
		core.LogDebug("swapchain booting on present, skipping frame")
		width, height := r.platform.FramebufferSize()
		if err := r.driver.RecreateSwapchain(width, height); err != nil {
			return err
		}
		return r.Context.RefreshSwapchain()
	}
	return err
}

func (r *Renderer) Shutdown() {
	r.Context.Shutdown()
	r.driver.Shutdown()
}
