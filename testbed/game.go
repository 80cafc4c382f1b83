// Package testbed is a small application exercising the renderer: it builds
// a pipeline from SPIR-V on disk and soaks the frame pacing loop.
package testbed

import (
	"path/filepath"

	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/backend"
	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

type TestGame struct {
	renderer *renderer.Renderer
	pipeline *backend.Pipeline
}

func NewTestGame() *TestGame {
	return &TestGame{}
}

func (g *TestGame) Initialize(r *renderer.Renderer) error {
	g.renderer = r

	shaderDir := "shaders"
	pipeline, err := r.Context.Cache.NewPipelineBuilder().
		Shaders(
			filepath.Join(shaderDir, "triangle.vert.spv"),
			filepath.Join(shaderDir, "triangle.frag.spv"),
		).
		CullMode(gpu.CullModeBack, gpu.FrontFaceCounterClockwise).
		ColorFormats(r.SwapchainFormat()).
		Build("triangle")
	if err != nil {
		// The testbed still runs as a pacing smoke test without shaders.
		core.LogWarn("triangle pipeline unavailable: %v", err)
		return nil
	}
	g.pipeline = pipeline
	return nil
}

func (g *TestGame) Render(frame *backend.FrameData) error {
	// Nothing to record yet; the frame pacer still acquires, submits and
	// presents, which is what the testbed exists to soak.
	return nil
}

func (g *TestGame) Shutdown() error {
	return nil
}
