package engine

import (
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/backend"
)

// Game is what an application implements to run on the engine. Initialize
// runs once after the renderer is up; Render runs once per frame with the
// frame's command buffer open for recording.
type Game interface {
	Initialize(r *renderer.Renderer) error
	Render(frame *backend.FrameData) error
	Shutdown() error
}
