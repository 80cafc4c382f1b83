package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/astra/engine/config"
	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/platform"
	"github.com/spaghettifunk/astra/engine/renderer"
)

type Engine struct {
	game     Game
	cfg      *config.Config
	platform *platform.Platform
	renderer *renderer.Renderer

	running atomic.Bool
}

func New(game Game) (*Engine, error) {
	cfg, err := config.Load("astra.toml")
	if err != nil {
		return nil, err
	}
	p, err := platform.New()
	if err != nil {
		return nil, err
	}
	return &Engine{game: game, cfg: cfg, platform: p}, nil
}

func (e *Engine) Initialize() error {
	if err := e.platform.Startup(e.cfg.AppName, e.cfg.Width, e.cfg.Height); err != nil {
		return fmt.Errorf("platform startup failed: %w", err)
	}

	r, err := renderer.New(e.platform, e.cfg, true)
	if err != nil {
		return err
	}
	e.renderer = r

	if err := e.game.Initialize(e.renderer); err != nil {
		return fmt.Errorf("game initialization failed: %w", err)
	}

	e.running.Store(true)
	return nil
}

// Run drives the main loop until the window closes or Shutdown is called.
func (e *Engine) Run() error {
	core.LogInfo("%s running", e.cfg.AppName)

	var clock core.Clock
	var stats core.FrameStats
	clock.Start()
	lastReport := clock.Elapsed()

	for e.running.Load() && !e.platform.ShouldClose() {
		e.platform.PumpMessages()

		if err := e.renderer.DrawFrame(e.game.Render); err != nil {
			return fmt.Errorf("frame failed: %w", err)
		}

		stats.Record(clock.Tick())
		if elapsed := clock.Elapsed(); elapsed-lastReport >= 5*time.Second {
			core.LogDebug("frame avg %.2fms (%.0f fps)",
				float64(stats.Average().Microseconds())/1000.0, stats.FPS())
			lastReport = elapsed
		}
	}
	return e.shutdown()
}

// Shutdown asks the main loop to exit; safe to call from any goroutine.
func (e *Engine) Shutdown() error {
	e.running.Store(false)
	return nil
}

func (e *Engine) shutdown() error {
	if err := e.game.Shutdown(); err != nil {
		core.LogError("game shutdown: %v", err)
	}
	if e.renderer != nil {
		e.renderer.Shutdown()
	}
	return e.platform.Shutdown()
}
