package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/astra/engine/core"
)

// PoolRatio sizes one descriptor type inside a descriptor pool relative to
// the pool's set capacity.
type PoolRatio struct {
	Type  string  `toml:"type"`
	Ratio float32 `toml:"ratio"`
}

type RendererConfig struct {
	MaxFramesInFlight     uint32      `toml:"max_frames_in_flight"`
	FenceTimeoutMs        uint32      `toml:"fence_timeout_ms"`
	InitialDescriptorSets uint32      `toml:"initial_descriptor_sets"`
	PoolRatios            []PoolRatio `toml:"pool_ratios"`
	ShaderDir             string      `toml:"shader_dir"`
	WatchShaders          bool        `toml:"watch_shaders"`
}

type Config struct {
	AppName  string         `toml:"app_name"`
	Width    uint32         `toml:"width"`
	Height   uint32         `toml:"height"`
	Renderer RendererConfig `toml:"renderer"`
}

func Default() *Config {
	return &Config{
		AppName: "Astra Application",
		Width:   1280,
		Height:  720,
		Renderer: RendererConfig{
			MaxFramesInFlight:     3,
			FenceTimeoutMs:        1000,
			InitialDescriptorSets: 500,
			PoolRatios: []PoolRatio{
				{Type: "storage_buffer", Ratio: 30},
				{Type: "storage_image", Ratio: 30},
				{Type: "uniform_buffer", Ratio: 30},
				{Type: "combined_image_sampler", Ratio: 40},
				{Type: "sampler", Ratio: 100},
				{Type: "sampled_image", Ratio: 100},
			},
			ShaderDir:    "shaders",
			WatchShaders: false,
		},
	}
}

// Load reads a TOML configuration file. A missing file is not an error: the
// defaults are returned so an application can run without any configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			core.LogDebug("no configuration file at %s, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Renderer.MaxFramesInFlight < 1 || c.Renderer.MaxFramesInFlight > 3 {
		return fmt.Errorf("max_frames_in_flight must be between 1 and 3, got %d", c.Renderer.MaxFramesInFlight)
	}
	if c.Renderer.InitialDescriptorSets == 0 {
		return fmt.Errorf("initial_descriptor_sets must be > 0")
	}
	if len(c.Renderer.PoolRatios) == 0 {
		return fmt.Errorf("at least one descriptor pool ratio is required")
	}
	for _, r := range c.Renderer.PoolRatios {
		if r.Ratio <= 0 {
			return fmt.Errorf("pool ratio for %q must be > 0, got %f", r.Type, r.Ratio)
		}
	}
	return nil
}

func (c *Config) FenceTimeout() time.Duration {
	return time.Duration(c.Renderer.FenceTimeoutMs) * time.Millisecond
}
