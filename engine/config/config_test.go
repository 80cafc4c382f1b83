package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.Renderer.MaxFramesInFlight != def.Renderer.MaxFramesInFlight {
		t.Fatalf("expected default frames in flight, got %d", cfg.Renderer.MaxFramesInFlight)
	}
	if len(cfg.Renderer.PoolRatios) != len(def.Renderer.PoolRatios) {
		t.Fatalf("expected %d default pool ratios, got %d", len(def.Renderer.PoolRatios), len(cfg.Renderer.PoolRatios))
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "astra.toml")
	data := `
app_name = "demo"
width = 1920
height = 1080

[renderer]
max_frames_in_flight = 2
fence_timeout_ms = 2500
shader_dir = "assets/shaders"
watch_shaders = true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AppName != "demo" || cfg.Width != 1920 || cfg.Height != 1080 {
		t.Fatalf("window settings not applied: %+v", cfg)
	}
	if cfg.Renderer.MaxFramesInFlight != 2 {
		t.Fatalf("frames in flight = %d, want 2", cfg.Renderer.MaxFramesInFlight)
	}
	if cfg.FenceTimeout() != 2500*time.Millisecond {
		t.Fatalf("fence timeout = %s, want 2.5s", cfg.FenceTimeout())
	}
	if !cfg.Renderer.WatchShaders || cfg.Renderer.ShaderDir != "assets/shaders" {
		t.Fatalf("shader settings not applied: %+v", cfg.Renderer)
	}
	// Unset sections keep their defaults.
	if cfg.Renderer.InitialDescriptorSets != Default().Renderer.InitialDescriptorSets {
		t.Fatalf("initial descriptor sets = %d, want default", cfg.Renderer.InitialDescriptorSets)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		toml string
	}{
		{"too many frames", "[renderer]\nmax_frames_in_flight = 5\n"},
		{"zero frames", "[renderer]\nmax_frames_in_flight = 0\n"},
		{"zero sets", "[renderer]\ninitial_descriptor_sets = 0\n"},
		{"negative ratio", "[renderer]\n[[renderer.pool_ratios]]\ntype = \"sampler\"\nratio = -1.0\n"},
		{"not toml", "max_frames_in_flight = = 2\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "astra.toml")
			if err := os.WriteFile(path, []byte(tc.toml), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}
