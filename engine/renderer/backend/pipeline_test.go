package backend

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

// spv assembles a SPIR-V binary from raw instructions; opcode and operand
// values follow the SPIR-V specification.
type spv struct {
	words []uint32
}

func newSpv() *spv {
	return &spv{words: []uint32{0x07230203, 0x00010000, 0, 100, 0}}
}

func (s *spv) op(opcode uint32, operands ...uint32) *spv {
	s.words = append(s.words, uint32(len(operands)+1)<<16|opcode)
	s.words = append(s.words, operands...)
	return s
}

func (s *spv) entryPoint(model uint32) *spv {
	return s.op(15, model, 99, 0x6e69616d, 0)
}

func (s *spv) write(t *testing.T, path string) {
	t.Helper()
	out := make([]byte, len(s.words)*4)
	for i, w := range s.words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatal(err)
	}
}

// vertexSpv declares a uniform buffer at set 0 binding 0 and a 64 byte push
// constant block.
func vertexSpv(t *testing.T, path string) {
	newSpv().
		entryPoint(0).
		op(71, 3, 2).          // struct 3: Block
		op(72, 3, 0, 35, 0).   // member offset
		op(71, 5, 34, 0).      // var 5: set 0
		op(71, 5, 33, 0).      // var 5: binding 0
		op(72, 10, 0, 35, 0).  // push struct offsets
		op(72, 10, 1, 35, 16).
		op(72, 10, 2, 35, 32).
		op(72, 10, 3, 35, 48).
		op(22, 1, 32).         // float
		op(23, 2, 1, 4).       // vec4
		op(30, 3, 2).          // struct { vec4 }
		op(32, 4, 2, 3).       // ptr Uniform
		op(59, 4, 5, 2).       // variable
		op(30, 10, 2, 2, 2, 2).
		op(32, 11, 9, 10).     // ptr PushConstant
		op(59, 11, 12, 9).
		write(t, path)
}

// fragmentSpv declares the same uniform buffer, a combined image sampler at
// set 0 binding 1 and the same push constant block.
func fragmentSpv(t *testing.T, path string) {
	newSpv().
		entryPoint(4).
		op(71, 3, 2).
		op(72, 3, 0, 35, 0).
		op(71, 5, 34, 0).
		op(71, 5, 33, 0).
		op(71, 26, 34, 0). // sampler var: set 0
		op(71, 26, 33, 1). // sampler var: binding 1
		op(72, 10, 0, 35, 0).
		op(72, 10, 1, 35, 16).
		op(72, 10, 2, 35, 32).
		op(72, 10, 3, 35, 48).
		op(22, 1, 32).
		op(23, 2, 1, 4).
		op(30, 3, 2).
		op(32, 4, 2, 3).
		op(59, 4, 5, 2).
		op(25, 22, 1, 1, 0, 0, 0, 1, 0). // image
		op(27, 23, 22).                  // sampled image
		op(32, 25, 0, 23).               // ptr UniformConstant
		op(59, 25, 26, 0).
		op(30, 10, 2, 2, 2, 2).
		op(32, 11, 9, 10).
		op(59, 11, 12, 9).
		write(t, path)
}

func computeSpv(t *testing.T, path string) {
	newSpv().
		entryPoint(5).
		op(71, 4, 34, 0).
		op(71, 4, 33, 0).
		op(22, 1, 32).
		op(30, 2, 1).
		op(32, 3, 12, 2). // ptr StorageBuffer
		op(59, 3, 4, 12).
		write(t, path)
}

func testShaderDir(t *testing.T) (vertex, fragment string) {
	t.Helper()
	dir := t.TempDir()
	vertex = filepath.Join(dir, "mesh.vert.spv")
	fragment = filepath.Join(dir, "mesh.frag.spv")
	vertexSpv(t, vertex)
	fragmentSpv(t, fragment)
	return vertex, fragment
}

func TestPipelineBuildDerivesLayout(t *testing.T) {
	device := newFakeDevice()
	c := NewCache(device)
	defer c.Shutdown()

	vertex, fragment := testShaderDir(t)
	p, err := c.NewPipelineBuilder().
		Shaders(vertex, fragment).
		ColorFormats(gpu.FormatB8G8R8A8Unorm).
		Build("mesh")
	if err != nil {
		t.Fatal(err)
	}

	if p.Handle == 0 || p.Layout == 0 {
		t.Fatalf("incomplete pipeline: %+v", p)
	}
	if p.BindPoint != BindPointGraphics {
		t.Fatal("expected a graphics pipeline")
	}
	if device.shadersCreated != 2 {
		t.Fatalf("expected 2 shader modules, got %d", device.shadersCreated)
	}
	// Both stages bind through set 0, merged into one layout.
	if device.layoutsCreated != 1 {
		t.Fatalf("expected 1 descriptor set layout, got %d", device.layoutsCreated)
	}
	if device.pipelineLayoutsCreated != 1 {
		t.Fatalf("expected 1 pipeline layout, got %d", device.pipelineLayoutsCreated)
	}
}

func TestPipelineBuildCachedByName(t *testing.T) {
	device := newFakeDevice()
	c := NewCache(device)
	defer c.Shutdown()

	vertex, fragment := testShaderDir(t)
	build := func() *Pipeline {
		p, err := c.NewPipelineBuilder().
			Shaders(vertex, fragment).
			ColorFormats(gpu.FormatB8G8R8A8Unorm).
			Build("mesh")
		if err != nil {
			t.Fatal(err)
		}
		return p
	}

	first := build()
	second := build()
	if first != second {
		t.Fatal("same name must return the cached pipeline")
	}
	if device.pipelinesCreated != 1 {
		t.Fatalf("expected 1 pipeline compilation, got %d", device.pipelinesCreated)
	}
}

func TestPipelinesShareShaderCache(t *testing.T) {
	device := newFakeDevice()
	c := NewCache(device)
	defer c.Shutdown()

	vertex, fragment := testShaderDir(t)
	for _, name := range []string{"opaque", "wireframe"} {
		builder := c.NewPipelineBuilder().
			Shaders(vertex, fragment).
			ColorFormats(gpu.FormatB8G8R8A8Unorm)
		if name == "wireframe" {
			builder.PolygonMode(gpu.PolygonModeLine)
		}
		if _, err := builder.Build(name); err != nil {
			t.Fatal(err)
		}
	}

	if device.shadersCreated != 2 {
		t.Fatalf("expected shared shader modules (2 creations), got %d", device.shadersCreated)
	}
	if device.pipelinesCreated != 2 {
		t.Fatalf("expected 2 pipelines, got %d", device.pipelinesCreated)
	}
	// The shared set layout and pipeline layout are deduplicated too.
	if device.layoutsCreated != 1 || device.pipelineLayoutsCreated != 1 {
		t.Fatalf("layouts not shared: %d set layouts, %d pipeline layouts",
			device.layoutsCreated, device.pipelineLayoutsCreated)
	}
}

func TestComputePipeline(t *testing.T) {
	device := newFakeDevice()
	c := NewCache(device)
	defer c.Shutdown()

	path := filepath.Join(t.TempDir(), "cull.comp.spv")
	computeSpv(t, path)

	p, err := c.NewPipelineBuilder().Compute(path).Build("cull")
	if err != nil {
		t.Fatal(err)
	}
	if p.BindPoint != BindPointCompute {
		t.Fatal("expected a compute pipeline")
	}
}

func TestShaderModuleReloadAfterInvalidation(t *testing.T) {
	device := newFakeDevice()
	c := NewCache(device)
	defer c.Shutdown()

	vertex, _ := testShaderDir(t)

	first, err := c.ShaderModule(vertex)
	if err != nil {
		t.Fatal(err)
	}
	again, err := c.ShaderModule(vertex)
	if err != nil {
		t.Fatal(err)
	}
	if first != again {
		t.Fatal("unchanged shader must come from the cache")
	}
	if device.shadersCreated != 1 {
		t.Fatalf("expected 1 shader module, got %d", device.shadersCreated)
	}

	c.invalidateShader(vertex)

	reloaded, err := c.ShaderModule(vertex)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Module == first.Module {
		t.Fatal("invalidated shader must be reloaded into a new module")
	}
	// The displaced module is retired, not destroyed: in-flight pipelines may
	// still reference it.
	if device.destroyedShaders != 0 {
		t.Fatal("retired shader module destroyed too early")
	}

	c.retiredMu.Lock()
	retired := len(c.retired)
	c.retiredMu.Unlock()
	if retired != 1 {
		t.Fatalf("expected 1 retired module, got %d", retired)
	}
}

func TestShaderReflectionExposed(t *testing.T) {
	device := newFakeDevice()
	c := NewCache(device)
	defer c.Shutdown()

	_, fragment := testShaderDir(t)
	shader, err := c.ShaderModule(fragment)
	if err != nil {
		t.Fatal(err)
	}
	if shader.Reflection.Stage != gpu.ShaderStageFragment {
		t.Fatalf("stage = %v, want fragment", shader.Reflection.Stage)
	}
	if shader.Reflection.PushConstantSize != 64 {
		t.Fatalf("push constant size = %d, want 64", shader.Reflection.PushConstantSize)
	}
	if len(shader.Reflection.Bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %+v", shader.Reflection.Bindings)
	}
}
