package spirv

import (
	"encoding/binary"
	"testing"

	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

// asm builds a minimal SPIR-V binary instruction by instruction.
type asm struct {
	words []uint32
}

func newAsm() *asm {
	// Header: magic, version 1.0, generator, id bound, schema.
	return &asm{words: []uint32{magicNumber, 0x00010000, 0, 100, 0}}
}

func (a *asm) op(opcode uint32, operands ...uint32) *asm {
	a.words = append(a.words, uint32(len(operands)+1)<<16|opcode)
	a.words = append(a.words, operands...)
	return a
}

func (a *asm) entryPoint(model uint32) *asm {
	// "main" plus the terminating NUL is two literal words.
	return a.op(opEntryPoint, model, 99, 0x6e69616d, 0)
}

func (a *asm) bytes() []byte {
	out := make([]byte, len(a.words)*4)
	for i, w := range a.words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func TestReflectUniformBufferAndPushConstant(t *testing.T) {
	b := newAsm().
		entryPoint(executionModelVertex).
		op(opDecorate, 3, decorationBlock).
		op(opMemberDecorate, 3, 0, decorationOffset, 0).
		op(opDecorate, 5, decorationDescriptorSet, 0).
		op(opDecorate, 5, decorationBinding, 0).
		op(opMemberDecorate, 10, 0, decorationOffset, 0).
		op(opMemberDecorate, 10, 1, decorationOffset, 16).
		op(opMemberDecorate, 10, 2, decorationOffset, 32).
		op(opMemberDecorate, 10, 3, decorationOffset, 48).
		op(opTypeFloat, 1, 32).
		op(opTypeVector, 2, 1, 4).
		op(opTypeStruct, 3, 2).
		op(opTypePointer, 4, storageClassUniform, 3).
		op(opVariable, 4, 5, storageClassUniform).
		op(opTypeStruct, 10, 2, 2, 2, 2).
		op(opTypePointer, 11, storageClassPushConstant, 10).
		op(opVariable, 11, 12, storageClassPushConstant).
		bytes()

	m, err := Reflect(b)
	if err != nil {
		t.Fatal(err)
	}
	if m.Stage != gpu.ShaderStageVertex {
		t.Fatalf("stage = %v, want vertex", m.Stage)
	}
	if m.PushConstantSize != 64 {
		t.Fatalf("push constant size = %d, want 64", m.PushConstantSize)
	}
	if len(m.Bindings) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(m.Bindings))
	}
	got := m.Bindings[0]
	if got.Set != 0 || got.Binding != 0 || got.Type != gpu.DescriptorTypeUniformBuffer || got.Count != 1 {
		t.Fatalf("unexpected binding %+v", got)
	}
}

func TestReflectFragmentResources(t *testing.T) {
	b := newAsm().
		entryPoint(executionModelFragment).
		op(opDecorate, 40, decorationBufferBlock).
		op(opMemberDecorate, 40, 0, decorationOffset, 0).
		op(opDecorate, 26, decorationDescriptorSet, 0).
		op(opDecorate, 26, decorationBinding, 1).
		op(opDecorate, 42, decorationDescriptorSet, 0).
		op(opDecorate, 42, decorationBinding, 0).
		op(opDecorate, 52, decorationDescriptorSet, 1).
		op(opDecorate, 52, decorationBinding, 0).
		op(opTypeFloat, 1, 32).
		op(opTypeInt, 20, 32, 0).
		op(opConstant, 20, 21, 4).
		// An array of 4 combined image samplers at set 0 binding 1.
		op(opTypeImage, 22, 1, 1, 0, 0, 0, 1, 0).
		op(opTypeSampledImage, 23, 22).
		op(opTypeArray, 24, 23, 21).
		op(opTypePointer, 25, storageClassUniformConstant, 24).
		op(opVariable, 25, 26, storageClassUniformConstant).
		// A storage buffer at set 0 binding 0.
		op(opTypeStruct, 40, 1).
		op(opTypePointer, 41, storageClassUniform, 40).
		op(opVariable, 41, 42, storageClassUniform).
		// A storage image at set 1 binding 0.
		op(opTypeImage, 50, 1, 1, 0, 0, 0, 2, 0).
		op(opTypePointer, 51, storageClassUniformConstant, 50).
		op(opVariable, 51, 52, storageClassUniformConstant).
		bytes()

	m, err := Reflect(b)
	if err != nil {
		t.Fatal(err)
	}
	if m.Stage != gpu.ShaderStageFragment {
		t.Fatalf("stage = %v, want fragment", m.Stage)
	}
	if len(m.Bindings) != 3 {
		t.Fatalf("expected 3 bindings, got %d: %+v", len(m.Bindings), m.Bindings)
	}

	// Sorted by (set, binding) regardless of declaration order.
	want := []Binding{
		{Set: 0, Binding: 0, Type: gpu.DescriptorTypeStorageBuffer, Count: 1},
		{Set: 0, Binding: 1, Type: gpu.DescriptorTypeCombinedImageSampler, Count: 4},
		{Set: 1, Binding: 0, Type: gpu.DescriptorTypeStorageImage, Count: 1},
	}
	for i, w := range want {
		if m.Bindings[i] != w {
			t.Fatalf("binding %d = %+v, want %+v", i, m.Bindings[i], w)
		}
	}
}

func TestReflectRuntimeArrayIsUnbounded(t *testing.T) {
	b := newAsm().
		entryPoint(executionModelFragment).
		op(opDecorate, 6, decorationDescriptorSet, 2).
		op(opDecorate, 6, decorationBinding, 0).
		op(opTypeFloat, 1, 32).
		op(opTypeImage, 2, 1, 1, 0, 0, 0, 1, 0).
		op(opTypeSampledImage, 3, 2).
		op(opTypeRuntimeArray, 4, 3).
		op(opTypePointer, 5, storageClassUniformConstant, 4).
		op(opVariable, 5, 6, storageClassUniformConstant).
		bytes()

	m, err := Reflect(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Bindings) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(m.Bindings))
	}
	got := m.Bindings[0]
	if got.Count != 0 {
		t.Fatalf("runtime array count = %d, want 0 (unbounded)", got.Count)
	}
	if got.Type != gpu.DescriptorTypeCombinedImageSampler {
		t.Fatalf("runtime array type = %v, want combined image sampler", got.Type)
	}
}

func TestReflectComputeStorageBufferClass(t *testing.T) {
	b := newAsm().
		entryPoint(executionModelGLCompute).
		op(opDecorate, 4, decorationDescriptorSet, 0).
		op(opDecorate, 4, decorationBinding, 3).
		op(opTypeFloat, 1, 32).
		op(opTypeStruct, 2, 1).
		op(opTypePointer, 3, storageClassStorageBuffer, 2).
		op(opVariable, 3, 4, storageClassStorageBuffer).
		bytes()

	m, err := Reflect(b)
	if err != nil {
		t.Fatal(err)
	}
	if m.Stage != gpu.ShaderStageCompute {
		t.Fatalf("stage = %v, want compute", m.Stage)
	}
	if len(m.Bindings) != 1 || m.Bindings[0].Type != gpu.DescriptorTypeStorageBuffer {
		t.Fatalf("unexpected bindings %+v", m.Bindings)
	}
}

func TestReflectRejectsGarbage(t *testing.T) {
	if _, err := Reflect([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a truncated binary")
	}

	bad := newAsm().bytes()
	binary.LittleEndian.PutUint32(bad, 0xdeadbeef)
	if _, err := Reflect(bad); err == nil {
		t.Fatal("expected an error for a bad magic number")
	}

	// An instruction whose word count runs past the end of the binary.
	malformed := newAsm().bytes()
	malformed = append(malformed, 0xff, 0xff, 0x00, 0x00)
	if _, err := Reflect(malformed); err == nil {
		t.Fatal("expected an error for a malformed instruction")
	}
}

func TestReflectIgnoresUndecorated(t *testing.T) {
	// A variable with no binding decoration (for example a stage input) must
	// not surface as a descriptor binding.
	b := newAsm().
		entryPoint(executionModelVertex).
		op(opTypeFloat, 1, 32).
		op(opTypeStruct, 2, 1).
		op(opTypePointer, 3, storageClassUniform, 2).
		op(opVariable, 3, 4, storageClassUniform).
		bytes()

	m, err := Reflect(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Bindings) != 0 {
		t.Fatalf("expected no bindings, got %+v", m.Bindings)
	}
}
