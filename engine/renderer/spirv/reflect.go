// Package spirv recovers descriptor bindings and push constant metadata from
// compiled SPIR-V bytecode. The renderer uses it to derive descriptor set
// layouts and pipeline layouts without hand-written declarations.
package spirv

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/spaghettifunk/astra/engine/renderer/gpu"
)

const magicNumber = 0x07230203

const (
	opEntryPoint       = 15
	opTypeInt          = 21
	opTypeFloat        = 22
	opTypeVector       = 23
	opTypeMatrix       = 24
	opTypeImage        = 25
	opTypeSampler      = 26
	opTypeSampledImage = 27
	opTypeArray        = 28
	opTypeRuntimeArray = 29
	opTypeStruct       = 30
	opTypePointer      = 32
	opConstant         = 43
	opVariable         = 59
	opDecorate         = 71
	opMemberDecorate   = 72
)

const (
	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationBinding       = 33
	decorationDescriptorSet = 34
	decorationOffset        = 35
)

const (
	storageClassUniformConstant = 0
	storageClassUniform         = 2
	storageClassPushConstant    = 9
	storageClassStorageBuffer   = 12
)

const (
	executionModelVertex    = 0
	executionModelFragment  = 4
	executionModelGLCompute = 5
)

// Binding is one shader-visible resource slot. Count is the flattened array
// length; zero means an unbounded runtime array.
type Binding struct {
	Set     uint32
	Binding uint32
	Type    gpu.DescriptorType
	Count   uint32
}

// Module is the reflection result for a single shader stage.
type Module struct {
	Stage            gpu.ShaderStageFlags
	Bindings         []Binding
	PushConstantSize uint32
}

type typeKind uint8

const (
	kindUnknown typeKind = iota
	kindScalar
	kindVector
	kindMatrix
	kindImage
	kindSampler
	kindSampledImage
	kindArray
	kindRuntimeArray
	kindStruct
	kindPointer
)

type typeInfo struct {
	kind typeKind

	width uint32 // scalar bit width
	count uint32 // vector/matrix/array element count

	element uint32   // vector/matrix/array element type id
	members []uint32 // struct member type ids

	sampled      uint32 // image: 1 = sampled, 2 = storage
	storageClass uint32 // pointer
	pointee      uint32 // pointer
}

type decorations struct {
	set        uint32
	binding    uint32
	hasSet     bool
	hasBinding bool
	block      bool
	bufferBlock bool
}

type parser struct {
	types       map[uint32]typeInfo
	constants   map[uint32]uint32
	decorations map[uint32]*decorations
	offsets     map[uint32]map[uint32]uint32 // struct id -> member index -> offset
}

// Reflect parses the SPIR-V binary and returns the module's descriptor
// bindings, push constant block size and shader stage.
func Reflect(code []byte) (*Module, error) {
	if len(code) < 20 || len(code)%4 != 0 {
		return nil, fmt.Errorf("spirv: truncated binary (%d bytes)", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != magicNumber {
		return nil, fmt.Errorf("spirv: bad magic number 0x%08x", words[0])
	}

	p := &parser{
		types:       map[uint32]typeInfo{},
		constants:   map[uint32]uint32{},
		decorations: map[uint32]*decorations{},
		offsets:     map[uint32]map[uint32]uint32{},
	}

	module := &Module{}
	type variable struct {
		id           uint32
		pointerType  uint32
		storageClass uint32
	}
	var variables []variable

	for at := 5; at < len(words); {
		word := words[at]
		opcode := word & 0xffff
		wordCount := int(word >> 16)
		if wordCount == 0 || at+wordCount > len(words) {
			return nil, fmt.Errorf("spirv: malformed instruction at word %d", at)
		}
		operands := words[at+1 : at+wordCount]

		switch opcode {
		case opEntryPoint:
			switch operands[0] {
			case executionModelVertex:
				module.Stage = gpu.ShaderStageVertex
			case executionModelFragment:
				module.Stage = gpu.ShaderStageFragment
			case executionModelGLCompute:
				module.Stage = gpu.ShaderStageCompute
			}

		case opTypeInt, opTypeFloat:
			p.types[operands[0]] = typeInfo{kind: kindScalar, width: operands[1]}
		case opTypeVector:
			p.types[operands[0]] = typeInfo{kind: kindVector, element: operands[1], count: operands[2]}
		case opTypeMatrix:
			p.types[operands[0]] = typeInfo{kind: kindMatrix, element: operands[1], count: operands[2]}
		case opTypeImage:
			p.types[operands[0]] = typeInfo{kind: kindImage, sampled: operands[6]}
		case opTypeSampler:
			p.types[operands[0]] = typeInfo{kind: kindSampler}
		case opTypeSampledImage:
			p.types[operands[0]] = typeInfo{kind: kindSampledImage, element: operands[1]}
		case opTypeArray:
			p.types[operands[0]] = typeInfo{kind: kindArray, element: operands[1], count: operands[2]}
		case opTypeRuntimeArray:
			p.types[operands[0]] = typeInfo{kind: kindRuntimeArray, element: operands[1]}
		case opTypeStruct:
			members := make([]uint32, len(operands)-1)
			copy(members, operands[1:])
			p.types[operands[0]] = typeInfo{kind: kindStruct, members: members}
		case opTypePointer:
			p.types[operands[0]] = typeInfo{kind: kindPointer, storageClass: operands[1], pointee: operands[2]}

		case opConstant:
			if len(operands) >= 3 {
				p.constants[operands[1]] = operands[2]
			}

		case opVariable:
			variables = append(variables, variable{
				id:           operands[1],
				pointerType:  operands[0],
				storageClass: operands[2],
			})

		case opDecorate:
			d := p.decoration(operands[0])
			switch operands[1] {
			case decorationDescriptorSet:
				d.set = operands[2]
				d.hasSet = true
			case decorationBinding:
				d.binding = operands[2]
				d.hasBinding = true
			case decorationBlock:
				d.block = true
			case decorationBufferBlock:
				d.bufferBlock = true
			}

		case opMemberDecorate:
			if operands[2] == decorationOffset {
				m := p.offsets[operands[0]]
				if m == nil {
					m = map[uint32]uint32{}
					p.offsets[operands[0]] = m
				}
				m[operands[1]] = operands[3]
			}
		}

		at += wordCount
	}

	for _, v := range variables {
		ptr, ok := p.types[v.pointerType]
		if !ok || ptr.kind != kindPointer {
			continue
		}

		if v.storageClass == storageClassPushConstant {
			size := p.sizeOf(ptr.pointee)
			if size > module.PushConstantSize {
				module.PushConstantSize = size
			}
			continue
		}

		switch v.storageClass {
		case storageClassUniformConstant, storageClassUniform, storageClassStorageBuffer:
		default:
			continue
		}

		d := p.decorations[v.id]
		if d == nil || !d.hasBinding {
			continue
		}

		descriptorType, count, ok := p.resolveResource(ptr.pointee, v.storageClass)
		if !ok {
			continue
		}
		module.Bindings = append(module.Bindings, Binding{
			Set:     d.set,
			Binding: d.binding,
			Type:    descriptorType,
			Count:   count,
		})
	}

	sort.Slice(module.Bindings, func(i, j int) bool {
		if module.Bindings[i].Set != module.Bindings[j].Set {
			return module.Bindings[i].Set < module.Bindings[j].Set
		}
		return module.Bindings[i].Binding < module.Bindings[j].Binding
	})

	return module, nil
}

func (p *parser) decoration(id uint32) *decorations {
	d := p.decorations[id]
	if d == nil {
		d = &decorations{}
		p.decorations[id] = d
	}
	return d
}

// resolveResource maps a variable's pointee type onto a descriptor type,
// flattening array wrappers into the binding count. A runtime array of
// images becomes an unbounded binding (count zero).
func (p *parser) resolveResource(typeID, storageClass uint32) (gpu.DescriptorType, uint32, bool) {
	count := uint32(1)
	for {
		t, ok := p.types[typeID]
		if !ok {
			return 0, 0, false
		}

		switch t.kind {
		case kindArray:
			count *= p.constants[t.count]
			typeID = t.element
			continue
		case kindRuntimeArray:
			// An unbounded image array; buffers never wrap their block in a
			// runtime array at the variable level.
			if inner, ok := p.types[t.element]; ok && (inner.kind == kindImage || inner.kind == kindSampledImage) {
				typeID = t.element
				count = 0
				continue
			}
			return 0, 0, false

		case kindSampledImage:
			return gpu.DescriptorTypeCombinedImageSampler, count, true
		case kindImage:
			if t.sampled == 2 {
				return gpu.DescriptorTypeStorageImage, count, true
			}
			return gpu.DescriptorTypeSampledImage, count, true
		case kindSampler:
			return gpu.DescriptorTypeSampler, count, true

		case kindStruct:
			d := p.decorations[typeID]
			if storageClass == storageClassStorageBuffer || (d != nil && d.bufferBlock) {
				return gpu.DescriptorTypeStorageBuffer, count, true
			}
			return gpu.DescriptorTypeUniformBuffer, count, true

		default:
			return 0, 0, false
		}
	}
}

// sizeOf computes the std430/std140-agnostic byte size of a type: for structs
// it is the highest member offset plus that member's size, which matches what
// the driver expects for a push constant range.
func (p *parser) sizeOf(typeID uint32) uint32 {
	t, ok := p.types[typeID]
	if !ok {
		return 0
	}
	switch t.kind {
	case kindScalar:
		return t.width / 8
	case kindVector, kindMatrix:
		return t.count * p.sizeOf(t.element)
	case kindArray:
		return p.constants[t.count] * p.sizeOf(t.element)
	case kindStruct:
		var size uint32
		offsets := p.offsets[typeID]
		for i, member := range t.members {
			end := offsets[uint32(i)] + p.sizeOf(member)
			if end > size {
				size = end
			}
		}
		return size
	}
	return 0
}
