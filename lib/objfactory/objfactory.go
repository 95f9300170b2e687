// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package objfactory implements the ObjectFactory (§4.5): it maps
// (format, class) to a concrete in-memory object kind and
// materializes the GenericObject graph into one built from
// lib/object's concrete types.
package objfactory

import (
	"encoding/binary"

	"sqimage/lib/bitutil"
	"sqimage/lib/chunk"
	"sqimage/lib/containers"
	"sqimage/lib/object"
	"sqimage/lib/objgraph"
	"sqimage/lib/shadow"
	"sqimage/lib/sqerrors"
	"sqimage/lib/strategy"
)

// wordBufPool reuses the scratch buffer packBytes needs to
// reinterpret a data word as raw bytes, avoiding one small allocation
// per word across a large byte- or bytecode-heavy image.
var wordBufPool containers.SlicePool[byte]

// v3MethodHeaderFields and spurMethodHeaderFields lay out the bit
// fields packed into a compiled method's header word (§3 "Compiled
// method header"), low bit first, after the tag bit has already been
// stripped by immediate.DecodeSmallInt.
var v3MethodHeaderFields = []bitutil.Field{
	{Name: "primitive_lo9", Bits: 9},
	{Name: "num_literals", Bits: 8},
	{Name: "is_large", Bits: 1},
	{Name: "num_temps", Bits: 6},
	{Name: "num_args", Bits: 4},
	{Name: "is_optimized", Bits: 1},
	{Name: "is_primitive", Bits: 1},
	{Name: "primitive_ext", Bits: 30},
}

var spurMethodHeaderFields = []bitutil.Field{
	{Name: "num_literals", Bits: 15},
	{Name: "is_optimized", Bits: 1},
	{Name: "has_primitive", Bits: 1},
	{Name: "needs_large_frame", Bits: 1},
	{Name: "num_temps", Bits: 6},
	{Name: "num_args", Bits: 4},
	{Name: "access_mod", Bits: 2},
	{Name: "alt_bytecode", Bits: 1},
}

// Factory materializes an objgraph.Graph into concrete objects (§4.5).
type Factory struct {
	Strategies *strategy.Factory
	IsSpur     bool
	WordSize   int // 4 or 8, bytes per on-disk slot word
	Order      binary.ByteOrder
}

// Build runs the factory's two phases: first allocate a bare concrete
// object per GenericObject, so that forward and cyclic references
// (every object's class is itself an object, and a class's class is
// its metaclass) resolve to a real pointer; then fill in every
// object's slots and class reference.
func (f *Factory) Build(g *objgraph.Graph) (map[chunk.OOP]object.Object, error) {
	objs := make(map[chunk.OOP]object.Object, len(g.Ordered))
	for _, gobj := range g.Ordered {
		concrete, err := f.allocate(gobj)
		if err != nil {
			return nil, err
		}
		objs[gobj.Addr] = concrete
	}
	for _, gobj := range g.Ordered {
		if err := f.populate(gobj, objs); err != nil {
			return nil, err
		}
	}
	return objs, nil
}

// allocate picks the concrete variant for one GenericObject and gives
// it the right shape (size, weakness) without yet resolving any
// slot or class reference.
//
// Slot count is taken directly from the chunk's word count
// (Chunk.Size, trimmed here per format where bytes are involved)
// rather than re-derived from the class's declared instance-variable
// count: the header parser has already read the real per-object slot
// count, so the class-shape's instSize field (relevant when a live VM
// allocates a *new* instance) is not separately modeled by a read-only
// reader.
func (f *Factory) allocate(gobj *objgraph.GenericObject) (object.Object, error) {
	format := gobj.Chunk.Format
	hash := gobj.Chunk.Hash

	if f.IsSpur {
		return f.allocateSpur(gobj, format, hash)
	}
	return f.allocateV3(gobj, format, hash)
}

func (f *Factory) allocateV3(gobj *objgraph.GenericObject, format int, hash int64) (object.Object, error) {
	switch {
	case format == 5:
		return nil, &sqerrors.UnknownFormatError{Format: format}
	case format == 7 && f.WordSize != 8:
		return nil, &sqerrors.CorruptImageError{Details: "v3 format 7 (64-bit words) used in a 32-bit image"}
	case format >= 0 && format <= 4:
		weak := format == 4
		return &object.PointerObject{
			Slots:   f.emptyShadow(gobj.Chunk.Size, weak),
			Weak:    weak,
			HashVal: hash,
		}, nil
	case format == 6:
		return &object.WordObject{Words: make([]uint64, gobj.Chunk.Size), Is64: false, HashVal: hash}, nil
	case format == 7:
		return &object.WordObject{Words: make([]uint64, gobj.Chunk.Size), Is64: true, HashVal: hash}, nil
	case format >= 8 && format <= 11:
		n := byteTrimSize(f.WordSize, gobj.Chunk.Size, format&3)
		return &object.ByteObject{Bytes: make([]byte, n), HashVal: hash}, nil
	case format >= 12 && format <= 15:
		return &object.CompiledMethod{HashVal: hash}, nil
	default:
		return nil, &sqerrors.UnknownFormatError{Format: format}
	}
}

func (f *Factory) allocateSpur(gobj *objgraph.GenericObject, format int, hash int64) (object.Object, error) {
	switch {
	case format == 7:
		return nil, &sqerrors.UnexpectedForwarderError{OOP: int64(gobj.Addr)}
	case format >= 0 && format <= 3:
		return &object.PointerObject{
			Slots:   f.emptyShadow(gobj.Chunk.Size, false),
			HashVal: hash,
		}, nil
	case format == 4 || format == 5:
		return &object.PointerObject{
			Slots:   f.emptyShadow(gobj.Chunk.Size, true),
			Weak:    true,
			HashVal: hash,
		}, nil
	case format == 9:
		return &object.WordObject{Words: make([]uint64, gobj.Chunk.Size), Is64: true, HashVal: hash}, nil
	case format == 10 || format == 11:
		unitsPerWord := f.WordSize / 4
		n := gobj.Chunk.Size*unitsPerWord - (format & 1)
		return &object.WordObject{Words: make([]uint64, n), Is64: false, HashVal: hash}, nil
	case format >= 12 && format <= 15:
		unitsPerWord := f.WordSize / 2
		n := gobj.Chunk.Size*unitsPerWord - (format & 3)
		return &object.ByteObject{Bytes: make([]byte, n*2), HashVal: hash}, nil
	case format >= 16 && format <= 23:
		unitsPerWord := f.WordSize
		n := gobj.Chunk.Size*unitsPerWord - (format & 7)
		return &object.ByteObject{Bytes: make([]byte, n), HashVal: hash}, nil
	case format >= 24 && format <= 31:
		return &object.CompiledMethod{HashVal: hash}, nil
	default:
		return nil, &sqerrors.UnknownFormatError{Format: format}
	}
}

func (f *Factory) emptyShadow(size int, weak bool) shadow.Shadow {
	return shadow.NewStorageShadow(f.Strategies.EmptyStorage(size, weak))
}

// byteTrimSize computes a trimmed byte-indexable object's length. §3's
// worked example pins this at 4 bytes/slot for v3; generalized here to
// the image's actual word size so a 64-bit v3 image (not exercised by
// any end-to-end scenario) trims consistently rather than silently
// assuming 32-bit words.
func byteTrimSize(wordSize, slotCount, trim int) int {
	return wordSize*slotCount - trim
}

// populate fills in gobj's concrete counterpart's class reference and,
// for pointer/word/byte objects, its slots; for compiled methods, it
// decodes the header, splits out literals, and packs the bytecode
// tail.
func (f *Factory) populate(gobj *objgraph.GenericObject, objs map[chunk.OOP]object.Object) error {
	concrete := objs[gobj.Addr]
	classObj, err := f.resolveClass(gobj, objs)
	if err != nil {
		return err
	}

	switch o := concrete.(type) {
	case *object.PointerObject:
		o.ClassObj = classObj
		for i, slot := range gobj.Slots {
			o.Slots.Store(i, f.resolveValue(slot, objs))
		}
	case *object.WordObject:
		o.ClassObj = classObj
		for i, raw := range gobj.Chunk.Data {
			if i >= len(o.Words) {
				break
			}
			o.Words[i] = uint64(raw)
		}
	case *object.ByteObject:
		o.ClassObj = classObj
		f.packBytes(o.Bytes, gobj.Chunk.Data)
	case *object.CompiledMethod:
		o.ClassObj = classObj
		return f.populateCompiledMethod(gobj, o, objs)
	}
	return nil
}

func (f *Factory) resolveClass(gobj *objgraph.GenericObject, objs map[chunk.OOP]object.Object) (*object.PointerObject, error) {
	if gobj.ClassG == nil {
		return nil, nil
	}
	classObj, ok := objs[gobj.ClassG.Addr].(*object.PointerObject)
	if !ok {
		return nil, &sqerrors.CorruptImageError{Details: "an object's class did not materialize as a pointer-object"}
	}
	return classObj, nil
}

// resolveValue converts a resolved graph slot into the `any`
// representation the strategy engine stores: nil, an unboxed int64
// (SmallInteger), or an object.Object (everything else, including a
// freshly materialized Character — Character has no dedicated
// strategy kind, per §4.6's lattice, so it always lives in a List).
func (f *Factory) resolveValue(slot objgraph.Slot, objs map[chunk.OOP]object.Object) any {
	switch slot.Kind {
	case objgraph.SlotNil:
		return nil
	case objgraph.SlotSmallInt:
		return slot.SmallInt
	case objgraph.SlotChar:
		return &object.CharacterObject{Codepoint: slot.Char}
	case objgraph.SlotRef:
		return objs[slot.Ref.Addr]
	default:
		return nil
	}
}

// packBytes reinterprets data words (each wordSize bytes, in the
// stream's byte order) as a flat byte slice, truncated to len(dst).
func (f *Factory) packBytes(dst []byte, data []int64) {
	buf := wordBufPool.Get(f.WordSize)
	defer wordBufPool.Put(buf)
	pos := 0
	for _, word := range data {
		switch f.WordSize {
		case 4:
			f.Order.PutUint32(buf, uint32(word))
		case 8:
			f.Order.PutUint64(buf, uint64(word))
		}
		for _, b := range buf {
			if pos >= len(dst) {
				return
			}
			dst[pos] = b
			pos++
		}
	}
}

func (f *Factory) populateCompiledMethod(gobj *objgraph.GenericObject, m *object.CompiledMethod, objs map[chunk.OOP]object.Object) error {
	if len(gobj.Slots) == 0 {
		return &sqerrors.CorruptImageError{Details: "compiled method chunk has no header literal"}
	}
	headerSlot := gobj.Slots[0]
	if headerSlot.Kind != objgraph.SlotSmallInt {
		return &sqerrors.CorruptImageError{Details: "compiled method header is not a tagged small integer"}
	}
	header := uint64(headerSlot.SmallInt)

	var numLiterals, numArgs, numTemps, primitive int
	var isLarge, hasPrimitive, isOptimized bool
	var accessMod int

	if f.IsSpur {
		fields := bitutil.Split(header, spurMethodHeaderFields)
		numLiterals = int(fields["num_literals"])
		numArgs = int(fields["num_args"])
		numTemps = int(fields["num_temps"])
		isLarge = fields["needs_large_frame"] != 0
		isOptimized = fields["is_optimized"] != 0
		hasPrimitive = fields["has_primitive"] != 0
		accessMod = int(fields["access_mod"])
	} else {
		fields := bitutil.Split(header, v3MethodHeaderFields)
		numLiterals = int(fields["num_literals"])
		numArgs = int(fields["num_args"])
		numTemps = int(fields["num_temps"])
		isLarge = fields["is_large"] != 0
		isOptimized = fields["is_optimized"] != 0
		hasPrimitive = fields["is_primitive"] != 0
		primitive = int(fields["primitive_ext"]<<9 | fields["primitive_lo9"])
	}

	if 1+numLiterals > len(gobj.Slots) {
		return &sqerrors.CorruptImageError{Details: "compiled method declares more literals than data slots"}
	}
	literals := make([]object.Object, numLiterals)
	for i := 0; i < numLiterals; i++ {
		v := f.resolveValue(gobj.Slots[1+i], objs)
		literals[i] = wrapLiteral(v)
	}

	bytecode := make([]byte, 0, (len(gobj.Chunk.Data)-(1+numLiterals))*f.WordSize)
	tailWords := gobj.Chunk.Data[1+numLiterals:]
	tailBuf := make([]byte, len(tailWords)*f.WordSize)
	f.packBytes(tailBuf, tailWords)
	bytecode = append(bytecode, trimTrailing(tailBuf, gobj.Chunk.Format, f.IsSpur)...)

	if f.IsSpur && hasPrimitive {
		if len(bytecode) >= 3 {
			primitive = int(binary.LittleEndian.Uint16(bytecode[1:3]))
		}
	}

	m.NumArgs = numArgs
	m.NumTemps = numTemps
	m.NumLiterals = numLiterals
	m.IsLarge = isLarge
	m.IsOptimized = isOptimized
	m.HasPrimitive = hasPrimitive
	m.Primitive = primitive
	m.AccessModifier = accessMod
	m.LiteralsSlice = literals
	m.BytesSlice = bytecode
	return nil
}

// wrapLiteral boxes a raw SmallInteger literal value into a
// SmallIntegerObject so CompiledMethod.Literals() always yields
// object.Object, matching its declared element type; every other
// literal kind is already an object.Object or nil.
func wrapLiteral(v any) object.Object {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		return &object.SmallIntegerObject{Value: x}
	case object.Object:
		return x
	default:
		return nil
	}
}

// trimTrailing drops the format-declared trailing bytes from a
// compiled method's bytecode tail (§3: "low 2/3 bits = byte
// trimming").
func trimTrailing(buf []byte, format int, isSpur bool) []byte {
	var trim int
	if isSpur {
		trim = format & 7
	} else {
		trim = format & 3
	}
	if trim > len(buf) {
		trim = len(buf)
	}
	return buf[:len(buf)-trim]
}
