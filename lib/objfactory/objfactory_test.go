// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package objfactory

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqimage/lib/bitutil"
	"sqimage/lib/chunk"
	"sqimage/lib/object"
	"sqimage/lib/objgraph"
	"sqimage/lib/strategy"
)

func newFactory(isSpur bool) *Factory {
	return &Factory{
		Strategies: &strategy.Factory{},
		IsSpur:     isSpur,
		WordSize:   4,
		Order:      binary.LittleEndian,
	}
}

func TestAllocateV3PointerObjectWeakFormat(t *testing.T) {
	f := newFactory(false)
	gobj := &objgraph.GenericObject{Addr: 0x10, Chunk: chunk.Chunk{Format: 4, Size: 2}}
	obj, err := f.allocate(gobj)
	require.NoError(t, err)
	po, ok := obj.(*object.PointerObject)
	require.True(t, ok)
	assert.True(t, po.Weak)
	assert.Equal(t, 2, po.Size())
}

func TestAllocateV3ByteObjectTrimSize(t *testing.T) {
	f := newFactory(false)
	// format 8: trim = 0; 3 slots * 4 bytes/word = 12 bytes.
	gobj := &objgraph.GenericObject{Addr: 0x10, Chunk: chunk.Chunk{Format: 8, Size: 3}}
	obj, err := f.allocate(gobj)
	require.NoError(t, err)
	bo, ok := obj.(*object.ByteObject)
	require.True(t, ok)
	assert.Len(t, bo.Bytes, 12)
}

func TestAllocateUnknownFormatErrors(t *testing.T) {
	f := newFactory(false)
	gobj := &objgraph.GenericObject{Addr: 0x10, Chunk: chunk.Chunk{Format: 5, Size: 0}}
	_, err := f.allocate(gobj)
	assert.Error(t, err)
}

func TestBuildResolvesSlotsAndClass(t *testing.T) {
	f := newFactory(false)
	classGobj := &objgraph.GenericObject{Addr: 0x20, Chunk: chunk.Chunk{Format: 0, Size: 0}}
	ownerGobj := &objgraph.GenericObject{
		Addr:   0x10,
		Chunk:  chunk.Chunk{Format: 0, Size: 1, ClassOOP: 0x20},
		ClassG: classGobj,
	}
	g := &objgraph.Graph{
		IsSpur:  false,
		ByAddr:  map[chunk.OOP]*objgraph.GenericObject{0x10: ownerGobj, 0x20: classGobj},
		Ordered: []*objgraph.GenericObject{classGobj, ownerGobj},
	}
	ownerGobj.Slots = []objgraph.Slot{{Kind: objgraph.SlotSmallInt, SmallInt: 9}}
	classGobj.Slots = []objgraph.Slot{}

	objs, err := f.Build(g)
	require.NoError(t, err)
	owner := objs[0x10].(*object.PointerObject)
	assert.Same(t, objs[0x20], owner.ClassObj)
	assert.Equal(t, int64(9), owner.Fetch(0))
}

// TestPopulateCompiledMethodV3 exercises the worked example from §8's
// v3 scenario: num_args=1, num_temps=1, two literals (42, 91), and a
// 4-byte bytecode tail with no trim and no primitive.
func TestPopulateCompiledMethodV3(t *testing.T) {
	f := newFactory(false)

	header := bitutil.Join(map[string]uint64{
		"num_literals": 2,
		"num_temps":    1,
		"num_args":     1,
	}, v3MethodHeaderFields)

	// bytecode bytes [0,1,2,3] packed little-endian into one word.
	bytecodeWord := int64(0x03020100)

	gobj := &objgraph.GenericObject{
		Addr: 0x10,
		Chunk: chunk.Chunk{
			Format: 12,
			Data:   []int64{0, 0, 0, bytecodeWord},
		},
		Slots: []objgraph.Slot{
			{Kind: objgraph.SlotSmallInt, SmallInt: int64(header)},
			{Kind: objgraph.SlotSmallInt, SmallInt: 42},
			{Kind: objgraph.SlotSmallInt, SmallInt: 91},
			{}, // bytecode word, not a slot
		},
	}

	m := &object.CompiledMethod{}
	err := f.populateCompiledMethod(gobj, m, map[chunk.OOP]object.Object{})
	require.NoError(t, err)

	assert.Equal(t, 1, m.NumArgs)
	assert.Equal(t, 1, m.NumTemps)
	assert.Equal(t, 2, m.NumLiterals)
	assert.Equal(t, 0, m.Primitive)
	require.Len(t, m.LiteralsSlice, 2)
	assert.Equal(t, int64(42), m.LiteralsSlice[0].(*object.SmallIntegerObject).Value)
	assert.Equal(t, int64(91), m.LiteralsSlice[1].(*object.SmallIntegerObject).Value)
	assert.Equal(t, []byte{0, 1, 2, 3}, m.BytesSlice)
}

// TestPopulateCompiledMethodSpurPrimitiveFromBytecode exercises §8's
// Spur scenario: has_primitive set in the header, with the actual
// primitive number (1012) stored as a little-endian uint16 in
// bytecode bytes 1..3 (the Spur header itself carries only the
// has_primitive flag, not a primitive number).
func TestPopulateCompiledMethodSpurPrimitiveFromBytecode(t *testing.T) {
	f := newFactory(true)

	header := bitutil.Join(map[string]uint64{
		"num_literals":  0,
		"has_primitive": 1,
	}, spurMethodHeaderFields)

	// bytes [0x8b, 0xf4, 0x03, 0x01] packed little-endian.
	bytecodeWord := int64(0x0103f48b)

	gobj := &objgraph.GenericObject{
		Addr: 0x10,
		Chunk: chunk.Chunk{
			Format: 24,
			Data:   []int64{0, bytecodeWord},
		},
		Slots: []objgraph.Slot{
			{Kind: objgraph.SlotSmallInt, SmallInt: int64(header)},
			{},
		},
	}

	m := &object.CompiledMethod{}
	err := f.populateCompiledMethod(gobj, m, map[chunk.OOP]object.Object{})
	require.NoError(t, err)

	assert.True(t, m.HasPrimitive)
	assert.Equal(t, 1012, m.Primitive)
	assert.Equal(t, []byte{0x8b, 0xf4, 0x03, 0x01}, m.BytesSlice)
}

func TestResolveValueCharacterHasNoSpecializedStrategy(t *testing.T) {
	f := newFactory(true)
	v := f.resolveValue(objgraph.Slot{Kind: objgraph.SlotChar, Char: 'Q'}, map[chunk.OOP]object.Object{})
	co, ok := v.(*object.CharacterObject)
	require.True(t, ok)
	assert.Equal(t, uint32('Q'), co.Codepoint)
}

func TestPackBytesLittleEndianWord(t *testing.T) {
	f := newFactory(false)
	dst := make([]byte, 4)
	f.packBytes(dst, []int64{0x03020100})
	assert.Equal(t, []byte{0, 1, 2, 3}, dst)
}
