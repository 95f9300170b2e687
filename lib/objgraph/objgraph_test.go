// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package objgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqimage/lib/chunk"
	"sqimage/lib/immediate"
)

func TestNewGraphIndexesByAddr(t *testing.T) {
	chunks := []chunk.Chunk{
		{Addr: 0x10, Format: 0, Data: []int64{}},
		{Addr: 0x20, Format: 0, Data: []int64{}},
	}
	addrs := []chunk.OOP{0x10, 0x20}
	g, err := NewGraph(chunks, addrs, false)
	require.NoError(t, err)
	assert.Len(t, g.Ordered, 2)
	assert.Same(t, g.Ordered[0], g.ByAddr[0x10])
	assert.Same(t, g.Ordered[1], g.ByAddr[0x20])
}

func TestInitWObjectResolvesExplicitClass(t *testing.T) {
	chunks := []chunk.Chunk{
		{Addr: 0x10, Format: 0, ClassOOP: 0x20, Data: []int64{}},
		{Addr: 0x20, Format: 0, Data: []int64{}},
	}
	addrs := []chunk.OOP{0x10, 0x20}
	g, err := NewGraph(chunks, addrs, false)
	require.NoError(t, err)
	require.NoError(t, g.InitWObject(nil))
	assert.Same(t, g.ByAddr[0x20], g.ByAddr[0x10].ClassG)
}

func TestInitWObjectDanglingClassOOP(t *testing.T) {
	chunks := []chunk.Chunk{
		{Addr: 0x10, Format: 0, ClassOOP: 0xDEAD, Data: []int64{}},
	}
	g, err := NewGraph(chunks, []chunk.OOP{0x10}, false)
	require.NoError(t, err)
	err = g.InitWObject(nil)
	assert.Error(t, err)
}

func TestInitWObjectUsesCompactClassCallback(t *testing.T) {
	chunks := []chunk.Chunk{
		{Addr: 0x10, Format: 0, ClassIdx: 3, Data: []int64{}},
		{Addr: 0x20, Format: 0, Data: []int64{}},
	}
	g, err := NewGraph(chunks, []chunk.OOP{0x10, 0x20}, false)
	require.NoError(t, err)
	callback := func(index int) *GenericObject {
		if index == 3 {
			return g.ByAddr[0x20]
		}
		return nil
	}
	require.NoError(t, g.InitWObject(callback))
	assert.Same(t, g.ByAddr[0x20], g.ByAddr[0x10].ClassG)
}

func TestInitWObjectRejectsSpurForwarder(t *testing.T) {
	chunks := []chunk.Chunk{
		{Addr: 0x10, Format: 7, Data: []int64{}},
	}
	g, err := NewGraph(chunks, []chunk.OOP{0x10}, true)
	require.NoError(t, err)
	err = g.InitWObject(nil)
	assert.Error(t, err)
}

func TestFillinResolvesImmediatesAndRefs(t *testing.T) {
	target := chunk.Chunk{Addr: 0x30, Format: 0, Data: []int64{}}
	owner := chunk.Chunk{
		Addr:   0x10,
		Format: 0,
		Data: []int64{
			0,                           // nil
			immediate.EncodeSmallInt(5), // SmallInteger 5
			0x30,                        // ref to target
		},
	}
	g, err := NewGraph([]chunk.Chunk{owner, target}, []chunk.OOP{0x10, 0x30}, false)
	require.NoError(t, err)
	require.NoError(t, g.InitWObject(nil))
	require.NoError(t, g.Fillin())

	obj := g.ByAddr[0x10]
	require.Len(t, obj.Slots, 3)
	assert.Equal(t, NilSlot, obj.Slots[0])
	assert.Equal(t, SlotSmallInt, obj.Slots[1].Kind)
	assert.Equal(t, int64(5), obj.Slots[1].SmallInt)
	assert.Equal(t, SlotRef, obj.Slots[2].Kind)
	assert.Same(t, g.ByAddr[0x30], obj.Slots[2].Ref)
}

func TestFillinDanglingReference(t *testing.T) {
	owner := chunk.Chunk{Addr: 0x10, Format: 0, Data: []int64{0xDEAD}}
	g, err := NewGraph([]chunk.Chunk{owner}, []chunk.OOP{0x10}, false)
	require.NoError(t, err)
	require.NoError(t, g.InitWObject(nil))
	err = g.Fillin()
	assert.Error(t, err)
}

func TestFillinDefersWeakObjectsToFillinWeak(t *testing.T) {
	weak := chunk.Chunk{Addr: 0x10, Format: 4, Data: []int64{immediate.EncodeSmallInt(1)}}
	g, err := NewGraph([]chunk.Chunk{weak}, []chunk.OOP{0x10}, false)
	require.NoError(t, err)
	require.NoError(t, g.InitWObject(nil))
	require.NoError(t, g.Fillin())
	assert.Nil(t, g.ByAddr[0x10].Slots)

	require.NoError(t, g.FillinWeak())
	require.Len(t, g.ByAddr[0x10].Slots, 1)
	assert.Equal(t, int64(1), g.ByAddr[0x10].Slots[0].SmallInt)
}

// TestFillinSkipsWordAndByteChunks verifies that word-indexable and
// byte-indexable chunks (Bitmaps, LargePositiveIntegers, Strings) are
// never run through oop/immediate resolution: their data is raw
// words/bytes, and a pixel word like 0xFFFFFFFE is even and nonzero
// (and thus, prior to this fix, looked like a dangling oop to
// resolveSlot) but must not error or be touched here — the
// ObjectFactory reads Chunk.Data directly for these formats.
func TestFillinSkipsWordAndByteChunks(t *testing.T) {
	bitmap := chunk.Chunk{Addr: 0x10, Format: 6, Data: []int64{0xFFFFFFFE}}
	str := chunk.Chunk{Addr: 0x20, Format: 8, Data: []int64{0x00000000}}
	g, err := NewGraph([]chunk.Chunk{bitmap, str}, []chunk.OOP{0x10, 0x20}, false)
	require.NoError(t, err)
	require.NoError(t, g.InitWObject(nil))
	require.NoError(t, g.Fillin())

	assert.Nil(t, g.ByAddr[0x10].Slots)
	assert.Nil(t, g.ByAddr[0x20].Slots)
}

func TestFillinSkipsSpurWordAndByteChunks(t *testing.T) {
	word32 := chunk.Chunk{Addr: 0x10, Format: 10, Data: []int64{0xFFFFFFFE}}
	byteObj := chunk.Chunk{Addr: 0x20, Format: 16, Data: []int64{0x00000000}}
	g, err := NewGraph([]chunk.Chunk{word32, byteObj}, []chunk.OOP{0x10, 0x20}, true)
	require.NoError(t, err)
	require.NoError(t, g.InitWObject(nil))
	require.NoError(t, g.Fillin())

	assert.Nil(t, g.ByAddr[0x10].Slots)
	assert.Nil(t, g.ByAddr[0x20].Slots)
}

// TestFillinSkipsCompiledMethodBytecodeTail verifies that a compiled
// method's header and literal words resolve normally, while words
// past the literal boundary (the bytecode tail) are never run through
// oop/immediate resolution — a bytecode byte is essentially never a
// valid oop, and the original implementation threw a spurious
// dangling-reference error here.
func TestFillinSkipsCompiledMethodBytecodeTail(t *testing.T) {
	// v3 header: num_literals = 1 (bits 9..16), everything else 0.
	header := int64(1) << 9
	data := []int64{
		immediate.EncodeSmallInt(header),
		immediate.EncodeSmallInt(42), // the one literal
		0xDEADBEEF,                   // bytecode tail word: not a valid oop
	}
	m := chunk.Chunk{Addr: 0x10, Format: 12, Data: data}
	g, err := NewGraph([]chunk.Chunk{m}, []chunk.OOP{0x10}, false)
	require.NoError(t, err)
	require.NoError(t, g.InitWObject(nil))
	require.NoError(t, g.Fillin())

	obj := g.ByAddr[0x10]
	require.Len(t, obj.Slots, 3)
	assert.Equal(t, SlotSmallInt, obj.Slots[1].Kind)
	assert.Equal(t, NilSlot, obj.Slots[2])
}
