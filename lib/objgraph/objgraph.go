// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package objgraph implements the GenericObject lazy graph node
// (§4.4): it carries a Chunk and resolves slot references to concrete
// in-memory objects across the reader's staged passes (init,
// init_w_object, fillin, fillin_weak).
package objgraph

import (
	"sqimage/lib/chunk"
	"sqimage/lib/immediate"
	"sqimage/lib/sqerrors"
)

// SlotKind classifies a resolved slot value.
type SlotKind int

const (
	SlotNil SlotKind = iota
	SlotSmallInt
	SlotChar
	SlotRef
)

// Slot is a fully resolved object-graph slot: either an immediate
// value or a reference to another GenericObject.
type Slot struct {
	Kind     SlotKind
	SmallInt int64
	Char     uint32
	Ref      *GenericObject
}

var NilSlot = Slot{Kind: SlotNil}

// GenericObject is the reader's lazy graph node. It is reader scratch
// (§3 Lifecycle): created from a Chunk, bound into the graph by addr,
// and may be dropped once the ObjectFactory has consumed it.
type GenericObject struct {
	Addr   chunk.OOP
	Chunk  chunk.Chunk
	IsSpur bool

	// Set by init_w_object.
	ClassG *GenericObject

	// Set by fillin / fillin_weak.
	Slots    []Slot
	filledIn bool
}

// Graph is the set of GenericObjects produced by one read pass,
// indexed by image address for reference resolution.
type Graph struct {
	IsSpur  bool
	ByAddr  map[chunk.OOP]*GenericObject
	Ordered []*GenericObject
}

// NewGraph performs the "init" stage for every chunk: binding each
// chunk into a GenericObject and indexing it by address.
func NewGraph(chunks []chunk.Chunk, addrs []chunk.OOP, isSpur bool) (*Graph, error) {
	g := &Graph{
		IsSpur: isSpur,
		ByAddr: make(map[chunk.OOP]*GenericObject, len(chunks)),
	}
	for i, c := range chunks {
		obj := &GenericObject{Addr: addrs[i], Chunk: c, IsSpur: isSpur}
		g.ByAddr[addrs[i]] = obj
		g.Ordered = append(g.Ordered, obj)
	}
	return g, nil
}

// InitWObject resolves each object's class reference (via an explicit
// class oop or, for v3 compact classes, a callback supplied by the
// caller once the special-objects array itself has been filled in).
// Forwarders (Spur format 7) are rejected here, as soon as a format is
// known (§9).
func (g *Graph) InitWObject(resolveCompactClass func(index int) *GenericObject) error {
	for _, obj := range g.Ordered {
		if g.IsSpur && obj.Chunk.Format == 7 {
			return &sqerrors.UnexpectedForwarderError{OOP: int64(obj.Addr)}
		}
		if obj.Chunk.ClassOOP != 0 {
			classObj, ok := g.ByAddr[obj.Chunk.ClassOOP]
			if !ok {
				return &sqerrors.DanglingReferenceError{OOP: int64(obj.Chunk.ClassOOP)}
			}
			obj.ClassG = classObj
		} else if resolveCompactClass != nil {
			obj.ClassG = resolveCompactClass(obj.Chunk.ClassIdx)
		}
	}
	return nil
}

// Fillin resolves every non-weak object's slots: each data word
// becomes an immediate, a reference to another GenericObject, or is
// left nil if the object's format marks it weak (those are deferred
// to FillinWeak). Compiled-method chunks only resolve their literal
// prefix; the remaining words are bytecode bytes and are not slots.
func (g *Graph) Fillin() error {
	for _, obj := range g.Ordered {
		if obj.Chunk.IsWeak(g.IsSpur) {
			continue
		}
		if err := g.fillinObject(obj); err != nil {
			return err
		}
	}
	return nil
}

// FillinWeak is the second pass (§4.4): it resolves the slots of
// weak-format chunks (v3 format 4; Spur formats 4 and 5).
func (g *Graph) FillinWeak() error {
	for _, obj := range g.Ordered {
		if !obj.Chunk.IsWeak(g.IsSpur) {
			continue
		}
		if err := g.fillinObject(obj); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) fillinObject(obj *GenericObject) error {
	if obj.filledIn {
		return nil
	}
	if obj.Chunk.IsWordsOrBytes(g.IsSpur) {
		// Word-indexable and byte-indexable chunks (Bitmaps,
		// LargePositiveIntegers, Strings, ...) carry raw words/bytes,
		// not oops or tagged immediates (§3): an even, nonzero pixel
		// or string word is not a reference and must never be run
		// through resolveSlot. The ObjectFactory reads these straight
		// out of Chunk.Data (objfactory.go's WordObject/ByteObject
		// populate cases), so GenericObject.Slots is left empty here.
		obj.filledIn = true
		return nil
	}
	slots := make([]Slot, len(obj.Chunk.Data))
	literalBoundary := len(obj.Chunk.Data)
	if obj.Chunk.IsCompiledMethod(g.IsSpur) && len(obj.Chunk.Data) > 0 {
		literalBoundary = 1 + methodLiteralCount(obj.Chunk.Data[0], g.IsSpur)
		if literalBoundary > len(obj.Chunk.Data) {
			literalBoundary = len(obj.Chunk.Data)
		}
	}
	for i, raw := range obj.Chunk.Data {
		if i >= literalBoundary {
			// Bytecode bytes, not slots (§4.5): the ObjectFactory
			// reads these straight out of the chunk, so they are
			// never run through oop/immediate resolution (a
			// bytecode word is rarely a valid oop or tag pattern).
			slots[i] = NilSlot
			continue
		}
		slot, err := g.resolveSlot(raw)
		if err != nil {
			return err
		}
		slots[i] = slot
	}
	obj.Slots = slots
	obj.filledIn = true
	return nil
}

// methodLiteralCount extracts num_literals from a compiled method's
// raw (still SmallInteger-tagged) header word, detagging it first,
// matching the bit layout in §3 "Compiled method header".
func methodLiteralCount(headerRaw int64, isSpur bool) int {
	header := uint64(immediate.DecodeSmallInt(headerRaw))
	if isSpur {
		return int(header & (1<<15 - 1))
	}
	return int((header >> 9) & (1<<8 - 1))
}

func (g *Graph) resolveSlot(raw int64) (Slot, error) {
	switch immediate.Classify(raw, g.IsSpur) {
	case immediate.SmallInt:
		return Slot{Kind: SlotSmallInt, SmallInt: immediate.DecodeSmallInt(raw)}, nil
	case immediate.Char:
		return Slot{Kind: SlotChar, Char: immediate.DecodeChar(raw)}, nil
	default:
		if raw == 0 {
			return NilSlot, nil
		}
		target, ok := g.ByAddr[chunk.OOP(raw)]
		if !ok {
			return Slot{}, &sqerrors.DanglingReferenceError{OOP: raw}
		}
		return Slot{Kind: SlotRef, Ref: target}, nil
	}
}
