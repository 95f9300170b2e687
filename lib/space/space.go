// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package space implements Space (§4.8, §6): the process-wide
// registry of well-known objects and the strategy factory every
// shadow is built through.
package space

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"

	"sqimage/lib/chunk"
	"sqimage/lib/object"
	"sqimage/lib/sqerrors"
	"sqimage/lib/strategy"
)

// Flags are the boolean switches Space carries (§4.8). They are
// write-once-after-init from the driver's perspective: New sets them
// (lib/image.Load builds them from LoadOptions) and nothing later
// mutates them.
type Flags struct {
	NoSpecializedStorage      bool
	IsSpur                    bool
	OmitPrintingRawBytes      bool
	SimulateNumericPrimitives bool
	Headless                  bool
	HighDPI                   bool
	UsePlugins                bool
	SuppressProcessSwitch     bool
	RunSpyHacks               bool
}

// smallIntCacheRadius bounds the small-integer cache to ±N (§4.8).
const smallIntCacheRadius = 256

// Space is the process-wide registry built once a read finishes
// materializing objects (§4.8). It holds no per-read state beyond
// what Init populates; a second Init call re-initializes it for a
// fresh read.
type Space struct {
	Flags      Flags
	Strategies *strategy.Factory

	wNil   object.Object
	wTrue  object.Object
	wFalse object.Object

	specialObjects object.Object
	classTable     map[int]*object.PointerObject
	compactClasses [32]*object.PointerObject

	smallIntCache map[int64]*object.SmallIntegerObject
}

// New builds a Space with the given flags; Strategies is derived from
// Flags.NoSpecializedStorage so every shadow built against this Space
// honors it uniformly (§4.6 Factory).
func New(flags Flags) *Space {
	return &Space{
		Flags:         flags,
		Strategies:    &strategy.Factory{NoSpecializedStorage: flags.NoSpecializedStorage},
		classTable:    make(map[int]*object.PointerObject),
		smallIntCache: make(map[int64]*object.SmallIntegerObject, 2*smallIntCacheRadius+1),
	}
}

// Init binds the registry to one materialized object graph (§4.8).
// ordered is the graph's body-order object list (the same order
// chunks were read in): by image-format convention the first three
// objects in body order are nil, false, true (§8 scenario 2).
// specialObjectsOOP is the image header's special-objects-oop field,
// resolved through objs.
func (s *Space) Init(ordered []chunk.OOP, objs map[chunk.OOP]object.Object, specialObjectsOOP chunk.OOP) error {
	if len(ordered) < 3 {
		return &sqerrors.CorruptImageError{Details: "image body has fewer than the three bootstrap objects (nil, false, true)"}
	}
	s.wNil = objs[ordered[0]]
	s.wFalse = objs[ordered[1]]
	s.wTrue = objs[ordered[2]]

	if specialObjectsOOP != 0 {
		so, ok := objs[specialObjectsOOP]
		if !ok {
			return &sqerrors.DanglingReferenceError{OOP: int64(specialObjectsOOP)}
		}
		s.specialObjects = so
	}
	return nil
}

// SetClassTable installs the Spur class table, indexed by class_id
// (§4.3's class_id field; §4.5 resolves an object's class through it
// when no explicit class oop is present).
func (s *Space) SetClassTable(table map[int]*object.PointerObject) { s.classTable = table }

// SetCompactClasses installs the v3 31-element compact-class table,
// built by the caller from the special-objects array (§4.3).
func (s *Space) SetCompactClasses(table [32]*object.PointerObject) { s.compactClasses = table }

// ClassByIndex resolves a v3 compact-class index or Spur class_id to
// its class object, for use as the InitWObject resolveCompactClass
// callback.
func (s *Space) ClassByIndex(index int) *object.PointerObject {
	if s.Flags.IsSpur {
		return s.classTable[index]
	}
	if index < 0 || index >= len(s.compactClasses) {
		return nil
	}
	return s.compactClasses[index]
}

// WNil, WTrue, WFalse return the registry's singleton objects (§6).
func (s *Space) WNil() object.Object   { return s.wNil }
func (s *Space) WTrue() object.Object  { return s.wTrue }
func (s *Space) WFalse() object.Object { return s.wFalse }

// Special returns the special-objects array's entry at index (§6:
// "special(index)"); primitives read well-known indices by name, a
// concern outside this core's scope.
func (s *Space) Special(index int) (object.Object, error) {
	if s.specialObjects == nil {
		return nil, &sqerrors.CorruptImageError{Details: "special-objects array was never initialized"}
	}
	if index < 0 || index >= s.specialObjects.Size() {
		return nil, &sqerrors.CorruptImageError{Details: fmt.Sprintf("special-objects index %d out of range", index)}
	}
	v := s.specialObjects.Fetch(index)
	if v == nil {
		return nil, nil
	}
	o, ok := v.(object.Object)
	if !ok {
		return nil, &sqerrors.CorruptImageError{Details: "special-objects entry is not an object reference"}
	}
	return o, nil
}

// WrapInt returns the representation a pointer-object's strategy
// stores for a SmallInteger: the raw int64 itself (§4.6's
// SmallIntOrNil strategy holds values unboxed; no heap allocation is
// needed on the common path).
func (s *Space) WrapInt(v int64) any { return v }

// UnwrapInt extracts an int64 from either the raw strategy
// representation or a boxed SmallIntegerObject (e.g. one read back out
// of a List-strategy slot).
func (s *Space) UnwrapInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case *object.SmallIntegerObject:
		return x.Value, true
	default:
		return 0, false
	}
}

// WrapFloat mirrors WrapInt for the FloatOrNil strategy.
func (s *Space) WrapFloat(v float64) any { return v }

// UnwrapFloat mirrors UnwrapInt for floats.
func (s *Space) UnwrapFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// SmallInteger returns the SmallIntegerObject boxing v, reusing the
// cached instance when v falls within the small-integer cache's
// radius (§4.8).
func (s *Space) SmallInteger(v int64) *object.SmallIntegerObject {
	if v >= -smallIntCacheRadius && v <= smallIntCacheRadius {
		if cached, ok := s.smallIntCache[v]; ok {
			return cached
		}
		o := &object.SmallIntegerObject{Value: v}
		s.smallIntCache[v] = o
		return o
	}
	return &object.SmallIntegerObject{Value: v}
}

// WrapString encodes s as Latin-1 bytes into a fresh ByteObject
// (Smalltalk Strings are byte-indexable objects of single-byte
// characters).
func (s *Space) WrapString(str string) (*object.ByteObject, error) {
	enc, err := charmap.ISO8859_1.NewEncoder().String(str)
	if err != nil {
		return nil, &sqerrors.CorruptImageError{Details: "string is not representable in Latin-1", Err: err}
	}
	return &object.ByteObject{Bytes: []byte(enc)}, nil
}

// UnwrapString decodes a ByteObject's bytes as Latin-1 text.
func (s *Space) UnwrapString(o *object.ByteObject) (string, error) {
	dec, err := charmap.ISO8859_1.NewDecoder().String(string(o.Bytes))
	if err != nil {
		return "", &sqerrors.CorruptImageError{Details: "byte object is not valid Latin-1", Err: err}
	}
	return dec, nil
}
