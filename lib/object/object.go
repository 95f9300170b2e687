// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package object defines the concrete in-memory object variants (§3)
// materialized by the ObjectFactory, and the Object interface exposed
// to external collaborators (§6).
package object

import (
	"fmt"

	"sqimage/lib/shadow"
)

// Object is the interface the interpreter, scheduler, and primitives
// layer consume (§6): "Object::{class, fetch, store, size, is_weak,
// hash, as_repr_string}".
type Object interface {
	Class() *PointerObject
	Fetch(i int) any
	Store(i int, v any)
	Size() int
	IsWeak() bool
	Hash() int64
	AsReprString() string
}

// PointerObject has mutable slot storage via a shadow; may be weak
// (§3).
type PointerObject struct {
	ClassObj *PointerObject
	Slots    shadow.Shadow
	Weak     bool
	HashVal  int64
}

var _ Object = (*PointerObject)(nil)

func (o *PointerObject) Class() *PointerObject { return o.ClassObj }
func (o *PointerObject) Fetch(i int) any       { return o.Slots.Fetch(i) }
func (o *PointerObject) Store(i int, v any)    { o.Slots.Store(i, v) }
func (o *PointerObject) Size() int             { return o.Slots.Size() }
func (o *PointerObject) IsWeak() bool          { return o.Weak }
func (o *PointerObject) Hash() int64           { return o.HashVal }
func (o *PointerObject) AsReprString() string {
	return fmt.Sprintf("a PointerObject(size=%d, weak=%v)", o.Size(), o.Weak)
}

// WordObject holds raw 32-bit or 64-bit words (§3): bitmaps, large
// integers in word-indexable classes, and similar.
type WordObject struct {
	ClassObj *PointerObject
	Words    []uint64
	Is64     bool
	HashVal  int64
}

var _ Object = (*WordObject)(nil)

func (o *WordObject) Class() *PointerObject { return o.ClassObj }
func (o *WordObject) Fetch(i int) any       { return o.Words[i] }
func (o *WordObject) Store(i int, v any)    { o.Words[i] = v.(uint64) }
func (o *WordObject) Size() int             { return len(o.Words) }
func (o *WordObject) IsWeak() bool          { return false }
func (o *WordObject) Hash() int64           { return o.HashVal }
func (o *WordObject) AsReprString() string {
	return fmt.Sprintf("a WordObject(size=%d, 64bit=%v)", o.Size(), o.Is64)
}

// ByteObject holds raw bytes (§3): strings, symbols, and large
// integers encoded as byte sequences.
type ByteObject struct {
	ClassObj *PointerObject
	Bytes    []byte
	HashVal  int64
}

var _ Object = (*ByteObject)(nil)

func (o *ByteObject) Class() *PointerObject { return o.ClassObj }
func (o *ByteObject) Fetch(i int) any       { return o.Bytes[i] }
func (o *ByteObject) Store(i int, v any)    { o.Bytes[i] = v.(byte) }
func (o *ByteObject) Size() int             { return len(o.Bytes) }
func (o *ByteObject) IsWeak() bool          { return false }
func (o *ByteObject) Hash() int64           { return o.HashVal }
func (o *ByteObject) AsReprString() string  { return string(o.Bytes) }

// CharacterObject is materialized by lib/objfactory from a tagged
// Character immediate (§3); Space keeps no character table.
type CharacterObject struct {
	ClassObj  *PointerObject
	Codepoint uint32
}

var _ Object = (*CharacterObject)(nil)

func (o *CharacterObject) Class() *PointerObject { return o.ClassObj }
func (o *CharacterObject) Fetch(int) any         { return nil }
func (o *CharacterObject) Store(int, any)        {}
func (o *CharacterObject) Size() int             { return 0 }
func (o *CharacterObject) IsWeak() bool          { return false }
func (o *CharacterObject) Hash() int64           { return int64(o.Codepoint) }
func (o *CharacterObject) AsReprString() string  { return fmt.Sprintf("$%c", rune(o.Codepoint)) }

// SmallIntegerObject is usually materialized directly from a tagged
// immediate; lib/space's SmallInteger method caches instances for
// values within ±256 so that repeated boxing of common small integers
// doesn't allocate (§3). lib/objfactory allocates a fresh instance per
// boxed value.
type SmallIntegerObject struct {
	ClassObj *PointerObject
	Value    int64
}

var _ Object = (*SmallIntegerObject)(nil)

func (o *SmallIntegerObject) Class() *PointerObject { return o.ClassObj }
func (o *SmallIntegerObject) Fetch(int) any         { return nil }
func (o *SmallIntegerObject) Store(int, any)        {}
func (o *SmallIntegerObject) Size() int             { return 0 }
func (o *SmallIntegerObject) IsWeak() bool          { return false }
func (o *SmallIntegerObject) Hash() int64           { return o.Value }
func (o *SmallIntegerObject) AsReprString() string  { return fmt.Sprintf("%d", o.Value) }
