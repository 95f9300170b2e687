// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package object

import "fmt"

// CompiledMethod is the in-memory representation of a compiled
// method (§3, §6): its header is decoded from its first literal slot,
// the remaining literals follow, and the bytecode bytes come last.
type CompiledMethod struct {
	ClassObj *PointerObject
	HashVal  int64

	NumArgs        int
	NumTemps       int
	NumLiterals    int
	IsLarge        bool
	IsOptimized    bool
	HasPrimitive   bool
	Primitive      int
	AccessModifier int // Spur only; 0 in v3

	LiteralsSlice []Object
	BytesSlice    []byte
}

var _ Object = (*CompiledMethod)(nil)

func (m *CompiledMethod) Class() *PointerObject { return m.ClassObj }

// Fetch/Store/Size expose the literal frame as the method's slots;
// bytecode bytes are not slots (§4.5: "the remaining bytes are the
// bytecode").
func (m *CompiledMethod) Fetch(i int) any    { return m.LiteralsSlice[i] }
func (m *CompiledMethod) Store(i int, v any) { m.LiteralsSlice[i] = v.(Object) }
func (m *CompiledMethod) Size() int          { return len(m.LiteralsSlice) }
func (m *CompiledMethod) IsWeak() bool       { return false }
func (m *CompiledMethod) Hash() int64        { return m.HashVal }
func (m *CompiledMethod) AsReprString() string {
	return fmt.Sprintf("a CompiledMethod(nArgs=%d nTemps=%d nLits=%d prim=%d)",
		m.NumArgs, m.NumTemps, m.NumLiterals, m.Primitive)
}

// Literals returns the method's literal frame (§6).
func (m *CompiledMethod) Literals() []Object { return m.LiteralsSlice }

// Bytes returns the method's bytecode (§6).
func (m *CompiledMethod) Bytes() []byte { return m.BytesSlice }
