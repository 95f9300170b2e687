// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package chunk defines the decoded per-object header+data record
// produced by the reader (§3, §4.3). Chunks are reader scratch: they
// are created during the read pass and discarded after fill-in.
package chunk

// OOP is an object pointer within the image's address space — the
// position (in bytes, from the start of the image file) at which a
// chunk's header begins. It doubles as the map key fillin uses to resolve a
// slot integer to the chunk it names.
type OOP int64

// Chunk is the raw header+data tuple parsed for one object before
// semantic interpretation.
type Chunk struct {
	Addr     OOP // image address; lib/header leaves it 0 and reports the address in ChunkAt.Pos
	Size     int // slot (word) count, equal to len(Data); byte trimming is applied by lib/objfactory
	Format   int // 0-15 (v3) or 0-31 (Spur)
	ClassOOP OOP // resolved class oop; 0 if given only by compact-class index
	ClassIdx int // v3 compact-class index, or Spur class_id
	Hash     int64
	Data     []int64 // raw slot words, still unresolved oops/immediates
}

// IsCompiledMethod reports whether Format names a compiled-method
// chunk in either dialect.
func (c Chunk) IsCompiledMethod(isSpur bool) bool {
	if isSpur {
		return c.Format >= 24 && c.Format <= 31
	}
	return c.Format >= 12 && c.Format <= 15
}

// IsWeak reports whether Format names a weak-pointer chunk (§3
// invariant: a chunk whose format signals weak fields yields an
// object whose shadow must use the weak strategy).
func (c Chunk) IsWeak(isSpur bool) bool {
	if isSpur {
		return c.Format == 4 || c.Format == 5
	}
	return c.Format == 4
}

// IsWordsOrBytes reports whether Format names a word-indexable or
// byte-indexable chunk (v3 format 6-11; Spur format 9-23): Data holds
// raw words/bytes, not oops or tagged immediates, and must never be
// run through slot resolution.
func (c Chunk) IsWordsOrBytes(isSpur bool) bool {
	if isSpur {
		return c.Format >= 9 && c.Format <= 23
	}
	return c.Format >= 6 && c.Format <= 11
}
