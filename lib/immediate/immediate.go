// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package immediate decodes/encodes the two tagged-immediate value
// encodings described in §3: SmallInteger (both dialects) and
// Character (Spur only). Any raw slot word that isn't an immediate is
// an object reference (an in-image address) and is not this
// package's concern.
package immediate

// Kind distinguishes which immediate (if any) a raw slot word names.
type Kind int

const (
	NotImmediate Kind = iota
	SmallInt
	Char
)

// Classify inspects the low tag bits of a raw slot word and reports
// which immediate encoding, if any, it uses. isSpur selects whether
// the Character tag (low 2 bits == 0b10) is recognized; v3 images
// have no tagged character immediate.
func Classify(raw int64, isSpur bool) Kind {
	if raw&1 == 1 {
		return SmallInt
	}
	if isSpur && raw&0b11 == 0b10 {
		return Char
	}
	return NotImmediate
}

// DecodeSmallInt extracts the signed value from a SmallInteger-tagged
// word: low bit = 1, value = raw >> 1 (arithmetic).
func DecodeSmallInt(raw int64) int64 {
	return raw >> 1
}

// EncodeSmallInt packs a signed value into a SmallInteger-tagged
// word. The caller is responsible for ensuring value fits after the
// shift (the VM-level range check is outside this core's scope).
func EncodeSmallInt(value int64) int64 {
	return (value << 1) | 1
}

// DecodeChar extracts the codepoint from a Character-tagged word
// (Spur only): low two bits = 0b10, codepoint = raw >> 2.
func DecodeChar(raw int64) uint32 {
	return uint32(raw >> 2)
}

// EncodeChar packs a codepoint into a Character-tagged word.
func EncodeChar(codepoint uint32) int64 {
	return (int64(codepoint) << 2) | 0b10
}
