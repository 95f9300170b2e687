// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package bitutil provides the bit-packing helpers used to decode the
// variable-width header fields (object headers, compiled-method
// headers) of both image dialects. They operate on arbitrary
// bit-width fields packed into a single machine word, not on
// byte-aligned structures.
package bitutil

// Field names a single bit-width field within a packed word, in the
// order it is laid out from the low bit upward.
type Field struct {
	Name string
	Bits int
}

// Split unpacks raw, low-bit-first, into one value per field in
// fields. The sum of the field widths must not exceed 64.
func Split(raw uint64, fields []Field) map[string]uint64 {
	out := make(map[string]uint64, len(fields))
	shift := 0
	for _, f := range fields {
		mask := uint64(1)<<f.Bits - 1
		out[f.Name] = (raw >> shift) & mask
		shift += f.Bits
	}
	return out
}

// Join is the inverse of Split: it packs values (keyed by field name)
// back into a single word according to fields, in the same order.
func Join(values map[string]uint64, fields []Field) uint64 {
	var raw uint64
	shift := 0
	for _, f := range fields {
		mask := uint64(1)<<f.Bits - 1
		raw |= (values[f.Name] & mask) << shift
		shift += f.Bits
	}
	return raw
}

// SignExtend treats the low `bits` bits of raw as a two's-complement
// signed integer and sign-extends it to a full int64.
func SignExtend(raw uint64, bits int) int64 {
	shift := 64 - bits
	return int64(raw<<shift) >> shift
}
