// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package imgmagic sniffs an image file's magic number to determine
// its dialect, word size, and byte order (§4.2).
package imgmagic

import (
	"encoding/binary"

	"sqimage/lib/sqerrors"
)

// Dialect identifies which of the two on-disk object-header layouts
// an image uses.
type Dialect int

const (
	V3 Dialect = iota
	Spur
)

func (d Dialect) String() string {
	if d == Spur {
		return "Spur"
	}
	return "v3"
}

const (
	magicV3     = 6502
	magicV3_64  = 68002
	magicSpur32 = 6521
)

// Info is the result of a successful sniff.
type Info struct {
	Dialect  Dialect
	Order    binary.ByteOrder
	WordSize int // 4 or 8
	Magic    uint64
}

// Sniff classifies the first header word of an image. It reads big
// endian first; if that decodes to a known magic, big-endian is
// committed. Otherwise it tries little-endian. Any other value is
// BadMagic.
//
// raw8 holds the first eight bytes of the file (its first four bytes
// are the 32-bit word, all eight the 64-bit word), supplied by the
// caller (lib/image, which owns file I/O) so this
// package stays pure and easy to test.
func Sniff(raw8 [8]byte) (Info, error) {
	beWord64 := binary.BigEndian.Uint64(raw8[:])
	beWord32 := binary.BigEndian.Uint32(raw8[:4])
	if info, ok := classify(uint64(beWord32), beWord64, binary.BigEndian); ok {
		return info, nil
	}

	leWord64 := binary.LittleEndian.Uint64(raw8[:])
	leWord32 := binary.LittleEndian.Uint32(raw8[:4])
	if info, ok := classify(uint64(leWord32), leWord64, binary.LittleEndian); ok {
		return info, nil
	}

	return Info{}, &sqerrors.BadMagicError{Word: beWord64}
}

func classify(word32 uint64, word64 uint64, order binary.ByteOrder) (Info, bool) {
	switch word32 {
	case magicV3:
		return Info{Dialect: V3, Order: order, WordSize: 4, Magic: word32}, true
	case magicSpur32:
		return Info{Dialect: Spur, Order: order, WordSize: 4, Magic: word32}, true
	}
	if word64 == magicV3_64 {
		return Info{Dialect: V3, Order: order, WordSize: 8, Magic: word64}, true
	}
	return Info{}, false
}
