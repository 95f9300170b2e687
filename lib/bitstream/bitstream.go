// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package bitstream provides the low-level big/little-endian byte
// stream the image reader consumes: peek, advance, signed/unsigned
// 16/32/64-bit reads, skip, and position/count tracking.
package bitstream

import (
	"encoding/binary"
	"io"

	"sqimage/lib/diskio"
	"sqimage/lib/sqerrors"
)

// WordSize is the machine word size of the image being read: 4 for
// 32-bit images, 8 for 64-bit images.
type WordSize int

const (
	Word32 WordSize = 4
	Word64 WordSize = 8
)

// BitStream is a positional reader over an image file. Endianness is
// fixed once (by the caller, immediately after the magic-number
// sniff in lib/imgmagic) and is immutable thereafter.
type BitStream struct {
	file     *diskio.OSFile[diskio.FileAddr]
	buffered diskio.File[diskio.FileAddr]
	order    binary.ByteOrder
	wordSize WordSize
	pos      int64
	countAt  int64
}

// Open wraps an already-open OS file. order and wordSize are set once
// the dialect has been sniffed; passing them here assumes the caller
// already classified the magic word itself (lib/image reads the first
// eight bytes of the file directly and hands them to
// lib/imgmagic.Sniff before building the BitStream). The stream starts
// at offset 0, so the caller skips the magic word itself.
func Open(f *diskio.OSFile[diskio.FileAddr], order binary.ByteOrder, wordSize WordSize) *BitStream {
	return &BitStream{
		file:     f,
		buffered: diskio.NewBufferedFile[diskio.FileAddr](f, 4096, 64),
		order:    order,
		wordSize: wordSize,
	}
}

// Order reports the byte order committed to after the magic sniff.
func (bs *BitStream) Order() binary.ByteOrder { return bs.order }

// WordSize reports the machine word size (4 or 8) committed to after
// the magic sniff.
func (bs *BitStream) WordSize() WordSize { return bs.wordSize }

func (bs *BitStream) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := bs.buffered.ReadAt(buf, diskio.FileAddr(bs.pos))
	if got < n {
		if err == nil {
			err = io.EOF
		}
		return nil, &sqerrors.TruncatedImageError{Pos: bs.pos, Need: n, Avail: got}
	}
	bs.pos += int64(n)
	return buf, nil
}

// Peek returns the next byte without advancing the stream.
func (bs *BitStream) Peek() (byte, error) {
	var buf [1]byte
	n, err := bs.buffered.ReadAt(buf[:], diskio.FileAddr(bs.pos))
	if n < 1 {
		if err == nil {
			err = io.EOF
		}
		return 0, &sqerrors.TruncatedImageError{Pos: bs.pos, Need: 1, Avail: n}
	}
	return buf[0], nil
}

// NextWord reads one machine word (4 or 8 bytes, per WordSize) and
// returns it sign-extended, as object headers are classified by their
// sign/top bits.
func (bs *BitStream) NextWord() (int64, error) {
	buf, err := bs.read(int(bs.wordSize))
	if err != nil {
		return 0, err
	}
	if bs.wordSize == Word32 {
		return int64(int32(bs.order.Uint32(buf))), nil
	}
	return int64(bs.order.Uint64(buf)), nil
}

// NextShort reads an unsigned 16-bit value.
func (bs *BitStream) NextShort() (uint16, error) {
	buf, err := bs.read(2)
	if err != nil {
		return 0, err
	}
	return bs.order.Uint16(buf), nil
}

// NextQWord reads an unsigned 64-bit value, always 8 bytes regardless
// of WordSize (used for Spur's fixed 8-byte object headers and
// overflow preambles).
func (bs *BitStream) NextQWord() (uint64, error) {
	buf, err := bs.read(8)
	if err != nil {
		return 0, err
	}
	return bs.order.Uint64(buf), nil
}

// NextBytes reads n raw bytes verbatim (no endian interpretation),
// used for byte-object and bytecode payloads.
func (bs *BitStream) NextBytes(n int) ([]byte, error) {
	return bs.read(n)
}

// Skip advances the stream by n bytes without interpreting them.
func (bs *BitStream) Skip(n int64) error {
	target := bs.pos + n
	if target > int64(bs.file.Size()) {
		return &sqerrors.TruncatedImageError{Pos: bs.pos, Need: int(n), Avail: int(int64(bs.file.Size()) - bs.pos)}
	}
	bs.pos = target
	return nil
}

// ResetCount marks the current position as the baseline for Count.
func (bs *BitStream) ResetCount() { bs.countAt = bs.pos }

// Count reports bytes consumed since the last ResetCount.
func (bs *BitStream) Count() int64 { return bs.pos - bs.countAt }

// Pos reports the current absolute byte offset.
func (bs *BitStream) Pos() int64 { return bs.pos }

// Len reports the total size of the underlying file, for end-of-image
// checks (§8: "pos == len(image) after full read").
func (bs *BitStream) Len() int64 { return int64(bs.file.Size()) }

// Close releases the underlying file.
func (bs *BitStream) Close() error { return bs.file.Close() }
