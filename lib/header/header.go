// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package header decodes the 16-word image header and drives the
// per-object chunk loop for both dialects (§4.3).
package header

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"sqimage/lib/bitstream"
	"sqimage/lib/bitutil"
	"sqimage/lib/chunk"
	"sqimage/lib/imgmagic"
	"sqimage/lib/sqerrors"
)

// ImageHeader holds the fields recognized from the fixed 16-word
// image header (§4.3).
type ImageHeader struct {
	HeaderSize        int64
	BodyLength        int64
	OldBaseAddress    int64
	SpecialObjectsOOP chunk.OOP
	LastHash          int64
	WindowHeight      int64
	WindowWidth       int64
	FullScreen        int64
	ExtraMemory       int64

	// Spur only
	StackPages       int64
	CogCodeSize      int64
	EdenBytes        int64
	MaxExtSemTabSize int64
	FirstSegmentSize int64
	FreeOldSpace     int64
}

const numHeaderWords = 16

// ReadImageHeader consumes the 16-word header in the order laid out
// by dialect. The reader's position is left at the first body byte.
func ReadImageHeader(bs *bitstream.BitStream, dialect imgmagic.Dialect) (ImageHeader, error) {
	words := make([]int64, numHeaderWords)
	for i := range words {
		w, err := bs.NextWord()
		if err != nil {
			return ImageHeader{}, err
		}
		words[i] = w
	}

	h := ImageHeader{
		HeaderSize:        words[0],
		BodyLength:        words[1],
		OldBaseAddress:    words[2],
		SpecialObjectsOOP: chunk.OOP(words[3]),
		LastHash:          words[4],
		WindowHeight:      words[5],
		WindowWidth:       words[6],
		FullScreen:        words[7],
		ExtraMemory:       words[8],
	}
	if dialect == imgmagic.Spur {
		h.StackPages = words[9]
		h.CogCodeSize = words[10]
		h.EdenBytes = words[11]
		h.MaxExtSemTabSize = words[12]
		h.FirstSegmentSize = words[13]
		h.FreeOldSpace = words[14]
	}
	return h, nil
}

// ChunkAt pairs a decoded Chunk with the body position it was read
// from, matching §4.3's "ordered sequence of (Chunk, position) pairs".
type ChunkAt struct {
	Chunk chunk.Chunk
	Pos   chunk.OOP
}

// v3 per-object header bit layout. The top 2 bits of the first word
// classify the header as 1/2/3-word; the remaining bits of that same
// word always carry (hash, compactClassIndex, format, size) in that
// order from the high bits down. A 2-word header is preceded by an
// explicit class oop; a 3-word header is preceded by a size-overflow
// word and then the explicit class oop.
func v3FieldsForWordBits(wordBits int) []bitutil.Field {
	fixed := 4 + 5 + 12 + 2 // format + compactClass + hash + headerType
	sizeBits := wordBits - fixed
	return []bitutil.Field{
		{Name: "size", Bits: sizeBits},
		{Name: "format", Bits: 4},
		{Name: "compactClass", Bits: 5},
		{Name: "hash", Bits: 12},
		{Name: "headerType", Bits: 2},
	}
}

// ReadV3Chunks reads v3-dialect object chunks until the stream is
// exhausted (the v3 body carries no segment bridges).
func ReadV3Chunks(ctx context.Context, bs *bitstream.BitStream) ([]ChunkAt, error) {
	wordBits := int(bs.WordSize()) * 8
	fields := v3FieldsForWordBits(wordBits)

	var out []ChunkAt
	for bs.Pos() < bs.Len() {
		pos := chunk.OOP(bs.Pos())
		c, err := readV3Chunk(bs, fields)
		if err != nil {
			return nil, err
		}
		dlog.Debugf(ctx, "header: v3 chunk at 0x%x: format=%d size=%d", pos, c.Format, c.Size)
		out = append(out, ChunkAt{Chunk: c, Pos: pos})
	}
	return out, nil
}

func readV3Chunk(bs *bitstream.BitStream, fields []bitutil.Field) (chunk.Chunk, error) {
	var overflowSize int64 = -1
	var classOOP chunk.OOP

	headerType, headerWord, err := peekV3HeaderType(bs, fields)
	if err != nil {
		return chunk.Chunk{}, err
	}

	switch headerType {
	case 0b11: // 1-word
		// headerWord already consumed below
	case 0b01: // 2-word: explicit class oop, then header word
		oop, err := bs.NextWord()
		if err != nil {
			return chunk.Chunk{}, err
		}
		classOOP = chunk.OOP(oop)
		headerWord, err = bs.NextWord()
		if err != nil {
			return chunk.Chunk{}, err
		}
	case 0b00: // 3-word: size overflow, explicit class oop, header word
		sz, err := bs.NextWord()
		if err != nil {
			return chunk.Chunk{}, err
		}
		overflowSize = sz
		oop, err := bs.NextWord()
		if err != nil {
			return chunk.Chunk{}, err
		}
		classOOP = chunk.OOP(oop)
		headerWord, err = bs.NextWord()
		if err != nil {
			return chunk.Chunk{}, err
		}
	default:
		return chunk.Chunk{}, &sqerrors.CorruptImageError{Pos: bs.Pos(), Details: "v3 header type 0b10 (reserved) is unused"}
	}

	parts := bitutil.Split(uint64(headerWord), fields)
	size := int64(parts["size"])
	if overflowSize >= 0 {
		size = overflowSize
	}
	format := int(parts["format"])
	compactClass := int(parts["compactClass"])
	hash := int64(parts["hash"])

	data := make([]int64, size)
	for i := range data {
		w, err := bs.NextWord()
		if err != nil {
			return chunk.Chunk{}, err
		}
		data[i] = w
	}

	return chunk.Chunk{
		Format:   format,
		Size:     len(data),
		ClassOOP: classOOP,
		ClassIdx: compactClass,
		Hash:     hash,
		Data:     data,
	}, nil
}

// peekV3HeaderType reads the first word of a v3 object header and
// classifies it without yet knowing whether more words follow.
func peekV3HeaderType(bs *bitstream.BitStream, fields []bitutil.Field) (int, int64, error) {
	w, err := bs.NextWord()
	if err != nil {
		return 0, 0, err
	}
	parts := bitutil.Split(uint64(w), fields)
	return int(parts["headerType"]), w, nil
}

// Note on §3 format-dependent byte trimming: byte-indexable (8-11)
// and compiled-method (12-15) formats declare a *word* slot count
// here; the live byte/bytecode length those formats report is
// computed by the factory (§4.5) from format&3, not here.

// Spur per-object header: a single 8-byte qword, packed low-to-high as
// class_id(22) | reserved(2) | format(5) | reserved(3) | hash(22) |
// reserved(2) | n_slots(8) — the GC-flag gaps are read as plain
// reserved fields since nothing here consumes them (§4.3).
var spurFields = []bitutil.Field{
	{Name: "classID", Bits: 22},
	{Name: "reserved1", Bits: 2},
	{Name: "format", Bits: 5},
	{Name: "reserved2", Bits: 3},
	{Name: "hash", Bits: 22},
	{Name: "reserved3", Bits: 2},
	{Name: "size", Bits: 8},
}

const spurOverflowSentinel = 0xFF

// spurBridgeTerminator is the literal value of a segment bridge's first
// qword when no further segment follows; it is not itself span-shaped
// (§4.3) and is recognized by direct comparison before the span/format
// overflow encoding is considered.
const spurBridgeTerminator = 1241513987

// ReadSpurChunks reads Spur-dialect object chunks across however many
// segments the body is divided into, stopping at the terminal segment
// bridge (§4.3). firstSegmentBytes is the byte length of the first
// segment's body, including its trailing bridge (from the image
// header's first-segment-size field). Every segment ends in a 16-byte
// bridge: a first qword carrying the span to the next segment (in
// words, packed through the same n_slots==0xFF overflow encoding used
// by ordinary chunks, low 56 bits) followed by a second qword giving
// the next segment's size in bytes outright.
func ReadSpurChunks(ctx context.Context, bs *bitstream.BitStream, firstSegmentBytes int64) ([]ChunkAt, error) {
	var out []ChunkAt
	wordSize := int64(bs.WordSize())
	segmentBytesLeft := firstSegmentBytes

	for {
		// Stop consuming ordinary chunks once only the 16-byte bridge
		// remains in this segment.
		for segmentBytesLeft > 16 {
			pos := chunk.OOP(bs.Pos())
			c, consumed, err := readSpurChunk(bs, wordSize)
			if err != nil {
				return nil, err
			}
			dlog.Debugf(ctx, "header: spur chunk at 0x%x: format=%d size=%d", pos, c.Format, c.Size)
			out = append(out, ChunkAt{Chunk: c, Pos: pos})
			segmentBytesLeft -= consumed
		}

		first, err := bs.NextQWord()
		if err != nil {
			return nil, err
		}
		if int64(first) == spurBridgeTerminator {
			if _, err := bs.NextQWord(); err != nil { // trailing zero qword
				return nil, err
			}
			return out, nil
		}
		nextSegmentBytes, err := bs.NextQWord()
		if err != nil {
			return nil, err
		}
		segmentBytesLeft = int64(nextSegmentBytes)
	}
}

func readSpurChunk(bs *bitstream.BitStream, wordSize int64) (chunk.Chunk, int64, error) {
	qw, err := bs.NextQWord()
	if err != nil {
		return chunk.Chunk{}, 0, err
	}
	parts := bitutil.Split(qw, spurFields)
	if parts["size"] == spurOverflowSentinel {
		c, err := readSpurOverflowChunk(bs, qw)
		consumed := 8 + 8 + int64(c.Size)*wordSize
		return c, consumed, err
	}
	c, err := decodeSpurHeaderParts(bs, parts)
	consumed := 8 + int64(c.Size)*wordSize
	return c, consumed, err
}

func decodeSpurHeaderParts(bs *bitstream.BitStream, parts map[string]uint64) (chunk.Chunk, error) {
	size := int(parts["size"])
	format := int(parts["format"])
	hash := int64(parts["hash"])
	classID := int(parts["classID"])

	data := make([]int64, size)
	for i := range data {
		w, err := bs.NextWord()
		if err != nil {
			return chunk.Chunk{}, err
		}
		data[i] = w
	}

	return chunk.Chunk{
		Format:   format,
		Size:     len(data),
		ClassIdx: classID,
		Hash:     hash,
		Data:     data,
	}, nil
}

// readSpurOverflowChunk handles the n_slots==255 case: the current
// qword's low bits hold the real slot count, and format/hash/class_id
// are read from the *next* 8-byte header (§4.3).
func readSpurOverflowChunk(bs *bitstream.BitStream, overflowWord uint64) (chunk.Chunk, error) {
	realSize := int64(overflowWord & ((1 << 56) - 1))

	qw, err := bs.NextQWord()
	if err != nil {
		return chunk.Chunk{}, err
	}
	parts := bitutil.Split(qw, spurFields)
	format := int(parts["format"])
	hash := int64(parts["hash"])
	classID := int(parts["classID"])

	data := make([]int64, realSize)
	for i := range data {
		w, err := bs.NextWord()
		if err != nil {
			return chunk.Chunk{}, err
		}
		data[i] = w
	}

	return chunk.Chunk{
		Format:   format,
		Size:     len(data),
		ClassIdx: classID,
		Hash:     hash,
		Data:     data,
	}, nil
}
