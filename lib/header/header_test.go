// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package header

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqimage/lib/bitstream"
	"sqimage/lib/diskio"
	"sqimage/lib/imgmagic"
)

func openTempFile(t *testing.T, data []byte) *bitstream.BitStream {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	osFile := &diskio.OSFile[diskio.FileAddr]{File: f}
	return bitstream.Open(osFile, binary.BigEndian, bitstream.Word32)
}

// v3HeaderWord packs one v3 object header word: size, format(4),
// compactClass(5), hash(12), headerType(2), low bit first, matching
// v3FieldsForWordBits's field order for a 32-bit image.
func v3HeaderWord(size, format, compactClass, hash, headerType uint32) uint32 {
	return size | format<<9 | compactClass<<13 | hash<<18 | headerType<<30
}

func TestReadImageHeaderV3SixtyFourBytes(t *testing.T) {
	words := make([]byte, 0, 64)
	push := func(v uint32) { words = binary.BigEndian.AppendUint32(words, v) }
	push(64) // HeaderSize
	push(12) // BodyLength
	push(0)  // OldBaseAddress
	push(0)  // SpecialObjectsOOP
	push(0)  // LastHash
	push(0)  // WindowHeight
	push(0)  // WindowWidth
	push(0)  // FullScreen
	for len(words) < 64 {
		push(0)
	}
	require.Len(t, words, 64)

	bs := openTempFile(t, words)
	hdr, err := ReadImageHeader(bs, imgmagic.V3)
	require.NoError(t, err)
	assert.Equal(t, int64(64), hdr.HeaderSize)
	assert.Equal(t, int64(12), hdr.BodyLength)
	assert.Equal(t, int64(64), bs.Pos())
}

func TestReadV3ChunksOneTwoThreeWordHeaders(t *testing.T) {
	var body []byte
	push := func(v uint32) { body = binary.BigEndian.AppendUint32(body, v) }

	// 1-word header: 0 slots, format 0, compactClass 0, hash 5.
	push(v3HeaderWord(0, 0, 0, 5, 0b11))

	// 2-word header: explicit class oop 0xAA, then header word for 1 slot.
	push(0xAA)
	push(v3HeaderWord(1, 0, 0, 7, 0b01))
	push(42) // the one data word

	// 3-word header: size-overflow word, explicit class oop, header word.
	push(2) // overflow size
	push(0xBB)
	push(v3HeaderWord(0, 0, 0, 9, 0b00))
	push(100)
	push(200)

	bs := openTempFile(t, body)
	chunks, err := ReadV3Chunks(context.Background(), bs)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, 0, chunks[0].Chunk.Size)
	assert.Equal(t, int64(5), chunks[0].Chunk.Hash)

	assert.Equal(t, 1, chunks[1].Chunk.Size)
	assert.Equal(t, int64(7), chunks[1].Chunk.Hash)
	assert.EqualValues(t, 0xAA, chunks[1].Chunk.ClassOOP)
	assert.Equal(t, []int64{42}, chunks[1].Chunk.Data)

	assert.Equal(t, 2, chunks[2].Chunk.Size)
	assert.Equal(t, int64(9), chunks[2].Chunk.Hash)
	assert.EqualValues(t, 0xBB, chunks[2].Chunk.ClassOOP)
	assert.Equal(t, []int64{100, 200}, chunks[2].Chunk.Data)

	assert.Equal(t, bs.Len(), bs.Pos())
}

func TestReadV3ChunksRejectsReservedHeaderType(t *testing.T) {
	var body []byte
	body = binary.BigEndian.AppendUint32(body, v3HeaderWord(0, 0, 0, 0, 0b10))

	bs := openTempFile(t, body)
	_, err := ReadV3Chunks(context.Background(), bs)
	assert.Error(t, err)
}

// spurHeaderQWord packs one Spur object header qword: class_id(22) |
// reserved(2) | format(5) | reserved(3) | hash(22) | reserved(2) |
// n_slots(8), low bit first (§4.3, pinned against the teacher's own
// fixture of this layout).
func spurHeaderQWord(nSlots, hash, format, classID uint64) uint64 {
	return classID | format<<24 | hash<<32 | nSlots<<56
}

func spurOverflowQWord(realSize uint64) uint64 {
	return (realSize & (1<<56 - 1)) | (spurOverflowSentinel << 56)
}

func pushQWord(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

func TestReadSpurChunksMinimalSevenObjects(t *testing.T) {
	var body []byte
	body = pushQWord(body, spurHeaderQWord(0, 1000, 0, 2)) // nil
	body = pushQWord(body, spurHeaderQWord(0, 1001, 0, 2)) // false
	body = pushQWord(body, spurHeaderQWord(0, 1002, 0, 2)) // true
	body = pushQWord(body, spurHeaderQWord(0, 1003, 0, 2)) // freeList
	body = pushQWord(body, spurHeaderQWord(1, 1004, 0, 2)) // hiddenRoots
	body = binary.BigEndian.AppendUint32(body, 0)          // ptr to class-table-page (unused here)
	body = pushQWord(body, spurHeaderQWord(0, 1005, 0, 2)) // class-table-page
	body = pushQWord(body, spurHeaderQWord(3, 1006, 0, 2)) // special-objects-array
	body = binary.BigEndian.AppendUint32(body, 0)
	body = binary.BigEndian.AppendUint32(body, 0)
	body = binary.BigEndian.AppendUint32(body, 0)
	body = pushQWord(body, spurBridgeTerminator)
	body = pushQWord(body, 0)

	bs := openTempFile(t, body)
	chunks, err := ReadSpurChunks(context.Background(), bs, int64(len(body)))
	require.NoError(t, err)
	require.Len(t, chunks, 7)
	assert.Equal(t, 2, chunks[0].Chunk.ClassIdx)
	assert.Equal(t, int64(1000), chunks[0].Chunk.Hash)
	assert.Equal(t, bs.Len(), bs.Pos())
}

func TestReadSpurChunksTwoSegmentBridge(t *testing.T) {
	var seg1 []byte
	seg1 = pushQWord(seg1, spurHeaderQWord(0, 1, 0, 2))               // object A
	seg1 = pushQWord(seg1, (55&(1<<56-1))|(spurOverflowSentinel<<56)) // non-terminal bridge span
	seg1 = pushQWord(seg1, 24)                                        // next segment size in bytes

	var seg2 []byte
	seg2 = pushQWord(seg2, spurHeaderQWord(0, 4040, 0, 2)) // object B, hash 4040
	seg2 = pushQWord(seg2, spurBridgeTerminator)
	seg2 = pushQWord(seg2, 0)

	require.Equal(t, 24, len(seg2))

	body := append(append([]byte{}, seg1...), seg2...)
	bs := openTempFile(t, body)
	chunks, err := ReadSpurChunks(context.Background(), bs, int64(len(seg1)))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, int64(1), chunks[0].Chunk.Hash)
	assert.Equal(t, int64(4040), chunks[1].Chunk.Hash)
	assert.Equal(t, bs.Len(), bs.Pos())
}

func TestReadSpurChunksOverflowNSlots(t *testing.T) {
	const realSize = 3000
	var body []byte
	body = pushQWord(body, spurOverflowQWord(realSize))
	body = pushQWord(body, spurHeaderQWord(0, 55, 2, 10))
	for i := 0; i < realSize; i++ {
		body = binary.BigEndian.AppendUint32(body, 0)
	}
	body = pushQWord(body, spurBridgeTerminator)
	body = pushQWord(body, 0)

	bs := openTempFile(t, body)
	chunks, err := ReadSpurChunks(context.Background(), bs, int64(len(body)))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	c := chunks[0].Chunk
	assert.Equal(t, realSize, c.Size)
	assert.Equal(t, 2, c.Format)
	assert.Equal(t, int64(55), c.Hash)
	assert.Equal(t, 10, c.ClassIdx)
}
