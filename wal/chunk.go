package wal

import (
	"encoding/binary"
)

// ChunkType tags how a chunk relates to the record it belongs to. A record
// small enough for its block is written as a single Full chunk; anything
// larger becomes First, zero or more Middle, then Last.
type ChunkType byte

const (
	ChunkTypeFull ChunkType = iota
	ChunkTypeFirst
	ChunkTypeMiddle
	ChunkTypeLast
)

const (
	// chunkHeaderSize is checksum(4) + length(2) + type(1).
	chunkHeaderSize = 7

	// blockSize is the alignment unit of a segment file. Chunk headers
	// never straddle a block boundary.
	blockSize = 32 * 1024
)

// ChunkPosition is the address of the first chunk of a record. Positions
// are stable for the lifetime of the segment file they point into.
type ChunkPosition struct {
	SegmentID   uint32
	BlockNumber uint32
	// ChunkOffset is the byte offset of the chunk header within its block.
	ChunkOffset int64
}

// Encode returns a compact binary form of the position, suitable for
// embedding in an index or sending over the wire. DecodeChunkPosition is
// the inverse.
func (pos ChunkPosition) Encode() []byte {
	buf := make([]byte, binary.MaxVarintLen32*2+binary.MaxVarintLen64)
	var n int
	n += binary.PutUvarint(buf[n:], uint64(pos.SegmentID))
	n += binary.PutUvarint(buf[n:], uint64(pos.BlockNumber))
	n += binary.PutUvarint(buf[n:], uint64(pos.ChunkOffset))
	return buf[:n]
}

// DecodeChunkPosition parses a position produced by Encode.
func DecodeChunkPosition(b []byte) (ChunkPosition, error) {
	var pos ChunkPosition
	segID, n := binary.Uvarint(b)
	if n <= 0 {
		return pos, ErrInvalidPosition
	}
	b = b[n:]
	block, n := binary.Uvarint(b)
	if n <= 0 {
		return pos, ErrInvalidPosition
	}
	b = b[n:]
	offset, n := binary.Uvarint(b)
	if n <= 0 {
		return pos, ErrInvalidPosition
	}
	pos.SegmentID = uint32(segID)
	pos.BlockNumber = uint32(block)
	pos.ChunkOffset = int64(offset)
	return pos, nil
}

// appendChunk appends one encoded chunk (header plus payload) to dst.
//
// Header layout, little-endian:
//
//	[0:4] CRC-32 over bytes 4..end
//	[4:6] payload length
//	[6]   chunk type
func appendChunk(dst, payload []byte, typ ChunkType) []byte {
	off := len(dst)
	dst = append(dst, make([]byte, chunkHeaderSize)...)
	dst = append(dst, payload...)

	header := dst[off : off+chunkHeaderSize]
	binary.LittleEndian.PutUint16(header[4:6], uint16(len(payload)))
	header[6] = byte(typ)
	// The checksum covers everything after itself.
	binary.LittleEndian.PutUint32(header[:4], Checksum(dst[off+4:]))
	return dst
}

// parseChunkHeader splits a raw 7-byte header into its fields. It does not
// verify the checksum; that is the reader's job.
func parseChunkHeader(header []byte) (sum uint32, length uint16, typ ChunkType) {
	sum = binary.LittleEndian.Uint32(header[:4])
	length = binary.LittleEndian.Uint16(header[4:6])
	typ = ChunkType(header[6])
	return sum, length, typ
}
