package wal

import "errors"

var (
	// ErrClosed is returned by any operation on a closed log or segment.
	ErrClosed = errors.New("wal: log is closed")

	// ErrCorrupted is returned when a chunk's stored checksum disagrees
	// with the checksum recomputed over its length, type and payload, or
	// when a chunk is truncated by a torn write.
	ErrCorrupted = errors.New("wal: corrupted chunk")

	// ErrSegmentNotFound is returned by Read when a position names a
	// segment id that is neither active nor retained as an older segment.
	ErrSegmentNotFound = errors.New("wal: segment file not found")

	// ErrOutOfRange is returned when a position addresses a block or
	// offset beyond the end of the segment file.
	ErrOutOfRange = errors.New("wal: position out of range")

	// ErrBlockOverflow means the write cursor passed a block boundary.
	// The segment refuses further writes once this is observed, since its
	// cursor arithmetic can no longer be trusted.
	ErrBlockOverflow = errors.New("wal: block size exceeded")

	// ErrInvalidPosition is returned when a binary-encoded ChunkPosition
	// cannot be decoded.
	ErrInvalidPosition = errors.New("wal: invalid chunk position encoding")
)
