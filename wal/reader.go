package wal

import (
	"errors"
	"sort"
)

// Reader iterates every record of the log in storage order: segments by
// ascending id, records by file position within a segment.
//
// A truncated or corrupt chunk sequence at the tail of the active segment
// (the residue of a crash mid-write) ends iteration cleanly; the same
// condition inside an older segment is surfaced through Err, because older
// segments are sealed and should never contain torn data.
type Reader struct {
	segments []*segment
	activeID uint32

	idx         int
	blockNumber uint32
	chunkOffset int64

	data []byte
	pos  ChunkPosition
	err  error
}

// NewReader returns a Reader positioned before the first record. The
// Reader borrows the log's open segment files; it stops working once the
// log is closed.
func (w *WAL) NewReader() *Reader {
	w.mu.Lock()
	defer w.mu.Unlock()

	segments := make([]*segment, 0, len(w.olderSegments)+1)
	for _, seg := range w.olderSegments {
		segments = append(segments, seg)
	}
	segments = append(segments, w.active)
	sort.Slice(segments, func(i, j int) bool { return segments[i].id < segments[j].id })

	return &Reader{
		segments: segments,
		activeID: w.active.id,
	}
}

// Next advances to the next record, reporting false at the end of the log
// or on error.
func (r *Reader) Next() bool {
	for r.idx < len(r.segments) {
		seg := r.segments[r.idx]

		// Too few bytes left in this block for a header and payload; the
		// remainder is padding, skip to the next block boundary.
		if r.chunkOffset+chunkHeaderSize >= blockSize {
			r.blockNumber++
			r.chunkOffset = 0
		}
		if int64(r.blockNumber)*blockSize+r.chunkOffset >= seg.size() {
			r.idx++
			r.blockNumber = 0
			r.chunkOffset = 0
			continue
		}

		data, next, err := seg.readAt(r.blockNumber, r.chunkOffset)
		if err != nil {
			if seg.id == r.activeID &&
				(errors.Is(err, ErrCorrupted) || errors.Is(err, ErrOutOfRange)) {
				// Torn tail of the active segment: end of the log.
				r.idx = len(r.segments)
				return false
			}
			r.err = err
			return false
		}

		r.data = data
		r.pos = ChunkPosition{
			SegmentID:   seg.id,
			BlockNumber: r.blockNumber,
			ChunkOffset: r.chunkOffset,
		}
		r.blockNumber = next.BlockNumber
		r.chunkOffset = next.ChunkOffset
		return true
	}
	return false
}

// Record returns the record read by the last successful Next.
func (r *Reader) Record() []byte {
	return r.data
}

// Position returns the position of the record read by the last successful
// Next.
func (r *Reader) Position() ChunkPosition {
	return r.pos
}

// Err returns the first error hit during iteration, if any.
func (r *Reader) Err() error {
	return r.err
}

// Close releases the Reader's references to the log's segments. The
// Reader must not be used afterwards.
func (r *Reader) Close() {
	r.segments = nil
	r.idx = 0
	r.data = nil
}
