package wal

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const initialSegmentID = 1

// WAL presents a single logical append-only log over a growing set of
// segment files. Exactly one segment is active and accepts writes; older
// segments are immutable and kept open for reads until the log is closed.
//
// A WAL is safe for concurrent use. One mutex covers the whole write path
// so that the rotation decision and the append it guards are a single
// critical section; reads only hold it long enough to resolve a segment.
type WAL struct {
	mu            sync.Mutex
	active        *segment
	olderSegments map[uint32]*segment
	options       Options
	cache         *blockCache
	closed        bool
}

// Open scans the directory for segment files and assembles a WAL: the
// highest id becomes the active segment with its cursor restored from the
// file length, every other id is retained read-only. An empty directory
// starts with segment id 1.
func Open(options Options) (*WAL, error) {
	if options.DirPath == "" {
		options.DirPath = DefaultOptions.DirPath
	}
	if options.SegmentSize <= 0 {
		options.SegmentSize = DefaultOptions.SegmentSize
	}
	if err := os.MkdirAll(options.DirPath, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create directory: %w", err)
	}

	var cache *blockCache
	if options.BlockCache > 0 {
		var err error
		cache, err = newBlockCache(options.BlockCache)
		if err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(options.DirPath)
	if err != nil {
		return nil, fmt.Errorf("wal: read directory: %w", err)
	}
	var ids []uint32
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), segmentFileSuffix) {
			continue
		}
		raw := strings.TrimSuffix(entry.Name(), segmentFileSuffix)
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("wal: parse segment file name %q: %w", entry.Name(), err)
		}
		ids = append(ids, uint32(id))
	}

	w := &WAL{
		olderSegments: make(map[uint32]*segment),
		options:       options,
		cache:         cache,
	}

	if len(ids) == 0 {
		seg, err := openSegment(options.DirPath, initialSegmentID, cache)
		if err != nil {
			return nil, err
		}
		w.active = seg
		return w, nil
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		seg, err := openSegment(options.DirPath, id, cache)
		if err != nil {
			w.closeSegments()
			return nil, err
		}
		if i == len(ids)-1 {
			w.active = seg
		} else {
			w.olderSegments[id] = seg
		}
	}
	return w, nil
}

// ActiveSegmentID returns the id of the segment currently accepting writes.
func (w *WAL) ActiveSegmentID() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active.id
}

// Write appends data as one record and returns its position. A record is
// never split across segment files: when it would push the active segment
// past the configured segment size, the log rotates first and the record
// lands wholly in the new segment.
func (w *WAL) Write(data []byte) (ChunkPosition, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ChunkPosition{}, ErrClosed
	}
	if w.isFull(int64(len(data))) {
		if err := w.rotate(); err != nil {
			return ChunkPosition{}, err
		}
	}
	return w.active.write(data)
}

// isFull reports whether appending delta more payload bytes would exceed
// the configured segment size. Callers hold w.mu.
func (w *WAL) isFull(delta int64) bool {
	return w.active.size()+delta+chunkHeaderSize > w.options.SegmentSize
}

// rotate flushes the active segment, displaces it into the older set and
// opens its successor with id+1. The flush happens here because Sync only
// covers the active segment; without it, bytes written just before a
// rotation would never fall under any durability barrier. Callers hold
// w.mu.
func (w *WAL) rotate() error {
	if err := w.active.sync(); err != nil {
		return err
	}
	seg, err := openSegment(w.options.DirPath, w.active.id+1, w.cache)
	if err != nil {
		return err
	}
	w.olderSegments[w.active.id] = w.active
	w.active = seg
	return nil
}

// Read reassembles the record stored at pos, routing to the active or an
// older segment by id. It returns ErrSegmentNotFound when the id matches
// neither, meaning the referenced segment was removed or the position is
// bogus.
func (w *WAL) Read(pos ChunkPosition) ([]byte, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	seg := w.active
	if pos.SegmentID != seg.id {
		seg = w.olderSegments[pos.SegmentID]
	}
	w.mu.Unlock()

	if seg == nil {
		return nil, ErrSegmentNotFound
	}
	return seg.read(pos.BlockNumber, pos.ChunkOffset)
}

// Sync flushes the active segment to stable storage. Older segments were
// flushed when they were displaced and need no further flushing.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.active.sync()
}

// Close closes every segment file. The log must not be used afterwards;
// reopen it with Open.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeSegments()
}

// Delete closes the log and removes every segment file from disk.
func (w *WAL) Delete() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	var firstErr error
	for _, seg := range w.olderSegments {
		if err := seg.remove(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := w.active.remove(); err != nil && firstErr == nil {
		firstErr = err
	}
	w.olderSegments = nil
	return firstErr
}

func (w *WAL) closeSegments() error {
	var firstErr error
	for _, seg := range w.olderSegments {
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if w.active != nil {
		if err := w.active.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
