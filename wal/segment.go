package wal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const segmentFileSuffix = ".seg"

// segment owns one on-disk log file: a run of 32 KiB blocks filled with
// chunks. The write cursor tracks the current block number and how many
// bytes of that block are used.
type segment struct {
	id   uint32
	path string

	mu   sync.RWMutex
	file *os.File

	currentBlockNumber uint32
	currentBlockSize   int64

	cache *blockCache

	// broken is set when a write violated the block invariant; every
	// later write fails with ErrBlockOverflow.
	broken bool
	closed bool
}

// segmentFileName builds the fixed 9-digit zero-padded file name for id.
func segmentFileName(dir string, id uint32) string {
	return filepath.Join(dir, fmt.Sprintf("%09d%s", id, segmentFileSuffix))
}

// openSegment opens (or creates) the segment file for id and restores the
// write cursor from the file length.
func openSegment(dir string, id uint32, cache *blockCache) (*segment, error) {
	path := segmentFileName(dir, id)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open segment file %q: %w", path, err)
	}
	// O_CREATE honors the umask; the on-disk mode must not.
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("wal: chmod segment file %q: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("wal: stat segment file %q: %w", path, err)
	}
	return &segment{
		id:                 id,
		path:               path,
		file:               f,
		currentBlockNumber: uint32(st.Size() / blockSize),
		currentBlockSize:   st.Size() % blockSize,
		cache:              cache,
	}, nil
}

// size is the number of bytes written so far, padding included.
func (s *segment) size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(s.currentBlockNumber)*blockSize + s.currentBlockSize
}

// write appends data as one record and returns the position of its first
// chunk. The write is buffered by the OS only; call sync for durability.
func (s *segment) write(data []byte) (ChunkPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ChunkPosition{}, ErrClosed
	}
	if s.broken {
		return ChunkPosition{}, ErrBlockOverflow
	}

	// Not enough room left for even a chunk header: zero-pad to the block
	// boundary and start the next block.
	if s.currentBlockSize+chunkHeaderSize >= blockSize {
		if s.currentBlockSize < blockSize {
			padding := make([]byte, blockSize-s.currentBlockSize)
			if _, err := s.file.Write(padding); err != nil {
				return ChunkPosition{}, fmt.Errorf("wal: pad block: %w", err)
			}
		}
		s.currentBlockNumber++
		s.currentBlockSize = 0
	}

	pos := ChunkPosition{
		SegmentID:   s.id,
		BlockNumber: s.currentBlockNumber,
		ChunkOffset: s.currentBlockSize,
	}

	// The whole record and its header fit in the current block.
	if s.currentBlockSize+int64(len(data))+chunkHeaderSize <= blockSize {
		if err := s.writeChunk(data, ChunkTypeFull); err != nil {
			return ChunkPosition{}, err
		}
		return pos, nil
	}

	// Split across blocks: First, zero or more Middle, then Last. Every
	// chunk but the last fills its block exactly.
	left := len(data)
	for left > 0 {
		room := int(blockSize - s.currentBlockSize - chunkHeaderSize)
		if room > left {
			room = left
		}
		start := len(data) - left
		chunk := data[start : start+room]

		var typ ChunkType
		switch {
		case left == len(data):
			typ = ChunkTypeFirst
		case left == room:
			typ = ChunkTypeLast
		default:
			typ = ChunkTypeMiddle
		}
		if err := s.writeChunk(chunk, typ); err != nil {
			return ChunkPosition{}, err
		}
		left -= room
	}
	return pos, nil
}

// writeChunk encodes and appends a single chunk, then advances the cursor.
// Callers hold s.mu.
func (s *segment) writeChunk(data []byte, typ ChunkType) error {
	buf := appendChunk(make([]byte, 0, chunkHeaderSize+len(data)), data, typ)
	if _, err := s.file.Write(buf); err != nil {
		return fmt.Errorf("wal: write chunk: %w", err)
	}
	if s.cache != nil {
		s.cache.invalidate(s.id, s.currentBlockNumber)
	}
	s.currentBlockSize += int64(len(buf))
	if s.currentBlockSize > blockSize {
		// The cursor arithmetic is no longer valid; poison the segment
		// instead of corrupting the next block.
		s.broken = true
		return ErrBlockOverflow
	}
	if s.currentBlockSize == blockSize {
		s.currentBlockNumber++
		s.currentBlockSize = 0
	}
	return nil
}

// read reassembles the record whose first chunk lives at the given block
// and offset, verifying every chunk checksum along the way.
func (s *segment) read(blockNumber uint32, chunkOffset int64) ([]byte, error) {
	data, _, err := s.readAt(blockNumber, chunkOffset)
	return data, err
}

// readAt is read plus the cursor just past the record's final chunk, which
// the log Reader uses to walk a segment in order.
func (s *segment) readAt(blockNumber uint32, chunkOffset int64) ([]byte, ChunkPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ChunkPosition{}, ErrClosed
	}

	st, err := s.file.Stat()
	if err != nil {
		return nil, ChunkPosition{}, fmt.Errorf("wal: stat segment file: %w", err)
	}
	segSize := st.Size()

	var result []byte
	for {
		if chunkOffset < 0 || chunkOffset+chunkHeaderSize >= blockSize {
			return nil, ChunkPosition{}, ErrOutOfRange
		}
		blockStart := int64(blockNumber) * blockSize
		if blockStart >= segSize || chunkOffset >= segSize-blockStart {
			return nil, ChunkPosition{}, ErrOutOfRange
		}
		block, err := s.readBlock(blockNumber, blockStart, segSize)
		if err != nil {
			return nil, ChunkPosition{}, err
		}

		if chunkOffset+chunkHeaderSize > int64(len(block)) {
			// A header never straddles the end of a block; this is
			// the tail of a torn write.
			return nil, ChunkPosition{}, ErrCorrupted
		}
		header := block[chunkOffset : chunkOffset+chunkHeaderSize]
		sum, length, typ := parseChunkHeader(header)

		start := chunkOffset + chunkHeaderSize
		end := start + int64(length)
		if end > int64(len(block)) {
			return nil, ChunkPosition{}, ErrCorrupted
		}
		if !ValidChecksum(block[chunkOffset+4:end], sum) {
			return nil, ChunkPosition{}, ErrCorrupted
		}
		result = append(result, block[start:end]...)

		if typ == ChunkTypeFull || typ == ChunkTypeLast {
			next := ChunkPosition{
				SegmentID:   s.id,
				BlockNumber: blockNumber,
				ChunkOffset: end,
			}
			if next.ChunkOffset+chunkHeaderSize >= blockSize {
				next.BlockNumber++
				next.ChunkOffset = 0
			}
			return result, next, nil
		}
		blockNumber++
		chunkOffset = 0
	}
}

// readBlock fetches one block, from the cache when possible. Only complete
// blocks are cached.
func (s *segment) readBlock(blockNumber uint32, blockStart, segSize int64) ([]byte, error) {
	if s.cache != nil {
		if block, ok := s.cache.get(s.id, blockNumber); ok {
			return block, nil
		}
	}
	size := int64(blockSize)
	if blockStart+size > segSize {
		size = segSize - blockStart
	}
	block := make([]byte, size)
	if _, err := s.file.ReadAt(block, blockStart); err != nil && err != io.EOF {
		return nil, fmt.Errorf("wal: read block %d: %w", blockNumber, err)
	}
	if s.cache != nil && size == blockSize {
		s.cache.put(s.id, blockNumber, block)
	}
	return block, nil
}

// sync flushes the file to stable storage.
func (s *segment) sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync segment %d: %w", s.id, err)
	}
	return nil
}

// remove closes the segment and deletes its file. Positions into the
// segment are meaningless afterwards.
func (s *segment) remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		_ = s.file.Close()
	}
	if err := os.Remove(s.path); err != nil {
		return fmt.Errorf("wal: remove segment %d: %w", s.id, err)
	}
	return nil
}

func (s *segment) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
