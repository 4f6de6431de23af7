package wal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"testing"
)

func TestSegment_WriteReadFull(t *testing.T) {
	dir := t.TempDir()
	seg, err := openSegment(dir, 1, nil)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	defer seg.close()

	data := bytes.Repeat([]byte("A"), 2028)
	pos, err := seg.write(data)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if pos.SegmentID != 1 || pos.BlockNumber != 0 || pos.ChunkOffset != 0 {
		t.Fatalf("unexpected position: %+v", pos)
	}

	got, err := seg.read(pos.BlockNumber, pos.ChunkOffset)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
	}

	// A single full chunk: header + payload.
	if want := int64(chunkHeaderSize + len(data)); seg.size() != want {
		t.Fatalf("size = %d, want %d", seg.size(), want)
	}
}

func TestSegment_WriteReadMultiChunk(t *testing.T) {
	dir := t.TempDir()
	seg, err := openSegment(dir, 1, nil)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	defer seg.close()

	data := bytes.Repeat([]byte("B"), 45*1024)
	pos, err := seg.write(data)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := seg.read(pos.BlockNumber, pos.ChunkOffset)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
	}

	// Walk the raw chunks: exactly one First, then Middles, then one Last.
	types := rawChunkTypes(t, seg.path)
	if len(types) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(types))
	}
	if types[0] != ChunkTypeFirst {
		t.Fatalf("first chunk type = %d, want First", types[0])
	}
	if types[len(types)-1] != ChunkTypeLast {
		t.Fatalf("last chunk type = %d, want Last", types[len(types)-1])
	}
	for i, typ := range types[1 : len(types)-1] {
		if typ != ChunkTypeMiddle {
			t.Fatalf("chunk %d type = %d, want Middle", i+1, typ)
		}
	}
}

func TestSegment_PaddingAtBlockBoundary(t *testing.T) {
	dir := t.TempDir()
	seg, err := openSegment(dir, 1, nil)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	defer seg.close()

	// Leave 3 bytes in block 0: too small for a header.
	first := bytes.Repeat([]byte("C"), blockSize-chunkHeaderSize-3)
	if _, err := seg.write(first); err != nil {
		t.Fatalf("write first: %v", err)
	}
	second := []byte("after the gap")
	pos, err := seg.write(second)
	if err != nil {
		t.Fatalf("write second: %v", err)
	}
	if pos.BlockNumber != 1 || pos.ChunkOffset != 0 {
		t.Fatalf("second record position = %+v, want block 1 offset 0", pos)
	}

	raw, err := os.ReadFile(seg.path)
	if err != nil {
		t.Fatal(err)
	}
	for i := blockSize - 3; i < blockSize; i++ {
		if raw[i] != 0 {
			t.Fatalf("padding byte %d = %#x, want 0", i, raw[i])
		}
	}

	got, err := seg.read(pos.BlockNumber, pos.ChunkOffset)
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Fatalf("second record mismatch: %q", got)
	}
}

func TestSegment_CorruptionDetected(t *testing.T) {
	dir := t.TempDir()
	seg, err := openSegment(dir, 1, nil)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}

	data := []byte("payload that must stay intact")
	pos, err := seg.write(data)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := seg.close(); err != nil {
		t.Fatal(err)
	}

	// Flip one payload bit.
	f, err := os.OpenFile(seg.path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte{'X'}, chunkHeaderSize+3); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	seg, err = openSegment(dir, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer seg.close()
	if _, err := seg.read(pos.BlockNumber, pos.ChunkOffset); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("read after payload flip: err = %v, want ErrCorrupted", err)
	}
}

func TestSegment_CorruptLengthField(t *testing.T) {
	dir := t.TempDir()
	seg, err := openSegment(dir, 1, nil)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}

	pos, err := seg.write([]byte("short"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := seg.close(); err != nil {
		t.Fatal(err)
	}

	// Overwrite the 2-byte length field with a bigger value.
	f, err := os.OpenFile(seg.path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	var length [2]byte
	binary.LittleEndian.PutUint16(length[:], 5000)
	if _, err := f.WriteAt(length[:], 4); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	seg, err = openSegment(dir, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer seg.close()
	if _, err := seg.read(pos.BlockNumber, pos.ChunkOffset); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("read after length flip: err = %v, want ErrCorrupted", err)
	}
}

func TestSegment_ReadOutOfRange(t *testing.T) {
	dir := t.TempDir()
	seg, err := openSegment(dir, 1, nil)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	defer seg.close()

	if _, err := seg.write([]byte("only record")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := seg.read(7, 0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("read past end: err = %v, want ErrOutOfRange", err)
	}
	if _, err := seg.read(0, blockSize*2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("read bad offset: err = %v, want ErrOutOfRange", err)
	}
}

func TestSegment_CursorRestoredFromLength(t *testing.T) {
	dir := t.TempDir()
	seg, err := openSegment(dir, 1, nil)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	if _, err := seg.write(bytes.Repeat([]byte("D"), 40*1024)); err != nil {
		t.Fatalf("write: %v", err)
	}
	size := seg.size()
	if err := seg.close(); err != nil {
		t.Fatal(err)
	}

	seg, err = openSegment(dir, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer seg.close()
	if seg.size() != size {
		t.Fatalf("size after reopen = %d, want %d", seg.size(), size)
	}
	if want := uint32(size / blockSize); seg.currentBlockNumber != want {
		t.Fatalf("block number after reopen = %d, want %d", seg.currentBlockNumber, want)
	}
	if want := size % blockSize; seg.currentBlockSize != want {
		t.Fatalf("block size after reopen = %d, want %d", seg.currentBlockSize, want)
	}
}

func TestSegment_Remove(t *testing.T) {
	dir := t.TempDir()
	seg, err := openSegment(dir, 3, nil)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	if _, err := seg.write([]byte("doomed")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := seg.remove(); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(seg.path); !os.IsNotExist(err) {
		t.Fatalf("segment file still present: %v", err)
	}
}

func TestChunkPosition_EncodeDecode(t *testing.T) {
	want := ChunkPosition{SegmentID: 42, BlockNumber: 1039, ChunkOffset: 31999}
	got, err := DecodeChunkPosition(want.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}

	if _, err := DecodeChunkPosition(nil); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("decode empty: err = %v, want ErrInvalidPosition", err)
	}
}

// rawChunkTypes walks the chunk headers of a segment file in block order.
func rawChunkTypes(t *testing.T, path string) []ChunkType {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var types []ChunkType
	var block, offset int
	for {
		start := block*blockSize + offset
		if offset+chunkHeaderSize >= blockSize || start+chunkHeaderSize > len(raw) {
			block++
			offset = 0
			if block*blockSize >= len(raw) {
				return types
			}
			continue
		}
		_, length, typ := parseChunkHeader(raw[start : start+chunkHeaderSize])
		if length == 0 && typ == ChunkTypeFull && raw[start] == 0 {
			// Trailing zeros, no more chunks.
			return types
		}
		types = append(types, typ)
		offset += chunkHeaderSize + int(length)
	}
}
