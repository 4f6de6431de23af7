package wal

import "os"

// Options configures a write-ahead log directory.
type Options struct {
	// DirPath is the directory holding the segment files. It is created
	// if it does not exist.
	DirPath string

	// SegmentSize is the maximum size in bytes of one segment file. A
	// write that would push the active segment past this size forces a
	// rotation first; a single record is never split across segments.
	SegmentSize int64

	// BlockCache is the size in bytes of the read cache shared by every
	// segment of the log, rounded down to whole blocks. Zero disables
	// caching.
	BlockCache uint32
}

// DefaultOptions is a reasonable starting point: 1 GiB segments under the
// system temp directory, no block cache.
var DefaultOptions = Options{
	DirPath:     os.TempDir(),
	SegmentSize: 1 << 30,
	BlockCache:  0,
}
