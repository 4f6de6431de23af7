// Package wal implements a segmented, block-chunked write-ahead log.
// Records are sliced into checksummed chunks aligned to 32 KiB blocks and
// appended to numbered segment files; the returned ChunkPosition addresses
// the first chunk of a record and is enough to reassemble it later, even
// when the record spans several blocks.
package wal
