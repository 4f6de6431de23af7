package wal

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// blockCache holds recently read full blocks, shared across every segment
// of one log. Keys pack the segment id and block number into a uint64.
// Only complete 32 KiB blocks are cached; the partial tail block of the
// active segment always comes from disk, and appends into a cached block
// evict it.
type blockCache struct {
	c *lru.Cache[uint64, []byte]
}

func newBlockCache(sizeBytes uint32) (*blockCache, error) {
	entries := int(sizeBytes / blockSize)
	if entries <= 0 {
		entries = 1
	}
	c, err := lru.New[uint64, []byte](entries)
	if err != nil {
		return nil, err
	}
	return &blockCache{c: c}, nil
}

func cacheKey(segmentID, blockNumber uint32) uint64 {
	return uint64(segmentID)<<32 | uint64(blockNumber)
}

func (bc *blockCache) get(segmentID, blockNumber uint32) ([]byte, bool) {
	return bc.c.Get(cacheKey(segmentID, blockNumber))
}

func (bc *blockCache) put(segmentID, blockNumber uint32, block []byte) {
	bc.c.Add(cacheKey(segmentID, blockNumber), block)
}

func (bc *blockCache) invalidate(segmentID, blockNumber uint32) {
	bc.c.Remove(cacheKey(segmentID, blockNumber))
}
