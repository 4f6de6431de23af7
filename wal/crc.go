package wal

import (
	"hash/crc32"
)

// Checksum computes the CRC-32 (ISO-HDLC polynomial) of data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// ValidChecksum reports whether data matches the provided checksum.
func ValidChecksum(data []byte, sum uint32) bool {
	return crc32.ChecksumIEEE(data) == sum
}
