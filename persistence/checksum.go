package persistence

import (
	"fmt"
	"hash/crc32"
)

// CRC32 (IEEE) guards each section against storage corruption. It is
// not tamper protection.

var crcTable = crc32.MakeTable(crc32.IEEE)

func checksum(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// ChecksumMismatchError is returned when section verification fails.
type ChecksumMismatchError struct {
	Section  SectionType
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("section %d checksum mismatch: expected 0x%08x, got 0x%08x", e.Section, e.Expected, e.Actual)
}
