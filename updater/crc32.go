// Package updater implements the Dual-Bank Updater (C5): metadata
// double-buffering, bank validation, boot-count tracking, staged
// write+swap, and rollback on repeated failure.
package updater

import "hash/crc32"

// crcTable is locked to the reflected polynomial 0xEDB88320 with init
// and final XOR 0xFFFFFFFF: the updater and the bootloader must agree
// on exactly this variant. That is precisely stdlib's crc32.IEEE table.
var crcTable = crc32.MakeTable(crc32.IEEE)

// CRC32 computes the locked CRC32 variant over data.
func CRC32(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// StreamingCRC32 accumulates a CRC32 across WriteChunk calls without
// holding the whole image in memory.
type StreamingCRC32 struct {
	crc uint32
}

func NewStreamingCRC32() *StreamingCRC32 { return &StreamingCRC32{} }

// Absorb folds logical (non-padding) bytes into the running CRC.
func (s *StreamingCRC32) Absorb(data []byte) {
	s.crc = crc32.Update(s.crc, crcTable, data)
}

func (s *StreamingCRC32) Sum() uint32 { return s.crc }
