package cryptoprim

import "hash/crc32"

// ieeeTable is the standard IEEE 802.3 CRC32 table
// (polynomial 0xEDB88320), the only variant the record log uses.
var ieeeTable = crc32.MakeTable(crc32.IEEE)

// CRC32 computes the IEEE CRC32 of data in one shot: initial
// 0xFFFFFFFF, final XOR 0xFFFFFFFF, matching the standard test vector
// CRC32("123456789") == 0xCBF43926.
func CRC32(data []byte) uint32 {
	return crc32.Checksum(data, ieeeTable)
}

// IncrementalCRC32 accumulates a CRC32 across chunks presented over
// multiple calls to Update, so splitting data at any offset yields the
// same checksum as a single CRC32 call over the whole buffer.
type IncrementalCRC32 struct {
	crc uint32
}

// NewIncrementalCRC32 returns a fresh incremental CRC32 accumulator.
func NewIncrementalCRC32() *IncrementalCRC32 {
	return &IncrementalCRC32{}
}

// Update folds chunk into the running checksum.
func (c *IncrementalCRC32) Update(chunk []byte) {
	c.crc = crc32.Update(c.crc, ieeeTable, chunk)
}

// Finalize returns the CRC32 of every chunk passed to Update so far.
func (c *IncrementalCRC32) Finalize() uint32 {
	return c.crc
}
