package recordlog

import (
	"context"
	"encoding/binary"
	"fmt"

	"kimberlite/internal/ids"
	"kimberlite/internal/ioengine"
)

// indexEntrySize is the size of one packed (offset:u64, byte_pos:u64)
// pair in the offset index file.
const indexEntrySize = 16

// offsetIndex is an in-memory, append-only mirror of the on-disk
// offset index: offset -> byte position of that record's frame in the
// data file. It is rebuilt from the log whenever the index file is
// missing or shorter than expected.
type offsetIndex struct {
	handle    ioengine.Handle
	positions []int64 // positions[i] is the byte offset of record i
}

func openOffsetIndex(ctx context.Context, backend ioengine.Backend, path string) (*offsetIndex, error) {
	h, err := backend.Open(ctx, path, ioengine.OpenReadWrite)
	if err != nil {
		return nil, fmt.Errorf("recordlog: open index %s: %w", path, err)
	}
	idx := &offsetIndex{handle: h}
	if err := idx.load(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *offsetIndex) load(ctx context.Context) error {
	size, err := idx.handle.Size()
	if err != nil {
		return fmt.Errorf("recordlog: stat index: %w", err)
	}
	n := size / indexEntrySize
	buf := make([]byte, size)
	if n > 0 {
		if _, err := idx.handle.ReadAt(ctx, 0, buf); err != nil {
			return fmt.Errorf("recordlog: read index: %w", err)
		}
	}
	idx.positions = idx.positions[:0]
	for i := int64(0); i < n; i++ {
		entry := buf[i*indexEntrySize : (i+1)*indexEntrySize]
		offset := ids.Offset(binary.LittleEndian.Uint64(entry[0:8]))
		pos := int64(binary.LittleEndian.Uint64(entry[8:16]))
		if uint64(offset) != uint64(i) {
			// A corrupt or truncated index is rebuilt by the caller from
			// the data file rather than trusted here.
			idx.positions = idx.positions[:0]
			return nil
		}
		idx.positions = append(idx.positions, pos)
	}
	return nil
}

// append records the byte position of the record at the next offset.
func (idx *offsetIndex) append(ctx context.Context, bytePos int64) error {
	entry := make([]byte, indexEntrySize)
	binary.LittleEndian.PutUint64(entry[0:8], uint64(len(idx.positions)))
	binary.LittleEndian.PutUint64(entry[8:16], uint64(bytePos))
	if _, err := idx.handle.Write(ctx, entry); err != nil {
		return fmt.Errorf("recordlog: append index entry: %w", err)
	}
	idx.positions = append(idx.positions, bytePos)
	return nil
}

func (idx *offsetIndex) fsync(ctx context.Context) error {
	return idx.handle.Fsync(ctx)
}

// truncate drops every index entry at or beyond offset o, used by
// recovery when the data file is truncated at a corrupted record.
func (idx *offsetIndex) truncate(o ids.Offset) {
	if uint64(o) < uint64(len(idx.positions)) {
		idx.positions = idx.positions[:o]
	}
}

func (idx *offsetIndex) len() int {
	return len(idx.positions)
}

func (idx *offsetIndex) positionOf(o ids.Offset) (int64, bool) {
	if uint64(o) >= uint64(len(idx.positions)) {
		return 0, false
	}
	return idx.positions[o], true
}
