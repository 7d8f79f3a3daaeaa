// Package recordlog implements the per-stream, append-only, hash-chained
// record log: framed records with CRC32
// integrity, a companion offset index, pluggable compression, and a
// two-stage append pipeline whose semantics match a single-threaded
// writer.
package recordlog

import (
	"encoding/binary"
	"fmt"

	"kimberlite/internal/cryptoprim"
	"kimberlite/internal/ids"
)

// Kind identifies the semantic role of a record.
type Kind byte

const (
	KindData       Kind = 1
	KindCheckpoint Kind = 2
	KindTombstone  Kind = 3
)

func (k Kind) valid() bool {
	switch k {
	case KindData, KindCheckpoint, KindTombstone:
		return true
	default:
		return false
	}
}

// headerSize is the fixed on-disk header: offset(8) + prev_hash(32) +
// kind(1) + compression(1) + length(4) = 46 bytes.
const headerSize = 8 + 32 + 1 + 1 + 4

// frameOverhead is the total per-record overhead: the header plus the
// trailing CRC32.
const frameOverhead = headerSize + 4

// Record is one framed log entry, fully decoded.
type Record struct {
	Offset      ids.Offset
	PrevHash    cryptoprim.Hash32
	Kind        Kind
	Compression CompressionKind
	Payload     []byte // always the uncompressed payload once decoded
}

// Hash returns this record's own chain link, computed over its kind and
// uncompressed payload, chained from PrevHash.
func (r Record) Hash() cryptoprim.Hash32 {
	var prev *cryptoprim.Hash32
	if !r.PrevHash.IsZero() {
		p := r.PrevHash
		prev = &p
	}
	return cryptoprim.ChainHash(prev, byte(r.Kind), r.Payload)
}

// encode serializes r to its on-disk frame, compressing the payload
// with codec if provided and beneficial.
func encode(r Record, codec Codec) ([]byte, error) {
	if !r.Kind.valid() {
		return nil, fmt.Errorf("recordlog: invalid record kind %d", r.Kind)
	}

	compression := CompressionNone
	stored := r.Payload
	if codec != nil && codec.Kind() != CompressionNone && len(r.Payload) > 0 {
		compressed, err := codec.Compress(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("recordlog: compress: %w", err)
		}
		// Compression is advisory: if it didn't help, store the
		// original and record compression=None on this record.
		if len(compressed) < len(r.Payload) {
			stored = compressed
			compression = codec.Kind()
		}
	}

	buf := make([]byte, headerSize+len(stored)+4)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.Offset))
	copy(buf[8:40], r.PrevHash[:])
	buf[40] = byte(r.Kind)
	buf[41] = byte(compression)
	binary.LittleEndian.PutUint32(buf[42:46], uint32(len(stored)))
	copy(buf[46:46+len(stored)], stored)

	crc := cryptoprim.CRC32(buf[:46+len(stored)])
	binary.LittleEndian.PutUint32(buf[46+len(stored):], crc)
	return buf, nil
}

// decodedFrame is an intermediate result of parsing one frame out of a
// byte buffer, before payload decompression.
type decodedFrame struct {
	record    Record
	totalSize int
}

// decodeFrame parses one frame starting at buf[0], returning the
// decoded record (payload still possibly compressed) and the number of
// bytes the frame occupied. ErrUnexpectedEOF is returned if buf is too
// short to contain a full frame.
func decodeFrame(buf []byte, registry *CodecRegistry) (decodedFrame, error) {
	if len(buf) < headerSize {
		return decodedFrame{}, ErrUnexpectedEOF
	}
	offset := ids.Offset(binary.LittleEndian.Uint64(buf[0:8]))
	var prevHash cryptoprim.Hash32
	copy(prevHash[:], buf[8:40])
	kind := Kind(buf[40])
	compression := CompressionKind(buf[41])
	length := binary.LittleEndian.Uint32(buf[42:46])

	total := headerSize + int(length) + 4
	if len(buf) < total {
		return decodedFrame{}, ErrUnexpectedEOF
	}
	if !kind.valid() {
		return decodedFrame{}, fmt.Errorf("%w: kind=%d", ErrInvalidRecordKind, kind)
	}

	stored := buf[46 : 46+length]
	wantCRC := binary.LittleEndian.Uint32(buf[46+length : total])
	gotCRC := cryptoprim.CRC32(buf[:46+length])
	if wantCRC != gotCRC {
		return decodedFrame{}, fmt.Errorf("%w: offset %d", ErrCorruptedRecord, offset)
	}

	payload := stored
	if compression != CompressionNone {
		codec, ok := registry.lookup(compression)
		if !ok {
			return decodedFrame{}, fmt.Errorf("%w: %d", ErrInvalidCompressionKind, compression)
		}
		decompressed, err := codec.Decompress(stored)
		if err != nil {
			return decodedFrame{}, fmt.Errorf("%w: %s: %v", ErrDecompressionFailed, codec.Kind(), err)
		}
		payload = decompressed
	}

	return decodedFrame{
		record: Record{
			Offset:      offset,
			PrevHash:    prevHash,
			Kind:        kind,
			Compression: compression,
			Payload:     payload,
		},
		totalSize: total,
	}, nil
}
