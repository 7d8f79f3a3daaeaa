package recordlog

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionKind identifies the codec used to compress a record's
// stored payload.
type CompressionKind byte

const (
	CompressionNone CompressionKind = 0
	CompressionLz4  CompressionKind = 1
	CompressionZstd CompressionKind = 2
)

func (k CompressionKind) String() string {
	switch k {
	case CompressionNone:
		return "none"
	case CompressionLz4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", byte(k))
	}
}

// Codec compresses and decompresses record payloads for one
// CompressionKind.
type Codec interface {
	Kind() CompressionKind
	Compress(plain []byte) ([]byte, error)
	Decompress(compressed []byte) ([]byte, error)
}

// CodecRegistry maps CompressionKind to the Codec that handles it.
// Unknown kinds encountered while reading are rejected, matching spec
// §4.2's "unknown kinds are rejected on read".
type CodecRegistry struct {
	codecs map[CompressionKind]Codec
}

// NewCodecRegistry returns a registry pre-populated with the Lz4 and
// Zstd codecs; CompressionNone never needs a registered codec.
func NewCodecRegistry() *CodecRegistry {
	r := &CodecRegistry{codecs: make(map[CompressionKind]Codec)}
	r.Register(lz4Codec{})
	r.Register(zstdCodec{})
	return r
}

// Register adds or replaces the codec for its own Kind().
func (r *CodecRegistry) Register(c Codec) {
	r.codecs[c.Kind()] = c
}

// Get returns the codec registered for kind, suitable for passing to
// AppendBatch as the active write-time codec.
func (r *CodecRegistry) Get(kind CompressionKind) (Codec, bool) {
	if kind == CompressionNone {
		return nil, true
	}
	return r.lookup(kind)
}

func (r *CodecRegistry) lookup(kind CompressionKind) (Codec, bool) {
	c, ok := r.codecs[kind]
	return c, ok
}

// lz4Codec is a size-prefixed LZ4 block codec: the original length is
// stored first so Decompress can size its output buffer exactly.
type lz4Codec struct{}

func (lz4Codec) Kind() CompressionKind { return CompressionLz4 }

func (lz4Codec) Compress(plain []byte) ([]byte, error) {
	buf := make([]byte, 4+lz4.CompressBlockBound(len(plain)))
	putUint32(buf, uint32(len(plain)))
	var c lz4.Compressor
	n, err := c.CompressBlock(plain, buf[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}
	if n == 0 && len(plain) > 0 {
		// Incompressible input: lz4 reports n==0 rather than expanding it.
		return nil, fmt.Errorf("%w: incompressible", ErrCompressionFailed)
	}
	return buf[:4+n], nil
}

func (lz4Codec) Decompress(compressed []byte) ([]byte, error) {
	if len(compressed) < 4 {
		return nil, fmt.Errorf("%w: lz4 frame too short", ErrDecompressionFailed)
	}
	originalLen := getUint32(compressed)
	out := make([]byte, originalLen)
	n, err := lz4.UncompressBlock(compressed[4:], out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
	}
	return out[:n], nil
}

// zstdCodec wraps klauspost/compress/zstd at level 3.
type zstdCodec struct{}

func (zstdCodec) Kind() CompressionKind { return CompressionZstd }

func (zstdCodec) Compress(plain []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}
	defer enc.Close()
	return enc.EncodeAll(plain, nil), nil
}

func (zstdCodec) Decompress(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
	}
	defer dec.Close()
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
	}
	return out, nil
}

func putUint32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func getUint32(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}
