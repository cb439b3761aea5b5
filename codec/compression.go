package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/exhibitid/model"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block compression of descriptor blobs.
type Compression uint8

const (
	// CompressionNone stores descriptors verbatim.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD block compression.
	CompressionZSTD Compression = 2
)

// String returns the configuration name of c.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses a configuration name.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("codec: unknown compression %q", s)
	}
}

// ErrCorruptBlock is returned for blocks whose header does not match the payload.
var ErrCorruptBlock = errors.New("codec: corrupt block")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Block layout: [kind uint8][uncompressed uint32][payload...].
// The kind is the compression actually applied, which may be
// CompressionNone when compressing did not pay off.
const blockHeaderSize = 5

// Compress wraps data in a block compressed with c.
func Compress(data []byte, c Compression) ([]byte, error) {
	var payload []byte
	kind := c

	switch c {
	case CompressionNone:
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		payload = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		payload = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("codec: unknown compression %d", c)
	}

	// Incompressible input (lz4 reports n == 0) or a poor ratio is stored raw.
	if kind != CompressionNone && (len(payload) == 0 || float64(len(payload)) > float64(len(data))*0.9) {
		kind = CompressionNone
	}
	if kind == CompressionNone {
		payload = data
	}

	out := make([]byte, blockHeaderSize+len(payload))
	out[0] = byte(kind)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	copy(out[blockHeaderSize:], payload)
	return out, nil
}

// Decompress returns the data held in a block produced by Compress.
func Decompress(block []byte) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is too small for header", ErrCorruptBlock, len(block))
	}

	kind := Compression(block[0])
	size := binary.LittleEndian.Uint32(block[1:])
	payload := block[blockHeaderSize:]

	switch kind {
	case CompressionNone:
		if uint32(len(payload)) != size {
			return nil, fmt.Errorf("%w: raw size %d, header says %d", ErrCorruptBlock, len(payload), size)
		}
		return payload, nil

	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptBlock, err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptBlock)
		}
		return out, nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptBlock, err)
		}
		if uint32(len(out)) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptBlock)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrCorruptBlock, kind)
	}
}

// CompressDescriptors flattens and compresses descriptors into a stored blob.
func CompressDescriptors(descs []model.Descriptor, c Compression) ([]byte, error) {
	return Compress(model.EncodeDescriptors(descs), c)
}

// DecompressDescriptors reverses CompressDescriptors. A corrupt block or a
// payload that does not hold whole descriptors wraps
// model.ErrMalformedDescriptors.
func DecompressDescriptors(blob []byte) ([]model.Descriptor, error) {
	raw, err := Decompress(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrMalformedDescriptors, err)
	}
	return model.DecodeDescriptors(raw)
}
