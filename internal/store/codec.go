package store

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/chronicle/internal/payload"
)

// Compression selects how object payloads are stored.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// Persisted values of objects.encoding.
const (
	encodingJSON = 0
	encodingZstd = 1
)

// ParseCompression validates a configured compression name.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unknown compression %q: must be none or zstd", s)
	}
}

// objectCodec encodes canonical payload bytes for storage. Reads accept every
// encoding regardless of the configured write compression.
type objectCodec struct {
	compression Compression
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
}

func newObjectCodec(c Compression) (*objectCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &objectCodec{compression: c, encoder: enc, decoder: dec}, nil
}

func (c *objectCodec) encode(canonical []byte) (int, []byte) {
	if c.compression == CompressionZstd {
		return encodingZstd, c.encoder.EncodeAll(canonical, nil)
	}
	return encodingJSON, canonical
}

func (c *objectCodec) decode(encoding int, data []byte) (payload.Value, error) {
	switch encoding {
	case encodingJSON:
	case encodingZstd:
		raw, err := c.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress object: %w", err)
		}
		data = raw
	default:
		return nil, fmt.Errorf("unknown object encoding %d", encoding)
	}
	return payload.Parse(data)
}

func (c *objectCodec) close() {
	c.encoder.Close()
	c.decoder.Close()
}
