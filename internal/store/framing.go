package store

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Stored values carry a one-byte encoding tag.
const (
	encodingIdentity byte = 'i'
	encodingZstd     byte = 'z'
)

// compressionThreshold is the minimum value size before zstd is tried.
const compressionThreshold = 2048

var errBadFrame = errors.New("stored value has unknown encoding")

// codec compresses values written to bbolt. EncodeAll/DecodeAll are safe for
// concurrent use.
type codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &codec{encoder: enc, decoder: dec}, nil
}

func (c *codec) encode(value string) []byte {
	raw := []byte(value)
	if len(raw) >= compressionThreshold {
		compressed := c.encoder.EncodeAll(raw, make([]byte, 1, len(raw)/2))
		if len(compressed)-1 < len(raw) {
			compressed[0] = encodingZstd
			return compressed
		}
	}
	framed := make([]byte, 0, len(raw)+1)
	framed = append(framed, encodingIdentity)
	return append(framed, raw...)
}

func (c *codec) decode(framed []byte) (string, error) {
	if len(framed) == 0 {
		return "", errBadFrame
	}
	switch framed[0] {
	case encodingIdentity:
		return string(framed[1:]), nil
	case encodingZstd:
		raw, err := c.decoder.DecodeAll(framed[1:], nil)
		if err != nil {
			return "", fmt.Errorf("decompressing value: %w", err)
		}
		return string(raw), nil
	default:
		return "", errBadFrame
	}
}

func (c *codec) close() {
	c.encoder.Close()
	c.decoder.Close()
}
