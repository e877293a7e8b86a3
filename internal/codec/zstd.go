package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/hpk/internal/hpktype"
)

// maxDecoderMemory caps the zstd window a hostile chunk can request.
const maxDecoderMemory = 1 << 30

// zstdCodec is the "ZSTD" codec: one zstd frame per chunk.
//
// The encoder and decoder are created on first use and shared; EncodeAll and
// DecodeAll are safe for concurrent use.
type zstdCodec struct {
	encoder func() (*zstd.Encoder, error)
	decoder func() (*zstd.Decoder, error)
}

func init() {
	mustRegister(zstdCodec{
		encoder: sync.OnceValues(func() (*zstd.Encoder, error) {
			return zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true), zstd.WithZeroFrames(true))
		}),
		decoder: sync.OnceValues(func() (*zstd.Decoder, error) {
			return zstd.NewReader(nil,
				zstd.WithDecoderConcurrency(0),
				zstd.WithDecoderMaxMemory(maxDecoderMemory),
				zstd.WithDecodeAllCapLimit(true),
			)
		}),
	})
}

func (zstdCodec) Compression() hpktype.Compression { return hpktype.CompressionZstd }

func (c zstdCodec) Encode(src []byte) ([]byte, error) {
	enc, err := c.encoder()
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return enc.EncodeAll(src, nil), nil
}

func (c zstdCodec) Decode(src []byte, size int) ([]byte, error) {
	dec, err := c.decoder()
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	// The cap limit makes DecodeAll fail instead of growing past size.
	return dec.DecodeAll(src, make([]byte, 0, size))
}
