package codec

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/meigma/hpk/internal/hpktype"
)

// lz4Block is the "LZ4 " codec: one raw LZ4 block per chunk, no framing.
type lz4Block struct {
	pool *sync.Pool
}

func init() {
	mustRegister(lz4Block{pool: &sync.Pool{New: func() any { return new(lz4.Compressor) }}})
}

func (lz4Block) Compression() hpktype.Compression { return hpktype.CompressionLz4Block }

func (c lz4Block) Encode(src []byte) ([]byte, error) {
	comp, _ := c.pool.Get().(*lz4.Compressor) //nolint:errcheck // pool only holds compressors
	if comp == nil {
		comp = new(lz4.Compressor)
	}
	defer c.pool.Put(comp)

	// A destination of CompressBlockBound always succeeds, even for
	// incompressible input.
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := comp.CompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return dst[:n], nil
}

func (lz4Block) Decode(src []byte, size int) ([]byte, error) {
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 uncompress: %w", err)
	}
	return dst[:n], nil
}

// lz4Frame is the "LZ4F" codec: one LZ4 frame per chunk.
type lz4Frame struct{}

func (lz4Frame) Compression() hpktype.Compression { return hpktype.CompressionLz4Frame }

func (lz4Frame) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("lz4 frame write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 frame close: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Frame) Decode(src []byte, size int) ([]byte, error) {
	return readExact(lz4.NewReader(bytes.NewReader(src)), size)
}
