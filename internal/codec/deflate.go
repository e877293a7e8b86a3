package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/meigma/hpk/internal/hpktype"
)

// deflate is the "ZLIB" codec: a zlib stream per chunk, written at best
// compression like the engine tooling.
type deflate struct{}

func init() { mustRegister(deflate{}) }

func (deflate) Compression() hpktype.Compression { return hpktype.CompressionDeflate }

func (deflate) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("create zlib writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("zlib write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

func (deflate) Decode(src []byte, size int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("create zlib reader: %w", err)
	}
	defer r.Close()
	return readExact(r, size)
}

// LooksLikeZlib reports whether b opens with a zlib stream header: the
// deflate method in CMF and a header checksum divisible by 31.
func LooksLikeZlib(b []byte) bool {
	if len(b) < 2 || b[0]&0x0F != 8 {
		return false
	}
	return (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

// readExact reads up to size bytes from r and fails if r holds more. The
// buffer grows with the output, so size need not be trusted.
func readExact(r io.Reader, size int) ([]byte, error) {
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(r, int64(size)+1))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	if n > int64(size) {
		return nil, errors.New("output exceeds expected size")
	}
	return buf.Bytes(), nil
}
