package layout

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/hpk/internal/hpktype"
	"github.com/meigma/hpk/internal/sizing"
)

// readAt reads exactly n bytes at off. A source that ends early is reported
// as ErrOutOfBounds; any other failure as ErrIO.
func readAt(src io.ReaderAt, off uint64, n int) ([]byte, error) {
	o, err := sizing.ToInt64(off)
	if err != nil {
		return nil, fmt.Errorf("%w: offset %d", hpktype.ErrOutOfBounds, off)
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	got, err := src.ReadAt(buf, o)
	if got == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: read %d bytes at %d, got %d", hpktype.ErrOutOfBounds, n, off, got)
	}
	return nil, fmt.Errorf("%w: read at %d: %w", hpktype.ErrIO, off, err)
}

// extentReader reads a payload split across several extents as one
// contiguous range starting at offset 0.
type extentReader struct {
	src     io.ReaderAt
	extents []hpktype.Extent
}

func (r *extentReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	pos := uint64(off)
	n := 0
	for _, e := range r.extents {
		if len(p) == 0 {
			break
		}
		if pos >= e.Length {
			pos -= e.Length
			continue
		}
		chunk := p[:min(uint64(len(p)), e.Length-pos)]
		start, err := sizing.ToInt64(e.Offset + pos)
		if err != nil {
			return n, err
		}
		m, err := r.src.ReadAt(chunk, start)
		n += m
		if m < len(chunk) {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return n, err
		}
		p = p[m:]
		pos = 0
	}
	if len(p) > 0 {
		return n, io.EOF
	}
	return n, nil
}

// entrySource returns where f's stored bytes can be read and the offset at
// which they start.
func entrySource(src io.ReaderAt, f *hpktype.File) (io.ReaderAt, uint64) {
	if len(f.Extents) > 1 {
		return &extentReader{src: src, extents: f.Extents}, 0
	}
	return src, f.Offset
}

// countingWriter tracks how many bytes reached the underlying writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if err != nil {
		return n, fmt.Errorf("%w: %w", hpktype.ErrIO, err)
	}
	return n, nil
}

// EntryError names the entry an encode or decode failure belongs to.
type EntryError struct {
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *EntryError) Unwrap() error { return e.Err }
