// Package testutil holds helpers shared by the hpk test suites.
package testutil

import (
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/meigma/hpk/internal/hpktype"
)

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data []byte
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}

// WriteSeekBuffer is an in-memory io.WriteSeeker.
type WriteSeekBuffer struct {
	buf []byte
	pos int
}

// Write implements io.Writer, growing the buffer as needed.
func (b *WriteSeekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

// Seek implements io.Seeker.
func (b *WriteSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("testutil: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("testutil: negative position")
	}
	b.pos = int(abs)
	return abs, nil
}

// Bytes returns everything written so far.
func (b *WriteSeekBuffer) Bytes() []byte {
	return b.buf
}

// ErrSinkFull is returned by FailingWriter once its budget is spent.
var ErrSinkFull = errors.New("testutil: sink full")

// FailingWriter accepts Limit bytes and then fails every write.
type FailingWriter struct {
	Limit int
	n     int
}

// Write implements io.Writer.
func (w *FailingWriter) Write(p []byte) (int, error) {
	room := w.Limit - w.n
	if room >= len(p) {
		w.n += len(p)
		return len(p), nil
	}
	w.n += max(room, 0)
	return max(room, 0), ErrSinkFull
}

// RandomBytes returns n deterministic pseudo-random bytes.
func RandomBytes(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // test data
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

// Entry describes one file for Tree.
type Entry struct {
	Path        string
	Data        []byte
	Compression hpktype.Compression
	ModTime     time.Time
}

// Tree builds a folder hierarchy from entries, preserving their order.
// A path ending in "/" adds an empty folder. The returned map holds each
// file's content by *hpktype.File.
func Tree(entries ...Entry) (*hpktype.Folder, map[*hpktype.File][]byte) {
	root := &hpktype.Folder{}
	data := make(map[*hpktype.File][]byte)
	for _, e := range entries {
		parts := strings.Split(strings.TrimSuffix(e.Path, "/"), "/")
		dir := root
		for _, p := range parts[:len(parts)-1] {
			dir = subfolder(dir, p)
		}
		name := parts[len(parts)-1]
		if strings.HasSuffix(e.Path, "/") {
			subfolder(dir, name)
			continue
		}
		f := &hpktype.File{
			Name:        name,
			Size:        uint64(len(e.Data)),
			Compression: e.Compression,
			ModTime:     e.ModTime,
		}
		dir.Children = append(dir.Children, f)
		data[f] = e.Data
	}
	return root, data
}

func subfolder(dir *hpktype.Folder, name string) *hpktype.Folder {
	for _, c := range dir.Children {
		if sub, ok := c.(*hpktype.Folder); ok && sub.Name == name {
			return sub
		}
	}
	sub := &hpktype.Folder{Name: name}
	dir.Children = append(dir.Children, sub)
	return sub
}
