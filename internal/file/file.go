package file

import (
	"bytes"
	"io"
	"io/fs"

	"github.com/meigma/hpk/internal/hpktype"
)

// File implements fs.File over one entry. Content is decoded and verified
// on first access.
type File struct {
	reader *Reader
	entry  *hpktype.File
	info   *Info

	r      *bytes.Reader
	err    error
	closed bool
}

var (
	_ fs.File     = (*File)(nil)
	_ io.ReaderAt = (*File)(nil)
	_ io.Seeker   = (*File)(nil)
)

// OpenFile returns an fs.File for entry.
func (r *Reader) OpenFile(entry *hpktype.File) *File {
	return &File{reader: r, entry: entry, info: NewInfo(entry)}
}

// NewBytesFile returns an fs.File over already-decoded content.
func NewBytesFile(entry *hpktype.File, content []byte) *File {
	return &File{entry: entry, info: NewInfo(entry), r: bytes.NewReader(content)}
}

func (f *File) load() error {
	if f.closed {
		return fs.ErrClosed
	}
	if f.r != nil || f.err != nil {
		return f.err
	}
	content, err := f.reader.ReadAll(f.entry)
	if err != nil {
		f.err = err
		return err
	}
	f.r = bytes.NewReader(content)
	return nil
}

// Stat implements fs.File.
func (f *File) Stat() (fs.FileInfo, error) {
	if f.closed {
		return nil, fs.ErrClosed
	}
	return f.info, nil
}

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	if err := f.load(); err != nil {
		return 0, err
	}
	return f.r.Read(p)
}

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if err := f.load(); err != nil {
		return 0, err
	}
	return f.r.ReadAt(p, off)
}

// Seek implements io.Seeker.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if err := f.load(); err != nil {
		return 0, err
	}
	return f.r.Seek(offset, whence)
}

// Close implements fs.File.
func (f *File) Close() error {
	if f.closed {
		return fs.ErrClosed
	}
	f.closed = true
	f.r = nil
	return nil
}
