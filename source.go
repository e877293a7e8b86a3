package hpk

import (
	"bytes"
	"io"
	"io/fs"
	"os"
)

// PayloadSource opens the content of one entry for a Builder.
//
// Open may be called more than once while an archive is written and must
// yield the same bytes each time.
type PayloadSource interface {
	Open() (io.ReadCloser, error)
}

// PayloadSourceFunc adapts a function to a PayloadSource.
type PayloadSourceFunc func() (io.ReadCloser, error)

// Open implements PayloadSource.
func (f PayloadSourceFunc) Open() (io.ReadCloser, error) { return f() }

// BytesSource serves content from memory. data must not change until the
// archive has been written.
func BytesSource(data []byte) PayloadSource {
	return PayloadSourceFunc(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// FileSource reads content from the file at path.
func FileSource(path string) PayloadSource {
	return PayloadSourceFunc(func() (io.ReadCloser, error) {
		return os.Open(path)
	})
}

// FSSource reads content from name in fsys.
func FSSource(fsys fs.FS, name string) PayloadSource {
	return PayloadSourceFunc(func() (io.ReadCloser, error) {
		return fsys.Open(name)
	})
}
