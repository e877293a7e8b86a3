// Package file reads and verifies archive entries.
package file

import (
	"fmt"
	"io"

	"github.com/meigma/hpk/internal/codec"
	"github.com/meigma/hpk/internal/hpktype"
	"github.com/meigma/hpk/internal/layout"
)

// DefaultMaxFileSize is the default limit on an entry's uncompressed size (1GB).
const DefaultMaxFileSize = 1 << 30

// ByteSource provides random access to archive bytes.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// Reader reads entries from a ByteSource.
//
// A Reader holds no per-call state and is safe for concurrent use.
type Reader struct {
	source      ByteSource
	registry    *codec.Registry
	maxFileSize uint64
}

// Option configures a Reader.
type Option func(*Reader)

// WithMaxFileSize sets the maximum uncompressed entry size.
// Set to 0 to disable the limit.
func WithMaxFileSize(limit uint64) Option {
	return func(r *Reader) {
		r.maxFileSize = limit
	}
}

// WithRegistry sets the codec registry used to decode entries.
func WithRegistry(reg *codec.Registry) Option {
	return func(r *Reader) {
		if reg != nil {
			r.registry = reg
		}
	}
}

// NewReader creates a Reader for entries stored in source.
func NewReader(source ByteSource, opts ...Option) *Reader {
	r := &Reader{
		source:      source,
		registry:    codec.Default(),
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadAll returns the uncompressed content of f and verifies its checksum
// when the archive records one.
func (r *Reader) ReadAll(f *hpktype.File) ([]byte, error) {
	if err := ValidateAll(f, r.source.Size(), r.maxFileSize); err != nil {
		return nil, err
	}
	content, err := layout.ReadEntry(r.source, f, r.registry)
	if err != nil {
		return nil, err
	}
	if err := VerifyChecksum(f, content); err != nil {
		return nil, err
	}
	return content, nil
}

// Source returns the underlying ByteSource.
func (r *Reader) Source() ByteSource {
	return r.source
}

// Registry returns the codec registry.
func (r *Reader) Registry() *codec.Registry {
	return r.registry
}

// MaxFileSize returns the configured maximum file size.
func (r *Reader) MaxFileSize() uint64 {
	return r.maxFileSize
}

// VerifyChecksum compares content against f's recorded digest. Entries
// without a digest always pass.
func VerifyChecksum(f *hpktype.File, content []byte) error {
	if f.Checksum == "" {
		return nil
	}
	if err := f.Checksum.Validate(); err != nil {
		return fmt.Errorf("%w: %w", hpktype.ErrCorruptEntry, err)
	}
	v := f.Checksum.Verifier()
	_, _ = v.Write(content) //nolint:errcheck // hash writes never fail
	if !v.Verified() {
		return fmt.Errorf("%w: content does not match %s", hpktype.ErrCorruptEntry, f.Checksum)
	}
	return nil
}
