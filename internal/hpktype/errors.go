package hpktype

import "errors"

// Sentinel errors for hpk operations.
var (
	// ErrInvalidFormat is returned when the header magic or layout is not a
	// supported HPK archive.
	ErrInvalidFormat = errors.New("hpk: invalid format")

	// ErrOutOfBounds is returned when a structure or payload lies outside
	// the archive's bytes.
	ErrOutOfBounds = errors.New("hpk: out of bounds")

	// ErrCorruptEntry is returned when an entry's payload does not decode to
	// its recorded size or fails checksum verification.
	ErrCorruptEntry = errors.New("hpk: corrupt entry")

	// ErrUnknownCompression is returned for compression tags outside the
	// defined enumeration.
	ErrUnknownCompression = errors.New("hpk: unknown compression")

	// ErrUnsupportedCompression is returned for known compression tags whose
	// codec is not compiled into this build.
	ErrUnsupportedCompression = errors.New("hpk: unsupported compression")

	// ErrNotFound is returned when a path does not resolve to a file.
	ErrNotFound = errors.New("hpk: not found")

	// ErrIO wraps failures of the underlying byte source or sink.
	ErrIO = errors.New("hpk: i/o error")

	// ErrDuplicateEntry is returned when two siblings share a name.
	ErrDuplicateEntry = errors.New("hpk: duplicate entry")

	// ErrInvalidPath is returned for entry paths that cannot be stored.
	ErrInvalidPath = errors.New("hpk: invalid path")

	// ErrSizeOverflow is returned when byte counts exceed what the variant
	// or the platform can represent.
	ErrSizeOverflow = errors.New("hpk: size overflow")
)
