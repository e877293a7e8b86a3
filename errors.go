package hpk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/meigma/hpk/internal/binparse"
	"github.com/meigma/hpk/internal/hpktype"
)

// Sentinel errors re-exported from internal/hpktype.
var (
	// ErrInvalidFormat is returned when the data is not a supported archive.
	ErrInvalidFormat = hpktype.ErrInvalidFormat

	// ErrOutOfBounds is returned when a structure or payload lies outside
	// the archive.
	ErrOutOfBounds = hpktype.ErrOutOfBounds

	// ErrCorruptEntry is returned when an entry does not decode to its
	// recorded size or fails checksum verification.
	ErrCorruptEntry = hpktype.ErrCorruptEntry

	// ErrUnknownCompression is returned for compression tags the format
	// does not define.
	ErrUnknownCompression = hpktype.ErrUnknownCompression

	// ErrUnsupportedCompression is returned for compression tags whose
	// codec is not available.
	ErrUnsupportedCompression = hpktype.ErrUnsupportedCompression

	// ErrNotFound is returned when a path does not name a file.
	ErrNotFound = hpktype.ErrNotFound

	// ErrIO wraps failures of the byte source or sink.
	ErrIO = hpktype.ErrIO

	// ErrDuplicateEntry is returned when two siblings share a name.
	ErrDuplicateEntry = hpktype.ErrDuplicateEntry

	// ErrInvalidPath is returned for paths that cannot be stored.
	ErrInvalidPath = hpktype.ErrInvalidPath

	// ErrSizeOverflow is returned when sizes exceed what the variant or
	// the platform can represent.
	ErrSizeOverflow = hpktype.ErrSizeOverflow
)

// ErrBuilderFinalized is returned when a Builder is used after it has
// written its archive.
var ErrBuilderFinalized = errors.New("hpk: builder already finalized")

var kinds = []error{
	ErrInvalidFormat,
	ErrOutOfBounds,
	ErrCorruptEntry,
	ErrUnknownCompression,
	ErrUnsupportedCompression,
	ErrNotFound,
	ErrDuplicateEntry,
	ErrInvalidPath,
	ErrSizeOverflow,
	ErrIO,
}

// Error describes a failed archive operation.
//
// errors.Is matches both Kind and anything in the Err chain.
type Error struct {
	// Op is the operation, such as "open", "read", "add", "write" or "extract".
	Op string

	// Archive names the archive, when known.
	Archive string

	// Path is the entry path, when the failure concerns one entry.
	Path string

	// Offset is the byte offset of the failing structure, or -1.
	Offset int64

	// Kind is one of the package's sentinel errors, or nil.
	Kind error

	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("hpk: ")
	b.WriteString(e.Op)
	if e.Archive != "" {
		b.WriteString(" ")
		b.WriteString(e.Archive)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " %q", e.Path)
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

// Unwrap returns Kind and Err.
func (e *Error) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// newError wraps err with operation context. A nil err yields nil.
func newError(op, archive, path string, err error) error {
	if err == nil {
		return nil
	}
	var he *Error
	if errors.As(err, &he) {
		return err
	}
	e := &Error{Op: op, Archive: archive, Path: path, Offset: -1, Err: err}
	for _, k := range kinds {
		if errors.Is(err, k) {
			e.Kind = k
			break
		}
	}
	var pe *binparse.Error
	if errors.As(err, &pe) {
		e.Offset = pe.Offset
	}
	return e
}
