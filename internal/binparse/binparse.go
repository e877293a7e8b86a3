// Package binparse provides composable parsers for little-endian binary
// records.
//
// A Parser reads one value from a Cursor. Field parsers (U16, U32, Uint,
// LenPrefixed, ...) combine into record parsers with Record and into repeated
// records with Count and Until, so nested structures are described rather than
// walked with manual offset arithmetic. Every read is bounds-checked against
// the cursor's window: malformed input yields an error, never a panic.
package binparse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrTruncated is returned when a field extends past the end of the input.
	ErrTruncated = errors.New("truncated input")

	// ErrMismatch is returned when a constant field holds an unexpected value.
	ErrMismatch = errors.New("unexpected value")
)

// Error annotates a parse failure with the field name and absolute offset.
type Error struct {
	Field  string
	Offset int64
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Cursor is a read position within a byte window.
type Cursor struct {
	buf  []byte
	off  int
	base int64
}

// NewCursor returns a cursor over buf. base is the absolute offset of buf[0]
// within the larger input and is only used for error reporting.
func NewCursor(buf []byte, base int64) *Cursor {
	return &Cursor{buf: buf, base: base}
}

// Offset returns the absolute offset of the next unread byte.
func (c *Cursor) Offset() int64 { return c.base + int64(c.off) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.off }

// Done reports whether the cursor has consumed its whole window.
func (c *Cursor) Done() bool { return c.off >= len(c.buf) }

// Take consumes n bytes. The returned slice aliases the input.
func (c *Cursor) Take(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, ErrTruncated
	}
	b := c.buf[c.off : c.off+n : c.off+n]
	c.off += n
	return b, nil
}

// Parser reads a T from a cursor.
type Parser[T any] func(*Cursor) (T, error)

// Parse runs p over buf and requires it to consume every byte.
func Parse[T any](p Parser[T], buf []byte, base int64) (T, error) {
	c := NewCursor(buf, base)
	v, err := p(c)
	if err != nil {
		return v, err
	}
	if !c.Done() {
		var zero T
		return zero, &Error{Field: "trailer", Offset: c.Offset(), Err: fmt.Errorf("%d unexpected trailing bytes", c.Remaining())}
	}
	return v, nil
}

func fixed[T any](n int, decode func([]byte) T) Parser[T] {
	return func(c *Cursor) (T, error) {
		start := c.Offset()
		b, err := c.Take(n)
		if err != nil {
			var zero T
			return zero, &Error{Offset: start, Err: err}
		}
		return decode(b), nil
	}
}

// U16 reads a little-endian uint16.
func U16() Parser[uint16] { return fixed(2, binary.LittleEndian.Uint16) }

// U32 reads a little-endian uint32.
func U32() Parser[uint32] { return fixed(4, binary.LittleEndian.Uint32) }

// I32 reads a little-endian int32.
func I32() Parser[int32] {
	return fixed(4, func(b []byte) int32 { return int32(binary.LittleEndian.Uint32(b)) }) //nolint:gosec // two's complement reinterpretation
}

// U64 reads a little-endian uint64.
func U64() Parser[uint64] { return fixed(8, binary.LittleEndian.Uint64) }

// Uint reads a little-endian unsigned integer of 4 or 8 bytes, widened to
// uint64. It is used for fields whose width depends on the format variant.
func Uint(width int) Parser[uint64] {
	switch width {
	case 4:
		return Map(U32(), func(v uint32) (uint64, error) { return uint64(v), nil })
	case 8:
		return U64()
	default:
		return func(c *Cursor) (uint64, error) {
			return 0, &Error{Offset: c.Offset(), Err: fmt.Errorf("unsupported field width %d", width)}
		}
	}
}

// Bytes reads n raw bytes.
func Bytes(n int) Parser[[]byte] {
	return func(c *Cursor) ([]byte, error) {
		start := c.Offset()
		b, err := c.Take(n)
		if err != nil {
			return nil, &Error{Offset: start, Err: err}
		}
		return b, nil
	}
}

// Length is an unsigned integer type usable as a length prefix.
type Length interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// LenPrefixed reads a length with prefix and then that many bytes.
func LenPrefixed[L Length](prefix Parser[L]) Parser[[]byte] {
	return func(c *Cursor) ([]byte, error) {
		n, err := prefix(c)
		if err != nil {
			return nil, err
		}
		if uint64(n) > math.MaxInt {
			return nil, &Error{Offset: c.Offset(), Err: ErrTruncated}
		}
		return Bytes(int(n))(c)
	}
}

// String converts a byte parser into a string parser.
func String(p Parser[[]byte]) Parser[string] {
	return Map(p, func(b []byte) (string, error) { return string(b), nil })
}

// Expect consumes len(want) bytes and fails with ErrMismatch unless they equal want.
func Expect(want []byte) Parser[[]byte] {
	return func(c *Cursor) ([]byte, error) {
		start := c.Offset()
		got, err := Bytes(len(want))(c)
		if err != nil {
			return nil, err
		}
		if string(got) != string(want) {
			return nil, &Error{Offset: start, Err: fmt.Errorf("%w: got %q, want %q", ErrMismatch, got, want)}
		}
		return got, nil
	}
}

// Map transforms the result of p. An error from f is reported at the offset
// where p started.
func Map[A, B any](p Parser[A], f func(A) (B, error)) Parser[B] {
	return func(c *Cursor) (B, error) {
		start := c.Offset()
		a, err := p(c)
		if err != nil {
			var zero B
			return zero, err
		}
		b, err := f(a)
		if err != nil {
			var zero B
			var pe *Error
			if errors.As(err, &pe) {
				return zero, err
			}
			return zero, &Error{Offset: start, Err: err}
		}
		return b, nil
	}
}

// Named labels errors from p with a field name, unless a nested parser
// already named them.
func Named[T any](name string, p Parser[T]) Parser[T] {
	return func(c *Cursor) (T, error) {
		v, err := p(c)
		if err != nil {
			var pe *Error
			if errors.As(err, &pe) && pe.Field == "" {
				pe.Field = name
			}
		}
		return v, err
	}
}

// Step parses one field of a record into its destination.
type Step func(*Cursor) error

// Into returns a step that stores the result of p in dst.
func Into[T any](dst *T, p Parser[T]) Step {
	return func(c *Cursor) error {
		v, err := p(c)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

// Skip returns a step that parses and discards a value.
func Skip[T any](p Parser[T]) Step {
	return func(c *Cursor) error {
		_, err := p(c)
		return err
	}
}

// Record builds a parser for a fixed sequence of fields. fields receives a
// pointer to the zero record and returns the steps that fill it in order.
func Record[T any](fields func(*T) []Step) Parser[T] {
	return func(c *Cursor) (T, error) {
		var v T
		for _, step := range fields(&v) {
			if err := step(c); err != nil {
				return v, err
			}
		}
		return v, nil
	}
}

// Count reads exactly n values with p.
func Count[T any](n int, p Parser[T]) Parser[[]T] {
	return func(c *Cursor) ([]T, error) {
		if n < 0 {
			return nil, &Error{Offset: c.Offset(), Err: fmt.Errorf("negative count %d", n)}
		}
		// Cap the preallocation by what the input could possibly hold.
		out := make([]T, 0, min(n, c.Remaining()))
		for range n {
			v, err := p(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}

// Until reads values with p until the cursor's window is exhausted. The end
// of the window is the terminator; a value straddling it is an error.
func Until[T any](p Parser[T]) Parser[[]T] {
	return func(c *Cursor) ([]T, error) {
		var out []T
		for !c.Done() {
			before := c.Remaining()
			v, err := p(c)
			if err != nil {
				return nil, err
			}
			if c.Remaining() == before {
				return nil, &Error{Offset: c.Offset(), Err: errors.New("parser made no progress")}
			}
			out = append(out, v)
		}
		return out, nil
	}
}

// Window runs p over the next n bytes only, then advances past them. p must
// consume the whole window.
func Window[T any](n int, p Parser[T]) Parser[T] {
	return func(c *Cursor) (T, error) {
		start := c.Offset()
		b, err := c.Take(n)
		if err != nil {
			var zero T
			return zero, &Error{Offset: start, Err: err}
		}
		return Parse(p, b, start)
	}
}
