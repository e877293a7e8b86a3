// Package sizing provides overflow-checked size arithmetic for archive fields.
package sizing

import (
	"math"

	"github.com/meigma/hpk/internal/hpktype"
)

// ToInt converts a uint64 to int, failing with ErrSizeOverflow if it doesn't fit.
func ToInt(size uint64) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, hpktype.ErrSizeOverflow
	}
	return int(size), nil
}

// ToInt64 converts a uint64 to int64, failing with ErrSizeOverflow if it doesn't fit.
func ToInt64(size uint64) (int64, error) {
	if size > uint64(math.MaxInt64) {
		return 0, hpktype.ErrSizeOverflow
	}
	return int64(size), nil
}

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// InRange reports whether [off, off+n) lies within a source of the given size.
func InRange(off, n uint64, size int64) bool {
	if size < 0 {
		return false
	}
	end, ok := AddUint64(off, n)
	return ok && end <= uint64(size)
}

// Chunks returns the number of chunks of length chunk needed to hold n bytes.
func Chunks(n uint64, chunk uint32) uint64 {
	if chunk == 0 {
		return 0
	}
	c := uint64(chunk)
	return n/c + min(n%c, 1)
}
