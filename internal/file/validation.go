package file

import (
	"fmt"

	"github.com/meigma/hpk/internal/hpktype"
	"github.com/meigma/hpk/internal/sizing"
)

// ValidateForRead checks that an entry is safe to read from a source of the given size.
// It validates:
//   - Source size is non-negative
//   - Uncompressed size is within maxFileSize (if limit > 0)
//   - Offset + stored size doesn't overflow
//   - Stored range, or every extent of a split payload, is within source bounds
func ValidateForRead(f *hpktype.File, sourceSize int64, maxFileSize uint64) error {
	if sourceSize < 0 {
		return hpktype.ErrSizeOverflow
	}
	if maxFileSize > 0 && f.Size > maxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", hpktype.ErrSizeOverflow, f.Size, maxFileSize)
	}
	if len(f.Extents) == 0 {
		if !sizing.InRange(f.Offset, f.CompressedSize, sourceSize) {
			return fmt.Errorf("%w: [%d, +%d) beyond %d bytes", hpktype.ErrOutOfBounds, f.Offset, f.CompressedSize, sourceSize)
		}
		return nil
	}
	for _, e := range f.Extents {
		if !sizing.InRange(e.Offset, e.Length, sourceSize) {
			return fmt.Errorf("%w: extent [%d, +%d) beyond %d bytes", hpktype.ErrOutOfBounds, e.Offset, e.Length, sourceSize)
		}
	}
	return nil
}

// ValidateCompression checks that compression metadata is consistent.
// For uncompressed files, CompressedSize must equal Size.
func ValidateCompression(f *hpktype.File) error {
	if !f.Compression.Valid() {
		return fmt.Errorf("%w: tag %d", hpktype.ErrUnknownCompression, f.Compression)
	}
	if f.Compression == hpktype.CompressionNone && f.CompressedSize != f.Size {
		return fmt.Errorf("%w: stored %d bytes for a %d byte entry", hpktype.ErrCorruptEntry, f.CompressedSize, f.Size)
	}
	return nil
}

// ValidateAll performs all validation checks for reading an entry.
func ValidateAll(f *hpktype.File, sourceSize int64, maxFileSize uint64) error {
	if err := ValidateForRead(f, sourceSize, maxFileSize); err != nil {
		return err
	}
	return ValidateCompression(f)
}
