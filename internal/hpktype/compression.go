package hpktype

// Compression identifies the codec used to store a file's payload.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLz4Block
	CompressionDeflate
	CompressionZstd
	CompressionLz4Frame

	// compressionCount bounds the defined enumeration. Values at or above
	// it are unknown to the format.
	compressionCount
)

// CompressionUnknown marks a decoded entry whose block identifier is not one
// the format defines. Reading such an entry fails with ErrUnknownCompression.
const CompressionUnknown Compression = 0xFF

// Valid reports whether c is part of the defined enumeration.
func (c Compression) Valid() bool {
	return c < compressionCount
}

// String returns the human-readable name of the compression algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLz4Block:
		return "lz4"
	case CompressionDeflate:
		return "deflate"
	case CompressionZstd:
		return "zstd"
	case CompressionLz4Frame:
		return "lz4frame"
	default:
		return "unknown"
	}
}

// ParseCompression maps a name produced by String back to its tag.
// "zlib" is accepted as an alias for deflate since that is the on-disk name.
func ParseCompression(s string) (Compression, bool) {
	switch s {
	case "none", "store", "":
		return CompressionNone, true
	case "lz4", "lz4block":
		return CompressionLz4Block, true
	case "deflate", "zlib":
		return CompressionDeflate, true
	case "zstd":
		return CompressionZstd, true
	case "lz4frame":
		return CompressionLz4Frame, true
	default:
		return 0, false
	}
}

// Compressions returns every defined tag in enumeration order.
func Compressions() []Compression {
	out := make([]Compression, 0, compressionCount)
	for c := CompressionNone; c < compressionCount; c++ {
		out = append(out, c)
	}
	return out
}
