package codec

import "github.com/meigma/hpk/internal/hpktype"

// MagicSize is the length of the identifier opening a compressed payload.
const MagicSize = 4

var magics = map[hpktype.Compression][MagicSize]byte{
	hpktype.CompressionDeflate:  {'Z', 'L', 'I', 'B'},
	hpktype.CompressionLz4Block: {'L', 'Z', '4', ' '},
	hpktype.CompressionZstd:     {'Z', 'S', 'T', 'D'},
	hpktype.CompressionLz4Frame: {'L', 'Z', '4', 'F'},
}

// Magic returns the on-disk identifier for tag. CompressionNone has none.
func Magic(tag hpktype.Compression) ([MagicSize]byte, bool) {
	m, ok := magics[tag]
	return m, ok
}

// LookupMagic maps an on-disk identifier to its tag.
func LookupMagic(m [MagicSize]byte) (hpktype.Compression, bool) {
	for tag, v := range magics {
		if v == m {
			return tag, true
		}
	}
	return 0, false
}

// LooksLikeMagic reports whether m is shaped like a compression identifier:
// uppercase ASCII letters, digits and spaces, starting with a letter.
func LooksLikeMagic(m [MagicSize]byte) bool {
	if m[0] < 'A' || m[0] > 'Z' {
		return false
	}
	for _, b := range m[1:] {
		switch {
		case b >= 'A' && b <= 'Z', b >= '0' && b <= '9', b == ' ':
		default:
			return false
		}
	}
	return true
}
