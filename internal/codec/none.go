package codec

import (
	"fmt"

	"github.com/meigma/hpk/internal/hpktype"
)

// none stores bytes unchanged.
type none struct{}

func init() { mustRegister(none{}) }

func (none) Compression() hpktype.Compression { return hpktype.CompressionNone }

func (none) Encode(src []byte) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

func (none) Decode(src []byte, size int) ([]byte, error) {
	if len(src) != size {
		return nil, fmt.Errorf("stored length %d, want %d", len(src), size)
	}
	return append(make([]byte, 0, size), src...), nil
}
