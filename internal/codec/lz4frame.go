//go:build !hpk_nolz4frame

package codec

func init() { mustRegister(lz4Frame{}) }
