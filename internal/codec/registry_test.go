package codec

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/hpk/internal/hpktype"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(uint64(n), 7))
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(rng.Uint32())
	}
	return out
}

func TestCodecFidelity(t *testing.T) {
	t.Parallel()

	payloads := map[string][]byte{
		"empty":       {},
		"one byte":    {0x42},
		"repeating":   bytes.Repeat([]byte("hpk-archive "), 4096),
		"random 3MiB": randomBytes(t, 3<<20),
	}

	for _, tag := range Default().Tags() {
		for name, payload := range payloads {
			t.Run(tag.String()+"/"+name, func(t *testing.T) {
				t.Parallel()

				enc, err := Default().Encode(tag, payload)
				require.NoError(t, err)

				dec, err := Default().Decode(tag, enc, len(payload))
				require.NoError(t, err)
				assert.True(t, bytes.Equal(payload, dec), "round trip changed payload")
			})
		}
	}
}

func TestDefaultRegistryTags(t *testing.T) {
	t.Parallel()

	tags := Default().Tags()
	assert.Contains(t, tags, hpktype.CompressionNone)
	assert.Contains(t, tags, hpktype.CompressionDeflate)
	assert.Contains(t, tags, hpktype.CompressionLz4Block)
	assert.Contains(t, tags, hpktype.CompressionZstd)
}

func TestResolveUnknownCompression(t *testing.T) {
	t.Parallel()

	_, err := Default().Resolve(hpktype.Compression(200))
	require.ErrorIs(t, err, hpktype.ErrUnknownCompression)
	assert.NotErrorIs(t, err, hpktype.ErrUnsupportedCompression)
}

func TestResolveUnsupportedCompression(t *testing.T) {
	t.Parallel()

	r := Default().Without(hpktype.CompressionZstd)
	_, err := r.Resolve(hpktype.CompressionZstd)
	require.ErrorIs(t, err, hpktype.ErrUnsupportedCompression)
	assert.NotErrorIs(t, err, hpktype.ErrUnknownCompression)

	// The default registry is left untouched.
	assert.True(t, Default().Supports(hpktype.CompressionZstd))
}

func TestDecodeLengthMismatch(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("abc"), 1000)
	for _, tag := range Default().Tags() {
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()

			enc, err := Default().Encode(tag, payload)
			require.NoError(t, err)

			_, err = Default().Decode(tag, enc, len(payload)-1)
			require.ErrorIs(t, err, hpktype.ErrCorruptEntry)

			_, err = Default().Decode(tag, enc, len(payload)+1)
			require.ErrorIs(t, err, hpktype.ErrCorruptEntry)
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	t.Parallel()

	garbage := randomBytes(t, 64)
	for _, tag := range Default().Tags() {
		if tag == hpktype.CompressionNone {
			continue
		}
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()

			_, err := Default().Decode(tag, garbage, 4096)
			require.ErrorIs(t, err, hpktype.ErrCorruptEntry)
		})
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := NewRegistry(none{})
	require.Error(t, r.Register(none{}))
	require.NoError(t, r.Register(deflate{}))
	assert.Equal(t, []hpktype.Compression{hpktype.CompressionNone, hpktype.CompressionDeflate}, r.Tags())
}

func TestMagic(t *testing.T) {
	t.Parallel()

	for _, tag := range hpktype.Compressions() {
		m, ok := Magic(tag)
		if tag == hpktype.CompressionNone {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		assert.True(t, LooksLikeMagic(m))
		got, ok := LookupMagic(m)
		require.True(t, ok)
		assert.Equal(t, tag, got)
	}

	_, ok := LookupMagic([MagicSize]byte{'L', 'Z', 'M', 'A'})
	assert.False(t, ok)
	assert.True(t, LooksLikeMagic([MagicSize]byte{'L', 'Z', 'M', 'A'}))
	assert.False(t, LooksLikeMagic([MagicSize]byte{'z', 'l', 'i', 'b'}))
	assert.False(t, LooksLikeMagic([MagicSize]byte{0x89, 'P', 'N', 'G'}))
}

func TestLooksLikeZlib(t *testing.T) {
	t.Parallel()

	enc, err := Default().Encode(hpktype.CompressionDeflate, []byte("short"))
	require.NoError(t, err)
	assert.True(t, LooksLikeZlib(enc))

	assert.True(t, LooksLikeZlib([]byte{0x78, 0x9C}))
	assert.True(t, LooksLikeZlib([]byte{0x78, 0xDA, 0xFF}))
	assert.False(t, LooksLikeZlib([]byte{0x78, 0x00}), "header checksum")
	assert.False(t, LooksLikeZlib([]byte{0x79, 0x9C}), "compression method")
	assert.False(t, LooksLikeZlib([]byte{0x78}))
	assert.False(t, LooksLikeZlib([]byte("plain text")))
}
