package hpk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/hpk/internal/testutil"
)

func build(t *testing.T, b *Builder) []byte {
	t.Helper()
	var buf testutil.WriteSeekBuffer
	require.NoError(t, b.Finalize(&buf))
	return buf.Bytes()
}

func openBytes(t *testing.T, data []byte, opts ...Option) *Archive {
	t.Helper()
	a, err := Open(bytes.NewReader(data), opts...)
	require.NoError(t, err)
	return a
}

func addBytes(t *testing.T, b *Builder, path string, data []byte) {
	t.Helper()
	require.NoError(t, b.Add(path, uint64(len(data)), time.Time{}, BytesSource(data)))
}

func listing(a *Archive) map[string]uint64 {
	out := make(map[string]uint64)
	for p, f := range a.Entries() {
		out[p] = f.Size
	}
	return out
}

func sampleBuilder(t *testing.T, opts ...BuildOption) (*Builder, map[string][]byte) {
	t.Helper()
	files := map[string][]byte{
		"data/a.txt":        []byte("hello"),
		"data/sub/b.lua":    bytes.Repeat([]byte("local x = 1\n"), 500),
		"data/sub/rand.bin": testutil.RandomBytes(1, 70_000),
		"readme":            {},
	}
	b := NewBuilder(opts...)
	for _, p := range []string{"data/a.txt", "data/sub/b.lua", "data/sub/rand.bin", "readme"} {
		addBytes(t, b, p, files[p])
	}
	require.NoError(t, b.AddFolder("empty"))
	return b, files
}

func TestScenarioEmptyRoot(t *testing.T) {
	t.Parallel()

	a := openBytes(t, build(t, NewBuilder()))
	assert.Empty(t, a.Root().Children)
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, 1, a.Fragments())
}

func TestScenarioSingleRawFile(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	require.NoError(t, b.AddWithCompression("data/a.txt", 5, time.Time{}, BytesSource([]byte("hello")), CompressionNone))
	a := openBytes(t, build(t, b))

	got, err := a.ReadFile("data/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	f, ok := a.Entry("data/a.txt")
	require.True(t, ok)
	assert.Equal(t, uint64(5), f.Size)
	assert.Equal(t, uint64(5), f.CompressedSize)
	assert.Equal(t, CompressionNone, f.Compression)
}

func TestScenarioDeflateShrinks(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("0123456789"), 1000)
	b := NewBuilder(BuildWithCompression(CompressionDeflate))
	addBytes(t, b, "pattern.txt", payload)
	a := openBytes(t, build(t, b))

	f, ok := a.Entry("pattern.txt")
	require.True(t, ok)
	assert.Equal(t, CompressionDeflate, f.Compression)
	assert.Less(t, f.CompressedSize, uint64(10_000))

	got, err := a.ReadFile("pattern.txt")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestScenarioPayloadBeyondEnd(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	require.NoError(t, b.AddWithCompression("data/a.txt", 5, time.Time{}, BytesSource([]byte("hello")), CompressionNone))
	data := build(t, b)

	// a.txt owns the second fragment; point its length past the end.
	table := binary.LittleEndian.Uint32(data[28:32])
	binary.LittleEndian.PutUint32(data[table+12:], 1000)

	a, err := Open(bytes.NewReader(data), WithName("broken.hpk"))
	require.ErrorIs(t, err, ErrOutOfBounds)
	assert.Nil(t, a)

	var he *Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "open", he.Op)
	assert.Equal(t, "broken.hpk", he.Archive)
	assert.Equal(t, ErrOutOfBounds, he.Kind)
	assert.Equal(t, "data/a.txt", he.Path)
}

// ddsHeader returns the opening of a DDS texture whose first twelve bytes
// also form a sound block header with an unknown identifier.
func ddsHeader() []byte {
	le := binary.LittleEndian
	b := []byte("DDS ")
	b = le.AppendUint32(b, 124) // header size, read as the inflated length
	b = le.AppendUint32(b, 16)  // read as the chunk size: 8 chunks
	for i := range 8 {
		b = le.AppendUint32(b, uint32(44+4*i))
	}
	return append(b, bytes.Repeat([]byte{0x7F}, 200)...)
}

func TestRawPayloadShapedLikeBlock(t *testing.T) {
	t.Parallel()

	texture := ddsHeader()
	b := NewBuilder(BuildWithVariant(VariantWide))
	require.NoError(t, b.AddWithCompression("ui/icon.dds", uint64(len(texture)), time.Time{}, BytesSource(texture), CompressionNone))
	addBytes(t, b, "ui/plain.txt", []byte("plain"))
	a := openBytes(t, build(t, b))

	got, err := a.ReadFile("ui/icon.dds")
	require.NoError(t, err)
	assert.Equal(t, texture, got)

	f, ok := a.Entry("ui/icon.dds")
	require.True(t, ok)
	assert.Equal(t, uint64(len(texture)), f.Size)
}

func TestRoundTripEveryCodec(t *testing.T) {
	t.Parallel()

	for _, tag := range DefaultRegistry().Tags() {
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()

			b, files := sampleBuilder(t, BuildWithCompression(tag), BuildWithVariant(VariantWide))
			a := openBytes(t, build(t, b))
			assert.Equal(t, "wide", a.Variant().Name)
			assert.Equal(t, len(files), a.Len())
			for p, want := range files {
				got, err := a.ReadFile(p)
				require.NoError(t, err, p)
				assert.Equal(t, want, got, p)
			}
		})
	}
}

func TestFinalizeMatchesWriteTo(t *testing.T) {
	t.Parallel()

	seeking, _ := sampleBuilder(t, BuildWithVariant(VariantFileDates))
	streaming, _ := sampleBuilder(t, BuildWithVariant(VariantFileDates))

	var out bytes.Buffer
	n, err := streaming.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(out.Len()), n)
	assert.Equal(t, build(t, seeking), out.Bytes())
}

func TestListingIsIdempotent(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t)
	first := build(t, b)
	a := openBytes(t, first)

	// Rebuild from the decoded archive: same order, same codecs.
	rb := NewBuilder()
	require.NoError(t, a.Walk(func(p string, n Node) error {
		f, ok := n.(*File)
		if !ok {
			return rb.AddFolder(p)
		}
		data, err := a.ReadFile(p)
		if err != nil {
			return err
		}
		return rb.AddWithCompression(p, f.Size, f.ModTime, BytesSource(data), f.Compression)
	}))
	second := build(t, rb)

	assert.Equal(t, listing(a), listing(openBytes(t, second)))
	assert.Equal(t, first, second)
}

func TestEntriesOrderAndRestart(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t)
	a := openBytes(t, build(t, b))

	var paths []string
	for p := range a.Entries() {
		paths = append(paths, p)
	}
	assert.Equal(t, []string{"data/a.txt", "data/sub/b.lua", "data/sub/rand.bin", "readme"}, paths)

	var again []string
	for p := range a.Entries() {
		again = append(again, p)
		if len(again) == 2 {
			break
		}
	}
	assert.Equal(t, paths[:2], again)
}

func TestWalkIncludesFolders(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t)
	a := openBytes(t, build(t, b))

	var folders []string
	require.NoError(t, a.Walk(func(p string, n Node) error {
		if n.IsFolder() {
			folders = append(folders, p)
		}
		return nil
	}))
	assert.Equal(t, []string{"data", "data/sub", "empty"}, folders)
}

func TestReadFileNotFound(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t)
	a := openBytes(t, build(t, b))

	for _, p := range []string{"missing", "data", "data/a.txt/x"} {
		_, err := a.ReadFile(p)
		require.ErrorIs(t, err, ErrNotFound, p)
		require.ErrorIs(t, err, fs.ErrNotExist, p)
	}

	_, err := a.ReadFile("/data/a.txt")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, fs.ErrInvalid)
	var he *Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "/data/a.txt", he.Path)
}

func TestReadFileChecksumMismatch(t *testing.T) {
	t.Parallel()

	b := NewBuilder(BuildWithVariant(VariantWide))
	require.NoError(t, b.AddWithCompression("a.txt", 5, time.Time{}, BytesSource([]byte("alpha")), CompressionNone))
	data := build(t, b)

	a := openBytes(t, data)
	f, ok := a.Entry("a.txt")
	require.True(t, ok)
	require.NotEmpty(t, f.Checksum)
	data[f.Offset] ^= 0xFF

	_, err := a.ReadFile("a.txt")
	require.ErrorIs(t, err, ErrCorruptEntry)

	var he *Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "a.txt", he.Path)
	assert.Equal(t, int64(f.Offset), he.Offset) //nolint:gosec // small test archive
}

func TestCaseInsensitiveLookup(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t)
	data := build(t, b)

	got, err := openBytes(t, data).ReadFile("DATA/A.TXT")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	_, err = openBytes(t, data, WithCaseSensitive(true)).ReadFile("DATA/A.TXT")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestForcedVariant(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t, BuildWithVariant(VariantWide))
	data := build(t, b)

	_, err := Open(bytes.NewReader(data), WithVariant(VariantClassic))
	require.ErrorIs(t, err, ErrInvalidFormat)

	a := openBytes(t, data, WithVariant(VariantWide))
	assert.Equal(t, VariantWide, a.Variant())
}

func TestFileDatesRoundTrip(t *testing.T) {
	t.Parallel()

	mod := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	b := NewBuilder(BuildWithVariant(VariantFileDates))
	require.NoError(t, b.Add("a.lua", 3, mod, BytesSource([]byte("x=1"))))
	require.NoError(t, b.Add("b.lua", 3, time.Time{}, BytesSource([]byte("y=2"))))
	a := openBytes(t, build(t, b))

	f, ok := a.Entry("a.lua")
	require.True(t, ok)
	assert.True(t, mod.Equal(f.ModTime), "got %v", f.ModTime)

	f, ok = a.Entry("b.lua")
	require.True(t, ok)
	assert.True(t, f.ModTime.IsZero())

	_, ok = a.Entry("_filedates")
	assert.False(t, ok, "sidecar must not be listed")
}

func TestTimestampsDisabled(t *testing.T) {
	t.Parallel()

	b := NewBuilder(BuildWithVariant(VariantFileDates), BuildWithTimestamps(false))
	require.NoError(t, b.Add("a.lua", 3, time.Now(), BytesSource([]byte("x=1"))))
	a := openBytes(t, build(t, b))

	f, ok := a.Entry("a.lua")
	require.True(t, ok)
	assert.True(t, f.ModTime.IsZero())
}

func TestFSConformance(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t)
	a := openBytes(t, build(t, b))
	require.NoError(t, fstest.TestFS(a, "data/a.txt", "data/sub/b.lua", "data/sub/rand.bin", "readme"))
}

func TestFSConformanceWithCache(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t)
	a := openBytes(t, build(t, b), WithContentCache(8))
	require.NoError(t, fstest.TestFS(a, "data/a.txt", "data/sub/b.lua", "data/sub/rand.bin", "readme"))
}

func TestStatAndReadDir(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t)
	a := openBytes(t, build(t, b))

	info, err := a.Stat("data/sub/b.lua")
	require.NoError(t, err)
	assert.Equal(t, "b.lua", info.Name())
	assert.Equal(t, int64(6000), info.Size())
	assert.False(t, info.IsDir())
	_, ok := info.Sys().(*File)
	assert.True(t, ok)

	info, err = a.Stat("empty")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries, err := a.ReadDir(".")
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"data", "empty", "readme"}, names)

	_, err = a.ReadDir("readme")
	require.Error(t, err)
	_, err = a.Stat("nope")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestContentCache(t *testing.T) {
	t.Parallel()

	b, files := sampleBuilder(t)
	a := openBytes(t, build(t, b), WithContentCache(2))

	first, err := a.ReadFile("data/sub/b.lua")
	require.NoError(t, err)
	assert.Equal(t, 1, a.cache.len())

	first[0] = 'X'
	second, err := a.ReadFile("data/sub/b.lua")
	require.NoError(t, err)
	assert.Equal(t, files["data/sub/b.lua"], second, "cached content must not alias returned slices")

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := a.ReadFile("data/sub/rand.bin")
			if err == nil && !bytes.Equal(got, files["data/sub/rand.bin"]) {
				err = errors.New("content mismatch")
			}
			errs[i] = err
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 2, a.cache.len())
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sample.hpk")
	b, _ := sampleBuilder(t)
	require.NoError(t, os.WriteFile(path, build(t, b), 0o600))

	a, err := OpenFile(path)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, path, a.Name())

	got, err := a.ReadFile("data/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	_, err = OpenFile(path + ".missing")
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestOpenRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{nil, []byte("BPUL"), bytes.Repeat([]byte{0}, 64)} {
		_, err := Open(bytes.NewReader(data))
		require.Error(t, err)
		var he *Error
		require.True(t, errors.As(err, &he))
		assert.NotNil(t, he.Kind)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	err := &Error{Op: "read", Archive: "x.hpk", Path: "a/b", Offset: 42, Kind: ErrCorruptEntry, Err: errors.New("boom")}
	assert.Equal(t, `hpk: read x.hpk "a/b" at offset 42: boom`, err.Error())
	require.ErrorIs(t, err, ErrCorruptEntry)

	plain := &Error{Op: "write", Offset: -1, Err: errors.New("boom")}
	assert.Equal(t, "hpk: write: boom", plain.Error())
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":               ".",
		"/":              ".",
		"a":              "a",
		"/a/b/":          "a/b",
		"a//b":           "a/b",
		`data\ui\x.xml`:  "data/ui/x.xml",
		"a/../b":         "a/../b",
		`\\server\share`: "server/share",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePath(in), in)
	}
}
