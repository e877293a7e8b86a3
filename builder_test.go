package hpk

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/hpk/internal/testutil"
)

func TestBuilderRejectsBadPaths(t *testing.T) {
	t.Parallel()

	data := []byte("x")
	tests := []struct {
		name string
		path string
		want error
	}{
		{"empty", "", ErrInvalidPath},
		{"root", "/", ErrInvalidPath},
		{"dot dot", "a/../b", ErrInvalidPath},
		{"dot", "./a", ErrInvalidPath},
		{"nul", "a\x00b", ErrInvalidPath},
		{"newline", "a\nb.txt", ErrInvalidPath},
		{"carriage return", "dir\r/b.txt", ErrInvalidPath},
		{"tab", "a\tb", ErrInvalidPath},
		{"not utf8", "a\xffb", ErrInvalidPath},
		{"long name", strings.Repeat("n", 70_000), ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := NewBuilder().Add(tt.path, 1, time.Time{}, BytesSource(data))
			require.ErrorIs(t, err, tt.want)
			var he *Error
			require.True(t, errors.As(err, &he))
			assert.Equal(t, "add", he.Op)
		})
	}
}

func TestBuilderDuplicates(t *testing.T) {
	t.Parallel()

	src := BytesSource([]byte("x"))

	b := NewBuilder()
	require.NoError(t, b.Add("dir/a.txt", 1, time.Time{}, src))
	require.ErrorIs(t, b.Add("DIR/A.TXT", 1, time.Time{}, src), ErrDuplicateEntry)
	require.ErrorIs(t, b.Add("dir/a.txt/b", 1, time.Time{}, src), ErrDuplicateEntry)
	require.ErrorIs(t, b.AddFolder("dir/a.txt"), ErrDuplicateEntry)
	require.NoError(t, b.AddFolder("Dir"))
	assert.Equal(t, 1, b.Len())

	cs := NewBuilder(BuildWithCaseSensitive(true))
	require.NoError(t, cs.Add("a.txt", 1, time.Time{}, src))
	require.NoError(t, cs.Add("A.TXT", 1, time.Time{}, src))
	a := openBytes(t, build(t, cs), WithCaseSensitive(true))
	assert.Equal(t, 2, a.Len())

	_, err := Open(bytes.NewReader(build(t, func() *Builder {
		b := NewBuilder(BuildWithCaseSensitive(true))
		require.NoError(t, b.Add("a.txt", 1, time.Time{}, src))
		require.NoError(t, b.Add("A.TXT", 1, time.Time{}, src))
		return b
	}())))
	require.ErrorIs(t, err, ErrDuplicateEntry, "case-insensitive readers reject case variants")
}

func TestBuilderUnknownCompression(t *testing.T) {
	t.Parallel()

	err := NewBuilder().AddWithCompression("a", 1, time.Time{}, BytesSource([]byte("x")), Compression(200))
	require.ErrorIs(t, err, ErrUnknownCompression)
}

func TestBuilderUnsupportedCompression(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry().Without(CompressionZstd)
	b := NewBuilder(BuildWithRegistry(reg), BuildWithCompression(CompressionZstd))
	addBytes(t, b, "a.lua", bytes.Repeat([]byte("a"), 100))

	var buf testutil.WriteSeekBuffer
	err := b.Finalize(&buf)
	require.ErrorIs(t, err, ErrUnsupportedCompression)
	var he *Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "a.lua", he.Path)
}

func TestBuilderSingleUse(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t)
	build(t, b)

	var buf testutil.WriteSeekBuffer
	require.ErrorIs(t, b.Finalize(&buf), ErrBuilderFinalized)
	_, err := b.WriteTo(io.Discard)
	require.ErrorIs(t, err, ErrBuilderFinalized)
	require.ErrorIs(t, b.Add("late", 0, time.Time{}, BytesSource(nil)), ErrBuilderFinalized)
	require.ErrorIs(t, b.AddFolder("late"), ErrBuilderFinalized)
}

func TestBuilderReservedSidecarName(t *testing.T) {
	t.Parallel()

	for _, v := range Variants() {
		for _, p := range []string{"_filedates", "_checksums", "_FileDates", "_filedates/x"} {
			err := NewBuilder(BuildWithVariant(v)).Add(p, 1, time.Time{}, BytesSource([]byte("x")))
			require.ErrorIs(t, err, ErrInvalidPath, "%s: %s", v.Name, p)
		}
	}

	// Below the root the names are ordinary.
	b := NewBuilder()
	addBytes(t, b, "docs/_filedates", []byte("x"))
	a := openBytes(t, build(t, b))
	got, err := a.ReadFile("docs/_filedates")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func TestBuilderSizeMismatch(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	require.NoError(t, b.Add("short", 10, time.Time{}, BytesSource([]byte("abc"))))

	var buf testutil.WriteSeekBuffer
	err := b.Finalize(&buf)
	require.ErrorIs(t, err, ErrIO)
	var he *Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "short", he.Path)
	assert.Equal(t, "write", he.Op)
}

func TestBuilderSourceFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	b := NewBuilder()
	require.NoError(t, b.Add("a", 1, time.Time{}, PayloadSourceFunc(func() (io.ReadCloser, error) {
		return nil, boom
	})))

	_, err := b.WriteTo(io.Discard)
	require.ErrorIs(t, err, boom)
}

func TestBuilderSinkFailure(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t)
	_, err := b.WriteTo(&testutil.FailingWriter{Limit: 100})
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, testutil.ErrSinkFull)
}

func TestBuilderSortEntries(t *testing.T) {
	t.Parallel()

	b := NewBuilder(BuildWithSortEntries(true))
	for _, p := range []string{"b", "Z/y", "a", "C", "Z/X"} {
		addBytes(t, b, p, []byte(p))
	}
	a := openBytes(t, build(t, b))

	var paths []string
	for p := range a.Entries() {
		paths = append(paths, p)
	}
	assert.Equal(t, []string{"a", "b", "C", "Z/X", "Z/y"}, paths)
}

func TestBuilderKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	for _, p := range []string{"b", "a", "c"} {
		addBytes(t, b, p, []byte(p))
	}
	a := openBytes(t, build(t, b))

	var paths []string
	for p := range a.Entries() {
		paths = append(paths, p)
	}
	assert.Equal(t, []string{"b", "a", "c"}, paths)
}

func TestBuilderSkipCompression(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("abc"), 1000)
	b := NewBuilder(BuildWithCompression(CompressionZstd), BuildWithSkipCompression(SkipExtensions(".png")))
	addBytes(t, b, "img.png", payload)
	addBytes(t, b, "script.lua", payload)
	require.NoError(t, b.AddWithCompression("forced.png", uint64(len(payload)), time.Time{}, BytesSource(payload), CompressionLz4Block))
	a := openBytes(t, build(t, b))

	want := map[string]Compression{
		"img.png":    CompressionNone,
		"script.lua": CompressionZstd,
		"forced.png": CompressionLz4Block,
	}
	for p, c := range want {
		f, ok := a.Entry(p)
		require.True(t, ok, p)
		assert.Equal(t, c, f.Compression, p)
	}
}

func TestBuilderStoreIfLarger(t *testing.T) {
	t.Parallel()

	noise := testutil.RandomBytes(7, 4096)

	b := NewBuilder()
	addBytes(t, b, "noise", noise)
	f, ok := openBytes(t, build(t, b)).Entry("noise")
	require.True(t, ok)
	assert.Equal(t, CompressionNone, f.Compression)

	b = NewBuilder(BuildWithStoreIfLarger(false))
	addBytes(t, b, "noise", noise)
	a := openBytes(t, build(t, b))
	f, ok = a.Entry("noise")
	require.True(t, ok)
	assert.Equal(t, CompressionDeflate, f.Compression)
	assert.Greater(t, f.CompressedSize, f.Size)

	got, err := a.ReadFile("noise")
	require.NoError(t, err)
	assert.Equal(t, noise, got)
}

func TestBuilderChunkSize(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("chunky "), 3000)
	b := NewBuilder(BuildWithChunkSize(4096), BuildWithSpoolLimit(-1))
	addBytes(t, b, "a.txt", payload)
	a := openBytes(t, build(t, b))

	f, ok := a.Entry("a.txt")
	require.True(t, ok)
	assert.Equal(t, uint32(4096), f.ChunkSize)
	got, err := a.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestBuilderProgress(t *testing.T) {
	t.Parallel()

	var events []ProgressEvent
	b, files := sampleBuilder(t,
		BuildWithVariant(VariantWide),
		BuildWithProgress(func(e ProgressEvent) { events = append(events, e) }))
	build(t, b)

	require.Len(t, events, len(files))
	last := events[len(events)-1]
	assert.Equal(t, StageWriting, last.Stage)
	assert.Equal(t, len(files), last.FilesDone)
	assert.Equal(t, last.FilesTotal, last.FilesDone)
	assert.Equal(t, last.BytesTotal, last.BytesDone)
}
