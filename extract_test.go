package hpk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	order   []string
	folders []string
	data    map[string][]byte
}

func newRecorder() *recorder {
	return &recorder{data: make(map[string][]byte)}
}

func (r *recorder) Materialize(path string, data []byte, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, path)
	r.data[path] = append([]byte(nil), data...)
	return nil
}

func (r *recorder) MaterializeFolder(path string) error {
	r.folders = append(r.folders, path)
	return nil
}

func TestExtractAllSerial(t *testing.T) {
	t.Parallel()

	b, files := sampleBuilder(t)
	a := openBytes(t, build(t, b))

	rec := newRecorder()
	require.NoError(t, a.ExtractAll(rec))
	assert.Equal(t, []string{"data/a.txt", "data/sub/b.lua", "data/sub/rand.bin", "readme"}, rec.order)
	assert.Equal(t, []string{"data", "data/sub", "empty"}, rec.folders)
	assert.Equal(t, files, rec.data)
}

func TestExtractAllParallel(t *testing.T) {
	t.Parallel()

	b, files := sampleBuilder(t, BuildWithVariant(VariantWide))
	a := openBytes(t, build(t, b))

	var mu sync.Mutex
	var events []ProgressEvent
	rec := newRecorder()
	require.NoError(t, a.ExtractAll(rec,
		ExtractWithWorkers(4),
		ExtractWithProgress(func(e ProgressEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		})))
	assert.Equal(t, files, rec.data)
	assert.Len(t, events, len(files))
	for _, e := range events {
		assert.Equal(t, StageExtracting, e.Stage)
		assert.Equal(t, len(files), e.FilesTotal)
	}
}

func TestExtractAllFailsFast(t *testing.T) {
	t.Parallel()

	b := NewBuilder(BuildWithVariant(VariantWide))
	addBytes(t, b, "a", []byte("first"))
	addBytes(t, b, "b", []byte("second"))
	addBytes(t, b, "c", []byte("third"))
	data := build(t, b)
	a := openBytes(t, data)

	f, ok := a.Entry("b")
	require.True(t, ok)
	data[f.Offset] ^= 0xFF

	rec := newRecorder()
	err := a.ExtractAll(rec)
	require.ErrorIs(t, err, ErrCorruptEntry)
	var he *Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "extract", he.Op)
	assert.Equal(t, "b", he.Path)
	assert.Equal(t, []string{"a"}, rec.order)
}

func TestExtractAllMaterializerError(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t)
	a := openBytes(t, build(t, b))

	boom := errors.New("disk full")
	err := a.ExtractAll(MaterializerFunc(func(path string, _ []byte, _ time.Time) error {
		if path == "data/sub/b.lua" {
			return boom
		}
		return nil
	}))
	require.ErrorIs(t, err, boom)
	var he *Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "data/sub/b.lua", he.Path)
}

func TestExtractAllCanceled(t *testing.T) {
	t.Parallel()

	b, _ := sampleBuilder(t)
	a := openBytes(t, build(t, b))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.ExtractAll(newRecorder(), ExtractWithContext(ctx))
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractToDir(t *testing.T) {
	t.Parallel()

	mod := time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC)
	b := NewBuilder(BuildWithVariant(VariantFileDates))
	require.NoError(t, b.Add("data/a.txt", 5, mod, BytesSource([]byte("hello"))))
	require.NoError(t, b.AddFolder("data/empty"))
	a := openBytes(t, build(t, b))

	dest := filepath.Join(t.TempDir(), "out")
	var applied []string
	require.NoError(t, a.ExtractToDir(dest,
		ExtractWithPreserveTimes(true),
		ExtractWithTimestampApplier(func(path string, modTime time.Time) error {
			applied = append(applied, path)
			assert.True(t, mod.Equal(modTime))
			return nil
		})))

	got, err := os.ReadFile(filepath.Join(dest, "data", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	info, err := os.Stat(filepath.Join(dest, "data", "a.txt"))
	require.NoError(t, err)
	assert.True(t, mod.Equal(info.ModTime()))

	info, err = os.Stat(filepath.Join(dest, "data", "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Equal(t, []string{filepath.Join(dest, "data", "a.txt")}, applied)
}

func TestExtractToDirSkipsExisting(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	addBytes(t, b, "a.txt", []byte("archive"))
	a := openBytes(t, build(t, b))

	dest := t.TempDir()
	target := filepath.Join(dest, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("local"), 0o600))

	require.NoError(t, a.ExtractToDir(dest))
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("local"), got)

	require.NoError(t, a.ExtractToDir(dest, ExtractWithOverwrite(true)))
	got, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("archive"), got)
}
