package hpk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"math"
	"os"

	"github.com/meigma/hpk/internal/file"
	"github.com/meigma/hpk/internal/layout"
)

// ByteSource provides random access to archive bytes.
//
// *os.File (through OpenFile), *bytes.Reader and io.SectionReader-backed
// types all qualify.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// Archive is a decoded HPK archive.
//
// The directory is decoded by Open and never changes afterwards; entry
// content is read from the ByteSource on demand. An Archive is safe for
// concurrent use.
//
// Archive implements fs.FS, fs.StatFS, fs.ReadFileFS and fs.ReadDirFS.
type Archive struct {
	name          string
	source        ByteSource
	tree          *layout.Tree
	reader        *file.Reader
	variant       *Variant
	registry      *Registry
	caseSensitive bool
	maxFileSize   uint64
	maxDepth      int
	cacheSize     int
	cache         *contentCache // nil = no caching
	logger        *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Open decodes the directory of the archive held by src.
//
// Only the header, fragment table, folder records and metadata sidecars are
// read. Entry payloads are left alone until they are requested.
func Open(src ByteSource, opts ...Option) (*Archive, error) {
	a := &Archive{
		source:      src,
		maxFileSize: file.DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	tree, err := layout.Decode(src, src.Size(), layout.DecodeOptions{
		Variant:       a.variant,
		Registry:      a.registry,
		CaseSensitive: a.caseSensitive,
		MaxDepth:      a.maxDepth,
	})
	if err != nil {
		var ee *layout.EntryError
		if errors.As(err, &ee) {
			return nil, newError("open", a.name, ee.Path, ee.Err)
		}
		return nil, newError("open", a.name, "", err)
	}
	a.tree = tree
	a.reader = file.NewReader(src,
		file.WithMaxFileSize(a.maxFileSize),
		file.WithRegistry(a.registry),
	)
	if a.cacheSize > 0 {
		c, err := newContentCache(a.cacheSize)
		if err != nil {
			return nil, newError("open", a.name, "", err)
		}
		a.cache = c
	}

	folders, files := tree.Root.Counts()
	a.log().Debug("archive opened",
		"archive", a.name,
		"variant", tree.Variant.Name,
		"folders", folders,
		"files", files,
		"cache", a.cacheSize)
	return a, nil
}

// ArchiveFile is an Archive backed by an open file.
type ArchiveFile struct {
	*Archive
	file *os.File
}

// fileSource adapts an *os.File to ByteSource.
type fileSource struct {
	*os.File
	size int64
}

func (s *fileSource) Size() int64 { return s.size }

// OpenFile opens the archive at path. The caller must Close it.
func OpenFile(path string, opts ...Option) (*ArchiveFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError("open", path, "", fmt.Errorf("%w: %w", ErrIO, err))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newError("open", path, "", fmt.Errorf("%w: %w", ErrIO, err))
	}
	opts = append([]Option{WithName(path)}, opts...)
	a, err := Open(&fileSource{File: f, size: info.Size()}, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ArchiveFile{Archive: a, file: f}, nil
}

// Close closes the underlying file.
func (a *ArchiveFile) Close() error {
	return a.file.Close()
}

// Name returns the archive name set by WithName or OpenFile.
func (a *Archive) Name() string {
	return a.name
}

// Variant returns the detected or forced layout.
func (a *Archive) Variant() Variant {
	return a.tree.Variant
}

// Root returns the root folder. Metadata sidecars are not part of the tree.
//
// The tree must not be modified.
func (a *Archive) Root() *Folder {
	return a.tree.Root
}

// Len returns the number of files in the archive.
func (a *Archive) Len() int {
	_, files := a.tree.Root.Counts()
	return files
}

// Size returns the archive length in bytes.
func (a *Archive) Size() int64 {
	return a.source.Size()
}

// Fragments returns the number of fragment table entries, one per file or
// folder including the root.
func (a *Archive) Fragments() int {
	return a.tree.Fragments
}

// Lookup resolves a slash-separated path to a folder or file.
// "." names the root.
func (a *Archive) Lookup(path string) (Node, bool) {
	return a.tree.Root.Lookup(path, a.caseSensitive)
}

// Entry returns the file at path.
func (a *Archive) Entry(path string) (*File, bool) {
	n, ok := a.Lookup(path)
	if !ok {
		return nil, false
	}
	f, ok := n.(*File)
	return f, ok
}

var errStopWalk = errors.New("stop walk")

// Entries returns an iterator over every file and its path, depth-first in
// on-disk order. The iterator may be ranged over any number of times.
func (a *Archive) Entries() iter.Seq2[string, *File] {
	return func(yield func(string, *File) bool) {
		_ = a.tree.Root.Walk(func(p string, n Node) error { //nolint:errcheck // only errStopWalk is returned
			f, ok := n.(*File)
			if !ok {
				return nil
			}
			if !yield(p, f) {
				return errStopWalk
			}
			return nil
		})
	}
}

// Walk calls fn for every folder and file, depth-first in on-disk order.
// A folder is visited before its children.
func (a *Archive) Walk(fn WalkFunc) error {
	return a.tree.Root.Walk(fn)
}

// ReadFile returns the uncompressed content of the file at path.
//
// It reports ErrNotFound when path does not name a file, including paths
// that are not valid fs paths, and ErrCorruptEntry when the payload does not
// decode to the recorded size or fails checksum verification. ReadFile is safe for concurrent use; with WithContentCache
// concurrent reads of one entry are collapsed into a single decode.
func (a *Archive) ReadFile(path string) ([]byte, error) {
	if !fs.ValidPath(path) {
		return nil, &Error{
			Op:      "read",
			Archive: a.name,
			Path:    path,
			Offset:  -1,
			Kind:    ErrNotFound,
			Err:     &fs.PathError{Op: "readfile", Path: path, Err: fs.ErrInvalid},
		}
	}
	f, ok := a.Entry(path)
	if !ok {
		return nil, &Error{
			Op:      "read",
			Archive: a.name,
			Path:    path,
			Offset:  -1,
			Kind:    ErrNotFound,
			Err:     fs.ErrNotExist,
		}
	}
	content, err := a.read(f)
	if err != nil {
		return nil, a.entryError("read", path, f, err)
	}
	return content, nil
}

// entryError wraps err, defaulting the offset to f's payload.
func (a *Archive) entryError(op, path string, f *File, err error) error {
	err = newError(op, a.name, path, err)
	var e *Error
	if errors.As(err, &e) && e.Offset < 0 && f.Offset <= math.MaxInt64 {
		e.Offset = int64(f.Offset)
	}
	return err
}

func (a *Archive) read(f *File) ([]byte, error) {
	if a.cache == nil {
		return a.reader.ReadAll(f)
	}
	return a.cache.load(f, a.reader.ReadAll)
}
