package hpk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/meigma/hpk/internal/batch"
)

// Materializer receives extracted files.
//
// Materialize is called once per file with its verified content. With
// ExtractWithWorkers it may be called from several goroutines at once.
// data must not be retained after Materialize returns.
type Materializer interface {
	Materialize(path string, data []byte, modTime time.Time) error
}

// MaterializerFunc adapts a function to a Materializer.
type MaterializerFunc func(path string, data []byte, modTime time.Time) error

// Materialize implements Materializer.
func (f MaterializerFunc) Materialize(path string, data []byte, modTime time.Time) error {
	return f(path, data, modTime)
}

// FolderMaterializer is implemented by Materializers that also want to
// create folders, including empty ones. Folders are reported in walk order
// before any file is extracted.
type FolderMaterializer interface {
	MaterializeFolder(path string) error
}

// TimestampApplier sets the modification time of an extracted file.
// path is the file's location on disk.
type TimestampApplier = batch.TimestampApplier

// extractConfig holds configuration for extraction.
type extractConfig struct {
	ctx           context.Context
	workers       int
	overwrite     bool
	preserveTimes bool
	applier       TimestampApplier
	progress      ProgressFunc
}

// ExtractOption configures ExtractAll and ExtractToDir.
type ExtractOption func(*extractConfig)

// ExtractWithContext stops extraction when ctx is done.
func ExtractWithContext(ctx context.Context) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.ctx = ctx
	}
}

// ExtractWithWorkers sets how many entries are decoded at once.
// Values <= 1 extract serially in depth-first order (the default).
func ExtractWithWorkers(n int) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.workers = n
	}
}

// ExtractWithOverwrite replaces existing files in ExtractToDir.
// By default existing files are skipped.
func ExtractWithOverwrite(overwrite bool) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.overwrite = overwrite
	}
}

// ExtractWithPreserveTimes sets recorded modification times on files written
// by ExtractToDir.
func ExtractWithPreserveTimes(preserve bool) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.preserveTimes = preserve
	}
}

// ExtractWithTimestampApplier calls fn for each file written by ExtractToDir
// that has a recorded modification time.
func ExtractWithTimestampApplier(fn TimestampApplier) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.applier = fn
	}
}

// ExtractWithProgress sets a callback invoked after each extracted file.
func ExtractWithProgress(fn ProgressFunc) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.progress = fn
	}
}

func newExtractConfig(opts []ExtractOption) *extractConfig {
	cfg := &extractConfig{ctx: context.Background()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// materializerSink adapts a Materializer to batch.Sink.
type materializerSink struct {
	m Materializer
}

func (s materializerSink) ShouldProcess(*batch.Entry) bool { return true }

func (s materializerSink) Put(e *batch.Entry, content []byte) error {
	return s.m.Materialize(e.Path, content, e.File.ModTime)
}

// ExtractAll hands every file to m, depth-first in on-disk order.
//
// Extraction stops at the first error, which is returned as an *Error
// naming the entry. With ExtractWithWorkers the first error wins.
func (a *Archive) ExtractAll(m Materializer, opts ...ExtractOption) error {
	cfg := newExtractConfig(opts)
	if fm, ok := m.(FolderMaterializer); ok {
		if err := a.walkFolders(fm.MaterializeFolder); err != nil {
			return err
		}
	}
	return a.extract(cfg, materializerSink{m: m})
}

// ExtractToDir writes every file below destDir, creating destDir and all
// folders, including empty ones. Files are written to a temporary name and
// renamed into place.
//
// By default existing files are skipped and modification times are not
// applied; see ExtractWithOverwrite, ExtractWithPreserveTimes and
// ExtractWithTimestampApplier.
func (a *Archive) ExtractToDir(destDir string, opts ...ExtractOption) error {
	cfg := newExtractConfig(opts)
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return newError("extract", a.name, "", fmt.Errorf("%w: %w", ErrIO, err))
	}
	sink := batch.NewFileSink(destDir,
		batch.WithOverwrite(cfg.overwrite),
		batch.WithPreserveTimes(cfg.preserveTimes),
		batch.WithTimestampApplier(cfg.applier),
	)
	if err := a.walkFolders(sink.MkdirAll); err != nil {
		return err
	}
	return a.extract(cfg, sink)
}

func (a *Archive) walkFolders(fn func(path string) error) error {
	return a.Walk(func(p string, n Node) error {
		if _, ok := n.(*Folder); !ok {
			return nil
		}
		if err := fn(p); err != nil {
			return newError("extract", a.name, p, err)
		}
		return nil
	})
}

func (a *Archive) extract(cfg *extractConfig, sink batch.Sink) error {
	entries := make([]*batch.Entry, 0, a.Len())
	for p, f := range a.Entries() {
		entries = append(entries, &batch.Entry{Path: p, File: f})
	}

	procOpts := []batch.ProcessorOption{batch.WithWorkers(cfg.workers)}
	if cfg.progress != nil {
		procOpts = append(procOpts, batch.WithProcessorProgress(cfg.progress))
	}
	if a.logger != nil {
		procOpts = append(procOpts, batch.WithProcessorLogger(a.logger))
	}
	proc := batch.NewProcessor(a.reader, procOpts...)

	stats, err := proc.Process(cfg.ctx, entries, sink)
	if err != nil {
		var ee *batch.EntryError
		if errors.As(err, &ee) {
			if f, ok := a.Entry(ee.Path); ok {
				return a.entryError("extract", ee.Path, f, ee.Err)
			}
			return newError("extract", a.name, ee.Path, ee.Err)
		}
		return newError("extract", a.name, "", err)
	}
	a.log().Debug("extraction complete",
		"archive", a.name,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"bytes", stats.TotalBytes)
	return nil
}
