// Package batch extracts many archive entries into a Sink.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/hpk/internal/file"
	"github.com/meigma/hpk/internal/hpktype"
)

// Processor reads entries with a file.Reader and hands their content to a
// Sink.
type Processor struct {
	reader   *file.Reader
	workers  int // <=1 = serial, >1 = bounded parallel
	logger   *slog.Logger
	progress hpktype.ProgressFunc
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Processor) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkers sets the number of entries decoded at once.
// Values <= 1 process entries serially in the order given.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithProcessorLogger sets the logger for batch processing operations.
// If not set, logging is disabled.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithProcessorProgress sets a callback invoked after each extracted entry.
func WithProcessorProgress(fn hpktype.ProgressFunc) ProcessorOption {
	return func(p *Processor) {
		p.progress = fn
	}
}

// NewProcessor creates a new batch processor.
func NewProcessor(reader *file.Reader, opts ...ProcessorOption) *Processor {
	p := &Processor{reader: reader}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process reads each entry and writes it to the sink.
//
// Serial processing visits entries in order. Processing stops on the first
// error; with several workers the first error wins and entries not yet
// started are abandoned.
func (p *Processor) Process(ctx context.Context, entries []*Entry, sink Sink) (ProcessStats, error) {
	var c counters
	toProcess := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if sink.ShouldProcess(e) {
			toProcess = append(toProcess, e)
			c.total += e.File.Size
			continue
		}
		c.skipped.Add(1)
	}
	c.files = len(toProcess)
	p.log().Debug("batch processing", "entries", len(toProcess), "skipped", c.skipped.Load(), "workers", max(p.workers, 1))

	if p.workers <= 1 {
		for _, e := range toProcess {
			if err := ctx.Err(); err != nil {
				return c.stats(), err
			}
			if err := p.processEntry(e, sink, &c); err != nil {
				return c.stats(), err
			}
		}
		return c.stats(), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, e := range toProcess {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return p.processEntry(e, sink, &c)
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return c.stats(), err
}

func (p *Processor) processEntry(e *Entry, sink Sink, c *counters) error {
	content, err := p.reader.ReadAll(e.File)
	if err != nil {
		return &EntryError{Path: e.Path, Err: err}
	}
	if err := sink.Put(e, content); err != nil {
		return &EntryError{Path: e.Path, Err: err}
	}
	done := c.processed.Add(1)
	bytesDone := c.bytes.Add(uint64(len(content)))
	p.log().Debug("entry extracted", "path", e.Path, "size", len(content))
	if p.progress != nil {
		p.progress(hpktype.ProgressEvent{
			Stage:      hpktype.StageExtracting,
			Path:       e.Path,
			BytesDone:  bytesDone,
			BytesTotal: c.total,
			FilesDone:  int(done),
			FilesTotal: c.files,
		})
	}
	return nil
}

// EntryError names the entry a batch failure belongs to.
type EntryError struct {
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("batch: %s: %v", e.Path, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }
