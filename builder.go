package hpk

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/meigma/hpk/internal/file"
	"github.com/meigma/hpk/internal/layout"
	"github.com/meigma/hpk/internal/write"
)

// Builder collects entries and writes them as an archive.
//
// Entries are only opened while the archive is written. A Builder writes
// exactly once; it never deletes, truncates or retries its sink, so after a
// failure the sink holds a partial archive the caller must discard.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	cfg     builderConfig
	root    *Folder
	sources map[*File]PayloadSource
	files   int
	bytes   uint64
	done    bool
}

// NewBuilder creates an empty Builder.
//
// By default entries are compressed with CompressionDeflate, laid out as
// VariantClassic, and stored raw when compression does not shrink them.
func NewBuilder(opts ...BuildOption) *Builder {
	cfg := builderConfig{
		compression:   CompressionDeflate,
		variant:       VariantClassic,
		timestamps:    true,
		storeIfLarger: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Builder{
		cfg:     cfg,
		root:    &Folder{},
		sources: make(map[*File]PayloadSource),
	}
}

// log returns the logger, falling back to a discard logger if nil.
func (b *Builder) log() *slog.Logger {
	if b.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.cfg.logger
}

// reportProgress sends a progress event if a callback is configured.
func (b *Builder) reportProgress(stage ProgressStage, path string, bytesDone uint64, filesDone int) {
	if b.cfg.progress == nil {
		return
	}
	b.cfg.progress(ProgressEvent{
		Stage:      stage,
		Path:       path,
		BytesDone:  bytesDone,
		BytesTotal: b.bytes,
		FilesDone:  filesDone,
		FilesTotal: b.files,
	})
}

// Len returns the number of files added so far.
func (b *Builder) Len() int {
	return b.files
}

// Add schedules a file of size bytes whose content src provides.
//
// Missing parent folders are created. The file is compressed with the
// configured codec unless a skip predicate says otherwise. size must match
// the content exactly; a mismatch fails the write with ErrIO.
func (b *Builder) Add(path string, size uint64, modTime time.Time, src PayloadSource) error {
	p := NormalizePath(path)
	tag := b.cfg.compression
	if tag != CompressionNone && len(b.cfg.skipCompression) > 0 {
		info := file.NewInfo(&File{Name: file.Base(p), Size: size, ModTime: modTime})
		if write.ShouldSkip(p, info, b.cfg.skipCompression) {
			tag = CompressionNone
		}
	}
	return b.add(p, size, modTime, src, tag)
}

// AddWithCompression is Add with an explicit codec. Skip predicates are not
// consulted.
func (b *Builder) AddWithCompression(path string, size uint64, modTime time.Time, src PayloadSource, c Compression) error {
	return b.add(NormalizePath(path), size, modTime, src, c)
}

func (b *Builder) add(p string, size uint64, modTime time.Time, src PayloadSource, tag Compression) error {
	if b.done {
		return newError("add", "", p, ErrBuilderFinalized)
	}
	if !tag.Valid() {
		return newError("add", "", p, fmt.Errorf("%w: tag %d", ErrUnknownCompression, tag))
	}
	if src == nil {
		return newError("add", "", p, errors.New("nil payload source"))
	}
	if b.bytes > ^uint64(0)-size {
		return newError("add", "", p, ErrSizeOverflow)
	}
	dir, name, err := b.parent(p)
	if err != nil {
		return newError("add", "", p, err)
	}
	if _, exists := dir.Child(name, b.cfg.caseSensitive); exists {
		return newError("add", "", p, ErrDuplicateEntry)
	}
	if !b.cfg.timestamps {
		modTime = time.Time{}
	}

	f := &File{Name: name, Size: size, Compression: tag, ModTime: modTime}
	dir.Children = append(dir.Children, f)
	b.sources[f] = src
	b.files++
	b.bytes += size
	return nil
}

// AddFolder adds a folder and any missing parents. Adding an existing
// folder is a no-op.
func (b *Builder) AddFolder(path string) error {
	p := NormalizePath(path)
	if b.done {
		return newError("add", "", p, ErrBuilderFinalized)
	}
	dir, name, err := b.parent(p)
	if err != nil {
		return newError("add", "", p, err)
	}
	if n, exists := dir.Child(name, b.cfg.caseSensitive); exists {
		if _, ok := n.(*Folder); ok {
			return nil
		}
		return newError("add", "", p, ErrDuplicateEntry)
	}
	dir.Children = append(dir.Children, &Folder{Name: name})
	return nil
}

// parent resolves the folder that will hold p, creating missing folders.
func (b *Builder) parent(p string) (*Folder, string, error) {
	if p == "." {
		return nil, "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	parts := strings.Split(p, "/")
	for _, part := range parts {
		if err := layout.ValidName(part); err != nil {
			return nil, "", err
		}
	}
	if layout.IsSidecarName(strings.ToLower(parts[0])) {
		return nil, "", fmt.Errorf("%w: %q is reserved for archive metadata", ErrInvalidPath, parts[0])
	}
	dir := b.root
	for _, part := range parts[:len(parts)-1] {
		n, ok := dir.Child(part, b.cfg.caseSensitive)
		if !ok {
			sub := &Folder{Name: part}
			dir.Children = append(dir.Children, sub)
			dir = sub
			continue
		}
		sub, ok := n.(*Folder)
		if !ok {
			return nil, "", fmt.Errorf("%w: %q is a file", ErrDuplicateEntry, n.NodeName())
		}
		dir = sub
	}
	return dir, parts[len(parts)-1], nil
}

// Finalize writes the archive to w, starting at w's current position, and
// seeks back to patch the header last. Each entry is compressed once.
func (b *Builder) Finalize(w io.WriteSeeker) error {
	_, err := b.write(context.Background(), func(ctx context.Context, enc *layout.Encoder) (int64, error) {
		return enc.WriteSeeker(ctx, w)
	})
	return err
}

// WriteTo writes the archive to a sink that cannot seek. Every entry is
// opened and compressed twice; the output is identical to Finalize's.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	return b.write(context.Background(), func(ctx context.Context, enc *layout.Encoder) (int64, error) {
		return enc.WriteTo(ctx, w)
	})
}

// writeAny uses the seeking path when w supports it.
func (b *Builder) writeAny(ctx context.Context, w io.Writer) (int64, error) {
	if ws, ok := w.(io.WriteSeeker); ok {
		if _, err := ws.Seek(0, io.SeekCurrent); err == nil {
			return b.write(ctx, func(ctx context.Context, enc *layout.Encoder) (int64, error) {
				return enc.WriteSeeker(ctx, ws)
			})
		}
	}
	return b.write(ctx, func(ctx context.Context, enc *layout.Encoder) (int64, error) {
		return enc.WriteTo(ctx, w)
	})
}

func (b *Builder) write(ctx context.Context, run func(context.Context, *layout.Encoder) (int64, error)) (int64, error) {
	if b.done {
		return 0, newError("write", "", "", ErrBuilderFinalized)
	}

	v := b.cfg.variant
	if b.cfg.chunkSize != 0 {
		v.ChunkSize = b.cfg.chunkSize
	}
	if b.cfg.sortEntries {
		sortFolder(b.root)
	}
	plan, err := layout.NewPlan(b.root, v)
	if err != nil {
		return 0, newError("write", "", "", err)
	}
	b.done = true

	b.log().Debug("writing archive", "variant", v.Name, "files", b.files, "bytes", b.bytes)
	var filesDone int
	var bytesDone uint64
	enc := layout.NewEncoder(plan, layout.EncodeOptions{
		Payload:       b.payload,
		Registry:      b.cfg.registry,
		StoreIfLarger: b.cfg.storeIfLarger,
		SpoolLimit:    b.cfg.spoolLimit,
		OnFile: func(path string, f *File) {
			if plan.IsSidecar(f) {
				return
			}
			filesDone++
			bytesDone += f.Size
			b.log().Debug("entry written",
				"path", path,
				"size", f.Size,
				"stored", f.CompressedSize,
				"compression", f.Compression.String())
			b.reportProgress(StageWriting, path, bytesDone, filesDone)
		},
	})

	n, err := run(ctx, enc)
	if err != nil {
		var ee *layout.EntryError
		if errors.As(err, &ee) {
			return n, newError("write", "", ee.Path, ee.Err)
		}
		return n, newError("write", "", "", err)
	}
	b.log().Debug("archive written", "variant", v.Name, "files", filesDone, "length", n)
	return n, nil
}

func (b *Builder) payload(path string, f *File) (io.ReadCloser, error) {
	src, ok := b.sources[f]
	if !ok {
		return nil, fmt.Errorf("no payload source for %q", path)
	}
	return src.Open()
}

// sortFolder orders children by lowercased name, then by exact name.
func sortFolder(f *Folder) {
	slices.SortStableFunc(f.Children, func(x, y Node) int {
		return cmp.Or(
			strings.Compare(strings.ToLower(x.NodeName()), strings.ToLower(y.NodeName())),
			strings.Compare(x.NodeName(), y.NodeName()),
		)
	})
	for _, c := range f.Children {
		if sub, ok := c.(*Folder); ok {
			sortFolder(sub)
		}
	}
}
