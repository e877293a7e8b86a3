package layout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/hpk/internal/codec"
	"github.com/meigma/hpk/internal/hpktype"
	"github.com/meigma/hpk/internal/sizing"
)

// DefaultSpoolLimit is the largest compressed entry kept in memory between
// measuring and writing it.
const DefaultSpoolLimit = 4 << 20

// ErrEncoderUsed is returned when an Encoder is asked to write twice.
var ErrEncoderUsed = errors.New("hpk: encoder already used")

// PayloadFunc opens the content of the file at path. The encoder may call it
// more than once per file and expects identical bytes each time.
type PayloadFunc func(path string, f *hpktype.File) (io.ReadCloser, error)

// EncodeOptions controls an Encoder.
type EncodeOptions struct {
	// Payload opens file contents. Required.
	Payload PayloadFunc

	// Registry supplies codecs. Nil uses codec.Default().
	Registry *codec.Registry

	// StoreIfLarger stores an entry raw when compressing does not shrink it.
	StoreIfLarger bool

	// SpoolLimit bounds the compressed bytes kept per entry on the seeking
	// path. Zero uses DefaultSpoolLimit; negative disables spooling.
	SpoolLimit int

	// OnFile is called after each file has been written, with its final
	// offset, sizes and compression filled in.
	OnFile func(path string, f *hpktype.File)
}

// Encoder writes a planned tree as an archive.
//
// Each file's requested compression and chunk size are read from its
// hpktype.File (Compression, ChunkSize; zero chunk size means the variant
// default). Once written, the file's Offset, CompressedSize, Compression,
// ChunkSize and, for checksum variants, Checksum describe what was stored.
type Encoder struct {
	plan *Plan
	opts EncodeOptions

	used    bool
	retain  bool
	entries map[*hpktype.File]*entry
	sums    map[*hpktype.File]digest.Digest
	sidecar map[*hpktype.File][]byte
}

// NewEncoder creates an encoder for plan.
func NewEncoder(plan *Plan, opts EncodeOptions) *Encoder {
	if opts.Registry == nil {
		opts.Registry = codec.Default()
	}
	if opts.SpoolLimit == 0 {
		opts.SpoolLimit = DefaultSpoolLimit
	}
	return &Encoder{
		plan:    plan,
		opts:    opts,
		entries: make(map[*hpktype.File]*entry),
		sums:    make(map[*hpktype.File]digest.Digest),
		sidecar: make(map[*hpktype.File][]byte),
	}
}

// entry is the measured stored form of one file.
type entry struct {
	tag     hpktype.Compression
	size    uint64
	chunk   uint32
	offsets []uint32
	length  uint64
	spool   []byte
	spooled bool
	// verbatim keeps chunks uncompressed whenever they read back unchanged.
	verbatim bool
}

// WriteSeeker writes the archive in one pass, starting at w's current
// position, and patches the header last. It returns the archive length.
func (e *Encoder) WriteSeeker(ctx context.Context, w io.WriteSeeker) (int64, error) {
	if err := e.start(); err != nil {
		return 0, err
	}
	base, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", hpktype.ErrIO, err)
	}
	cw := &countingWriter{w: w}
	v := e.plan.Variant
	if _, err := cw.Write(make([]byte, v.HeaderSize())); err != nil {
		return 0, err
	}

	p := e.newPass(cw)
	if err := p.run(ctx); err != nil {
		return 0, err
	}
	fsOffset, fsLength, err := p.table()
	if err != nil {
		return 0, err
	}
	end := p.pos

	if _, err := w.Seek(base, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: %w", hpktype.ErrIO, err)
	}
	if _, err := cw.Write(appendHeader(nil, newHeader(v, fsOffset, fsLength), v.FieldWidth)); err != nil {
		return 0, err
	}
	total, err := sizing.ToInt64(end)
	if err != nil {
		return 0, err
	}
	if _, err := w.Seek(base+total, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: %w", hpktype.ErrIO, err)
	}
	return total, nil
}

// WriteTo writes the archive to a sink that cannot seek. Every entry is
// compressed twice: once to lay out offsets for the header, once to write it.
// The output is identical to WriteSeeker's.
func (e *Encoder) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	if err := e.start(); err != nil {
		return 0, err
	}
	e.retain = true

	measure := e.newPass(nil)
	if err := measure.run(ctx); err != nil {
		return 0, err
	}
	fsOffset := measure.pos
	fsLength := uint64(len(measure.frags)) * uint64(e.plan.Variant.FragmentSize()) //nolint:gosec // bounded by MaxInt32 entries

	cw := &countingWriter{w: w}
	v := e.plan.Variant
	if _, err := cw.Write(appendHeader(nil, newHeader(v, fsOffset, fsLength), v.FieldWidth)); err != nil {
		return cw.n, err
	}
	emit := e.newPass(cw)
	if err := emit.run(ctx); err != nil {
		return cw.n, err
	}
	if emit.pos != fsOffset {
		return cw.n, fmt.Errorf("%w: payload region changed between passes", hpktype.ErrIO)
	}
	if _, _, err := emit.table(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

func (e *Encoder) start() error {
	if e.used {
		return ErrEncoderUsed
	}
	e.used = true
	return nil
}

// pass walks the planned tree once, laying out (and, when w is set,
// writing) payloads and folder runs.
type pass struct {
	e     *Encoder
	w     io.Writer
	pos   uint64
	frags []Fragment
}

func (e *Encoder) newPass(w io.Writer) *pass {
	return &pass{
		e:     e,
		w:     w,
		pos:   uint64(e.plan.Variant.HeaderSize()), //nolint:gosec // small constant
		frags: make([]Fragment, e.plan.Fragments()),
	}
}

func (p *pass) run(ctx context.Context) error {
	return p.folder(ctx, "", p.e.plan.Root)
}

func (p *pass) folder(ctx context.Context, path string, f *hpktype.Folder) error {
	for _, c := range f.Children {
		cpath := c.NodeName()
		if path != "" {
			cpath = path + "/" + cpath
		}
		var err error
		switch n := c.(type) {
		case *hpktype.Folder:
			err = p.folder(ctx, cpath, n)
		case *hpktype.File:
			err = p.file(ctx, cpath, n)
		}
		if err != nil {
			return err
		}
	}
	run := p.e.plan.folderRun(f)
	return p.place(f, run, uint64(len(run)))
}

// place records a fragment at the current position and writes data when
// the pass emits.
func (p *pass) place(n hpktype.Node, data []byte, length uint64) error {
	frag := Fragment{Offset: p.pos, Length: length}
	end, ok := sizing.AddUint64(frag.Offset, frag.Length)
	if !ok || end > p.e.plan.Variant.MaxField() {
		return fmt.Errorf("%w: archive exceeds %d bytes for variant %q",
			hpktype.ErrSizeOverflow, p.e.plan.Variant.MaxField(), p.e.plan.Variant.Name)
	}
	idx, _ := p.e.plan.Index(n)
	p.frags[idx-1] = frag
	if p.w != nil && data != nil {
		if _, err := p.w.Write(data); err != nil {
			return err
		}
	}
	p.pos = end
	return nil
}

func (p *pass) file(ctx context.Context, path string, f *hpktype.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := p.e
	if e.plan.IsSidecar(f) {
		if _, ok := e.sidecar[f]; !ok {
			data := e.sidecarContent(f)
			e.sidecar[f] = data
			f.Size = uint64(len(data))
			f.Compression = hpktype.CompressionNone
		}
	}

	ent, ok := e.entries[f]
	if !ok {
		spool := 0
		if p.w != nil && !e.retain {
			spool = e.opts.SpoolLimit
		}
		var err error
		ent, err = e.measure(path, f, spool)
		if err != nil {
			return &EntryError{Path: path, Err: err}
		}
		if e.retain {
			e.entries[f] = ent
		}
	}

	offset := p.pos
	if err := p.place(f, nil, ent.length); err != nil {
		return err
	}
	if p.w == nil {
		return nil
	}
	if err := e.emit(p.w, path, f, ent); err != nil {
		return &EntryError{Path: path, Err: err}
	}
	ent.spool = nil

	f.Offset = offset
	f.Size = ent.size
	f.CompressedSize = ent.length
	f.Compression = ent.tag
	f.ChunkSize = ent.chunk
	if d, ok := e.sums[f]; ok {
		f.Checksum = d
	}
	if e.opts.OnFile != nil {
		e.opts.OnFile(path, f)
	}
	return nil
}

// table writes the fragment table at the current position.
func (p *pass) table() (offset, length uint64, err error) {
	v := p.e.plan.Variant
	b := make([]byte, 0, len(p.frags)*v.FragmentSize())
	for _, f := range p.frags {
		b = appendFragment(b, f, v.FieldWidth)
	}
	offset = p.pos
	length = uint64(len(b))
	end, ok := sizing.AddUint64(offset, length)
	if !ok || end > v.MaxField() {
		return 0, 0, fmt.Errorf("%w: fragment table beyond %d bytes", hpktype.ErrSizeOverflow, v.MaxField())
	}
	if p.w != nil {
		if _, err := p.w.Write(b); err != nil {
			return 0, 0, err
		}
	}
	p.pos = end
	return offset, length, nil
}

func (e *Encoder) sidecarContent(f *hpktype.File) []byte {
	switch e.plan.sidecars[f] {
	case FileDatesName:
		return fileDatesContent(e.plan.user)
	case ChecksumsName:
		return checksumsContent(e.plan.user, e.sums)
	}
	return nil
}

func (e *Encoder) open(path string, f *hpktype.File) (io.ReadCloser, error) {
	if data, ok := e.sidecar[f]; ok {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	if e.opts.Payload == nil {
		return nil, fmt.Errorf("%w: no payload source", hpktype.ErrIO)
	}
	rc, err := e.opts.Payload(path, f)
	if err != nil {
		return nil, fmt.Errorf("%w: open payload: %w", hpktype.ErrIO, err)
	}
	return rc, nil
}

// measure reads a file once, choosing its stored form and computing chunk
// offsets. Compressed chunks are kept when they fit in spool bytes.
//
// A payload stored raw must not read back as a compression block. When its
// first bytes form a sound block header it is framed as a Deflate block
// whose chunks are kept verbatim instead.
func (e *Encoder) measure(path string, f *hpktype.File, spool int) (*entry, error) {
	rc, err := e.open(path, f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	scan := newBlockScan(f.Size)
	var r io.Reader = io.TeeReader(rc, scan)
	var dg digest.Digester
	if e.plan.Variant.Checksums && !e.plan.IsSidecar(f) {
		dg = digest.Canonical.Digester()
		r = io.TeeReader(r, dg.Hash())
	}

	ent := &entry{tag: f.Compression, size: f.Size, length: f.Size}
	if !blockable(f.Size) {
		ent.tag = hpktype.CompressionNone
	}
	if ent.tag == hpktype.CompressionNone {
		if err := copyExact(io.Discard, r, f.Size); err != nil {
			return nil, err
		}
	} else {
		if _, err := e.opts.Registry.Resolve(ent.tag); err != nil {
			return nil, err
		}
		ent.chunk = e.chunkSize(f)
		if err := e.measureBlock(r, ent, spool); err != nil {
			return nil, err
		}
	}
	if dg != nil {
		e.sums[f] = dg.Digest()
	}

	if ent.tag != hpktype.CompressionNone && e.opts.StoreIfLarger && ent.length >= ent.size {
		ent = &entry{tag: hpktype.CompressionNone, size: ent.size, length: ent.size}
	}
	if ent.tag == hpktype.CompressionNone && scan.Block() {
		return e.measureVerbatim(path, f, spool)
	}
	return ent, nil
}

// measureVerbatim frames a raw payload as a Deflate block of verbatim chunks.
func (e *Encoder) measureVerbatim(path string, f *hpktype.File, spool int) (*entry, error) {
	if !blockable(f.Size) {
		return nil, fmt.Errorf("%w: raw payload of %d bytes opens with a compression header", hpktype.ErrCorruptEntry, f.Size)
	}
	if _, err := e.opts.Registry.Resolve(hpktype.CompressionDeflate); err != nil {
		return nil, err
	}
	rc, err := e.open(path, f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	ent := &entry{tag: hpktype.CompressionDeflate, size: f.Size, chunk: e.chunkSize(f), verbatim: true}
	if err := e.measureBlock(rc, ent, spool); err != nil {
		return nil, err
	}
	if ent.tag == hpktype.CompressionNone {
		return nil, fmt.Errorf("%w: raw payload of %d bytes opens with a compression header", hpktype.ErrCorruptEntry, f.Size)
	}
	return ent, nil
}

func (e *Encoder) chunkSize(f *hpktype.File) uint32 {
	if f.ChunkSize != 0 {
		return f.ChunkSize
	}
	return e.plan.Variant.ChunkSize
}

func (e *Encoder) measureBlock(r io.Reader, ent *entry, spool int) error {
	n := sizing.Chunks(ent.size, ent.chunk)
	ent.offsets = make([]uint32, 0, n)
	ent.spooled = spool > 0
	pos := tableSize(n)
	overflow := false
	buf := make([]byte, ent.chunk)
	for remaining := ent.size; remaining > 0; {
		raw := buf[:min(uint64(ent.chunk), remaining)]
		if _, err := io.ReadFull(r, raw); err != nil {
			return payloadErr(err)
		}
		stored, err := e.encodeChunk(ent, raw)
		if err != nil {
			return err
		}
		ent.offsets = append(ent.offsets, uint32(min(pos, math.MaxUint32))) //nolint:gosec // clamped
		pos += uint64(len(stored))
		if pos > math.MaxUint32 {
			overflow = true
		}
		if ent.spooled {
			if len(ent.spool)+len(stored) > spool {
				ent.spooled = false
				ent.spool = nil
			} else {
				ent.spool = append(ent.spool, stored...)
			}
		}
		remaining -= uint64(len(raw))
	}
	if err := expectEOF(r); err != nil {
		return err
	}
	ent.length = pos
	if overflow {
		*ent = entry{tag: hpktype.CompressionNone, size: ent.size, length: ent.size}
	}
	return nil
}

// encodeChunk compresses one chunk, keeping it raw unless the codec shrinks
// it or the raw bytes would read back as a stream.
func (e *Encoder) encodeChunk(ent *entry, raw []byte) ([]byte, error) {
	verbatim := !readsAsStream(e.opts.Registry, ent.tag, raw)
	if ent.verbatim && verbatim {
		return raw, nil
	}
	enc, err := e.opts.Registry.Encode(ent.tag, raw)
	if err != nil {
		return nil, err
	}
	if len(enc) >= len(raw) && verbatim {
		return raw, nil
	}
	return enc, nil
}

func (e *Encoder) emit(w io.Writer, path string, f *hpktype.File, ent *entry) error {
	if ent.tag != hpktype.CompressionNone && ent.spooled {
		if _, err := w.Write(appendBlockHeader(nil, ent.tag, ent.size, ent.chunk, ent.offsets)); err != nil {
			return err
		}
		_, err := w.Write(ent.spool)
		return err
	}

	rc, err := e.open(path, f)
	if err != nil {
		return err
	}
	defer rc.Close()

	if ent.tag == hpktype.CompressionNone {
		return copyExact(w, rc, ent.size)
	}
	if _, err := w.Write(appendBlockHeader(nil, ent.tag, ent.size, ent.chunk, ent.offsets)); err != nil {
		return err
	}
	buf := make([]byte, ent.chunk)
	remaining := ent.size
	for i := range ent.offsets {
		raw := buf[:min(uint64(ent.chunk), remaining)]
		if _, err := io.ReadFull(rc, raw); err != nil {
			return payloadErr(err)
		}
		stored, err := e.encodeChunk(ent, raw)
		if err != nil {
			return err
		}
		want := ent.length
		if i+1 < len(ent.offsets) {
			want = uint64(ent.offsets[i+1])
		}
		if uint64(ent.offsets[i])+uint64(len(stored)) != want {
			return fmt.Errorf("%w: chunk %d changed size between passes", hpktype.ErrIO, i)
		}
		if _, err := w.Write(stored); err != nil {
			return err
		}
		remaining -= uint64(len(raw))
	}
	return expectEOF(rc)
}

// copyExact copies exactly n bytes and fails if src holds more or fewer.
func copyExact(dst io.Writer, src io.Reader, n uint64) error {
	size, err := sizing.ToInt64(n)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(dst, src, size); err != nil {
		return payloadErr(err)
	}
	return expectEOF(src)
}

func expectEOF(r io.Reader) error {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	switch {
	case err == nil:
		return fmt.Errorf("%w: payload is larger than its declared size", hpktype.ErrIO)
	case errors.Is(err, io.EOF):
		return nil
	default:
		return fmt.Errorf("%w: %w", hpktype.ErrIO, err)
	}
}

func payloadErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: payload is smaller than its declared size", hpktype.ErrIO)
	}
	if errors.Is(err, hpktype.ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %w", hpktype.ErrIO, err)
}
