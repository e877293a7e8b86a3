package layout

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/meigma/hpk/internal/binparse"
	"github.com/meigma/hpk/internal/codec"
	"github.com/meigma/hpk/internal/hpktype"
	"github.com/meigma/hpk/internal/sizing"
)

// DefaultMaxDepth bounds folder nesting accepted by Decode.
const DefaultMaxDepth = 256

// DefaultMaxSidecarSize bounds the uncompressed size of a metadata sidecar
// read by Decode (64 MiB).
const DefaultMaxSidecarSize = 64 << 20

// DecodeOptions controls Decode.
type DecodeOptions struct {
	// Variant forces a layout. Nil detects the field width from the header
	// and sidecars from the root entries.
	Variant *hpktype.Variant

	// Registry decodes compressed sidecars. Nil uses codec.Default().
	Registry *codec.Registry

	// CaseSensitive controls sibling collision checks and sidecar lookups.
	CaseSensitive bool

	// MaxDepth bounds folder nesting. Zero uses DefaultMaxDepth.
	MaxDepth int

	// MaxSidecarSize bounds the uncompressed size of a sidecar. Zero uses
	// DefaultMaxSidecarSize.
	MaxSidecarSize uint64
}

// Tree is a decoded archive directory.
type Tree struct {
	Header  Header
	Variant hpktype.Variant
	Root    *hpktype.Folder
	// Fragments counts the entries of the fragment table. With several
	// fragments per file each entry spans that many table records.
	Fragments int
}

// Decode parses the header, fragment table and folder hierarchy of the
// archive held by src. Payloads are only touched to classify their
// compression and to read metadata sidecars.
func Decode(src io.ReaderAt, size int64, opts DecodeOptions) (*Tree, error) {
	if opts.Registry == nil {
		opts.Registry = codec.Default()
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxSidecarSize == 0 {
		opts.MaxSidecarSize = DefaultMaxSidecarSize
	}

	h, width, err := decodeHeader(src, size)
	if err != nil {
		return nil, err
	}
	if opts.Variant != nil && opts.Variant.FieldWidth != width {
		return nil, fmt.Errorf("%w: header uses %d-byte fields, variant %q expects %d",
			hpktype.ErrInvalidFormat, width, opts.Variant.Name, opts.Variant.FieldWidth)
	}

	frags, err := decodeFragments(src, size, h, width)
	if err != nil {
		return nil, err
	}

	entries := len(frags) / int(h.FragmentsPerFile)
	d := &decoder{
		src:     src,
		size:    size,
		frags:   frags,
		perFile: int(h.FragmentsPerFile),
		visited: make([]bool, entries),
		opts:    opts,
	}
	d.visited[0] = true
	root := &hpktype.Folder{}
	if err := d.folder(root, "", 0, 0); err != nil {
		return nil, err
	}

	t := &Tree{Header: h, Root: root, Fragments: entries}
	if err := t.applySidecars(src, opts); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeHeader(src io.ReaderAt, size int64) (Header, int, error) {
	if size < int64(len(Signature))+4 {
		return Header{}, 0, fmt.Errorf("%w: %d bytes is too short for a header", hpktype.ErrInvalidFormat, size)
	}
	prefix, err := readAt(src, 0, len(Signature)+4)
	if err != nil {
		return Header{}, 0, err
	}
	if !bytes.Equal(prefix[:len(Signature)], Signature) {
		return Header{}, 0, fmt.Errorf("%w: bad signature %q", hpktype.ErrInvalidFormat, prefix[:len(Signature)])
	}
	dataOffset := uint32(prefix[4]) | uint32(prefix[5])<<8 | uint32(prefix[6])<<16 | uint32(prefix[7])<<24
	width, ok := widthForDataOffset(dataOffset)
	if !ok {
		return Header{}, 0, fmt.Errorf("%w: unsupported header length %d", hpktype.ErrInvalidFormat, dataOffset)
	}
	if size < int64(dataOffset) {
		return Header{}, 0, fmt.Errorf("%w: truncated header", hpktype.ErrInvalidFormat)
	}
	raw, err := readAt(src, 0, int(dataOffset))
	if err != nil {
		return Header{}, 0, err
	}
	h, err := binparse.Parse(headerParser(width), raw, 0)
	if err != nil {
		return Header{}, 0, fmt.Errorf("%w: %w", hpktype.ErrInvalidFormat, err)
	}
	if h.FragmentsPerFile == 0 {
		return Header{}, 0, fmt.Errorf("%w: zero fragments per file", hpktype.ErrInvalidFormat)
	}
	return h, width, nil
}

func decodeFragments(src io.ReaderAt, size int64, h Header, width int) ([]Fragment, error) {
	fragSize := uint64(2 * width) //nolint:gosec // width is 4 or 8
	if h.FilesystemLength == 0 || h.FilesystemLength%fragSize != 0 {
		return nil, fmt.Errorf("%w: fragment table length %d", hpktype.ErrInvalidFormat, h.FilesystemLength)
	}
	if !sizing.InRange(h.FilesystemOffset, h.FilesystemLength, size) {
		return nil, fmt.Errorf("%w: fragment table [%d, +%d) beyond %d bytes",
			hpktype.ErrOutOfBounds, h.FilesystemOffset, h.FilesystemLength, size)
	}
	count := h.FilesystemLength / fragSize
	if count > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d fragments", hpktype.ErrInvalidFormat, count)
	}
	if count%uint64(h.FragmentsPerFile) != 0 {
		return nil, fmt.Errorf("%w: %d fragments do not split into entries of %d",
			hpktype.ErrInvalidFormat, count, h.FragmentsPerFile)
	}
	raw, err := readAt(src, h.FilesystemOffset, int(h.FilesystemLength)) //nolint:gosec // bounded by source size
	if err != nil {
		return nil, err
	}
	frags, err := binparse.Parse(binparse.Count(int(count), fragmentParser(width)), raw, int64(h.FilesystemOffset)) //nolint:gosec // in range
	if err != nil {
		return nil, fmt.Errorf("%w: %w", hpktype.ErrInvalidFormat, err)
	}
	return frags, nil
}

type decoder struct {
	src     io.ReaderAt
	size    int64
	frags   []Fragment
	perFile int
	visited []bool
	opts    DecodeOptions
}

// pieces returns the fragments that make up entry idx.
func (d *decoder) pieces(idx int) []Fragment {
	return d.frags[idx*d.perFile : (idx+1)*d.perFile]
}

// extents returns the non-empty fragments of entry idx after checking that
// each lies inside the source.
func (d *decoder) extents(idx int) ([]Fragment, error) {
	pieces := d.pieces(idx)
	out := make([]Fragment, 0, len(pieces))
	for _, f := range pieces {
		if !sizing.InRange(f.Offset, f.Length, d.size) {
			return nil, fmt.Errorf("%w: fragment [%d, +%d) beyond %d bytes",
				hpktype.ErrOutOfBounds, f.Offset, f.Length, d.size)
		}
		if f.Length > 0 || len(pieces) == 1 {
			out = append(out, f)
		}
	}
	return out, nil
}

func (d *decoder) folder(dst *hpktype.Folder, dir string, idx, depth int) error {
	exts, err := d.extents(idx)
	if err != nil {
		return entryErr(dir, fmt.Errorf("folder: %w", err))
	}
	var raw []byte
	base := d.pieces(idx)[0].Offset
	for _, f := range exts {
		b, err := readAt(d.src, f.Offset, int(f.Length)) //nolint:gosec // bounded by source size
		if err != nil {
			return entryErr(dir, err)
		}
		raw = append(raw, b...)
	}
	records, err := binparse.Parse(folderParser, raw, int64(base)) //nolint:gosec // in range
	if err != nil {
		return entryErr(dir, fmt.Errorf("%w: folder fragment %d: %w", hpktype.ErrInvalidFormat, idx, err))
	}

	seen := make(map[string]struct{}, len(records))
	dst.Children = make([]hpktype.Node, 0, len(records))
	for _, r := range records {
		if err := validName(r.Name); err != nil {
			return entryErr(dir, fmt.Errorf("%w: folder fragment %d: %w", hpktype.ErrInvalidFormat, idx, err))
		}
		p := r.Name
		if dir != "" {
			p = dir + "/" + r.Name
		}
		key := r.Name
		if !d.opts.CaseSensitive {
			key = strings.ToLower(key)
		}
		if _, dup := seen[key]; dup {
			return entryErr(p, fmt.Errorf("%w: %q appears twice in folder fragment %d", hpktype.ErrDuplicateEntry, r.Name, idx))
		}
		seen[key] = struct{}{}

		child, err := d.claim(r)
		if err != nil {
			return entryErr(p, err)
		}
		switch r.Kind {
		case kindFolder:
			if depth+1 > d.opts.MaxDepth {
				return entryErr(p, fmt.Errorf("%w: folders nested deeper than %d", hpktype.ErrInvalidFormat, d.opts.MaxDepth))
			}
			sub := &hpktype.Folder{Name: r.Name}
			if err := d.folder(sub, p, child, depth+1); err != nil {
				return err
			}
			dst.Children = append(dst.Children, sub)
		case kindFile:
			f, err := d.file(r.Name, child)
			if err != nil {
				return entryErr(p, err)
			}
			dst.Children = append(dst.Children, f)
		default:
			return entryErr(p, fmt.Errorf("%w: record %s has unknown kind", hpktype.ErrInvalidFormat, r))
		}
	}
	return nil
}

// entryErr attaches the archive path of the entry a decode failure belongs
// to. Failures of the root folder carry no path.
func entryErr(path string, err error) error {
	if path == "" {
		return err
	}
	return &EntryError{Path: path, Err: err}
}

// claim resolves a record's fragment index. Every entry other than the root
// belongs to exactly one record, which rules out cycles.
func (d *decoder) claim(r record) (int, error) {
	if r.Index < 1 || int(r.Index) > len(d.visited) {
		return 0, fmt.Errorf("%w: record %s references a missing fragment", hpktype.ErrInvalidFormat, r)
	}
	idx := int(r.Index) - 1
	if d.visited[idx] {
		return 0, fmt.Errorf("%w: record %s reuses a fragment", hpktype.ErrInvalidFormat, r)
	}
	d.visited[idx] = true
	return idx, nil
}

func (d *decoder) file(name string, idx int) (*hpktype.File, error) {
	exts, err := d.extents(idx)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	f := &hpktype.File{Name: name}
	switch len(exts) {
	case 0:
		f.Offset = d.pieces(idx)[0].Offset
	case 1:
		f.Offset = exts[0].Offset
		f.CompressedSize = exts[0].Length
	default:
		f.Offset = exts[0].Offset
		f.Extents = make([]hpktype.Extent, 0, len(exts))
		for _, e := range exts {
			total, ok := sizing.AddUint64(f.CompressedSize, e.Length)
			if !ok {
				return nil, fmt.Errorf("%w: payload length overflows", hpktype.ErrInvalidFormat)
			}
			f.CompressedSize = total
			f.Extents = append(f.Extents, hpktype.Extent{Offset: e.Offset, Length: e.Length})
		}
	}
	f.Size = f.CompressedSize

	src, base := entrySource(d.src, f)
	blk, ok, err := ProbeBlock(src, Fragment{Offset: base, Length: f.CompressedSize})
	if err != nil {
		return nil, err
	}
	if ok {
		f.Compression = blk.Compression
		f.Size = blk.Size
		f.ChunkSize = blk.ChunkSize
	}
	return f, nil
}

func validName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid entry name %q", name)
	case strings.ContainsAny(name, "/\\"):
		return fmt.Errorf("entry name %q contains a path separator", name)
	case strings.ContainsFunc(name, unicode.IsControl):
		return fmt.Errorf("entry name %q contains a control character", name)
	case !utf8.ValidString(name):
		return fmt.Errorf("entry name %q is not valid UTF-8", name)
	}
	return nil
}

// applySidecars moves metadata entries out of the root listing and onto the
// files they describe. With a forced variant only the sidecars it declares
// are consulted; when detecting, an entry only counts as a sidecar if it
// parses.
func (t *Tree) applySidecars(src io.ReaderAt, opts DecodeOptions) error {
	v := hpktype.Variant{FieldWidth: fieldWidth(t.Header), ChunkSize: hpktype.DefaultChunkSize}
	if opts.Variant != nil {
		v = *opts.Variant
	}

	if opts.Variant == nil || v.FileDates {
		ok, err := t.sidecar(src, opts, FileDatesName, opts.Variant != nil, func(data []byte) (func(), error) {
			lines, ticks, err := parseFileDates(data)
			if err != nil {
				return nil, err
			}
			return func() {
				for i, l := range lines {
					if f := t.lookupFile(l.Path, opts.CaseSensitive); f != nil {
						f.ModTime = FromFiletime(ticks[i])
					}
				}
			}, nil
		})
		if err != nil {
			return err
		}
		if opts.Variant == nil {
			v.FileDates = ok
		}
	}

	if opts.Variant == nil || v.Checksums {
		ok, err := t.sidecar(src, opts, ChecksumsName, opts.Variant != nil, func(data []byte) (func(), error) {
			lines, sums, err := parseChecksums(data)
			if err != nil {
				return nil, err
			}
			return func() {
				for i, l := range lines {
					if f := t.lookupFile(l.Path, opts.CaseSensitive); f != nil {
						f.Checksum = sums[i]
					}
				}
			}, nil
		})
		if err != nil {
			return err
		}
		if opts.Variant == nil {
			v.Checksums = ok
		}
	}

	if opts.Variant == nil {
		v.Name = "custom"
		for _, b := range hpktype.Variants() {
			if b.FieldWidth == v.FieldWidth && b.FileDates == v.FileDates && b.Checksums == v.Checksums {
				v.Name = b.Name
				break
			}
		}
	}
	t.Variant = v
	return nil
}

// sidecar reads and applies one metadata entry. A strict sidecar is
// required and must parse; otherwise a missing, oversized or unreadable
// entry stays a regular file.
func (t *Tree) sidecar(src io.ReaderAt, opts DecodeOptions, name string, strict bool,
	parse func([]byte) (func(), error),
) (bool, error) {
	i := slicesIndexFile(t.Root, name)
	if i < 0 {
		if strict {
			return false, fmt.Errorf("%w: variant %q requires a %s entry", hpktype.ErrInvalidFormat, opts.Variant.Name, name)
		}
		return false, nil
	}
	f := t.Root.Children[i].(*hpktype.File) //nolint:errcheck // slicesIndexFile only matches files
	if f.Size > opts.MaxSidecarSize {
		if strict {
			return false, fmt.Errorf("%w: %s holds %d bytes, limit %d", hpktype.ErrSizeOverflow, name, f.Size, opts.MaxSidecarSize)
		}
		return false, nil
	}
	data, err := ReadEntry(src, f, opts.Registry)
	if err != nil {
		if strict {
			return false, fmt.Errorf("%s: %w", name, err)
		}
		return false, nil
	}
	apply, err := parse(data)
	if err != nil {
		if strict {
			return false, fmt.Errorf("%w: %s: %w", hpktype.ErrCorruptEntry, name, err)
		}
		return false, nil
	}
	t.Root.Children = append(t.Root.Children[:i:i], t.Root.Children[i+1:]...)
	apply()
	return true, nil
}

func slicesIndexFile(root *hpktype.Folder, name string) int {
	for i, c := range root.Children {
		if _, ok := c.(*hpktype.File); ok && c.NodeName() == name {
			return i
		}
	}
	return -1
}

func (t *Tree) lookupFile(path string, caseSensitive bool) *hpktype.File {
	n, ok := t.Root.Lookup(path, caseSensitive)
	if !ok {
		return nil
	}
	f, _ := n.(*hpktype.File)
	return f
}

func fieldWidth(h Header) int {
	w, _ := widthForDataOffset(h.DataOffset)
	return w
}
