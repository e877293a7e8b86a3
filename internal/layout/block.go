package layout

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/meigma/hpk/internal/binparse"
	"github.com/meigma/hpk/internal/codec"
	"github.com/meigma/hpk/internal/hpktype"
	"github.com/meigma/hpk/internal/sizing"
)

// blockHeaderSize is the fixed prefix of a compressed payload: identifier,
// inflated length and chunk size. The chunk offset table follows it.
const blockHeaderSize = codec.MagicSize + 4 + 4

// maxPrealloc bounds the buffer reserved before any chunk has decoded.
const maxPrealloc = 1 << 20

// Block describes the chunk framing of a compressed payload.
type Block struct {
	Compression hpktype.Compression
	// Size is the inflated length of the whole entry.
	Size      uint64
	ChunkSize uint32
	// Offsets holds each chunk's start, relative to the payload start.
	Offsets []uint32
}

type blockPrefix struct {
	Magic     []byte
	Size      uint32
	ChunkSize int32
}

var blockPrefixParser = binparse.Record(func(b *blockPrefix) []binparse.Step {
	return []binparse.Step{
		binparse.Into(&b.Magic, binparse.Named("compression identifier", binparse.Bytes(codec.MagicSize))),
		binparse.Into(&b.Size, binparse.Named("inflated length", binparse.U32())),
		binparse.Into(&b.ChunkSize, binparse.Named("chunk size", binparse.I32())),
	}
})

// tableSize returns the header length of a block with n chunks.
func tableSize(n uint64) uint64 {
	return blockHeaderSize + 4*n
}

// parsePrefix checks a block's fixed header against a fragment of length
// bytes and returns the number of chunk offsets that follow it.
func parsePrefix(head []byte, off, length uint64) (blockPrefix, [codec.MagicSize]byte, uint64, bool) {
	var magic [codec.MagicSize]byte
	p, err := binparse.Parse(blockPrefixParser, head, int64(off)) //nolint:gosec // offset only labels errors
	if err != nil {
		return p, magic, 0, false
	}
	copy(magic[:], p.Magic)
	if !codec.LooksLikeMagic(magic) || p.ChunkSize <= 0 {
		return p, magic, 0, false
	}
	n := sizing.Chunks(uint64(p.Size), uint32(p.ChunkSize))
	if tableSize(n) > length {
		return p, magic, 0, false
	}
	if n == 0 && length != blockHeaderSize {
		return p, magic, 0, false
	}
	return p, magic, n, true
}

// validChunkOffset checks the i-th chunk offset: the first starts right after
// the table, later ones never decrease, and none passes the fragment end.
func validChunkOffset(i uint64, off uint32, prev, length uint64) bool {
	if i == 0 && uint64(off) != prev {
		return false
	}
	return uint64(off) >= prev && uint64(off) <= length
}

// ProbeBlock inspects a file fragment and reports whether it holds a chunked
// compression block.
//
// Raw payloads carry no marker, so a payload only counts as a block when the
// whole header is structurally sound: an identifier shaped like one, a
// positive chunk size, and a chunk table that starts right after itself,
// never decreases and stays inside the fragment. A sound header with an
// identifier outside the known set is a block of CompressionUnknown; anything
// else is raw data.
func ProbeBlock(src io.ReaderAt, frag Fragment) (Block, bool, error) {
	if frag.Length < blockHeaderSize {
		return Block{}, false, nil
	}
	head, err := readAt(src, frag.Offset, blockHeaderSize)
	if err != nil {
		return Block{}, false, err
	}
	p, magic, n, ok := parsePrefix(head, frag.Offset, frag.Length)
	if !ok {
		return Block{}, false, nil
	}
	offsets := make([]uint32, 0, n)
	if n > 0 {
		raw, err := readAt(src, frag.Offset+blockHeaderSize, int(4*n)) //nolint:gosec // n bounded by fragment length
		if err != nil {
			return Block{}, false, err
		}
		prev := tableSize(n)
		for i := range n {
			off := binary.LittleEndian.Uint32(raw[4*i:])
			if !validChunkOffset(i, off, prev, frag.Length) {
				return Block{}, false, nil
			}
			prev = uint64(off)
			offsets = append(offsets, off)
		}
	}
	tag, known := codec.LookupMagic(magic)
	if !known {
		tag = hpktype.CompressionUnknown
	}
	return Block{Compression: tag, Size: uint64(p.Size), ChunkSize: uint32(p.ChunkSize), Offsets: offsets}, true, nil
}

// blockScan follows a raw payload as it is written and reports whether
// ProbeBlock would take it for a compression block.
type blockScan struct {
	length uint64
	buf    []byte
	table  bool
	n      uint64
	seen   uint64
	prev   uint64
	done   bool
	block  bool
}

func newBlockScan(length uint64) *blockScan {
	return &blockScan{length: length, done: length < blockHeaderSize}
}

func (s *blockScan) Write(p []byte) (int, error) {
	written := len(p)
	for len(p) > 0 && !s.done {
		want := blockHeaderSize
		if s.table {
			want = 4
		}
		k := min(want-len(s.buf), len(p))
		s.buf = append(s.buf, p[:k]...)
		p = p[k:]
		if len(s.buf) < want {
			break
		}
		if !s.table {
			_, _, n, ok := parsePrefix(s.buf, 0, s.length)
			s.table, s.n, s.prev = true, n, tableSize(n)
			s.done, s.block = !ok || n == 0, ok && n == 0
		} else {
			off := binary.LittleEndian.Uint32(s.buf)
			if !validChunkOffset(s.seen, off, s.prev, s.length) {
				s.done = true
			} else {
				s.prev = uint64(off)
				s.seen++
				s.done, s.block = s.seen == s.n, s.seen == s.n
			}
		}
		s.buf = s.buf[:0]
	}
	return written, nil
}

// Block reports whether the bytes written so far open with a sound block
// header and chunk table.
func (s *blockScan) Block() bool {
	return s.block
}

// ReadEntry returns the uncompressed content of f.
//
// Chunks whose stored length equals their raw length are stored verbatim and
// never reach the codec, apart from the Deflate case described at
// decodeChunk.
func ReadEntry(src io.ReaderAt, f *hpktype.File, reg *codec.Registry) ([]byte, error) {
	size, err := sizing.ToInt(f.Size)
	if err != nil {
		return nil, err
	}
	src, base := entrySource(src, f)
	if f.Compression == hpktype.CompressionNone {
		if f.CompressedSize != f.Size {
			return nil, fmt.Errorf("%w: stored %d bytes, size %d", hpktype.ErrCorruptEntry, f.CompressedSize, f.Size)
		}
		return readAt(src, base, size)
	}
	if _, err := reg.Resolve(f.Compression); err != nil {
		return nil, err
	}
	blk, ok, err := ProbeBlock(src, Fragment{Offset: base, Length: f.CompressedSize})
	if err != nil {
		return nil, err
	}
	if !ok || blk.Compression != f.Compression || blk.Size != f.Size {
		return nil, fmt.Errorf("%w: compression header at offset %d does not match entry", hpktype.ErrCorruptEntry, f.Offset)
	}
	// Grow with the decoded chunks; the declared size is not trusted yet.
	out := make([]byte, 0, min(size, int(blk.ChunkSize), maxPrealloc))
	for i, start := range blk.Offsets {
		end := f.CompressedSize
		if i+1 < len(blk.Offsets) {
			end = uint64(blk.Offsets[i+1])
		}
		raw := min(uint64(blk.ChunkSize), f.Size-uint64(len(out)))
		stored, err := readAt(src, base+uint64(start), int(end-uint64(start))) //nolint:gosec // within fragment
		if err != nil {
			return nil, err
		}
		dec, err := decodeChunk(reg, blk.Compression, stored, int(raw)) //nolint:gosec // raw <= chunk size
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		out = append(out, dec...)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", hpktype.ErrCorruptEntry, len(out), size)
	}
	return out, nil
}

// decodeChunk inflates one stored chunk. A chunk as long as its raw length is
// stored verbatim. The engine tooling only stores full chunks that way and
// may keep a short last chunk compressed at the same length, so a Deflate
// chunk that opens with a zlib header is tried as a stream first.
func decodeChunk(reg *codec.Registry, tag hpktype.Compression, stored []byte, raw int) ([]byte, error) {
	if len(stored) != raw {
		return reg.Decode(tag, stored, raw)
	}
	if tag == hpktype.CompressionDeflate && codec.LooksLikeZlib(stored) {
		if dec, err := reg.Decode(tag, stored, raw); err == nil {
			return dec, nil
		}
	}
	return stored, nil
}

// readsAsStream reports whether decodeChunk would inflate raw instead of
// returning it verbatim.
func readsAsStream(reg *codec.Registry, tag hpktype.Compression, raw []byte) bool {
	if tag != hpktype.CompressionDeflate || !codec.LooksLikeZlib(raw) {
		return false
	}
	_, err := reg.Decode(tag, raw, len(raw))
	return err == nil
}

// appendBlockHeader encodes the header and chunk table of a compressed entry.
func appendBlockHeader(b []byte, tag hpktype.Compression, size uint64, chunk uint32, offsets []uint32) []byte {
	magic, _ := codec.Magic(tag)
	b = append(b, magic[:]...)
	b = binary.LittleEndian.AppendUint32(b, uint32(size)) //nolint:gosec // block sizes are capped at MaxUint32
	b = binary.LittleEndian.AppendUint32(b, chunk)
	for _, off := range offsets {
		b = binary.LittleEndian.AppendUint32(b, off)
	}
	return b
}

// blockable reports whether an entry of the given size can use chunk framing,
// whose length fields are 32 bits wide.
func blockable(size uint64) bool {
	return size <= math.MaxUint32
}
