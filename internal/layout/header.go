// Package layout reads and writes the HPK on-disk format.
//
// An archive is a header, a payload region and a trailing fragment table of
// (offset, length) pairs. Every folder and file is one table entry of
// fragments_per_file fragments, whose bytes are read back to back; the
// encoder always writes one. A folder's entry holds its child records; a
// file's entry holds its stored payload, optionally wrapped in a chunked
// compression block. Entry 0 is the root folder.
package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/hpk/internal/binparse"
	"github.com/meigma/hpk/internal/hpktype"
)

// Signature opens every HPK archive.
var Signature = []byte("BPUL")

// Constant header fields written by the engine tooling.
const (
	fragmentsPerFile = 1
	headerUnknown2   = 0xFF
	headerUnknown5   = 1
)

// Header is the fixed-size archive header.
type Header struct {
	// DataOffset is the header length, which also identifies the field width.
	DataOffset       uint32
	FragmentsPerFile uint32
	Unknown2         uint32
	ResidualOffset   uint64
	ResidualCount    uint64
	Unknown5         uint32
	FilesystemOffset uint64
	FilesystemLength uint64
}

func newHeader(v hpktype.Variant, fsOffset, fsLength uint64) Header {
	return Header{
		DataOffset:       uint32(v.HeaderSize()), //nolint:gosec // header size is at most 52
		FragmentsPerFile: fragmentsPerFile,
		Unknown2:         headerUnknown2,
		Unknown5:         headerUnknown5,
		FilesystemOffset: fsOffset,
		FilesystemLength: fsLength,
	}
}

// headerParser parses a header whose variable fields are width bytes wide.
func headerParser(width int) binparse.Parser[Header] {
	return binparse.Record(func(h *Header) []binparse.Step {
		return []binparse.Step{
			binparse.Skip(binparse.Named("signature", binparse.Expect(Signature))),
			binparse.Into(&h.DataOffset, binparse.Named("data offset", binparse.U32())),
			binparse.Into(&h.FragmentsPerFile, binparse.Named("fragments per file", binparse.U32())),
			binparse.Into(&h.Unknown2, binparse.U32()),
			binparse.Into(&h.ResidualOffset, binparse.Named("residual offset", binparse.Uint(width))),
			binparse.Into(&h.ResidualCount, binparse.Named("residual count", binparse.Uint(width))),
			binparse.Into(&h.Unknown5, binparse.U32()),
			binparse.Into(&h.FilesystemOffset, binparse.Named("filesystem offset", binparse.Uint(width))),
			binparse.Into(&h.FilesystemLength, binparse.Named("filesystem length", binparse.Uint(width))),
		}
	})
}

// widthForDataOffset maps the header length stored in data_offset to the
// variant field width.
func widthForDataOffset(dataOffset uint32) (int, bool) {
	for _, w := range []int{4, 8} {
		if dataOffset == uint32(hpktype.Variant{FieldWidth: w}.HeaderSize()) { //nolint:gosec // small constant
			return w, true
		}
	}
	return 0, false
}

// appendHeader encodes h with the variant's field width.
func appendHeader(b []byte, h Header, width int) []byte {
	b = append(b, Signature...)
	b = binary.LittleEndian.AppendUint32(b, h.DataOffset)
	b = binary.LittleEndian.AppendUint32(b, h.FragmentsPerFile)
	b = binary.LittleEndian.AppendUint32(b, h.Unknown2)
	b = appendUint(b, h.ResidualOffset, width)
	b = appendUint(b, h.ResidualCount, width)
	b = binary.LittleEndian.AppendUint32(b, h.Unknown5)
	b = appendUint(b, h.FilesystemOffset, width)
	b = appendUint(b, h.FilesystemLength, width)
	return b
}

func appendUint(b []byte, v uint64, width int) []byte {
	if width == 8 {
		return binary.LittleEndian.AppendUint64(b, v)
	}
	return binary.LittleEndian.AppendUint32(b, uint32(v)) //nolint:gosec // callers check MaxField
}

// Fragment locates one folder or file within the archive.
type Fragment struct {
	Offset uint64
	Length uint64
}

func fragmentParser(width int) binparse.Parser[Fragment] {
	return binparse.Record(func(f *Fragment) []binparse.Step {
		return []binparse.Step{
			binparse.Into(&f.Offset, binparse.Named("fragment offset", binparse.Uint(width))),
			binparse.Into(&f.Length, binparse.Named("fragment length", binparse.Uint(width))),
		}
	})
}

func appendFragment(b []byte, f Fragment, width int) []byte {
	b = appendUint(b, f.Offset, width)
	return appendUint(b, f.Length, width)
}

// Record kinds in a folder fragment.
const (
	kindFile   uint32 = 0
	kindFolder uint32 = 1
)

// recordHeaderSize is the fixed part of a folder record: index, kind and
// name length.
const recordHeaderSize = 4 + 4 + 2

// maxNameLen is the longest name a record can hold.
const maxNameLen = 1<<16 - 1

// record is one child entry in a folder fragment.
type record struct {
	// Index is the 1-based fragment index of the child.
	Index int32
	Kind  uint32
	Name  string
}

var recordParser = binparse.Record(func(r *record) []binparse.Step {
	return []binparse.Step{
		binparse.Into(&r.Index, binparse.Named("fragment index", binparse.I32())),
		binparse.Into(&r.Kind, binparse.Named("entry kind", binparse.U32())),
		binparse.Into(&r.Name, binparse.Named("entry name", binparse.String(binparse.LenPrefixed(binparse.U16())))),
	}
})

// folderParser parses a whole folder fragment: records until the fragment ends.
var folderParser = binparse.Until(recordParser)

func recordSize(name string) int {
	return recordHeaderSize + len(name)
}

func appendRecord(b []byte, r record) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(r.Index)) //nolint:gosec // two's complement reinterpretation
	b = binary.LittleEndian.AppendUint32(b, r.Kind)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(r.Name))) //nolint:gosec // checked against maxNameLen
	return append(b, r.Name...)
}

func (r record) String() string {
	return fmt.Sprintf("%q (kind %d, fragment %d)", r.Name, r.Kind, r.Index)
}
