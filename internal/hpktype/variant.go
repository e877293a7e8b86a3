package hpktype

import "fmt"

// DefaultChunkSize is the uncompressed chunk length used by the engine tooling.
const DefaultChunkSize = 32 << 10

// Variant describes the field layout of one HPK flavour.
//
// The engines that read HPK archives disagree on a handful of details, so the
// layout is data rather than code: decoder and encoder both consult the
// variant instead of hard-coding widths.
type Variant struct {
	// Name identifies the variant in configuration and the CLI.
	Name string

	// FieldWidth is the byte width (4 or 8) of offsets and lengths in the
	// header and fragment table.
	FieldWidth int

	// FileDates stores modification times in a root "_filedates" entry.
	FileDates bool

	// Checksums stores sha256 digests in a root "_checksums" entry.
	Checksums bool

	// ChunkSize is the default uncompressed chunk length for compressed entries.
	ChunkSize uint32
}

// Built-in variants.
var (
	// VariantClassic is the original layout: 32-bit fields and no metadata
	// sidecars.
	VariantClassic = Variant{Name: "classic", FieldWidth: 4, ChunkSize: DefaultChunkSize}

	// VariantFileDates adds the "_filedates" sidecar used by later engine
	// releases to restore modification times.
	VariantFileDates = Variant{Name: "filedates", FieldWidth: 4, FileDates: true, ChunkSize: DefaultChunkSize}

	// VariantWide widens header and fragment fields to 64 bits for archives
	// beyond 4 GiB and records checksums alongside file dates.
	VariantWide = Variant{Name: "wide", FieldWidth: 8, FileDates: true, Checksums: true, ChunkSize: DefaultChunkSize}
)

// Variants returns the built-in variant table.
func Variants() []Variant {
	return []Variant{VariantClassic, VariantFileDates, VariantWide}
}

// LookupVariant finds a built-in variant by name.
func LookupVariant(name string) (Variant, bool) {
	for _, v := range Variants() {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// HeaderSize returns the encoded header length for the variant.
func (v Variant) HeaderSize() int {
	return 20 + 4*v.FieldWidth
}

// FragmentSize returns the encoded size of one fragment table record.
func (v Variant) FragmentSize() int {
	return 2 * v.FieldWidth
}

// MaxField returns the largest offset or length the variant can encode.
func (v Variant) MaxField() uint64 {
	if v.FieldWidth == 8 {
		return ^uint64(0)
	}
	return uint64(^uint32(0))
}

// Validate checks that the variant describes an encodable layout.
func (v Variant) Validate() error {
	if v.FieldWidth != 4 && v.FieldWidth != 8 {
		return fmt.Errorf("variant %q: field width %d not supported", v.Name, v.FieldWidth)
	}
	if v.ChunkSize == 0 || v.ChunkSize > 1<<30 {
		return fmt.Errorf("variant %q: chunk size %d out of range", v.Name, v.ChunkSize)
	}
	return nil
}
