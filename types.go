package hpk

import (
	"github.com/meigma/hpk/internal/codec"
	"github.com/meigma/hpk/internal/hpktype"
)

// Re-export types from internal packages for the public API.
type (
	// Node is a folder or file in an archive tree.
	Node = hpktype.Node

	// Folder is a directory in an archive tree.
	Folder = hpktype.Folder

	// File is a packed entry in an archive tree.
	File = hpktype.File

	// Extent is one stored piece of a payload split across fragments.
	Extent = hpktype.Extent

	// WalkFunc is called by Archive.Walk for every folder and file.
	WalkFunc = hpktype.WalkFunc

	// Compression identifies the codec used to store a file's payload.
	Compression = hpktype.Compression

	// Variant describes the field layout of one HPK flavour.
	Variant = hpktype.Variant

	// Codec encodes and decodes one chunk at a time.
	Codec = codec.Codec

	// Registry is a set of codecs keyed by compression tag.
	Registry = codec.Registry

	// ProgressEvent reports progress while building or extracting.
	ProgressEvent = hpktype.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = hpktype.ProgressStage

	// ProgressFunc receives progress updates.
	ProgressFunc = hpktype.ProgressFunc
)

// Re-export compression constants.
const (
	CompressionNone     = hpktype.CompressionNone
	CompressionLz4Block = hpktype.CompressionLz4Block
	CompressionDeflate  = hpktype.CompressionDeflate
	CompressionZstd     = hpktype.CompressionZstd
	CompressionLz4Frame = hpktype.CompressionLz4Frame
	CompressionUnknown  = hpktype.CompressionUnknown
)

// Re-export progress stage constants.
const (
	StageEnumerating = hpktype.StageEnumerating
	StageWriting     = hpktype.StageWriting
	StageExtracting  = hpktype.StageExtracting
)

// DefaultChunkSize is the uncompressed chunk length used unless a variant or
// BuildWithChunkSize says otherwise.
const DefaultChunkSize = hpktype.DefaultChunkSize

// Built-in variants.
var (
	VariantClassic   = hpktype.VariantClassic
	VariantFileDates = hpktype.VariantFileDates
	VariantWide      = hpktype.VariantWide
)

// Variants returns the built-in variant table.
func Variants() []Variant { return hpktype.Variants() }

// LookupVariant finds a built-in variant by name.
func LookupVariant(name string) (Variant, bool) { return hpktype.LookupVariant(name) }

// Compressions returns every defined compression tag in enumeration order.
func Compressions() []Compression { return hpktype.Compressions() }

// ParseCompression maps a compression name such as "zstd" or "zlib" to its tag.
func ParseCompression(s string) (Compression, bool) { return hpktype.ParseCompression(s) }

// DefaultRegistry returns the registry holding every codec compiled into
// this build. Use Registry.Without to derive a restricted copy.
func DefaultRegistry() *Registry { return codec.Default() }
