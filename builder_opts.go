package hpk

import (
	"log/slog"

	"github.com/meigma/hpk/internal/write"
)

// SkipCompressionFunc returns true when a file should be stored uncompressed.
// It is called once per file and should be inexpensive.
type SkipCompressionFunc = write.SkipCompressionFunc

// DefaultSkipCompression returns a SkipCompressionFunc that skips files
// smaller than minSize and every extension the engine tooling stores raw.
var DefaultSkipCompression = write.DefaultSkipCompression

// SkipCompressed returns a SkipCompressionFunc that skips formats which are
// already compressed.
var SkipCompressed = write.SkipCompressed

// SkipExtensions returns a SkipCompressionFunc that skips the given
// extensions (with leading dot, case-insensitive).
var SkipExtensions = write.SkipExtensions

// builderConfig holds configuration for archive creation.
type builderConfig struct {
	compression     Compression
	variant         Variant
	timestamps      bool
	storeIfLarger   bool
	chunkSize       uint32
	skipCompression []SkipCompressionFunc
	skipSet         bool
	registry        *Registry
	caseSensitive   bool
	sortEntries     bool
	spoolLimit      int
	progress        ProgressFunc
	logger          *slog.Logger
}

// BuildOption configures a Builder.
type BuildOption func(*builderConfig)

// BuildWithCompression sets the codec used by Add. The default is
// CompressionDeflate, which is what the engines expect.
func BuildWithCompression(c Compression) BuildOption {
	return func(cfg *builderConfig) {
		cfg.compression = c
	}
}

// BuildWithVariant sets the archive layout. The default is VariantClassic.
func BuildWithVariant(v Variant) BuildOption {
	return func(cfg *builderConfig) {
		cfg.variant = v
	}
}

// BuildWithTimestamps controls whether modification times passed to Add
// are recorded. They are only stored by variants with FileDates.
func BuildWithTimestamps(enabled bool) BuildOption {
	return func(cfg *builderConfig) {
		cfg.timestamps = enabled
	}
}

// BuildWithStoreIfLarger stores an entry raw when compressing it does not
// make it smaller. Enabled by default.
func BuildWithStoreIfLarger(enabled bool) BuildOption {
	return func(cfg *builderConfig) {
		cfg.storeIfLarger = enabled
	}
}

// BuildWithChunkSize overrides the variant's uncompressed chunk length.
func BuildWithChunkSize(n uint32) BuildOption {
	return func(cfg *builderConfig) {
		cfg.chunkSize = n
	}
}

// BuildWithSkipCompression adds predicates that decide to store a file
// uncompressed. If any predicate returns true, compression is skipped.
// Entries added with AddWithCompression are not consulted.
func BuildWithSkipCompression(fns ...SkipCompressionFunc) BuildOption {
	return func(cfg *builderConfig) {
		cfg.skipCompression = append(cfg.skipCompression, fns...)
		cfg.skipSet = true
	}
}

// BuildWithRegistry sets the codecs used to encode entries.
func BuildWithRegistry(r *Registry) BuildOption {
	return func(cfg *builderConfig) {
		cfg.registry = r
	}
}

// BuildWithLogger sets the logger for archive creation.
// If not set, logging is disabled.
func BuildWithLogger(logger *slog.Logger) BuildOption {
	return func(cfg *builderConfig) {
		cfg.logger = logger
	}
}

// BuildWithCaseSensitive lets siblings differ only by case. Engines resolve
// names case-insensitively, so such archives may not load everywhere.
func BuildWithCaseSensitive(enabled bool) BuildOption {
	return func(cfg *builderConfig) {
		cfg.caseSensitive = enabled
	}
}

// BuildWithSortEntries orders each folder's children by lowercased name
// before writing, as the engine tooling does. By default entries keep the
// order they were added in.
func BuildWithSortEntries(enabled bool) BuildOption {
	return func(cfg *builderConfig) {
		cfg.sortEntries = enabled
	}
}

// BuildWithSpoolLimit bounds the compressed bytes kept in memory per entry
// while Finalize writes. Larger entries are compressed twice. Zero uses the
// default of 4MB; negative disables spooling.
func BuildWithSpoolLimit(n int) BuildOption {
	return func(cfg *builderConfig) {
		cfg.spoolLimit = n
	}
}

// BuildWithProgress sets a callback invoked after each written file.
func BuildWithProgress(fn ProgressFunc) BuildOption {
	return func(cfg *builderConfig) {
		cfg.progress = fn
	}
}
