package hpk

import "log/slog"

// Option configures an Archive.
type Option func(*Archive)

// WithVariant forces the archive layout instead of detecting it.
//
// With a forced variant the header field width must match and metadata
// sidecars the variant declares must parse; sidecars it does not declare
// are listed as regular files.
func WithVariant(v Variant) Option {
	return func(a *Archive) {
		a.variant = &v
	}
}

// WithName sets the archive name used in errors and log records.
// OpenFile sets it to the file path.
func WithName(name string) Option {
	return func(a *Archive) {
		a.name = name
	}
}

// WithLogger sets the logger for archive operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithContentCache keeps the decoded content of up to n recently read
// entries in memory. Zero or negative disables the cache (the default).
func WithContentCache(n int) Option {
	return func(a *Archive) {
		a.cacheSize = n
	}
}

// WithRegistry sets the codecs used to decode entries.
// The default holds every codec compiled into the build.
func WithRegistry(r *Registry) Option {
	return func(a *Archive) {
		a.registry = r
	}
}

// WithCaseSensitive makes path lookups and sibling collision checks
// case-sensitive. Engines treat names case-insensitively, which is the
// default.
func WithCaseSensitive(enabled bool) Option {
	return func(a *Archive) {
		a.caseSensitive = enabled
	}
}

// WithMaxFileSize limits the uncompressed size of entries read from the
// archive. Zero disables the limit. The default is 1GB.
func WithMaxFileSize(limit uint64) Option {
	return func(a *Archive) {
		a.maxFileSize = limit
	}
}

// WithMaxDepth bounds folder nesting accepted when decoding. Zero uses the
// default of 256.
func WithMaxDepth(n int) Option {
	return func(a *Archive) {
		a.maxDepth = n
	}
}
