// Package write holds the per-entry policies applied while building archives.
package write

import (
	"io/fs"
	"path"
	"strings"
)

// SkipCompressionFunc returns true when a file should be stored uncompressed.
// It is called once per file and should be inexpensive.
type SkipCompressionFunc func(path string, info fs.FileInfo) bool

// EngineExtensions lists the extensions the engine tooling compresses.
// Everything else is stored raw.
var EngineExtensions = []string{".lst", ".lua", ".xml", ".tga", ".dds", ".xtex", ".bin", ".csv"}

// DefaultSkipCompression returns a SkipCompressionFunc that skips small files
// and every extension outside EngineExtensions.
func DefaultSkipCompression(minSize int64) SkipCompressionFunc {
	compress := extSet(EngineExtensions)
	return func(p string, info fs.FileInfo) bool {
		if info != nil && minSize > 0 && info.Size() < minSize {
			return true
		}
		_, ok := compress[ext(p)]
		return !ok
	}
}

// SkipExtensions returns a SkipCompressionFunc that skips the given
// extensions (with leading dot, case-insensitive).
func SkipExtensions(exts ...string) SkipCompressionFunc {
	skip := extSet(exts)
	return func(p string, _ fs.FileInfo) bool {
		_, ok := skip[ext(p)]
		return ok
	}
}

// SkipCompressed returns a SkipCompressionFunc that skips formats which are
// already compressed.
func SkipCompressed() SkipCompressionFunc {
	return SkipExtensions(compressedExts...)
}

// ShouldSkip checks if any predicate returns true for the given file.
func ShouldSkip(p string, info fs.FileInfo, predicates []SkipCompressionFunc) bool {
	for _, fn := range predicates {
		if fn == nil {
			continue
		}
		if fn(p, info) {
			return true
		}
	}
	return false
}

func ext(p string) string {
	return strings.ToLower(path.Ext(p))
}

func extSet(exts []string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		m[strings.ToLower(e)] = struct{}{}
	}
	return m
}

var compressedExts = []string{
	".7z", ".aac", ".avif", ".br", ".bz2", ".flac", ".gif", ".gz", ".heic",
	".ico", ".jpeg", ".jpg", ".m4v", ".mkv", ".mov", ".mp3", ".mp4", ".ogg",
	".opus", ".pdf", ".png", ".rar", ".tgz", ".wav", ".webm", ".webp",
	".woff", ".woff2", ".xz", ".zip", ".zst", ".hpk",
}
