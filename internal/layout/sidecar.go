package layout

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/hpk/internal/hpktype"
)

// Root entries that carry per-file metadata for some variants.
const (
	FileDatesName = "_filedates"
	ChecksumsName = "_checksums"
)

// IsSidecarName reports whether name is reserved for a metadata entry.
func IsSidecarName(name string) bool {
	return name == FileDatesName || name == ChecksumsName
}

// filetimeEpoch is the Unix epoch expressed in FILETIME ticks, which count
// 100ns intervals since 1601-01-01 UTC.
const filetimeEpoch = 116444736000000000

// ToFiletime converts t to FILETIME ticks. The zero time maps to 0.
func ToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	ticks := t.Unix()*1e7 + int64(t.Nanosecond())/100 + filetimeEpoch
	if ticks < 0 {
		return 0
	}
	return uint64(ticks)
}

// FromFiletime converts FILETIME ticks to a UTC time. 0 maps to the zero time.
func FromFiletime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	ticks := int64(ft) - filetimeEpoch //nolint:gosec // FILETIME values fit in int64
	return time.Unix(ticks/1e7, (ticks%1e7)*100).UTC()
}

// sidecarLine is one "path=value" entry.
type sidecarLine struct {
	Path  string
	Value string
}

// parseSidecar splits a sidecar into entries. Both LF and CRLF line endings
// are accepted, and paths may use either separator.
func parseSidecar(data []byte) ([]sidecarLine, error) {
	var lines []sidecarLine
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), len(data)+1)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" {
			continue
		}
		i := strings.LastIndexByte(line, '=')
		if i <= 0 {
			return nil, fmt.Errorf("line %d: missing '='", n)
		}
		p := strings.Trim(strings.ReplaceAll(line[:i], `\`, "/"), "/")
		if p == "" {
			return nil, fmt.Errorf("line %d: empty path", n)
		}
		lines = append(lines, sidecarLine{Path: p, Value: line[i+1:]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// parseFileDates parses a "_filedates" entry into path -> FILETIME ticks.
func parseFileDates(data []byte) ([]sidecarLine, []uint64, error) {
	lines, err := parseSidecar(data)
	if err != nil {
		return nil, nil, err
	}
	ticks := make([]uint64, len(lines))
	for i, l := range lines {
		v, err := strconv.ParseUint(l.Value, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", l.Path, err)
		}
		ticks[i] = v
	}
	return lines, ticks, nil
}

// parseChecksums parses a "_checksums" entry into path -> digest.
func parseChecksums(data []byte) ([]sidecarLine, []digest.Digest, error) {
	lines, err := parseSidecar(data)
	if err != nil {
		return nil, nil, err
	}
	sums := make([]digest.Digest, len(lines))
	for i, l := range lines {
		d, err := digest.Parse(l.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", l.Path, err)
		}
		sums[i] = d
	}
	return lines, sums, nil
}

// appendSidecarLine writes one CRLF-terminated entry.
func appendSidecarLine(b []byte, path, value string) []byte {
	b = append(b, path...)
	b = append(b, '=')
	b = append(b, value...)
	return append(b, '\r', '\n')
}

// fileDatesContent renders the "_filedates" entry for every dated file
// below root, in walk order.
func fileDatesContent(root *hpktype.Folder) []byte {
	var b []byte
	_ = root.Walk(func(path string, n hpktype.Node) error {
		if f, ok := n.(*hpktype.File); ok && !f.ModTime.IsZero() {
			b = appendSidecarLine(b, path, strconv.FormatUint(ToFiletime(f.ModTime), 10))
		}
		return nil
	})
	return b
}

// checksumsContent renders the "_checksums" entry from the digests computed
// while writing payloads.
func checksumsContent(root *hpktype.Folder, sums map[*hpktype.File]digest.Digest) []byte {
	var b []byte
	_ = root.Walk(func(path string, n hpktype.Node) error {
		if f, ok := n.(*hpktype.File); ok {
			if d, ok := sums[f]; ok {
				b = appendSidecarLine(b, path, d.String())
			}
		}
		return nil
	})
	return b
}
