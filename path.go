package hpk

import "strings"

// NormalizePath converts a user-provided path to fs.ValidPath form.
//
// Backslashes become slashes, leading and trailing slashes are stripped,
// and runs of slashes collapse: "\data\\ui/" becomes "data/ui". The empty
// path and "/" become ".". Elements "." and ".." are preserved and are
// rejected later by Archive and Builder methods.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return "."
	}

	parts := strings.Split(p, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return "."
	}
	return strings.Join(result, "/")
}
