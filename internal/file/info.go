package file

import (
	"io/fs"
	"path"
	"time"

	"github.com/meigma/hpk/internal/hpktype"
)

// Info implements fs.FileInfo for archive entries.
type Info struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	file    *hpktype.File
}

var _ fs.FileInfo = (*Info)(nil)

// NewInfo describes a file entry.
func NewInfo(f *hpktype.File) *Info {
	size := int64(f.Size) //nolint:gosec // entries above MaxInt64 cannot be read anyway
	if size < 0 {
		size = -1
	}
	return &Info{name: f.Name, size: size, mode: 0o644, modTime: f.ModTime, file: f}
}

// NewDirInfo describes a folder.
func NewDirInfo(name string) *Info {
	return &Info{name: name, mode: fs.ModeDir | 0o755}
}

func (i *Info) Name() string       { return i.name }
func (i *Info) Size() int64        { return i.size }
func (i *Info) Mode() fs.FileMode  { return i.mode }
func (i *Info) ModTime() time.Time { return i.modTime }
func (i *Info) IsDir() bool        { return i.mode.IsDir() }

// Sys returns the *hpktype.File for file entries and nil for folders.
func (i *Info) Sys() any {
	if i.file == nil {
		return nil
	}
	return i.file
}

// Base returns the last element of a slash-separated path, or "." for the root.
func Base(name string) string {
	if name == "" || name == "." {
		return "."
	}
	return path.Base(name)
}
