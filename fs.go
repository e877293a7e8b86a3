package hpk

import (
	"io"
	"io/fs"
	"slices"
	"strings"

	"github.com/meigma/hpk/internal/file"
)

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
	_ fs.ReadDirFS  = (*Archive)(nil)
)

// Open implements fs.FS.
//
// Files are decoded and verified on first read. With WithContentCache the
// content is served from, and stored in, the cache.
func (a *Archive) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	n, ok := a.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	switch n := n.(type) {
	case *File:
		if a.cache == nil {
			return a.reader.OpenFile(n), nil
		}
		if content, ok := a.cache.get(n); ok {
			a.log().Debug("file cache hit", "path", name)
			return file.NewBytesFile(n, content), nil
		}
		a.log().Debug("file cache miss", "path", name)
		content, err := a.read(n)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: a.entryError("read", name, n, err)}
		}
		return file.NewBytesFile(n, content), nil
	case *Folder:
		return &openDir{name: name, folder: n}, nil
	default:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
}

// Stat implements fs.StatFS without reading any payload.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	n, ok := a.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return nodeInfo(name, n), nil
}

// ReadDir implements fs.ReadDirFS. Entries are sorted by name; use Walk or
// Root for on-disk order.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	n, ok := a.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	dir, ok := n.(*Folder)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return dirEntries(dir), nil
}

func nodeInfo(name string, n Node) *file.Info {
	if f, ok := n.(*File); ok {
		return file.NewInfo(f)
	}
	if name == "." {
		return file.NewDirInfo(".")
	}
	return file.NewDirInfo(n.NodeName())
}

func dirEntries(dir *Folder) []fs.DirEntry {
	entries := make([]fs.DirEntry, 0, len(dir.Children))
	for _, c := range dir.Children {
		entries = append(entries, fs.FileInfoToDirEntry(nodeInfo(c.NodeName(), c)))
	}
	slices.SortFunc(entries, func(x, y fs.DirEntry) int {
		return strings.Compare(x.Name(), y.Name())
	})
	return entries
}

// openDir implements fs.ReadDirFile for archive folders.
type openDir struct {
	name    string
	folder  *Folder
	entries []fs.DirEntry
	offset  int
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	return nodeInfo(d.name, d.folder), nil
}

func (d *openDir) Close() error {
	return nil
}

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.entries == nil {
		d.entries = dirEntries(d.folder)
	}
	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(rest))
	d.offset += n
	return rest[:n], nil
}
