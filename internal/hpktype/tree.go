package hpktype

import (
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
)

// Node is a folder or file in an archive tree.
type Node interface {
	// NodeName returns the entry's name within its parent folder.
	NodeName() string

	// IsFolder reports whether the node is a *Folder.
	IsFolder() bool
}

// Folder is a directory in the archive tree.
//
// Children keep on-disk order. Some engines resolve entries by index, so the
// order must survive decode and re-encode unchanged.
type Folder struct {
	Name     string
	Children []Node
}

// File is a packed entry in the archive tree.
type File struct {
	// Name is the file name within its parent folder.
	Name string

	// Size is the uncompressed size in bytes.
	Size uint64

	// CompressedSize is the number of bytes stored in the archive, including
	// the chunk header for compressed entries. Equal to Size for CompressionNone.
	// A compressed entry may be larger than Size; that is not corruption.
	CompressedSize uint64

	// Compression is the codec used for the stored payload.
	Compression Compression

	// Offset is the absolute byte offset of the stored payload.
	Offset uint64

	// Extents lists the pieces of a payload that the archive splits across
	// several fragments, in order. Offset is the first piece's offset and
	// CompressedSize their total length. Nil for contiguous payloads.
	Extents []Extent

	// ChunkSize is the uncompressed chunk length of a compressed entry.
	// Zero for CompressionNone.
	ChunkSize uint32

	// ModTime is the modification time recorded by the variant, or the zero
	// time when the archive does not carry one.
	ModTime time.Time

	// Checksum is the digest of the uncompressed content, when the variant
	// records one.
	Checksum digest.Digest
}

// Extent is one stored piece of a split payload.
type Extent struct {
	Offset uint64
	Length uint64
}

// NodeName implements Node.
func (f *Folder) NodeName() string { return f.Name }

// IsFolder implements Node.
func (f *Folder) IsFolder() bool { return true }

// NodeName implements Node.
func (f *File) NodeName() string { return f.Name }

// IsFolder implements Node.
func (f *File) IsFolder() bool { return false }

// SameName reports whether two sibling names collide.
func SameName(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

// Child returns the direct child with the given name.
func (f *Folder) Child(name string, caseSensitive bool) (Node, bool) {
	for _, c := range f.Children {
		if SameName(c.NodeName(), name, caseSensitive) {
			return c, true
		}
	}
	return nil, false
}

// Lookup resolves a slash-separated path relative to f.
// "." and "" resolve to f itself.
func (f *Folder) Lookup(path string, caseSensitive bool) (Node, bool) {
	if path == "" || path == "." {
		return f, true
	}
	var cur Node = f
	for part := range strings.SplitSeq(path, "/") {
		dir, ok := cur.(*Folder)
		if !ok {
			return nil, false
		}
		next, ok := dir.Child(part, caseSensitive)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// WalkFunc is called for every node below the root in depth-first on-disk
// order. path is slash-separated and relative to the root.
type WalkFunc func(path string, n Node) error

// Walk visits every descendant of f. A non-nil error from fn stops the walk
// and is returned.
func (f *Folder) Walk(fn WalkFunc) error {
	return walkFolder("", f, fn)
}

func walkFolder(prefix string, f *Folder, fn WalkFunc) error {
	for _, c := range f.Children {
		p := c.NodeName()
		if prefix != "" {
			p = prefix + "/" + p
		}
		if err := fn(p, c); err != nil {
			return err
		}
		if sub, ok := c.(*Folder); ok {
			if err := walkFolder(p, sub, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Counts returns the number of folders (excluding f) and files below f.
func (f *Folder) Counts() (folders, files int) {
	for _, c := range f.Children {
		if sub, ok := c.(*Folder); ok {
			folders++
			sf, sfi := sub.Counts()
			folders += sf
			files += sfi
			continue
		}
		files++
	}
	return folders, files
}
