package layout

import (
	"fmt"
	"math"
	"slices"

	"github.com/meigma/hpk/internal/hpktype"
)

// Plan assigns fragment indexes to a tree before any payload is written.
//
// Indexes follow the engine tooling: the root is fragment 1 and every other
// node is numbered after all of its descendants, in child order.
type Plan struct {
	Variant hpktype.Variant

	// Root is the tree as written, including generated sidecar entries.
	Root *hpktype.Folder

	user      *hpktype.Folder
	index     map[hpktype.Node]int32
	runs      map[*hpktype.Folder]int
	sidecars  map[*hpktype.File]string
	fragments int
}

// NewPlan validates the tree against the variant and numbers its fragments.
// The variant's sidecar entries are appended to the root; user entries may
// not take a sidecar name at the root in any variant.
func NewPlan(root *hpktype.Folder, v hpktype.Variant) (*Plan, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", hpktype.ErrInvalidFormat, err)
	}
	p := &Plan{
		Variant:  v,
		user:     root,
		index:    make(map[hpktype.Node]int32),
		runs:     make(map[*hpktype.Folder]int),
		sidecars: make(map[*hpktype.File]string),
	}

	// Decode detects sidecars by name, so neither name is free in any variant.
	for _, name := range []string{FileDatesName, ChecksumsName} {
		if _, ok := root.Child(name, false); ok {
			return nil, fmt.Errorf("%w: %q is reserved for archive metadata", hpktype.ErrInvalidPath, name)
		}
	}
	children := slices.Clip(root.Children)
	for _, name := range p.sidecarNames() {
		f := &hpktype.File{Name: name}
		p.sidecars[f] = name
		children = append(children, f)
	}
	p.Root = &hpktype.Folder{Name: root.Name, Children: children}

	p.index[p.Root] = 1
	next := int64(2)
	if err := p.assign(p.Root, &next); err != nil {
		return nil, err
	}
	p.fragments = int(next - 1)
	return p, nil
}

func (p *Plan) sidecarNames() []string {
	var names []string
	if p.Variant.FileDates {
		names = append(names, FileDatesName)
	}
	if p.Variant.Checksums {
		names = append(names, ChecksumsName)
	}
	return names
}

func (p *Plan) assign(f *hpktype.Folder, next *int64) error {
	run := 0
	seen := make(map[string]struct{}, len(f.Children))
	for _, c := range f.Children {
		name := c.NodeName()
		if err := ValidName(name); err != nil {
			return err
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", hpktype.ErrDuplicateEntry, name)
		}
		seen[name] = struct{}{}
		if _, again := p.index[c]; again {
			return fmt.Errorf("%w: %q appears in the tree twice", hpktype.ErrDuplicateEntry, name)
		}
		p.index[c] = 0

		if sub, ok := c.(*hpktype.Folder); ok {
			if err := p.assign(sub, next); err != nil {
				return err
			}
		}
		if *next > math.MaxInt32 {
			return fmt.Errorf("%w: more than %d entries", hpktype.ErrSizeOverflow, math.MaxInt32)
		}
		p.index[c] = int32(*next)
		*next++
		run += recordSize(name)
	}
	p.runs[f] = run
	return nil
}

// ValidName reports whether name can be stored as a folder record name.
func ValidName(name string) error {
	if err := validName(name); err != nil {
		return fmt.Errorf("%w: %w", hpktype.ErrInvalidPath, err)
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("%w: name %.32q... is %d bytes long", hpktype.ErrInvalidPath, name, len(name))
	}
	return nil
}

// Fragments returns the number of fragment table entries.
func (p *Plan) Fragments() int {
	return p.fragments
}

// Index returns the 1-based fragment index assigned to n.
func (p *Plan) Index(n hpktype.Node) (int32, bool) {
	i, ok := p.index[n]
	return i, ok
}

// RunSize returns the encoded length of a folder's record run.
func (p *Plan) RunSize(f *hpktype.Folder) int {
	return p.runs[f]
}

// IsSidecar reports whether f is a generated metadata entry.
func (p *Plan) IsSidecar(f *hpktype.File) bool {
	_, ok := p.sidecars[f]
	return ok
}

// folderRun encodes f's child records.
func (p *Plan) folderRun(f *hpktype.Folder) []byte {
	b := make([]byte, 0, p.runs[f])
	for _, c := range f.Children {
		kind := kindFile
		if c.IsFolder() {
			kind = kindFolder
		}
		b = appendRecord(b, record{Index: p.index[c], Kind: kind, Name: c.NodeName()})
	}
	return b
}
