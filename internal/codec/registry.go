// Package codec maps compression tags to the codecs that encode and decode
// HPK chunk payloads.
//
// Codecs register themselves into the default registry at init. A codec may
// be left out of a build (see the hpk_nolz4frame build tag); Resolve then
// reports ErrUnsupportedCompression for its tag rather than
// ErrUnknownCompression, which is reserved for tags the format never defined.
package codec

import (
	"fmt"
	"slices"
	"sync"

	"github.com/meigma/hpk/internal/hpktype"
)

// Codec encodes and decodes one chunk at a time.
//
// Implementations are stateless from the caller's point of view and safe for
// concurrent use.
type Codec interface {
	// Compression returns the tag this codec handles.
	Compression() hpktype.Compression

	// Encode compresses src into a newly allocated slice.
	Encode(src []byte) ([]byte, error)

	// Decode decompresses src, which holds exactly one encoded chunk, and
	// must produce at most size bytes.
	Decode(src []byte, size int) ([]byte, error)
}

// Registry is a set of codecs keyed by compression tag.
type Registry struct {
	mu     sync.RWMutex
	codecs map[hpktype.Compression]Codec
}

var defaultRegistry = NewRegistry()

// Default returns the registry holding every codec compiled into this build.
func Default() *Registry {
	return defaultRegistry
}

// NewRegistry creates a registry holding the given codecs.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[hpktype.Compression]Codec, len(codecs))}
	for _, c := range codecs {
		r.codecs[c.Compression()] = c
	}
	return r
}

// Register adds c to the registry. It fails if the tag is outside the
// enumeration or a codec is already registered for it.
func (r *Registry) Register(c Codec) error {
	tag := c.Compression()
	if !tag.Valid() {
		return fmt.Errorf("%w: tag %d", hpktype.ErrUnknownCompression, tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codecs[tag]; ok {
		return fmt.Errorf("codec for %s already registered", tag)
	}
	r.codecs[tag] = c
	return nil
}

func mustRegister(c Codec) {
	if err := defaultRegistry.Register(c); err != nil {
		panic(err)
	}
}

// Without returns a copy of r with the given tags removed.
func (r *Registry) Without(tags ...hpktype.Compression) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &Registry{codecs: make(map[hpktype.Compression]Codec, len(r.codecs))}
	for tag, c := range r.codecs {
		if !slices.Contains(tags, tag) {
			out.codecs[tag] = c
		}
	}
	return out
}

// Resolve returns the codec for tag.
func (r *Registry) Resolve(tag hpktype.Compression) (Codec, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("%w: tag %d", hpktype.ErrUnknownCompression, tag)
	}
	r.mu.RLock()
	c, ok := r.codecs[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", hpktype.ErrUnsupportedCompression, tag)
	}
	return c, nil
}

// Supports reports whether tag has a registered codec.
func (r *Registry) Supports(tag hpktype.Compression) bool {
	_, err := r.Resolve(tag)
	return err == nil
}

// Tags returns the registered tags in enumeration order.
func (r *Registry) Tags() []hpktype.Compression {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]hpktype.Compression, 0, len(r.codecs))
	for tag := range r.codecs {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Encode compresses src with the codec registered for tag.
func (r *Registry) Encode(tag hpktype.Compression, src []byte) ([]byte, error) {
	c, err := r.Resolve(tag)
	if err != nil {
		return nil, err
	}
	out, err := c.Encode(src)
	if err != nil {
		return nil, fmt.Errorf("%s encode: %w", tag, err)
	}
	return out, nil
}

// Decode decompresses src with the codec registered for tag.
//
// The decoded length must equal size exactly; anything else is reported as
// ErrCorruptEntry. This is the integrity check for archives without
// checksums.
func (r *Registry) Decode(tag hpktype.Compression, src []byte, size int) ([]byte, error) {
	c, err := r.Resolve(tag)
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", hpktype.ErrCorruptEntry, size)
	}
	out, err := c.Decode(src, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s decode: %v", hpktype.ErrCorruptEntry, tag, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: %s decoded %d bytes, want %d", hpktype.ErrCorruptEntry, tag, len(out), size)
	}
	return out, nil
}
