package hpk

import (
	"bytes"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// cacheKey identifies stored bytes. Empty raw entries may share an offset
// with their successor, so the stored length is part of the key.
type cacheKey struct {
	offset uint64
	stored uint64
}

func keyOf(f *File) cacheKey {
	return cacheKey{offset: f.Offset, stored: f.CompressedSize}
}

// contentCache holds decoded entry content.
type contentCache struct {
	lru   *lru.Cache[cacheKey, []byte]
	group singleflight.Group
}

func newContentCache(size int) (*contentCache, error) {
	c, err := lru.New[cacheKey, []byte](size)
	if err != nil {
		return nil, err
	}
	return &contentCache{lru: c}, nil
}

// get returns a copy of f's cached content.
func (c *contentCache) get(f *File) ([]byte, bool) {
	b, ok := c.lru.Get(keyOf(f))
	if !ok {
		return nil, false
	}
	return bytes.Clone(b), true
}

// load returns f's content, reading it with read on a miss. Concurrent
// misses for the same entry share one read.
func (c *contentCache) load(f *File, read func(*File) ([]byte, error)) ([]byte, error) {
	if b, ok := c.get(f); ok {
		return b, nil
	}
	key := keyOf(f)
	v, err, _ := c.group.Do(fmt.Sprintf("%d:%d", key.offset, key.stored), func() (any, error) {
		if b, ok := c.lru.Get(key); ok {
			return b, nil
		}
		b, err := read(f)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.([]byte)), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

func (c *contentCache) len() int {
	return c.lru.Len()
}
