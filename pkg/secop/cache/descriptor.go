// Package cache provides the descriptor cache of SPEC_FULL.md §6: a
// module's Describe() output is immutable after construction (the
// accessible map is frozen), so it is computed once and memoized behind
// an LRU keyed by a content hash of the module's identity, instead of
// re-marshaling the full descriptor tree on every incoming `describe`.
package cache

import (
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
)

// DescriptorCache memoizes module descriptors by a content-derived key.
// Safe for concurrent use.
type DescriptorCache struct {
	lru *lru.Cache[string, map[string]any]
}

// NewDescriptorCache builds a cache holding up to size entries — one per
// distinct module identity a node will realistically ever describe, so
// a generous size comfortably covers a node's whole module set.
func NewDescriptorCache(size int) (*DescriptorCache, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[string, map[string]any](size)
	if err != nil {
		return nil, err
	}
	return &DescriptorCache{lru: c}, nil
}

// Key hashes a module's class identity plus a list of names into a
// stable cache key. The cache returns whatever was first stored under a
// key without calling compute again, so callers must fold into the key
// everything Describe()'s output depends on; the dispatcher passes the
// module name followed by the module's frozen accessible names.
func Key(implementation string, accessibleNames []string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(implementation))
	h.Write([]byte{0})
	for _, n := range accessibleNames {
		h.Write([]byte(n))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetOrCompute returns the cached descriptor for key, computing and
// storing it via compute on a miss.
func (c *DescriptorCache) GetOrCompute(key string, compute func() map[string]any) map[string]any {
	if v, ok := c.lru.Get(key); ok {
		return v
	}
	v := compute()
	c.lru.Add(key, v)
	return v
}

// Invalidate drops a cached entry — never called in normal operation
// since module reconfiguration after construction is unsupported
// (SPEC_FULL.md §6), but kept for tests that rebuild a module under the
// same key.
func (c *DescriptorCache) Invalidate(key string) {
	c.lru.Remove(key)
}
