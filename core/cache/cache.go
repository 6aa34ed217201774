// Package cache holds the append-only lookup table shared by the resolver and
// the delegate synthesizer.
//
// Reflection metadata for a loaded type never changes within a process, so
// entries are never evicted or replaced. Concurrent misses for the same key
// are collapsed into a single computation.
package cache

import (
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// ResolverCache is a string-keyed, append-only table.
type ResolverCache struct {
	items  *gocache.Cache
	group  singleflight.Group
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns an empty cache.
func New() *ResolverCache {
	return &ResolverCache{items: gocache.New(gocache.NoExpiration, 0)}
}

var (
	defaultOnce  sync.Once
	defaultCache *ResolverCache
)

// Default returns the process wide cache. It is created on first use and
// never torn down.
func Default() *ResolverCache {
	defaultOnce.Do(func() { defaultCache = New() })
	return defaultCache
}

// Lookup returns the cached value for key.
func (c *ResolverCache) Lookup(key string) (any, bool) {
	v, ok := c.items.Get(key)
	if ok {
		c.hits.Add(1)
	}
	return v, ok
}

// GetOrAdd returns the value stored under key, computing and inserting it
// with fn when absent. Errors returned by fn are not cached.
func (c *ResolverCache) GetOrAdd(key string, fn func() (any, error)) (any, error) {
	if v, ok := c.Lookup(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.items.Get(key); ok {
			return v, nil
		}
		c.misses.Add(1)
		v, err := fn()
		if err != nil {
			return nil, err
		}
		// Add refuses to overwrite, which keeps the first settled entry.
		if err := c.items.Add(key, v, gocache.NoExpiration); err != nil {
			if existing, ok := c.items.Get(key); ok {
				return existing, nil
			}
		}
		return v, nil
	})
	return v, err
}

// Len returns the number of settled entries.
func (c *ResolverCache) Len() int { return c.items.ItemCount() }

// Stats returns the hit and miss counters.
func (c *ResolverCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Table is a typed view over a namespace of a ResolverCache.
type Table[V any] struct {
	cache *ResolverCache
	ns    string
}

// NewTable returns a typed table whose keys are prefixed with ns.
func NewTable[V any](c *ResolverCache, ns string) *Table[V] {
	if c == nil {
		c = Default()
	}
	return &Table[V]{cache: c, ns: ns}
}

// Get returns the value cached under the key parts.
func (t *Table[V]) Get(parts ...string) (V, bool) {
	v, ok := t.cache.Lookup(t.key(parts))
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// GetOrAdd is ResolverCache.GetOrAdd with typed values.
func (t *Table[V]) GetOrAdd(fn func() (V, error), parts ...string) (V, error) {
	v, err := t.cache.GetOrAdd(t.key(parts), func() (any, error) { return fn() })
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (t *Table[V]) key(parts []string) string {
	return t.ns + "|" + strings.Join(parts, "|")
}

// TypeKey renders t as a cache key component. The package path of the named
// type is included so equally named types from different packages differ.
func TypeKey(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	base := t
	for base.Kind() == reflect.Pointer || base.Kind() == reflect.Slice || base.Kind() == reflect.Array {
		base = base.Elem()
	}
	if pkg := base.PkgPath(); pkg != "" {
		return pkg + ":" + t.String()
	}
	return t.String()
}
