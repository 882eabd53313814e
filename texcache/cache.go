// Package texcache tracks which images are resident in the texture cache.
//
// Only image data whose pixels must be uploaded is admitted: raw and blob
// images, and external images backed by host buffers. External GPU texture
// handles are sampled in place and never enter the cache.
package texcache

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/imageapi"
)

const (
	// shardCount is a power of two so shard selection is a mask.
	shardCount = 16
	shardMask  = shardCount - 1

	// DefaultCapacity is the default number of entries per shard.
	DefaultCapacity = 256
)

// ErrNotCacheable is returned by Admit for data sampled without a copy.
var ErrNotCacheable = errors.New("texcache: image data does not use the texture cache")

// Entry describes one resident image.
type Entry struct {
	Key    imageapi.ImageKey
	Format gputypes.TextureFormat
	Size   gputypes.Extent3D

	// Bytes is the size of the texture allocation.
	Bytes uint64

	// Epoch is the frame the content was uploaded in.
	Epoch uint64

	// Pixels is the CPU copy of the content, if the caller kept one.
	Pixels []byte
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Len           int
	TotalCapacity int
	Bytes         uint64
	Hits          uint64
	Misses        uint64
	HitRate       float64
	Evictions     uint64
}

type shard struct {
	mu      sync.Mutex
	entries map[imageapi.ImageKey]*resident
	order   recency
}

type resident struct {
	entry Entry
	node  *node
}

// Cache is a sharded LRU table of resident images. It is safe for
// concurrent use.
type Cache struct {
	shards   [shardCount]*shard
	capacity int
	onEvict  func(Entry)

	bytes     atomic.Uint64
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the number of entries per shard. Values below 1 keep
// the default.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithEvictHandler sets a function called for every entry that leaves the
// cache, by eviction or explicitly. It runs without cache locks held.
func WithEvictHandler(fn func(Entry)) Option {
	return func(c *Cache) {
		c.onEvict = fn
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(c)
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[imageapi.ImageKey]*resident)}
	}
	return c
}

func (c *Cache) shard(key imageapi.ImageKey) *shard {
	h := fnv.New64a()
	var buf [8]byte
	ns, id := uint32(key.Namespace), key.ID
	buf[0], buf[1], buf[2], buf[3] = byte(ns), byte(ns>>8), byte(ns>>16), byte(ns>>24)
	buf[4], buf[5], buf[6], buf[7] = byte(id), byte(id>>8), byte(id>>16), byte(id>>24)
	_, _ = h.Write(buf[:]) // fnv never fails
	return c.shards[h.Sum64()&shardMask]
}

// Admit records key as resident with the content of data at desc,
// replacing any previous entry. pixels may be nil.
func (c *Cache) Admit(key imageapi.ImageKey, data imageapi.ImageData, desc imageapi.ImageDescriptor, pixels []byte, epoch uint64) (Entry, error) {
	switch d := data.(type) {
	case imageapi.RawImageData, imageapi.BlobImageData:
	case imageapi.ExternalImageData:
		if !d.ImageType.IsValid() {
			return Entry{}, fmt.Errorf("texcache: admit %v: external type %v: %w", key, d.ImageType, ErrNotCacheable)
		}
	default:
		return Entry{}, fmt.Errorf("texcache: admit %v: image data %T: %w", key, data, ErrNotCacheable)
	}
	if !imageapi.UsesTextureCache(data) {
		return Entry{}, fmt.Errorf("texcache: admit %v: %w", key, ErrNotCacheable)
	}
	if !desc.Format.IsValid() {
		return Entry{}, fmt.Errorf("texcache: admit %v: invalid format %d", key, uint32(desc.Format))
	}

	e := Entry{
		Key:    key,
		Format: desc.Format.TextureFormat(),
		Size:   desc.Extent(),
		Bytes:  uint64(desc.Width) * uint64(desc.Height) * uint64(desc.Format.BytesPerPixel()),
		Epoch:  epoch,
		Pixels: pixels,
	}

	s := c.shard(key)
	var evicted []Entry
	s.mu.Lock()
	if r, ok := s.entries[key]; ok {
		evicted = append(evicted, r.entry)
		c.bytes.Add(-r.entry.Bytes)
		r.entry = e
		s.order.touch(r.node)
	} else {
		for s.order.len >= c.capacity {
			oldest, _ := s.order.oldest()
			evicted = append(evicted, c.removeLocked(s, oldest))
			c.evictions.Add(1)
		}
		s.entries[key] = &resident{entry: e, node: s.order.pushFront(key)}
	}
	c.bytes.Add(e.Bytes)
	s.mu.Unlock()

	c.notify(evicted)
	return e, nil
}

// Lookup returns the entry for key and marks it recently used.
func (c *Cache) Lookup(key imageapi.ImageKey) (Entry, bool) {
	s := c.shard(key)
	s.mu.Lock()
	r, ok := s.entries[key]
	if ok {
		s.order.touch(r.node)
	}
	s.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return Entry{}, false
	}
	c.hits.Add(1)
	return r.entry, true
}

// Evict removes key. It reports whether key was resident.
func (c *Cache) Evict(key imageapi.ImageKey) bool {
	s := c.shard(key)
	s.mu.Lock()
	if _, ok := s.entries[key]; !ok {
		s.mu.Unlock()
		return false
	}
	e := c.removeLocked(s, key)
	s.mu.Unlock()

	c.notify([]Entry{e})
	return true
}

// EvictBefore removes every entry uploaded before epoch and returns how
// many were removed.
func (c *Cache) EvictBefore(epoch uint64) int {
	var evicted []Entry
	for _, s := range c.shards {
		s.mu.Lock()
		for key, r := range s.entries {
			if r.entry.Epoch < epoch {
				evicted = append(evicted, c.removeLocked(s, key))
			}
		}
		s.mu.Unlock()
	}
	c.notify(evicted)
	return len(evicted)
}

// Clear removes every entry without calling the evict handler.
func (c *Cache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[imageapi.ImageKey]*resident)
		s.order.clear()
		s.mu.Unlock()
	}
	c.bytes.Store(0)
}

// Len returns the number of resident images.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return Stats{
		Len:           c.Len(),
		TotalCapacity: c.capacity * shardCount,
		Bytes:         c.bytes.Load(),
		Hits:          hits,
		Misses:        misses,
		HitRate:       rate,
		Evictions:     c.evictions.Load(),
	}
}

func (c *Cache) removeLocked(s *shard, key imageapi.ImageKey) Entry {
	r := s.entries[key]
	s.order.remove(r.node)
	delete(s.entries, key)
	c.bytes.Add(-r.entry.Bytes)
	return r.entry
}

func (c *Cache) notify(evicted []Entry) {
	if c.onEvict == nil {
		return
	}
	for _, e := range evicted {
		c.onEvict(e)
	}
}
