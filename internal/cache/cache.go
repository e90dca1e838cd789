// Package cache implements the volatile, size-bounded result cache.
//
// Entries expire lazily: a lookup that finds an entry older than the TTL
// deletes it and reports a miss. There is no background sweep.
//
// When a Put pushes the entry count past MaxEntries, entries are evicted from
// the oldest end of an ordered list until the bound holds. Under the default
// PolicyFIFO the list is insertion order only, so it is not an LRU: a key that
// is read constantly but was inserted early is evicted before a one-off key
// inserted later. PolicyLRU moves an entry to the newest end on every hit,
// giving least-recently-used eviction without changing the API.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

// Policy selects the eviction order.
type Policy string

// Eviction policies.
const (
	PolicyFIFO Policy = "fifo"
	PolicyLRU  Policy = "lru"
)

// ParsePolicy converts a config string into a Policy. An empty string maps to
// PolicyFIFO.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFIFO:
		return PolicyFIFO, nil
	case PolicyLRU:
		return PolicyLRU, nil
	default:
		return "", fmt.Errorf("unknown eviction policy %q", s)
	}
}

// Config controls freshness and size.
type Config struct {
	TTL        time.Duration
	MaxEntries int
	Policy     Policy
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries    int           `json:"entries"`
	MaxEntries int           `json:"max_entries"`
	TTL        time.Duration `json:"ttl"`
	Policy     Policy        `json:"policy"`
	Keys       []string      `json:"keys"`
}

// Observer receives cache events. Implementations must be cheap and
// non-blocking.
type Observer interface {
	CacheLookup(result string)
	CacheEvicted(reason string)
	CacheSize(n int)
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	createdAt time.Time
}

// Cache maps keys to timestamped values. It is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	cfg      Config
	clock    scrape.Clock
	order    *list.List
	items    map[K]*list.Element
	observer Observer
}

// New builds an empty cache. A non-positive MaxEntries disables the size bound.
func New[K comparable, V any](cfg Config, clock scrape.Clock) *Cache[K, V] {
	if cfg.Policy == "" {
		cfg.Policy = PolicyFIFO
	}
	return &Cache[K, V]{
		cfg:   cfg,
		clock: clock,
		order: list.New(),
		items: make(map[K]*list.Element),
	}
}

// WithObserver attaches an Observer and returns the cache.
func (c *Cache[K, V]) WithObserver(o Observer) *Cache[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
	return c
}

// Get returns the value for key if present and fresh. An expired entry is
// removed before returning a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.lookup("miss")
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.clock.Now().Sub(e.createdAt) > c.cfg.TTL {
		c.remove(el)
		c.lookup("expired")
		c.evicted("expired")
		return zero, false
	}
	if c.cfg.Policy == PolicyLRU {
		c.order.MoveToBack(el)
	}
	c.lookup("hit")
	return e.value, true
}

// Put stores value under key, replacing any previous entry. A replacement is
// treated as a new insertion. Oldest entries are evicted while the cache is
// over its bound.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
	}
	c.items[key] = c.order.PushBack(&entry[K, V]{
		key:       key,
		value:     value,
		createdAt: c.clock.Now(),
	})
	if c.cfg.MaxEntries > 0 {
		for len(c.items) > c.cfg.MaxEntries {
			c.remove(c.order.Front())
			c.evicted("capacity")
		}
	}
	c.size()
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.remove(el)
	return true
}

// Clear drops every entry and returns how many were removed.
func (c *Cache[K, V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.items)
	c.order.Init()
	c.items = make(map[K]*list.Element)
	c.size()
	return n
}

// Len returns the number of stored entries, including ones that have expired
// but not yet been looked up.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// TTL returns the configured freshness window.
func (c *Cache[K, V]) TTL() time.Duration {
	return c.cfg.TTL
}

// Keys returns keys from oldest to newest in eviction order.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

// Stats summarizes the cache for admin endpoints.
func (c *Cache[K, V]) Stats() Stats {
	keys := c.Keys()
	out := Stats{
		Entries:    len(keys),
		MaxEntries: c.cfg.MaxEntries,
		TTL:        c.cfg.TTL,
		Policy:     c.cfg.Policy,
		Keys:       make([]string, 0, len(keys)),
	}
	for _, k := range keys {
		out.Keys = append(out.Keys, fmt.Sprint(k))
	}
	return out
}

func (c *Cache[K, V]) remove(el *list.Element) {
	e := c.order.Remove(el).(*entry[K, V])
	delete(c.items, e.key)
	c.size()
}

func (c *Cache[K, V]) lookup(result string) {
	if c.observer != nil {
		c.observer.CacheLookup(result)
	}
}

func (c *Cache[K, V]) evicted(reason string) {
	if c.observer != nil {
		c.observer.CacheEvicted(reason)
	}
}

func (c *Cache[K, V]) size() {
	if c.observer != nil {
		c.observer.CacheSize(len(c.items))
	}
}
