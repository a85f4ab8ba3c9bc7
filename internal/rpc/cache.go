package rpc

import (
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

const lruSweepThreshold = 1000

// cacheEntry is one TTL-bounded cached response.
type cacheEntry struct {
	key       string
	value     json.RawMessage
	expiresAt time.Time
	elem      *list.Element
}

// cache is a process-wide, mutex-guarded TTL cache with LRU eviction,
// mirroring the map+mutex shape of the teacher's
// internal/net/ratelimit.Limiter host map.
type cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*cacheEntry
	order   *list.List // front = most recently used
}

func newCache(ttl time.Duration) *cache {
	return &cache{
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
	}
}

// cacheKey returns MD5(canonicalized JSON payload), per §4.1.
func cacheKey(method string, params any) string {
	canonical := canonicalize(params)
	payload, _ := json.Marshal(struct {
		Method string `json:"method"`
		Params any    `json:"params"`
	}{method, canonical})
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}

// canonicalize re-marshals through a map so key ordering is stable
// regardless of the caller's struct field order.
func canonicalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return v
	}
	return sortKeys(generic)
}

func sortKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[k] = sortKeys(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return v
	}
}

func (c *cache) get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(entry)
		return nil, false
	}
	c.order.MoveToFront(entry.elem)
	return entry.value, true
}

func (c *cache) set(key string, value json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.value = value
		existing.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(existing.elem)
		return
	}

	entry := &cacheEntry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	entry.elem = c.order.PushFront(entry)
	c.entries[key] = entry

	if len(c.entries) > lruSweepThreshold {
		c.sweepLocked()
	}
}

// sweepLocked evicts least-recently-used entries down to the threshold.
// Caller must hold c.mu.
func (c *cache) sweepLocked() {
	for len(c.entries) > lruSweepThreshold {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeLocked(back.Value.(*cacheEntry))
	}
}

func (c *cache) removeLocked(entry *cacheEntry) {
	c.order.Remove(entry.elem)
	delete(c.entries, entry.key)
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
