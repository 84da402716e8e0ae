package aprs

import (
	"container/list"
	"sync"
	"time"

	"github.com/hut8/soar/internal/domain"
)

// receiverCache is the LRU-like hot-path cache covering the APRS receiver upsert
// (spec.md §4.2: "~10^5 entries, ~24h TTL"). No third-party LRU implementation appears
// anywhere in the example pack, so this is built on container/list, the standard
// library's own doubly-linked list, the same way the stdlib's own lru-adjacent code
// (httputil, x/tools) builds one when no cache library is already in the dependency
// graph to reuse.
type receiverCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type receiverCacheEntry struct {
	callsign string
	ref      domain.ReceiverRef
	expires  time.Time
}

func newReceiverCache(capacity int, ttl time.Duration) *receiverCache {
	return &receiverCache{
		ttl:      ttl,
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *receiverCache) get(callsign string) (domain.ReceiverRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[callsign]
	if !ok {
		return "", false
	}
	e := el.Value.(*receiverCacheEntry)
	if time.Now().After(e.expires) {
		c.ll.Remove(el)
		delete(c.items, callsign)
		return "", false
	}
	c.ll.MoveToFront(el)
	return e.ref, true
}

func (c *receiverCache) put(callsign string, ref domain.ReceiverRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[callsign]; ok {
		el.Value.(*receiverCacheEntry).ref = ref
		el.Value.(*receiverCacheEntry).expires = time.Now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&receiverCacheEntry{callsign: callsign, ref: ref, expires: time.Now().Add(c.ttl)})
	c.items[callsign] = el
	if c.capacity > 0 && c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*receiverCacheEntry).callsign)
		}
	}
}
