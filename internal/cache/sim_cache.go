package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/greengoods/api/internal/model"
)

// Outcome is a cached dry-run verdict. A nil Err means the simulation
// succeeded.
type Outcome struct {
	OK  bool
	Err *model.SubmissionError
}

type entry struct {
	fingerprint string
	outcome     Outcome
	storedAt    time.Time
}

// SimCache caches pre-flight simulation outcomes by submission fingerprint.
// Entries expire after a fixed TTL; once the cache is full the least
// recently used entry is evicted, so a session touching many distinct
// targets cannot grow it unboundedly.
type SimCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	now func() time.Time
}

// NewSimCache creates a simulation cache with the given TTL and size bound.
func NewSimCache(ttl time.Duration, maxSize int) *SimCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &SimCache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the cached outcome for a fingerprint, if fresh.
func (c *SimCache) Get(fingerprint string) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fingerprint]
	if !ok {
		return Outcome{}, false
	}

	e := el.Value.(*entry)
	if c.now().Sub(e.storedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, fingerprint)
		return Outcome{}, false
	}

	c.order.MoveToFront(el)
	return e.outcome, true
}

// Put stores an outcome, evicting the least recently used entry when full.
func (c *SimCache) Put(fingerprint string, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[fingerprint]; ok {
		e := el.Value.(*entry)
		e.outcome = outcome
		e.storedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry).fingerprint)
		}
	}

	el := c.order.PushFront(&entry{
		fingerprint: fingerprint,
		outcome:     outcome,
		storedAt:    c.now(),
	})
	c.entries[fingerprint] = el
}

// Len returns the number of cached entries, expired or not.
func (c *SimCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Fingerprint derives the cache key for a job. The account is part of the
// hash, so outcomes never leak across users.
func Fingerprint(job *model.Job) string {
	h := sha256.New()
	h.Write([]byte(job.Backend))
	h.Write([]byte{0})
	h.Write([]byte(job.UserAddress))
	h.Write([]byte{0})
	h.Write([]byte(job.Kind))
	h.Write([]byte{0})
	h.Write(job.Payload)
	return hex.EncodeToString(h.Sum(nil))
}
