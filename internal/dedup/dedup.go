package dedup

import (
	"container/list"
	"sync"
	"time"
)

// cleanupLimit bounds how many expired entries a single Add may sweep.
const cleanupLimit = 8

// Stats is a snapshot of deduplicator counters.
type Stats struct {
	Size       int   // Current entry count
	Capacity   int   // Configured maximum
	FirstSeen  int64 // Keys admitted as new
	Duplicates int64 // Keys rejected as already seen
	Expired    int64 // Entries removed or readmitted past TTL
	Evicted    int64 // Entries evicted to make room at capacity
}

// entry is a single tracked key with its last-seen time.
type entry struct {
	key    string
	seenAt time.Time
}

// Deduplicator is a bounded TTL set. One ingestion path mutates it; Stats and
// Contains may be called concurrently, so a single mutex guards all state.
type Deduplicator struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int

	// order holds *entry values, oldest last-seen at the front.
	order *list.List
	index map[string]*list.Element

	now func() time.Time

	firstSeen  int64
	duplicates int64
	expired    int64
	evicted    int64
}

// New creates a Deduplicator with the given TTL and capacity.
func New(ttl time.Duration, maxEntries int) *Deduplicator {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Deduplicator{
		ttl:        ttl,
		maxEntries: maxEntries,
		order:      list.New(),
		index:      make(map[string]*list.Element, maxEntries),
		now:        time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (d *Deduplicator) SetClock(now func() time.Time) {
	d.mu.Lock()
	d.now = now
	d.mu.Unlock()
}

// Add records a sighting of key. It returns true if the key was not already
// present (or had expired), false for a duplicate. Every call refreshes the
// key's TTL, duplicates included.
func (d *Deduplicator) Add(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.cleanupLocked(now)

	if el, ok := d.index[key]; ok {
		e := el.Value.(*entry)
		wasExpired := now.Sub(e.seenAt) > d.ttl

		// Refresh and keep the list ordered by last-seen so the lazy
		// sweep can stop at the first unexpired entry.
		e.seenAt = now
		d.order.MoveToBack(el)

		if wasExpired {
			d.expired++
			d.firstSeen++
			return true
		}
		d.duplicates++
		return false
	}

	// At capacity: evict the oldest entry regardless of expiry.
	if d.order.Len() >= d.maxEntries {
		front := d.order.Front()
		if front != nil {
			d.removeLocked(front)
			d.evicted++
		}
	}

	el := d.order.PushBack(&entry{key: key, seenAt: now})
	d.index[key] = el
	d.firstSeen++
	return true
}

// Contains reports whether key is present and unexpired, without inserting
// or refreshing it.
func (d *Deduplicator) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.index[key]
	if !ok {
		return false
	}
	return d.now().Sub(el.Value.(*entry).seenAt) <= d.ttl
}

// Len returns the current number of tracked entries, expired or not.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

// Stats returns a counter snapshot.
func (d *Deduplicator) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Size:       d.order.Len(),
		Capacity:   d.maxEntries,
		FirstSeen:  d.firstSeen,
		Duplicates: d.duplicates,
		Expired:    d.expired,
		Evicted:    d.evicted,
	}
}

// cleanupLocked sweeps up to cleanupLimit expired entries from the front.
// Entries are last-seen ordered, so the sweep stops at the first unexpired
// entry. Caller holds d.mu.
func (d *Deduplicator) cleanupLocked(now time.Time) {
	for i := 0; i < cleanupLimit; i++ {
		front := d.order.Front()
		if front == nil {
			return
		}
		if now.Sub(front.Value.(*entry).seenAt) <= d.ttl {
			return
		}
		d.removeLocked(front)
		d.expired++
	}
}

// removeLocked drops an element from both structures. Caller holds d.mu.
func (d *Deduplicator) removeLocked(el *list.Element) {
	delete(d.index, el.Value.(*entry).key)
	d.order.Remove(el)
}
