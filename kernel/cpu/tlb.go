// Package cpu models the parts of the processor that interact with paging:
// the translation lookaside buffer.
package cpu

import (
	"pagemap/kernel/mm"
	"pagemap/kernel/sync"
)

// TLB is a software translation cache that maps virtual pages to the physical
// frames they resolved to. Like its hardware counterpart it is never updated
// when page tables change; stale entries persist until they are explicitly
// invalidated with FlushTLBEntry or FlushAll.
type TLB struct {
	mutex   sync.Spinlock
	entries map[mm.Page]mm.Frame

	hits, misses, flushes uint64
}

// NewTLB returns an empty translation cache.
func NewTLB() *TLB {
	return &TLB{entries: make(map[mm.Page]mm.Frame)}
}

// Lookup returns the cached frame for page.
func (t *TLB) Lookup(page mm.Page) (mm.Frame, bool) {
	t.mutex.Acquire()
	defer t.mutex.Release()

	frame, ok := t.entries[page]
	if ok {
		t.hits++
	} else {
		t.misses++
	}

	return frame, ok
}

// Insert caches the translation page -> frame.
func (t *TLB) Insert(page mm.Page, frame mm.Frame) {
	t.mutex.Acquire()
	t.entries[page] = frame
	t.mutex.Release()
}

// FlushTLBEntry invalidates the cached translation for the page that contains
// virtAddr.
func (t *TLB) FlushTLBEntry(virtAddr uintptr) {
	t.mutex.Acquire()
	delete(t.entries, mm.PageFromAddress(virtAddr))
	t.flushes++
	t.mutex.Release()
}

// FlushAll invalidates every cached translation.
func (t *TLB) FlushAll() {
	t.mutex.Acquire()
	t.entries = make(map[mm.Page]mm.Frame)
	t.flushes++
	t.mutex.Release()
}

// TLBStats reports translation cache counters.
type TLBStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
	Flushes uint64
}

// Stats returns a snapshot of the cache counters.
func (t *TLB) Stats() TLBStats {
	t.mutex.Acquire()
	defer t.mutex.Release()

	return TLBStats{
		Entries: len(t.entries),
		Hits:    t.hits,
		Misses:  t.misses,
		Flushes: t.flushes,
	}
}
