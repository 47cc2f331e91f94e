// Package idlock provides an id-keyed mutex table: writes to a single
// record id are serialized for the duration of a tier move, while ids
// operate independently of one another (§5). Entries with zero waiters
// are evicted after an idle window so the table doesn't grow unbounded
// across the lifetime of a long-running process.
package idlock

import (
	"sync"
	"time"
)

const defaultIdleEviction = 5 * time.Second

type entry struct {
	mu       sync.Mutex
	waiters  int
	lastUsed time.Time
}

// Table is a striped-by-id lock registry with idle eviction.
type Table struct {
	mu           sync.Mutex
	entries      map[string]*entry
	idleEviction time.Duration
	stopCh       chan struct{}
	stopped      bool
}

// New creates a Table and starts its background eviction sweep.
func New() *Table {
	return NewWithIdleEviction(defaultIdleEviction)
}

// NewWithIdleEviction creates a Table using a custom idle window, mainly
// for tests that want eviction to happen faster than the 5s default.
func NewWithIdleEviction(idle time.Duration) *Table {
	t := &Table{
		entries:      make(map[string]*entry),
		idleEviction: idle,
		stopCh:       make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Lock acquires the mutex for id, creating its entry if necessary.
func (t *Table) Lock(id string) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		e = &entry{}
		t.entries[id] = e
	}
	e.waiters++
	t.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for id. It is the caller's responsibility to
// pair every Lock with exactly one Unlock on the same id.
func (t *Table) Unlock(id string) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	e.waiters--
	e.lastUsed = time.Now()
	t.mu.Unlock()

	e.mu.Unlock()
}

// WithLock runs fn while holding id's lock.
func (t *Table) WithLock(id string, fn func()) {
	t.Lock(id)
	defer t.Unlock(id)
	fn()
}

// Size returns the number of id entries currently tracked, for tests and
// diagnostics.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close stops the background eviction sweep.
func (t *Table) Close() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	close(t.stopCh)
}

func (t *Table) sweepLoop() {
	ticker := time.NewTicker(t.idleEviction)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.evictIdle()
		case <-t.stopCh:
			return
		}
	}
}

func (t *Table) evictIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for id, e := range t.entries {
		if e.waiters == 0 && now.Sub(e.lastUsed) >= t.idleEviction {
			delete(t.entries, id)
		}
	}
}
