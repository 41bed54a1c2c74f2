package models

import (
	"container/list"
	"sync"
)

// internEntry is one entry in the name-interning pool.
type internEntry struct {
	value       string
	listElement *list.Element
}

// NameIntern is a bounded, LRU-evicting string interning pool for schema
// entity names (§3.1 "Names are globally unique across all kinds"). A
// schema has at most a few thousand distinct type names, so the default
// pool is small relative to the teacher's tag interner, which had to
// absorb an unbounded stream of per-entity tag strings.
type NameIntern struct {
	mu      sync.RWMutex
	entries map[string]*internEntry
	lru     *list.List
	maxSize int
	hits    int64
	misses  int64
}

// defaultMaxNames bounds the pool; a schema exceeding this many distinct
// names is pathological, and eviction simply means the oldest reused name
// gets allocated again next time instead of pulled from the pool.
const defaultMaxNames = 4096

var defaultNameIntern = NewNameIntern(defaultMaxNames)

// NewNameIntern creates a pool bounded to maxSize distinct strings.
func NewNameIntern(maxSize int) *NameIntern {
	return &NameIntern{
		entries: make(map[string]*internEntry),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

// Intern returns a single shared copy of s, interning it if this is the
// first time the pool has seen it.
func (ni *NameIntern) Intern(s string) string {
	if s == "" {
		return ""
	}

	ni.mu.RLock()
	if e, ok := ni.entries[s]; ok {
		ni.mu.RUnlock()
		ni.mu.Lock()
		ni.lru.MoveToFront(e.listElement)
		ni.hits++
		ni.mu.Unlock()
		return e.value
	}
	ni.mu.RUnlock()

	ni.mu.Lock()
	defer ni.mu.Unlock()

	if e, ok := ni.entries[s]; ok {
		ni.lru.MoveToFront(e.listElement)
		ni.hits++
		return e.value
	}

	ni.misses++
	for len(ni.entries) >= ni.maxSize && ni.lru.Len() > 0 {
		oldest := ni.lru.Back()
		key := oldest.Value.(string)
		delete(ni.entries, key)
		ni.lru.Remove(oldest)
	}

	entry := &internEntry{value: s}
	entry.listElement = ni.lru.PushFront(s)
	ni.entries[s] = entry
	return s
}

// Size returns the number of currently interned names.
func (ni *NameIntern) Size() int {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	return len(ni.entries)
}

// Stats reports hit/miss counters for the pool.
func (ni *NameIntern) Stats() (hits, misses int64) {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	return ni.hits, ni.misses
}

// Intern interns s in the package-level default pool used by the Schema
// Registry for registered type names and forward-stub names.
func Intern(s string) string { return defaultNameIntern.Intern(s) }
