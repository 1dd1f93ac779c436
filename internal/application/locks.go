package application

import (
	"slices"
	"sync"
)

// keyedLocks serialises work per key such as "event:<id>" or "band:<id>".
// Entries are reference counted and dropped once nobody holds them.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{entries: make(map[string]*keyedLock)}
}

// lock acquires every key in sorted order and returns the release function.
func (l *keyedLocks) lock(keys ...string) func() {
	if l == nil || len(keys) == 0 {
		return func() {}
	}
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*keyedLock, 0, len(sorted))
	for _, key := range sorted {
		l.mu.Lock()
		entry, ok := l.entries[key]
		if !ok {
			entry = &keyedLock{}
			l.entries[key] = entry
		}
		entry.refs++
		l.mu.Unlock()

		entry.mu.Lock()
		held = append(held, entry)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			entry := held[i]
			entry.mu.Unlock()

			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.entries, sorted[i])
			}
			l.mu.Unlock()
		}
	}
}

func (l *keyedLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func eventKey(id string) string   { return "event:" + id }
func bandKey(id string) string    { return "band:" + id }
func requestKey(id string) string { return "request:" + id }
