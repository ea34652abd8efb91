package event

import (
	"sync"
	"sync/atomic"
)

type snapshot[T any] struct {
	ids   []string
	items []T
}

// List is a registry that is read far more often than it is written.
// Writers copy the backing slice under a mutex and publish the copy;
// readers take the published slice and iterate it without locking, so a
// registration made during an iteration is only seen by the next one.
type List[T any] struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot[T]]
}

// Add registers v under id, replacing any entry with the same id.
func (l *List[T]) Add(id string, v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.load()
	next := &snapshot[T]{
		ids:   make([]string, 0, len(cur.ids)+1),
		items: make([]T, 0, len(cur.items)+1),
	}
	for i, existing := range cur.ids {
		if existing == id {
			continue
		}
		next.ids = append(next.ids, existing)
		next.items = append(next.items, cur.items[i])
	}
	next.ids = append(next.ids, id)
	next.items = append(next.items, v)
	l.snap.Store(next)
}

// Remove drops the entry registered under id and reports whether it existed.
func (l *List[T]) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.load()
	at := -1
	for i, existing := range cur.ids {
		if existing == id {
			at = i
			break
		}
	}
	if at < 0 {
		return false
	}
	next := &snapshot[T]{
		ids:   make([]string, 0, len(cur.ids)-1),
		items: make([]T, 0, len(cur.items)-1),
	}
	next.ids = append(append(next.ids, cur.ids[:at]...), cur.ids[at+1:]...)
	next.items = append(append(next.items, cur.items[:at]...), cur.items[at+1:]...)
	l.snap.Store(next)
	return true
}

// RemoveFunc drops every entry for which drop returns true and returns how
// many were removed.
func (l *List[T]) RemoveFunc(drop func(T) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.load()
	next := &snapshot[T]{}
	for i, v := range cur.items {
		if drop(v) {
			continue
		}
		next.ids = append(next.ids, cur.ids[i])
		next.items = append(next.items, v)
	}
	removed := len(cur.items) - len(next.items)
	if removed > 0 {
		l.snap.Store(next)
	}
	return removed
}

// Snapshot returns the current entries. The slice must not be modified.
func (l *List[T]) Snapshot() []T {
	return l.load().items
}

// IDs returns the ids of the current entries, in registration order.
func (l *List[T]) IDs() []string {
	return l.load().ids
}

func (l *List[T]) Len() int { return len(l.load().items) }

// Clear drops every entry.
func (l *List[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap.Store(&snapshot[T]{})
}

func (l *List[T]) load() *snapshot[T] {
	if s := l.snap.Load(); s != nil {
		return s
	}
	return &snapshot[T]{}
}
