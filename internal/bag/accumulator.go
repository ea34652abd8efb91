package bag

import (
	"slices"

	"github.com/lazypower/attention/internal/budget"
)

// Accumulator merges items by key as they arrive and hands them back ordered
// by priority. It has no capacity of its own; Limit trims it. Ordering is a
// full sort on every call, which suits the small one-cycle windows it is
// used for.
type Accumulator[K comparable, V Item[K]] struct {
	merge budget.MergePolicy
	items map[K]V
	// arrival order, so ties sort deterministically
	seq  map[K]uint64
	next uint64
}

// NewAccumulator creates an empty Accumulator merging with policy.
func NewAccumulator[K comparable, V Item[K]](policy budget.MergePolicy) *Accumulator[K, V] {
	return &Accumulator[K, V]{
		merge: policy,
		items: make(map[K]V),
		seq:   make(map[K]uint64),
	}
}

// Add merges item into the accumulator. It reports whether the key was new.
func (a *Accumulator[K, V]) Add(item V) bool {
	key := item.Key()
	if existing, ok := a.items[key]; ok {
		budget.Merge(existing.Budget(), *item.Budget(), a.merge)
		return false
	}
	item.Budget().Clamp()
	a.items[key] = item
	a.seq[key] = a.next
	a.next++
	return true
}

// AddAll adds every item in order.
func (a *Accumulator[K, V]) AddAll(items []V) {
	for _, it := range items {
		a.Add(it)
	}
}

func (a *Accumulator[K, V]) Size() int     { return len(a.items) }
func (a *Accumulator[K, V]) IsEmpty() bool { return len(a.items) == 0 }

// Get returns the accumulated item for key.
func (a *Accumulator[K, V]) Get(key K) (V, bool) {
	v, ok := a.items[key]
	return v, ok
}

// Clear drops everything.
func (a *Accumulator[K, V]) Clear() {
	clear(a.items)
	clear(a.seq)
}

// HighestFirst returns the items sorted by descending priority.
func (a *Accumulator[K, V]) HighestFirst() []V {
	out := a.LowestFirst()
	slices.Reverse(out)
	return out
}

// LowestFirst returns the items sorted by ascending priority; among equal
// priorities the later arrival comes first.
func (a *Accumulator[K, V]) LowestFirst() []V {
	out := make([]V, 0, len(a.items))
	for _, v := range a.items {
		out = append(out, v)
	}
	slices.SortFunc(out, func(x, y V) int {
		px, py := x.Budget().Priority, y.Budget().Priority
		switch {
		case px < py:
			return -1
		case px > py:
			return 1
		}
		sx, sy := a.seq[x.Key()], a.seq[y.Key()]
		switch {
		case sx > sy:
			return -1
		case sx < sy:
			return 1
		}
		return 0
	})
	return out
}

// Highest returns the highest-priority item without removing it.
func (a *Accumulator[K, V]) Highest() (V, bool) {
	return first(a.HighestFirst())
}

// Lowest returns the lowest-priority item without removing it.
func (a *Accumulator[K, V]) Lowest() (V, bool) {
	return first(a.LowestFirst())
}

// RemoveHighest removes and returns the highest-priority item.
func (a *Accumulator[K, V]) RemoveHighest() (V, bool) {
	v, ok := a.Highest()
	if ok {
		a.remove(v.Key())
	}
	return v, ok
}

// RemoveLowest removes and returns the lowest-priority item.
func (a *Accumulator[K, V]) RemoveLowest() (V, bool) {
	v, ok := a.Lowest()
	if ok {
		a.remove(v.Key())
	}
	return v, ok
}

// Limit removes the lowest-priority items until at most capacity remain and
// returns how many were removed.
func (a *Accumulator[K, V]) Limit(capacity int) int {
	excess := len(a.items) - max(capacity, 0)
	if excess <= 0 {
		return 0
	}
	for _, v := range a.LowestFirst()[:excess] {
		a.remove(v.Key())
	}
	return excess
}

// ForEach visits items in no particular order.
func (a *Accumulator[K, V]) ForEach(fn func(V)) {
	for _, v := range a.items {
		fn(v)
	}
}

func (a *Accumulator[K, V]) remove(key K) {
	delete(a.items, key)
	delete(a.seq, key)
}

func first[V any](vs []V) (V, bool) {
	if len(vs) == 0 {
		var zero V
		return zero, false
	}
	return vs[0], true
}
