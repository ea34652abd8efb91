// Package bag implements bounded, priority-indexed stores of budgeted items.
//
// A Bag never holds two items with the same key: a second PutIn for a key
// merges budgets into the resident. When the bag is full, PutIn evicts the
// lowest-priority resident if the incoming item outranks it and otherwise
// rejects the incoming item; in both cases the displaced item is returned to
// the caller, so capacity pressure is a value, never an error.
//
// Bags are not safe for concurrent use. They are owned by the single cycle
// worker that drives them.
package bag

import "github.com/lazypower/attention/internal/budget"

// Item is a keyed, budget-bearing unit of work. Budget returns a pointer so
// the owning container can merge and decay in place.
type Item[K comparable] interface {
	Key() K
	Budget() *budget.Budget
}

// Bag is the capability shared by every bounded store.
type Bag[K comparable, V Item[K]] interface {
	// PutIn inserts or merges item. When ok is true, evicted is the item
	// that left (or never entered) the bag.
	PutIn(item V) (evicted V, ok bool)
	// TakeOut removes the next item chosen by the selection policy.
	TakeOut() (V, bool)
	// PeekNext returns the item TakeOut would return next without removing it.
	PeekNext() (V, bool)
	Get(key K) (V, bool)
	Remove(key K) (V, bool)
	ForEach(fn func(V))
	Size() int
	Capacity() int
	IsEmpty() bool
	Clear()
}

// Clock is the logical time source used for lazy decay.
type Clock interface {
	Time() int64
}

// frozen is the clock used when none is configured; nothing decays.
type frozen struct{}

func (frozen) Time() int64 { return 0 }
