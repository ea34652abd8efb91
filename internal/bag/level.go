package bag

import (
	"container/list"
	"math"
	"math/rand/v2"

	"github.com/lazypower/attention/internal/budget"
)

// Options configures a LevelBag.
type Options struct {
	Capacity int
	// Levels is the number of priority buckets. Values below 1 become 1.
	Levels int
	Merge  budget.MergePolicy
	Forget budget.Forgetting
	// Clock drives lazy decay. Nil disables decay.
	Clock Clock
	// Seed fixes the selection dice so runs are reproducible.
	Seed uint64
}

type entry[K comparable, V Item[K]] struct {
	item    V
	level   int
	touched int64
	elem    *list.Element
}

// LevelBag discretizes priority into levels, each a FIFO queue. Selection
// favors high levels while still serving every non-empty level.
type LevelBag[K comparable, V Item[K]] struct {
	capacity int
	levels   []*list.List
	index    map[K]*entry[K, V]
	nonEmpty int

	merge  budget.MergePolicy
	forget budget.Forgetting
	clock  Clock
	rng    *rand.Rand

	cursor int
	pinned *entry[K, V]
}

var _ Bag[string, Item[string]] = (*LevelBag[string, Item[string]])(nil)

// NewLevelBag creates an empty LevelBag.
func NewLevelBag[K comparable, V Item[K]](opts Options) *LevelBag[K, V] {
	if opts.Levels < 1 {
		opts.Levels = 1
	}
	if opts.Clock == nil {
		opts.Clock = frozen{}
	}
	b := &LevelBag[K, V]{
		capacity: opts.Capacity,
		levels:   make([]*list.List, opts.Levels),
		index:    make(map[K]*entry[K, V], max(opts.Capacity, 0)),
		merge:    opts.Merge,
		forget:   opts.Forget,
		clock:    opts.Clock,
		rng:      rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
	for i := range b.levels {
		b.levels[i] = list.New()
	}
	// the first advance lands on the top level
	b.cursor = (opts.Levels - 2 + opts.Levels) % opts.Levels
	return b
}

// LevelOf returns the bucket for a priority: floor(p*L) clamped to [0, L-1].
func LevelOf(priority float64, levels int) int {
	l := int(math.Floor(priority * float64(levels)))
	if l < 0 {
		return 0
	}
	if l >= levels {
		return levels - 1
	}
	return l
}

func (b *LevelBag[K, V]) Capacity() int { return b.capacity }
func (b *LevelBag[K, V]) Size() int     { return len(b.index) }
func (b *LevelBag[K, V]) IsEmpty() bool { return len(b.index) == 0 }
func (b *LevelBag[K, V]) Levels() int   { return len(b.levels) }

// SetForgetting replaces the decay parameters for subsequent touches.
func (b *LevelBag[K, V]) SetForgetting(f budget.Forgetting) { b.forget = f }

// SetMerge replaces the merge policy for subsequent PutIn calls.
func (b *LevelBag[K, V]) SetMerge(p budget.MergePolicy) { b.merge = p }

// LevelSizes returns the number of residents per level, lowest first.
func (b *LevelBag[K, V]) LevelSizes() []int {
	sizes := make([]int, len(b.levels))
	for i, l := range b.levels {
		sizes[i] = l.Len()
	}
	return sizes
}

// PutIn inserts item, merging into an existing resident with the same key.
func (b *LevelBag[K, V]) PutIn(item V) (V, bool) {
	var zero V
	b.pinned = nil

	if e, ok := b.index[item.Key()]; ok {
		b.touch(e)
		budget.Merge(e.item.Budget(), *item.Budget(), b.merge)
		b.rehome(e)
		return zero, false
	}

	item.Budget().Clamp()
	e := &entry[K, V]{
		item:    item,
		level:   LevelOf(item.Budget().Priority, len(b.levels)),
		touched: b.clock.Time(),
	}

	if len(b.index) < b.capacity {
		b.attach(e)
		return zero, false
	}

	victim := b.lowest()
	if victim == nil || item.Budget().Priority <= victim.item.Budget().Priority {
		return item, true
	}
	b.detach(victim)
	b.attach(e)
	return victim.item, true
}

// TakeOut removes and returns the next selected item.
func (b *LevelBag[K, V]) TakeOut() (V, bool) {
	var zero V
	if len(b.index) == 0 {
		return zero, false
	}
	e := b.pinned
	if e == nil {
		e = b.selectEntry()
	}
	b.pinned = nil
	b.detach(e)
	b.touch(e)
	return e.item, true
}

// PeekNext returns the item the next TakeOut will return.
func (b *LevelBag[K, V]) PeekNext() (V, bool) {
	var zero V
	if len(b.index) == 0 {
		return zero, false
	}
	if b.pinned == nil {
		b.pinned = b.selectEntry()
	}
	b.touch(b.pinned)
	return b.pinned.item, true
}

// Get returns the resident for key, decayed to the current time.
func (b *LevelBag[K, V]) Get(key K) (V, bool) {
	e, ok := b.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	b.touch(e)
	return e.item, true
}

// Remove deletes the resident for key.
func (b *LevelBag[K, V]) Remove(key K) (V, bool) {
	e, ok := b.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	b.pinned = nil
	b.detach(e)
	return e.item, true
}

// Relevel moves the resident for key into the bucket matching its current,
// decayed priority.
func (b *LevelBag[K, V]) Relevel(key K) bool {
	e, ok := b.index[key]
	if !ok {
		return false
	}
	b.pinned = nil
	b.touch(e)
	b.rehome(e)
	return true
}

// ForEach visits residents from the highest level down, FIFO within a level.
// It does not decay or reorder anything.
func (b *LevelBag[K, V]) ForEach(fn func(V)) {
	for l := len(b.levels) - 1; l >= 0; l-- {
		for el := b.levels[l].Front(); el != nil; el = el.Next() {
			fn(el.Value.(*entry[K, V]).item)
		}
	}
}

// Clear drops every resident.
func (b *LevelBag[K, V]) Clear() {
	for _, l := range b.levels {
		l.Init()
	}
	clear(b.index)
	b.nonEmpty = 0
	b.pinned = nil
}

// selectEntry implements the level-biased walk. The bag must be non-empty.
//
// The cursor advances upward, wrapping, to the next non-empty level c, which
// is accepted when a roll in [0, L) is <= c. Level l is therefore accepted
// with probability (l+1)/L.
func (b *LevelBag[K, V]) selectEntry() *entry[K, V] {
	n := len(b.levels)
	if b.nonEmpty == 1 {
		for l := n - 1; l >= 0; l-- {
			if b.levels[l].Len() > 0 {
				b.cursor = l
				return b.levels[l].Front().Value.(*entry[K, V])
			}
		}
	}

	c, last := b.cursor, -1
	for i := 0; i < n*n; i++ {
		c = (c + 1) % n
		if b.levels[c].Len() == 0 {
			continue
		}
		last = c
		if b.rng.IntN(n) <= c {
			break
		}
	}
	b.cursor = last
	return b.levels[last].Front().Value.(*entry[K, V])
}

// lowest returns the minimum-priority resident. Decay on touch lowers a
// priority without moving the resident out of its bucket, so every level is
// scanned; on ties the lower level, then the earlier arrival, wins.
func (b *LevelBag[K, V]) lowest() *entry[K, V] {
	var low *entry[K, V]
	for _, l := range b.levels {
		for el := l.Front(); el != nil; el = el.Next() {
			e := el.Value.(*entry[K, V])
			if low == nil || e.item.Budget().Priority < low.item.Budget().Priority {
				low = e
			}
		}
	}
	return low
}

func (b *LevelBag[K, V]) touch(e *entry[K, V]) {
	now := b.clock.Time()
	if elapsed := now - e.touched; elapsed > 0 {
		bp := e.item.Budget()
		*bp = budget.Decay(*bp, elapsed, b.forget)
	}
	e.touched = now
}

func (b *LevelBag[K, V]) rehome(e *entry[K, V]) {
	level := LevelOf(e.item.Budget().Priority, len(b.levels))
	if level == e.level {
		return
	}
	b.unlink(e)
	e.level = level
	b.link(e)
}

func (b *LevelBag[K, V]) attach(e *entry[K, V]) {
	b.index[e.item.Key()] = e
	b.link(e)
}

func (b *LevelBag[K, V]) detach(e *entry[K, V]) {
	if b.pinned == e {
		b.pinned = nil
	}
	delete(b.index, e.item.Key())
	b.unlink(e)
}

func (b *LevelBag[K, V]) link(e *entry[K, V]) {
	l := b.levels[e.level]
	if l.Len() == 0 {
		b.nonEmpty++
	}
	e.elem = l.PushBack(e)
}

func (b *LevelBag[K, V]) unlink(e *entry[K, V]) {
	l := b.levels[e.level]
	l.Remove(e.elem)
	e.elem = nil
	if l.Len() == 0 {
		b.nonEmpty--
	}
}
