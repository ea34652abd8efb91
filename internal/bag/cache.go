package bag

import (
	"container/list"
	"context"
	"fmt"
	"time"

	"github.com/lazypower/attention/internal/budget"
)

const defaultStoreTimeout = 2 * time.Second

// CacheOptions configures a CacheBag.
type CacheOptions struct {
	Options
	// Timeout bounds every secondary store call. Zero means 2s.
	Timeout time.Duration
	// OnError receives store failures that the Bag interface cannot return.
	OnError func(error)
}

// CacheBag is a LevelBag whose evictions are written to a secondary store
// instead of being discarded. Size and Capacity describe the in-memory part
// only; Overflowed counts the keys parked in the store.
//
// Items parked in the store do not decay. A parked item that is looked up is
// promoted back into memory with a fresh touch time.
type CacheBag[K comparable, V Item[K]] struct {
	mem     *LevelBag[K, V]
	store   SecondaryStore[K, V]
	timeout time.Duration
	onError func(error)

	// parked keys, oldest first
	order  *list.List
	parked map[K]*list.Element
}

var _ Bag[string, Item[string]] = (*CacheBag[string, Item[string]])(nil)

// NewCacheBag creates a CacheBag over store.
func NewCacheBag[K comparable, V Item[K]](store SecondaryStore[K, V], opts CacheOptions) *CacheBag[K, V] {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultStoreTimeout
	}
	if opts.OnError == nil {
		opts.OnError = func(error) {}
	}
	return &CacheBag[K, V]{
		mem:     NewLevelBag[K, V](opts.Options),
		store:   store,
		timeout: opts.Timeout,
		onError: opts.OnError,
		order:   list.New(),
		parked:  make(map[K]*list.Element),
	}
}

func (c *CacheBag[K, V]) Capacity() int     { return c.mem.Capacity() }
func (c *CacheBag[K, V]) Size() int         { return c.mem.Size() }
func (c *CacheBag[K, V]) Overflowed() int   { return len(c.parked) }
func (c *CacheBag[K, V]) LevelSizes() []int { return c.mem.LevelSizes() }

// IsEmpty reports whether TakeOut would return nothing: no residents in
// memory and no parked keys.
func (c *CacheBag[K, V]) IsEmpty() bool { return c.mem.IsEmpty() && len(c.parked) == 0 }

func (c *CacheBag[K, V]) SetForgetting(f budget.Forgetting) { c.mem.SetForgetting(f) }
func (c *CacheBag[K, V]) SetMerge(p budget.MergePolicy)     { c.mem.SetMerge(p) }
func (c *CacheBag[K, V]) Relevel(key K) bool                { return c.mem.Relevel(key) }

// PutIn inserts item. A parked copy of the same key is loaded and merged
// first. Whatever leaves memory is written to the store and also returned.
func (c *CacheBag[K, V]) PutIn(item V) (V, bool) {
	key := item.Key()
	if _, resident := c.mem.index[key]; !resident && c.isParked(key) {
		c.unpark(key)
		stored, found, err := c.fetch(context.Background(), key)
		switch {
		case err != nil:
			// the parked copy is lost for this access
			c.onError(fmt.Errorf("reload %v: %w", key, err))
		case found:
			c.drop(key)
			budget.Merge(stored.Budget(), *item.Budget(), c.mem.merge)
			item = stored
		}
	}

	evicted, ok := c.mem.PutIn(item)
	if ok {
		c.spill(evicted)
	}
	return evicted, ok
}

// TakeOut serves from memory, then from the oldest parked key.
func (c *CacheBag[K, V]) TakeOut() (V, bool) {
	if v, ok := c.mem.TakeOut(); ok {
		return v, true
	}
	var zero V
	for c.order.Len() > 0 {
		key := c.order.Front().Value.(K)
		c.unpark(key)
		v, found, err := c.fetch(context.Background(), key)
		if err != nil {
			c.park(key)
			c.onError(fmt.Errorf("take %v: %w", key, err))
			return zero, false
		}
		if !found {
			continue
		}
		c.drop(key)
		return v, true
	}
	return zero, false
}

// PeekNext looks at memory only; it never touches the store.
func (c *CacheBag[K, V]) PeekNext() (V, bool) {
	return c.mem.PeekNext()
}

// Get returns the resident for key, promoting a parked item into memory.
// Store failures are reported through OnError and read as absent.
func (c *CacheBag[K, V]) Get(key K) (V, bool) {
	v, ok, err := c.Lookup(context.Background(), key)
	if err != nil {
		c.onError(err)
	}
	return v, ok
}

// Lookup is Get with the store error returned to the caller. A failed
// lookup keeps the key parked so it can be retried.
func (c *CacheBag[K, V]) Lookup(ctx context.Context, key K) (V, bool, error) {
	if v, ok := c.mem.Get(key); ok {
		return v, true, nil
	}
	var zero V
	if !c.isParked(key) {
		return zero, false, nil
	}
	v, found, err := c.fetch(ctx, key)
	if err != nil {
		return zero, false, fmt.Errorf("lookup %v: %w", key, err)
	}
	c.unpark(key)
	if !found {
		return zero, false, nil
	}
	c.drop(key)
	if evicted, ok := c.mem.PutIn(v); ok {
		c.spill(evicted)
	}
	return v, true, nil
}

// Remove deletes key from memory or from the store.
func (c *CacheBag[K, V]) Remove(key K) (V, bool) {
	if v, ok := c.mem.Remove(key); ok {
		return v, true
	}
	var zero V
	if !c.isParked(key) {
		return zero, false
	}
	v, found, err := c.fetch(context.Background(), key)
	if err != nil {
		c.onError(fmt.Errorf("remove %v: %w", key, err))
		return zero, false
	}
	c.unpark(key)
	c.drop(key)
	return v, found
}

// ForEach visits in-memory residents only.
func (c *CacheBag[K, V]) ForEach(fn func(V)) {
	c.mem.ForEach(fn)
}

// Clear empties memory and forgets every parked key.
func (c *CacheBag[K, V]) Clear() {
	c.mem.Clear()
	for key := range c.parked {
		c.drop(key)
	}
	c.order.Init()
	clear(c.parked)
}

func (c *CacheBag[K, V]) spill(item V) {
	key := item.Key()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.store.Put(ctx, key, item); err != nil {
		c.onError(fmt.Errorf("overflow %v: %w", key, err))
		return
	}
	c.park(key)
}

func (c *CacheBag[K, V]) fetch(ctx context.Context, key K) (V, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.Get(ctx, key)
}

// drop deletes key from the store when the store supports it.
func (c *CacheBag[K, V]) drop(key K) {
	d, ok := c.store.(Deleter[K])
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := d.Delete(ctx, key); err != nil {
		c.onError(fmt.Errorf("drop %v: %w", key, err))
	}
}

func (c *CacheBag[K, V]) isParked(key K) bool {
	_, ok := c.parked[key]
	return ok
}

func (c *CacheBag[K, V]) park(key K) {
	if el, ok := c.parked[key]; ok {
		c.order.MoveToBack(el)
		return
	}
	c.parked[key] = c.order.PushBack(key)
}

func (c *CacheBag[K, V]) unpark(key K) {
	if el, ok := c.parked[key]; ok {
		c.order.Remove(el)
		delete(c.parked, key)
	}
}
