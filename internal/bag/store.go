package bag

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// SecondaryStore receives items that overflow a CacheBag. Calls may be slow
// or fail; a missing key is (zero, false, nil), never an error.
type SecondaryStore[K comparable, V Item[K]] interface {
	Get(ctx context.Context, key K) (V, bool, error)
	Put(ctx context.Context, key K, item V) error
}

// Deleter is implemented by stores that can drop a key once it has been
// taken back out.
type Deleter[K comparable] interface {
	Delete(ctx context.Context, key K) error
}

// KV is a byte-level key/value backend. Get returns nil, nil for a missing
// key. The store package provides SQLite, Redis and etcd implementations.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Codec converts items to and from the bytes a KV stores.
type Codec[K comparable, V Item[K]] interface {
	EncodeKey(key K) string
	Encode(item V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// KVStore adapts a KV and a Codec into a SecondaryStore.
type KVStore[K comparable, V Item[K]] struct {
	KV    KV
	Codec Codec[K, V]
}

var _ Deleter[string] = (*KVStore[string, Item[string]])(nil)

// Get loads and decodes the item stored under key.
func (s *KVStore[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	data, err := s.KV.Get(ctx, s.Codec.EncodeKey(key))
	if err != nil {
		return zero, false, fmt.Errorf("get %v: %w", key, err)
	}
	if data == nil {
		return zero, false, nil
	}
	item, err := s.Codec.Decode(data)
	if err != nil {
		return zero, false, fmt.Errorf("decode %v: %w", key, err)
	}
	return item, true, nil
}

// Put encodes and stores item under key.
func (s *KVStore[K, V]) Put(ctx context.Context, key K, item V) error {
	data, err := s.Codec.Encode(item)
	if err != nil {
		return fmt.Errorf("encode %v: %w", key, err)
	}
	if err := s.KV.Put(ctx, s.Codec.EncodeKey(key), data); err != nil {
		return fmt.Errorf("put %v: %w", key, err)
	}
	return nil
}

// Delete removes key from the backend.
func (s *KVStore[K, V]) Delete(ctx context.Context, key K) error {
	if err := s.KV.Delete(ctx, s.Codec.EncodeKey(key)); err != nil {
		return fmt.Errorf("delete %v: %w", key, err)
	}
	return nil
}

// ErrUnavailable is returned by MemoryStore while it is marked down.
var ErrUnavailable = errors.New("secondary store unavailable")

// MemoryStore is an in-process SecondaryStore. It keeps item values as-is,
// so callers must not mutate an item after handing it over.
type MemoryStore[K comparable, V Item[K]] struct {
	mu    sync.Mutex
	items map[K]V
	down  bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore[K comparable, V Item[K]]() *MemoryStore[K, V] {
	return &MemoryStore[K, V]{items: make(map[K]V)}
}

// SetAvailable toggles simulated outages.
func (s *MemoryStore[K, V]) SetAvailable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = !ok
}

func (s *MemoryStore[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero V
	if s.down {
		return zero, false, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *MemoryStore[K, V]) Put(ctx context.Context, key K, item V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.items[key] = item
	return nil
}

func (s *MemoryStore[K, V]) Delete(ctx context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return ErrUnavailable
	}
	delete(s.items, key)
	return nil
}

// Len returns the number of stored items.
func (s *MemoryStore[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
