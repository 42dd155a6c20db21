package cache

// memory.go is a Store held in memory using ristretto, optionally in front of another store

import (
	"context"
	"sort"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
)

// ErrClosed is returned when a store is used after it was closed
var ErrClosed = errors.New("cache store closed")

// MemoryStore keeps records in a ristretto cache bounded by the total size of the (encoded)
// records.  If next is not nil the memory store is a layer in front of it: reads that miss in
// memory go to next and writes go to next first.  Since ristretto may refuse to keep an entry
// (admission policy) the memory layer alone is not a reliable store - a standalone MemoryStore
// behaves as a cache that may forget records.
type MemoryStore struct {
	records *ristretto.Cache[string, Record]
	next    Store

	mu     sync.Mutex // serialises merges (read-modify-write) and protects closed
	closed bool
}

// NewMemoryStore creates a store with records up to a total of maxCost bytes
func NewMemoryStore(maxCost int64, next Store) (*MemoryStore, error) {
	if maxCost <= 0 {
		maxCost = 1 << 20
	}
	numCounters := maxCost / 10 // assume records average 100 bytes, 10 counters per item
	if numCounters < 1000 {
		numCounters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, Record]{
		NumCounters:        numCounters,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
		Metrics:            true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating memory cache")
	}
	return &MemoryStore{records: c, next: next}, nil
}

// MemoryFactory returns a Factory for a MemoryStore in front of the store from next (may be nil)
func MemoryFactory(maxCost int64, next Factory) Factory {
	return FactoryFunc(func() (Store, error) {
		var nextStore Store
		if next != nil {
			var err error
			if nextStore, err = next.Open(); err != nil {
				return nil, err
			}
		}
		s, err := NewMemoryStore(maxCost, nextStore)
		if err != nil {
			if nextStore != nil {
				_ = nextStore.Close()
			}
			return nil, err
		}
		return s, nil
	})
}

// cost is the size of the record when encoded
func cost(r Record) int64 {
	buf, err := r.Encode()
	if err != nil {
		return 1
	}
	return int64(len(buf) + len(r.Key))
}

func (m *MemoryStore) Load(ctx context.Context, key string) (Record, bool, error) {
	if m.isClosed() {
		return Record{}, false, ErrClosed
	}
	if r, ok := m.records.Get(key); ok {
		return r.Clone(), true, nil
	}
	if m.next == nil {
		return Record{}, false, nil
	}

	// Lock so a concurrent merge can't be overwritten by the older record we load here
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok, err := m.next.Load(ctx, key)
	if err != nil || !ok {
		return Record{}, false, err
	}
	m.records.Set(key, r.Clone(), cost(r))
	return r, true, nil
}

func (m *MemoryStore) Merge(ctx context.Context, records ...Record) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	if m.next != nil {
		// The next store does the merge - just drop (now stale) records from memory
		changed, err := m.next.Merge(ctx, records...)
		for _, r := range records {
			m.records.Del(r.Key)
		}
		return changed, err
	}

	var changed []string
	for _, r := range records {
		old, _ := m.records.Get(r.Key)
		merged, ok := Merge(old, r)
		if !ok {
			continue
		}
		changed = append(changed, r.Key)
		m.records.Set(r.Key, merged, cost(merged))
	}
	m.records.Wait() // so that following reads see the new values
	sort.Strings(changed)
	return changed, nil
}

func (m *MemoryStore) Remove(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	_, inMemory := m.records.Get(key)
	m.records.Del(key)
	if m.next != nil {
		return m.next.Remove(ctx, key)
	}
	return inMemory, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records.Clear()
	if m.next != nil {
		return m.next.Clear(ctx)
	}
	return nil
}

// Close releases the memory cache and closes the next store (if any)
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.records.Close()
	if m.next != nil {
		return m.next.Close()
	}
	return nil
}

// Metrics returns the number of hits and misses of the memory layer
func (m *MemoryStore) Metrics() (hits, misses uint64) {
	return m.records.Metrics.Hits(), m.records.Metrics.Misses()
}

func (m *MemoryStore) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
