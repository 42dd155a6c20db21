package cache

// store.go defines the storage interface for records and lazy opening of stores

import (
	"context"
	"sync"
	"sync/atomic"
)

type (
	// Store holds records by key.  Implementations must be safe for concurrent use.
	Store interface {
		// Load returns the record with the key, or false if there is none
		Load(ctx context.Context, key string) (Record, bool, error)

		// Merge adds the fields of each record to the stored record with the same key (creating
		// it if necessary) and returns the keys of the records that were changed.
		Merge(ctx context.Context, records ...Record) ([]string, error)

		// Remove deletes a record, returning false if it did not exist
		Remove(ctx context.Context, key string) (bool, error)

		// Clear removes all records
		Clear(ctx context.Context) error

		Close() error
	}

	// Factory opens a Store (eg creating the database file or table if necessary)
	Factory interface {
		Open() (Store, error)
	}

	// FactoryFunc allows a func to be used as a Factory
	FactoryFunc func() (Store, error)
)

// Open implements Factory
func (f FactoryFunc) Open() (Store, error) { return f() }

// LazyStore is a Store that is only opened (using a Factory) when first used.  If opening fails
// the error is returned by that and every later call.
type LazyStore struct {
	factory Factory
	once    sync.Once
	store   Store
	err     error
	opened  atomic.Bool // store is set (and usable)
}

// NewLazyStore returns a store that opens itself with factory on first use
func NewLazyStore(factory Factory) *LazyStore {
	return &LazyStore{factory: factory}
}

func (l *LazyStore) open() (Store, error) {
	l.once.Do(func() {
		l.store, l.err = l.factory.Open()
		l.opened.Store(l.err == nil)
	})
	return l.store, l.err
}

// Metrics returns the hits and misses of the memory layer of the store.  Both are zero if the
// store has not been opened or has no memory layer.
func (l *LazyStore) Metrics() (hits, misses uint64) {
	if !l.opened.Load() {
		return 0, 0
	}
	if m, ok := l.store.(interface{ Metrics() (uint64, uint64) }); ok {
		return m.Metrics()
	}
	return 0, 0
}

func (l *LazyStore) Load(ctx context.Context, key string) (Record, bool, error) {
	s, err := l.open()
	if err != nil {
		return Record{}, false, err
	}
	return s.Load(ctx, key)
}

func (l *LazyStore) Merge(ctx context.Context, records ...Record) ([]string, error) {
	s, err := l.open()
	if err != nil {
		return nil, err
	}
	return s.Merge(ctx, records...)
}

func (l *LazyStore) Remove(ctx context.Context, key string) (bool, error) {
	s, err := l.open()
	if err != nil {
		return false, err
	}
	return s.Remove(ctx, key)
}

func (l *LazyStore) Clear(ctx context.Context) error {
	s, err := l.open()
	if err != nil {
		return err
	}
	return s.Clear(ctx)
}

// Close closes the underlying store, if it was opened.  The store can't be used afterwards.
func (l *LazyStore) Close() error {
	opened := true
	l.once.Do(func() {
		opened = false
		l.err = ErrClosed
	})
	if !opened || l.store == nil {
		return nil
	}
	return l.store.Close()
}

// RemoveCascade removes the record and (recursively) all records it refers to, returning the
// number removed.  Records that are also referred to from elsewhere are removed too.
func RemoveCascade(ctx context.Context, s Store, key string) (int, error) {
	seen := make(map[string]struct{})
	return removeCascade(ctx, s, key, seen)
}

func removeCascade(ctx context.Context, s Store, key string, seen map[string]struct{}) (int, error) {
	if _, ok := seen[key]; ok {
		return 0, nil
	}
	seen[key] = struct{}{}
	rec, ok, err := s.Load(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	count := 0
	for _, ref := range references(rec.Fields) {
		n, err := removeCascade(ctx, s, string(ref), seen)
		if err != nil {
			return count, err
		}
		count += n
	}
	if removed, err := s.Remove(ctx, key); err != nil {
		return count, err
	} else if removed {
		count++
	}
	return count, nil
}

// references returns all the references in v (a field value or map of them)
func references(v interface{}) []Reference {
	var refs []Reference
	switch val := v.(type) {
	case Reference:
		refs = append(refs, val)
	case []interface{}:
		for _, e := range val {
			refs = append(refs, references(e)...)
		}
	case map[string]interface{}:
		for _, e := range val {
			refs = append(refs, references(e)...)
		}
	}
	return refs
}
