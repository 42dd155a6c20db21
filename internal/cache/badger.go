package cache

// badger.go is a Store using a Badger key-value database

import (
	"context"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// recordPrefix is prepended to keys so the database could be shared with other data
var recordPrefix = []byte("record/")

// BadgerStore keeps records in a Badger database
type BadgerStore struct {
	db *badger.DB
	mu sync.Mutex // serialises merges to avoid transaction conflicts
}

// badgerLogger adapts a zap logger to the Badger logger interface
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

// OpenBadgerStore opens (or creates) the database in dir.  If dir is empty the database is only
// held in memory.
func OpenBadgerStore(dir string, log *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.WithLogger(badgerLogger{log.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger cache %q", dir)
	}
	return &BadgerStore{db: db}, nil
}

// BadgerFactory returns a Factory that opens a BadgerStore
func BadgerFactory(dir string, log *zap.Logger) Factory {
	return FactoryFunc(func() (Store, error) {
		return OpenBadgerStore(dir, log)
	})
}

func badgerKey(key string) []byte {
	return append(append([]byte{}, recordPrefix...), key...)
}

func loadBadger(txn *badger.Txn, key string) (Record, bool, error) {
	item, err := txn.Get(badgerKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Wrapf(err, "loading record %q", key)
	}
	var r Record
	err = item.Value(func(val []byte) error {
		r, err = Decode(key, val)
		return err
	})
	if err != nil {
		return Record{}, false, errors.WithStack(err)
	}
	return r, true, nil
}

func (s *BadgerStore) Load(_ context.Context, key string) (r Record, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		r, ok, err = loadBadger(txn, key)
		return err
	})
	return
}

func (s *BadgerStore) Merge(_ context.Context, records ...Record) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	err := s.db.Update(func(txn *badger.Txn) error {
		changed = changed[:0]
		for _, r := range records {
			old, _, err := loadBadger(txn, r.Key)
			if err != nil {
				return err
			}
			merged, ok := Merge(old, r)
			if !ok {
				continue
			}
			buf, err := merged.Encode()
			if err != nil {
				return errors.Wrapf(err, "encoding record %q", r.Key)
			}
			if err := txn.Set(badgerKey(r.Key), buf); err != nil {
				return errors.Wrapf(err, "storing record %q", r.Key)
			}
			changed = append(changed, r.Key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(changed)
	return changed, nil
}

func (s *BadgerStore) Remove(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return txn.Delete(badgerKey(key))
	})
	return found, errors.Wrapf(err, "removing record %q", key)
}

func (s *BadgerStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Wrap(s.db.DropPrefix(recordPrefix), "clearing cache")
}

func (s *BadgerStore) Close() error {
	return errors.Wrap(s.db.Close(), "closing badger cache")
}
