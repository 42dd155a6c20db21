package cache

// sql.go is a Store using a SQL database - SQLite (a file on the local machine) or MySQL

import (
	"context"
	"database/sql"
	"path/filepath"
	"sort"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" driver
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// dialect holds the statements that differ between the supported databases
type dialect struct {
	create string
	load   string // load for update within a transaction
	upsert string
}

var dialects = map[string]dialect{
	"sqlite": {
		create: `CREATE TABLE IF NOT EXISTS records (cache_key TEXT NOT NULL PRIMARY KEY, record TEXT NOT NULL)`,
		load:   `SELECT record FROM records WHERE cache_key = ?`,
		upsert: `INSERT INTO records (cache_key, record) VALUES (?, ?)
			ON CONFLICT(cache_key) DO UPDATE SET record = excluded.record`,
	},
	"mysql": {
		create: `CREATE TABLE IF NOT EXISTS records (cache_key VARCHAR(512) NOT NULL PRIMARY KEY, record LONGTEXT NOT NULL)`,
		load:   `SELECT record FROM records WHERE cache_key = ? FOR UPDATE`,
		upsert: `INSERT INTO records (cache_key, record) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE record = VALUES(record)`,
	},
}

// SQLStore keeps records in the table "records" of a database
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLStore opens the database and creates the records table if necessary.  The driver is
// "sqlite" (dataSource is the file name) or "mysql" (dataSource is the DSN).
func OpenSQLStore(ctx context.Context, driver, dataSource string) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, errors.Errorf("unsupported cache database driver %q", driver)
	}
	db, err := sql.Open(driver, dataSource)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s cache database", driver)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite allows only one writer
	}
	if _, err := db.ExecContext(ctx, d.create); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "creating %s cache table", driver)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// SQLiteFile returns the name of the SQLite database file for a named cache in dir
func SQLiteFile(dir, name string) string {
	return filepath.Join(dir, name+".db")
}

// SQLFactory returns a Factory that opens an SQLStore
func SQLFactory(driver, dataSource string) Factory {
	return FactoryFunc(func() (Store, error) {
		return OpenSQLStore(context.Background(), driver, dataSource)
	})
}

func (s *SQLStore) Load(ctx context.Context, key string) (Record, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM records WHERE cache_key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Wrapf(err, "loading record %q", key)
	}
	r, err := Decode(key, []byte(data))
	if err != nil {
		return Record{}, false, errors.WithStack(err)
	}
	return r, true, nil
}

// Merge merges all the records in one transaction
func (s *SQLStore) Merge(ctx context.Context, records ...Record) (changed []string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "starting cache transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, r := range records {
		var old Record
		var data string
		switch err = tx.QueryRowContext(ctx, s.dialect.load, r.Key).Scan(&data); {
		case errors.Is(err, sql.ErrNoRows):
			err = nil
		case err != nil:
			return nil, errors.Wrapf(err, "loading record %q", r.Key)
		default:
			if old, err = Decode(r.Key, []byte(data)); err != nil {
				return nil, errors.WithStack(err)
			}
		}

		merged, ok := Merge(old, r)
		if !ok {
			continue
		}
		buf, err := merged.Encode()
		if err != nil {
			return nil, errors.Wrapf(err, "encoding record %q", r.Key)
		}
		if _, err = tx.ExecContext(ctx, s.dialect.upsert, r.Key, string(buf)); err != nil {
			return nil, errors.Wrapf(err, "storing record %q", r.Key)
		}
		changed = append(changed, r.Key)
	}
	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing cache transaction")
	}
	sort.Strings(changed)
	return changed, nil
}

func (s *SQLStore) Remove(ctx context.Context, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE cache_key = ?`, key)
	if err != nil {
		return false, errors.Wrapf(err, "removing record %q", key)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "removing record %q", key)
	}
	return n > 0, nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records`)
	return errors.Wrap(err, "clearing cache")
}

func (s *SQLStore) Close() error {
	return errors.Wrap(s.db.Close(), "closing cache database")
}
