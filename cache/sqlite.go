package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteCache keeps the stores in a SQLite database.
type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

var _ Provider = (*SQLiteCache)(nil)

// NewSQLiteCache opens (or creates) a cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) (*SQLiteCache, error) {
	inMemory := filename == "" || strings.Contains(filename, ":memory:") || strings.Contains(filename, "mode=memory")
	if filename == "" {
		filename = ":memory:"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("could not open sqlite db %s: %w", filename, err)
	}
	// every connection to an in-memory db is a separate db
	if inMemory {
		db.SetMaxOpenConns(1)
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stores (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			store TEXT NOT NULL,
			key TEXT NOT NULL,
			bytes BLOB,
			PRIMARY KEY (store, key)
		)`,
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("could not initialize sqlite db: %w", err)
		}
	}
	return &SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s *SQLiteCache) Open(name string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR IGNORE INTO stores (name) VALUES (?)", name)
	return err
}

func (s *SQLiteCache) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM stores ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteCache) Has(name string) (bool, error) {
	return storeExists(s.db, name)
}

func (s *SQLiteCache) Delete(name string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	result, err := tx.Exec("DELETE FROM stores WHERE name = ?", name)
	if err != nil {
		return false, err
	}
	if _, err := tx.Exec("DELETE FROM entries WHERE store = ?", name); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	deleted, err := result.RowsAffected()
	return deleted > 0, err
}

func (s *SQLiteCache) Get(store, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow("SELECT bytes FROM entries WHERE store = ? AND key = ?", store, key).Scan(&bytes)
	if errors.Is(err, sql.ErrNoRows) {
		if ok, err := storeExists(s.db, store); err != nil {
			return nil, false, err
		} else if !ok {
			return nil, false, ErrStoreNotFound
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s *SQLiteCache) Put(store, key string, bytes []byte) error {
	return s.PutAll(store, []Entry{{Key: key, Bytes: bytes}})
}

func (s *SQLiteCache) PutAll(store string, entries []Entry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if ok, err := storeExists(tx, store); err != nil {
		return err
	} else if !ok {
		return ErrStoreNotFound
	}
	for _, e := range entries {
		_, err := tx.Exec("INSERT OR REPLACE INTO entries (store, key, bytes) VALUES (?, ?, ?)", store, e.Key, e.Bytes)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteCache) Remove(store, key string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if ok, err := storeExists(s.db, store); err != nil {
		return false, err
	} else if !ok {
		return false, ErrStoreNotFound
	}
	result, err := s.db.Exec("DELETE FROM entries WHERE store = ? AND key = ?", store, key)
	if err != nil {
		return false, err
	}
	deleted, err := result.RowsAffected()
	return deleted > 0, err
}

func (s *SQLiteCache) Keys(store string) ([]string, error) {
	if ok, err := storeExists(s.db, store); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrStoreNotFound
	}
	rows, err := s.db.Query("SELECT key FROM entries WHERE store = ? ORDER BY key ASC", store)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLiteCache) Close() error {
	return s.db.Close()
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func storeExists(q queryRower, name string) (bool, error) {
	var one int
	err := q.QueryRow("SELECT 1 FROM stores WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
