// Package localstore keeps JSON arrays and objects under string keys in a
// SQLite file, so they survive process restarts.
package localstore

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"schadenschat/pkg/errors"
)

type Store struct {
	db *sqlx.DB
	// mu serializes read-modify-write blocks; SQLite alone would let two
	// deferred transactions read the same snapshot.
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Persistence("Failed to open local store", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Persistence("Failed to migrate local store", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn over the records stored under key and persists the result
// in one transaction. Returning an empty slice removes the key.
func (s *Store) Update(key string, fn func(records []json.RawMessage) ([]json.RawMessage, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return errors.Persistence("Failed to begin local transaction", err)
	}
	defer tx.Rollback()

	records, err := readArray(tx, key)
	if err != nil {
		return err
	}

	next, err := fn(records)
	if err != nil {
		return err
	}

	if err := writeArray(tx, key, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Persistence("Failed to commit local transaction", err)
	}
	return nil
}

func (s *Store) List(key string) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readArray(s.db, key)
}

func (s *Store) Append(key string, record interface{}) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return errors.Persistence("Failed to encode local record", err)
	}
	return s.Update(key, func(records []json.RawMessage) ([]json.RawMessage, error) {
		return append(records, raw), nil
	})
}

// Replace overwrites the whole array under key. records must be a slice.
func (s *Store) Replace(key string, records interface{}) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return errors.Persistence("Failed to encode local records", err)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return errors.Persistence("Local records must be a list", err)
	}
	return s.Update(key, func([]json.RawMessage) ([]json.RawMessage, error) {
		return list, nil
	})
}

// Remove drops every record matching pred and reports how many went.
func (s *Store) Remove(key string, pred func(json.RawMessage) bool) (int, error) {
	removed := 0
	err := s.Update(key, func(records []json.RawMessage) ([]json.RawMessage, error) {
		kept := records[:0]
		for _, r := range records {
			if pred(r) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		return kept, nil
	})
	return removed, err
}

// Get decodes the single value stored under key into out.
func (s *Store) Get(key string, out interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := readValue(s.db, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, errors.Persistence(fmt.Sprintf("Local value %q is corrupt", key), err)
	}
	return true, nil
}

func (s *Store) Put(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Persistence("Failed to encode local value", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return upsert(s.db, key, string(raw))
}

func (s *Store) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
			return errors.Persistence("Failed to delete local key", err)
		}
	}
	return nil
}

type queryer interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...any) (sql.Result, error)
}

func readValue(q queryer, key string) (string, bool, error) {
	var value string
	err := q.Get(&value, `SELECT value FROM kv WHERE key = ?`, key)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Persistence("Failed to read local store", err)
	}
	return value, true, nil
}

func readArray(q queryer, key string) ([]json.RawMessage, error) {
	raw, ok, err := readValue(q, key)
	if err != nil || !ok {
		return nil, err
	}
	var records []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, errors.Persistence(fmt.Sprintf("Local list %q is corrupt", key), err)
	}
	return records, nil
}

func writeArray(q queryer, key string, records []json.RawMessage) error {
	if len(records) == 0 {
		if _, err := q.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
			return errors.Persistence("Failed to clear local list", err)
		}
		return nil
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return errors.Persistence("Failed to encode local list", err)
	}
	return upsert(q, key, string(raw))
}

func upsert(q queryer, key, value string) error {
	_, err := q.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return errors.Persistence("Failed to write local store", err)
	}
	return nil
}

// ListOf decodes every record under key into T.
func ListOf[T any](s *Store, key string) ([]T, error) {
	records, err := s.List(key)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](key, records)
}

// UpdateOf is Update with records decoded into T.
func UpdateOf[T any](s *Store, key string, fn func([]T) ([]T, error)) error {
	return s.Update(key, func(records []json.RawMessage) ([]json.RawMessage, error) {
		typed, err := decodeAll[T](key, records)
		if err != nil {
			return nil, err
		}
		next, err := fn(typed)
		if err != nil {
			return nil, err
		}
		out := make([]json.RawMessage, 0, len(next))
		for _, v := range next {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, errors.Persistence("Failed to encode local record", err)
			}
			out = append(out, raw)
		}
		return out, nil
	})
}

func decodeAll[T any](key string, records []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, raw := range records {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Persistence(fmt.Sprintf("Local record in %q is corrupt", key), err)
		}
		out = append(out, v)
	}
	return out, nil
}
