package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Store is a typed, namespaced table held in memory and written through to
// the records table on every mutation. Values are stored as JSON.
type Store[V any] struct {
	db *DB
	ns string

	mu    sync.RWMutex
	items map[string]V
}

// NewStore opens the namespace and loads its current contents.
func NewStore[V any](ctx context.Context, db *DB, ns string) (*Store[V], error) {
	s := &Store[V]{db: db, ns: ns, items: make(map[string]V)}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Namespace returns the table namespace.
func (s *Store[V]) Namespace() string { return s.ns }

// Load replaces the in-memory contents with what is on disk.
func (s *Store[V]) Load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM records WHERE namespace = ?", s.ns)
	if err != nil {
		return fmt.Errorf("load %s: %w", s.ns, err)
	}
	defer rows.Close()

	items := make(map[string]V)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return fmt.Errorf("load %s: %w", s.ns, err)
		}
		var v V
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return fmt.Errorf("load %s/%s: %w", s.ns, key, err)
		}
		items[key] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load %s: %w", s.ns, err)
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return nil
}

// Save rewrites the whole namespace from memory in one transaction.
func (s *Store[V]) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE namespace = ?", s.ns); err != nil {
			return err
		}
		for k, v := range s.items {
			if err := s.put(ctx, tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the value for key.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Has reports whether key exists.
func (s *Store[V]) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Set stores v under key and persists it. Memory is only updated when the
// write succeeds.
func (s *Store[V]) Set(ctx context.Context, key string, v V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.put(ctx, s.db, key, v); err != nil {
		return err
	}
	s.items[key] = v
	return nil
}

// Delete removes key. It returns ErrNotFound for unknown keys.
func (s *Store[V]) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		return ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE namespace = ? AND key = ?", s.ns, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", s.ns, key, err)
	}
	delete(s.items, key)
	return nil
}

// Update runs fn on the current value under the write lock. fn returns the
// new value and whether to keep it; keep=false deletes the key.
func (s *Store[V]) Update(ctx context.Context, key string, fn func(cur V, exists bool) (V, bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.items[key]
	next, keep, err := fn(cur, exists)
	if err != nil {
		return err
	}
	if !keep {
		if !exists {
			return nil
		}
		if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE namespace = ? AND key = ?", s.ns, key); err != nil {
			return fmt.Errorf("delete %s/%s: %w", s.ns, key, err)
		}
		delete(s.items, key)
		return nil
	}
	if err := s.put(ctx, s.db, key, next); err != nil {
		return err
	}
	s.items[key] = next
	return nil
}

// Keys returns the keys in sorted order.
func (s *Store[V]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Items returns a shallow copy of the table.
func (s *Store[V]) Items() map[string]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]V, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

// Len returns the number of entries.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store[V]) put(ctx context.Context, e execer, key string, v V) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", s.ns, key, err)
	}
	_, err = e.ExecContext(ctx,
		"INSERT OR REPLACE INTO records (namespace, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
		s.ns, key, string(data),
	)
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", s.ns, key, err)
	}
	return nil
}
