// Package store provides storage backends for MentionPipe.
//
// The core abstraction is a small key-value Store holding the bot's
// persistent state: the exchanged OAuth credential and the mention cursor.
// Backends exist for memory (tests), SQLite, and PostgreSQL, so the same
// core logic runs unchanged against a file or a networked database.
package store

import "sync"

// Well-known state keys.
const (
	// KeyCredential holds the JSON-encoded OAuth credential.
	KeyCredential = "oauth_credential"
	// KeyCursor holds the ID of the last mention successfully processed.
	KeyCursor = "mention_cursor"
)

// Store is a minimal key-value persistence abstraction. Values are opaque
// strings; writers replace the whole value atomically and readers always see
// either the old or the new value, never a partial one.
type Store interface {
	// Get returns the value for key. The second return is false when the key
	// has never been set.
	Get(key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Close releases any resources held by the store.
	Close() error
}

// Opts holds configuration for persistent store backends.
type Opts struct {
	// DSN is the backend connection string: a file path for SQLite or a
	// postgres:// URL for PostgreSQL.
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the backend connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// InMemoryStore is a simple in-memory store used in tests and as a fallback
// when no DSN is configured. State does not survive process restart.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: make(map[string]string)}
}

func (s *InMemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *InMemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *InMemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
