package store

import (
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/BTreeMap/MentionPipe/internal/models"
)

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := s.Set("k", "v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Set("k", "v2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok, err := s.Get("k")
	if err != nil || !ok || v != "v2" {
		t.Errorf("got %q ok=%v err=%v, want v2", v, ok, err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Error("key should be gone after delete")
	}
}

func TestSQLiteStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "state", "mentionpipe.db")
	s, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	defer s.Close()

	if err := s.Set(KeyCursor, "1846320071234567890123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok, err := s.Get(KeyCursor)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if v != "1846320071234567890123" {
		t.Errorf("large ID did not round trip exactly: %q", v)
	}

	// Upsert replaces the previous value.
	if err := s.Set(KeyCursor, "1846320071234567890124"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _, _ = s.Get(KeyCursor)
	if v != "1846320071234567890124" {
		t.Errorf("upsert did not replace value: %q", v)
	}
}

func TestPostgresStore(t *testing.T) {
	// This test requires a running PostgreSQL instance.
	// Set the DATABASE_URL environment variable for the connection string.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	s, err := NewPostgresStore(WithDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer s.Close()
	s.db.Exec("DELETE FROM bot_state")

	if err := s.Set(KeyCredential, `{"access_token":"tok"}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok, err := s.Get(KeyCredential)
	if err != nil || !ok || v != `{"access_token":"tok"}` {
		t.Errorf("got %q ok=%v err=%v", v, ok, err)
	}
}

func TestOpenBackendSelection(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Errorf("empty DSN should select the in-memory store, got %T", s)
	}

	dsn := filepath.Join(t.TempDir(), "mentionpipe.db")
	s, err = Open(dsn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("file path DSN should select the SQLite store, got %T", s)
	}
}

func TestCredentialStoreRoundTrip(t *testing.T) {
	cs := NewCredentialStore(NewInMemoryStore())
	if _, ok, err := cs.Get(); err != nil || ok {
		t.Fatalf("expected no credential, got ok=%v err=%v", ok, err)
	}
	cred := models.Credential{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "bearer",
		Scopes:       []string{"tweet.read", "tweet.write", "offline.access"},
		ExpiresAt:    time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := cs.Set(cred); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok, err := cs.Get()
	if err != nil || !ok {
		t.Fatalf("expected credential, got ok=%v err=%v", ok, err)
	}
	if got.AccessToken != cred.AccessToken || got.RefreshToken != cred.RefreshToken || !got.ExpiresAt.Equal(cred.ExpiresAt) {
		t.Errorf("credential did not round trip: %+v", got)
	}
}

func TestCursorStoreMonotonic(t *testing.T) {
	cs := NewCursorStore(NewInMemoryStore())
	if _, ok, err := cs.Get(); err != nil || ok {
		t.Fatalf("expected no cursor, got ok=%v err=%v", ok, err)
	}
	if err := cs.Set("1002"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Backward and equal writes are ignored.
	if err := cs.Set("1001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cs.Set("1002"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok, err := cs.Get()
	if err != nil || !ok || v != "1002" {
		t.Errorf("cursor moved backward: got %q ok=%v err=%v", v, ok, err)
	}
	if err := cs.Set("1010"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _, _ = cs.Get()
	if v != "1010" {
		t.Errorf("cursor failed to advance: %q", v)
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
