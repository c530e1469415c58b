package store

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/MentionPipe/internal/models"
)

// CredentialStore exposes typed access to the persisted OAuth credential.
// The credential is written as a single JSON value so readers never observe
// a partial update.
type CredentialStore struct {
	store Store
}

// NewCredentialStore wraps a Store for credential access.
func NewCredentialStore(s Store) *CredentialStore {
	return &CredentialStore{store: s}
}

// Get returns the stored credential. The second return is false when no
// credential has been persisted yet.
func (c *CredentialStore) Get() (models.Credential, bool, error) {
	raw, ok, err := c.store.Get(KeyCredential)
	if err != nil {
		return models.Credential{}, false, fmt.Errorf("failed to read credential: %w", err)
	}
	if !ok {
		return models.Credential{}, false, nil
	}
	var cred models.Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		slog.Error("CredentialStore.Get: stored credential is malformed", "error", err)
		return models.Credential{}, false, fmt.Errorf("failed to decode credential: %w", err)
	}
	return cred, true, nil
}

// Set replaces the stored credential atomically.
func (c *CredentialStore) Set(cred models.Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := c.store.Set(KeyCredential, string(raw)); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	slog.Info("CredentialStore.Set: credential persisted", "expires_at", cred.ExpiresAt)
	return nil
}

// CursorStore exposes typed access to the persisted mention cursor. The
// cursor is stored as the raw decimal ID string so large IDs round-trip
// exactly and are never coerced through floating point.
type CursorStore struct {
	store Store
}

// NewCursorStore wraps a Store for cursor access.
func NewCursorStore(s Store) *CursorStore {
	return &CursorStore{store: s}
}

// Get returns the last processed mention ID. The second return is false when
// no cursor exists yet, meaning processing starts from the newest mentions.
func (c *CursorStore) Get() (string, bool, error) {
	id, ok, err := c.store.Get(KeyCursor)
	if err != nil {
		return "", false, fmt.Errorf("failed to read cursor: %w", err)
	}
	return id, ok, nil
}

// Set advances the cursor to id. The cursor never moves backward: a write
// with an ID at or below the stored one is ignored.
func (c *CursorStore) Set(id string) error {
	current, ok, err := c.store.Get(KeyCursor)
	if err != nil {
		return fmt.Errorf("failed to read cursor before advance: %w", err)
	}
	if ok && models.CompareIDs(id, current) <= 0 {
		slog.Warn("CursorStore.Set: refusing to move cursor backward", "current", current, "candidate", id)
		return nil
	}
	if err := c.store.Set(KeyCursor, id); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}
	slog.Debug("CursorStore.Set: cursor advanced", "cursor", id)
	return nil
}
