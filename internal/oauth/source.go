package oauth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/MentionPipe/internal/models"
	"github.com/BTreeMap/MentionPipe/internal/store"
)

// StoreSource supplies platform bearer tokens from the Credential Store,
// refreshing the credential through the Coordinator when it has expired.
// When no credential has been exchanged yet it falls back to an optional
// static bearer token, so read-only polling can run before the first
// authorization completes.
//
// This is the single injectable credential dependency of the poll loop: the
// PKCE-derived credential and the polling credential converge here.
type StoreSource struct {
	creds    *store.CredentialStore
	coord    *Coordinator
	fallback string

	mu sync.Mutex
}

// NewStoreSource creates a StoreSource. coord may be nil, in which case
// expired credentials are used as-is (the platform rejection then surfaces
// as a transient failure). fallback may be empty.
func NewStoreSource(creds *store.CredentialStore, coord *Coordinator, fallback string) *StoreSource {
	return &StoreSource{creds: creds, coord: coord, fallback: fallback}
}

// Token returns the current access token. Safe for concurrent use; refresh
// is serialized so only one refresh is in flight at a time.
func (s *StoreSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok, err := s.creds.Get()
	if err != nil {
		return "", err
	}
	if !ok {
		if s.fallback != "" {
			return s.fallback, nil
		}
		return "", models.ErrNoCredential
	}

	if cred.Expired() && s.coord != nil && cred.RefreshToken != "" {
		refreshed, err := s.coord.Refresh(ctx, cred)
		if err != nil {
			slog.Warn("StoreSource.Token: refresh failed, using stored token", "error", err)
			return cred.AccessToken, nil
		}
		cred = refreshed
	}
	return cred.AccessToken, nil
}
