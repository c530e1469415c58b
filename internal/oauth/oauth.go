// Package oauth implements the Authorization-Code-with-PKCE handshake against
// the platform's OAuth2 provider.
//
// The Coordinator owns the two halves of the flow: Begin issues the provider
// redirect and binds the anti-forgery state and PKCE verifier to the caller's
// session, and Complete validates the callback and exchanges the code for a
// credential. Sessions are single use; a state mismatch is a hard failure
// that never reaches the token exchange.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/BTreeMap/MentionPipe/internal/models"
	"github.com/BTreeMap/MentionPipe/internal/pkce"
	"github.com/BTreeMap/MentionPipe/internal/store"
)

// Provider endpoints and defaults for the observed platform.
const (
	// DefaultAuthURL is the provider's authorize endpoint.
	DefaultAuthURL = "https://twitter.com/i/oauth2/authorize"
	// DefaultTokenURL is the provider's token endpoint.
	DefaultTokenURL = "https://api.twitter.com/2/oauth2/token"
	// SessionCookieName carries the authorization session ID through the
	// browser redirect.
	SessionCookieName = "mentionpipe_session"
	// sessionTTL bounds how long a started flow may stay outstanding.
	sessionTTL = 10 * time.Minute
	// DefaultExchangeTimeout bounds each token exchange or refresh call. The
	// poll loop's context carries no deadline, so a hung provider must never
	// be allowed to stall a refresh indefinitely.
	DefaultExchangeTimeout = 30 * time.Second
)

// DefaultScopes are the platform scopes the bot requests.
var DefaultScopes = []string{"tweet.read", "users.read", "tweet.write", "offline.access"}

// Opts holds Coordinator configuration.
type Opts struct {
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	Scopes          []string
	AuthURL         string
	TokenURL        string
	ExchangeTimeout time.Duration
}

// Option configures the Coordinator.
type Option func(*Opts)

// WithEndpoints overrides the provider endpoints (used in tests).
func WithEndpoints(authURL, tokenURL string) Option {
	return func(o *Opts) {
		o.AuthURL = authURL
		o.TokenURL = tokenURL
	}
}

// WithScopes overrides the requested scopes.
func WithScopes(scopes ...string) Option {
	return func(o *Opts) { o.Scopes = scopes }
}

// WithExchangeTimeout overrides the per-call bound on token exchange and
// refresh requests.
func WithExchangeTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ExchangeTimeout = d }
}

// session binds an outstanding authorization flow to one browser context.
type session struct {
	state     string
	verifier  string
	createdAt time.Time
}

// Coordinator drives the authorization handshake and persists the exchanged
// credential. It supports a single bot identity; only one flow per session
// may be outstanding.
type Coordinator struct {
	conf            *oauth2.Config
	creds           *store.CredentialStore
	exchangeTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// NewCoordinator creates a Coordinator persisting credentials to creds.
func NewCoordinator(creds *store.CredentialStore, clientID, clientSecret, redirectURI string, opts ...Option) (*Coordinator, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("oauth client credentials not set")
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("oauth redirect URI not set")
	}
	cfg := Opts{
		Scopes:          DefaultScopes,
		AuthURL:         DefaultAuthURL,
		TokenURL:        DefaultTokenURL,
		ExchangeTimeout: DefaultExchangeTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Coordinator{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		creds:           creds,
		exchangeTimeout: cfg.ExchangeTimeout,
		sessions:        make(map[string]*session),
	}, nil
}

// Begin starts an authorization flow: it generates a PKCE pair and an
// anti-forgery state, stores both under a fresh session ID, and returns the
// session ID together with the provider authorize URL to redirect to.
func (c *Coordinator) Begin() (sessionID, authURL string, err error) {
	codes, err := pkce.Generate()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate PKCE codes: %w", err)
	}
	state, err := randomToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate anti-forgery state: %w", err)
	}
	sessionID, err = randomToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate session ID: %w", err)
	}

	c.mu.Lock()
	c.pruneExpiredLocked()
	c.sessions[sessionID] = &session{state: state, verifier: codes.Verifier, createdAt: time.Now()}
	c.mu.Unlock()

	authURL = c.conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codes.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	slog.Info("Coordinator.Begin: authorization flow started")
	return sessionID, authURL, nil
}

// Complete finishes the flow for the given callback parameters. The session
// is consumed exactly once; a missing session or a state that does not
// byte-equal the stored value fails before any token exchange. On success
// the exchanged credential is persisted atomically and returned.
func (c *Coordinator) Complete(ctx context.Context, sessionID, state, code string) (models.Credential, error) {
	c.mu.Lock()
	sess, ok := c.sessions[sessionID]
	if ok && time.Since(sess.createdAt) > sessionTTL {
		delete(c.sessions, sessionID)
		ok = false
	}
	if !ok {
		c.mu.Unlock()
		slog.Warn("Coordinator.Complete: no authorization session for callback")
		return models.Credential{}, models.ErrSessionNotFound
	}
	if subtle.ConstantTimeCompare([]byte(sess.state), []byte(state)) != 1 {
		c.mu.Unlock()
		slog.Warn("Coordinator.Complete: state mismatch, rejecting callback")
		return models.Credential{}, models.ErrStateMismatch
	}
	// State matched: consume the session before the exchange so the code
	// cannot be replayed through a second callback.
	delete(c.sessions, sessionID)
	verifier := sess.verifier
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.exchangeTimeout)
	defer cancel()
	tok, err := c.conf.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		slog.Error("Coordinator.Complete: token exchange rejected", "error", err)
		return models.Credential{}, &models.TokenExchangeError{Cause: err}
	}

	cred := credentialFromToken(tok)
	if err := c.creds.Set(cred); err != nil {
		return models.Credential{}, fmt.Errorf("failed to persist credential: %w", err)
	}
	slog.Info("Coordinator.Complete: authorization complete", "expires_at", cred.ExpiresAt)
	return cred, nil
}

// Refresh exchanges the credential's refresh token for a new credential and
// persists the replacement. The stored credential is untouched on failure.
func (c *Coordinator) Refresh(ctx context.Context, cred models.Credential) (models.Credential, error) {
	if cred.RefreshToken == "" {
		return models.Credential{}, fmt.Errorf("credential has no refresh token: %w", models.ErrNoCredential)
	}
	// The caller may hold the poll loop's root context, which carries no
	// deadline; the bound here keeps a hung provider from stalling the loop.
	ctx, cancel := context.WithTimeout(ctx, c.exchangeTimeout)
	defer cancel()
	ts := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := ts.Token()
	if err != nil {
		slog.Error("Coordinator.Refresh: token refresh rejected", "error", err)
		return models.Credential{}, &models.TokenExchangeError{Cause: err}
	}
	next := credentialFromToken(tok)
	if next.RefreshToken == "" {
		// Some providers omit the refresh token on refresh; carry the old one.
		next.RefreshToken = cred.RefreshToken
	}
	if err := c.creds.Set(next); err != nil {
		return models.Credential{}, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}
	slog.Info("Coordinator.Refresh: credential refreshed", "expires_at", next.ExpiresAt)
	return next, nil
}

// pruneExpiredLocked drops sessions past their TTL. Caller holds c.mu.
func (c *Coordinator) pruneExpiredLocked() {
	now := time.Now()
	for id, sess := range c.sessions {
		if now.Sub(sess.createdAt) > sessionTTL {
			delete(c.sessions, id)
		}
	}
}

// credentialFromToken converts an exchanged oauth2 token into the persisted
// credential shape.
func credentialFromToken(tok *oauth2.Token) models.Credential {
	cred := models.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		cred.Scopes = strings.Fields(scope)
	}
	return cred
}

// randomToken returns a fresh URL-safe random token.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf), nil
}
