// Package api provides the HTTP front-end for MentionPipe.
//
// It exposes the endpoints that drive the authorization handshake (the login
// redirect and the OAuth callback) plus small status and health probes. The
// front-end and the poll loop run as independent execution contexts sharing
// only the persistent stores.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/MentionPipe/internal/oauth"
	"github.com/BTreeMap/MentionPipe/internal/store"
)

// Default server configuration
const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultCallbackTimeout bounds the token exchange during a callback.
	DefaultCallbackTimeout = 30 * time.Second
)

// Opts holds server configuration.
type Opts struct {
	Addr string
	// PostAuthHook runs once after a successful authorization, e.g. to post
	// a confirmation tweet.
	PostAuthHook func(ctx context.Context)
}

// Option configures the Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPostAuthHook registers a hook invoked after a successful authorization.
func WithPostAuthHook(hook func(ctx context.Context)) Option {
	return func(o *Opts) { o.PostAuthHook = hook }
}

// Server is the MentionPipe HTTP front-end.
type Server struct {
	coord    *oauth.Coordinator
	creds    *store.CredentialStore
	cursors  *store.CursorStore
	postAuth func(ctx context.Context)
	srv      *http.Server
}

// NewServer creates the front-end around the authorization coordinator and
// the shared stores.
func NewServer(coord *oauth.Coordinator, creds *store.CredentialStore, cursors *store.CursorStore, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		coord:    coord,
		creds:    creds,
		cursors:  cursors,
		postAuth: cfg.PostAuthHook,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.loginHandler)
	mux.HandleFunc("/oauth/callback", s.callbackHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	s.srv = &http.Server{Addr: cfg.Addr, Handler: mux}
	return s
}

// Handler exposes the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: shutdown failed", "error", err)
			return err
		}
		slog.Info("Server.Run: shut down cleanly")
		return <-errCh
	}
}
