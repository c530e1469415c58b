// Package api provides HTTP handlers for MentionPipe endpoints.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/MentionPipe/internal/models"
	"github.com/BTreeMap/MentionPipe/internal/oauth"
)

// loginHandler starts the authorization flow: it binds a fresh session to the
// browser via cookie and redirects to the provider's authorize endpoint.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID, authURL, err := s.coord.Begin()
	if err != nil {
		slog.Error("Server.loginHandler: failed to start authorization flow", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start authorization flow"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauth.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Debug("Server.loginHandler: redirecting to provider")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// callbackHandler completes the authorization flow. State mismatches and
// missing sessions are rejected with 400 before any token exchange; provider
// rejection of the exchange yields 500 with the credential left untouched.
func (s *Server) callbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		slog.Warn("Server.callbackHandler: missing code or state")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing code or state parameter"))
		return
	}

	var sessionID string
	if cookie, err := r.Cookie(oauth.SessionCookieName); err == nil {
		sessionID = cookie.Value
	}

	ctx, cancel := context.WithTimeout(r.Context(), DefaultCallbackTimeout)
	defer cancel()

	cred, err := s.coord.Complete(ctx, sessionID, state, code)
	switch {
	case errors.Is(err, models.ErrStateMismatch), errors.Is(err, models.ErrSessionNotFound):
		writeJSONResponse(w, http.StatusBadRequest, models.Error("State validation failed; restart the authorization flow"))
		return
	case err != nil:
		slog.Error("Server.callbackHandler: authorization failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Token exchange failed"))
		return
	}

	// The session cookie has served its purpose.
	http.SetCookie(w, &http.Cookie{Name: oauth.SessionCookieName, Value: "", Path: "/", MaxAge: -1})

	if s.postAuth != nil {
		go s.postAuth(context.Background())
	}

	slog.Info("Server.callbackHandler: authorization complete")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Authorization complete", map[string]interface{}{
		"scopes":     cred.Scopes,
		"expires_at": cred.ExpiresAt,
	}))
}

// statusHandler reports whether a credential is stored and where the mention
// cursor currently stands.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	_, authorized, err := s.creds.Get()
	if err != nil {
		slog.Error("Server.statusHandler: failed to read credential", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read state"))
		return
	}
	cursor, _, err := s.cursors.Get()
	if err != nil {
		slog.Error("Server.statusHandler: failed to read cursor", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read state"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"authorized": authorized,
		"cursor":     cursor,
	}))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}
