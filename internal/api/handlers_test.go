package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BTreeMap/MentionPipe/internal/oauth"
	"github.com/BTreeMap/MentionPipe/internal/store"
)

// newAuthServer wires a Server against an in-memory store and a mock provider
// token endpoint.
func newAuthServer(t *testing.T, opts ...Option) (*Server, *store.CredentialStore) {
	t.Helper()
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access","refresh_token":"refresh","token_type":"bearer","expires_in":7200}`))
	}))
	t.Cleanup(tokenSrv.Close)

	kv := store.NewInMemoryStore()
	creds := store.NewCredentialStore(kv)
	cursors := store.NewCursorStore(kv)
	coord, err := oauth.NewCoordinator(creds, "client-id", "client-secret", "http://localhost:8080/oauth/callback",
		oauth.WithEndpoints("https://provider.example/authorize", tokenSrv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewServer(coord, creds, cursors, opts...), creds
}

// beginLogin performs the login redirect and returns the session cookie and
// the state embedded in the provider redirect.
func beginLogin(t *testing.T, s *Server) (*http.Cookie, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("login status = %d, want 302", rec.Code)
	}
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == oauth.SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("login response did not set a session cookie")
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("failed to parse redirect location: %v", err)
	}
	if loc.Query().Get("code_challenge_method") != "S256" {
		t.Errorf("redirect missing S256 challenge: %s", loc)
	}
	return cookie, loc.Query().Get("state")
}

func TestCallbackSuccess(t *testing.T) {
	var hookCalls atomic.Int64
	s, creds := newAuthServer(t, WithPostAuthHook(func(ctx context.Context) { hookCalls.Add(1) }))
	cookie, state := beginLogin(t, s)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("callback status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	cred, ok, err := creds.Get()
	if err != nil || !ok {
		t.Fatalf("credential not stored: ok=%v err=%v", ok, err)
	}
	if cred.AccessToken != "access" {
		t.Errorf("unexpected credential: %+v", cred)
	}

	// The hook runs asynchronously after a successful exchange.
	deadline := time.Now().Add(time.Second)
	for hookCalls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hookCalls.Load() != 1 {
		t.Errorf("post-auth hook calls = %d, want 1", hookCalls.Load())
	}
}

func TestCallbackStateMismatchIs400(t *testing.T) {
	s, creds := newAuthServer(t)
	cookie, _ := beginLogin(t, s)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good-code&state=forged", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("callback status = %d, want 400", rec.Code)
	}
	if _, ok, _ := creds.Get(); ok {
		t.Error("no credential may be stored after a rejected callback")
	}
}

func TestCallbackWithoutSessionIs400(t *testing.T) {
	s, _ := newAuthServer(t)
	_, state := beginLogin(t, s)

	// No cookie: the callback arrives from a different browser context.
	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good-code&state="+url.QueryEscape(state), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("callback status = %d, want 400", rec.Code)
	}
}

func TestCallbackExchangeFailureIs500(t *testing.T) {
	s, creds := newAuthServer(t)
	cookie, state := beginLogin(t, s)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=bad-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("callback status = %d, want 500", rec.Code)
	}
	if _, ok, _ := creds.Get(); ok {
		t.Error("no credential may be stored after a failed exchange")
	}
}

func TestCallbackMissingParamsIs400(t *testing.T) {
	s, _ := newAuthServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("callback status = %d, want 400", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, creds := newAuthServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
		Result struct {
			Authorized bool   `json:"authorized"`
			Cursor     string `json:"cursor"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode status body: %v", err)
	}
	if resp.Result.Authorized {
		t.Error("should not report authorized before any exchange")
	}

	// After a stored credential the flag flips.
	cookie, state := beginLogin(t, s)
	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(cookie)
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)
	if _, ok, _ := creds.Get(); !ok {
		t.Fatal("expected credential after callback")
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode status body: %v", err)
	}
	if !resp.Result.Authorized {
		t.Error("should report authorized after the exchange")
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newAuthServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}
