package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/MentionPipe/internal/models"
)

func TestMentionsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/users/42/mentions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("since_id"); got != "1000" {
			t.Errorf("since_id = %q, want 1000", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"id": "1002", "author_id": "7", "text": "newer"},
				{"id": "1001", "author_id": "8", "text": "older"}
			],
			"includes": {"users": [
				{"id": "7", "username": "alice"},
				{"id": "8", "username": "bob"}
			]}
		}`))
	}))
	defer srv.Close()

	c := NewClient(StaticToken("test-token"), WithBaseURL(srv.URL))
	mentions, err := c.Mentions(context.Background(), "42", "1000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mentions) != 2 {
		t.Fatalf("got %d mentions, want 2", len(mentions))
	}
	// Wire order (newest first) is preserved; the poller normalizes.
	if mentions[0].ID != "1002" || mentions[0].AuthorHandle != "alice" {
		t.Errorf("unexpected first mention: %+v", mentions[0])
	}
	if mentions[1].ID != "1001" || mentions[1].AuthorHandle != "bob" {
		t.Errorf("unexpected second mention: %+v", mentions[1])
	}
}

func TestMentionsNon200IsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(StaticToken("tok"), WithBaseURL(srv.URL))
	_, err := c.Mentions(context.Background(), "42", "")
	var tfe *models.TransientFetchError
	if !errors.As(err, &tfe) {
		t.Fatalf("expected TransientFetchError, got %v", err)
	}
	if tfe.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", tfe.StatusCode)
	}
}

func TestMentionsNetworkFaultIsTransient(t *testing.T) {
	c := NewClient(StaticToken("tok"), WithBaseURL("http://127.0.0.1:1"))
	_, err := c.Mentions(context.Background(), "42", "")
	var tfe *models.TransientFetchError
	if !errors.As(err, &tfe) {
		t.Fatalf("expected TransientFetchError, got %v", err)
	}
}

func TestPostReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/2/tweets" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		if payload["text"] != "@alice hi" || payload["in_reply_to_tweet_id"] != "1001" {
			t.Errorf("unexpected payload: %v", payload)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data": {"id": "2001"}}`))
	}))
	defer srv.Close()

	c := NewClient(StaticToken("tok"), WithBaseURL(srv.URL))
	id, err := c.PostReply(context.Background(), "@alice hi", "1001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "2001" {
		t.Errorf("posted ID = %q, want 2001", id)
	}
}

func TestPostReplyRejectionIsDispatchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(StaticToken("tok"), WithBaseURL(srv.URL))
	_, err := c.PostReply(context.Background(), "hi", "1001")
	var de *models.DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("expected DispatchError, got %v", err)
	}
	if de.MentionID != "1001" || de.StatusCode != http.StatusForbidden {
		t.Errorf("unexpected dispatch error: %+v", de)
	}
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/users/me" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"data": {"id": "42", "username": "mentionpipe"}}`))
	}))
	defer srv.Close()

	c := NewClient(StaticToken("tok"), WithBaseURL(srv.URL))
	id, handle, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "42" || handle != "mentionpipe" {
		t.Errorf("got id=%q handle=%q", id, handle)
	}
}

func TestStaticTokenEmpty(t *testing.T) {
	_, err := StaticToken("").Token(context.Background())
	if !errors.Is(err, models.ErrNoCredential) {
		t.Errorf("expected ErrNoCredential, got %v", err)
	}
}
