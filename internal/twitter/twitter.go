// Package twitter implements the platform REST client used by MentionPipe.
//
// It covers the three calls the bot needs: fetching mentions newer than a
// cursor, posting a reply threaded to a mention, and resolving the bot's own
// user identity. All calls carry a bounded timeout and authenticate with a
// bearer token obtained from a pluggable CredentialSource.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/BTreeMap/MentionPipe/internal/models"
)

// Default client configuration
const (
	// DefaultBaseURL is the platform API root.
	DefaultBaseURL = "https://api.twitter.com"
	// DefaultTimeout bounds every platform call.
	DefaultTimeout = 15 * time.Second
	// DefaultPageSize is the number of mentions requested per poll.
	DefaultPageSize = 25
)

// CredentialSource supplies the bearer token for platform calls. The poll
// loop and the HTTP front-end may share one source; implementations must be
// safe for concurrent use.
type CredentialSource interface {
	// Token returns the current access token.
	Token(ctx context.Context) (string, error)
}

// StaticToken is a CredentialSource backed by a fixed bearer token.
type StaticToken string

// Token returns the fixed token.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", models.ErrNoCredential
	}
	return string(s), nil
}

// Opts holds configuration for the platform client.
type Opts struct {
	BaseURL  string
	Timeout  time.Duration
	PageSize int
}

// Option configures the platform client.
type Option func(*Opts)

// WithBaseURL overrides the platform API root (used in tests).
func WithBaseURL(base string) Option {
	return func(o *Opts) { o.BaseURL = base }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithPageSize overrides the mentions page size.
func WithPageSize(n int) Option {
	return func(o *Opts) { o.PageSize = n }
}

// Client is the platform REST client.
type Client struct {
	baseURL  string
	pageSize int
	creds    CredentialSource
	http     *http.Client
}

// NewClient creates a platform client drawing bearer tokens from creds.
func NewClient(creds CredentialSource, opts ...Option) *Client {
	cfg := Opts{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout, PageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		pageSize: cfg.PageSize,
		creds:    creds,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

// mentionsResponse mirrors the mentions endpoint payload. IDs are decimal
// strings on the wire and stay strings throughout.
type mentionsResponse struct {
	Data []struct {
		ID       string `json:"id"`
		AuthorID string `json:"author_id"`
		Text     string `json:"text"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

// Mentions fetches mentions of userID newer than sinceID. An empty sinceID
// returns only the most recent page; history is deliberately not backfilled.
// The returned batch preserves the API's newest-first order; callers that
// need oldest-first processing must normalize it themselves.
// Any network fault or non-200 status is reported as a TransientFetchError.
func (c *Client) Mentions(ctx context.Context, userID, sinceID string) ([]models.Mention, error) {
	q := url.Values{
		"expansions":   {"author_id"},
		"tweet.fields": {"author_id"},
		"max_results":  {fmt.Sprintf("%d", c.pageSize)},
	}
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}
	endpoint := fmt.Sprintf("%s/2/users/%s/mentions?%s", c.baseURL, url.PathEscape(userID), q.Encode())

	body, status, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &models.TransientFetchError{Cause: err}
	}
	if status != http.StatusOK {
		slog.Warn("twitter.Mentions: non-200 response", "status", status, "since_id", sinceID)
		return nil, &models.TransientFetchError{StatusCode: status}
	}

	var resp mentionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &models.TransientFetchError{Cause: fmt.Errorf("failed to decode mentions response: %w", err)}
	}

	handles := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		handles[u.ID] = u.Username
	}

	mentions := make([]models.Mention, 0, len(resp.Data))
	for _, d := range resp.Data {
		mentions = append(mentions, models.Mention{
			ID:           d.ID,
			AuthorID:     d.AuthorID,
			AuthorHandle: handles[d.AuthorID],
			Text:         d.Text,
		})
	}
	slog.Debug("twitter.Mentions: fetched batch", "count", len(mentions), "since_id", sinceID)
	return mentions, nil
}

// postTweetRequest is the tweet-creation payload.
type postTweetRequest struct {
	Text             string `json:"text"`
	InReplyToTweetID string `json:"in_reply_to_tweet_id,omitempty"`
}

type postTweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// PostReply posts text threaded to the mention with ID inReplyTo and returns
// the created post's ID. Platform rejection is reported as a DispatchError.
func (c *Client) PostReply(ctx context.Context, text, inReplyTo string) (string, error) {
	return c.createTweet(ctx, postTweetRequest{Text: text, InReplyToTweetID: inReplyTo}, inReplyTo)
}

// PostTweet posts a standalone (unthreaded) tweet and returns its ID.
func (c *Client) PostTweet(ctx context.Context, text string) (string, error) {
	return c.createTweet(ctx, postTweetRequest{Text: text}, "")
}

func (c *Client) createTweet(ctx context.Context, payload postTweetRequest, mentionID string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode tweet payload: %w", err)
	}

	respBody, status, err := c.do(ctx, http.MethodPost, c.baseURL+"/2/tweets", body)
	if err != nil {
		return "", &models.DispatchError{MentionID: mentionID, Cause: err}
	}
	if status != http.StatusCreated {
		slog.Warn("twitter.createTweet: rejected", "status", status, "in_reply_to", mentionID)
		return "", &models.DispatchError{MentionID: mentionID, StatusCode: status}
	}

	var resp postTweetResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &models.DispatchError{MentionID: mentionID, Cause: fmt.Errorf("failed to decode tweet response: %w", err)}
	}
	slog.Info("twitter.createTweet: posted", "id", resp.Data.ID, "in_reply_to", mentionID)
	return resp.Data.ID, nil
}

type meResponse struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
}

// Me resolves the authenticated bot's user ID and handle.
func (c *Client) Me(ctx context.Context) (id, username string, err error) {
	body, status, err := c.do(ctx, http.MethodGet, c.baseURL+"/2/users/me", nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve bot identity: %w", err)
	}
	if status != http.StatusOK {
		return "", "", fmt.Errorf("failed to resolve bot identity: status %d", status)
	}
	var resp meResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", fmt.Errorf("failed to decode identity response: %w", err)
	}
	return resp.Data.ID, resp.Data.Username, nil
}

// do issues an authenticated request and returns the response body and status.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, int, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to obtain credential: %w", err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}
