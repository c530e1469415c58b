// Package models defines the core data structures for MentionPipe.
//
// It includes types for mentions, replies, and the OAuth credential, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Validation constants for outbound replies
const (
	// MaxReplyLength defines the platform's maximum post length.
	MaxReplyLength = 280
)

// Error variables for better error handling and testability
var (
	// ErrStateMismatch indicates the OAuth callback state did not match the
	// session-stored anti-forgery state. The authorization attempt must be
	// restarted; the callback is rejected before any token exchange.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrSessionNotFound indicates no authorization session exists for the
	// callback, either because none was started or it was already consumed.
	ErrSessionNotFound = errors.New("authorization session not found")
	// ErrReplyTooLong indicates a composed reply exceeds MaxReplyLength and
	// was skipped rather than truncated.
	ErrReplyTooLong = errors.New("composed reply exceeds platform length limit")
	// ErrNoCredential indicates no credential is available for platform calls.
	ErrNoCredential = errors.New("no credential available")
)

// TokenExchangeError indicates the provider rejected the authorization code
// exchange. The stored credential is left untouched.
type TokenExchangeError struct {
	StatusCode int
	Cause      error
}

func (e *TokenExchangeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("token exchange failed: %v", e.Cause)
	}
	return fmt.Sprintf("token exchange failed with status %d", e.StatusCode)
}

func (e *TokenExchangeError) Unwrap() error { return e.Cause }

// TransientFetchError indicates a recoverable failure while fetching mentions
// (network fault, non-200 response, rate limiting). The poll loop treats it as
// a signal to back off, never as a hard stop.
type TransientFetchError struct {
	StatusCode int
	Cause      error
}

func (e *TransientFetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient mention fetch failure: %v", e.Cause)
	}
	return fmt.Sprintf("transient mention fetch failure: status %d", e.StatusCode)
}

func (e *TransientFetchError) Unwrap() error { return e.Cause }

// DispatchError indicates the platform rejected a reply post (duplicate,
// rate-limited, permission denied). The mention is still marked processed.
type DispatchError struct {
	MentionID  string
	StatusCode int
	Cause      error
}

func (e *DispatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("reply dispatch failed for mention %s: %v", e.MentionID, e.Cause)
	}
	return fmt.Sprintf("reply dispatch failed for mention %s: status %d", e.MentionID, e.StatusCode)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// Mention represents an inbound post referencing the bot's identity.
// Immutable once fetched.
type Mention struct {
	ID           string `json:"id"`
	AuthorID     string `json:"author_id"`
	AuthorHandle string `json:"author_handle"`
	Text         string `json:"text"`
}

// Reply represents an outbound reply threaded to a mention.
type Reply struct {
	InReplyTo string `json:"in_reply_to"`
	Handle    string `json:"handle"`
	Body      string `json:"body"`
}

// Compose builds the posted reply text with the author @handle prefix.
func (r Reply) Compose() string {
	if r.Handle == "" {
		return r.Body
	}
	return fmt.Sprintf("@%s %s", r.Handle, r.Body)
}

// Credential holds an exchanged OAuth credential. It is replaced as a whole
// on refresh or re-authorization, never partially updated.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the credential's access token has expired.
// A zero ExpiresAt means the expiry is unknown and the token is assumed valid.
func (c Credential) Expired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(c.ExpiresAt)
}

// CompareIDs orders two decimal-string platform IDs. IDs are compared by
// length then lexicographically so that arbitrarily large snowflake IDs are
// never coerced through integer or floating-point parsing.
// Returns -1 if a < b, 0 if equal, 1 if a > b.
func CompareIDs(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// APIStatus defines standard status strings for API responses.
type APIStatus string

const (
	// APIStatusOK indicates a successful API operation.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates a failed API operation.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
