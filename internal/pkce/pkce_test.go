package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateVerifierCharset(t *testing.T) {
	for i := 0; i < 50; i++ {
		v, err := GenerateVerifier()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(v) < 30 {
			t.Fatalf("verifier too short: %d chars", len(v))
		}
		for _, c := range v {
			if !((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')) {
				t.Fatalf("verifier contains non-alphanumeric character %q: %s", c, v)
			}
		}
	}
}

func TestGenerateVerifierUnique(t *testing.T) {
	a, err := GenerateVerifier()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := GenerateVerifier()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Error("two generated verifiers should not collide")
	}
}

func TestDeriveChallengeDeterministic(t *testing.T) {
	v := "testVerifier1234567890abcdefghij"
	if DeriveChallenge(v) != DeriveChallenge(v) {
		t.Error("challenge must be deterministic for a fixed verifier")
	}

	hash := sha256.Sum256([]byte(v))
	want := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:])
	if got := DeriveChallenge(v); got != want {
		t.Errorf("DeriveChallenge(%q) = %q, want %q", v, got, want)
	}
}

func TestDeriveChallengeNoPadding(t *testing.T) {
	codes, err := Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(codes.Challenge, "=") {
		t.Errorf("challenge must not carry base64 padding: %s", codes.Challenge)
	}
	if strings.ContainsAny(codes.Challenge, "+/") {
		t.Errorf("challenge must be base64url encoded: %s", codes.Challenge)
	}
}
