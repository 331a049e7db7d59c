package internal

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
)

func TestNewNonceIsRandomUUID(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		n, err := NewNonce()
		if err != nil {
			t.Fatalf("nonce: %v", err)
		}
		id, err := uuid.Parse(n)
		if err != nil {
			t.Fatalf("nonce %q is not a uuid: %v", n, err)
		}
		if id.Version() != 4 {
			t.Fatalf("expected version 4, got %d", id.Version())
		}
		if _, dup := seen[n]; dup {
			t.Fatalf("duplicate nonce %q", n)
		}
		seen[n] = struct{}{}
	}
}

func TestNewPKCEPairChallengeMatchesVerifier(t *testing.T) {
	p, err := NewPKCEPair()
	if err != nil {
		t.Fatalf("pkce: %v", err)
	}
	if len(p.Verifier) < 43 || len(p.Verifier) > 128 {
		t.Fatalf("verifier length %d outside 43..128", len(p.Verifier))
	}
	sum := sha256.Sum256([]byte(p.Verifier))
	if want := base64.RawURLEncoding.EncodeToString(sum[:]); p.Challenge != want {
		t.Fatalf("challenge mismatch: got %q want %q", p.Challenge, want)
	}

	q, _ := NewPKCEPair()
	if q.Verifier == p.Verifier {
		t.Fatal("expected distinct verifiers")
	}
}
