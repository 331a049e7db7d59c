package jwt

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newHSPair(t *testing.T, secret string) (*Issuer, *Verifier) {
	t.Helper()
	iss, err := NewIssuer(IssuerConfig{SigningMethod: MethodHS256, PrivateKey: []byte(secret)})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	v, err := NewVerifier(Config{SigningMethod: MethodHS256, Key: []byte(secret)})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return iss, v
}

func TestVerifyHS256RoundTrip(t *testing.T) {
	iss, v := newHSPair(t, "test-secret")

	token, err := iss.Issue("u1", "alice", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := v.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID() != "u1" || claims.Username != "alice" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	iss, v := newHSPair(t, "test-secret")

	token, err := iss.Issue("u1", "alice", -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := v.Verify(token); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyLeewayAcceptsRecentlyExpired(t *testing.T) {
	iss, _ := newHSPair(t, "test-secret")
	v, err := NewVerifier(Config{SigningMethod: MethodHS256, Key: []byte("test-secret"), Leeway: time.Minute})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	token, _ := iss.Issue("u1", "alice", -10*time.Second)
	if _, err := v.Verify(token); err != nil {
		t.Fatalf("expected leeway to accept token, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	iss, _ := newHSPair(t, "secret-a")
	_, v := newHSPair(t, "secret-b")

	token, _ := iss.Issue("u1", "alice", time.Minute)
	if _, err := v.Verify(token); !errors.Is(err, gjwt.ErrTokenSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestVerifyRejectsEmptySubject(t *testing.T) {
	iss, v := newHSPair(t, "test-secret")

	token, _ := iss.Issue("", "alice", time.Minute)
	if _, err := v.Verify(token); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	_, v := newHSPair(t, "test-secret")
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := v.Verify(tok); err == nil {
			t.Fatalf("expected error for %q", tok)
		}
	}
}

func TestVerifyIssuerAndAudience(t *testing.T) {
	iss, err := NewIssuer(IssuerConfig{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("k"),
		Issuer:        "https://auth.example",
		Audience:      "web",
	})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	token, _ := iss.Issue("u1", "alice", time.Minute)

	ok, _ := NewVerifier(Config{SigningMethod: MethodHS256, Key: []byte("k"), Issuer: "https://auth.example", Audience: "web"})
	if _, err := ok.Verify(token); err != nil {
		t.Fatalf("expected matching issuer/audience to pass: %v", err)
	}

	wrongAud, _ := NewVerifier(Config{SigningMethod: MethodHS256, Key: []byte("k"), Audience: "mobile"})
	if _, err := wrongAud.Verify(token); !errors.Is(err, gjwt.ErrTokenInvalidAudience) {
		t.Fatalf("expected audience error, got %v", err)
	}
}

func TestVerifyEd25519WithKeyID(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	iss, err := NewIssuer(IssuerConfig{SigningMethod: MethodEd25519, PrivateKey: priv, KeyID: "k1"})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	v, err := NewVerifier(Config{SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{"k1": pub}})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	token, _ := iss.Issue("u9", "zoe", time.Minute)
	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID() != "u9" {
		t.Fatalf("unexpected subject %q", claims.UserID())
	}

	other, _ := NewIssuer(IssuerConfig{SigningMethod: MethodEd25519, PrivateKey: priv, KeyID: "k2"})
	token, _ = other.Issue("u9", "zoe", time.Minute)
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
}

func TestVerifyRejectsAlgorithmSwitch(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(rand.Reader)
	v, err := NewVerifier(Config{SigningMethod: MethodEd25519, Key: pub})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	hs, _ := NewIssuer(IssuerConfig{SigningMethod: MethodHS256, PrivateKey: pub})
	token, _ := hs.Issue("u1", "alice", time.Minute)
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected HS256 token to be rejected by Ed25519 verifier")
	}
}

func TestNewVerifierConfigErrors(t *testing.T) {
	cases := []Config{
		{SigningMethod: "rs256", Key: []byte("k")},
		{SigningMethod: MethodHS256},
		{SigningMethod: MethodHS256, Key: []byte("k"), Leeway: time.Hour},
		{SigningMethod: MethodEd25519, Key: []byte("short")},
		{SigningMethod: MethodHS256, VerifyKeys: map[string][]byte{" ": []byte("k")}},
	}
	for i, cfg := range cases {
		if _, err := NewVerifier(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}

func TestValidateTokenHonoursCanceledContext(t *testing.T) {
	iss, v := newHSPair(t, "test-secret")
	token, _ := iss.Issue("u1", "alice", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := v.ValidateToken(ctx, token); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
