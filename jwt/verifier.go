package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingSubject is returned for a well-formed token without a subject claim.
var ErrMissingSubject = errors.New("token has no subject")

// Claims are the identity claims the session manager reads from a token.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// Config configures a [Verifier].
type Config struct {
	SigningMethod SigningMethod
	// Key is the HS256 secret or the Ed25519 public key (raw or PEM).
	Key []byte
	// VerifyKeys maps a "kid" header to a key. When set, tokens must carry a known kid.
	VerifyKeys map[string][]byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// Verifier checks token signatures and expiry with a fixed key set.
type Verifier struct {
	config Config
	method jwt.SigningMethod
	keys   map[string]interface{}
	key    interface{}
}

// NewVerifier validates cfg and parses its keys once.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	v := &Verifier{
		config: cfg,
		method: cfg.SigningMethod.jwtMethod(),
	}

	switch cfg.SigningMethod {
	case MethodHS256, MethodEd25519:
	default:
		return nil, errors.New("unsupported signing method")
	}

	if len(cfg.Key) == 0 && len(cfg.VerifyKeys) == 0 {
		return nil, fmt.Errorf("%s requires a key or verify key set", cfg.SigningMethod)
	}
	if len(cfg.Key) > 0 {
		key, err := v.verifyKey(cfg.Key)
		if err != nil {
			return nil, err
		}
		v.key = key
	}
	if len(cfg.VerifyKeys) > 0 {
		v.keys = make(map[string]interface{}, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			key, err := v.verifyKey(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
			}
			v.keys[kid] = key
		}
	}

	return v, nil
}

// Verify parses tokenStr and returns its claims when the signature, expiry,
// issuer and audience checks pass and the subject is non-empty.
func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(v.config.Leeway))
	}
	if v.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		options = append(options, jwt.WithAudience(v.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, v.keyFunc)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// ValidateToken adapts [Verifier.Verify] to the session manager's validator port.
func (v *Verifier) ValidateToken(ctx context.Context, tokenStr string) (*Claims, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.Verify(tokenStr)
}

func (v *Verifier) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != v.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(v.keys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			if v.key != nil {
				return v.key, nil
			}
			return nil, errors.New("missing kid")
		}
		key, ok := v.keys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	}

	return v.key, nil
}

func (v *Verifier) verifyKey(raw []byte) (interface{}, error) {
	switch v.config.SigningMethod {
	case MethodHS256:
		return raw, nil
	default:
		return parseEdPublicKey(raw)
	}
}
