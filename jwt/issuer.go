package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssuerConfig configures an [Issuer].
type IssuerConfig struct {
	SigningMethod SigningMethod
	// PrivateKey is the HS256 secret or the Ed25519 private key (raw or PEM).
	PrivateKey []byte
	KeyID      string
	Issuer     string
	Audience   string
}

// Issuer signs tokens. It backs the development auth server and tests; production
// clients only verify.
type Issuer struct {
	config IssuerConfig
	key    interface{}
	now    func() time.Time
}

// NewIssuer parses the signing key once.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if len(cfg.PrivateKey) == 0 {
		return nil, errors.New("issuer requires private key")
	}

	var key interface{}
	switch cfg.SigningMethod {
	case MethodHS256:
		key = cfg.PrivateKey
	case MethodEd25519:
		edKey, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		key = edKey
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Issuer{config: cfg, key: key, now: time.Now}, nil
}

// Issue signs a token for userID valid for ttl. A negative ttl yields an
// already-expired token.
func (i *Issuer) Issue(userID, username string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}

	token := jwt.NewWithClaims(i.config.SigningMethod.jwtMethod(), claims)
	if i.config.KeyID != "" {
		token.Header["kid"] = i.config.KeyID
	}
	return token.SignedString(i.key)
}
