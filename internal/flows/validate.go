package flows

import (
	"context"
	"strings"

	"github.com/versini-org/auth-client/jwt"
)

// TokenValidator verifies a token's signature and expiry and extracts its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

// ValidateToken reports whether token is usable: it must be non-empty, pass the
// validator and carry a non-empty subject. Validator errors and panics both
// read as invalid.
func ValidateToken(ctx context.Context, v TokenValidator, token string) (claims *jwt.Claims, ok bool) {
	if v == nil || token == "" {
		return nil, false
	}
	defer func() {
		if r := recover(); r != nil {
			claims, ok = nil, false
		}
	}()

	c, err := v.ValidateToken(ctx, token)
	if err != nil || c == nil || strings.TrimSpace(c.UserID()) == "" {
		return nil, false
	}
	return c, true
}
