package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"bidline/internal/domain"
)

// Claims is the bearer token payload. Subject carries the actor id.
type Claims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind,omitempty"`
}

const issuer = "bidline"

// SignToken mints an HS256 token for actor valid for ttl.
func SignToken(secret string, actor domain.Actor, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if actor.ID == "" {
		return "", errors.New("actor id required")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: string(actor.Kind),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies signature, expiry and subject of token.
func ParseToken(secret, token string) (*Claims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject claim required", domain.ErrUnauthenticated)
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
