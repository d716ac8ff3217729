// Package auth verifies identity tokens issued by the authentication
// service and resolves them into engine users.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

// Verifier validates HS256 identity tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a Verifier. secret must be at least 32 characters.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// identityClaims extends the standard claims with the caller's role and type.
type identityClaims struct {
	jwt.RegisteredClaims
	Role     string `json:"role"`
	UserType string `json:"user_type"`
}

// Issue signs a token for user valid for ttl. Production tokens come from
// the authentication service; this is for local runs and tests.
func (v *Verifier) Issue(user domain.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role:     string(user.Role),
		UserType: string(user.Type),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns the identity it carries. Every failure
// wraps domain.ErrUnauthorized.
func (v *Verifier) Verify(token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, fmt.Errorf("token is empty: %w", domain.ErrUnauthorized)
	}

	parsed, err := jwt.ParseWithClaims(token, &identityClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return domain.User{}, errors.Join(fmt.Errorf("parse token: %w", err), domain.ErrUnauthorized)
	}

	claims, ok := parsed.Claims.(*identityClaims)
	if !ok || !parsed.Valid {
		return domain.User{}, fmt.Errorf("invalid token claims: %w", domain.ErrUnauthorized)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.User{}, fmt.Errorf("invalid subject %q: %w", claims.Subject, domain.ErrUnauthorized)
	}
	role := domain.Role(claims.Role)
	if !role.IsValid() {
		return domain.User{}, fmt.Errorf("unknown role %q: %w", claims.Role, domain.ErrUnauthorized)
	}
	typ := domain.UserType(claims.UserType)
	if !typ.IsValid() {
		return domain.User{}, fmt.Errorf("unknown user type %q: %w", claims.UserType, domain.ErrUnauthorized)
	}

	return domain.User{ID: id, Role: role, Type: typ}, nil
}
