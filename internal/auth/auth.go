// Package auth verifies admin bearer tokens before admin API calls are
// proxied to the hosted backend.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/portfolio.studio/internal/content/backend"
	apperrors "github.com/louisbranch/portfolio.studio/internal/platform/errors"
)

// User is the verified caller.
type User struct {
	ID    string
	Email string
	Role  string
}

// Verifier checks one bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (User, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, token string) (User, error) {
	return f(ctx, token)
}

func unauthorized(message string, cause error) error {
	return apperrors.Wrap(apperrors.KindUnauthorized, message, cause)
}

type backendClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 access tokens signed with the backend's JWT
// secret. It rejects bad signatures and expired tokens locally without a
// network round trip.
type JWTVerifier struct {
	secret   []byte
	audience string
	now      func() time.Time
}

// NewJWTVerifier returns a verifier for secret. An empty audience skips the
// audience check.
func NewJWTVerifier(secret, audience string) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &JWTVerifier{secret: []byte(secret), audience: strings.TrimSpace(audience), now: time.Now}, nil
}

// Verify parses and validates token.
func (v *JWTVerifier) Verify(_ context.Context, token string) (User, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(5 * time.Second),
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}
	var claims backendClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, options...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return User{}, unauthorized("token expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return User{}, unauthorized("token signature invalid", err)
	default:
		return User{}, unauthorized("token invalid", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return User{}, unauthorized("token has no subject", nil)
	}
	return User{ID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// UserLookup resolves a token through the backend auth API.
type UserLookup interface {
	GetUser(ctx context.Context, token string) (backend.User, error)
}

// BackendVerifier delegates verification to the hosted backend.
type BackendVerifier struct {
	lookup UserLookup
}

// NewBackendVerifier returns a verifier using lookup.
func NewBackendVerifier(lookup UserLookup) *BackendVerifier {
	return &BackendVerifier{lookup: lookup}
}

// Verify resolves token via the backend.
func (v *BackendVerifier) Verify(ctx context.Context, token string) (User, error) {
	if v == nil || v.lookup == nil {
		return User{}, apperrors.E(apperrors.KindUnavailable, "backend verifier is not configured")
	}
	user, err := v.lookup.GetUser(ctx, token)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindUnavailable) {
			return User{}, err
		}
		return User{}, unauthorized("backend rejected token", err)
	}
	return User{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// Chain requires every verifier to accept the token. The last verifier's
// user wins, so cheap local checks go first and the authoritative lookup last.
type Chain []Verifier

// Verify runs each verifier in order.
func (c Chain) Verify(ctx context.Context, token string) (User, error) {
	if len(c) == 0 {
		return User{}, apperrors.E(apperrors.KindUnavailable, "no token verifier configured")
	}
	var user User
	for _, verifier := range c {
		next, err := verifier.Verify(ctx, token)
		if err != nil {
			return User{}, err
		}
		user = next
	}
	return user, nil
}
