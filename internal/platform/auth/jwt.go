package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals any other verification failure.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// TokenVerifier turns a raw bearer token into an Identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// JWTVerifier validates HS256-signed tokens issued by the storefront's auth
// service.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// JWTOption customises the verifier.
type JWTOption func(*JWTVerifier)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) JWTOption {
	return func(v *JWTVerifier) { v.issuer = strings.TrimSpace(issuer) }
}

// WithAudience requires the aud claim to contain the value.
func WithAudience(audience string) JWTOption {
	return func(v *JWTVerifier) { v.audience = strings.TrimSpace(audience) }
}

// NewJWTVerifier builds a verifier from the shared secret.
func NewJWTVerifier(secret string, opts ...JWTOption) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	v := &JWTVerifier{secret: []byte(secret)}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Verify parses and validates the token, returning the embedded identity.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	if v.audience != "" {
		found := false
		for _, aud := range claims.Audience {
			if aud == v.audience {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: audience mismatch", ErrTokenInvalid)
		}
	}

	uid := strings.TrimSpace(claims.Subject)
	if uid == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	roles := claims.Roles
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}
	return &Identity{UID: uid, Email: claims.Email, Roles: roles}, nil
}
