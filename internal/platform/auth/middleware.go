package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/trimline-home/api/internal/platform/httpx"
)

const bearerPrefix = "bearer "

// Authenticator wires bearer-token verification into HTTP middleware.
type Authenticator struct {
	verifier TokenVerifier
}

// NewAuthenticator builds an Authenticator from a verifier.
func NewAuthenticator(verifier TokenVerifier) (*Authenticator, error) {
	if verifier == nil {
		return nil, errors.New("auth: token verifier is required")
	}
	return &Authenticator{verifier: verifier}, nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// identity on the request context.
func (a *Authenticator) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearerToken(r)
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthorized", "missing bearer token", http.StatusUnauthorized))
				return
			}

			identity, err := a.verifier.Verify(ctx, token)
			if err != nil {
				code, message := "unauthorized", "invalid token"
				if errors.Is(err, ErrTokenExpired) {
					code, message = "token_expired", "token expired"
				}
				httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusUnauthorized))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(header), bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
