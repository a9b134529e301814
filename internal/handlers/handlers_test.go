package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/trimline-home/api/internal/platform/auth"
)

type stubVerifier struct {
	verifyFn func(ctx context.Context, token string) (*auth.Identity, error)
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, token)
	}
	return &auth.Identity{UID: token}, nil
}

func newTestAuthenticator(t *testing.T) *auth.Authenticator {
	t.Helper()
	authn, err := auth.NewAuthenticator(&stubVerifier{})
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return authn
}

// newAuthedRequest issues a request whose bearer token doubles as the user id.
func newAuthedRequest(t *testing.T, method, target, userID string, body string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", userID))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d (body %s)", want, rec.Code, rec.Body.String())
	}
}
