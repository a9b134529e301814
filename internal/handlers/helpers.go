package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/trimline-home/api/internal/platform/auth"
	"github.com/trimline-home/api/internal/platform/httpx"
)

const defaultBodyLimit = 1 << 20

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is empty")
)

// readLimitedBody reads at most limit bytes and distinguishes empty bodies
// from oversized ones.
func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	if len(body) == 0 {
		return nil, errEmptyBody
	}
	return body, nil
}

func decodeJSONBody(r *http.Request, dst any) error {
	body, err := readLimitedBody(r, defaultBodyLimit)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// requireIdentity extracts the authenticated user or writes a 401 and returns
// false. Route groups behind RequireAuth should never hit the failure path.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity.UID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthorized", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(r.Context(), w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
	}
}
