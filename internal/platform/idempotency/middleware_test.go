package idempotency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/trimline-home/api/internal/platform/auth"
)

type stubStore struct {
	claimFn    func(ctx context.Context, c Claim) (Outcome, Reply, error)
	completeFn func(ctx context.Context, c Claim, reply Reply) error
	abortFn    func(ctx context.Context, c Claim) error
}

func (s *stubStore) Claim(ctx context.Context, c Claim) (Outcome, Reply, error) {
	return s.claimFn(ctx, c)
}

func (s *stubStore) Complete(ctx context.Context, c Claim, reply Reply) error {
	if s.completeFn == nil {
		return nil
	}
	return s.completeFn(ctx, c, reply)
}

func (s *stubStore) Abort(ctx context.Context, c Claim) error {
	if s.abortFn == nil {
		return nil
	}
	return s.abortFn(ctx, c)
}

func (s *stubStore) Sweep(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func countingHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderId":"ord-1"}`))
	})
}

func guardedRequest(key, uid, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/checkout/submit", strings.NewReader(body))
	if key != "" {
		req.Header.Set(KeyHeader, key)
	}
	if uid != "" {
		ctx := auth.WithIdentity(req.Context(), &auth.Identity{UID: uid})
		req = req.WithContext(ctx)
	}
	return req
}

func TestMiddlewareReplaysRecordedResponse(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(countingHandler(&calls))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, guardedRequest("key-1", "user-1", `{"submit":true}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("first request: expected 201, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, guardedRequest("key-1", "user-1", `{"submit":true}`))
	if second.Code != http.StatusCreated {
		t.Fatalf("replay: expected 201, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body mismatch: %s vs %s", second.Body.String(), first.Body.String())
	}
	if second.Header().Get(ReplayHeader) != "true" {
		t.Fatal("replay must carry the replay marker header")
	}
	if calls != 1 {
		t.Fatalf("handler must run once, ran %d times", calls)
	}
}

func TestMiddlewareRequiresKeyHeader(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(countingHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, guardedRequest("", "user-1", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if calls != 0 {
		t.Fatal("handler must not run without a key")
	}
}

func TestMiddlewareRejectsKeyReuse(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(countingHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, guardedRequest("key-1", "user-1", `{"total":"10.00"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first request: expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, guardedRequest("key-1", "user-1", `{"total":"99.00"}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("reused key with new body: expected 409, got %d", rec.Code)
	}
	if calls != 1 {
		t.Fatalf("handler must not run for the conflicting request, ran %d times", calls)
	}
}

func TestMiddlewareScopesKeysPerUser(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(countingHandler(&calls))

	for _, uid := range []string{"user-1", "user-2"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, guardedRequest("shared-key", uid, `{}`))
		if rec.Code != http.StatusCreated {
			t.Fatalf("user %s: expected 201, got %d", uid, rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("each user's key is independent, handler ran %d times", calls)
	}
}

func TestMiddlewareIgnoresUnguardedMethods(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithMethods(http.MethodPost))(countingHandler(&calls))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/checkout", nil)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("GET must bypass the guard, got %d", rec.Code)
	}
	if calls != 1 {
		t.Fatal("handler must run for unguarded methods")
	}
}

func TestMiddlewareExpiredKeyRunsAgain(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	calls := 0
	handler := Middleware(
		NewMemoryStore(),
		WithTTL(time.Hour),
		WithClock(func() time.Time { return now }),
	)(countingHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, guardedRequest("key-1", "user-1", `{}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first request: expected 201, got %d", rec.Code)
	}

	now = now.Add(2 * time.Hour)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, guardedRequest("key-1", "user-1", `{}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("after expiry: expected 201, got %d", rec.Code)
	}
	if rec.Header().Get(ReplayHeader) != "" {
		t.Fatal("expired record must not replay")
	}
	if calls != 2 {
		t.Fatalf("expired key must run the handler again, ran %d times", calls)
	}
}

func TestMiddlewareInFlightConflict(t *testing.T) {
	calls := 0
	store := &stubStore{
		claimFn: func(context.Context, Claim) (Outcome, Reply, error) {
			return OutcomeInFlight, Reply{}, nil
		},
	}
	handler := Middleware(store)(countingHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, guardedRequest("key-1", "user-1", `{}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while in flight, got %d", rec.Code)
	}
	if calls != 0 {
		t.Fatal("handler must not run while the key is in flight")
	}
}

func TestMiddlewareAbortsClaimWhenRecordingFails(t *testing.T) {
	aborted := false
	store := &stubStore{
		claimFn: func(context.Context, Claim) (Outcome, Reply, error) {
			return OutcomeNew, Reply{}, nil
		},
		completeFn: func(context.Context, Claim, Reply) error {
			return errors.New("backend write failed")
		},
		abortFn: func(context.Context, Claim) error {
			aborted = true
			return nil
		},
	}
	calls := 0
	handler := Middleware(store)(countingHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, guardedRequest("key-1", "user-1", `{}`))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when recording fails, got %d", rec.Code)
	}
	if !aborted {
		t.Fatal("failed recording must release the claim for retry")
	}
}

func TestMemoryStoreSweepRemovesExpired(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, key := range []string{"a", "b", "c"} {
		claim := Claim{Key: key, Fingerprint: "fp", Now: base.Add(time.Duration(i) * time.Minute), TTL: time.Hour}
		if _, _, err := store.Claim(context.Background(), claim); err != nil {
			t.Fatalf("Claim(%s): %v", key, err)
		}
	}

	removed, err := store.Sweep(context.Background(), base.Add(time.Hour+30*time.Second), 0)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 expired entry removed, got %d", removed)
	}
}
