package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/trimline-home/api/internal/services"
)

type stubCheckoutService struct {
	startFn   func(ctx context.Context, userID string) (services.CheckoutSession, error)
	sessionFn func(ctx context.Context, userID string) (services.CheckoutSession, error)
	addressFn func(ctx context.Context, userID, addressID string) (services.CheckoutSession, error)
	methodFn  func(ctx context.Context, userID, method string) (services.CheckoutSession, error)
	backFn    func(ctx context.Context, userID string) (services.CheckoutSession, error)
	submitFn  func(ctx context.Context, userID string) (services.CheckoutSession, error)
	retryFn   func(ctx context.Context, userID string) (services.CheckoutSession, error)
}

func (s *stubCheckoutService) StartCheckout(ctx context.Context, userID string) (services.CheckoutSession, error) {
	return s.startFn(ctx, userID)
}

func (s *stubCheckoutService) Session(ctx context.Context, userID string) (services.CheckoutSession, error) {
	return s.sessionFn(ctx, userID)
}

func (s *stubCheckoutService) SelectAddress(ctx context.Context, userID, addressID string) (services.CheckoutSession, error) {
	return s.addressFn(ctx, userID, addressID)
}

func (s *stubCheckoutService) SelectPaymentMethod(ctx context.Context, userID, method string) (services.CheckoutSession, error) {
	return s.methodFn(ctx, userID, method)
}

func (s *stubCheckoutService) Back(ctx context.Context, userID string) (services.CheckoutSession, error) {
	return s.backFn(ctx, userID)
}

func (s *stubCheckoutService) Submit(ctx context.Context, userID string) (services.CheckoutSession, error) {
	return s.submitFn(ctx, userID)
}

func (s *stubCheckoutService) Retry(ctx context.Context, userID string) (services.CheckoutSession, error) {
	return s.retryFn(ctx, userID)
}

func newCheckoutRouter(t *testing.T, svc services.CheckoutService) chi.Router {
	t.Helper()
	h := NewCheckoutHandlers(newTestAuthenticator(t), svc)
	r := chi.NewRouter()
	r.Route("/checkout", h.Routes)
	return r
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) services.CheckoutSession {
	t.Helper()
	var session services.CheckoutSession
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session
}

func TestStartCheckoutCreated(t *testing.T) {
	svc := &stubCheckoutService{
		startFn: func(_ context.Context, userID string) (services.CheckoutSession, error) {
			return services.CheckoutSession{ID: "chk-1", UserID: userID, Stage: services.StageAddressSelection}, nil
		},
	}
	router := newCheckoutRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/checkout", "user-1", ""))

	assertStatus(t, rec, http.StatusCreated)
	session := decodeSession(t, rec)
	if session.Stage != services.StageAddressSelection || session.UserID != "user-1" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestStartCheckoutEmptyCart(t *testing.T) {
	svc := &stubCheckoutService{
		startFn: func(context.Context, string) (services.CheckoutSession, error) {
			return services.CheckoutSession{}, services.ErrCheckoutInvalidInput
		},
	}
	router := newCheckoutRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/checkout", "user-1", ""))

	assertStatus(t, rec, http.StatusBadRequest)
}

func TestSessionNotFound(t *testing.T) {
	svc := &stubCheckoutService{
		sessionFn: func(context.Context, string) (services.CheckoutSession, error) {
			return services.CheckoutSession{}, services.ErrCheckoutNoSession
		},
	}
	router := newCheckoutRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodGet, "/checkout", "user-1", ""))

	assertStatus(t, rec, http.StatusNotFound)
}

func TestSelectAddressWithoutBodyUsesDefault(t *testing.T) {
	var gotAddressID string
	svc := &stubCheckoutService{
		addressFn: func(_ context.Context, _ string, addressID string) (services.CheckoutSession, error) {
			gotAddressID = addressID
			return services.CheckoutSession{Stage: services.StagePaymentMethodSelection}, nil
		},
	}
	router := newCheckoutRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/checkout/address", "user-1", ""))

	assertStatus(t, rec, http.StatusOK)
	if gotAddressID != "" {
		t.Fatalf("expected empty address id, got %q", gotAddressID)
	}
}

func TestSelectAddressExplicit(t *testing.T) {
	var gotAddressID string
	svc := &stubCheckoutService{
		addressFn: func(_ context.Context, _ string, addressID string) (services.CheckoutSession, error) {
			gotAddressID = addressID
			return services.CheckoutSession{}, nil
		},
	}
	router := newCheckoutRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/checkout/address", "user-1", `{"addressId":"addr-2"}`))

	assertStatus(t, rec, http.StatusOK)
	if gotAddressID != "addr-2" {
		t.Fatalf("expected addr-2, got %q", gotAddressID)
	}
}

func TestSelectPaymentMethodRequiresBody(t *testing.T) {
	router := newCheckoutRouter(t, &stubCheckoutService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/checkout/payment-method", "user-1", ""))

	assertStatus(t, rec, http.StatusBadRequest)
}

func TestSubmitReturnsFailedStageWith200(t *testing.T) {
	svc := &stubCheckoutService{
		submitFn: func(_ context.Context, userID string) (services.CheckoutSession, error) {
			return services.CheckoutSession{
				UserID:        userID,
				Stage:         services.StageFailed,
				FailureReason: "payment_declined",
			}, nil
		},
	}
	router := newCheckoutRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/checkout/submit", "user-1", ""))

	assertStatus(t, rec, http.StatusOK)
	session := decodeSession(t, rec)
	if session.Stage != services.StageFailed || session.FailureReason != "payment_declined" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestSubmitWrongStageConflict(t *testing.T) {
	svc := &stubCheckoutService{
		submitFn: func(context.Context, string) (services.CheckoutSession, error) {
			return services.CheckoutSession{}, services.ErrCheckoutWrongStage
		},
	}
	router := newCheckoutRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/checkout/submit", "user-1", ""))

	assertStatus(t, rec, http.StatusConflict)
}

func TestSubmitBusyConflict(t *testing.T) {
	svc := &stubCheckoutService{
		submitFn: func(context.Context, string) (services.CheckoutSession, error) {
			return services.CheckoutSession{}, services.ErrCheckoutBusy
		},
	}
	router := newCheckoutRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/checkout/submit", "user-1", ""))

	assertStatus(t, rec, http.StatusConflict)
}

func TestRetryAfterFailure(t *testing.T) {
	svc := &stubCheckoutService{
		retryFn: func(_ context.Context, userID string) (services.CheckoutSession, error) {
			return services.CheckoutSession{UserID: userID, Stage: services.StageReady}, nil
		},
	}
	router := newCheckoutRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/checkout/retry", "user-1", ""))

	assertStatus(t, rec, http.StatusOK)
	if decodeSession(t, rec).Stage != services.StageReady {
		t.Fatal("expected ready stage after retry")
	}
}

func TestCheckoutRequiresAuth(t *testing.T) {
	router := newCheckoutRouter(t, &stubCheckoutService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout", nil))

	assertStatus(t, rec, http.StatusUnauthorized)
}
