package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/trimline-home/api/internal/domain"
	"github.com/trimline-home/api/internal/services"
)

type stubCartService struct {
	getFn      func(ctx context.Context, userID string) (services.CartView, error)
	upsertFn   func(ctx context.Context, cmd services.UpsertCartLineCommand) (services.CartView, error)
	removeFn   func(ctx context.Context, cmd services.RemoveCartLineCommand) (services.CartView, error)
	discountFn func(ctx context.Context, cmd services.ApplyDiscountCommand) (services.CartView, bool, error)
	shippingFn func(ctx context.Context, cmd services.SetShippingMethodCommand) (services.CartView, error)
	clearFn    func(ctx context.Context, userID string) error
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, userID string) (services.CartView, error) {
	return s.getFn(ctx, userID)
}

func (s *stubCartService) AddOrUpdateLine(ctx context.Context, cmd services.UpsertCartLineCommand) (services.CartView, error) {
	return s.upsertFn(ctx, cmd)
}

func (s *stubCartService) RemoveLine(ctx context.Context, cmd services.RemoveCartLineCommand) (services.CartView, error) {
	return s.removeFn(ctx, cmd)
}

func (s *stubCartService) ApplyDiscountCode(ctx context.Context, cmd services.ApplyDiscountCommand) (services.CartView, bool, error) {
	return s.discountFn(ctx, cmd)
}

func (s *stubCartService) SetShippingMethod(ctx context.Context, cmd services.SetShippingMethodCommand) (services.CartView, error) {
	return s.shippingFn(ctx, cmd)
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	return s.clearFn(ctx, userID)
}

func newCartRouter(t *testing.T, svc services.CartService) chi.Router {
	t.Helper()
	h := NewCartHandlers(newTestAuthenticator(t), svc)
	r := chi.NewRouter()
	r.Route("/cart", h.Routes)
	return r
}

func TestGetCartReturnsView(t *testing.T) {
	svc := &stubCartService{
		getFn: func(_ context.Context, userID string) (services.CartView, error) {
			if userID != "user-1" {
				t.Fatalf("expected user-1, got %q", userID)
			}
			return services.CartView{
				Cart:   domain.Cart{UserID: userID, Currency: "USD"},
				Totals: domain.CartTotals{Currency: "USD"},
			}, nil
		},
	}
	router := newCartRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodGet, "/cart", "user-1", ""))

	assertStatus(t, rec, http.StatusOK)
	var payload struct {
		Cart struct {
			UserID string `json:"userId"`
		} `json:"cart"`
		Totals struct {
			Currency string `json:"currency"`
		} `json:"totals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Cart.UserID != "user-1" || payload.Totals.Currency != "USD" {
		t.Fatalf("unexpected payload %s", rec.Body.String())
	}
}

func TestGetCartRequiresAuth(t *testing.T) {
	router := newCartRouter(t, &stubCartService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))

	assertStatus(t, rec, http.StatusUnauthorized)
}

func TestUpsertLinePassesCommand(t *testing.T) {
	var got services.UpsertCartLineCommand
	svc := &stubCartService{
		upsertFn: func(_ context.Context, cmd services.UpsertCartLineCommand) (services.CartView, error) {
			got = cmd
			return services.CartView{Cart: domain.Cart{UserID: cmd.UserID}}, nil
		},
	}
	router := newCartRouter(t, svc)

	rec := httptest.NewRecorder()
	body := `{"productId":"prod-1","quantity":2,"lengthMm":1500}`
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/cart/lines", "user-1", body))

	assertStatus(t, rec, http.StatusOK)
	if got.UserID != "user-1" || got.ProductID != "prod-1" || got.Quantity != 2 || got.LengthMm != 1500 {
		t.Fatalf("unexpected command %+v", got)
	}
	if got.LineID != nil {
		t.Fatal("create path must not set a line id")
	}
}

func TestUpdateLineSetsLineID(t *testing.T) {
	var got services.UpsertCartLineCommand
	svc := &stubCartService{
		upsertFn: func(_ context.Context, cmd services.UpsertCartLineCommand) (services.CartView, error) {
			got = cmd
			return services.CartView{}, nil
		},
	}
	router := newCartRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPut, "/cart/lines/line-9", "user-1", `{"productId":"prod-1","quantity":3}`))

	assertStatus(t, rec, http.StatusOK)
	if got.LineID == nil || *got.LineID != "line-9" {
		t.Fatalf("expected line id line-9, got %+v", got.LineID)
	}
}

func TestUpsertLineRejectsEmptyBody(t *testing.T) {
	router := newCartRouter(t, &stubCartService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/cart/lines", "user-1", ""))

	assertStatus(t, rec, http.StatusBadRequest)
}

func TestApplyDiscountReportsApplied(t *testing.T) {
	svc := &stubCartService{
		discountFn: func(_ context.Context, cmd services.ApplyDiscountCommand) (services.CartView, bool, error) {
			if cmd.Code != "SAVE10" {
				t.Fatalf("expected SAVE10, got %q", cmd.Code)
			}
			return services.CartView{}, true, nil
		},
	}
	router := newCartRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/cart/discount", "user-1", `{"code":"SAVE10"}`))

	assertStatus(t, rec, http.StatusOK)
	var payload struct {
		Applied bool `json:"applied"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Applied {
		t.Fatal("expected applied true")
	}
}

func TestApplyDiscountUnknownCodeStillOK(t *testing.T) {
	svc := &stubCartService{
		discountFn: func(context.Context, services.ApplyDiscountCommand) (services.CartView, bool, error) {
			return services.CartView{}, false, nil
		},
	}
	router := newCartRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/cart/discount", "user-1", `{"code":"BOGUS"}`))

	assertStatus(t, rec, http.StatusOK)
	var payload struct {
		Applied bool `json:"applied"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Applied {
		t.Fatal("expected applied false for unknown code")
	}
}

func TestSetShippingMethodInvalidInput(t *testing.T) {
	svc := &stubCartService{
		shippingFn: func(context.Context, services.SetShippingMethodCommand) (services.CartView, error) {
			return services.CartView{}, services.ErrCartInvalidInput
		},
	}
	router := newCartRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPut, "/cart/shipping-method", "user-1", `{"method":"teleport"}`))

	assertStatus(t, rec, http.StatusBadRequest)
}

func TestRemoveLineNotFound(t *testing.T) {
	svc := &stubCartService{
		removeFn: func(context.Context, services.RemoveCartLineCommand) (services.CartView, error) {
			return services.CartView{}, services.ErrCartNotFound
		},
	}
	router := newCartRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodDelete, "/cart/lines/ghost", "user-1", ""))

	assertStatus(t, rec, http.StatusNotFound)
}

func TestCartConflictMapsTo409(t *testing.T) {
	svc := &stubCartService{
		upsertFn: func(context.Context, services.UpsertCartLineCommand) (services.CartView, error) {
			return services.CartView{}, services.ErrCartConflict
		},
	}
	router := newCartRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodPost, "/cart/lines", "user-1", `{"productId":"p","quantity":1}`))

	assertStatus(t, rec, http.StatusConflict)
}

func TestClearCartNoContent(t *testing.T) {
	cleared := false
	svc := &stubCartService{
		clearFn: func(_ context.Context, userID string) error {
			cleared = true
			return nil
		},
	}
	router := newCartRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAuthedRequest(t, http.MethodDelete, "/cart", "user-1", ""))

	assertStatus(t, rec, http.StatusNoContent)
	if !cleared {
		t.Fatal("expected ClearCart to be called")
	}
}
