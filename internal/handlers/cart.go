package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trimline-home/api/internal/platform/auth"
	"github.com/trimline-home/api/internal/platform/httpx"
	"github.com/trimline-home/api/internal/services"
)

// CartHandlers exposes the authenticated cart endpoints.
type CartHandlers struct {
	authn *auth.Authenticator
	svc   services.CartService
}

// NewCartHandlers wires the cart service behind bearer authentication.
func NewCartHandlers(authn *auth.Authenticator, svc services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, svc: svc}
}

// Routes registers the cart endpoints on the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	r.Use(h.authn.RequireAuth())
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/lines", h.upsertLine)
	r.Put("/lines/{lineID}", h.updateLine)
	r.Delete("/lines/{lineID}", h.removeLine)
	r.Post("/discount", h.applyDiscount)
	r.Put("/shipping-method", h.setShippingMethod)
}

type cartLineRequest struct {
	ProductID         string     `json:"productId"`
	Quantity          int64      `json:"quantity"`
	LengthMm          int64      `json:"lengthMm,omitempty"`
	ExpectedUpdatedAt *time.Time `json:"expectedUpdatedAt,omitempty"`
}

type cartDiscountRequest struct {
	Code string `json:"code"`
}

type cartShippingRequest struct {
	Method string `json:"method"`
}

type cartResponse struct {
	Cart   services.Cart       `json:"cart"`
	Totals services.CartTotals `json:"totals"`
}

type cartDiscountResponse struct {
	Cart    services.Cart       `json:"cart"`
	Totals  services.CartTotals `json:"totals"`
	Applied bool                `json:"applied"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	view, err := h.svc.GetOrCreateCart(r.Context(), identity.UID)
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: view.Cart, Totals: view.Totals})
}

func (h *CartHandlers) upsertLine(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req cartLineRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	view, err := h.svc.AddOrUpdateLine(r.Context(), services.UpsertCartLineCommand{
		UserID:            identity.UID,
		ProductID:         req.ProductID,
		Quantity:          req.Quantity,
		LengthMm:          req.LengthMm,
		ExpectedUpdatedAt: req.ExpectedUpdatedAt,
	})
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: view.Cart, Totals: view.Totals})
}

func (h *CartHandlers) updateLine(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	lineID := chi.URLParam(r, "lineID")
	var req cartLineRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	view, err := h.svc.AddOrUpdateLine(r.Context(), services.UpsertCartLineCommand{
		UserID:            identity.UID,
		LineID:            &lineID,
		ProductID:         req.ProductID,
		Quantity:          req.Quantity,
		LengthMm:          req.LengthMm,
		ExpectedUpdatedAt: req.ExpectedUpdatedAt,
	})
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: view.Cart, Totals: view.Totals})
}

func (h *CartHandlers) removeLine(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	view, err := h.svc.RemoveLine(r.Context(), services.RemoveCartLineCommand{
		UserID: identity.UID,
		LineID: chi.URLParam(r, "lineID"),
	})
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: view.Cart, Totals: view.Totals})
}

// applyDiscount never fails on an unknown code; the response reports whether
// the code applied.
func (h *CartHandlers) applyDiscount(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req cartDiscountRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	view, applied, err := h.svc.ApplyDiscountCode(r.Context(), services.ApplyDiscountCommand{
		UserID: identity.UID,
		Code:   req.Code,
	})
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartDiscountResponse{Cart: view.Cart, Totals: view.Totals, Applied: applied})
}

func (h *CartHandlers) setShippingMethod(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req cartShippingRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	view, err := h.svc.SetShippingMethod(r.Context(), services.SetShippingMethodCommand{
		UserID: identity.UID,
		Method: req.Method,
	})
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: view.Cart, Totals: view.Totals})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.svc.ClearCart(r.Context(), identity.UID); err != nil {
		writeCartError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "cart entry not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "cart was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "cart backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected cart failure", http.StatusInternalServerError))
	}
}
