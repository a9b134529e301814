package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trimline-home/api/internal/platform/auth"
	"github.com/trimline-home/api/internal/platform/httpx"
	"github.com/trimline-home/api/internal/platform/pagination"
	"github.com/trimline-home/api/internal/services"
)

var orderPageOptions = pagination.Options{
	DefaultPageSize: 20,
	MaxPageSize:     100,
}

// OrderHandlers exposes the order history endpoints.
type OrderHandlers struct {
	authn *auth.Authenticator
	svc   services.OrderService
}

// NewOrderHandlers wires the order service behind bearer authentication.
func NewOrderHandlers(authn *auth.Authenticator, svc services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, svc: svc}
}

// Routes registers the order endpoints on the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Use(h.authn.RequireAuth())
	r.Get("/", h.list)
	r.Get("/{orderID}", h.get)
	r.Post("/{orderID}/cancel", h.cancel)
}

type orderListResponse struct {
	Orders []services.Order `json:"orders"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *OrderHandlers) list(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, orderPageOptions)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	orders, err := h.svc.ListOrders(r.Context(), identity.UID, params.PageSize)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Orders: orders})
}

func (h *OrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	order, err := h.svc.GetOrder(r.Context(), identity.UID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, order)
}

func (h *OrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.svc.Cancel(r.Context(), services.CancelOrderCommand{
		UserID:  identity.UID,
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  req.Reason,
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, order)
}

func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "order state does not permit this action", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "order backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected order failure", http.StatusInternalServerError))
	}
}
