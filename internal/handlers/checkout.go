package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trimline-home/api/internal/platform/auth"
	"github.com/trimline-home/api/internal/platform/httpx"
	"github.com/trimline-home/api/internal/services"
)

// CheckoutHandlers exposes the checkout state machine over HTTP. Every
// response carries the full session so clients can render the current stage.
type CheckoutHandlers struct {
	authn *auth.Authenticator
	svc   services.CheckoutService
}

// NewCheckoutHandlers wires the checkout service behind bearer authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, svc services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{authn: authn, svc: svc}
}

// Routes registers the checkout endpoints on the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	r.Use(h.authn.RequireAuth())
	r.Post("/", h.start)
	r.Get("/", h.session)
	r.Post("/address", h.selectAddress)
	r.Post("/payment-method", h.selectPaymentMethod)
	r.Post("/back", h.back)
	r.Post("/submit", h.submit)
	r.Post("/retry", h.retry)
}

type checkoutAddressRequest struct {
	AddressID string `json:"addressId,omitempty"`
}

type checkoutPaymentMethodRequest struct {
	Method string `json:"method"`
}

func (h *CheckoutHandlers) start(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	session, err := h.svc.StartCheckout(r.Context(), identity.UID)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, session)
}

func (h *CheckoutHandlers) session(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	session, err := h.svc.Session(r.Context(), identity.UID)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

// selectAddress accepts an empty body; the service falls back to the default
// address when no explicit id is given.
func (h *CheckoutHandlers) selectAddress(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req checkoutAddressRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(w, r, err)
		return
	}

	session, err := h.svc.SelectAddress(r.Context(), identity.UID, req.AddressID)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

func (h *CheckoutHandlers) selectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req checkoutPaymentMethodRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	session, err := h.svc.SelectPaymentMethod(r.Context(), identity.UID, req.Method)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

func (h *CheckoutHandlers) back(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	session, err := h.svc.Back(r.Context(), identity.UID)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	session, err := h.svc.Submit(r.Context(), identity.UID)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	// Failed captures and post-capture failures are stages, not transport
	// errors. The session reports them with a 200.
	writeJSONResponse(w, http.StatusOK, session)
}

func (h *CheckoutHandlers) retry(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	session, err := h.svc.Retry(r.Context(), identity.UID)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

func writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutNoSession):
		httpx.WriteError(ctx, w, httpx.NewError("no_session", "no active checkout session", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutWrongStage):
		httpx.WriteError(ctx, w, httpx.NewError("wrong_stage", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutBusy):
		httpx.WriteError(ctx, w, httpx.NewError("busy", "checkout submission in progress", http.StatusConflict))
	case errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "no usable delivery address", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "checkout backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected checkout failure", http.StatusInternalServerError))
	}
}
