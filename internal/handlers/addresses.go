package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/trimline-home/api/internal/domain"
	"github.com/trimline-home/api/internal/platform/auth"
	"github.com/trimline-home/api/internal/platform/httpx"
	"github.com/trimline-home/api/internal/services"
)

// AddressHandlers exposes the saved-address book under /me/addresses.
type AddressHandlers struct {
	authn *auth.Authenticator
	svc   services.AddressService
}

// NewAddressHandlers wires the address service behind bearer authentication.
func NewAddressHandlers(authn *auth.Authenticator, svc services.AddressService) *AddressHandlers {
	return &AddressHandlers{authn: authn, svc: svc}
}

// Routes registers the address endpoints on the provided router.
func (h *AddressHandlers) Routes(r chi.Router) {
	r.Use(h.authn.RequireAuth())
	r.Route("/addresses", func(ar chi.Router) {
		ar.Get("/", h.list)
		ar.Post("/", h.create)
		ar.Get("/{addressID}", h.get)
		ar.Put("/{addressID}", h.update)
		ar.Delete("/{addressID}", h.delete)
		ar.Post("/{addressID}/default", h.setDefault)
	})
}

type addressRequest struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	IsDefault  bool   `json:"isDefault,omitempty"`
}

func (req addressRequest) toDomain() domain.Address {
	return domain.Address{
		Recipient:  req.Recipient,
		Phone:      req.Phone,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		Region:     req.Region,
		PostalCode: req.PostalCode,
		Country:    req.Country,
	}
}

type addressListResponse struct {
	Addresses []services.Address `json:"addresses"`
}

func (h *AddressHandlers) list(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	addresses, err := h.svc.ListAddresses(r.Context(), identity.UID)
	if err != nil {
		writeAddressError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, addressListResponse{Addresses: addresses})
}

func (h *AddressHandlers) get(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	address, err := h.svc.GetAddress(r.Context(), identity.UID, chi.URLParam(r, "addressID"))
	if err != nil {
		writeAddressError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, address)
}

func (h *AddressHandlers) create(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addressRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	address, err := h.svc.UpsertAddress(r.Context(), services.UpsertAddressCommand{
		UserID:    identity.UID,
		Address:   req.toDomain(),
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeAddressError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, address)
}

func (h *AddressHandlers) update(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	addressID := chi.URLParam(r, "addressID")
	var req addressRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	address, err := h.svc.UpsertAddress(r.Context(), services.UpsertAddressCommand{
		UserID:    identity.UID,
		AddressID: &addressID,
		Address:   req.toDomain(),
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeAddressError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, address)
}

// delete accepts an optional replacementId query parameter naming the address
// promoted to default when the deleted one held the flag.
func (h *AddressHandlers) delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	err := h.svc.DeleteAddress(r.Context(), services.DeleteAddressCommand{
		UserID:        identity.UID,
		AddressID:     chi.URLParam(r, "addressID"),
		ReplacementID: r.URL.Query().Get("replacementId"),
	})
	if err != nil {
		writeAddressError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AddressHandlers) setDefault(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	address, err := h.svc.SetDefaultAddress(r.Context(), identity.UID, chi.URLParam(r, "addressID"))
	if err != nil {
		writeAddressError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, address)
}

func writeAddressError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrAddressInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "address not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAddressUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "address backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected address failure", http.StatusInternalServerError))
	}
}
