package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trimline-home/api/internal/platform/httpx"
	"github.com/trimline-home/api/internal/platform/pagination"
	"github.com/trimline-home/api/internal/services"
)

var catalogPageOptions = pagination.Options{
	DefaultPageSize: 24,
	MaxPageSize:     100,
}

var recommendationPageOptions = pagination.Options{
	DefaultPageSize: 6,
	MaxPageSize:     24,
}

// CatalogHandlers exposes the public storefront catalog. No authentication is
// required for browsing.
type CatalogHandlers struct {
	svc  services.CatalogService
	recs services.RecommendationService
}

// NewCatalogHandlers wires the catalog and recommendation services.
func NewCatalogHandlers(svc services.CatalogService, recs services.RecommendationService) *CatalogHandlers {
	return &CatalogHandlers{svc: svc, recs: recs}
}

// Routes registers the catalog endpoints on the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/products/{productID}/recommendations", h.recommendations)
	r.Get("/categories", h.listCategories)
}

type productListResponse struct {
	Products []services.Product `json:"products"`
}

type categoryListResponse struct {
	Categories []services.Category `json:"categories"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromRequest(r, catalogPageOptions)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	products, err := h.svc.ListProducts(r.Context(), services.ProductFilter{
		CategoryID: r.URL.Query().Get("category"),
		Limit:      params.PageSize,
	})
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{Products: products})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.svc.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, product)
}

func (h *CatalogHandlers) recommendations(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromRequest(r, recommendationPageOptions)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	products, err := h.recs.Recommend(r.Context(), chi.URLParam(r, "productID"), params.PageSize)
	if err != nil {
		writeRecommendationError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{Products: products})
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.ListCategories(r.Context())
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, categoryListResponse{Categories: categories})
}

func writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "catalog backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected catalog failure", http.StatusInternalServerError))
	}
}

func writeRecommendationError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrRecommendationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrRecommendationUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "recommendation backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected recommendation failure", http.StatusInternalServerError))
	}
}
