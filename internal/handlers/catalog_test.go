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

type stubCatalogService struct {
	listFn       func(ctx context.Context, filter services.ProductFilter) ([]services.Product, error)
	getFn        func(ctx context.Context, productID string) (services.Product, error)
	categoriesFn func(ctx context.Context) ([]services.Category, error)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductFilter) ([]services.Product, error) {
	return s.listFn(ctx, filter)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	return s.getFn(ctx, productID)
}

func (s *stubCatalogService) ListCategories(ctx context.Context) ([]services.Category, error) {
	return s.categoriesFn(ctx)
}

type stubRecommendationService struct {
	recommendFn func(ctx context.Context, productID string, limit int) ([]services.Product, error)
}

func (s *stubRecommendationService) Recommend(ctx context.Context, productID string, limit int) ([]services.Product, error) {
	return s.recommendFn(ctx, productID, limit)
}

func newCatalogRouter(svc services.CatalogService, recs services.RecommendationService) chi.Router {
	h := NewCatalogHandlers(svc, recs)
	r := chi.NewRouter()
	r.Route("/catalog", h.Routes)
	return r
}

func TestListProductsPassesFilter(t *testing.T) {
	var got services.ProductFilter
	svc := &stubCatalogService{
		listFn: func(_ context.Context, filter services.ProductFilter) ([]services.Product, error) {
			got = filter
			return []services.Product{{ID: "prod-1", Name: "Oak Trim"}}, nil
		},
	}
	router := newCatalogRouter(svc, &stubRecommendationService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/products?category=cat-1&pageSize=12", nil))

	assertStatus(t, rec, http.StatusOK)
	if got.CategoryID != "cat-1" || got.Limit != 12 {
		t.Fatalf("unexpected filter %+v", got)
	}
}

func TestListProductsRejectsBadLimit(t *testing.T) {
	router := newCatalogRouter(&stubCatalogService{}, &stubRecommendationService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/products?pageSize=-3", nil))

	assertStatus(t, rec, http.StatusBadRequest)
}

func TestGetProductNotFound(t *testing.T) {
	svc := &stubCatalogService{
		getFn: func(context.Context, string) (services.Product, error) {
			return services.Product{}, services.ErrCatalogNotFound
		},
	}
	router := newCatalogRouter(svc, &stubRecommendationService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/products/ghost", nil))

	assertStatus(t, rec, http.StatusNotFound)
}

func TestRecommendationsForProduct(t *testing.T) {
	recs := &stubRecommendationService{
		recommendFn: func(_ context.Context, productID string, limit int) ([]services.Product, error) {
			if productID != "prod-1" || limit != 3 {
				t.Fatalf("unexpected args %q %d", productID, limit)
			}
			return []services.Product{{ID: "prod-2"}, {ID: "prod-3"}}, nil
		},
	}
	router := newCatalogRouter(&stubCatalogService{}, recs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/products/prod-1/recommendations?pageSize=3", nil))

	assertStatus(t, rec, http.StatusOK)
	var payload struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(payload.Products))
	}
}

func TestListCategories(t *testing.T) {
	svc := &stubCatalogService{
		categoriesFn: func(context.Context) ([]services.Category, error) {
			return []services.Category{{ID: "cat-1", Name: "Trim", Slug: "trim"}}, nil
		},
	}
	router := newCatalogRouter(svc, &stubRecommendationService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/categories", nil))

	assertStatus(t, rec, http.StatusOK)
	var payload struct {
		Categories []domain.Category `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Categories) != 1 || payload.Categories[0].Slug != "trim" {
		t.Fatalf("unexpected payload %s", rec.Body.String())
	}
}
