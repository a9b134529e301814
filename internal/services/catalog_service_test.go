package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/trimline-home/api/internal/domain"
	"github.com/trimline-home/api/internal/repositories"
)

func TestListProductsDefaultsAndClampsLimit(t *testing.T) {
	var gotFilter repositories.ProductListFilter
	repo := &stubProductRepo{
		listFn: func(_ context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
			gotFilter = filter
			return nil, nil
		},
	}
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}

	products, err := svc.ListProducts(context.Background(), ProductFilter{})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if products == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if gotFilter.Limit != defaultProductListLimit || !gotFilter.ActiveOnly {
		t.Fatalf("unexpected filter %+v", gotFilter)
	}

	if _, err := svc.ListProducts(context.Background(), ProductFilter{Limit: 10_000}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if gotFilter.Limit != maxProductListLimit {
		t.Fatalf("expected clamped limit %d, got %d", maxProductListLimit, gotFilter.Limit)
	}
}

func TestGetProductTranslatesNotFound(t *testing.T) {
	repo := &stubProductRepo{
		findFn: func(context.Context, string) (domain.Product, error) {
			return domain.Product{}, errRepoNotFound
		},
	}
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}

	if _, err := svc.GetProduct(context.Background(), "missing"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
	if _, err := svc.GetProduct(context.Background(), "  "); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}

func TestRecommendExcludesSelfAndHonoursLimit(t *testing.T) {
	repo := &stubProductRepo{
		findFn: func(_ context.Context, id string) (domain.Product, error) {
			p := fixedProduct(t, id, "10.00", 0)
			p.CategoryID = "cat-1"
			return p, nil
		},
		listByCategoryFn: func(_ context.Context, categoryID string, limit int) ([]domain.Product, error) {
			if categoryID != "cat-1" {
				t.Fatalf("expected category cat-1, got %q", categoryID)
			}
			out := []domain.Product{}
			for _, id := range []string{"prod-1", "prod-2", "prod-3", "prod-4"} {
				out = append(out, fixedProduct(t, id, "10.00", 0))
			}
			if len(out) > limit {
				out = out[:limit]
			}
			return out, nil
		},
	}
	svc, err := NewRecommendationService(RecommendationServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("NewRecommendationService: %v", err)
	}

	recs, err := svc.Recommend(context.Background(), "prod-1", 2)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	for _, rec := range recs {
		if rec.ID == "prod-1" {
			t.Fatal("recommendations must exclude the product itself")
		}
	}
}

func TestRecommendUncategorisedProductYieldsEmpty(t *testing.T) {
	repo := &stubProductRepo{
		findFn: func(_ context.Context, id string) (domain.Product, error) {
			return fixedProduct(t, id, "10.00", 0), nil
		},
	}
	svc, err := NewRecommendationService(RecommendationServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("NewRecommendationService: %v", err)
	}

	recs, err := svc.Recommend(context.Background(), "prod-1", 4)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected empty recommendations, got %d", len(recs))
	}
}

func TestRecommendUnknownProduct(t *testing.T) {
	repo := &stubProductRepo{
		findFn: func(context.Context, string) (domain.Product, error) {
			return domain.Product{}, errRepoNotFound
		},
	}
	svc, err := NewRecommendationService(RecommendationServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("NewRecommendationService: %v", err)
	}

	if _, err := svc.Recommend(context.Background(), "ghost", 4); !errors.Is(err, ErrRecommendationInvalidInput) {
		t.Fatalf("expected ErrRecommendationInvalidInput, got %v", err)
	}
}
