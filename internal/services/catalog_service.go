package services

import (
	"context"
	"errors"
	"strings"

	"github.com/trimline-home/api/internal/repositories"
)

var errCatalogRepositoryRequired = errors.New("catalog service: repository is required")

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates the product does not exist.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogUnavailable indicates a backend failure.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

const (
	defaultProductListLimit = 24
	maxProductListLimit     = 100
)

// CatalogServiceDeps wires the repository for catalog reads.
type CatalogServiceDeps struct {
	Repository repositories.ProductRepository
	Logger     Logger
}

type catalogService struct {
	repo   repositories.ProductRepository
	logger Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Repository == nil {
		return nil, errCatalogRepositoryRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{repo: deps.Repository, logger: logger}, nil
}

// ListProducts lists active products, most popular first.
func (s *catalogService) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	limit := clampLimit(filter.Limit)
	products, err := s.repo.List(ctx, repositories.ProductListFilter{
		CategoryID: strings.TrimSpace(filter.CategoryID),
		ActiveOnly: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return Product{}, ErrCatalogInvalidInput
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	if categories == nil {
		categories = []Category{}
	}
	return categories, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultProductListLimit
	}
	if limit > maxProductListLimit {
		return maxProductListLimit
	}
	return limit
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCatalogNotFound
		case repoErr.IsUnavailable():
			return ErrCatalogUnavailable
		}
	}
	return ErrCatalogUnavailable
}
