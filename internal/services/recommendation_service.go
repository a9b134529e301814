package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/trimline-home/api/internal/repositories"
)

var errRecommendationRepositoryRequired = errors.New("recommendation service: repository is required")

// ErrRecommendationInvalidInput indicates the caller supplied invalid input.
var ErrRecommendationInvalidInput = errors.New("recommendation service: invalid input")

// ErrRecommendationUnavailable indicates a backend failure.
var ErrRecommendationUnavailable = errors.New("recommendation service: unavailable")

const defaultRecommendationLimit = 6

// RecommendationServiceDeps wires the repository for related-product lookups.
type RecommendationServiceDeps struct {
	Repository repositories.ProductRepository
	Logger     Logger
}

type recommendationService struct {
	repo   repositories.ProductRepository
	logger Logger
}

// NewRecommendationService constructs a RecommendationService.
func NewRecommendationService(deps RecommendationServiceDeps) (RecommendationService, error) {
	if deps.Repository == nil {
		return nil, errRecommendationRepositoryRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &recommendationService{repo: deps.Repository, logger: logger}, nil
}

// Recommend suggests popular products from the same category, excluding the
// product itself. A product with no category yields an empty list rather than
// an error.
func (s *recommendationService) Recommend(ctx context.Context, productID string, limit int) ([]Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return nil, ErrRecommendationInvalidInput
	}
	if limit <= 0 {
		limit = defaultRecommendationLimit
	}

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, fmt.Errorf("%w: product not found", ErrRecommendationInvalidInput)
		}
		return nil, ErrRecommendationUnavailable
	}
	if strings.TrimSpace(product.CategoryID) == "" {
		return []Product{}, nil
	}

	// Fetch one extra so the product itself can be dropped without going
	// under the limit.
	candidates, err := s.repo.ListByCategory(ctx, product.CategoryID, limit+1)
	if err != nil {
		return nil, ErrRecommendationUnavailable
	}

	out := make([]Product, 0, limit)
	for _, candidate := range candidates {
		if candidate.ID == id {
			continue
		}
		out = append(out, candidate)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
