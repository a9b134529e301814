package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/trimline-home/api/internal/domain"
	pfirestore "github.com/trimline-home/api/internal/platform/firestore"
	"github.com/trimline-home/api/internal/repositories"
)

const (
	productCollection  = "products"
	categoryCollection = "categories"
)

// ProductRepository reads the catalog from Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{provider: provider}, nil
}

type productDocument struct {
	SKU         string    `firestore:"sku"`
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	CategoryID  string    `firestore:"categoryId"`
	Mode        string    `firestore:"mode"`
	Currency    string    `firestore:"currency"`
	UnitPrice   string    `firestore:"unitPrice,omitempty"`
	TaxRateBps  int64     `firestore:"taxRateBps,omitempty"`
	HeightMm    int64     `firestore:"heightMm,omitempty"`
	RatePerSqM  string    `firestore:"ratePerSqM,omitempty"`
	Popularity  int64     `firestore:"popularity"`
	Active      bool      `firestore:"active"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func decodeProduct(id string, doc productDocument) (domain.Product, error) {
	mode, err := domain.ParsePricingMode(doc.Mode)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, err)
	}
	product := domain.Product{
		ID:          id,
		SKU:         doc.SKU,
		Name:        doc.Name,
		Description: doc.Description,
		CategoryID:  doc.CategoryID,
		Mode:        mode,
		TaxRateBps:  doc.TaxRateBps,
		HeightMm:    doc.HeightMm,
		Popularity:  doc.Popularity,
		Active:      doc.Active,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if product.UnitPrice, err = decodeMoney(doc.UnitPrice, doc.Currency); err != nil {
		return domain.Product{}, err
	}
	if product.RatePerSqM, err = decodeMoney(doc.RatePerSqM, doc.Currency); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// FindByID loads one product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	snap, err := client.Collection(productCollection).Doc(id).Get(ctx)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.get", err)
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	return decodeProduct(id, doc)
}

// List returns catalog entries matching the filter, most popular first.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	query := client.Collection(productCollection).Query
	if filter.CategoryID != "" {
		query = query.Where("categoryId", "==", filter.CategoryID)
	}
	if filter.ActiveOnly {
		query = query.Where("active", "==", true)
	}
	query = query.OrderBy("popularity", firestore.Desc)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	return r.collect(ctx, query, "products.list")
}

// ListByCategory returns active products in a category, most popular first.
func (r *ProductRepository) ListByCategory(ctx context.Context, categoryID string, limit int) ([]domain.Product, error) {
	if strings.TrimSpace(categoryID) == "" {
		return nil, errors.New("product repository: category id is required")
	}
	return r.List(ctx, repositories.ProductListFilter{
		CategoryID: categoryID,
		ActiveOnly: true,
		Limit:      limit,
	})
}

// ListCategories returns all categories ordered by name.
func (r *ProductRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(categoryCollection).OrderBy("name", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var results []domain.Category
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("categories.list", err)
		}
		var doc struct {
			Name string `firestore:"name"`
			Slug string `firestore:"slug"`
		}
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode category %s: %w", snap.Ref.ID, err)
		}
		results = append(results, domain.Category{ID: snap.Ref.ID, Name: doc.Name, Slug: doc.Slug})
	}
	return results, nil
}

func (r *ProductRepository) collect(ctx context.Context, query firestore.Query, op string) ([]domain.Product, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var results []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError(op, err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		product, err := decodeProduct(snap.Ref.ID, doc)
		if err != nil {
			return nil, err
		}
		results = append(results, product)
	}
	return results, nil
}
