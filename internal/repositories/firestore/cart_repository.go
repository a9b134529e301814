package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/trimline-home/api/internal/domain"
	pfirestore "github.com/trimline-home/api/internal/platform/firestore"
	"github.com/trimline-home/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists carts in Firestore, one document per user.
type CartRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{provider: provider}, nil
}

type cartLineDocument struct {
	ID         string     `firestore:"id"`
	ProductID  string     `firestore:"productId"`
	SKU        string     `firestore:"sku,omitempty"`
	Name       string     `firestore:"name"`
	Mode       string     `firestore:"mode"`
	Quantity   int64      `firestore:"quantity"`
	UnitPrice  string     `firestore:"unitPrice,omitempty"`
	UnitTax    string     `firestore:"unitTax,omitempty"`
	HeightMm   int64      `firestore:"heightMm,omitempty"`
	LengthMm   int64      `firestore:"lengthMm,omitempty"`
	RatePerSqM string     `firestore:"ratePerSqM,omitempty"`
	AddedAt    time.Time  `firestore:"addedAt"`
	UpdatedAt  *time.Time `firestore:"updatedAt,omitempty"`
}

type cartDocument struct {
	Currency       string             `firestore:"currency"`
	Lines          []cartLineDocument `firestore:"lines"`
	DiscountCode   string             `firestore:"discountCode,omitempty"`
	ShippingMethod string             `firestore:"shippingMethod,omitempty"`
	CreatedAt      time.Time          `firestore:"createdAt"`
	UpdatedAt      time.Time          `firestore:"updatedAt"`
}

func encodeCart(cart domain.Cart) cartDocument {
	doc := cartDocument{
		Currency:       cart.Currency,
		DiscountCode:   strings.TrimSpace(cart.DiscountCode),
		ShippingMethod: string(cart.ShippingMethod),
		CreatedAt:      cart.CreatedAt.UTC(),
		UpdatedAt:      cart.UpdatedAt.UTC(),
	}
	for _, line := range cart.Lines {
		lineDoc := cartLineDocument{
			ID:        line.ID,
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Name:      line.Name,
			Mode:      string(line.Mode),
			Quantity:  line.Quantity,
			HeightMm:  line.HeightMm,
			LengthMm:  line.LengthMm,
			AddedAt:   line.AddedAt.UTC(),
			UpdatedAt: line.UpdatedAt,
		}
		if line.Mode == domain.PricingModeFixed {
			lineDoc.UnitPrice = encodeMoney(line.UnitPrice)
			lineDoc.UnitTax = encodeMoney(line.UnitTax)
		} else {
			lineDoc.RatePerSqM = encodeMoney(line.RatePerSqM)
		}
		doc.Lines = append(doc.Lines, lineDoc)
	}
	return doc
}

func decodeCart(userID string, doc cartDocument) (domain.Cart, error) {
	cart := domain.Cart{
		UserID:         userID,
		Currency:       doc.Currency,
		DiscountCode:   doc.DiscountCode,
		ShippingMethod: domain.ShippingMethod(doc.ShippingMethod),
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
	for _, lineDoc := range doc.Lines {
		mode, err := domain.ParsePricingMode(lineDoc.Mode)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("cart %s line %s: %w", userID, lineDoc.ID, err)
		}
		line := domain.CartLine{
			ID:        lineDoc.ID,
			ProductID: lineDoc.ProductID,
			SKU:       lineDoc.SKU,
			Name:      lineDoc.Name,
			Mode:      mode,
			Quantity:  lineDoc.Quantity,
			HeightMm:  lineDoc.HeightMm,
			LengthMm:  lineDoc.LengthMm,
			AddedAt:   lineDoc.AddedAt,
			UpdatedAt: lineDoc.UpdatedAt,
		}
		if mode == domain.PricingModeFixed {
			if line.UnitPrice, err = decodeMoney(lineDoc.UnitPrice, doc.Currency); err != nil {
				return domain.Cart{}, err
			}
			if line.UnitTax, err = decodeMoney(lineDoc.UnitTax, doc.Currency); err != nil {
				return domain.Cart{}, err
			}
		} else {
			if line.RatePerSqM, err = decodeMoney(lineDoc.RatePerSqM, doc.Currency); err != nil {
				return domain.Cart{}, err
			}
		}
		cart.Lines = append(cart.Lines, line)
	}
	return cart, nil
}

// GetCart loads a user's cart document.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	ref, err := r.doc(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.get", err)
	}
	var doc cartDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart %s: %w", userID, err)
	}
	return decodeCart(userID, doc)
}

// UpsertCart writes the cart document, enforcing the optimistic timestamp
// check inside a transaction when one is supplied.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error) {
	ref, err := r.doc(ctx, cart.UserID)
	if err != nil {
		return domain.Cart{}, err
	}

	doc := encodeCart(cart)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.OK:
			if expectedUpdatedAt != nil {
				var stored cartDocument
				if err := snap.DataTo(&stored); err != nil {
					return fmt.Errorf("decode cart %s: %w", cart.UserID, err)
				}
				if !stored.UpdatedAt.Equal(expectedUpdatedAt.UTC()) {
					return pfirestore.ConflictError("carts.upsert", fmt.Errorf("cart %s modified concurrently", cart.UserID))
				}
			}
		case codes.NotFound:
			// First write for this user.
		default:
			return err
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.upsert", err)
	}
	return cart, nil
}

// ClearCart empties the lines and selections but keeps the document so the
// created timestamp survives.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) error {
	ref, err := r.doc(ctx, userID)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "lines", Value: []cartLineDocument{}},
		{Path: "discountCode", Value: firestore.Delete},
		{Path: "shippingMethod", Value: firestore.Delete},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return pfirestore.WrapError("carts.clear", err)
}

func (r *CartRepository) doc(ctx context.Context, userID string) (*firestore.DocumentRef, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, errors.New("cart repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(cartCollection).Doc(id), nil
}
