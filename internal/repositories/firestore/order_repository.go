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

const orderCollection = "orders"

// OrderRepository persists order snapshots in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

type orderLineDocument struct {
	ProductID  string `firestore:"productId"`
	SKU        string `firestore:"sku,omitempty"`
	Name       string `firestore:"name"`
	Mode       string `firestore:"mode"`
	Quantity   int64  `firestore:"quantity"`
	HeightMm   int64  `firestore:"heightMm,omitempty"`
	LengthMm   int64  `firestore:"lengthMm,omitempty"`
	LineAmount string `firestore:"lineAmount"`
	LineTax    string `firestore:"lineTax"`
}

type componentDocument struct {
	Type     string `firestore:"type"`
	Amount   string `firestore:"amount"`
	Label    string `firestore:"label"`
	Negative bool   `firestore:"negative"`
}

type totalsDocument struct {
	Currency   string              `firestore:"currency"`
	Subtotal   string              `firestore:"subtotal"`
	Tax        string              `firestore:"tax"`
	Shipping   string              `firestore:"shipping"`
	Discount   string              `firestore:"discount"`
	Fee        string              `firestore:"fee"`
	GrandTotal string              `firestore:"grandTotal"`
	Components []componentDocument `firestore:"components"`
}

type orderDocument struct {
	Number         string              `firestore:"number"`
	UserID         string              `firestore:"userId"`
	Status         string              `firestore:"status"`
	Lines          []orderLineDocument `firestore:"lines"`
	Totals         totalsDocument      `firestore:"totals"`
	ShipTo         addressDocument     `firestore:"shipTo"`
	ShipToID       string              `firestore:"shipToId,omitempty"`
	ShippingMethod string              `firestore:"shippingMethod"`
	PaymentMethod  string              `firestore:"paymentMethod"`
	PaymentID      string              `firestore:"paymentId,omitempty"`
	GatewayOrderID string              `firestore:"gatewayOrderId,omitempty"`
	Signature      string              `firestore:"signature,omitempty"`
	Provider       string              `firestore:"provider,omitempty"`
	PlacedAt       time.Time           `firestore:"placedAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
	CancelNote     string              `firestore:"cancelNote,omitempty"`
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		Number:         order.Number,
		UserID:         order.UserID,
		Status:         string(order.Status),
		ShipToID:       order.ShipTo.ID,
		ShippingMethod: string(order.Shipping),
		PaymentMethod:  string(order.Payment.Method),
		PaymentID:      order.Payment.PaymentID,
		GatewayOrderID: order.Payment.GatewayOrderID,
		Signature:      order.Payment.Signature,
		Provider:       order.Payment.Provider,
		PlacedAt:       order.PlacedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		CancelNote:     order.CancelNote,
		ShipTo: addressDocument{
			Recipient:  order.ShipTo.Recipient,
			Phone:      order.ShipTo.Phone,
			Line1:      order.ShipTo.Line1,
			Line2:      order.ShipTo.Line2,
			City:       order.ShipTo.City,
			Region:     order.ShipTo.Region,
			PostalCode: order.ShipTo.PostalCode,
			Country:    order.ShipTo.Country,
			CreatedAt:  order.ShipTo.CreatedAt,
			UpdatedAt:  order.ShipTo.UpdatedAt,
		},
		Totals: totalsDocument{
			Currency:   order.Totals.Currency,
			Subtotal:   encodeMoney(order.Totals.Subtotal),
			Tax:        encodeMoney(order.Totals.Tax),
			Shipping:   encodeMoney(order.Totals.Shipping),
			Discount:   encodeMoney(order.Totals.Discount),
			Fee:        encodeMoney(order.Totals.Fee),
			GrandTotal: encodeMoney(order.Totals.GrandTotal),
		},
	}
	for _, component := range order.Totals.Components {
		doc.Totals.Components = append(doc.Totals.Components, componentDocument{
			Type:     string(component.Type),
			Amount:   encodeMoney(component.Amount),
			Label:    component.Label,
			Negative: component.Negative,
		})
	}
	for _, line := range order.Lines {
		doc.Lines = append(doc.Lines, orderLineDocument{
			ProductID:  line.ProductID,
			SKU:        line.SKU,
			Name:       line.Name,
			Mode:       string(line.Mode),
			Quantity:   line.Quantity,
			HeightMm:   line.HeightMm,
			LengthMm:   line.LengthMm,
			LineAmount: encodeMoney(line.LineAmount),
			LineTax:    encodeMoney(line.LineTax),
		})
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) (domain.Order, error) {
	currency := doc.Totals.Currency
	totals := domain.CartTotals{Currency: currency}
	var err error
	if totals.Subtotal, err = decodeMoney(doc.Totals.Subtotal, currency); err != nil {
		return domain.Order{}, err
	}
	if totals.Tax, err = decodeMoney(doc.Totals.Tax, currency); err != nil {
		return domain.Order{}, err
	}
	if totals.Shipping, err = decodeMoney(doc.Totals.Shipping, currency); err != nil {
		return domain.Order{}, err
	}
	if totals.Discount, err = decodeMoney(doc.Totals.Discount, currency); err != nil {
		return domain.Order{}, err
	}
	if totals.Fee, err = decodeMoney(doc.Totals.Fee, currency); err != nil {
		return domain.Order{}, err
	}
	if totals.GrandTotal, err = decodeMoney(doc.Totals.GrandTotal, currency); err != nil {
		return domain.Order{}, err
	}
	for _, component := range doc.Totals.Components {
		amount, err := decodeMoney(component.Amount, currency)
		if err != nil {
			return domain.Order{}, err
		}
		totals.Components = append(totals.Components, domain.PaymentComponent{
			Type:     domain.ComponentType(component.Type),
			Amount:   amount,
			Label:    component.Label,
			Negative: component.Negative,
		})
	}

	order := domain.Order{
		ID:     id,
		Number: doc.Number,
		UserID: doc.UserID,
		Status: domain.OrderStatus(doc.Status),
		Totals: totals,
		ShipTo: doc.ShipTo.toDomain(doc.UserID, doc.ShipToID),
		Payment: domain.PaymentReference{
			Method:         domain.PaymentMethod(doc.PaymentMethod),
			PaymentID:      doc.PaymentID,
			GatewayOrderID: doc.GatewayOrderID,
			Signature:      doc.Signature,
			Provider:       doc.Provider,
		},
		Shipping:   domain.ShippingMethod(doc.ShippingMethod),
		PlacedAt:   doc.PlacedAt,
		UpdatedAt:  doc.UpdatedAt,
		CancelNote: doc.CancelNote,
	}
	for _, lineDoc := range doc.Lines {
		amount, err := decodeMoney(lineDoc.LineAmount, currency)
		if err != nil {
			return domain.Order{}, err
		}
		tax, err := decodeMoney(lineDoc.LineTax, currency)
		if err != nil {
			return domain.Order{}, err
		}
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID:  lineDoc.ProductID,
			SKU:        lineDoc.SKU,
			Name:       lineDoc.Name,
			Mode:       domain.PricingMode(lineDoc.Mode),
			Quantity:   lineDoc.Quantity,
			HeightMm:   lineDoc.HeightMm,
			LengthMm:   lineDoc.LengthMm,
			LineAmount: amount,
			LineTax:    tax,
		})
	}
	return order, nil
}

// Insert writes a new order. The document must not already exist.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	if _, err := client.Collection(orderCollection).Doc(id).Create(ctx, encodeOrder(order)); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.insert", err)
	}
	return order, nil
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := client.Collection(orderCollection).Doc(id).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}
	return decodeOrder(id, doc)
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("order repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	query := client.Collection(orderCollection).
		Where("userId", "==", uid).
		OrderBy("placedAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var results []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		order, err := decodeOrder(snap.Ref.ID, doc)
		if err != nil {
			return nil, err
		}
		results = append(results, order)
	}
	return results, nil
}

// UpdateStatus moves the order to a new status. Transition legality is the
// order service's responsibility.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, note string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	updates := []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}
	if note != "" {
		updates = append(updates, firestore.Update{Path: "cancelNote", Value: note})
	}
	if _, err := client.Collection(orderCollection).Doc(id).Update(ctx, updates); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.updateStatus", err)
	}
	return r.FindByID(ctx, id)
}
