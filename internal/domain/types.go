package domain

import (
	"fmt"
	"strings"
	"time"
)

// PricingMode selects how a cart line is priced.
type PricingMode string

const (
	// PricingModeFixed prices the line as unit price times quantity with a
	// precomputed per-unit tax.
	PricingModeFixed PricingMode = "fixed"
	// PricingModeVariableDimension prices the line from the product's fixed
	// height, the customer-chosen length, and a tax-inclusive rate per square
	// metre.
	PricingModeVariableDimension PricingMode = "variable_dimension"
)

// ParsePricingMode rejects anything outside the two known modes.
func ParsePricingMode(value string) (PricingMode, error) {
	switch PricingMode(strings.ToLower(strings.TrimSpace(value))) {
	case PricingModeFixed:
		return PricingModeFixed, nil
	case PricingModeVariableDimension:
		return PricingModeVariableDimension, nil
	default:
		return "", fmt.Errorf("unknown pricing mode %q", value)
	}
}

// ShippingMethod is a delivery option the buyer picks at checkout.
type ShippingMethod string

const (
	ShippingMethodStandard  ShippingMethod = "standard"
	ShippingMethodGround    ShippingMethod = "ground"
	ShippingMethodExpress   ShippingMethod = "express"
	ShippingMethodOvernight ShippingMethod = "overnight"
)

// ParseShippingMethod is strict: unknown codes are an error, never a silent
// fallback to a default rate.
func ParseShippingMethod(value string) (ShippingMethod, error) {
	switch ShippingMethod(strings.ToLower(strings.TrimSpace(value))) {
	case ShippingMethodStandard:
		return ShippingMethodStandard, nil
	case ShippingMethodGround:
		return ShippingMethodGround, nil
	case ShippingMethodExpress:
		return ShippingMethodExpress, nil
	case ShippingMethodOvernight:
		return ShippingMethodOvernight, nil
	default:
		return "", fmt.Errorf("unknown shipping method %q", value)
	}
}

// PaymentMethod is how the buyer pays.
type PaymentMethod string

const (
	PaymentMethodCard              PaymentMethod = "card"
	PaymentMethodInternationalCard PaymentMethod = "international_card"
	PaymentMethodUPI               PaymentMethod = "upi"
	PaymentMethodNetbanking        PaymentMethod = "netbanking"
	PaymentMethodWallet            PaymentMethod = "wallet"
	PaymentMethodCOD               PaymentMethod = "cod"
)

// ParsePaymentMethod is strict in the same way as ParseShippingMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(value))) {
	case PaymentMethodCard:
		return PaymentMethodCard, nil
	case PaymentMethodInternationalCard:
		return PaymentMethodInternationalCard, nil
	case PaymentMethodUPI:
		return PaymentMethodUPI, nil
	case PaymentMethodNetbanking:
		return PaymentMethodNetbanking, nil
	case PaymentMethodWallet:
		return PaymentMethodWallet, nil
	case PaymentMethodCOD:
		return PaymentMethodCOD, nil
	default:
		return "", fmt.Errorf("unknown payment method %q", value)
	}
}

// RequiresCapture reports whether the method needs an online capture step.
// Cash on delivery settles offline.
func (m PaymentMethod) RequiresCapture() bool {
	return m != PaymentMethodCOD
}

// ComponentType identifies a payment component in a totals breakdown.
type ComponentType string

const (
	ComponentTypeTax      ComponentType = "TAX"
	ComponentTypeShipping ComponentType = "SHIPPING"
	ComponentTypeDiscount ComponentType = "DISCOUNT"
	ComponentTypeFee      ComponentType = "FEE"
)

// PaymentComponent is one line of the amount breakdown shown to the buyer and
// frozen onto the order. Amount is always non-negative; Negative marks the
// component as subtracted from the total.
type PaymentComponent struct {
	Type     ComponentType `json:"type"`
	Amount   Money         `json:"amount"`
	Label    string        `json:"label"`
	Negative bool          `json:"negative,omitempty"`
}

// CartTotals is the full computed breakdown for a cart. It is derived on every
// read and never stored as mutable state.
type CartTotals struct {
	Currency   string             `json:"currency"`
	Subtotal   Money              `json:"subtotal"`
	Tax        Money              `json:"tax"`
	Shipping   Money              `json:"shipping"`
	Discount   Money              `json:"discount"`
	Fee        Money              `json:"fee"`
	GrandTotal Money              `json:"grandTotal"`
	Components []PaymentComponent `json:"components"`
}

// CartLine is one entry in a cart. Exactly one pricing mode's fields are set.
type CartLine struct {
	ID        string      `json:"id"`
	ProductID string      `json:"productId"`
	SKU       string      `json:"sku,omitempty"`
	Name      string      `json:"name"`
	Mode      PricingMode `json:"mode"`
	Quantity  int64       `json:"quantity"`

	// Fixed mode.
	UnitPrice Money `json:"unitPrice,omitempty"`
	UnitTax   Money `json:"unitTax,omitempty"`

	// Variable-dimension mode. RatePerSqM already includes tax.
	HeightMm   int64 `json:"heightMm,omitempty"`
	LengthMm   int64 `json:"lengthMm,omitempty"`
	RatePerSqM Money `json:"ratePerSqM,omitempty"`

	AddedAt   time.Time  `json:"addedAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Cart is a user's open cart. Totals are not stored here; they are computed
// from the lines and the selections below.
type Cart struct {
	UserID         string         `json:"userId"`
	Currency       string         `json:"currency"`
	Lines          []CartLine     `json:"lines"`
	DiscountCode   string         `json:"discountCode,omitempty"`
	ShippingMethod ShippingMethod `json:"shippingMethod,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Address is a saved delivery address.
type Address struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Recipient  string    `json:"recipient"`
	Phone      string    `json:"phone,omitempty"`
	Line1      string    `json:"line1"`
	Line2      string    `json:"line2,omitempty"`
	City       string    `json:"city"`
	Region     string    `json:"region,omitempty"`
	PostalCode string    `json:"postalCode"`
	Country    string    `json:"country"`
	IsDefault  bool      `json:"isDefault"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Product is a catalog entry. Variable-dimension products carry the fixed
// height and the tax-inclusive rate used to price custom lengths.
type Product struct {
	ID          string      `json:"id"`
	SKU         string      `json:"sku"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	CategoryID  string      `json:"categoryId"`
	Mode        PricingMode `json:"mode"`
	UnitPrice   Money       `json:"unitPrice,omitempty"`
	TaxRateBps  int64       `json:"taxRateBps,omitempty"`
	HeightMm    int64       `json:"heightMm,omitempty"`
	RatePerSqM  Money       `json:"ratePerSqM,omitempty"`
	Popularity  int64       `json:"popularity"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Category groups products for browsing and recommendations.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// OrderStatus tracks an order after submission.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusFulfilled      OrderStatus = "fulfilled"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// OrderLine is a cart line frozen onto an order.
type OrderLine struct {
	ProductID  string      `json:"productId"`
	SKU        string      `json:"sku,omitempty"`
	Name       string      `json:"name"`
	Mode       PricingMode `json:"mode"`
	Quantity   int64       `json:"quantity"`
	HeightMm   int64       `json:"heightMm,omitempty"`
	LengthMm   int64       `json:"lengthMm,omitempty"`
	LineAmount Money       `json:"lineAmount"`
	LineTax    Money       `json:"lineTax"`
}

// PaymentReference holds the gateway identifiers returned by a successful
// capture. They are retained even when order creation fails afterwards.
type PaymentReference struct {
	Method         PaymentMethod `json:"method"`
	PaymentID      string        `json:"paymentId,omitempty"`
	GatewayOrderID string        `json:"gatewayOrderId,omitempty"`
	Signature      string        `json:"signature,omitempty"`
	Provider       string        `json:"provider,omitempty"`
}

// Order is the immutable record created at the end of checkout. Totals and
// components are snapshots; later catalog changes never touch them.
type Order struct {
	ID         string           `json:"id"`
	Number     string           `json:"number"`
	UserID     string           `json:"userId"`
	Status     OrderStatus      `json:"status"`
	Lines      []OrderLine      `json:"lines"`
	Totals     CartTotals       `json:"totals"`
	ShipTo     Address          `json:"shipTo"`
	Shipping   ShippingMethod   `json:"shippingMethod"`
	Payment    PaymentReference `json:"payment"`
	PlacedAt   time.Time        `json:"placedAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	CancelNote string           `json:"cancelNote,omitempty"`
}
