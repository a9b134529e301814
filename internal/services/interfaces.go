package services

import (
	"context"
	"time"

	domain "github.com/trimline-home/api/internal/domain"
	"github.com/trimline-home/api/internal/payments"
	"github.com/trimline-home/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing
// dependency direction.
type (
	Money            = domain.Money
	Cart             = domain.Cart
	CartLine         = domain.CartLine
	CartTotals       = domain.CartTotals
	PaymentComponent = domain.PaymentComponent
	ComponentType    = domain.ComponentType
	PricingMode      = domain.PricingMode
	ShippingMethod   = domain.ShippingMethod
	PaymentMethod    = domain.PaymentMethod
	Address          = domain.Address
	Order            = domain.Order
	OrderLine        = domain.OrderLine
	OrderStatus      = domain.OrderStatus
	Product          = domain.Product
	Category         = domain.Category
	PaymentReference = domain.PaymentReference

	CaptureRequest = payments.CaptureRequest
	CaptureResult  = payments.CaptureResult
	PaymentGateway = payments.Gateway

	DependencyStatus = repositories.DependencyStatus
)

// Clock supplies the current time; services normalise it to UTC.
type Clock func() time.Time

// Logger is the lightweight structured event hook services emit through.
type Logger func(ctx context.Context, event string, fields map[string]any)

// IDGenerator mints identifiers for new entities.
type IDGenerator func() string

// CartView pairs a cart with the totals derived from it. Totals are computed
// on every read, never stored.
type CartView struct {
	Cart   Cart
	Totals CartTotals
}

// CartService manages mutable cart state; every mutation returns the fresh
// view with recomputed totals.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (CartView, error)
	AddOrUpdateLine(ctx context.Context, cmd UpsertCartLineCommand) (CartView, error)
	RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (CartView, error)
	ApplyDiscountCode(ctx context.Context, cmd ApplyDiscountCommand) (CartView, bool, error)
	SetShippingMethod(ctx context.Context, cmd SetShippingMethodCommand) (CartView, error)
	ClearCart(ctx context.Context, userID string) error
}

// UpsertCartLineCommand adds a product to the cart or updates an existing
// line. LengthMm applies only to variable-dimension products.
type UpsertCartLineCommand struct {
	UserID            string
	LineID            *string
	ProductID         string
	Quantity          int64
	LengthMm          int64
	ExpectedUpdatedAt *time.Time
}

// RemoveCartLineCommand drops a line from the cart.
type RemoveCartLineCommand struct {
	UserID            string
	LineID            string
	ExpectedUpdatedAt *time.Time
}

// ApplyDiscountCommand stores a discount code on the cart. Unknown codes are
// not an error; the boolean result reports whether the code applied.
type ApplyDiscountCommand struct {
	UserID string
	Code   string
}

// SetShippingMethodCommand selects the delivery option.
type SetShippingMethodCommand struct {
	UserID string
	Method string
}

// AddressService manages saved addresses and the single-default policy.
type AddressService interface {
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	GetAddress(ctx context.Context, userID string, addressID string) (Address, error)
	UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error)
	SetDefaultAddress(ctx context.Context, userID string, addressID string) (Address, error)
	DeleteAddress(ctx context.Context, cmd DeleteAddressCommand) error
	ResolveCheckoutAddress(ctx context.Context, userID string, explicitID string) (Address, error)
}

// UpsertAddressCommand creates or updates an address.
type UpsertAddressCommand struct {
	UserID    string
	AddressID *string
	Address   Address
	IsDefault bool
}

// DeleteAddressCommand removes an address; ReplacementID optionally names the
// address promoted to default when the deleted one held the flag.
type DeleteAddressCommand struct {
	UserID        string
	AddressID     string
	ReplacementID string
}

// OrderService owns the immutable order records produced by checkout.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, userID string, orderID string) (Order, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// CreateOrderCommand freezes a cart into an order. Totals arrive precomputed
// from the checkout flow so the order records exactly what the buyer saw.
type CreateOrderCommand struct {
	UserID   string
	Cart     Cart
	Totals   CartTotals
	ShipTo   Address
	Shipping ShippingMethod
	Payment  PaymentReference
}

// CancelOrderCommand cancels an order prior to fulfilment.
type CancelOrderCommand struct {
	UserID  string
	OrderID string
	Reason  string
}

// CheckoutStage names a step of the checkout state machine.
type CheckoutStage string

const (
	StageAddressSelection       CheckoutStage = "address_selection"
	StagePaymentMethodSelection CheckoutStage = "payment_method_selection"
	StageReady                  CheckoutStage = "ready"
	StagePaymentCollection      CheckoutStage = "payment_collection"
	StageOrderSubmission        CheckoutStage = "order_submission"
	StageConfirmed              CheckoutStage = "confirmed"
	StageFailed                 CheckoutStage = "failed"
	// StagePostCaptureFailure marks the severe case where the payment was
	// captured but the order record could not be created. It is terminal and
	// retains the gateway references for manual reconciliation.
	StagePostCaptureFailure CheckoutStage = "post_capture_failure"
)

// CheckoutSession is the explicit state object for one checkout attempt.
type CheckoutSession struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	Stage         CheckoutStage     `json:"stage"`
	Address       *Address          `json:"address,omitempty"`
	PaymentMethod PaymentMethod     `json:"paymentMethod,omitempty"`
	Totals        *CartTotals       `json:"totals,omitempty"`
	Payment       *PaymentReference `json:"payment,omitempty"`
	OrderID       string            `json:"orderId,omitempty"`
	OrderNumber   string            `json:"orderNumber,omitempty"`
	FailureReason string            `json:"failureReason,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// CheckoutService drives the checkout state machine for one user at a time.
type CheckoutService interface {
	StartCheckout(ctx context.Context, userID string) (CheckoutSession, error)
	Session(ctx context.Context, userID string) (CheckoutSession, error)
	SelectAddress(ctx context.Context, userID string, addressID string) (CheckoutSession, error)
	SelectPaymentMethod(ctx context.Context, userID string, method string) (CheckoutSession, error)
	Back(ctx context.Context, userID string) (CheckoutSession, error)
	Submit(ctx context.Context, userID string) (CheckoutSession, error)
	Retry(ctx context.Context, userID string) (CheckoutSession, error)
}

// CatalogService reads the storefront catalog.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	CategoryID string
	Limit      int
}

// RecommendationService suggests related products.
type RecommendationService interface {
	Recommend(ctx context.Context, productID string, limit int) ([]Product, error)
}

// SystemService aggregates dependency health for the readiness endpoint.
type SystemService interface {
	CheckReadiness(ctx context.Context) (ReadinessReport, error)
}

// ReadinessReport is the readiness endpoint payload.
type ReadinessReport struct {
	Healthy      bool               `json:"healthy"`
	Dependencies []DependencyStatus `json:"dependencies"`
	CheckedAt    time.Time          `json:"checkedAt"`
}
