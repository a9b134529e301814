package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/trimline-home/api/internal/domain"
	"github.com/trimline-home/api/internal/repositories"
)

var (
	errOrderRepositoryRequired = errors.New("order service: repository is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the order does not exist or belongs to another user.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderConflict indicates the requested status change is not allowed.
var ErrOrderConflict = errors.New("order service: conflict")

// ErrOrderUnavailable indicates a backend failure.
var ErrOrderUnavailable = errors.New("order service: unavailable")

const orderNumberPrefix = "TH-"

// allowedStatusTransitions maps each status to the statuses it may move to.
// Fulfilled and cancelled orders are terminal.
var allowedStatusTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPendingPayment: {domain.OrderStatusPaid, domain.OrderStatusCancelled},
	domain.OrderStatusPaid:           {domain.OrderStatusFulfilled, domain.OrderStatusCancelled},
	domain.OrderStatusFulfilled:      {},
	domain.OrderStatusCancelled:      {},
}

// OrderServiceDeps wires the repository for order operations.
type OrderServiceDeps struct {
	Repository  repositories.OrderRepository
	Clock       Clock
	Logger      Logger
	IDGenerator IDGenerator
}

type orderService struct {
	repo   repositories.OrderRepository
	now    func() time.Time
	newID  func() string
	logger Logger
}

// NewOrderService constructs an OrderService.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Repository == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &orderService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateFromCart freezes the cart and precomputed totals into an order record.
// The snapshot is immutable: later catalog or rate changes never touch it.
func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if len(cmd.Cart.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.ShipTo.ID) == "" {
		return Order{}, fmt.Errorf("%w: shipping address is required", ErrOrderInvalidInput)
	}
	if _, err := domain.ParseShippingMethod(string(cmd.Shipping)); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	if _, err := domain.ParsePaymentMethod(string(cmd.Payment.Method)); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	if cmd.Payment.Method.RequiresCapture() && cmd.Payment.PaymentID == "" {
		return Order{}, fmt.Errorf("%w: captured payment reference is required", ErrOrderInvalidInput)
	}

	lines := make([]OrderLine, 0, len(cmd.Cart.Lines))
	for _, line := range cmd.Cart.Lines {
		if err := line.Validate(); err != nil {
			return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		lines = append(lines, OrderLine{
			ProductID:  line.ProductID,
			SKU:        line.SKU,
			Name:       line.Name,
			Mode:       line.Mode,
			Quantity:   line.Quantity,
			HeightMm:   line.HeightMm,
			LengthMm:   line.LengthMm,
			LineAmount: line.LineAmount(),
			LineTax:    line.LineTax(),
		})
	}

	status := domain.OrderStatusPaid
	if !cmd.Payment.Method.RequiresCapture() {
		status = domain.OrderStatusPendingPayment
	}

	now := s.now()
	id := strings.TrimSpace(s.newID())
	if id == "" {
		id = ulid.Make().String()
	}
	order := Order{
		ID:        id,
		Number:    orderNumberPrefix + id,
		UserID:    uid,
		Status:    status,
		Lines:     lines,
		Totals:    cmd.Totals,
		ShipTo:    cmd.ShipTo,
		Shipping:  cmd.Shipping,
		Payment:   cmd.Payment,
		PlacedAt:  now,
		UpdatedAt: now,
	}

	saved, err := s.repo.Insert(ctx, order)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderID": saved.ID,
		"userID":  uid,
		"status":  string(saved.Status),
		"total":   saved.Totals.GrandTotal.String(),
	})
	return saved, nil
}

func (s *orderService) GetOrder(ctx context.Context, userID string, orderID string) (Order, error) {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(orderID)
	if uid == "" || id == "" {
		return Order{}, ErrOrderInvalidInput
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	// Ownership check before anything leaks to the caller.
	if order.UserID != uid {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID string, limit int) ([]Order, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, ErrOrderInvalidInput
	}
	orders, err := s.repo.ListByUser(ctx, uid, limit)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

// Cancel moves an order to cancelled when the transition map allows it.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.GetOrder(ctx, cmd.UserID, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if !transitionAllowed(order.Status, domain.OrderStatusCancelled) {
		return Order{}, fmt.Errorf("%w: cannot cancel a %s order", ErrOrderConflict, order.Status)
	}

	updated, err := s.repo.UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled, strings.TrimSpace(cmd.Reason))
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"orderID": updated.ID,
		"userID":  order.UserID,
	})
	return updated, nil
}

func transitionAllowed(from, to OrderStatus) bool {
	for _, allowed := range allowedStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return ErrOrderConflict
		case repoErr.IsUnavailable():
			return ErrOrderUnavailable
		}
	}
	return ErrOrderUnavailable
}
