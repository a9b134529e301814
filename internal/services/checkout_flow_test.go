package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/trimline-home/api/internal/domain"
	"github.com/trimline-home/api/internal/payments"
)

type stubCartService struct {
	getFn   func(ctx context.Context, userID string) (CartView, error)
	clearFn func(ctx context.Context, userID string) error
	clears  int
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, userID string) (CartView, error) {
	return s.getFn(ctx, userID)
}

func (s *stubCartService) AddOrUpdateLine(context.Context, UpsertCartLineCommand) (CartView, error) {
	return CartView{}, errors.New("not expected")
}

func (s *stubCartService) RemoveLine(context.Context, RemoveCartLineCommand) (CartView, error) {
	return CartView{}, errors.New("not expected")
}

func (s *stubCartService) ApplyDiscountCode(context.Context, ApplyDiscountCommand) (CartView, bool, error) {
	return CartView{}, false, errors.New("not expected")
}

func (s *stubCartService) SetShippingMethod(context.Context, SetShippingMethodCommand) (CartView, error) {
	return CartView{}, errors.New("not expected")
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	s.clears++
	if s.clearFn != nil {
		return s.clearFn(ctx, userID)
	}
	return nil
}

type stubAddressService struct {
	resolveFn func(ctx context.Context, userID, explicitID string) (Address, error)
}

func (s *stubAddressService) ListAddresses(context.Context, string) ([]Address, error) {
	return nil, errors.New("not expected")
}

func (s *stubAddressService) GetAddress(context.Context, string, string) (Address, error) {
	return Address{}, errors.New("not expected")
}

func (s *stubAddressService) UpsertAddress(context.Context, UpsertAddressCommand) (Address, error) {
	return Address{}, errors.New("not expected")
}

func (s *stubAddressService) SetDefaultAddress(context.Context, string, string) (Address, error) {
	return Address{}, errors.New("not expected")
}

func (s *stubAddressService) DeleteAddress(context.Context, DeleteAddressCommand) error {
	return errors.New("not expected")
}

func (s *stubAddressService) ResolveCheckoutAddress(ctx context.Context, userID, explicitID string) (Address, error) {
	return s.resolveFn(ctx, userID, explicitID)
}

type stubOrderService struct {
	createFn func(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	creates  int
}

func (s *stubOrderService) CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	s.creates++
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(context.Context, string, string) (Order, error) {
	return Order{}, errors.New("not expected")
}

func (s *stubOrderService) ListOrders(context.Context, string, int) ([]Order, error) {
	return nil, errors.New("not expected")
}

func (s *stubOrderService) Cancel(context.Context, CancelOrderCommand) (Order, error) {
	return Order{}, errors.New("not expected")
}

type stubGateway struct {
	captureFn func(ctx context.Context, req CaptureRequest) CaptureResult
	captures  int
}

func (s *stubGateway) Capture(ctx context.Context, req CaptureRequest) CaptureResult {
	s.captures++
	if s.captureFn != nil {
		return s.captureFn(ctx, req)
	}
	return CaptureResult{
		Success:        true,
		Provider:       "stripe",
		PaymentID:      "pay_1",
		GatewayOrderID: "gw_1",
		Signature:      "sig_1",
	}
}

type checkoutFixture struct {
	carts   *stubCartService
	orders  *stubOrderService
	gateway *stubGateway
	svc     CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	carts := &stubCartService{
		getFn: func(_ context.Context, userID string) (CartView, error) {
			cart := checkoutCart(t)
			cart.UserID = userID
			calc := newCalculator(t)
			totals, err := calc.Totals(cart, domain.PaymentMethodCard)
			if err != nil {
				t.Fatalf("Totals: %v", err)
			}
			return CartView{Cart: cart, Totals: totals}, nil
		},
	}
	addresses := &stubAddressService{
		resolveFn: func(_ context.Context, _ string, explicitID string) (Address, error) {
			id := explicitID
			if id == "" {
				id = "addr-default"
			}
			return validTestAddress(id, true, testClock()), nil
		},
	}
	orders := &stubOrderService{
		createFn: func(_ context.Context, cmd CreateOrderCommand) (Order, error) {
			return Order{
				ID:      "ord-1",
				Number:  "TH-01TEST",
				UserID:  cmd.UserID,
				Status:  domain.OrderStatusPaid,
				Totals:  cmd.Totals,
				Payment: cmd.Payment,
			}, nil
		},
	}
	gateway := &stubGateway{}

	svc, err := NewCheckoutFlow(CheckoutFlowDeps{
		Carts:      carts,
		Addresses:  addresses,
		Orders:     orders,
		Calculator: newCalculator(t),
		Gateway:    gateway,
		Clock:      testClock,
	})
	if err != nil {
		t.Fatalf("NewCheckoutFlow: %v", err)
	}
	return &checkoutFixture{carts: carts, orders: orders, gateway: gateway, svc: svc}
}

func advanceToReady(t *testing.T, fx *checkoutFixture, method string) CheckoutSession {
	t.Helper()
	ctx := context.Background()
	if _, err := fx.svc.StartCheckout(ctx, "user-1"); err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	if _, err := fx.svc.SelectAddress(ctx, "user-1", ""); err != nil {
		t.Fatalf("SelectAddress: %v", err)
	}
	session, err := fx.svc.SelectPaymentMethod(ctx, "user-1", method)
	if err != nil {
		t.Fatalf("SelectPaymentMethod: %v", err)
	}
	if session.Stage != StageReady {
		t.Fatalf("expected ready, got %q", session.Stage)
	}
	return session
}

func TestCheckoutHappyPathCard(t *testing.T) {
	fx := newCheckoutFixture(t)
	advanceToReady(t, fx, "card")

	session, err := fx.svc.Submit(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if session.Stage != StageConfirmed {
		t.Fatalf("expected confirmed, got %q (reason %q)", session.Stage, session.FailureReason)
	}
	if fx.gateway.captures != 1 {
		t.Fatalf("expected one capture, got %d", fx.gateway.captures)
	}
	if session.Payment == nil || session.Payment.PaymentID != "pay_1" || session.Payment.Signature != "sig_1" {
		t.Fatalf("expected payment references on session, got %+v", session.Payment)
	}
	if session.OrderNumber != "TH-01TEST" {
		t.Fatalf("expected order number, got %q", session.OrderNumber)
	}
	if fx.carts.clears != 1 {
		t.Fatalf("expected cart cleared once, got %d", fx.carts.clears)
	}
}

func TestCheckoutCODSkipsCapture(t *testing.T) {
	fx := newCheckoutFixture(t)
	advanceToReady(t, fx, "cod")

	session, err := fx.svc.Submit(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if session.Stage != StageConfirmed {
		t.Fatalf("expected confirmed, got %q", session.Stage)
	}
	if fx.gateway.captures != 0 {
		t.Fatalf("COD must not capture, captures=%d", fx.gateway.captures)
	}
	if session.Payment == nil || session.Payment.Method != domain.PaymentMethodCOD {
		t.Fatalf("expected COD payment reference, got %+v", session.Payment)
	}
	if session.Payment.PaymentID != "" {
		t.Fatalf("COD must carry no gateway references, got %+v", session.Payment)
	}
}

func TestCheckoutCODIncludesFeeInTotals(t *testing.T) {
	fx := newCheckoutFixture(t)
	session := advanceToReady(t, fx, "cod")

	if session.Totals == nil {
		t.Fatal("expected totals on session")
	}
	// 60.00 + 3.00 tax + free shipping + 4.99 COD fee.
	assertMoney(t, session.Totals.Fee, "4.99")
	assertMoney(t, session.Totals.GrandTotal, "67.99")
}

func TestCheckoutDeclineThenRetrySucceeds(t *testing.T) {
	fx := newCheckoutFixture(t)
	decline := true
	fx.gateway.captureFn = func(context.Context, CaptureRequest) CaptureResult {
		if decline {
			return CaptureResult{Success: false, FailureKind: payments.FailureDeclined, Message: "card declined"}
		}
		return CaptureResult{Success: true, Provider: "stripe", PaymentID: "pay_2", GatewayOrderID: "gw_2", Signature: "sig_2"}
	}
	advanceToReady(t, fx, "card")
	ctx := context.Background()

	session, err := fx.svc.Submit(ctx, "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if session.Stage != StageFailed || session.FailureReason != FailureReasonDeclined {
		t.Fatalf("expected failed/payment_declined, got %q/%q", session.Stage, session.FailureReason)
	}
	if fx.orders.creates != 0 {
		t.Fatalf("declined capture must not create an order, creates=%d", fx.orders.creates)
	}

	session, err = fx.svc.Retry(ctx, "user-1")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if session.Stage != StageReady || session.FailureReason != "" {
		t.Fatalf("expected clean ready session, got %q/%q", session.Stage, session.FailureReason)
	}
	if session.PaymentMethod != domain.PaymentMethodCard {
		t.Fatal("retry must keep the payment method selection")
	}

	decline = false
	session, err = fx.svc.Submit(ctx, "user-1")
	if err != nil {
		t.Fatalf("Submit after retry: %v", err)
	}
	if session.Stage != StageConfirmed {
		t.Fatalf("expected confirmed, got %q", session.Stage)
	}
}

func TestCheckoutTimeoutIsDistinctFailure(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.gateway.captureFn = func(context.Context, CaptureRequest) CaptureResult {
		return CaptureResult{Success: false, FailureKind: payments.FailureTimeout, Message: "deadline exceeded"}
	}
	advanceToReady(t, fx, "card")

	session, err := fx.svc.Submit(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if session.FailureReason != FailureReasonTimeout {
		t.Fatalf("expected payment_timeout, got %q", session.FailureReason)
	}
}

func TestCheckoutIncompleteCaptureRefsTreatedAsFailure(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.gateway.captureFn = func(context.Context, CaptureRequest) CaptureResult {
		// Success without a signature violates the capture contract.
		return CaptureResult{Success: true, Provider: "stripe", PaymentID: "pay_3", GatewayOrderID: "gw_3"}
	}
	advanceToReady(t, fx, "card")

	session, err := fx.svc.Submit(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if session.Stage != StageFailed || session.FailureReason != FailureReasonIncompleteRefs {
		t.Fatalf("expected failed/payment_incomplete, got %q/%q", session.Stage, session.FailureReason)
	}
	if fx.orders.creates != 0 {
		t.Fatalf("incomplete capture must not create an order, creates=%d", fx.orders.creates)
	}
}

func TestCheckoutPostCaptureOrderFailureIsTerminal(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.orders.createFn = func(context.Context, CreateOrderCommand) (Order, error) {
		return Order{}, ErrOrderUnavailable
	}
	advanceToReady(t, fx, "card")
	ctx := context.Background()

	session, err := fx.svc.Submit(ctx, "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if session.Stage != StagePostCaptureFailure {
		t.Fatalf("expected post_capture_failure, got %q", session.Stage)
	}
	if session.Payment == nil || session.Payment.PaymentID != "pay_1" {
		t.Fatalf("payment references must survive for reconciliation, got %+v", session.Payment)
	}

	if _, err := fx.svc.Retry(ctx, "user-1"); !errors.Is(err, ErrCheckoutWrongStage) {
		t.Fatalf("retry must be rejected, got %v", err)
	}
	if _, err := fx.svc.Back(ctx, "user-1"); !errors.Is(err, ErrCheckoutWrongStage) {
		t.Fatalf("back must be rejected, got %v", err)
	}
}

func TestCheckoutCODOrderFailureIsRetryable(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.orders.createFn = func(context.Context, CreateOrderCommand) (Order, error) {
		return Order{}, ErrOrderUnavailable
	}
	advanceToReady(t, fx, "cod")

	session, err := fx.svc.Submit(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if session.Stage != StageFailed || session.FailureReason != FailureReasonOrderSubmission {
		t.Fatalf("expected failed/order_submission_failed, got %q/%q", session.Stage, session.FailureReason)
	}
	if _, err := fx.svc.Retry(context.Background(), "user-1"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
}

func TestCheckoutBackNavigation(t *testing.T) {
	fx := newCheckoutFixture(t)
	advanceToReady(t, fx, "card")
	ctx := context.Background()

	session, err := fx.svc.Back(ctx, "user-1")
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if session.Stage != StagePaymentMethodSelection {
		t.Fatalf("expected payment_method_selection, got %q", session.Stage)
	}

	session, err = fx.svc.Back(ctx, "user-1")
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if session.Stage != StageAddressSelection {
		t.Fatalf("expected address_selection, got %q", session.Stage)
	}
	if session.PaymentMethod != "" {
		t.Fatal("stepping back past payment selection must clear the method")
	}

	if _, err := fx.svc.Back(ctx, "user-1"); !errors.Is(err, ErrCheckoutWrongStage) {
		t.Fatalf("expected ErrCheckoutWrongStage at the first stage, got %v", err)
	}
}

func TestCheckoutBackBlockedDuringSubmission(t *testing.T) {
	fx := newCheckoutFixture(t)
	var backErr error
	fx.gateway.captureFn = func(context.Context, CaptureRequest) CaptureResult {
		// The session is busy while capture runs; navigation must be refused.
		_, backErr = fx.svc.Back(context.Background(), "user-1")
		return CaptureResult{Success: true, Provider: "stripe", PaymentID: "pay_1", GatewayOrderID: "gw_1", Signature: "sig_1"}
	}
	advanceToReady(t, fx, "card")

	if _, err := fx.svc.Submit(context.Background(), "user-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !errors.Is(backErr, ErrCheckoutBusy) {
		t.Fatalf("expected ErrCheckoutBusy during capture, got %v", backErr)
	}
}

func TestCheckoutSubmitRequiresReadyStage(t *testing.T) {
	fx := newCheckoutFixture(t)
	ctx := context.Background()
	if _, err := fx.svc.StartCheckout(ctx, "user-1"); err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}

	if _, err := fx.svc.Submit(ctx, "user-1"); !errors.Is(err, ErrCheckoutWrongStage) {
		t.Fatalf("expected ErrCheckoutWrongStage, got %v", err)
	}
}

func TestCheckoutStartRejectsEmptyCart(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.carts.getFn = func(_ context.Context, userID string) (CartView, error) {
		return CartView{Cart: Cart{UserID: userID, Currency: "USD"}}, nil
	}

	if _, err := fx.svc.StartCheckout(context.Background(), "user-1"); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}
}

func TestCheckoutStartReturnsLiveSessionAndReplacesTerminal(t *testing.T) {
	fx := newCheckoutFixture(t)
	ctx := context.Background()

	first, err := fx.svc.StartCheckout(ctx, "user-1")
	if err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	again, err := fx.svc.StartCheckout(ctx, "user-1")
	if err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	if first.ID != again.ID {
		t.Fatal("live session must be reused")
	}

	advanceToReady(t, fx, "card")
	if _, err := fx.svc.Submit(ctx, "user-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	fresh, err := fx.svc.StartCheckout(ctx, "user-1")
	if err != nil {
		t.Fatalf("StartCheckout after confirm: %v", err)
	}
	if fresh.ID == first.ID {
		t.Fatal("terminal session must be replaced with a fresh one")
	}
	if fresh.Stage != StageAddressSelection {
		t.Fatalf("fresh session must start at address selection, got %q", fresh.Stage)
	}
}
