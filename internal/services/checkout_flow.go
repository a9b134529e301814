package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/trimline-home/api/internal/domain"
	"github.com/trimline-home/api/internal/payments"
	"github.com/trimline-home/api/internal/platform/textutil"
)

var (
	errCheckoutCartsRequired      = errors.New("checkout: cart service is required")
	errCheckoutAddressesRequired  = errors.New("checkout: address service is required")
	errCheckoutOrdersRequired     = errors.New("checkout: order service is required")
	errCheckoutCalculatorRequired = errors.New("checkout: calculator is required")
	errCheckoutGatewayRequired    = errors.New("checkout: payment gateway is required")
	errCheckoutClockRequired      = errors.New("checkout: clock is required")
)

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout: invalid input")

// ErrCheckoutNoSession indicates no checkout session exists for the user.
var ErrCheckoutNoSession = errors.New("checkout: no active session")

// ErrCheckoutWrongStage indicates the operation is not allowed from the
// session's current stage.
var ErrCheckoutWrongStage = errors.New("checkout: operation not allowed in current stage")

// ErrCheckoutBusy indicates another submission is already in flight for the
// session.
var ErrCheckoutBusy = errors.New("checkout: submission in progress")

// ErrCheckoutUnavailable indicates a backend failure.
var ErrCheckoutUnavailable = errors.New("checkout: unavailable")

// Failure reasons stored on sessions in the failed stage.
const (
	FailureReasonDeclined         = "payment_declined"
	FailureReasonTimeout          = "payment_timeout"
	FailureReasonNetwork          = "payment_network"
	FailureReasonIncompleteRefs   = "payment_incomplete"
	FailureReasonOrderSubmission  = "order_submission_failed"
	defaultCaptureTimeout         = 30 * time.Second
	checkoutIdempotencyKeyPattern = "checkout-%s-%s"
)

// CheckoutFlowDeps wires the collaborating services for checkout.
type CheckoutFlowDeps struct {
	Carts          CartService
	Addresses      AddressService
	Orders         OrderService
	Calculator     *ComponentCalculator
	Gateway        PaymentGateway
	Clock          Clock
	Logger         Logger
	IDGenerator    IDGenerator
	CaptureTimeout time.Duration
}

// sessionState is the mutable record behind a CheckoutSession view. The busy
// flag guards against concurrent submissions for the same session.
type sessionState struct {
	session CheckoutSession
	busy    bool
}

type checkoutFlow struct {
	carts          CartService
	addresses      AddressService
	orders         OrderService
	calc           *ComponentCalculator
	gateway        PaymentGateway
	now            func() time.Time
	newID          func() string
	logger         Logger
	captureTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// NewCheckoutFlow constructs the checkout state machine service.
func NewCheckoutFlow(deps CheckoutFlowDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errCheckoutCartsRequired
	}
	if deps.Addresses == nil {
		return nil, errCheckoutAddressesRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	if deps.Calculator == nil {
		return nil, errCheckoutCalculatorRequired
	}
	if deps.Gateway == nil {
		return nil, errCheckoutGatewayRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	timeout := deps.CaptureTimeout
	if timeout <= 0 {
		timeout = defaultCaptureTimeout
	}
	return &checkoutFlow{
		carts:          deps.Carts,
		addresses:      deps.Addresses,
		orders:         deps.Orders,
		calc:           deps.Calculator,
		gateway:        deps.Gateway,
		now:            func() time.Time { return deps.Clock().UTC() },
		newID:          idGen,
		logger:         logger,
		captureTimeout: timeout,
		sessions:       map[string]*sessionState{},
	}, nil
}

// StartCheckout opens a session for the user's cart. An existing live session
// is returned as-is; terminal sessions are replaced.
func (f *checkoutFlow) StartCheckout(ctx context.Context, userID string) (CheckoutSession, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutSession{}, ErrCheckoutInvalidInput
	}

	view, err := f.carts.GetOrCreateCart(ctx, uid)
	if err != nil {
		return CheckoutSession{}, f.translateCartError(err)
	}
	if len(view.Cart.Lines) == 0 {
		return CheckoutSession{}, fmt.Errorf("%w: cart is empty", ErrCheckoutInvalidInput)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if state, ok := f.sessions[uid]; ok && !isTerminalStage(state.session.Stage) {
		return state.session, nil
	}

	now := f.now()
	totals := view.Totals
	session := CheckoutSession{
		ID:        strings.TrimSpace(f.newID()),
		UserID:    uid,
		Stage:     StageAddressSelection,
		Totals:    &totals,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.sessions[uid] = &sessionState{session: session}
	return session, nil
}

func (f *checkoutFlow) Session(ctx context.Context, userID string) (CheckoutSession, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutSession{}, ErrCheckoutInvalidInput
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.sessions[uid]
	if !ok {
		return CheckoutSession{}, ErrCheckoutNoSession
	}
	return state.session, nil
}

// SelectAddress resolves the shipping address and advances to payment method
// selection. An empty addressID falls back to the default address.
func (f *checkoutFlow) SelectAddress(ctx context.Context, userID string, addressID string) (CheckoutSession, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutSession{}, ErrCheckoutInvalidInput
	}

	addr, err := f.addresses.ResolveCheckoutAddress(ctx, uid, addressID)
	if err != nil {
		if errors.Is(err, ErrAddressNotFound) || errors.Is(err, ErrAddressInvalidInput) {
			return CheckoutSession{}, fmt.Errorf("%w: no usable shipping address", ErrCheckoutInvalidInput)
		}
		return CheckoutSession{}, ErrCheckoutUnavailable
	}

	return f.mutateSession(uid, func(session *CheckoutSession) error {
		if session.Stage != StageAddressSelection && session.Stage != StagePaymentMethodSelection && session.Stage != StageReady {
			return fmt.Errorf("%w: cannot change address from %s", ErrCheckoutWrongStage, session.Stage)
		}
		addrCopy := addr
		session.Address = &addrCopy
		if session.Stage == StageAddressSelection {
			session.Stage = StagePaymentMethodSelection
		}
		return nil
	})
}

// SelectPaymentMethod records how the buyer pays and advances to ready.
// Parsing is strict; unknown methods are rejected.
func (f *checkoutFlow) SelectPaymentMethod(ctx context.Context, userID string, method string) (CheckoutSession, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutSession{}, ErrCheckoutInvalidInput
	}
	parsed, err := domain.ParsePaymentMethod(method)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}

	view, err := f.carts.GetOrCreateCart(ctx, uid)
	if err != nil {
		return CheckoutSession{}, f.translateCartError(err)
	}
	totals, err := f.calc.Totals(view.Cart, parsed)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}

	return f.mutateSession(uid, func(session *CheckoutSession) error {
		if session.Stage != StagePaymentMethodSelection && session.Stage != StageReady {
			return fmt.Errorf("%w: cannot select payment method from %s", ErrCheckoutWrongStage, session.Stage)
		}
		session.PaymentMethod = parsed
		session.Totals = &totals
		session.Stage = StageReady
		return nil
	})
}

// Back steps the session one stage backwards. It is blocked while payment
// collection or order submission is in flight and from every terminal stage.
func (f *checkoutFlow) Back(ctx context.Context, userID string) (CheckoutSession, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutSession{}, ErrCheckoutInvalidInput
	}
	return f.mutateSession(uid, func(session *CheckoutSession) error {
		switch session.Stage {
		case StagePaymentMethodSelection:
			session.Stage = StageAddressSelection
			session.PaymentMethod = ""
		case StageReady:
			session.Stage = StagePaymentMethodSelection
		default:
			return fmt.Errorf("%w: cannot go back from %s", ErrCheckoutWrongStage, session.Stage)
		}
		return nil
	})
}

// Retry returns a failed session to ready, keeping the address and payment
// method selections. No other stage may retry.
func (f *checkoutFlow) Retry(ctx context.Context, userID string) (CheckoutSession, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutSession{}, ErrCheckoutInvalidInput
	}
	return f.mutateSession(uid, func(session *CheckoutSession) error {
		if session.Stage != StageFailed {
			return fmt.Errorf("%w: only failed sessions may retry", ErrCheckoutWrongStage)
		}
		session.Stage = StageReady
		session.FailureReason = ""
		return nil
	})
}

// Submit runs payment collection and order submission. Cash on delivery skips
// collection entirely. A second Submit while one is in flight fails fast with
// ErrCheckoutBusy.
func (f *checkoutFlow) Submit(ctx context.Context, userID string) (CheckoutSession, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutSession{}, ErrCheckoutInvalidInput
	}

	state, session, err := f.beginSubmit(uid)
	if err != nil {
		return CheckoutSession{}, err
	}
	defer f.endSubmit(state)

	view, err := f.carts.GetOrCreateCart(ctx, uid)
	if err != nil {
		f.logger(ctx, "checkout.cart_load_failed", map[string]any{
			"userID": uid,
			"error":  err.Error(),
		})
		return f.failSession(state, FailureReasonOrderSubmission), nil
	}
	if len(view.Cart.Lines) == 0 {
		f.updateSession(state, func(s *CheckoutSession) {
			s.Stage = StageReady
		})
		return CheckoutSession{}, fmt.Errorf("%w: cart is empty", ErrCheckoutInvalidInput)
	}

	totals, err := f.calc.Totals(view.Cart, session.PaymentMethod)
	if err != nil {
		f.updateSession(state, func(s *CheckoutSession) { s.Stage = StageReady })
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}

	payment := PaymentReference{Method: session.PaymentMethod}

	if session.PaymentMethod.RequiresCapture() {
		f.updateSession(state, func(s *CheckoutSession) {
			s.Stage = StagePaymentCollection
			s.Totals = &totals
		})

		result := f.capture(ctx, session, totals)
		if !result.Complete() {
			reason := captureFailureReason(result)
			f.logger(ctx, "checkout.capture_failed", map[string]any{
				"userID":  uid,
				"reason":  reason,
				"message": result.Message,
			})
			return f.failSession(state, reason), nil
		}
		payment.PaymentID = result.PaymentID
		payment.GatewayOrderID = result.GatewayOrderID
		payment.Signature = result.Signature
		payment.Provider = result.Provider
	}

	f.updateSession(state, func(s *CheckoutSession) {
		s.Stage = StageOrderSubmission
		s.Totals = &totals
		paymentCopy := payment
		s.Payment = &paymentCopy
	})

	order, err := f.orders.CreateFromCart(ctx, CreateOrderCommand{
		UserID:   uid,
		Cart:     view.Cart,
		Totals:   totals,
		ShipTo:   *session.Address,
		Shipping: shippingMethodOf(view.Cart),
		Payment:  payment,
	})
	if err != nil {
		if session.PaymentMethod.RequiresCapture() {
			// Money moved but no order exists. This is the severe terminal
			// state; the payment references stay on the session so support
			// can reconcile or refund.
			f.logger(ctx, "checkout.post_capture_order_failure", map[string]any{
				"userID":    uid,
				"paymentID": payment.PaymentID,
				"provider":  payment.Provider,
				"error":     err.Error(),
			})
			return f.terminalSession(state, StagePostCaptureFailure), nil
		}
		f.logger(ctx, "checkout.order_submission_failed", map[string]any{
			"userID": uid,
			"error":  err.Error(),
		})
		return f.failSession(state, FailureReasonOrderSubmission), nil
	}

	if clearErr := f.carts.ClearCart(ctx, uid); clearErr != nil {
		f.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"userID":  uid,
			"orderID": order.ID,
			"error":   clearErr.Error(),
		})
	}

	var confirmed CheckoutSession
	f.updateSession(state, func(s *CheckoutSession) {
		s.Stage = StageConfirmed
		s.OrderID = order.ID
		s.OrderNumber = order.Number
		s.FailureReason = ""
		confirmed = *s
	})
	return confirmed, nil
}

func (f *checkoutFlow) capture(ctx context.Context, session CheckoutSession, totals CartTotals) CaptureResult {
	captureCtx, cancel := context.WithTimeout(ctx, f.captureTimeout)
	defer cancel()

	return f.gateway.Capture(captureCtx, payments.CaptureRequest{
		Amount:         totals.GrandTotal,
		Method:         session.PaymentMethod,
		Description:    fmt.Sprintf("Trimline Home order for %s", session.UserID),
		IdempotencyKey: fmt.Sprintf(checkoutIdempotencyKeyPattern, session.ID, session.UserID),
		Metadata: textutil.CompactMap(map[string]string{
			"checkout_session": session.ID,
			"user_id":          session.UserID,
			"payment_method":   string(session.PaymentMethod),
		}),
	})
}

func (f *checkoutFlow) beginSubmit(userID string) (*sessionState, CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.sessions[userID]
	if !ok {
		return nil, CheckoutSession{}, ErrCheckoutNoSession
	}
	if state.busy {
		return nil, CheckoutSession{}, ErrCheckoutBusy
	}
	if state.session.Stage != StageReady {
		return nil, CheckoutSession{}, fmt.Errorf("%w: submit requires the ready stage, session is %s", ErrCheckoutWrongStage, state.session.Stage)
	}
	if state.session.Address == nil {
		return nil, CheckoutSession{}, fmt.Errorf("%w: shipping address not selected", ErrCheckoutInvalidInput)
	}
	if state.session.PaymentMethod == "" {
		return nil, CheckoutSession{}, fmt.Errorf("%w: payment method not selected", ErrCheckoutInvalidInput)
	}
	state.busy = true
	return state, state.session, nil
}

func (f *checkoutFlow) endSubmit(state *sessionState) {
	f.mu.Lock()
	state.busy = false
	f.mu.Unlock()
}

func (f *checkoutFlow) updateSession(state *sessionState, fn func(*CheckoutSession)) {
	f.mu.Lock()
	fn(&state.session)
	state.session.UpdatedAt = f.now()
	f.mu.Unlock()
}

func (f *checkoutFlow) failSession(state *sessionState, reason string) CheckoutSession {
	var out CheckoutSession
	f.updateSession(state, func(s *CheckoutSession) {
		s.Stage = StageFailed
		s.FailureReason = reason
		out = *s
	})
	return out
}

func (f *checkoutFlow) terminalSession(state *sessionState, stage CheckoutStage) CheckoutSession {
	var out CheckoutSession
	f.updateSession(state, func(s *CheckoutSession) {
		s.Stage = stage
		s.FailureReason = FailureReasonOrderSubmission
		out = *s
	})
	return out
}

// mutateSession applies fn to the stored session under the lock, refusing
// while a submission is in flight.
func (f *checkoutFlow) mutateSession(userID string, fn func(*CheckoutSession) error) (CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.sessions[userID]
	if !ok {
		return CheckoutSession{}, ErrCheckoutNoSession
	}
	if state.busy {
		return CheckoutSession{}, ErrCheckoutBusy
	}
	if err := fn(&state.session); err != nil {
		return CheckoutSession{}, err
	}
	state.session.UpdatedAt = f.now()
	return state.session, nil
}

func (f *checkoutFlow) translateCartError(err error) error {
	switch {
	case errors.Is(err, ErrCartInvalidInput):
		return fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	case errors.Is(err, ErrCartNotFound):
		return fmt.Errorf("%w: cart not found", ErrCheckoutInvalidInput)
	default:
		return ErrCheckoutUnavailable
	}
}

func captureFailureReason(result CaptureResult) string {
	if result.Success {
		return FailureReasonIncompleteRefs
	}
	switch result.FailureKind {
	case payments.FailureDeclined:
		return FailureReasonDeclined
	case payments.FailureTimeout:
		return FailureReasonTimeout
	default:
		return FailureReasonNetwork
	}
}

func shippingMethodOf(cart Cart) ShippingMethod {
	if cart.ShippingMethod == "" {
		return domain.ShippingMethodStandard
	}
	return cart.ShippingMethod
}

func isTerminalStage(stage CheckoutStage) bool {
	return stage == StageConfirmed || stage == StagePostCaptureFailure
}
