package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/trimline-home/api/internal/domain"
	"github.com/trimline-home/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
	errCartCalculatorRequired = errors.New("cart service: calculator is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const maxCartLineQuantity = 99

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartNotFound indicates the cart or line does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates a concurrent modification was detected.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartUnavailable indicates a backend failure.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// CartServiceDeps wires the repositories and calculator for cart operations.
type CartServiceDeps struct {
	Repository  repositories.CartRepository
	Products    repositories.ProductRepository
	Calculator  *ComponentCalculator
	Clock       Clock
	Currency    string
	Logger      Logger
	IDGenerator IDGenerator
}

type cartService struct {
	repo     repositories.CartRepository
	products repositories.ProductRepository
	calc     *ComponentCalculator
	newID    func() string
	now      func() time.Time
	currency string
	logger   Logger
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Calculator == nil {
		return nil, errCartCalculatorRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		repo:     deps.Repository,
		products: deps.Products,
		calc:     deps.Calculator,
		newID:    idGen,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: currency,
		logger:   logger,
	}, nil
}

// GetOrCreateCart loads the active cart for the user, creating one when absent.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (CartView, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if !isRepoNotFound(err) {
			return CartView{}, s.translateRepoError(err)
		}
		cart, err = s.repo.UpsertCart(ctx, s.newCart(uid), nil)
		if err != nil {
			return CartView{}, s.translateRepoError(err)
		}
	}

	return s.view(s.normaliseCart(cart, uid))
}

func (s *cartService) AddOrUpdateLine(ctx context.Context, cmd UpsertCartLineCommand) (CartView, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}
	if cmd.Quantity > maxCartLineQuantity {
		return CartView{}, fmt.Errorf("%w: quantity must be %d or fewer", ErrCartInvalidInput, maxCartLineQuantity)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{}, fmt.Errorf("%w: product not found", ErrCartInvalidInput)
		}
		return CartView{}, s.translateRepoError(err)
	}
	if !product.Active {
		return CartView{}, fmt.Errorf("%w: product is not available", ErrCartInvalidInput)
	}

	line, err := s.buildLine(product, cmd)
	if err != nil {
		return CartView{}, err
	}

	cart, err := s.loadOrNewCart(ctx, uid)
	if err != nil {
		return CartView{}, err
	}

	if !strings.EqualFold(cart.Currency, line.UnitPrice.Currency()) && line.Mode == domain.PricingModeFixed {
		return CartView{}, fmt.Errorf("%w: product currency must match cart currency", ErrCartInvalidInput)
	}

	now := s.now()
	lines := cloneCartLines(cart.Lines)

	if cmd.LineID != nil && strings.TrimSpace(*cmd.LineID) != "" {
		idx := indexOfCartLine(lines, *cmd.LineID)
		if idx < 0 {
			return CartView{}, ErrCartNotFound
		}
		line.ID = lines[idx].ID
		line.AddedAt = lines[idx].AddedAt
		ts := now
		line.UpdatedAt = &ts
		lines[idx] = line
	} else if idx := matchingLineIndex(lines, line); idx >= 0 {
		merged := lines[idx].Quantity + line.Quantity
		if merged > maxCartLineQuantity {
			return CartView{}, fmt.Errorf("%w: quantity must be %d or fewer", ErrCartInvalidInput, maxCartLineQuantity)
		}
		lines[idx].Quantity = merged
		ts := now
		lines[idx].UpdatedAt = &ts
	} else {
		line.ID = strings.TrimSpace(s.newID())
		if line.ID == "" {
			line.ID = fmt.Sprintf("line-%d", now.UnixNano())
		}
		line.AddedAt = now
		lines = append(lines, line)
	}

	return s.save(ctx, cart, lines, cmd.ExpectedUpdatedAt, now)
}

func (s *cartService) RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (CartView, error) {
	uid := strings.TrimSpace(cmd.UserID)
	lineID := strings.TrimSpace(cmd.LineID)
	if uid == "" || lineID == "" {
		return CartView{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{}, ErrCartNotFound
		}
		return CartView{}, s.translateRepoError(err)
	}
	cart = s.normaliseCart(cart, uid)

	lines := cloneCartLines(cart.Lines)
	idx := indexOfCartLine(lines, lineID)
	if idx < 0 {
		return CartView{}, ErrCartNotFound
	}
	lines = append(lines[:idx], lines[idx+1:]...)

	return s.save(ctx, cart, lines, cmd.ExpectedUpdatedAt, s.now())
}

// ApplyDiscountCode stores a known code on the cart. Unknown codes leave the
// cart untouched and report applied=false without an error.
func (s *cartService) ApplyDiscountCode(ctx context.Context, cmd ApplyDiscountCommand) (CartView, bool, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CartView{}, false, ErrCartInvalidInput
	}

	cart, err := s.loadOrNewCart(ctx, uid)
	if err != nil {
		return CartView{}, false, err
	}

	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		cart.DiscountCode = ""
		view, err := s.save(ctx, cart, cloneCartLines(cart.Lines), nil, s.now())
		return view, false, err
	}

	if !s.calc.KnownDiscount(code) {
		s.logger(ctx, "cart.discount_code_rejected", map[string]any{
			"userID": uid,
			"code":   code,
		})
		view, viewErr := s.view(cart)
		return view, false, viewErr
	}

	cart.DiscountCode = code
	view, err := s.save(ctx, cart, cloneCartLines(cart.Lines), nil, s.now())
	if err != nil {
		return CartView{}, false, err
	}
	return view, true, nil
}

func (s *cartService) SetShippingMethod(ctx context.Context, cmd SetShippingMethodCommand) (CartView, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}
	method, err := domain.ParseShippingMethod(cmd.Method)
	if err != nil {
		return CartView{}, fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	}

	cart, err := s.loadOrNewCart(ctx, uid)
	if err != nil {
		return CartView{}, err
	}
	cart.ShippingMethod = method

	return s.save(ctx, cart, cloneCartLines(cart.Lines), nil, s.now())
}

func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}
	if err := s.repo.ClearCart(ctx, uid); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	return nil
}

// buildLine snapshots product pricing onto a cart line. Fixed-mode tax is
// derived from the product's tax rate at add time.
func (s *cartService) buildLine(product domain.Product, cmd UpsertCartLineCommand) (CartLine, error) {
	line := CartLine{
		ProductID: product.ID,
		SKU:       product.SKU,
		Name:      product.Name,
		Mode:      product.Mode,
		Quantity:  cmd.Quantity,
	}
	switch product.Mode {
	case domain.PricingModeFixed:
		if cmd.LengthMm != 0 {
			return CartLine{}, fmt.Errorf("%w: length applies only to made-to-measure products", ErrCartInvalidInput)
		}
		line.UnitPrice = product.UnitPrice.Round2()
		if product.TaxRateBps > 0 {
			rate := decimal.NewFromInt(product.TaxRateBps).Div(decimal.NewFromInt(bpsPerUnit))
			line.UnitTax = product.UnitPrice.MulDecimal(rate).Round2()
		} else {
			line.UnitTax = domain.ZeroMoney(product.UnitPrice.Currency())
		}
	case domain.PricingModeVariableDimension:
		if cmd.LengthMm <= 0 {
			return CartLine{}, fmt.Errorf("%w: length_mm is required for made-to-measure products", ErrCartInvalidInput)
		}
		line.HeightMm = product.HeightMm
		line.LengthMm = cmd.LengthMm
		line.RatePerSqM = product.RatePerSqM
	default:
		return CartLine{}, fmt.Errorf("%w: product has no pricing mode", ErrCartInvalidInput)
	}
	if err := lineShapeError(line); err != nil {
		return CartLine{}, err
	}
	return line, nil
}

func lineShapeError(line CartLine) error {
	check := line
	if check.ID == "" {
		check.ID = "pending"
	}
	if check.ProductID == "" {
		return fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if err := check.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	}
	return nil
}

func (s *cartService) loadOrNewCart(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return s.newCart(userID), nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(cart, userID), nil
}

func (s *cartService) save(ctx context.Context, cart Cart, lines []CartLine, expected *time.Time, now time.Time) (CartView, error) {
	cart.Lines = lines
	cart.UpdatedAt = now
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}

	var expectedUTC *time.Time
	if expected != nil {
		ts := expected.UTC()
		expectedUTC = &ts
	}

	saved, err := s.repo.UpsertCart(ctx, cart, expectedUTC)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.view(s.normaliseCart(saved, cart.UserID))
}

// view recomputes totals for the cart. Views price against the plain card
// method; payment-method fees only enter during checkout once the buyer has
// chosen how to pay.
func (s *cartService) view(cart Cart) (CartView, error) {
	totals, err := s.calc.Totals(cart, domain.PaymentMethodCard)
	if err != nil {
		return CartView{}, fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	}
	return CartView{Cart: cart, Totals: totals}, nil
}

func (s *cartService) newCart(userID string) Cart {
	now := s.now()
	return Cart{
		UserID:         userID,
		Currency:       s.currency,
		Lines:          []CartLine{},
		ShippingMethod: domain.ShippingMethodStandard,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *cartService) normaliseCart(cart Cart, userID string) Cart {
	cart.UserID = firstNonEmpty(cart.UserID, userID)
	cart.Currency = strings.ToUpper(firstNonEmpty(cart.Currency, s.currency))
	if cart.Lines == nil {
		cart.Lines = []CartLine{}
	}
	if cart.ShippingMethod == "" {
		cart.ShippingMethod = domain.ShippingMethodStandard
	}
	cart.DiscountCode = strings.ToUpper(strings.TrimSpace(cart.DiscountCode))
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = s.now()
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = s.now()
	}
	return cart
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
	}
	return ErrCartUnavailable
}

func cloneCartLines(lines []CartLine) []CartLine {
	if len(lines) == 0 {
		return []CartLine{}
	}
	dup := make([]CartLine, len(lines))
	copy(dup, lines)
	for i := range dup {
		if dup[i].UpdatedAt != nil {
			ts := dup[i].UpdatedAt.UTC()
			dup[i].UpdatedAt = &ts
		}
	}
	return dup
}

func indexOfCartLine(lines []CartLine, lineID string) int {
	target := strings.TrimSpace(lineID)
	if target == "" {
		return -1
	}
	for i := range lines {
		if strings.EqualFold(strings.TrimSpace(lines[i].ID), target) {
			return i
		}
	}
	return -1
}

// matchingLineIndex finds an existing line the new one can merge into: same
// product and, for made-to-measure lines, the same cut length.
func matchingLineIndex(lines []CartLine, line CartLine) int {
	for i := range lines {
		if !strings.EqualFold(lines[i].ProductID, line.ProductID) {
			continue
		}
		if lines[i].Mode != line.Mode {
			continue
		}
		if line.Mode == domain.PricingModeVariableDimension && lines[i].LengthMm != line.LengthMm {
			continue
		}
		return i
	}
	return -1
}
