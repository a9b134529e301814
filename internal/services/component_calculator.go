package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/trimline-home/api/internal/domain"
)

// ErrCalculatorInvalidInput indicates the cart contents cannot be priced.
var ErrCalculatorInvalidInput = errors.New("component calculator: invalid input")

// FreeShippingLabel is the label carried by the zero-amount shipping component
// when the free-shipping threshold is met. It is the one zero component that
// is never suppressed.
const FreeShippingLabel = "FREE"

const bpsPerUnit = 10_000

// discountRule describes one redeemable code. Percent rules apply basis points
// to the merchandise subtotal; flat rules subtract a fixed amount.
type discountRule struct {
	label      string
	percentBps int64
	flat       decimal.Decimal
}

// RateTable holds the pricing constants the calculator applies. Amounts share
// the table currency.
type RateTable struct {
	Currency              string
	FreeShippingThreshold Money
	StandardShippingRate  Money
	ExpressShippingRate   Money
	CODFee                Money
	IntlCardFeeBps        int
}

// DefaultRateTable returns the storefront defaults in the given currency.
func DefaultRateTable(currency string) RateTable {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	return RateTable{
		Currency:              currency,
		FreeShippingThreshold: domain.MoneyFromDecimal(decimal.New(5_000, -2), currency),
		StandardShippingRate:  domain.MoneyFromDecimal(decimal.New(999, -2), currency),
		ExpressShippingRate:   domain.MoneyFromDecimal(decimal.New(1_999, -2), currency),
		CODFee:                domain.MoneyFromDecimal(decimal.New(499, -2), currency),
		IntlCardFeeBps:        290,
	}
}

// ComponentCalculator derives payment components and totals from a cart. It
// holds no mutable state; totals are recomputed on every call and never
// cached anywhere.
type ComponentCalculator struct {
	rates     RateTable
	discounts map[string]discountRule
}

// NewComponentCalculator builds a calculator over the given rate table.
func NewComponentCalculator(rates RateTable) (*ComponentCalculator, error) {
	currency := strings.ToUpper(strings.TrimSpace(rates.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: rate table currency is required", ErrCalculatorInvalidInput)
	}
	rates.Currency = currency
	if rates.FreeShippingThreshold.IsNegative() || rates.StandardShippingRate.IsNegative() ||
		rates.ExpressShippingRate.IsNegative() || rates.CODFee.IsNegative() {
		return nil, fmt.Errorf("%w: rates must be non-negative", ErrCalculatorInvalidInput)
	}
	if rates.IntlCardFeeBps < 0 {
		return nil, fmt.Errorf("%w: fee basis points must be non-negative", ErrCalculatorInvalidInput)
	}
	return &ComponentCalculator{
		rates: rates,
		discounts: map[string]discountRule{
			"SAVE10":    {label: "SAVE10", percentBps: 1_000},
			"SAVE20":    {label: "SAVE20", percentBps: 2_000},
			"WELCOME15": {label: "WELCOME15", flat: decimal.NewFromInt(15)},
		},
	}, nil
}

// Subtotal sums the rounded line amounts.
func (c *ComponentCalculator) Subtotal(lines []CartLine) (Money, error) {
	subtotal := domain.ZeroMoney(c.rates.Currency)
	for i := range lines {
		if err := lines[i].Validate(); err != nil {
			return Money{}, fmt.Errorf("%w: %v", ErrCalculatorInvalidInput, err)
		}
		sum, err := subtotal.Add(lines[i].LineAmount())
		if err != nil {
			return Money{}, fmt.Errorf("%w: %v", ErrCalculatorInvalidInput, err)
		}
		subtotal = sum
	}
	return subtotal, nil
}

// TaxInclusiveLabel is carried by the zero-amount tax component when every
// line prices tax into its rate, so the buyer still sees where tax went.
const TaxInclusiveLabel = "Tax included in pricing"

// TaxComponent sums per-line tax. A nil second return means the component is
// zero and therefore suppressed; an all-variable cart instead surfaces a zero
// component labelled with TaxInclusiveLabel.
func (c *ComponentCalculator) TaxComponent(lines []CartLine) (*PaymentComponent, error) {
	tax := domain.ZeroMoney(c.rates.Currency)
	allVariable := len(lines) > 0
	for i := range lines {
		if lines[i].Mode != domain.PricingModeVariableDimension {
			allVariable = false
		}
		sum, err := tax.Add(lines[i].LineTax())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCalculatorInvalidInput, err)
		}
		tax = sum
	}
	if tax.IsZero() {
		if allVariable {
			return &PaymentComponent{
				Type:   domain.ComponentTypeTax,
				Amount: tax,
				Label:  TaxInclusiveLabel,
			}, nil
		}
		return nil, nil
	}
	return &PaymentComponent{
		Type:   domain.ComponentTypeTax,
		Amount: tax,
		Label:  "Tax",
	}, nil
}

// ShippingComponent picks the rate for the chosen method. Above the
// free-shipping threshold the component survives at zero with the FREE label
// so buyers see the benefit itemised.
func (c *ComponentCalculator) ShippingComponent(subtotal Money, method ShippingMethod) (*PaymentComponent, error) {
	var (
		rate  Money
		label string
	)
	switch method {
	case domain.ShippingMethodStandard:
		rate, label = c.rates.StandardShippingRate, "Standard shipping"
	case domain.ShippingMethodGround:
		rate, label = c.rates.StandardShippingRate, "Ground shipping"
	case domain.ShippingMethodExpress:
		rate, label = c.rates.ExpressShippingRate, "Express shipping"
	case domain.ShippingMethodOvernight:
		rate, label = c.rates.ExpressShippingRate, "Overnight shipping"
	default:
		return nil, fmt.Errorf("%w: unknown shipping method %q", ErrCalculatorInvalidInput, method)
	}
	if !subtotal.LessThan(c.rates.FreeShippingThreshold) {
		return &PaymentComponent{
			Type:   domain.ComponentTypeShipping,
			Amount: domain.ZeroMoney(c.rates.Currency),
			Label:  FreeShippingLabel,
		}, nil
	}
	if rate.IsZero() {
		return nil, nil
	}
	return &PaymentComponent{
		Type:   domain.ComponentTypeShipping,
		Amount: rate,
		Label:  label,
	}, nil
}

// DiscountComponent resolves a code against the rule table. Unknown codes are
// not an error: the component is simply omitted and the caller learns nothing
// applied. Discounts never exceed the subtotal.
func (c *ComponentCalculator) DiscountComponent(subtotal Money, code string) *PaymentComponent {
	rule, ok := c.lookupDiscount(code)
	if !ok {
		return nil
	}

	var amount Money
	if rule.percentBps > 0 {
		fraction := decimal.NewFromInt(rule.percentBps).Div(decimal.NewFromInt(bpsPerUnit))
		amount = subtotal.MulDecimal(fraction).Round2()
	} else {
		amount = domain.MoneyFromDecimal(rule.flat, c.rates.Currency).Round2()
	}
	if amount.IsZero() {
		return nil
	}
	if subtotal.LessThan(amount) {
		amount = subtotal
	}
	return &PaymentComponent{
		Type:     domain.ComponentTypeDiscount,
		Amount:   amount,
		Label:    rule.label,
		Negative: true,
	}
}

// KnownDiscount reports whether the code would apply to a non-empty cart.
func (c *ComponentCalculator) KnownDiscount(code string) bool {
	_, ok := c.lookupDiscount(code)
	return ok
}

func (c *ComponentCalculator) lookupDiscount(code string) (discountRule, bool) {
	normalised := strings.ToUpper(strings.TrimSpace(code))
	if normalised == "" {
		return discountRule{}, false
	}
	rule, ok := c.discounts[normalised]
	return rule, ok
}

// FeeComponent prices surcharges tied to the payment method: a flat fee for
// cash on delivery, a basis-point fee on the merchandise subtotal for
// international cards. Tax, shipping, and discounts never move the fee.
func (c *ComponentCalculator) FeeComponent(subtotal Money, method PaymentMethod) *PaymentComponent {
	switch method {
	case domain.PaymentMethodCOD:
		if c.rates.CODFee.IsZero() {
			return nil
		}
		return &PaymentComponent{
			Type:   domain.ComponentTypeFee,
			Amount: c.rates.CODFee,
			Label:  "Cash on delivery fee",
		}
	case domain.PaymentMethodInternationalCard:
		if c.rates.IntlCardFeeBps == 0 || subtotal.IsZero() {
			return nil
		}
		fraction := decimal.NewFromInt(int64(c.rates.IntlCardFeeBps)).Div(decimal.NewFromInt(bpsPerUnit))
		amount := subtotal.MulDecimal(fraction).Round2()
		if amount.IsZero() {
			return nil
		}
		return &PaymentComponent{
			Type:   domain.ComponentTypeFee,
			Amount: amount,
			Label:  "International card fee",
		}
	default:
		return nil
	}
}

// Totals assembles the component list and grand total for a cart. Components
// appear in subtotal-tax-shipping-discount-fee order; zero components are
// suppressed except free shipping.
func (c *ComponentCalculator) Totals(cart Cart, method PaymentMethod) (CartTotals, error) {
	subtotal, err := c.Subtotal(cart.Lines)
	if err != nil {
		return CartTotals{}, err
	}

	totals := CartTotals{
		Currency: c.rates.Currency,
		Subtotal: subtotal,
		Tax:      domain.ZeroMoney(c.rates.Currency),
		Shipping: domain.ZeroMoney(c.rates.Currency),
		Discount: domain.ZeroMoney(c.rates.Currency),
		Fee:      domain.ZeroMoney(c.rates.Currency),
	}
	components := make([]PaymentComponent, 0, 4)

	tax, err := c.TaxComponent(cart.Lines)
	if err != nil {
		return CartTotals{}, err
	}
	if tax != nil {
		totals.Tax = tax.Amount
		components = append(components, *tax)
	}

	shippingMethod := cart.ShippingMethod
	if shippingMethod == "" {
		shippingMethod = domain.ShippingMethodStandard
	}
	if len(cart.Lines) > 0 {
		shipping, err := c.ShippingComponent(subtotal, shippingMethod)
		if err != nil {
			return CartTotals{}, err
		}
		if shipping != nil {
			totals.Shipping = shipping.Amount
			components = append(components, *shipping)
		}
	}

	if discount := c.DiscountComponent(subtotal, cart.DiscountCode); discount != nil {
		totals.Discount = discount.Amount
		components = append(components, *discount)
	}

	if fee := c.FeeComponent(subtotal, method); fee != nil {
		totals.Fee = fee.Amount
		components = append(components, *fee)
	}

	preFee, err := preFeeTotal(totals)
	if err != nil {
		return CartTotals{}, err
	}

	grand, err := preFee.Add(totals.Fee)
	if err != nil {
		return CartTotals{}, fmt.Errorf("%w: %v", ErrCalculatorInvalidInput, err)
	}
	if grand.IsNegative() {
		grand = domain.ZeroMoney(c.rates.Currency)
	}
	totals.GrandTotal = grand
	totals.Components = components
	return totals, nil
}

func preFeeTotal(totals CartTotals) (Money, error) {
	sum, err := totals.Subtotal.Add(totals.Tax)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrCalculatorInvalidInput, err)
	}
	sum, err = sum.Add(totals.Shipping)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrCalculatorInvalidInput, err)
	}
	sum, err = sum.Sub(totals.Discount)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrCalculatorInvalidInput, err)
	}
	if sum.IsNegative() {
		return domain.ZeroMoney(totals.Currency), nil
	}
	return sum, nil
}
