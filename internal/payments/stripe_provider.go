package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const stripeProviderName = "stripe"

// paymentIntentsAPI narrows the Stripe SDK surface so tests can stub it.
type paymentIntentsAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the Stripe adapter.
type StripeProviderConfig struct {
	APIKey string
}

// StripeProvider captures card payments through Stripe PaymentIntents.
type StripeProvider struct {
	intents paymentIntentsAPI
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider builds the adapter from configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("payments: stripe api key is required")
	}
	api := &client.API{}
	api.Init(key, nil)
	return &StripeProvider{intents: api.PaymentIntents}, nil
}

// newStripeProviderWithAPI wires a stub API for tests.
func newStripeProviderWithAPI(intents paymentIntentsAPI) *StripeProvider {
	return &StripeProvider{intents: intents}
}

// Name implements Provider.
func (p *StripeProvider) Name() string { return stripeProviderName }

// Capture creates and confirms a PaymentIntent for the full amount. Every
// gateway failure is folded into the result; no error escapes.
func (p *StripeProvider) Capture(ctx context.Context, req CaptureRequest) CaptureResult {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context:  ctx,
			Metadata: req.Metadata,
		},
		Amount:   stripe.Int64(req.Amount.MinorUnits()),
		Currency: stripe.String(strings.ToLower(req.Amount.Currency())),
		Confirm:  stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	if method, ok := req.Metadata["payment_method"]; ok && method != "" {
		params.PaymentMethod = stripe.String(method)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return stripeFailure(ctx, err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		return CaptureResult{
			Success:        true,
			Provider:       stripeProviderName,
			PaymentID:      chargeID(intent),
			GatewayOrderID: intent.ID,
			Signature:      intent.ClientSecret,
		}
	default:
		return CaptureResult{
			Success:     false,
			Provider:    stripeProviderName,
			FailureKind: FailureDeclined,
			Message:     "payment not completed: " + string(intent.Status),
		}
	}
}

// LookupPayment fetches the intent for reconciliation.
func (p *StripeProvider) LookupPayment(ctx context.Context, paymentID string) (LookupResult, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return LookupResult{}, errors.New("payments: payment id is required")
	}
	intent, err := p.intents.Get(id, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return LookupResult{}, err
	}
	return LookupResult{
		Provider:  stripeProviderName,
		PaymentID: intent.ID,
		Captured:  intent.Status == stripe.PaymentIntentStatusSucceeded,
		Amount:    intent.Amount,
		Currency:  strings.ToUpper(string(intent.Currency)),
	}, nil
}

func stripeFailure(ctx context.Context, err error) CaptureResult {
	result := CaptureResult{Success: false, Provider: stripeProviderName, Message: err.Error()}

	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		result.FailureKind = FailureTimeout
		return result
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			result.FailureKind = FailureDeclined
			if stripeErr.Msg != "" {
				result.Message = stripeErr.Msg
			}
		default:
			result.FailureKind = FailureNetwork
		}
		return result
	}

	result.FailureKind = FailureNetwork
	return result
}

func chargeID(intent *stripe.PaymentIntent) string {
	if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
		return intent.LatestCharge.ID
	}
	return intent.ID
}
