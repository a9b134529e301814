package payments

import (
	"context"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentsAPI struct {
	newFn func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getFn func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentsAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.newFn(params)
}

func (s *stubIntentsAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.getFn(id, params)
}

func TestStripeCaptureSuccessCarriesAllReferences(t *testing.T) {
	provider := newStripeProviderWithAPI(&stubIntentsAPI{
		newFn: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			if got := *params.Amount; got != 2500 {
				t.Fatalf("expected amount 2500 minor units, got %d", got)
			}
			if got := *params.Currency; got != "usd" {
				t.Fatalf("expected lowercase currency, got %q", got)
			}
			return &stripe.PaymentIntent{
				ID:           "pi_123",
				ClientSecret: "pi_123_secret",
				Status:       stripe.PaymentIntentStatusSucceeded,
				LatestCharge: &stripe.Charge{ID: "ch_456"},
			}, nil
		},
	})

	result := provider.Capture(context.Background(), CaptureRequest{Amount: usd("25.00")})
	if !result.Complete() {
		t.Fatalf("expected complete result, got %+v", result)
	}
	if result.PaymentID != "ch_456" || result.GatewayOrderID != "pi_123" || result.Signature != "pi_123_secret" {
		t.Fatalf("unexpected references %+v", result)
	}
}

func TestStripeCaptureDeclineMapsToDeclined(t *testing.T) {
	provider := newStripeProviderWithAPI(&stubIntentsAPI{
		newFn: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined."}
		},
	})

	result := provider.Capture(context.Background(), CaptureRequest{Amount: usd("25.00")})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.FailureKind != FailureDeclined {
		t.Fatalf("expected declined, got %q", result.FailureKind)
	}
	if result.Message != "Your card was declined." {
		t.Fatalf("expected card message surfaced, got %q", result.Message)
	}
}

func TestStripeCaptureDeadlineMapsToTimeout(t *testing.T) {
	provider := newStripeProviderWithAPI(&stubIntentsAPI{
		newFn: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, context.DeadlineExceeded
		},
	})

	result := provider.Capture(context.Background(), CaptureRequest{Amount: usd("25.00")})
	if result.FailureKind != FailureTimeout {
		t.Fatalf("expected timeout, got %q", result.FailureKind)
	}
}

func TestStripeCaptureAPIErrorMapsToNetwork(t *testing.T) {
	provider := newStripeProviderWithAPI(&stubIntentsAPI{
		newFn: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "gateway unavailable"}
		},
	})

	result := provider.Capture(context.Background(), CaptureRequest{Amount: usd("25.00")})
	if result.FailureKind != FailureNetwork {
		t.Fatalf("expected network, got %q", result.FailureKind)
	}
}

func TestStripeCapturePendingStatusIsFailure(t *testing.T) {
	provider := newStripeProviderWithAPI(&stubIntentsAPI{
		newFn: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{
				ID:     "pi_123",
				Status: stripe.PaymentIntentStatusRequiresPaymentMethod,
			}, nil
		},
	})

	result := provider.Capture(context.Background(), CaptureRequest{Amount: usd("25.00")})
	if result.Success {
		t.Fatal("expected failure for unconfirmed intent")
	}
	if result.FailureKind != FailureDeclined {
		t.Fatalf("expected declined, got %q", result.FailureKind)
	}
}
