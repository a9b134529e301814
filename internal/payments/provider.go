// Package payments holds the capture gateway contract and provider adapters.
//
// The contract is deliberately strict: a provider NEVER surfaces gateway
// exceptions to callers. Declines, timeouts, and transport failures all come
// back as a CaptureResult with Success=false and a FailureKind, so the
// checkout flow has exactly one shape of outcome to reason about.
package payments

import (
	"context"
	"errors"
	"strings"

	domain "github.com/trimline-home/api/internal/domain"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// FailureKind classifies why a capture did not succeed.
type FailureKind string

const (
	// FailureDeclined covers gateway rejections of the payment itself.
	FailureDeclined FailureKind = "declined"
	// FailureTimeout covers deadline expiry while awaiting the gateway.
	// Callers treat it as its own reason because the charge state is unknown.
	FailureTimeout FailureKind = "timeout"
	// FailureNetwork covers transport-level errors reaching the gateway.
	FailureNetwork FailureKind = "network"
)

// CaptureRequest describes one capture attempt.
type CaptureRequest struct {
	Amount         domain.Money
	Method         domain.PaymentMethod
	Description    string
	CustomerEmail  string
	IdempotencyKey string
	Metadata       map[string]string
	Preferred      string
}

// CaptureResult is the single outcome shape for capture attempts. A success
// always carries PaymentID, GatewayOrderID, and Signature; a failure carries
// a FailureKind and message instead.
type CaptureResult struct {
	Success        bool
	Provider       string
	PaymentID      string
	GatewayOrderID string
	Signature      string
	FailureKind    FailureKind
	Message        string
}

// Complete reports whether a successful result carries every gateway
// reference the order record needs.
func (r CaptureResult) Complete() bool {
	return r.Success && r.PaymentID != "" && r.GatewayOrderID != "" && r.Signature != ""
}

// LookupResult normalises provider payment details for reconciliation.
type LookupResult struct {
	Provider  string
	PaymentID string
	Captured  bool
	Amount    int64
	Currency  string
}

// Provider is the contract gateway adapters implement.
type Provider interface {
	Name() string
	Capture(ctx context.Context, req CaptureRequest) CaptureResult
	LookupPayment(ctx context.Context, paymentID string) (LookupResult, error)
}

// Gateway is the capture surface the checkout flow depends on.
type Gateway interface {
	Capture(ctx context.Context, req CaptureRequest) CaptureResult
}

// Manager routes capture requests to a registered provider.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional Manager behaviour.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when no route matches.
func WithDefaultProvider(name string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = normaliseName(name)
	}
}

// WithCurrencyRoutes maps currency codes to provider names.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for currency, provider := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(currency))] = normaliseName(provider)
		}
	}
}

// NewManager registers the given providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{providers: make(map[string]Provider, len(providers))}
	for name, provider := range providers {
		key := normaliseName(name)
		if key == "" || provider == nil {
			return nil, errors.New("payments: provider entries require a name and an implementation")
		}
		m.providers[key] = provider
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.defaultProvider != "" {
		if _, ok := m.providers[m.defaultProvider]; !ok {
			return nil, ErrUnsupportedProvider
		}
	}
	return m, nil
}

// Capture resolves a provider and delegates. Resolution failures come back on
// the result, keeping the no-exception contract intact.
func (m *Manager) Capture(ctx context.Context, req CaptureRequest) CaptureResult {
	provider, err := m.resolve(req.Preferred, req.Amount.Currency())
	if err != nil {
		return CaptureResult{
			Success:     false,
			FailureKind: FailureNetwork,
			Message:     err.Error(),
		}
	}
	result := provider.Capture(ctx, req)
	if result.Provider == "" {
		result.Provider = provider.Name()
	}
	return result
}

// LookupPayment finds the payment on the named provider.
func (m *Manager) LookupPayment(ctx context.Context, providerName, paymentID string) (LookupResult, error) {
	provider, err := m.resolve(providerName, "")
	if err != nil {
		return LookupResult{}, err
	}
	return provider.LookupPayment(ctx, paymentID)
}

// resolve picks preferred > currency route > default > sole registered.
func (m *Manager) resolve(preferred, currency string) (Provider, error) {
	if name := normaliseName(preferred); name != "" {
		if provider, ok := m.providers[name]; ok {
			return provider, nil
		}
		return nil, ErrUnsupportedProvider
	}
	if currency != "" && m.currencyRoutes != nil {
		if name, ok := m.currencyRoutes[strings.ToUpper(currency)]; ok {
			if provider, ok := m.providers[name]; ok {
				return provider, nil
			}
		}
	}
	if m.defaultProvider != "" {
		if provider, ok := m.providers[m.defaultProvider]; ok {
			return provider, nil
		}
	}
	if len(m.providers) == 1 {
		for _, provider := range m.providers {
			return provider, nil
		}
	}
	return nil, ErrUnsupportedProvider
}

func normaliseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
