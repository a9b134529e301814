package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultCurrency              = "USD"
	defaultFreeShippingThreshold = "50.00"
	defaultStandardShippingRate  = "9.99"
	defaultExpressShippingRate   = "19.99"
	defaultCODFee                = "4.99"
	defaultIntlCardFeeBps        = 290

	defaultCaptureTimeout = 30 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Stripe    StripeConfig
	Auth      AuthConfig
	Pricing   PricingConfig
	Checkout  CheckoutConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	ProjectID    string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StripeConfig collects payment provider secrets.
type StripeConfig struct {
	APIKey string
}

// AuthConfig controls bearer-token verification.
type AuthConfig struct {
	JWTSecret string
	Disabled  bool
}

// PricingConfig is the rate table for payment components.
type PricingConfig struct {
	Currency              string
	FreeShippingThreshold decimal.Decimal
	StandardShippingRate  decimal.Decimal
	ExpressShippingRate   decimal.Decimal
	CODFee                decimal.Decimal
	IntlCardFeeBps        int
}

// CheckoutConfig bounds the checkout flow's external calls.
type CheckoutConfig struct {
	CaptureTimeout time.Duration
}

// ValidationError is returned when required fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects an explicit key/value map taking precedence over the
// system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables os.LookupEnv, relying only on maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// Load assembles the configuration from defaults, .env overrides, and
// environment variables. Precedence: explicit map > OS env > .env file.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnv != nil {
			if value, ok := dotEnv[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	var invalid []string
	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ProjectID:    stringWithDefault(lookup, "API_PROJECT_ID", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Stripe: StripeConfig{
			APIKey: stringWithDefault(lookup, "API_STRIPE_API_KEY", ""),
		},
		Auth: AuthConfig{
			JWTSecret: stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
			Disabled:  boolWithDefault(lookup, "API_AUTH_DISABLED", false),
		},
		Pricing: PricingConfig{
			Currency:              strings.ToUpper(stringWithDefault(lookup, "API_PRICING_CURRENCY", defaultCurrency)),
			FreeShippingThreshold: decimalWithDefault(lookup, "API_PRICING_FREE_SHIPPING_THRESHOLD", defaultFreeShippingThreshold, &invalid),
			StandardShippingRate:  decimalWithDefault(lookup, "API_PRICING_SHIPPING_STANDARD", defaultStandardShippingRate, &invalid),
			ExpressShippingRate:   decimalWithDefault(lookup, "API_PRICING_SHIPPING_EXPRESS", defaultExpressShippingRate, &invalid),
			CODFee:                decimalWithDefault(lookup, "API_PRICING_COD_FEE", defaultCODFee, &invalid),
			IntlCardFeeBps:        intWithDefault(lookup, "API_PRICING_INTL_CARD_FEE_BPS", defaultIntlCardFeeBps),
		},
		Checkout: CheckoutConfig{
			CaptureTimeout: durationWithDefault(lookup, "API_CHECKOUT_CAPTURE_TIMEOUT", defaultCaptureTimeout),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Server.ProjectID
	}

	if cfg.Pricing.FreeShippingThreshold.IsNegative() {
		invalid = append(invalid, "Pricing.FreeShippingThreshold")
	}
	if cfg.Pricing.StandardShippingRate.IsNegative() || cfg.Pricing.ExpressShippingRate.IsNegative() {
		invalid = append(invalid, "Pricing.ShippingRates")
	}
	if cfg.Pricing.IntlCardFeeBps < 0 {
		invalid = append(invalid, "Pricing.IntlCardFeeBps")
	}
	if !cfg.Auth.Disabled && cfg.Auth.JWTSecret == "" {
		invalid = append(invalid, "Auth.JWTSecret")
	}
	if len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}

	return cfg, nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(parts[1]), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func decimalWithDefault(lookup func(string) (string, bool), key, fallback string, invalid *[]string) decimal.Decimal {
	raw := fallback
	if value, ok := lookup(key); ok && value != "" {
		raw = value
	}
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		*invalid = append(*invalid, key)
		parsed, _ = decimal.NewFromString(fallback)
	}
	return parsed
}
