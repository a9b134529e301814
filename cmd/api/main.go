package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	domain "github.com/trimline-home/api/internal/domain"
	"github.com/trimline-home/api/internal/handlers"
	"github.com/trimline-home/api/internal/payments"
	"github.com/trimline-home/api/internal/platform/auth"
	"github.com/trimline-home/api/internal/platform/config"
	pfirestore "github.com/trimline-home/api/internal/platform/firestore"
	"github.com/trimline-home/api/internal/platform/idempotency"
	"github.com/trimline-home/api/internal/platform/observability"
	"github.com/trimline-home/api/internal/repositories"
	firestoreRepo "github.com/trimline-home/api/internal/repositories/firestore"
	"github.com/trimline-home/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	cartRepo, err := firestoreRepo.NewCartRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise cart repository", zap.Error(err))
	}
	addressRepo, err := firestoreRepo.NewAddressRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise address repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.Stripe.APIKey,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
	}
	paymentManager, err := payments.NewManager(map[string]payments.Provider{
		"stripe": stripeProvider,
	}, payments.WithDefaultProvider("stripe"))
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	currency := cfg.Pricing.Currency
	calculator, err := services.NewComponentCalculator(services.RateTable{
		Currency:              currency,
		FreeShippingThreshold: domain.MoneyFromDecimal(cfg.Pricing.FreeShippingThreshold, currency),
		StandardShippingRate:  domain.MoneyFromDecimal(cfg.Pricing.StandardShippingRate, currency),
		ExpressShippingRate:   domain.MoneyFromDecimal(cfg.Pricing.ExpressShippingRate, currency),
		CODFee:                domain.MoneyFromDecimal(cfg.Pricing.CODFee, currency),
		IntlCardFeeBps:        cfg.Pricing.IntlCardFeeBps,
	})
	if err != nil {
		logger.Fatal("failed to initialise component calculator", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Repository: cartRepo,
		Products:   productRepo,
		Calculator: calculator,
		Clock:      time.Now,
		Currency:   currency,
		Logger:     zapEventLogger(logger.Named("cart")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	addressService, err := services.NewAddressService(services.AddressServiceDeps{
		Repository: addressRepo,
		Clock:      time.Now,
		Logger:     zapEventLogger(logger.Named("addresses")),
	})
	if err != nil {
		logger.Fatal("failed to initialise address service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Repository: orderRepo,
		Clock:      time.Now,
		Logger:     zapEventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutFlow(services.CheckoutFlowDeps{
		Carts:          cartService,
		Addresses:      addressService,
		Orders:         orderService,
		Calculator:     calculator,
		Gateway:        paymentManager,
		Clock:          time.Now,
		Logger:         zapEventLogger(logger.Named("checkout")),
		CaptureTimeout: cfg.Checkout.CaptureTimeout,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout flow", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Repository: productRepo,
		Logger:     zapEventLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	recommendationService, err := services.NewRecommendationService(services.RecommendationServiceDeps{
		Repository: productRepo,
		Logger:     zapEventLogger(logger.Named("recommendations")),
	})
	if err != nil {
		logger.Fatal("failed to initialise recommendation service", zap.Error(err))
	}

	systemService, err := newSystemService(firestoreClient)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	verifier, err := buildVerifier(logger.Named("auth"), cfg)
	if err != nil {
		logger.Fatal("failed to initialise token verifier", zap.Error(err))
	}
	authenticator, err := auth.NewAuthenticator(verifier)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(zap.NewStdLog(logger.Named("idempotency"))),
	)

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	cartHandlers := handlers.NewCartHandlers(authenticator, cartService)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, checkoutService)
	addressHandlers := handlers.NewAddressHandlers(authenticator, addressService)
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService)
	catalogHandlers := handlers.NewCatalogHandlers(catalogService, recommendationService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(systemService)),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCheckoutMiddlewares(idempotencyMiddleware),
		handlers.WithMeRoutes(addressHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("trimline-home api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// zapEventLogger bridges the services' structured event hook onto zap.
func zapEventLogger(logger *zap.Logger) services.Logger {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}

func newSystemService(client *firestore.Client) (services.SystemService, error) {
	if client == nil {
		return nil, errors.New("health: firestore client is required")
	}
	checks := []repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := client.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		},
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		Repository: repo,
		Clock:      time.Now,
	})
}

func buildVerifier(logger *zap.Logger, cfg config.Config) (auth.TokenVerifier, error) {
	if cfg.Auth.Disabled {
		logger.Warn("auth disabled; bearer tokens are trusted as user ids")
		return insecureVerifier{}, nil
	}
	return auth.NewJWTVerifier(cfg.Auth.JWTSecret)
}

// insecureVerifier treats the raw bearer token as the user id. Local
// development only; refused unless API_AUTH_DISABLED is set.
type insecureVerifier struct{}

func (insecureVerifier) Verify(_ context.Context, token string) (*auth.Identity, error) {
	uid := strings.TrimSpace(token)
	if uid == "" {
		return nil, auth.ErrTokenInvalid
	}
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleUser}}, nil
}
