package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/customtees/api/internal/handlers"
	"github.com/customtees/api/internal/payments"
	"github.com/customtees/api/internal/platform/auth"
	"github.com/customtees/api/internal/platform/config"
	pfirestore "github.com/customtees/api/internal/platform/firestore"
	"github.com/customtees/api/internal/platform/idempotency"
	"github.com/customtees/api/internal/platform/jobs"
	"github.com/customtees/api/internal/platform/observability"
	"github.com/customtees/api/internal/platform/secrets"
	"github.com/customtees/api/internal/repositories"
	firestoreRepo "github.com/customtees/api/internal/repositories/firestore"
	"github.com/customtees/api/internal/services"
	"github.com/customtees/api/internal/shipping"

	"github.com/oklog/ulid/v2"
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
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
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

	authenticator := newAuthenticator(logger, cfg)

	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	cartRepo, err := firestoreRepo.NewCartRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise cart repository", zap.Error(err))
	}
	couponRepo, err := firestoreRepo.NewCouponRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise coupon repository", zap.Error(err))
	}
	couponUsageRepo, err := firestoreRepo.NewCouponUsageRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise coupon usage repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	counterRepo, err := firestoreRepo.NewCounterRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise counter repository", zap.Error(err))
	}
	unitOfWork, err := firestoreRepo.NewUnitOfWork(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise unit of work", zap.Error(err))
	}

	eventPublisher, pubsubClient := newEventPublisher(ctx, logger, cfg)
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	pricingEngine, err := services.NewAreaPricingEngine(services.AreaPricingEngineDeps{
		RatePerArea: cfg.Pricing.RatePerArea,
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing engine", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: productRepo,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Carts:       cartRepo,
		Products:    productRepo,
		Pricing:     pricingEngine,
		IDGenerator: newULIDGenerator(),
		Clock:       time.Now,
		Logger:      zapEventLogger(logger.Named("cart")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	couponService, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons:            couponRepo,
		Usage:              couponUsageRepo,
		EnforceUsageLimits: cfg.Coupons.EnforceUsageLimits,
		Clock:              time.Now,
		Logger:             zapEventLogger(logger.Named("coupons")),
	})
	if err != nil {
		logger.Fatal("failed to initialise coupon service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:             orderRepo,
		Carts:              cartRepo,
		Coupons:            couponService,
		CouponStore:        couponRepo,
		CouponUsage:        couponUsageRepo,
		Counters:           counterRepo,
		UnitOfWork:         unitOfWork,
		Events:             eventPublisher,
		EnforceUsageLimits: cfg.Coupons.EnforceUsageLimits,
		IDGenerator:        newULIDGenerator(),
		Clock:              time.Now,
		Logger:             zapEventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	paymentService := newPaymentService(logger, cfg, orderRepo, eventPublisher)
	shipmentService := newShipmentService(logger, cfg, orderRepo, eventPublisher)

	systemService, err := newSystemService(firestoreClient, fetcher)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
		handlers.RateLimitMiddleware(cfg.RateLimits.DefaultPerMinute, cfg.RateLimits.AuthenticatedPerMinute),
		idempotencyMiddleware,
	}

	productHandlers := handlers.NewProductHandlers(catalogService)
	couponHandlers := handlers.NewCouponHandlers(authenticator, couponService)
	cartHandlers := handlers.NewCartHandlers(authenticator, cartService)
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, paymentService)
	shipmentHandlers := handlers.NewShipmentHandlers(authenticator, shipmentService)
	adminHandlers := handlers.NewAdminHandlers(authenticator, orderService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(systemService)),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithCouponRoutes(couponHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithShipmentRoutes(shipmentHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
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
		serverLogger.Info("customtees api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newAuthenticator(logger *zap.Logger, cfg config.Config) *auth.Authenticator {
	opts := make([]auth.Option, 0, 4)
	if cfg.Auth.Issuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.Auth.Issuer))
	}
	if cfg.Auth.Audience != "" {
		opts = append(opts, auth.WithAudience(cfg.Auth.Audience))
	}
	if cfg.Auth.FallbackRole != "" {
		opts = append(opts, auth.WithFallbackRole(cfg.Auth.FallbackRole))
	}
	if cfg.Auth.Leeway > 0 {
		opts = append(opts, auth.WithLeeway(cfg.Auth.Leeway))
	}
	authenticator, err := auth.NewAuthenticator([]byte(cfg.Auth.Secret), opts...)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}
	return authenticator
}

// newEventPublisher wires the Pub/Sub order event topic when events are
// enabled. The returned client must be closed by the caller; both values are
// nil when publishing is off.
func newEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (services.OrderEventPublisher, *pubsub.Client) {
	if !cfg.Events.Enabled {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	publisher, err := jobs.NewPubSubOrderEventPublisher(client.Topic(cfg.Events.Topic))
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}
	return publisher, client
}

// newPaymentService builds the reconciler over whichever gateways have
// credentials configured. Without any gateway the verify endpoints respond
// with service unavailable.
func newPaymentService(logger *zap.Logger, cfg config.Config, orders repositories.OrderRepository, events services.OrderEventPublisher) services.PaymentService {
	gateways := make([]services.PaymentGateway, 0, 2)

	if strings.TrimSpace(cfg.Payments.Razorpay.KeyID) != "" {
		provider, err := payments.NewRazorpayProvider(payments.RazorpayConfig{
			KeyID:     cfg.Payments.Razorpay.KeyID,
			KeySecret: cfg.Payments.Razorpay.KeySecret,
		})
		if err != nil {
			logger.Fatal("failed to initialise razorpay provider", zap.Error(err))
		}
		gateway, err := payments.NewGateway(provider)
		if err != nil {
			logger.Fatal("failed to wrap razorpay provider", zap.Error(err))
		}
		gateways = append(gateways, gateway)
	}

	if strings.TrimSpace(cfg.Payments.Square.AccessToken) != "" {
		provider, err := payments.NewSquareProvider(payments.SquareConfig{
			AccessToken: cfg.Payments.Square.AccessToken,
			BaseURL:     cfg.Payments.Square.BaseURL,
		})
		if err != nil {
			logger.Fatal("failed to initialise square provider", zap.Error(err))
		}
		gateway, err := payments.NewGateway(provider)
		if err != nil {
			logger.Fatal("failed to wrap square provider", zap.Error(err))
		}
		gateways = append(gateways, gateway)
	}

	if len(gateways) == 0 {
		logger.Warn("no payment gateways configured; payment verification disabled")
		return nil
	}

	service, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:   orders,
		Gateways: gateways,
		Events:   events,
		Clock:    time.Now,
		Logger:   zapEventLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}
	return service
}

// newShipmentService builds the label issuer when UPS credentials are present.
func newShipmentService(logger *zap.Logger, cfg config.Config, orders repositories.OrderRepository, events services.OrderEventPublisher) services.ShipmentService {
	ups := cfg.Shipping.UPS
	if strings.TrimSpace(ups.ClientID) == "" {
		logger.Warn("no carrier configured; shipment label generation disabled")
		return nil
	}

	carrier, err := shipping.NewUPSCarrier(shipping.UPSConfig{
		ClientID:     ups.ClientID,
		ClientSecret: ups.ClientSecret,
		BaseURL:      ups.BaseURL,
		Shipper: shipping.ShipperProfile{
			Name:          ups.ShipperName,
			Phone:         ups.ShipperPhone,
			AccountNumber: ups.AccountNumber,
			Line1:         ups.ShipperLine1,
			City:          ups.ShipperCity,
			State:         ups.ShipperState,
			PostalCode:    ups.ShipperPostal,
			Country:       ups.ShipperCountry,
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise ups carrier", zap.Error(err))
	}

	service, err := services.NewShipmentService(services.ShipmentServiceDeps{
		Orders:  orders,
		Carrier: carrier,
		Events:  events,
		Clock:   time.Now,
		Logger:  zapEventLogger(logger.Named("shipments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise shipment service", zap.Error(err))
	}
	return service
}

func newSystemService(client *firestore.Client, fetcher *secrets.Fetcher) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{Health: repo})
}

func zapEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}

func newULIDGenerator() func() string {
	return func() string {
		return ulid.Make().String()
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	versionPins := secretVersionPinsFromEnv(env)
	credentialsFile := lookup("API_SECRET_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if len(versionPins) > 0 {
		opts = append(opts, secrets.WithVersionPins(versionPins))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets Load must have resolved before the
// process may serve traffic. Provider secrets are only required once their
// matching credential is configured.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Auth.Secret"}

	if env != nil {
		if strings.TrimSpace(env["API_PAYMENTS_RAZORPAY_KEY_ID"]) != "" {
			required = append(required, "Payments.Razorpay.KeySecret")
		}
		if strings.TrimSpace(env["API_PAYMENTS_SQUARE_ACCESS_TOKEN"]) != "" {
			required = append(required, "Payments.Square.AccessToken")
		}
		if strings.TrimSpace(env["API_SHIPPING_UPS_CLIENT_ID"]) != "" {
			required = append(required, "Shipping.UPS.ClientSecret")
		}
	}

	sort.Strings(required)
	return required
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_VERSION_PINS"]
	}
	raw = strings.TrimSpace(raw)
	pins := make(map[string]string)
	if raw == "" {
		return pins
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		ref := strings.TrimSpace(parts[0])
		version := strings.TrimSpace(parts[1])
		if ref == "" || version == "" {
			continue
		}
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		if strings.HasPrefix(ref, "sm://") {
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		pins[prefix+ref] = version
	}
	return pins
}
