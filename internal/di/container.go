package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/payments"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/config"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/observability"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Inventory      services.InventoryService
	Carts          services.CartService
	Orders         services.OrderService
	Payments       services.PaymentService
	Returns        services.ReturnService
	Reconciliation services.ReconciliationService
	System         services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config   config.Config
	Store    repositories.Store
	Services Services
	Notifier services.NotificationSink
}

// Option customises container assembly.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	gateway  services.PaymentGateway
	webhook  services.WebhookVerifier
	notifier services.NotificationSink
	build    services.BuildInfo
	health   repositories.HealthRepository
	clock    func() time.Time
	ids      func() string
}

// WithLogger routes service events to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithGateway overrides the payment gateway built from configuration.
func WithGateway(gateway services.PaymentGateway, webhook services.WebhookVerifier) Option {
	return func(o *options) {
		o.gateway = gateway
		o.webhook = webhook
	}
}

// WithNotifier sets the sink receiving order notifications.
func WithNotifier(sink services.NotificationSink) Option {
	return func(o *options) {
		o.notifier = sink
	}
}

// WithBuildInfo sets the metadata reported by health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *options) {
		o.build = build
	}
}

// WithHealthRepository replaces the store's own readiness checks.
func WithHealthRepository(repo repositories.HealthRepository) Option {
	return func(o *options) {
		o.health = repo
	}
}

// WithClock injects the clock shared by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithIDGenerator injects the id generator shared by every service.
func WithIDGenerator(ids func() string) Option {
	return func(o *options) {
		o.ids = ids
	}
}

// NewContainer constructs the runtime dependencies over an opened store.
func NewContainer(ctx context.Context, cfg config.Config, store repositories.Store, opts ...Option) (*Container, error) {
	if store == nil {
		return nil, errors.New("repositories store is required")
	}
	o := options{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if o.gateway == nil {
		manager, razorpay, err := NewPaymentGateway(cfg.Payments, o.logger.Named("payments"))
		if err != nil {
			return nil, err
		}
		o.gateway = manager
		if razorpay != nil {
			o.webhook = razorpay
		}
	}

	svc, err := buildServices(ctx, cfg, store, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:   cfg,
		Store:    store,
		Services: svc,
		Notifier: o.notifier,
	}, nil
}

// Close releases the store.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close(ctx)
}

// NewPaymentGateway registers every provider with credentials. The Razorpay provider is
// returned separately because it also verifies webhooks.
func NewPaymentGateway(cfg config.PaymentsConfig, logger *zap.Logger) (*payments.Manager, *payments.RazorpayProvider, error) {
	providerLogger := payments.Logger(observability.ServiceLogger(logger))
	providers := make(map[string]payments.Provider, 2)

	var razorpay *payments.RazorpayProvider
	if cfg.RazorpayEnabled() {
		provider, err := payments.NewRazorpayProvider(payments.RazorpayProviderConfig{
			KeyID:         cfg.RazorpayKeyID,
			KeySecret:     cfg.RazorpayKeySecret,
			WebhookSecret: cfg.RazorpayWebhookSecret,
			Logger:        providerLogger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build razorpay provider: %w", err)
		}
		razorpay = provider
		providers["razorpay"] = provider
	}
	if cfg.PayPalEnabled() {
		provider, err := payments.NewPayPalProvider(payments.PayPalProviderConfig{
			ClientID:    cfg.PayPalClientID,
			Secret:      cfg.PayPalSecret,
			Environment: cfg.PayPalEnvironment,
			Logger:      providerLogger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build paypal provider: %w", err)
		}
		providers["paypal"] = provider
	}
	if len(providers) == 0 {
		return nil, nil, errors.New("payments: no gateway credentials configured")
	}

	manager, err := payments.NewManager(providers,
		payments.WithDefaultProvider("razorpay"),
		payments.WithCurrencyRoutes(map[string]string{"INR": "razorpay", "USD": "paypal"}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build payment manager: %w", err)
	}
	return manager, razorpay, nil
}

func buildServices(_ context.Context, cfg config.Config, store repositories.Store, o options) (Services, error) {
	var svc Services
	logger := observability.ServiceLogger(o.logger.Named("services"))
	pricing := services.NewPricingCalculator()

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		LowStockThreshold: cfg.Orders.LowStockThreshold,
		Logger:            logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Repositories:    store,
		UnitOfWork:      store,
		Gateway:         o.gateway,
		RazorpayWebhook: o.webhook,
		Notifier:        o.notifier,
		Clock:           o.clock,
		IDGenerator:     o.ids,
		Logger:          logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	returnSvc, err := services.NewReturnService(services.ReturnServiceDeps{
		Repositories: store,
		UnitOfWork:   store,
		Inventory:    inventorySvc,
		Gateway:      o.gateway,
		Notifier:     o.notifier,
		Clock:        o.clock,
		IDGenerator:  o.ids,
		Logger:       logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build return service: %w", err)
	}
	svc.Returns = returnSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Repositories:    store,
		UnitOfWork:      store,
		Inventory:       inventorySvc,
		Pricing:         pricing,
		Payments:        paymentSvc,
		Returns:         returnSvc,
		Notifier:        o.notifier,
		MaxItemQuantity: cfg.Orders.MaxItemQuantity,
		Clock:           o.clock,
		IDGenerator:     o.ids,
		Logger:          logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Repositories:    store,
		UnitOfWork:      store,
		Pricing:         pricing,
		MaxItemQuantity: cfg.Orders.MaxItemQuantity,
		Clock:           o.clock,
		IDGenerator:     o.ids,
		Logger:          logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = cartSvc

	reconciliationSvc, err := services.NewReconciliationService(services.ReconciliationServiceDeps{
		Orders:    store.Orders(),
		OrderSvc:  orderSvc,
		TTL:       cfg.Orders.PendingTTL,
		BatchSize: cfg.Orders.SweepBatchSize,
		Clock:     o.clock,
		Logger:    logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build reconciliation service: %w", err)
	}
	svc.Reconciliation = reconciliationSvc

	health := o.health
	if health == nil {
		health = store.Health()
	}
	if health != nil {
		build := o.build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: health,
			Clock:            o.clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
