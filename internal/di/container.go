package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/config"
	"github.com/storefront/api/internal/platform/jobs"
	"github.com/storefront/api/internal/platform/mail"
	"github.com/storefront/api/internal/platform/observability"
	"github.com/storefront/api/internal/repositories"
	"github.com/storefront/api/internal/services"
)

const defaultProbeTimeout = 3 * time.Second

var _ services.UserDirectory = (*auth.FirebaseVerifier)(nil)

// Services bundles the service-layer contracts that handlers rely upon. A nil field means the
// backing dependency was not configured and the matching routes are left unmounted.
type Services struct {
	Catalog  services.CatalogService
	Orders   services.OrderService
	Reviews  services.ReviewService
	Payments services.PaymentService
	Users    services.UserService
	System   services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	logger   *zap.Logger
	meter    metric.Meter
	clock    func() time.Time
	build    services.BuildInfo
	provider payments.Provider
	notifier services.OrderNotifier
	events   services.OrderEventPublisher
	users    services.UserDirectory
	checks   []repositories.DependencyCheck
}

// WithLogger sets the zap logger backing service logs.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeter sets the meter used for notifier metrics.
func WithMeter(meter metric.Meter) Option {
	return func(o *containerOptions) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithClock overrides the service clock.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithBuildInfo records version metadata surfaced by health endpoints.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = info
	}
}

// WithPaymentProvider replaces the Stripe provider built from configuration.
func WithPaymentProvider(provider payments.Provider) Option {
	return func(o *containerOptions) {
		o.provider = provider
	}
}

// WithOrderNotifier replaces the SMTP notifier built from configuration.
func WithOrderNotifier(notifier services.OrderNotifier) Option {
	return func(o *containerOptions) {
		o.notifier = notifier
	}
}

// WithOrderEventPublisher replaces the Pub/Sub publisher built from configuration.
func WithOrderEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *containerOptions) {
		o.events = publisher
	}
}

// WithUserDirectory connects admin user management to the identity provider.
func WithUserDirectory(directory services.UserDirectory) Option {
	return func(o *containerOptions) {
		o.users = directory
	}
}

// WithHealthChecks appends dependency probes to the readiness report.
func WithHealthChecks(checks ...repositories.DependencyCheck) Option {
	return func(o *containerOptions) {
		o.checks = append(o.checks, checks...)
	}
}

// NewContainer constructs the runtime dependencies. Tests can supply an in-memory registry and
// stub collaborators through options.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{
		logger: zap.NewNop(),
		meter:  otel.GetMeterProvider().Meter("storefront"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.build.StartedAt.IsZero() {
		options.build.StartedAt = options.clock().UTC()
	}

	c := &Container{
		Config:       cfg,
		Repositories: reg,
	}

	svc, err := c.buildServices(ctx, reg, cfg, options)
	if err != nil {
		_ = c.closeResources(ctx)
		return nil, err
	}
	c.Services = svc
	return c, nil
}

// Close releases resources such as repository clients, publishers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	errs := []error{c.closeResources(ctx)}
	if c.Repositories != nil {
		errs = append(errs, c.Repositories.Close(ctx))
	}
	return errors.Join(errs...)
}

func (c *Container) closeResources(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) buildServices(ctx context.Context, reg repositories.Registry, cfg config.Config, opts containerOptions) (Services, error) {
	var svc Services
	logger := observability.ServiceLogger(opts.logger)

	checks := []repositories.DependencyCheck{{
		Name:    "store",
		Timeout: defaultProbeTimeout,
		Check:   reg.Ping,
	}}

	notifier := opts.notifier
	if notifier == nil && strings.TrimSpace(cfg.Mail.Host) != "" {
		built, err := buildMailNotifier(cfg, opts)
		if err != nil {
			return Services{}, err
		}
		notifier = built
	}

	events := opts.events
	if events == nil && strings.TrimSpace(cfg.Events.OrderTopic) != "" {
		publisher, check, err := c.buildEventPublisher(ctx, cfg.Events)
		if err != nil {
			return Services{}, err
		}
		events = publisher
		checks = append(checks, check)
	}
	checks = append(checks, opts.checks...)

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   reg.Products(),
		UnitOfWork: reg,
		Clock:      opts.clock,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        reg.Orders(),
		Products:      reg.Products(),
		UnitOfWork:    reg,
		Notifier:      notifier,
		NotifyTimeout: cfg.Mail.NotifyTimeout,
		Events:        events,
		Clock:         opts.clock,
		Logger:        logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Products:   reg.Products(),
		Orders:     reg.Orders(),
		UnitOfWork: reg,
		Clock:      opts.clock,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviewSvc

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:      reg.Users(),
		UnitOfWork: reg,
		Directory:  opts.users,
		Clock:      opts.clock,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	provider := opts.provider
	if provider == nil && strings.TrimSpace(cfg.Payments.StripeAPIKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.Payments.StripeAPIKey,
			Logger: logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build stripe provider: %w", err)
		}
		provider = stripeProvider
	}
	if provider != nil {
		verifier, err := payments.NewSignatureVerifier(cfg.Payments.SigningSecret)
		if err != nil {
			return Services{}, fmt.Errorf("build payment verifier: %w", err)
		}
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Provider:        provider,
			Verifier:        verifier,
			DefaultCurrency: cfg.Payments.DefaultCurrency,
			Logger:          logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	} else {
		opts.logger.Warn("payments disabled: no provider configured")
	}

	healthRepo, err := repositories.NewHealthRepository(checks,
		repositories.WithProbeTimeout(defaultProbeTimeout),
		repositories.WithProbeClock(opts.clock),
	)
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}
	build := opts.build
	if build.Environment == "" {
		build.Environment = cfg.Store.Driver
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            opts.clock,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}

func buildMailNotifier(cfg config.Config, opts containerOptions) (services.OrderNotifier, error) {
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		Timeout:  cfg.Mail.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build smtp sender: %w", err)
	}
	notifier, err := mail.NewOrderConfirmationNotifier(sender, cfg.Payments.DefaultCurrency,
		mail.WithNotifierLogger(opts.logger),
		mail.WithNotifierMeter(opts.meter),
	)
	if err != nil {
		return nil, fmt.Errorf("build order notifier: %w", err)
	}
	return notifier, nil
}

func (c *Container) buildEventPublisher(ctx context.Context, cfg config.EventsConfig) (services.OrderEventPublisher, repositories.DependencyCheck, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, repositories.DependencyCheck{}, fmt.Errorf("build pubsub client: %w", err)
	}
	topic := client.Topic(cfg.OrderTopic)
	topic.EnableMessageOrdering = true

	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, repositories.DependencyCheck{}, fmt.Errorf("build order event publisher: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error {
		publisher.Stop()
		return client.Close()
	})

	check := repositories.DependencyCheck{
		Name:    "pubsub",
		Timeout: defaultProbeTimeout,
		Check: func(ctx context.Context) error {
			exists, err := topic.Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("topic %s not found", cfg.OrderTopic)
			}
			return nil
		},
	}
	return publisher, check, nil
}
