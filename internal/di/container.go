package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/santiscally/grafica-los-rumbos/internal/handlers"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/auth"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/cache"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/config"
	pfirestore "github.com/santiscally/grafica-los-rumbos/internal/platform/firestore"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/jobs"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/mail"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/observability"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/storage"
	"github.com/santiscally/grafica-los-rumbos/internal/repositories"
	firestoreRepo "github.com/santiscally/grafica-los-rumbos/internal/repositories/firestore"
	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Counters      services.CounterService
	Catalog       services.CatalogService
	Attachments   services.AttachmentService
	Pricing       services.PricingEngine
	Notifications services.NotificationService
	Orders        services.OrderService
	Stats         services.StatsService
	System        services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config   config.Config
	Services Services
	Metrics  *observability.Metrics
	Router   http.Handler
	Sweeper  *services.UploadSweeper
	// Tasks tracks notification goroutines started by the order service.
	Tasks *services.BackgroundTasks

	logger  *zap.Logger
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// NewContainer constructs the runtime dependencies from cfg. Partially built resources are released
// when construction fails.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{
		Config:  cfg,
		Metrics: observability.NewMetrics(),
		Tasks:   &services.BackgroundTasks{},
		logger:  logger,
	}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	events := observability.EventLogger(logger.Named("services"))

	provider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := provider.Client(ctx); err != nil {
		return nil, fmt.Errorf("firestore: %w", err)
	}
	c.addCloser("firestore", provider.Close)

	counterRepo, err := firestoreRepo.NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("counter repository: %w", err)
	}
	productRepo, err := firestoreRepo.NewProductRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("product repository: %w", err)
	}
	priceRepo, err := firestoreRepo.NewPriceRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("price repository: %w", err)
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("order repository: %w", err)
	}

	store, err := c.buildAttachmentStore(ctx)
	if err != nil {
		return nil, err
	}

	catalogCache, redisClient, err := c.buildCatalogCache(ctx)
	if err != nil {
		return nil, err
	}

	var pubsubClient *pubsub.Client
	if needsPubSub(cfg) {
		pubsubClient, err = jobs.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		c.addCloser("pubsub", pubsubClient.Close)
	}

	transport, err := buildEmailTransport(ctx, cfg.Notifications, pubsubClient)
	if err != nil {
		return nil, err
	}

	var (
		publisher   services.OrderEventPublisher
		eventsTopic *pubsub.Topic
	)
	if topic := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); topic != "" {
		eventsTopic, err = jobs.Topic(ctx, pubsubClient, topic)
		if err != nil {
			return nil, fmt.Errorf("order events topic: %w", err)
		}
		eventsTopic.EnableMessageOrdering = true
		c.addCloser("order events topic", func() error { eventsTopic.Stop(); return nil })
		p, err := jobs.NewPubSubOrderEventPublisher(eventsTopic)
		if err != nil {
			return nil, err
		}
		publisher = p
	}

	svc, err := buildServices(cfg, serviceInputs{
		counters:  counterRepo,
		products:  productRepo,
		prices:    priceRepo,
		orders:    orderRepo,
		store:     store,
		cache:     catalogCache,
		transport: transport,
		events:    publisher,
		metrics:   c.Metrics,
		logger:    events,
		tasks:     c.Tasks,
	})
	if err != nil {
		return nil, err
	}

	checks := []repositories.DependencyCheck{
		{Name: "firestore", Check: provider.Ping},
		{Name: "storage", Check: store.Ping},
	}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Optional: true,
			Check:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	if eventsTopic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "pubsub",
			Optional: true,
			Check:    topicExists(eventsTopic),
		})
	}
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, fmt.Errorf("health repository: %w", err)
	}
	svc.System, err = services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: health,
		Build:            BuildInfo(cfg, time.Now().UTC()),
		Logger:           events,
	})
	if err != nil {
		return nil, fmt.Errorf("system service: %w", err)
	}
	c.Services = svc

	c.Sweeper, err = services.NewUploadSweeper(services.UploadSweeperDeps{
		Attachments: svc.Attachments,
		Interval:    cfg.Uploads.SweepInterval,
		MaxAge:      cfg.Uploads.TempMaxAge,
		Recorder:    c.Metrics,
		Logger:      events,
	})
	if err != nil {
		return nil, fmt.Errorf("upload sweeper: %w", err)
	}

	adminGuard, err := buildAdminGuard(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Router = c.buildRouter(cfg, adminGuard)
	return c, nil
}

// Close releases clients in reverse construction order.
func (c *Container) Close(context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.fn(); err != nil {
			c.logger.Warn("close failed", zap.String("resource", cl.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", cl.name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) addCloser(name string, fn func() error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

func (c *Container) buildAttachmentStore(ctx context.Context) (repositories.AttachmentStore, error) {
	switch c.Config.Storage.Backend {
	case config.StorageBackendGCS:
		client, err := storage.NewGCSClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		c.addCloser("gcs", client.Close)
		store, err := storage.NewGCSStore(client, c.Config.Storage.Bucket)
		if err != nil {
			return nil, fmt.Errorf("gcs store: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewLocalStore(c.Config.Storage.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("local store: %w", err)
		}
		return store, nil
	}
}

// buildCatalogCache returns nil values when Redis is not configured or unreachable; the catalog
// then reads straight from Firestore.
func (c *Container) buildCatalogCache(ctx context.Context) (services.CatalogCache, *redis.Client, error) {
	if strings.TrimSpace(c.Config.Redis.Addr) == "" {
		return nil, nil, nil
	}
	client, err := cache.NewRedisClient(ctx, c.Config.Redis)
	if err != nil {
		c.logger.Warn("catalog cache disabled", zap.Error(err))
		return nil, nil, nil
	}
	c.addCloser("redis", client.Close)
	return cache.NewCatalogCache(client, "", c.Config.Redis.CatalogTTL), client, nil
}

func (c *Container) buildRouter(cfg config.Config, adminGuard func(http.Handler) http.Handler) http.Handler {
	svc := c.Services
	httpLogger := c.logger.Named("http")
	projectID := cfg.Firestore.ProjectID

	location := statsLocation(cfg.Stats.TimeZone)
	public := handlers.NewPublicHandlers(svc.Catalog, svc.Orders, svc.Attachments,
		handlers.WithMaxUploadBody(uploadBodyLimit(cfg.Storage)),
	)
	adminOrders := handlers.NewAdminOrderHandlers(svc.Orders, svc.Stats, location)
	adminCatalog := handlers.NewAdminCatalogHandlers(svc.Catalog, cfg.Storage.MaxImageSize)
	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(BuildInfo(cfg, time.Now().UTC())),
		handlers.WithHealthSystemService(svc.System),
	)

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(),
			c.Metrics.Middleware,
		),
		handlers.WithHealthHandlers(health),
		handlers.WithMetricsHandler(c.Metrics.Handler()),
		handlers.WithPublicRoutes(public.Routes),
		handlers.WithAdminMiddlewares(adminGuard),
		handlers.WithAdminRoutes(adminOrders.Routes, adminCatalog.Routes),
	)
}

type serviceInputs struct {
	counters  repositories.CounterRepository
	products  repositories.ProductRepository
	prices    repositories.PriceRepository
	orders    repositories.OrderRepository
	store     repositories.AttachmentStore
	cache     services.CatalogCache
	transport services.EmailTransport
	events    services.OrderEventPublisher
	metrics   *observability.Metrics
	logger    services.Logger
	tasks     *services.BackgroundTasks
}

func background(tasks *services.BackgroundTasks) func(func()) {
	if tasks == nil {
		return nil
	}
	return tasks.Go
}

func buildServices(cfg config.Config, in serviceInputs) (Services, error) {
	var svc Services
	var err error

	svc.Counters, err = services.NewCounterService(services.CounterServiceDeps{
		Repository: in.counters,
		Seeds:      map[string]int64{cfg.Counters.OrderKey: cfg.Counters.OrderSeed},
		OrderKey:   cfg.Counters.OrderKey,
		Logger:     in.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("counter service: %w", err)
	}

	svc.Attachments, err = services.NewAttachmentService(services.AttachmentServiceDeps{
		Store:                in.store,
		MaxOrderFileBytes:    cfg.Storage.MaxOrderFileSize,
		MaxProductImageBytes: cfg.Storage.MaxImageSize,
		Logger:               in.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("attachment service: %w", err)
	}

	svc.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
		Products:    in.products,
		Prices:      in.prices,
		Attachments: svc.Attachments,
		Cache:       in.cache,
		Logger:      in.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("catalog service: %w", err)
	}

	policy, err := services.ParseCustomPricingPolicy(cfg.Pricing.CustomPolicy)
	if err != nil {
		return Services{}, err
	}
	svc.Pricing, err = services.NewPricingEngine(services.PricingEngineDeps{
		Catalog: svc.Catalog,
		Policy:  policy,
		Logger:  in.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("pricing engine: %w", err)
	}

	svc.Notifications, err = services.NewNotificationService(services.NotificationServiceDeps{
		Transport:    in.transport,
		From:         cfg.Notifications.From,
		ShopName:     cfg.Notifications.ShopName,
		ShopAddress:  cfg.Notifications.ShopAddress,
		ShopWhatsApp: cfg.Notifications.ShopWhatsApp,
		Recorder:     in.metrics,
		Logger:       in.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("notification service: %w", err)
	}

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:           in.orders,
		Counters:         svc.Counters,
		Pricing:          svc.Pricing,
		Attachments:      svc.Attachments,
		Notifications:    svc.Notifications,
		Events:           in.events,
		Recorder:         in.metrics,
		MaxFilesPerOrder: cfg.Storage.MaxFilesPerOrder,
		Logger:           in.logger,
		Background:       background(in.tasks),
	})
	if err != nil {
		return Services{}, fmt.Errorf("order service: %w", err)
	}

	svc.Stats, err = services.NewStatsService(services.StatsServiceDeps{
		Orders:   in.orders,
		Catalog:  svc.Catalog,
		Location: statsLocation(cfg.Stats.TimeZone),
	})
	if err != nil {
		return Services{}, fmt.Errorf("stats service: %w", err)
	}
	return svc, nil
}

func needsPubSub(cfg config.Config) bool {
	return strings.TrimSpace(cfg.PubSub.OrderEventsTopic) != "" ||
		cfg.Notifications.EmailTransport == config.EmailTransportPubSub
}

// buildEmailTransport returns nil for transport "none", which makes the notification service simulate
// delivery.
func buildEmailTransport(ctx context.Context, cfg config.NotificationConfig, client *pubsub.Client) (services.EmailTransport, error) {
	switch cfg.EmailTransport {
	case config.EmailTransportSMTP:
		t, err := mail.NewSMTPTransport(cfg.SMTP, cfg.From)
		if err != nil {
			return nil, fmt.Errorf("smtp transport: %w", err)
		}
		return t, nil
	case config.EmailTransportPubSub:
		if client == nil {
			return nil, errors.New("mail queue: pubsub client is required")
		}
		topic, err := jobs.Topic(ctx, client, cfg.MailTopic)
		if err != nil {
			return nil, fmt.Errorf("mail queue topic: %w", err)
		}
		q, err := jobs.NewPubSubMailQueue(topic)
		if err != nil {
			return nil, err
		}
		return q, nil
	case config.EmailTransportNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown email transport %q", cfg.EmailTransport)
	}
}

// buildAdminGuard selects the middleware protecting /admin according to the auth mode.
func buildAdminGuard(ctx context.Context, cfg config.Config) (func(http.Handler) http.Handler, error) {
	role := strings.TrimSpace(cfg.Auth.AdminRole)
	if role == "" {
		role = auth.RoleAdmin
	}
	switch cfg.Auth.Mode {
	case config.AuthModeDisabled:
		return auth.AllowAll("local-admin"), nil
	case config.AuthModeFirebase:
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, fmt.Errorf("firebase verifier: %w", err)
		}
		return auth.NewAuthenticator(verifier).RequireRole(role), nil
	default:
		var opts []auth.JWTOption
		if issuer := strings.TrimSpace(cfg.Auth.JWTIssuer); issuer != "" {
			opts = append(opts, auth.WithJWTIssuer(issuer))
		}
		verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, opts...)
		if err != nil {
			return nil, fmt.Errorf("jwt verifier: %w", err)
		}
		return auth.NewAuthenticator(verifier).RequireRole(role), nil
	}
}

// BuildInfo derives health metadata from configuration.
func BuildInfo(cfg config.Config, startedAt time.Time) services.BuildInfo {
	return services.BuildInfo{
		Version:     cfg.Server.Version,
		CommitSHA:   cfg.Server.CommitSHA,
		Environment: cfg.Server.Environment,
		StartedAt:   startedAt,
	}
}

func statsLocation(name string) *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(name))
	if err != nil {
		return time.UTC
	}
	return loc
}

// uploadBodyLimit allows a full batch of maximum-size files plus multipart overhead.
func uploadBodyLimit(cfg config.StorageConfig) int64 {
	if cfg.MaxOrderFileSize <= 0 || cfg.MaxFilesPerOrder <= 0 {
		return 0
	}
	return cfg.MaxOrderFileSize*int64(cfg.MaxFilesPerOrder) + 1<<20
}

func topicExists(topic *pubsub.Topic) func(context.Context) error {
	return func(ctx context.Context) error {
		ok, err := topic.Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("topic %s not found", topic.ID())
		}
		return nil
	}
}
