package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/listing"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/repository/memory"
	"github.com/utafrali/storefront/internal/repository/postgres"
	redisrepo "github.com/utafrali/storefront/internal/repository/redis"
	"github.com/utafrali/storefront/migrations"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/pkg/tracing"
)

const serviceName = "storefront"

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	events         *event.Producer
	unsubscribe    func()
	store          *cart.Store
	loader         *catalog.Loader
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, log *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: log}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	// Cart persistence backend.
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger.Component(log, "database"))
	kv, err := a.openStore(ctx, healthHandler)
	if err != nil {
		a.closeBackends()
		return nil, err
	}

	a.store = cart.NewStore(kv, cart.Config{
		StorageKey:     cfg.CartStorageKey,
		PersistTimeout: cfg.CartPersistTimeout,
	}, logger.Component(log, "cart"))

	// Kafka cart events are optional.
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), log)
		a.events = event.NewProducer(a.producer, cfg.CartStorageKey, cfg.EventBuffer, logger.Component(log, "events"))
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
		log.Info("kafka cart events enabled", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Catalog: the document this server publishes and the client that loads it.
	doc, err := catalog.LoadDocument(cfg.CatalogFile)
	if err != nil {
		a.closeBackends()
		return nil, fmt.Errorf("load catalog document: %w", err)
	}

	hc := httpclient.New(httpclient.Config{
		Timeout:         cfg.CatalogTimeout,
		MaxConnsPerHost: 4,
		UserAgent:       serviceName + "/" + cfg.ServiceVersion,
	})
	cb := httpclient.NewCircuitBreakerClient(hc, httpclient.DefaultCircuitBreakerConfig("catalog"), log)
	client := catalog.NewClient(cb, cfg.ResolvedCatalogURL(), cfg.CatalogFetchDelay, logger.Component(log, "catalog"))
	a.loader = catalog.NewLoader(client, logger.Component(log, "catalog"))
	healthHandler.Register("catalog", a.loader.Ready)

	// Listing and handlers.
	lister := listing.NewLister(a.loader, pagination.Window{Size: cfg.PageSize, Increment: cfg.PageIncrement})
	h := handler.NewHandler(a.loader, a.store, lister, listing.NewSession(lister), cfg.CatalogTimeout, log)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	router := handler.NewRouter(h, healthHandler, handler.RouterConfig{
		ServiceName: serviceName,
		CORS:        cors,
		PprofCIDRs:  cfg.PprofAllowedCIDRs,
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		}, log),
		Document: doc,
	}, log)

	a.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the configured cart backend and registers its health
// check.
func (a *App) openStore(ctx context.Context, hh *health.Handler) (repository.KVStore, error) {
	cfg := a.cfg
	switch cfg.CartBackend {
	case config.BackendRedis:
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Host:        cfg.RedisHost,
			Port:        cfg.RedisPort,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		a.logger.Info("connected to Redis",
			slog.String("host", cfg.RedisHost),
			slog.Int("port", cfg.RedisPort),
			slog.Int("db", cfg.RedisDB),
		)
		store := redisrepo.NewKVStore(rdb, 0)
		hh.Register("redis", store.Ping)
		return store, nil

	case config.BackendPostgres:
		pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			DBName:   cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSLMode,
			MaxConns: cfg.PostgresMaxConns,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		a.logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
			a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}
		if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")
		store := postgres.NewKVStore(pool)
		hh.Register("postgres", store.Ping)
		return store, nil

	case config.BackendMemory:
		a.logger.Warn("cart persisted in memory only, it will not survive a restart")
		return memory.NewKVStore(), nil

	default:
		return nil, fmt.Errorf("unknown cart store backend %q", cfg.CartBackend)
	}
}

// Run restores the cart, starts the HTTP server, loads the catalog and blocks
// until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.store.Rehydrate(ctx)

	// Subscribed after rehydration so restoring the cart publishes nothing.
	if a.events != nil {
		a.unsubscribe = a.store.Subscribe(a.events.Observe)
	}

	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", ln.Addr().String()))
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// The default catalog URL points at this server, so load once it listens.
	go func() {
		if err := a.loader.Load(ctx); err != nil {
			a.logger.Error("initial catalog load failed, waiting for a refresh",
				slog.String("error", err.Error()))
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order: HTTP server, cart
// persistence queue, cart events, Kafka producer, tracer, storage backends.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.store.Close(ctx); err != nil {
		a.logger.Error("cart store close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.events != nil {
		if err := a.events.Close(ctx); err != nil {
			a.logger.Error("cart events close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.closeBackends()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeBackends() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
