package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ddr-tools/gitstatusd/internal/api"
	"github.com/ddr-tools/gitstatusd/internal/collection"
	"github.com/ddr-tools/gitstatusd/internal/config"
	"github.com/ddr-tools/gitstatusd/internal/kv"
	"github.com/ddr-tools/gitstatusd/internal/lock"
	"github.com/ddr-tools/gitstatusd/internal/service"
	"github.com/ddr-tools/gitstatusd/internal/status"
	"github.com/ddr-tools/gitstatusd/internal/sync/coordinator"
	"github.com/ddr-tools/gitstatusd/internal/telemetry"
	"github.com/ddr-tools/gitstatusd/internal/vcs"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// GitStatusAppOptions is a function that configures the app builder
type GitStatusAppOptions func(*gitStatusAppConfig) error

// gitStatusAppConfig collects what NewGitStatusApp needs. Component overrides
// exist for tests; production builds them from config.
type gitStatusAppConfig struct {
	config *config.Config

	// Optional component overrides
	store     kv.Store
	provider  vcs.StatusProvider
	telemetry *telemetry.Telemetry

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...GitStatusAppOptions) (*gitStatusAppConfig, error) {
	cfg := &gitStatusAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetAPIAddress()
	}

	return cfg, nil
}

// NewGitStatusApp builds the HTTP server and the refresh coordinator
func NewGitStatusApp(
	ctx context.Context,
	opts ...GitStatusAppOptions,
) (*GitStatusApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildComponents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components.StatusService)
	if err != nil {
		_ = components.Close()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &GitStatusApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		telemetry:  cfg.telemetry,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// NewComponents builds the components without an HTTP server, for one-shot commands.
// The caller must Close the result.
func NewComponents(ctx context.Context, opts ...GitStatusAppOptions) (*AppComponents, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildComponents(ctx, cfg)
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) GitStatusAppOptions {
	return func(cfg *gitStatusAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress overrides api.address
func WithAddress(addr string) GitStatusAppOptions {
	return func(cfg *gitStatusAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) GitStatusAppOptions {
	return func(cfg *gitStatusAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStore injects the key/value store instead of building one from cache config
func WithStore(store kv.Store) GitStatusAppOptions {
	return func(cfg *gitStatusAppConfig) error {
		cfg.store = store
		return nil
	}
}

// WithStatusProvider injects the status provider instead of the go-git one
func WithStatusProvider(p vcs.StatusProvider) GitStatusAppOptions {
	return func(cfg *gitStatusAppConfig) error {
		cfg.provider = p
		return nil
	}
}

// WithTelemetry enables metrics and tracing from already initialized providers
func WithTelemetry(t *telemetry.Telemetry) GitStatusAppOptions {
	return func(cfg *gitStatusAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// buildComponents builds the store, locks, coordinator and service
func buildComponents(ctx context.Context, b *gitStatusAppConfig) (*AppComponents, error) {
	slog.Info("Initializing components", "base_path", b.config.BasePath)

	if b.store == nil {
		redisOpts, err := redisOptions(b.config)
		if err != nil {
			return nil, err
		}
		b.store, err = kv.New(ctx, b.config.GetCacheType(), redisOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to create key/value store: %w", err)
		}
	}

	globalLock, err := lock.NewFileCoordinator(b.config.BasePath)
	if err != nil {
		_ = b.store.Close()
		return nil, fmt.Errorf("failed to create global lock: %w", err)
	}

	if b.provider == nil {
		providerOpts := []vcs.Option{
			vcs.WithRemote(b.config.GetRemote()),
			vcs.WithTimeout(b.config.GetProviderTimeout()),
		}
		if b.config.Provider.Annex {
			providerOpts = append(providerOpts, vcs.WithAnnex(vcs.NewAnnexRunner()))
		}
		b.provider = vcs.NewGitStatusProvider(providerOpts...)
	}

	statuses := status.NewFileStatusPersistence(b.config.BasePath)

	coordOpts, svcOpts, err := telemetryOptions(b.telemetry)
	if err != nil {
		_ = b.store.Close()
		return nil, err
	}

	coord := coordinator.New(b.config, coordinator.Dependencies{
		Store:      b.store,
		GlobalLock: globalLock,
		Provider:   b.provider,
		Statuses:   statuses,
		EditLocks:  collection.NewFileLockQuery(b.config.BasePath),
	}, coordOpts...)

	svc := service.New(b.config, service.Dependencies{
		Directory:     collection.NewFSDirectory(b.config.BasePath),
		Statuses:      statuses,
		Store:         b.store,
		GlobalLock:    globalLock,
		ExecutionLock: kv.NewExecutionLock(b.store, coordinator.ExecutionLockKey, b.config.GetExecutionLockTTL()),
	}, svcOpts...)

	slog.Info("Components initialized successfully", "cache", b.config.GetCacheType())
	return &AppComponents{
		Coordinator:   coord,
		StatusService: svc,
		GlobalLock:    globalLock,
		Store:         b.store,
	}, nil
}

func redisOptions(cfg *config.Config) (kv.RedisOptions, error) {
	if cfg.Cache.Redis == nil {
		return kv.RedisOptions{}, nil
	}
	password, err := cfg.Cache.Redis.GetPassword()
	if err != nil {
		return kv.RedisOptions{}, fmt.Errorf("failed to get redis password: %w", err)
	}
	return kv.RedisOptions{
		Address:  cfg.Cache.Redis.Address,
		Password: password,
		DB:       cfg.Cache.Redis.DB,
	}, nil
}

func telemetryOptions(t *telemetry.Telemetry) ([]coordinator.Option, []service.ServiceOption, error) {
	if t == nil {
		return nil, nil, nil
	}

	refreshMetrics, err := telemetry.NewRefreshMetrics(t.MeterProvider())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create refresh metrics: %w", err)
	}
	statusMetrics, err := telemetry.NewStatusMetrics(t.MeterProvider())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create status metrics: %w", err)
	}

	coordOpts := []coordinator.Option{
		coordinator.WithRefreshMetrics(refreshMetrics),
		coordinator.WithTracer(t.Tracer(telemetry.RefreshMetricsMeterName)),
	}
	svcOpts := []service.ServiceOption{
		service.WithStatusMetrics(statusMetrics),
		service.WithTracer(t.Tracer(telemetry.StatusMetricsMeterName)),
	}
	return coordOpts, svcOpts, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *gitStatusAppConfig,
	svc service.StatusService,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	var serverOpts []api.ServerOption
	if b.telemetry != nil {
		httpMetrics, err := telemetry.NewHTTPMetrics(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		// Prepend so that every request is measured and traced
		b.middlewares = append([]func(http.Handler) http.Handler{
			telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
			httpMetrics.Middleware,
		}, b.middlewares...)

		if h := b.telemetry.PrometheusHandler(); h != nil {
			serverOpts = append(serverOpts, api.WithMetricsHandler(h))
			slog.Info("Prometheus metrics endpoint enabled", "path", "/metrics")
		}
	}
	serverOpts = append(serverOpts, api.WithMiddlewares(b.middlewares...))

	router := api.NewServer(svc, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
