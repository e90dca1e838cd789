// Package app builds and holds the long-lived services of the proxy, acting as
// a dependency injection container for the CLI commands.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-proxy/internal/api"
	"github.com/JakeFAU/scrape-proxy/internal/cache"
	"github.com/JakeFAU/scrape-proxy/internal/clock/system"
	"github.com/JakeFAU/scrape-proxy/internal/config"
	"github.com/JakeFAU/scrape-proxy/internal/extract"
	collyfetcher "github.com/JakeFAU/scrape-proxy/internal/fetcher/colly"
	"github.com/JakeFAU/scrape-proxy/internal/guard"
	"github.com/JakeFAU/scrape-proxy/internal/metrics"
	"github.com/JakeFAU/scrape-proxy/internal/policy/ratelimit"
	"github.com/JakeFAU/scrape-proxy/internal/scrape"
	"github.com/JakeFAU/scrape-proxy/internal/service"
)

// App holds the shared services. It is built once at startup.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	clock   scrape.Clock
	service *service.Service
	server  *api.Server
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	fetcher scrape.Fetcher
	clock   scrape.Clock
}

// WithFetcher replaces the colly fetcher.
func WithFetcher(f scrape.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithClock replaces the system clock.
func WithClock(c scrape.Clock) Option {
	return func(o *options) { o.clock = c }
}

// NewApp wires guard, cache, limiter, fetcher, extractor, service and HTTP
// server from cfg. It fails fast on invalid configuration.
func NewApp(cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = system.New()
	}
	if o.fetcher == nil {
		o.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgents:   cfg.Fetch.UserAgents,
			Timeout:      cfg.FetchTimeout(),
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		})
	}

	resultCache := cache.New[string, scrape.ExtractionResult](cache.Config{
		TTL:        cfg.CacheTTL(),
		MaxEntries: cfg.Cache.MaxEntries,
		Policy:     cfg.CachePolicy(),
	}, o.clock).WithObserver(metrics.CacheObserver{})

	var limiter scrape.Limiter
	if cfg.Fetch.RatePerMinute > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			PerMinute: cfg.Fetch.RatePerMinute,
			Burst:     cfg.Fetch.Burst,
			Domain:    cfg.Proxy.AllowedDomain,
		})
	}

	svc := service.New(
		guard.New(cfg.Proxy.AllowedDomain, cfg.Proxy.AllowSubdomains),
		resultCache,
		o.fetcher,
		extract.NewDefault(logger.Named("extract")),
		limiter,
		o.clock,
		service.Config{
			MaxConcurrentFetches: cfg.Fetch.MaxConcurrency,
			LoadTimeout:          cfg.LoadTimeout(),
		},
		logger,
	)

	logger.Info("application services initialized",
		zap.String("allowed_domain", cfg.Proxy.AllowedDomain),
		zap.Bool("allow_subdomains", cfg.Proxy.AllowSubdomains),
		zap.Duration("cache_ttl", cfg.CacheTTL()),
		zap.Int("cache_max_entries", cfg.Cache.MaxEntries),
		zap.String("cache_eviction", string(cfg.CachePolicy())),
		zap.Float64("rate_per_minute", cfg.Fetch.RatePerMinute),
	)

	return &App{
		cfg:     cfg,
		logger:  logger,
		clock:   o.clock,
		service: svc,
		server:  api.NewServer(svc, o.clock, cfg, logger),
	}, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Clock returns the clock shared by the services.
func (a *App) Clock() scrape.Clock {
	return a.clock
}

// Service returns the proxy service.
func (a *App) Service() *service.Service {
	return a.service
}

// Server returns the HTTP server.
func (a *App) Server() *api.Server {
	return a.server
}

// Close flushes the logger. It is called by a cobra hook after the command
// finishes.
func (a *App) Close() {
	// Sync on a console sink commonly fails with EINVAL; nothing to do then.
	_ = a.logger.Sync()
}
