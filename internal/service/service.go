// Package service orchestrates a proxy request: URL validation, cache lookup,
// coalesced upstream fetch, extraction and cache store.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/scrape-proxy/internal/cache"
	"github.com/JakeFAU/scrape-proxy/internal/guard"
	"github.com/JakeFAU/scrape-proxy/internal/logging"
	"github.com/JakeFAU/scrape-proxy/internal/metrics"
	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

// ResultCache is the subset of cache.Cache the service needs.
type ResultCache interface {
	Get(key string) (scrape.ExtractionResult, bool)
	Put(key string, value scrape.ExtractionResult)
	Delete(key string) bool
	Clear() int
	Len() int
	TTL() time.Duration
	Stats() cache.Stats
}

// Config controls Service behavior.
type Config struct {
	// MaxConcurrentFetches caps outbound fetches across all keys.
	MaxConcurrentFetches int
	// LoadTimeout bounds the shared work of one coalesced miss: rate limit
	// wait, fetch slot, fetch and extraction.
	LoadTimeout time.Duration
}

// Outcome is the result of one Handle call. Exactly one of Result (when
// Success) or Err is meaningful.
type Outcome struct {
	Success     bool
	URL         string
	Result      scrape.ExtractionResult
	Err         error
	CacheStatus scrape.CacheStatus
	Timestamp   time.Time
	Elapsed     time.Duration
}

// Kind returns the error kind of a failed outcome, or "" on success.
func (o Outcome) Kind() scrape.Kind {
	return scrape.KindOf(o.Err)
}

type loadResult struct {
	result scrape.ExtractionResult
	hit    bool
}

// Service wires the guard, cache, limiter, fetcher and extractor together.
type Service struct {
	guard     *guard.Guard
	cache     ResultCache
	fetcher   scrape.Fetcher
	extractor scrape.Extractor
	limiter   scrape.Limiter
	clock     scrape.Clock
	flight    singleflight.Group
	fetchSem  *semaphore.Weighted
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Service. limiter may be nil to disable rate limiting.
func New(
	g *guard.Guard,
	resultCache ResultCache,
	fetcher scrape.Fetcher,
	extractor scrape.Extractor,
	limiter scrape.Limiter,
	clock scrape.Clock,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = 1
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		guard:     g,
		cache:     resultCache,
		fetcher:   fetcher,
		extractor: extractor,
		limiter:   limiter,
		clock:     clock,
		fetchSem:  semaphore.NewWeighted(int64(cfg.MaxConcurrentFetches)),
		cfg:       cfg,
		logger:    logger.Named("service"),
	}
}

// Handle serves one proxy request. It never panics and never returns a
// partially filled success.
func (s *Service) Handle(ctx context.Context, rawURL string) (out Outcome) {
	start := s.clock.Now()
	out = Outcome{URL: rawURL, CacheStatus: scrape.CacheMiss}
	logger := logging.FromContext(ctx, s.logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("proxy request panicked", zap.Any("panic", r), zap.String("url", out.URL))
			out.Success = false
			out.Result = scrape.ExtractionResult{}
			out.Err = scrape.Errorf(scrape.KindInternal, "unexpected failure: %v", r)
		}
		out.Timestamp = s.clock.Now()
		out.Elapsed = out.Timestamp.Sub(start)
		outcome := "success"
		if !out.Success {
			outcome = string(out.Kind())
		}
		metrics.ObserveProxyRequest(string(out.CacheStatus), outcome)
	}()

	target, err := s.guard.Validate(rawURL)
	if err != nil {
		logger.Info("rejected url", zap.String("url", rawURL), zap.Error(err))
		out.Err = err
		return out
	}
	key := target.String()
	out.URL = key

	if res, ok := s.cache.Get(key); ok {
		out.Success = true
		out.Result = res
		out.CacheStatus = scrape.CacheHit
		logger.Debug("cache hit", zap.String("url", key))
		return out
	}

	loaded, err := s.loadShared(ctx, key)
	if err != nil {
		logger.Warn("proxy request failed",
			zap.String("url", key),
			zap.String("kind", string(scrape.KindOf(err))),
			zap.Error(err),
		)
		out.Err = err
		return out
	}
	out.Success = true
	out.Result = loaded.result
	if loaded.hit {
		out.CacheStatus = scrape.CacheHit
	}
	return out
}

// loadShared joins the in-flight load for key, or starts one. The load runs
// detached from any single caller so one client going away does not fail the
// others; each caller still stops waiting when its own context ends.
func (s *Service) loadShared(ctx context.Context, key string) (loadResult, error) {
	ch := s.flight.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.LoadTimeout)
		defer cancel()
		return s.load(loadCtx, key)
	})

	select {
	case <-ctx.Done():
		return loadResult{}, &scrape.Error{
			Kind: scrape.ClassifyTransport(ctx.Err()),
			URL:  key,
			Err:  fmt.Errorf("request ended while waiting for upstream: %w", ctx.Err()),
		}
	case r := <-ch:
		if r.Err != nil {
			return loadResult{}, r.Err
		}
		loaded, ok := r.Val.(loadResult)
		if !ok {
			return loadResult{}, scrape.Errorf(scrape.KindInternal, "unexpected load result %T", r.Val)
		}
		return loaded, nil
	}
}

func (s *Service) load(ctx context.Context, key string) (res loadResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = scrape.Errorf(scrape.KindInternal, "load panicked: %v", r)
		}
	}()

	// A flight that finished between our lookup and joining the group has
	// already stored the result.
	if cached, ok := s.cache.Get(key); ok {
		return loadResult{result: cached, hit: true}, nil
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, key); err != nil {
			return loadResult{}, &scrape.Error{Kind: scrape.KindRateLimited, URL: key, Err: err}
		}
	}

	page, err := s.fetch(ctx, key)
	if err != nil {
		return loadResult{}, err
	}
	if page.Truncated {
		s.logger.Warn("upstream body exceeded size limit; extracting the retained part",
			zap.String("url", key),
			zap.Int("bytes", len(page.Body)),
		)
	}

	result, err := s.extractor.Extract(page)
	if err != nil {
		kind := scrape.KindInternal
		if errors.Is(err, scrape.ErrUndecodable) {
			kind = scrape.KindUndecodable
		}
		return loadResult{}, &scrape.Error{Kind: kind, URL: key, Err: err}
	}
	metrics.ObserveExtraction(string(result.Tier))

	s.cache.Put(key, result)
	s.logger.Info("fetched and extracted",
		zap.String("url", key),
		zap.String("final_url", result.URL),
		zap.String("tier", string(result.Tier)),
		zap.Duration("fetch_duration", page.Duration),
		zap.Int("bytes", len(page.Body)),
	)
	return loadResult{result: result}, nil
}

func (s *Service) fetch(ctx context.Context, key string) (scrape.RawPage, error) {
	if err := s.fetchSem.Acquire(ctx, 1); err != nil {
		return scrape.RawPage{}, &scrape.Error{
			Kind: scrape.ClassifyTransport(err),
			URL:  key,
			Err:  fmt.Errorf("acquire fetch slot: %w", err),
		}
	}
	defer s.fetchSem.Release(1)
	metrics.IncInflightFetches()
	defer metrics.DecInflightFetches()

	page, err := s.fetcher.Fetch(ctx, key)
	if err != nil {
		var se *scrape.Error
		if !errors.As(err, &se) {
			err = &scrape.Error{Kind: scrape.ClassifyTransport(err), URL: key, Err: err}
		}
		metrics.ObserveFetch(s.guard.Domain(), string(scrape.KindOf(err)), 0, page.Duration)
		return scrape.RawPage{}, err
	}
	metrics.ObserveFetch(s.guard.Domain(), "success", len(page.Body), page.Duration)
	return page, nil
}

// CacheInfo reports the current entry count and TTL.
func (s *Service) CacheInfo() (int, time.Duration) {
	return s.cache.Len(), s.cache.TTL()
}

// CacheStats returns a snapshot of the cache.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ClearCache drops every cached result and returns how many were removed.
func (s *Service) ClearCache() int {
	n := s.cache.Clear()
	s.logger.Info("cache cleared", zap.Int("removed", n))
	return n
}

// Invalidate drops the cached result for rawURL. The URL goes through the
// same validation as Handle so callers can pass it in any accepted form.
func (s *Service) Invalidate(rawURL string) (bool, error) {
	target, err := s.guard.Validate(rawURL)
	if err != nil {
		return false, err
	}
	return s.cache.Delete(target.String()), nil
}

// AllowedDomain returns the domain requests are restricted to.
func (s *Service) AllowedDomain() string {
	return s.guard.Domain()
}
