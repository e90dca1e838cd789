package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-proxy/internal/cache"
	"github.com/JakeFAU/scrape-proxy/internal/extract"
	"github.com/JakeFAU/scrape-proxy/internal/guard"
	"github.com/JakeFAU/scrape-proxy/internal/policy/ratelimit"
	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

const homeHTML = `<html><head><title>Home</title></head><body>
<a href="/a">First link</a><a href="/b">Second link</a><a href="/c">Third link</a>
<a href="/d">Fourth link</a><a href="/e">Fifth link</a></body></html>`

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	gate    chan struct{}
	page    scrape.RawPage
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (scrape.RawPage, error) {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return scrape.RawPage{}, ctx.Err()
		}
	}
	if f.err != nil {
		return scrape.RawPage{}, f.err
	}
	page := f.page
	page.URL = url
	page.RequestedURL = url
	return page, nil
}

type limiterFunc func(ctx context.Context, url string) error

func (f limiterFunc) Wait(ctx context.Context, url string) error { return f(ctx, url) }

type panickingExtractor struct{}

func (panickingExtractor) Extract(scrape.RawPage) (scrape.ExtractionResult, error) {
	panic("boom")
}

type fixture struct {
	svc     *Service
	fetcher *fakeFetcher
	clock   *fakeClock
	cache   *cache.Cache[string, scrape.ExtractionResult]
}

func newFixture(t *testing.T, fetcher *fakeFetcher, extractor scrape.Extractor, limiter scrape.Limiter) fixture {
	t.Helper()
	if fetcher.page.Body == nil {
		fetcher.page = scrape.RawPage{
			StatusCode:  200,
			ContentType: "text/html",
			Body:        []byte(homeHTML),
			UserAgent:   "agent",
			Duration:    5 * time.Millisecond,
		}
	}
	if extractor == nil {
		extractor = extract.NewDefault(zap.NewNop())
	}
	clk := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := cache.New[string, scrape.ExtractionResult](cache.Config{TTL: 30 * time.Minute, MaxEntries: 100}, clk)
	svc := New(
		guard.New("alloweddomain.example", true),
		c,
		fetcher,
		extractor,
		limiter,
		clk,
		Config{MaxConcurrentFetches: 2, LoadTimeout: 2 * time.Second},
		zap.NewNop(),
	)
	return fixture{svc: svc, fetcher: fetcher, clock: clk, cache: c}
}

func TestHandleRejectsOffDomainWithoutFetching(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeFetcher{}, nil, nil)

	out := f.svc.Handle(context.Background(), "https://evil.example/players")
	require.False(t, out.Success)
	require.Equal(t, scrape.KindInvalidDomain, out.Kind())
	require.Zero(t, f.fetcher.calls.Load())

	out = f.svc.Handle(context.Background(), "ftp://alloweddomain.example/")
	require.Equal(t, scrape.KindMalformedURL, out.Kind())

	out = f.svc.Handle(context.Background(), "   ")
	require.Equal(t, scrape.KindMalformedURL, out.Kind())
	require.Zero(t, f.fetcher.calls.Load())
}

func TestHandleExtractsHomeScenario(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeFetcher{}, nil, nil)

	out := f.svc.Handle(context.Background(), "alloweddomain.example")
	require.True(t, out.Success, "err: %v", out.Err)
	require.Equal(t, scrape.CacheMiss, out.CacheStatus)
	require.Equal(t, "https://alloweddomain.example/", out.URL)
	require.Equal(t, "Home", out.Result.Title)
	require.Equal(t, 5, out.Result.Statistics.Links)
	require.Equal(t, scrape.TierStructured, out.Result.Tier)
	require.Equal(t, f.clock.Now(), out.Timestamp)
}

func TestHandleServesHitWithinTTLAndRefetchesAfter(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeFetcher{}, nil, nil)
	ctx := context.Background()

	first := f.svc.Handle(ctx, "https://alloweddomain.example/players")
	require.True(t, first.Success)
	require.Equal(t, scrape.CacheMiss, first.CacheStatus)

	f.clock.Advance(29 * time.Minute)
	second := f.svc.Handle(ctx, "https://ALLOWEDDOMAIN.example/players#top")
	require.True(t, second.Success)
	require.Equal(t, scrape.CacheHit, second.CacheStatus)
	require.Equal(t, first.Result, second.Result)
	require.EqualValues(t, 1, f.fetcher.calls.Load())

	f.clock.Advance(2 * time.Minute)
	third := f.svc.Handle(ctx, "https://alloweddomain.example/players")
	require.True(t, third.Success)
	require.Equal(t, scrape.CacheMiss, third.CacheStatus)
	require.EqualValues(t, 2, f.fetcher.calls.Load())
}

func TestHandleReportsFetchErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		kind   scrape.Kind
		status int
	}{
		{"classified timeout", &scrape.Error{Kind: scrape.KindTimeout, Err: context.DeadlineExceeded}, scrape.KindTimeout, 0},
		{"bare deadline", context.DeadlineExceeded, scrape.KindTimeout, 0},
		{"bare network", errors.New("connection refused"), scrape.KindNetwork, 0},
		{"upstream status", &scrape.Error{Kind: scrape.KindHTTPStatus, StatusCode: 503, Err: errors.New("unavailable")}, scrape.KindHTTPStatus, 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, &fakeFetcher{err: tt.err}, nil, nil)

			out := f.svc.Handle(context.Background(), "https://alloweddomain.example/")
			require.False(t, out.Success)
			require.Equal(t, tt.kind, out.Kind())
			if tt.status != 0 {
				var se *scrape.Error
				require.ErrorAs(t, out.Err, &se)
				require.Equal(t, tt.status, se.StatusCode)
			}
			require.Zero(t, f.cache.Len(), "failures are not cached")
		})
	}
}

func TestHandleCoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{started: make(chan struct{}, 1), gate: make(chan struct{})}
	f := newFixture(t, fetcher, nil, nil)
	ctx := context.Background()

	const callers = 5
	outcomes := make(chan Outcome, callers)
	go func() { outcomes <- f.svc.Handle(ctx, "https://alloweddomain.example/squad") }()
	<-fetcher.started

	for range callers - 1 {
		go func() { outcomes <- f.svc.Handle(ctx, "https://alloweddomain.example/squad") }()
	}
	time.Sleep(50 * time.Millisecond)
	close(fetcher.gate)

	for range callers {
		out := <-outcomes
		require.True(t, out.Success, "err: %v", out.Err)
		require.Equal(t, "Home", out.Result.Title)
	}
	require.EqualValues(t, 1, fetcher.calls.Load())
}

func TestHandleFallsThroughToRawForNonHTML(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{page: scrape.RawPage{
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"ok":true}`),
	}}
	f := newFixture(t, fetcher, nil, nil)

	out := f.svc.Handle(context.Background(), "https://alloweddomain.example/api")
	require.True(t, out.Success)
	require.Equal(t, scrape.TierRawOnly, out.Result.Tier)
	require.Equal(t, extract.UnparsedTitle, out.Result.Title)
}

func TestHandleUndecodableContent(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{page: scrape.RawPage{
		StatusCode:  200,
		ContentType: "application/octet-stream",
		Body:        []byte{0xff, 0xfe, 0xfd},
	}}
	f := newFixture(t, fetcher, nil, nil)

	out := f.svc.Handle(context.Background(), "https://alloweddomain.example/blob")
	require.False(t, out.Success)
	require.Equal(t, scrape.KindUndecodable, out.Kind())
	require.ErrorIs(t, out.Err, scrape.ErrUndecodable)
	require.Zero(t, f.cache.Len())
}

func TestHandleRateLimited(t *testing.T) {
	t.Parallel()
	limiter := limiterFunc(func(context.Context, string) error {
		return errors.New("rate: Wait(n=1) would exceed context deadline")
	})
	f := newFixture(t, &fakeFetcher{}, nil, limiter)

	out := f.svc.Handle(context.Background(), "https://alloweddomain.example/")
	require.False(t, out.Success)
	require.Equal(t, scrape.KindRateLimited, out.Kind())
	require.Zero(t, f.fetcher.calls.Load())
}

func TestHandleSubdomainsShareRateBudget(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.New(ratelimit.Config{PerMinute: 1, Burst: 1, Domain: "alloweddomain.example"})
	f := newFixture(t, &fakeFetcher{}, nil, limiter)

	out := f.svc.Handle(context.Background(), "https://x1.alloweddomain.example/")
	require.True(t, out.Success)

	for i := 2; i <= 10; i++ {
		out = f.svc.Handle(context.Background(), fmt.Sprintf("https://x%d.alloweddomain.example/", i))
		require.False(t, out.Success)
		require.Equal(t, scrape.KindRateLimited, out.Kind())
	}
	require.Equal(t, int32(1), f.fetcher.calls.Load())
}

func TestHandleRecoversFromExtractorPanic(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeFetcher{}, panickingExtractor{}, nil)

	var out Outcome
	require.NotPanics(t, func() {
		out = f.svc.Handle(context.Background(), "https://alloweddomain.example/")
	})
	require.False(t, out.Success)
	require.Equal(t, scrape.KindInternal, out.Kind())
}

func TestHandleStopsWaitingWhenCallerCancels(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{started: make(chan struct{}, 1), gate: make(chan struct{})}
	f := newFixture(t, fetcher, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out := f.svc.Handle(ctx, "https://alloweddomain.example/slow")
	require.False(t, out.Success)
	require.Equal(t, scrape.KindTimeout, out.Kind())
	close(fetcher.gate)
}

func TestCacheAdministration(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeFetcher{}, nil, nil)
	ctx := context.Background()

	require.True(t, f.svc.Handle(ctx, "https://alloweddomain.example/a").Success)
	require.True(t, f.svc.Handle(ctx, "https://www.alloweddomain.example/b").Success)

	items, ttl := f.svc.CacheInfo()
	require.Equal(t, 2, items)
	require.Equal(t, 30*time.Minute, ttl)
	require.Equal(t, []string{
		"https://alloweddomain.example/a",
		"https://www.alloweddomain.example/b",
	}, f.svc.CacheStats().Keys)

	removed, err := f.svc.Invalidate("alloweddomain.example/a")
	require.NoError(t, err)
	require.True(t, removed)

	_, err = f.svc.Invalidate("https://evil.example/")
	require.Equal(t, scrape.KindInvalidDomain, scrape.KindOf(err))

	require.Equal(t, 1, f.svc.ClearCache())
	items, _ = f.svc.CacheInfo()
	require.Zero(t, items)
	require.Equal(t, "alloweddomain.example", f.svc.AllowedDomain())
}
