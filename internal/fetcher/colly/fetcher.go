// Package collyfetcher implements scrape.Fetcher using gocolly.
//
// Bodies larger than Config.MaxBodyBytes are cut at the limit and reported
// with RawPage.Truncated set; they are not treated as errors.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

// DefaultTimeout bounds a fetch when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// DefaultUserAgents is the identity pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

var browserHeaders = http.Header{
	"Accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
	"Accept-Language":           {"es-ES,es;q=0.9,en;q=0.8"},
	"Upgrade-Insecure-Requests": {"1"},
	"Cache-Control":             {"max-age=0"},
	"Referer":                   {"https://www.google.com/"},
}

// Config controls collector behavior.
type Config struct {
	UserAgents   []string
	Timeout      time.Duration
	MaxBodyBytes int
	// Pick returns an index in [0, n). Defaults to math/rand/v2.IntN.
	Pick func(n int) int
}

// Fetcher implements scrape.Fetcher using the Colly collector. Each call gets
// its own collector because clones share the underlying HTTP backend; the
// connection pool is shared through the transport.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultUserAgents
	}
	if cfg.Pick == nil {
		cfg.Pick = rand.IntN
	}
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
	}
}

// Fetch executes a single HTTP GET. Redirects are followed and the final URL
// is reported in RawPage.URL. The call is bounded by the configured timeout;
// the request context is bound to the transport so an abandoned request
// releases its connection.
func (f *Fetcher) Fetch(ctx context.Context, url string) (scrape.RawPage, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	identity := f.pickUserAgent()
	collector := f.buildCollector(ctx, identity)
	state := &visitState{}
	f.configureCollectorHooks(collector, time.Now(), state)

	if err := f.runCollector(ctx, collector, url, state); err != nil {
		return scrape.RawPage{}, f.classify(ctx, url, err, state)
	}
	page := state.page
	page.RequestedURL = url
	page.UserAgent = identity
	return page, nil
}

func (f *Fetcher) pickUserAgent() string {
	return f.cfg.UserAgents[f.cfg.Pick(len(f.cfg.UserAgents))]
}

func (f *Fetcher) buildCollector(ctx context.Context, userAgent string) *colly.Collector {
	collector := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	if f.cfg.MaxBodyBytes > 0 {
		// One byte past the limit tells a cut body apart from one that fits exactly.
		collector.MaxBodySize = f.cfg.MaxBodyBytes + 1
	}
	collector.UserAgent = userAgent
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(&contextTransport{ctx: ctx, base: f.transport})
	return collector
}

// visitState is written by collector callbacks on the visiting goroutine and
// read only after that goroutine has finished.
type visitState struct {
	page       scrape.RawPage
	statusCode int
	err        error
	finished   bool
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, start time.Time, state *visitState) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range browserHeaders {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode > 299 {
			state.statusCode = r.StatusCode
			state.err = fmt.Errorf("upstream responded %d %s", r.StatusCode, http.StatusText(r.StatusCode))
			return
		}
		body := r.Body
		truncated := f.cfg.MaxBodyBytes > 0 && len(body) > f.cfg.MaxBodyBytes
		if truncated {
			body = body[:f.cfg.MaxBodyBytes]
		}
		state.page = scrape.RawPage{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), body...),
			Duration:    time.Since(start),
			FetchedAt:   time.Now().UTC(),
			Truncated:   truncated,
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, state *visitState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		state.finished = true
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if state.err != nil {
			return fmt.Errorf("colly response failed: %w", state.err)
		}
		return nil
	}
}

func (f *Fetcher) classify(ctx context.Context, url string, err error, state *visitState) error {
	if state.finished && state.statusCode != 0 {
		return &scrape.Error{Kind: scrape.KindHTTPStatus, StatusCode: state.statusCode, URL: url, Err: err}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &scrape.Error{Kind: scrape.KindTimeout, URL: url, Err: err}
	}
	return &scrape.Error{Kind: scrape.ClassifyTransport(err), URL: url, Err: err}
}

// contextTransport binds outbound requests to the fetch context.
type contextTransport struct {
	ctx  context.Context //nolint:containedctx // scoped to a single fetch
	base http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("context transport received nil request")
	}
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		return nil, fmt.Errorf("context transport roundtrip: %w", err)
	}
	return resp, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
