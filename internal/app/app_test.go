package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-proxy/internal/app"
	"github.com/JakeFAU/scrape-proxy/internal/config"
	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

// MockFetcher mocks the scrape.Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

// Fetch satisfies scrape.Fetcher for the mock.
func (m *MockFetcher) Fetch(ctx context.Context, url string) (scrape.RawPage, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(scrape.RawPage), args.Error(1)
}

func validConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5},
		Proxy:  config.ProxyConfig{AllowedDomain: "alloweddomain.example", AllowSubdomains: true},
		Cache:  config.CacheConfig{TTLSeconds: 60, MaxEntries: 10, Eviction: "lru"},
		Fetch:  config.FetchConfig{TimeoutSeconds: 2, MaxConcurrency: 1, RatePerMinute: 600, Burst: 5},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Proxy.AllowedDomain = ""
	_, err := app.NewApp(cfg, zap.NewNop())
	require.Error(t, err)
}

func TestNewAppWiresServices(t *testing.T) {
	t.Parallel()

	fetcher := &MockFetcher{}
	fetcher.On("Fetch", mock.Anything, "https://alloweddomain.example/players").Return(scrape.RawPage{
		URL:         "https://alloweddomain.example/players",
		StatusCode:  http.StatusOK,
		ContentType: "text/html",
		Body:        []byte("<title>Players</title>"),
	}, nil).Once()

	a, err := app.NewApp(validConfig(), zap.NewNop(), app.WithFetcher(fetcher))
	require.NoError(t, err)
	defer a.Close()

	out := a.Service().Handle(context.Background(), "alloweddomain.example/players")
	require.True(t, out.Success, "err: %v", out.Err)
	require.Equal(t, "Players", out.Result.Title)
	require.Equal(t, scrape.PageTypePlayer, out.Result.PageType)

	out = a.Service().Handle(context.Background(), "https://alloweddomain.example/players")
	require.Equal(t, scrape.CacheHit, out.CacheStatus)
	fetcher.AssertExpectations(t)

	out = a.Service().Handle(context.Background(), "https://elsewhere.example/")
	require.Equal(t, scrape.KindInvalidDomain, out.Kind())

	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alloweddomain.example", a.Config().Proxy.AllowedDomain)
	require.NotNil(t, a.Logger())
	require.NotNil(t, a.Clock())
}
