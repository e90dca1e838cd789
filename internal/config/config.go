// Package config loads and validates proxy configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/scrape-proxy/internal/cache"
)

// EnvPrefix namespaces environment overrides, e.g. SCRAPEPROXY_SERVER_PORT.
const EnvPrefix = "SCRAPEPROXY"

const loadTimeoutHeadroom = time.Second

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig guards the cache admin routes.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ProxyConfig restricts which URLs may be fetched.
type ProxyConfig struct {
	AllowedDomain   string `mapstructure:"allowed_domain"`
	AllowSubdomains bool   `mapstructure:"allow_subdomains"`
}

// CacheConfig sizes the result cache.
type CacheConfig struct {
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	MaxEntries int    `mapstructure:"max_entries"`
	Eviction   string `mapstructure:"eviction"`
}

// FetchConfig tunes the upstream client.
type FetchConfig struct {
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int      `mapstructure:"max_body_bytes"`
	UserAgents     []string `mapstructure:"user_agents"`
	MaxConcurrency int      `mapstructure:"max_concurrency"`
	RatePerMinute  float64  `mapstructure:"rate_per_minute"`
	Burst          int      `mapstructure:"burst"`
}

// CORSConfig lists origins allowed to call /api routes from a browser.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Proxy.AllowedDomain = strings.ToLower(strings.TrimSpace(cfg.Proxy.AllowedDomain))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("proxy.allowed_domain", "efootballhub.net")
	v.SetDefault("proxy.allow_subdomains", true)
	v.SetDefault("cache.ttl_seconds", 1800)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.eviction", string(cache.PolicyFIFO))
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("fetch.user_agents", []string{})
	v.SetDefault("fetch.max_concurrency", 8)
	v.SetDefault("fetch.rate_per_minute", 15)
	v.SetDefault("fetch.burst", 5)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return errors.New("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if c.Proxy.AllowedDomain == "" {
		return errors.New("proxy.allowed_domain must be set")
	}
	if strings.ContainsAny(c.Proxy.AllowedDomain, "/:@ ") {
		return fmt.Errorf("proxy.allowed_domain must be a bare host name, got %q", c.Proxy.AllowedDomain)
	}
	if c.Cache.TTLSeconds <= 0 {
		return errors.New("cache.ttl_seconds must be > 0")
	}
	if c.Cache.MaxEntries <= 0 {
		return errors.New("cache.max_entries must be > 0")
	}
	if _, err := cache.ParsePolicy(c.Cache.Eviction); err != nil {
		return fmt.Errorf("cache.eviction: %w", err)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return errors.New("fetch.timeout_seconds must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= c.Fetch.TimeoutSeconds {
		return fmt.Errorf("server.request_timeout_seconds (%d) must exceed fetch.timeout_seconds (%d)",
			c.Server.RequestTimeoutSeconds, c.Fetch.TimeoutSeconds)
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return errors.New("fetch.max_body_bytes must be >= 0")
	}
	if c.Fetch.MaxConcurrency <= 0 {
		return errors.New("fetch.max_concurrency must be > 0")
	}
	if c.Fetch.RatePerMinute < 0 {
		return errors.New("fetch.rate_per_minute must be >= 0")
	}
	if c.Fetch.RatePerMinute > 0 && c.Fetch.Burst <= 0 {
		return errors.New("fetch.burst must be > 0 when rate limiting is enabled")
	}
	return nil
}

// CacheTTL is the cache freshness window.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// FetchTimeout bounds a single upstream fetch.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds handling of one inbound HTTP request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// LoadTimeout bounds one upstream load (rate limit wait, fetch and extract).
// It ends a second before the request timeout so the service reports the
// timeout itself instead of the HTTP timeout handler.
func (c Config) LoadTimeout() time.Duration {
	return c.RequestTimeout() - loadTimeoutHeadroom
}

// ShutdownTimeout bounds graceful server shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// CachePolicy returns the parsed eviction policy. Validate has already
// rejected unknown values.
func (c Config) CachePolicy() cache.Policy {
	p, err := cache.ParsePolicy(c.Cache.Eviction)
	if err != nil {
		return cache.PolicyFIFO
	}
	return p
}
