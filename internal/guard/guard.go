// Package guard validates inbound URLs against the single allowed domain and
// produces the canonical form used as the cache key.
package guard

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

// NormalizedURL is a validated absolute https URL on the allowed domain. The
// zero value is not valid; only Guard.Validate produces usable values.
type NormalizedURL struct {
	raw string
}

// String returns the canonical URL.
func (n NormalizedURL) String() string {
	return n.raw
}

// IsZero reports whether n was not produced by Validate.
func (n NormalizedURL) IsZero() bool {
	return n.raw == ""
}

// Guard checks URLs against one allowed host.
type Guard struct {
	domain          string
	allowSubdomains bool
}

// New builds a Guard for domain. When allowSubdomains is set, any host ending
// in "."+domain is accepted as well.
func New(domain string, allowSubdomains bool) *Guard {
	domain = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(domain)), ".")
	domain = strings.TrimPrefix(domain, "*.")
	return &Guard{domain: domain, allowSubdomains: allowSubdomains}
}

// Domain returns the allowed domain.
func (g *Guard) Domain() string {
	return g.domain
}

// Validate parses raw, enforces the domain policy, and normalizes the result.
// The scheme is forced to https, the host is lowercased, default ports and
// fragments are dropped, and an empty path becomes "/". Path and query are
// otherwise preserved.
func (g *Guard) Validate(raw string) (NormalizedURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NormalizedURL{}, scrape.Errorf(scrape.KindMalformedURL, "url required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return NormalizedURL{}, &scrape.Error{
			Kind: scrape.KindMalformedURL,
			URL:  raw,
			Err:  fmt.Errorf("parse url: %w", err),
		}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return NormalizedURL{}, &scrape.Error{
			Kind: scrape.KindMalformedURL,
			URL:  raw,
			Err:  fmt.Errorf("unsupported scheme %q", u.Scheme),
		}
	}
	if u.User != nil {
		return NormalizedURL{}, &scrape.Error{
			Kind: scrape.KindMalformedURL,
			URL:  raw,
			Err:  errors.New("credentials are not allowed in url"),
		}
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return NormalizedURL{}, &scrape.Error{
			Kind: scrape.KindMalformedURL,
			URL:  raw,
			Err:  errors.New("url has no host"),
		}
	}
	if !g.allowed(host) {
		return NormalizedURL{}, &scrape.Error{
			Kind: scrape.KindInvalidDomain,
			URL:  raw,
			Err:  fmt.Errorf("host %q is not %s", host, g.domain),
		}
	}

	port := u.Port()
	if port == "443" || port == "80" {
		port = ""
	}
	u.Scheme = "https"
	u.Host = host
	if port != "" {
		u.Host = host + ":" + port
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	return NormalizedURL{raw: u.String()}, nil
}

func (g *Guard) allowed(host string) bool {
	if host == g.domain {
		return true
	}
	return g.allowSubdomains && strings.HasSuffix(host, "."+g.domain)
}
