package extract

import (
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	scriptStyleRe = regexp.MustCompile(`(?is)<(?:script|style)\b[^>]*>.*?</(?:script|style)\s*>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]*>`)
)

// pageTypeKeywords is checked in order; the first keyword found wins.
var pageTypeKeywords = []struct {
	keyword  string
	pageType scrape.PageType
}{
	{"player", scrape.PageTypePlayer},
	{"team", scrape.PageTypeTeam},
	{"tactic", scrape.PageTypeTactic},
	{"formation", scrape.PageTypeFormation},
	{"database", scrape.PageTypeDatabase},
}

// Classify derives a coarse page type from keywords in the URL path and the
// title.
func Classify(rawURL, title string) scrape.PageType {
	haystack := strings.ToLower(title)
	if u, err := url.Parse(rawURL); err == nil {
		haystack = strings.ToLower(u.Path) + " " + haystack
	}
	for _, kw := range pageTypeKeywords {
		if strings.Contains(haystack, kw.keyword) {
			return kw.pageType
		}
	}
	return scrape.PageTypeGeneral
}

// BuildPreview returns the first PreviewChars characters of the raw markup and
// of its visible text.
func BuildPreview(body []byte) scrape.Preview {
	raw := string(body)
	return scrape.Preview{
		HTML: truncate(raw, PreviewChars),
		Text: truncate(stripTags(raw), PreviewChars),
	}
}

func stripTags(s string) string {
	s = scriptStyleRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	return collapseSpace(s)
}

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sizeKB(n int) int {
	return int(math.Round(float64(n) / 1024))
}

// linkCollector applies the shared important-link rules: visible text of 4 to
// 99 characters, http(s) targets only, no duplicates, at most
// MaxImportantLinks entries.
type linkCollector struct {
	base  *url.URL
	seen  map[string]struct{}
	links []scrape.Link
}

func newLinkCollector(baseURL string) *linkCollector {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}
	return &linkCollector{base: base, seen: make(map[string]struct{}), links: []scrape.Link{}}
}

func (c *linkCollector) full() bool {
	return len(c.links) >= MaxImportantLinks
}

func (c *linkCollector) add(href, text string) {
	if c.full() {
		return
	}
	text = collapseSpace(text)
	if n := len([]rune(text)); n <= 3 || n >= 100 {
		return
	}
	resolved, ok := c.resolve(strings.TrimSpace(href))
	if !ok {
		return
	}
	if _, dup := c.seen[resolved]; dup {
		return
	}
	c.seen[resolved] = struct{}{}
	c.links = append(c.links, scrape.Link{Text: truncate(text, maxLinkTextChars), Href: resolved})
}

func (c *linkCollector) resolve(href string) (string, bool) {
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if c.base != nil {
		ref = c.base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	ref.Fragment = ""
	return ref.String(), true
}

func baseURL(page scrape.RawPage) string {
	if page.URL != "" {
		return page.URL
	}
	return page.RequestedURL
}
