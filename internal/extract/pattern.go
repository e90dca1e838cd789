package extract

import (
	"errors"
	"html"
	"regexp"
	"strings"

	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

// ErrNoMarkup is returned by Pattern when the body contains no tags at all.
var ErrNoMarkup = errors.New("no markup found")

var (
	anyTagRe    = regexp.MustCompile(`<[a-zA-Z!/][^>]*>`)
	titleTagRe  = regexp.MustCompile(`(?is)<title(?:\s[^>]*)?>(.*?)</title\s*>`)
	h1TagRe     = regexp.MustCompile(`(?is)<h1(?:\s[^>]*)?>(.*?)</h1\s*>`)
	metaTagRe   = regexp.MustCompile(`(?is)<meta\s[^>]*>`)
	attrRe      = regexp.MustCompile(`(?is)([a-z_:-]+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	anchorRe    = regexp.MustCompile(`(?is)<a\s[^>]*?href\s*=\s*["']([^"']*)["'][^>]*>(.*?)</a\s*>`)
	linkCountRe = regexp.MustCompile(`(?i)<a\s[^>]*href\s*=`)
	imgCountRe  = regexp.MustCompile(`(?i)<img[\s/>]`)
	listCountRe = regexp.MustCompile(`(?i)<(?:ul|ol)[\s>]`)
	formCountRe = regexp.MustCompile(`(?i)<form[\s>]`)
	tableRe     = regexp.MustCompile(`(?is)<table(?:\s[^>]*)?>(.*?)</table\s*>`)
	tableOpenRe = regexp.MustCompile(`(?i)<table[\s>]`)
	rowRe       = regexp.MustCompile(`(?is)<tr(?:\s[^>]*)?>(.*?)</tr\s*>`)
	cellRe      = regexp.MustCompile(`(?is)<t[dh](?:\s[^>]*)?>(.*?)</t[dh]\s*>`)
)

// Pattern re-derives the result with regular expressions over the raw markup.
// It tolerates documents goquery cannot be trusted with, at the cost of
// precision.
type Pattern struct{}

// Name implements Strategy.
func (Pattern) Name() scrape.Tier {
	return scrape.TierPatternMatched
}

// Attempt implements Strategy.
func (Pattern) Attempt(page scrape.RawPage) (scrape.ExtractionResult, error) {
	body := string(page.Body)
	if !anyTagRe.MatchString(body) {
		return scrape.ExtractionResult{}, ErrNoMarkup
	}

	res := scrape.ExtractionResult{
		Title:       firstNonEmpty(firstGroupText(titleTagRe, body), firstGroupText(h1TagRe, body)),
		Description: metaDescription(body),
		Statistics: scrape.Statistics{
			Links:  len(linkCountRe.FindAllStringIndex(body, -1)),
			Images: len(imgCountRe.FindAllStringIndex(body, -1)),
			Tables: len(tableOpenRe.FindAllStringIndex(body, -1)),
			Lists:  len(listCountRe.FindAllStringIndex(body, -1)),
			Forms:  len(formCountRe.FindAllStringIndex(body, -1)),
		},
	}

	links := newLinkCollector(baseURL(page))
	for _, m := range anchorRe.FindAllStringSubmatch(body, -1) {
		if links.full() {
			break
		}
		links.add(html.UnescapeString(m[1]), markupText(m[2]))
	}
	res.ImportantLinks = links.links

	for _, m := range tableRe.FindAllStringSubmatch(body, MaxTables) {
		rows := rowRe.FindAllStringSubmatch(m[1], -1)
		sample := make([][]string, 0, min(len(rows), MaxTableRows))
		for _, row := range rows {
			if len(sample) == MaxTableRows {
				break
			}
			cells := []string{}
			for _, cell := range cellRe.FindAllStringSubmatch(row[1], -1) {
				cells = append(cells, markupText(cell[1]))
			}
			sample = append(sample, cells)
		}
		res.Tables = append(res.Tables, scrape.Table{RowCount: len(rows), SampleRows: sample})
	}
	return res, nil
}

func firstGroupText(re *regexp.Regexp, body string) string {
	m := re.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return markupText(m[1])
}

// metaDescription returns the description meta content, falling back to
// og:description. Attribute order inside the tag does not matter.
func metaDescription(body string) string {
	var og string
	for _, tag := range metaTagRe.FindAllString(body, -1) {
		attrs := parseAttrs(tag)
		content, ok := attrs["content"]
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(attrs["name"], "description"):
			return collapseSpace(html.UnescapeString(content))
		case og == "" && strings.EqualFold(attrs["property"], "og:description"):
			og = collapseSpace(html.UnescapeString(content))
		}
	}
	return og
}

func parseAttrs(tag string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(tag, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		attrs[strings.ToLower(m[1])] = value
	}
	return attrs
}

// markupText strips tags from a fragment and decodes entities.
func markupText(fragment string) string {
	return collapseSpace(html.UnescapeString(tagRe.ReplaceAllString(fragment, " ")))
}
