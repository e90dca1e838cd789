package extract

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

// ErrNotHTML is returned by Structured for bodies declared as non-HTML.
var ErrNotHTML = errors.New("content type is not HTML")

// Structured reads the page through goquery DOM queries.
type Structured struct{}

// Name implements Strategy.
func (Structured) Name() scrape.Tier {
	return scrape.TierStructured
}

// Attempt implements Strategy.
func (Structured) Attempt(page scrape.RawPage) (scrape.ExtractionResult, error) {
	if !isHTMLContentType(page.ContentType) {
		return scrape.ExtractionResult{}, fmt.Errorf("%w: %q", ErrNotHTML, page.ContentType)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return scrape.ExtractionResult{}, fmt.Errorf("parse html: %w", err)
	}

	title := firstNonEmpty(
		selText(doc.Find("title").First()),
		metaContent(doc, `meta[property="og:title"]`),
		selText(doc.Find("h1").First()),
	)
	description := firstNonEmpty(
		metaContent(doc, `meta[name="description"]`),
		metaContent(doc, `meta[name="Description"]`),
		metaContent(doc, `meta[property="og:description"]`),
	)
	res := scrape.ExtractionResult{
		Title:       title,
		Description: description,
		Statistics: scrape.Statistics{
			Links:  doc.Find("a[href]").Length(),
			Images: doc.Find("img").Length(),
			Tables: doc.Find("table").Length(),
			Lists:  doc.Find("ul, ol").Length(),
			Forms:  doc.Find("form").Length(),
		},
	}

	links := newLinkCollector(baseURL(page))
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		links.add(href, a.Text())
		return !links.full()
	})
	res.ImportantLinks = links.links

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		sample := make([][]string, 0, min(rows.Length(), MaxTableRows))
		rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
			cells := []string{}
			row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, selText(cell))
			})
			sample = append(sample, cells)
			return len(sample) < MaxTableRows
		})
		res.Tables = append(res.Tables, scrape.Table{RowCount: rows.Length(), SampleRows: sample})
		return len(res.Tables) < MaxTables
	})
	return res, nil
}

func isHTMLContentType(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func selText(s *goquery.Selection) string {
	return collapseSpace(s.Text())
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return collapseSpace(content)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
