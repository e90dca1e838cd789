package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JakeFAU/scrape-proxy/internal/scrape"
	"github.com/JakeFAU/scrape-proxy/internal/service"
)

// errorTypeInvalidRequest tags request bodies that are not valid JSON.
const errorTypeInvalidRequest = "invalid_request"

const maxUserAgentChars = 60

type proxyRequest struct {
	URL string `json:"url"`
}

type successResponse struct {
	Success     bool               `json:"success"`
	URL         string             `json:"url"`
	Data        resultData         `json:"data"`
	Performance performance        `json:"performance"`
	Cache       scrape.CacheStatus `json:"cache"`
	CacheInfo   cacheInfo          `json:"cache_info"`
	Timestamp   time.Time          `json:"timestamp"`
}

type resultData struct {
	Metadata       metadata          `json:"metadata"`
	Statistics     scrape.Statistics `json:"statistics"`
	StructuredData structuredData    `json:"structured_data"`
	RawPreview     scrape.Preview    `json:"raw_preview"`
}

type metadata struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	PageType         scrape.PageType `json:"page_type"`
	ExtractionMethod scrape.Tier     `json:"extraction_method"`
	URLAnalyzed      string          `json:"url_analyzed"`
	Note             string          `json:"note,omitempty"`
}

type structuredData struct {
	ImportantLinks   []scrape.Link   `json:"important_links"`
	Tables           []scrape.Table  `json:"tables"`
	DetectedPageType scrape.PageType `json:"detected_page_type"`
}

type performance struct {
	ResponseTimeMS   int64       `json:"response_time_ms"`
	UserAgentUsed    string      `json:"user_agent_used"`
	ExtractionMethod scrape.Tier `json:"extraction_method"`
	FetchDurationMS  int64       `json:"fetch_duration_ms"`
	FetchedAt        time.Time   `json:"fetched_at"`
}

type cacheInfo struct {
	ItemsInCache int `json:"items_in_cache"`
	TTLMinutes   int `json:"ttl_minutes"`
}

type errorResponse struct {
	Success        bool      `json:"success"`
	Error          string    `json:"error"`
	ErrorType      string    `json:"error_type"`
	ErrorDetails   string    `json:"error_details,omitempty"`
	StatusCode     int       `json:"status_code,omitempty"`
	URL            string    `json:"url,omitempty"`
	Recommendation string    `json:"recommendation"`
	Timestamp      time.Time `json:"timestamp"`
}

// RenderOutcome converts a service outcome into the HTTP status and JSON body
// returned by the proxy endpoint.
func RenderOutcome(out service.Outcome, elapsed time.Duration, items int, ttl time.Duration, domain string) (int, any) {
	if !out.Success {
		return newErrorResponse(out.Err, domain, out.Timestamp)
	}
	return http.StatusOK, newSuccessResponse(out, elapsed, items, ttl)
}

func newSuccessResponse(out service.Outcome, elapsed time.Duration, items int, ttl time.Duration) successResponse {
	res := out.Result
	tables := res.Tables
	if tables == nil {
		tables = []scrape.Table{}
	}
	return successResponse{
		Success: true,
		URL:     res.URL,
		Data: resultData{
			Metadata: metadata{
				Title:            res.Title,
				Description:      res.Description,
				PageType:         res.PageType,
				ExtractionMethod: res.Tier,
				URLAnalyzed:      res.RequestedURL,
				Note:             res.Note,
			},
			Statistics: res.Statistics,
			StructuredData: structuredData{
				ImportantLinks:   res.ImportantLinks,
				Tables:           tables,
				DetectedPageType: res.PageType,
			},
			RawPreview: res.Preview,
		},
		Performance: performance{
			ResponseTimeMS:   elapsed.Milliseconds(),
			UserAgentUsed:    truncateRunes(res.UserAgent, maxUserAgentChars),
			ExtractionMethod: res.Tier,
			FetchDurationMS:  res.FetchDuration.Milliseconds(),
			FetchedAt:        res.FetchedAt,
		},
		Cache:     out.CacheStatus,
		CacheInfo: cacheInfo{ItemsInCache: items, TTLMinutes: int(ttl / time.Minute)},
		Timestamp: out.Timestamp,
	}
}

// newErrorResponse builds the failure envelope and its HTTP status. Details
// are only exposed for upstream failures; validation errors get the stable
// message alone.
func newErrorResponse(err error, domain string, ts time.Time) (int, errorResponse) {
	kind := scrape.KindOf(err)
	status := statusFor(kind)
	body := errorResponse{
		Success:        false,
		Error:          messageFor(kind, err, domain),
		ErrorType:      string(kind),
		Recommendation: recommendationFor(kind, domain),
		Timestamp:      ts,
	}
	var se *scrape.Error
	if errors.As(err, &se) {
		body.StatusCode = se.StatusCode
		body.URL = se.URL
	}
	if status >= http.StatusInternalServerError || kind == scrape.KindRateLimited {
		body.ErrorDetails = err.Error()
	}
	return status, body
}

func statusFor(kind scrape.Kind) int {
	switch kind {
	case scrape.KindMalformedURL, scrape.KindInvalidDomain:
		return http.StatusBadRequest
	case scrape.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(kind scrape.Kind, err error, domain string) string {
	switch kind {
	case scrape.KindMalformedURL:
		return "url is missing or malformed"
	case scrape.KindInvalidDomain:
		return fmt.Sprintf("url must be on %s", domain)
	case scrape.KindTimeout:
		return "upstream did not respond in time"
	case scrape.KindNetwork:
		return "could not reach upstream"
	case scrape.KindHTTPStatus:
		var se *scrape.Error
		if errors.As(err, &se) && se.StatusCode != 0 {
			return fmt.Sprintf("upstream responded with HTTP %d", se.StatusCode)
		}
		return "upstream responded with an error status"
	case scrape.KindUndecodable:
		return "upstream content could not be decoded"
	case scrape.KindRateLimited:
		return "too many upstream requests"
	default:
		return "internal error"
	}
}

func recommendationFor(kind scrape.Kind, domain string) string {
	switch kind {
	case scrape.KindMalformedURL:
		return fmt.Sprintf(`Send a JSON body like {"url": "https://%s/"}`, domain)
	case scrape.KindInvalidDomain:
		return fmt.Sprintf("Only %s and its subdomains can be proxied; try https://%s/", domain, domain)
	case scrape.KindTimeout, scrape.KindNetwork:
		return "The upstream site may be slow or down; retry in a few minutes"
	case scrape.KindHTTPStatus:
		return fmt.Sprintf("Check that the page exists on %s", domain)
	case scrape.KindUndecodable:
		return "The URL does not point to a text page; try an HTML page instead"
	case scrape.KindRateLimited:
		return "Slow down; cached pages are served without limit"
	default:
		return fmt.Sprintf("Verify the URL and try https://%s/", domain)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
