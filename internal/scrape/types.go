package scrape

import "time"

// Tier records which extraction strategy produced a result.
type Tier string

// Extraction tiers in fallback order.
const (
	TierStructured     Tier = "structured"
	TierPatternMatched Tier = "pattern_matched"
	TierRawOnly        Tier = "raw_only"
)

// PageType is a coarse classification of the fetched page.
type PageType string

// Page types derived from URL and title keywords.
const (
	PageTypePlayer    PageType = "player"
	PageTypeTeam      PageType = "team"
	PageTypeTactic    PageType = "tactic"
	PageTypeFormation PageType = "formation"
	PageTypeDatabase  PageType = "database"
	PageTypeGeneral   PageType = "general"
)

// RawPage is the body and metadata returned by a Fetcher.
type RawPage struct {
	// URL is the effective URL after redirects.
	URL          string
	RequestedURL string
	StatusCode   int
	ContentType  string
	Body         []byte
	UserAgent    string
	Duration     time.Duration
	FetchedAt    time.Time
	// Truncated is set when the upstream body exceeded the fetch size limit
	// and Body holds only its first part.
	Truncated bool
}

// Statistics counts elements found in the page.
type Statistics struct {
	Links     int `json:"links"`
	Images    int `json:"images"`
	Tables    int `json:"tables"`
	Lists     int `json:"lists"`
	Forms     int `json:"forms"`
	SizeBytes int `json:"size_bytes"`
	SizeKB    int `json:"size_kb"`
	// Truncated marks sizes and counts that describe a cut body.
	Truncated bool `json:"truncated,omitempty"`
}

// Link is an anchor sampled from the page.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Table is a bounded sample of an HTML table.
type Table struct {
	RowCount   int        `json:"row_count"`
	SampleRows [][]string `json:"sample_rows"`
}

// Preview holds fixed-length views of the raw page.
type Preview struct {
	HTML string `json:"html_first_500"`
	Text string `json:"text_first_500"`
}

// ExtractionResult is the normalized summary of a page. Values are immutable
// snapshots once returned by an Extractor; the cache hands out the same value
// to every reader.
type ExtractionResult struct {
	Tier           Tier          `json:"tier"`
	URL            string        `json:"url"`
	RequestedURL   string        `json:"requested_url"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	PageType       PageType      `json:"page_type"`
	Statistics     Statistics    `json:"statistics"`
	ImportantLinks []Link        `json:"important_links"`
	Tables         []Table       `json:"tables,omitempty"`
	Preview        Preview       `json:"raw_preview"`
	Note           string        `json:"note,omitempty"`
	UserAgent      string        `json:"user_agent"`
	FetchDuration  time.Duration `json:"fetch_duration"`
	FetchedAt      time.Time     `json:"fetched_at"`
}

// CacheStatus reports whether a result came from the cache.
type CacheStatus string

// Cache status values reported to clients.
const (
	CacheHit  CacheStatus = "HIT"
	CacheMiss CacheStatus = "MISS"
)
