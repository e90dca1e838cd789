package scrape

import (
	"context"
	"time"
)

// Fetcher retrieves a single URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (RawPage, error)
}

// Extractor turns a fetched page into an ExtractionResult.
type Extractor interface {
	Extract(page RawPage) (ExtractionResult, error)
}

// Limiter throttles outbound fetches.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
