// Package extract turns raw pages into normalized extraction results.
//
// A Pipeline holds an ordered list of strategies. Each strategy either
// produces a result or returns an error, in which case the next one is tried.
// The default order is Structured (goquery DOM queries), Pattern (regular
// expressions over the markup) and Raw (no parsing). Raw only fails on input
// that is not valid UTF-8, so in practice the pipeline degrades instead of
// failing.
package extract

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

// Bounds applied identically by every strategy so consumers see one shape.
const (
	MaxImportantLinks = 10
	MaxTables         = 3
	MaxTableRows      = 10
	PreviewChars      = 500
	MaxTitleChars     = 200
	MaxDescChars      = 300
	maxLinkTextChars  = 80
)

// Titles used when nothing better is available.
const (
	UntitledTitle = "untitled"
	UnparsedTitle = "unparsed"
)

// Strategy is one tier of the fallback chain.
type Strategy interface {
	Name() scrape.Tier
	Attempt(page scrape.RawPage) (scrape.ExtractionResult, error)
}

var errStrategyPanic = errors.New("extraction strategy panicked")

// Pipeline runs strategies in order and returns the first success.
type Pipeline struct {
	strategies []Strategy
	logger     *zap.Logger
}

// New builds a Pipeline over the given strategies.
func New(logger *zap.Logger, strategies ...Strategy) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{strategies: strategies, logger: logger}
}

// NewDefault builds the Structured, Pattern, Raw pipeline.
func NewDefault(logger *zap.Logger) *Pipeline {
	return New(logger, Structured{}, Pattern{}, Raw{})
}

// Extract runs the strategies in order. The returned error is non-nil only
// when every strategy failed; it wraps scrape.ErrUndecodable when the last
// resort rejected the input.
func (p *Pipeline) Extract(page scrape.RawPage) (scrape.ExtractionResult, error) {
	errs := make([]error, 0, len(p.strategies))
	for _, s := range p.strategies {
		res, err := attempt(s, page)
		if err == nil {
			res.Tier = s.Name()
			return finish(res, page), nil
		}
		p.logger.Debug("extraction tier failed, falling through",
			zap.String("tier", string(s.Name())),
			zap.String("url", page.URL),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return scrape.ExtractionResult{}, fmt.Errorf("all extraction tiers failed: %w", errors.Join(errs...))
}

func attempt(s Strategy, page scrape.RawPage) (res scrape.ExtractionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errStrategyPanic, r)
		}
	}()
	return s.Attempt(page)
}

const truncatedNote = "body truncated at %d bytes; counts cover the retained part"

func joinNotes(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

// finish applies the derivations shared by every tier.
func finish(res scrape.ExtractionResult, page scrape.RawPage) scrape.ExtractionResult {
	res.URL = page.URL
	if res.URL == "" {
		res.URL = page.RequestedURL
	}
	res.RequestedURL = page.RequestedURL
	if res.RequestedURL == "" {
		res.RequestedURL = res.URL
	}

	res.Title = truncate(collapseSpace(res.Title), MaxTitleChars)
	if res.Title == "" {
		res.Title = UntitledTitle
	}
	res.Description = truncate(collapseSpace(res.Description), MaxDescChars)
	if res.ImportantLinks == nil {
		res.ImportantLinks = []scrape.Link{}
	}

	res.Statistics.SizeBytes = len(page.Body)
	res.Statistics.SizeKB = sizeKB(len(page.Body))
	if page.Truncated {
		res.Statistics.Truncated = true
		res.Note = joinNotes(res.Note, fmt.Sprintf(truncatedNote, len(page.Body)))
	}
	res.PageType = Classify(res.RequestedURL, res.Title)
	res.Preview = BuildPreview(page.Body)

	res.UserAgent = page.UserAgent
	res.FetchDuration = page.Duration
	res.FetchedAt = page.FetchedAt
	return res
}
