package extract

import (
	"unicode/utf8"

	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

const rawNote = "parsing failed; raw preview only"

// Raw is the last resort: no parsing, just size and a preview.
type Raw struct{}

// Name implements Strategy.
func (Raw) Name() scrape.Tier {
	return scrape.TierRawOnly
}

// Attempt implements Strategy. It fails only on bodies that are not valid
// UTF-8.
func (Raw) Attempt(page scrape.RawPage) (scrape.ExtractionResult, error) {
	if !utf8.Valid(page.Body) {
		return scrape.ExtractionResult{}, scrape.ErrUndecodable
	}
	return scrape.ExtractionResult{
		Title:          UnparsedTitle,
		ImportantLinks: []scrape.Link{},
		Note:           rawNote,
	}, nil
}
