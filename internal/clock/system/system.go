// Package system provides the wall clock used outside tests.
package system

import (
	"time"

	"github.com/JakeFAU/scrape-proxy/internal/scrape"
)

var _ scrape.Clock = Clock{}

// Clock implements scrape.Clock with UTC wall time.
type Clock struct{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
