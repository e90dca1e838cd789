package scrape

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies failures surfaced to callers.
type Kind string

// Error kinds. Validation kinds are raised before any network call; fetch
// kinds come from the Fetcher and are never retried automatically.
const (
	KindMalformedURL  Kind = "malformed_url"
	KindInvalidDomain Kind = "invalid_domain"
	KindTimeout       Kind = "timeout"
	KindNetwork       Kind = "network"
	KindHTTPStatus    Kind = "http_status"
	KindUndecodable   Kind = "undecodable_content"
	KindRateLimited   Kind = "rate_limited"
	KindInternal      Kind = "internal"
)

// ErrUndecodable is returned by an Extractor when the body cannot be decoded
// as text at all.
var ErrUndecodable = errors.New("content is not valid UTF-8")

// Error is a classified failure with optional upstream status code.
type Error struct {
	Kind       Kind
	StatusCode int
	URL        string
	Err        error
}

// Errorf builds an Error of the given kind with a formatted cause.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return string(e.Kind)
	case e.Kind == KindHTTPStatus:
		return fmt.Sprintf("%s %d: %v", e.Kind, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err, or KindInternal when err is not a
// classified Error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// ClassifyTransport maps a transport-level failure to KindTimeout or
// KindNetwork.
func ClassifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
