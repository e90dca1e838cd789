// Package uuid generates request identifiers.
package uuid

import (
	"github.com/google/uuid"
)

// NewRequestID returns a time-ordered UUIDv7 string. If the v7 generator
// fails it falls back to a random v4 id.
func NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// FromHeader returns the inbound id when it is a well-formed UUID and a
// freshly generated one otherwise.
func FromHeader(value string) string {
	if value != "" && len(value) <= 36 {
		if id, err := uuid.Parse(value); err == nil {
			return id.String()
		}
	}
	return NewRequestID()
}
