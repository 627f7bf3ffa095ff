// Package providers holds the outbound product-data API clients and the error
// types they share.
package providers

import (
	"fmt"
	"unicode/utf8"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

// StatusError reports a non-success HTTP status from a provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return httpx.ErrUpstream
}

// PayloadError reports a response body that could not be interpreted.
type PayloadError struct {
	Provider string
	Reason   string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: malformed payload: %s", e.Provider, e.Reason)
}

func (e *PayloadError) Unwrap() error {
	return httpx.ErrUpstream
}

// Excerpt trims a response body for inclusion in error messages. The cut
// never splits a multi-byte character.
func Excerpt(body []byte) string {
	const limit = 256
	if len(body) <= limit {
		return string(body)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}
