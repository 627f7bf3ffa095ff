package providers

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

func TestExcerptShortBodyUnchanged(t *testing.T) {
	assert.Equal(t, `{"error":"bad key"}`, Excerpt([]byte(`{"error":"bad key"}`)))
	assert.Equal(t, strings.Repeat("a", 256), Excerpt([]byte(strings.Repeat("a", 256))))
}

func TestExcerptTrimsAtLimit(t *testing.T) {
	out := Excerpt([]byte(strings.Repeat("a", 300)))
	assert.Equal(t, strings.Repeat("a", 256)+"...", out)
}

func TestExcerptKeepsMultiByteCharactersWhole(t *testing.T) {
	// "€" is three bytes; with 255 leading bytes the limit lands inside it.
	body := []byte(strings.Repeat("a", 255) + strings.Repeat("€", 10))

	out := Excerpt(body)
	require.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("a", 255)+"...", out)

	// Two-byte characters straddling the limit from an odd offset.
	body = []byte("x" + strings.Repeat("é", 200))
	out = Excerpt(body)
	require.True(t, utf8.ValidString(out))
	assert.Equal(t, "x"+strings.Repeat("é", 127)+"...", out)
}

func TestProviderErrorsUnwrapToUpstream(t *testing.T) {
	statusErr := &StatusError{Provider: "keepa", Code: 429, Body: "slow down"}
	assert.True(t, errors.Is(statusErr, httpx.ErrUpstream))
	assert.Equal(t, "keepa: unexpected status 429: slow down", statusErr.Error())

	payloadErr := &PayloadError{Provider: "rainforest", Reason: "missing search_results"}
	assert.True(t, errors.Is(payloadErr, httpx.ErrUpstream))
}
