package rainforest

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
	"github.com/dropship-ops/opsdash/internal/providers"
)

const testBase = "https://rainforest.test"

func newMockedClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	client := NewClient(testBase, "secret", "amazon.com", time.Second).
		WithHTTPClient(&http.Client{Transport: transport})
	return client, transport
}

func TestSearchBuildsQueryAndDecodes(t *testing.T) {
	client, transport := newMockedClient(t)
	transport.RegisterResponder(http.MethodGet, testBase+"/request", func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		assert.Equal(t, "search", q.Get("type"))
		assert.Equal(t, "yoga mat", q.Get("search_term"))
		assert.Equal(t, "amazon.com", q.Get("amazon_domain"))
		assert.Equal(t, "10.00", q.Get("min_price"))
		assert.Equal(t, "60.00", q.Get("max_price"))
		assert.Equal(t, "secret", q.Get("api_key"))
		return httpmock.NewStringResponse(http.StatusOK, `{
			"request_info": {"success": true},
			"search_results": [
				{"asin": "B0TEST0001", "title": "Mat", "rating": 4.6, "ratings_total": 812, "is_prime": true,
				 "price": {"value": 24.99, "currency": "USD"},
				 "bestsellers_rank": [{"category": "Sports", "rank": 5400}, {"category": "Yoga", "rank": 12}]},
				{"asin": "B0TEST0002", "title": "No price"}
			]
		}`), nil
	})

	results, err := client.Search(context.Background(), SearchParams{Term: "yoga mat", MinPrice: 10, MaxPrice: 60})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 24.99, *results[0].Price.Value)
	assert.Equal(t, 812, *results[0].RatingsTotal)
	assert.Equal(t, 12, *TopRank(results[0].BestsellersRank))
	assert.Nil(t, results[1].Price)
	assert.Nil(t, TopRank(results[1].BestsellersRank))
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestSearchFailures(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		contains string
	}{
		{"status", http.StatusTooManyRequests, `{"error":"quota"}`, "unexpected status 429"},
		{"malformed", http.StatusOK, `{"request_info":`, "malformed payload"},
		{"unsuccessful", http.StatusOK, `{"request_info":{"success":false,"message":"bad key"}}`, "bad key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, transport := newMockedClient(t)
			transport.RegisterResponder(http.MethodGet, testBase+"/request", httpmock.NewStringResponder(tc.status, tc.body))

			_, err := client.Search(context.Background(), SearchParams{Term: "mat"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.contains)
			assert.True(t, errors.Is(err, httpx.ErrUpstream))
			assert.Equal(t, 1, transport.GetTotalCallCount(), "no retry")
		})
	}
}

func TestProductLookup(t *testing.T) {
	client, transport := newMockedClient(t)
	transport.RegisterResponder(http.MethodGet, testBase+"/request", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "product", req.URL.Query().Get("type"))
		assert.Equal(t, "B0TEST0003", req.URL.Query().Get("asin"))
		return httpmock.NewStringResponse(http.StatusOK, `{
			"request_info": {"success": true},
			"product": {"asin": "B0TEST0003", "title": "Block",
				"buybox_winner": {"availability": {"type": "in_stock", "raw": "In Stock."}, "price": {"value": 9.5, "currency": "USD"}}}
		}`), nil
	})

	p, err := client.Product(context.Background(), "B0TEST0003")
	require.NoError(t, err)
	require.NotNil(t, p.BuyBoxWinner)
	assert.Equal(t, "in_stock", p.BuyBoxWinner.Availability.Type)
	assert.Equal(t, 9.5, *p.BuyBoxWinner.Price.Value)
}

func TestClientWithoutKey(t *testing.T) {
	client := NewClient(testBase, "", "amazon.com", time.Second)
	_, err := client.Product(context.Background(), "B0TEST0004")
	assert.ErrorIs(t, err, ErrNotConfigured)

	var statusErr *providers.StatusError
	assert.False(t, errors.As(err, &statusErr))
}
