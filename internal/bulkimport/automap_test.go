package bulkimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Product-Title ": "product title",
		"MARQUÉ":           "marque",
		"Amazon Price ($)": "amazon price",
		"review_count":     "review count",
		"---":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestAutoMapExactBeforeSubstring(t *testing.T) {
	headers := []string{"Product Name", "ASIN", "Amazon Price ($)", "Retail Price", "Marqué", "Main Image URL", "Ratings Total"}
	m := AutoMap(headers)

	assert.Equal(t, "ASIN", m["asin"])
	assert.Equal(t, "Product Name", m["title"])
	assert.Equal(t, "Amazon Price ($)", m["cost_price"])
	assert.Equal(t, "Retail Price", m["sell_price"])
	assert.Equal(t, "Marqué", m["brand"])
	assert.Equal(t, "Main Image URL", m["image_url"])
	assert.Equal(t, "Ratings Total", m["review_count"])
	assert.Empty(t, m.Missing())
}

func TestAutoMapUsesEachHeaderOnce(t *testing.T) {
	m := AutoMap([]string{"Price", "Title"})
	assert.Equal(t, "Price", m["cost_price"])
	assert.NotContains(t, m, "sell_price")
	assert.Equal(t, []string{"asin"}, m.Missing())
}

func TestAutoMapPrefersLongerSubstring(t *testing.T) {
	m := AutoMap([]string{"Item ASIN code", "Suggested Retail Price USD", "Unit Price USD", "Item Name"})
	assert.Equal(t, "Item ASIN code", m["asin"])
	assert.Equal(t, "Suggested Retail Price USD", m["sell_price"])
	assert.Equal(t, "Unit Price USD", m["cost_price"])
	assert.Equal(t, "Item Name", m["title"])
}
