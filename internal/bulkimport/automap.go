// Package bulkimport loads catalog products from operator supplied CSV files,
// suggesting a column mapping from the header row.
package bulkimport

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field is an import target.
type Field struct {
	Name     string   `json:"name"`
	Required bool     `json:"required"`
	Synonyms []string `json:"synonyms"`
}

// Fields lists import targets in matching priority order. More specific
// fields come first so that "sell price" is not claimed by "price".
var Fields = []Field{
	{Name: "asin", Required: true, Synonyms: []string{"asin", "amazon asin", "amazon id", "product asin"}},
	{Name: "cost_price", Required: true, Synonyms: []string{"cost price", "cost", "source price", "buy price", "purchase price", "amazon price", "supplier price", "price"}},
	{Name: "sell_price", Synonyms: []string{"sell price", "selling price", "retail price", "sale price", "list price", "shopify price"}},
	{Name: "title", Required: true, Synonyms: []string{"title", "product title", "name", "product name", "item name"}},
	{Name: "brand", Synonyms: []string{"brand", "manufacturer", "vendor", "marque"}},
	{Name: "description", Synonyms: []string{"description", "body", "details", "body html"}},
	{Name: "image_url", Synonyms: []string{"image url", "image", "main image", "photo", "picture"}},
	{Name: "source_url", Synonyms: []string{"source url", "amazon url", "product url", "link", "url"}},
	{Name: "currency", Synonyms: []string{"currency", "currency code"}},
	{Name: "rating", Synonyms: []string{"rating", "stars", "average rating"}},
	{Name: "review_count", Synonyms: []string{"review count", "reviews", "ratings total", "number of reviews"}},
	{Name: "bsr", Synonyms: []string{"bsr", "best sellers rank", "sales rank", "rank"}},
	{Name: "is_prime", Synonyms: []string{"is prime", "prime", "prime eligible"}},
}

// Mapping assigns target field names to source header names.
type Mapping map[string]string

// Missing returns required fields without a mapped header.
func (m Mapping) Missing() []string {
	var missing []string
	for _, f := range Fields {
		if f.Required && m[f.Name] == "" {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

var folder = cases.Fold()

// Normalize folds case, strips accents and reduces punctuation to single
// spaces.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := folder.String(stripped)
	var b strings.Builder
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}

// AutoMap suggests a mapping for headers. Exact synonym matches win over
// substring matches; each header and each field is used at most once.
func AutoMap(headers []string) Mapping {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = Normalize(h)
	}
	used := make([]bool, len(headers))
	mapping := Mapping{}

	// Exact matches, in field priority order.
	for _, f := range Fields {
	synonyms:
		for _, syn := range f.Synonyms {
			for i, h := range normalized {
				if !used[i] && h == syn {
					mapping[f.Name] = headers[i]
					used[i] = true
					break synonyms
				}
			}
		}
	}

	// Substring matches; longer synonyms are more specific and go first.
	type candidate struct {
		field  string
		header int
		weight int
	}
	var candidates []candidate
	for _, f := range Fields {
		if _, done := mapping[f.Name]; done {
			continue
		}
		for _, syn := range f.Synonyms {
			for i, h := range normalized {
				if !used[i] && h != "" && containsWord(h, syn) {
					candidates = append(candidates, candidate{field: f.Name, header: i, weight: len(syn)})
				}
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].weight > candidates[j].weight })
	for _, c := range candidates {
		if _, done := mapping[c.field]; done || used[c.header] {
			continue
		}
		mapping[c.field] = headers[c.header]
		used[c.header] = true
	}
	return mapping
}

// containsWord reports whether phrase occurs in h on word boundaries.
func containsWord(h, phrase string) bool {
	return strings.Contains(" "+h+" ", " "+phrase+" ")
}
