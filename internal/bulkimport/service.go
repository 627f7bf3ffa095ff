package bulkimport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dropship-ops/opsdash/internal/catalog"
	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

const (
	sampleRows = 5
	maxRows    = 5000
)

// Creator stores one product.
type Creator interface {
	CreateManual(ctx context.Context, input catalog.NewProduct, queueSync bool) (catalog.Product, error)
}

// Preview describes an uploaded file before import.
type Preview struct {
	Headers   []string   `json:"headers"`
	Suggested Mapping    `json:"suggested_mapping"`
	Missing   []string   `json:"missing_required"`
	Sample    [][]string `json:"sample_rows"`
	TotalRows int        `json:"total_rows"`
	Fields    []Field    `json:"fields"`
}

// RowResult is the outcome of one data row; Row is 1-based and excludes the
// header.
type RowResult struct {
	Row      int    `json:"row"`
	ASIN     string `json:"asin,omitempty"`
	Imported bool   `json:"imported"`
	Error    string `json:"error,omitempty"`
}

// Result summarises an import.
type Result struct {
	Mapping  Mapping     `json:"mapping"`
	Total    int         `json:"total"`
	Imported int         `json:"imported"`
	Failed   int         `json:"failed"`
	Rows     []RowResult `json:"rows"`
}

// Service parses and imports CSV product files.
type Service struct {
	creator Creator
	logger  *slog.Logger
}

// NewService builds the service.
func NewService(creator Creator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{creator: creator, logger: logger}
}

// Preview reads headers and a few rows and suggests a mapping.
func (s *Service) Preview(r io.Reader) (Preview, error) {
	headers, rows, err := readCSV(r)
	if err != nil {
		return Preview{}, err
	}
	suggested := AutoMap(headers)
	sample := rows
	if len(sample) > sampleRows {
		sample = sample[:sampleRows]
	}
	return Preview{
		Headers:   headers,
		Suggested: suggested,
		Missing:   suggested.Missing(),
		Sample:    sample,
		TotalRows: len(rows),
		Fields:    Fields,
	}, nil
}

// Import creates one product per row. A nil mapping is auto-detected. Rows
// that fail validation or insertion are reported and the batch continues.
func (s *Service) Import(ctx context.Context, r io.Reader, mapping Mapping, queueSync bool) (Result, error) {
	headers, rows, err := readCSV(r)
	if err != nil {
		return Result{}, err
	}
	if len(mapping) == 0 {
		mapping = AutoMap(headers)
	}
	index, err := resolve(mapping, headers)
	if err != nil {
		return Result{}, err
	}

	result := Result{Mapping: mapping, Total: len(rows), Rows: make([]RowResult, 0, len(rows))}
	for i, row := range rows {
		if ctx.Err() != nil {
			result.Rows = append(result.Rows, RowResult{Row: i + 1, Error: ctx.Err().Error()})
			result.Failed++
			continue
		}
		res := RowResult{Row: i + 1}
		input, err := toProduct(row, index)
		res.ASIN = strings.ToUpper(strings.TrimSpace(input.ASIN))
		if err == nil {
			_, err = s.creator.CreateManual(ctx, input, queueSync)
		}
		if err != nil {
			res.Error = err.Error()
			result.Failed++
		} else {
			res.Imported = true
			result.Imported++
		}
		result.Rows = append(result.Rows, res)
	}
	s.logger.Info("bulk import finished", slog.Int("total", result.Total), slog.Int("imported", result.Imported), slog.Int("failed", result.Failed))
	return result, nil
}

func readCSV(r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, httpx.Invalid("csv file is empty")
		}
		return nil, nil, httpx.Invalid("read csv header: %s", err.Error())
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}
	var rows [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, httpx.Invalid("read csv: %s", err.Error())
		}
		if blank(rec) {
			continue
		}
		rows = append(rows, rec)
		if len(rows) > maxRows {
			return nil, nil, httpx.Invalid("at most %d rows per import", maxRows)
		}
	}
	return headers, rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func resolve(mapping Mapping, headers []string) (map[string]int, error) {
	if missing := mapping.Missing(); len(missing) > 0 {
		return nil, httpx.Invalid("mapping missing required fields: %s", strings.Join(missing, ", "))
	}
	known := make(map[string]bool, len(Fields))
	for _, f := range Fields {
		known[f.Name] = true
	}
	index := make(map[string]int, len(mapping))
	for field, header := range mapping {
		if !known[field] {
			return nil, httpx.Invalid("unknown target field %q", field)
		}
		if header == "" {
			continue
		}
		pos := -1
		for i, h := range headers {
			if h == header {
				pos = i
				break
			}
		}
		if pos < 0 {
			return nil, httpx.Invalid("mapped column %q not found", header)
		}
		index[field] = pos
	}
	return index, nil
}

func toProduct(row []string, index map[string]int) (catalog.NewProduct, error) {
	get := func(field string) string {
		i, ok := index[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	p := catalog.NewProduct{
		ASIN:        get("asin"),
		Title:       get("title"),
		Brand:       get("brand"),
		Description: get("description"),
		ImageURL:    get("image_url"),
		SourceURL:   get("source_url"),
		Currency:    strings.ToUpper(get("currency")),
	}
	var err error
	if p.CostPrice, err = parseMoney(get("cost_price")); err != nil {
		return p, httpx.Invalid("cost_price: %s", err.Error())
	}
	if raw := get("sell_price"); raw != "" {
		if p.SellPrice, err = parseMoney(raw); err != nil {
			return p, httpx.Invalid("sell_price: %s", err.Error())
		}
	}
	if raw := get("rating"); raw != "" {
		v, err := strconv.ParseFloat(strings.Fields(raw)[0], 64)
		if err != nil {
			return p, httpx.Invalid("rating: %q is not a number", raw)
		}
		p.Rating = &v
	}
	if p.ReviewCount, err = parseCount(get("review_count")); err != nil {
		return p, httpx.Invalid("review_count: %s", err.Error())
	}
	if p.BSR, err = parseCount(strings.TrimPrefix(get("bsr"), "#")); err != nil {
		return p, httpx.Invalid("bsr: %s", err.Error())
	}
	p.IsPrime = parseBool(get("is_prime"))
	return p, nil
}

func parseMoney(raw string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%q is not an amount", raw)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not an amount", raw)
	}
	return d, nil
}

func parseCount(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	cleaned := strings.NewReplacer(",", "", " ", "", "_", "").Replace(raw)
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%q is not a whole number", raw)
	}
	return &n, nil
}

func parseBool(raw string) bool {
	switch Normalize(raw) {
	case "1", "y", "yes", "true", "prime", "x":
		return true
	}
	return false
}
