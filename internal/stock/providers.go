package stock

import (
	"context"
	"strings"

	"github.com/dropship-ops/opsdash/internal/providers/keepa"
	"github.com/dropship-ops/opsdash/internal/providers/rainforest"
)

// RainforestProvider reads the buy box of a Rainforest product lookup.
type RainforestProvider struct {
	client *rainforest.Client
}

// NewRainforestProvider wraps client.
func NewRainforestProvider(client *rainforest.Client) *RainforestProvider {
	return &RainforestProvider{client: client}
}

func (p *RainforestProvider) Name() string { return p.client.Name() }

// Lookup maps buy box availability; a missing buy box is unknown.
func (p *RainforestProvider) Lookup(ctx context.Context, asin string) (Observation, error) {
	product, err := p.client.Product(ctx, asin)
	if err != nil {
		return Observation{}, err
	}
	box := product.BuyBoxWinner
	if box == nil {
		return Observation{}, ErrAvailabilityUnknown
	}
	obs := Observation{}
	if box.Price != nil {
		obs.Price = box.Price.Value
		obs.Currency = box.Price.Currency
	}
	switch strings.ToLower(box.Availability.Type) {
	case "in_stock", "in_stock_limited":
		obs.InStock = true
	case "out_of_stock", "unavailable":
		obs.InStock = false
	default:
		raw := strings.ToLower(box.Availability.Raw)
		switch {
		case strings.Contains(raw, "in stock"):
			obs.InStock = true
		case strings.Contains(raw, "unavailable"), strings.Contains(raw, "out of stock"):
			obs.InStock = false
		default:
			return Observation{}, ErrAvailabilityUnknown
		}
	}
	return obs, nil
}

// KeepaProvider reads Keepa's Amazon availability code.
type KeepaProvider struct {
	client *keepa.Client
}

// NewKeepaProvider wraps client.
func NewKeepaProvider(client *keepa.Client) *KeepaProvider {
	return &KeepaProvider{client: client}
}

func (p *KeepaProvider) Name() string { return p.client.Name() }

// Lookup maps Keepa availability codes.
func (p *KeepaProvider) Lookup(ctx context.Context, asin string) (Observation, error) {
	product, err := p.client.Product(ctx, asin)
	if err != nil {
		return Observation{}, err
	}
	inStock := product.InStock()
	if inStock == nil {
		return Observation{}, ErrAvailabilityUnknown
	}
	return Observation{InStock: *inStock, Price: product.CurrentPrice()}, nil
}
