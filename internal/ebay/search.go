package ebay

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/raine/listing-draft-bot/internal/market"
	"github.com/rs/zerolog/log"
)

// DefaultSearchLimit is how many comparables are requested per search.
const DefaultSearchLimit = 20

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type itemSummary struct {
	ItemID    string `json:"itemId"`
	Title     string `json:"title"`
	Price     amount `json:"price"`
	Condition string `json:"condition"`
	Image     struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	ItemWebURL      string `json:"itemWebUrl"`
	ShippingOptions []struct {
		ShippingCost amount `json:"shippingCost"`
	} `json:"shippingOptions"`
	ItemEndDate string `json:"itemEndDate"`
}

type searchResponse struct {
	Total         int           `json:"total"`
	ItemSummaries []itemSummary `json:"itemSummaries"`
}

// PriceFilter builds a Browse API price filter from a price range hint.
// It returns "" when the hint carries no usable range.
func PriceFilter(priceRange string) string {
	if priceRange == "" || priceRange == listing.NotAvailable {
		return ""
	}
	stats := market.NormalizePriceRange(priceRange)
	return fmt.Sprintf("price:[%.2f..%.2f],priceCurrency:USD", stats.Min, stats.Max)
}

// FindComparables searches for items matching query, narrowed by the price
// range in hints. Zero results is an empty slice, not an error.
func (c *Client) FindComparables(ctx context.Context, query string, hints listing.MarketData) ([]listing.ComparableItem, error) {
	result := &searchResponse{}
	request, err := c.req(ctx, result)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"q":     query,
		"limit": strconv.Itoa(DefaultSearchLimit),
	}
	if filter := PriceFilter(hints.PriceRange); filter != "" {
		params["filter"] = filter
	}

	_, err = handleError(request.
		SetQueryParams(params).
		Get("/buy/browse/v1/item_summary/search"))
	if err != nil {
		return nil, fmt.Errorf("ebay search: %w", err)
	}

	items := make([]listing.ComparableItem, 0, len(result.ItemSummaries))
	for _, s := range result.ItemSummaries {
		items = append(items, toComparable(s))
	}

	log.Info().Str("query", query).Int("total", result.Total).Int("returned", len(items)).Msg("ebay comparables search")
	return items, nil
}

func formatAmount(a amount) string {
	if a.Value == "" {
		return ""
	}
	v, err := strconv.ParseFloat(a.Value, 64)
	if err != nil {
		return a.Value
	}
	currency := strings.ToUpper(a.Currency)
	if currency == "" || currency == "USD" {
		return fmt.Sprintf("$%.2f USD", v)
	}
	return fmt.Sprintf("%.2f %s", v, currency)
}

func toComparable(s itemSummary) listing.ComparableItem {
	item := listing.ComparableItem{
		ID:         s.ItemID,
		Title:      s.Title,
		Price:      formatAmount(s.Price),
		ImageURL:   s.Image.ImageURL,
		ListingURL: s.ItemWebURL,
		Condition:  s.Condition,
		SoldDate:   s.ItemEndDate,
	}
	if len(s.ShippingOptions) > 0 {
		item.ShippingCost = formatAmount(s.ShippingOptions[0].ShippingCost)
	}
	return item
}
