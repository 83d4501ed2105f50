package market

import (
	"context"
	"fmt"

	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/rs/zerolog/log"
)

// ComparablesFinder searches the marketplace for comparable items.
type ComparablesFinder interface {
	FindComparables(ctx context.Context, query string, hints listing.MarketData) ([]listing.ComparableItem, error)
}

// ComparablesResearcher answers market research queries from marketplace
// data alone. It is used when no grounded research backend is configured.
type ComparablesResearcher struct {
	finder ComparablesFinder
}

// NewComparablesResearcher creates a researcher backed by finder.
func NewComparablesResearcher(finder ComparablesFinder) *ComparablesResearcher {
	return &ComparablesResearcher{finder: finder}
}

// Research searches for the query without hints and aggregates the results
// into pre-structured market data.
func (r *ComparablesResearcher) Research(ctx context.Context, query string) (*listing.ResearchResult, error) {
	items, err := r.finder.FindComparables(ctx, query, listing.EmptyMarketData())
	if err != nil {
		return nil, fmt.Errorf("comparables search failed: %w", err)
	}

	summary := Aggregate(items)
	md := summary.ToMarketData(items)

	log.Debug().
		Str("query", query).
		Int("items", len(items)).
		Str("priceRange", md.PriceRange).
		Str("condition", md.ConditionSummary).
		Msg("market data aggregated from comparables")

	return &listing.ResearchResult{Market: &md, Sources: md.Sources}, nil
}
