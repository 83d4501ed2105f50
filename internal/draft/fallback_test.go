package draft

import (
	"testing"
	"time"

	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestSynthesizer(pick int) Synthesizer {
	return Synthesizer{
		Pick: func(n int) int { return pick % n },
		Now:  func() time.Time { return fixedNow },
	}
}

func TestSynthesize_DescriptionContainsKeywords(t *testing.T) {
	ident := listing.ItemIdentification{Description: "vintage camera", Category: "Cameras"}
	md := listing.MarketData{
		PriceRange:       "$50 - $100 USD",
		ConditionSummary: "Used, minor wear",
		Keywords:         []string{"rare", "mint"},
	}

	d := newTestSynthesizer(0).Synthesize(ident, md, nil)

	assert.Contains(t, d.ItemDescription, "rare")
	assert.Contains(t, d.ItemDescription, "mint")
	assert.Contains(t, d.ItemDescription, "vintage camera")
	assert.Contains(t, d.ItemDescription, "Used, minor wear")
	assert.Equal(t, "vintage camera - Used Condition!", d.SuggestedTitle)
	assert.Equal(t, "Cameras", d.SuggestedCategory)
	assert.Equal(t, "$50 - $100 USD", d.SuggestedPriceRange)
	assert.Equal(t, "Used", d.SuggestedCondition)
	assert.Equal(t, fixedNow, d.GeneratedDate)
	assert.NotEmpty(t, d.ID)
	assert.NotNil(t, d.ExampleSoldListings)
	assert.Empty(t, d.ExampleSoldListings)
}

func TestSynthesize_TitlePattern(t *testing.T) {
	ident := listing.ItemIdentification{Description: "Nikon FM2", Category: "Cameras"}
	md := listing.MarketData{
		TitlePatterns: []string{"Vintage {item} Film Camera", "[ITEM] tested working", "Free shipping"},
	}

	assert.Equal(t, "Vintage Nikon FM2 Film Camera", newTestSynthesizer(0).Synthesize(ident, md, nil).SuggestedTitle)
	assert.Equal(t, "Nikon FM2 tested working", newTestSynthesizer(1).Synthesize(ident, md, nil).SuggestedTitle)
	assert.Equal(t, "Nikon FM2 - Free shipping", newTestSynthesizer(2).Synthesize(ident, md, nil).SuggestedTitle)
}

func TestSynthesize_PriceFromComparables(t *testing.T) {
	ident := listing.ItemIdentification{Description: "lens", Category: "Lenses"}
	comps := []listing.ComparableItem{
		{ID: "1", Title: "lens a", Price: "US $40", Condition: "Used"},
		{ID: "2", Title: "lens b", Price: "US $80", Condition: "Used"},
	}

	d := newTestSynthesizer(0).Synthesize(ident, listing.EmptyMarketData(), comps)

	assert.Equal(t, "$40.00 - $80.00 USD", d.SuggestedPriceRange)
	assert.Equal(t, comps, d.ExampleSoldListings)
}

func TestSynthesize_NoData(t *testing.T) {
	d := newTestSynthesizer(0).Synthesize(listing.ItemIdentification{}, listing.MarketData{}, nil)

	require.NoError(t, d.Validate())
	assert.Equal(t, "Item - Used Condition!", d.SuggestedTitle)
	assert.Equal(t, listing.NotAvailable, d.SuggestedPriceRange)
	assert.Equal(t, DefaultCondition, d.SuggestedCondition)
	assert.NotNil(t, d.ExampleSoldListings)
	assert.NotEmpty(t, d.ItemDescription)
}

func TestSynthesize_DoesNotModifyComparables(t *testing.T) {
	comps := []listing.ComparableItem{{ID: "1", Title: "x", Price: "$1"}}
	before := append([]listing.ComparableItem{}, comps...)

	newTestSynthesizer(0).Synthesize(listing.ItemIdentification{Description: "x"}, listing.MarketData{}, comps)

	assert.Equal(t, before, comps)
}

func TestFirstClause(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Used, good condition", "Used"},
		{"Like new - barely used", "Like new"},
		{"Pre-owned; tested", "Pre-owned"},
		{"New", "New"},
		{"Refurbished — seller", "Refurbished"},
		{"N/A", DefaultCondition},
		{"", DefaultCondition},
		{", leading comma", DefaultCondition},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FirstClause(tt.in), tt.in)
	}
}
