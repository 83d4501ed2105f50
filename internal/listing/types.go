// Package listing contains the data model shared by the draft pipeline,
// its collaborators and the history store.
package listing

import (
	"time"

	"github.com/google/uuid"
)

// NotAvailable is the sentinel used when no market signal exists.
const NotAvailable = "N/A"

// ItemIdentification is the vision backend's answer to "what is this item".
type ItemIdentification struct {
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Complete reports whether both fields are present, which is what the
// pipeline requires before it starts a run.
func (i ItemIdentification) Complete() bool {
	return i.Description != "" && i.Category != ""
}

// Query returns the search query used for market research and comparables.
func (i ItemIdentification) Query() string {
	return i.Description
}

// GroundingSource records where a piece of market data came from.
type GroundingSource struct {
	Type  string `json:"type"`
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// MarketData is the result of market research for an item.
// PriceRange and ConditionSummary use NotAvailable instead of being empty.
type MarketData struct {
	PriceRange       string            `json:"priceRange"`
	ConditionSummary string            `json:"conditionSummary"`
	Keywords         []string          `json:"keywords"`
	TitlePatterns    []string          `json:"titlePatterns"`
	Sources          []GroundingSource `json:"sources"`
}

// EmptyMarketData returns market data with every field at its sentinel or
// empty default.
func EmptyMarketData() MarketData {
	return MarketData{
		PriceRange:       NotAvailable,
		ConditionSummary: NotAvailable,
		Keywords:         []string{},
		TitlePatterns:    []string{},
		Sources:          []GroundingSource{},
	}
}

// Normalize replaces empty values with their sentinel/empty defaults.
func (m MarketData) Normalize() MarketData {
	if m.PriceRange == "" {
		m.PriceRange = NotAvailable
	}
	if m.ConditionSummary == "" {
		m.ConditionSummary = NotAvailable
	}
	if m.Keywords == nil {
		m.Keywords = []string{}
	}
	if m.TitlePatterns == nil {
		m.TitlePatterns = []string{}
	}
	if m.Sources == nil {
		m.Sources = []GroundingSource{}
	}
	return m
}

// HasPriceRange reports whether the price range carries a real value.
func (m MarketData) HasPriceRange() bool {
	return m.PriceRange != "" && m.PriceRange != NotAvailable
}

// ComparableItem is a previously sold or listed item from the marketplace.
type ComparableItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Price        string `json:"price"`
	ShippingCost string `json:"shippingCost,omitempty"`
	ImageURL     string `json:"imageUrl"`
	ListingURL   string `json:"listingUrl"`
	Condition    string `json:"condition"`
	SoldDate     string `json:"soldDate"`
}

// ListingDraft is a generated marketplace listing. Values are never modified
// after creation; Edit returns a new draft.
type ListingDraft struct {
	ID                  string            `json:"id"`
	ItemDescription     string            `json:"itemDescription" validate:"required"`
	SuggestedTitle      string            `json:"suggestedTitle" validate:"required"`
	SuggestedCategory   string            `json:"suggestedCategory"`
	SuggestedPriceRange string            `json:"suggestedPriceRange" validate:"required"`
	SuggestedCondition  string            `json:"suggestedCondition" validate:"required"`
	ExampleSoldListings []ComparableItem  `json:"exampleSoldListings"`
	GeneratedDate       time.Time         `json:"generatedDate"`
	ImageURL            string            `json:"imageUrl,omitempty"`
	GroundingSources    []GroundingSource `json:"groundingSources,omitempty"`
}

// DraftEdit holds user changes to a draft. Nil fields are left unchanged.
type DraftEdit struct {
	Title       *string
	Description *string
	PriceRange  *string
	Condition   *string
	Category    *string
}

// Edit returns a new draft with the edit applied. The copy gets its own ID
// and generation time; the receiver and its slices are not modified.
func (d ListingDraft) Edit(e DraftEdit) ListingDraft {
	out := d
	out.ID = uuid.NewString()
	out.GeneratedDate = time.Now()
	out.ExampleSoldListings = append([]ComparableItem{}, d.ExampleSoldListings...)
	if d.GroundingSources != nil {
		out.GroundingSources = append([]GroundingSource{}, d.GroundingSources...)
	}
	if e.Title != nil {
		out.SuggestedTitle = *e.Title
	}
	if e.Description != nil {
		out.ItemDescription = *e.Description
	}
	if e.PriceRange != nil {
		out.SuggestedPriceRange = *e.PriceRange
	}
	if e.Condition != nil {
		out.SuggestedCondition = *e.Condition
	}
	if e.Category != nil {
		out.SuggestedCategory = *e.Category
	}
	return out
}

// ResearchResult is what a market research backend returns: either free
// text that still needs extraction, pre-structured market data, or both.
type ResearchResult struct {
	Text    string
	Market  *MarketData
	Sources []GroundingSource
}
