// Package draft builds listing drafts without a generative backend.
package draft

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/raine/listing-draft-bot/internal/market"
)

const (
	// DefaultCondition is used when market data has no condition summary.
	DefaultCondition = "Used"

	defaultItemName = "Item"
)

var (
	placeholderRe = regexp.MustCompile(`(?i)\{\{\s*item\s*\}\}|\{\s*item\s*\}|\[\s*item\s*\]|<\s*item\s*>`)
	clauseSplitRe = regexp.MustCompile(`,|;|\s+[-–—]+\s+|[–—]`)
)

// Synthesizer builds drafts from identification text and market data.
// The zero value is ready to use.
type Synthesizer struct {
	// Pick returns an index in [0, n). Defaults to math/rand.
	Pick func(n int) int
	// Now returns the generation time. Defaults to time.Now.
	Now func() time.Time
}

// Synthesize returns a complete draft. It never fails: missing market data
// and comparables produce sentinel values instead.
func (s Synthesizer) Synthesize(ident listing.ItemIdentification, md listing.MarketData, comps []listing.ComparableItem) listing.ListingDraft {
	md = md.Normalize()
	if comps == nil {
		comps = []listing.ComparableItem{}
	}

	condition := FirstClause(md.ConditionSummary)

	priceRange := md.PriceRange
	if !md.HasPriceRange() {
		priceRange = market.Aggregate(comps).PriceRange
	}

	return listing.ListingDraft{
		ID:                  uuid.NewString(),
		ItemDescription:     s.description(ident, md, comps, priceRange),
		SuggestedTitle:      s.title(ident, md, condition),
		SuggestedCategory:   ident.Category,
		SuggestedPriceRange: priceRange,
		SuggestedCondition:  condition,
		ExampleSoldListings: comps,
		GeneratedDate:       s.now(),
		GroundingSources:    append([]listing.GroundingSource{}, md.Sources...),
	}
}

func (s Synthesizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Synthesizer) pick(n int) int {
	if s.Pick != nil {
		return s.Pick(n)
	}
	return rand.IntN(n)
}

// FirstClause returns the first comma or dash delimited clause of a
// condition summary, or DefaultCondition when there is nothing usable.
func FirstClause(summary string) string {
	summary = strings.TrimSpace(summary)
	if summary == "" || summary == listing.NotAvailable {
		return DefaultCondition
	}
	clause := strings.TrimSpace(clauseSplitRe.Split(summary, 2)[0])
	clause = strings.TrimRight(clause, ".")
	if clause == "" {
		return DefaultCondition
	}
	return clause
}

func itemName(ident listing.ItemIdentification) string {
	if name := strings.TrimSpace(ident.Description); name != "" {
		return name
	}
	return defaultItemName
}

func (s Synthesizer) title(ident listing.ItemIdentification, md listing.MarketData, condition string) string {
	name := itemName(ident)

	var patterns []string
	for _, p := range md.TitlePatterns {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) > 0 {
		pattern := patterns[s.pick(len(patterns))]
		if placeholderRe.MatchString(pattern) {
			return placeholderRe.ReplaceAllLiteralString(pattern, name)
		}
		return name + " - " + pattern
	}

	return fmt.Sprintf("%s - %s Condition!", name, condition)
}

func (s Synthesizer) description(ident listing.ItemIdentification, md listing.MarketData, comps []listing.ComparableItem, priceRange string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "For sale: %s.", itemName(ident))
	if ident.Category != "" {
		fmt.Fprintf(&b, " Category: %s.", ident.Category)
	}
	fmt.Fprintf(&b, " Condition: %s.", strings.TrimRight(md.ConditionSummary, "."))

	if priceRange != "" && priceRange != listing.NotAvailable {
		fmt.Fprintf(&b, " Similar items have recently sold for %s.", priceRange)
	}
	if n := len(comps); n > 0 {
		fmt.Fprintf(&b, " Priced with reference to %d comparable sold %s.", n, pluralize(n, "listing", "listings"))
	}
	if len(md.Keywords) > 0 {
		fmt.Fprintf(&b, " Keywords: %s.", strings.Join(md.Keywords, ", "))
	}
	b.WriteString(" Please see the photos for details and feel free to ask any questions.")

	return b.String()
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
