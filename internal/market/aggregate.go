package market

import (
	"sort"
	"strings"
	"unicode"

	"github.com/raine/listing-draft-bot/internal/listing"
)

// MaxKeywords is the number of title keywords returned by Aggregate.
const MaxKeywords = 5

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "for": true,
	"and": true, "with": true, "in": true, "of": true,
}

// Summary is the market signal derived from comparable items.
type Summary struct {
	PriceRange       string
	ConditionSummary string
	Keywords         []string
}

// tally counts occurrences while remembering first-seen order.
type tally struct {
	order  []string
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(key string) {
	if _, ok := t.counts[key]; !ok {
		t.order = append(t.order, key)
	}
	t.counts[key]++
}

// top returns up to n keys by descending count; ties keep first-seen order.
func (t *tally) top(n int) []string {
	keys := append([]string{}, t.order...)
	sort.SliceStable(keys, func(i, j int) bool {
		return t.counts[keys[i]] > t.counts[keys[j]]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// sortedItems returns a copy of items in a canonical order so that the
// aggregate does not depend on the order the marketplace returned them in.
func sortedItems(items []listing.ComparableItem) []listing.ComparableItem {
	out := append([]listing.ComparableItem{}, items...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		if a.Condition != b.Condition {
			return a.Condition < b.Condition
		}
		if a.Price != b.Price {
			return a.Price < b.Price
		}
		return a.ID < b.ID
	})
	return out
}

// Aggregate derives price range, dominant condition and title keywords from
// comparable items. Empty input yields "N/A", "N/A" and no keywords.
func Aggregate(items []listing.ComparableItem) Summary {
	items = sortedItems(items)
	return Summary{
		PriceRange:       aggregatePriceRange(items),
		ConditionSummary: dominantCondition(items),
		Keywords:         titleKeywords(items),
	}
}

func aggregatePriceRange(items []listing.ComparableItem) string {
	var lo, hi float64
	found := false
	for _, item := range items {
		v, ok := parseAmount(item.Price)
		if !ok {
			continue
		}
		if !found {
			lo, hi = v, v
			found = true
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if !found {
		return listing.NotAvailable
	}
	return FormatPriceRange(lo, hi)
}

func dominantCondition(items []listing.ComparableItem) string {
	t := newTally()
	for _, item := range items {
		if c := strings.TrimSpace(item.Condition); c != "" {
			t.add(c)
		}
	}
	top := t.top(1)
	if len(top) == 0 {
		return listing.NotAvailable
	}
	return top[0]
}

func titleKeywords(items []listing.ComparableItem) []string {
	t := newTally()
	for _, item := range items {
		for _, tok := range strings.Fields(strings.ToLower(item.Title)) {
			tok = strings.TrimFunc(tok, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r)
			})
			if len([]rune(tok)) <= 2 || stopwords[tok] {
				continue
			}
			t.add(tok)
		}
	}
	keywords := t.top(MaxKeywords)
	if keywords == nil {
		return []string{}
	}
	return keywords
}

// ToMarketData turns a summary into MarketData. Sources are attributed to
// the comparable listings that produced it.
func (s Summary) ToMarketData(items []listing.ComparableItem) listing.MarketData {
	md := listing.MarketData{
		PriceRange:       s.PriceRange,
		ConditionSummary: s.ConditionSummary,
		Keywords:         append([]string{}, s.Keywords...),
		TitlePatterns:    []string{},
		Sources:          []listing.GroundingSource{},
	}
	for _, item := range items {
		if item.ListingURL == "" {
			continue
		}
		md.Sources = append(md.Sources, listing.GroundingSource{
			Type:  "marketplace",
			URI:   item.ListingURL,
			Title: item.Title,
		})
	}
	return md
}
