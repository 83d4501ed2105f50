package market

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Default range used when a price string carries no numbers at all.
const (
	DefaultMinPrice = 30
	DefaultMaxPrice = 150
	DefaultAvgPrice = 90
)

// Single-price widening factors.
const (
	singlePriceLow  = 0.8
	singlePriceHigh = 1.2
)

// PriceStats is the numeric form of a price range string.
type PriceStats struct {
	Min float64
	Max float64
	Avg float64
}

// numberRe matches plain or thousands-separated numbers with optional decimals.
var numberRe = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

// parseNumbers returns every numeric token in s, in order of appearance.
func parseNumbers(s string) []float64 {
	var out []float64
	for _, tok := range numberRe.FindAllString(s, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// NormalizePriceRange converts any price range string into min/max/avg.
// It never fails: strings without numbers yield the default range.
func NormalizePriceRange(s string) PriceStats {
	nums := parseNumbers(s)
	switch len(nums) {
	case 0:
		return PriceStats{Min: DefaultMinPrice, Max: DefaultMaxPrice, Avg: DefaultAvgPrice}
	case 1:
		p := nums[0]
		return PriceStats{Min: p * singlePriceLow, Max: p * singlePriceHigh, Avg: p}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, n := range nums {
		lo = math.Min(lo, n)
		hi = math.Max(hi, n)
	}
	return PriceStats{Min: lo, Max: hi, Avg: (lo + hi) / 2}
}

// FormatPriceRange renders a range in the canonical "$<min> - $<max> USD" form.
func FormatPriceRange(min, max float64) string {
	return fmt.Sprintf("$%.2f - $%.2f USD", min, max)
}

// formatAmount prints whole amounts without decimals and others with two.
func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// parseAmount strips everything except digits and the decimal point and
// parses the rest. Returns false when nothing numeric remains.
func parseAmount(price string) (float64, bool) {
	var b strings.Builder
	for _, r := range price {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.Trim(b.String(), ".")
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
