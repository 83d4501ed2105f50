package market

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/raine/listing-draft-bot/internal/listing"
)

// fieldMatcher finds the segment of text that follows one of its labels.
// Labels are tried in order and the first one present in the text wins.
type fieldMatcher struct {
	name   string
	labels []*regexp.Regexp
}

var (
	priceMatcher = fieldMatcher{
		name: "price",
		labels: []*regexp.Regexp{
			regexp.MustCompile(`(?i)price\s+range\s*:?`),
			regexp.MustCompile(`(?i)typical(?:ly)?\s+(?:sold\s+)?price[sd]?\s*(?:is|are|of)?\s*:?`),
			regexp.MustCompile(`(?i)average\s+(?:sold\s+|selling\s+)?price\s*:?`),
			regexp.MustCompile(`(?i)sold\s+for\s*:?`),
		},
	}
	conditionMatcher = fieldMatcher{
		name: "condition",
		labels: []*regexp.Regexp{
			regexp.MustCompile(`(?i)condition\s+(?:summary|distribution)\s*:`),
			regexp.MustCompile(`(?i)(?:common|typical)\s+condition\s*:`),
			regexp.MustCompile(`(?i)condition\s*:`),
		},
	}
	keywordsMatcher = fieldMatcher{
		name: "keywords",
		labels: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:seo\s+|search\s+|popular\s+)?keywords\s*:`),
			regexp.MustCompile(`(?im)^[ \t]*(?:[-*•·#]+[ \t]*)?(?:seo\s+|search\s+|popular\s+)?keywords\b`),
		},
	}
	titlePatternsMatcher = fieldMatcher{
		name: "titlePatterns",
		labels: []*regexp.Regexp{
			regexp.MustCompile(`(?i)title\s+patterns?\s*:`),
			regexp.MustCompile(`(?im)^[ \t]*(?:[-*•·#]+[ \t]*)?title\s+patterns?\b`),
			regexp.MustCompile(`(?i)(?:common|example)\s+titles?\s*:`),
		},
	}

	// allMatchers bounds segments: a segment ends where a label of any field
	// stands as a heading (see isBoundary).
	allMatchers = []fieldMatcher{priceMatcher, conditionMatcher, keywordsMatcher, titlePatternsMatcher}
)

var (
	currencyAmountRe = regexp.MustCompile(`[$€£]\s*(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)|(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)\s*(?:USD|usd|dollars)`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
	bulletRe         = regexp.MustCompile(`^\s*(?:[-*•·]+|\d+[.)])\s*`)
	keywordSplitRe   = regexp.MustCompile(`[,\n]+|\s+-\s+`)
	titleSplitRe     = regexp.MustCompile(`[\n;]+`)
)

// segment returns the text between the matcher's label and the next
// recognized label of any field (or the end of text).
func (m fieldMatcher) segment(text string) (string, bool) {
	for _, label := range m.labels {
		loc := label.FindStringIndex(text)
		if loc == nil {
			continue
		}
		return text[loc[1]:segmentEnd(text, loc[1])], true
	}
	return "", false
}

// segmentEnd returns the offset of the earliest boundary label at or after
// start, or len(text).
func segmentEnd(text string, start int) int {
	end := len(text)
	for _, m := range allMatchers {
		for _, label := range m.labels {
			for _, loc := range label.FindAllStringIndex(text[start:], -1) {
				from, to := start+loc[0], start+loc[1]
				if from >= end {
					break
				}
				if isBoundary(text, from, to) {
					end = from
					break
				}
			}
		}
	}
	return end
}

// isBoundary reports whether the label at text[from:to] starts a new field
// rather than being ordinary wording: it must end with a colon or open a
// line (after optional bullet markers).
func isBoundary(text string, from, to int) bool {
	if strings.HasSuffix(strings.TrimSpace(text[from:to]), ":") {
		return true
	}
	lineStart := strings.LastIndexByte(text[:from], '\n') + 1
	return strings.TrimLeft(text[lineStart:from], " \t-*•·#>") == ""
}

// cleanText removes markdown emphasis that commonly wraps labels.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "__", "")
	return strings.ReplaceAll(text, "\r\n", "\n")
}

// ExtractPriceRange finds a labeled price segment and returns it in
// canonical form. Missing label or missing amounts yield "N/A".
func ExtractPriceRange(text string) string {
	seg, ok := priceMatcher.segment(cleanText(text))
	if !ok {
		return listing.NotAvailable
	}

	var amounts []float64
	for _, m := range currencyAmountRe.FindAllStringSubmatch(seg, -1) {
		tok := m[1]
		if tok == "" {
			tok = m[2]
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
		if err != nil {
			continue
		}
		amounts = append(amounts, v)
		if len(amounts) == 2 {
			break
		}
	}

	switch len(amounts) {
	case 0:
		return listing.NotAvailable
	case 1:
		return "$" + formatAmount(amounts[0]) + " USD"
	}
	lo, hi := amounts[0], amounts[1]
	if lo > hi {
		lo, hi = hi, lo
	}
	return "$" + formatAmount(lo) + " - $" + formatAmount(hi) + " USD"
}

// ExtractCondition returns the first labeled condition segment with
// whitespace collapsed, or "N/A".
func ExtractCondition(text string) string {
	seg, ok := conditionMatcher.segment(cleanText(text))
	if !ok {
		return listing.NotAvailable
	}
	seg = strings.TrimSpace(whitespaceRe.ReplaceAllString(seg, " "))
	seg = strings.Trim(seg, " -:")
	if seg == "" {
		return listing.NotAvailable
	}
	return seg
}

// ExtractKeywords returns the tokens listed after a keywords label.
// Tokens shorter than three characters are dropped.
func ExtractKeywords(text string) []string {
	keywords := []string{}
	seg, ok := keywordsMatcher.segment(cleanText(text))
	if !ok {
		return keywords
	}

	seen := make(map[string]bool)
	for _, tok := range keywordSplitRe.Split(seg, -1) {
		tok = bulletRe.ReplaceAllString(tok, "")
		tok = strings.Trim(strings.TrimSpace(tok), `"'.`)
		if len([]rune(tok)) < 3 {
			continue
		}
		key := strings.ToLower(tok)
		if seen[key] {
			continue
		}
		seen[key] = true
		keywords = append(keywords, tok)
	}
	return keywords
}

// ExtractTitlePatterns returns the phrases listed after a title patterns
// label, with bullet markers removed.
func ExtractTitlePatterns(text string) []string {
	patterns := []string{}
	seg, ok := titlePatternsMatcher.segment(cleanText(text))
	if !ok {
		return patterns
	}

	for _, line := range titleSplitRe.Split(seg, -1) {
		line = bulletRe.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), `"'`)
		if line == "" {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// Extract parses free-form market research text into MarketData. It never
// fails; fields without a recognizable label keep their defaults.
func Extract(text string) listing.MarketData {
	return listing.MarketData{
		PriceRange:       ExtractPriceRange(text),
		ConditionSummary: ExtractCondition(text),
		Keywords:         ExtractKeywords(text),
		TitlePatterns:    ExtractTitlePatterns(text),
		Sources:          []listing.GroundingSource{},
	}
}
