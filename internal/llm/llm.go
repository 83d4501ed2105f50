// Package llm implements the Gemini-backed collaborators: vision
// identification, grounded market research and generative drafting.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// MaxImages caps how many images are sent in one identification request
// (Telegram's album limit).
const MaxImages = 10

// Identifier turns item photos into an identification.
type Identifier interface {
	Identify(ctx context.Context, images [][]byte) (*listing.ItemIdentification, error)
}

// Usage contains token usage and cost information for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type modelPricing struct {
	inputPerMillion  float64
	outputPerMillion float64
}

// Gemini pricing (per million tokens)
var pricing = map[string]modelPricing{
	visionModel:   {inputPerMillion: 0.50, outputPerMillion: 3.00},
	researchModel: {inputPerMillion: 0.30, outputPerMillion: 2.50},
	draftingModel: {inputPerMillion: 0.075, outputPerMillion: 0.30},
}

func calculateCost(model string, inputTokens, outputTokens int64) float64 {
	p := pricing[model]
	return float64(inputTokens)/1_000_000*p.inputPerMillion +
		float64(outputTokens)/1_000_000*p.outputPerMillion
}

func usageOf(model string, resp *genai.GenerateContentResponse) Usage {
	var u Usage
	if resp == nil || resp.UsageMetadata == nil {
		return u
	}
	u.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
	u.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	u.TotalTokens = int64(resp.UsageMetadata.TotalTokenCount)
	u.CostUSD = calculateCost(model, u.InputTokens, u.OutputTokens)
	return u
}

func logUsage(call, model string, u Usage) {
	log.Info().
		Str("model", model).
		Int64("inputTokens", u.InputTokens).
		Int64("outputTokens", u.OutputTokens).
		Float64("costUSD", u.CostUSD).
		Msg(call + " llm call")
}

func hasContent(resp *genai.GenerateContentResponse) bool {
	return resp != nil && len(resp.Candidates) > 0 &&
		resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0
}

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}
