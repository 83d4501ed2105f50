package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	visionModel   = "gemini-3-flash-preview"
	researchModel = "gemini-2.5-flash"
	draftingModel = "gemini-2.5-flash-lite"
)

// Gemini talks to the Gemini API. One value serves identification,
// research and drafting for a single API key.
type Gemini struct {
	models contentGenerator
}

// NewGemini creates a client for apiKey.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{models: client.Models}, nil
}

func userText(prompt string) []*genai.Content {
	return []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser),
	}
}

const identifyPrompt = `Identify the item in these photos so it can be listed for sale on a secondhand marketplace.
All photos show the same item.

Respond in JSON with these fields:
- description: a short search phrase naming the item, including brand and model when visible
- category: a broad marketplace category for the item

Example response:
{"description": "Apple iPod Classic 160GB", "category": "Consumer Electronics"}`

var identifySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"description": {Type: genai.TypeString},
		"category":    {Type: genai.TypeString},
	},
	Required: []string{"description", "category"},
}

// Identify implements Identifier.
func (g *Gemini) Identify(ctx context.Context, images [][]byte) (*listing.ItemIdentification, error) {
	if len(images) == 0 {
		return nil, &listing.IdentificationError{Reason: "no images provided"}
	}
	if len(images) > MaxImages {
		images = images[:MaxImages]
	}

	parts := []*genai.Part{genai.NewPartFromText(identifyPrompt)}
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: img, MIMEType: "image/jpeg"},
		})
	}

	resp, err := g.models.GenerateContent(ctx, visionModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   identifySchema,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	logUsage("vision", visionModel, usageOf(visionModel, resp))

	if !hasContent(resp) {
		return nil, &listing.IdentificationError{Reason: "empty response"}
	}
	return parseIdentification(resp.Text())
}

func parseIdentification(text string) (*listing.ItemIdentification, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, &listing.IdentificationError{Reason: "unparseable response", Err: err}
	}
	var ident listing.ItemIdentification
	if err := json.Unmarshal([]byte(jsonStr), &ident); err != nil {
		return nil, &listing.IdentificationError{Reason: "unparseable response", Err: err}
	}
	ident.Description = strings.TrimSpace(ident.Description)
	ident.Category = strings.TrimSpace(ident.Category)
	if !ident.Complete() {
		return nil, &listing.IdentificationError{Reason: "response lacks a description or category"}
	}
	return &ident, nil
}

const researchPrompt = `Research recent sold prices for the following item on secondhand marketplaces: %s

Answer in plain text using exactly these labelled lines:
Price range: the typical sold price range in USD, e.g. "$50 - $100"
Condition summary: the most common conditions items sell in
Keywords: comma separated search keywords buyers use
Title patterns: one or more effective listing titles separated by semicolons, using {item} where the item name goes`

// Research performs grounded market research with the Google Search tool.
// The answer is free text; sources come from the grounding metadata.
func (g *Gemini) Research(ctx context.Context, query string) (*listing.ResearchResult, error) {
	resp, err := g.models.GenerateContent(ctx, researchModel, userText(fmt.Sprintf(researchPrompt, query)),
		&genai.GenerateContentConfig{
			Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		})
	if err != nil {
		return nil, fmt.Errorf("gemini research failed: %w", err)
	}
	logUsage("research", researchModel, usageOf(researchModel, resp))

	result := &listing.ResearchResult{Sources: []listing.GroundingSource{}}
	if !hasContent(resp) {
		return result, nil
	}
	result.Text = resp.Text()
	result.Sources = groundingSources(resp.Candidates[0])

	log.Debug().Str("query", query).Int("sources", len(result.Sources)).Msg("market research complete")
	return result, nil
}

func groundingSources(c *genai.Candidate) []listing.GroundingSource {
	sources := []listing.GroundingSource{}
	if c == nil || c.GroundingMetadata == nil {
		return sources
	}
	seen := make(map[string]bool)
	for _, chunk := range c.GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
			continue
		}
		seen[chunk.Web.URI] = true
		sources = append(sources, listing.GroundingSource{
			Type:  "web",
			URI:   chunk.Web.URI,
			Title: chunk.Web.Title,
		})
	}
	return sources
}

const draftPrompt = `Write a marketplace listing for this item.

Item: %s
Category: %s
Market price range: %s
Typical condition: %s
Keywords: %s
Comparable sold listings:
%s
Keep the title under 80 characters. The price range must use the form "$min - $max USD".`

var draftSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":       {Type: genai.TypeString, Description: "Listing title"},
		"description": {Type: genai.TypeString, Description: "Listing body, 2-4 sentences"},
		"priceRange":  {Type: genai.TypeString, Description: "Suggested price range"},
		"condition":   {Type: genai.TypeString, Description: "Suggested condition"},
		"category":    {Type: genai.TypeString, Description: "Suggested category"},
	},
	Required: []string{"title", "description", "priceRange", "condition"},
}

type draftResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceRange  string `json:"priceRange"`
	Condition   string `json:"condition"`
	Category    string `json:"category"`
}

// Draft asks the model for a structured listing. Output that is not JSON
// or lacks a required field yields a *listing.DraftingError.
func (g *Gemini) Draft(ctx context.Context, ident listing.ItemIdentification, md listing.MarketData, comps []listing.ComparableItem) (*listing.ListingDraft, error) {
	md = md.Normalize()
	prompt := fmt.Sprintf(draftPrompt,
		ident.Description, ident.Category, md.PriceRange, md.ConditionSummary,
		strings.Join(md.Keywords, ", "), formatComparables(comps))

	resp, err := g.models.GenerateContent(ctx, draftingModel, userText(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   draftSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini drafting failed: %w", err)
	}
	logUsage("drafting", draftingModel, usageOf(draftingModel, resp))

	if !hasContent(resp) {
		return nil, &listing.DraftingError{Reason: "empty response"}
	}
	return parseDraft(resp.Text())
}

func parseDraft(text string) (*listing.ListingDraft, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, &listing.DraftingError{Reason: "unparseable response", Err: err}
	}
	var r draftResponse
	if err := json.Unmarshal([]byte(jsonStr), &r); err != nil {
		return nil, &listing.DraftingError{Reason: "unparseable response", Err: err}
	}

	var missing []string
	for name, v := range map[string]string{
		"title": r.Title, "description": r.Description,
		"priceRange": r.PriceRange, "condition": r.Condition,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &listing.DraftingError{Reason: "missing required fields: " + strings.Join(missing, ", ")}
	}

	return &listing.ListingDraft{
		ItemDescription:     strings.TrimSpace(r.Description),
		SuggestedTitle:      strings.TrimSpace(r.Title),
		SuggestedCategory:   strings.TrimSpace(r.Category),
		SuggestedPriceRange: strings.TrimSpace(r.PriceRange),
		SuggestedCondition:  strings.TrimSpace(r.Condition),
	}, nil
}

func formatComparables(comps []listing.ComparableItem) string {
	if len(comps) == 0 {
		return "(none found)"
	}
	var b strings.Builder
	for i, c := range comps {
		if i == 10 {
			break
		}
		fmt.Fprintf(&b, "- %s | %s | %s\n", c.Title, c.Price, c.Condition)
	}
	return b.String()
}
