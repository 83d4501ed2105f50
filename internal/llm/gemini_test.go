package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type generatorMock struct {
	mock.Mock
}

func (m *generatorMock) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, model, contents, config)
	resp, _ := args.Get(0).(*genai.GenerateContentResponse)
	return resp, args.Error(1)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(text, genai.RoleModel)}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     100,
			CandidatesTokenCount: 20,
			TotalTokenCount:      120,
		},
	}
}

func TestGemini_Identify(t *testing.T) {
	m := new(generatorMock)
	m.On("GenerateContent", mock.Anything, visionModel, mock.Anything, mock.Anything).
		Return(textResponse(`{"description": " Apple iPod Classic ", "category": "Electronics"}`), nil)

	g := &Gemini{models: m}
	ident, err := g.Identify(context.Background(), [][]byte{[]byte("img")})
	require.NoError(t, err)
	assert.Equal(t, "Apple iPod Classic", ident.Description)
	assert.Equal(t, "Electronics", ident.Category)
	m.AssertExpectations(t)
}

func TestGemini_IdentifyErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "I think this is a lamp"},
		{"missing category", `{"description": "Lamp"}`},
		{"blank description", `{"description": "  ", "category": "Home"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(generatorMock)
			m.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(textResponse(tt.text), nil)

			_, err := (&Gemini{models: m}).Identify(context.Background(), [][]byte{[]byte("img")})
			var identErr *listing.IdentificationError
			assert.ErrorAs(t, err, &identErr)
		})
	}
}

func TestGemini_IdentifyNoImages(t *testing.T) {
	_, err := (&Gemini{models: new(generatorMock)}).Identify(context.Background(), nil)
	var identErr *listing.IdentificationError
	assert.ErrorAs(t, err, &identErr)
}

func TestGemini_ResearchCollectsSources(t *testing.T) {
	resp := textResponse("Price range: $40 - $90\nCondition summary: Used, good")
	resp.Candidates[0].GroundingMetadata = &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{URI: "https://a.example", Title: "A"}},
			{Web: &genai.GroundingChunkWeb{URI: "https://a.example", Title: "A again"}},
			{Web: &genai.GroundingChunkWeb{URI: "https://b.example", Title: "B"}},
			{},
		},
	}
	m := new(generatorMock)
	m.On("GenerateContent", mock.Anything, researchModel, mock.Anything, mock.MatchedBy(func(c *genai.GenerateContentConfig) bool {
		return len(c.Tools) == 1 && c.Tools[0].GoogleSearch != nil
	})).Return(resp, nil)

	result, err := (&Gemini{models: m}).Research(context.Background(), "ipod classic")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Price range")
	assert.Nil(t, result.Market)
	assert.Equal(t, []listing.GroundingSource{
		{Type: "web", URI: "https://a.example", Title: "A"},
		{Type: "web", URI: "https://b.example", Title: "B"},
	}, result.Sources)
}

func TestGemini_ResearchUpstreamError(t *testing.T) {
	m := new(generatorMock)
	m.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("quota exceeded"))

	_, err := (&Gemini{models: m}).Research(context.Background(), "ipod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGemini_Draft(t *testing.T) {
	m := new(generatorMock)
	m.On("GenerateContent", mock.Anything, draftingModel, mock.Anything, mock.Anything).
		Return(textResponse(`{"title":"iPod Classic 160GB","description":"Works great.","priceRange":"$40 - $90 USD","condition":"Used"}`), nil)

	d, err := (&Gemini{models: m}).Draft(context.Background(),
		listing.ItemIdentification{Description: "iPod", Category: "Electronics"},
		listing.EmptyMarketData(), nil)
	require.NoError(t, err)
	assert.Equal(t, "iPod Classic 160GB", d.SuggestedTitle)
	assert.Equal(t, "$40 - $90 USD", d.SuggestedPriceRange)
	assert.Equal(t, "Used", d.SuggestedCondition)
}

func TestGemini_DraftMalformed(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		message string
	}{
		{"not json", "Sure! Here is a listing", "unparseable"},
		{"missing fields", `{"title":"iPod","description":"ok"}`, "missing required fields: condition, priceRange"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(generatorMock)
			m.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(textResponse(tt.text), nil)

			_, err := (&Gemini{models: m}).Draft(context.Background(),
				listing.ItemIdentification{Description: "iPod", Category: "Electronics"},
				listing.EmptyMarketData(), nil)
			var draftErr *listing.DraftingError
			require.ErrorAs(t, err, &draftErr)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	s, err := extractJSONObject("```json\n{\"a\": 1}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, s)

	_, err = extractJSONObject("no json")
	assert.Error(t, err)
}

func TestCalculateCost(t *testing.T) {
	assert.InDelta(t, 0.5+3.0, calculateCost(visionModel, 1_000_000, 1_000_000), 1e-9)
	assert.Zero(t, calculateCost("unknown-model", 1000, 1000))
}
