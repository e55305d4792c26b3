package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultModel = "gemini-1.5-flash"

const promptTemplate = `You are a warm, encouraging coach. A user logged this small win:

%q

Reply with JSON only, shaped as {"praise": string, "action": string, "tags": [string]}.
"praise" is one or two sentences celebrating the win. "action" is one concrete,
tiny next step. "tags" holds one to three lowercase single-word categories.`

// generateFn calls the model and returns the concatenated text parts. It is a
// seam for tests.
type generateFn func(ctx context.Context, prompt string) (string, error)

// GeminiGenerator enriches moments with the Gemini API.
type GeminiGenerator struct {
	client   *genai.Client
	generate generateFn
}

var newGenaiClient = func(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, option.WithAPIKey(apiKey))
}

// NewGeminiGenerator creates a generator for modelName. An empty apiKey is an
// error.
func NewGeminiGenerator(ctx context.Context, apiKey, modelName string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}

	client, err := newGenaiClient(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	if modelName == "" {
		modelName = defaultModel
	}
	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"

	return &GeminiGenerator{
		client: client,
		generate: func(ctx context.Context, prompt string) (string, error) {
			resp, err := model.GenerateContent(ctx, genai.Text(prompt))
			if err != nil {
				return "", fmt.Errorf("gemini generation error: %w", err)
			}
			return responseText(resp)
		},
	}, nil
}

func (g *GeminiGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, text string) (Result, error) {
	raw, err := g.generate(ctx, fmt.Sprintf(promptTemplate, text))
	if err != nil {
		return Result{}, err
	}
	return parseResult(raw)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from gemini")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}
	return sb.String(), nil
}

// parseResult decodes the model reply. Models sometimes wrap JSON in a
// markdown fence even when asked not to.
func parseResult(raw string) (Result, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	var r Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &r); err != nil {
		return Result{}, fmt.Errorf("failed to decode gemini reply: %w", err)
	}
	return normalize(r)
}

var _ Generator = (*GeminiGenerator)(nil)
