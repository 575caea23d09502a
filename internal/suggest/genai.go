package suggest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultGenAIModel is used when no model is configured.
const DefaultGenAIModel = "gemini-2.0-flash"

const titlePrompt = `You are an AI assistant helping users create appealing titles for their links on a social media landing page.

Based on the content of the following URL, suggest a concise and engaging title. Reply with the title only.

URL: %s

Title:`

// generator is the slice of the genai client used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAISuggester asks a Gemini model for a title.
type GenAISuggester struct {
	models generator
	model  string
	logger *zap.Logger
}

// NewGenAISuggester creates a Gemini-backed suggester.
func NewGenAISuggester(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GenAISuggester, error) {
	if apiKey == "" {
		return nil, errors.New("genai API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGenAISuggester(client.Models, model, logger), nil
}

func newGenAISuggester(models generator, model string, logger *zap.Logger) *GenAISuggester {
	if model == "" {
		model = DefaultGenAIModel
	}
	return &GenAISuggester{models: models, model: model, logger: logger}
}

func (s *GenAISuggester) Suggest(ctx context.Context, rawURL string) (string, error) {
	target, err := ValidateURL(rawURL)
	if err != nil {
		return "", err
	}
	resp, err := s.models.GenerateContent(ctx, s.model, genai.Text(fmt.Sprintf(titlePrompt, target)), nil)
	if err != nil {
		s.logger.Warn("genai title suggestion failed", zap.String("url", target), zap.Error(err))
		return "", fmt.Errorf("generate title: %w", err)
	}
	title := cleanTitle(resp.Text())
	if title == "" {
		return "", ErrNoTitle
	}
	return title, nil
}
