package model

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/antoniostano/chatstore/internal/transcript"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient talks to the Gemini API with the full session transcript as
// context on every call.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Send(ctx context.Context, history []transcript.Entry, userEntry transcript.Entry) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, e := range history {
		contents = append(contents, toContent(e))
	}
	contents = append(contents, toContent(userEntry))

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

func toContent(e transcript.Entry) *genai.Content {
	parts := make([]*genai.Part, 0, len(e.Parts))
	for _, p := range e.Parts {
		parts = append(parts, genai.NewPartFromText(p))
	}
	return &genai.Content{Role: e.Role, Parts: parts}
}
