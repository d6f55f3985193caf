// Package model is the boundary to the generative-AI collaborator. The
// persistence core only supplies context and records the reply.
package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/chatstore/internal/transcript"
)

// Client sends one user entry with its accumulated context and returns the
// assistant's reply text.
type Client interface {
	Send(ctx context.Context, history []transcript.Entry, userEntry transcript.Entry) (string, error)
}

// Config controls client construction.
type Config struct {
	Provider string // auto | gemini | mock
	APIKey   string
	Model    string
}

// New resolves the configured provider. "auto" picks gemini when an API key
// is present and falls back to the mock client otherwise.
func New(ctx context.Context, cfg Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	switch provider {
	case "gemini":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	case "mock":
		return NewMockClient(), nil
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		}
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}
