package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/chatstore/internal/transcript"
)

// MockClient provides deterministic local replies when no model API is
// configured.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Send(ctx context.Context, history []transcript.Entry, userEntry transcript.Entry) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	text := ""
	if len(userEntry.Parts) > 0 {
		text = strings.TrimSpace(userEntry.Parts[0])
	}
	if text == "" {
		text = "I am listening."
	}

	if len(history) == 0 {
		return fmt.Sprintf("I heard you: %s", text), nil
	}
	return fmt.Sprintf("I heard you: %s (turn %d of this conversation)", text, len(history)+1), nil
}
