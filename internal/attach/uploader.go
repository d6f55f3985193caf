// Package attach is the boundary to external attachment storage. The core
// stores and forwards the opaque reference and never inspects the content.
package attach

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// Uploader stores raw bytes externally and returns an opaque reference.
type Uploader interface {
	Upload(ctx context.Context, data []byte, name string) (string, error)
}

// GeminiUploader pushes attachments to the Gemini Files API.
type GeminiUploader struct {
	client *genai.Client
}

func NewGeminiUploader(ctx context.Context, apiKey string) (*GeminiUploader, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiUploader{client: client}, nil
}

func (u *GeminiUploader) Upload(ctx context.Context, data []byte, name string) (string, error) {
	file, err := u.client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{
		DisplayName: name,
	})
	if err != nil {
		return "", fmt.Errorf("upload attachment: %w", err)
	}
	if file.URI != "" {
		return file.URI, nil
	}
	return file.Name, nil
}

// MockUploader keeps attachments in process memory for local/dev use.
type MockUploader struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMockUploader() *MockUploader {
	return &MockUploader{blobs: make(map[string][]byte)}
}

func (u *MockUploader) Upload(_ context.Context, data []byte, name string) (string, error) {
	ref := fmt.Sprintf("mock://%s/%s", uuid.NewString(), name)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}
