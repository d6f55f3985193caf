package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/chatstore/internal/attach"
	"github.com/antoniostano/chatstore/internal/config"
	"github.com/antoniostano/chatstore/internal/httpapi"
	"github.com/antoniostano/chatstore/internal/model"
	"github.com/antoniostano/chatstore/internal/observability"
	"github.com/antoniostano/chatstore/internal/session"
	"github.com/antoniostano/chatstore/internal/store"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Store
	Backend  store.Backend
	Model    model.Client
	Uploader attach.Uploader
	Metrics  *observability.Metrics

	// ModelProvider and UploaderKind report what auto-resolution picked.
	ModelProvider string
	UploaderKind  string

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	backend, err := store.New(ctx, store.Config{
		Kind:          cfg.StoreBackend,
		ConnectionURI: cfg.StoreConnectionURI,
		Database:      cfg.StoreDatabase,
		Collection:    cfg.StoreCollection,
	})
	if err != nil {
		return nil, fmt.Errorf("store backend init failed: %w", err)
	}

	client, err := model.New(ctx, model.Config{
		Provider: cfg.ModelProvider,
		APIKey:   cfg.GeminiAPIKey,
		Model:    cfg.GeminiModel,
	})
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("model client init failed: %w", err)
	}
	provider := "mock"
	if _, ok := client.(*model.GeminiClient); ok {
		provider = "gemini"
	}

	var uploader attach.Uploader
	uploaderKind := "mock"
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		up, err := attach.NewGeminiUploader(ctx, cfg.GeminiAPIKey)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("attachment uploader init failed: %w", err)
		}
		uploader = up
		uploaderKind = "gemini"
	} else {
		uploader = attach.NewMockUploader()
	}

	sessions := session.NewStore(backend)
	api := httpapi.New(cfg, sessions, client, uploader, metrics)

	cleanup := func() error {
		return backend.Close()
	}

	return &BuildResult{
		Config:        cfg,
		API:           api,
		Sessions:      sessions,
		Backend:       backend,
		Model:         client,
		Uploader:      uploader,
		Metrics:       metrics,
		ModelProvider: provider,
		UploaderKind:  uploaderKind,
		Cleanup:       cleanup,
	}, nil
}
