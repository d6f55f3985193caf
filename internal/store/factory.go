package store

import (
	"context"
	"fmt"
	"strings"
)

// Backend kinds selectable through configuration.
const (
	KindEphemeral = "ephemeral"
	KindDocument  = "document"
	KindKeyValue  = "keyvalue"
	KindPostgres  = "postgres"
)

// Config carries the connection settings for a backend.
type Config struct {
	Kind          string
	ConnectionURI string
	// Database is the database name, keyspace prefix or project id,
	// depending on the engine.
	Database   string
	Collection string
}

// New creates the backend for the configured engine.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindEphemeral:
		return NewMemoryBackend(), nil
	case KindDocument:
		return NewFirestoreBackend(ctx, cfg.Database, cfg.Collection)
	case KindKeyValue:
		return NewRedisBackend(ctx, cfg.ConnectionURI, cfg.Database)
	case KindPostgres:
		return NewPostgresBackend(ctx, cfg.ConnectionURI)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Kind)
	}
}
