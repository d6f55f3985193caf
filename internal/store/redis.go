package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is the pure key-value backend. Records are JSON blobs under
// opaque keys; there is no user index, so ListByUser is unsupported.
type RedisBackend struct {
	client   *redis.Client
	keyspace string
}

func NewRedisBackend(ctx context.Context, uri, keyspace string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if keyspace == "" {
		keyspace = "chatstore"
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w: %v", ErrUnavailable, err)
	}
	return &RedisBackend{client: client, keyspace: keyspace}, nil
}

func (b *RedisBackend) key(sessionID string) string {
	return b.keyspace + ":session:" + sessionID
}

func (b *RedisBackend) Put(ctx context.Context, sessionID string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis put encode: %w", err)
	}
	if err := b.client.Set(ctx, b.key(sessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis put: %w: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) Get(ctx context.Context, sessionID string) (Record, error) {
	data, err := b.client.Get(ctx, b.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("redis get: %w: %v", ErrUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("redis get decode: %w", err)
	}
	return rec, nil
}

func (b *RedisBackend) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

func (b *RedisBackend) ListByUser(_ context.Context, _ string) ([]string, error) {
	return nil, fmt.Errorf("redis list: %w", ErrUnsupported)
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
