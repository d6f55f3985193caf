package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend persists session records in PostgreSQL with the history
// stored as a JSONB column. Full capability set, including the user index.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresBackend{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			turns JSONB NOT NULL DEFAULT '[]'::jsonb
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_created ON chat_sessions (user_id, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (b *PostgresBackend) Put(ctx context.Context, sessionID string, rec Record) error {
	turns, err := json.Marshal(rec.Turns)
	if err != nil {
		return fmt.Errorf("postgres put encode: %w", err)
	}

	// Identity fields are written once; a repeat put only replaces the history.
	_, err = b.pool.Exec(ctx,
		`INSERT INTO chat_sessions (session_id, user_id, created_at, turns)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id) DO UPDATE SET turns = EXCLUDED.turns`,
		sessionID,
		rec.UserID,
		rec.CreatedAt,
		turns,
	)
	if err != nil {
		return fmt.Errorf("postgres put: %w: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *PostgresBackend) Get(ctx context.Context, sessionID string) (Record, error) {
	rec := Record{SessionID: sessionID}
	var turns []byte

	err := b.pool.QueryRow(ctx,
		`SELECT user_id, created_at, turns FROM chat_sessions WHERE session_id=$1`,
		sessionID,
	).Scan(&rec.UserID, &rec.CreatedAt, &turns)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("postgres get: %w: %v", ErrUnavailable, err)
	}

	if err := json.Unmarshal(turns, &rec.Turns); err != nil {
		return Record{}, fmt.Errorf("postgres get decode: %w", err)
	}
	return rec, nil
}

func (b *PostgresBackend) Exists(ctx context.Context, sessionID string) (bool, error) {
	var ok bool
	err := b.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_sessions WHERE session_id=$1)`,
		sessionID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres exists: %w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

func (b *PostgresBackend) ListByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT session_id FROM chat_sessions WHERE user_id=$1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres list: %w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres list scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres list rows: %w: %v", ErrUnavailable, err)
	}
	return ids, nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
