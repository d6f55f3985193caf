package store

import (
	"context"
	"errors"
	"time"
)

// Role tags one side of a conversational exchange as it is persisted.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable message in a session history. AttachmentRef is an
// opaque handle to externally stored content and is never inspected here.
type Turn struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	AttachmentRef string    `json:"attachment_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Record is the full persisted state of one session. UserID never changes
// after creation; Turns is replaced wholesale on every write.
type Record struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Turns     []Turn    `json:"turns"`
}

var (
	// ErrNotFound means the session id is unknown. A valid outcome, not a failure.
	ErrNotFound = errors.New("session record not found")
	// ErrUnavailable means the storage engine could not be reached.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrUnsupported means the engine lacks an optional capability.
	ErrUnsupported = errors.New("operation not supported by backend")
)

// Backend is the uniform persistence surface over heterogeneous engines.
//
// Put overwrites the full record for a session id. Get returns ErrNotFound
// for unknown ids. ListByUser returns session ids newest first, or
// ErrUnsupported when the engine cannot index by user; callers must treat
// that as "no history available", never as fatal.
type Backend interface {
	Put(ctx context.Context, sessionID string, rec Record) error
	Get(ctx context.Context, sessionID string) (Record, error)
	Exists(ctx context.Context, sessionID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]string, error)
	Close() error
}
