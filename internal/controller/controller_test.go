package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/chatstore/internal/session"
	"github.com/antoniostano/chatstore/internal/store"
	"github.com/antoniostano/chatstore/internal/transcript"
)

// recordingClient captures the context handed to the model on every send.
type recordingClient struct {
	mu       sync.Mutex
	contexts [][]transcript.Entry
}

func (c *recordingClient) Send(_ context.Context, history []transcript.Entry, userEntry transcript.Entry) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]transcript.Entry, len(history))
	copy(snapshot, history)
	c.contexts = append(c.contexts, snapshot)
	return "reply to: " + userEntry.Parts[0], nil
}

func (c *recordingClient) lastContext() []transcript.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.contexts) == 0 {
		return nil
	}
	return c.contexts[len(c.contexts)-1]
}

// flakyBackend fails every operation until healed.
type flakyBackend struct {
	*store.MemoryBackend
	mu   sync.Mutex
	down bool
}

func (b *flakyBackend) setDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

func (b *flakyBackend) unavailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.down
}

func (b *flakyBackend) Put(ctx context.Context, id string, rec store.Record) error {
	if b.unavailable() {
		return fmt.Errorf("put: %w", store.ErrUnavailable)
	}
	return b.MemoryBackend.Put(ctx, id, rec)
}

func (b *flakyBackend) Get(ctx context.Context, id string) (store.Record, error) {
	if b.unavailable() {
		return store.Record{}, fmt.Errorf("get: %w", store.ErrUnavailable)
	}
	return b.MemoryBackend.Get(ctx, id)
}

func newTestController(backend store.Backend) (*Controller, *recordingClient) {
	client := &recordingClient{}
	c := New(session.NewStore(backend), client)
	c.sleep = func(time.Duration) {}
	return c, client
}

func TestStartNewThenSendPersists(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	c, _ := newTestController(backend)

	id, err := c.StartNew(ctx, "alice")
	if err != nil {
		t.Fatalf("StartNew() error = %v", err)
	}
	if c.State() != StateActive {
		t.Fatalf("state = %q, want %q", c.State(), StateActive)
	}

	ex, err := c.Send(ctx, "hi", "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !ex.Persisted {
		t.Fatalf("exchange not persisted: %+v", ex.PersistErr)
	}
	if ex.UserTurn.Role != store.RoleHuman || ex.AssistantTurn.Role != store.RoleAssistant {
		t.Fatalf("unexpected turn roles: %+v", ex)
	}

	rec, err := backend.Get(ctx, id)
	if err != nil {
		t.Fatalf("backend Get() error = %v", err)
	}
	if len(rec.Turns) != 2 || rec.Turns[0].Content != "hi" {
		t.Fatalf("stored turns = %+v, want the full exchange", rec.Turns)
	}
}

func TestSendWithoutSession(t *testing.T) {
	c, _ := newTestController(store.NewMemoryBackend())
	if _, err := c.Send(context.Background(), "hi", ""); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Send() error = %v, want ErrNoActiveSession", err)
	}
}

func TestResumeRebuildsContext(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	sessions := session.NewStore(backend)

	id, err := sessions.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	saved := []store.Turn{
		{ID: "t1", Role: store.RoleHuman, Content: "hi"},
		{ID: "t2", Role: store.RoleAssistant, Content: "hello"},
	}
	if err := sessions.Save(ctx, id, saved); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	c, client := newTestController(backend)
	if err := c.Resume(ctx, id); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if _, err := c.Send(ctx, "again", ""); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := client.lastContext()
	if len(got) != 2 {
		t.Fatalf("model context has %d entries, want the 2 resumed turns", len(got))
	}
	if got[0].Role != transcript.RoleUser || got[1].Role != transcript.RoleModel {
		t.Fatalf("resumed context roles = %+v", got)
	}
}

func TestResumeUnknownKeepsState(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(store.NewMemoryBackend())

	id, err := c.StartNew(ctx, "alice")
	if err != nil {
		t.Fatalf("StartNew() error = %v", err)
	}
	if _, err := c.Send(ctx, "hi", ""); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	err = c.Resume(ctx, "aaaabbbb")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Resume(unknown) error = %v, want ErrNotFound", err)
	}
	if c.State() != StateActive || c.SessionID() != id {
		t.Fatalf("resume of a guessed id must not disturb the active session: state=%q id=%q", c.State(), c.SessionID())
	}
	if len(c.History()) != 2 {
		t.Fatalf("in-memory history lost after failed resume: %+v", c.History())
	}
}

func TestContextDoesNotLeakAcrossSessions(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	c, client := newTestController(backend)

	if _, err := c.StartNew(ctx, "alice"); err != nil {
		t.Fatalf("StartNew() error = %v", err)
	}
	if _, err := c.Send(ctx, "secret from session one", ""); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if _, err := c.StartNew(ctx, "alice"); err != nil {
		t.Fatalf("second StartNew() error = %v", err)
	}
	if _, err := c.Send(ctx, "fresh start", ""); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := client.lastContext()
	if len(got) != 0 {
		t.Fatalf("new session context = %+v, stale turns leaked across the switch", got)
	}
}

func TestBackendErrorIsNotSticky(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{MemoryBackend: store.NewMemoryBackend()}
	c, _ := newTestController(backend)

	backend.setDown(true)
	id, err := c.StartNew(ctx, "alice")
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("StartNew() during outage error = %v, want ErrUnavailable", err)
	}
	if id == "" {
		t.Fatalf("StartNew() during outage must still yield a usable id")
	}
	if c.State() != StateBackendError {
		t.Fatalf("state = %q, want %q", c.State(), StateBackendError)
	}

	// The fallback session keeps working, and the successful flush clears
	// the error state.
	ex, err := c.Send(ctx, "hi", "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !ex.Persisted {
		t.Fatalf("fallback save failed: %+v", ex.PersistErr)
	}
	if c.State() != StateActive {
		t.Fatalf("state after successful flush = %q, want %q", c.State(), StateActive)
	}
}

func TestSendReportsUnsavedTurn(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{MemoryBackend: store.NewMemoryBackend()}
	c, _ := newTestController(backend)

	if _, err := c.StartNew(ctx, "alice"); err != nil {
		t.Fatalf("StartNew() error = %v", err)
	}

	backend.setDown(true)
	ex, err := c.Send(ctx, "hi", "")
	if err != nil {
		t.Fatalf("Send() error = %v, reply must still be delivered", err)
	}
	if ex.Persisted {
		t.Fatalf("exchange reported persisted during outage")
	}
	if !errors.Is(ex.PersistErr, store.ErrUnavailable) {
		t.Fatalf("PersistErr = %v, want ErrUnavailable", ex.PersistErr)
	}
	if c.State() != StateBackendError {
		t.Fatalf("state = %q, want %q", c.State(), StateBackendError)
	}

	// Conversation continues in memory.
	if len(c.History()) != 2 {
		t.Fatalf("in-memory history = %d turns, want 2", len(c.History()))
	}

	// Backend recovers; the next exchange flushes the full history.
	backend.setDown(false)
	if _, err := c.Send(ctx, "still there?", ""); err != nil {
		t.Fatalf("Send() after recovery error = %v", err)
	}
	rec, err := backend.Get(ctx, c.SessionID())
	if err != nil {
		t.Fatalf("backend Get() error = %v", err)
	}
	if len(rec.Turns) != 4 {
		t.Fatalf("stored turns after recovery = %d, want all 4", len(rec.Turns))
	}
}

func TestResetDropsSession(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(store.NewMemoryBackend())

	if _, err := c.StartNew(ctx, "alice"); err != nil {
		t.Fatalf("StartNew() error = %v", err)
	}
	c.Reset()
	if c.State() != StateNoSession || c.SessionID() != "" {
		t.Fatalf("after Reset: state=%q id=%q", c.State(), c.SessionID())
	}
}
