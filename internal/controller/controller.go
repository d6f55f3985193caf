// Package controller orchestrates which session is active for one
// interactive caller and decides when state is flushed to the store.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/chatstore/internal/model"
	"github.com/antoniostano/chatstore/internal/reliability"
	"github.com/antoniostano/chatstore/internal/session"
	"github.com/antoniostano/chatstore/internal/store"
	"github.com/antoniostano/chatstore/internal/transcript"
)

// State is where the controller sits in the session lifecycle.
type State string

const (
	StateNoSession    State = "no_session"
	StateActive       State = "active"
	StateBackendError State = "backend_error"
)

// ErrNoActiveSession is returned by Send before a session is opened.
var ErrNoActiveSession = errors.New("no active session")

// How many times a transient save failure is retried before the unsaved
// turn is reported to the caller.
const (
	saveAttempts = 2
	backoffBase  = 100 * time.Millisecond
	backoffCap   = time.Second
)

// Exchange is the outcome of one send: both new turns plus whether the
// updated history reached storage. The reply is delivered even when the
// write was lost; Persisted=false must be shown to the user.
type Exchange struct {
	UserTurn      store.Turn
	AssistantTurn store.Turn
	Persisted     bool
	PersistErr    error
}

// Controller drives the new/resume/send flows for a single interactive
// caller. The model context is an explicit object rebuilt only from the
// active session's history and reset on every switch, so context from a
// previous session can never leak into the next one.
type Controller struct {
	mu       sync.Mutex
	sessions *session.Store
	client   model.Client
	now      func() time.Time
	sleep    func(time.Duration)

	state     State
	sessionID string
	userID    string
	turns     []store.Turn
	context   []transcript.Entry
}

func New(sessions *session.Store, client model.Client) *Controller {
	return &Controller{
		sessions: sessions,
		client:   client,
		now:      time.Now,
		sleep:    time.Sleep,
		state:    StateNoSession,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// UserID returns the owner of the active session when it was opened through
// StartNew; empty after a plain Resume.
func (c *Controller) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// History returns a copy of the active session's in-memory turns.
func (c *Controller) History() []store.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// StartNew creates a fresh session for userID and makes it active,
// discarding any in-memory context from the previous one. Stored history of
// the previous session is untouched.
//
// On a storage outage the session is still usable (process-local fallback
// id); the controller records the degraded state and returns the wrapped
// store.ErrUnavailable so the caller can surface it.
func (c *Controller) StartNew(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.sessions.Create(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrUnavailable) {
		// Validation failure: current session stays as it was.
		return "", err
	}

	c.resetLocked()
	c.sessionID = id
	c.userID = userID
	if err != nil {
		c.state = StateBackendError
	} else {
		c.state = StateActive
	}
	return id, err
}

// Resume loads an existing session by id and makes it active. A not-found
// id leaves the current state untouched and never implicitly creates a
// session under the guessed id.
func (c *Controller) Resume(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns, err := c.sessions.Load(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			c.state = StateBackendError
		}
		return err
	}

	c.resetLocked()
	c.sessionID = id
	c.userID = ""
	c.turns = turns
	c.context = transcript.ToModelContext(turns)
	c.state = StateActive
	return nil
}

// Send runs one exchange: build the human turn, invoke the model with the
// accumulated context, append both turns and flush the full history.
func (c *Controller) Send(ctx context.Context, content, attachmentRef string) (Exchange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == "" {
		return Exchange{}, ErrNoActiveSession
	}

	userTurn := store.Turn{
		ID:            uuid.NewString(),
		Role:          store.RoleHuman,
		Content:       content,
		AttachmentRef: attachmentRef,
		CreatedAt:     c.now().UTC(),
	}
	userEntry := transcript.FromTurn(userTurn)

	reply, err := c.client.Send(ctx, c.context, userEntry)
	if err != nil {
		return Exchange{}, fmt.Errorf("model send: %w", err)
	}

	assistantTurn := store.Turn{
		ID:        uuid.NewString(),
		Role:      store.RoleAssistant,
		Content:   reply,
		CreatedAt: c.now().UTC(),
	}

	c.turns = append(c.turns, userTurn, assistantTurn)
	c.context = append(c.context, userEntry, transcript.FromTurn(assistantTurn))

	ex := Exchange{UserTurn: userTurn, AssistantTurn: assistantTurn, Persisted: true}
	if err := c.save(ctx); err != nil {
		// The conversation keeps working in memory; the lost write must
		// stay visible to the user.
		ex.Persisted = false
		ex.PersistErr = err
		if errors.Is(err, store.ErrUnavailable) {
			c.state = StateBackendError
		}
		return ex, nil
	}

	// Errors are not sticky: one successful flush clears a backend error.
	c.state = StateActive
	return ex, nil
}

// Reset discards the active session and its in-memory context without
// touching stored history.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.sessionID = ""
	c.userID = ""
	c.state = StateNoSession
}

func (c *Controller) save(ctx context.Context) error {
	var err error
	for attempt := 0; attempt < saveAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(reliability.ExponentialBackoff(attempt, backoffBase, backoffCap))
		}
		err = c.sessions.Save(ctx, c.sessionID, c.turns)
		if err == nil || !reliability.IsRetryable(err) {
			return err
		}
	}
	return err
}

func (c *Controller) resetLocked() {
	c.turns = nil
	c.context = nil
}
