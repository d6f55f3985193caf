package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/antoniostano/chatstore/internal/store"
)

// Store manages session lifecycle on top of a backend: create, load, save
// and list-by-user, with the same invariants regardless of engine.
//
// Every Store carries a process-local fallback. When the primary backend is
// unreachable during Create, the new session is parked there so the caller
// is never blocked by a storage outage; such a session stays usable for the
// rest of the process lifetime but does not survive a restart.
type Store struct {
	primary  store.Backend
	fallback *store.MemoryBackend
	now      func() time.Time
}

func NewStore(primary store.Backend) *Store {
	return &Store{
		primary:  primary,
		fallback: store.NewMemoryBackend(),
		now:      time.Now,
	}
}

// Create generates a new unique session id and writes an empty-history
// record owned by userID.
//
// When the backend is unavailable the returned id is still usable: the
// record lives in the process-local fallback and the wrapped
// store.ErrUnavailable tells the caller durability is degraded.
func (s *Store) Create(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrInvalidUserID
	}

	id := NewID()
	rec := store.Record{
		SessionID: id,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}

	err := s.primary.Put(ctx, id, rec)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, store.ErrUnavailable) {
		_ = s.fallback.Put(ctx, id, rec)
		return id, err
	}
	return "", err
}

// Load returns the persisted history for a session, or store.ErrNotFound.
// It never mutates anything.
func (s *Store) Load(ctx context.Context, id string) ([]store.Turn, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	if rec, err := s.fallback.Get(ctx, id); err == nil {
		return rec.Turns, nil
	}

	rec, err := s.primary.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Turns, nil
}

// Save overwrites the stored history for a previously created session.
// Idempotent: saving the same history twice leaves the same stored state.
// A store.ErrUnavailable result means the turns were not persisted and must
// be surfaced to the user.
func (s *Store) Save(ctx context.Context, id string, turns []store.Turn) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	// Fallback-resident sessions keep living in the fallback; identity
	// fields come from the existing record either way.
	if rec, err := s.fallback.Get(ctx, id); err == nil {
		rec.Turns = turns
		return s.fallback.Put(ctx, id, rec)
	}

	rec, err := s.primary.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.Turns = turns
	return s.primary.Put(ctx, id, rec)
}

// List returns the user's session ids, newest first. A backend without the
// capability, an unreachable backend and a user with no sessions all look
// the same to the caller: absence is absence.
func (s *Store) List(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}

	ids, err := s.primary.ListByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUnsupported) || errors.Is(err, store.ErrUnavailable) {
			ids, _ := s.fallback.ListByUser(ctx, userID)
			return ids, nil
		}
		return nil, err
	}

	// Sessions created during an outage are only known to the fallback.
	// Their true order relative to the primary's is unknowable; list them
	// first, newest first within the group.
	if fids, _ := s.fallback.ListByUser(ctx, userID); len(fids) > 0 {
		ids = append(fids, ids...)
	}
	return ids, nil
}
