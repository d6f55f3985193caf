package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend is the ephemeral in-process backend for local/dev use and
// for the process-local fallback. Nothing survives a restart.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]Record
	seq     map[string]uint64
	nextSeq uint64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string]Record),
		seq:     make(map[string]uint64),
	}
}

func (b *MemoryBackend) Put(_ context.Context, sessionID string, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[sessionID]; !ok {
		b.nextSeq++
		b.seq[sessionID] = b.nextSeq
	}
	rec.Turns = cloneTurns(rec.Turns)
	b.records[sessionID] = rec
	return nil
}

func (b *MemoryBackend) Get(_ context.Context, sessionID string) (Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[sessionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Turns = cloneTurns(rec.Turns)
	return rec, nil
}

func (b *MemoryBackend) Exists(_ context.Context, sessionID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.records[sessionID]
	return ok, nil
}

// ListByUser is trivially re-derivable here by scanning the map. Newest
// first; insertion order breaks creation-time ties.
func (b *MemoryBackend) ListByUser(_ context.Context, userID string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var ids []string
	for id, rec := range b.records {
		if rec.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, z := b.records[ids[i]], b.records[ids[j]]
		if !a.CreatedAt.Equal(z.CreatedAt) {
			return a.CreatedAt.After(z.CreatedAt)
		}
		return b.seq[ids[i]] > b.seq[ids[j]]
	})
	return ids, nil
}

func (b *MemoryBackend) Close() error { return nil }

func cloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
