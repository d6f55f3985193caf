// Package transcript maps persisted session history onto the role/part
// format the generative model consumes.
package transcript

import (
	"github.com/antoniostano/chatstore/internal/store"
)

// Model-facing role names. The store persists "human" and "assistant"; the
// model API expects "user" and "model".
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Entry is one model-context element: a role plus one or more content parts.
type Entry struct {
	Role  string
	Parts []string
}

// ToModelContext converts a history into model context. The conversion is
// pure, deterministic and total: every turn maps to exactly one entry, in
// order, with an attachment ref carried as an extra part only on the turn
// that introduced it.
func ToModelContext(turns []store.Turn) []Entry {
	entries := make([]Entry, 0, len(turns))
	for _, t := range turns {
		entries = append(entries, FromTurn(t))
	}
	return entries
}

// FromTurn converts a single turn into its context entry.
func FromTurn(t store.Turn) Entry {
	role := RoleUser
	if t.Role == store.RoleAssistant {
		role = RoleModel
	}
	parts := []string{t.Content}
	if t.AttachmentRef != "" {
		parts = append(parts, t.AttachmentRef)
	}
	return Entry{Role: role, Parts: parts}
}
