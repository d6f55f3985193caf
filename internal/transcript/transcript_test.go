package transcript

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/antoniostano/chatstore/internal/store"
)

func TestToModelContextRoleMapping(t *testing.T) {
	turns := []store.Turn{
		{Role: store.RoleHuman, Content: "hi"},
		{Role: store.RoleAssistant, Content: "hello"},
	}
	entries := ToModelContext(turns)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Role != RoleUser {
		t.Errorf("human role mapped to %q, want %q", entries[0].Role, RoleUser)
	}
	if entries[1].Role != RoleModel {
		t.Errorf("assistant role mapped to %q, want %q", entries[1].Role, RoleModel)
	}
}

func TestToModelContextTotalityAndOrder(t *testing.T) {
	// Non-alternating histories convert too: one entry per turn, no drops,
	// no reordering.
	var turns []store.Turn
	for i := 0; i < 7; i++ {
		role := store.RoleHuman
		if i == 3 || i == 4 {
			role = store.RoleAssistant
		}
		turns = append(turns, store.Turn{Role: role, Content: fmt.Sprintf("msg-%d", i)})
	}

	entries := ToModelContext(turns)
	if len(entries) != len(turns) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(turns))
	}
	for i, e := range entries {
		if e.Parts[0] != fmt.Sprintf("msg-%d", i) {
			t.Fatalf("entry %d content = %q, order not preserved", i, e.Parts[0])
		}
	}
}

func TestToModelContextAttachmentOnlyOnIntroducingTurn(t *testing.T) {
	turns := []store.Turn{
		{Role: store.RoleHuman, Content: "see this file", AttachmentRef: "files/abc123"},
		{Role: store.RoleAssistant, Content: "looking"},
		{Role: store.RoleHuman, Content: "thoughts?"},
	}

	entries := ToModelContext(turns)
	if len(entries[0].Parts) != 2 || entries[0].Parts[1] != "files/abc123" {
		t.Fatalf("introducing turn parts = %v, want content plus ref", entries[0].Parts)
	}
	for i, e := range entries[1:] {
		if len(e.Parts) != 1 {
			t.Fatalf("turn %d parts = %v, ref must not reattach to later turns", i+1, e.Parts)
		}
	}
}

func TestToModelContextDeterministic(t *testing.T) {
	turns := []store.Turn{
		{Role: store.RoleHuman, Content: "a", AttachmentRef: "r"},
		{Role: store.RoleAssistant, Content: "b"},
	}
	first := ToModelContext(turns)
	second := ToModelContext(turns)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("conversion is not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestToModelContextEmpty(t *testing.T) {
	if got := ToModelContext(nil); len(got) != 0 {
		t.Fatalf("ToModelContext(nil) = %v, want empty", got)
	}
}
