package docroom

import (
	"strings"
	"testing"

	"ideaflow/cli/internal/records"
)

func TestMigrator_FirstMountInitializesEmptyRoomFromTemplate(t *testing.T) {
	store := NewMemoryStore()
	m := NewMigrator(store, nil)
	m.SetRoom(PreSaveDocumentRoom("s1"))
	m.OnRoomSynced(records.Idea{Title: "Build CLI", Summary: "a cli", Tags: []string{"go"}})

	content := store.Content()
	if !strings.Contains(content, "# Build CLI") || !strings.Contains(content, "a cli") {
		t.Fatalf("template not applied: %q", content)
	}
	if !m.Initialized() {
		t.Fatal("migrator not initialized after sync")
	}
	if m.Dirty() {
		t.Fatal("freshly templated room reported dirty")
	}
}

func TestMigrator_ExistingContentNotClobbered(t *testing.T) {
	store := NewMemoryStore()
	room := DocumentRoom("i1")
	store.SeedRoom(room, "collaborator draft")
	m := NewMigrator(store, nil)
	m.SetRoom(room)
	m.OnRoomSynced(records.Idea{ID: "i1", Title: "Build CLI", Summary: "a cli"})

	if store.Content() != "collaborator draft" {
		t.Fatalf("existing content replaced: %q", store.Content())
	}
	if m.Dirty() {
		t.Fatal("adopted content should be the baseline")
	}
}

func TestMigrator_RoomChangeMigratesContentExactlyOnce(t *testing.T) {
	store := NewMemoryStore()
	m := NewMigrator(store, nil)
	m.SetRoom(PreSaveDocumentRoom("s1"))
	m.OnRoomSynced(records.Idea{Title: "Build CLI", Summary: "a cli"})
	store.SetContent("edited during ideation")

	// Idea persisted: room key changes mid-session.
	m.SetRoom(DocumentRoom("i42"))
	if m.Initialized() {
		t.Fatal("migrator should be uninitialized until the new room syncs")
	}
	if store.Room() != DocumentRoom("i42") {
		t.Fatalf("store not switched: %q", store.Room())
	}

	m.OnRoomSynced(records.Idea{ID: "i42", Title: "Build CLI", Summary: "a cli"})
	if store.Content() != "edited during ideation" {
		t.Fatalf("pending content not pushed: %q", store.Content())
	}

	// A later re-sync of the same room must not push again.
	store.SetContent("collaborator edit")
	m.OnRoomSynced(records.Idea{ID: "i42", Title: "Build CLI", Summary: "a cli"})
	if store.Content() != "collaborator edit" {
		t.Fatalf("re-sync re-pushed stale content: %q", store.Content())
	}
}

func TestMigrator_SameRoomRedeliveryIsNoop(t *testing.T) {
	store := NewMemoryStore()
	m := NewMigrator(store, nil)
	m.SetRoom(DocumentRoom("i1"))
	m.OnRoomSynced(records.Idea{ID: "i1", Title: "T", Summary: "S"})
	store.SetContent("local edits")

	m.SetRoom(DocumentRoom("i1"))
	if !m.Initialized() {
		t.Fatal("redelivered room key reset initialization")
	}
	if store.Content() != "local edits" {
		t.Fatalf("content disturbed: %q", store.Content())
	}
}

func TestMigrator_DirtyTracksBaseline(t *testing.T) {
	store := NewMemoryStore()
	m := NewMigrator(store, nil)
	m.SetRoom(DocumentRoom("i1"))
	m.OnRoomSynced(records.Idea{ID: "i1", Title: "T", Summary: "S"})

	store.SetContent("changed")
	if !m.Dirty() {
		t.Fatal("edit not detected")
	}
	m.RecordBaseline()
	if m.Dirty() {
		t.Fatal("baseline not moved after save")
	}
}

func TestRoomNames(t *testing.T) {
	if got := DocumentRoom("i1"); got != "idea-doc-i1" {
		t.Fatalf("unexpected document room: %q", got)
	}
	if got := PreSaveDocumentRoom("s1"); got != "idea-doc-new-s1" {
		t.Fatalf("unexpected pre-save room: %q", got)
	}
	if got := PlanRoom("i1"); got != "impl-plan-i1" {
		t.Fatalf("unexpected plan room: %q", got)
	}
}
