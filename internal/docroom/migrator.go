package docroom

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"ideaflow/cli/internal/records"
)

// Migrator hands collaboratively-edited content between rooms when the room
// key changes mid-session (unsaved idea → persisted idea). Content captured
// before the switch is pushed into the new room exactly once, when that room
// first reports synced.
type Migrator struct {
	store  Store
	logger *slog.Logger

	mu          sync.Mutex
	room        string
	mounted     bool
	pending     string
	hasPending  bool
	initialized bool
	baseline    string
}

func NewMigrator(store Store, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Migrator{store: store, logger: logger}
}

// SetRoom reacts to a room-key change. The first mount just attaches to the
// room; a mid-session change captures current content as pending and marks
// the document uninitialized until the new room syncs.
func (m *Migrator) SetRoom(room string) {
	if m == nil || strings.TrimSpace(room) == "" {
		return
	}
	m.mu.Lock()
	if m.room == room {
		m.mu.Unlock()
		return
	}
	first := !m.mounted
	if !first {
		// Capture before the store switches rooms.
		m.pending = m.store.Content()
		m.hasPending = true
		m.initialized = false
	}
	m.room = room
	m.mounted = true
	m.mu.Unlock()

	m.logger.Info("document room changed", "room", room, "migrating", !first)
	m.store.SwitchRoom(room)
}

// OnRoomSynced runs when the current room reports synced. Pending content
// is pushed once and becomes the change-detection baseline; otherwise a
// never-populated room is initialized from the idea's persisted fields. A
// room that already has content is left alone so a collaborator's
// concurrent edits are not clobbered.
func (m *Migrator) OnRoomSynced(idea records.Idea) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.hasPending {
		content := m.pending
		room := m.room
		m.pending = ""
		m.hasPending = false
		m.initialized = true
		m.baseline = content
		m.mu.Unlock()
		m.logger.Info("migrated pending content into room", "room", room, "bytes", len(content))
		m.store.SetContent(content)
		return
	}
	if m.initialized {
		m.mu.Unlock()
		return
	}
	existing := m.store.Content()
	if strings.TrimSpace(existing) != "" {
		m.initialized = true
		m.baseline = existing
		m.mu.Unlock()
		return
	}
	content := RenderTemplate(idea)
	m.initialized = true
	m.baseline = content
	m.mu.Unlock()
	m.store.SetContent(content)
}

// Dirty reports whether content has drifted from the last baseline.
func (m *Migrator) Dirty() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized && m.store.Content() != m.baseline
}

// RecordBaseline resets change detection to the current content, called
// after a successful auto-save.
func (m *Migrator) RecordBaseline() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.baseline = m.store.Content()
	m.mu.Unlock()
}

func (m *Migrator) Room() string {
	if m == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

func (m *Migrator) Initialized() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}
