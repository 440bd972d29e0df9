package docroom

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"ideaflow/cli/internal/protocol"
	"ideaflow/cli/internal/records"
	"ideaflow/cli/internal/schedule"
)

// DefaultSaveDebounce is the auto-save debounce window. Single slot: only
// one save target is ever in flight per session, and the last edit wins.
const DefaultSaveDebounce = 2 * time.Second

// ContextSync keeps the agent-side idea context aligned with locally edited
// document content and persisted idea fields, and drives best-effort
// auto-save of edited content.
type ContextSync struct {
	logger   *slog.Logger
	saveSlot schedule.Slot

	mu         sync.Mutex
	saveDelay  time.Duration
	idea       records.Idea
	docContent string
	onContext  func(protocol.IdeaContext)
	save       func(context.Context, records.Idea) error
	saved      func()
}

func NewContextSync(logger *slog.Logger) *ContextSync {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ContextSync{logger: logger, saveDelay: DefaultSaveDebounce}
}

func (c *ContextSync) SetSaveDebounce(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.saveDelay = d
	c.mu.Unlock()
}

// SetOnContext installs the push callback to the active agent connection.
func (c *ContextSync) SetOnContext(fn func(protocol.IdeaContext)) {
	c.mu.Lock()
	c.onContext = fn
	c.mu.Unlock()
}

// SetSaver installs the persistence call (records update) plus a hook run
// after a successful save, used to move the change baseline.
func (c *ContextSync) SetSaver(save func(context.Context, records.Idea) error, saved func()) {
	c.mu.Lock()
	c.save = save
	c.saved = saved
	c.mu.Unlock()
}

// SetIdea applies persisted field changes and recomputes the context.
func (c *ContextSync) SetIdea(idea records.Idea) {
	c.mu.Lock()
	c.idea = idea
	c.mu.Unlock()
	c.push()
}

// OnDocumentChange applies edited document content, recomputes the context
// and schedules a debounced best-effort save.
func (c *ContextSync) OnDocumentChange(content string) {
	c.mu.Lock()
	c.docContent = content
	persisted := c.idea.ID != ""
	delay := c.saveDelay
	c.mu.Unlock()
	c.push()
	if persisted {
		c.saveSlot.Schedule(delay, c.flushSave)
	}
}

// Context derives the agent view: persisted fields plus current document
// content as the description.
func (c *ContextSync) Context() protocol.IdeaContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.IdeaContext{
		ID:          c.idea.ID,
		Title:       c.idea.Title,
		Summary:     c.idea.Summary,
		Description: c.docContent,
		Tags:        c.idea.Tags,
		Status:      c.idea.Status,
	}
}

func (c *ContextSync) Idea() records.Idea {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idea
}

// CancelPendingSave drops a scheduled auto-save, used at workspace close.
func (c *ContextSync) CancelPendingSave() {
	c.saveSlot.Cancel()
}

func (c *ContextSync) push() {
	c.mu.Lock()
	fn := c.onContext
	c.mu.Unlock()
	if fn != nil {
		fn(c.Context())
	}
}

// flushSave persists the content-bearing idea. Auto-save is best effort:
// failures are logged, never surfaced.
func (c *ContextSync) flushSave() {
	c.mu.Lock()
	save := c.save
	saved := c.saved
	idea := c.idea
	idea.Description = c.docContent
	c.mu.Unlock()
	if save == nil || idea.ID == "" {
		return
	}
	if err := save(context.Background(), idea); err != nil {
		c.logger.Warn("auto-save failed", "idea_id", idea.ID, "err", err)
		return
	}
	if saved != nil {
		saved()
	}
}
