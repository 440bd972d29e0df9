package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"ideaflow/cli/internal/protocol"
)

// History assembles ordered protocol frames into the message list for one
// phase session. At most one message streams at a time; once a message is
// finalized it never streams again.
type History struct {
	mu          sync.RWMutex
	messages    []Message
	index       map[string]int
	streamingID string
	loading     bool
	errorText   string
	usage       protocol.TokenUsage
	now         func() time.Time
}

func NewHistory() *History {
	return &History{
		index: map[string]int{},
		now:   time.Now,
	}
}

// ReplaceAll applies a history snapshot, dropping local state wholesale.
func (h *History) ReplaceAll(wire []protocol.WireMessage) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = make([]Message, 0, len(wire))
	h.index = make(map[string]int, len(wire))
	h.streamingID = ""
	for _, w := range wire {
		h.index[w.ID] = len(h.messages)
		m := fromWire(w)
		if m.IsStreaming {
			h.streamingID = m.ID
		}
		h.messages = append(h.messages, m)
	}
}

// AppendUser records an outgoing user message locally and marks the agent
// busy until the reply finishes.
func (h *History) AppendUser(content string) Message {
	if h == nil {
		return Message{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m := Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: h.now(),
	}
	h.index[m.ID] = len(h.messages)
	h.messages = append(h.messages, m)
	h.loading = true
	return m
}

// ApplyChunk appends streamed text. The first chunk for an id creates the
// streaming message; chunks for an already-finalized id, including trailing
// chunks for a cancelled request, are ignored. A chunk for an id the client
// has never seen while idle starts a new message without re-marking the
// session busy, so an unsolicited assistant stream still displays.
func (h *History) ApplyChunk(messageID, text string) {
	if h == nil || messageID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if i, ok := h.index[messageID]; ok {
		if !h.messages[i].IsStreaming {
			return
		}
		h.messages[i].Content += text
		return
	}
	h.streamingID = messageID
	h.index[messageID] = len(h.messages)
	h.messages = append(h.messages, Message{
		ID:          messageID,
		Role:        RoleAssistant,
		Content:     text,
		Timestamp:   h.now(),
		IsStreaming: true,
	})
}

// Complete finalizes a streaming message. Idempotent: a second completion
// for the same id changes nothing.
func (h *History) Complete(messageID string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	i, ok := h.index[messageID]
	if !ok {
		return
	}
	h.messages[i].IsStreaming = false
	if h.streamingID == messageID {
		h.streamingID = ""
	}
	h.loading = false
}

// ApplyGreeting installs the setup greeting, but only into an empty history
// so duplicate setup invocations cannot stack greetings.
func (h *History) ApplyGreeting(messageID, text string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) > 0 {
		return
	}
	h.index[messageID] = 0
	h.messages = append(h.messages, Message{
		ID:        messageID,
		Role:      RoleAssistant,
		Content:   text,
		Timestamp: h.now(),
	})
}

// Cancel clears busy and streaming flags without waiting for the server.
// The in-flight message is finalized as-is.
func (h *History) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streamingID != "" {
		if i, ok := h.index[h.streamingID]; ok {
			h.messages[i].IsStreaming = false
		}
		h.streamingID = ""
	}
	h.loading = false
}

// Fail records an agent error and unsticks busy/streaming state.
func (h *History) Fail(errText string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorText = errText
	if h.streamingID != "" {
		if i, ok := h.index[h.streamingID]; ok {
			h.messages[i].IsStreaming = false
		}
		h.streamingID = ""
	}
	h.loading = false
}

func (h *History) Reset() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
	h.index = map[string]int{}
	h.streamingID = ""
	h.loading = false
	h.errorText = ""
	h.usage = protocol.TokenUsage{}
}

func (h *History) SetUsage(u protocol.TokenUsage) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.usage = u
	h.mu.Unlock()
}

func (h *History) Usage() protocol.TokenUsage {
	if h == nil {
		return protocol.TokenUsage{}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.usage
}

func (h *History) Messages() []Message {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Get(messageID string) (Message, bool) {
	if h == nil {
		return Message{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i, ok := h.index[messageID]; ok {
		return h.messages[i], true
	}
	return Message{}, false
}

func (h *History) StreamingID() string {
	if h == nil {
		return ""
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.streamingID
}

func (h *History) IsLoading() bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loading
}

func (h *History) ErrorText() string {
	if h == nil {
		return ""
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.errorText
}

func (h *History) DismissError() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.errorText = ""
	h.mu.Unlock()
}
