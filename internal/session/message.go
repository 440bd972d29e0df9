package session

import (
	"time"

	"ideaflow/cli/internal/protocol"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID          string
	Role        string
	Content     string
	Timestamp   time.Time
	IsStreaming bool
	ToolCalls   []protocol.ToolCall
}

func fromWire(w protocol.WireMessage) Message {
	return Message{
		ID:          w.ID,
		Role:        w.Role,
		Content:     w.Content,
		Timestamp:   time.UnixMilli(w.Timestamp),
		IsStreaming: w.IsStreaming,
		ToolCalls:   w.ToolCalls,
	}
}
