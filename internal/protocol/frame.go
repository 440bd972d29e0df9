package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

// Server frame types, one JSON object per WebSocket text message.
const (
	TypeHistory           = "history"
	TypeTextChunk         = "text_chunk"
	TypeMessageComplete   = "message_complete"
	TypeGreeting          = "greeting"
	TypeError             = "error"
	TypeTokenUsage        = "token_usage"
	TypePlanUpdate        = "plan_update"
	TypeDocumentEditStart = "document_edit_start"
	TypeDocumentEditEnd   = "document_edit_end"
)

// Client frame types.
const (
	TypeIdeaUpdate   = "idea_update"
	TypeMessage      = "message"
	TypeClearHistory = "clear_history"
	TypeCancel       = "cancel"
	TypeYjsReady     = "yjs_ready"
)

// IdeaContext is the agent-side view of the idea, resent whenever the
// document or persisted fields change.
type IdeaContext struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Status      string   `json:"status,omitempty"`
}

type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// WireMessage is a chat message as carried in history snapshots.
type WireMessage struct {
	ID          string     `json:"id"`
	Role        string     `json:"role"`
	Content     string     `json:"content"`
	Timestamp   int64      `json:"timestamp"`
	IsStreaming bool       `json:"isStreaming,omitempty"`
	ToolCalls   []ToolCall `json:"toolCalls,omitempty"`
}

// ServerFrame is the union of all server-to-client frames; Type selects
// which of the optional fields are meaningful.
type ServerFrame struct {
	Type      string          `json:"type"`
	Messages  []WireMessage   `json:"messages,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	Text      string          `json:"text,omitempty"`
	Error     string          `json:"error,omitempty"`
	Usage     *TokenUsage     `json:"usage,omitempty"`
	Plan      json.RawMessage `json:"plan,omitempty"`
}

var ErrUnknownFrame = errors.New("unknown frame type")

func DecodeServerFrame(raw []byte) (ServerFrame, error) {
	var f ServerFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return ServerFrame{}, err
	}
	if strings.TrimSpace(f.Type) == "" {
		return ServerFrame{}, errors.New("frame missing type")
	}
	switch f.Type {
	case TypeHistory, TypeTextChunk, TypeMessageComplete, TypeGreeting,
		TypeError, TypeTokenUsage, TypePlanUpdate,
		TypeDocumentEditStart, TypeDocumentEditEnd:
		return f, nil
	}
	return f, ErrUnknownFrame
}

type clientFrame struct {
	Type             string       `json:"type"`
	Content          string       `json:"content,omitempty"`
	Idea             *IdeaContext `json:"idea,omitempty"`
	DocumentRoomName string       `json:"documentRoomName,omitempty"`
}

func EncodeIdeaUpdate(idea IdeaContext, documentRoomName string) []byte {
	return mustEncode(clientFrame{
		Type:             TypeIdeaUpdate,
		Idea:             &idea,
		DocumentRoomName: documentRoomName,
	})
}

func EncodeUserMessage(content string, idea IdeaContext, documentRoomName string) []byte {
	return mustEncode(clientFrame{
		Type:             TypeMessage,
		Content:          content,
		Idea:             &idea,
		DocumentRoomName: documentRoomName,
	})
}

func EncodeClearHistory() []byte {
	return mustEncode(clientFrame{Type: TypeClearHistory})
}

func EncodeCancel() []byte {
	return mustEncode(clientFrame{Type: TypeCancel})
}

func EncodeYjsReady() []byte {
	return mustEncode(clientFrame{Type: TypeYjsReady})
}

func mustEncode(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
