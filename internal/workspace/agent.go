package workspace

import (
	"context"
	"log/slog"

	"ideaflow/cli/internal/conn"
	"ideaflow/cli/internal/phase"
	"ideaflow/cli/internal/protocol"
	"ideaflow/cli/internal/session"
)

// Agent is one phase's chat surface: a connection manager, an assembled
// message history and an input queue behind one common capability set. The
// three phases differ only in endpoint and in how their frames are routed.
type Agent struct {
	kind    phase.Phase
	mgr     *conn.Manager
	history *session.History
	queue   *session.Queue
	scanner protocol.TagScanner
	logger  *slog.Logger
}

func (a *Agent) Kind() phase.Phase {
	return a.kind
}

func (a *Agent) Messages() []session.Message {
	return a.history.Messages()
}

func (a *Agent) IsConnected() bool {
	return a.mgr.Connected()
}

func (a *Agent) IsLoading() bool {
	return a.history.IsLoading()
}

func (a *Agent) ConnError() string {
	return a.mgr.ConnError()
}

func (a *Agent) ErrorText() string {
	return a.history.ErrorText()
}

func (a *Agent) DismissError() {
	a.history.DismissError()
}

func (a *Agent) Usage() protocol.TokenUsage {
	return a.history.Usage()
}

func (a *Agent) QueuedCount() int {
	return a.queue.Len()
}

// send writes a user message frame carrying the current idea context.
func (a *Agent) send(ctx context.Context, content string, idea protocol.IdeaContext, roomName string) error {
	a.history.AppendUser(content)
	if err := a.mgr.Send(ctx, protocol.EncodeUserMessage(content, idea, roomName)); err != nil {
		a.logger.Warn("send message failed", "agent", a.kind, "err", err)
		return err
	}
	return nil
}

// CancelRequest is client-optimistic: the cancel directive goes out and
// busy/streaming flags clear immediately without waiting for the server.
// Trailing chunks for the cancelled request are dropped by the assembler.
func (a *Agent) CancelRequest(ctx context.Context) {
	if err := a.mgr.Send(ctx, protocol.EncodeCancel()); err != nil {
		a.logger.Warn("send cancel failed", "agent", a.kind, "err", err)
	}
	a.history.Cancel()
}

func (a *Agent) ClearHistory(ctx context.Context) {
	if err := a.mgr.Send(ctx, protocol.EncodeClearHistory()); err != nil {
		a.logger.Warn("send clear_history failed", "agent", a.kind, "err", err)
	}
	a.history.Reset()
	a.queue.Clear()
}
