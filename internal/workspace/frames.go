package workspace

import (
	"context"
	"errors"

	"ideaflow/cli/internal/archive"
	"ideaflow/cli/internal/phase"
	"ideaflow/cli/internal/protocol"
	"ideaflow/cli/internal/session"
)

// routeFrame dispatches one server frame for one agent. Frames arrive in
// socket order; phase-specific frames on the wrong phase are dropped.
func (w *Workspace) routeFrame(a *Agent, f protocol.ServerFrame) {
	switch f.Type {
	case protocol.TypeHistory:
		a.history.ReplaceAll(f.Messages)

	case protocol.TypeTextChunk:
		if a.kind == phase.Executing {
			display, events := a.scanner.Feed(f.Text)
			for _, ev := range events {
				w.planSync.ApplyExecEvent(ev)
			}
			if display != "" {
				a.history.ApplyChunk(f.MessageID, display)
			}
			return
		}
		a.history.ApplyChunk(f.MessageID, f.Text)

	case protocol.TypeMessageComplete:
		if a.kind == phase.Executing {
			if tail := a.scanner.Flush(); tail != "" {
				a.history.ApplyChunk(f.MessageID, tail)
			}
		}
		a.history.Complete(f.MessageID)
		if m, ok := a.history.Get(f.MessageID); ok && m.Role == session.RoleAssistant {
			w.archiveMessage(a.kind, m.Role, m.Content)
		}
		w.flushQueue(a)

	case protocol.TypeGreeting:
		a.history.ApplyGreeting(f.MessageID, f.Text)

	case protocol.TypeError:
		a.history.Fail(f.Error)
		w.flushQueue(a)

	case protocol.TypeTokenUsage:
		if f.Usage != nil {
			a.history.SetUsage(*f.Usage)
			w.archiveUsage(a.kind, *f.Usage)
		}

	case protocol.TypePlanUpdate:
		if a.kind != phase.Planning {
			w.logger.Warn("plan_update on non-planning agent dropped", "agent", a.kind)
			return
		}
		if err := w.planSync.ApplyUpdate(f.Plan); err != nil {
			w.logger.Warn("bad plan_update dropped", "err", err)
		}

	case protocol.TypeDocumentEditStart:
		if a.kind == phase.Ideation {
			w.mu.Lock()
			w.agentEditing = true
			w.mu.Unlock()
		}

	case protocol.TypeDocumentEditEnd:
		if a.kind == phase.Ideation {
			w.mu.Lock()
			w.agentEditing = false
			w.mu.Unlock()
		}
	}
}

// flushQueue drains input buffered during the reply, as one combined
// newline-joined message. The queue's in-flight guard keeps a redundant
// idle transition from double-sending.
func (w *Workspace) flushQueue(a *Agent) {
	combined, ok := a.queue.BeginFlush()
	if !ok {
		return
	}
	defer a.queue.EndFlush()

	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	w.deliver(ctx, a, combined)
}

func (w *Workspace) archiveUsage(kind phase.Phase, u protocol.TokenUsage) {
	if w.archive == nil {
		return
	}
	idea := w.ctxSync.Idea()
	if err := w.archive.SaveUsage(archive.UsageRecord{
		SessionID:    w.sessionID,
		IdeaID:       idea.ID,
		Phase:        string(kind),
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.TotalTokens,
	}); err != nil {
		w.logger.Warn("archive usage failed", "err", err)
	}
}

func asValidationError(err error, target **phase.ValidationError) bool {
	return errors.As(err, target)
}
