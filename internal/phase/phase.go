package phase

import "ideaflow/cli/internal/records"

// Phase is the current workflow stage. Executing is terminal within a
// session; anything after it (archiving and the like) happens elsewhere.
type Phase string

const (
	Ideation  Phase = "ideation"
	Planning  Phase = "planning"
	Executing Phase = "executing"
)

// View is the active resource surface shown alongside the chat.
type View string

const (
	ViewDocument  View = "document"
	ViewPlan      View = "plan"
	ViewExecution View = "execution"
)

// DeriveInitial picks the starting phase. New ideas always start in
// ideation; existing ideas derive from persisted status unless the caller
// supplies an explicit override.
func DeriveInitial(isNew bool, status string, override *Phase) Phase {
	if override != nil {
		return *override
	}
	if isNew {
		return Ideation
	}
	switch status {
	case records.StatusExecuting:
		return Executing
	case records.StatusExploring:
		return Planning
	default:
		return Ideation
	}
}
