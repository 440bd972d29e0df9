package plan

import "time"

type Task struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Completed  bool   `json:"completed"`
	InProgress bool   `json:"inProgress"`
}

type Phase struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Tasks []Task `json:"tasks"`
}

type Plan struct {
	Phases           []Phase   `json:"phases"`
	WorkingDirectory string    `json:"workingDirectory"`
	RepositoryURL    string    `json:"repositoryUrl,omitempty"`
	Branch           string    `json:"branch,omitempty"`
	IsClone          bool      `json:"isClone,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Update is the wire shape of a plan_update frame. Phases always replace
// the local array wholesale; scalar fields shallow-merge when present, so
// an update that wants to change task state must resend every phase.
type Update struct {
	Phases           []Phase `json:"phases"`
	WorkingDirectory *string `json:"workingDirectory,omitempty"`
	RepositoryURL    *string `json:"repositoryUrl,omitempty"`
	Branch           *string `json:"branch,omitempty"`
	IsClone          *bool   `json:"isClone,omitempty"`
}

func (p Plan) clone() Plan {
	out := p
	out.Phases = clonePhases(p.Phases)
	return out
}

func clonePhases(phases []Phase) []Phase {
	out := make([]Phase, len(phases))
	for i, ph := range phases {
		out[i] = ph
		out[i].Tasks = make([]Task, len(ph.Tasks))
		copy(out[i].Tasks, ph.Tasks)
	}
	return out
}

func (p Plan) phaseIndex(phaseID string) int {
	for i := range p.Phases {
		if p.Phases[i].ID == phaseID {
			return i
		}
	}
	return -1
}

// Progress reports completed and total task counts for one phase.
func (p Plan) Progress(phaseID string) (completed, total int) {
	i := p.phaseIndex(phaseID)
	if i < 0 {
		return 0, 0
	}
	for _, t := range p.Phases[i].Tasks {
		total++
		if t.Completed {
			completed++
		}
	}
	return completed, total
}
