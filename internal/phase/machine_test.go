package phase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ideaflow/cli/internal/plan"
	"ideaflow/cli/internal/records"
)

type fakeRecords struct {
	creates int
	updates int
	moves   []string
	nextID  string
	err     error
}

func (f *fakeRecords) Create(_ context.Context, idea records.Idea) (records.Idea, error) {
	f.creates++
	if f.err != nil {
		return idea, f.err
	}
	idea.ID = f.nextID
	return idea, nil
}

func (f *fakeRecords) Update(_ context.Context, idea records.Idea) (records.Idea, error) {
	f.updates++
	return idea, f.err
}

func (f *fakeRecords) Move(_ context.Context, ideaID, status string) error {
	f.moves = append(f.moves, ideaID+":"+status)
	return f.err
}

type fakePicker struct {
	dir string
	err error
}

func (f *fakePicker) Pick(context.Context) (string, error) { return f.dir, f.err }

func seededPlan(t *testing.T, withDir bool) *plan.Synchronizer {
	t.Helper()
	ps := plan.NewSynchronizer(nil)
	raw := `{"phases":[{"id":"p1","title":"One","tasks":[{"id":"t1","title":"a"}]}]}`
	if withDir {
		raw = `{"phases":[{"id":"p1","title":"One","tasks":[{"id":"t1","title":"a"}]}],"workingDirectory":"/tmp/w"}`
	}
	if err := ps.ApplyUpdate(json.RawMessage(raw)); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return ps
}

func TestValidateForPlanning(t *testing.T) {
	cases := []struct {
		name    string
		idea    records.Idea
		blocked string
	}{
		{"empty title", records.Idea{Summary: "s"}, "title"},
		{"placeholder title", records.Idea{Title: PlaceholderTitle, Summary: "s"}, "title"},
		{"whitespace title", records.Idea{Title: "   ", Summary: "s"}, "title"},
		{"empty summary", records.Idea{Title: "Build CLI"}, "summary"},
		{"valid", records.Idea{Title: "Build CLI", Summary: "a cli"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateForPlanning(tc.idea)
			if tc.blocked == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.blocked {
				t.Fatalf("expected %s failure, got %s", tc.blocked, verr.Field)
			}
		})
	}
}

func TestAdvanceToPlanning_ValidationFailureNeverPersists(t *testing.T) {
	rec := &fakeRecords{nextID: "i1"}
	m := NewMachine(MachineOptions{Records: rec})
	_, err := m.AdvanceToPlanning(context.Background(), records.Idea{Title: PlaceholderTitle, Summary: "s"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if rec.creates != 0 || rec.updates != 0 || len(rec.moves) != 0 {
		t.Fatalf("validation failure hit the records API: %+v", rec)
	}
	if m.Current() != Ideation {
		t.Fatalf("phase moved despite failed validation: %s", m.Current())
	}
}

func TestAdvanceToPlanning_NewIdeaCreatesAndMoves(t *testing.T) {
	rec := &fakeRecords{nextID: "i42"}
	var transitions []string
	var views []View
	m := NewMachine(MachineOptions{
		Records:      rec,
		OnTransition: func(prev, next Phase) { transitions = append(transitions, string(prev)+">"+string(next)) },
		OnView:       func(v View) { views = append(views, v) },
	})

	saved, err := m.AdvanceToPlanning(context.Background(), records.Idea{Title: "Build CLI", Summary: "a cli"})
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if saved.ID != "i42" || saved.Status != records.StatusExploring {
		t.Fatalf("unexpected saved idea: %+v", saved)
	}
	if rec.creates != 1 || rec.updates != 0 {
		t.Fatalf("expected create path: %+v", rec)
	}
	if len(rec.moves) != 1 || rec.moves[0] != "i42:"+records.StatusExploring {
		t.Fatalf("move not issued: %v", rec.moves)
	}
	if m.Current() != Planning {
		t.Fatalf("expected planning phase, got %s", m.Current())
	}
	if len(transitions) != 1 || transitions[0] != "ideation>planning" {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
	if len(views) != 1 || views[0] != ViewPlan {
		t.Fatalf("view not switched to plan: %v", views)
	}
	if !m.PersistedThisSession() {
		t.Fatal("session persistence marker not set")
	}
}

func TestAdvanceToPlanning_ExistingIdeaUpdates(t *testing.T) {
	rec := &fakeRecords{}
	m := NewMachine(MachineOptions{Records: rec})
	_, err := m.AdvanceToPlanning(context.Background(), records.Idea{ID: "i1", Title: "Build CLI", Summary: "s"})
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if rec.updates != 1 || rec.creates != 0 {
		t.Fatalf("expected update path: %+v", rec)
	}
}

func TestAdvanceToPlanning_WrongPhaseRejected(t *testing.T) {
	m := NewMachine(MachineOptions{Initial: Executing, Records: &fakeRecords{}})
	if _, err := m.AdvanceToPlanning(context.Background(), records.Idea{Title: "x", Summary: "y"}); err == nil {
		t.Fatal("executing phase accepted a planning transition")
	}
}

func TestAdvanceToExecuting_EmptyPlanRejected(t *testing.T) {
	m := NewMachine(MachineOptions{Initial: Planning, Plan: plan.NewSynchronizer(nil)})
	if err := m.AdvanceToExecuting(context.Background()); !errors.Is(err, plan.ErrEmptyPlan) {
		t.Fatalf("expected ErrEmptyPlan, got %v", err)
	}
	if m.Current() != Planning {
		t.Fatalf("phase moved despite invalid plan: %s", m.Current())
	}
}

func TestAdvanceToExecuting_MissingDirectoryDefers(t *testing.T) {
	m := NewMachine(MachineOptions{Initial: Planning, Plan: seededPlan(t, false)})
	if err := m.AdvanceToExecuting(context.Background()); !errors.Is(err, ErrDirectoryPending) {
		t.Fatalf("expected ErrDirectoryPending, got %v", err)
	}
	if m.Current() != Planning {
		t.Fatal("phase moved while directory selection pending")
	}
}

func TestAdvanceToExecuting_PickerDeclineDefers(t *testing.T) {
	m := NewMachine(MachineOptions{
		Initial: Planning,
		Plan:    seededPlan(t, false),
		Picker:  &fakePicker{err: errors.New("cancelled")},
	})
	if err := m.AdvanceToExecuting(context.Background()); !errors.Is(err, ErrDirectoryPending) {
		t.Fatalf("expected ErrDirectoryPending, got %v", err)
	}
}

func TestAdvanceToExecuting_PickerSuppliesDirectory(t *testing.T) {
	ps := seededPlan(t, false)
	var started string
	var frozen plan.Plan
	m := NewMachine(MachineOptions{
		Initial:        Planning,
		Plan:           ps,
		Picker:         &fakePicker{dir: "/home/dev/proj"},
		StartExecution: func(p plan.Plan, first string) { frozen, started = p, first },
	})
	if err := m.AdvanceToExecuting(context.Background()); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if m.Current() != Executing {
		t.Fatalf("expected executing, got %s", m.Current())
	}
	if started != "p1" {
		t.Fatalf("first phase not started: %q", started)
	}
	if frozen.WorkingDirectory != "/home/dev/proj" {
		t.Fatalf("picked directory not frozen into plan: %q", frozen.WorkingDirectory)
	}
	if frozen.CreatedAt.IsZero() || frozen.UpdatedAt.IsZero() {
		t.Fatal("frozen plan timestamps not defaulted")
	}
}

func TestAdvanceToExecuting_ReadyPlanStartsFirstPhaseWithTasks(t *testing.T) {
	ps := plan.NewSynchronizer(nil)
	raw := `{"phases":[
		{"id":"p0","title":"Empty","tasks":[]},
		{"id":"p1","title":"One","tasks":[{"id":"t1","title":"a"}]}
	],"workingDirectory":"/tmp/w"}`
	if err := ps.ApplyUpdate(json.RawMessage(raw)); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	var started string
	m := NewMachine(MachineOptions{
		Initial:        Planning,
		Plan:           ps,
		StartExecution: func(_ plan.Plan, first string) { started = first },
	})
	if err := m.AdvanceToExecuting(context.Background()); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if started != "p1" {
		t.Fatalf("taskless phase chosen for start: %q", started)
	}
}

func TestDeriveInitial(t *testing.T) {
	override := Planning
	cases := []struct {
		name     string
		isNew    bool
		status   string
		override *Phase
		want     Phase
	}{
		{"new idea", true, "", nil, Ideation},
		{"draft", false, records.StatusDraft, nil, Ideation},
		{"exploring", false, records.StatusExploring, nil, Planning},
		{"executing", false, records.StatusExecuting, nil, Executing},
		{"unknown status", false, "archived", nil, Ideation},
		{"override wins", false, records.StatusExecuting, &override, Planning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveInitial(tc.isNew, tc.status, tc.override); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}
