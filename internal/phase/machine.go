package phase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"ideaflow/cli/internal/plan"
	"ideaflow/cli/internal/records"
)

// PlaceholderTitle is the unedited default title; it never passes
// validation.
const PlaceholderTitle = "Untitled Idea"

// ValidationError blocks a transition synchronously. It never reaches the
// network and is the only failure the caller sees as a plain return.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ErrDirectoryPending means the planning→executing transition is waiting on
// the directory-selection side channel rather than failing outright.
var ErrDirectoryPending = errors.New("working directory selection pending")

// RecordsAPI is the slice of the persistence client the machine needs.
type RecordsAPI interface {
	Create(ctx context.Context, idea records.Idea) (records.Idea, error)
	Update(ctx context.Context, idea records.Idea) (records.Idea, error)
	Move(ctx context.Context, ideaID, status string) error
}

// DirectoryPicker is the side channel used when executing is requested
// before a working directory was chosen.
type DirectoryPicker interface {
	Pick(ctx context.Context) (string, error)
}

// Machine owns the workflow phase and governs transitions. Exactly one
// phase agent connection is eligible at a time; the transition callback
// lets the workspace flip eligibility.
type Machine struct {
	logger *slog.Logger

	mu             sync.Mutex
	current        Phase
	recordsAPI     RecordsAPI
	picker         DirectoryPicker
	planSync       *plan.Synchronizer
	onTransition   func(prev, next Phase)
	onView         func(View)
	startExecution func(frozen plan.Plan, firstPhaseID string)
	persistedHere  bool
}

type MachineOptions struct {
	Initial        Phase
	Records        RecordsAPI
	Picker         DirectoryPicker
	Plan           *plan.Synchronizer
	Logger         *slog.Logger
	OnTransition   func(prev, next Phase)
	OnView         func(View)
	StartExecution func(frozen plan.Plan, firstPhaseID string)
}

func NewMachine(opts MachineOptions) *Machine {
	lg := opts.Logger
	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	current := opts.Initial
	if current == "" {
		current = Ideation
	}
	return &Machine{
		logger:         lg,
		current:        current,
		recordsAPI:     opts.Records,
		picker:         opts.Picker,
		planSync:       opts.Plan,
		onTransition:   opts.OnTransition,
		onView:         opts.OnView,
		startExecution: opts.StartExecution,
	}
}

func (m *Machine) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// ValidateForPlanning runs the synchronous gate for ideation→planning.
// A failure never sends anything over the network.
func ValidateForPlanning(idea records.Idea) error {
	title := strings.TrimSpace(idea.Title)
	if title == "" || title == PlaceholderTitle {
		return &ValidationError{Field: "title", Reason: "a real title is required before planning"}
	}
	if strings.TrimSpace(idea.Summary) == "" {
		return &ValidationError{Field: "summary", Reason: "a summary is required before planning"}
	}
	return nil
}

// AdvanceToPlanning validates, persists the idea (create if new, update
// otherwise), moves its remote status to exploring, and switches the active
// view to the plan document.
func (m *Machine) AdvanceToPlanning(ctx context.Context, idea records.Idea) (records.Idea, error) {
	m.mu.Lock()
	if m.current != Ideation {
		cur := m.current
		m.mu.Unlock()
		return idea, fmt.Errorf("cannot advance to planning from %s", cur)
	}
	api := m.recordsAPI
	m.mu.Unlock()

	if err := ValidateForPlanning(idea); err != nil {
		return idea, err
	}

	var saved records.Idea
	var err error
	if strings.TrimSpace(idea.ID) == "" {
		saved, err = api.Create(ctx, idea)
	} else {
		saved, err = api.Update(ctx, idea)
	}
	if err != nil {
		return idea, fmt.Errorf("persist idea: %w", err)
	}
	if err := api.Move(ctx, saved.ID, records.StatusExploring); err != nil {
		return saved, fmt.Errorf("move idea to exploring: %w", err)
	}
	saved.Status = records.StatusExploring

	m.transition(Planning, ViewPlan)
	m.mu.Lock()
	m.persistedHere = true
	m.mu.Unlock()
	return saved, nil
}

// AdvanceToExecuting requires a non-empty plan and a working directory. A
// missing directory defers the transition behind the picker side channel.
// On success the plan freezes into its canonical shape and the execution
// agent starts on the first phase.
func (m *Machine) AdvanceToExecuting(ctx context.Context) error {
	m.mu.Lock()
	if m.current != Planning {
		cur := m.current
		m.mu.Unlock()
		return fmt.Errorf("cannot advance to executing from %s", cur)
	}
	ps := m.planSync
	picker := m.picker
	start := m.startExecution
	m.mu.Unlock()

	if err := ps.Validate(); err != nil {
		if !errors.Is(err, plan.ErrNoWorkDirectory) {
			return err
		}
		if picker == nil {
			return ErrDirectoryPending
		}
		dir, perr := picker.Pick(ctx)
		if perr != nil || strings.TrimSpace(dir) == "" {
			m.logger.Info("directory selection deferred", "err", perr)
			return ErrDirectoryPending
		}
		ps.SetWorkingDirectory(dir)
	}

	frozen := ps.Freeze()
	firstPhaseID := ""
	for _, ph := range frozen.Phases {
		if len(ph.Tasks) > 0 {
			firstPhaseID = ph.ID
			break
		}
	}

	m.transition(Executing, ViewExecution)
	if start != nil {
		start(frozen, firstPhaseID)
	}
	return nil
}

func (m *Machine) transition(next Phase, view View) {
	m.mu.Lock()
	prev := m.current
	m.current = next
	onT := m.onTransition
	onV := m.onView
	m.mu.Unlock()

	m.logger.Info("phase transition", "from", prev, "to", next)
	if onT != nil {
		onT(prev, next)
	}
	if onV != nil {
		onV(view)
	}
}

// PersistedThisSession reports whether the idea was saved during this
// session. Workspace close keeps collaborative content in that case.
func (m *Machine) PersistedThisSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistedHere
}

// MarkPersisted records an out-of-band save (e.g. a pre-existing idea).
func (m *Machine) MarkPersisted() {
	m.mu.Lock()
	m.persistedHere = true
	m.mu.Unlock()
}
