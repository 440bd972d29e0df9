package plan

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"ideaflow/cli/internal/protocol"
	"ideaflow/cli/internal/schedule"
)

// DefaultContinueDelay is the pause before auto-continuing into the next
// phase once the current one completes.
const DefaultContinueDelay = 500 * time.Millisecond

const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
)

var (
	ErrEmptyPlan       = errors.New("plan needs at least one phase with at least one task")
	ErrNoWorkDirectory = errors.New("plan has no working directory")
)

// Synchronizer owns the plan. Planning-agent plan_update frames and
// execution-side task/phase events merge only through it, and it drives
// auto-continue between phases.
type Synchronizer struct {
	logger *slog.Logger
	slot   schedule.Slot

	mu               sync.Mutex
	plan             Plan
	continueDelay    time.Duration
	pauseBetween     bool
	startPhase       func(phaseID string)
	continuePending  bool
	completedPhaseID string
	now              func() time.Time
}

func NewSynchronizer(logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Synchronizer{
		logger:        logger,
		continueDelay: DefaultContinueDelay,
		now:           time.Now,
	}
}

// SetStartPhase installs the callback that starts execution on a phase id.
func (s *Synchronizer) SetStartPhase(fn func(phaseID string)) {
	s.mu.Lock()
	s.startPhase = fn
	s.mu.Unlock()
}

func (s *Synchronizer) SetContinueDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.continueDelay = d
	s.mu.Unlock()
}

// SetPauseBetweenPhases toggles auto-continue. Turning the pause on while a
// continuation is scheduled cancels it.
func (s *Synchronizer) SetPauseBetweenPhases(pause bool) {
	s.mu.Lock()
	s.pauseBetween = pause
	if pause && s.continuePending {
		s.continuePending = false
		s.mu.Unlock()
		s.slot.Cancel()
		return
	}
	s.mu.Unlock()
}

func (s *Synchronizer) PauseBetweenPhases() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseBetween
}

// ApplyUpdate merges a plan_update frame: phases replace wholesale, scalars
// shallow-merge, timestamps refresh.
func (s *Synchronizer) ApplyUpdate(raw json.RawMessage) error {
	var u Update
	if err := json.Unmarshal(raw, &u); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan.Phases = clonePhases(u.Phases)
	if u.WorkingDirectory != nil {
		s.plan.WorkingDirectory = *u.WorkingDirectory
	}
	if u.RepositoryURL != nil {
		s.plan.RepositoryURL = *u.RepositoryURL
	}
	if u.Branch != nil {
		s.plan.Branch = *u.Branch
	}
	if u.IsClone != nil {
		s.plan.IsClone = *u.IsClone
	}
	if s.plan.CreatedAt.IsZero() {
		s.plan.CreatedAt = s.now()
	}
	s.plan.UpdatedAt = s.now()
	return nil
}

// ApplyExecEvent routes an execution event scanned out of streamed text.
func (s *Synchronizer) ApplyExecEvent(ev protocol.ExecEvent) {
	switch ev.Kind {
	case protocol.ExecTaskComplete:
		s.CompleteTask(ev.PhaseID, ev.TaskID)
	case protocol.ExecTaskUpdate:
		status := ev.Status
		if status == "" {
			status = TaskStatusCompleted
		}
		s.UpdateTask(ev.PhaseID, ev.TaskID, status)
	case protocol.ExecPhaseComplete:
		s.CompletePhase(ev.PhaseID)
	}
}

func (s *Synchronizer) CompleteTask(phaseID, taskID string) {
	s.UpdateTask(phaseID, taskID, TaskStatusCompleted)
}

// UpdateTask sets one task's state. Completed and in-progress are mutually
// exclusive by construction.
func (s *Synchronizer) UpdateTask(phaseID, taskID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pi := s.plan.phaseIndex(phaseID)
	if pi < 0 {
		s.logger.Warn("task update for unknown phase", "phase_id", phaseID, "task_id", taskID)
		return
	}
	tasks := s.plan.Phases[pi].Tasks
	for i := range tasks {
		if tasks[i].ID != taskID {
			continue
		}
		switch status {
		case TaskStatusCompleted:
			tasks[i].Completed = true
			tasks[i].InProgress = false
		case TaskStatusInProgress:
			tasks[i].Completed = false
			tasks[i].InProgress = true
		case TaskStatusPending:
			tasks[i].Completed = false
			tasks[i].InProgress = false
		default:
			s.logger.Warn("task update with unknown status", "status", status)
			return
		}
		s.plan.UpdatedAt = s.now()
		return
	}
	s.logger.Warn("task update for unknown task", "phase_id", phaseID, "task_id", taskID)
}

// CompletePhase marks every task in the phase completed, then schedules
// auto-continue into the next phase unless paused. The continuation fires
// exactly once; a pause toggle or reset before the delay elapses cancels it.
func (s *Synchronizer) CompletePhase(phaseID string) {
	s.mu.Lock()
	pi := s.plan.phaseIndex(phaseID)
	if pi < 0 {
		s.mu.Unlock()
		s.logger.Warn("phase complete for unknown phase", "phase_id", phaseID)
		return
	}
	tasks := s.plan.Phases[pi].Tasks
	for i := range tasks {
		tasks[i].Completed = true
		tasks[i].InProgress = false
	}
	s.plan.UpdatedAt = s.now()
	s.completedPhaseID = phaseID

	if s.pauseBetween {
		s.mu.Unlock()
		return
	}
	if pi+1 >= len(s.plan.Phases) {
		// Nothing left to continue into.
		s.completedPhaseID = ""
		s.mu.Unlock()
		return
	}
	if s.continuePending {
		s.mu.Unlock()
		return
	}
	s.continuePending = true
	nextID := s.plan.Phases[pi+1].ID
	delay := s.continueDelay
	s.mu.Unlock()

	s.slot.Schedule(delay, func() {
		s.fireContinue(nextID)
	})
}

func (s *Synchronizer) fireContinue(nextID string) {
	s.mu.Lock()
	if !s.continuePending || s.pauseBetween {
		s.continuePending = false
		s.mu.Unlock()
		return
	}
	s.continuePending = false
	s.completedPhaseID = ""
	start := s.startPhase
	s.mu.Unlock()

	s.logger.Info("auto-continue into next phase", "phase_id", nextID)
	if start != nil {
		start(nextID)
	}
}

// Freeze returns the canonical copy handed to the execution agent when the
// workflow enters the executing phase, with timestamps defaulted.
func (s *Synchronizer) Freeze() Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.plan.clone()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = s.now()
	}
	out.UpdatedAt = s.now()
	return out
}

// Validate gates the planning→executing transition.
func (s *Synchronizer) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hasTask := false
	for _, ph := range s.plan.Phases {
		if len(ph.Tasks) > 0 {
			hasTask = true
			break
		}
	}
	if !hasTask {
		return ErrEmptyPlan
	}
	if s.plan.WorkingDirectory == "" {
		return ErrNoWorkDirectory
	}
	return nil
}

func (s *Synchronizer) SetWorkingDirectory(dir string) {
	s.mu.Lock()
	s.plan.WorkingDirectory = dir
	s.plan.UpdatedAt = s.now()
	s.mu.Unlock()
}

func (s *Synchronizer) Plan() Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan.clone()
}

func (s *Synchronizer) CompletedPhaseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completedPhaseID
}

// Reset discards the plan at workspace close and cancels any scheduled
// continuation.
func (s *Synchronizer) Reset() {
	s.slot.Cancel()
	s.mu.Lock()
	s.plan = Plan{}
	s.continuePending = false
	s.completedPhaseID = ""
	s.mu.Unlock()
}
