package workspace

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ideaflow/cli/internal/archive"
	"ideaflow/cli/internal/conn"
	"ideaflow/cli/internal/docroom"
	"ideaflow/cli/internal/phase"
	"ideaflow/cli/internal/plan"
	"ideaflow/cli/internal/protocol"
	"ideaflow/cli/internal/records"
	"ideaflow/cli/internal/session"
)

// Workspace orchestrates one open idea: the three phase agents, the phase
// state machine, the plan synchronizer, the document room migrators and the
// context synchronizer. Exactly one agent connection is enabled at a time.
type Workspace struct {
	logger   *slog.Logger
	baseURL  string
	userID   string
	userName string

	sessionID string
	agents    map[phase.Phase]*Agent
	machine   *phase.Machine
	planSync  *plan.Synchronizer
	ctxSync   *docroom.ContextSync

	docStore    docroom.Store
	planStore   docroom.Store
	docMigrator *docroom.Migrator
	planRoom    *docroom.Migrator

	recordsAPI phase.RecordsAPI
	archive    *archive.Store

	mu           sync.Mutex
	ctx          context.Context
	view         phase.View
	agentEditing bool
	lastError    string
}

type Options struct {
	BaseURL   string
	UserID    string
	UserName  string
	Logger    *slog.Logger
	Dialer    conn.Dialer
	Records   phase.RecordsAPI
	Picker    phase.DirectoryPicker
	DocStore  docroom.Store
	PlanStore docroom.Store
	Archive   *archive.Store

	// Zero values fall back to package defaults; tests shrink them.
	ReconnectDelay time.Duration
	ContinueDelay  time.Duration
	SaveDebounce   time.Duration

	InitialPhase *phase.Phase
	Idea         records.Idea
}

func New(opts Options) *Workspace {
	lg := opts.Logger
	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	docStore := opts.DocStore
	if docStore == nil {
		docStore = docroom.NewMemoryStore()
	}
	planStore := opts.PlanStore
	if planStore == nil {
		planStore = docroom.NewMemoryStore()
	}

	w := &Workspace{
		logger:     lg,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userID:     opts.UserID,
		userName:   opts.UserName,
		sessionID:  uuid.NewString(),
		agents:     map[phase.Phase]*Agent{},
		docStore:   docStore,
		planStore:  planStore,
		recordsAPI: opts.Records,
		archive:    opts.Archive,
		view:       phase.ViewDocument,
	}

	w.planSync = plan.NewSynchronizer(lg.With("component", "plan"))
	if opts.ContinueDelay > 0 {
		w.planSync.SetContinueDelay(opts.ContinueDelay)
	}
	w.planSync.SetStartPhase(w.startExecutionPhase)

	w.docMigrator = docroom.NewMigrator(docStore, lg.With("component", "docroom"))
	w.planRoom = docroom.NewMigrator(planStore, lg.With("component", "planroom"))

	w.ctxSync = docroom.NewContextSync(lg.With("component", "ctxsync"))
	if opts.SaveDebounce > 0 {
		w.ctxSync.SetSaveDebounce(opts.SaveDebounce)
	}
	w.ctxSync.SetIdea(opts.Idea)
	w.ctxSync.SetOnContext(w.pushContext)
	w.ctxSync.SetSaver(w.autoSave, w.docMigrator.RecordBaseline)
	docStore.OnChange(w.ctxSync.OnDocumentChange)
	docStore.OnSync(w.onDocRoomSynced)
	planStore.OnSync(w.onPlanRoomSynced)

	initial := phase.DeriveInitial(opts.Idea.ID == "", opts.Idea.Status, opts.InitialPhase)
	w.machine = phase.NewMachine(phase.MachineOptions{
		Initial:        initial,
		Records:        opts.Records,
		Picker:         opts.Picker,
		Plan:           w.planSync,
		Logger:         lg.With("component", "phase"),
		OnTransition:   w.onPhaseTransition,
		OnView:         w.setView,
		StartExecution: w.onExecutionStart,
	})

	for _, kind := range []phase.Phase{phase.Ideation, phase.Planning, phase.Executing} {
		w.agents[kind] = w.newAgent(kind, opts.Dialer, opts.ReconnectDelay)
	}
	return w
}

func (w *Workspace) newAgent(kind phase.Phase, dialer conn.Dialer, reconnect time.Duration) *Agent {
	a := &Agent{
		kind:    kind,
		history: session.NewHistory(),
		queue:   session.NewQueue(),
		logger:  w.logger.With("agent", string(kind)),
	}
	a.mgr = conn.NewManager(conn.Options{
		Endpoint:       w.baseURL + "/ws/" + string(kind),
		Dialer:         dialer,
		Logger:         a.logger,
		ReconnectDelay: reconnect,
		OnFrame:        func(f protocol.ServerFrame) { w.routeFrame(a, f) },
		OnOpen:         func() { w.sendContext(a) },
		OnReset: func() {
			a.history.Reset()
			a.queue.Clear()
		},
	})
	return a
}

// Open starts the workspace: rooms attach, the initial phase's agent
// becomes eligible and dials.
func (w *Workspace) Open(ctx context.Context) {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	idea := w.ctxSync.Idea()
	if idea.ID != "" {
		w.docMigrator.SetRoom(docroom.DocumentRoom(idea.ID))
	} else {
		w.docMigrator.SetRoom(docroom.PreSaveDocumentRoom(w.sessionID))
	}

	current := w.machine.Current()
	if current != phase.Ideation && idea.ID != "" {
		w.planRoom.SetRoom(docroom.PlanRoom(idea.ID))
	}
	switch current {
	case phase.Planning:
		w.setView(phase.ViewPlan)
	case phase.Executing:
		w.setView(phase.ViewExecution)
	}

	for kind, a := range w.agents {
		a.mgr.Start(ctx)
		a.mgr.SetIdentity(w.identityFor(kind, idea.ID))
		a.mgr.SetEnabled(kind == current)
	}
}

// Close tears the workspace down. Collaborative content is discarded only
// if the idea was never persisted during this session.
func (w *Workspace) Close() {
	w.ctxSync.CancelPendingSave()
	w.planSync.Reset()
	for _, a := range w.agents {
		a.mgr.Close()
	}
	idea := w.ctxSync.Idea()
	if idea.ID == "" && !w.machine.PersistedThisSession() {
		w.docStore.SetContent("")
	}
}

func (w *Workspace) identityFor(kind phase.Phase, ideaID string) conn.Identity {
	id := conn.Identity{
		IdeaID:   ideaID,
		UserID:   w.userID,
		UserName: w.userName,
	}
	switch kind {
	case phase.Ideation:
		id.DocumentRoomName = w.docMigrator.Room()
	case phase.Planning:
		id.DocumentRoomName = w.planRoom.Room()
	}
	return id
}

// ActiveAgent returns the agent for the current phase.
func (w *Workspace) ActiveAgent() *Agent {
	return w.agents[w.machine.Current()]
}

func (w *Workspace) Agent(kind phase.Phase) *Agent {
	return w.agents[kind]
}

func (w *Workspace) CurrentPhase() phase.Phase {
	return w.machine.Current()
}

func (w *Workspace) Plan() plan.Plan {
	return w.planSync.Plan()
}

func (w *Workspace) PlanSync() *plan.Synchronizer {
	return w.planSync
}

func (w *Workspace) SetPauseBetweenPhases(pause bool) {
	w.planSync.SetPauseBetweenPhases(pause)
}

func (w *Workspace) View() phase.View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

func (w *Workspace) AgentEditing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.agentEditing
}

// DocumentSynced reports whether the collaborative document room has caught
// up with the server since the last room switch.
func (w *Workspace) DocumentSynced() bool {
	return w.docStore.Synced()
}

// Coauthors lists collaborators currently present in the document room.
func (w *Workspace) Coauthors() []docroom.Coauthor {
	return w.docStore.Coauthors()
}

func (w *Workspace) Idea() records.Idea {
	return w.ctxSync.Idea()
}

// SetTitle applies a locally edited title and recomputes the agent context.
func (w *Workspace) SetTitle(title string) {
	idea := w.ctxSync.Idea()
	idea.Title = strings.TrimSpace(title)
	w.ctxSync.SetIdea(idea)
}

func (w *Workspace) SetSummary(summary string) {
	idea := w.ctxSync.Idea()
	idea.Summary = strings.TrimSpace(summary)
	w.ctxSync.SetIdea(idea)
}

// LastError is the dismissible persistence/agent error banner text.
func (w *Workspace) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

func (w *Workspace) DismissLastError() {
	w.mu.Lock()
	w.lastError = ""
	w.mu.Unlock()
}

// SendMessage submits user input to the active agent. While the agent is
// busy the input queues instead; the whole batch flushes as one message on
// the next idle transition.
func (w *Workspace) SendMessage(ctx context.Context, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	a := w.ActiveAgent()
	if a.IsLoading() {
		a.queue.Push(content)
		return
	}
	w.deliver(ctx, a, content)
}

func (w *Workspace) deliver(ctx context.Context, a *Agent, content string) {
	roomName := ""
	switch a.kind {
	case phase.Ideation:
		roomName = w.docMigrator.Room()
	case phase.Planning:
		roomName = w.planRoom.Room()
	}
	if err := a.send(ctx, content, w.ctxSync.Context(), roomName); err == nil {
		w.archiveMessage(a.kind, session.RoleUser, content)
	}
}

// Cancel aborts the active agent's in-flight request client-optimistically.
// Busy flips to idle here too, so queued input flushes like any other idle
// transition.
func (w *Workspace) Cancel(ctx context.Context) {
	a := w.ActiveAgent()
	a.CancelRequest(ctx)
	w.flushQueue(a)
}

// AdvanceToPlanning runs the ideation→planning transition with the current
// idea fields. Validation failures return synchronously; persistence
// failures surface on the error banner.
func (w *Workspace) AdvanceToPlanning(ctx context.Context) error {
	idea := w.ctxSync.Idea()
	idea.Description = w.docStore.Content()
	saved, err := w.machine.AdvanceToPlanning(ctx, idea)
	if err != nil {
		var verr *phase.ValidationError
		if !asValidationError(err, &verr) {
			w.setLastError(err.Error())
		}
		return err
	}

	w.ctxSync.SetIdea(saved)
	// The room key now derives from the persisted id; the migrator captures
	// pre-save content and pushes it once the new room syncs.
	w.docMigrator.SetRoom(docroom.DocumentRoom(saved.ID))
	w.planRoom.SetRoom(docroom.PlanRoom(saved.ID))
	for kind, a := range w.agents {
		a.mgr.SetIdentity(w.identityFor(kind, saved.ID))
	}
	return nil
}

// AdvanceToExecuting runs the planning→executing transition; a missing
// working directory defers it behind the directory picker.
func (w *Workspace) AdvanceToExecuting(ctx context.Context) error {
	err := w.machine.AdvanceToExecuting(ctx)
	if err != nil && err != phase.ErrDirectoryPending {
		w.setLastError(err.Error())
	}
	return err
}

func (w *Workspace) onPhaseTransition(prev, next phase.Phase) {
	for kind, a := range w.agents {
		a.mgr.SetEnabled(kind == next)
	}
}

func (w *Workspace) onExecutionStart(frozen plan.Plan, firstPhaseID string) {
	if firstPhaseID == "" {
		return
	}
	w.startExecutionPhase(firstPhaseID)
}

// startExecutionPhase asks the execution agent to begin a plan phase. Also
// the auto-continue entry point.
func (w *Workspace) startExecutionPhase(phaseID string) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	a := w.agents[phase.Executing]
	w.logger.Info("starting execution phase", "phase_id", phaseID)
	w.deliver(ctx, a, "Start phase "+phaseID)
}

func (w *Workspace) setView(v phase.View) {
	w.mu.Lock()
	w.view = v
	w.mu.Unlock()
}

func (w *Workspace) setLastError(text string) {
	w.mu.Lock()
	w.lastError = text
	w.mu.Unlock()
}

// pushContext resends the idea context to the active agent whenever the
// document or persisted fields change.
func (w *Workspace) pushContext(idea protocol.IdeaContext) {
	a := w.ActiveAgent()
	if a == nil || !a.IsConnected() {
		return
	}
	w.sendContext(a)
}

func (w *Workspace) sendContext(a *Agent) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	roomName := ""
	switch a.kind {
	case phase.Ideation:
		roomName = w.docMigrator.Room()
	case phase.Planning:
		roomName = w.planRoom.Room()
	}
	if err := a.mgr.Send(ctx, protocol.EncodeIdeaUpdate(w.ctxSync.Context(), roomName)); err != nil {
		w.logger.Warn("send idea_update failed", "agent", a.kind, "err", err)
	}
}

func (w *Workspace) onDocRoomSynced(room string) {
	w.docMigrator.OnRoomSynced(w.ctxSync.Idea())
	w.signalRoomReady(w.ActiveAgent())
}

func (w *Workspace) onPlanRoomSynced(room string) {
	w.planRoom.OnRoomSynced(w.ctxSync.Idea())
	w.signalRoomReady(w.agents[phase.Planning])
}

func (w *Workspace) signalRoomReady(a *Agent) {
	if a == nil || !a.IsConnected() {
		return
	}
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.mgr.Send(ctx, protocol.EncodeYjsReady()); err != nil {
		w.logger.Warn("send yjs_ready failed", "agent", a.kind, "err", err)
	}
}

// autoSave is the debounced best-effort persistence path; errors log only.
func (w *Workspace) autoSave(ctx context.Context, idea records.Idea) error {
	_, err := w.recordsAPI.Update(ctx, idea)
	return err
}

func (w *Workspace) archiveMessage(kind phase.Phase, role, content string) {
	if w.archive == nil {
		return
	}
	idea := w.ctxSync.Idea()
	if err := w.archive.SaveMessage(archive.MessageRecord{
		SessionID: w.sessionID,
		IdeaID:    idea.ID,
		Phase:     string(kind),
		Role:      role,
		Content:   content,
	}); err != nil {
		w.logger.Warn("archive message failed", "err", err)
	}
}
