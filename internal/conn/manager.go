package conn

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"ideaflow/cli/internal/protocol"
	"ideaflow/cli/internal/schedule"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateErrored    State = "errored"
	StateClosed     State = "closed"
	StateDisabled   State = "disabled"
)

// DefaultReconnectDelay is the fixed backoff between reconnect attempts.
// Retry is infinite on purpose: chat sessions stay open for hours.
const DefaultReconnectDelay = 3 * time.Second

// Identity is the set of query parameters that name a phase session. An
// empty IdeaID means the idea is unsaved and dials as the literal "new".
type Identity struct {
	IdeaID           string
	UserID           string
	UserName         string
	DocumentRoomName string
}

func (id Identity) valid() bool {
	return strings.TrimSpace(id.UserID) != ""
}

type FrameHandler func(protocol.ServerFrame)

// Manager owns the single WebSocket for one phase. It guarantees at most
// one open-or-connecting socket, reconnects forever on a fixed delay while
// the identity stays valid, and hard-resets when the identity actually
// changes (compared against the explicitly stored previous value, never
// inferred from re-invocation).
type Manager struct {
	endpoint string
	dialer   Dialer
	logger   *slog.Logger

	onFrame FrameHandler
	onOpen  func()
	onReset func()

	reconnectDelay time.Duration
	reconnect      schedule.Slot

	mu       sync.Mutex
	ctx      context.Context
	identity Identity
	hasPrev  bool
	enabled  bool
	state    State
	sock     Socket
	stopRead context.CancelFunc
	gen      uint64
	connErr  string
}

type Options struct {
	Endpoint       string
	Dialer         Dialer
	Logger         *slog.Logger
	OnFrame        FrameHandler
	OnOpen         func()
	OnReset        func()
	ReconnectDelay time.Duration
}

func NewManager(opts Options) *Manager {
	d := opts.Dialer
	if d == nil {
		d = RealDialer{}
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Manager{
		endpoint:       opts.Endpoint,
		dialer:         d,
		logger:         lg,
		onFrame:        opts.OnFrame,
		onOpen:         opts.OnOpen,
		onReset:        opts.OnReset,
		reconnectDelay: delay,
		state:          StateIdle,
	}
}

func (m *Manager) Start(ctx context.Context) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
}

// SetIdentity records the session identity. Only a real change (differing
// from the stored previous value) forces the hard reset; redelivery of the
// same value is a no-op.
func (m *Manager) SetIdentity(id Identity) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.hasPrev && m.identity == id {
		m.mu.Unlock()
		return
	}
	first := !m.hasPrev
	m.identity = id
	m.hasPrev = true
	enabled := m.enabled
	m.mu.Unlock()

	if !first {
		if m.onReset != nil {
			m.onReset()
		}
		m.teardownSocket(StateClosed)
	}
	if enabled && id.valid() {
		m.connect()
	}
}

// SetEnabled gates connection eligibility; exactly one phase manager is
// enabled at a time, switched by the phase state machine.
func (m *Manager) SetEnabled(enabled bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.enabled == enabled {
		m.mu.Unlock()
		return
	}
	m.enabled = enabled
	id := m.identity
	hasPrev := m.hasPrev
	m.mu.Unlock()

	if !enabled {
		m.reconnect.Cancel()
		m.teardownSocket(StateDisabled)
		return
	}
	if hasPrev && id.valid() {
		m.connect()
	}
}

// Close tears the manager down; no reconnect survives it.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.reconnect.Cancel()
	m.teardownSocket(StateClosed)
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
}

func (m *Manager) connect() {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return
	}
	if !m.enabled || !m.identity.valid() {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	dialURL := m.buildURL()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	go m.dial(ctx, gen, dialURL)
}

func (m *Manager) dial(ctx context.Context, gen uint64, dialURL string) {
	sock, err := m.dialer.Dial(ctx, dialURL)

	m.mu.Lock()
	if gen != m.gen || !m.enabled {
		m.mu.Unlock()
		if err == nil {
			_ = sock.Close()
		}
		return
	}
	if err != nil {
		m.state = StateErrored
		m.connErr = "connection failed: " + err.Error()
		m.mu.Unlock()
		m.logger.Warn("dial failed", "endpoint", m.endpoint, "err", err)
		m.scheduleReconnect()
		return
	}
	readCtx, stopRead := context.WithCancel(ctx)
	m.sock = sock
	m.stopRead = stopRead
	m.state = StateOpen
	m.connErr = ""
	m.mu.Unlock()

	if m.onOpen != nil {
		m.onOpen()
	}
	go m.readLoop(readCtx, gen, sock)
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, sock Socket) {
	for {
		text, err := sock.ReadText(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.onDisconnect(gen, err)
			return
		}
		frame, derr := protocol.DecodeServerFrame([]byte(text))
		if derr != nil {
			// Protocol errors are dropped; the connection stays open.
			m.logger.Warn("bad frame dropped", "endpoint", m.endpoint, "err", derr)
			continue
		}
		if m.onFrame != nil {
			m.onFrame(frame)
		}
	}
}

func (m *Manager) onDisconnect(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.sock = nil
	m.stopRead = nil
	m.state = StateClosed
	if err != nil && err != io.EOF {
		m.connErr = "connection lost: " + err.Error()
	} else {
		m.connErr = "connection lost"
	}
	m.mu.Unlock()
	m.logger.Info("socket closed", "endpoint", m.endpoint, "err", err)
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	ok := m.enabled && m.identity.valid()
	m.mu.Unlock()
	if !ok {
		return
	}
	m.reconnect.Schedule(m.reconnectDelay, m.connect)
}

func (m *Manager) teardownSocket(next State) {
	m.mu.Lock()
	m.gen++
	sock := m.sock
	stop := m.stopRead
	m.sock = nil
	m.stopRead = nil
	m.state = next
	m.connErr = ""
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
	if sock != nil {
		_ = sock.Close()
	}
}

func (m *Manager) buildURL() string {
	ideaID := strings.TrimSpace(m.identity.IdeaID)
	if ideaID == "" {
		ideaID = "new"
	}
	q := url.Values{}
	q.Set("ideaId", ideaID)
	q.Set("userId", m.identity.UserID)
	q.Set("userName", m.identity.UserName)
	if m.identity.DocumentRoomName != "" {
		q.Set("documentRoomName", m.identity.DocumentRoomName)
	}
	return m.endpoint + "?" + q.Encode()
}

// Send writes one client frame. Transport failures surface as the
// connectivity error only; the read loop notices the drop and retries.
func (m *Manager) Send(ctx context.Context, payload []byte) error {
	if m == nil {
		return ErrNotConnected
	}
	m.mu.Lock()
	sock := m.sock
	m.mu.Unlock()
	if sock == nil {
		return ErrNotConnected
	}
	return sock.WriteText(ctx, string(payload))
}

func (m *Manager) Connected() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateOpen
}

func (m *Manager) State() State {
	if m == nil {
		return StateIdle
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) ConnError() string {
	if m == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connErr
}

func (m *Manager) Identity() (Identity, bool) {
	if m == nil {
		return Identity{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity, m.hasPrev
}
