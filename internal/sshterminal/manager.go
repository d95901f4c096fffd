package sshterminal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gluk-w/webssh/internal/ptyproc"
)

// State represents the lifecycle state of a process handle.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateExiting  State = "exiting"
	StateClosed   State = "closed"
)

// CloseReason records which trigger ended a terminal.
type CloseReason string

const (
	ReasonClient     CloseReason = "client"
	ReasonDisconnect CloseReason = "disconnect"
	ReasonExit       CloseReason = "exit"
	ReasonTimeout    CloseReason = "timeout"
	ReasonLogout     CloseReason = "logout"
	ReasonShutdown   CloseReason = "shutdown"
)

const (
	// DefaultProcessTimeout is the absolute lifetime of a terminal process.
	DefaultProcessTimeout = 30 * time.Minute
	// DefaultSweepInterval is how often timed-out handles are looked for.
	DefaultSweepInterval = 5 * time.Minute

	// exitSlack is added to the kill grace while waiting for a killed process
	// to be reaped.
	exitSlack = 2 * time.Second
)

var (
	ErrAlreadyExists = errors.New("terminal already exists for connection")
	ErrNotFound      = errors.New("terminal not found")
	ErrNotRunning    = errors.New("terminal not running")
	ErrSpawn         = errors.New("failed to start terminal")
	ErrWrite         = errors.New("terminal write failed")
	ErrResize        = errors.New("terminal resize failed")
	ErrShuttingDown  = errors.New("process manager is shutting down")
)

// Relay is the outbound side of one connection. Send blocks while the
// connection's queue is full and returns false once the connection is gone.
type Relay interface {
	Send(f Frame) bool
}

// HandleInfo is a point-in-time copy of a handle's metadata.
type HandleInfo struct {
	ConnectionID string       `json:"connectionId"`
	UserID       string       `json:"userId"`
	Backend      ptyproc.Kind `json:"backend"`
	State        State        `json:"state"`
	Pid          int          `json:"pid,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	TimeoutAt    time.Time    `json:"timeoutAt"`
}

// handle binds a connection id to its native process.
type handle struct {
	connID    string
	userID    string
	createdAt time.Time
	timeoutAt time.Time
	relay     Relay

	mu    sync.Mutex
	state State
	proc  ptyproc.Process

	// started is closed once Start has finished with the handle, successfully
	// or not. Process callbacks and closers wait on it.
	started chan struct{}
	// closed is closed when the handle reaches StateClosed.
	closed chan struct{}
}

func (h *handle) info(kind ptyproc.Kind) HandleInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	hi := HandleInfo{
		ConnectionID: h.connID,
		UserID:       h.userID,
		Backend:      kind,
		State:        h.state,
		CreatedAt:    h.createdAt,
		TimeoutAt:    h.timeoutAt,
	}
	if h.proc != nil {
		hi.Pid = h.proc.Pid()
	}
	return hi
}

// ManagerConfig configures a ProcessManager.
type ManagerConfig struct {
	Backend ptyproc.Backend
	// Command is the process template; Cols and Rows are set per Start.
	Command       ptyproc.SpawnOptions
	Timeout       time.Duration
	KillGrace     time.Duration
	SweepInterval time.Duration

	// OnStart runs after a terminal reaches StateRunning.
	OnStart func(HandleInfo)
	// OnClose runs once per terminal after it reaches StateClosed.
	OnClose func(HandleInfo, CloseReason, ptyproc.ExitInfo)
}

// ProcessManager owns every live terminal process. The registry lock is never
// held across process I/O or relay sends.
type ProcessManager struct {
	mu           sync.Mutex
	handles      map[string]*handle // connection ID → handle
	shuttingDown bool

	backend   ptyproc.Backend
	command   ptyproc.SpawnOptions
	timeout   time.Duration
	killGrace time.Duration
	onStart   func(HandleInfo)
	onClose   func(HandleInfo, CloseReason, ptyproc.ExitInfo)
	log       zerolog.Logger

	nowFn func() time.Time // injectable clock for testing

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewProcessManager creates a manager and starts its timeout sweep. Call Stop
// (or ShutdownAll followed by Stop) to release it.
func NewProcessManager(cfg ManagerConfig, logger zerolog.Logger) *ProcessManager {
	if cfg.Backend == nil {
		cfg.Backend = ptyproc.NewPipeBackend()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProcessTimeout
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = ptyproc.DefaultKillGrace
	}
	m := &ProcessManager{
		handles:   make(map[string]*handle),
		backend:   cfg.Backend,
		command:   cfg.Command,
		timeout:   cfg.Timeout,
		killGrace: cfg.KillGrace,
		onStart:   cfg.OnStart,
		onClose:   cfg.OnClose,
		log:       logger.With().Str("component", "terminals").Logger(),
		nowFn:     time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go m.sweepLoop(cfg.SweepInterval)
	} else {
		close(m.done)
	}
	return m
}

// SetNowFunc sets the clock used for timeouts (tests).
func (m *ProcessManager) SetNowFunc(fn func() time.Time) {
	m.mu.Lock()
	m.nowFn = fn
	m.mu.Unlock()
}

func (m *ProcessManager) now() time.Time {
	m.mu.Lock()
	fn := m.nowFn
	m.mu.Unlock()
	return fn()
}

// Backend returns the backend selected at startup.
func (m *ProcessManager) Backend() ptyproc.Backend {
	return m.backend
}

// Start spawns the process for connID and sends a ready frame on relay.
// A live handle for connID makes it fail with ErrAlreadyExists; a spawn
// failure is wrapped in ErrSpawn and leaves nothing registered.
func (m *ProcessManager) Start(connID, userID string, cols, rows int, relay Relay) (HandleInfo, error) {
	c, r := ClampSize(cols, rows)
	now := m.now()

	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return HandleInfo{}, ErrShuttingDown
	}
	if _, ok := m.handles[connID]; ok {
		m.mu.Unlock()
		return HandleInfo{}, ErrAlreadyExists
	}
	h := &handle{
		connID:    connID,
		userID:    userID,
		createdAt: now,
		timeoutAt: now.Add(m.timeout),
		relay:     relay,
		state:     StateStarting,
		started:   make(chan struct{}),
		closed:    make(chan struct{}),
	}
	m.handles[connID] = h
	m.mu.Unlock()

	opts := m.command
	opts.Cols, opts.Rows = c, r
	proc, err := m.backend.Spawn(opts, ptyproc.Handlers{
		OnData: func(p []byte) {
			<-h.started
			h.relay.Send(Frame{Type: FrameOutput, Data: p})
		},
		OnExit: func(info ptyproc.ExitInfo) {
			<-h.started
			m.closeHandle(h, ReasonExit, &info)
		},
	})
	if err != nil {
		m.remove(h)
		h.mu.Lock()
		won := h.state == StateStarting
		if won {
			h.state = StateClosed
		}
		h.mu.Unlock()
		close(h.started)
		if won {
			close(h.closed)
		}
		m.log.Error().Err(err).Str("conn_id", connID).Msg("spawn failed")
		return HandleInfo{}, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	h.mu.Lock()
	h.proc = proc
	running := h.state == StateStarting
	if running {
		h.state = StateRunning
	}
	h.mu.Unlock()

	info := h.info(m.backend.Kind())
	if running {
		resize := m.backend.SupportsResize()
		relay.Send(Frame{
			Type:         FrameReady,
			ConnectionID: connID,
			Backend:      m.backend.Kind(),
			Resize:       &resize,
		})
	}
	close(h.started)

	if !running {
		// A concurrent close claimed the handle while spawning; it kills proc.
		return HandleInfo{}, fmt.Errorf("%w: closed while starting", ErrNotRunning)
	}

	m.log.Info().
		Str("conn_id", connID).
		Str("user_id", userID).
		Int("pid", info.Pid).
		Str("backend", string(info.Backend)).
		Msgf("terminal started (%dx%d)", c, r)
	if m.onStart != nil {
		m.onStart(info)
	}
	return info, nil
}

// Input forwards data to the process. It returns ErrNotFound or ErrNotRunning
// when there is nothing to write to, and ErrWrite if the write itself failed.
func (m *ProcessManager) Input(connID string, data []byte) error {
	h := m.lookup(connID)
	if h == nil {
		return ErrNotFound
	}
	h.mu.Lock()
	state, proc := h.state, h.proc
	h.mu.Unlock()
	if state != StateRunning {
		return ErrNotRunning
	}
	if _, err := proc.Write(data); err != nil {
		m.log.Debug().Err(err).Str("conn_id", connID).Msg("write raced with process exit")
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Resize changes the window size. It returns ptyproc.ErrResizeUnsupported
// on backends without window-size support.
func (m *ProcessManager) Resize(connID string, cols, rows int) error {
	if !m.backend.SupportsResize() {
		return ptyproc.ErrResizeUnsupported
	}
	h := m.lookup(connID)
	if h == nil {
		return ErrNotFound
	}
	h.mu.Lock()
	state, proc := h.state, h.proc
	h.mu.Unlock()
	if state != StateRunning {
		return ErrNotRunning
	}
	c, r := ClampSize(cols, rows)
	if err := proc.Resize(c, r); err != nil {
		if errors.Is(err, ptyproc.ErrResizeUnsupported) {
			return err
		}
		m.log.Debug().Err(err).Str("conn_id", connID).Msg("resize raced with process exit")
		return fmt.Errorf("%w: %v", ErrResize, err)
	}
	return nil
}

// Close terminates the terminal for connID. It reports whether this call
// performed the close; a second call for the same terminal returns false.
func (m *ProcessManager) Close(connID string, reason CloseReason) bool {
	h := m.lookup(connID)
	if h == nil {
		return false
	}
	return m.closeHandle(h, reason, nil)
}

// SweepTimedOut closes every handle whose absolute timeout has passed.
func (m *ProcessManager) SweepTimedOut() int {
	now := m.now()
	m.mu.Lock()
	var expired []*handle
	for _, h := range m.handles {
		if now.After(h.timeoutAt) {
			expired = append(expired, h)
		}
	}
	m.mu.Unlock()

	closed := 0
	for _, h := range expired {
		if m.closeHandle(h, ReasonTimeout, nil) {
			closed++
		}
	}
	if closed > 0 {
		m.log.Info().Int("closed", closed).Msg("swept timed-out terminals")
	}
	return closed
}

// KillAllForUser closes every terminal owned by userID.
func (m *ProcessManager) KillAllForUser(userID string) int {
	m.mu.Lock()
	var owned []*handle
	for _, h := range m.handles {
		if h.userID == userID {
			owned = append(owned, h)
		}
	}
	m.mu.Unlock()

	closed := 0
	for _, h := range owned {
		if m.closeHandle(h, ReasonLogout, nil) {
			closed++
		}
	}
	return closed
}

// ShutdownAll refuses new terminals, closes every live one in parallel and
// waits until each has been reaped or ctx is done.
func (m *ProcessManager) ShutdownAll(ctx context.Context) error {
	m.mu.Lock()
	m.shuttingDown = true
	all := make([]*handle, 0, len(m.handles))
	for _, h := range m.handles {
		all = append(all, h)
	}
	m.mu.Unlock()

	m.log.Info().Int("count", len(all)).Msg("shutting down terminals")
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range all {
		g.Go(func() error {
			m.closeHandle(h, ReasonShutdown, nil)
			select {
			case <-h.closed:
				return nil
			case <-gctx.Done():
				return fmt.Errorf("terminal %s: %w", h.connID, gctx.Err())
			}
		})
	}
	return g.Wait()
}

// Count returns the number of registered terminals.
func (m *ProcessManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Get returns the metadata of the terminal for connID.
func (m *ProcessManager) Get(connID string) (HandleInfo, bool) {
	h := m.lookup(connID)
	if h == nil {
		return HandleInfo{}, false
	}
	return h.info(m.backend.Kind()), true
}

// List returns the metadata of every registered terminal.
func (m *ProcessManager) List() []HandleInfo {
	m.mu.Lock()
	all := make([]*handle, 0, len(m.handles))
	for _, h := range m.handles {
		all = append(all, h)
	}
	m.mu.Unlock()

	out := make([]HandleInfo, 0, len(all))
	for _, h := range all {
		out = append(out, h.info(m.backend.Kind()))
	}
	return out
}

// Stop halts the timeout sweep. It does not close terminals.
func (m *ProcessManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *ProcessManager) lookup(connID string) *handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[connID]
}

// remove deletes h from the registry unless the id already maps to a newer handle.
func (m *ProcessManager) remove(h *handle) {
	m.mu.Lock()
	if cur, ok := m.handles[h.connID]; ok && cur == h {
		delete(m.handles, h.connID)
	}
	m.mu.Unlock()
}

// closeHandle moves h to StateExiting if no other trigger has. The winner
// kills the process (unless it already exited) and hands the rest to finish.
// The handle stays registered until then, so the connection cannot start a
// second process while the first is still dying. exit is non-nil for natural
// exits.
func (m *ProcessManager) closeHandle(h *handle, reason CloseReason, exit *ptyproc.ExitInfo) bool {
	h.mu.Lock()
	if h.state == StateExiting || h.state == StateClosed {
		h.mu.Unlock()
		return false
	}
	h.state = StateExiting
	h.mu.Unlock()

	<-h.started

	h.mu.Lock()
	proc := h.proc
	h.mu.Unlock()

	if exit == nil && proc != nil {
		if err := proc.Kill(m.killGrace); err != nil {
			m.log.Warn().Err(err).Str("conn_id", h.connID).Msg("kill failed")
		}
	}
	go m.finish(h, proc, reason, exit)
	return true
}

// finish waits for the process to be reaped, sends the single exit frame,
// then unregisters the handle and marks it closed.
func (m *ProcessManager) finish(h *handle, proc ptyproc.Process, reason CloseReason, exit *ptyproc.ExitInfo) {
	info := ptyproc.ExitInfo{Code: -1}
	switch {
	case exit != nil:
		info = *exit
	case proc != nil:
		t := time.NewTimer(m.killGrace + exitSlack)
		select {
		case <-proc.Done():
			info = proc.ExitInfo()
		case <-t.C:
			m.log.Warn().Str("conn_id", h.connID).Msg("process not reaped after kill")
		}
		t.Stop()
	}

	if proc != nil {
		if reason == ReasonTimeout {
			h.relay.Send(Frame{Type: FrameError, Message: "Terminal session timed out"})
		}
		code := info.Code
		h.relay.Send(Frame{Type: FrameExit, Code: &code, Signal: info.Signal})
	}

	m.remove(h)
	h.mu.Lock()
	h.state = StateClosed
	h.mu.Unlock()
	close(h.closed)

	m.log.Info().
		Str("conn_id", h.connID).
		Str("reason", string(reason)).
		Int("code", info.Code).
		Str("signal", info.Signal).
		Msg("terminal closed")
	if m.onClose != nil && proc != nil {
		m.onClose(h.info(m.backend.Kind()), reason, info)
	}
}

func (m *ProcessManager) sweepLoop(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.SweepTimedOut()
		case <-m.stop:
			return
		}
	}
}
