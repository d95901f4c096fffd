package sshterminal

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gluk-w/webssh/internal/ptyproc"
)

// --- fake backend ---

type fakeBackend struct {
	kind     ptyproc.Kind
	spawnErr error
	// ignoreKill makes spawned processes survive Kill.
	ignoreKill bool

	mu    sync.Mutex
	procs []*fakeProcess
	pids  atomic.Int32
}

func (b *fakeBackend) Kind() ptyproc.Kind {
	if b.kind == "" {
		return ptyproc.KindPTY
	}
	return b.kind
}

func (b *fakeBackend) SupportsResize() bool { return b.Kind() == ptyproc.KindPTY }

func (b *fakeBackend) Spawn(opts ptyproc.SpawnOptions, h ptyproc.Handlers) (ptyproc.Process, error) {
	if b.spawnErr != nil {
		return nil, b.spawnErr
	}
	p := &fakeProcess{
		pid:        int(b.pids.Add(1)) + 1000,
		opts:       opts,
		h:          h,
		done:       make(chan struct{}),
		ignoreKill: b.ignoreKill,
		resizable:  b.SupportsResize(),
	}
	b.mu.Lock()
	b.procs = append(b.procs, p)
	b.mu.Unlock()
	return p, nil
}

func (b *fakeBackend) spawned() []*fakeProcess {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakeProcess(nil), b.procs...)
}

// fakeProcess echoes writes back as output, like cat.
type fakeProcess struct {
	pid        int
	opts       ptyproc.SpawnOptions
	h          ptyproc.Handlers
	ignoreKill bool
	resizable  bool
	writeErr   error

	mu      sync.Mutex
	written bytes.Buffer
	cols    uint16
	rows    uint16
	kills   int
	info    ptyproc.ExitInfo

	once sync.Once
	done chan struct{}
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	select {
	case <-p.done:
		return 0, ptyproc.ErrProcessExited
	default:
	}
	p.mu.Lock()
	p.written.Write(b)
	p.mu.Unlock()
	echo := append([]byte(nil), b...)
	p.h.OnData(echo)
	return len(b), nil
}

func (p *fakeProcess) Resize(cols, rows uint16) error {
	if !p.resizable {
		return ptyproc.ErrResizeUnsupported
	}
	p.mu.Lock()
	p.cols, p.rows = cols, rows
	p.mu.Unlock()
	return nil
}

func (p *fakeProcess) Kill(grace time.Duration) error {
	p.mu.Lock()
	p.kills++
	p.mu.Unlock()
	if !p.ignoreKill {
		p.exit(ptyproc.ExitInfo{Code: 137, Signal: "SIGKILL"})
	}
	return nil
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) ExitInfo() ptyproc.ExitInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// exit simulates the process terminating on its own.
func (p *fakeProcess) exit(info ptyproc.ExitInfo) {
	p.once.Do(func() {
		p.mu.Lock()
		p.info = info
		p.mu.Unlock()
		close(p.done)
		go p.h.OnExit(info)
	})
}

func (p *fakeProcess) killCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

// --- recording relay ---

type recordingRelay struct {
	mu     sync.Mutex
	frames []Frame
	gone   bool
	notify chan struct{}
}

func newRecordingRelay() *recordingRelay {
	return &recordingRelay{notify: make(chan struct{}, 1)}
}

func (r *recordingRelay) Send(f Frame) bool {
	r.mu.Lock()
	if r.gone {
		r.mu.Unlock()
		return false
	}
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return true
}

func (r *recordingRelay) disconnect() {
	r.mu.Lock()
	r.gone = true
	r.mu.Unlock()
}

func (r *recordingRelay) snapshot() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

func (r *recordingRelay) count(typ string) int {
	n := 0
	for _, f := range r.snapshot() {
		if f.Type == typ {
			n++
		}
	}
	return n
}

// waitFor blocks until a frame of typ has been sent and returns the first one.
func (r *recordingRelay) waitFor(t *testing.T, typ string) Frame {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		for _, f := range r.snapshot() {
			if f.Type == typ {
				return f
			}
		}
		select {
		case <-r.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %q frame; got %+v", typ, r.snapshot())
		}
	}
}

// --- helpers ---

type closeEvent struct {
	info   HandleInfo
	reason CloseReason
	exit   ptyproc.ExitInfo
}

type hookRecorder struct {
	mu     sync.Mutex
	starts []HandleInfo
	closes []closeEvent
}

func (h *hookRecorder) onStart(info HandleInfo) {
	h.mu.Lock()
	h.starts = append(h.starts, info)
	h.mu.Unlock()
}

func (h *hookRecorder) onClose(info HandleInfo, reason CloseReason, exit ptyproc.ExitInfo) {
	h.mu.Lock()
	h.closes = append(h.closes, closeEvent{info, reason, exit})
	h.mu.Unlock()
}

func (h *hookRecorder) closeEvents() []closeEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]closeEvent(nil), h.closes...)
}

func newTestManager(t *testing.T, backend ptyproc.Backend, hooks *hookRecorder) *ProcessManager {
	t.Helper()
	cfg := ManagerConfig{
		Backend:   backend,
		Command:   ptyproc.SpawnOptions{Command: "ssh", Args: []string{"-t", "u@h"}},
		KillGrace: 50 * time.Millisecond,
	}
	if hooks != nil {
		cfg.OnStart = hooks.onStart
		cfg.OnClose = hooks.onClose
	}
	m := NewProcessManager(cfg, zeroLogger())
	t.Cleanup(m.Stop)
	return m
}

func waitClosed(t *testing.T, m *ProcessManager, connID string) {
	t.Helper()
	m.mu.Lock()
	h := m.handles[connID]
	m.mu.Unlock()
	if h == nil {
		return
	}
	select {
	case <-h.closed:
	case <-time.After(5 * time.Second):
		t.Fatalf("handle %s never closed", connID)
	}
}

var errBoom = errors.New("boom")

func zeroLogger() zerolog.Logger { return zerolog.Nop() }
