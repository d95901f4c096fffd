//go:build !windows

package ptyproc

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

// PTYBackend runs processes attached to a pseudo-terminal.
type PTYBackend struct{}

func NewPTYBackend() *PTYBackend { return &PTYBackend{} }

func (*PTYBackend) Kind() Kind           { return KindPTY }
func (*PTYBackend) SupportsResize() bool { return true }

func (b *PTYBackend) Spawn(opts SpawnOptions, h Handlers) (Process, error) {
	if opts.Command == "" {
		return nil, ErrNoCommand
	}
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows})
	if err != nil {
		return nil, err
	}

	p := &ptyProcess{baseProcess: newBaseProcess(cmd), ptmx: ptmx}
	go p.readLoop(ptmx, h)
	go p.waitLoop(h, nil, p.closePTY)
	return p, nil
}

type ptyProcess struct {
	*baseProcess

	closeOnce sync.Once
	ptmx      *os.File
}

func (p *ptyProcess) Write(b []byte) (int, error) {
	if p.exited() {
		return 0, ErrProcessExited
	}
	return p.ptmx.Write(b)
}

func (p *ptyProcess) Resize(cols, rows uint16) error {
	if p.exited() {
		return ErrProcessExited
	}
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Kill sends SIGKILL directly. grace is ignored: a pty child gets no
// graceful window.
func (p *ptyProcess) Kill(grace time.Duration) error {
	if p.exited() {
		return nil
	}
	return terminate(p.cmd.Process, p.done, 0)
}

func (p *ptyProcess) closePTY() {
	p.closeOnce.Do(func() { _ = p.ptmx.Close() })
}

func ptyAvailable() bool {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return false
	}
	_ = tty.Close()
	_ = ptmx.Close()
	return true
}

func newPTYBackend() Backend { return NewPTYBackend() }
