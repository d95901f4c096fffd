package ptyproc

import (
	"io"
	"os/exec"
	"sync"
	"time"
)

// PipeBackend runs processes with plain pipes. stdout and stderr are merged
// into one data stream, there is no window size and the exit carries only a
// code.
type PipeBackend struct {
	// WaitDelay bounds how long Wait blocks on output copying after exit.
	WaitDelay time.Duration
}

func NewPipeBackend() *PipeBackend {
	return &PipeBackend{WaitDelay: time.Second}
}

func (*PipeBackend) Kind() Kind           { return KindPipe }
func (*PipeBackend) SupportsResize() bool { return false }

func (b *PipeBackend) Spawn(opts SpawnOptions, h Handlers) (Process, error) {
	if opts.Command == "" {
		return nil, ErrNoCommand
	}
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir
	cmd.WaitDelay = b.WaitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = pw.Close()
		return nil, err
	}

	p := &pipeProcess{baseProcess: newBaseProcess(cmd), stdin: stdin}
	go p.readLoop(pr, h)
	exitOnly := Handlers{OnExit: func(info ExitInfo) {
		h.exit(ExitInfo{Code: info.Code})
	}}
	go p.waitLoop(exitOnly, func() { _ = pw.Close() }, p.closeStdin)
	return p, nil
}

type pipeProcess struct {
	*baseProcess

	stdinOnce sync.Once
	stdin     io.WriteCloser
}

func (p *pipeProcess) Write(b []byte) (int, error) {
	if p.exited() {
		return 0, ErrProcessExited
	}
	return p.stdin.Write(b)
}

func (p *pipeProcess) Resize(cols, rows uint16) error {
	return ErrResizeUnsupported
}

// Kill closes stdin, sends SIGTERM and escalates to SIGKILL after grace.
func (p *pipeProcess) Kill(grace time.Duration) error {
	if p.exited() {
		return nil
	}
	p.closeStdin()
	return terminate(p.cmd.Process, p.done, grace)
}

func (p *pipeProcess) closeStdin() {
	p.stdinOnce.Do(func() { _ = p.stdin.Close() })
}

func (p *pipeProcess) ExitInfo() ExitInfo {
	return ExitInfo{Code: p.baseProcess.ExitInfo().Code}
}
