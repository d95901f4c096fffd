package ptyproc

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// baseProcess holds the lifecycle shared by both backends: a reader goroutine
// feeding OnData and a waiter that releases resources and reports the exit.
type baseProcess struct {
	cmd *exec.Cmd

	mu   sync.Mutex
	info ExitInfo

	done       chan struct{}
	readerDone chan struct{}
}

func newBaseProcess(cmd *exec.Cmd) *baseProcess {
	return &baseProcess{
		cmd:        cmd,
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

func (p *baseProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *baseProcess) Done() <-chan struct{} { return p.done }

func (p *baseProcess) ExitInfo() ExitInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

func (p *baseProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// readLoop copies r to h.OnData until r fails.
func (p *baseProcess) readLoop(r io.Reader, h Handlers) {
	defer close(p.readerDone)
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.data(chunk)
		}
		if err != nil {
			return
		}
	}
}

// waitLoop reaps the child, lets the reader drain, runs release and reports
// the exit. done is closed before OnExit runs.
func (p *baseProcess) waitLoop(h Handlers, afterWait, release func()) {
	err := p.cmd.Wait()
	info := exitInfoFrom(p.cmd.ProcessState, err)
	if afterWait != nil {
		afterWait()
	}

	t := time.NewTimer(drainTimeout)
	select {
	case <-p.readerDone:
	case <-t.C:
	}
	t.Stop()

	if release != nil {
		release()
	}

	p.mu.Lock()
	p.info = info
	p.mu.Unlock()
	close(p.done)
	h.exit(info)
}

func exitInfoFrom(ps *os.ProcessState, err error) ExitInfo {
	if ps == nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			ps = ee.ProcessState
		}
	}
	if ps == nil {
		return ExitInfo{Code: -1}
	}
	return exitInfoFromState(ps)
}

// terminate asks proc to stop and escalates to SIGKILL if done is not closed
// within grace. It never blocks.
func terminate(proc *os.Process, done <-chan struct{}, grace time.Duration) error {
	if proc == nil {
		return nil
	}
	if grace <= 0 {
		return ignoreDone(proc.Kill())
	}
	if err := signalTerminate(proc); err != nil {
		return ignoreDone(proc.Kill())
	}
	go func() {
		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-done:
		case <-t.C:
			_ = proc.Kill()
		}
	}()
	return nil
}

func ignoreDone(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
