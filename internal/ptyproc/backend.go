// Package ptyproc runs child processes behind a uniform interface with two
// backends: a pseudo-terminal backend and a pipe fallback used when the host
// cannot allocate a pty.
package ptyproc

import (
	"errors"
	"time"
)

// Kind identifies a backend.
type Kind string

const (
	KindPTY  Kind = "pty"
	KindPipe Kind = "pipe"
)

const (
	// DefaultKillGrace is how long a terminated pipe process gets before SIGKILL.
	DefaultKillGrace = 5 * time.Second

	readBufferSize = 32 * 1024
	drainTimeout   = 2 * time.Second
)

var (
	// ErrResizeUnsupported is returned by Resize on backends without window-size support.
	ErrResizeUnsupported = errors.New("resize not supported by backend")
	// ErrProcessExited is returned by Write after the process has gone.
	ErrProcessExited = errors.New("process exited")
	// ErrNoCommand is returned by Spawn when SpawnOptions.Command is empty.
	ErrNoCommand = errors.New("no command")
)

// ExitInfo describes how a process terminated. Signal is empty unless the
// process was killed by a signal and the backend can observe it.
type ExitInfo struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

type SpawnOptions struct {
	Command string
	Args    []string
	Cols    uint16
	Rows    uint16
	Env     []string
	Dir     string
}

// Handlers receive process events. OnData gets a private copy of each chunk.
// Every OnData call happens before OnExit, and OnExit is called exactly once.
type Handlers struct {
	OnData func([]byte)
	OnExit func(ExitInfo)
}

// Process is a running child. All methods are safe for concurrent use.
type Process interface {
	Pid() int
	Write(p []byte) (int, error)
	Resize(cols, rows uint16) error
	// Kill starts termination and returns without waiting; use Done to wait.
	Kill(grace time.Duration) error
	// Done is closed once the process has exited and its resources are released.
	Done() <-chan struct{}
	ExitInfo() ExitInfo
}

// Backend spawns processes.
type Backend interface {
	Kind() Kind
	SupportsResize() bool
	Spawn(opts SpawnOptions, h Handlers) (Process, error)
}

func (h Handlers) data(p []byte) {
	if h.OnData != nil {
		h.OnData(p)
	}
}

func (h Handlers) exit(info ExitInfo) {
	if h.OnExit != nil {
		h.OnExit(info)
	}
}
