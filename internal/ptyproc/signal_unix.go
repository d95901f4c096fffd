//go:build !windows

package ptyproc

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func signalTerminate(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}

func exitInfoFromState(ps *os.ProcessState) ExitInfo {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitInfo{Code: 128 + int(ws.Signal()), Signal: unix.SignalName(ws.Signal())}
	}
	return ExitInfo{Code: ps.ExitCode()}
}
