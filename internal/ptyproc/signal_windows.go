//go:build windows

package ptyproc

import "os"

func signalTerminate(proc *os.Process) error {
	return proc.Kill()
}

func exitInfoFromState(ps *os.ProcessState) ExitInfo {
	return ExitInfo{Code: ps.ExitCode()}
}
