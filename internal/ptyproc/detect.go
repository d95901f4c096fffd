package ptyproc

// Detect picks the backend once at startup. The pty backend is used when the
// host can allocate a pseudo-terminal and forcePipe is false.
func Detect(forcePipe bool) Backend {
	if !forcePipe && ptyAvailable() {
		if b := newPTYBackend(); b != nil {
			return b
		}
	}
	return NewPipeBackend()
}
